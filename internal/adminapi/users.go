// Package adminapi implements C7, the thin JSON-over-WebSocket
// admin/observer API at /api: role-gated queries and mutations over the
// entity store, plus OCPP pass-through trigger commands.
package adminapi

import "sort"

// Role is a privilege level; each role is a superset of the previous one
// for a fixed command whitelist (spec §6).
type Role int

const (
	RoleStatus Role = iota
	RoleAnalysis
	RoleSessionPriority
	RoleTags
	RoleAdmin
)

var roleNames = map[string]Role{
	"Status":          RoleStatus,
	"Analysis":        RoleAnalysis,
	"SessionPriority": RoleSessionPriority,
	"Tags":            RoleTags,
	"Admin":           RoleAdmin,
}

func ParseRole(s string) (Role, bool) {
	r, ok := roleNames[s]
	return r, ok
}

// User is an admin-API account, authenticated by presenting a token whose
// sha256 matches TokenSHA.
type User struct {
	Username string
	TokenSHA string
	Role     Role
}

// commandMinRole maps each command to the minimum role that may invoke
// it. Commands below a user's role are also permitted (roles are
// cumulative, per spec §6).
var commandMinRole = map[string]Role{
	"Login":                  RoleStatus,
	"GetGroups":              RoleStatus,
	"GetChargers":            RoleStatus,
	"PutCharger":             RoleAdmin,
	"SetChargerGroup":        RoleAdmin,
	"GetSessions":            RoleAnalysis,
	"SetBalanzState":         RoleAdmin,
	"SetChargePriority":      RoleSessionPriority,
	"ClearDefaultProfiles":   RoleAdmin,
	"SetTxProfile":           RoleAdmin,
	"Reset":                  RoleAdmin,
	"RemoteStartTransaction": RoleAdmin,
	"RemoteStopTransaction":  RoleAdmin,
	"GetConfiguration":       RoleAnalysis,
	"ChangeConfiguration":    RoleAdmin,
	"TriggerMessage":         RoleAdmin,
	"UpdateFirmware":         RoleAdmin,
	// There is no separate WriteTags command: tag writes go through the
	// tag commands below, which change the in-memory store only (the tags
	// CSV is not rewritten), per the open-question decision recorded in
	// DESIGN.md.
	"GetTags":    RoleTags,
	"PutTag":     RoleTags,
	"DeleteTag":  RoleTags,
}

func allowed(role Role, command string) bool {
	min, ok := commandMinRole[command]
	if !ok {
		return false
	}
	return role >= min
}

// Commands returns the sorted command whitelist for a role, useful for a
// client's capability probe.
func Commands(role Role) []string {
	var out []string
	for cmd, min := range commandMinRole {
		if role >= min {
			out = append(out, cmd)
		}
	}
	sort.Strings(out)
	return out
}
