package adminapi

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/modelerr"
)

func (a *adminSession) dispatch(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	if command == "Login" {
		return a.cmdLogin(payload)
	}
	if !allowed(a.role(), command) {
		return nil, modelerr.New(modelerr.NotAuthorized, "role does not permit %s", command)
	}

	switch command {
	case "GetGroups":
		return a.cmdGetGroups()
	case "GetChargers":
		return a.cmdGetChargers()
	case "PutCharger":
		return a.cmdPutCharger(payload)
	case "SetChargerGroup":
		return a.cmdSetChargerGroup(payload)
	case "GetSessions":
		return a.cmdGetSessions()
	case "SetBalanzState":
		return a.cmdSetBalanzState(payload)
	case "SetChargePriority":
		return a.cmdSetChargePriority(payload)
	case "ClearDefaultProfiles":
		return a.cmdClearDefaultProfiles(ctx, payload)
	case "SetTxProfile":
		return a.cmdSetTxProfile(ctx, payload)
	case "GetTags":
		return a.cmdGetTags()
	case "PutTag":
		return a.cmdPutTag(payload)
	case "DeleteTag":
		return a.cmdDeleteTag(payload)
	case "Reset", "RemoteStartTransaction", "RemoteStopTransaction", "GetConfiguration", "ChangeConfiguration", "TriggerMessage", "UpdateFirmware":
		return a.cmdPassThrough(ctx, command, payload)
	default:
		return nil, modelerr.New(modelerr.ProtocolError, "command %q not implemented", command)
	}
}

// cmdPassThrough forwards a fixed set of OCPP actions straight to the
// charger's live session, untouched by the balanz engine.
func (a *adminSession) cmdPassThrough(ctx context.Context, command string, payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID string          `json:"charger_id"`
		Payload   json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode %s", command)
	}
	var out map[string]any
	if err := a.server.caller.Call(ctx, req.ChargerID, command, req.Payload, &out); err != nil {
		return nil, err
	}
	return out, nil
}

type tagView struct {
	IDTag       string `json:"id_tag"`
	UserName    string `json:"user_name"`
	ParentIDTag string `json:"parent_id_tag"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Priority    *int   `json:"priority,omitempty"`
}

func (a *adminSession) cmdGetTags() (any, error) {
	tags := a.server.store.Tags()
	out := make([]tagView, 0, len(tags))
	for _, t := range tags {
		out = append(out, tagView{
			IDTag:       t.IDTag,
			UserName:    t.UserName,
			ParentIDTag: t.ParentIDTag,
			Description: t.Description,
			Status:      string(t.Status),
			Priority:    t.Priority,
		})
	}
	return out, nil
}

func (a *adminSession) cmdPutTag(payload json.RawMessage) (any, error) {
	var req tagView
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode PutTag")
	}
	if req.IDTag == "" {
		return nil, modelerr.New(modelerr.IllegalArgument, "id_tag is required")
	}
	status := model.TagActivated
	if req.Status == string(model.TagBlocked) {
		status = model.TagBlocked
	}
	a.server.store.PutTag(&model.Tag{
		IDTag:       req.IDTag,
		UserName:    req.UserName,
		ParentIDTag: req.ParentIDTag,
		Description: req.Description,
		Status:      status,
		Priority:    req.Priority,
	})
	return map[string]any{"id_tag": req.IDTag, "status": "Accepted"}, nil
}

func (a *adminSession) cmdDeleteTag(payload json.RawMessage) (any, error) {
	var req struct {
		IDTag string `json:"id_tag"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode DeleteTag")
	}
	a.server.store.DeleteTag(req.IDTag)
	return map[string]any{"id_tag": req.IDTag, "status": "Accepted"}, nil
}

func (a *adminSession) cmdLogin(payload json.RawMessage) (any, error) {
	var req struct {
		Token string `json:"token"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode Login")
	}
	sum := sha256.Sum256([]byte(req.Token))
	tokenSHA := hex.EncodeToString(sum[:])

	a.server.usersMu.Lock()
	user, ok := a.server.users[tokenSHA]
	a.server.usersMu.Unlock()
	if !ok {
		return nil, modelerr.New(modelerr.InvalidLogin, "unknown token")
	}

	a.mu.Lock()
	a.loggedIn = true
	a.currentUser = user
	a.mu.Unlock()

	return map[string]any{"username": user.Username, "role": roleName(user.Role)}, nil
}

func roleName(r Role) string {
	for name, v := range roleNames {
		if v == r {
			return name
		}
	}
	return "Unknown"
}

type groupView struct {
	GroupID     string `json:"group_id"`
	Description string `json:"description"`
	Schedule    string `json:"max_allocation_schedule"`
	Suspended   bool   `json:"suspended"`
}

func (a *adminSession) cmdGetGroups() (any, error) {
	groups := a.server.store.AllocationGroups()
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView{GroupID: g.GroupID, Description: g.Description, Schedule: g.MaxAllocationSchedule, Suspended: g.Suspended})
	}
	return out, nil
}

type connectorView struct {
	ConnectorID int     `json:"connector_id"`
	Status      string  `json:"status"`
	Offered     float64 `json:"offered"`
	InSession   bool    `json:"in_transaction"`
}

type chargerView struct {
	ChargerID  string          `json:"charger_id"`
	Alias      string          `json:"alias"`
	GroupID    string          `json:"group_id"`
	Priority   int             `json:"priority"`
	Connected  bool            `json:"connected"`
	Firmware   string          `json:"firmware_status"`
	Connectors []connectorView `json:"connectors"`
}

func (a *adminSession) cmdGetChargers() (any, error) {
	var out []chargerView
	for _, group := range a.server.store.AllocationGroups() {
		for _, c := range a.server.store.ChargersInGroup(group.GroupID) {
			out = append(out, chargerToView(c))
		}
	}
	return out, nil
}

func chargerToView(c *model.Charger) chargerView {
	cv := chargerView{
		ChargerID: c.ChargerID,
		Alias:     c.Alias,
		GroupID:   c.GroupID,
		Priority:  c.Priority,
		Connected: c.SessionHandle != nil && c.SessionHandle.Connected(),
		Firmware:  c.FirmwareStatus,
	}
	for _, id := range c.ConnectorIDsSorted() {
		conn := c.Connectors[id]
		cv.Connectors = append(cv.Connectors, connectorView{
			ConnectorID: conn.ConnectorID,
			Status:      string(conn.Status),
			Offered:     conn.Offered,
			InSession:   conn.Transaction != nil,
		})
	}
	return cv
}

func (a *adminSession) cmdGetSessions() (any, error) {
	a.server.sessionsMu.Lock()
	defer a.server.sessionsMu.Unlock()
	out := make([]*model.Session, len(a.server.recentSessions))
	copy(out, a.server.recentSessions)
	return out, nil
}

func (a *adminSession) cmdSetBalanzState(payload json.RawMessage) (any, error) {
	var req struct {
		GroupID string `json:"group_id"`
		Suspend bool   `json:"suspend"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode SetBalanzState")
	}
	group, ok := a.server.store.Group(req.GroupID)
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such group %q", req.GroupID)
	}
	group.Suspended = req.Suspend
	return map[string]any{"group_id": group.GroupID, "suspended": group.Suspended}, nil
}

func (a *adminSession) cmdSetChargePriority(payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID   string `json:"charger_id"`
		ConnectorID int    `json:"connector_id"`
		Priority    int    `json:"priority"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode SetChargePriority")
	}
	charger, ok := a.server.store.Charger(req.ChargerID)
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such charger %q", req.ChargerID)
	}
	conn, ok := charger.Connectors[req.ConnectorID]
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such connector %d on %q", req.ConnectorID, req.ChargerID)
	}
	if conn.Transaction == nil {
		return nil, modelerr.New(modelerr.Conflict, "connector %d on %q is not in a transaction", req.ConnectorID, req.ChargerID)
	}
	conn.Transaction.Priority = &req.Priority
	return map[string]any{
		"charger_id":   charger.ChargerID,
		"connector_id": conn.ConnectorID,
		"priority":     req.Priority,
	}, nil
}

func (a *adminSession) cmdClearDefaultProfiles(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID string `json:"charger_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode ClearDefaultProfiles")
	}
	if err := a.server.driver.ClearAllDefaultProfiles(ctx, req.ChargerID); err != nil {
		return nil, err
	}
	return map[string]any{"charger_id": req.ChargerID, "status": "Accepted"}, nil
}

func (a *adminSession) cmdSetTxProfile(ctx context.Context, payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID     string  `json:"charger_id"`
		ConnectorID   int     `json:"connector_id"`
		TransactionID int     `json:"transaction_id"`
		LimitAmps     float64 `json:"limit_amps"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode SetTxProfile")
	}
	if err := a.server.driver.SetTxProfile(ctx, req.ChargerID, req.ConnectorID, req.TransactionID, req.LimitAmps); err != nil {
		return nil, err
	}
	return map[string]any{"charger_id": req.ChargerID, "status": "Accepted"}, nil
}
