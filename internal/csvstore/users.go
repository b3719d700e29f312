package csvstore

import "github.com/evbalanz/balanzd/internal/adminapi"

// LoadUsers reads a users CSV with header username,token_sha,role.
func LoadUsers(path string) ([]*adminapi.User, error) {
	var out []*adminapi.User
	err := forEachRow(path, func(rec map[string]string) error {
		role, ok := adminapi.ParseRole(rec["role"])
		if !ok {
			role = adminapi.RoleStatus
		}
		out = append(out, &adminapi.User{
			Username: rec["username"],
			TokenSHA: rec["token_sha"],
			Role:     role,
		})
		return nil
	})
	return out, err
}
