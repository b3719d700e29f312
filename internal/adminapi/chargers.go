package adminapi

import (
	"encoding/json"
	"regexp"

	"github.com/evbalanz/balanzd/internal/model"
	"github.com/evbalanz/balanzd/internal/modelerr"
)

var chargerIDPattern = regexp.MustCompile(`^[A-Za-z0-9_.-]+$`)

// validateChargerID enforces the same charge-point identity rules OCPP
// WebSocket paths require: non-empty, bounded length, URL-path-safe.
func validateChargerID(id string) error {
	if id == "" {
		return modelerr.New(modelerr.IllegalArgument, "charger_id is required")
	}
	if len(id) > 64 {
		return modelerr.New(modelerr.IllegalArgument, "charger_id must be <= 64 characters")
	}
	if !chargerIDPattern.MatchString(id) {
		return modelerr.New(modelerr.IllegalArgument, "charger_id can only contain A-Z, a-z, 0-9, _, -, .")
	}
	return nil
}

func (a *adminSession) cmdPutCharger(payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID      string  `json:"charger_id"`
		Alias          string  `json:"alias"`
		GroupID        string  `json:"group_id"`
		Priority       int     `json:"priority"`
		ConnMax        float64 `json:"conn_max"`
		ConnectorCount int     `json:"connector_count"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode PutCharger")
	}
	if err := validateChargerID(req.ChargerID); err != nil {
		return nil, err
	}
	if _, ok := a.server.store.Group(req.GroupID); !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such group %q", req.GroupID)
	}

	existing, ok := a.server.store.Charger(req.ChargerID)
	if ok {
		existing.Alias = req.Alias
		existing.GroupID = req.GroupID
		existing.Priority = req.Priority
		existing.ConnMax = req.ConnMax
		return map[string]any{"charger_id": existing.ChargerID, "status": "Accepted"}, nil
	}

	n := req.ConnectorCount
	if n <= 0 {
		n = 1
	}
	charger := &model.Charger{
		ChargerID:  req.ChargerID,
		Alias:      req.Alias,
		GroupID:    req.GroupID,
		Priority:   req.Priority,
		ConnMax:    req.ConnMax,
		Connectors: make(map[int]*model.Connector),
	}
	for i := 1; i <= n; i++ {
		charger.Connectors[i] = &model.Connector{ChargerID: req.ChargerID, ConnectorID: i, Status: model.StatusAvailable}
	}
	a.server.store.PutCharger(charger)
	return map[string]any{"charger_id": charger.ChargerID, "status": "Accepted"}, nil
}

func (a *adminSession) cmdSetChargerGroup(payload json.RawMessage) (any, error) {
	var req struct {
		ChargerID string `json:"charger_id"`
		GroupID   string `json:"group_id"`
	}
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, modelerr.Wrap(modelerr.ProtocolError, err, "decode SetChargerGroup")
	}
	charger, ok := a.server.store.Charger(req.ChargerID)
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such charger %q", req.ChargerID)
	}
	if _, ok := a.server.store.Group(req.GroupID); !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such group %q", req.GroupID)
	}
	charger.GroupID = req.GroupID
	return map[string]any{"charger_id": charger.ChargerID, "group_id": charger.GroupID}, nil
}
