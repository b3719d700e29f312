package adminapi

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
)

func newTestSession(store *model.Store) *adminSession {
	server := New(store, nil, nil, zap.NewNop())
	return &adminSession{server: server, logger: server.logger}
}

func TestSetChargePrioritySetsTransactionOverride(t *testing.T) {
	store := model.NewStore()
	store.PutCharger(&model.Charger{
		ChargerID: "cp1",
		Priority:  1,
		Connectors: map[int]*model.Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusCharging, Transaction: &model.Transaction{TransactionID: 1}},
		},
	})
	sess := newTestSession(store)

	payload, _ := json.Marshal(map[string]any{"charger_id": "cp1", "connector_id": 1, "priority": 9})
	_, err := sess.cmdSetChargePriority(payload)
	require.NoError(t, err)

	charger, _ := store.Charger("cp1")
	require.NotNil(t, charger.Connectors[1].Transaction.Priority)
	assert.Equal(t, 9, *charger.Connectors[1].Transaction.Priority)
	assert.Equal(t, 1, charger.Priority, "static charger priority must be left untouched")
}

func TestSetChargePriorityNoSuchConnector(t *testing.T) {
	store := model.NewStore()
	store.PutCharger(&model.Charger{ChargerID: "cp1", Connectors: map[int]*model.Connector{}})
	sess := newTestSession(store)

	payload, _ := json.Marshal(map[string]any{"charger_id": "cp1", "connector_id": 1, "priority": 9})
	_, err := sess.cmdSetChargePriority(payload)
	assert.Error(t, err)
}

func TestSetChargePriorityConnectorNotInTransaction(t *testing.T) {
	store := model.NewStore()
	store.PutCharger(&model.Charger{
		ChargerID: "cp1",
		Connectors: map[int]*model.Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusAvailable},
		},
	})
	sess := newTestSession(store)

	payload, _ := json.Marshal(map[string]any{"charger_id": "cp1", "connector_id": 1, "priority": 9})
	_, err := sess.cmdSetChargePriority(payload)
	assert.Error(t, err)
}
