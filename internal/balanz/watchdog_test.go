package balanz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
)

func newWatchdogTestStore(t *testing.T) *model.Store {
	t.Helper()
	store := model.NewStore()
	store.PutCharger(&model.Charger{
		ChargerID: "cp1",
		Connectors: map[int]*model.Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusCharging},
		},
	})
	_, err := store.StartTransaction("cp1", 1, "ABC123", 0, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	return store
}

func TestSweepStopsStaleTransaction(t *testing.T) {
	store := newWatchdogTestStore(t)
	charger, ok := store.Charger("cp1")
	require.True(t, ok)
	charger.LastUpdate = time.Now().Add(-time.Hour)

	cfg := DefaultConfig()
	cfg.TransactionTimeout = time.Minute
	w := NewModelWatchdog(store, cfg, zap.NewNop())

	w.sweep([]string{"cp1"})

	assert.Nil(t, charger.Connectors[1].Transaction)
	assert.Equal(t, model.StatusAvailable, charger.Connectors[1].Status)
}

func TestSweepLeavesFreshChargerAlone(t *testing.T) {
	store := newWatchdogTestStore(t)
	charger, ok := store.Charger("cp1")
	require.True(t, ok)
	charger.LastUpdate = time.Now()

	cfg := DefaultConfig()
	cfg.TransactionTimeout = time.Minute
	w := NewModelWatchdog(store, cfg, zap.NewNop())

	w.sweep([]string{"cp1"})

	assert.NotNil(t, charger.Connectors[1].Transaction)
}

func TestSweepIgnoresUnknownCharger(t *testing.T) {
	store := model.NewStore()
	w := NewModelWatchdog(store, DefaultConfig(), zap.NewNop())
	assert.NotPanics(t, func() { w.sweep([]string{"ghost"}) })
}
