package balanz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evbalanz/balanzd/internal/model"
)

type fakeSession struct{ connected bool }

func (f fakeSession) Connected() bool { return f.connected }

type fakeDriver struct {
	setTxProfileErr            error
	setBlockingErr             error
	clearBlockingErr           error
	setTxProfileCalls          int
	clearBlockingDefaultCalls  int
	setBlockingDefaultCalls    int
}

func (d *fakeDriver) ClearAllDefaultProfiles(ctx context.Context, chargerID string) error { return nil }
func (d *fakeDriver) SetBaseDefaultProfile(ctx context.Context, chargerID string, minAllocation float64) error {
	return nil
}
func (d *fakeDriver) SetBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error {
	d.setBlockingDefaultCalls++
	return d.setBlockingErr
}
func (d *fakeDriver) ClearBlockingDefaultProfile(ctx context.Context, chargerID string, connectorID int) error {
	d.clearBlockingDefaultCalls++
	return d.clearBlockingErr
}
func (d *fakeDriver) SetTxProfile(ctx context.Context, chargerID string, connectorID, transactionID int, limitAmps float64) error {
	d.setTxProfileCalls++
	return d.setTxProfileErr
}
func (d *fakeDriver) TriggerBootNotification(ctx context.Context, chargerID string) error  { return nil }
func (d *fakeDriver) TriggerStatusNotification(ctx context.Context, chargerID string, connectorID int) error {
	return nil
}
func (d *fakeDriver) TriggerMeterValues(ctx context.Context, chargerID string) error { return nil }

func newTestLoop(driver ProfileDriver) (*Loop, *model.Store, *model.Group) {
	store := model.NewStore()
	group := &model.Group{GroupID: "g1", MaxAllocationSchedule: "00:00-23:59>0=32"}
	store.PutGroup(group)
	logger := zap.NewNop()
	return NewLoop(group, store, driver, DefaultConfig(), logger), store, group
}

func TestIsUrgentWhenChargerNeedsInitialization(t *testing.T) {
	loop, _, _ := newTestLoop(&fakeDriver{})
	charger := &model.Charger{
		ChargerID:     "cp1",
		SessionHandle: fakeSession{connected: true},
		Connectors:    map[int]*model.Connector{1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusAvailable}},
	}
	assert.True(t, loop.isUrgent([]*model.Charger{charger}))
}

func TestIsUrgentFalseWhenSettled(t *testing.T) {
	loop, _, _ := newTestLoop(&fakeDriver{})
	charger := &model.Charger{
		ChargerID:          "cp1",
		SessionHandle:      fakeSession{connected: true},
		ProfileInitialized: true,
		Connectors: map[int]*model.Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusAvailable, Scratch: model.Scratch{BlockingProfileReset: true}},
		},
	}
	assert.False(t, loop.isUrgent([]*model.Charger{charger}))
}

func TestIsUrgentIgnoresDisconnectedChargers(t *testing.T) {
	loop, _, _ := newTestLoop(&fakeDriver{})
	charger := &model.Charger{ChargerID: "cp1", SessionHandle: fakeSession{connected: false}}
	assert.False(t, loop.isUrgent([]*model.Charger{charger}))
}

func TestApplyChangeStarterBlockSetsBlockingProfile(t *testing.T) {
	driver := &fakeDriver{}
	loop, store, _ := newTestLoop(driver)
	store.PutCharger(&model.Charger{
		ChargerID:  "cp1",
		Connectors: map[int]*model.Connector{1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusSuspendedEVSE}},
	})

	ok := loop.applyChange(context.Background(), model.ChargeChange{ChargerID: "cp1", ConnectorID: 1, Allocation: 0})
	require.True(t, ok)
	assert.Equal(t, 1, driver.setBlockingDefaultCalls)
}

func TestApplyChangeNormalChangeCallsSetTxProfile(t *testing.T) {
	driver := &fakeDriver{}
	loop, store, _ := newTestLoop(driver)
	store.PutCharger(&model.Charger{
		ChargerID: "cp1",
		Connectors: map[int]*model.Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusCharging, Transaction: &model.Transaction{TransactionID: 1}},
		},
	})
	txID := 1

	ok := loop.applyChange(context.Background(), model.ChargeChange{ChargerID: "cp1", ConnectorID: 1, TransactionID: &txID, Allocation: 16})
	require.True(t, ok)
	assert.Equal(t, 1, driver.setTxProfileCalls)

	charger, _ := store.Charger("cp1")
	assert.Equal(t, float64(16), charger.Connectors[1].Offered)
}

func TestApplyChangeAbortsOnDriverErrorForTxProfile(t *testing.T) {
	driver := &fakeDriver{setTxProfileErr: assertError{"boom"}}
	loop, store, _ := newTestLoop(driver)
	store.PutCharger(&model.Charger{
		ChargerID:  "cp1",
		Connectors: map[int]*model.Connector{1: {ChargerID: "cp1", ConnectorID: 1, Status: model.StatusCharging}},
	})
	txID := 1

	ok := loop.applyChange(context.Background(), model.ChargeChange{ChargerID: "cp1", ConnectorID: 1, TransactionID: &txID, Allocation: 16})
	assert.False(t, ok)
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
