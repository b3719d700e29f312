package balanz

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evbalanz/balanzd/internal/model"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.MinAllocation = 6
	cfg.MaxOfferIncrease = 6
	return cfg
}

func chargingConnector(chargerID string, connectorID, priority int, offered float64, lastOfferAge time.Duration, now time.Time) ConnectorView {
	conn := &model.Connector{
		ChargerID:   chargerID,
		ConnectorID: connectorID,
		Status:      model.StatusCharging,
		Offered:     offered,
		Transaction: &model.Transaction{TransactionID: connectorID},
	}
	conn.LastOfferTime = now.Add(-lastOfferAge)
	return ConnectorView{Conn: conn, ChargerPriority: priority, ConnMax: 32}
}

func TestRunStarterGetsMinimumAllocation(t *testing.T) {
	now := time.Now()
	views := []ConnectorView{chargingConnector("cp1", 1, 0, 0, time.Hour, now)}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 32}}

	res := Run(views, buckets, now, testConfig())
	require.Len(t, res.Grow, 1)
	assert.Equal(t, float64(6), res.Grow[0].Allocation)
}

func TestRunGrowsTowardMaxDesiredAfterIncreaseInterval(t *testing.T) {
	now := time.Now()
	view := chargingConnector("cp1", 1, 0, 6, time.Hour, now)
	view.Conn.PushUsage(5.5, now, 5*time.Minute) // near-saturating usage triggers growth
	views := []ConnectorView{view}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 32}}

	res := Run(views, buckets, now, testConfig())
	require.Len(t, res.Grow, 1)
	assert.Equal(t, float64(12), res.Grow[0].Allocation)
}

func TestRunSharesBucketBudgetAcrossEqualPriorityConnectors(t *testing.T) {
	now := time.Now()
	views := []ConnectorView{
		chargingConnector("cp1", 1, 0, 0, time.Hour, now),
		chargingConnector("cp2", 1, 0, 0, time.Hour, now),
	}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 12}}

	res := Run(views, buckets, now, testConfig())
	require.Len(t, res.Grow, 2)
	for _, c := range res.Grow {
		assert.Equal(t, float64(6), c.Allocation)
	}
}

func TestRunHigherPriorityGetsBucketBeforeLowerPriority(t *testing.T) {
	now := time.Now()
	views := []ConnectorView{
		chargingConnector("cp-low", 1, 0, 0, time.Hour, now),
		chargingConnector("cp-high", 1, 1, 0, time.Hour, now),
	}
	buckets := []model.Bucket{{Priority: 1, LimitAmps: 32}, {Priority: 0, LimitAmps: 0}}

	res := Run(views, buckets, now, testConfig())
	// The low-priority connector falls in the priority-0 bucket, whose cap is
	// 0A, so only the high-priority connector gets its 6A minimum.
	var highAlloc, lowAlloc float64
	for _, c := range res.Grow {
		if c.ChargerID == "cp-high" {
			highAlloc = c.Allocation
		}
		if c.ChargerID == "cp-low" {
			lowAlloc = c.Allocation
		}
	}
	assert.Equal(t, float64(6), highAlloc)
	assert.Equal(t, float64(0), lowAlloc)
}

func TestRunReducesToObservedUsageWhenOverOffered(t *testing.T) {
	now := time.Now()
	view := chargingConnector("cp1", 1, 0, 16, 10*time.Minute, now)
	view.Conn.PushUsage(8, now, 5*time.Minute)
	views := []ConnectorView{view}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 32}}

	cfg := testConfig()
	cfg.UsageMonitoringInterval = 5 * time.Minute
	cfg.MarginLower = 0.6

	res := Run(views, buckets, now, cfg)
	require.Len(t, res.Reduce, 1)
	assert.Equal(t, float64(8), res.Reduce[0].Allocation)
}

func TestRunSkipsConnectorsNotInTransaction(t *testing.T) {
	now := time.Now()
	conn := &model.Connector{ChargerID: "cp1", ConnectorID: 1, Status: model.StatusAvailable}
	views := []ConnectorView{{Conn: conn, ChargerPriority: 0, ConnMax: 32}}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 32}}

	res := Run(views, buckets, now, testConfig())
	assert.Empty(t, res.Grow)
	assert.Empty(t, res.Reduce)
}

func TestRunSuspendedEVBelowThresholdReleasesAfterTimeout(t *testing.T) {
	now := time.Now()
	conn := &model.Connector{
		ChargerID:   "cp1",
		ConnectorID: 1,
		Status:      model.StatusSuspendedEV,
		Offered:     6,
		Transaction: &model.Transaction{TransactionID: 1},
	}
	conn.LastOfferTime = now.Add(-time.Hour)
	views := []ConnectorView{{Conn: conn, ChargerPriority: 0, ConnMax: 32}}
	buckets := []model.Bucket{{Priority: 0, LimitAmps: 32}}

	cfg := testConfig()
	cfg.SuspendedAllocationTimeout = time.Minute

	res := Run(views, buckets, now, cfg)
	require.Len(t, res.Reduce, 1)
	assert.Equal(t, float64(0), res.Reduce[0].Allocation)
	assert.NotNil(t, conn.SuspendUntil)
}
