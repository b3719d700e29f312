package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore() *Store {
	s := NewStore()
	s.PutGroup(&Group{GroupID: "g1", MaxAllocationSchedule: "00:00-23:59>0=6:1=32"})
	s.PutCharger(&Charger{
		ChargerID: "cp1",
		GroupID:   "g1",
		ConnMax:   32,
		Connectors: map[int]*Connector{
			1: {ChargerID: "cp1", ConnectorID: 1, Status: StatusAvailable},
		},
	})
	s.PutTag(&Tag{IDTag: "abc123", UserName: "alice", Status: TagActivated})
	s.PutTag(&Tag{IDTag: "blocked1", UserName: "bob", Status: TagBlocked})
	return s
}

func TestAuthorizeUppercasesTagAndAccepts(t *testing.T) {
	s := newTestStore()
	res, err := s.Authorize("cp1", "abc123")
	require.NoError(t, err)
	assert.Equal(t, AuthAccepted, res.Status)
}

func TestAuthorizeUnknownTagIsInvalid(t *testing.T) {
	s := newTestStore()
	res, err := s.Authorize("cp1", "nosuchtag")
	require.NoError(t, err)
	assert.Equal(t, AuthInvalid, res.Status)
}

func TestAuthorizeBlockedTag(t *testing.T) {
	s := newTestStore()
	res, err := s.Authorize("cp1", "BLOCKED1")
	require.NoError(t, err)
	assert.Equal(t, AuthBlocked, res.Status)
}

func TestAuthorizeRejectsConcurrentTagOnDifferentCharger(t *testing.T) {
	s := newTestStore()
	s.PutCharger(&Charger{
		ChargerID:  "cp2",
		GroupID:    "g1",
		Connectors: map[int]*Connector{1: {ChargerID: "cp2", ConnectorID: 1, Status: StatusAvailable}},
	})
	_, err := s.StartTransaction("cp1", 1, "abc123", 0, time.Now())
	require.NoError(t, err)

	res, err := s.Authorize("cp2", "abc123")
	require.NoError(t, err)
	assert.Equal(t, AuthConcurrentTag, res.Status)
}

func TestAuthorizeAllowsConcurrentTagWhenConfigured(t *testing.T) {
	s := newTestStore()
	s.AllowConcurrentTag = true
	s.PutCharger(&Charger{
		ChargerID:  "cp2",
		GroupID:    "g1",
		Connectors: map[int]*Connector{1: {ChargerID: "cp2", ConnectorID: 1, Status: StatusAvailable}},
	})
	_, err := s.StartTransaction("cp1", 1, "abc123", 0, time.Now())
	require.NoError(t, err)

	res, err := s.Authorize("cp2", "abc123")
	require.NoError(t, err)
	assert.Equal(t, AuthAccepted, res.Status)
}

func TestStartTransactionAssignsConnectorIDAsTransactionID(t *testing.T) {
	s := newTestStore()
	tx, err := s.StartTransaction("cp1", 1, "abc123", 100, time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, tx.TransactionID)
	assert.Equal(t, "alice", tx.UserName)
}

func TestStartTransactionIsIdempotentOnSameTimestamp(t *testing.T) {
	s := newTestStore()
	now := time.Now()
	tx1, err := s.StartTransaction("cp1", 1, "abc123", 100, now)
	require.NoError(t, err)
	tx2, err := s.StartTransaction("cp1", 1, "abc123", 100, now)
	require.NoError(t, err)
	assert.Same(t, tx1, tx2)
}

func TestStartTransactionSynthesizesStopWhenReplacingLiveTransaction(t *testing.T) {
	var sessions []*Session
	s := newTestStore()
	s.OnSession = func(sess *Session) { sessions = append(sessions, sess) }

	_, err := s.StartTransaction("cp1", 1, "abc123", 0, time.Now())
	require.NoError(t, err)

	_, err = s.StartTransaction("cp1", 1, "abc123", 50, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.Len(t, sessions, 1)
	assert.Equal(t, "Start transaction without stop transaction", sessions[0].Reason)
}

func TestStopTransactionBuildsSessionAndResetsConnector(t *testing.T) {
	var got *Session
	s := newTestStore()
	s.OnSession = func(sess *Session) { got = sess }

	start := time.Date(2026, 7, 29, 9, 0, 0, 0, time.UTC)
	_, err := s.StartTransaction("cp1", 1, "abc123", 100, start)
	require.NoError(t, err)

	stop := start.Add(30 * time.Minute)
	session, err := s.StopTransaction("cp1", 1, 600, stop, "Local", "")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 500, session.Energy)
	assert.Equal(t, "Local", session.Reason)

	charger, _ := s.Charger("cp1")
	assert.Nil(t, charger.Connectors[1].Transaction)
	assert.Equal(t, float64(0), charger.Connectors[1].Offered)
}

func TestStopTransactionUnknownIDIsNotFound(t *testing.T) {
	s := newTestStore()
	_, err := s.StopTransaction("cp1", 99, 0, time.Now(), "Local", "")
	require.Error(t, err)
}

func TestMeterValuesSynthesizesTransactionWhenMissing(t *testing.T) {
	s := newTestStore()
	txID := 7
	err := s.MeterValues("cp1", 1, time.Now(), 16.0, nil, nil, &txID)
	require.NoError(t, err)

	charger, _ := s.Charger("cp1")
	require.NotNil(t, charger.Connectors[1].Transaction)
	assert.Equal(t, 7, charger.Connectors[1].Transaction.TransactionID)
	assert.Equal(t, StatusCharging, charger.Connectors[1].Status)
}

func TestStatusNotificationResetsOfferedWhenLeavingTransaction(t *testing.T) {
	s := newTestStore()
	_, err := s.StartTransaction("cp1", 1, "abc123", 0, time.Now())
	require.NoError(t, err)

	charger, _ := s.Charger("cp1")
	charger.Connectors[1].Offered = 16

	err = s.StatusNotification("cp1", 1, StatusCharging)
	require.NoError(t, err)
	assert.Equal(t, StatusCharging, charger.Connectors[1].Status)

	err = s.StatusNotification("cp1", 1, StatusAvailable)
	require.NoError(t, err)
	assert.Equal(t, float64(0), charger.Connectors[1].Offered)
}

func TestStatusNotificationFlagsSuspendedEVSEWithoutTransactionForReview(t *testing.T) {
	s := newTestStore()
	err := s.StatusNotification("cp1", 1, StatusSuspendedEVSE)
	require.NoError(t, err)

	charger, _ := s.Charger("cp1")
	assert.True(t, charger.Connectors[1].ToReview)
}

func TestChargeChangeImplementedCommitsOfferedAndHistory(t *testing.T) {
	s := newTestStore()
	_, err := s.StartTransaction("cp1", 1, "abc123", 0, time.Now())
	require.NoError(t, err)

	now := time.Now()
	err = s.ChargeChangeImplemented(ChargeChange{ChargerID: "cp1", ConnectorID: 1, Allocation: 16}, now)
	require.NoError(t, err)

	charger, _ := s.Charger("cp1")
	conn := charger.Connectors[1]
	assert.Equal(t, float64(16), conn.Offered)
	require.Len(t, conn.Transaction.ChargingHistory, 1)
	assert.Equal(t, float64(16), conn.Transaction.ChargingHistory[0].Offered)
}
