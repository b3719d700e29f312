// Package model holds the in-memory entity store the balanz engine and the
// OCPP session layer operate on: Groups, Chargers, Connectors, Tags,
// Transactions, and completed Sessions.
package model

import "time"

// ConnectorStatus mirrors the OCPP 1.6 core status enumeration relevant to
// a connector's charging lifecycle.
type ConnectorStatus string

const (
	StatusAvailable     ConnectorStatus = "Available"
	StatusPreparing     ConnectorStatus = "Preparing"
	StatusCharging      ConnectorStatus = "Charging"
	StatusSuspendedEV   ConnectorStatus = "SuspendedEV"
	StatusSuspendedEVSE ConnectorStatus = "SuspendedEVSE"
	StatusFinishing     ConnectorStatus = "Finishing"
	StatusReserved      ConnectorStatus = "Reserved"
	StatusUnavailable   ConnectorStatus = "Unavailable"
	StatusFaulted       ConnectorStatus = "Faulted"
)

// InTransaction reports whether this status belongs to the in-transaction
// set {Charging, SuspendedEV, SuspendedEVSE}.
func (s ConnectorStatus) InTransaction() bool {
	switch s {
	case StatusCharging, StatusSuspendedEV, StatusSuspendedEVSE:
		return true
	default:
		return false
	}
}

// TagStatus is the activation state of an RFID/id-tag.
type TagStatus string

const (
	TagActivated TagStatus = "Activated"
	TagBlocked   TagStatus = "Blocked"
)

// Tag is an authorization credential. IDTag is always upper-cased on
// insert and lookup (invariant I5).
type Tag struct {
	IDTag       string
	UserName    string
	ParentIDTag string
	Description string
	Status      TagStatus
	Priority    *int
}

// HistoryEntry records one point in a transaction's charging history: the
// offered amperage that took effect at Timestamp.
type HistoryEntry struct {
	Timestamp time.Time
	Offered   float64
}

// Transaction is a live charging session on one connector.
type Transaction struct {
	TransactionID   int
	ChargerID       string
	ConnectorID     int
	IDTag           string
	UserName        string
	StartTime       time.Time
	MeterStart      int // Wh
	UsageMeter      float64
	EnergyMeter     int
	LastUsageTime   time.Time
	Priority        *int
	ChargingHistory []HistoryEntry
}

// Session is the immutable record of a completed Transaction.
type Session struct {
	SessionID    string
	ChargerID    string
	ChargerAlias string
	GroupID      string
	IDTag        string
	UserName     string
	StopIDTag    string
	StartTime    time.Time
	EndTime      time.Time
	Duration     time.Duration
	MeterStart   int
	MeterStop    int
	Energy       int
	Reason       string
	History      []HistoryEntry
}

// usageSample is one point in a connector's sliding usage window.
type usageSample struct {
	Amps float64
	At   time.Time
}

// Scratch holds the balanz engine's private planning state for one
// connector. It is zeroed when the connector's transaction is stopped and
// when the connector leaves the in-transaction set; StartTransaction does
// not zero it. Only the model and balanz packages read or write it.
type Scratch struct {
	Allocation           float64
	MaxDesired           float64
	Done                 bool
	EVMaxUsage           *float64
	SuspendUntil         *time.Time
	BlockingProfileReset bool
	LastOfferTime        time.Time
	RecentUsages         []usageSample
	ToReview             bool
}

// Connector is one EV outlet on a Charger, numbered from 1. Connector 0 is
// not modelled as a domain entity (it exists only as an OCPP addressing
// convention for charger-wide profiles).
type Connector struct {
	ChargerID   string
	ConnectorID int
	Status      ConnectorStatus
	Offered     float64
	Transaction *Transaction

	Scratch
}

// EffectivePriority is the priority bucket this connector balances under:
// the live transaction's override if one was set (e.g. from a Tag), else
// the owning charger's static priority.
func (c *Connector) EffectivePriority(chargerPriority int) int {
	if c.Transaction != nil && c.Transaction.Priority != nil {
		return *c.Transaction.Priority
	}
	return chargerPriority
}

// PushUsage records a (amps, now) sample and trims samples older than
// window from the sliding usage history.
func (c *Connector) PushUsage(amps float64, now time.Time, window time.Duration) {
	c.RecentUsages = append(c.RecentUsages, usageSample{Amps: amps, At: now})
	cutoff := now.Add(-window)
	i := 0
	for ; i < len(c.RecentUsages); i++ {
		if c.RecentUsages[i].At.After(cutoff) {
			break
		}
	}
	c.RecentUsages = c.RecentUsages[i:]
}

// MaxRecentUsage returns the maximum amps observed in the current sliding
// window, or 0 if empty.
func (c *Connector) MaxRecentUsage() float64 {
	var max float64
	for _, s := range c.RecentUsages {
		if s.Amps > max {
			max = s.Amps
		}
	}
	return max
}

// ResetScratch clears all engine-private fields, as happens whenever a
// connector leaves the in-transaction set.
func (c *Connector) ResetScratch() {
	c.Scratch = Scratch{}
}

// Charger is a physical charging station, owning connectors 1..N.
type Charger struct {
	ChargerID   string
	Alias       string
	GroupID     string
	Priority    int
	Description string
	ConnMax     float64
	AuthSHA     string

	Vendor          string
	Model           string
	BoxSerial       string
	PointSerial     string
	FirmwareVersion string
	MeterType       string
	FirmwareStatus  string

	Connectors map[int]*Connector

	SessionHandle      SessionHandle
	LastUpdate         time.Time
	ProfileInitialized bool
	RequestedStatus    bool
}

// SessionHandle is the collaborator link from a Charger to its live OCPP
// session. It is a relation, not ownership: the session's lifetime is
// bounded by the WebSocket connection, not by the Charger entity.
type SessionHandle interface {
	Connected() bool
}

// ConnectorIDsSorted returns this charger's connector ids in ascending
// order.
func (c *Charger) ConnectorIDsSorted() []int {
	ids := make([]int, 0, len(c.Connectors))
	for id := range c.Connectors {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// Group is an organizational or allocation grouping of chargers.
type Group struct {
	GroupID               string
	Description           string
	MaxAllocationSchedule string
	Suspended             bool
}

// IsAllocationGroup reports whether this group carries a non-empty
// schedule and is thus subject to the balanz loop.
func (g *Group) IsAllocationGroup() bool {
	return g.MaxAllocationSchedule != ""
}

// ChargeChange is one planned or applied allocation change produced by the
// balanz engine.
type ChargeChange struct {
	Timestamp     time.Time
	ChargerID     string
	ConnectorID   int
	TransactionID *int
	Allocation    float64
	ToReview      bool
	Reviewed      bool
}

// IsWait marks the sentinel entry the balanz loop inserts between the
// reduce and grow lists.
func (c *ChargeChange) IsWait() bool {
	return c.ChargerID == "" && c.ConnectorID == 0 && c.TransactionID == nil
}
