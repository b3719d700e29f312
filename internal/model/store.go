package model

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

// AuthorizeStatus is the outcome of an Authorize request.
type AuthorizeStatus string

const (
	AuthAccepted      AuthorizeStatus = "Accepted"
	AuthBlocked       AuthorizeStatus = "Blocked"
	AuthInvalid       AuthorizeStatus = "Invalid"
	AuthConcurrentTag AuthorizeStatus = "ConcurrentTx"
)

// AuthorizeResult is returned by Store.Authorize.
type AuthorizeResult struct {
	Status      AuthorizeStatus
	ParentIDTag string
}

// Store is the process-wide, single-writer entity registry (C1). All
// mutating methods assume they are called from the single control-flow
// goroutine described by the concurrency model; reads are safe from any
// goroutine because the embedded mutex guards the whole table set.
type Store struct {
	mu       sync.Mutex
	groups   map[string]*Group
	chargers map[string]*Charger
	tags     map[string]*Tag

	// AllowConcurrentTag disables the same-tag-different-charger rejection
	// in Authorize when true.
	AllowConcurrentTag bool

	// UsageMonitoringInterval is the sliding window width for per-connector
	// usage samples, mirroring balanz.Config.UsageMonitoringInterval.
	UsageMonitoringInterval time.Duration

	// OnSession, if set, is invoked synchronously whenever a Transaction is
	// closed into a Session (e.g. to append a CSV row).
	OnSession func(*Session)

	now func() time.Time
}

// NewStore constructs an empty entity store.
func NewStore() *Store {
	return &Store{
		groups:   make(map[string]*Group),
		chargers: make(map[string]*Charger),
		tags:     make(map[string]*Tag),
		now:      time.Now,

		UsageMonitoringInterval: 5 * time.Minute,
	}
}

// --- CRUD: groups, chargers, tags ---

func (s *Store) PutGroup(g *Group) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.GroupID] = g
}

func (s *Store) Group(groupID string) (*Group, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	return g, ok
}

// AllocationGroups returns every group carrying a non-empty schedule.
func (s *Store) AllocationGroups() []*Group {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Group
	for _, g := range s.groups {
		if g.IsAllocationGroup() {
			out = append(out, g)
		}
	}
	return out
}

func (s *Store) PutCharger(c *Charger) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.chargers[c.ChargerID] = c
}

func (s *Store) Charger(chargerID string) (*Charger, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chargers[chargerID]
	return c, ok
}

// ChargersInGroup returns the chargers currently owned by groupID.
func (s *Store) ChargersInGroup(groupID string) []*Charger {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Charger
	for _, c := range s.chargers {
		if c.GroupID == groupID {
			out = append(out, c)
		}
	}
	return out
}

func (s *Store) PutTag(t *Tag) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t.IDTag = strings.ToUpper(t.IDTag)
	s.tags[t.IDTag] = t
}

func (s *Store) Tag(idTag string) (*Tag, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tags[strings.ToUpper(idTag)]
	return t, ok
}

// Tags returns every known tag.
func (s *Store) Tags() []*Tag {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Tag, 0, len(s.tags))
	for _, t := range s.tags {
		out = append(out, t)
	}
	return out
}

// DeleteTag removes idTag from the table.
func (s *Store) DeleteTag(idTag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tags, strings.ToUpper(idTag))
}

// --- C1 behavioural operations (§4.1) ---

// Authorize validates an id_tag presentation from chargerID.
func (s *Store) Authorize(chargerID, idTag string) (AuthorizeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	idTag = strings.ToUpper(idTag)
	tag, ok := s.tags[idTag]
	if !ok {
		return AuthorizeResult{Status: AuthInvalid}, nil
	}
	if tag.Status == TagBlocked {
		return AuthorizeResult{Status: AuthBlocked}, nil
	}
	if !s.AllowConcurrentTag {
		for _, c := range s.chargers {
			if c.ChargerID == chargerID {
				continue
			}
			for _, conn := range c.Connectors {
				if conn.Transaction != nil && strings.ToUpper(conn.Transaction.IDTag) == idTag {
					return AuthorizeResult{Status: AuthConcurrentTag}, nil
				}
			}
		}
	}
	return AuthorizeResult{Status: AuthAccepted, ParentIDTag: tag.ParentIDTag}, nil
}

// StartTransaction creates (or idempotently replays) a Transaction on a
// connector. The assigned transaction id equals connectorID (decided open
// question, see DESIGN.md).
func (s *Store) StartTransaction(chargerID string, connectorID int, idTag string, meterStart int, timestamp time.Time) (*Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	charger, ok := s.chargers[chargerID]
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such charger %q", chargerID)
	}
	conn, ok := charger.Connectors[connectorID]
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such connector %d on %q", connectorID, chargerID)
	}

	if conn.Transaction != nil {
		if conn.Transaction.StartTime.Equal(timestamp) {
			return conn.Transaction, nil // idempotent replay
		}
		s.stopTransactionLocked(charger, conn, conn.Transaction.EnergyMeter, timestamp, "Start transaction without stop transaction", "")
	}

	userName := "Unknown"
	var priority *int
	if tag, ok := s.tags[strings.ToUpper(idTag)]; ok {
		userName = tag.UserName
		priority = tag.Priority
	}

	tx := &Transaction{
		TransactionID: connectorID,
		ChargerID:     chargerID,
		ConnectorID:   connectorID,
		IDTag:         idTag,
		UserName:      userName,
		StartTime:     timestamp,
		MeterStart:    meterStart,
		LastUsageTime: timestamp,
		Priority:      priority,
	}
	conn.Transaction = tx
	conn.ToReview = true
	return tx, nil
}

// StopTransaction closes the live transaction identified by transactionID
// on chargerID into a Session.
func (s *Store) StopTransaction(chargerID string, transactionID int, meterStop int, timestamp time.Time, reason, stopIDTag string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	charger, ok := s.chargers[chargerID]
	if !ok {
		return nil, modelerr.New(modelerr.NotFound, "no such charger %q", chargerID)
	}
	for _, conn := range charger.Connectors {
		if conn.Transaction != nil && conn.Transaction.TransactionID == transactionID {
			return s.stopTransactionLocked(charger, conn, meterStop, timestamp, reason, stopIDTag), nil
		}
	}
	return nil, modelerr.New(modelerr.NotFound, "no live transaction %d on %q", transactionID, chargerID)
}

func (s *Store) stopTransactionLocked(charger *Charger, conn *Connector, meterStop int, timestamp time.Time, reason, stopIDTag string) *Session {
	tx := conn.Transaction
	tx.ChargingHistory = append(tx.ChargingHistory, HistoryEntry{Timestamp: timestamp, Offered: 0})

	session := &Session{
		SessionID:    fmt.Sprintf("%s-%s", charger.ChargerID, tx.StartTime.Format("2006-01-02-15:04:05")),
		ChargerID:    charger.ChargerID,
		ChargerAlias: charger.Alias,
		GroupID:      charger.GroupID,
		IDTag:        tx.IDTag,
		UserName:     tx.UserName,
		StopIDTag:    stopIDTag,
		StartTime:    tx.StartTime,
		EndTime:      timestamp,
		Duration:     timestamp.Sub(tx.StartTime),
		MeterStart:   tx.MeterStart,
		MeterStop:    meterStop,
		Energy:       meterStop - tx.MeterStart,
		Reason:       reason,
		History:      tx.ChargingHistory,
	}

	conn.Transaction = nil
	conn.Offered = 0
	conn.ResetScratch()

	if s.OnSession != nil {
		s.OnSession(session)
	}
	return session
}

// MeterValues updates live measurement fields for a connector, optionally
// synthesizing a transaction if transactionID is present but unknown.
func (s *Store) MeterValues(chargerID string, connectorID int, timestamp time.Time, usageMeter float64, energyMeter *int, offered *float64, transactionID *int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	charger, ok := s.chargers[chargerID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such charger %q", chargerID)
	}
	conn, ok := charger.Connectors[connectorID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such connector %d on %q", connectorID, chargerID)
	}

	if transactionID != nil && conn.Transaction == nil {
		conn.Transaction = &Transaction{
			TransactionID: *transactionID,
			ChargerID:     chargerID,
			ConnectorID:   connectorID,
			StartTime:     timestamp,
			LastUsageTime: timestamp,
		}
		if usageMeter > 0 || (offered != nil && *offered > 0) {
			conn.Status = StatusCharging
		} else {
			conn.Status = StatusSuspendedEV
		}
	}

	if conn.Transaction != nil {
		conn.Transaction.UsageMeter = usageMeter
		conn.Transaction.LastUsageTime = timestamp
		if energyMeter != nil {
			conn.Transaction.EnergyMeter = *energyMeter
		}
	}
	conn.PushUsage(usageMeter, timestamp, s.UsageMonitoringInterval)

	if offered != nil && *offered != conn.Offered {
		conn.Offered = *offered
	}
	return nil
}

// StatusNotification applies a connector status transition (§4.1).
func (s *Store) StatusNotification(chargerID string, connectorID int, status ConnectorStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	charger, ok := s.chargers[chargerID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such charger %q", chargerID)
	}
	conn, ok := charger.Connectors[connectorID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such connector %d on %q", connectorID, chargerID)
	}

	wasInTransaction := conn.Status.InTransaction()
	conn.Status = status

	if status == StatusSuspendedEV {
		conn.PushUsage(0, s.now(), s.UsageMonitoringInterval)
	}
	if wasInTransaction && !status.InTransaction() {
		conn.Offered = 0
		conn.ResetScratch()
	}
	if status == StatusSuspendedEVSE && conn.Transaction == nil {
		conn.ToReview = true
	}
	return nil
}

// ChargeChangeImplemented commits a planned allocation change: updates
// offered, appends to charging history, resets the usage window.
func (s *Store) ChargeChangeImplemented(change ChargeChange, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	charger, ok := s.chargers[change.ChargerID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such charger %q", change.ChargerID)
	}
	conn, ok := charger.Connectors[change.ConnectorID]
	if !ok {
		return modelerr.New(modelerr.NotFound, "no such connector %d on %q", change.ConnectorID, change.ChargerID)
	}

	conn.Offered = change.Allocation
	conn.RecentUsages = nil
	conn.LastOfferTime = now
	if conn.Transaction != nil {
		conn.Transaction.ChargingHistory = append(conn.Transaction.ChargingHistory, HistoryEntry{Timestamp: now, Offered: change.Allocation})
	}
	return nil
}
