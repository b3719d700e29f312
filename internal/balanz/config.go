// Package balanz implements the load-balancing engine (C4), its periodic
// control loop (C5), and the model watchdog (C6).
package balanz

import "time"

// Config holds the engine's tunable knobs, read fresh on every pass.
type Config struct {
	MinAllocation             float64
	MaxOfferIncrease          float64
	MinOfferIncreaseInterval  time.Duration
	UsageMonitoringInterval   time.Duration
	MarginLower               float64
	MarginIncrease            float64
	UsageThreshold            float64
	SuspendedAllocationTimeout time.Duration
	SuspendedDelayedTime       time.Duration
	SuspendedDelayedTimeNotFirst time.Duration
	SuspendTopOfHour           bool
	EnergyThreshold            int
	WaitAfterReduce            time.Duration

	// Loop-level knobs (C5), kept alongside the engine knobs since they are
	// read from the same configuration section. WatchdogInterval and
	// WatchdogStale are only set by DefaultConfig; the per-charger session
	// watchdog takes its values from the host section via ocpp.SessionConfig.
	FirstWait      time.Duration
	RunInterval    time.Duration
	IntervalsFull  int
	WatchdogInterval time.Duration
	WatchdogStale    time.Duration

	// C6 knobs.
	TransactionInterval time.Duration
	TransactionTimeout  time.Duration
}

// DefaultConfig mirrors the defaults documented in spec §4.4.
func DefaultConfig() Config {
	return Config{
		MinAllocation:                6,
		MaxOfferIncrease:             6,
		MinOfferIncreaseInterval:     180 * time.Second,
		UsageMonitoringInterval:      300 * time.Second,
		MarginLower:                  0.6,
		MarginIncrease:               0.6,
		UsageThreshold:               2.0,
		SuspendedAllocationTimeout:   300 * time.Second,
		SuspendedDelayedTime:         3600 * time.Second,
		SuspendedDelayedTimeNotFirst: 3600 * time.Second,
		SuspendTopOfHour:             true,
		EnergyThreshold:              500,
		WaitAfterReduce:              5 * time.Second,

		FirstWait:        10 * time.Second,
		RunInterval:      30 * time.Second,
		IntervalsFull:    10,
		WatchdogInterval: 30 * time.Second,
		WatchdogStale:    120 * time.Second,

		TransactionInterval: 60 * time.Second,
		TransactionTimeout:  600 * time.Second,
	}
}
