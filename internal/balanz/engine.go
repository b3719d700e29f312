package balanz

import (
	"math"
	"time"

	"github.com/evbalanz/balanzd/internal/model"
)

// ConnectorView is everything the engine needs about one candidate
// connector, gathered by the caller from the entity store since the
// connector itself does not know its owning charger's priority or amp
// ceiling.
type ConnectorView struct {
	Conn            *model.Connector
	ChargerPriority int
	ConnMax         float64
}

// Result is the pair of ordered change lists the engine produces for one
// pass over a group.
type Result struct {
	Reduce []model.ChargeChange
	Grow   []model.ChargeChange
}

// Run is the pure function C4: it reads the connectors in views, mutates
// their Scratch planning fields, and returns the reduce/grow change lists.
// It performs no I/O and never sleeps.
func Run(views []ConnectorView, buckets []model.Bucket, now time.Time, cfg Config) Result {
	candidates := make([]*ConnectorView, 0, len(views))
	for i := range views {
		v := &views[i]
		if !v.Conn.Status.InTransaction() {
			continue
		}
		v.Conn.Allocation = 0
		v.Conn.Done = false
		candidates = append(candidates, v)
	}

	voluntaryRelease(candidates, now, cfg)
	computeMaxDesired(candidates, now, cfg)

	if len(buckets) > 0 {
		preAssignStarters(candidates, buckets[0].LimitAmps, cfg)
		priorityBucketAssignment(candidates, buckets, cfg)
	}

	return buildChangeLists(candidates)
}

func voluntaryRelease(candidates []*ConnectorView, now time.Time, cfg Config) {
	for _, v := range candidates {
		c := v.Conn
		switch {
		case c.Status == model.StatusSuspendedEV && c.MaxRecentUsage() < cfg.UsageThreshold:
			if now.Sub(c.LastOfferTime) > cfg.SuspendedAllocationTimeout {
				c.Allocation = 0
				c.Done = true
				c.SuspendUntil = ptrTime(suspendUntilFor(c, now, cfg))
			}
			// else: keep offer untouched, let the EV come back.

		case c.Status == model.StatusSuspendedEVSE && c.SuspendUntil != nil && now.Before(*c.SuspendUntil):
			c.Allocation = 0
			c.Done = true

		case c.Status == model.StatusCharging && reduceToObserved(c, now, cfg):
			allocation := math.Max(cfg.MinAllocation, math.Ceil(c.MaxRecentUsage()))
			c.Allocation = allocation
			c.Done = true
			if c.EVMaxUsage == nil || allocation < *c.EVMaxUsage {
				c.EVMaxUsage = ptrFloat(allocation)
			}
		}
	}
}

func reduceToObserved(c *model.Connector, now time.Time, cfg Config) bool {
	if c.Transaction == nil {
		return false
	}
	if now.Sub(c.LastOfferTime) <= cfg.UsageMonitoringInterval {
		return false
	}
	maxRecent := c.MaxRecentUsage()
	if maxRecent < cfg.MinAllocation {
		return false
	}
	if maxRecent > c.Offered-cfg.MarginLower {
		return false
	}
	if c.Offered < cfg.MinAllocation {
		return false
	}
	if c.EVMaxUsage != nil && math.Ceil(maxRecent) > *c.EVMaxUsage {
		return false
	}
	return true
}

func suspendUntilFor(c *model.Connector, now time.Time, cfg Config) time.Time {
	if c.Transaction != nil && c.Transaction.EnergyMeter >= cfg.EnergyThreshold {
		return now.Add(cfg.SuspendedDelayedTimeNotFirst)
	}
	if cfg.SuspendTopOfHour {
		return nextTopOfHour(now).Add(-cfg.SuspendedAllocationTimeout / 2)
	}
	return now.Add(cfg.SuspendedDelayedTime)
}

func nextTopOfHour(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), 0, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

func computeMaxDesired(candidates []*ConnectorView, now time.Time, cfg Config) {
	for _, v := range candidates {
		c := v.Conn
		if c.Done {
			continue
		}
		switch {
		case c.Status == model.StatusSuspendedEV:
			c.MaxDesired = cfg.MinAllocation
		case c.Offered == 0 || c.Transaction == nil:
			c.MaxDesired = cfg.MinAllocation
		default:
			desired := c.Offered
			if now.Sub(c.LastOfferTime) >= cfg.MinOfferIncreaseInterval && c.Offered-c.MaxRecentUsage() < cfg.MarginIncrease {
				desired = c.Offered + cfg.MaxOfferIncrease
			}
			if c.EVMaxUsage != nil && desired > *c.EVMaxUsage {
				desired = *c.EVMaxUsage
			}
			if desired > v.ConnMax {
				desired = v.ConnMax
			}
			c.MaxDesired = desired
		}
	}
}

func preAssignStarters(candidates []*ConnectorView, groupCeiling float64, cfg Config) {
	var usedByDone float64
	for _, v := range candidates {
		if v.Conn.Done {
			usedByDone += v.Conn.Allocation
		}
	}
	remaining := groupCeiling - usedByDone

	for _, v := range candidates {
		c := v.Conn
		if c.Done {
			continue
		}
		if c.Transaction != nil {
			continue
		}
		if c.Status != model.StatusSuspendedEVSE {
			continue
		}
		if remaining >= cfg.MinAllocation {
			c.Allocation = cfg.MinAllocation
			c.Done = true
			remaining -= cfg.MinAllocation
		}
	}
}

func priorityBucketAssignment(candidates []*ConnectorView, buckets []model.Bucket, cfg Config) {
	priorities := distinctPrioritiesDescending(candidates)
	groupCeiling := buckets[0].LimitAmps

	for _, p := range priorities {
		bucket, ok := model.BucketFor(buckets, p)
		if !ok {
			continue
		}
		used, total := usedTotals(candidates, buckets)
		budget := math.Min(bucket.LimitAmps-used[bucket.Priority], groupCeiling-total)
		remaining := budget

		atPriority := func() []*ConnectorView {
			var out []*ConnectorView
			for _, v := range candidates {
				if v.ChargerPriority == p && !v.Conn.Done {
					out = append(out, v)
				}
			}
			return out
		}

		// Phase A: confirm minimums for already-running connectors.
		for _, v := range atPriority() {
			c := v.Conn
			if c.Offered <= 0 || c.MaxDesired < cfg.MinAllocation {
				continue
			}
			if remaining >= cfg.MinAllocation {
				c.Allocation = cfg.MinAllocation
				remaining -= cfg.MinAllocation
			} else {
				c.Allocation = 0
				c.Done = true
			}
		}

		// Phase B: starters at this priority.
		for _, v := range atPriority() {
			c := v.Conn
			if c.Offered != 0 {
				continue
			}
			if remaining >= cfg.MinAllocation {
				c.Allocation = cfg.MinAllocation
				remaining -= cfg.MinAllocation
			} else {
				c.Allocation = 0
				c.Done = true
			}
		}

		// Phase C: round-robin growth.
		for {
			progressed := false
			for _, v := range atPriority() {
				c := v.Conn
				if c.Allocation >= c.MaxDesired {
					c.Done = true
					continue
				}
				if remaining > 0 {
					c.Allocation++
					remaining--
					progressed = true
				} else {
					c.Done = true
				}
			}
			if !progressed {
				break
			}
		}
		for _, v := range atPriority() {
			v.Conn.Done = true
		}
	}
}

func distinctPrioritiesDescending(candidates []*ConnectorView) []int {
	seen := map[int]bool{}
	var out []int
	for _, v := range candidates {
		if v.Conn.Done {
			continue
		}
		if !seen[v.ChargerPriority] {
			seen[v.ChargerPriority] = true
			out = append(out, v.ChargerPriority)
		}
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] < out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

func usedTotals(candidates []*ConnectorView, buckets []model.Bucket) (map[int]float64, float64) {
	used := make(map[int]float64, len(buckets))
	var total float64
	for _, b := range buckets {
		used[b.Priority] = 0
	}
	for _, v := range candidates {
		if !v.Conn.Done {
			continue
		}
		total += v.Conn.Allocation
		b, ok := model.BucketFor(buckets, v.ChargerPriority)
		if !ok {
			continue
		}
		used[b.Priority] += v.Conn.Allocation
	}
	return used, total
}

func buildChangeLists(candidates []*ConnectorView) Result {
	var res Result
	for _, v := range candidates {
		c := v.Conn
		if c.Allocation == c.Offered {
			continue
		}
		var txID *int
		if c.Transaction != nil {
			txID = ptrInt(c.Transaction.TransactionID)
		}
		change := model.ChargeChange{
			ChargerID:     c.ChargerID,
			ConnectorID:   c.ConnectorID,
			TransactionID: txID,
			Allocation:    c.Allocation,
			ToReview:      c.ToReview,
		}
		if c.Allocation > c.Offered {
			res.Grow = append(res.Grow, change)
		} else {
			res.Reduce = append(res.Reduce, change)
		}
	}
	return res
}

func ptrFloat(f float64) *float64 { return &f }
func ptrInt(i int) *int           { return &i }
func ptrTime(t time.Time) *time.Time { return &t }
