package model

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/evbalanz/balanzd/internal/modelerr"
)

// Bucket is a (priority threshold, amp cap) pair taken from a schedule
// interval, in force at a given time. Buckets are returned sorted by
// Priority descending; Buckets[0] is the group's absolute ceiling.
type Bucket struct {
	Priority  int
	LimitAmps float64
}

// ScheduleAt parses a max_allocation_schedule string and returns the
// priority buckets in force at `now`.
//
// Grammar: a semicolon-separated list of intervals, each
// "HH:MM-HH:MM>P1=A1:P2=A2:...". The interval containing `now`'s
// time-of-day is selected; its (priority, amps) pairs are parsed and
// sorted by priority descending.
func ScheduleAt(schedule string, now time.Time) ([]Bucket, error) {
	if strings.TrimSpace(schedule) == "" {
		return nil, modelerr.New(modelerr.IllegalArgument, "empty schedule")
	}
	nowMinutes := now.Hour()*60 + now.Minute()

	for _, interval := range strings.Split(schedule, ";") {
		interval = strings.TrimSpace(interval)
		if interval == "" {
			continue
		}
		rangePart, bucketPart, ok := strings.Cut(interval, ">")
		if !ok {
			return nil, modelerr.New(modelerr.IllegalArgument, "malformed schedule interval %q", interval)
		}
		startStr, endStr, ok := strings.Cut(rangePart, "-")
		if !ok {
			return nil, modelerr.New(modelerr.IllegalArgument, "malformed time range %q", rangePart)
		}
		start, err := parseHHMM(startStr)
		if err != nil {
			return nil, err
		}
		end, err := parseHHMM(endStr)
		if err != nil {
			return nil, err
		}
		if nowMinutes < start || nowMinutes > end {
			continue
		}
		return parseBuckets(bucketPart)
	}
	return nil, modelerr.New(modelerr.NotFound, "no schedule interval covers current time")
}

func parseHHMM(s string) (int, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, modelerr.New(modelerr.IllegalArgument, "malformed time %q", s)
	}
	hh, err := strconv.Atoi(h)
	if err != nil {
		return 0, modelerr.Wrap(modelerr.IllegalArgument, err, "malformed hour %q", h)
	}
	mm, err := strconv.Atoi(m)
	if err != nil {
		return 0, modelerr.Wrap(modelerr.IllegalArgument, err, "malformed minute %q", m)
	}
	return hh*60 + mm, nil
}

func parseBuckets(s string) ([]Bucket, error) {
	parts := strings.Split(s, ":")
	buckets := make([]Bucket, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		prioStr, ampStr, ok := strings.Cut(p, "=")
		if !ok {
			return nil, modelerr.New(modelerr.IllegalArgument, "malformed bucket %q", p)
		}
		prio, err := strconv.Atoi(strings.TrimSpace(prioStr))
		if err != nil {
			return nil, modelerr.Wrap(modelerr.IllegalArgument, err, "malformed priority %q", prioStr)
		}
		amps, err := strconv.ParseFloat(strings.TrimSpace(ampStr), 64)
		if err != nil {
			return nil, modelerr.Wrap(modelerr.IllegalArgument, err, "malformed amps %q", ampStr)
		}
		buckets = append(buckets, Bucket{Priority: prio, LimitAmps: amps})
	}
	if len(buckets) == 0 {
		return nil, modelerr.New(modelerr.IllegalArgument, "no buckets parsed from %q", s)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Priority > buckets[j].Priority })
	return buckets, nil
}

// BucketFor returns the bucket a connector of the given priority contributes
// to: the first bucket (descending) whose Priority <= connectorPriority.
func BucketFor(buckets []Bucket, connectorPriority int) (Bucket, bool) {
	for _, b := range buckets {
		if b.Priority <= connectorPriority {
			return b, true
		}
	}
	return Bucket{}, false
}
