package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleAtSelectsCoveringInterval(t *testing.T) {
	schedule := "00:00-06:59>0=6:1=32;07:00-22:59>0=6:1=16;23:00-23:59>0=6:1=32"
	now := time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC)

	buckets, err := ScheduleAt(schedule, now)
	require.NoError(t, err)
	require.Len(t, buckets, 2)
	assert.Equal(t, Bucket{Priority: 1, LimitAmps: 16}, buckets[0])
	assert.Equal(t, Bucket{Priority: 0, LimitAmps: 6}, buckets[1])
}

func TestScheduleAtSortsBucketsPriorityDescending(t *testing.T) {
	buckets, err := ScheduleAt("00:00-23:59>0=6:5=32:2=16", time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, buckets, 3)
	assert.Equal(t, 5, buckets[0].Priority)
	assert.Equal(t, 2, buckets[1].Priority)
	assert.Equal(t, 0, buckets[2].Priority)
}

func TestScheduleAtNoCoveringIntervalReturnsNotFound(t *testing.T) {
	_, err := ScheduleAt("08:00-17:00>0=6", time.Date(2026, 1, 1, 20, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestScheduleAtMalformedInterval(t *testing.T) {
	_, err := ScheduleAt("not-a-schedule", time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC))
	require.Error(t, err)
}

func TestScheduleAtEmptySchedule(t *testing.T) {
	_, err := ScheduleAt("", time.Now())
	require.Error(t, err)
}

func TestBucketForPicksHighestEligibleBucket(t *testing.T) {
	buckets := []Bucket{{Priority: 5, LimitAmps: 32}, {Priority: 2, LimitAmps: 16}, {Priority: 0, LimitAmps: 6}}

	b, ok := BucketFor(buckets, 3)
	require.True(t, ok)
	assert.Equal(t, 2, b.Priority)

	b, ok = BucketFor(buckets, 5)
	require.True(t, ok)
	assert.Equal(t, 5, b.Priority)

	b, ok = BucketFor(buckets, -1)
	require.False(t, ok)
	assert.Equal(t, Bucket{}, b)
}
