package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestIntervalDataAppendBar(t *testing.T) {
	d := NewIntervalData("1m", false, "")
	t0 := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	require.NoError(t, d.AppendBar(Bar{Symbol: "AAPL", Timestamp: t0}), "first append")
	require.NoError(t, d.AppendBar(Bar{Symbol: "AAPL", Timestamp: t0}), "duplicate append should be idempotent no-op")
	require.Len(t, d.Bars, 1, "duplicate append should not grow series")

	earlier := t0.Add(-time.Minute)
	require.Error(t, d.AppendBar(Bar{Symbol: "AAPL", Timestamp: earlier}), "expected ErrOutOfOrder for a bar preceding the last one")

	later := t0.Add(time.Minute)
	require.NoError(t, d.AppendBar(Bar{Symbol: "AAPL", Timestamp: later}), "append in order")
	require.Len(t, d.Bars, 2)
}

func TestIntervalDataInsertGapFill(t *testing.T) {
	d := NewIntervalData("1m", false, "")
	t0 := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	d.InsertGapFill(Bar{Symbol: "AAPL", Timestamp: t0.Add(2 * time.Minute)})
	d.InsertGapFill(Bar{Symbol: "AAPL", Timestamp: t0})
	d.InsertGapFill(Bar{Symbol: "AAPL", Timestamp: t0.Add(time.Minute)})
	// duplicate insert is a no-op
	d.InsertGapFill(Bar{Symbol: "AAPL", Timestamp: t0})

	require.Len(t, d.Bars, 3, "expected 3 bars after gap fill")
	for i := 0; i < len(d.Bars)-1; i++ {
		require.True(t, d.Bars[i].Timestamp.Before(d.Bars[i+1].Timestamp), "bars not in chronological order at index %d", i)
	}
}

func TestIntervalDataBucketEmitted(t *testing.T) {
	d := NewIntervalData("5m", true, "1m")
	ts := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	require.False(t, d.HasEmittedBucket(ts), "bucket should not be emitted yet")
	d.BucketEmitted(ts)
	require.True(t, d.HasEmittedBucket(ts), "bucket should now be marked emitted")
}
