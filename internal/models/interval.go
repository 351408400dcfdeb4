package models

import "time"

// Gap is a contiguous hole of missing bars within regular trading hours
// for one (symbol, interval) pair. Owned and mutated exclusively by the
// DataQualityManager.
type Gap struct {
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	BarCount   int       `json:"bar_count"`
	RetryCount int       `json:"retry_count"`
	LastRetry  time.Time `json:"last_retry,omitempty"`
}

// MaxRetriesReached reports whether the gap has exhausted its configured
// retry budget and should no longer be swept.
func (g *Gap) MaxRetriesReached(maxRetries int) bool {
	return g.RetryCount >= maxRetries
}

// IntervalData holds the ordered, append-only bar series for one (symbol,
// interval) pair, plus the quality and gap bookkeeping the
// DataQualityManager maintains for it.
type IntervalData struct {
	Interval string  `json:"interval"`
	Derived  bool    `json:"derived"`
	Base     string  `json:"base,omitempty"`
	Updated  bool    `json:"updated"`
	Quality  float64 `json:"quality"`
	Gaps     []Gap   `json:"gaps"`

	Bars []Bar `json:"bars"`

	// bucketsEmitted tracks the start timestamps of derived buckets
	// already flushed, so the Processor need not rescan Bars to decide
	// whether a boundary has already been closed.
	bucketsEmitted map[int64]struct{}
}

// NewIntervalData constructs an IntervalData for either a base or derived
// interval.
func NewIntervalData(interval string, derived bool, base string) *IntervalData {
	return &IntervalData{
		Interval:       interval,
		Derived:        derived,
		Base:           base,
		Gaps:           make([]Gap, 0),
		Bars:           make([]Bar, 0),
		bucketsEmitted: make(map[int64]struct{}),
	}
}

// LastBar returns the most recent bar, if any.
func (d *IntervalData) LastBar() (Bar, bool) {
	if len(d.Bars) == 0 {
		return Bar{}, false
	}
	return d.Bars[len(d.Bars)-1], true
}

// HasEmittedBucket reports whether a derived bucket starting at ts has
// already been emitted, and BucketEmitted records one as emitted.
func (d *IntervalData) HasEmittedBucket(ts time.Time) bool {
	if d.bucketsEmitted == nil {
		return false
	}
	_, ok := d.bucketsEmitted[ts.Unix()]
	return ok
}

func (d *IntervalData) BucketEmitted(ts time.Time) {
	if d.bucketsEmitted == nil {
		d.bucketsEmitted = make(map[int64]struct{})
	}
	d.bucketsEmitted[ts.Unix()] = struct{}{}
}

// AppendBar appends a bar in strictly increasing timestamp order,
// rejecting duplicates-by-timestamp as a no-op per the idempotence
// property of append_bar.
func (d *IntervalData) AppendBar(bar Bar) error {
	if last, ok := d.LastBar(); ok {
		if !bar.Timestamp.After(last.Timestamp) {
			if bar.Timestamp.Equal(last.Timestamp) {
				return nil // idempotent no-op
			}
			return ErrOutOfOrder
		}
	}
	d.Bars = append(d.Bars, bar)
	d.Updated = true
	return nil
}

// InsertGapFill inserts a bar in chronological position, deduplicating on
// timestamp, for the gap-fill mode of add_bars_batch.
func (d *IntervalData) InsertGapFill(bar Bar) {
	for _, existing := range d.Bars {
		if existing.Timestamp.Equal(bar.Timestamp) {
			return // idempotent: already present
		}
	}
	idx := len(d.Bars)
	for i, existing := range d.Bars {
		if bar.Timestamp.Before(existing.Timestamp) {
			idx = i
			break
		}
	}
	d.Bars = append(d.Bars, Bar{})
	copy(d.Bars[idx+1:], d.Bars[idx:])
	d.Bars[idx] = bar
	d.Updated = true
}
