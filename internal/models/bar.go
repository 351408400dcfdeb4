package models

import (
	"time"

	"github.com/sdcoffey/big"
)

// Bar is a completed OHLCV sample over a half-open interval [Timestamp,
// Timestamp+Interval). Timestamp is the bar's nominal start in the
// exchange's market timezone.
type Bar struct {
	Symbol    string        `json:"symbol"`
	Interval  string        `json:"interval"`
	Timestamp time.Time     `json:"timestamp"`
	Open      big.Decimal   `json:"open"`
	High      big.Decimal   `json:"high"`
	Low       big.Decimal   `json:"low"`
	Close     big.Decimal   `json:"close"`
	Volume    int64         `json:"volume"`
}

// Validate checks the OHLCV invariants from the data model: low <=
// {open, close} <= high, and volume >= 0.
func (b *Bar) Validate() error {
	if b.Symbol == "" {
		return ErrInvalidSymbol
	}
	if b.Timestamp.IsZero() {
		return ErrInvalidTimestamp
	}
	low, high := b.Low.Float(), b.High.Float()
	open, close := b.Open.Float(), b.Close.Float()
	if low > open || open > high || low > close || close > high {
		return ErrInvalidOHLC
	}
	if b.Volume < 0 {
		return ErrInvalidVolume
	}
	return nil
}

// IntervalInfo is the parsed form of an interval string like "1m", "5m",
// "1d". Type distinguishes calendar units from second-denominated ones.
type IntervalInfo struct {
	Raw     string
	Type    IntervalType
	Value   int
	Seconds int64
}

// IntervalType names the unit an interval string is expressed in.
type IntervalType string

const (
	IntervalMinute IntervalType = "minute"
	IntervalHour   IntervalType = "hour"
	IntervalDay    IntervalType = "day"
)

// ParseInterval parses a canonical interval string ("1m", "5m", "15m",
// "1h", "1d") into an IntervalInfo. This is exposed directly from
// internal/models rather than buried behind an import-cycle workaround.
func ParseInterval(s string) (IntervalInfo, error) {
	if len(s) < 2 {
		return IntervalInfo{}, ErrInvalidInterval
	}
	unit := s[len(s)-1]
	numPart := s[:len(s)-1]

	value := 0
	for _, r := range numPart {
		if r < '0' || r > '9' {
			return IntervalInfo{}, ErrInvalidInterval
		}
		value = value*10 + int(r-'0')
	}
	if value <= 0 {
		return IntervalInfo{}, ErrInvalidInterval
	}

	switch unit {
	case 'm':
		return IntervalInfo{Raw: s, Type: IntervalMinute, Value: value, Seconds: int64(value) * 60}, nil
	case 'h':
		return IntervalInfo{Raw: s, Type: IntervalHour, Value: value, Seconds: int64(value) * 3600}, nil
	case 'd':
		return IntervalInfo{Raw: s, Type: IntervalDay, Value: value, Seconds: int64(value) * 86400}, nil
	default:
		return IntervalInfo{}, ErrInvalidInterval
	}
}

// Duration returns the interval's length as a time.Duration. Daily
// intervals are returned as 24h for bucketing purposes only; the
// end-of-bar clock convention does not apply to them (see §9 Open
// Questions).
func (i IntervalInfo) Duration() time.Duration {
	return time.Duration(i.Seconds) * time.Second
}

// MustParseInterval is ParseInterval for callers that already validated
// the string (e.g. config validation ran first).
func MustParseInterval(s string) IntervalInfo {
	info, err := ParseInterval(s)
	if err != nil {
		panic(err)
	}
	return info
}
