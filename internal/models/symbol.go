package models

import (
	"time"

	"github.com/sdcoffey/big"
)

// SymbolSource names who caused a symbol to be added to the session.
type SymbolSource string

const (
	SourceConfig   SymbolSource = "config"
	SourceScanner  SymbolSource = "scanner"
	SourceStrategy SymbolSource = "strategy"
	SourceAdhoc    SymbolSource = "adhoc"
)

// SymbolSessionData is the per-symbol, per-session aggregate: its bar
// series (base and derived intervals), indicator state, session metrics,
// and dynamic-symbol-management provenance.
type SymbolSessionData struct {
	Symbol       string
	BaseInterval string

	// Bars is keyed by interval string ("1m", "5m", ...) and contains
	// both the base interval and every derived interval.
	Bars map[string]*IntervalData

	// Indicators is keyed by "name_period_interval" (e.g. "sma_20_5m").
	Indicators map[string]*IndicatorState

	// Aggregate session metrics.
	SessionVolume int64
	SessionHigh   big.Decimal
	SessionLow    big.Decimal
	LastUpdate    time.Time

	// Provenance (§4.5).
	MeetsSessionConfigRequirements bool
	AddedBy                        SymbolSource
	AutoProvisioned                bool
	UpgradedFromAdhoc              bool
	AddedAt                        time.Time
}

// NewSymbolSessionData constructs a fresh per-symbol aggregate for a new
// trading day; SessionData is rebuilt from scratch each day (§3
// Lifecycle: "no persistence between days").
func NewSymbolSessionData(symbol, baseInterval string, source SymbolSource, addedAt time.Time) *SymbolSessionData {
	return &SymbolSessionData{
		Symbol:       symbol,
		BaseInterval: baseInterval,
		Bars:         make(map[string]*IntervalData),
		Indicators:   make(map[string]*IndicatorState),
		AddedBy:      source,
		AddedAt:      addedAt,
	}
}

// EnsureInterval returns the IntervalData for interval, creating it with
// the given derived flag and base interval if absent.
func (s *SymbolSessionData) EnsureInterval(interval string, derived bool, base string) *IntervalData {
	if d, ok := s.Bars[interval]; ok {
		return d
	}
	d := NewIntervalData(interval, derived, base)
	s.Bars[interval] = d
	return d
}

// UpdateSessionMetrics folds a newly appended base-interval bar into the
// session-wide aggregate volume/high/low/last-update fields.
func (s *SymbolSessionData) UpdateSessionMetrics(bar Bar) {
	s.SessionVolume += bar.Volume
	if s.SessionHigh.Float() == 0 || bar.High.Float() > s.SessionHigh.Float() {
		s.SessionHigh = bar.High
	}
	if s.SessionLow.Float() == 0 || bar.Low.Float() < s.SessionLow.Float() {
		s.SessionLow = bar.Low
	}
	if bar.Timestamp.After(s.LastUpdate) {
		s.LastUpdate = bar.Timestamp
	}
}
