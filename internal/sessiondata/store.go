// Package sessiondata implements SessionData (spec.md §4.6): the shared,
// passive aggregate every worker reads by reference. Grounded on the
// teacher's internal/scanner/state.go StateManager (one map of per-symbol
// state behind a single mutex, get-or-create access pattern), generalized
// from the teacher's scanner-only fields to the full bar/indicator/quality
// surface this spec requires.
package sessiondata

import (
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// BatchMode selects add_bars_batch's insertion discipline.
type BatchMode string

const (
	ModeAppend  BatchMode = "append"
	ModeGapFill BatchMode = "gap_fill"
)

// Store is SessionData: a single coarse-grained lock over every symbol's
// aggregate. Implementations that shard per symbol must still present this
// single-lock external contract (spec.md §4.6 concurrency discipline).
type Store struct {
	mu      sync.RWMutex
	symbols map[string]*models.SymbolSessionData
}

// New constructs an empty Store, ready for a fresh trading day.
func New() *Store {
	return &Store{symbols: make(map[string]*models.SymbolSessionData)}
}

// RegisterSymbolData registers a new symbol for the session. A second
// registration for an already-present symbol is a no-op — provisioning is
// expected to check GetSymbolData first when upgrade semantics matter.
func (s *Store) RegisterSymbolData(symbol, baseInterval string, source models.SymbolSource, addedAt time.Time) *models.SymbolSessionData {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.symbols[symbol]; ok {
		return existing
	}
	data := models.NewSymbolSessionData(symbol, baseInterval, source, addedAt)
	s.symbols[symbol] = data
	return data
}

// GetSymbolData returns the symbol's aggregate by reference ("zero-copy");
// callers must not mutate fields the owning component does not own.
func (s *Store) GetSymbolData(symbol string) (*models.SymbolSessionData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.symbols[symbol]
	return data, ok
}

// RemoveSymbol drops a symbol from the session entirely.
func (s *Store) RemoveSymbol(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.symbols, symbol)
}

// Symbols returns the current universe, for callers that need to iterate
// (e.g. the Coordinator's merge-yield loop refilling pending slots).
func (s *Store) Symbols() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.symbols))
	for sym := range s.symbols {
		out = append(out, sym)
	}
	return out
}

// AppendBar appends a single bar to (symbol, interval), creating the
// interval series if absent. Duplicates-by-timestamp are rejected as a
// no-op per IntervalData.AppendBar's idempotence.
func (s *Store) AppendBar(symbol, interval string, derived bool, base string, bar models.Bar) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.symbols[symbol]
	if !ok {
		return models.NewError(models.KindValidation, "append_bar", models.ErrSymbolNotFound)
	}
	series := data.EnsureInterval(interval, derived, base)
	if err := series.AppendBar(bar); err != nil {
		return models.NewError(models.KindValidation, "append_bar", err)
	}
	if !derived {
		data.UpdateSessionMetrics(bar)
	}
	return nil
}

// AddBarsBatch inserts bars per mode: append (in order, no-op on a
// duplicate timestamp, validation error on an out-of-order bar) or
// gap_fill (chronological insertion position, deduplicated on timestamp).
func (s *Store) AddBarsBatch(symbol, interval string, derived bool, base string, bars []models.Bar, mode BatchMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.symbols[symbol]
	if !ok {
		return models.NewError(models.KindValidation, "add_bars_batch", models.ErrSymbolNotFound)
	}
	series := data.EnsureInterval(interval, derived, base)

	switch mode {
	case ModeGapFill:
		for _, b := range bars {
			series.InsertGapFill(b)
		}
	default: // ModeAppend
		for _, b := range bars {
			if err := series.AppendBar(b); err != nil {
				return models.NewError(models.KindValidation, "add_bars_batch", err)
			}
		}
	}
	return nil
}

// SetQuality is the QualityManager's sole write path for an interval's
// quality score.
func (s *Store) SetQuality(symbol, interval string, quality float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.symbols[symbol]
	if !ok {
		return models.NewError(models.KindValidation, "set_quality", models.ErrSymbolNotFound)
	}
	series, ok := data.Bars[interval]
	if !ok {
		return models.NewError(models.KindValidation, "set_quality", models.ErrIntervalNotFound)
	}
	series.Quality = quality
	return nil
}

// SetGaps is the QualityManager's sole write path for an interval's gap list.
func (s *Store) SetGaps(symbol, interval string, gaps []models.Gap) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.symbols[symbol]
	if !ok {
		return models.NewError(models.KindValidation, "set_gaps", models.ErrSymbolNotFound)
	}
	series, ok := data.Bars[interval]
	if !ok {
		return models.NewError(models.KindValidation, "set_gaps", models.ErrIntervalNotFound)
	}
	series.Gaps = gaps
	return nil
}

// SetIndicatorValue is the Processor's sole write path for indicator state.
func (s *Store) SetIndicatorValue(symbol, key string, value *models.IndicatorState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok := s.symbols[symbol]
	if !ok {
		return models.NewError(models.KindValidation, "set_indicator_value", models.ErrSymbolNotFound)
	}
	data.Indicators[key] = value
	return nil
}

// Clear resets the store to empty, for the Coordinator's phase-1 teardown
// between trading days (spec.md §3 Lifecycle: "no persistence between days").
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols = make(map[string]*models.SymbolSessionData)
}
