package barrepo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// MemoryRepository is an in-memory Repository for tests and backtests
// against fixture data, grounded on the teacher's internal/storage/mocks.go
// pattern of a mutex-guarded map standing in for the database.
type MemoryRepository struct {
	mu   sync.RWMutex
	bars map[string][]models.Bar // key: symbol + "|" + interval
}

// NewMemoryRepository constructs an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{bars: make(map[string][]models.Bar)}
}

func memKey(symbol, interval string) string {
	return symbol + "|" + interval
}

// Seed preloads bars for tests; it does not validate or dedupe.
func (m *MemoryRepository) Seed(symbol, interval string, bars []models.Bar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := memKey(symbol, interval)
	sorted := append([]models.Bar(nil), bars...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Timestamp.Before(sorted[j].Timestamp) })
	m.bars[key] = sorted
}

// GetBars implements Repository.
func (m *MemoryRepository) GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []models.Bar
	for _, b := range m.bars[memKey(symbol, interval)] {
		if !b.Timestamp.Before(start) && b.Timestamp.Before(end) {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetLatestBar implements Repository.
func (m *MemoryRepository) GetLatestBar(ctx context.Context, symbol, interval string) (*models.Bar, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	series := m.bars[memKey(symbol, interval)]
	if len(series) == 0 {
		return nil, nil
	}
	b := series[len(series)-1]
	return &b, nil
}

// WriteBars implements Repository: inserts in chronological position,
// deduplicating on timestamp.
func (m *MemoryRepository) WriteBars(ctx context.Context, bars []models.Bar) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, b := range bars {
		if err := b.Validate(); err != nil {
			continue
		}
		key := memKey(b.Symbol, b.Interval)
		series := m.bars[key]

		idx := sort.Search(len(series), func(i int) bool {
			return !series[i].Timestamp.Before(b.Timestamp)
		})
		if idx < len(series) && series[idx].Timestamp.Equal(b.Timestamp) {
			series[idx] = b
			continue
		}
		series = append(series, models.Bar{})
		copy(series[idx+1:], series[idx:])
		series[idx] = b
		m.bars[key] = series
	}
	return nil
}

// Close implements Repository; there is no resource to release.
func (m *MemoryRepository) Close() error { return nil }
