package barrepo

import (
	"context"
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

func mkBar(symbol, interval string, ts time.Time) models.Bar {
	return models.Bar{
		Symbol: symbol, Interval: interval, Timestamp: ts,
		Open: big.NewDecimal(1), High: big.NewDecimal(2),
		Low: big.NewDecimal(1), Close: big.NewDecimal(1.5), Volume: 100,
	}
}

func TestMemoryRepositoryWriteAndGet(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	err := repo.WriteBars(ctx, []models.Bar{
		mkBar("AAPL", "1m", t0.Add(time.Minute)),
		mkBar("AAPL", "1m", t0),
		mkBar("AAPL", "1m", t0.Add(2*time.Minute)),
	})
	require.NoError(t, err)

	bars, err := repo.GetBars(ctx, "AAPL", "1m", t0, t0.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, bars, 2, "expected 2 bars in [start,end)")
	require.True(t, bars[0].Timestamp.Equal(t0), "expected chronological order, first bar at %v", bars[0].Timestamp)

	latest, err := repo.GetLatestBar(ctx, "AAPL", "1m")
	require.NoError(t, err)
	require.NotNil(t, latest)
	require.True(t, latest.Timestamp.Equal(t0.Add(2*time.Minute)), "unexpected latest bar: %+v", latest)
}

func TestMemoryRepositoryWriteBarsDedupesOnTimestamp(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	t0 := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)

	repo.WriteBars(ctx, []models.Bar{mkBar("AAPL", "1m", t0)})
	repo.WriteBars(ctx, []models.Bar{mkBar("AAPL", "1m", t0)})

	bars, _ := repo.GetBars(ctx, "AAPL", "1m", t0, t0.Add(time.Minute))
	require.Len(t, bars, 1, "expected dedup on timestamp")
}

func TestMemoryRepositoryGetLatestBarEmpty(t *testing.T) {
	repo := NewMemoryRepository()
	latest, err := repo.GetLatestBar(context.Background(), "AAPL", "1m")
	require.NoError(t, err)
	require.Nil(t, latest, "expected nil latest bar for empty series, got %+v", latest)
}
