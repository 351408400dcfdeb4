// Package barrepo provides the BarRepository contract of spec.md §6 plus
// two adapters: a TimescaleDB-backed implementation (grounded on the
// teacher's internal/storage/timescale.go write-queue shape) and an
// in-memory adapter for tests and backtests against fixture data.
package barrepo

import (
	"context"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// Repository is the BarRepository contract of spec.md §6. The core treats
// it as an external collaborator: Parquet, a time-series database, or an
// API client may sit behind it.
type Repository interface {
	GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error)
	GetLatestBar(ctx context.Context, symbol, interval string) (*models.Bar, error)
	WriteBars(ctx context.Context, bars []models.Bar) error
	Close() error
}
