package barrepo

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/sdcoffey/big"

	"github.com/yohannes916/mismartera-sub001/internal/config"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

var (
	timescaleWriteTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "barrepo_timescale_write_total",
			Help: "Total number of bar write operations to TimescaleDB",
		},
		[]string{"status"},
	)

	timescaleWriteLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "barrepo_timescale_write_latency_seconds",
			Help:    "Write latency to TimescaleDB in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"operation"},
	)

	timescaleQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "barrepo_timescale_write_queue_depth",
			Help: "Current depth of the bar write queue",
		},
	)
)

// WriteConfig controls the TimescaleRepository's async write queue,
// generalized from the teacher's WriteConfigFromBarsConfig.
type WriteConfig struct {
	QueueSize  int
	MaxRetries int
	RetryDelay time.Duration
}

// TimescaleRepository implements Repository against a `bars` hypertable
// keyed by (symbol, interval, timestamp), generalizing the teacher's
// bars_1m-only schema to carry the interval column.
type TimescaleRepository struct {
	db          *sql.DB
	writeConfig WriteConfig

	writeQueue chan []models.Bar
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.RWMutex
	running    bool
}

// NewTimescaleRepository opens a pooled connection to TimescaleDB and
// starts its async write-queue worker.
func NewTimescaleRepository(dbConfig config.DatabaseConfig, writeConfig WriteConfig) (*TimescaleRepository, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		dbConfig.Host, dbConfig.Port, dbConfig.User, dbConfig.Password, dbConfig.Database, dbConfig.SSLMode,
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("barrepo: open connection: %w", err)
	}
	db.SetMaxOpenConns(dbConfig.MaxConnections)
	db.SetMaxIdleConns(dbConfig.MaxIdleConns)
	db.SetConnMaxLifetime(dbConfig.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("barrepo: ping: %w", err)
	}

	ctx, workerCancel := context.WithCancel(context.Background())
	r := &TimescaleRepository{
		db:          db,
		writeConfig: writeConfig,
		writeQueue:  make(chan []models.Bar, writeConfig.QueueSize),
		ctx:         ctx,
		cancel:      workerCancel,
	}

	r.mu.Lock()
	r.running = true
	r.mu.Unlock()
	r.wg.Add(1)
	go r.processWriteQueue()

	logger.Info("barrepo: connected to TimescaleDB",
		logger.String("host", dbConfig.Host),
		logger.Int("port", dbConfig.Port),
		logger.String("database", dbConfig.Database),
	)
	return r, nil
}

func (r *TimescaleRepository) processWriteQueue() {
	defer r.wg.Done()
	for {
		select {
		case bars, ok := <-r.writeQueue:
			if !ok {
				return
			}
			timescaleQueueDepth.Set(float64(len(r.writeQueue)))
			r.writeBarsSync(r.ctx, bars)
		case <-r.ctx.Done():
			return
		}
	}
}

func (r *TimescaleRepository) writeBarsSync(ctx context.Context, bars []models.Bar) {
	start := time.Now()
	var lastErr error
	for attempt := 0; attempt <= r.writeConfig.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(r.writeConfig.RetryDelay)
		}
		if lastErr = r.insertBars(ctx, bars); lastErr == nil {
			break
		}
		logger.Warn("barrepo: write attempt failed",
			logger.Int("attempt", attempt+1),
			logger.ErrorField(lastErr),
		)
	}

	timescaleWriteLatency.WithLabelValues("write_bars").Observe(time.Since(start).Seconds())
	if lastErr != nil {
		timescaleWriteTotal.WithLabelValues("error").Inc()
		logger.Error("barrepo: bar batch dropped after exhausting retries",
			logger.Int("count", len(bars)),
			logger.ErrorField(lastErr),
		)
		return
	}
	timescaleWriteTotal.WithLabelValues("success").Inc()
}

func (r *TimescaleRepository) insertBars(ctx context.Context, bars []models.Bar) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO bars (symbol, interval, timestamp, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (symbol, interval, timestamp) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, b.Symbol, b.Interval, b.Timestamp,
			b.Open.Float(), b.High.Float(), b.Low.Float(), b.Close.Float(), b.Volume); err != nil {
			return fmt.Errorf("insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// WriteBars implements Repository: enqueues bars for async, retried
// persistence, matching the teacher's non-blocking-with-timeout enqueue.
func (r *TimescaleRepository) WriteBars(ctx context.Context, bars []models.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	valid := make([]models.Bar, 0, len(bars))
	for _, b := range bars {
		if err := b.Validate(); err != nil {
			logger.Warn("barrepo: dropping invalid bar", logger.ErrorField(err), logger.String("symbol", b.Symbol))
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return nil
	}

	select {
	case r.writeQueue <- valid:
		timescaleQueueDepth.Set(float64(len(r.writeQueue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(100 * time.Millisecond):
		select {
		case r.writeQueue <- valid:
			timescaleQueueDepth.Set(float64(len(r.writeQueue)))
			return nil
		default:
			return models.NewError(models.KindRepository, "write_bars", fmt.Errorf("write queue is full"))
		}
	}
}

// GetBars implements Repository: inclusive start, exclusive end, chronological.
func (r *TimescaleRepository) GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT symbol, interval, timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND interval = $2 AND timestamp >= $3 AND timestamp < $4
		ORDER BY timestamp ASC
	`, symbol, interval, start, end)
	if err != nil {
		return nil, models.NewError(models.KindRepository, "get_bars", err)
	}
	defer rows.Close()

	var bars []models.Bar
	for rows.Next() {
		b, err := scanBar(rows)
		if err != nil {
			return nil, models.NewError(models.KindRepository, "get_bars", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, models.NewError(models.KindRepository, "get_bars", err)
	}
	return bars, nil
}

// GetLatestBar implements Repository.
func (r *TimescaleRepository) GetLatestBar(ctx context.Context, symbol, interval string) (*models.Bar, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT symbol, interval, timestamp, open, high, low, close, volume
		FROM bars
		WHERE symbol = $1 AND interval = $2
		ORDER BY timestamp DESC
		LIMIT 1
	`, symbol, interval)

	b, err := scanBar(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, models.NewError(models.KindRepository, "get_latest_bar", err)
	}
	return &b, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBar(row rowScanner) (models.Bar, error) {
	var b models.Bar
	var open, high, low, close float64
	if err := row.Scan(&b.Symbol, &b.Interval, &b.Timestamp, &open, &high, &low, &close, &b.Volume); err != nil {
		return models.Bar{}, err
	}
	b.Open = big.NewDecimal(open)
	b.High = big.NewDecimal(high)
	b.Low = big.NewDecimal(low)
	b.Close = big.NewDecimal(close)
	return b, nil
}

// Close implements Repository: stops the write-queue worker and flushes
// any queued batches before closing the database connection.
func (r *TimescaleRepository) Close() error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	r.running = false
	r.mu.Unlock()

	r.cancel()
	close(r.writeQueue)
	for bars := range r.writeQueue {
		r.writeBarsSync(context.Background(), bars)
	}
	r.wg.Wait()

	if err := r.db.Close(); err != nil {
		return fmt.Errorf("barrepo: close: %w", err)
	}
	return nil
}
