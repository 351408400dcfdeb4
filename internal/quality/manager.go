// Package quality implements the DataQualityManager (spec.md §4.3):
// non-blocking, per-(symbol, interval) quality measurement plus, in live
// mode, background gap repair. Grounded on the teacher's
// internal/storage/timescale.go write-queue-with-retry shape, repurposed
// from "batch write bars" to "sweep gaps and retry fills at
// retry_interval_seconds cadence".
package quality

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	clockpkg "github.com/yohannes916/mismartera-sub001/internal/clock"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

var (
	qualityGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quality_score",
			Help: "Current quality score [0,100] per symbol/interval",
		},
		[]string{"symbol", "interval"},
	)
	gapsOpenGauge = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quality_gaps_open",
			Help: "Currently open (unresolved) gap count per symbol/interval",
		},
		[]string{"symbol", "interval"},
	)
	gapFillTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quality_gap_fill_total",
			Help: "Gap-fill retry attempts by outcome",
		},
		[]string{"status"},
	)
)

// Notification is what the Processor/Coordinator sends the Manager after
// appending a bar: the (symbol, interval) whose quality may need
// recomputing.
type Notification struct {
	Symbol   string
	Interval string
}

// Manager is the DataQualityManager worker. It owns IntervalData.Quality
// and IntervalData.Gaps exclusively (spec.md §4 "sole writer").
type Manager struct {
	store    *sessiondata.Store
	repo     barrepo.Repository
	calendar calendar.Service
	exchange string

	config models.GapFillerConfig

	notify chan Notification

	redisClient *redis.Client // optional; nil disables cross-process pending-gap visibility

	clock clockpkg.Clock // optional; nil falls back to wall-clock time.Now

	liveMode bool // repository-backed gap refill only runs in live mode, spec.md §4.3/§7

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New constructs a Manager. redisClient may be nil, in which case gap
// bookkeeping stays process-local.
func New(store *sessiondata.Store, repo barrepo.Repository, cal calendar.Service, exchange string, cfg models.GapFillerConfig, redisClient *redis.Client) *Manager {
	return &Manager{
		store:       store,
		repo:        repo,
		calendar:    cal,
		exchange:    exchange,
		config:      cfg,
		notify:      make(chan Notification, 1024),
		redisClient: redisClient,
	}
}

// SetClock wires the session's clock so quality windows are measured
// against session time (live wall-clock or the Coordinator's simulated
// backtest clock) rather than always reading the process's own
// wall-clock, which would mismeasure "current clock" for a backtest
// replaying a past trading day.
func (m *Manager) SetClock(clk clockpkg.Clock) { m.clock = clk }

// SetMode tells the Manager whether it is running a live session. Gap
// *measurement* always runs (computeQuality), but repository-backed gap
// *filling* is a live-only concern (spec.md §4.3, "in backtest, treated as
// a gap" per §7) — a backtest replays a fixed historical repository, so
// retrying a read against it can only ever reproduce the same gap.
func (m *Manager) SetMode(mode models.SessionMode) { m.liveMode = mode == models.ModeLive }

// now returns the session's current time, falling back to wall-clock
// time if no clock has been wired (e.g. in tests that drive recompute
// without a full Coordinator).
func (m *Manager) now() time.Time {
	if m.clock != nil {
		if t, err := m.clock.Now(); err == nil {
			return t
		}
	}
	return time.Now()
}

// Notify is the non-blocking enqueue the Processor/Coordinator calls
// after every appended bar. If the channel is full the notification is
// dropped; that (symbol, interval)'s quality is refreshed only by a later
// notification, since sweep ticks retry gaps and do not recompute quality.
// A dropped notification never loses bar data.
func (m *Manager) Notify(symbol, interval string) {
	select {
	case m.notify <- Notification{Symbol: symbol, Interval: interval}:
	default:
	}
}

// Run starts the Manager's worker loop. It never blocks the Coordinator:
// if config.Enabled is false the loop still drains notify so callers
// never stall on a full channel, but performs no quality or gap work.
func (m *Manager) Run(ctx context.Context) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true
	m.mu.Unlock()

	m.wg.Add(1)
	go m.loop(runCtx)
}

// Stop signals the worker loop to exit and waits for it to drain.
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	cancel := m.cancel
	m.running = false
	m.mu.Unlock()

	cancel()
	m.wg.Wait()
}

func (m *Manager) loop(ctx context.Context) {
	defer m.wg.Done()

	sweepInterval := time.Duration(m.config.SweepInterval)
	if sweepInterval <= 0 {
		sweepInterval = 30 * time.Second
	}
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case n := <-m.notify:
			if !m.config.Enabled {
				continue // drain only, gate is off
			}
			m.recompute(ctx, n.Symbol, n.Interval)
		case <-ticker.C:
			if !m.config.Enabled {
				continue
			}
			m.sweep(ctx)
		}
	}
}

// recompute measures quality for one (symbol, interval), detects gaps,
// propagates base quality to derived intervals and records pending gaps.
// It does not fill gaps itself; the live-mode sweep retries them.
func (m *Manager) recompute(ctx context.Context, symbol, interval string) {
	data, ok := m.store.GetSymbolData(symbol)
	if !ok {
		return
	}
	series, ok := data.Bars[interval]
	if !ok {
		return
	}

	now := m.now()
	quality, gaps := m.computeQuality(ctx, symbol, interval, series, now)

	if err := m.store.SetQuality(symbol, interval, quality); err != nil {
		logger.Warn("quality: set_quality failed", logger.String("symbol", symbol), logger.String("interval", interval), logger.ErrorField(err))
		return
	}
	if err := m.store.SetGaps(symbol, interval, gaps); err != nil {
		logger.Warn("quality: set_gaps failed", logger.String("symbol", symbol), logger.String("interval", interval), logger.ErrorField(err))
		return
	}
	qualityGauge.WithLabelValues(symbol, interval).Set(quality)
	gapsOpenGauge.WithLabelValues(symbol, interval).Set(float64(len(gaps)))

	// Quality propagation: base quality is copied onto every derived
	// interval under the symbol (spec.md §4.3).
	if !series.Derived {
		for ivl, d := range data.Bars {
			if d.Derived && d.Base == interval {
				if err := m.store.SetQuality(symbol, ivl, quality); err == nil {
					qualityGauge.WithLabelValues(symbol, ivl).Set(quality)
				}
			}
		}
	}

	if len(gaps) > 0 {
		m.recordPendingGaps(ctx, symbol, interval, gaps)
	}
}

// computeQuality implements spec.md §4.3's formula:
//
//	quality = clamp((actual_unique - duplicates) / expected, 0, 1) * 100
//
// duplicates is always 0 here: IntervalData.AppendBar/InsertGapFill
// reject duplicate timestamps before they ever reach the series, so there
// is nothing left to subtract by the time the Manager observes the bars.
func (m *Manager) computeQuality(ctx context.Context, symbol, interval string, series *models.IntervalData, now time.Time) (float64, []models.Gap) {
	info, err := models.ParseInterval(interval)
	if err != nil || info.Type != models.IntervalMinute {
		// Quality is only meaningful for sub-daily series; daily/derived
		// non-minute intervals report a perfect score with no gaps.
		return 100, series.Gaps
	}

	session, err := m.calendar.GetTradingSession(now, m.exchange)
	if err != nil || !session.IsTradingDay {
		return 100, series.Gaps
	}

	windowEnd := now
	if windowEnd.After(session.Close) {
		windowEnd = session.Close
	}
	if windowEnd.Before(session.Open) {
		return 0, nil
	}

	expectedTimes := expectedBarTimes(session.Open, windowEnd, info.Duration())
	expected := len(expectedTimes)
	if expected == 0 {
		return 100, nil
	}

	have := make(map[int64]struct{}, len(series.Bars))
	for _, b := range series.Bars {
		have[b.Timestamp.Unix()] = struct{}{}
	}

	actualUnique := 0
	gaps := make([]models.Gap, 0)
	var openGap *models.Gap
	for _, ts := range expectedTimes {
		if _, ok := have[ts.Unix()]; ok {
			actualUnique++
			if openGap != nil {
				gaps = append(gaps, *openGap)
				openGap = nil
			}
			continue
		}
		if openGap == nil {
			openGap = &models.Gap{Start: ts, End: ts.Add(info.Duration()), BarCount: 1}
		} else {
			openGap.End = ts.Add(info.Duration())
			openGap.BarCount++
		}
	}
	if openGap != nil {
		gaps = append(gaps, *openGap)
	}

	quality := (float64(actualUnique) / float64(expected)) * 100
	if quality > 100 {
		quality = 100
	}
	if quality < 0 {
		quality = 0
	}
	return quality, mergeRetryState(series.Gaps, gaps)
}

// mergeRetryState carries retry_count/last_retry forward for gaps that
// still exist across a recomputation, so a gap already being retried
// doesn't reset its backoff state just because it was recomputed.
func mergeRetryState(prior, fresh []models.Gap) []models.Gap {
	index := make(map[int64]models.Gap, len(prior))
	for _, g := range prior {
		index[g.Start.Unix()] = g
	}
	for i, g := range fresh {
		if old, ok := index[g.Start.Unix()]; ok {
			fresh[i].RetryCount = old.RetryCount
			fresh[i].LastRetry = old.LastRetry
		}
	}
	return fresh
}

// expectedBarTimes enumerates every bar start timestamp in [start, end)
// at the given step.
func expectedBarTimes(start, end time.Time, step time.Duration) []time.Time {
	if step <= 0 {
		return nil
	}
	var out []time.Time
	for t := start; t.Before(end); t = t.Add(step) {
		out = append(out, t)
	}
	return out
}
