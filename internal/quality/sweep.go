package quality

import (
	"context"
	"encoding/json"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

const gapFillBatchMode = sessiondata.ModeGapFill

// sweep runs on the sweep_interval tick: it walks every registered symbol
// and interval, retrying any open gap whose retry budget is not yet
// exhausted, mirroring the teacher's write-queue retry/backoff loop but
// applied to gap fills instead of batched writes. Backtest sessions skip
// the repository-backed retry entirely: a backtest replays a fixed
// historical repository, so a gap found there is permanent for the
// session, and is left recorded rather than endlessly retried
// (spec.md §4.3, §7).
func (m *Manager) sweep(ctx context.Context) {
	if !m.liveMode {
		return
	}
	for _, symbol := range m.store.Symbols() {
		data, ok := m.store.GetSymbolData(symbol)
		if !ok {
			continue
		}
		for interval, series := range data.Bars {
			if len(series.Gaps) == 0 {
				continue
			}
			m.retryGaps(ctx, symbol, interval, series)
		}
	}
}

// retryGaps attempts to fill each open gap for one (symbol, interval)
// from the BarRepository, retrying up to config.MaxRetries times at
// config.RetryInterval cadence before abandoning a gap.
func (m *Manager) retryGaps(ctx context.Context, symbol, interval string, series *models.IntervalData) {
	retryInterval := time.Duration(m.config.RetryInterval)
	now := time.Now()

	remaining := make([]models.Gap, 0, len(series.Gaps))
	for _, gap := range series.Gaps {
		if gap.MaxRetriesReached(m.config.MaxRetries) {
			remaining = append(remaining, gap)
			continue
		}
		if !gap.LastRetry.IsZero() && now.Sub(gap.LastRetry) < retryInterval {
			remaining = append(remaining, gap) // not due yet
			continue
		}

		bars, err := m.repo.GetBars(ctx, symbol, interval, gap.Start, gap.End)
		gap.RetryCount++
		gap.LastRetry = now

		if err != nil || len(bars) == 0 {
			gapFillTotal.WithLabelValues("miss").Inc()
			remaining = append(remaining, gap)
			continue
		}

		if err := m.store.AddBarsBatch(symbol, interval, series.Derived, series.Base, bars, gapFillBatchMode); err != nil {
			logger.Warn("quality: gap fill batch failed", logger.String("symbol", symbol), logger.String("interval", interval), logger.ErrorField(err))
			gapFillTotal.WithLabelValues("error").Inc()
			remaining = append(remaining, gap)
			continue
		}

		gapFillTotal.WithLabelValues("filled").Inc()
		// A filled gap is not carried forward; the next recompute will
		// observe the newly-present bars and close it out naturally.
		m.removePendingGap(ctx, symbol, interval, gap)
	}

	if err := m.store.SetGaps(symbol, interval, remaining); err != nil {
		logger.Warn("quality: set_gaps after retry failed", logger.ErrorField(err))
	}
	gapsOpenGauge.WithLabelValues(symbol, interval).Set(float64(len(remaining)))
}

// pendingGapRecord is the JSON shape persisted to Redis so a second
// process can inspect in-flight gap repair without reading SessionData
// directly, mirroring how internal/provisioning exposes _pending_symbols.
type pendingGapRecord struct {
	Symbol   string    `json:"symbol"`
	Interval string    `json:"interval"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	BarCount int       `json:"bar_count"`
}

func pendingGapKey(symbol, interval string, start time.Time) string {
	return "quality:pending_gap:" + symbol + ":" + interval + ":" + start.Format(time.RFC3339)
}

func (m *Manager) recordPendingGaps(ctx context.Context, symbol, interval string, gaps []models.Gap) {
	if m.redisClient == nil {
		return
	}
	for _, g := range gaps {
		rec := pendingGapRecord{Symbol: symbol, Interval: interval, Start: g.Start, End: g.End, BarCount: g.BarCount}
		payload, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		key := pendingGapKey(symbol, interval, g.Start)
		if err := m.redisClient.Set(ctx, key, payload, 24*time.Hour).Err(); err != nil {
			logger.Warn("quality: redis pending-gap set failed", logger.ErrorField(err))
		}
	}
}

func (m *Manager) removePendingGap(ctx context.Context, symbol, interval string, gap models.Gap) {
	if m.redisClient == nil {
		return
	}
	key := pendingGapKey(symbol, interval, gap.Start)
	if err := m.redisClient.Del(ctx, key).Err(); err != nil {
		logger.Warn("quality: redis pending-gap del failed", logger.ErrorField(err))
	}
}
