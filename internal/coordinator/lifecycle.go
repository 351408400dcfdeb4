package coordinator

import (
	"context"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// teardownPhase is Phase 1 of spec.md §4.1: it clears SessionData and the
// Coordinator's own stream bookkeeping (pending slots, exhausted streams,
// pending and loaded symbol sets). It does not reset the Processor,
// QualityManager or AnalysisEngine. It is idempotent on any state, so this
// is safe to call on the very first session too.
func (c *Coordinator) teardownPhase(ctx context.Context) error {
	c.deps.Store.Clear()

	c.streamsMu.Lock()
	c.pending = make(map[streamKey]*InputEvent)
	c.exhausted = make(map[streamKey]bool)
	c.pendingSymbols = make(map[string]bool)
	c.loadedSymbols = make(map[string]bool)
	c.streamsMu.Unlock()

	return nil
}

// initializePhase is Phase 2 of spec.md §4.1: load config-declared symbols
// through the unified three-phase provisioning protocol, warm indicators
// from historical bars, compute initial historical quality, and run
// pre-session scanners.
func (c *Coordinator) initializePhase(ctx context.Context) error {
	sdc := c.config.SessionDataConfig

	sessionDate := c.sessionDate()
	session, err := c.deps.Calendar.GetTradingSession(sessionDate, c.config.ExchangeGroup)
	if err != nil {
		return models.NewError(models.KindConfig, "initialize", err)
	}
	if !session.IsTradingDay {
		logger.Warn("coordinator: session date is not a trading day, no bars will be yielded",
			logger.String("session_name", c.config.SessionName))
	}

	if c.simClock != nil {
		c.simClock.Init(session.Open)
	}
	c.deps.Processor.SetSessionOpen(session.Open)
	c.sessionOpen = session.Open
	c.lastEventTime = session.Open

	for _, symbol := range sdc.Symbols {
		req := c.deps.Provisioner.AnalyzeFullAdd(symbol, models.SourceConfig)
		val := c.deps.Provisioner.Validate(ctx, req)
		if !val.CanProceed {
			logger.Warn("coordinator: config symbol failed validation, skipping",
				logger.String("symbol", symbol), logger.String("reason", val.Reason))
			continue
		}
		if err := c.deps.Provisioner.Provision(ctx, req); err != nil {
			logger.Warn("coordinator: config symbol provisioning failed",
				logger.String("symbol", symbol), logger.ErrorField(err))
			continue
		}
		c.loadedSymbols[symbol] = true

		for _, ivl := range append([]string{sdc.BaseInterval}, sdc.DerivedIntervals...) {
			c.deps.Quality.Notify(symbol, ivl)
		}
	}

	c.deps.Engine.Scanners.RunPreSession(ctx)

	return nil
}

// sessionDate picks the trading date this session covers: the backtest
// config's start_date in backtest mode, or today (in the exchange
// timezone) in live mode.
func (c *Coordinator) sessionDate() time.Time {
	if c.config.Mode == models.ModeBacktest {
		t, err := time.ParseInLocation("2006-01-02", c.config.BacktestConfig.StartDate, c.clk.Location())
		if err == nil {
			return t
		}
	}
	now, err := c.clk.Now()
	if err != nil {
		return time.Now().In(c.clk.Location())
	}
	return now
}

// endOfSessionTeardown runs once every input stream is exhausted: it tears
// down scanners, marks the session stopped and stops the workers. It does
// not clear SessionData and does not advance to the next trading date; the
// session ends here.
func (c *Coordinator) endOfSessionTeardown(ctx context.Context) {
	logger.Info("coordinator: session complete, tearing down",
		logger.String("session_name", c.config.SessionName))
	c.deps.Engine.Scanners.TeardownAll(ctx)
	c.state.Store(StateStopped)
	c.stopDeps()
}

// notifyDownstream sends the (symbol, interval, timestamp) tuple to both
// the Processor and the QualityManager, the fan-out spec.md §6 names as
// the Coordinator's wire format to those two workers.
func (c *Coordinator) notifyDownstream(symbol, interval string, ts time.Time) {
	c.deps.Processor.Notify(processor.Notification{Symbol: symbol, Interval: interval, Timestamp: ts})
	c.deps.Quality.Notify(symbol, interval)
}
