// Package coordinator implements the SessionCoordinator (spec.md §4.1):
// session lifecycle, the chronological merge-yield loop, the simulated
// clock, pacing, pause/resume, and the failure model. Grounded on the
// teacher's internal/scanner/scan_loop.go run-loop shape (a select over a
// ticker, a stop channel, and periodic secondary work), generalized from a
// fixed-interval scan to the merge-yield loop's per-slot dequeue-or-stale
// logic.
package coordinator

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/analysis"
	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	clockpkg "github.com/yohannes916/mismartera-sub001/internal/clock"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/provisioning"
	"github.com/yohannes916/mismartera-sub001/internal/quality"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// Deps bundles every worker and external collaborator the Coordinator
// orchestrates. Deps is the explicit dependency-injection surface the
// design notes call for ("every singleton passed explicitly as a
// dependency to each worker", spec.md §9) — the process entrypoint
// (cmd/sessionengine) constructs one Deps and hands it to New; the
// SystemManager (internal/system) receives the built Coordinator.
type Deps struct {
	Store       *sessiondata.Store
	Repo        barrepo.Repository
	Calendar    calendar.Service
	Processor   *processor.Processor
	Quality     *quality.Manager
	Engine      *analysis.Engine
	Provisioner *provisioning.Provisioner
}

// Coordinator is the SessionCoordinator.
type Coordinator struct {
	deps Deps

	mu     sync.Mutex
	config *models.SessionConfig
	state  systemState

	clk       clockpkg.Clock
	simClock  *clockpkg.Simulated // non-nil in backtest mode
	readyMode stream.Mode

	streamsMu sync.Mutex
	streams   map[streamKey]InputStream
	pending   map[streamKey]*InputEvent
	exhausted map[streamKey]bool
	lateJoin  map[streamKey]bool

	pendingSymbols map[string]bool
	loadedSymbols  map[string]bool

	sessionOpen   time.Time
	lastEventTime time.Time

	runCancel context.CancelFunc
	runWG     sync.WaitGroup

	readyTimeout     time.Duration
	catchupThreshold time.Duration
}

// ResolveReadyMode derives the stream.Mode a Processor/AnalysisEngine
// built for cfg must run in: live sessions never block on the ready
// chain, a zero speed_multiplier backtest is data-driven (blocks until
// every subscriber catches up), and any other backtest speed is
// clock-driven (bounded wait, OverrunError on timeout). Callers that
// construct Deps before Start (every cmd entrypoint) need this ahead of
// StartWithConfig, since Processor/AnalysisEngine take their ready mode
// at construction.
func ResolveReadyMode(cfg *models.SessionConfig) (stream.Mode, error) {
	switch cfg.Mode {
	case models.ModeLive:
		return stream.ModeLive, nil
	case models.ModeBacktest:
		if cfg.BacktestConfig.SpeedMultiplier == 0 {
			return stream.ModeDataDriven, nil
		}
		return stream.ModeClockDriven, nil
	default:
		return "", fmt.Errorf("unknown mode %q", cfg.Mode)
	}
}

// New constructs a Coordinator. Call Start to load a SessionConfig and
// begin a session.
func New(deps Deps) *Coordinator {
	c := &Coordinator{
		deps:           deps,
		streams:        make(map[streamKey]InputStream),
		pending:        make(map[streamKey]*InputEvent),
		exhausted:      make(map[streamKey]bool),
		lateJoin:       make(map[streamKey]bool),
		pendingSymbols: make(map[string]bool),
		loadedSymbols:  make(map[string]bool),
	}
	c.state.Store(StateStopped)
	return c
}

// RegisterStream wires one (symbol, interval) input feed into the
// merge-yield loop. Callers (SystemManager / the live adapter / the
// backtest pump) add streams for the config-declared universe before
// Start, and for dynamically added symbols as part of provisioning. A
// stream registered while the session is already running is a mid-session
// join (AddSymbol, spec.md §4.5): its first yielded event may legitimately
// predate the merge clock (its stream was just built and can start
// anywhere at or before "now"), so it is flagged lateJoin until its first
// event clears the stale check in the merge loop.
func (c *Coordinator) RegisterStream(s InputStream) {
	key := streamKey{Symbol: s.Symbol(), StreamType: s.StreamType()}
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	c.streams[key] = s
	delete(c.exhausted, key)
	if c.state.Load() == StateRunning {
		c.lateJoin[key] = true
	}
}

// UnregisterStream removes every input feed for symbol (used by Remove).
func (c *Coordinator) UnregisterStream(symbol string) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	for key := range c.streams {
		if key.Symbol == symbol {
			delete(c.streams, key)
			delete(c.pending, key)
			delete(c.exhausted, key)
			delete(c.lateJoin, key)
		}
	}
}

// Start loads configPath, validates it (fatal ConfigError on failure, per
// spec.md §7's "start raises on any fatal error before promoting state to
// running"), runs the two-phase session lifecycle (teardown then
// initialize), and launches the merge-yield loop and every worker.
func (c *Coordinator) Start(ctx context.Context, configPath string) error {
	c.mu.Lock()
	if c.state.Load() != StateStopped {
		c.mu.Unlock()
		return models.NewError(models.KindLifecycle, "start", fmt.Errorf("double start: session already %s", c.state.Load()))
	}
	c.mu.Unlock()

	f, err := os.Open(configPath)
	if err != nil {
		return models.NewError(models.KindConfig, "start", err)
	}
	defer f.Close()

	cfg, err := models.DecodeSessionConfig(f)
	if err != nil {
		return err
	}

	return c.StartWithConfig(ctx, cfg)
}

// StartWithConfig is Start with an already-decoded, already-validated
// config (used by tests and by callers that build SessionConfig
// programmatically rather than from a file).
func (c *Coordinator) StartWithConfig(ctx context.Context, cfg *models.SessionConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Load() != StateStopped {
		return models.NewError(models.KindLifecycle, "start", fmt.Errorf("double start: session already %s", c.state.Load()))
	}

	loc, err := c.deps.Calendar.Timezone(cfg.ExchangeGroup, cfg.AssetClass)
	if err != nil {
		return models.NewError(models.KindConfig, "start", err)
	}

	c.config = cfg
	c.readyTimeout = time.Duration(cfg.SessionDataConfig.Streaming.ReadyTimeout)
	if c.readyTimeout <= 0 {
		c.readyTimeout = 2 * time.Second
	}
	c.catchupThreshold = time.Duration(cfg.SessionDataConfig.Historical.CatchupThresholdSeconds) * time.Second
	if c.catchupThreshold <= 0 {
		c.catchupThreshold = 30 * time.Second
	}

	mode, err := ResolveReadyMode(cfg)
	if err != nil {
		return models.NewError(models.KindConfig, "start", err)
	}
	c.readyMode = mode

	switch cfg.Mode {
	case models.ModeLive:
		c.clk = clockpkg.NewLive(loc)
	case models.ModeBacktest:
		sim := clockpkg.NewSimulated(loc)
		c.simClock = sim
		c.clk = sim
	}
	c.deps.Quality.SetClock(c.clk)
	c.deps.Quality.SetMode(cfg.Mode)

	if err := c.teardownPhase(ctx); err != nil {
		return err
	}
	if err := c.initializePhase(ctx); err != nil {
		return err
	}

	c.state.Store(StateRunning)

	runCtx, cancel := context.WithCancel(ctx)
	c.runCancel = cancel

	c.deps.Processor.Run(runCtx)
	c.deps.Quality.Run(runCtx)
	c.deps.Engine.Run(runCtx)

	c.runWG.Add(2)
	go func() { defer c.runWG.Done(); c.pumpDownstream(runCtx) }()
	go func() { defer c.runWG.Done(); c.run(runCtx) }()

	return nil
}

// pumpDownstream fans the Processor's downstream notifications into the
// AnalysisEngine, the wiring a cmd entrypoint would otherwise have to do
// by hand.
func (c *Coordinator) pumpDownstream(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-c.deps.Processor.Downstream():
			c.deps.Engine.HandleEvent(evt)
		}
	}
}

// Stop is idempotent: calling it on an already-stopped session returns
// success (spec.md §6 "stop is idempotent and returns success even when
// already stopped"). Each worker gets a best-effort graceful join with a
// 5-second budget.
func (c *Coordinator) Stop() error {
	c.mu.Lock()
	alreadyStopped := c.state.Load() == StateStopped
	c.state.Store(StateStopped)
	cancel := c.runCancel
	c.mu.Unlock()

	if alreadyStopped && cancel == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() { c.runWG.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		logger.Warn("coordinator: worker join timed out, abandoning thread")
	}

	c.stopDeps()
	return nil
}

// stopDeps cancels the run context (if any) and stops the Processor and
// QualityManager. Unlike Stop, it never waits on runWG: the merge-yield
// loop calls this from endOfSessionTeardown, which runs ON one of runWG's
// own goroutines, so waiting here would deadlock against itself. Both
// Processor.Stop and Quality.Stop cancel their own internal contexts and
// are safe to call more than once.
func (c *Coordinator) stopDeps() {
	c.mu.Lock()
	cancel := c.runCancel
	c.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	c.deps.Processor.Stop()
	c.deps.Quality.Stop()
}

// GetState returns the session's current operational snapshot.
func (c *Coordinator) GetState() Snapshot {
	c.mu.Lock()
	state := c.state.Load()
	c.mu.Unlock()

	snap := Snapshot{State: state.String()}
	if c.readyMode != "" {
		snap.ReadyMode = string(c.readyMode)
	}
	if c.clk != nil {
		if now, err := c.clk.Now(); err == nil {
			snap.ClockTime = now.Format(time.RFC3339)
		}
	}
	if c.deps.Processor != nil {
		snap.ProcessorOverruns = c.deps.Processor.Subscription().OverrunCount()
	}

	c.streamsMu.Lock()
	snap.MergeQueueDepth = len(c.pending)
	c.streamsMu.Unlock()

	for _, symbol := range c.deps.Store.Symbols() {
		data, ok := c.deps.Store.GetSymbolData(symbol)
		if !ok {
			continue
		}
		c.streamsMu.Lock()
		pending := c.pendingSymbols[symbol]
		c.streamsMu.Unlock()
		snap.Symbols = append(snap.Symbols, SymbolStatus{
			Symbol:                         symbol,
			MeetsSessionConfigRequirements: data.MeetsSessionConfigRequirements,
			AddedBy:                        string(data.AddedBy),
			AutoProvisioned:                data.AutoProvisioned,
			UpgradedFromAdhoc:              data.UpgradedFromAdhoc,
			Pending:                        pending,
		})
	}
	return snap
}

// Pause and Resume implement the SystemState transitions of spec.md §4.1;
// the merge-yield loop busy-waits in small sleeps while not running.
func (c *Coordinator) Pause() error {
	if !c.state.CAS(StateRunning, StatePaused) {
		return models.NewError(models.KindLifecycle, "pause", fmt.Errorf("session not running"))
	}
	return nil
}

func (c *Coordinator) Resume() error {
	if !c.state.CAS(StatePaused, StateRunning) {
		return models.NewError(models.KindLifecycle, "resume", fmt.Errorf("session not paused"))
	}
	return nil
}
