// Package analysis implements AnalysisEngine and StrategyManager
// (spec.md §4.4): dispatch of change-notifications to user-supplied
// strategies and scanners, their lifecycle contract, and participation
// in the ready chain. Grounded on the teacher's internal/scanner package
// (worker-per-subscriber shape: each strategy runs on its own goroutine
// with its own queue, mirroring how each scanner worker in
// cmd/scanner/main.go owns a StateManager+ScanLoop pair) and
// internal/scanner/partitioning.go's routing-table idea, here keyed by
// (symbol, interval) instead of by worker shard.
package analysis

import (
	"context"
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// SubscriptionKey names one (symbol, interval) routing slot.
type SubscriptionKey struct {
	Symbol   string
	Interval string
}

// Strategy is the user-supplied contract of spec.md §4.4.
type Strategy interface {
	Name() string
	GetSubscriptions() []SubscriptionKey
	Setup(ctx context.Context) (bool, error)
	Teardown(ctx context.Context)
	OnBar(ctx context.Context, symbol, interval string, bars []models.Bar)
	OnIndicator(ctx context.Context, symbol, key string, value models.IndicatorState)
	OnSymbolAdded(symbol string)
}

type strategyEvent struct {
	kind     processor.DownstreamKind
	symbol   string
	interval string
	key      string
	bars     []models.Bar
	value    *models.IndicatorState
}

// strategyHandle runs one Strategy on its own goroutine, grounded on the
// teacher's per-worker StateManager+ScanLoop pairing: one thread, one
// inbox, one readiness gate.
type strategyHandle struct {
	strategy     Strategy
	queue        chan strategyEvent
	subscription *stream.Subscription
	cancel       context.CancelFunc
}

func (h *strategyHandle) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-h.queue:
			switch evt.kind {
			case processor.KindBars:
				h.strategy.OnBar(ctx, evt.symbol, evt.interval, evt.bars)
			case processor.KindIndicator:
				h.strategy.OnIndicator(ctx, evt.symbol, evt.key, *evt.value)
			}
			h.subscription.SignalReady()
		}
	}
}

// StrategyManager keeps the (symbol, interval) -> [strategy] routing
// table and fans downstream events out to each subscriber's own queue.
type StrategyManager struct {
	store *sessiondata.Store
	mode  stream.Mode

	mu      sync.RWMutex
	routing map[SubscriptionKey][]*strategyHandle
	handles []*strategyHandle

	readyTimeout time.Duration
}

// NewStrategyManager constructs a StrategyManager. mode governs every
// registered strategy's readiness-wait semantics: data-driven blocks
// without timeout; clock-driven waits up to readyTimeout for each
// subscribed strategy and then moves on, so a slow strategy misses the
// tick and its overrun count grows; live does not wait at all.
func NewStrategyManager(store *sessiondata.Store, mode stream.Mode, readyTimeout time.Duration) *StrategyManager {
	return &StrategyManager{
		store:        store,
		mode:         mode,
		routing:      make(map[SubscriptionKey][]*strategyHandle),
		readyTimeout: readyTimeout,
	}
}

// Register starts a strategy on its own goroutine and wires its
// subscriptions into the routing table.
func (sm *StrategyManager) Register(ctx context.Context, s Strategy) (bool, error) {
	ok, err := s.Setup(ctx)
	if err != nil || !ok {
		return ok, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	h := &strategyHandle{
		strategy:     s,
		queue:        make(chan strategyEvent, 256),
		subscription: stream.New(sm.mode),
		cancel:       cancel,
	}

	sm.mu.Lock()
	sm.handles = append(sm.handles, h)
	for _, key := range s.GetSubscriptions() {
		sm.routing[key] = append(sm.routing[key], h)
	}
	sm.mu.Unlock()

	go h.run(runCtx)
	return true, nil
}

// TeardownAll stops every registered strategy and calls its Teardown hook.
func (sm *StrategyManager) TeardownAll(ctx context.Context) {
	sm.mu.Lock()
	handles := sm.handles
	sm.handles = nil
	sm.routing = make(map[SubscriptionKey][]*strategyHandle)
	sm.mu.Unlock()

	for _, h := range handles {
		h.strategy.Teardown(ctx)
		h.cancel()
	}
}

// NotifySymbolAdded calls OnSymbolAdded on every registered strategy, for
// dynamic-universe strategies (spec.md §4.4).
func (sm *StrategyManager) NotifySymbolAdded(symbol string) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	for _, h := range sm.handles {
		h.strategy.OnSymbolAdded(symbol)
	}
}

// Dispatch pushes evt to every strategy subscribed to (evt.Symbol,
// evt.Interval) and waits for them to finish per the manager's mode:
// data-driven blocks indefinitely, clock-driven/live bounds the wait to
// readyTimeout and lets a slow strategy miss the tick (its
// Subscription's own overrun counter records the miss).
func (sm *StrategyManager) Dispatch(evt processor.DownstreamEvent) {
	key := SubscriptionKey{Symbol: evt.Symbol, Interval: evt.Interval}

	sm.mu.RLock()
	handles := append([]*strategyHandle(nil), sm.routing[key]...)
	sm.mu.RUnlock()
	if len(handles) == 0 {
		return
	}

	se := sm.buildEvent(evt)

	for _, h := range handles {
		h.subscription.Reset()
		select {
		case h.queue <- se:
		default:
			logger.Warn("analysis: strategy queue full, dropping event",
				logger.String("strategy", h.strategy.Name()), logger.String("symbol", evt.Symbol))
		}
	}

	for _, h := range handles {
		h.subscription.WaitUntilReady(sm.readyTimeout)
	}
}

func (sm *StrategyManager) buildEvent(evt processor.DownstreamEvent) strategyEvent {
	se := strategyEvent{kind: evt.Kind, symbol: evt.Symbol, interval: evt.Interval, key: evt.Key}
	switch evt.Kind {
	case processor.KindBars:
		if data, ok := sm.store.GetSymbolData(evt.Symbol); ok {
			if series, ok := data.Bars[evt.Interval]; ok {
				se.bars = series.Bars
			}
		}
	case processor.KindIndicator:
		if data, ok := sm.store.GetSymbolData(evt.Symbol); ok {
			se.value = data.Indicators[evt.Key]
		}
	}
	return se
}
