// Package processor implements the DataProcessor (spec.md §4.2):
// event-driven derived-bar synthesis and real-time indicator calculation.
// Grounded on the teacher's internal/bars.Aggregator (minute-boundary
// finalize-and-callback shape, generalized here from one hardcoded
// 1-minute boundary to N configured derived intervals) and
// internal/indicator.Engine (symbol-state map + calculator dispatch,
// generalized here to the pure indicatorcatalog.Compute contract instead
// of stateful Calculator objects).
package processor

import (
	"context"
	"sort"
	"sync/atomic"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// Notification is the (symbol, interval, timestamp) tuple the Coordinator
// sends after appending a bar to SessionData.
type Notification struct {
	Symbol    string
	Interval  string
	Timestamp time.Time
}

// DownstreamKind distinguishes the two notification shapes the Processor
// emits to AnalysisEngine/StrategyManager.
type DownstreamKind string

const (
	KindBars      DownstreamKind = "bars"
	KindIndicator DownstreamKind = "indicator"
)

// DownstreamEvent is what AnalysisEngine/StrategyManager subscribe to.
type DownstreamEvent struct {
	Symbol   string
	Interval string
	Kind     DownstreamKind
	Key      string // indicator key, set only when Kind == KindIndicator
}

type derivedSpec struct {
	Name     string
	Duration time.Duration
}

// Processor is the DataProcessor worker.
type Processor struct {
	store   *sessiondata.Store
	catalog *indicatorcatalog.Catalog

	baseInterval string
	baseDuration time.Duration
	derived      []derivedSpec
	indicators   []models.IndicatorConfig

	sessionOpen time.Time

	mailbox    chan Notification
	downstream chan DownstreamEvent

	ready         *stream.Subscription // this Processor's own readiness signal to the Coordinator
	analysisReady *stream.Subscription // the AnalysisEngine's readiness gate, waited on in data-driven mode

	catchingUp atomic.Bool

	cancel context.CancelFunc
}

// Config bundles the static, config-derived parameters the Processor
// needs: the base interval, the configured derived intervals (e.g. "5m",
// "15m"), and every indicator request across the session.
type Config struct {
	BaseInterval     string
	DerivedIntervals []string
	Indicators       []models.IndicatorConfig
}

// New constructs a Processor. Derived-bucket alignment is anchored at the
// session open ("timestamps aligned to session start modulo N·Δ", spec.md
// §4.2), which New does not set: call SetSessionOpen at the start of each
// trading day.
func New(store *sessiondata.Store, catalog *indicatorcatalog.Catalog, cfg Config, readyMode stream.Mode) (*Processor, error) {
	baseInfo, err := models.ParseInterval(cfg.BaseInterval)
	if err != nil {
		return nil, models.NewError(models.KindConfig, "processor.New", err)
	}

	specs := make([]derivedSpec, 0, len(cfg.DerivedIntervals))
	for _, raw := range cfg.DerivedIntervals {
		info, err := models.ParseInterval(raw)
		if err != nil {
			return nil, models.NewError(models.KindConfig, "processor.New", err)
		}
		specs = append(specs, derivedSpec{Name: raw, Duration: info.Duration()})
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Duration < specs[j].Duration })

	return &Processor{
		store:        store,
		catalog:      catalog,
		baseInterval: cfg.BaseInterval,
		baseDuration: baseInfo.Duration(),
		derived:      specs,
		indicators:   cfg.Indicators,
		mailbox:      make(chan Notification, 4096),
		downstream:   make(chan DownstreamEvent, 4096),
		ready:        stream.New(readyMode),
	}, nil
}

// SetSessionOpen anchors bucket-boundary alignment for a new trading day.
func (p *Processor) SetSessionOpen(t time.Time) { p.sessionOpen = t }

// SetAnalysisSubscription wires the AnalysisEngine's readiness gate so a
// data-driven Processor can wait for analysis subscribers before
// signaling its own readiness upstream (the
// "Coordinator -> Processor -> AnalysisEngine -> Processor_ready ->
// Coordinator_ready" chain of spec.md §4.2).
func (p *Processor) SetAnalysisSubscription(s *stream.Subscription) { p.analysisReady = s }

// Subscription returns the Processor's own readiness gate, which the
// Coordinator waits on after notifying it.
func (p *Processor) Subscription() *stream.Subscription { return p.ready }

// Downstream returns the channel AnalysisEngine/StrategyManager consume.
func (p *Processor) Downstream() <-chan DownstreamEvent { return p.downstream }

// SetCatchingUp toggles notification-drop gating during dynamic-symbol
// catchup (spec.md §4.2/§4.5): while true, downstream notifications are
// dropped rather than queued so subscribers never observe intermediate
// replay state.
func (p *Processor) SetCatchingUp(v bool) { p.catchingUp.Store(v) }

// Notify enqueues a (symbol, interval, timestamp) tuple. Non-blocking: a
// full mailbox drops the new notification with a warning rather than
// blocking the Coordinator, matching
// the non-blocking posture spec.md requires of every worker's inbound
// edge from the Coordinator.
func (p *Processor) Notify(n Notification) {
	select {
	case p.mailbox <- n:
	default:
		logger.Warn("processor: mailbox full, dropping notification",
			logger.String("symbol", n.Symbol), logger.String("interval", n.Interval))
	}
}

// Run starts the Processor's worker loop until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	go func() {
		for {
			select {
			case <-runCtx.Done():
				return
			case n := <-p.mailbox:
				p.process(n)
			}
		}
	}()
}

// Stop cancels the worker loop.
func (p *Processor) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

func (p *Processor) process(n Notification) {
	if n.Interval == p.baseInterval {
		p.synthesizeDerived(n.Symbol)
	}
	p.recomputeIndicators(n.Symbol, n.Interval)

	if !p.catchingUp.Load() {
		p.emit(DownstreamEvent{Symbol: n.Symbol, Interval: n.Interval, Kind: KindBars})
	}

	// Data-driven mode: block until the analysis layer is ready before
	// signaling this Processor's own readiness upstream.
	if p.ready.Mode() == stream.ModeDataDriven && p.analysisReady != nil {
		p.analysisReady.WaitUntilReady(0)
	}
	p.ready.SignalReady()
}

func (p *Processor) emit(evt DownstreamEvent) {
	if p.catchingUp.Load() {
		return
	}
	select {
	case p.downstream <- evt:
	default:
		logger.Warn("processor: downstream channel full, dropping event",
			logger.String("symbol", evt.Symbol), logger.String("interval", evt.Interval))
	}
}

// recomputeIndicators dispatches every indicator configured for interval
// through the catalog's pure-function contract and persists the result
// (value and carry) back into SessionData, which owns all indicator
// state (internal/indicatorcatalog's package doc).
func (p *Processor) recomputeIndicators(symbol, interval string) {
	data, ok := p.store.GetSymbolData(symbol)
	if !ok {
		return
	}
	series, ok := data.Bars[interval]
	if !ok {
		return
	}

	for _, cfg := range p.indicators {
		if cfg.Interval != interval {
			continue
		}
		key := models.IndicatorKey(cfg.Name, cfg.Period, cfg.Interval)
		entry, ok := p.catalog.Get(cfg.Name)
		if !ok {
			logger.Warn("processor: unknown indicator in catalog", logger.String("name", cfg.Name))
			continue
		}

		prior := data.Indicators[key]
		var carry any
		if prior != nil {
			carry = prior.Carry
		}

		result := entry.Compute(cfg, series.Bars, carry)

		state := models.NewIndicatorState(key, cfg.Name, cfg.Period, cfg.Interval)
		state.Value = result.Value
		state.Values = result.Values
		state.Ready = result.Ready
		state.Carry = result.Carry

		if err := p.store.SetIndicatorValue(symbol, key, state); err != nil {
			logger.Warn("processor: set_indicator_value failed", logger.ErrorField(err))
			continue
		}
		if result.Ready {
			p.emit(DownstreamEvent{Symbol: symbol, Interval: interval, Kind: KindIndicator, Key: key})
		}
	}
}
