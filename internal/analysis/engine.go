package analysis

import (
	"context"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
)

// Engine is AnalysisEngine: it owns the StrategyManager and
// ScannerManager and exposes a single readiness subscription for the
// Processor to wait on in data-driven mode (the
// "Coordinator -> Processor -> AnalysisEngine -> Processor_ready ->
// Coordinator_ready" chain of spec.md §4.2).
type Engine struct {
	Strategies *StrategyManager
	Scanners   *ScannerManager

	ready chan processor.DownstreamEvent
	done  *stream.Subscription
}

// New constructs an AnalysisEngine wired to strategies and scanners.
func New(strategies *StrategyManager, scanners *ScannerManager, mode stream.Mode) *Engine {
	return &Engine{
		Strategies: strategies,
		Scanners:   scanners,
		ready:      make(chan processor.DownstreamEvent, 4096),
		done:       stream.New(mode),
	}
}

// Subscription returns the aggregate readiness gate the Processor waits
// on after handing this engine a downstream event.
func (e *Engine) Subscription() *stream.Subscription { return e.done }

// Run drains downstream events from the Processor and dispatches each to
// StrategyManager until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case evt := <-e.ready:
				e.done.Reset()
				e.Strategies.Dispatch(evt)
				e.done.SignalReady()
			}
		}
	}()
}

// HandleEvent is what the Processor's downstream consumer loop calls for
// every event it reads off Processor.Downstream().
func (e *Engine) HandleEvent(evt processor.DownstreamEvent) {
	select {
	case e.ready <- evt:
	default:
		// Full inbox: the event is dropped rather than blocking the
		// Processor's downstream consumer; the next notification cycle
		// will recompute and re-emit regardless.
	}
}

// RunScheduledScans runs every regular scanner whose window contains
// elapsed. In backtest mode the caller should call this inline on the
// Coordinator's own goroutine so the simulated clock pauses for the
// duration; in live mode the caller should invoke it from a separate
// goroutine so the scan does not stall live bar processing (spec.md §4
// scheduling model).
func (e *Engine) RunScheduledScans(ctx context.Context, elapsed time.Duration) {
	e.Scanners.RunScheduled(ctx, elapsed)
}
