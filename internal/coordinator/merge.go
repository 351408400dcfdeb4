package coordinator

import (
	"context"
	"errors"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/telemetry"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

const (
	pauseBusyWaitInterval = 5 * time.Millisecond
	refillPollTimeout     = 20 * time.Millisecond
	minPacingSleep        = time.Millisecond
)

// run is the merge-yield loop: the single goroutine that owns the
// simulated clock, performs the chronological merge across every
// registered input stream, and gates downstream work through the ready
// chain. Grounded on the teacher's scan_loop.go select-driven run shape.
func (c *Coordinator) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		switch c.state.Load() {
		case StateStopped:
			return
		case StatePaused:
			time.Sleep(pauseBusyWaitInterval)
			continue
		}

		c.refillSlots(ctx)

		key, evt, found := c.pickNext()
		if !found {
			if c.allExhausted() {
				c.endOfSessionTeardown(ctx)
				return
			}
			// Nothing ready yet across any stream; brief busy-wait and
			// retry (spec.md §4.1 "busy-wait on empty input queues with
			// small timeouts").
			time.Sleep(pauseBusyWaitInterval)
			continue
		}

		now, _ := c.clk.Now()
		if c.isLateJoinStale(key, evt, now) {
			// Stale backfill from a mid-session symbol add (spec.md
			// §4.1/§4.5): the stream was only just registered and its
			// earliest bars may predate the current merge clock. Discard
			// and free the slot without processing. Once this stream
			// yields an event at or after now, it is caught up and no
			// longer subject to this check — in particular, an in-order
			// or same-timestamp sibling bar from a stream present since
			// session start is never discarded here.
			c.freeSlot(key)
			continue
		}
		c.clearLateJoin(key)

		c.advanceClock(evt)

		if evt.Type == EventBar {
			if err := c.appendBar(evt); err != nil {
				logger.Warn("coordinator: repository read failed for yielded bar, skipping",
					logger.String("symbol", evt.Symbol), logger.String("interval", evt.Interval), logger.ErrorField(err))
				c.freeSlot(key)
				continue
			}
		}

		// Mid-session provisioning in progress: the Processor itself drops
		// its downstream fan-out (SetCatchingUp(true), spec.md §4.2/§4.5)
		// while still recomputing indicators and signaling readiness, so
		// the ready chain below is always exercised.
		if err := c.dispatchAndWait(evt.Symbol, evt.Interval, evt.Timestamp); err != nil {
			logger.Error("coordinator: downstream overrun, stopping session", logger.ErrorField(err))
			c.state.Store(StateStopped)
			c.stopDeps()
			return
		}

		c.pace(evt.Timestamp)
		c.runScheduledScans(ctx, evt.Timestamp)
		c.freeSlot(key)
		c.reportQueueDepth()
	}
}

func (c *Coordinator) reportQueueDepth() {
	c.streamsMu.Lock()
	depth := len(c.pending)
	c.streamsMu.Unlock()
	telemetry.SetMergeQueueDepth(c.config.SessionName, depth)
}

// dispatchAndWait notifies the Processor and QualityManager, then blocks
// on the Processor's own readiness subscription per the session's ready
// mode: live is a no-op, clock-driven bounds the wait and raises
// OverrunError on timeout, data-driven blocks until the full
// {Processor, AnalysisEngine, strategies} chain completes (spec.md §4.2,
// §5).
func (c *Coordinator) dispatchAndWait(symbol, interval string, ts time.Time) error {
	sub := c.deps.Processor.Subscription()
	sub.Reset()

	c.notifyDownstream(symbol, interval, ts)

	waitStart := time.Now()
	ready := sub.WaitUntilReady(c.readyTimeout)
	telemetry.ObserveReadyChain(c.config.SessionName, time.Since(waitStart))

	if !ready {
		telemetry.RecordOverrun(c.config.SessionName)
		return models.NewError(models.KindOverrun, "dispatch_and_wait", models.ErrOverrun)
	}
	return nil
}

// advanceClock implements the end-of-bar clock convention for intraday
// bars (clock -> timestamp + delta) and the verbatim convention for daily
// bars and ticks/quotes (spec.md §3 Clock, §9 Open Questions).
func (c *Coordinator) advanceClock(evt InputEvent) {
	if c.simClock == nil {
		return // live mode: the wall clock needs no driving
	}
	switch {
	case evt.Type == EventBar && evt.Delta < 24*time.Hour:
		c.simClock.AdvancePastBar(evt.Timestamp, evt.Delta)
	default:
		c.simClock.AdvanceTo(evt.Timestamp)
	}
}

// appendBar writes a yielded bar into SessionData; session aggregate
// metrics and derived/base bookkeeping are the sessiondata.Store's
// responsibility.
func (c *Coordinator) appendBar(evt InputEvent) error {
	return c.deps.Store.AppendBar(evt.Symbol, evt.Interval, false, "", evt.Bar)
}

// pace implements spec.md §4.1's backtest pacing rule: for
// speed_multiplier s > 0, sleep max(delta-t/s, 1ms) between consecutive
// yielded events' nominal timestamps; s == 0 (data-driven) sleeps not at
// all, since pacing there is entirely gated by the ready chain.
func (c *Coordinator) pace(ts time.Time) {
	if c.config.Mode != models.ModeBacktest {
		c.lastEventTime = ts
		return
	}
	speed := c.config.BacktestConfig.SpeedMultiplier
	if speed > 0 {
		deltaT := ts.Sub(c.lastEventTime)
		sleep := time.Duration(float64(deltaT) / speed)
		if sleep < minPacingSleep {
			sleep = minPacingSleep
		}
		time.Sleep(sleep)
	}
	c.lastEventTime = ts
}

// runScheduledScans invokes any regular scanner whose schedule window now
// contains elapsed session time. Scanners always run synchronously
// (spec.md §4.4); in backtest mode that synchronous call is made directly
// on this goroutine so the simulated clock naturally pauses for its
// duration, while in live mode it is dispatched onto its own goroutine so
// a slow scan never stalls live bar processing (spec.md §4 scheduling
// model).
func (c *Coordinator) runScheduledScans(ctx context.Context, ts time.Time) {
	elapsed := ts.Sub(c.sessionOpen)
	if elapsed < 0 {
		return
	}
	if c.config.Mode == models.ModeBacktest {
		c.deps.Engine.RunScheduledScans(ctx, elapsed)
	} else {
		go c.deps.Engine.RunScheduledScans(ctx, elapsed)
	}
}

// refillSlots dequeues up to one item per empty, non-exhausted pending
// slot. A per-call short timeout distinguishes "no data is ready on this
// stream yet" (context.DeadlineExceeded, not an error) from a genuine
// RepositoryError, matching spec.md's failure model.
func (c *Coordinator) refillSlots(ctx context.Context) {
	c.streamsMu.Lock()
	keys := make([]streamKey, 0, len(c.streams))
	for key := range c.streams {
		if c.pending[key] == nil && !c.exhausted[key] {
			keys = append(keys, key)
		}
	}
	streamsCopy := make(map[streamKey]InputStream, len(keys))
	for _, key := range keys {
		streamsCopy[key] = c.streams[key]
	}
	c.streamsMu.Unlock()

	for _, key := range keys {
		s := streamsCopy[key]
		pollCtx, cancel := context.WithTimeout(ctx, refillPollTimeout)
		evt, ok, err := s.Next(pollCtx)
		cancel()

		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				continue // no data ready yet this tick
			}
			logger.Warn("coordinator: stream read failed", logger.String("symbol", key.Symbol), logger.ErrorField(err))
			continue
		}
		if !ok {
			c.streamsMu.Lock()
			c.exhausted[key] = true
			c.streamsMu.Unlock()
			continue
		}
		c.streamsMu.Lock()
		c.pending[key] = &evt
		c.streamsMu.Unlock()
	}
}

// pickNext selects the pending item with the minimum timestamp across all
// slots, breaking ties lexicographically by (symbol, stream_type) per
// spec.md §4.1 and §9's resolved Open Question.
func (c *Coordinator) pickNext() (streamKey, InputEvent, bool) {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()

	var bestKey streamKey
	var best *InputEvent
	found := false
	for key, evt := range c.pending {
		if evt == nil {
			continue
		}
		if !found || evt.Timestamp.Before(best.Timestamp) || (evt.Timestamp.Equal(best.Timestamp) && key.less(bestKey)) {
			bestKey, best, found = key, evt, true
		}
	}
	if !found {
		return streamKey{}, InputEvent{}, false
	}
	return bestKey, *best, true
}

func (c *Coordinator) freeSlot(key streamKey) {
	c.streamsMu.Lock()
	delete(c.pending, key)
	c.streamsMu.Unlock()
}

// allExhausted reports whether every registered stream has signaled
// exhaustion and no pending items remain — spec.md §4.1's graceful
// end-of-session condition.
func (c *Coordinator) allExhausted() bool {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	if len(c.streams) == 0 {
		return false // nothing registered yet; not the same as "done"
	}
	for key := range c.streams {
		if !c.exhausted[key] {
			return false
		}
	}
	for _, evt := range c.pending {
		if evt != nil {
			return false
		}
	}
	return true
}

// isLateJoinStale reports whether evt is pre-clock backfill from a stream
// that joined mid-session (spec.md §4.1's stale-discard, scoped to §4.5's
// mid-session add as its stated purpose). Streams registered before the
// session started are never subject to this check, so two sibling streams
// present from session start always yield every in-order and
// same-timestamp event to the merge, matching spec.md §8 scenario 1.
func (c *Coordinator) isLateJoinStale(key streamKey, evt InputEvent, now time.Time) bool {
	c.streamsMu.Lock()
	late := c.lateJoin[key]
	c.streamsMu.Unlock()
	return late && !now.IsZero() && evt.Timestamp.Before(now)
}

// clearLateJoin marks key as caught up once it has yielded a non-stale
// event, so later ties against other streams are never misattributed to
// the mid-session-join discard above.
func (c *Coordinator) clearLateJoin(key streamKey) {
	c.streamsMu.Lock()
	delete(c.lateJoin, key)
	c.streamsMu.Unlock()
}

func (c *Coordinator) catchingUp() bool {
	c.streamsMu.Lock()
	defer c.streamsMu.Unlock()
	return len(c.pendingSymbols) > 0
}
