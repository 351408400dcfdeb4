// Package stream implements StreamSubscription (spec.md §4.7): the
// per-edge ready-gate synchronization primitive used between every pair of
// workers in the ready chain. Grounded on the teacher's
// internal/scanner/scan_loop.go running-flag/mutex transition shape and its
// atomic stats counters, generalized into a one-shot ready gate with three
// modes.
package stream

import (
	"sync"
	"sync/atomic"
	"time"
)

// Mode selects a StreamSubscription's wait semantics.
type Mode string

const (
	// ModeLive: WaitUntilReady is a no-op, always immediately true.
	ModeLive Mode = "live"
	// ModeClockDriven: WaitUntilReady waits up to its timeout; on expiry
	// it increments OverrunCount and returns false.
	ModeClockDriven Mode = "clock_driven"
	// ModeDataDriven: WaitUntilReady blocks indefinitely until
	// SignalReady is called; any timeout argument is ignored.
	ModeDataDriven Mode = "data_driven"
)

// Subscription is the per-edge StreamSubscription.
type Subscription struct {
	mode Mode

	mu      sync.Mutex
	signal  chan struct{}
	ready   bool
	overrun int64
}

// New constructs a Subscription in the given mode.
func New(mode Mode) *Subscription {
	return &Subscription{mode: mode, signal: make(chan struct{})}
}

// WaitUntilReady blocks per the subscription's mode. timeout is ignored in
// ModeLive and ModeDataDriven.
func (s *Subscription) WaitUntilReady(timeout time.Duration) bool {
	switch s.mode {
	case ModeLive:
		return true
	case ModeDataDriven:
		<-s.signal
		return true
	default: // ModeClockDriven
		select {
		case <-s.signal:
			return true
		case <-time.After(timeout):
			atomic.AddInt64(&s.overrun, 1)
			return false
		}
	}
}

// SignalReady is one-shot: closing an already-closed channel panics, so a
// second signal before Reset is a deliberate no-op rather than a crash —
// a worker that calls signal_ready twice in a row (e.g. from a retried
// finally block) must not bring down the ready chain.
func (s *Subscription) SignalReady() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return
	}
	s.ready = true
	close(s.signal)
}

// Reset prepares the subscription for the next cycle. Must be called
// before the next WaitUntilReady/SignalReady pair; a missed reset leaves
// the stale closed channel in place, so every subsequent wait returns true
// immediately without waiting for a new signal.
func (s *Subscription) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.signal = make(chan struct{})
}

// OverrunCount returns the number of clock-driven timeouts observed so far.
func (s *Subscription) OverrunCount() int64 {
	return atomic.LoadInt64(&s.overrun)
}

// Mode returns the subscription's configured mode.
func (s *Subscription) Mode() Mode {
	return s.mode
}
