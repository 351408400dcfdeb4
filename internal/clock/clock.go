// Package clock provides the Coordinator's two clock sources. In live mode
// the clock is the wall clock translated to the exchange timezone; in
// backtest mode it is simulated and only ever advanced by the Coordinator
// as it yields merged data, per spec.md §3 Clock.
package clock

import (
	"sync"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// Clock is the Coordinator's sole view of "now".
type Clock interface {
	Now() (time.Time, error)
	Location() *time.Location
}

// Live is a wall-clock Clock translated into loc.
type Live struct {
	loc *time.Location
}

// NewLive constructs a Live clock for the given exchange timezone.
func NewLive(loc *time.Location) *Live {
	return &Live{loc: loc}
}

// Now implements Clock.
func (c *Live) Now() (time.Time, error) {
	return time.Now().In(c.loc), nil
}

// Location implements Clock.
func (c *Live) Location() *time.Location {
	return c.loc
}

// Simulated is the backtest Clock: monotonic within a session, advanced
// exclusively by the Coordinator's merge-yield loop. Reading it before
// Init is a ClockError (programmer error, surfaced at the boundary).
type Simulated struct {
	mu   sync.RWMutex
	loc  *time.Location
	now  time.Time
	init bool
}

// NewSimulated constructs an uninitialized Simulated clock.
func NewSimulated(loc *time.Location) *Simulated {
	return &Simulated{loc: loc}
}

// Init seeds the clock at backtest start, e.g. the first yielded event's
// timestamp or the configured start_date at market open.
func (c *Simulated) Init(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.In(c.loc)
	c.init = true
}

// Now implements Clock.
func (c *Simulated) Now() (time.Time, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.init {
		return time.Time{}, models.NewError(models.KindClock, "now", models.ErrClockNotInit)
	}
	return c.now, nil
}

// Location implements Clock.
func (c *Simulated) Location() *time.Location {
	return c.loc
}

// AdvanceTo moves the clock forward to t. Advancing to a time not after the
// current clock is a no-op: the merge-yield loop only calls this with
// monotonically increasing timestamps, but a no-op here is cheaper and
// safer than panicking on a borderline tie-break case.
func (c *Simulated) AdvanceTo(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t = t.In(c.loc)
	if !c.init || t.After(c.now) {
		c.now = t
		c.init = true
	}
}

// AdvancePastBar implements the end-of-bar clock convention: after yielding
// a completed bar of length delta starting at barStart, the clock advances
// to barStart+delta.
func (c *Simulated) AdvancePastBar(barStart time.Time, delta time.Duration) {
	c.AdvanceTo(barStart.Add(delta))
}
