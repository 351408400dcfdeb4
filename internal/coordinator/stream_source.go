package coordinator

import (
	"context"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// EventType distinguishes the two event shapes the merge-yield loop
// consumes: a completed bar (end-of-bar clock convention applies) or a
// tick/quote (clock advances to the event timestamp verbatim), per
// spec.md §4.1 and the daily-bar/tick Open Question resolution in §9.
type EventType string

const (
	EventBar  EventType = "bar"
	EventTick EventType = "tick"
)

// InputEvent is one item dequeued from an InputStream.
type InputEvent struct {
	Symbol    string
	Interval  string // set for EventBar; empty for EventTick
	Type      EventType
	Timestamp time.Time
	Bar       models.Bar    // valid when Type == EventBar
	Delta     time.Duration // bar length, valid when Type == EventBar
}

// InputStream is one (symbol, stream_type) feed, live-adapter-backed or
// backtest-pump-backed. The core treats both uniformly: Next blocks (up
// to the supplied context) for the next item, or reports exhaustion via
// the ok=false return (the sentinel of spec.md §4.1's merge-yield loop).
type InputStream interface {
	Symbol() string
	StreamType() string
	Next(ctx context.Context) (event InputEvent, ok bool, err error)
}

// streamKey names one pending-slot entry: (symbol, stream_type).
type streamKey struct {
	Symbol     string
	StreamType string
}

// less implements the lexicographic (symbol, stream_type) tie-break of
// spec.md §4.1's merge rule.
func (k streamKey) less(other streamKey) bool {
	if k.Symbol != other.Symbol {
		return k.Symbol < other.Symbol
	}
	return k.StreamType < other.StreamType
}

// RepositoryBarStream is a backtest InputStream pumping bars for one
// (symbol, interval) out of a BarRepository across [start, end), grounded
// on spec.md §6's BarRepository contract ("inclusive start, exclusive
// end; chronological").
type RepositoryBarStream struct {
	symbol   string
	interval string
	delta    time.Duration
	bars     []models.Bar
	idx      int
}

// NewRepositoryBarStream preloads bars in [start, end) for symbol/interval.
// Preloading (rather than paging) matches the teacher's prefetch_days
// config knob: backtest bars for one trading window are small enough to
// hold in memory, and it keeps Next() allocation-free and error-free
// after construction.
func NewRepositoryBarStream(ctx context.Context, repo interface {
	GetBars(ctx context.Context, symbol, interval string, start, end time.Time) ([]models.Bar, error)
}, symbol, interval string, delta time.Duration, start, end time.Time) (*RepositoryBarStream, error) {
	bars, err := repo.GetBars(ctx, symbol, interval, start, end)
	if err != nil {
		return nil, err
	}
	return &RepositoryBarStream{symbol: symbol, interval: interval, delta: delta, bars: bars}, nil
}

func (s *RepositoryBarStream) Symbol() string     { return s.symbol }
func (s *RepositoryBarStream) StreamType() string { return "bar:" + s.interval }

// Next returns the next preloaded bar, or ok=false once exhausted.
func (s *RepositoryBarStream) Next(ctx context.Context) (InputEvent, bool, error) {
	if s.idx >= len(s.bars) {
		return InputEvent{}, false, nil
	}
	bar := s.bars[s.idx]
	s.idx++
	return InputEvent{
		Symbol: s.symbol, Interval: s.interval, Type: EventBar,
		Timestamp: bar.Timestamp, Bar: bar, Delta: s.delta,
	}, true, nil
}

// ChannelBarStream is a live InputStream fed by an external adapter
// pushing bars onto a channel; Close() signals exhaustion. One instance
// serves one (symbol, interval) edge.
type ChannelBarStream struct {
	symbol   string
	interval string
	delta    time.Duration
	ch       chan models.Bar
	closed   chan struct{}
}

// NewChannelBarStream constructs a live bar feed with the given buffer size.
func NewChannelBarStream(symbol, interval string, delta time.Duration, buffer int) *ChannelBarStream {
	return &ChannelBarStream{
		symbol: symbol, interval: interval, delta: delta,
		ch: make(chan models.Bar, buffer), closed: make(chan struct{}),
	}
}

// Push enqueues a bar from the external adapter; a send after Close is a
// no-op.
func (s *ChannelBarStream) Push(bar models.Bar) {
	select {
	case <-s.closed:
		return
	default:
	}
	select {
	case s.ch <- bar:
	case <-s.closed:
	}
}

// Close signals stream exhaustion (end of session / adapter disconnect).
func (s *ChannelBarStream) Close() {
	select {
	case <-s.closed:
	default:
		close(s.closed)
	}
}

func (s *ChannelBarStream) Symbol() string     { return s.symbol }
func (s *ChannelBarStream) StreamType() string { return "bar:" + s.interval }

func (s *ChannelBarStream) Next(ctx context.Context) (InputEvent, bool, error) {
	select {
	case bar, ok := <-s.ch:
		if !ok {
			return InputEvent{}, false, nil
		}
		return InputEvent{
			Symbol: s.symbol, Interval: s.interval, Type: EventBar,
			Timestamp: bar.Timestamp, Bar: bar, Delta: s.delta,
		}, true, nil
	case <-s.closed:
		return InputEvent{}, false, nil
	case <-ctx.Done():
		return InputEvent{}, false, ctx.Err()
	}
}
