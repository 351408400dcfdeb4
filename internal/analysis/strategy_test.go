package analysis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
)

type recordingStrategy struct {
	mu          sync.Mutex
	subs        []SubscriptionKey
	barCalls    int
	addedSymbol string
}

func (r *recordingStrategy) Name() string                          { return "recorder" }
func (r *recordingStrategy) GetSubscriptions() []SubscriptionKey    { return r.subs }
func (r *recordingStrategy) Setup(ctx context.Context) (bool, error) { return true, nil }
func (r *recordingStrategy) Teardown(ctx context.Context)           {}
func (r *recordingStrategy) OnBar(ctx context.Context, symbol, interval string, bars []models.Bar) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.barCalls++
}
func (r *recordingStrategy) OnIndicator(ctx context.Context, symbol, key string, value models.IndicatorState) {
}
func (r *recordingStrategy) OnSymbolAdded(symbol string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.addedSymbol = symbol
}

func (r *recordingStrategy) calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.barCalls
}

func TestStrategyManagerDispatchesToSubscriber(t *testing.T) {
	store := sessiondata.New()
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)
	store.AppendBar("AAPL", "1m", false, "", models.Bar{
		Symbol: "AAPL", Interval: "1m", Timestamp: open,
		Open: big.NewDecimal(10), High: big.NewDecimal(11), Low: big.NewDecimal(9), Close: big.NewDecimal(10.5),
	})

	sm := NewStrategyManager(store, stream.ModeDataDriven, 0)
	strat := &recordingStrategy{subs: []SubscriptionKey{{Symbol: "AAPL", Interval: "1m"}}}

	ok, err := sm.Register(context.Background(), strat)
	require.NoError(t, err, "register failed")
	require.True(t, ok, "register failed")

	sm.Dispatch(processor.DownstreamEvent{Symbol: "AAPL", Interval: "1m", Kind: processor.KindBars})

	assert.Equal(t, 1, strat.calls(), "expected exactly one OnBar call")
}

func TestStrategyManagerIgnoresUnrelatedSymbol(t *testing.T) {
	store := sessiondata.New()
	sm := NewStrategyManager(store, stream.ModeLive, 50*time.Millisecond)
	strat := &recordingStrategy{subs: []SubscriptionKey{{Symbol: "AAPL", Interval: "1m"}}}
	sm.Register(context.Background(), strat)

	sm.Dispatch(processor.DownstreamEvent{Symbol: "TSLA", Interval: "1m", Kind: processor.KindBars})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, strat.calls(), "expected no calls for an unrelated symbol")
}

func TestStrategyManagerNotifySymbolAdded(t *testing.T) {
	store := sessiondata.New()
	sm := NewStrategyManager(store, stream.ModeLive, 50*time.Millisecond)
	strat := &recordingStrategy{subs: []SubscriptionKey{{Symbol: "AAPL", Interval: "1m"}}}
	sm.Register(context.Background(), strat)

	sm.NotifySymbolAdded("TSLA")

	strat.mu.Lock()
	added := strat.addedSymbol
	strat.mu.Unlock()
	assert.Equal(t, "TSLA", added, "expected OnSymbolAdded(\"TSLA\")")
}
