package processor

import (
	"context"
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
)

func mkBar(symbol string, ts time.Time, price float64) models.Bar {
	return models.Bar{
		Symbol: symbol, Interval: "1m", Timestamp: ts,
		Open: big.NewDecimal(price), High: big.NewDecimal(price + 0.5), Low: big.NewDecimal(price - 0.5),
		Close: big.NewDecimal(price + 0.1), Volume: 100,
	}
}

func newTestProcessor(t *testing.T, sessionOpen time.Time) (*Processor, *sessiondata.Store) {
	return newTestProcessorMode(t, sessionOpen, stream.ModeLive)
}

func newTestProcessorMode(t *testing.T, sessionOpen time.Time, mode stream.Mode) (*Processor, *sessiondata.Store) {
	t.Helper()
	store := sessiondata.New()
	catalog := indicatorcatalog.New()
	cfg := Config{
		BaseInterval:     "1m",
		DerivedIntervals: []string{"5m", "15m"},
		Indicators: []models.IndicatorConfig{
			{Name: "sma", Period: 3, Interval: "1m"},
		},
	}
	p, err := New(store, catalog, cfg, mode)
	require.NoError(t, err)
	p.SetSessionOpen(sessionOpen)
	return p, store
}

func TestDerivedBarEmittedOnBoundary(t *testing.T) {
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	p, store := newTestProcessor(t, open)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)

	for i := 0; i < 5; i++ {
		bar := mkBar("AAPL", open.Add(time.Duration(i)*time.Minute), 100+float64(i))
		require.NoError(t, store.AppendBar("AAPL", "1m", false, "", bar), "append bar %d", i)
		p.synthesizeDerived("AAPL")
	}

	data, _ := store.GetSymbolData("AAPL")
	fiveMin, ok := data.Bars["5m"]
	require.True(t, ok && len(fiveMin.Bars) == 1, "expected one closed 5m bar after 5 base bars, got %+v", fiveMin)
	assert.True(t, fiveMin.Bars[0].Timestamp.Equal(open), "expected 5m bar timestamped at session open, got %v", fiveMin.Bars[0].Timestamp)
	assert.Equal(t, int64(500), fiveMin.Bars[0].Volume, "expected summed volume 500")
}

func TestDerivedBarNotEmittedBeforeBoundary(t *testing.T) {
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	p, store := newTestProcessor(t, open)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)

	for i := 0; i < 3; i++ {
		bar := mkBar("AAPL", open.Add(time.Duration(i)*time.Minute), 100)
		store.AppendBar("AAPL", "1m", false, "", bar)
		p.synthesizeDerived("AAPL")
	}

	data, _ := store.GetSymbolData("AAPL")
	if fiveMin, ok := data.Bars["5m"]; ok {
		assert.Empty(t, fiveMin.Bars, "expected no closed 5m bar before the boundary")
	}
}

func TestIndicatorRecomputeBecomesReady(t *testing.T) {
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	p, store := newTestProcessor(t, open)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)

	for i := 0; i < 3; i++ {
		bar := mkBar("AAPL", open.Add(time.Duration(i)*time.Minute), 100+float64(i))
		store.AppendBar("AAPL", "1m", false, "", bar)
		p.recomputeIndicators("AAPL", "1m")
	}

	data, _ := store.GetSymbolData("AAPL")
	key := models.IndicatorKey("sma", 3, "1m")
	state, ok := data.Indicators[key]
	require.True(t, ok && state.Ready, "expected sma indicator ready after warmup, got %+v", state)
}

func TestCatchupGatingDropsDownstreamEvents(t *testing.T) {
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	p, store := newTestProcessor(t, open)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)
	p.SetCatchingUp(true)

	bar := mkBar("AAPL", open, 100)
	store.AppendBar("AAPL", "1m", false, "", bar)
	p.process(Notification{Symbol: "AAPL", Interval: "1m", Timestamp: open})

	select {
	case evt := <-p.Downstream():
		t.Fatalf("expected no downstream event during catchup, got %+v", evt)
	default:
	}
}

func TestRunProcessesNotificationAndSignalsReady(t *testing.T) {
	open := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	p, store := newTestProcessorMode(t, open, stream.ModeDataDriven)
	store.RegisterSymbolData("AAPL", "1m", models.SourceConfig, open)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Run(ctx)

	bar := mkBar("AAPL", open, 100)
	store.AppendBar("AAPL", "1m", false, "", bar)
	p.Notify(Notification{Symbol: "AAPL", Interval: "1m", Timestamp: open})

	done := make(chan bool, 1)
	go func() { done <- p.Subscription().WaitUntilReady(0) }()

	select {
	case ok := <-done:
		assert.True(t, ok, "expected true once the processor signals ready")
	case <-time.After(time.Second):
		t.Fatal("expected processor to signal ready after processing a notification")
	}
}
