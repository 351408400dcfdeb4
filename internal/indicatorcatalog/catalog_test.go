package indicatorcatalog

import (
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

func genBars(n int, startPrice float64) []models.Bar {
	t0 := time.Date(2026, 7, 29, 9, 30, 0, 0, time.UTC)
	bars := make([]models.Bar, 0, n)
	price := startPrice
	for i := 0; i < n; i++ {
		price += 0.25
		bars = append(bars, models.Bar{
			Symbol: "AAPL", Interval: "1m", Timestamp: t0.Add(time.Duration(i) * time.Minute),
			Open: big.NewDecimal(price - 0.1), High: big.NewDecimal(price + 0.2),
			Low: big.NewDecimal(price - 0.2), Close: big.NewDecimal(price), Volume: 1000 + int64(i),
		})
	}
	return bars
}

func TestCatalogHasBuiltins(t *testing.T) {
	c := New()
	for _, name := range []string{"sma", "ema", "rsi", "macd", "atr", "bollinger", "stochastic", "vwap", "price_change", "volume_sum", "high_low", "pivots"} {
		_, ok := c.Get(name)
		assert.True(t, ok, "expected catalog entry %q", name)
	}
}

func TestSMANotReadyBeforeWarmup(t *testing.T) {
	c := New()
	entry, _ := c.Get("sma")
	cfg := models.IndicatorConfig{Name: "sma", Period: 20, Interval: "1m"}

	res := entry.Compute(cfg, genBars(5, 100), nil)
	require.False(t, res.Ready, "expected not ready with fewer bars than the period")
}

func TestSMAReadyAfterWarmup(t *testing.T) {
	c := New()
	entry, _ := c.Get("sma")
	cfg := models.IndicatorConfig{Name: "sma", Period: 5, Interval: "1m"}

	res := entry.Compute(cfg, genBars(10, 100), nil)
	require.True(t, res.Ready, "expected ready with enough bars")
	require.NotNil(t, res.Value)
}

func TestVWAPWindow(t *testing.T) {
	c := New()
	entry, _ := c.Get("vwap")
	cfg := models.IndicatorConfig{Name: "vwap", Period: 5, Interval: "1m"}

	res := entry.Compute(cfg, genBars(10, 100), nil)
	require.True(t, res.Ready, "expected vwap ready")
	require.NotNil(t, res.Value)
	assert.Greater(t, *res.Value, 0.0, "expected positive vwap")
}

func TestPriceChangeRequiresTwoBars(t *testing.T) {
	c := New()
	entry, _ := c.Get("price_change")
	cfg := models.IndicatorConfig{Name: "price_change", Period: 5, Interval: "1m"}

	res := entry.Compute(cfg, genBars(1, 100), nil)
	assert.False(t, res.Ready, "expected not ready with a single bar")

	res = entry.Compute(cfg, genBars(5, 100), nil)
	assert.True(t, res.Ready, "expected ready with multiple bars")
}

func TestPivotsUsesLastBar(t *testing.T) {
	c := New()
	entry, _ := c.Get("pivots")
	cfg := models.IndicatorConfig{Name: "pivots", Interval: "1d"}

	res := entry.Compute(cfg, genBars(1, 100), nil)
	require.True(t, res.Ready, "expected pivots ready from a single bar")
	_, ok := res.Values["pp"]
	assert.True(t, ok, "expected pp value in pivots result")
}

func TestStochasticCarriesDWindow(t *testing.T) {
	c := New()
	entry, _ := c.Get("stochastic")
	cfg := models.IndicatorConfig{Name: "stochastic", Period: 5, Interval: "1m"}

	bars := genBars(10, 100)
	res := entry.Compute(cfg, bars, nil)
	require.True(t, res.Ready, "expected stochastic ready with enough bars")
	_, ok := res.Values["d"]
	assert.True(t, ok, "expected d value")

	// Feeding one more bar with the prior carry should still produce a
	// %D value smoothed over the rolling window.
	moreBars := genBars(11, 100)
	res2 := entry.Compute(cfg, moreBars, res.Carry)
	assert.True(t, res2.Ready, "expected stochastic ready on subsequent call")
}

func TestMACDValues(t *testing.T) {
	c := New()
	entry, _ := c.Get("macd")
	cfg := models.IndicatorConfig{Name: "macd", Period: 26, Interval: "1m"}

	res := entry.Compute(cfg, genBars(30, 100), nil)
	require.True(t, res.Ready, "expected macd ready with enough bars")
	for _, key := range []string{"macd", "signal", "histogram"} {
		_, ok := res.Values[key]
		assert.True(t, ok, "expected %q in macd result", key)
	}
}
