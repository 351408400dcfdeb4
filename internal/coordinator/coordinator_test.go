package coordinator

import (
	"context"
	"testing"
	"time"

	"github.com/sdcoffey/big"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/analysis"
	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/processor"
	"github.com/yohannes916/mismartera-sub001/internal/provisioning"
	"github.com/yohannes916/mismartera-sub001/internal/quality"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/internal/stream"
)

func TestStreamKeyLessTieBreak(t *testing.T) {
	a := streamKey{Symbol: "AAPL", StreamType: "bar:1m"}
	b := streamKey{Symbol: "MSFT", StreamType: "bar:1m"}
	assert.True(t, a.less(b), "expected AAPL < MSFT")
	assert.False(t, b.less(a), "expected MSFT not < AAPL")
	c := streamKey{Symbol: "AAPL", StreamType: "bar:5m"}
	assert.True(t, a.less(c), "expected bar:1m < bar:5m for the same symbol")
}

func bar(symbol string, ts time.Time, close float64) models.Bar {
	return models.Bar{
		Symbol: symbol, Interval: "1m", Timestamp: ts,
		Open: big.NewDecimal(close), High: big.NewDecimal(close + 1),
		Low: big.NewDecimal(close - 1), Close: big.NewDecimal(close), Volume: 100,
	}
}

// testHarness wires a full Coordinator against in-memory fakes, grounded
// on internal/provisioning's own test harness.
type testHarness struct {
	coord *Coordinator
	store *sessiondata.Store
	repo  *barrepo.MemoryRepository
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	store := sessiondata.New()
	repo := barrepo.NewMemoryRepository()
	cal, err := calendar.NewNYSEService()
	require.NoError(t, err, "calendar")
	catalog := indicatorcatalog.New()

	procCfg := processor.Config{BaseInterval: "1m"}
	proc, err := processor.New(store, catalog, procCfg, stream.ModeDataDriven)
	require.NoError(t, err, "processor.New")

	qm := quality.New(store, repo, cal, "NYSE", models.GapFillerConfig{}, nil)

	strategies := analysis.NewStrategyManager(store, stream.ModeDataDriven, 2*time.Second)
	scanners := analysis.NewScannerManager()
	engine := analysis.New(strategies, scanners, stream.ModeDataDriven)
	proc.SetAnalysisSubscription(engine.Subscription())

	prov := provisioning.New(store, repo, cal, catalog, provisioning.Config{
		BaseInterval: "1m", Exchange: "NYSE",
	}, nil)

	coord := New(Deps{
		Store: store, Repo: repo, Calendar: cal,
		Processor: proc, Quality: qm, Engine: engine, Provisioner: prov,
	})

	return &testHarness{coord: coord, store: store, repo: repo}
}

// a known non-holiday NYSE weekday.
const testSessionDate = "2024-01-16"

func TestMergeYieldChronologicalOrderAcrossSymbols(t *testing.T) {
	h := newTestHarness(t)

	open := time.Date(2024, 1, 16, 9, 30, 0, 0, mustNYLoc(t))
	aBars := []models.Bar{
		bar("AAPL", open, 100),
		bar("AAPL", open.Add(2*time.Minute), 101),
	}
	mBars := []models.Bar{
		bar("MSFT", open.Add(time.Minute), 200),
		bar("MSFT", open.Add(3*time.Minute), 201),
	}

	h.repo.Seed("AAPL", "1m", aBars)
	h.repo.Seed("MSFT", "1m", mBars)

	ctx := context.Background()
	aStream, err := NewRepositoryBarStream(ctx, h.repo, "AAPL", "1m", time.Minute, open, open.Add(10*time.Minute))
	require.NoError(t, err, "NewRepositoryBarStream")
	mStream, err := NewRepositoryBarStream(ctx, h.repo, "MSFT", "1m", time.Minute, open, open.Add(10*time.Minute))
	require.NoError(t, err, "NewRepositoryBarStream")
	h.coord.RegisterStream(aStream)
	h.coord.RegisterStream(mStream)

	cfg := &models.SessionConfig{
		SessionName:   "test",
		Mode:          models.ModeBacktest,
		ExchangeGroup: "NYSE",
		SessionDataConfig: models.SessionDataConfig{
			Symbols:      []string{"AAPL", "MSFT"},
			BaseInterval: "1m",
		},
		BacktestConfig: &models.BacktestConfig{StartDate: testSessionDate, SpeedMultiplier: 0},
	}

	require.NoError(t, h.coord.StartWithConfig(ctx, cfg))

	deadline := time.Now().Add(2 * time.Second)
	for h.coord.GetState().State != "stopped" && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, "stopped", h.coord.GetState().State, "session did not reach end-of-session teardown in time")

	data, ok := h.store.GetSymbolData("AAPL")
	require.True(t, ok, "AAPL missing from session data")
	series, ok := data.Bars["1m"]
	require.True(t, ok && len(series.Bars) == 2, "expected 2 AAPL bars, got %+v", series)
	assert.True(t, series.Bars[0].Timestamp.Before(series.Bars[1].Timestamp), "AAPL bars not chronological: %+v", series.Bars)
}

func mustNYLoc(t *testing.T) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation("America/New_York")
	require.NoError(t, err, "load America/New_York")
	return loc
}
