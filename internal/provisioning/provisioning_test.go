package provisioning

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
)

func newTestProvisioner(t *testing.T) (*Provisioner, *sessiondata.Store) {
	t.Helper()
	store := sessiondata.New()
	repo := barrepo.NewMemoryRepository()
	cal, err := calendar.NewNYSEService()
	require.NoError(t, err)
	cat := indicatorcatalog.New()
	cfg := Config{BaseInterval: "1m", DerivedIntervals: []string{"5m", "15m"}, TrailingDays: 30, WarmupDays: 2, Exchange: "NYSE"}
	p := New(store, repo, cal, cat, cfg, nil)
	p.nowFunc = func() time.Time { return time.Date(2026, 7, 29, 10, 0, 0, 0, time.UTC) }
	return p, store
}

func TestFullAddCreatesSymbolWithAllIntervals(t *testing.T) {
	p, store := newTestProvisioner(t)
	ctx := context.Background()

	req := p.AnalyzeFullAdd("AAPL", models.SourceStrategy)
	val := p.Validate(ctx, req)
	require.True(t, val.CanProceed, "expected full add to proceed, reason=%q", val.Reason)
	require.NoError(t, p.Provision(ctx, req))

	data, ok := store.GetSymbolData("AAPL")
	require.True(t, ok, "expected symbol registered")
	assert.True(t, data.MeetsSessionConfigRequirements, "expected full add to meet session config requirements")
	for _, ivl := range []string{"1m", "5m", "15m"} {
		_, ok := data.Bars[ivl]
		assert.True(t, ok, "expected interval %q to be provisioned", ivl)
	}
}

func TestAdhocThenFullUpgradePreservesAddedAtAndAutoProvisioned(t *testing.T) {
	p, store := newTestProvisioner(t)
	ctx := context.Background()

	adhocReq := p.AnalyzeAdhocAdd("TSLA", models.IndicatorConfig{Name: "sma", Period: 20, Interval: "5m"}, models.SourceScanner)
	val := p.Validate(ctx, adhocReq)
	require.True(t, val.CanProceed, "expected adhoc add to proceed")
	require.NoError(t, p.Provision(ctx, adhocReq), "Provision adhoc")

	data, _ := store.GetSymbolData("TSLA")
	assert.False(t, data.MeetsSessionConfigRequirements, "adhoc add must not meet session config requirements")
	assert.True(t, data.AutoProvisioned, "adhoc add must be auto_provisioned")
	addedAt := data.AddedAt

	p.nowFunc = func() time.Time { return time.Date(2026, 7, 29, 10, 15, 0, 0, time.UTC) }
	fullReq := p.AnalyzeFullAdd("TSLA", models.SourceStrategy)
	val = p.Validate(ctx, fullReq)
	require.True(t, val.CanProceed, "expected upgrade to proceed")
	require.NoError(t, p.Provision(ctx, fullReq), "Provision upgrade")

	data, _ = store.GetSymbolData("TSLA")
	assert.True(t, data.MeetsSessionConfigRequirements, "expected upgrade to set meets_session_config_requirements")
	assert.True(t, data.UpgradedFromAdhoc, "expected upgraded_from_adhoc true")
	assert.True(t, data.AutoProvisioned, "expected auto_provisioned preserved true after upgrade")
	assert.True(t, data.AddedAt.Equal(addedAt), "expected added_at unchanged, got %v want %v", data.AddedAt, addedAt)
}

func TestDuplicateFullAddRejected(t *testing.T) {
	p, store := newTestProvisioner(t)
	ctx := context.Background()
	store.RegisterSymbolData("MSFT", "1m", models.SourceConfig, time.Now())
	data, _ := store.GetSymbolData("MSFT")
	data.MeetsSessionConfigRequirements = true

	req := p.AnalyzeFullAdd("MSFT", models.SourceStrategy)
	val := p.Validate(ctx, req)
	assert.False(t, val.CanProceed, "expected duplicate full add to be rejected")
}

func TestDuplicateAdhocIndicatorRejected(t *testing.T) {
	p, store := newTestProvisioner(t)
	ctx := context.Background()
	store.RegisterSymbolData("NVDA", "1m", models.SourceScanner, time.Now())
	data, _ := store.GetSymbolData("NVDA")
	key := models.IndicatorKey("sma", 20, "5m")
	data.Indicators[key] = models.NewIndicatorState(key, "sma", 20, "5m")

	req := p.AnalyzeAdhocAdd("NVDA", models.IndicatorConfig{Name: "sma", Period: 20, Interval: "5m"}, models.SourceScanner)
	val := p.Validate(ctx, req)
	assert.False(t, val.CanProceed, "expected duplicate adhoc indicator to be rejected")
}

func TestRemoveDeletesSymbol(t *testing.T) {
	p, store := newTestProvisioner(t)
	store.RegisterSymbolData("GME", "1m", models.SourceConfig, time.Now())
	p.Remove(context.Background(), "GME")
	_, ok := store.GetSymbolData("GME")
	assert.False(t, ok, "expected symbol removed")
}
