// Package provisioning implements the unified three-phase dynamic symbol
// management protocol of spec.md §4.5: Analyze -> Validate -> Provision.
// Grounded on the teacher's internal/scanner/rehydration.go shape ("fetch
// historical bars, replay into calculators" at worker restart), generalized
// here from restart rehydration to mid-session symbol provisioning — both
// need "fetch historical bars, warm indicator state, mark ready".
package provisioning

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/yohannes916/mismartera-sub001/internal/barrepo"
	"github.com/yohannes916/mismartera-sub001/internal/calendar"
	"github.com/yohannes916/mismartera-sub001/internal/indicatorcatalog"
	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/sessiondata"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// OperationType names what kind of provisioning request is being analyzed.
type OperationType string

const (
	OperationSymbol    OperationType = "symbol"
	OperationIndicator OperationType = "indicator"
	OperationBar       OperationType = "bar"
)

// Step is one ordered unit of provisioning work.
type Step string

const (
	StepCreateSymbol      Step = "create_symbol"
	StepUpgradeSymbol     Step = "upgrade_symbol"
	StepAddInterval       Step = "add_interval"
	StepLoadHistorical    Step = "load_historical"
	StepLoadSession       Step = "load_session"
	StepRegisterIndicator Step = "register_indicator"
	StepCalculateQuality  Step = "calculate_quality"
)

// Requirements is ProvisioningRequirements from spec.md §4.5, the output
// of the Analyze phase.
type Requirements struct {
	OperationType                  OperationType
	Symbol                         string
	Source                         models.SymbolSource
	SymbolExists                   bool
	RequiredIntervals              []string
	HistoricalDays                 int
	WarmupDays                     int
	NeedsSession                   bool
	IndicatorConfig                *models.IndicatorConfig
	MeetsSessionConfigRequirements bool
	AutoProvisioned                bool
	ProvisioningSteps              []Step

	// isUpgrade and isDuplicateFull/isDuplicateAdhoc carry Validate's
	// classification forward to Provision without re-deriving it.
	isUpgrade        bool
	isDuplicateFull  bool
	isDuplicateAdhoc bool
}

// ValidationResult is SymbolValidationResult from spec.md §4.5, the
// output of the Validate phase.
type ValidationResult struct {
	CanProceed          bool
	Reason              string
	DataSourceAvailable bool
	HasHistoricalData   bool
}

// Config bundles the session-wide provisioning parameters pulled from
// SessionConfig (spec.md §4.5: full adds use TrailingDays, adhoc adds use
// WarmupDays, and every configured derived interval is added on a full
// add).
type Config struct {
	BaseInterval     string
	DerivedIntervals []string
	TrailingDays     int
	WarmupDays       int
	Exchange         string
}

// Provisioner drives the Analyze -> Validate -> Provision pipeline for one
// session. redisClient may be nil, in which case _pending_symbols
// bookkeeping stays process-local only.
type Provisioner struct {
	store    *sessiondata.Store
	repo     barrepo.Repository
	cal      calendar.Service
	catalog  *indicatorcatalog.Catalog
	cfg      Config
	redis    *redis.Client
	nowFunc  func() time.Time
}

// New constructs a Provisioner.
func New(store *sessiondata.Store, repo barrepo.Repository, cal calendar.Service, catalog *indicatorcatalog.Catalog, cfg Config, redisClient *redis.Client) *Provisioner {
	return &Provisioner{
		store:   store,
		repo:    repo,
		cal:     cal,
		catalog: catalog,
		cfg:     cfg,
		redis:   redisClient,
		nowFunc: time.Now,
	}
}

// AnalyzeFullAdd builds Requirements for a full add: a strategy adding a
// symbol mid-session, or the config-declared universe at startup.
func (p *Provisioner) AnalyzeFullAdd(symbol string, source models.SymbolSource) Requirements {
	existing, exists := p.store.GetSymbolData(symbol)

	req := Requirements{
		OperationType:                  OperationSymbol,
		Symbol:                         symbol,
		Source:                         source,
		SymbolExists:                   exists,
		RequiredIntervals:              append([]string{p.cfg.BaseInterval}, p.cfg.DerivedIntervals...),
		HistoricalDays:                 p.cfg.TrailingDays,
		WarmupDays:                     0,
		NeedsSession:                   true,
		MeetsSessionConfigRequirements: true,
		AutoProvisioned:                false,
	}

	if exists && !existing.MeetsSessionConfigRequirements {
		req.isUpgrade = true
		req.AutoProvisioned = true // preserved per spec.md §4.5
		req.ProvisioningSteps = []Step{StepUpgradeSymbol, StepAddInterval, StepLoadHistorical, StepCalculateQuality}
	} else if exists {
		req.isDuplicateFull = true
	} else {
		req.ProvisioningSteps = []Step{StepCreateSymbol, StepAddInterval, StepLoadHistorical, StepLoadSession, StepCalculateQuality}
	}
	return req
}

// AnalyzeAdhocAdd builds Requirements for an adhoc add: a scanner
// requesting an indicator on a new symbol mid-session. If interval is a
// derived interval, its base interval is added implicitly per spec.md
// §4.5.
func (p *Provisioner) AnalyzeAdhocAdd(symbol string, indicatorCfg models.IndicatorConfig, source models.SymbolSource) Requirements {
	existing, exists := p.store.GetSymbolData(symbol)

	intervals := []string{p.cfg.BaseInterval}
	if indicatorCfg.Interval != "" && indicatorCfg.Interval != p.cfg.BaseInterval {
		intervals = append(intervals, indicatorCfg.Interval)
	}

	req := Requirements{
		OperationType:                  OperationIndicator,
		Symbol:                         symbol,
		Source:                         source,
		SymbolExists:                   exists,
		RequiredIntervals:              intervals,
		HistoricalDays:                 0,
		WarmupDays:                     p.cfg.WarmupDays,
		NeedsSession:                   true,
		IndicatorConfig:                &indicatorCfg,
		MeetsSessionConfigRequirements: false,
		AutoProvisioned:                true,
	}

	if exists {
		key := models.IndicatorKey(indicatorCfg.Name, indicatorCfg.Period, indicatorCfg.Interval)
		if _, ok := existing.Indicators[key]; ok {
			req.isDuplicateAdhoc = true
		}
		req.ProvisioningSteps = []Step{StepAddInterval, StepLoadHistorical, StepRegisterIndicator}
	} else {
		req.ProvisioningSteps = []Step{StepCreateSymbol, StepAddInterval, StepLoadHistorical, StepRegisterIndicator}
	}
	return req
}

// Validate runs the duplicate-detection and data-availability checks of
// spec.md §4.5, the Validate phase.
func (p *Provisioner) Validate(ctx context.Context, req Requirements) ValidationResult {
	if req.isDuplicateFull {
		return ValidationResult{CanProceed: false, Reason: "symbol already meets full session configuration requirements"}
	}
	if req.isDuplicateAdhoc {
		return ValidationResult{CanProceed: false, Reason: "adhoc indicator already present for symbol"}
	}

	hasHistorical := true
	if req.HistoricalDays > 0 || req.WarmupDays > 0 {
		days := req.HistoricalDays
		if days == 0 {
			days = req.WarmupDays
		}
		start, end := p.lookbackWindow(days)
		bars, err := p.repo.GetBars(ctx, req.Symbol, p.cfg.BaseInterval, start, end)
		if err != nil || len(bars) == 0 {
			hasHistorical = false
		}
	}

	return ValidationResult{
		CanProceed:          true,
		DataSourceAvailable: true,
		HasHistoricalData:   hasHistorical,
	}
}

// Provision executes req's ordered ProvisioningSteps against SessionData,
// implementing the upgrade path (added_at never rewritten, auto_provisioned
// preserved, upgraded_from_adhoc set true) exactly as spec.md §4.5
// describes.
func (p *Provisioner) Provision(ctx context.Context, req Requirements) error {
	addedAt := p.nowFunc()

	for _, step := range req.ProvisioningSteps {
		switch step {
		case StepCreateSymbol:
			p.store.RegisterSymbolData(req.Symbol, p.cfg.BaseInterval, req.Source, addedAt)

		case StepUpgradeSymbol:
			data, ok := p.store.GetSymbolData(req.Symbol)
			if !ok {
				return models.NewError(models.KindValidation, "provision.upgrade_symbol", models.ErrSymbolNotFound)
			}
			data.MeetsSessionConfigRequirements = true
			data.UpgradedFromAdhoc = true
			// auto_provisioned is preserved as true for record keeping;
			// added_at is never rewritten (spec.md §4.5).

		case StepAddInterval:
			data, ok := p.store.GetSymbolData(req.Symbol)
			if !ok {
				return models.NewError(models.KindValidation, "provision.add_interval", models.ErrSymbolNotFound)
			}
			for _, ivl := range req.RequiredIntervals {
				derived := ivl != p.cfg.BaseInterval
				base := ""
				if derived {
					base = p.cfg.BaseInterval
				}
				data.EnsureInterval(ivl, derived, base)
			}

		case StepLoadHistorical:
			days := req.HistoricalDays
			if days == 0 {
				days = req.WarmupDays
			}
			if days <= 0 {
				continue
			}
			start, end := p.lookbackWindow(days)
			for _, ivl := range req.RequiredIntervals {
				bars, err := p.repo.GetBars(ctx, req.Symbol, ivl, start, end)
				if err != nil {
					logger.Warn("provisioning: load_historical failed",
						logger.String("symbol", req.Symbol), logger.String("interval", ivl), logger.ErrorField(err))
					continue
				}
				derived := ivl != p.cfg.BaseInterval
				base := ""
				if derived {
					base = p.cfg.BaseInterval
				}
				if err := p.store.AddBarsBatch(req.Symbol, ivl, derived, base, bars, sessiondata.ModeAppend); err != nil {
					logger.Warn("provisioning: add_bars_batch failed", logger.ErrorField(err))
				}
			}

		case StepLoadSession:
			// Session-to-date bars for a full add arrive through the
			// Coordinator's merge-yield loop once the symbol is live;
			// nothing to backfill here beyond the historical window
			// already loaded above.

		case StepRegisterIndicator:
			if req.IndicatorConfig == nil {
				continue
			}
			cfg := *req.IndicatorConfig
			key := models.IndicatorKey(cfg.Name, cfg.Period, cfg.Interval)
			entry, ok := p.catalog.Get(cfg.Name)
			if !ok {
				return models.NewError(models.KindValidation, "provision.register_indicator", fmt.Errorf("unknown indicator %q", cfg.Name))
			}
			data, ok := p.store.GetSymbolData(req.Symbol)
			if !ok {
				return models.NewError(models.KindValidation, "provision.register_indicator", models.ErrSymbolNotFound)
			}
			var bars []models.Bar
			if series, ok := data.Bars[cfg.Interval]; ok {
				bars = series.Bars
			}
			result := entry.Compute(cfg, bars, nil)
			state := models.NewIndicatorState(key, cfg.Name, cfg.Period, cfg.Interval)
			state.Value, state.Values, state.Ready, state.Carry = result.Value, result.Values, result.Ready, result.Carry
			if err := p.store.SetIndicatorValue(req.Symbol, key, state); err != nil {
				return models.NewError(models.KindValidation, "provision.register_indicator", err)
			}

		case StepCalculateQuality:
			// Quality is computed by internal/quality.Manager when it is
			// next notified for the interval; provisioning only needs to ensure the
			// interval series exist (StepAddInterval, above) so the
			// Manager finds something to measure.
		}
	}

	data, ok := p.store.GetSymbolData(req.Symbol)
	if ok {
		data.MeetsSessionConfigRequirements = req.MeetsSessionConfigRequirements || data.MeetsSessionConfigRequirements
		if !req.isUpgrade && !data.UpgradedFromAdhoc {
			data.AutoProvisioned = req.AutoProvisioned
		}
	}

	p.recordPending(ctx, req.Symbol, false)
	return nil
}

// Remove implements spec.md §4.5's immediate symbol removal: delete from
// SessionData (routing-table and queue cleanup is the caller's
// responsibility, since those tables belong to the Coordinator/
// StrategyManager, not to SessionData).
func (p *Provisioner) Remove(ctx context.Context, symbol string) {
	p.store.RemoveSymbol(symbol)
	p.recordPending(ctx, symbol, true)
}

func (p *Provisioner) lookbackWindow(days int) (time.Time, time.Time) {
	end := p.nowFunc()
	start := end.AddDate(0, 0, -days)
	return start, end
}

const pendingSymbolsKey = "provisioning:pending_symbols"

// recordPending maintains the cross-process _pending_symbols visibility
// set in Redis; a nil client keeps this process-local only.
func (p *Provisioner) recordPending(ctx context.Context, symbol string, remove bool) {
	if p.redis == nil {
		return
	}
	var err error
	if remove {
		err = p.redis.SRem(ctx, pendingSymbolsKey, symbol).Err()
	} else {
		err = p.redis.SAdd(ctx, pendingSymbolsKey, symbol).Err()
	}
	if err != nil {
		logger.Warn("provisioning: redis pending-symbols update failed", logger.ErrorField(err))
	}
}
