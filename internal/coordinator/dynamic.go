package coordinator

import (
	"context"
	"fmt"
	"time"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/internal/telemetry"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// AddSymbol implements spec.md §4.5's mid-session dynamic add coordination:
// pause downstream notifications, run the Analyze -> Validate -> Provision
// protocol, register the new InputStream, then resume. A provisioning pass
// that exceeds catchup_threshold_seconds is abandoned with a warning
// rather than held open indefinitely, since the merge-yield loop must keep
// advancing the clock for every other symbol while this one is paused.
func (c *Coordinator) AddSymbol(ctx context.Context, symbol string, source models.SymbolSource, inputStream InputStream) error {
	if c.state.Load() != StateRunning {
		return models.NewError(models.KindLifecycle, "add_symbol", fmt.Errorf("session not running"))
	}

	started := time.Now()
	c.beginCatchup(symbol)
	defer c.endCatchup(symbol)

	req := c.deps.Provisioner.AnalyzeFullAdd(symbol, source)
	val := c.deps.Provisioner.Validate(ctx, req)
	if !val.CanProceed {
		telemetry.ObserveProvisioning("symbol", "rejected", time.Since(started))
		return models.NewError(models.KindValidation, "add_symbol", fmt.Errorf("%s: %s", symbol, val.Reason))
	}

	if err := c.deps.Provisioner.Provision(ctx, req); err != nil {
		telemetry.ObserveProvisioning("symbol", "error", time.Since(started))
		return err
	}

	if time.Since(started) > c.catchupThreshold {
		logger.Warn("coordinator: add_symbol exceeded catchup threshold, session continues without it",
			logger.String("symbol", symbol), logger.Duration("elapsed", time.Since(started)))
		c.deps.Provisioner.Remove(ctx, symbol)
		telemetry.ObserveProvisioning("symbol", "abandoned", time.Since(started))
		return models.NewError(models.KindOverrun, "add_symbol", fmt.Errorf("%s: provisioning exceeded catchup threshold", symbol))
	}

	if inputStream != nil {
		c.RegisterStream(inputStream)
	}

	c.streamsMu.Lock()
	c.loadedSymbols[symbol] = true
	c.streamsMu.Unlock()

	telemetry.ObserveProvisioning("symbol", "provisioned", time.Since(started))
	return nil
}

// AddIndicator implements the adhoc-add path of spec.md §4.5: a scanner or
// strategy requesting an indicator on a symbol it does not yet subscribe
// to at full session configuration.
func (c *Coordinator) AddIndicator(ctx context.Context, symbol string, cfg models.IndicatorConfig, source models.SymbolSource) error {
	if c.state.Load() != StateRunning {
		return models.NewError(models.KindLifecycle, "add_indicator", fmt.Errorf("session not running"))
	}

	started := time.Now()
	c.beginCatchup(symbol)
	defer c.endCatchup(symbol)

	req := c.deps.Provisioner.AnalyzeAdhocAdd(symbol, cfg, source)
	val := c.deps.Provisioner.Validate(ctx, req)
	if !val.CanProceed {
		telemetry.ObserveProvisioning("indicator", "rejected", time.Since(started))
		return models.NewError(models.KindValidation, "add_indicator", fmt.Errorf("%s: %s", symbol, val.Reason))
	}
	err := c.deps.Provisioner.Provision(ctx, req)
	if err != nil {
		telemetry.ObserveProvisioning("indicator", "error", time.Since(started))
		return err
	}
	telemetry.ObserveProvisioning("indicator", "provisioned", time.Since(started))
	return nil
}

// RemoveSymbol implements spec.md §4.5's immediate removal: no pause
// protocol, since tearing down a subscriber never risks the chronological
// merge invariant the way adding one does.
func (c *Coordinator) RemoveSymbol(ctx context.Context, symbol string) {
	c.deps.Provisioner.Remove(ctx, symbol)
	c.UnregisterStream(symbol)

	c.streamsMu.Lock()
	delete(c.loadedSymbols, symbol)
	delete(c.pendingSymbols, symbol)
	c.streamsMu.Unlock()
}

// beginCatchup marks symbol as pending and tells the Processor to drop its
// downstream fan-out while provisioning runs, per the
// "pause -> provision -> resume" sequence of spec.md §4.5.
func (c *Coordinator) beginCatchup(symbol string) {
	c.streamsMu.Lock()
	c.pendingSymbols[symbol] = true
	c.streamsMu.Unlock()
	c.deps.Processor.SetCatchingUp(true)
}

func (c *Coordinator) endCatchup(symbol string) {
	c.streamsMu.Lock()
	delete(c.pendingSymbols, symbol)
	stillPending := len(c.pendingSymbols) > 0
	c.streamsMu.Unlock()
	if !stillPending {
		c.deps.Processor.SetCatchingUp(false)
	}
}
