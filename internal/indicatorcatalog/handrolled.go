package indicatorcatalog

import (
	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// windowSince returns the suffix of bars covering cfg.Period bars (or all
// of bars if shorter), mirroring the teacher's VWAP/PriceChange
// time-window filtering but expressed as a bar-count window since the
// catalog already receives the full accumulated series each call.
func windowSince(bars []models.Bar, period int) []models.Bar {
	if period <= 0 || period >= len(bars) {
		return bars
	}
	return bars[len(bars)-period:]
}

// computeVWAP is the volume-weighted average price over the last
// cfg.Period bars, grounded on the teacher's VWAP typical-price formula
// ((high+low+close)/3).
func computeVWAP(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	window := windowSince(bars, cfg.Period)
	if len(window) == 0 {
		return Result{Ready: false}
	}

	var totalPV float64
	var totalVol int64
	for _, b := range window {
		typical := (b.High.Float() + b.Low.Float() + b.Close.Float()) / 3.0
		totalPV += typical * float64(b.Volume)
		totalVol += b.Volume
	}
	if totalVol == 0 {
		return Result{Ready: false}
	}
	v := totalPV / float64(totalVol)
	return scalarResult(v, true)
}

// computePriceChange is the percentage change between the oldest and
// newest bar in the window, grounded on the teacher's PriceChange.
func computePriceChange(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	window := windowSince(bars, cfg.Period)
	if len(window) < 2 {
		return Result{Ready: false}
	}
	oldest, newest := window[0], window[len(window)-1]
	oldClose := oldest.Close.Float()
	if oldClose == 0 {
		return Result{Ready: false}
	}
	change := ((newest.Close.Float() - oldClose) / oldClose) * 100.0
	return scalarResult(change, true)
}

// computeVolumeSum sums volume over the window.
func computeVolumeSum(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	window := windowSince(bars, cfg.Period)
	if len(window) == 0 {
		return Result{Ready: false}
	}
	var sum int64
	for _, b := range window {
		sum += b.Volume
	}
	return scalarResult(float64(sum), true)
}

// computeHighLow reports the session high/low across the window.
func computeHighLow(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	window := windowSince(bars, cfg.Period)
	if len(window) == 0 {
		return Result{Ready: false}
	}
	high, low := window[0].High.Float(), window[0].Low.Float()
	for _, b := range window[1:] {
		if h := b.High.Float(); h > high {
			high = h
		}
		if l := b.Low.Float(); l < low {
			low = l
		}
	}
	return Result{Values: map[string]float64{"high": high, "low": low}, Ready: true}
}

// computePivots computes classic floor-trader pivot points from the most
// recently completed bar in the window (typically the prior day's bar when
// the catalog entry is configured on a daily interval).
func computePivots(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	if len(bars) == 0 {
		return Result{Ready: false}
	}
	last := bars[len(bars)-1]
	high, low, close := last.High.Float(), last.Low.Float(), last.Close.Float()

	pp := (high + low + close) / 3.0
	r1 := 2*pp - low
	s1 := 2*pp - high
	r2 := pp + (high - low)
	s2 := pp - (high - low)
	r3 := high + 2*(pp-low)
	s3 := low - 2*(high-pp)

	return Result{
		Values: map[string]float64{
			"pp": pp, "r1": r1, "r2": r2, "r3": r3, "s1": s1, "s2": s2, "s3": s3,
		},
		Ready: true,
	}
}
