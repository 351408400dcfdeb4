package indicatorcatalog

import (
	"time"

	"github.com/sdcoffey/big"
	"github.com/sdcoffey/techan"

	"github.com/yohannes916/mismartera-sub001/internal/models"
)

// buildSeries converts bars into a techan.TimeSeries, the same Bar->Candle
// shape as the teacher's TechanCalculator.Update, here rebuilt fresh per
// call since the catalog contract is a pure function of (config, bars,
// carry) rather than an incrementally updated calculator.
func buildSeries(bars []models.Bar) *techan.TimeSeries {
	series := techan.NewTimeSeries()
	for _, b := range bars {
		period := techan.NewTimePeriod(b.Timestamp, time.Minute)
		candle := techan.NewCandle(period)
		candle.OpenPrice = b.Open
		candle.MaxPrice = b.High
		candle.MinPrice = b.Low
		candle.ClosePrice = b.Close
		candle.Volume = big.NewDecimal(float64(b.Volume))
		series.AddCandle(candle)
	}
	return series
}

func lastValue(series *techan.TimeSeries, ind techan.Indicator, warmup int) (float64, bool) {
	lastIndex := series.LastIndex()
	if lastIndex < 0 || lastIndex+1 < warmup {
		return 0, false
	}
	v := ind.Calculate(lastIndex).Float()
	if v != v { // NaN
		return 0, false
	}
	return v, true
}

func computeSMATechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	closePrice := techan.NewClosePriceIndicator(series)
	sma := techan.NewMMAIndicator(closePrice, cfg.Period) // techan's MMA is a plain SMA
	v, ready := lastValue(series, sma, cfg.Period)
	return scalarResult(v, ready)
}

func computeEMATechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	closePrice := techan.NewClosePriceIndicator(series)
	ema := techan.NewEMAIndicator(closePrice, cfg.Period)
	v, ready := lastValue(series, ema, 1)
	return scalarResult(v, ready)
}

func computeRSITechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	closePrice := techan.NewClosePriceIndicator(series)
	rsi := techan.NewRelativeStrengthIndexIndicator(closePrice, cfg.Period)
	v, ready := lastValue(series, rsi, cfg.Period+1)
	return scalarResult(v, ready)
}

func computeMACDTechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	closePrice := techan.NewClosePriceIndicator(series)
	fast, slow := 12, 26
	if cfg.Period > 0 {
		slow = cfg.Period
		fast = cfg.Period / 2
		if fast < 1 {
			fast = 1
		}
	}
	macd := techan.NewMACDIndicator(closePrice, fast, slow)
	signal := techan.NewEMAIndicator(macd, 9) // signal line: EMA applied to the MACD line itself

	lastIndex := series.LastIndex()
	if lastIndex < 0 || lastIndex+1 < slow {
		return Result{Ready: false}
	}
	macdVal := macd.Calculate(lastIndex).Float()
	signalVal := signal.Calculate(lastIndex).Float()
	return Result{
		Values: map[string]float64{
			"macd":      macdVal,
			"signal":    signalVal,
			"histogram": macdVal - signalVal,
		},
		Ready: true,
	}
}

func computeATRTechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	atr := techan.NewAverageTrueRangeIndicator(series, cfg.Period)
	v, ready := lastValue(series, atr, cfg.Period)
	return scalarResult(v, ready)
}

// computeBollingerTechan uses NewBollingerUpperBandIndicator(sma, period,
// multiplier) the same way the teacher's CreateTechanBollingerBands does;
// the lower band is derived as the SMA's reflection of the upper band
// rather than calling an unconfirmed NewBollingerLowerBandIndicator.
func computeBollingerTechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	closePrice := techan.NewClosePriceIndicator(series)
	sma := techan.NewMMAIndicator(closePrice, cfg.Period)
	upper := techan.NewBollingerUpperBandIndicator(sma, cfg.Period, 2.0)

	lastIndex := series.LastIndex()
	if lastIndex < 0 || lastIndex+1 < cfg.Period {
		return Result{Ready: false}
	}
	middle := sma.Calculate(lastIndex).Float()
	upperVal := upper.Calculate(lastIndex).Float()
	return Result{
		Values: map[string]float64{
			"upper":  upperVal,
			"middle": middle,
			"lower":  2*middle - upperVal,
		},
		Ready: true,
	}
}

// stochasticCarry holds the %K window %D is smoothed over; %D has no
// confirmed techan constructor, so it is computed as a hand-rolled moving
// average of recent %K values, the same windowing technique
// computeVWAP/computePriceChange use.
type stochasticCarry struct {
	kWindow []float64
}

func computeStochasticTechan(cfg models.IndicatorConfig, bars []models.Bar, carry any) Result {
	series := buildSeries(bars)
	k := techan.NewFastStochasticIndicator(series, cfg.Period)

	lastIndex := series.LastIndex()
	if lastIndex < 0 || lastIndex+1 < cfg.Period {
		return Result{Ready: false, Carry: carry}
	}
	kVal := k.Calculate(lastIndex).Float()

	const dPeriod = 3
	prior, _ := carry.(*stochasticCarry)
	if prior == nil {
		prior = &stochasticCarry{}
	}
	window := append(append([]float64(nil), prior.kWindow...), kVal)
	if len(window) > dPeriod {
		window = window[len(window)-dPeriod:]
	}
	next := &stochasticCarry{kWindow: window}

	var dVal float64
	for _, v := range window {
		dVal += v
	}
	dVal /= float64(len(window))

	return Result{
		Values: map[string]float64{"k": kVal, "d": dVal},
		Ready:  true,
		Carry:  next,
	}
}

func scalarResult(v float64, ready bool) Result {
	if !ready {
		return Result{Ready: false}
	}
	val := v
	return Result{Value: &val, Ready: true}
}
