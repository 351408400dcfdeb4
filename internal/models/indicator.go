package models

// IndicatorState is the externally-visible state SessionData stores for
// one (indicator name, period, interval) key, e.g. "sma_20_5m". Carry
// holds a catalog entry's own recurrence state where the entry keeps one
// (the stochastic entry's recent %K values), so that state lives in
// SessionData and not inside a stateful calculator object. The SMA, EMA,
// RSI, MACD, ATR and Bollinger entries keep no carry: they recompute from
// the full bar series on every call.
type IndicatorState struct {
	Key      string
	Name     string
	Period   int
	Interval string

	// Value holds the scalar result, or nil for multi-value indicators
	// whose parts live in Values.
	Value *float64

	// Values holds named scalars for multi-value indicators (Bollinger
	// upper/middle/lower, MACD macd/signal/histogram, Stochastic k/d,
	// high/low, pivots pp/r1-r3/s1-s3).
	Values map[string]float64

	Ready bool
	Carry any
}

// NewIndicatorState constructs an empty, not-ready IndicatorState for key.
func NewIndicatorState(key, name string, period int, interval string) *IndicatorState {
	return &IndicatorState{
		Key:      key,
		Name:     name,
		Period:   period,
		Interval: interval,
		Values:   make(map[string]float64),
	}
}

// IndicatorKey builds the "name_period_interval" key convention.
func IndicatorKey(name string, period int, interval string) string {
	if period <= 0 {
		return name + "_" + interval
	}
	return name + "_" + itoa(period) + "_" + interval
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}
