package processor

import (
	"time"

	"github.com/sdcoffey/big"

	"github.com/yohannes916/mismartera-sub001/internal/models"
	"github.com/yohannes916/mismartera-sub001/pkg/logger"
)

// synthesizeDerived emits every derived bar whose bucket has just closed,
// smallest configured interval first (the progressive rule of spec.md
// §4.2: "5m bars can appear before 15m bars").
func (p *Processor) synthesizeDerived(symbol string) {
	data, ok := p.store.GetSymbolData(symbol)
	if !ok {
		return
	}
	base, ok := data.Bars[p.baseInterval]
	if !ok || len(base.Bars) == 0 {
		return
	}
	latest, _ := base.LastBar()

	for _, spec := range p.derived {
		derived := data.EnsureInterval(spec.Name, true, p.baseInterval)

		bucketStart := alignBucket(latest.Timestamp, p.sessionOpen, spec.Duration)
		bucketEnd := bucketStart.Add(spec.Duration)
		if !latest.Timestamp.Add(p.baseDuration).Equal(bucketEnd) {
			continue // latest is not yet the bucket's last base bar
		}
		if bucketStart.Before(p.sessionOpen) {
			continue // no full bucket before the session opened
		}
		if derived.HasEmittedBucket(bucketStart) {
			continue
		}

		agg, ok := aggregateBucket(base.Bars, bucketStart, bucketEnd)
		if !ok {
			continue
		}
		derived.BucketEmitted(bucketStart)

		if err := p.store.AppendBar(symbol, spec.Name, true, p.baseInterval, agg); err != nil {
			logger.Warn("processor: derived bar append failed",
				logger.String("symbol", symbol), logger.String("interval", spec.Name), logger.ErrorField(err))
			continue
		}
		p.emit(DownstreamEvent{Symbol: symbol, Interval: spec.Name, Kind: KindBars})
	}
}

// alignBucket floors t to the nearest multiple of dur measured from
// origin, i.e. the start of the bucket t currently falls in.
func alignBucket(t, origin time.Time, dur time.Duration) time.Time {
	elapsed := t.Sub(origin)
	n := elapsed / dur
	return origin.Add(n * dur)
}

// aggregateBucket folds every base bar in [start, end) into one OHLCV
// bar: open = first.open, close = last.close, high = max, low = min,
// volume = sum, timestamp = first.timestamp (spec.md §4.2).
func aggregateBucket(bars []models.Bar, start, end time.Time) (models.Bar, bool) {
	var (
		first, last models.Bar
		high, low   float64
		volume      int64
		found       bool
	)
	for _, b := range bars {
		if b.Timestamp.Before(start) || !b.Timestamp.Before(end) {
			continue
		}
		if !found {
			first = b
			high = b.High.Float()
			low = b.Low.Float()
			found = true
		}
		if h := b.High.Float(); h > high {
			high = h
		}
		if l := b.Low.Float(); l < low {
			low = l
		}
		volume += b.Volume
		last = b
	}
	if !found {
		return models.Bar{}, false
	}
	return models.Bar{
		Symbol:    first.Symbol,
		Interval:  "", // caller names the bar by the target interval via AppendBar
		Timestamp: first.Timestamp,
		Open:      first.Open,
		High:      big.NewDecimal(high),
		Low:       big.NewDecimal(low),
		Close:     last.Close,
		Volume:    volume,
	}, true
}
