package analytics

import (
	"math"

	"auction_go/internal/domain"
)

// DefaultATRPeriod is the Wilder smoothing period.
const DefaultATRPeriod = 14

// ATR computes Wilder's average true range over the candles, returning the
// value at the last candle. It needs period+1 candles; otherwise ok is false.
func ATR(candles []domain.Candle, period int) (float64, bool) {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	if len(candles) < period+1 {
		return 0, false
	}

	trueRange := func(i int) float64 {
		h, l, pc := candles[i].High, candles[i].Low, candles[i-1].Close
		return math.Max(h-l, math.Max(math.Abs(h-pc), math.Abs(l-pc)))
	}

	// seed with the SMA of the first period true ranges
	var atr float64
	for i := 1; i <= period; i++ {
		atr += trueRange(i)
	}
	atr /= float64(period)

	n := float64(period)
	for i := period + 1; i < len(candles); i++ {
		atr = (atr*(n-1) + trueRange(i)) / n
	}
	if atr <= 0 || math.IsNaN(atr) {
		return 0, false
	}
	return atr, true
}
