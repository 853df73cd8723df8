package analytics

import "auction_go/internal/domain"

// DefaultRelVolumeLookback is the number of prior candles averaged for relative volume.
const DefaultRelVolumeLookback = 20

// RelativeVolume compares the last candle's volume with the mean of up to
// lookback candles before it.
func RelativeVolume(candles []domain.Candle, lookback int) (float64, bool) {
	if lookback <= 0 {
		lookback = DefaultRelVolumeLookback
	}
	if len(candles) < 2 {
		return 0, false
	}
	last := len(candles) - 1
	from := max(0, last-lookback)

	var sum float64
	for _, c := range candles[from:last] {
		sum += c.Volume
	}
	mean := sum / float64(last-from)
	if mean <= 0 {
		return 0, false
	}
	return candles[last].Volume / mean, true
}

// Closes extracts closing prices in order.
func Closes(candles []domain.Candle) []float64 {
	out := make([]float64, len(candles))
	for i, c := range candles {
		out[i] = c.Close
	}
	return out
}
