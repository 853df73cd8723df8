package analytics

import (
	"time"

	"auction_go/internal/domain"
)

// DefaultMomentumBuckets is the trailing sub-window used for delta momentum.
const DefaultMomentumBuckets = 5

// FlowFromTrades builds one flow record per interval bucket from trades.
// Unknown sides are inferred with the tick rule first; a trade whose side is
// still unknown is split evenly. Cumulative delta starts at zero for the window.
func FlowFromTrades(symbol string, trades []domain.Trade, interval time.Duration) []domain.OrderFlowMetrics {
	if len(trades) == 0 || interval <= 0 {
		return nil
	}
	sided := InferSides(trades)

	var out []domain.OrderFlowMetrics
	var cur *domain.OrderFlowMetrics
	for _, t := range sided {
		start := t.Time.UTC().Truncate(interval)
		if cur == nil || !start.Equal(cur.BucketStart) {
			out = append(out, domain.OrderFlowMetrics{Symbol: symbol, BucketStart: start})
			cur = &out[len(out)-1]
		}
		switch t.Side {
		case domain.SideBuy:
			cur.BuyVolume += t.Size
		case domain.SideSell:
			cur.SellVolume += t.Size
		default:
			cur.BuyVolume += t.Size / 2
			cur.SellVolume += t.Size / 2
			cur.Approximate = true
		}
		if t.Inferred {
			cur.Approximate = true
		}
	}
	accumulate(out)
	return out
}

// FlowFromCandles builds one flow record per candle. Candles that carry an
// aggressor split use it. Otherwise the OHLC heuristic applies and the record
// is marked Approximate: an up candle is buy-dominant with the buy share rising
// as the close nears the high, a down candle is its mirror, a flat candle is 50/50.
func FlowFromCandles(symbol string, candles []domain.Candle) []domain.OrderFlowMetrics {
	if len(candles) == 0 {
		return nil
	}
	out := make([]domain.OrderFlowMetrics, 0, len(candles))
	for _, c := range candles {
		rec := domain.OrderFlowMetrics{Symbol: symbol, BucketStart: c.Start}
		if c.HasSideVolume() {
			rec.BuyVolume = c.BuyVolume
			rec.SellVolume = c.SellVolume
		} else {
			buyFrac := heuristicBuyFraction(c)
			rec.BuyVolume = c.Volume * buyFrac
			rec.SellVolume = c.Volume - rec.BuyVolume
			rec.Approximate = true
		}
		out = append(out, rec)
	}
	accumulate(out)
	return out
}

func heuristicBuyFraction(c domain.Candle) float64 {
	rng := c.High - c.Low
	if rng <= 0 || c.Close == c.Open {
		return 0.5
	}
	pos := clamp((c.Close-c.Low)/rng, 0, 1)
	if c.Close > c.Open {
		return 0.5 + 0.5*pos
	}
	return 0.5 * pos
}

// accumulate fills delta, the running cumulative delta and pressures in order.
func accumulate(recs []domain.OrderFlowMetrics) {
	var cum float64
	for i := range recs {
		r := &recs[i]
		r.Delta = r.BuyVolume - r.SellVolume
		cum += r.Delta
		r.CumulativeDelta = cum
		total := r.BuyVolume + r.SellVolume
		if total > 0 {
			r.BuyPressurePct = 100 * r.BuyVolume / total
		} else {
			r.BuyPressurePct = 50
		}
		r.SellPressurePct = 100 - r.BuyPressurePct
	}
}

// DeltaMomentum is the change in cumulative delta over the trailing n buckets,
// i.e. the sum of their deltas.
func DeltaMomentum(recs []domain.OrderFlowMetrics, n int) float64 {
	if len(recs) == 0 {
		return 0
	}
	if n <= 0 {
		n = DefaultMomentumBuckets
	}
	end := recs[len(recs)-1].CumulativeDelta
	if n >= len(recs) {
		return end
	}
	return end - recs[len(recs)-1-n].CumulativeDelta
}

// Summarize folds flow records into the window summary.
func Summarize(recs []domain.OrderFlowMetrics, momentumBuckets int) domain.FlowSummary {
	s := domain.FlowSummary{Records: recs}
	if len(recs) == 0 {
		return s
	}
	for _, r := range recs {
		s.TotalVolume += r.BuyVolume + r.SellVolume
		if r.Approximate {
			s.Approximate = true
		}
	}
	s.CumulativeDelta = recs[len(recs)-1].CumulativeDelta
	s.Momentum = DeltaMomentum(recs, momentumBuckets)
	return s
}

// ComputeFlow prefers tick-derived flow and falls back to candle-only
// approximation when the window has no trades.
func ComputeFlow(symbol string, candles []domain.Candle, trades []domain.Trade, interval time.Duration, momentumBuckets int) domain.FlowSummary {
	if len(trades) > 0 {
		return Summarize(FlowFromTrades(symbol, trades, interval), momentumBuckets)
	}
	return Summarize(FlowFromCandles(symbol, candles), momentumBuckets)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
