package analytics

import "auction_go/internal/domain"

// InferSides fills UNKNOWN aggressor sides with the tick rule and returns a copy.
// An uptick is a buy and a downtick a sell. A zero tick repeats the previous
// inferred side. The first trade with no reference price stays UNKNOWN.
//
// This is an approximation (roughly 70-80% agreement with true aggressor data
// on equities); inferred trades are flagged so consumers can tell them apart.
func InferSides(trades []domain.Trade) []domain.Trade {
	out := make([]domain.Trade, len(trades))
	copy(out, trades)

	var lastPrice float64
	lastSide := domain.SideUnknown
	for i := range out {
		t := &out[i]
		if t.Side == domain.SideBuy || t.Side == domain.SideSell {
			lastPrice = t.Price
			lastSide = t.Side
			continue
		}
		if lastPrice > 0 {
			switch {
			case t.Price > lastPrice:
				t.Side = domain.SideBuy
			case t.Price < lastPrice:
				t.Side = domain.SideSell
			default:
				t.Side = lastSide
			}
		}
		if t.Side == "" {
			t.Side = domain.SideUnknown
		}
		if t.Side != domain.SideUnknown {
			t.Inferred = true
			lastSide = t.Side
		}
		lastPrice = t.Price
	}
	return out
}
