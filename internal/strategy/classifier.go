package strategy

import (
	"fmt"
	"math"
	"time"

	"auction_go/internal/domain"
)

// Thresholds tune the market state classifier. They are tuned per symbol and
// regime, so they always come from configuration.
type Thresholds struct {
	POCDistance    float64 // |price-poc|/poc below this counts as "at value"
	Momentum       float64 // normalized price slope over LookbackPeriod
	CVDPressure    float64 // |cvd| / window volume
	LookbackPeriod int     // closes used for the slope
}

// Classify labels the auction state with a fixed rule order, first match wins:
//
//  1. price near POC and inside the value area    -> BALANCE
//  2. momentum above threshold and price above VAH -> IMBALANCE_UP
//  3. momentum below -threshold and price below VAL -> IMBALANCE_DOWN
//  4. CVD pressure beyond threshold                 -> IMBALANCE in its direction
//  5. otherwise                                      -> BALANCE
//
// An invalid profile returns BALANCE with confidence 0. Classify keeps no state.
func Classify(symbol string, at time.Time, price float64, pm domain.ProfileMetrics, history []float64, flow domain.FlowSummary, th Thresholds) domain.MarketState {
	st := domain.MarketState{
		Symbol: symbol,
		Time:   at,
		Regime: domain.RegimeBalance,
	}
	if !pm.Valid || pm.POC <= 0 || price <= 0 {
		st.Rule = "no_profile"
		return st
	}
	st.POC = pm.POC
	st.BalanceHigh = pm.VAH
	st.BalanceLow = pm.VAL

	momentum := PriceMomentum(history, th.LookbackPeriod)
	pressure := flow.Pressure()
	st.Momentum = momentum
	st.CVDPressure = pressure

	dist := math.Abs(price-pm.POC) / pm.POC
	inValue := price >= pm.VAL && !pm.AboveValue(price)

	switch {
	case dist < th.POCDistance && inValue:
		st.Rule = "at_poc"
		st.Confidence = 50 + 50*(1-ratio(dist, th.POCDistance))

	case momentum > th.Momentum && pm.AboveValue(price):
		top := pm.VAH + pm.BucketWidth
		st.Regime = domain.RegimeImbalanceUp
		st.Rule = "breakout_above_vah"
		st.Confidence = breakoutConfidence(momentum, (price-top)/top, pressure, th)

	case momentum < -th.Momentum && price < pm.VAL:
		st.Regime = domain.RegimeImbalanceDown
		st.Rule = "breakdown_below_val"
		st.Confidence = breakoutConfidence(-momentum, (pm.VAL-price)/pm.VAL, -pressure, th)

	case math.Abs(pressure) > th.CVDPressure:
		st.Regime = domain.RegimeImbalanceUp
		if pressure < 0 {
			st.Regime = domain.RegimeImbalanceDown
		}
		st.Rule = "cvd_pressure"
		st.Confidence = 30 + 40*ratio(math.Abs(pressure)-th.CVDPressure, th.CVDPressure)

	default:
		st.Rule = "fallback"
		st.Confidence = 20
	}
	st.Confidence = math.Min(100, math.Max(0, st.Confidence))
	return st
}

// breakoutConfidence scales each triggering condition by how far it cleared
// its threshold. Inputs are oriented so positive means "in the breakout direction".
func breakoutConfidence(momentum, outside, pressure float64, th Thresholds) float64 {
	m := ratio(momentum-th.Momentum, th.Momentum)
	b := ratio(outside, th.POCDistance)
	var c float64
	if pressure > 0 {
		c = ratio(pressure, th.CVDPressure)
	}
	return 40 + 20*(m+b+c)
}

// ratio is v/limit clamped to [0,1].
func ratio(v, limit float64) float64 {
	if limit <= 0 {
		return 1
	}
	return math.Min(1, math.Max(0, v/limit))
}

// PriceMomentum is the least-squares slope of the last lookback closes,
// scaled to the move across the window as a fraction of the mean price.
// Fewer than two points yield zero.
func PriceMomentum(history []float64, lookback int) float64 {
	if lookback > 0 && len(history) > lookback {
		history = history[len(history)-lookback:]
	}
	n := len(history)
	if n < 2 {
		return 0
	}

	var sumX, sumY, sumXY, sumXX float64
	for i, y := range history {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	fn := float64(n)
	denom := fn*sumXX - sumX*sumX
	mean := sumY / fn
	if denom == 0 || mean == 0 {
		return 0
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	return slope * (fn - 1) / mean
}

func describeState(st domain.MarketState) string {
	return fmt.Sprintf("%s(%s conf=%.0f)", st.Regime, st.Rule, st.Confidence)
}
