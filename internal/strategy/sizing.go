package strategy

import (
	"math"

	"github.com/shopspring/decimal"
)

// SizePosition returns floor((equity * riskPct) / |entry - stop|) rounded down
// to step, capped by what available capital can buy at entry. It does not gate
// eligibility; a zero result means the trade cannot be sized.
// The max_positions cap is the execution adapter's concern.
func SizePosition(equity decimal.Decimal, riskPct, entry, stop float64, available, step decimal.Decimal) decimal.Decimal {
	perUnit := math.Abs(entry - stop)
	if perUnit <= 0 || entry <= 0 || riskPct <= 0 || !equity.IsPositive() {
		return decimal.Zero
	}
	if !step.IsPositive() {
		step = decimal.NewFromInt(1)
	}

	risk := equity.Mul(decimal.NewFromFloat(riskPct))
	qty := risk.Div(decimal.NewFromFloat(perUnit))

	if available.IsPositive() {
		affordable := available.Div(decimal.NewFromFloat(entry))
		if affordable.LessThan(qty) {
			qty = affordable
		}
	} else {
		return decimal.Zero
	}

	return qty.Div(step).Floor().Mul(step)
}
