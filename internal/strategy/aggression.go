package strategy

import (
	"math"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
)

// AggressionParams tune the additive aggression score.
type AggressionParams struct {
	RelVolumeMultiple    float64 // +20 when relative volume reaches this multiple
	DeltaChangeThreshold float64 // +30 when |delta change| reaches this many units
	PressureThreshold    float64 // +20 when either side's pressure reaches this pct
	Cutoff               float64 // IsAggressive gate
	MomentumBuckets      int     // trailing buckets for delta change and pressure
}

// ScoreAggression rates how forcefully one side is dominating recent flow.
// Pressure and delta change are measured over the trailing MomentumBuckets.
func ScoreAggression(flows []domain.OrderFlowMetrics, relVolume float64, ap AggressionParams) domain.Aggression {
	n := ap.MomentumBuckets
	if n <= 0 {
		n = analytics.DefaultMomentumBuckets
	}
	recent := flows
	if len(recent) > n {
		recent = recent[len(recent)-n:]
	}

	var buy, sell float64
	for _, r := range recent {
		buy += r.BuyVolume
		sell += r.SellVolume
	}
	buyPct := 50.0
	if buy+sell > 0 {
		buyPct = 100 * buy / (buy + sell)
	}
	sellPct := 100 - buyPct
	change := analytics.DeltaMomentum(flows, n)

	var score float64
	if relVolume >= ap.RelVolumeMultiple {
		score += 20
	}
	if math.Abs(change) >= ap.DeltaChangeThreshold {
		score += 30
	}
	if buyPct >= ap.PressureThreshold || sellPct >= ap.PressureThreshold {
		score += 20
	}
	score = math.Min(100, score)

	buySide := buyPct >= ap.PressureThreshold || change >= ap.DeltaChangeThreshold
	sellSide := sellPct >= ap.PressureThreshold || change <= -ap.DeltaChangeThreshold
	dir := domain.SideUnknown
	switch {
	case buySide && !sellSide:
		dir = domain.SideBuy
	case sellSide && !buySide:
		dir = domain.SideSell
	}

	return domain.Aggression{
		Score:          score,
		Direction:      dir,
		IsAggressive:   score >= ap.Cutoff,
		RelativeVolume: relVolume,
		DeltaChange:    change,
		BuyPressurePct: buyPct,
	}
}
