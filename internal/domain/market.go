package domain

import "time"

// PriceLevel is one bucket of a volume profile. Price is the bucket floor.
type PriceLevel struct {
	Price  float64 `json:"price"`
	Volume float64 `json:"volume"`
}

// VolumeProfile is a price-bucketed volume histogram for one window.
// Levels are contiguous and ascending, empty buckets included.
// It is recomputed per evaluation and never persisted.
type VolumeProfile struct {
	Symbol      string       `json:"symbol"`
	WindowStart time.Time    `json:"window_start"`
	WindowEnd   time.Time    `json:"window_end"`
	BucketWidth float64      `json:"bucket_width"`
	Levels      []PriceLevel `json:"levels"`
	TotalVolume float64      `json:"total_volume"`
	LastClose   float64      `json:"last_close"`
}

// IsEmpty reports whether the profile holds no volume (warm-up, no data yet).
func (p VolumeProfile) IsEmpty() bool {
	return len(p.Levels) == 0 || p.TotalVolume <= 0
}

// ProfileMetrics are the levels derived from a VolumeProfile.
// When Valid is false every other field is zero. Invariant: VAL <= POC <= VAH.
type ProfileMetrics struct {
	Valid           bool      `json:"valid"`
	POC             float64   `json:"poc"`
	VAH             float64   `json:"vah"`
	VAL             float64   `json:"val"`
	BucketWidth     float64   `json:"bucket_width"`
	LVNs            []float64 `json:"lvns"`
	HVNs            []float64 `json:"hvns"`
	TotalVolume     float64   `json:"total_volume"`
	ValueAreaVolume float64   `json:"value_area_volume"`
}

// AboveValue reports whether price is past the top edge of the VAH bucket.
// VAH and VAL are bucket floors, so a price inside the VAH bucket is still in value.
func (m ProfileMetrics) AboveValue(price float64) bool {
	if m.BucketWidth > 0 {
		return price >= m.VAH+m.BucketWidth
	}
	return price > m.VAH
}

// OrderFlowMetrics is the flow record for one time bucket.
// BuyPressurePct + SellPressurePct == 100. Approximate is set when the split
// comes from the OHLC heuristic or from tick-rule inferred sides.
type OrderFlowMetrics struct {
	Symbol          string    `json:"symbol"`
	BucketStart     time.Time `json:"bucket_start"`
	BuyVolume       float64   `json:"buy_volume"`
	SellVolume      float64   `json:"sell_volume"`
	Delta           float64   `json:"delta"`
	CumulativeDelta float64   `json:"cumulative_delta"`
	BuyPressurePct  float64   `json:"buy_pressure_pct"`
	SellPressurePct float64   `json:"sell_pressure_pct"`
	Approximate     bool      `json:"approximate"`
}

// FlowSummary aggregates a flow window for the classifier and scorer.
type FlowSummary struct {
	Records         []OrderFlowMetrics `json:"records"`
	CumulativeDelta float64            `json:"cumulative_delta"`
	TotalVolume     float64            `json:"total_volume"`
	Momentum        float64            `json:"momentum"`
	Approximate     bool               `json:"approximate"`
}

// Pressure returns cumulative delta over total volume, in [-1, 1].
func (f FlowSummary) Pressure() float64 {
	if f.TotalVolume <= 0 {
		return 0
	}
	return f.CumulativeDelta / f.TotalVolume
}

// Regime is the auction state of a market.
type Regime string

const (
	RegimeBalance       Regime = "BALANCE"
	RegimeImbalanceUp   Regime = "IMBALANCE_UP"
	RegimeImbalanceDown Regime = "IMBALANCE_DOWN"
)

// Direction returns the trade side implied by the regime (UNKNOWN for balance).
func (r Regime) Direction() Side {
	switch r {
	case RegimeImbalanceUp:
		return SideBuy
	case RegimeImbalanceDown:
		return SideSell
	default:
		return SideUnknown
	}
}

// MarketState is a point-in-time classification. Nothing carries over between calls.
type MarketState struct {
	Symbol      string    `json:"symbol"`
	Time        time.Time `json:"time"`
	Regime      Regime    `json:"state"`
	Confidence  float64   `json:"confidence"` // 0..100
	POC         float64   `json:"poc"`
	BalanceHigh float64   `json:"balance_high"`
	BalanceLow  float64   `json:"balance_low"`
	Momentum    float64   `json:"momentum"`
	CVDPressure float64   `json:"cvd_pressure"`
	Rule        string    `json:"rule"`
}

// Aggression is the aggressive-flow score for a window.
type Aggression struct {
	Score          float64 `json:"score"` // 0..100
	Direction      Side    `json:"direction"`
	IsAggressive   bool    `json:"is_aggressive"`
	RelativeVolume float64 `json:"relative_volume"`
	DeltaChange    float64 `json:"delta_change"`
	BuyPressurePct float64 `json:"buy_pressure_pct"`
}
