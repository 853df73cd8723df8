package strategy

import (
	"errors"
	"fmt"
	"math"
	"time"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
)

// Params is the per-symbol parameter set. It is passed into every evaluation
// explicitly; the strategy never reads environment or global state.
type Params struct {
	// Window
	Lookback       time.Duration `yaml:"lookback"`
	CandleInterval time.Duration `yaml:"candle_interval"`

	// Volume profile
	BucketWidth  float64 `yaml:"bucket_width"`
	Apportion    string  `yaml:"apportion"`
	ValueAreaPct float64 `yaml:"value_area_pct"`
	LVNRatio     float64 `yaml:"lvn_ratio"`

	// Market state classifier
	POCDistanceThreshold float64 `yaml:"poc_distance_threshold"`
	MomentumThreshold    float64 `yaml:"momentum_threshold"`
	CVDPressureThreshold float64 `yaml:"cvd_pressure_threshold"`
	LookbackPeriod       int     `yaml:"lookback_period"`

	// Aggressive flow scorer
	RelVolumeMultiple    float64 `yaml:"rel_volume_multiple"`
	RelVolumeLookback    int     `yaml:"rel_volume_lookback"`
	DeltaChangeThreshold float64 `yaml:"delta_change_threshold"`
	PressureThreshold    float64 `yaml:"pressure_threshold"`
	AggressionCutoff     float64 `yaml:"aggression_cutoff"`
	MomentumBuckets      int     `yaml:"momentum_buckets"`

	// Entry / exit
	MinAggressionScore     float64 `yaml:"min_aggression_score"`
	AllowBalanceTrades     bool    `yaml:"allow_balance_trades"`
	BalanceAggressionScore float64 `yaml:"balance_aggression_score"`
	ATRPeriod              int     `yaml:"atr_period"`
	ATRStopMultiplier      float64 `yaml:"atr_stop_multiplier"`
	ATRTargetMultiplier    float64 `yaml:"atr_target_multiplier"`
	ExitOnOppositeState    bool    `yaml:"exit_on_opposite_state"`

	// Sizing
	RiskPerTradePct float64 `yaml:"risk_per_trade_pct"`
}

// DefaultParams returns the baseline parameter set.
func DefaultParams() Params {
	return Params{
		Lookback:       60 * time.Minute,
		CandleInterval: analytics.DefaultCandleInterval,

		BucketWidth:  0.10,
		Apportion:    string(analytics.ApportionUniform),
		ValueAreaPct: analytics.DefaultValueAreaPct,
		LVNRatio:     analytics.DefaultLVNRatio,

		POCDistanceThreshold: 0.002,
		MomentumThreshold:    0.003,
		CVDPressureThreshold: 0.25,
		LookbackPeriod:       10,

		RelVolumeMultiple:    2.0,
		RelVolumeLookback:    analytics.DefaultRelVolumeLookback,
		DeltaChangeThreshold: 1000,
		PressureThreshold:    70,
		AggressionCutoff:     50,
		MomentumBuckets:      analytics.DefaultMomentumBuckets,

		MinAggressionScore:     70,
		AllowBalanceTrades:     false,
		BalanceAggressionScore: 80,
		ATRPeriod:              analytics.DefaultATRPeriod,
		ATRStopMultiplier:      1.5,
		ATRTargetMultiplier:    3.0,
		ExitOnOppositeState:    false,

		RiskPerTradePct: 0.01,
	}
}

// Validate rejects out-of-range values. Errors are *domain.ConfigError.
func (p Params) Validate() error {
	positive := []struct {
		field string
		v     float64
	}{
		{"bucket_width", p.BucketWidth},
		{"poc_distance_threshold", p.POCDistanceThreshold},
		{"momentum_threshold", p.MomentumThreshold},
		{"cvd_pressure_threshold", p.CVDPressureThreshold},
		{"rel_volume_multiple", p.RelVolumeMultiple},
		{"delta_change_threshold", p.DeltaChangeThreshold},
		{"atr_stop_multiplier", p.ATRStopMultiplier},
		{"atr_target_multiplier", p.ATRTargetMultiplier},
		{"risk_per_trade_pct", p.RiskPerTradePct},
	}
	for _, f := range positive {
		if !(f.v > 0) || math.IsInf(f.v, 0) {
			return &domain.ConfigError{Field: f.field, Err: fmt.Errorf("must be positive, got %v", f.v)}
		}
	}

	scores := []struct {
		field string
		v     float64
	}{
		{"pressure_threshold", p.PressureThreshold},
		{"aggression_cutoff", p.AggressionCutoff},
		{"min_aggression_score", p.MinAggressionScore},
		{"balance_aggression_score", p.BalanceAggressionScore},
	}
	for _, f := range scores {
		if f.v < 0 || f.v > 100 {
			return &domain.ConfigError{Field: f.field, Err: fmt.Errorf("must be within [0,100], got %v", f.v)}
		}
	}

	switch {
	case p.Lookback <= 0:
		return &domain.ConfigError{Field: "lookback", Err: errors.New("must be positive")}
	case p.CandleInterval <= 0:
		return &domain.ConfigError{Field: "candle_interval", Err: errors.New("must be positive")}
	case p.Lookback < p.CandleInterval:
		return &domain.ConfigError{Field: "lookback", Err: errors.New("must cover at least one candle")}
	case p.CVDPressureThreshold > 1:
		return &domain.ConfigError{Field: "cvd_pressure_threshold", Err: errors.New("must be within (0,1]")}
	case p.ValueAreaPct <= 0 || p.ValueAreaPct > 1:
		return &domain.ConfigError{Field: "value_area_pct", Err: errors.New("must be within (0,1]")}
	case p.LVNRatio <= 0:
		return &domain.ConfigError{Field: "lvn_ratio", Err: errors.New("must be positive")}
	case p.RiskPerTradePct > 1:
		return &domain.ConfigError{Field: "risk_per_trade_pct", Err: errors.New("must be within (0,1]")}
	case p.LookbackPeriod < 2:
		return &domain.ConfigError{Field: "lookback_period", Err: errors.New("must be at least 2")}
	case p.ATRPeriod < 1:
		return &domain.ConfigError{Field: "atr_period", Err: errors.New("must be at least 1")}
	case p.RelVolumeLookback < 1:
		return &domain.ConfigError{Field: "rel_volume_lookback", Err: errors.New("must be at least 1")}
	case p.MomentumBuckets < 1:
		return &domain.ConfigError{Field: "momentum_buckets", Err: errors.New("must be at least 1")}
	}

	switch analytics.Apportion(p.Apportion) {
	case analytics.ApportionUniform, analytics.ApportionCloseWeighted:
	default:
		return &domain.ConfigError{Field: "apportion", Err: fmt.Errorf("unknown mode %q", p.Apportion)}
	}
	return nil
}

func (p Params) profileOptions() analytics.ProfileOptions {
	return analytics.ProfileOptions{
		BucketWidth:  p.BucketWidth,
		Apportion:    analytics.Apportion(p.Apportion),
		ValueAreaPct: p.ValueAreaPct,
		LVNRatio:     p.LVNRatio,
	}
}

// Thresholds returns the classifier view of the params.
func (p Params) Thresholds() Thresholds {
	return Thresholds{
		POCDistance:    p.POCDistanceThreshold,
		Momentum:       p.MomentumThreshold,
		CVDPressure:    p.CVDPressureThreshold,
		LookbackPeriod: p.LookbackPeriod,
	}
}

// AggressionParams returns the scorer view of the params.
func (p Params) AggressionParams() AggressionParams {
	return AggressionParams{
		RelVolumeMultiple:    p.RelVolumeMultiple,
		DeltaChangeThreshold: p.DeltaChangeThreshold,
		PressureThreshold:    p.PressureThreshold,
		Cutoff:               p.AggressionCutoff,
		MomentumBuckets:      p.MomentumBuckets,
	}
}
