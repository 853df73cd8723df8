package strategy

import (
	"errors"
	"testing"
	"time"

	"auction_go/internal/domain"
)

func TestParams_Validate(t *testing.T) {
	if err := DefaultParams().Validate(); err != nil {
		t.Fatalf("defaults must be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Params)
		field  string
	}{
		{"zero bucket width", func(p *Params) { p.BucketWidth = 0 }, "bucket_width"},
		{"negative stop multiplier", func(p *Params) { p.ATRStopMultiplier = -1 }, "atr_stop_multiplier"},
		{"score above 100", func(p *Params) { p.PressureThreshold = 120 }, "pressure_threshold"},
		{"lookback shorter than a candle", func(p *Params) { p.Lookback = 30 * time.Second }, "lookback"},
		{"pressure threshold above 1", func(p *Params) { p.CVDPressureThreshold = 1.5 }, "cvd_pressure_threshold"},
		{"risk above 100%", func(p *Params) { p.RiskPerTradePct = 2 }, "risk_per_trade_pct"},
		{"one-point slope", func(p *Params) { p.LookbackPeriod = 1 }, "lookback_period"},
		{"unknown apportion", func(p *Params) { p.Apportion = "vwap" }, "apportion"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams()
			tt.mutate(&p)
			err := p.Validate()
			var cfgErr *domain.ConfigError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("expected ConfigError, got %v", err)
			}
			if cfgErr.Field != tt.field {
				t.Errorf("field = %q, want %q", cfgErr.Field, tt.field)
			}
		})
	}
}
