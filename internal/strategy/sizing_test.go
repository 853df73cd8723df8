package strategy

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestSizePosition(t *testing.T) {
	d := decimal.RequireFromString
	tests := []struct {
		name        string
		equity      string
		riskPct     float64
		entry, stop float64
		available   string
		step        string
		want        string
	}{
		{"risk bound", "10000", 0.01, 100, 98, "10000", "0.0001", "50"},
		{"cash bound", "10000", 0.01, 100, 98, "1000", "0.0001", "10"},
		{"short stop above entry", "10000", 0.01, 100, 102, "10000", "0.0001", "50"},
		{"rounded down to step", "10000", 0.01, 100, 97, "10000", "1", "33"},
		{"fractional step", "10000", 0.01, 100, 97, "10000", "0.01", "33.33"},
		{"stop equals entry", "10000", 0.01, 100, 100, "10000", "1", "0"},
		{"no capital", "10000", 0.01, 100, 98, "0", "1", "0"},
		{"no equity", "0", 0.01, 100, 98, "10000", "1", "0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SizePosition(d(tt.equity), tt.riskPct, tt.entry, tt.stop, d(tt.available), d(tt.step))
			if !got.Equal(d(tt.want)) {
				t.Errorf("SizePosition = %s, want %s", got, tt.want)
			}
		})
	}
}
