package analytics

import (
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"auction_go/internal/domain"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func near(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

// tradesAt builds one trade per (price, size) pair, a second apart.
func tradesAt(pairs ...float64) []domain.Trade {
	out := make([]domain.Trade, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, domain.Trade{
			Symbol: "BTCUSDT",
			Time:   t0.Add(time.Duration(i/2) * time.Second),
			Price:  pairs[i],
			Size:   pairs[i+1],
			Side:   domain.SideBuy,
		})
	}
	return out
}

func TestProfileFromTrades(t *testing.T) {
	opts := ProfileOptions{BucketWidth: 0.1}
	p, err := ProfileFromTrades("BTCUSDT", tradesAt(100.0, 5, 100.05, 3, 100.2, 2), opts)
	if err != nil {
		t.Fatalf("ProfileFromTrades failed: %v", err)
	}

	wantPrices := []float64{100.0, 100.1, 100.2}
	wantVols := []float64{8, 0, 2}
	if len(p.Levels) != len(wantPrices) {
		t.Fatalf("levels = %d, want %d (empty buckets included)", len(p.Levels), len(wantPrices))
	}
	for i, l := range p.Levels {
		if !near(l.Price, wantPrices[i]) || !near(l.Volume, wantVols[i]) {
			t.Errorf("level %d = %+v, want {%v %v}", i, l, wantPrices[i], wantVols[i])
		}
	}
	if p.TotalVolume != 10 || p.LastClose != 100.2 {
		t.Errorf("total=%v last=%v", p.TotalVolume, p.LastClose)
	}

	m := ComputeMetrics(p, opts)
	if !m.Valid || m.POC != 100.0 || m.VAL != 100.0 || m.VAH != 100.0 {
		t.Errorf("unexpected metrics %+v", m)
	}
	if len(m.LVNs) != 2 || !near(m.LVNs[0], 100.1) || !near(m.LVNs[1], 100.2) {
		t.Errorf("LVNs = %v", m.LVNs)
	}
	if len(m.HVNs) != 2 || m.HVNs[0] != 100.0 || !near(m.HVNs[1], 100.2) {
		t.Errorf("HVNs = %v", m.HVNs)
	}
}

func TestComputeMetrics_ValueArea(t *testing.T) {
	tests := []struct {
		name     string
		trades   []domain.Trade
		poc      float64
		val, vah float64
	}{
		{
			name:   "equal neighbours are taken together",
			trades: tradesAt(100, 1, 101, 2, 102, 5, 103, 2, 104, 1),
			poc:    102, val: 101, vah: 103,
		},
		{
			name:   "larger neighbour first",
			trades: tradesAt(100, 1, 101, 4, 102, 6, 103, 2, 104, 1),
			poc:    102, val: 101, vah: 102,
		},
		{
			name:   "POC tie goes to the bucket nearest the close",
			trades: tradesAt(100, 5, 101, 1, 102, 5),
			poc:    102, val: 100, vah: 102,
		},
		{
			name:   "equidistant POC tie goes to the lower price",
			trades: tradesAt(100, 5, 102, 5, 101, 1),
			poc:    100, val: 100, vah: 102,
		},
	}

	opts := ProfileOptions{BucketWidth: 1}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := ProfileFromTrades("X", tt.trades, opts)
			if err != nil {
				t.Fatal(err)
			}
			m := ComputeMetrics(p, opts)
			if m.POC != tt.poc || m.VAL != tt.val || m.VAH != tt.vah {
				t.Errorf("got POC=%v VAL=%v VAH=%v, want %v %v %v", m.POC, m.VAL, m.VAH, tt.poc, tt.val, tt.vah)
			}
			if !(m.VAL <= m.POC && m.POC <= m.VAH) {
				t.Errorf("VAL <= POC <= VAH violated: %+v", m)
			}
			if m.ValueAreaVolume < 0.7*m.TotalVolume {
				t.Errorf("value area holds %v of %v", m.ValueAreaVolume, m.TotalVolume)
			}
		})
	}
}

func TestProfile_Errors(t *testing.T) {
	t.Run("Invalid width", func(t *testing.T) {
		for _, w := range []float64{0, -1, math.NaN(), math.Inf(1)} {
			if _, err := ProfileFromTrades("X", tradesAt(100, 1), ProfileOptions{BucketWidth: w}); !errors.Is(err, domain.ErrInvalidBucketWidth) {
				t.Errorf("width %v: expected ErrInvalidBucketWidth, got %v", w, err)
			}
		}
	})

	t.Run("Too many buckets", func(t *testing.T) {
		_, err := ProfileFromTrades("X", tradesAt(1, 1, 100, 1), ProfileOptions{BucketWidth: 0.0001})
		if !errors.Is(err, domain.ErrProfileTooWide) {
			t.Errorf("expected ErrProfileTooWide, got %v", err)
		}
	})

	t.Run("Empty input", func(t *testing.T) {
		p, err := ProfileFromCandles("X", nil, ProfileOptions{BucketWidth: 1})
		if err != nil || !p.IsEmpty() {
			t.Fatalf("expected empty profile, got %+v %v", p, err)
		}
		if m := ComputeMetrics(p, ProfileOptions{}); m.Valid || m.POC != 0 {
			t.Errorf("empty profile must give invalid metrics, got %+v", m)
		}
	})
}

func TestProfileFromCandles_Apportion(t *testing.T) {
	c := domain.Candle{Symbol: "X", Start: t0, Interval: time.Minute, Open: 100, High: 102, Low: 100, Close: 102, Volume: 9}

	tests := []struct {
		mode Apportion
		want []float64
	}{
		{ApportionUniform, []float64{3, 3, 3}},
		{ApportionCloseWeighted, []float64{1.5, 3, 4.5}},
	}
	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			p, err := ProfileFromCandles("X", []domain.Candle{c}, ProfileOptions{BucketWidth: 1, Apportion: tt.mode})
			if err != nil {
				t.Fatal(err)
			}
			if len(p.Levels) != 3 {
				t.Fatalf("levels = %d", len(p.Levels))
			}
			var sum float64
			for i, l := range p.Levels {
				sum += l.Volume
				if !near(l.Volume, tt.want[i]) {
					t.Errorf("bucket %d volume = %v, want %v", i, l.Volume, tt.want[i])
				}
			}
			if !near(sum, c.Volume) {
				t.Errorf("apportioned %v of %v", sum, c.Volume)
			}
			if !p.WindowEnd.Equal(c.End()) {
				t.Errorf("window end = %v", p.WindowEnd)
			}
		})
	}
}

func TestComputeMetrics_Deterministic(t *testing.T) {
	trades := tradesAt(100, 3, 100.3, 7, 100.1, 2, 99.8, 4, 100.3, 1, 100.0, 6)
	opts := ProfileOptions{BucketWidth: 0.1}
	p1, _ := ProfileFromTrades("X", trades, opts)
	p2, _ := ProfileFromTrades("X", trades, opts)
	if !reflect.DeepEqual(p1, p2) {
		t.Fatalf("profiles differ across runs:\n%+v\n%+v", p1, p2)
	}

	levels := append([]domain.PriceLevel(nil), p1.Levels...)
	m1 := ComputeMetrics(p1, opts)
	m2 := ComputeMetrics(p1, opts)
	m3 := ComputeMetrics(p2, opts)
	if !reflect.DeepEqual(m1, m2) || !reflect.DeepEqual(m1, m3) {
		t.Errorf("metrics differ across runs:\n%+v\n%+v\n%+v", m1, m2, m3)
	}
	if !reflect.DeepEqual(levels, p1.Levels) {
		t.Error("ComputeMetrics modified the profile")
	}
	if m1.BucketWidth != 0.1 {
		t.Errorf("bucket width = %v, want 0.1", m1.BucketWidth)
	}
}

func BenchmarkProfileFromTrades(b *testing.B) {
	trades := make([]domain.Trade, 10_000)
	for i := range trades {
		trades[i] = domain.Trade{Time: t0.Add(time.Duration(i) * time.Millisecond), Price: 100 + float64(i%500)*0.01, Size: 1}
	}
	opts := ProfileOptions{BucketWidth: 0.05}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		p, _ := ProfileFromTrades("X", trades, opts)
		ComputeMetrics(p, opts)
	}
}
