// Package analytics holds the pure numeric engines: volume profile, order flow,
// candle aggregation and volatility. Nothing here performs I/O, logs or reads
// the clock, so live and replay paths get identical results for identical input.
package analytics

import (
	"fmt"
	"math"

	"auction_go/internal/domain"
)

const (
	// DefaultValueAreaPct is the share of volume the value area must hold.
	DefaultValueAreaPct = 0.70
	// DefaultLVNRatio flags buckets below this fraction of the mean bucket volume.
	DefaultLVNRatio = 0.70
	// MaxProfileBuckets bounds the dense histogram for a single window.
	MaxProfileBuckets = 200_000
)

// Apportion selects how candle volume is spread across its high-low range.
type Apportion string

const (
	// ApportionUniform spreads volume evenly over every bucket in [low, high].
	ApportionUniform Apportion = "uniform"
	// ApportionCloseWeighted weights buckets linearly toward the close.
	ApportionCloseWeighted Apportion = "close_weighted"
)

// ProfileOptions configures profile construction and level extraction.
type ProfileOptions struct {
	BucketWidth  float64
	Apportion    Apportion
	ValueAreaPct float64
	LVNRatio     float64
}

func (o ProfileOptions) withDefaults() ProfileOptions {
	if o.Apportion == "" {
		o.Apportion = ApportionUniform
	}
	if o.ValueAreaPct <= 0 || o.ValueAreaPct > 1 {
		o.ValueAreaPct = DefaultValueAreaPct
	}
	if o.LVNRatio <= 0 {
		o.LVNRatio = DefaultLVNRatio
	}
	return o
}

func validWidth(width float64) error {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return fmt.Errorf("%w: %v", domain.ErrInvalidBucketWidth, width)
	}
	return nil
}

// bucketIndex maps a price to floor(price / width). The epsilon absorbs
// representation error so 100.0 / 0.1 lands in bucket 1000, not 999.
func bucketIndex(price, width float64) int64 {
	return int64(math.Floor(price/width + 1e-9))
}

func bucketPrice(idx int64, width float64) float64 {
	return math.Round(float64(idx)*width*1e9) / 1e9
}

// histogram is a dense, contiguous bucket array starting at minIdx.
type histogram struct {
	minIdx int64
	vols   []float64
}

func newHistogram(minIdx, maxIdx int64) (*histogram, error) {
	span := maxIdx - minIdx + 1
	if span > MaxProfileBuckets {
		return nil, fmt.Errorf("%w: %d buckets", domain.ErrProfileTooWide, span)
	}
	return &histogram{minIdx: minIdx, vols: make([]float64, span)}, nil
}

func (h *histogram) add(idx int64, vol float64) {
	h.vols[idx-h.minIdx] += vol
}

func (h *histogram) toProfile(p *domain.VolumeProfile, width float64) {
	p.Levels = make([]domain.PriceLevel, len(h.vols))
	var total float64
	for i, v := range h.vols {
		p.Levels[i] = domain.PriceLevel{Price: bucketPrice(h.minIdx+int64(i), width), Volume: v}
		total += v
	}
	p.TotalVolume = total
}

// ProfileFromTrades buckets each trade's size at its price.
// Empty input yields an empty profile and no error.
func ProfileFromTrades(symbol string, trades []domain.Trade, opts ProfileOptions) (domain.VolumeProfile, error) {
	profile := domain.VolumeProfile{Symbol: symbol, BucketWidth: opts.BucketWidth}
	if err := validWidth(opts.BucketWidth); err != nil {
		return profile, err
	}
	if len(trades) == 0 {
		return profile, nil
	}
	width := opts.BucketWidth

	minIdx, maxIdx := int64(math.MaxInt64), int64(math.MinInt64)
	for _, t := range trades {
		idx := bucketIndex(t.Price, width)
		minIdx = min(minIdx, idx)
		maxIdx = max(maxIdx, idx)
	}
	h, err := newHistogram(minIdx, maxIdx)
	if err != nil {
		return profile, err
	}
	for _, t := range trades {
		if t.Size <= 0 {
			continue
		}
		h.add(bucketIndex(t.Price, width), t.Size)
	}
	h.toProfile(&profile, width)
	profile.WindowStart = trades[0].Time
	profile.WindowEnd = trades[len(trades)-1].Time
	profile.LastClose = trades[len(trades)-1].Price
	return profile, nil
}

// ProfileFromCandles apportions each candle's volume across its high-low range.
// Empty input yields an empty profile and no error.
func ProfileFromCandles(symbol string, candles []domain.Candle, opts ProfileOptions) (domain.VolumeProfile, error) {
	opts = opts.withDefaults()
	profile := domain.VolumeProfile{Symbol: symbol, BucketWidth: opts.BucketWidth}
	if err := validWidth(opts.BucketWidth); err != nil {
		return profile, err
	}
	if len(candles) == 0 {
		return profile, nil
	}
	width := opts.BucketWidth

	minIdx, maxIdx := int64(math.MaxInt64), int64(math.MinInt64)
	for _, c := range candles {
		lo, hi := candleRange(c, width)
		minIdx = min(minIdx, lo)
		maxIdx = max(maxIdx, hi)
	}
	h, err := newHistogram(minIdx, maxIdx)
	if err != nil {
		return profile, err
	}
	for _, c := range candles {
		if c.Volume <= 0 {
			continue
		}
		lo, hi := candleRange(c, width)
		apportion(h, c, lo, hi, width, opts.Apportion)
	}
	h.toProfile(&profile, width)
	last := candles[len(candles)-1]
	profile.WindowStart = candles[0].Start
	profile.WindowEnd = last.End()
	profile.LastClose = last.Close
	return profile, nil
}

func candleRange(c domain.Candle, width float64) (int64, int64) {
	lo := bucketIndex(math.Min(c.Low, c.High), width)
	hi := bucketIndex(math.Max(c.Low, c.High), width)
	return lo, hi
}

func apportion(h *histogram, c domain.Candle, lo, hi int64, width float64, mode Apportion) {
	n := hi - lo + 1
	if n == 1 {
		h.add(lo, c.Volume)
		return
	}
	if mode != ApportionCloseWeighted {
		share := c.Volume / float64(n)
		for idx := lo; idx <= hi; idx++ {
			h.add(idx, share)
		}
		return
	}

	// triangular weights peaking at the close bucket
	closeIdx := min(max(bucketIndex(c.Close, width), lo), hi)
	var sumW float64
	for idx := lo; idx <= hi; idx++ {
		sumW += float64(n - absInt(idx-closeIdx))
	}
	for idx := lo; idx <= hi; idx++ {
		h.add(idx, c.Volume*float64(n-absInt(idx-closeIdx))/sumW)
	}
}

func absInt(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

// ComputeMetrics derives POC, value area, LVNs and HVNs from a profile.
// An empty profile returns zero metrics with Valid == false.
//
// POC ties go to the bucket nearest the last close, then to the lower price.
// The value area grows from the POC toward the larger neighbour; equal
// neighbours are both taken in the same step.
func ComputeMetrics(p domain.VolumeProfile, opts ProfileOptions) domain.ProfileMetrics {
	opts = opts.withDefaults()
	if p.IsEmpty() {
		return domain.ProfileMetrics{}
	}
	levels := p.Levels
	n := len(levels)

	closeIdx := 0
	if p.BucketWidth > 0 {
		closeIdx = int(bucketIndex(p.LastClose, p.BucketWidth) - bucketIndex(levels[0].Price, p.BucketWidth))
	}
	poc := 0
	for i := 1; i < n; i++ {
		v, best := levels[i].Volume, levels[poc].Volume
		if v > best {
			poc = i
			continue
		}
		if v == best && abs(i-closeIdx) < abs(poc-closeIdx) {
			poc = i
		}
	}

	target := p.TotalVolume * opts.ValueAreaPct
	lo, hi := poc, poc
	acc := levels[poc].Volume
	for acc < target && (lo > 0 || hi < n-1) {
		up, down := -1.0, -1.0
		if hi < n-1 {
			up = levels[hi+1].Volume
		}
		if lo > 0 {
			down = levels[lo-1].Volume
		}
		switch {
		case up > down:
			hi++
			acc += levels[hi].Volume
		case down > up:
			lo--
			acc += levels[lo].Volume
		default:
			hi++
			lo--
			acc += levels[hi].Volume + levels[lo].Volume
		}
	}

	mean := p.TotalVolume / float64(n)
	lvnCut := opts.LVNRatio * mean
	var lvns, hvns []float64
	for i, l := range levels {
		if l.Volume < lvnCut {
			lvns = append(lvns, l.Price)
		}
		left, right := 0.0, 0.0
		if i > 0 {
			left = levels[i-1].Volume
		}
		if i < n-1 {
			right = levels[i+1].Volume
		}
		if l.Volume > left && l.Volume > right {
			hvns = append(hvns, l.Price)
		}
	}

	return domain.ProfileMetrics{
		Valid:           true,
		POC:             levels[poc].Price,
		VAH:             levels[hi].Price,
		VAL:             levels[lo].Price,
		BucketWidth:     p.BucketWidth,
		LVNs:            lvns,
		HVNs:            hvns,
		TotalVolume:     p.TotalVolume,
		ValueAreaVolume: acc,
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
