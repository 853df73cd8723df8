package domain

import (
	"time"
)

// Side is the aggressor side of a trade or the direction of a position.
type Side string

const (
	SideBuy     Side = "BUY"
	SideSell    Side = "SELL"
	SideUnknown Side = "UNKNOWN"
)

// Opposite returns the other side. UNKNOWN stays UNKNOWN.
func (s Side) Opposite() Side {
	switch s {
	case SideBuy:
		return SideSell
	case SideSell:
		return SideBuy
	default:
		return SideUnknown
	}
}

// Trade is a single executed print. Immutable once recorded.
//
// Side is the true aggressor when the venue reports it. Otherwise it is
// filled in by the tick rule and Inferred is set: that is an approximation,
// not ground truth.
type Trade struct {
	Symbol   string    `json:"symbol"`
	Time     time.Time `json:"time"` // UTC, monotonic per symbol
	Price    float64   `json:"price"`
	Size     float64   `json:"size"`
	Side     Side      `json:"side"`
	Inferred bool      `json:"inferred"`
}

// Candle is one fixed-interval OHLCV bar covering [Start, Start+Interval).
// A candle is final once its interval elapses and is never revised afterwards.
type Candle struct {
	Symbol   string        `json:"symbol"`
	Start    time.Time     `json:"start"`
	Interval time.Duration `json:"interval"`
	Open     float64       `json:"open"`
	High     float64       `json:"high"`
	Low      float64       `json:"low"`
	Close    float64       `json:"close"`
	Volume   float64       `json:"volume"`

	// Aggressor split when the candle was built from trades with known sides.
	// Both are zero for vendor candles (OHLCV only).
	BuyVolume  float64 `json:"buy_volume"`
	SellVolume float64 `json:"sell_volume"`
}

// End returns the exclusive end of the candle interval.
func (c Candle) End() time.Time {
	return c.Start.Add(c.Interval)
}

// HasSideVolume reports whether the candle carries an aggressor split.
func (c Candle) HasSideVolume() bool {
	return c.BuyVolume+c.SellVolume > 0
}

// Bar is the minimal OHLC view used for exit checks. A single live price is a
// degenerate bar with Open == High == Low == Close.
type Bar struct {
	Time  time.Time
	Open  float64
	High  float64
	Low   float64
	Close float64
}

// BarFromCandle returns the OHLC view of a candle, stamped at its start.
func BarFromCandle(c Candle) Bar {
	return Bar{Time: c.Start, Open: c.Open, High: c.High, Low: c.Low, Close: c.Close}
}

// PriceBar wraps a single observed price as a bar.
func PriceBar(t time.Time, price float64) Bar {
	return Bar{Time: t, Open: price, High: price, Low: price, Close: price}
}
