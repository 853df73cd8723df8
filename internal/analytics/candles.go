package analytics

import (
	"math"
	"time"

	"auction_go/internal/domain"
)

// DefaultCandleInterval is the bar size used when none is configured.
const DefaultCandleInterval = time.Minute

// CandleBuilder aggregates one symbol's trades into fixed-interval candles.
// A candle closes when a trade lands in a later bucket or Flush sees its
// interval elapse. Closed candles are returned once and never revised; trades
// for a bucket that has already closed are ignored.
type CandleBuilder struct {
	symbol      string
	interval    time.Duration
	cur         *domain.Candle
	closedUntil time.Time
}

// NewCandleBuilder creates a builder for one symbol.
func NewCandleBuilder(symbol string, interval time.Duration) *CandleBuilder {
	if interval <= 0 {
		interval = DefaultCandleInterval
	}
	return &CandleBuilder{symbol: symbol, interval: interval}
}

// Interval returns the bar size.
func (b *CandleBuilder) Interval() time.Duration {
	return b.interval
}

// Accepts reports whether a trade at t can still be folded into a candle.
func (b *CandleBuilder) Accepts(t time.Time) bool {
	start := t.UTC().Truncate(b.interval)
	if b.cur != nil && start.Before(b.cur.Start) {
		return false
	}
	return !start.Before(b.closedUntil)
}

// Add folds a trade into the open candle and returns the candle it closed, if any.
// The second result is false when the trade was too late to be used.
func (b *CandleBuilder) Add(t domain.Trade) (*domain.Candle, bool) {
	start := t.Time.UTC().Truncate(b.interval)
	if start.Before(b.closedUntil) {
		return nil, false
	}

	var closed *domain.Candle
	if b.cur != nil {
		switch {
		case start.Before(b.cur.Start):
			return nil, false
		case start.After(b.cur.Start):
			closed = b.close()
		}
	}

	if b.cur == nil {
		b.cur = &domain.Candle{
			Symbol:   b.symbol,
			Start:    start,
			Interval: b.interval,
			Open:     t.Price,
			High:     t.Price,
			Low:      t.Price,
		}
	}
	c := b.cur
	c.High = math.Max(c.High, t.Price)
	c.Low = math.Min(c.Low, t.Price)
	c.Close = t.Price
	c.Volume += t.Size
	switch t.Side {
	case domain.SideBuy:
		c.BuyVolume += t.Size
	case domain.SideSell:
		c.SellVolume += t.Size
	}
	return closed, true
}

// Flush closes the open candle if its interval has elapsed at now.
func (b *CandleBuilder) Flush(now time.Time) *domain.Candle {
	if b.cur == nil || now.Before(b.cur.End()) {
		return nil
	}
	return b.close()
}

// Pending returns a copy of the candle still being built.
func (b *CandleBuilder) Pending() (domain.Candle, bool) {
	if b.cur == nil {
		return domain.Candle{}, false
	}
	return *b.cur, true
}

func (b *CandleBuilder) close() *domain.Candle {
	c := *b.cur
	if !sideSplitComplete(c) {
		// partial aggressor information is worse than none
		c.BuyVolume, c.SellVolume = 0, 0
	}
	b.closedUntil = c.End()
	b.cur = nil
	return &c
}

func sideSplitComplete(c domain.Candle) bool {
	return math.Abs(c.BuyVolume+c.SellVolume-c.Volume) <= 1e-9*math.Max(1, c.Volume)
}

// AggregateCandles is the bulk path over a single symbol's ordered trades.
// It runs the same builder as live ingestion and flushes at until, so the
// last bucket is only emitted once its interval has fully elapsed.
func AggregateCandles(trades []domain.Trade, interval time.Duration, until time.Time) []domain.Candle {
	if len(trades) == 0 {
		return nil
	}
	b := NewCandleBuilder(trades[0].Symbol, interval)
	var out []domain.Candle
	for _, t := range trades {
		if closed, _ := b.Add(t); closed != nil {
			out = append(out, *closed)
		}
	}
	if closed := b.Flush(until); closed != nil {
		out = append(out, *closed)
	}
	return out
}
