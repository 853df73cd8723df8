package domain

import (
	"context"
	"time"
)

// ExchangeWorker defines the interface for exchange WebSocket connectors
type ExchangeWorker interface {
	Connect(ctx context.Context) error
	Disconnect()
	IsConnected() bool
}

// TimeSeriesStore is the history the core queries. Results are ordered by
// strictly increasing time with no duplicates. Ranges are [start, end).
// GetTrades may return an empty slice when tick data is unavailable.
type TimeSeriesStore interface {
	GetCandles(ctx context.Context, symbol string, start, end time.Time) ([]Candle, error)
	GetTrades(ctx context.Context, symbol string, start, end time.Time) ([]Trade, error)
}

// MarketDataWriter appends ingested data. Candles are written once, after they close.
type MarketDataWriter interface {
	AppendTrade(ctx context.Context, trade Trade) error
	SaveCandle(ctx context.Context, candle Candle) error
}

// PositionReader is the read-only position query exposed by execution adapters.
type PositionReader interface {
	OpenPosition(symbol string) *Position
}

// SignalSink receives emitted signals (on_signal).
type SignalSink interface {
	OnSignal(ctx context.Context, sig Signal) error
}
