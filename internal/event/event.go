// Package event defines the messages fed into the sequencer inbox.
package event

import (
	"time"

	"auction_go/internal/domain"
)

// Type identifies an event kind.
type Type string

const (
	TypeTrade Type = "TRADE"
	TypeClock Type = "CLOCK"
)

// Event is anything the sequencer can process.
type Event interface {
	GetType() Type
	GetSeq() uint64
	SetSeq(seq uint64)
}

// BaseEvent carries the sequence number stamped by the sequencer.
type BaseEvent struct {
	Seq uint64 `json:"seq"`
}

// GetSeq returns the sequence number.
func (b *BaseEvent) GetSeq() uint64 { return b.Seq }

// SetSeq stamps the sequence number.
func (b *BaseEvent) SetSeq(seq uint64) { b.Seq = seq }

// TradeEvent is one print from a market data feed.
type TradeEvent struct {
	BaseEvent
	Symbol   string      `json:"symbol"`
	Time     time.Time   `json:"time"`
	Price    float64     `json:"price"`
	Size     float64     `json:"size"`
	Side     domain.Side `json:"side"`
	Exchange string      `json:"exchange"`
}

// GetType implements Event.
func (e *TradeEvent) GetType() Type { return TypeTrade }

// Trade converts the event into the domain record.
func (e *TradeEvent) Trade() domain.Trade {
	side := e.Side
	if side == "" {
		side = domain.SideUnknown
	}
	return domain.Trade{
		Symbol: e.Symbol,
		Time:   e.Time.UTC(),
		Price:  e.Price,
		Size:   e.Size,
		Side:   side,
	}
}

// ClockEvent advances time so candles whose interval elapsed without a new
// trade are closed.
// Done, when set, is closed once the flush has been processed.
type ClockEvent struct {
	BaseEvent
	Now  time.Time     `json:"now"`
	Done chan struct{} `json:"-"`
}

// GetType implements Event.
func (e *ClockEvent) GetType() Type { return TypeClock }
