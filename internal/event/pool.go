package event

import (
	"sync"

	"auction_go/internal/domain"
)

// Feed workers allocate one TradeEvent per print. The sequencer owns each
// event once it is on the inbox and hands it back after Handle returns.
var tradePool = sync.Pool{
	New: func() any { return new(TradeEvent) },
}

// AcquireTradeEvent returns a zeroed event.
func AcquireTradeEvent() *TradeEvent {
	return tradePool.Get().(*TradeEvent)
}

// AcquireTrade returns a pooled event carrying t.
func AcquireTrade(t domain.Trade, exchange string) *TradeEvent {
	ev := AcquireTradeEvent()
	ev.Symbol = t.Symbol
	ev.Time = t.Time
	ev.Price = t.Price
	ev.Size = t.Size
	ev.Side = t.Side
	ev.Exchange = exchange
	return ev
}

// ReleaseTradeEvent zeroes ev and returns it to the pool. ev must not be
// used afterwards.
func ReleaseTradeEvent(ev *TradeEvent) {
	if ev == nil {
		return
	}
	*ev = TradeEvent{}
	tradePool.Put(ev)
}
