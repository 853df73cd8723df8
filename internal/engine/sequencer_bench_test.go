package engine

import (
	"context"
	"testing"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/event"
)

// BenchmarkSequencer_HandleTrade measures the ingestion hotpath without a store.
func BenchmarkSequencer_HandleTrade(b *testing.B) {
	seq := newTestSequencer(nil)
	ctx := context.Background()

	ev := event.AcquireTradeEvent()
	ev.Symbol = "BTCUSDT"
	ev.Price = 50000
	ev.Size = 0.01
	ev.Side = domain.SideBuy
	ev.Exchange = "BINANCE"

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev.Time = t0.Add(time.Duration(i) * time.Millisecond)
		seq.Handle(ctx, ev)
	}

	event.ReleaseTradeEvent(ev)
}

// BenchmarkSequencer_FullPipeline includes channel overhead.
func BenchmarkSequencer_FullPipeline(b *testing.B) {
	seq := newTestSequencer(nil)
	inbox := seq.Inbox()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		ev := event.AcquireTradeEvent()
		ev.Symbol = "BTCUSDT"
		ev.Time = t0.Add(time.Duration(i) * time.Millisecond)
		ev.Price = 50000
		ev.Size = 0.01
		ev.Side = domain.SideSell
		inbox <- ev
	}
	if err := seq.Flush(ctx, t0); err != nil {
		b.Fatal(err)
	}
}
