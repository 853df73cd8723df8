package event

import (
	"testing"
	"time"

	"auction_go/internal/domain"
)

func TestAcquireTrade(t *testing.T) {
	tr := domain.Trade{
		Symbol: "BTCUSDT",
		Time:   time.Date(2024, 3, 4, 9, 0, 1, 0, time.UTC),
		Price:  64000.5,
		Size:   0.25,
		Side:   domain.SideSell,
	}
	ev := AcquireTrade(tr, "BINANCE")
	ev.SetSeq(42)
	if got := ev.Trade(); got != tr {
		t.Errorf("Trade() = %+v, want %+v", got, tr)
	}
	if ev.Exchange != "BINANCE" || ev.GetType() != TypeTrade {
		t.Errorf("unexpected event %+v", ev)
	}

	ReleaseTradeEvent(ev)
	if *ev != (TradeEvent{}) {
		t.Errorf("released event not zeroed: %+v", ev)
	}
	ReleaseTradeEvent(nil)
}

func BenchmarkAcquireTrade(b *testing.B) {
	tr := domain.Trade{Symbol: "BTCUSDT", Price: 64000, Size: 1, Side: domain.SideBuy}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		ReleaseTradeEvent(AcquireTrade(tr, "BINANCE"))
	}
}
