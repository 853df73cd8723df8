package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/event"
	"auction_go/internal/infra"
	"auction_go/internal/infra/storage"
	"auction_go/internal/strategy"
)

var (
	testLogger = infra.NopLogger()
	t0         = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
)

func tradeEvent(symbol string, at time.Time, price, size float64, side domain.Side) *event.TradeEvent {
	return &event.TradeEvent{Symbol: symbol, Time: at, Price: price, Size: size, Side: side, Exchange: "TEST"}
}

func newTestSequencer(w domain.MarketDataWriter) *Sequencer {
	return NewSequencer(16, w, strategy.StaticParams(strategy.DefaultParams()), infra.NewMetrics(), testLogger)
}

func TestSequencer_CandleLifecycle(t *testing.T) {
	store := storage.NewMemoryStore()
	seq := newTestSequencer(store)
	ctx := context.Background()

	var closed []domain.Candle
	seq.OnCandle(func(c domain.Candle) { closed = append(closed, c) })

	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(5*time.Second), 100, 1, domain.SideBuy))
	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(30*time.Second), 102, 2, domain.SideSell))
	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(50*time.Second), 99, 1, domain.SideBuy))

	if len(closed) != 0 {
		t.Fatalf("candle closed early: %+v", closed)
	}
	pending, ok := seq.PendingCandle("BTCUSDT")
	if !ok || pending.Volume != 4 {
		t.Fatalf("unexpected pending candle: %+v", pending)
	}

	t.Run("Next bucket closes the candle", func(t *testing.T) {
		seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(61*time.Second), 101, 1, domain.SideBuy))
		if len(closed) != 1 {
			t.Fatalf("expected 1 closed candle, got %d", len(closed))
		}
		c := closed[0]
		if c.Open != 100 || c.High != 102 || c.Low != 99 || c.Close != 99 || c.Volume != 4 {
			t.Errorf("unexpected OHLCV: %+v", c)
		}
		if c.BuyVolume != 2 || c.SellVolume != 2 {
			t.Errorf("unexpected side split: buy=%v sell=%v", c.BuyVolume, c.SellVolume)
		}
		stored, _ := store.GetCandles(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
		if len(stored) != 1 {
			t.Errorf("expected candle persisted, got %d", len(stored))
		}
	})

	t.Run("Clock closes an idle candle", func(t *testing.T) {
		seq.Handle(ctx, &event.ClockEvent{Now: t0.Add(119 * time.Second)})
		if len(closed) != 1 {
			t.Fatal("candle closed before its interval elapsed")
		}
		seq.Handle(ctx, &event.ClockEvent{Now: t0.Add(2 * time.Minute)})
		if len(closed) != 2 {
			t.Fatalf("expected 2 closed candles, got %d", len(closed))
		}
	})

	t.Run("Trades are persisted before aggregation", func(t *testing.T) {
		trades, _ := store.GetTrades(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
		if len(trades) != 4 {
			t.Errorf("expected 4 trades, got %d", len(trades))
		}
	})
}

func TestSequencer_Drops(t *testing.T) {
	store := storage.NewMemoryStore()
	seq := newTestSequencer(store)
	ctx := context.Background()

	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(90*time.Second), 100, 1, domain.SideBuy))
	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(10*time.Second), 100, 1, domain.SideBuy)) // out of order
	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(91*time.Second), 0, 1, domain.SideBuy))   // invalid price
	seq.Handle(ctx, tradeEvent("", t0.Add(92*time.Second), 100, 1, domain.SideBuy))        // no symbol

	trades, _ := store.GetTrades(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
	if len(trades) != 1 {
		t.Errorf("expected 1 stored trade, got %d", len(trades))
	}
	if got := seq.metrics.Snapshot().DroppedEvents; got != 3 {
		t.Errorf("dropped = %d, want 3", got)
	}
}

// A trade that lags the clock past its candle close is neither stored nor
// aggregated, so the trades table agrees with the persisted candle.
func TestSequencer_LateTradeNotStored(t *testing.T) {
	store := storage.NewMemoryStore()
	seq := newTestSequencer(store)
	ctx := context.Background()

	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(30*time.Second), 100, 1, domain.SideBuy))
	seq.Handle(ctx, &event.ClockEvent{Now: t0.Add(time.Minute)})
	seq.Handle(ctx, tradeEvent("BTCUSDT", t0.Add(50*time.Second), 101, 2, domain.SideBuy))

	trades, _ := store.GetTrades(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
	candles, _ := store.GetCandles(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
	if len(trades) != 1 || len(candles) != 1 {
		t.Fatalf("expected 1 trade and 1 candle, got %d and %d", len(trades), len(candles))
	}
	if candles[0].Volume != trades[0].Size {
		t.Errorf("candle volume %v disagrees with stored trades %v", candles[0].Volume, trades[0].Size)
	}
	if got := seq.metrics.Snapshot().DroppedEvents; got != 1 {
		t.Errorf("dropped = %d, want 1", got)
	}
}

func TestSequencer_SequenceNumbers(t *testing.T) {
	seq := newTestSequencer(nil)
	ctx := context.Background()

	a := tradeEvent("BTCUSDT", t0, 100, 1, domain.SideBuy)
	b := &event.ClockEvent{Now: t0}
	seq.Handle(ctx, a)
	seq.Handle(ctx, b)
	if a.GetSeq() != 1 || b.GetSeq() != 2 {
		t.Errorf("unexpected sequence numbers %d, %d", a.GetSeq(), b.GetSeq())
	}
}

type failingWriter struct{}

func (failingWriter) AppendTrade(context.Context, domain.Trade) error { return errors.New("disk full") }
func (failingWriter) SaveCandle(context.Context, domain.Candle) error { return errors.New("disk full") }

func TestSequencer_WriteFailure(t *testing.T) {
	seq := newTestSequencer(failingWriter{})
	err := seq.Handle(context.Background(), tradeEvent("BTCUSDT", t0, 100, 1, domain.SideBuy))
	if err == nil {
		t.Fatal("expected append error")
	}
	if _, ok := seq.PendingCandle("BTCUSDT"); ok {
		t.Error("trade must not reach the builder when persistence fails")
	}
}

func TestSequencer_RunAndFlush(t *testing.T) {
	store := storage.NewMemoryStore()
	seq := newTestSequencer(store)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go seq.Run(ctx)

	seq.Inbox() <- event.AcquireTrade(domain.Trade{Symbol: "BTCUSDT", Time: t0, Price: 100, Size: 1, Side: domain.SideBuy}, "TEST")

	// Flush is processed after the trade because the inbox is FIFO.
	if err := seq.Flush(ctx, t0.Add(time.Minute)); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}
	candles, _ := store.GetCandles(ctx, "BTCUSDT", t0, t0.Add(time.Hour))
	if len(candles) != 1 {
		t.Fatalf("expected 1 candle after flush, got %d", len(candles))
	}
}
