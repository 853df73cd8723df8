package execution

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/strategy"

	"github.com/shopspring/decimal"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t0         = time.Date(2024, 1, 2, 10, 0, 0, 0, time.UTC)
)

func newPaper(cash int64, maxPositions int) *PaperExecution {
	return NewPaperExecution(decimal.NewFromInt(cash), maxPositions, decimal.New(1, -3),
		strategy.StaticParams(strategy.DefaultParams()), testLogger)
}

func entry(symbol string, typ domain.SignalType, price, stop, target float64, at time.Time) domain.Signal {
	return domain.Signal{
		ID: domain.SignalID(symbol, at, typ), Symbol: symbol, Time: at, Type: typ,
		EntryPrice: price, StopLoss: stop, TakeProfit: target,
	}
}

func exit(symbol string, price float64, reason string, at time.Time) domain.Signal {
	return domain.Signal{
		ID: domain.SignalID(symbol, at, domain.SignalExit), Symbol: symbol, Time: at,
		Type: domain.SignalExit, EntryPrice: price, Reason: reason,
	}
}

func TestPaperExecution_LongRoundTrip(t *testing.T) {
	paper := newPaper(10000, 3)
	ctx := context.Background()

	// risk 1% of 10000 = 100; per-unit risk 2 -> 50 units; affordable 10000/100 = 100
	if err := paper.OnSignal(ctx, entry("BTCUSDT", domain.SignalEntryLong, 100, 98, 106, t0)); err != nil {
		t.Fatalf("entry failed: %v", err)
	}
	pos := paper.OpenPosition("BTCUSDT")
	if pos == nil {
		t.Fatal("expected open position")
	}
	if pos.Quantity != 50 || !pos.IsLong() {
		t.Errorf("unexpected position: %+v", pos)
	}
	if got := paper.Cash(); !got.Equal(decimal.NewFromInt(5000)) {
		t.Errorf("cash = %s, want 5000", got)
	}
	if got := paper.Equity(); !got.Equal(decimal.NewFromInt(10000)) {
		t.Errorf("equity = %s, want 10000", got)
	}

	if err := paper.OnSignal(ctx, exit("BTCUSDT", 106, domain.ExitTakeProfit, t0.Add(time.Hour))); err != nil {
		t.Fatalf("exit failed: %v", err)
	}
	if paper.OpenPosition("BTCUSDT") != nil {
		t.Error("position should be closed")
	}
	trips := paper.RoundTrips()
	if len(trips) != 1 {
		t.Fatalf("expected 1 round trip, got %d", len(trips))
	}
	if !trips[0].PnL.Equal(decimal.NewFromInt(300)) {
		t.Errorf("pnl = %s, want 300", trips[0].PnL)
	}
	if got := paper.Cash(); !got.Equal(decimal.NewFromInt(10300)) {
		t.Errorf("cash = %s, want 10300", got)
	}

	fills := paper.GetFills()
	if len(fills) != 2 || fills[0].Side != domain.SideBuy || fills[1].Side != domain.SideSell {
		t.Errorf("unexpected fills: %+v", fills)
	}
}

func TestPaperExecution_ShortRoundTrip(t *testing.T) {
	paper := newPaper(10000, 3)
	ctx := context.Background()

	paper.OnSignal(ctx, entry("ETHUSDT", domain.SignalEntryShort, 100, 102, 94, t0))
	paper.OnSignal(ctx, exit("ETHUSDT", 102, domain.ExitStopLoss, t0.Add(time.Minute)))

	trips := paper.RoundTrips()
	if len(trips) != 1 {
		t.Fatalf("expected 1 round trip, got %d", len(trips))
	}
	// 50 units lose 2 each
	if !trips[0].PnL.Equal(decimal.NewFromInt(-100)) {
		t.Errorf("pnl = %s, want -100", trips[0].PnL)
	}
	if got := paper.Equity(); !got.Equal(decimal.NewFromInt(9900)) {
		t.Errorf("equity = %s, want 9900", got)
	}
}

func TestPaperExecution_Rejections(t *testing.T) {
	ctx := context.Background()

	t.Run("Single position per symbol", func(t *testing.T) {
		paper := newPaper(10000, 3)
		paper.OnSignal(ctx, entry("BTCUSDT", domain.SignalEntryLong, 100, 98, 106, t0))
		err := paper.OnSignal(ctx, entry("BTCUSDT", domain.SignalEntryShort, 100, 102, 94, t0.Add(time.Minute)))
		if !errors.Is(err, domain.ErrPositionExists) {
			t.Errorf("expected ErrPositionExists, got %v", err)
		}
		if paper.Rejected() != 1 {
			t.Errorf("rejected = %d", paper.Rejected())
		}
	})

	t.Run("Max positions", func(t *testing.T) {
		paper := newPaper(10000, 1)
		paper.OnSignal(ctx, entry("BTCUSDT", domain.SignalEntryLong, 100, 98, 106, t0))
		err := paper.OnSignal(ctx, entry("ETHUSDT", domain.SignalEntryLong, 100, 98, 106, t0))
		if !errors.Is(err, domain.ErrMaxPositions) {
			t.Errorf("expected ErrMaxPositions, got %v", err)
		}
	})

	t.Run("Exit without position", func(t *testing.T) {
		paper := newPaper(10000, 1)
		err := paper.OnSignal(ctx, exit("BTCUSDT", 100, domain.ExitStopLoss, t0))
		if !errors.Is(err, domain.ErrNoPosition) {
			t.Errorf("expected ErrNoPosition, got %v", err)
		}
	})

	t.Run("Insufficient cash", func(t *testing.T) {
		paper := newPaper(0, 1)
		err := paper.OnSignal(ctx, entry("BTCUSDT", domain.SignalEntryLong, 100, 98, 106, t0))
		if !errors.Is(err, domain.ErrInsufficientCash) {
			t.Errorf("expected ErrInsufficientCash, got %v", err)
		}
	})
}

func TestPaperExecution_ImplementsInterface(t *testing.T) {
	var _ domain.SignalSink = (*PaperExecution)(nil)
	var _ domain.PositionReader = (*PaperExecution)(nil)
}
