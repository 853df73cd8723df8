package backtest

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
	"auction_go/internal/execution"
	"auction_go/internal/infra/storage"
	"auction_go/internal/strategy"

	"github.com/shopspring/decimal"
)

var (
	testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	t0         = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)
	params     = strategy.StaticParams(strategy.DefaultParams())
)

// rallyTrades: 20 quiet two-sided minutes, then 5 minutes of one-sided buying.
func rallyTrades(symbol string) []domain.Trade {
	var out []domain.Trade
	for m := 0; m < 25; m++ {
		for j := 0; j < 10; j++ {
			tr := domain.Trade{Symbol: symbol, Time: t0.Add(time.Duration(m)*time.Minute + time.Duration(j)*5*time.Second)}
			if m < 20 {
				tr.Price, tr.Size, tr.Side = 99.95, 10, domain.SideBuy
				if j%2 == 1 {
					tr.Price, tr.Side = 100.05, domain.SideSell
				}
			} else {
				tr.Price, tr.Size, tr.Side = 100.5+0.1*float64((m-20)*10+j), 100, domain.SideBuy
			}
			out = append(out, tr)
		}
	}
	return out
}

func newPaper() *execution.PaperExecution {
	return execution.NewPaperExecution(decimal.NewFromInt(100000), 3, decimal.New(1, -3), params, testLogger)
}

func input(symbol string) Input {
	trades := rallyTrades(symbol)
	return Input{
		Symbol:  symbol,
		Candles: analytics.AggregateCandles(trades, time.Minute, t0.Add(25*time.Minute)),
		Trades:  trades,
	}
}

func TestReplayer_Run(t *testing.T) {
	in := input("BTCUSDT")
	rep, err := NewReplayer(strategy.NewPipeline(), params, testLogger).Run(context.Background(), in, newPaper())
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	var evaluations int
	for _, n := range rep.Statuses {
		evaluations += n
	}
	if evaluations != len(in.Candles) {
		t.Errorf("evaluations = %d, want one per candle (%d)", evaluations, len(in.Candles))
	}
	if len(rep.Equity) != len(in.Candles) {
		t.Errorf("equity points = %d, want %d", len(rep.Equity), len(in.Candles))
	}
	if len(rep.Signals) == 0 || rep.Signals[0].Type != domain.SignalEntryLong {
		t.Fatalf("expected a long entry on the rally, got %+v", rep.Signals)
	}

	t.Run("Equity reconciles with realized PnL", func(t *testing.T) {
		want := rep.StartEquity.Add(rep.Summary.NetPnL)
		if !rep.EndEquity.Equal(want) {
			t.Errorf("end equity %s != start %s + pnl %s", rep.EndEquity, rep.StartEquity, rep.Summary.NetPnL)
		}
		if rep.Summary.Wins+rep.Summary.Losses > rep.Summary.Trades {
			t.Errorf("wins+losses exceed trades: %+v", rep.Summary)
		}
		if rep.Summary.MaxDrawdown.IsNegative() {
			t.Errorf("negative drawdown %s", rep.Summary.MaxDrawdown)
		}
	})

	t.Run("Deterministic", func(t *testing.T) {
		again, _ := NewReplayer(strategy.NewPipeline(), params, testLogger).Run(context.Background(), in, newPaper())
		if len(again.Signals) != len(rep.Signals) {
			t.Fatalf("signal count changed: %d vs %d", len(again.Signals), len(rep.Signals))
		}
		for i := range rep.Signals {
			if again.Signals[i].ID != rep.Signals[i].ID {
				t.Errorf("signal %d id changed", i)
			}
		}
	})
}

func TestReplayer_RunAllOrdersBySymbol(t *testing.T) {
	rep, err := NewReplayer(strategy.NewPipeline(), params, testLogger).
		RunAll(context.Background(), []Input{input("ETHUSDT"), input("BTCUSDT")}, newPaper())
	if err != nil {
		t.Fatalf("RunAll failed: %v", err)
	}
	for i := 1; i < len(rep.Signals); i++ {
		a, b := rep.Signals[i-1], rep.Signals[i]
		if b.Time.Before(a.Time) || (b.Time.Equal(a.Time) && b.Symbol < a.Symbol) {
			t.Errorf("signals out of (time, symbol) order at %d: %s@%v then %s@%v", i, a.Symbol, a.Time, b.Symbol, b.Time)
		}
	}
	if len(rep.Signals) < 2 || rep.Signals[0].Symbol != "BTCUSDT" || rep.Signals[1].Symbol != "ETHUSDT" {
		t.Errorf("expected BTCUSDT entry before ETHUSDT entry at the same close, got %+v", rep.Signals)
	}
}

func TestReplayer_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewReplayer(strategy.NewPipeline(), params, testLogger).Run(ctx, input("BTCUSDT"), newPaper())
	if err == nil {
		t.Error("expected context error")
	}
}

func TestLoadInputs_AggregatesTrades(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	for _, tr := range rallyTrades("BTCUSDT") {
		store.AppendTrade(ctx, tr)
	}

	inputs, err := LoadInputs(ctx, store, params, []string{"BTCUSDT"}, t0, t0.Add(25*time.Minute))
	if err != nil {
		t.Fatalf("LoadInputs failed: %v", err)
	}
	if len(inputs) != 1 || len(inputs[0].Candles) != 25 {
		t.Fatalf("expected 25 aggregated candles, got %+v", len(inputs[0].Candles))
	}
}

func TestSummary_MaxDrawdown(t *testing.T) {
	rep := &Report{
		StartEquity: decimal.NewFromInt(100),
		Equity: []EquityPoint{
			{Equity: decimal.NewFromInt(110)},
			{Equity: decimal.NewFromInt(88)},
			{Equity: decimal.NewFromInt(120)},
			{Equity: decimal.NewFromInt(108)},
		},
	}
	rep.summarize()
	if !rep.Summary.MaxDrawdown.Equal(decimal.NewFromInt(22)) {
		t.Errorf("max drawdown = %s, want 22", rep.Summary.MaxDrawdown)
	}
	if rep.Summary.MaxDrawdownPct != 0.2 {
		t.Errorf("max drawdown pct = %v, want 0.2", rep.Summary.MaxDrawdownPct)
	}
}
