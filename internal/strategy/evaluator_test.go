package strategy

import (
	"strings"
	"testing"

	"auction_go/internal/domain"
)

func entryInput(regime domain.Regime, score float64, dir domain.Side) EntryInput {
	return EntryInput{
		Symbol:     "BTCUSDT",
		Time:       t0,
		Price:      100,
		State:      domain.MarketState{Regime: regime, Rule: "test"},
		Aggression: domain.Aggression{Score: score, Direction: dir},
		ATR:        2,
	}
}

func TestEvaluateEntry(t *testing.T) {
	p := DefaultParams()

	t.Run("Long on upside imbalance", func(t *testing.T) {
		sig, _ := EvaluateEntry(entryInput(domain.RegimeImbalanceUp, 70, domain.SideBuy), p)
		if sig == nil {
			t.Fatal("expected entry")
		}
		if sig.Type != domain.SignalEntryLong || sig.StopLoss != 97 || sig.TakeProfit != 106 {
			t.Errorf("unexpected signal %+v", sig)
		}
		if sig.ID != domain.SignalID("BTCUSDT", t0, domain.SignalEntryLong) {
			t.Error("id must derive from symbol, time and type")
		}
		if !sig.Time.Equal(t0) {
			t.Errorf("signal time = %v, want the evaluation instant", sig.Time)
		}
	})

	t.Run("Short on downside imbalance", func(t *testing.T) {
		sig, _ := EvaluateEntry(entryInput(domain.RegimeImbalanceDown, 70, domain.SideSell), p)
		if sig == nil || sig.Type != domain.SignalEntryShort || sig.StopLoss != 103 || sig.TakeProfit != 94 {
			t.Errorf("unexpected signal %+v", sig)
		}
	})

	balance := p
	balance.AllowBalanceTrades = true

	declines := []struct {
		name   string
		in     EntryInput
		params Params
		reason string
	}{
		{"position open", func() EntryInput {
			in := entryInput(domain.RegimeImbalanceUp, 70, domain.SideBuy)
			in.Position = &domain.Position{Symbol: "BTCUSDT"}
			return in
		}(), p, "position already open"},
		{"no ATR", func() EntryInput {
			in := entryInput(domain.RegimeImbalanceUp, 70, domain.SideBuy)
			in.ATR = 0
			return in
		}(), p, "atr unavailable"},
		{"weak aggression", entryInput(domain.RegimeImbalanceUp, 50, domain.SideBuy), p, "aggression 50 below 70"},
		{"flow disagrees", entryInput(domain.RegimeImbalanceUp, 70, domain.SideSell), p, "disagrees"},
		{"balance disabled", entryInput(domain.RegimeBalance, 90, domain.SideBuy), p, "balance: trades disabled"},
		{"balance needs the stricter score", entryInput(domain.RegimeBalance, 75, domain.SideBuy), balance, "aggression 75 below 80"},
		{"balance needs a flow direction", entryInput(domain.RegimeBalance, 90, domain.SideUnknown), balance, "no flow direction"},
	}
	for _, tt := range declines {
		t.Run(tt.name, func(t *testing.T) {
			sig, why := EvaluateEntry(tt.in, tt.params)
			if sig != nil {
				t.Fatalf("unexpected entry %+v", sig)
			}
			if !strings.Contains(why, tt.reason) {
				t.Errorf("reason %q does not mention %q", why, tt.reason)
			}
		})
	}

	t.Run("Balance trade follows flow", func(t *testing.T) {
		sig, _ := EvaluateEntry(entryInput(domain.RegimeBalance, 80, domain.SideSell), balance)
		if sig == nil || sig.Type != domain.SignalEntryShort {
			t.Errorf("expected short, got %+v", sig)
		}
	})
}

func TestEvaluateExit(t *testing.T) {
	long := &domain.Position{Symbol: "BTCUSDT", Side: domain.SideBuy, EntryPrice: 100, StopLoss: 97, TakeProfit: 106}
	short := &domain.Position{Symbol: "BTCUSDT", Side: domain.SideSell, EntryPrice: 100, StopLoss: 103, TakeProfit: 94}
	bar := func(o, h, l, c float64) domain.Bar { return domain.Bar{Time: t0, Open: o, High: h, Low: l, Close: c} }
	p := DefaultParams()

	tests := []struct {
		name   string
		pos    *domain.Position
		bar    domain.Bar
		price  float64
		reason string
	}{
		{"long stop on the low", long, bar(100, 101, 96, 99), 97, domain.ExitStopLoss},
		{"long target on the high", long, bar(100, 107, 99, 106), 106, domain.ExitTakeProfit},
		{"long gap through stop fills at open", long, bar(95, 96, 94, 95), 95, domain.ExitStopLoss},
		{"long gap through target fills at open", long, bar(107, 108, 106, 107), 107, domain.ExitTakeProfit},
		{"long both touched on up bar: low first", long, bar(100, 107, 96, 105), 97, domain.ExitStopLoss},
		{"long both touched on down bar: high first", long, bar(100, 107, 96, 98), 106, domain.ExitTakeProfit},
		{"short stop on the high", short, bar(100, 104, 99, 101), 103, domain.ExitStopLoss},
		{"short target on the low", short, bar(100, 101, 93, 95), 94, domain.ExitTakeProfit},
		{"short both touched on up bar: low first", short, bar(100, 104, 93, 102), 94, domain.ExitTakeProfit},
		{"short both touched on down bar: high first", short, bar(100, 104, 93, 95), 103, domain.ExitStopLoss},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig, _ := EvaluateExit(tt.pos, tt.bar, nil, t0, p)
			if sig == nil {
				t.Fatal("expected exit")
			}
			if sig.Type != domain.SignalExit || sig.EntryPrice != tt.price || !strings.HasPrefix(sig.Reason, tt.reason) {
				t.Errorf("got %s @ %v (%s), want %s @ %v", sig.Type, sig.EntryPrice, sig.Reason, tt.reason, tt.price)
			}
		})
	}

	t.Run("Holding", func(t *testing.T) {
		if sig, why := EvaluateExit(long, bar(100, 101, 99, 100), nil, t0, p); sig != nil || why != "holding" {
			t.Errorf("unexpected exit %+v (%s)", sig, why)
		}
	})

	t.Run("Opposite state", func(t *testing.T) {
		down := &domain.MarketState{Regime: domain.RegimeImbalanceDown}
		if sig, _ := EvaluateExit(long, bar(100, 101, 99, 99.5), down, t0, p); sig != nil {
			t.Error("opposite state exit must be opt-in")
		}
		opt := p
		opt.ExitOnOppositeState = true
		sig, _ := EvaluateExit(long, bar(100, 101, 99, 99.5), down, t0, opt)
		if sig == nil || sig.EntryPrice != 99.5 || !strings.HasPrefix(sig.Reason, domain.ExitOppositeState) {
			t.Errorf("expected exit at close, got %+v", sig)
		}
		if sig, _ := EvaluateExit(long, bar(100, 101, 99, 99.5), &domain.MarketState{Regime: domain.RegimeBalance}, t0, opt); sig != nil {
			t.Error("balance is not opposite to a long")
		}
	})
}
