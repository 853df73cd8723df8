// Package backtest replays stored history through the same evaluation path
// the live runner uses.
package backtest

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
	"auction_go/internal/execution"
	"auction_go/internal/strategy"

	"github.com/shopspring/decimal"
)

// Input is one symbol's history, ordered by time.
type Input struct {
	Symbol  string
	Candles []domain.Candle
	Trades  []domain.Trade
}

// Replayer steps through candle closes and evaluates at each one.
type Replayer struct {
	strat  strategy.Strategy
	params strategy.ParamsSource
	logger *slog.Logger
}

// NewReplayer creates a replayer.
func NewReplayer(strat strategy.Strategy, params strategy.ParamsSource, logger *slog.Logger) *Replayer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Replayer{strat: strat, params: params, logger: logger}
}

// LoadInputs reads [start, end) for each symbol from a store. When the store
// has trades but no candles the candles are aggregated from the trades.
func LoadInputs(ctx context.Context, store domain.TimeSeriesStore, params strategy.ParamsSource, symbols []string, start, end time.Time) ([]Input, error) {
	inputs := make([]Input, 0, len(symbols))
	for _, sym := range symbols {
		candles, err := store.GetCandles(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("load candles %s: %w", sym, err)
		}
		trades, err := store.GetTrades(ctx, sym, start, end)
		if err != nil {
			return nil, fmt.Errorf("load trades %s: %w", sym, err)
		}
		if len(candles) == 0 && len(trades) > 0 {
			candles = analytics.AggregateCandles(trades, params.Params(sym).CandleInterval, end)
		}
		inputs = append(inputs, Input{Symbol: sym, Candles: candles, Trades: trades})
	}
	return inputs, nil
}

// Run replays a single symbol.
func (r *Replayer) Run(ctx context.Context, in Input, exec *execution.PaperExecution) (*Report, error) {
	return r.RunAll(ctx, []Input{in}, exec)
}

type step struct {
	asOf  time.Time
	input int
}

// RunAll merges every symbol's candle closes into one timeline and evaluates
// them in (time, symbol) order, routing signals to exec.
func (r *Replayer) RunAll(ctx context.Context, inputs []Input, exec *execution.PaperExecution) (*Report, error) {
	sorted := append([]Input(nil), inputs...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	var steps []step
	for i, in := range sorted {
		for _, c := range in.Candles {
			steps = append(steps, step{asOf: c.End(), input: i})
		}
	}
	sort.SliceStable(steps, func(i, j int) bool {
		if !steps[i].asOf.Equal(steps[j].asOf) {
			return steps[i].asOf.Before(steps[j].asOf)
		}
		return steps[i].input < steps[j].input
	})

	rep := &Report{
		Statuses:    make(map[strategy.Status]int),
		StartEquity: exec.Equity(),
	}

	for i, st := range steps {
		if i%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}
		in := sorted[st.input]
		snap := strategy.Snapshot{
			Symbol:   in.Symbol,
			AsOf:     st.asOf,
			Candles:  in.Candles,
			Trades:   in.Trades,
			Position: exec.OpenPosition(in.Symbol),
		}
		res := r.strat.Evaluate(snap, r.params.Params(in.Symbol))
		rep.Statuses[res.Status]++

		for _, sig := range res.Signals {
			rep.Signals = append(rep.Signals, sig)
			if err := exec.OnSignal(ctx, sig); err != nil {
				r.logger.Debug("Signal rejected", slog.String("id", sig.ID), slog.Any("error", err))
			}
		}

		last := i == len(steps)-1 || !steps[i+1].asOf.Equal(st.asOf)
		if last {
			rep.Equity = append(rep.Equity, EquityPoint{Time: st.asOf, Equity: exec.Equity()})
		}
	}

	rep.RoundTrips = exec.RoundTrips()
	rep.Rejected = exec.Rejected()
	rep.EndEquity = exec.Equity()
	rep.OpenPositions = exec.Positions()
	rep.summarize()
	return rep, nil
}

// EquityPoint is realized equity after a candle close.
type EquityPoint struct {
	Time   time.Time       `json:"time"`
	Equity decimal.Decimal `json:"equity"`
}

// Report is the outcome of a replay.
type Report struct {
	Signals       []domain.Signal         `json:"signals"`
	RoundTrips    []execution.RoundTrip   `json:"round_trips"`
	OpenPositions []domain.Position       `json:"open_positions"`
	Equity        []EquityPoint           `json:"equity"`
	Statuses      map[strategy.Status]int `json:"statuses"`
	Rejected      int                     `json:"rejected"`
	StartEquity   decimal.Decimal         `json:"start_equity"`
	EndEquity     decimal.Decimal         `json:"end_equity"`
	Summary       Summary                 `json:"summary"`
}

// Summary aggregates round trip statistics.
type Summary struct {
	Trades         int             `json:"trades"`
	Wins           int             `json:"wins"`
	Losses         int             `json:"losses"`
	WinRate        float64         `json:"win_rate"`
	NetPnL         decimal.Decimal `json:"net_pnl"`
	GrossProfit    decimal.Decimal `json:"gross_profit"`
	GrossLoss      decimal.Decimal `json:"gross_loss"`
	MaxDrawdown    decimal.Decimal `json:"max_drawdown"`
	MaxDrawdownPct float64         `json:"max_drawdown_pct"`
}

func (r *Report) summarize() {
	s := Summary{Trades: len(r.RoundTrips)}
	for _, rt := range r.RoundTrips {
		s.NetPnL = s.NetPnL.Add(rt.PnL)
		switch {
		case rt.PnL.IsPositive():
			s.Wins++
			s.GrossProfit = s.GrossProfit.Add(rt.PnL)
		case rt.PnL.IsNegative():
			s.Losses++
			s.GrossLoss = s.GrossLoss.Add(rt.PnL.Neg())
		}
	}
	if s.Trades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.Trades)
	}

	peak := r.StartEquity
	for _, pt := range r.Equity {
		if pt.Equity.GreaterThan(peak) {
			peak = pt.Equity
		}
		dd := peak.Sub(pt.Equity)
		if dd.GreaterThan(s.MaxDrawdown) {
			s.MaxDrawdown = dd
			if peak.IsPositive() {
				s.MaxDrawdownPct = dd.Div(peak).InexactFloat64()
			}
		}
	}
	r.Summary = s
}
