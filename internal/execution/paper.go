// Package execution holds execution adapters. PaperExecution simulates fills
// at the signal price and tracks cash, positions and round trips.
package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/strategy"

	"github.com/shopspring/decimal"
)

// Fill is one simulated execution.
type Fill struct {
	SignalID string          `json:"signal_id"`
	Symbol   string          `json:"symbol"`
	Side     domain.Side     `json:"side"`
	Qty      decimal.Decimal `json:"qty"`
	Price    decimal.Decimal `json:"price"`
	Time     time.Time       `json:"time"`
	Reason   string          `json:"reason"`
}

// RoundTrip is a closed position.
type RoundTrip struct {
	Symbol     string          `json:"symbol"`
	Side       domain.Side     `json:"side"`
	Qty        decimal.Decimal `json:"qty"`
	EntryPrice decimal.Decimal `json:"entry_price"`
	ExitPrice  decimal.Decimal `json:"exit_price"`
	EntryTime  time.Time       `json:"entry_time"`
	ExitTime   time.Time       `json:"exit_time"`
	PnL        decimal.Decimal `json:"pnl"`
	ExitReason string          `json:"exit_reason"`
}

type openPosition struct {
	pos   domain.Position
	qty   decimal.Decimal
	entry decimal.Decimal
}

// PaperExecution is a single-account simulator with at most one position per
// symbol. Opening a position reserves qty*entry of cash as collateral for
// both sides; closing releases it plus the realized PnL.
type PaperExecution struct {
	mu sync.RWMutex

	cash         decimal.Decimal
	reserved     decimal.Decimal
	maxPositions int
	qtyStep      decimal.Decimal
	params       strategy.ParamsSource
	logger       *slog.Logger

	positions map[string]*openPosition
	fills     []Fill
	trips     []RoundTrip
	rejected  int
}

// NewPaperExecution creates a simulator funded with startingCash.
func NewPaperExecution(startingCash decimal.Decimal, maxPositions int, qtyStep decimal.Decimal, params strategy.ParamsSource, logger *slog.Logger) *PaperExecution {
	if maxPositions <= 0 {
		maxPositions = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PaperExecution{
		cash:         startingCash,
		maxPositions: maxPositions,
		qtyStep:      qtyStep,
		params:       params,
		logger:       logger,
		positions:    make(map[string]*openPosition),
	}
}

// OnSignal applies an entry or exit. Rejections are returned as wrapped
// domain sentinels and leave the account unchanged.
func (p *PaperExecution) OnSignal(_ context.Context, sig domain.Signal) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if sig.IsEntry() {
		err = p.open(sig)
	} else {
		err = p.close(sig)
	}
	if err != nil {
		p.rejected++
		return fmt.Errorf("%s %s: %w", sig.Symbol, sig.Type, err)
	}
	return nil
}

func (p *PaperExecution) open(sig domain.Signal) error {
	if _, ok := p.positions[sig.Symbol]; ok {
		return domain.ErrPositionExists
	}
	if len(p.positions) >= p.maxPositions {
		return domain.ErrMaxPositions
	}

	riskPct := strategy.DefaultParams().RiskPerTradePct
	if p.params != nil {
		riskPct = p.params.Params(sig.Symbol).RiskPerTradePct
	}
	qty := strategy.SizePosition(p.equity(), riskPct, sig.EntryPrice, sig.StopLoss, p.cash, p.qtyStep)
	if !qty.IsPositive() {
		return domain.ErrInsufficientCash
	}

	entry := decimal.NewFromFloat(sig.EntryPrice)
	cost := qty.Mul(entry)
	p.cash = p.cash.Sub(cost)
	p.reserved = p.reserved.Add(cost)

	side := sig.Side()
	p.positions[sig.Symbol] = &openPosition{
		pos: domain.Position{
			Symbol:     sig.Symbol,
			Side:       side,
			Quantity:   qty.InexactFloat64(),
			EntryPrice: sig.EntryPrice,
			StopLoss:   sig.StopLoss,
			TakeProfit: sig.TakeProfit,
			OpenedAt:   sig.Time,
		},
		qty:   qty,
		entry: entry,
	}
	p.fills = append(p.fills, Fill{
		SignalID: sig.ID, Symbol: sig.Symbol, Side: side,
		Qty: qty, Price: entry, Time: sig.Time, Reason: sig.Reason,
	})
	p.logger.Info("Paper position opened",
		slog.String("symbol", sig.Symbol),
		slog.String("side", string(side)),
		slog.String("qty", qty.String()),
		slog.Float64("price", sig.EntryPrice),
	)
	return nil
}

func (p *PaperExecution) close(sig domain.Signal) error {
	op, ok := p.positions[sig.Symbol]
	if !ok {
		return domain.ErrNoPosition
	}

	exit := decimal.NewFromFloat(sig.EntryPrice)
	cost := op.qty.Mul(op.entry)
	pnl := exit.Sub(op.entry).Mul(op.qty)
	if !op.pos.IsLong() {
		pnl = pnl.Neg()
	}
	p.reserved = p.reserved.Sub(cost)
	p.cash = p.cash.Add(cost).Add(pnl)
	delete(p.positions, sig.Symbol)

	p.fills = append(p.fills, Fill{
		SignalID: sig.ID, Symbol: sig.Symbol, Side: op.pos.Side.Opposite(),
		Qty: op.qty, Price: exit, Time: sig.Time, Reason: sig.Reason,
	})
	p.trips = append(p.trips, RoundTrip{
		Symbol:     sig.Symbol,
		Side:       op.pos.Side,
		Qty:        op.qty,
		EntryPrice: op.entry,
		ExitPrice:  exit,
		EntryTime:  op.pos.OpenedAt,
		ExitTime:   sig.Time,
		PnL:        pnl,
		ExitReason: sig.Reason,
	})
	p.logger.Info("Paper position closed",
		slog.String("symbol", sig.Symbol),
		slog.String("reason", sig.Reason),
		slog.String("pnl", pnl.StringFixed(4)),
	)
	return nil
}

// equity is cash plus collateral at cost; open positions are not marked.
func (p *PaperExecution) equity() decimal.Decimal {
	return p.cash.Add(p.reserved)
}

// OpenPosition implements domain.PositionReader. It returns a copy.
func (p *PaperExecution) OpenPosition(symbol string) *domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	op, ok := p.positions[symbol]
	if !ok {
		return nil
	}
	pos := op.pos
	return &pos
}

// Positions returns all open positions ordered by symbol.
func (p *PaperExecution) Positions() []domain.Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]domain.Position, 0, len(p.positions))
	for _, op := range p.positions {
		out = append(out, op.pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Cash returns uncommitted cash.
func (p *PaperExecution) Cash() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cash
}

// Equity returns realized equity (cash plus collateral at cost).
func (p *PaperExecution) Equity() decimal.Decimal {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.equity()
}

// GetFills returns a copy of all fills.
func (p *PaperExecution) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]Fill(nil), p.fills...)
}

// RoundTrips returns a copy of all closed positions.
func (p *PaperExecution) RoundTrips() []RoundTrip {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]RoundTrip(nil), p.trips...)
}

// Rejected returns how many signals were refused.
func (p *PaperExecution) Rejected() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.rejected
}

var (
	_ domain.SignalSink     = (*PaperExecution)(nil)
	_ domain.PositionReader = (*PaperExecution)(nil)
)
