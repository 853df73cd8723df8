package domain

import (
	"time"

	"github.com/google/uuid"
)

// SignalType is the kind of decision emitted by the strategy.
type SignalType string

const (
	SignalEntryLong  SignalType = "ENTRY_LONG"
	SignalEntryShort SignalType = "ENTRY_SHORT"
	SignalExit       SignalType = "EXIT"
)

// Exit reasons carried on EXIT signals.
const (
	ExitStopLoss      = "STOP_LOSS"
	ExitTakeProfit    = "TAKE_PROFIT"
	ExitOppositeState = "OPPOSITE_STATE"
)

// Signal is an immutable decision handed to exactly one execution adapter.
type Signal struct {
	ID              string     `json:"id"`
	Symbol          string     `json:"symbol"`
	Time            time.Time  `json:"time"`
	Type            SignalType `json:"type"`
	EntryPrice      float64    `json:"entry_price"` // fill reference; exit price for EXIT
	StopLoss        float64    `json:"stop_loss"`
	TakeProfit      float64    `json:"take_profit"`
	AggressionScore float64    `json:"aggression_score"`
	MarketState     Regime     `json:"market_state"`
	Reason          string     `json:"reason"`
}

// SignalID derives a stable id from the decision fields, so the live loop and a
// replay of the same history name the same signal identically.
func SignalID(symbol string, t time.Time, typ SignalType) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(symbol+"|"+string(typ)+"|"+t.UTC().Format(time.RFC3339Nano))).String()
}

// Side returns the position side the signal opens. EXIT returns UNKNOWN.
func (s Signal) Side() Side {
	switch s.Type {
	case SignalEntryLong:
		return SideBuy
	case SignalEntryShort:
		return SideSell
	default:
		return SideUnknown
	}
}

// IsEntry reports whether the signal opens a position.
func (s Signal) IsEntry() bool {
	return s.Type == SignalEntryLong || s.Type == SignalEntryShort
}

// Position is owned by the execution adapter. The strategy only reads it.
type Position struct {
	Symbol     string    `json:"symbol"`
	Side       Side      `json:"side"`
	Quantity   float64   `json:"quantity"`
	EntryPrice float64   `json:"entry_price"`
	StopLoss   float64   `json:"stop_loss"`
	TakeProfit float64   `json:"take_profit"`
	OpenedAt   time.Time `json:"opened_at"`
}

// IsLong reports whether the position is long.
func (p Position) IsLong() bool {
	return p.Side == SideBuy
}
