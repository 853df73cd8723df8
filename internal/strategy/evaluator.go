package strategy

import (
	"fmt"
	"math"
	"time"

	"auction_go/internal/domain"
)

// EntryInput is everything an entry decision depends on. Time is the
// evaluation instant supplied by the caller, never the wall clock.
type EntryInput struct {
	Symbol     string
	Time       time.Time
	Price      float64
	State      domain.MarketState
	Aggression domain.Aggression
	ATR        float64
	Position   *domain.Position
}

// EvaluateEntry returns an entry signal or nil with the reason it declined.
//
// An entry needs: no open position, an imbalance state (or BALANCE when
// allowed, at the stricter balance score), an aggression score at or above the
// minimum, flow agreeing with the state's direction, and a positive ATR.
func EvaluateEntry(in EntryInput, p Params) (*domain.Signal, string) {
	if in.Position != nil {
		return nil, "position already open"
	}
	if !(in.ATR > 0) || math.IsInf(in.ATR, 0) {
		return nil, "atr unavailable"
	}
	if !(in.Price > 0) {
		return nil, "no price"
	}

	minScore := p.MinAggressionScore
	want := in.State.Regime.Direction()
	if in.State.Regime == domain.RegimeBalance {
		if !p.AllowBalanceTrades {
			return nil, "balance: trades disabled"
		}
		minScore = math.Max(minScore, p.BalanceAggressionScore)
		want = in.Aggression.Direction
		if want == domain.SideUnknown {
			return nil, "balance: no flow direction"
		}
	}

	if in.Aggression.Score < minScore {
		return nil, fmt.Sprintf("aggression %.0f below %.0f", in.Aggression.Score, minScore)
	}
	if in.Aggression.Direction != want {
		return nil, fmt.Sprintf("flow %s disagrees with %s", in.Aggression.Direction, in.State.Regime)
	}

	stopDist := p.ATRStopMultiplier * in.ATR
	targetDist := p.ATRTargetMultiplier * in.ATR
	sig := &domain.Signal{
		Symbol:          in.Symbol,
		Time:            in.Time,
		EntryPrice:      in.Price,
		AggressionScore: in.Aggression.Score,
		MarketState:     in.State.Regime,
	}
	if want == domain.SideBuy {
		sig.Type = domain.SignalEntryLong
		sig.StopLoss = in.Price - stopDist
		sig.TakeProfit = in.Price + targetDist
	} else {
		sig.Type = domain.SignalEntryShort
		sig.StopLoss = in.Price + stopDist
		sig.TakeProfit = in.Price - targetDist
	}
	sig.ID = domain.SignalID(sig.Symbol, sig.Time, sig.Type)
	sig.Reason = fmt.Sprintf("%s aggression=%.0f flow=%s rvol=%.2f atr=%.4f",
		describeState(in.State), in.Aggression.Score, in.Aggression.Direction, in.Aggression.RelativeVolume, in.ATR)
	return sig, sig.Reason
}

// EvaluateExit checks an open position against one bar.
//
// Stop and target are tested on the bar's high and low, not its close. A bar
// that opens beyond a level fills at the open. When both levels sit inside
// one bar the OHLC path decides: an up bar is taken as open-low-high-close, a
// down bar as open-high-low-close. If neither level is hit and
// ExitOnOppositeState is set, a state flip against the position exits at the close.
func EvaluateExit(pos *domain.Position, bar domain.Bar, state *domain.MarketState, at time.Time, p Params) (*domain.Signal, string) {
	if pos == nil {
		return nil, "no position"
	}

	price, why := touchExit(pos, bar)
	if why == "" && p.ExitOnOppositeState && state != nil &&
		state.Regime.Direction() == pos.Side.Opposite() && state.Regime != domain.RegimeBalance {
		price, why = bar.Close, domain.ExitOppositeState
	}
	if why == "" {
		return nil, "holding"
	}

	sig := &domain.Signal{
		ID:          domain.SignalID(pos.Symbol, at, domain.SignalExit),
		Symbol:      pos.Symbol,
		Time:        at,
		Type:        domain.SignalExit,
		EntryPrice:  price,
		StopLoss:    pos.StopLoss,
		TakeProfit:  pos.TakeProfit,
		MarketState: domain.RegimeBalance,
		Reason:      fmt.Sprintf("%s %s @ %.4f", why, pos.Side, price),
	}
	if state != nil {
		sig.MarketState = state.Regime
	}
	return sig, sig.Reason
}

func touchExit(pos *domain.Position, bar domain.Bar) (float64, string) {
	stop, target := pos.StopLoss, pos.TakeProfit
	upBar := bar.Close >= bar.Open

	if pos.IsLong() {
		if stop > 0 && bar.Open <= stop {
			return bar.Open, domain.ExitStopLoss
		}
		if target > 0 && bar.Open >= target {
			return bar.Open, domain.ExitTakeProfit
		}
		hitStop := stop > 0 && bar.Low <= stop
		hitTarget := target > 0 && bar.High >= target
		switch {
		case hitStop && hitTarget:
			if upBar {
				return stop, domain.ExitStopLoss
			}
			return target, domain.ExitTakeProfit
		case hitStop:
			return stop, domain.ExitStopLoss
		case hitTarget:
			return target, domain.ExitTakeProfit
		}
		return 0, ""
	}

	if stop > 0 && bar.Open >= stop {
		return bar.Open, domain.ExitStopLoss
	}
	if target > 0 && bar.Open <= target {
		return bar.Open, domain.ExitTakeProfit
	}
	hitStop := stop > 0 && bar.High >= stop
	hitTarget := target > 0 && bar.Low <= target
	switch {
	case hitStop && hitTarget:
		if upBar {
			return target, domain.ExitTakeProfit
		}
		return stop, domain.ExitStopLoss
	case hitStop:
		return stop, domain.ExitStopLoss
	case hitTarget:
		return target, domain.ExitTakeProfit
	}
	return 0, ""
}
