package strategy

import (
	"sort"
	"time"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
)

// Status classifies an evaluation outcome.
type Status string

const (
	StatusSignal           Status = "SIGNAL"
	StatusNoSignal         Status = "NO_SIGNAL"
	StatusInsufficientData Status = "INSUFFICIENT_DATA"
	StatusStale            Status = "STALE"
)

// Snapshot is the full input of one evaluation. Candles and trades must be
// ordered by time; anything at or after AsOf is ignored.
type Snapshot struct {
	Symbol   string
	AsOf     time.Time
	Candles  []domain.Candle
	Trades   []domain.Trade
	Position *domain.Position
}

// Result is the outcome of one evaluation, with diagnostics for no-signal cases.
type Result struct {
	Symbol     string                `json:"symbol"`
	AsOf       time.Time             `json:"as_of"`
	Status     Status                `json:"status"`
	Reason     string                `json:"reason"`
	Price      float64               `json:"price"`
	State      domain.MarketState    `json:"state"`
	Profile    domain.ProfileMetrics `json:"profile"`
	Flow       domain.FlowSummary    `json:"flow"`
	Aggression domain.Aggression     `json:"aggression"`
	ATR        float64               `json:"atr"`
	Signals    []domain.Signal       `json:"signals"`
}

// Pipeline chains profile, flow, classifier, scorer and evaluator.
// It holds no state: the same Snapshot and Params always give the same Result.
type Pipeline struct{}

// NewPipeline creates the evaluation pipeline.
func NewPipeline() *Pipeline {
	return &Pipeline{}
}

// Evaluate runs one decision for one symbol.
func (Pipeline) Evaluate(snap Snapshot, p Params) Result {
	res := Result{Symbol: snap.Symbol, AsOf: snap.AsOf, Status: StatusNoSignal}

	candles, trades := SliceWindow(snap.Candles, snap.Trades, snap.AsOf, p.Lookback)
	if len(candles) == 0 {
		res.Status = StatusInsufficientData
		res.Reason = "no closed candles in window"
		return res
	}
	last := candles[len(candles)-1]
	res.Price = last.Close

	opts := p.profileOptions()
	var profile domain.VolumeProfile
	var err error
	if len(trades) > 0 {
		profile, err = analytics.ProfileFromTrades(snap.Symbol, trades, opts)
	} else {
		profile, err = analytics.ProfileFromCandles(snap.Symbol, candles, opts)
	}
	if err != nil {
		res.Status = StatusInsufficientData
		res.Reason = err.Error()
		// Stops and targets only need the bar.
		if snap.Position != nil {
			out := res.exit(snap.Position, last, nil, snap.AsOf, p)
			if len(out.Signals) == 0 {
				out.Reason = res.Reason
			}
			return out
		}
		return res
	}
	res.Profile = analytics.ComputeMetrics(profile, opts)
	res.Flow = analytics.ComputeFlow(snap.Symbol, candles, trades, p.CandleInterval, p.MomentumBuckets)
	res.State = Classify(snap.Symbol, snap.AsOf, last.Close, res.Profile, analytics.Closes(candles), res.Flow, p.Thresholds())

	relVol, _ := analytics.RelativeVolume(candles, p.RelVolumeLookback)
	res.Aggression = ScoreAggression(res.Flow.Records, relVol, p.AggressionParams())
	atr, atrOK := analytics.ATR(candles, p.ATRPeriod)
	res.ATR = atr

	if snap.Position != nil {
		return res.exit(snap.Position, last, &res.State, snap.AsOf, p)
	}

	if !res.Profile.Valid {
		res.Status = StatusInsufficientData
		res.Reason = "empty volume profile"
		return res
	}
	if !atrOK {
		res.Status = StatusInsufficientData
		res.Reason = "atr warm-up"
		return res
	}

	sig, why := EvaluateEntry(EntryInput{
		Symbol:     snap.Symbol,
		Time:       snap.AsOf,
		Price:      last.Close,
		State:      res.State,
		Aggression: res.Aggression,
		ATR:        atr,
	}, p)
	return res.with(sig, why)
}

func (r Result) exit(pos *domain.Position, last domain.Candle, state *domain.MarketState, at time.Time, p Params) Result {
	if last.Start.Before(pos.OpenedAt) {
		r.Reason = "waiting for first bar after entry"
		return r
	}
	sig, why := EvaluateExit(pos, domain.BarFromCandle(last), state, at, p)
	return r.with(sig, why)
}

func (r Result) with(sig *domain.Signal, why string) Result {
	r.Reason = why
	if sig != nil {
		r.Status = StatusSignal
		r.Signals = []domain.Signal{*sig}
	}
	return r
}

// SliceWindow returns the closed candles within [asOf-lookback, asOf] and the
// trades within [asOf-lookback, asOf). Inputs must be time ordered.
// Live and replay both select their window through here.
func SliceWindow(candles []domain.Candle, trades []domain.Trade, asOf time.Time, lookback time.Duration) ([]domain.Candle, []domain.Trade) {
	from := asOf.Add(-lookback)

	cStart := sort.Search(len(candles), func(i int) bool { return !candles[i].Start.Before(from) })
	cEnd := sort.Search(len(candles), func(i int) bool { return candles[i].End().After(asOf) })
	if cEnd < cStart {
		cEnd = cStart
	}

	tStart := sort.Search(len(trades), func(i int) bool { return !trades[i].Time.Before(from) })
	tEnd := sort.Search(len(trades), func(i int) bool { return !trades[i].Time.Before(asOf) })
	if tEnd < tStart {
		tEnd = tStart
	}
	return candles[cStart:cEnd], trades[tStart:tEnd]
}
