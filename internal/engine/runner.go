package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/infra"
	"auction_go/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// ResultObserver receives every evaluation result (e.g. the state cache).
type ResultObserver interface {
	Update(res strategy.Result)
}

// RunnerConfig holds the loop settings.
type RunnerConfig struct {
	Symbols      []string
	TickInterval time.Duration
	MaxWorkers   int
	StaleAfter   time.Duration
}

// Runner drives periodic evaluation of every symbol against the store. Each
// evaluation instant is the end of a closed candle, so a tick that sees no
// new candle does nothing.
type Runner struct {
	cfg    RunnerConfig
	store  domain.TimeSeriesStore
	strat  strategy.Strategy
	params strategy.ParamsSource

	positions domain.PositionReader
	sink      domain.SignalSink
	observer  ResultObserver
	metrics   *infra.Metrics
	logger    *slog.Logger

	// BeforeTick runs ahead of each evaluation round (e.g. a candle flush).
	BeforeTick func(ctx context.Context, now time.Time) error

	mu       sync.Mutex
	lastAsOf map[string]time.Time
}

// NewRunner creates a runner. positions, sink and observer may be nil.
func NewRunner(cfg RunnerConfig, store domain.TimeSeriesStore, strat strategy.Strategy, params strategy.ParamsSource,
	positions domain.PositionReader, sink domain.SignalSink, observer ResultObserver, metrics *infra.Metrics, logger *slog.Logger) *Runner {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = 1
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	symbols := append([]string(nil), cfg.Symbols...)
	sort.Strings(symbols)
	cfg.Symbols = symbols

	return &Runner{
		cfg:       cfg,
		store:     store,
		strat:     strat,
		params:    params,
		positions: positions,
		sink:      sink,
		observer:  observer,
		metrics:   metrics,
		logger:    logger,
		lastAsOf:  make(map[string]time.Time),
	}
}

// Run ticks until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("Runner started",
		slog.Any("symbols", r.cfg.Symbols),
		slog.Duration("tick", r.cfg.TickInterval),
		slog.Int("workers", r.cfg.MaxWorkers),
	)
	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("Runner stopping...")
			return nil
		case now := <-ticker.C:
			if _, err := r.Tick(ctx, now.UTC()); err != nil {
				if errors.Is(err, context.Canceled) {
					return nil
				}
				r.logger.Error("Tick failed", slog.Any("error", err))
			}
		}
	}
}

// pending is one symbol's unevaluated candle closes and the history that
// covers them.
type pending struct {
	params  strategy.Params
	closes  []time.Time
	candles []domain.Candle
	trades  []domain.Trade

	// immediate is delivered as is, without evaluation (no data, stale).
	immediate *strategy.Result
	commit    time.Time
	err       error
}

// Tick evaluates every candle close since the previous tick. Closes are
// processed in time order and, within one instant, in symbol order, the same
// order a replay uses. Loading and evaluation run in parallel up to
// MaxWorkers; a failure in one symbol never blocks the others. A symbol whose
// reads fail is retried from the same close on the next tick.
func (r *Runner) Tick(ctx context.Context, now time.Time) ([]strategy.Result, error) {
	if r.BeforeTick != nil {
		if err := r.BeforeTick(ctx, now); err != nil {
			return nil, fmt.Errorf("before tick: %w", err)
		}
	}

	work := make([]pending, len(r.cfg.Symbols))
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxWorkers)
	for i, sym := range r.cfg.Symbols {
		i, sym := i, sym
		g.Go(func() error {
			work[i] = r.load(ctx, sym, now)
			return nil
		})
	}
	_ = g.Wait()

	var results []strategy.Result
	var instants []time.Time
	for i, sym := range r.cfg.Symbols {
		w := &work[i]
		switch {
		case w.err != nil:
			r.logger.Error("Evaluation failed", slog.String("symbol", sym), slog.Any("error", w.err))
			if r.metrics != nil {
				r.metrics.RecordError("evaluate")
			}
		case w.immediate != nil:
			results = append(results, *w.immediate)
			r.deliver(ctx, *w.immediate, 0)
			r.commit(sym, w.commit)
		case len(w.closes) == 0:
			if r.metrics != nil {
				r.metrics.RecordSkip()
			}
		default:
			if len(w.closes) > 1 {
				r.logger.Info("Catching up candle closes", slog.String("symbol", sym), slog.Int("closes", len(w.closes)))
			}
			instants = append(instants, w.closes...)
		}
	}

	sort.Slice(instants, func(i, j int) bool { return instants[i].Before(instants[j]) })
	for k, asOf := range instants {
		if k > 0 && asOf.Equal(instants[k-1]) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return results, err
		}
		results = append(results, r.round(ctx, work, asOf)...)
	}
	return results, ctx.Err()
}

type evaluation struct {
	res     strategy.Result
	ok      bool
	latency time.Duration
}

// round evaluates every symbol with a close at asOf, then delivers the
// results in symbol order. Positions are read per round so an entry emitted
// at one close is visible to the exit check at the next.
func (r *Runner) round(ctx context.Context, work []pending, asOf time.Time) []strategy.Result {
	evals := make([]evaluation, len(r.cfg.Symbols))
	var g errgroup.Group
	g.SetLimit(r.cfg.MaxWorkers)
	for i, sym := range r.cfg.Symbols {
		i, sym := i, sym
		w := &work[i]
		if w.err != nil || w.immediate != nil || !slices.ContainsFunc(w.closes, asOf.Equal) {
			continue
		}
		g.Go(func() error {
			start := time.Now()
			snap := strategy.Snapshot{
				Symbol:  sym,
				AsOf:    asOf,
				Candles: w.candles,
				Trades:  w.trades,
			}
			if r.positions != nil {
				snap.Position = r.positions.OpenPosition(sym)
			}
			evals[i] = evaluation{res: r.strat.Evaluate(snap, w.params), ok: true, latency: time.Since(start)}
			return nil
		})
	}
	_ = g.Wait()

	var results []strategy.Result
	for i, sym := range r.cfg.Symbols {
		e := evals[i]
		if !e.ok {
			continue
		}
		results = append(results, e.res)
		r.deliver(ctx, e.res, e.latency)
		r.commit(sym, asOf)
	}
	return results
}

func (r *Runner) deliver(ctx context.Context, res strategy.Result, latency time.Duration) {
	if r.metrics != nil {
		r.metrics.RecordEvaluation(res.Symbol, string(res.Status), latency)
	}
	if r.observer != nil {
		r.observer.Update(res)
	}
	r.emit(ctx, res)
}

func (r *Runner) commit(symbol string, asOf time.Time) {
	if asOf.IsZero() {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if asOf.After(r.lastAsOf[symbol]) {
		r.lastAsOf[symbol] = asOf
	}
}

func (r *Runner) emit(ctx context.Context, res strategy.Result) {
	for _, sig := range res.Signals {
		r.logger.Info("SIGNAL",
			slog.String("symbol", sig.Symbol),
			slog.String("type", string(sig.Type)),
			slog.Float64("price", sig.EntryPrice),
			slog.Float64("stop", sig.StopLoss),
			slog.Float64("target", sig.TakeProfit),
			slog.String("reason", sig.Reason),
		)
		if r.metrics != nil {
			r.metrics.RecordSignal(sig.Symbol, string(sig.Type))
		}
		if r.sink == nil {
			continue
		}
		if err := r.sink.OnSignal(ctx, sig); err != nil {
			r.logger.Warn("Signal sink rejected signal", slog.String("id", sig.ID), slog.Any("error", err))
		}
	}
}

// load finds the candle closes after the last committed one and reads the
// history they need. Nothing is committed here. On the first tick only the
// latest close is taken.
func (r *Runner) load(ctx context.Context, symbol string, now time.Time) pending {
	p := r.params.Params(symbol)
	w := pending{params: p}

	r.mu.Lock()
	prev := r.lastAsOf[symbol]
	r.mu.Unlock()

	scanFrom := now.Add(-p.Lookback - p.CandleInterval)
	if !prev.IsZero() && prev.Before(scanFrom) {
		scanFrom = prev
	}
	recent, err := r.store.GetCandles(ctx, symbol, scanFrom, now)
	if err != nil {
		w.err = domain.NewNetworkError("get candles", err)
		return w
	}
	for _, c := range recent {
		if end := c.End(); end.After(prev) && !end.After(now) {
			w.closes = append(w.closes, end)
		}
	}
	if len(w.closes) == 0 {
		if prev.IsZero() {
			w.immediate = &strategy.Result{
				Symbol: symbol,
				AsOf:   now,
				Status: strategy.StatusInsufficientData,
				Reason: "no closed candles in store",
			}
		}
		return w
	}
	if prev.IsZero() {
		w.closes = w.closes[len(w.closes)-1:]
	}

	last := w.closes[len(w.closes)-1]
	if r.cfg.StaleAfter > 0 && now.Sub(last) > r.cfg.StaleAfter {
		w.immediate = &strategy.Result{
			Symbol: symbol,
			AsOf:   last,
			Status: strategy.StatusStale,
			Reason: fmt.Sprintf("%v: last candle closed %s ago", domain.ErrStaleData, now.Sub(last).Truncate(time.Second)),
		}
		w.commit = last
		w.closes = nil
		return w
	}

	from := w.closes[0].Add(-p.Lookback)
	if w.candles, err = r.store.GetCandles(ctx, symbol, from, last); err != nil {
		w.err = domain.NewNetworkError("get candles", err)
		return w
	}
	if w.trades, err = r.store.GetTrades(ctx, symbol, from, last); err != nil {
		w.err = domain.NewNetworkError("get trades", err)
		return w
	}
	return w
}

// FanOut delivers each signal to every sink in order and joins their errors.
type FanOut []domain.SignalSink

// OnSignal implements domain.SignalSink.
func (f FanOut) OnSignal(ctx context.Context, sig domain.Signal) error {
	var errs []error
	for _, s := range f {
		if err := s.OnSignal(ctx, sig); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ domain.SignalSink = FanOut(nil)
