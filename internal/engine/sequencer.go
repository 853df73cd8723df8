package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"auction_go/internal/analytics"
	"auction_go/internal/domain"
	"auction_go/internal/event"
	"auction_go/internal/infra"
	"auction_go/internal/strategy"
)

// Sequencer is the single-threaded ingestion loop. Every trade goes to the
// store before it touches a candle builder, and closed candles are written
// exactly once. Events from all feeds are serialized through one inbox.
type Sequencer struct {
	inbox   chan event.Event
	nextSeq uint64

	writer  domain.MarketDataWriter
	params  strategy.ParamsSource
	metrics *infra.Metrics
	logger  *slog.Logger

	builders  map[string]*analytics.CandleBuilder
	lastTrade map[string]time.Time

	// Boundary: notified after a candle is persisted
	onCandle func(domain.Candle)

	mu sync.RWMutex // Used only for external reads (e.g. API)
}

// NewSequencer creates a new sequencer instance.
func NewSequencer(inboxSize int, writer domain.MarketDataWriter, params strategy.ParamsSource, metrics *infra.Metrics, logger *slog.Logger) *Sequencer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sequencer{
		inbox:     make(chan event.Event, inboxSize),
		nextSeq:   1,
		writer:    writer,
		params:    params,
		metrics:   metrics,
		logger:    logger,
		builders:  make(map[string]*analytics.CandleBuilder),
		lastTrade: make(map[string]time.Time),
	}
}

// OnCandle registers a callback invoked on the sequencer goroutine.
func (s *Sequencer) OnCandle(fn func(domain.Candle)) {
	s.onCandle = fn
}

// Inbox returns the event channel. External workers send events here.
func (s *Sequencer) Inbox() chan<- event.Event {
	return s.inbox
}

// Run starts the main event loop. This MUST be run in a single goroutine.
// Pooled trade events are released after processing.
func (s *Sequencer) Run(ctx context.Context) {
	s.logger.Info("Sequencer started")

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			s.DumpState("panic_dump.json")
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Sequencer stopping...")
			return
		case ev := <-s.inbox:
			if err := s.Handle(ctx, ev); err != nil {
				s.logger.Error("Event processing failed", slog.Any("error", err))
				if s.metrics != nil {
					s.metrics.RecordError("sequencer")
				}
			}
			if te, ok := ev.(*event.TradeEvent); ok {
				event.ReleaseTradeEvent(te)
			}
		}
	}
}

// Flush asks the loop to close every candle whose interval has elapsed at
// now and waits until it has been processed.
func (s *Sequencer) Flush(ctx context.Context, now time.Time) error {
	done := make(chan struct{})
	select {
	case s.inbox <- &event.ClockEvent{Now: now, Done: done}:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Handle processes one event synchronously. It is called by Run and by
// callers that drive ingestion themselves (replays, tests); it must never be
// called concurrently with Run.
func (s *Sequencer) Handle(ctx context.Context, ev event.Event) error {
	ev.SetSeq(s.nextSeq)
	s.nextSeq++

	switch e := ev.(type) {
	case *event.TradeEvent:
		return s.handleTrade(ctx, e)
	case *event.ClockEvent:
		err := s.handleClock(ctx, e.Now)
		if e.Done != nil {
			close(e.Done)
		}
		return err
	default:
		s.logger.Warn("Unknown event type", slog.Any("type", ev.GetType()))
		return nil
	}
}

func (s *Sequencer) handleTrade(ctx context.Context, e *event.TradeEvent) error {
	trade := e.Trade()
	if trade.Symbol == "" || !(trade.Price > 0) || !(trade.Size > 0) {
		s.drop("invalid trade", trade)
		return nil
	}
	if last, ok := s.lastTrade[trade.Symbol]; ok && trade.Time.Before(last) {
		s.drop("out-of-order trade", trade)
		return nil
	}

	b := s.builder(trade.Symbol)
	s.mu.Lock()
	accepted := b.Accepts(trade.Time)
	s.mu.Unlock()
	if !accepted {
		s.drop("trade for closed candle", trade)
		return nil
	}

	// 1. WAL-first: Persistence
	if s.writer != nil {
		if err := s.writer.AppendTrade(ctx, trade); err != nil {
			return fmt.Errorf("append trade %s: %w", trade.Symbol, err)
		}
	}
	s.lastTrade[trade.Symbol] = trade.Time
	if s.metrics != nil {
		s.metrics.RecordTrade(trade.Symbol)
	}

	// 2. Candle aggregation
	s.mu.Lock()
	closed, ok := b.Add(trade)
	s.mu.Unlock()
	if !ok {
		s.drop("trade for closed candle", trade)
		return nil
	}
	if closed != nil {
		return s.saveCandle(ctx, *closed)
	}
	return nil
}

func (s *Sequencer) handleClock(ctx context.Context, now time.Time) error {
	symbols := make([]string, 0, len(s.builders))
	for sym := range s.builders {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	for _, sym := range symbols {
		s.mu.Lock()
		closed := s.builders[sym].Flush(now)
		s.mu.Unlock()
		if closed == nil {
			continue
		}
		if err := s.saveCandle(ctx, *closed); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) saveCandle(ctx context.Context, c domain.Candle) error {
	if s.writer != nil {
		if err := s.writer.SaveCandle(ctx, c); err != nil {
			return fmt.Errorf("save candle %s@%s: %w", c.Symbol, c.Start.Format(time.RFC3339), err)
		}
	}
	s.logger.Debug("Candle closed",
		slog.String("symbol", c.Symbol),
		slog.Time("start", c.Start),
		slog.Float64("close", c.Close),
		slog.Float64("volume", c.Volume),
	)
	if s.onCandle != nil {
		s.onCandle(c)
	}
	return nil
}

func (s *Sequencer) builder(symbol string) *analytics.CandleBuilder {
	b, ok := s.builders[symbol]
	if !ok {
		interval := analytics.DefaultCandleInterval
		if s.params != nil {
			interval = s.params.Params(symbol).CandleInterval
		}
		b = analytics.NewCandleBuilder(symbol, interval)
		s.mu.Lock()
		s.builders[symbol] = b
		s.mu.Unlock()
	}
	return b
}

func (s *Sequencer) drop(why string, t domain.Trade) {
	s.logger.Debug("Trade dropped", slog.String("reason", why), slog.String("symbol", t.Symbol), slog.Time("time", t.Time))
	if s.metrics != nil {
		s.metrics.RecordDropped()
	}
}

// PendingCandle returns the candle still being built for symbol (external read).
func (s *Sequencer) PendingCandle(symbol string) (domain.Candle, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.builders[symbol]
	if !ok {
		return domain.Candle{}, false
	}
	return b.Pending()
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (s *Sequencer) DumpState(filename string) {
	s.logger.Info("Dumping internal state...", slog.String("file", filename))

	s.mu.RLock()
	pending := make(map[string]domain.Candle, len(s.builders))
	for sym, b := range s.builders {
		if c, ok := b.Pending(); ok {
			pending[sym] = c
		}
	}
	s.mu.RUnlock()

	data := struct {
		NextSeq   uint64                   `json:"next_seq"`
		Pending   map[string]domain.Candle `json:"pending"`
		LastTrade map[string]time.Time     `json:"last_trade"`
	}{
		NextSeq:   s.nextSeq,
		Pending:   pending,
		LastTrade: s.lastTrade,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		s.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		s.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
