package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"auction_go/internal/domain"
)

type series struct {
	trades  []domain.Trade
	candles []domain.Candle
}

// MemoryStore is an in-process TimeSeries store used for replays and tests.
// Out-of-order trades and already-stored candle buckets are ignored.
type MemoryStore struct {
	mu      sync.RWMutex
	series  map[string]*series
	signals map[string][]domain.Signal
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		series:  make(map[string]*series),
		signals: make(map[string][]domain.Signal),
	}
}

func (m *MemoryStore) get(symbol string) *series {
	s, ok := m.series[symbol]
	if !ok {
		s = &series{}
		m.series[symbol] = s
	}
	return s
}

// AppendTrade appends a trade if it is not older than the last one.
func (m *MemoryStore) AppendTrade(_ context.Context, t domain.Trade) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(t.Symbol)
	if n := len(s.trades); n > 0 && t.Time.Before(s.trades[n-1].Time) {
		return nil
	}
	s.trades = append(s.trades, t)
	return nil
}

// SaveCandle appends a closed candle if its bucket is newer than the last one.
func (m *MemoryStore) SaveCandle(_ context.Context, c domain.Candle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.get(c.Symbol)
	if n := len(s.candles); n > 0 && !c.Start.After(s.candles[n-1].Start) {
		return nil
	}
	s.candles = append(s.candles, c)
	return nil
}

// GetCandles returns candles with start in [start, end).
func (m *MemoryStore) GetCandles(_ context.Context, symbol string, start, end time.Time) ([]domain.Candle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[symbol]
	if !ok {
		return nil, nil
	}
	lo := sort.Search(len(s.candles), func(i int) bool { return !s.candles[i].Start.Before(start) })
	hi := sort.Search(len(s.candles), func(i int) bool { return !s.candles[i].Start.Before(end) })
	if hi <= lo {
		return nil, nil
	}
	out := make([]domain.Candle, hi-lo)
	copy(out, s.candles[lo:hi])
	return out, nil
}

// GetTrades returns trades with time in [start, end).
func (m *MemoryStore) GetTrades(_ context.Context, symbol string, start, end time.Time) ([]domain.Trade, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.series[symbol]
	if !ok {
		return nil, nil
	}
	lo := sort.Search(len(s.trades), func(i int) bool { return !s.trades[i].Time.Before(start) })
	hi := sort.Search(len(s.trades), func(i int) bool { return !s.trades[i].Time.Before(end) })
	if hi <= lo {
		return nil, nil
	}
	out := make([]domain.Trade, hi-lo)
	copy(out, s.trades[lo:hi])
	return out, nil
}

// OnSignal records a signal.
func (m *MemoryStore) OnSignal(_ context.Context, sig domain.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.signals[sig.Symbol] = append(m.signals[sig.Symbol], sig)
	return nil
}

// GetSignals returns up to limit most recent signals, oldest first.
func (m *MemoryStore) GetSignals(_ context.Context, symbol string, limit int) ([]domain.Signal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sigs := m.signals[symbol]
	if limit > 0 && len(sigs) > limit {
		sigs = sigs[len(sigs)-limit:]
	}
	out := make([]domain.Signal, len(sigs))
	copy(out, sigs)
	return out, nil
}

var (
	_ domain.TimeSeriesStore  = (*MemoryStore)(nil)
	_ domain.MarketDataWriter = (*MemoryStore)(nil)
	_ domain.SignalSink       = (*MemoryStore)(nil)
	_ domain.TimeSeriesStore  = (*SQLiteStore)(nil)
	_ domain.MarketDataWriter = (*SQLiteStore)(nil)
	_ domain.SignalSink       = (*SQLiteStore)(nil)
)
