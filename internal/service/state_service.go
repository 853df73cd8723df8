package service

import (
	"sort"
	"sync"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/strategy"
)

// SymbolState is the latest known picture of one symbol.
type SymbolState struct {
	Symbol     string          `json:"symbol"`
	Result     strategy.Result `json:"result"`
	LastCandle *domain.Candle  `json:"last_candle,omitempty"`
	LastSignal *domain.Signal  `json:"last_signal,omitempty"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// StateService caches evaluation results and closed candles for readers
// such as the status API. Writers are the runner and the sequencer.
type StateService struct {
	mu     sync.RWMutex
	states map[string]*SymbolState
	now    func() time.Time
}

// NewStateService creates a new StateService instance
func NewStateService() *StateService {
	return &StateService{
		states: make(map[string]*SymbolState),
		now:    time.Now,
	}
}

func (s *StateService) get(symbol string) *SymbolState {
	st, ok := s.states[symbol]
	if !ok {
		st = &SymbolState{Symbol: symbol}
		s.states[symbol] = st
	}
	return st
}

// Update stores an evaluation result. It implements engine.ResultObserver.
func (s *StateService) Update(res strategy.Result) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(res.Symbol)
	st.Result = res
	if n := len(res.Signals); n > 0 {
		sig := res.Signals[n-1]
		st.LastSignal = &sig
	}
	st.UpdatedAt = s.now()
}

// OnCandle records the most recent closed candle.
func (s *StateService) OnCandle(c domain.Candle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := s.get(c.Symbol)
	st.LastCandle = &c
	st.UpdatedAt = s.now()
}

// GetAll returns copies of all states sorted by symbol
func (s *StateService) GetAll() []SymbolState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]SymbolState, 0, len(s.states))
	for _, st := range s.states {
		result = append(result, *st)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})
	return result
}

// Get returns a copy of one symbol's state.
func (s *StateService) Get(symbol string) (SymbolState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.states[symbol]
	if !ok {
		return SymbolState{}, false
	}
	return *st, true
}
