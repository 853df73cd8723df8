package service

import (
	"sync"
	"testing"
	"time"

	"auction_go/internal/domain"
	"auction_go/internal/strategy"
)

var t0 = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

func TestStateService_Update(t *testing.T) {
	svc := NewStateService()

	svc.Update(strategy.Result{Symbol: "ETHUSDT", AsOf: t0, Status: strategy.StatusNoSignal})
	svc.Update(strategy.Result{
		Symbol: "BTCUSDT", AsOf: t0, Status: strategy.StatusSignal,
		Signals: []domain.Signal{{ID: "a", Symbol: "BTCUSDT", Type: domain.SignalEntryLong}},
	})

	btc, ok := svc.Get("BTCUSDT")
	if !ok {
		t.Fatal("BTCUSDT state should exist")
	}
	if btc.LastSignal == nil || btc.LastSignal.ID != "a" {
		t.Errorf("expected last signal a, got %+v", btc.LastSignal)
	}

	t.Run("Last signal survives a no-signal result", func(t *testing.T) {
		svc.Update(strategy.Result{Symbol: "BTCUSDT", AsOf: t0.Add(time.Minute), Status: strategy.StatusNoSignal})
		btc, _ := svc.Get("BTCUSDT")
		if btc.LastSignal == nil || btc.Result.Status != strategy.StatusNoSignal {
			t.Errorf("unexpected state: %+v", btc)
		}
	})

	all := svc.GetAll()
	if len(all) != 2 || all[0].Symbol != "BTCUSDT" || all[1].Symbol != "ETHUSDT" {
		t.Errorf("expected sorted states, got %+v", all)
	}
}

func TestStateService_OnCandle(t *testing.T) {
	svc := NewStateService()
	svc.OnCandle(domain.Candle{Symbol: "BTCUSDT", Start: t0, Close: 101})

	st, ok := svc.Get("BTCUSDT")
	if !ok || st.LastCandle == nil || st.LastCandle.Close != 101 {
		t.Fatalf("unexpected state: %+v", st)
	}
	if _, ok := svc.Get("SOLUSDT"); ok {
		t.Error("unknown symbol should not exist")
	}
}

func TestStateService_Concurrent(t *testing.T) {
	svc := NewStateService()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				svc.Update(strategy.Result{Symbol: "BTCUSDT"})
				svc.GetAll()
			}
		}()
	}
	wg.Wait()
	if len(svc.GetAll()) != 1 {
		t.Error("expected a single symbol")
	}
}
