package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"auction_go/internal/api"
	"auction_go/internal/backtest"
	"auction_go/internal/domain"
	"auction_go/internal/engine"
	"auction_go/internal/execution"
	"auction_go/internal/infra"
	"auction_go/internal/infra/binance"
	"auction_go/internal/infra/kafka"
	"auction_go/internal/infra/storage"
	"auction_go/internal/service"
	"auction_go/internal/strategy"

	"golang.org/x/sync/errgroup"
)

const (
	inboxSize          = 4096
	configPollInterval = 5 * time.Second
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	ConfigPath string
	Config     *infra.ConfigStore
	Logger     *slog.Logger
	Metrics    *infra.Metrics
	Storage    *storage.SQLiteStore
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap(configPath string) *Bootstrap {
	return &Bootstrap{ConfigPath: configPath}
}

// Initialize performs core system initialization (config, logger, DB)
func (b *Bootstrap) Initialize() error {
	// 1. Load Config
	cfgStore, err := infra.NewConfigStore(b.ConfigPath)
	if err != nil {
		return err
	}
	b.Config = cfgStore
	cfg := cfgStore.Current()

	// 2. Setup Logger
	b.Logger = infra.NewLogger(cfg)
	slog.SetDefault(b.Logger)
	b.Logger.Info("🚀 Bootstrapping Auction Go...", slog.String("config", b.ConfigPath))

	b.Metrics = infra.NewMetrics()

	// 3. Initialize Storage (DB)
	store, err := storage.NewSQLiteStore(cfg.Storage.Path)
	if err != nil {
		return err
	}
	b.Storage = store
	b.Logger.Info("✅ Database initialized")
	return nil
}

// Close releases storage.
func (b *Bootstrap) Close() error {
	if b.Storage != nil {
		return b.Storage.Close()
	}
	return nil
}

// RunLive ingests the trade stream and evaluates every closed candle until
// ctx is cancelled.
func (b *Bootstrap) RunLive(ctx context.Context) error {
	cfg := b.Config.Current()
	logger := b.Logger

	states := service.NewStateService()
	seq := engine.NewSequencer(inboxSize, b.Storage, b.Config, b.Metrics, logger)
	seq.OnCandle(states.OnCandle)

	paper := execution.NewPaperExecution(cfg.Execution.StartingEquity, cfg.Execution.MaxPositions,
		cfg.Execution.QtyStep, b.Config, logger)

	// paper first: the gauge reads its positions after the fill
	sinks := engine.FanOut{paper, positionGauge{paper: paper, metrics: b.Metrics}, b.Storage}
	if cfg.Kafka.Enabled {
		pub, err := kafka.NewSignalPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.ClientID, logger)
		if err != nil {
			return err
		}
		defer pub.Close()
		sinks = append(sinks, pub)
		logger.Info("✅ Kafka publisher ready", slog.String("topic", cfg.Kafka.Topic))
	}

	runner := engine.NewRunner(engine.RunnerConfig{
		Symbols:      cfg.Feed.Symbols,
		TickInterval: cfg.Engine.TickInterval,
		MaxWorkers:   cfg.Engine.MaxWorkers,
		StaleAfter:   cfg.Engine.StaleAfter,
	}, b.Storage, strategy.NewPipeline(), b.Config, paper, sinks, states, b.Metrics, logger)
	runner.BeforeTick = seq.Flush

	worker := binance.NewStreamWorker(cfg.Feed.WSURL, cfg.Feed.Symbols, seq.Inbox(), b.Metrics, logger)
	if err := worker.Connect(ctx); err != nil {
		return err
	}
	defer worker.Disconnect()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		seq.Run(ctx)
		return nil
	})
	g.Go(func() error {
		b.Config.Watch(ctx, configPollInterval, logger)
		return nil
	})
	g.Go(func() error {
		return runner.Run(ctx)
	})
	if cfg.API.Enabled {
		srv := api.NewServer(cfg.API.Addr, states, b.Storage, paper, b.Metrics, logger)
		g.Go(func() error {
			return srv.Run(ctx)
		})
	}

	logger.Info("✨ Auction Go fully operational. Press Ctrl+C to exit.",
		slog.Any("symbols", cfg.Feed.Symbols))

	err := g.Wait()
	logger.Info("👋 Shutting down gracefully...")
	return err
}

// Backfill pulls closed candles (and optionally aggregated trades) for
// [start, end) from the REST API into storage.
func (b *Bootstrap) Backfill(ctx context.Context, symbols []string, start, end time.Time, withTrades bool) error {
	cfg := b.Config.Current()
	if len(symbols) == 0 {
		symbols = cfg.Feed.Symbols
	}
	client := binance.NewRESTClient(cfg.Feed.RestURL)

	for _, sym := range symbols {
		interval := b.Config.Params(sym).CandleInterval
		candles, err := client.Klines(ctx, sym, interval, start, end)
		if err != nil {
			return fmt.Errorf("backfill candles %s: %w", sym, err)
		}
		if err := b.Storage.SaveCandles(ctx, candles); err != nil {
			return fmt.Errorf("save candles %s: %w", sym, err)
		}
		b.Logger.Info("Candles backfilled", slog.String("symbol", sym), slog.Int("count", len(candles)))

		if !withTrades {
			continue
		}
		trades, err := client.AggTrades(ctx, sym, start, end)
		if err != nil {
			return fmt.Errorf("backfill trades %s: %w", sym, err)
		}
		if err := b.Storage.AppendTrades(ctx, trades); err != nil {
			return fmt.Errorf("save trades %s: %w", sym, err)
		}
		b.Logger.Info("Trades backfilled", slog.String("symbol", sym), slog.Int("count", len(trades)))
	}
	return nil
}

// Backtest replays stored history for [start, end) and writes the JSON report to w.
func (b *Bootstrap) Backtest(ctx context.Context, symbols []string, start, end time.Time, w io.Writer) (*backtest.Report, error) {
	cfg := b.Config.Current()
	if len(symbols) == 0 {
		symbols = cfg.Feed.Symbols
	}
	inputs, err := backtest.LoadInputs(ctx, b.Storage, b.Config, symbols, start, end)
	if err != nil {
		return nil, err
	}
	paper := execution.NewPaperExecution(cfg.Execution.StartingEquity, cfg.Execution.MaxPositions,
		cfg.Execution.QtyStep, b.Config, b.Logger)

	rep, err := backtest.NewReplayer(strategy.NewPipeline(), b.Config, b.Logger).RunAll(ctx, inputs, paper)
	if err != nil {
		return nil, err
	}
	b.Logger.Info("Backtest finished",
		slog.Int("signals", len(rep.Signals)),
		slog.Int("trades", rep.Summary.Trades),
		slog.String("net_pnl", rep.Summary.NetPnL.String()),
		slog.String("max_drawdown", rep.Summary.MaxDrawdown.String()),
	)

	if w != nil {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return nil, err
		}
	}
	return rep, nil
}

// positionGauge mirrors the paper book size into metrics after each signal.
type positionGauge struct {
	paper   *execution.PaperExecution
	metrics *infra.Metrics
}

func (g positionGauge) OnSignal(context.Context, domain.Signal) error {
	g.metrics.SetOpenPositions(len(g.paper.Positions()))
	return nil
}
