package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction_go/internal/app"

	"github.com/spf13/cobra"

	_ "net/http/pprof" // For pprof profiling
)

const timeLayout = "2006-01-02T15:04"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// newRootCmd creates the root command
func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "auction",
		Short: "Auction Go - auction market theory signal engine",
		Long: `Auction Go builds volume profiles and order flow from a live trade stream,
classifies each symbol as balanced or imbalanced and emits entry and exit signals.
The same evaluation runs in live mode and in backtests over stored history.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/config.yaml", "Configuration file path")

	rootCmd.AddCommand(newLiveCmd(&configPath))
	rootCmd.AddCommand(newBackfillCmd(&configPath))
	rootCmd.AddCommand(newBacktestCmd(&configPath))
	return rootCmd
}

func bootstrap(configPath string) (*app.Bootstrap, error) {
	b := app.NewBootstrap(configPath)
	if err := b.Initialize(); err != nil {
		slog.Error("❌ Bootstrapping failed", slog.Any("error", err))
		return nil, err
	}
	return b, nil
}

// newLiveCmd creates the live command
func newLiveCmd(configPath *string) *cobra.Command {
	var pprofAddr string
	cmd := &cobra.Command{
		Use:   "live",
		Short: "Stream trades and evaluate signals in real time",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			if pprofAddr != "" {
				go func() {
					// Localhost only for security
					slog.Info("🕵️ Pprof server started", slog.String("addr", pprofAddr))
					if err := http.ListenAndServe(pprofAddr, nil); err != nil {
						slog.Error("Pprof server failed", slog.Any("error", err))
					}
				}()
			}

			// Graceful Shutdown Context
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return b.RunLive(ctx)
		},
	}
	cmd.Flags().StringVar(&pprofAddr, "pprof", "localhost:6060", "pprof listen address (empty disables)")
	return cmd
}

// newBackfillCmd creates the backfill command
func newBackfillCmd(configPath *string) *cobra.Command {
	var (
		from, to   string
		withTrades bool
	)
	cmd := &cobra.Command{
		Use:   "backfill [SYMBOL...]",
		Short: "Download historical candles into storage",
		Long: `Download closed candles for the given symbols (default: feed.symbols)
between --from and --to (UTC, ` + timeLayout + `). With --trades the aggregated
trade tape is stored as well, which gives backtests a true aggressor split.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			b, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return b.Backfill(ctx, args, start, end, withTrades)
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Range start, UTC")
	cmd.Flags().StringVar(&to, "to", "", "Range end, UTC (default now)")
	cmd.Flags().BoolVar(&withTrades, "trades", false, "Also store aggregated trades")
	cmd.MarkFlagRequired("from")
	return cmd
}

// newBacktestCmd creates the backtest command
func newBacktestCmd(configPath *string) *cobra.Command {
	var from, to, out string
	cmd := &cobra.Command{
		Use:   "backtest [SYMBOL...]",
		Short: "Replay stored history through the live evaluation path",
		RunE: func(cmd *cobra.Command, args []string) error {
			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}
			b, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer b.Close()

			w := cmd.OutOrStdout()
			if out != "" {
				f, err := os.Create(out)
				if err != nil {
					return err
				}
				defer f.Close()
				w = f
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			_, err = b.Backtest(ctx, args, start, end, w)
			return err
		},
	}
	cmd.Flags().StringVar(&from, "from", "", "Range start, UTC")
	cmd.Flags().StringVar(&to, "to", "", "Range end, UTC (default now)")
	cmd.Flags().StringVarP(&out, "output", "o", "", "Write the JSON report to a file instead of stdout")
	cmd.MarkFlagRequired("from")
	return cmd
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(timeLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --from, use %s: %w", timeLayout, err)
	}
	end := time.Now().UTC()
	if to != "" {
		if end, err = time.Parse(timeLayout, to); err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --to, use %s: %w", timeLayout, err)
		}
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, fmt.Errorf("empty range %s .. %s", start, end)
	}
	return start, end, nil
}
