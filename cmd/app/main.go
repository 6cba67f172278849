package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/infra"

	_ "net/http/pprof" // For pprof profiling
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes one backtest and returns the process exit code. Deferred
// cleanup runs before main exits.
func run(args []string) int {
	flags := flag.NewFlagSet("app", flag.ContinueOnError)
	configPath := flags.String("config", app.DefaultConfigPath, "path to the config file")
	journalPath := flags.String("journal", "", "write the run journal as JSON to this file")
	pprofAddr := flags.String("pprof", "", "serve pprof on this address, e.g. localhost:6060")
	if err := flags.Parse(args); err != nil {
		return 2
	}

	// 1. Pprof Server (for performance profiling)
	if *pprofAddr != "" {
		go func() {
			slog.Info("Pprof server started", slog.String("addr", *pprofAddr))
			if err := http.ListenAndServe(*pprofAddr, nil); err != nil {
				slog.Error("Pprof server failed", slog.Any("error", err))
			}
		}()
	}

	// 2. System Bootstrapping
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(*configPath); err != nil {
		slog.Error("Bootstrapping failed", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := bootstrap.Close(); err != nil {
			slog.Error("Failed to close bar stores", slog.Any("error", err))
		}
	}()

	// 3. Graceful Shutdown Context
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 4. Backtest wiring
	bt, err := bootstrap.NewBacktest()
	if err != nil {
		slog.Error("Backtest setup failed", slog.Any("error", err))
		return 1
	}
	bootstrap.Warmup(ctx, bt.Symbols)

	// 5. Run
	res, err := bt.Runner.Run(ctx)
	if *journalPath != "" {
		if werr := bt.Runner.Journal().WriteFile(*journalPath); werr != nil {
			slog.Error("Failed to write journal", slog.Any("error", werr))
		}
	}
	if err != nil {
		slog.Error("Backtest failed", slog.Any("error", err), slog.Int("sessions", res.Sessions))
		return 1
	}

	m := infra.GlobalMetrics.Snapshot()
	slog.Info("Backtest summary",
		slog.Int("sessions", res.Sessions),
		slog.Int("orders", res.Orders),
		slog.Int("rejections", res.Rejections),
		slog.Int("fills", len(res.Fills)),
		slog.String("cash", res.Final.Cash.String()),
		slog.String("total_value", res.Final.TotalValue.String()),
		slog.Uint64("bars_served", m.BarsServed),
		slog.Uint64("storage_degraded", m.StorageDegraded),
		slog.Float64("avg_session_ms", float64(m.AvgLatencyNs)/1e6))
	return 0
}
