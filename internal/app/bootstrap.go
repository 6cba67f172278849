package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"crypto_backtest/internal/calendar"
	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/cost"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/engine"
	"crypto_backtest/internal/execution"
	"crypto_backtest/internal/history"
	"crypto_backtest/internal/infra"
	"crypto_backtest/internal/infra/storage"
	"crypto_backtest/internal/service"
	"crypto_backtest/internal/strategy"
)

// DefaultConfigPath is read by Initialize when no path is given.
const DefaultConfigPath = "configs/config.yaml"

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config   *infra.Config
	Logger   *slog.Logger
	Metrics  *infra.Metrics
	Stores   *storage.Stores
	Catalog  *catalog.Catalog
	Calendar *calendar.Calendar
	Costs    *cost.Schedule
	History  *history.Engine
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config at path, installs the logger as the default
// one and builds the data layer.
func (b *Bootstrap) Initialize(path string) error {
	if path == "" {
		path = DefaultConfigPath
	}

	// 1. Load Config
	cfg, err := infra.LoadConfig(path)
	if err != nil {
		return err // Let main handle the error
	}

	// 2. Setup Logger
	logger := infra.NewLogger(cfg)
	slog.SetDefault(logger)

	return b.InitializeWith(cfg, logger)
}

// InitializeWith builds the data layer from an already loaded config.
func (b *Bootstrap) InitializeWith(cfg *infra.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	b.Config = cfg
	b.Logger = logger
	if b.Metrics == nil {
		b.Metrics = infra.GlobalMetrics
	}
	logger.Info("Bootstrapping crypto backtest...", slog.String("data", cfg.Data.Path))

	// 3. Instrument Catalog
	cat, err := catalog.LoadFile(cfg.Data.Instruments)
	if err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}
	b.Catalog = cat
	logger.Info("Instrument catalog loaded", slog.Int("instruments", cat.Len()))

	// 4. Trading Calendar
	cal, err := calendar.New(cfg.Calendar.Start, cfg.Calendar.End)
	if err != nil {
		return err
	}
	b.Calendar = cal

	// 5. Cost Models
	costs, err := cost.FromConfig(cfg, logger, b.Metrics)
	if err != nil {
		return err
	}
	b.Costs = costs

	// 6. Bar Stores + History Engine
	b.Stores = storage.Open(cfg.Data.Path, logger, b.Metrics)
	b.History = history.New(b.Stores.ByClass(), cat, cal, logger, b.Metrics)
	logger.Info("Bar stores ready", slog.String("dir", b.Stores.Dir()))

	return nil
}

// Warmup loads the stored sequences of symbols into the history cache with
// bounded concurrency. It blocks until every symbol is loaded or ctx is done.
func (b *Bootstrap) Warmup(ctx context.Context, symbols []string) {
	b.Logger.Info("Starting history warmup...", slog.Int("symbols", len(symbols)))

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, 5) // Limit concurrent store reads

	for _, symbol := range symbols {
		wg.Add(1)
		go func(sym string) {
			defer wg.Done()
			select {
			case <-ctx.Done():
				return
			case semaphore <- struct{}{}: // Acquire
			}
			defer func() { <-semaphore }() // Release

			if _, ok := b.History.LastPrice(sym, b.Calendar.End()); !ok {
				b.Logger.Warn("No history for symbol", slog.String("symbol", sym))
			}
		}(symbol)
	}

	wg.Wait()
	b.Logger.Info("History warmup completed")
}

// Backtest holds the collaborators of one configured run.
type Backtest struct {
	Runner    *engine.Runner
	Portfolio *execution.PaperPortfolio
	Prices    *service.PriceBook
	Strategy  strategy.Strategy
	Symbols   []string
}

// NewBacktest wires the run described by the backtest section. A missing
// range defaults to the stored data range.
func (b *Bootstrap) NewBacktest() (*Backtest, error) {
	cfg := b.Config

	start, end := cfg.Backtest.Start, cfg.Backtest.End
	if start == 0 || end == 0 {
		first, last, ok := b.History.AvailableDataRange()
		if !ok {
			return nil, fmt.Errorf("%w: no stored bars under %s", domain.ErrNoMarketData, b.Stores.Dir())
		}
		if start == 0 {
			start = first
		}
		if end == 0 {
			end = last
		}
	}

	symbols := make([]string, 0, len(cfg.Backtest.Symbols))
	for _, s := range cfg.Backtest.Symbols {
		ins, ok := b.Catalog.Lookup(s)
		if !ok {
			return nil, fmt.Errorf("%w: %w: %s", domain.ErrInvalidArgument, domain.ErrUnknownInstrument, s)
		}
		symbols = append(symbols, ins.Symbol)
	}

	strat, err := newStrategy(cfg, symbols)
	if err != nil {
		return nil, err
	}

	prices := service.NewPriceBook()
	portfolio := execution.NewPaperPortfolio(b.Catalog, b.Costs, prices, cfg.Accounts.AllowSentinelPrice, b.Logger)
	portfolio.Deposit(cfg.Accounts.StartingCash)

	sizer := execution.NewSizer(b.Catalog, b.Costs, execution.Options{
		AutoSwitchOrderValue: cfg.Accounts.AutoSwitchOrderValue,
	}, b.Logger, b.Metrics)

	runner := engine.NewRunner(engine.Options{
		Start:   start,
		End:     end,
		Symbols: symbols,
	}, b.Calendar, b.History, prices, portfolio, sizer, strat, b.Logger, b.Metrics)

	return &Backtest{
		Runner:    runner,
		Portfolio: portfolio,
		Prices:    prices,
		Strategy:  strat,
		Symbols:   symbols,
	}, nil
}

func newStrategy(cfg *infra.Config, symbols []string) (strategy.Strategy, error) {
	s := cfg.Backtest.Strategy
	switch strings.ToLower(s.Name) {
	case "":
		return nil, nil
	case strategy.SMACrossName:
		return strategy.NewSMACrossStrategy(symbols, s.ShortPeriod, s.LongPeriod, cfg.Backtest.Frequency, s.TargetPercent)
	default:
		return nil, fmt.Errorf("%w: strategy %q", domain.ErrNotSupported, s.Name)
	}
}

// Close releases the bar stores.
func (b *Bootstrap) Close() error {
	if b.Stores == nil {
		return nil
	}
	return b.Stores.Close()
}
