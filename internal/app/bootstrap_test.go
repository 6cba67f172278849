package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"
	"crypto_backtest/internal/infra/storage"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const instrumentsYAML = `
instruments:
  - symbol: BTCUSDT
    type: CryptoSpot
    exchange: BINANCE
    listed_date: 2017-01-01
    round_lot: 1
    qty_step: 0.001
    tick_size: 0.01
    quote_currency: USDT
  - symbol: BTCUSDT-PERP
    type: CryptoFuture
    exchange: BINANCE_FUTURES
    listed_date: 2019-09-08
    round_lot: 1
    qty_step: 0.001
    tick_size: 0.1
    quote_currency: USDT
`

func testConfig(t *testing.T) *infra.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "instruments.yaml"), []byte(instrumentsYAML), 0644))

	closes := []float64{100, 100, 100, 100, 100, 200, 220, 60, 40, 30}
	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.NewSpotBar(domain.NewDate(2024, 1, 1).AddDays(i), c, c, c, c, c, 1, c)
	}
	stores := storage.Open(dir, nil, &infra.Metrics{})
	spot, err := stores.For(domain.CryptoSpot)
	require.NoError(t, err)
	require.NoError(t, spot.StoreBars("BTCUSDT", bars))
	require.NoError(t, stores.Close())

	cfg := infra.DefaultConfig()
	cfg.Data.Path = dir
	cfg.Data.Instruments = filepath.Join(dir, "instruments.yaml")
	cfg.Accounts.StartingCash = decimal.NewFromInt(10000)
	cfg.Backtest.Symbols = []string{"btcusdt"}
	cfg.Backtest.Strategy = infra.StrategyConfig{
		Name:          "sma_cross",
		ShortPeriod:   3,
		LongPeriod:    5,
		TargetPercent: decimal.RequireFromString("0.5"),
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func initialized(t *testing.T, cfg *infra.Config) *Bootstrap {
	t.Helper()
	b := NewBootstrap()
	b.Metrics = &infra.Metrics{}
	require.NoError(t, b.InitializeWith(cfg, quietLogger()))
	t.Cleanup(func() { b.Close() })
	return b
}

func TestBootstrap_RunsConfiguredBacktest(t *testing.T) {
	b := initialized(t, testConfig(t))
	assert.Equal(t, 2, b.Catalog.Len())

	bt, err := b.NewBacktest()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT"}, bt.Symbols)
	require.NotNil(t, bt.Strategy)

	b.Warmup(context.Background(), bt.Symbols)

	res, err := bt.Runner.Run(context.Background())
	require.NoError(t, err)

	// The range defaults to the stored data.
	assert.Equal(t, 10, res.Sessions)
	assert.Equal(t, 2, res.Orders)
	assert.Len(t, res.Fills, 2)
}

func TestBootstrap_ExplicitRange(t *testing.T) {
	cfg := testConfig(t)
	cfg.Backtest.Start = domain.NewDate(2024, 1, 3)
	cfg.Backtest.End = domain.NewDate(2024, 1, 5)
	b := initialized(t, cfg)

	bt, err := b.NewBacktest()
	require.NoError(t, err)
	res, err := bt.Runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Sessions)
	assert.Zero(t, res.Orders)
}

func TestBootstrap_Errors(t *testing.T) {
	t.Run("missing instruments", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Data.Instruments = filepath.Join(t.TempDir(), "none.yaml")
		err := NewBootstrap().InitializeWith(cfg, quietLogger())
		assert.Error(t, err)
	})

	t.Run("unknown symbol", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Backtest.Symbols = []string{"DOGEUSDT"}
		_, err := initialized(t, cfg).NewBacktest()
		assert.ErrorIs(t, err, domain.ErrUnknownInstrument)
	})

	t.Run("unknown strategy", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Backtest.Strategy.Name = "momentum"
		_, err := initialized(t, cfg).NewBacktest()
		assert.ErrorIs(t, err, domain.ErrNotSupported)
	})

	t.Run("empty stores", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Data.Path = t.TempDir()
		_, err := initialized(t, cfg).NewBacktest()
		assert.ErrorIs(t, err, domain.ErrNoMarketData)
	})

	t.Run("missing config", func(t *testing.T) {
		err := NewBootstrap().Initialize(filepath.Join(t.TempDir(), "config.yaml"))
		assert.ErrorIs(t, err, domain.ErrConfigNotFound)
	})
}

func TestShippedConfig(t *testing.T) {
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir("../.."))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := infra.LoadConfig(DefaultConfigPath)
	require.NoError(t, err)
	assert.Equal(t, "sma_cross", cfg.Backtest.Strategy.Name)

	cfg.Data.Path = t.TempDir()
	b := initialized(t, cfg)
	assert.Equal(t, 5, b.Catalog.Len())

	bt, err := b.NewBacktest()
	require.NoError(t, err)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, bt.Symbols)
}
