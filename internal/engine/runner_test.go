package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"crypto_backtest/internal/calendar"
	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/cost"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/event"
	"crypto_backtest/internal/execution"
	"crypto_backtest/internal/history"
	"crypto_backtest/internal/infra"
	"crypto_backtest/internal/infra/storage"
	"crypto_backtest/internal/service"
	"crypto_backtest/internal/strategy"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var closes = []float64{100, 100, 100, 100, 100, 200, 220, 60, 40, 30}

type harness struct {
	runner    *Runner
	portfolio *execution.PaperPortfolio
	sizer     *execution.Sizer
	metrics   *infra.Metrics
	dir       string
}

func day(i int) domain.Date { return domain.NewDate(2024, 1, 1).AddDays(i) }

func newHarness(t *testing.T, strat strategy.Strategy) *harness {
	t.Helper()
	dir := t.TempDir()
	metrics := &infra.Metrics{}

	cat, err := catalog.New([]domain.Instrument{
		{Symbol: "BTCUSDT", AssetClass: domain.CryptoSpot, RoundLot: 1, QtyStep: decimal.RequireFromString("0.001")},
		{Symbol: "ETHUSDT", AssetClass: domain.CryptoSpot, RoundLot: 1, QtyStep: decimal.RequireFromString("0.001")},
	})
	require.NoError(t, err)

	stores := storage.Open(dir, nil, metrics)
	t.Cleanup(func() { stores.Close() })
	spot, err := stores.For(domain.CryptoSpot)
	require.NoError(t, err)

	bars := make([]domain.Bar, len(closes))
	for i, c := range closes {
		bars[i] = domain.NewSpotBar(day(i), c, c, c, c, c, 1, c)
	}
	require.NoError(t, spot.StoreBars("BTCUSDT", bars))

	cal, err := calendar.New(domain.NewDate(2024, 1, 1), domain.NewDate(2024, 12, 31))
	require.NoError(t, err)

	hist := history.New(stores.ByClass(), cat, cal, nil, metrics)
	prices := service.NewPriceBook()
	costs := cost.DefaultSchedule()
	portfolio := execution.NewPaperPortfolio(cat, costs, prices, false, nil)
	portfolio.Deposit(decimal.NewFromInt(10000))
	sizer := execution.NewSizer(cat, costs, execution.Options{}, nil, metrics)

	runner := NewRunner(Options{
		Start:    day(0),
		End:      day(len(closes) - 1),
		Symbols:  []string{"BTCUSDT"},
		DumpPath: filepath.Join(dir, "dump.json"),
	}, cal, hist, prices, portfolio, sizer, strat, nil, metrics)

	return &harness{runner: runner, portfolio: portfolio, sizer: sizer, metrics: metrics, dir: dir}
}

func smaStrategy(t *testing.T, symbols ...string) strategy.Strategy {
	t.Helper()
	strat, err := strategy.NewSMACrossStrategy(symbols, 3, 5, history.Daily, decimal.RequireFromString("0.5"))
	require.NoError(t, err)
	return strat
}

func TestRunner_SMACross(t *testing.T) {
	h := newHarness(t, smaStrategy(t, "BTCUSDT"))

	res, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(closes), res.Sessions)
	assert.Equal(t, 2, res.Orders)
	assert.Equal(t, 0, res.Rejections)
	require.Len(t, res.Fills, 2)

	buy, sell := res.Fills[0], res.Fills[1]
	assert.Equal(t, domain.SideBuy, buy.Side)
	assert.Equal(t, day(5), buy.Date)
	assert.True(t, buy.Price.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, domain.SideSell, sell.Side)
	assert.Equal(t, day(8), sell.Date)
	assert.True(t, sell.Quantity.Equal(buy.Quantity), "sell must close the position")

	assert.Empty(t, h.portfolio.Symbols())
	assert.True(t, res.Final.Cash.LessThan(decimal.NewFromInt(10000)))
	require.Len(t, res.Equity, len(closes))
	assert.True(t, res.Equity[0].TotalValue.Equal(decimal.NewFromInt(10000)))

	snap := h.metrics.Snapshot()
	assert.Equal(t, uint64(len(closes)), snap.SessionsProcessed)
	assert.Equal(t, uint64(2), snap.OrdersCreated)
}

func TestRunner_GuardClosedAfterRun(t *testing.T) {
	h := newHarness(t, nil)

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.PhaseClosed, h.runner.Guard().Phase())

	env := &execution.Env{
		Guard:     h.runner.Guard(),
		Portfolio: h.portfolio,
		Prices:    service.NewPriceBook(),
		Submitter: h.portfolio,
	}
	_, err = h.sizer.OrderShares(env, "BTCUSDT", decimal.NewFromInt(1), domain.MarketOrder())
	assert.ErrorIs(t, err, domain.ErrPhaseViolation)
}

func TestRunner_Journal(t *testing.T) {
	h := newHarness(t, smaStrategy(t, "BTCUSDT"))

	_, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	j := h.runner.Journal()
	assert.Len(t, j.Events(event.TypeSession), len(closes))
	assert.Len(t, j.Events(event.TypePhase), 3*len(closes))
	assert.Len(t, j.Events(event.TypeOrder), 2)
	assert.Len(t, j.Events(event.TypeRunFinished), 1)
	assert.NoError(t, event.Replay(j.Events(), func(event.Event) error { return nil }))
}

func TestRunner_RejectionDoesNotStopRun(t *testing.T) {
	// ETHUSDT is listed but has no bars, so no price is ever known.
	h := newHarness(t, buyEveryDay{symbol: "ETHUSDT"})

	res, err := h.runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, len(closes), res.Sessions)
	assert.Equal(t, len(closes), res.Rejections)
	assert.Zero(t, res.Orders)
	assert.Len(t, h.runner.Journal().Events(event.TypeRejection), len(closes))
}

func TestRunner_ContextCancel(t *testing.T) {
	h := newHarness(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := h.runner.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, res.Sessions)
	assert.Equal(t, domain.PhaseClosed, h.runner.Guard().Phase())
}

func TestRunner_NoSessions(t *testing.T) {
	h := newHarness(t, nil)
	h.runner.opts.Start, h.runner.opts.End = day(5), day(1)

	_, err := h.runner.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestRunner_PanicDumpsState(t *testing.T) {
	h := newHarness(t, panicky{})

	assert.Panics(t, func() {
		h.runner.Run(context.Background())
	})

	_, err := os.Stat(filepath.Join(h.dir, "dump.json"))
	assert.NoError(t, err, "state dump should be written")
	assert.Equal(t, domain.PhaseClosed, h.runner.Guard().Phase())
}

type buyEveryDay struct{ symbol string }

func (buyEveryDay) Name() string { return "buy_every_day" }

func (b buyEveryDay) OnBar(domain.Date, strategy.HistoryReader) ([]strategy.Action, error) {
	return []strategy.Action{{Type: strategy.ActionBuy, Symbol: b.symbol, Percent: decimal.RequireFromString("0.1")}}, nil
}

type panicky struct{}

func (panicky) Name() string { return "panicky" }

func (panicky) OnBar(domain.Date, strategy.HistoryReader) ([]strategy.Action, error) {
	panic("boom")
}
