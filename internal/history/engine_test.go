package history

import (
	"math"
	"path/filepath"
	"testing"

	"crypto_backtest/internal/calendar"
	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"
	"crypto_backtest/internal/infra/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	bars  map[string][]domain.Bar
	reads int
}

func newMemStore() *memStore { return &memStore{bars: make(map[string][]domain.Bar)} }

func (m *memStore) GetBars(symbol string) []domain.Bar {
	m.reads++
	return m.bars[symbol]
}

func (m *memStore) StoreBars(symbol string, bars []domain.Bar) error {
	m.bars[symbol] = bars
	return nil
}

func (m *memStore) GetDateRange(symbol string) (domain.Date, domain.Date, bool) {
	b := m.bars[symbol]
	if len(b) == 0 {
		return 0, 0, false
	}
	return b[0].Date, b[len(b)-1].Date, true
}

func (m *memStore) Symbols() []string {
	var out []string
	for s := range m.bars {
		out = append(out, s)
	}
	return out
}

// dailyBars builds one bar per day starting at start; close = open + 1.
func dailyBars(start domain.Date, n int) []domain.Bar {
	out := make([]domain.Bar, n)
	for i := range out {
		o := float64(100 + i)
		out[i] = domain.NewSpotBar(start.AddDays(i), o, o+5, o-5, o+1, o, float64(10*(i+1)), o*10)
	}
	return out
}

type fixture struct {
	engine  *Engine
	spot    *memStore
	futures *memStore
	metrics *infra.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cat, err := catalog.New([]domain.Instrument{
		{Symbol: "BTCUSDT", AssetClass: domain.CryptoSpot},
		{Symbol: "ETHUSDT", AssetClass: domain.CryptoSpot},
		{Symbol: "BTCUSDT-PERP", AssetClass: domain.CryptoFuture},
	})
	require.NoError(t, err)

	f := &fixture{spot: newMemStore(), futures: newMemStore(), metrics: &infra.Metrics{}}
	f.spot.bars["BTCUSDT"] = dailyBars(20240101, 31)
	f.engine = New(map[domain.AssetClass]domain.BarStore{
		domain.CryptoSpot:   f.spot,
		domain.CryptoFuture: f.futures,
	}, cat, calendar.Default(), nil, f.metrics)
	return f
}

func TestHistory_DailyBinarySearch(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.History(Query{Symbol: "BTCUSDT", Count: 5, Frequency: Daily, AsOf: 20240115})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240110, 20240111, 20240112, 20240113, 20240114}, got.Dates())

	got, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 5, Frequency: Daily, AsOf: 20240115, IncludeNow: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240111, 20240112, 20240113, 20240114, 20240115}, got.Dates())

	assert.EqualValues(t, 10, f.metrics.Snapshot().BarsServed)
}

func TestHistory_DailyEdges(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		query Query
		want  int
		first domain.Date
	}{
		{"fewer than requested", Query{Symbol: "BTCUSDT", Count: 10, AsOf: 20240104}, 3, 20240101},
		{"before first bar", Query{Symbol: "BTCUSDT", Count: 3, AsOf: 20231231, IncludeNow: true}, 0, 0},
		{"after last bar", Query{Symbol: "BTCUSDT", Count: 2, AsOf: 20240301}, 2, 20240130},
		{"no data", Query{Symbol: "ETHUSDT", Count: 2, AsOf: 20240301}, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := f.engine.History(tt.query)
			require.NoError(t, err)
			require.Equal(t, tt.want, got.Len())
			if tt.want > 0 {
				assert.Equal(t, tt.first, got.Bars[0].Date)
			}
		})
	}
}

func TestHistory_Validation(t *testing.T) {
	f := newFixture(t)

	_, err := f.engine.History(Query{Symbol: "DOGEUSDT", Count: 1, AsOf: 20240110})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
	assert.ErrorIs(t, err, domain.ErrUnknownInstrument)

	_, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 0, AsOf: 20240110})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 1, Fields: []string{"open_interest"}, AsOf: 20240110})
	assert.ErrorIs(t, err, domain.ErrInvalidArgument, "spot has no derivative fields")

	_, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 1, Frequency: "1m", AsOf: 20240110})
	assert.ErrorIs(t, err, domain.ErrNotSupported)

	_, err = f.engine.History(Query{Symbol: "BTCUSDT-PERP", Count: 1, Fields: []string{"open_interest"}, AsOf: 20240110})
	assert.NoError(t, err)
}

func TestHistory_Projection(t *testing.T) {
	f := newFixture(t)

	got, err := f.engine.History(Query{Symbol: "BTCUSDT", Count: 3, Fields: []string{"close"}, AsOf: 20240110})
	require.NoError(t, err)

	closes, ok := got.Column("close")
	require.True(t, ok)
	assert.Equal(t, []float64{107, 108, 109}, closes)

	_, ok = got.Column("open")
	assert.False(t, ok, "open is outside the projection")

	all, err := f.engine.History(Query{Symbol: "BTCUSDT", Count: 1, AsOf: 20240110})
	require.NoError(t, err)
	assert.Equal(t, domain.SpotFields, all.Fields)
}

func TestHistory_Weekly(t *testing.T) {
	f := newFixture(t)
	// 20240106 is a Saturday, 20240112 the Friday ending its week.
	week := dailyBars(20240106, 7)
	f.spot.bars["ETHUSDT"] = week

	got, err := f.engine.History(Query{Symbol: "ETHUSDT", Count: 5, Frequency: Weekly, AsOf: 20240113})
	require.NoError(t, err)
	require.Equal(t, 1, got.Len())

	w := got.Bars[0]
	assert.Equal(t, domain.Date(20240112), w.Date)
	assert.Equal(t, week[0].Open, w.Open)
	assert.Equal(t, week[6].Close, w.Close)

	var high, volume, turnover float64
	low := math.Inf(1)
	for _, b := range week {
		high = math.Max(high, b.High)
		low = math.Min(low, b.Low)
		volume += b.Volume
		turnover += b.TotalTurnover
	}
	assert.Equal(t, high, w.High)
	assert.Equal(t, low, w.Low)
	assert.Equal(t, volume, w.Volume)
	assert.Equal(t, turnover, w.TotalTurnover)
	assert.Equal(t, week[0].PrevClose, w.PrevClose)
}

func TestHistory_WeeklyDropsIncompleteWeeks(t *testing.T) {
	f := newFixture(t)

	// BTCUSDT covers 20240101 (Mon) .. 20240131 (Wed).
	// Complete weeks end on 20240112, 20240119 and 20240126.
	got, err := f.engine.History(Query{Symbol: "BTCUSDT", Count: 10, Frequency: Weekly, AsOf: 20240201})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240112, 20240119, 20240126}, got.Dates())

	// the week still in progress at as-of is not complete
	got, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 10, Frequency: Weekly, AsOf: 20240125, IncludeNow: true})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240112, 20240119}, got.Dates())

	got, err = f.engine.History(Query{Symbol: "BTCUSDT", Count: 1, Frequency: Weekly, AsOf: 20240201})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240126}, got.Dates())
}

func TestResample_DropsUndefinedAggregates(t *testing.T) {
	week := dailyBars(20240106, 7)
	for i := range week {
		week[i].Close = math.NaN()
	}
	assert.Empty(t, Resample(week, domain.CryptoSpot))
	assert.Nil(t, Resample(nil, domain.CryptoSpot))
}

func TestResample_FuturesCarryLastSettlement(t *testing.T) {
	week := dailyBars(20240106, 7)
	for i := range week {
		week[i].Settlement = float64(i)
		week[i].PrevSettlement = float64(i) - 1
		week[i].OpenInterest = float64(100 * i)
	}
	got := Resample(week, domain.CryptoFuture)
	require.Len(t, got, 1)
	assert.Equal(t, 6.0, got[0].Settlement)
	assert.Equal(t, 5.0, got[0].PrevSettlement)
	assert.Equal(t, 600.0, got[0].OpenInterest)

	spot := Resample(week, domain.CryptoSpot)
	require.Len(t, spot, 1)
	assert.True(t, math.IsNaN(spot[0].Settlement))
}

func TestEngine_CacheAndInvalidate(t *testing.T) {
	f := newFixture(t)
	q := Query{Symbol: "BTCUSDT", Count: 1, AsOf: 20240201}

	first, _ := f.engine.History(q)
	again, _ := f.engine.History(q)
	assert.Equal(t, first.Dates(), again.Dates())
	assert.Equal(t, 1, f.spot.reads)

	f.spot.bars["BTCUSDT"] = dailyBars(20240101, 40)
	f.engine.Invalidate("BTCUSDT")
	fresh, _ := f.engine.History(q)
	assert.Equal(t, []domain.Date{20240131}, fresh.Dates())
	assert.Equal(t, 2, f.spot.reads)

	f.engine.Invalidate()
	f.engine.History(q)
	assert.Equal(t, 3, f.spot.reads)
}

func TestEngine_Lookups(t *testing.T) {
	f := newFixture(t)
	perp := dailyBars(20240105, 3)
	for i := range perp {
		perp[i].Settlement = 200 + float64(i)
	}
	f.futures.bars["BTCUSDT-PERP"] = perp

	b, ok := f.engine.Bar("BTCUSDT", 20240105)
	require.True(t, ok)
	assert.Equal(t, domain.Date(20240105), b.Date)
	_, ok = f.engine.Bar("BTCUSDT", 20240301)
	assert.False(t, ok)

	p, ok := f.engine.LastPrice("BTCUSDT", 20240301)
	assert.True(t, ok)
	assert.Equal(t, 131.0, p)
	_, ok = f.engine.LastPrice("BTCUSDT", 20231231)
	assert.False(t, ok)

	assert.Equal(t, 201.0, f.engine.SettlePrice("BTCUSDT-PERP", 20240106))
	assert.True(t, math.IsNaN(f.engine.SettlePrice("BTCUSDT", 20240106)))

	first, last, ok := f.engine.AvailableDataRange()
	require.True(t, ok)
	assert.Equal(t, domain.Date(20240101), first)
	assert.Equal(t, domain.Date(20240131), last)

	ins, ok := f.engine.Instrument("BTCUSDT-PERP")
	require.True(t, ok)
	assert.Equal(t, domain.CryptoFuture, ins.AssetClass)
	assert.Len(t, f.engine.Sessions(20240101, 20240107), 7)
	assert.NotEmpty(t, f.engine.Calendar())
}

func TestEngine_OverSQLiteStores(t *testing.T) {
	stores := storage.Open(filepath.Join(t.TempDir(), "bundle"), nil, &infra.Metrics{})
	defer stores.Close()

	spot, err := stores.For(domain.CryptoSpot)
	require.NoError(t, err)
	require.NoError(t, spot.StoreBars("BTCUSDT", dailyBars(20240101, 31)))

	cat, err := catalog.New([]domain.Instrument{
		{Symbol: "BTCUSDT", AssetClass: domain.CryptoSpot},
		{Symbol: "UNKNOWNUSDT", AssetClass: domain.CryptoSpot},
	})
	require.NoError(t, err)
	e := New(stores.ByClass(), cat, calendar.Default(), nil, &infra.Metrics{})

	got, err := e.History(Query{Symbol: "BTCUSDT", Count: 5, Frequency: Daily, AsOf: 20240115})
	require.NoError(t, err)
	assert.Equal(t, []domain.Date{20240110, 20240111, 20240112, 20240113, 20240114}, got.Dates())

	empty, err := e.History(Query{Symbol: "UNKNOWNUSDT", Count: 5, Frequency: Daily, AsOf: 20240115})
	require.NoError(t, err)
	assert.Zero(t, empty.Len())
}
