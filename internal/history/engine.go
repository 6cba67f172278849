// Package history answers "last N bars at or before a date" queries over the
// bar stores, with optional weekly resampling.
package history

import (
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"

	"crypto_backtest/internal/calendar"
	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"
)

// Supported frequencies.
const (
	Daily  = "1d"
	Weekly = "1w"
)

// Query selects the bars returned by History.
type Query struct {
	Symbol    string
	Count     int
	Frequency string
	// Fields projects the result. Empty means the full schema of the asset class.
	Fields []string
	AsOf   domain.Date
	// IncludeNow includes a bar dated exactly AsOf.
	IncludeNow bool
}

// Engine serves history queries. Stored sequences are cached per symbol until
// Invalidate is called.
type Engine struct {
	stores   map[domain.AssetClass]domain.BarStore
	catalog  *catalog.Catalog
	calendar *calendar.Calendar
	log      *slog.Logger
	metrics  *infra.Metrics

	mu    sync.RWMutex
	cache map[string][]domain.Bar
}

// New creates an engine over one store per asset class.
func New(stores map[domain.AssetClass]domain.BarStore, cat *catalog.Catalog, cal *calendar.Calendar, log *slog.Logger, metrics *infra.Metrics) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Engine{
		stores:   stores,
		catalog:  cat,
		calendar: cal,
		log:      log,
		metrics:  metrics,
		cache:    make(map[string][]domain.Bar),
	}
}

// History returns up to q.Count bars ending at q.AsOf, oldest first.
// Fewer bars than requested is not an error.
func (e *Engine) History(q Query) (*domain.BarSeries, error) {
	ins, ok := e.catalog.Lookup(q.Symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrInvalidArgument, domain.ErrUnknownInstrument, q.Symbol)
	}
	if q.Count <= 0 {
		return nil, fmt.Errorf("%w: bar count %d must be positive", domain.ErrInvalidArgument, q.Count)
	}
	fields, err := projection(ins.AssetClass, q.Fields)
	if err != nil {
		return nil, err
	}

	var bars []domain.Bar
	switch q.Frequency {
	case Daily, "":
		bars = lastN(e.sequence(ins), q.AsOf, q.IncludeNow, q.Count)
	case Weekly:
		weeks := Resample(upTo(e.sequence(ins), q.AsOf, q.IncludeNow), ins.AssetClass)
		if len(weeks) > q.Count {
			weeks = weeks[len(weeks)-q.Count:]
		}
		bars = weeks
	default:
		return nil, fmt.Errorf("%w: frequency %q", domain.ErrNotSupported, q.Frequency)
	}

	e.metrics.RecordBarsServed(len(bars))
	return &domain.BarSeries{Fields: fields, Bars: bars}, nil
}

func projection(class domain.AssetClass, requested []string) ([]string, error) {
	schema := domain.FieldsFor(class)
	if len(requested) == 0 {
		return append([]string(nil), schema...), nil
	}
	for _, f := range requested {
		if !contains(schema, f) {
			return nil, fmt.Errorf("%w: field %q not in %s schema", domain.ErrInvalidArgument, f, class)
		}
	}
	return append([]string(nil), requested...), nil
}

// cutoff is the number of bars dated before asOf, or at asOf with includeNow.
func cutoff(bars []domain.Bar, asOf domain.Date, includeNow bool) int {
	if includeNow {
		return sort.Search(len(bars), func(i int) bool { return bars[i].Date > asOf })
	}
	return sort.Search(len(bars), func(i int) bool { return bars[i].Date >= asOf })
}

func upTo(bars []domain.Bar, asOf domain.Date, includeNow bool) []domain.Bar {
	return bars[:cutoff(bars, asOf, includeNow)]
}

func lastN(bars []domain.Bar, asOf domain.Date, includeNow bool, n int) []domain.Bar {
	end := cutoff(bars, asOf, includeNow)
	start := max(end-n, 0)
	return append([]domain.Bar(nil), bars[start:end]...)
}

// sequence returns the cached stored sequence of ins. Callers must not modify it.
func (e *Engine) sequence(ins *domain.Instrument) []domain.Bar {
	key := cacheKey(ins.AssetClass, ins.Symbol)

	e.mu.RLock()
	bars, ok := e.cache[key]
	e.mu.RUnlock()
	if ok {
		return bars
	}

	store, ok := e.stores[ins.AssetClass]
	if !ok {
		e.log.Warn("No bar store for asset class",
			slog.String("symbol", ins.Symbol),
			slog.String("asset_class", ins.AssetClass.String()))
		return nil
	}
	bars = store.GetBars(ins.Symbol)

	e.mu.Lock()
	e.cache[key] = bars
	e.mu.Unlock()
	return bars
}

func cacheKey(class domain.AssetClass, symbol string) string {
	return class.String() + "/" + symbol
}

// Invalidate drops cached sequences of symbols, or every sequence when none are given.
func (e *Engine) Invalidate(symbols ...string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(symbols) == 0 {
		e.cache = make(map[string][]domain.Bar)
		return
	}
	for _, s := range symbols {
		if ins, ok := e.catalog.Lookup(s); ok {
			delete(e.cache, cacheKey(ins.AssetClass, ins.Symbol))
		}
	}
}

// Bar returns the daily bar of symbol dated exactly date.
func (e *Engine) Bar(symbol string, date domain.Date) (domain.Bar, bool) {
	ins, ok := e.catalog.Lookup(symbol)
	if !ok {
		return domain.Bar{}, false
	}
	bars := e.sequence(ins)
	i := sort.Search(len(bars), func(i int) bool { return bars[i].Date >= date })
	if i < len(bars) && bars[i].Date == date {
		return bars[i], true
	}
	return domain.Bar{}, false
}

// LastPrice returns the close of the latest bar at or before asOf.
func (e *Engine) LastPrice(symbol string, asOf domain.Date) (float64, bool) {
	ins, ok := e.catalog.Lookup(symbol)
	if !ok {
		return math.NaN(), false
	}
	bars := e.sequence(ins)
	i := cutoff(bars, asOf, true)
	if i == 0 || math.IsNaN(bars[i-1].Close) {
		return math.NaN(), false
	}
	return bars[i-1].Close, true
}

// SettlePrice returns the settlement of a futures bar on date, NaN otherwise.
func (e *Engine) SettlePrice(symbol string, date domain.Date) float64 {
	ins, ok := e.catalog.Lookup(symbol)
	if !ok || ins.AssetClass != domain.CryptoFuture {
		return math.NaN()
	}
	b, ok := e.Bar(symbol, date)
	if !ok {
		return math.NaN()
	}
	return b.Settlement
}

// AvailableDataRange is the earliest first date and latest last date over
// every stored symbol.
func (e *Engine) AvailableDataRange() (first, last domain.Date, ok bool) {
	for _, class := range domain.AssetClasses {
		store, exists := e.stores[class]
		if !exists {
			continue
		}
		for _, symbol := range store.Symbols() {
			f, l, has := store.GetDateRange(symbol)
			if !has {
				continue
			}
			if !ok || f < first {
				first = f
			}
			if !ok || l > last {
				last = l
			}
			ok = true
		}
	}
	return first, last, ok
}

// Calendar returns every trading session.
func (e *Engine) Calendar() []domain.Date {
	return e.calendar.All()
}

// Sessions returns the trading sessions in [start, end].
func (e *Engine) Sessions(start, end domain.Date) []domain.Date {
	return e.calendar.Sessions(start, end)
}

// Instrument looks up catalog metadata.
func (e *Engine) Instrument(symbol string) (*domain.Instrument, bool) {
	return e.catalog.Lookup(symbol)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
