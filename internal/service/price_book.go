package service

import (
	"math"
	"sort"
	"sync"

	"crypto_backtest/internal/domain"

	"github.com/shopspring/decimal"
)

// Quote is the last observed price of a symbol.
type Quote struct {
	Symbol string
	Date   domain.Date
	Price  decimal.Decimal
	// Settlement is zero for spot symbols.
	Settlement decimal.Decimal
}

// PriceBook holds the last observed prices, updated by the run driver from
// delivered bars. It implements domain.PriceSource.
type PriceBook struct {
	mu     sync.RWMutex
	quotes map[string]*Quote
}

// NewPriceBook creates an empty PriceBook
func NewPriceBook() *PriceBook {
	return &PriceBook{
		quotes: make(map[string]*Quote),
	}
}

// All returns every quote sorted by symbol
func (b *PriceBook) All() []Quote {
	b.mu.RLock()
	defer b.mu.RUnlock()

	result := make([]Quote, 0, len(b.quotes))
	for _, q := range b.quotes {
		result = append(result, *q)
	}

	// Sort by symbol for consistent ordering
	sort.Slice(result, func(i, j int) bool {
		return result[i].Symbol < result[j].Symbol
	})

	return result
}

// Quote returns the quote of a specific symbol
func (b *PriceBook) Quote(symbol string) (Quote, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.quotes[symbol]
	if !ok {
		return Quote{}, false
	}
	return *q, true
}

// LastPrice implements domain.PriceSource.
func (b *PriceBook) LastPrice(symbol string) (decimal.Decimal, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	q, ok := b.quotes[symbol]
	if !ok {
		return decimal.Zero, false
	}
	return q.Price, true
}

// Set records price for symbol on date.
func (b *PriceBook) Set(symbol string, date domain.Date, price decimal.Decimal) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q := b.quote(symbol)
	q.Date = date
	q.Price = price
}

// ProcessBars updates quotes from one session's bars, keyed by symbol.
// Bars without a usable close leave the previous quote in place.
// It returns the number of updated symbols.
func (b *PriceBook) ProcessBars(bars map[string]domain.Bar) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := 0
	for symbol, bar := range bars {
		if !validPrice(bar.Close) {
			continue
		}
		q := b.quote(symbol)
		q.Date = bar.Date
		q.Price = decimal.NewFromFloat(bar.Close)
		if validPrice(bar.Settlement) {
			q.Settlement = decimal.NewFromFloat(bar.Settlement)
		}
		n++
	}
	return n
}

// Reset clears every quote.
func (b *PriceBook) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.quotes = make(map[string]*Quote)
}

// quote returns the entry of symbol, creating it. Must be called with lock held.
func (b *PriceBook) quote(symbol string) *Quote {
	q, exists := b.quotes[symbol]
	if !exists {
		q = &Quote{Symbol: symbol}
		b.quotes[symbol] = q
	}
	return q
}

func validPrice(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0
}
