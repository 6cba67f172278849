// Package barfile reads and writes raw bar record files used to move data in
// and out of the bar stores.
package barfile

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"crypto_backtest/internal/domain"
)

// Record is one row of a bar file. Derivative columns are optional.
type Record struct {
	Symbol         string   `parquet:"symbol"`
	Date           int64    `parquet:"date"`
	Open           float64  `parquet:"open"`
	High           float64  `parquet:"high"`
	Low            float64  `parquet:"low"`
	Close          float64  `parquet:"close"`
	PrevClose      float64  `parquet:"prev_close"`
	Volume         float64  `parquet:"volume"`
	TotalTurnover  float64  `parquet:"total_turnover"`
	Settlement     *float64 `parquet:"settlement,optional"`
	PrevSettlement *float64 `parquet:"prev_settlement,optional"`
	OpenInterest   *float64 `parquet:"open_interest,optional"`
}

// NewRecord flattens a bar of symbol.
func NewRecord(symbol string, b domain.Bar) Record {
	return Record{
		Symbol:         symbol,
		Date:           int64(b.Date),
		Open:           b.Open,
		High:           b.High,
		Low:            b.Low,
		Close:          b.Close,
		PrevClose:      b.PrevClose,
		Volume:         b.Volume,
		TotalTurnover:  b.TotalTurnover,
		Settlement:     optional(b.Settlement),
		PrevSettlement: optional(b.PrevSettlement),
		OpenInterest:   optional(b.OpenInterest),
	}
}

// Bar converts the record back to a domain bar.
func (r Record) Bar() domain.Bar {
	return domain.Bar{
		Date:           domain.Date(r.Date),
		Open:           r.Open,
		High:           r.High,
		Low:            r.Low,
		Close:          r.Close,
		PrevClose:      r.PrevClose,
		Volume:         r.Volume,
		TotalTurnover:  r.TotalTurnover,
		Settlement:     value(r.Settlement),
		PrevSettlement: value(r.PrevSettlement),
		OpenInterest:   value(r.OpenInterest),
	}
}

// Records flattens per-symbol sequences, symbols in lexical order.
func Records(bySymbol map[string][]domain.Bar) []Record {
	symbols := make([]string, 0, len(bySymbol))
	for s := range bySymbol {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var out []Record
	for _, s := range symbols {
		for _, b := range bySymbol[s] {
			out = append(out, NewRecord(s, b))
		}
	}
	return out
}

// Group splits records by symbol into date-ordered sequences. Two records of
// one symbol on the same date are rejected.
func Group(records []Record) (map[string][]domain.Bar, error) {
	out := make(map[string][]domain.Bar)
	for _, r := range records {
		if r.Symbol == "" {
			return nil, fmt.Errorf("%w: record on %d has no symbol", domain.ErrInvalidArgument, r.Date)
		}
		if d := domain.Date(r.Date); !d.Valid() {
			return nil, fmt.Errorf("%w: %s has invalid date %d", domain.ErrInvalidArgument, r.Symbol, r.Date)
		}
		out[r.Symbol] = append(out[r.Symbol], r.Bar())
	}
	for symbol, bars := range out {
		sort.SliceStable(bars, func(i, j int) bool { return bars[i].Date < bars[j].Date })
		if !domain.SortedByDate(bars) {
			return nil, fmt.Errorf("%w: duplicate dates for %s", domain.ErrUnsortedBars, symbol)
		}
	}
	return out, nil
}

// Read decodes a bar file, choosing the codec from the extension.
func Read(path string) ([]Record, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return ReadParquet(path)
	case ".csv":
		return ReadCSV(path)
	default:
		return nil, fmt.Errorf("%w: bar file format %q", domain.ErrNotSupported, filepath.Ext(path))
	}
}

// Write encodes records, choosing the codec from the extension.
func Write(path string, records []Record) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet":
		return WriteParquet(path, records)
	case ".csv":
		return WriteCSV(path, records)
	default:
		return fmt.Errorf("%w: bar file format %q", domain.ErrNotSupported, filepath.Ext(path))
	}
}

func optional(v float64) *float64 {
	if math.IsNaN(v) {
		return nil
	}
	return &v
}

func value(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}
