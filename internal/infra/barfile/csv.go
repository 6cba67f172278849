package barfile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"crypto_backtest/internal/domain"
)

// Header is the column order written by WriteCSV.
var Header = append([]string{"symbol"}, domain.FutureFields...)

// ReadCSV loads a CSV bar file. Columns are matched by header name; the
// derivative columns may be missing and empty or "nan" cells read as NaN.
func ReadCSV(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decodeCSV(f)
}

func decodeCSV(r io.Reader) ([]Record, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w", err)
	}
	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.ToLower(strings.TrimSpace(name))] = i
	}
	for _, required := range append([]string{"symbol"}, domain.SpotFields...) {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("%w: csv column %q missing", domain.ErrInvalidArgument, required)
		}
	}

	var out []Record
	for line := 2; ; line++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		cell := func(name string) string {
			if i, ok := col[name]; ok && i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}

		date, err := domain.ParseDate(cell(domain.FieldDate))
		if err != nil {
			return nil, fmt.Errorf("csv line %d: %w", line, err)
		}
		rec := Record{Symbol: cell("symbol"), Date: int64(date)}

		floats := []struct {
			name string
			dst  *float64
		}{
			{domain.FieldOpen, &rec.Open},
			{domain.FieldHigh, &rec.High},
			{domain.FieldLow, &rec.Low},
			{domain.FieldClose, &rec.Close},
			{domain.FieldPrevClose, &rec.PrevClose},
			{domain.FieldVolume, &rec.Volume},
			{domain.FieldTotalTurnover, &rec.TotalTurnover},
		}
		for _, fl := range floats {
			if *fl.dst, err = parseFloat(cell(fl.name)); err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, fl.name, err)
			}
		}

		optionals := []struct {
			name string
			dst  **float64
		}{
			{domain.FieldSettlement, &rec.Settlement},
			{domain.FieldPrevSettlement, &rec.PrevSettlement},
			{domain.FieldOpenInterest, &rec.OpenInterest},
		}
		for _, fl := range optionals {
			v, err := parseFloat(cell(fl.name))
			if err != nil {
				return nil, fmt.Errorf("csv line %d column %s: %w", line, fl.name, err)
			}
			*fl.dst = optional(v)
		}

		out = append(out, rec)
	}
}

// WriteCSV stores records with the Header column order.
func WriteCSV(path string, records []Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)

	if err := w.Write(Header); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write([]string{
			r.Symbol,
			strconv.FormatInt(r.Date, 10),
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			floatStr(r.PrevClose),
			floatStr(r.Volume),
			floatStr(r.TotalTurnover),
			floatStr(value(r.Settlement)),
			floatStr(value(r.PrevSettlement)),
			floatStr(value(r.OpenInterest)),
		}); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func parseFloat(s string) (float64, error) {
	if s == "" || strings.EqualFold(s, "nan") {
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

func floatStr(f float64) string {
	if math.IsNaN(f) {
		return ""
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
