package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"text/tabwriter"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/history"

	"github.com/google/subcommands"
)

type historyCmd struct {
	count      int
	frequency  string
	fields     string
	asOf       string
	includeNow bool
}

func (*historyCmd) Name() string     { return "history" }
func (*historyCmd) Synopsis() string { return "print the bars a strategy would see for a symbol" }
func (*historyCmd) Usage() string {
	return `barctl history [-n <count>] [-f 1d|1w] [-fields <f1,f2>] [-asof <date>] [-include-now=false] <symbol>

  Runs a history query against the bar stores and prints the result, oldest
  first. -asof defaults to the last stored date.
`
}

func (c *historyCmd) SetFlags(f *flag.FlagSet) {
	f.IntVar(&c.count, "n", 10, "Number of bars.")
	f.StringVar(&c.frequency, "f", history.Daily, "Frequency: 1d or 1w.")
	f.StringVar(&c.fields, "fields", "", "Comma separated fields. Defaults to the full schema.")
	f.StringVar(&c.asOf, "asof", "", "Query date (YYYY-MM-DD or YYYYMMDD).")
	f.BoolVar(&c.includeNow, "include-now", true, "Include the bar dated exactly -asof.")
}

func (c *historyCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return execute(c, f.Args())
}

func (c *historyCmd) run(b *app.Bootstrap, args []string, out io.Writer) error {
	asOf, err := c.queryDate(b)
	if err != nil {
		return err
	}

	var fields []string
	if c.fields != "" {
		for _, name := range strings.Split(c.fields, ",") {
			fields = append(fields, strings.TrimSpace(name))
		}
	}

	series, err := b.History.History(history.Query{
		Symbol:     args[0],
		Count:      c.count,
		Frequency:  c.frequency,
		Fields:     fields,
		AsOf:       asOf,
		IncludeNow: c.includeNow,
	})
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, strings.Join(series.Fields, "\t")+"\t")
	for _, bar := range series.Bars {
		cells := make([]string, len(series.Fields))
		for i, name := range series.Fields {
			cells[i] = formatField(bar, name)
		}
		fmt.Fprintln(w, strings.Join(cells, "\t")+"\t")
	}
	return w.Flush()
}

func (c *historyCmd) queryDate(b *app.Bootstrap) (domain.Date, error) {
	if c.asOf != "" {
		d, err := domain.ParseDate(c.asOf)
		if err != nil {
			return 0, fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		return d, nil
	}
	_, last, ok := b.History.AvailableDataRange()
	if !ok {
		return 0, fmt.Errorf("%w: no stored bars", domain.ErrNoMarketData)
	}
	return last, nil
}

func formatField(bar domain.Bar, name string) string {
	if name == domain.FieldDate {
		return bar.Date.String()
	}
	v, _ := bar.Field(name)
	if math.IsNaN(v) {
		return "nan"
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}
