package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"sort"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra/barfile"

	"github.com/google/subcommands"
)

type importCmd struct {
	replace bool
}

func (*importCmd) Name() string     { return "import" }
func (*importCmd) Synopsis() string { return "import parquet or csv bar files into the bar stores" }
func (*importCmd) Usage() string {
	return `barctl import [-replace] <file>...

  Reads bar records (.parquet or .csv), groups them by symbol and writes each
  symbol to the store of its asset class. Symbols must be in the instrument
  catalog. Stored dates are kept unless -replace is given; imported bars win
  on overlapping dates.
`
}

func (c *importCmd) SetFlags(f *flag.FlagSet) {
	f.BoolVar(&c.replace, "replace", false, "Replace the stored sequence of each imported symbol instead of merging.")
}

func (c *importCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() == 0 {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return execute(c, f.Args())
}

func (c *importCmd) run(b *app.Bootstrap, files []string, out io.Writer) error {
	for _, file := range files {
		records, err := barfile.Read(file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		grouped, err := barfile.Group(records)
		if err != nil {
			return fmt.Errorf("%s: %w", file, err)
		}

		symbols := make([]string, 0, len(grouped))
		for s := range grouped {
			symbols = append(symbols, s)
		}
		sort.Strings(symbols)

		for _, symbol := range symbols {
			ins, ok := b.Catalog.Lookup(symbol)
			if !ok {
				return fmt.Errorf("%s: %w: %w: %s", file, domain.ErrInvalidArgument, domain.ErrUnknownInstrument, symbol)
			}
			store, err := b.Stores.For(ins.AssetClass)
			if err != nil {
				return err
			}

			bars := grouped[symbol]
			if !c.replace {
				bars = mergeBars(store.GetBars(ins.Symbol), bars)
			}
			if err := store.StoreBars(ins.Symbol, bars); err != nil {
				return err
			}
			b.History.Invalidate(ins.Symbol)

			fmt.Fprintf(out, "%s\t%s\t%d bars imported, %d stored\n", ins.Symbol, ins.AssetClass, len(grouped[symbol]), len(bars))
		}
	}
	return nil
}

// mergeBars combines two date-ordered sequences; on equal dates the bar of
// incoming is kept.
func mergeBars(stored, incoming []domain.Bar) []domain.Bar {
	out := make([]domain.Bar, 0, len(stored)+len(incoming))
	i, j := 0, 0
	for i < len(stored) && j < len(incoming) {
		switch {
		case stored[i].Date < incoming[j].Date:
			out = append(out, stored[i])
			i++
		case stored[i].Date > incoming[j].Date:
			out = append(out, incoming[j])
			j++
		default:
			out = append(out, incoming[j])
			i++
			j++
		}
	}
	out = append(out, stored[i:]...)
	return append(out, incoming[j:]...)
}
