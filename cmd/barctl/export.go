package main

import (
	"context"
	"flag"
	"fmt"
	"io"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra/barfile"

	"github.com/google/subcommands"
)

type exportCmd struct {
	output string
	class  string
}

func (*exportCmd) Name() string     { return "export" }
func (*exportCmd) Synopsis() string { return "export stored bars to a parquet or csv file" }
func (*exportCmd) Usage() string {
	return `barctl export -o <file> [-class <spot|future>] [<symbol>...]

  Writes the stored sequences of the given symbols, or of every stored
  symbol, as bar records. The format follows the extension of -o.
`
}

func (c *exportCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.output, "o", "", "Output file (.parquet or .csv).")
	f.StringVar(&c.class, "class", "", "Restrict to one asset class (spot, future) when no symbol is given.")
}

func (c *exportCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if c.output == "" {
		f.Usage()
		return subcommands.ExitUsageError
	}
	return execute(c, f.Args())
}

func (c *exportCmd) run(b *app.Bootstrap, symbols []string, out io.Writer) error {
	classes := domain.AssetClasses
	if c.class != "" {
		class, err := domain.ParseAssetClass(c.class)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		classes = []domain.AssetClass{class}
	}

	bySymbol := make(map[string][]domain.Bar)
	if len(symbols) > 0 {
		for _, s := range symbols {
			ins, ok := b.Catalog.Lookup(s)
			if !ok {
				return fmt.Errorf("%w: %w: %s", domain.ErrInvalidArgument, domain.ErrUnknownInstrument, s)
			}
			store, err := b.Stores.For(ins.AssetClass)
			if err != nil {
				return err
			}
			bySymbol[ins.Symbol] = store.GetBars(ins.Symbol)
		}
	} else {
		for _, class := range classes {
			store, err := b.Stores.For(class)
			if err != nil {
				return err
			}
			for _, s := range store.Symbols() {
				bySymbol[s] = store.GetBars(s)
			}
		}
	}

	records := barfile.Records(bySymbol)
	if err := barfile.Write(c.output, records); err != nil {
		return err
	}
	fmt.Fprintf(out, "%d records of %d symbols written to %s\n", len(records), len(bySymbol), c.output)
	return nil
}
