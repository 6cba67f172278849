package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"text/tabwriter"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/domain"

	"github.com/google/subcommands"
)

type rangeCmd struct{}

func (*rangeCmd) Name() string     { return "range" }
func (*rangeCmd) Synopsis() string { return "print the stored date range per symbol" }
func (*rangeCmd) Usage() string {
	return `barctl range [<symbol>...]

  Prints the first and last stored dates of each symbol, every stored symbol
  by default, followed by the overall available data range.
`
}

func (*rangeCmd) SetFlags(*flag.FlagSet) {}

func (c *rangeCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return execute(c, f.Args())
}

func (c *rangeCmd) run(b *app.Bootstrap, symbols []string, out io.Writer) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "symbol\tclass\tfirst\tlast")

	row := func(symbol string, class domain.AssetClass, store domain.BarStore) {
		first, last, ok := store.GetDateRange(symbol)
		if !ok {
			fmt.Fprintf(w, "%s\t%s\t-\t-\n", symbol, class)
			return
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", symbol, class, first, last)
	}

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
			row(ins.Symbol, ins.AssetClass, store)
		}
	} else {
		for _, class := range domain.AssetClasses {
			store, err := b.Stores.For(class)
			if err != nil {
				return err
			}
			for _, s := range store.Symbols() {
				row(s, class, store)
			}
		}
	}

	if first, last, ok := b.History.AvailableDataRange(); ok {
		fmt.Fprintf(w, "*\tall\t%s\t%s\n", first, last)
	}
	return w.Flush()
}

type calendarCmd struct {
	start, end string
	count      bool
}

func (*calendarCmd) Name() string     { return "calendar" }
func (*calendarCmd) Synopsis() string { return "list trading sessions" }
func (*calendarCmd) Usage() string {
	return `barctl calendar [-start <date>] [-end <date>] [-count]

  Lists the trading sessions between -start and -end, the whole calendar by
  default.
`
}

func (c *calendarCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.start, "start", "", "First date (inclusive).")
	f.StringVar(&c.end, "end", "", "Last date (inclusive).")
	f.BoolVar(&c.count, "count", false, "Only print the number of sessions.")
}

func (c *calendarCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return execute(c, f.Args())
}

func (c *calendarCmd) run(b *app.Bootstrap, _ []string, out io.Writer) error {
	start, end := b.Calendar.Start(), b.Calendar.End()
	var err error
	if c.start != "" {
		if start, err = domain.ParseDate(c.start); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
	}
	if c.end != "" {
		if end, err = domain.ParseDate(c.end); err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
	}

	sessions := b.Calendar.Sessions(start, end)
	if c.count {
		fmt.Fprintln(out, len(sessions))
		return nil
	}
	for _, d := range sessions {
		fmt.Fprintln(out, d)
	}
	return nil
}

type instrumentsCmd struct {
	class string
}

func (*instrumentsCmd) Name() string     { return "instruments" }
func (*instrumentsCmd) Synopsis() string { return "list the instrument catalog" }
func (*instrumentsCmd) Usage() string {
	return `barctl instruments [-class <spot|future>]

  Prints the catalog entries with their quantity increment.
`
}

func (c *instrumentsCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.class, "class", "", "Restrict to one asset class (spot, future).")
}

func (c *instrumentsCmd) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	return execute(c, f.Args())
}

func (c *instrumentsCmd) run(b *app.Bootstrap, _ []string, out io.Writer) error {
	classes := domain.AssetClasses
	if c.class != "" {
		class, err := domain.ParseAssetClass(c.class)
		if err != nil {
			return fmt.Errorf("%w: %w", domain.ErrInvalidArgument, err)
		}
		classes = []domain.AssetClass{class}
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "symbol\tclass\texchange\tlisted\tincrement\ttick")
	for _, class := range classes {
		for _, ins := range b.Catalog.All(class) {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%v\n",
				ins.Symbol, ins.AssetClass, ins.Exchange, ins.ListedDate, ins.Increment(), ins.TickSize)
		}
	}
	return w.Flush()
}
