// Command barctl maintains the bar stores and inspects the data a backtest reads.
package main

import (
	"context"
	"flag"
	"os"
	"path"

	"github.com/google/subcommands"
)

func main() {
	commander := subcommands.NewCommander(flag.CommandLine, path.Base(os.Args[0]))
	commander.Register(commander.HelpCommand(), "")
	commander.Register(commander.FlagsCommand(), "")
	commander.Register(commander.CommandsCommand(), "")
	Register(commander)

	flag.Parse()
	os.Exit(int(commander.Execute(context.Background())))
}

// Register the subcommands.
func Register(c *subcommands.Commander) {
	c.Register(&importCmd{}, "data")
	c.Register(&exportCmd{}, "data")

	c.Register(&historyCmd{}, "inspect")
	c.Register(&rangeCmd{}, "inspect")
	c.Register(&calendarCmd{}, "inspect")
	c.Register(&instrumentsCmd{}, "inspect")
}
