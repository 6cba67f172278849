package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"crypto_backtest/internal/app"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"

	"github.com/google/subcommands"
)

var configPath = flag.String("config", app.DefaultConfigPath, "Path to the config file")

// loadConfig reads the config file; a missing file falls back to the defaults.
func loadConfig(path string) (*infra.Config, error) {
	cfg, err := infra.LoadConfig(path)
	if errors.Is(err, domain.ErrConfigNotFound) {
		fmt.Fprintf(os.Stderr, "warning, %s does not exist, using default configuration instead\n", path)
		return infra.DefaultConfig(), nil
	}
	return cfg, err
}

// openApp is the central function to open the data layer. Logs go to stderr
// so that stdout only carries command output.
func openApp() (*app.Bootstrap, error) {
	cfg, err := loadConfig(*configPath)
	if err != nil {
		return nil, err
	}
	b := app.NewBootstrap()
	if err := b.InitializeWith(cfg, infra.NewLoggerTo(os.Stderr, cfg)); err != nil {
		return nil, err
	}
	return b, nil
}

// runner is implemented by every command: run does the work against an open app.
type runner interface {
	run(b *app.Bootstrap, args []string, out io.Writer) error
}

// execute opens the app, runs cmd and maps the outcome to an exit status.
func execute(cmd runner, args []string) subcommands.ExitStatus {
	b, err := openApp()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer b.Close()

	if err := cmd.run(b, args, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, domain.ErrInvalidArgument) {
			return subcommands.ExitUsageError
		}
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}
