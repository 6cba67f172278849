// Package engine drives a backtest one trading session at a time.
package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"crypto_backtest/internal/calendar"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/event"
	"crypto_backtest/internal/execution"
	"crypto_backtest/internal/history"
	"crypto_backtest/internal/infra"
	"crypto_backtest/internal/service"
	"crypto_backtest/internal/strategy"

	"github.com/shopspring/decimal"
)

// DefaultDumpPath receives the state dump written when a run panics.
const DefaultDumpPath = "panic_dump.json"

// Options bound a run.
type Options struct {
	Start, End domain.Date
	// Symbols are priced every session. Strategy symbols not listed here are priced on demand.
	Symbols  []string
	DumpPath string
}

// EquityPoint is the account value at the end of a session.
type EquityPoint struct {
	Date       domain.Date     `json:"date"`
	Cash       decimal.Decimal `json:"cash"`
	TotalValue decimal.Decimal `json:"total_value"`
}

// Result summarizes a finished run.
type Result struct {
	Sessions   int
	Orders     int
	Rejections int
	Fills      []execution.Fill
	Equity     []EquityPoint
	Final      domain.Account
}

// Runner is the single-threaded outer driver. It owns the phase guard and
// delivers one session at a time to the strategy.
type Runner struct {
	opts      Options
	calendar  *calendar.Calendar
	history   *history.Engine
	prices    *service.PriceBook
	portfolio *execution.PaperPortfolio
	sizer     *execution.Sizer
	strategy  strategy.Strategy
	journal   *event.Journal
	log       *slog.Logger
	metrics   *infra.Metrics

	guard *execution.Guard

	mu     sync.RWMutex // Used only for external reads
	date   domain.Date
	result Result
}

// NewRunner creates a runner. A nil strategy runs sessions without trading.
func NewRunner(opts Options, cal *calendar.Calendar, hist *history.Engine, prices *service.PriceBook,
	portfolio *execution.PaperPortfolio, sizer *execution.Sizer, strat strategy.Strategy,
	log *slog.Logger, metrics *infra.Metrics) *Runner {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	if opts.DumpPath == "" {
		opts.DumpPath = DefaultDumpPath
	}
	return &Runner{
		opts:      opts,
		calendar:  cal,
		history:   hist,
		prices:    prices,
		portfolio: portfolio,
		sizer:     sizer,
		strategy:  strat,
		journal:   event.NewJournal(),
		log:       log,
		metrics:   metrics,
		guard:     execution.NewGuard(),
	}
}

// Journal returns the run journal.
func (r *Runner) Journal() *event.Journal { return r.journal }

// Guard returns the phase guard owned by the runner.
func (r *Runner) Guard() *execution.Guard { return r.guard }

// Run processes every session between Start and End. It MUST be called from a single goroutine.
// The guard is closed when Run returns, whatever the outcome.
func (r *Runner) Run(ctx context.Context) (res Result, err error) {
	sessions := r.calendar.Sessions(r.opts.Start, r.opts.End)
	if len(sessions) == 0 {
		return Result{}, fmt.Errorf("%w: no sessions between %s and %s", domain.ErrInvalidArgument, r.opts.Start, r.opts.End)
	}

	r.log.Info("Backtest started",
		slog.String("start", sessions[0].String()),
		slog.String("end", sessions[len(sessions)-1].String()),
		slog.Int("sessions", len(sessions)))

	defer r.guard.Close()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", p), slog.String("date", r.Date().String()))
			r.DumpState(r.opts.DumpPath)
			// We halt after dump.
			panic(fmt.Sprintf("HALTED: %v", p))
		}
	}()

	for _, date := range sessions {
		if err := ctx.Err(); err != nil {
			r.log.Info("Backtest stopping...", slog.String("date", date.String()))
			return r.Snapshot(), err
		}
		if err := r.runSession(date); err != nil {
			r.metrics.RecordError()
			return r.Snapshot(), fmt.Errorf("session %s: %w", date, err)
		}
	}

	r.journal.Append(event.Event{Type: event.TypeRunFinished, Date: r.Date()})
	res = r.Snapshot()
	r.log.Info("Backtest finished",
		slog.Int("sessions", res.Sessions),
		slog.Int("orders", res.Orders),
		slog.Int("rejections", res.Rejections),
		slog.String("total_value", res.Final.TotalValue.String()))
	return res, nil
}

func (r *Runner) runSession(date domain.Date) error {
	start := time.Now()
	r.mu.Lock()
	r.date = date
	r.mu.Unlock()
	r.journal.Append(event.Event{Type: event.TypeSession, Date: date})

	// 1. Before session: publish prices, retry resting orders
	if err := r.enter(domain.PhaseBeforeSession, date); err != nil {
		return err
	}
	r.updatePrices(date)
	r.portfolio.Match()

	// 2. Strategy dispatch
	if err := r.enter(domain.PhaseOnBar, date); err != nil {
		return err
	}
	if r.strategy != nil {
		actions, err := r.strategy.OnBar(date, r.history)
		if err != nil {
			return fmt.Errorf("strategy %s: %w", r.strategy.Name(), err)
		}
		for _, action := range actions {
			if err := r.execute(date, action); err != nil {
				return err
			}
		}
	}

	// 3. After session: orders do not outlive the session
	if err := r.enter(domain.PhaseAfterSession, date); err != nil {
		return err
	}
	if n := r.portfolio.CancelOpen(); n > 0 {
		r.journal.Append(event.Event{Type: event.TypeCancelled, Date: date, Detail: fmt.Sprintf("%d open orders", n)})
	}

	account := r.portfolio.Account()
	r.mu.Lock()
	r.result.Sessions++
	r.result.Equity = append(r.result.Equity, EquityPoint{Date: date, Cash: account.Cash, TotalValue: account.TotalValue})
	r.mu.Unlock()

	r.metrics.RecordSession(time.Since(start).Nanoseconds())
	return nil
}

func (r *Runner) enter(phase domain.Phase, date domain.Date) error {
	if err := r.guard.Enter(phase); err != nil {
		return err
	}
	r.journal.Append(event.Event{Type: event.TypePhase, Date: date, Detail: phase.String()})
	return nil
}

// updatePrices loads the bar of each tracked symbol dated exactly date.
func (r *Runner) updatePrices(date domain.Date) {
	bars := make(map[string]domain.Bar, len(r.opts.Symbols))
	for _, symbol := range r.opts.Symbols {
		if bar, ok := r.history.Bar(symbol, date); ok {
			bars[symbol] = bar
		}
	}
	n := r.prices.ProcessBars(bars)
	r.log.Debug("Prices updated", slog.String("date", date.String()), slog.Int("symbols", n))
}

// execute maps an action to a sizing call. Rejections are recorded and the
// run continues; any other error aborts the run.
func (r *Runner) execute(date domain.Date, action strategy.Action) error {
	if _, ok := r.prices.LastPrice(action.Symbol); !ok {
		if bar, ok := r.history.Bar(action.Symbol, date); ok {
			r.prices.ProcessBars(map[string]domain.Bar{action.Symbol: bar})
		}
	}

	env := &execution.Env{
		Guard:     r.guard,
		Portfolio: r.portfolio,
		Prices:    r.prices,
		Submitter: r.portfolio,
		AsOf:      date,
		Notify: func(symbol, message string) {
			r.journal.Append(event.Event{Type: event.TypeNotify, Date: date, Symbol: symbol, Detail: message})
		},
	}

	percent := action.Percent
	if action.Type == strategy.ActionSell {
		percent = decimal.Zero
	}

	r.log.Info("STRATEGY_ACTION",
		slog.String("date", date.String()),
		slog.String("action", action.Type.String()),
		slog.String("symbol", action.Symbol),
		slog.String("reason", action.Reason))

	order, err := r.sizer.OrderTargetPercent(env, action.Symbol, percent, domain.MarketOrder())
	var rejection *domain.RejectionError
	switch {
	case errors.As(err, &rejection):
		r.mu.Lock()
		r.result.Rejections++
		r.mu.Unlock()
		r.journal.Append(event.Event{Type: event.TypeRejection, Date: date, Symbol: action.Symbol, Detail: rejection.Error()})
		return nil
	case err != nil:
		return err
	case order == nil:
		return nil
	}

	r.mu.Lock()
	r.result.Orders++
	r.mu.Unlock()
	r.journal.Append(event.Event{
		Type:    event.TypeOrder,
		Date:    date,
		Symbol:  order.Symbol,
		OrderID: order.ID,
		Detail:  fmt.Sprintf("%s %s %s", order.Side, order.AbsQuantity(), order.Status),
	})
	return nil
}

// Date returns the session being processed (external read).
func (r *Runner) Date() domain.Date {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.date
}

// Snapshot returns the progress so far (external read).
func (r *Runner) Snapshot() Result {
	r.mu.RLock()
	res := r.result
	res.Equity = append([]EquityPoint(nil), r.result.Equity...)
	r.mu.RUnlock()

	res.Fills = r.portfolio.Fills()
	res.Final = r.portfolio.Account()
	return res
}

// DumpState writes the runner state to a file (for post-mortem).
func (r *Runner) DumpState(filename string) {
	r.log.Info("Dumping internal state...", slog.String("file", filename))

	res := r.Snapshot()
	data := struct {
		Date    domain.Date     `json:"date"`
		Phase   string          `json:"phase"`
		Quotes  []service.Quote `json:"quotes"`
		Equity  []EquityPoint   `json:"equity"`
		Journal []event.Event   `json:"journal"`
	}{
		Date:    r.Date(),
		Phase:   r.guard.Phase().String(),
		Quotes:  r.prices.All(),
		Equity:  res.Equity,
		Journal: r.journal.Tail(100),
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		r.log.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		r.log.Error("Failed to write state dump", slog.Any("error", err))
	}
}
