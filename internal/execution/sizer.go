package execution

import (
	"fmt"
	"log/slog"

	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/cost"
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"

	"github.com/shopspring/decimal"
)

// TargetEpsilon is the tolerance below which a target delta creates no order.
var TargetEpsilon = decimal.New(1, -8)

// Operation names reported in rejections and phase violations.
const (
	OpOrderShares        = "order_shares"
	OpOrderValue         = "order_value"
	OpOrderPercent       = "order_percent"
	OpOrderTargetValue   = "order_target_value"
	OpOrderTargetPercent = "order_target_percent"
	OpOrderTo            = "order_to"
)

// Env is everything a sizing call reads or writes besides the sizer itself.
// It replaces any process-wide environment: callers pass it explicitly.
type Env struct {
	Guard     *Guard
	Portfolio domain.Portfolio
	Prices    domain.PriceSource
	Submitter domain.OrderSubmitter
	AsOf      domain.Date
	// Notify receives degraded-mode messages such as cash substitution. Optional.
	Notify func(symbol, message string)
}

func (env *Env) notify(symbol, message string) {
	if env.Notify != nil {
		env.Notify(symbol, message)
	}
}

// Options are the account settings that change sizing behavior.
type Options struct {
	// AutoSwitchOrderValue re-sizes a buy with the remaining cash when its
	// notional exceeds the available cash.
	AutoSwitchOrderValue bool
}

// Sizer converts unit, cash and percent intents into cost-validated orders.
// Every entry point returns (nil, nil) for an intentional no-op, an order
// after successful submission, or an error. Sizing failures are
// *domain.RejectionError values carrying a reason.
type Sizer struct {
	catalog *catalog.Catalog
	costs   *cost.Schedule
	opts    Options
	log     *slog.Logger
	metrics *infra.Metrics
}

// NewSizer creates a sizer.
func NewSizer(cat *catalog.Catalog, costs *cost.Schedule, opts Options, log *slog.Logger, metrics *infra.Metrics) *Sizer {
	if log == nil {
		log = slog.Default()
	}
	if metrics == nil {
		metrics = infra.GlobalMetrics
	}
	return &Sizer{catalog: cat, costs: costs, opts: opts, log: log, metrics: metrics}
}

// request carries the resolved state of one sizing call.
type request struct {
	env   *Env
	op    string
	ins   *domain.Instrument
	model *cost.Model
	style domain.OrderStyle
}

func (s *Sizer) begin(env *Env, op, symbol string, style domain.OrderStyle) (*request, error) {
	if env == nil || env.Guard == nil {
		return nil, fmt.Errorf("%w: %s called without an execution environment", domain.ErrInvalidArgument, op)
	}
	if err := env.Guard.Check(op); err != nil {
		return nil, err
	}
	if env.Portfolio == nil || env.Prices == nil || env.Submitter == nil {
		return nil, fmt.Errorf("%w: %s needs portfolio, prices and submitter", domain.ErrInvalidArgument, op)
	}

	ins, ok := s.catalog.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrInvalidArgument, domain.ErrUnknownInstrument, symbol)
	}
	if !ins.IsCrypto() {
		return nil, fmt.Errorf("%w: %s only supports crypto instruments", domain.ErrInvalidArgument, op)
	}
	if style.IsLimit() && !style.LimitPrice.IsPositive() {
		return nil, fmt.Errorf("%w: limit price %s must be positive", domain.ErrInvalidArgument, style.LimitPrice)
	}

	model, err := s.costs.For(ins.AssetClass)
	if err != nil {
		return nil, err
	}
	return &request{env: env, op: op, ins: ins, model: model, style: style}, nil
}

// OrderShares buys (positive) or sells (negative) quantity units.
func (s *Sizer) OrderShares(env *Env, symbol string, quantity decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderShares, symbol, style)
	if err != nil {
		return nil, err
	}
	if quantity.IsZero() {
		return nil, nil
	}
	pos := env.Portfolio.Position(req.ins.Symbol)
	return s.submit(req, quantity, pos, s.opts.AutoSwitchOrderValue, true)
}

// OrderValue buys (positive) or sells (negative) cashAmount worth of symbol.
func (s *Sizer) OrderValue(env *Env, symbol string, cashAmount decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderValue, symbol, style)
	if err != nil {
		return nil, err
	}
	if cashAmount.IsZero() {
		return nil, nil
	}
	pos := env.Portfolio.Position(req.ins.Symbol)
	return s.orderValue(req, cashAmount, pos, true)
}

// OrderPercent trades percent of the account total value, in [-1, 1].
func (s *Sizer) OrderPercent(env *Env, symbol string, percent decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderPercent, symbol, style)
	if err != nil {
		return nil, err
	}
	if percent.LessThan(decimal.NewFromInt(-1)) || percent.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: percent %s out of [-1, 1]", domain.ErrInvalidArgument, percent)
	}
	cashAmount := env.Portfolio.Account().TotalValue.Mul(percent)
	if cashAmount.IsZero() {
		return nil, nil
	}
	pos := env.Portfolio.Position(req.ins.Symbol)
	return s.orderValue(req, cashAmount, pos, true)
}

// OrderTargetValue adjusts the position of symbol to be worth target.
// A zero target closes the closable quantity.
func (s *Sizer) OrderTargetValue(env *Env, symbol string, target decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderTargetValue, symbol, style)
	if err != nil {
		return nil, err
	}
	return s.orderTarget(req, target)
}

// OrderTargetPercent adjusts the position of symbol to percent of the account
// total value, in [0, 1].
func (s *Sizer) OrderTargetPercent(env *Env, symbol string, percent decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderTargetPercent, symbol, style)
	if err != nil {
		return nil, err
	}
	if percent.IsNegative() || percent.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: target percent %s out of [0, 1]", domain.ErrInvalidArgument, percent)
	}
	if percent.IsZero() {
		return s.orderTarget(req, decimal.Zero)
	}
	return s.orderTarget(req, env.Portfolio.Account().TotalValue.Mul(percent))
}

// OrderTo adjusts the position of symbol to quantity units.
func (s *Sizer) OrderTo(env *Env, symbol string, quantity decimal.Decimal, style domain.OrderStyle) (*domain.Order, error) {
	req, err := s.begin(env, OpOrderTo, symbol, style)
	if err != nil {
		return nil, err
	}
	pos := env.Portfolio.Position(req.ins.Symbol)
	delta := quantity.Sub(pos.Quantity)
	if delta.IsZero() {
		return nil, nil
	}
	return s.submit(req, delta, pos, s.opts.AutoSwitchOrderValue, true)
}

func (s *Sizer) orderTarget(req *request, target decimal.Decimal) (*domain.Order, error) {
	pos := req.env.Portfolio.Position(req.ins.Symbol)
	if target.IsZero() {
		if !pos.Closable.IsPositive() {
			return nil, nil
		}
		return s.submit(req, pos.Closable.Neg(), pos, false, true)
	}

	delta := target.Sub(pos.MarketValue)
	if delta.Abs().LessThanOrEqual(TargetEpsilon) {
		return nil, nil
	}
	return s.orderValue(req, delta, pos, false)
}

// orderValue sizes a cash amount into a quantity. Buys are fitted so that
// notional plus commission never exceeds the cash; sells are clamped to the
// closable quantity.
func (s *Sizer) orderValue(req *request, cashAmount decimal.Decimal, pos domain.Position, zeroAsError bool) (*domain.Order, error) {
	symbol := req.ins.Symbol

	if cashAmount.IsPositive() {
		available := req.env.Portfolio.Account().Cash
		if cashAmount.GreaterThan(available) {
			if !available.IsPositive() {
				if !zeroAsError {
					return nil, nil
				}
				return nil, s.reject(req, domain.ErrZeroQuantity, "insufficient cash")
			}
			s.substituted(req, cashAmount, available)
			cashAmount = available
		}
	}

	price, ok := s.stylePrice(req)
	if !ok {
		return nil, s.reject(req, domain.ErrNoMarketData, "No market data")
	}

	inc := req.ins.Increment()
	var amount decimal.Decimal
	if cashAmount.IsPositive() {
		amount = FitCash(cashAmount, price, inc, req.model)
		if amount.IsZero() {
			if zeroAsError {
				return nil, s.reject(req, domain.ErrZeroQuantity, "0 order quantity")
			}
			return nil, nil
		}
	} else {
		amount = roundToIncrement(cashAmount.Div(price), inc)
		if floor := pos.Closable.Neg(); amount.LessThan(floor) {
			amount = floor
		}
	}

	s.log.Debug("Sized order by value",
		slog.String("op", req.op),
		slog.String("symbol", symbol),
		slog.String("cash", cashAmount.String()),
		slog.String("price", price.String()),
		slog.String("quantity", amount.String()))
	return s.submit(req, amount, pos, false, zeroAsError)
}

// submit rounds, validates and hands the order to the submitter.
func (s *Sizer) submit(req *request, amount decimal.Decimal, pos domain.Position, autoSwitch, zeroAsError bool) (*domain.Order, error) {
	symbol := req.ins.Symbol

	price, ok := lastPrice(req.env.Prices, symbol)
	if !ok {
		return nil, s.reject(req, domain.ErrNoMarketData, "No market data")
	}

	buy := amount.IsPositive()
	flattens := (buy && pos.Quantity.Equal(amount.Neg())) || (!buy && pos.Quantity.Equal(amount.Abs()))
	if !flattens {
		amount = roundToIncrement(amount, req.ins.Increment())
	}

	if amount.IsZero() {
		if zeroAsError {
			return nil, s.reject(req, domain.ErrZeroQuantity, "0 order quantity")
		}
		return nil, nil
	}

	if buy && autoSwitch {
		cash := req.env.Portfolio.Account().Cash
		if cash.LessThan(amount.Mul(price)) {
			s.substituted(req, amount.Mul(price), cash)
			if !cash.IsPositive() {
				return nil, s.reject(req, domain.ErrZeroQuantity, "insufficient cash")
			}
			return s.orderValue(req, cash, pos, true)
		}
	}

	frozen := price
	if req.style.IsLimit() {
		frozen = req.style.LimitPrice
	}
	order := domain.NewOrder(symbol, amount, req.style, frozen, req.env.AsOf)

	if err := req.env.Submitter.SubmitOrder(order); err != nil {
		s.metrics.RecordOrderRejected()
		return nil, fmt.Errorf("submit %s order for %s: %w", req.op, symbol, err)
	}

	s.metrics.RecordOrderCreated()
	s.log.Info("Order created",
		slog.String("op", req.op),
		slog.String("order_id", order.ID),
		slog.String("symbol", symbol),
		slog.String("side", string(order.Side)),
		slog.String("quantity", order.Quantity.String()),
		slog.String("style", order.Style.String()),
		slog.String("as_of", req.env.AsOf.String()))
	return order, nil
}

func (s *Sizer) stylePrice(req *request) (decimal.Decimal, bool) {
	if req.style.IsLimit() {
		return req.style.LimitPrice, true
	}
	return lastPrice(req.env.Prices, req.ins.Symbol)
}

func lastPrice(prices domain.PriceSource, symbol string) (decimal.Decimal, bool) {
	p, ok := prices.LastPrice(symbol)
	if !ok || !p.IsPositive() {
		return decimal.Zero, false
	}
	return p, true
}

func (s *Sizer) substituted(req *request, requested, cash decimal.Decimal) {
	msg := fmt.Sprintf("insufficient cash, use all remaining cash(%s) to create order", cash)
	s.metrics.RecordCashSubstitution()
	s.log.Warn(msg,
		slog.String("op", req.op),
		slog.String("symbol", req.ins.Symbol),
		slog.String("requested", requested.String()),
		slog.String("cash", cash.String()))
	req.env.notify(req.ins.Symbol, msg)
}

func (s *Sizer) reject(req *request, kind error, reason string) error {
	err := domain.Reject(req.op, req.ins.Symbol, kind, reason)
	s.metrics.RecordOrderRejected()
	s.log.Warn("Order rejected",
		slog.String("op", req.op),
		slog.String("symbol", req.ins.Symbol),
		slog.String("reason", reason),
		slog.Bool("no_trade", domain.IsNoTrade(err)))
	return err
}

// FitCash returns the largest multiple q of inc with
// q*price + model.CostFromNotional(q*price) <= cash.
func FitCash(cash, price, inc decimal.Decimal, model *cost.Model) decimal.Decimal {
	if !cash.IsPositive() || !price.IsPositive() || !inc.IsPositive() {
		return decimal.Zero
	}

	fits := func(q decimal.Decimal) bool {
		notional := q.Mul(price)
		return notional.Add(model.CostFromNotional(notional)).LessThanOrEqual(cash)
	}

	// q*p*(1+rate) <= cash and q*p + min <= cash
	byRate := cash.Div(price.Mul(decimal.NewFromInt(1).Add(model.Rate())))
	byMin := cash.Sub(model.MinCommission()).Div(price)
	q := roundToIncrement(decimal.Min(byRate, byMin), inc)
	if q.IsNegative() {
		q = decimal.Zero
	}

	for q.IsPositive() && !fits(q) {
		q = q.Sub(inc)
	}
	if q.IsNegative() {
		return decimal.Zero
	}
	for fits(q.Add(inc)) {
		q = q.Add(inc)
	}
	return q
}

// roundToIncrement truncates q toward zero to a multiple of inc.
func roundToIncrement(q, inc decimal.Decimal) decimal.Decimal {
	if !inc.IsPositive() {
		return q
	}
	return q.Div(inc).Truncate(0).Mul(inc)
}
