// Package cost computes commission owed by trades and estimated for pending orders.
package cost

import (
	"fmt"
	"log/slog"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/infra"

	"github.com/shopspring/decimal"
)

// SentinelPrice is the degraded-mode price used when an estimate is requested
// without any market price and the caller opted in.
var SentinelPrice = decimal.NewFromInt(1)

// Model charges max(notional * rate, min) per trade. Crypto trades pay no tax.
// A Model is immutable after construction.
type Model struct {
	rate          decimal.Decimal
	minCommission decimal.Decimal

	log     *slog.Logger
	metrics *infra.Metrics
}

// NewModel validates and builds a cost model.
func NewModel(rate, minCommission decimal.Decimal) (*Model, error) {
	if rate.IsNegative() || minCommission.IsNegative() {
		return nil, fmt.Errorf("%w: commission rate %s / minimum %s", domain.ErrInvalidArgument, rate, minCommission)
	}
	return &Model{
		rate:          rate,
		minCommission: minCommission,
		log:           slog.Default(),
		metrics:       infra.GlobalMetrics,
	}, nil
}

// MustModel is NewModel for constant parameters.
func MustModel(rate, minCommission string) *Model {
	m, err := NewModel(decimal.RequireFromString(rate), decimal.RequireFromString(minCommission))
	if err != nil {
		panic(err)
	}
	return m
}

// WithObserver returns a copy of the model reporting degraded estimates to log and metrics.
func (m *Model) WithObserver(log *slog.Logger, metrics *infra.Metrics) *Model {
	cp := *m
	if log != nil {
		cp.log = log
	}
	if metrics != nil {
		cp.metrics = metrics
	}
	return &cp
}

// Rate returns the commission rate.
func (m *Model) Rate() decimal.Decimal { return m.rate }

// MinCommission returns the per-trade commission floor.
func (m *Model) MinCommission() decimal.Decimal { return m.minCommission }

// TradeCommission is the commission of a fill of quantity at price.
func (m *Model) TradeCommission(price, quantity decimal.Decimal) decimal.Decimal {
	return m.CostFromNotional(price.Mul(quantity))
}

// TradeTax is always zero for crypto.
func (m *Model) TradeTax(price, quantity decimal.Decimal) decimal.Decimal {
	return decimal.Zero
}

// CostFromNotional is the commission of a trade worth value, sign ignored.
func (m *Model) CostFromNotional(value decimal.Decimal) decimal.Decimal {
	return decimal.Max(value.Abs().Mul(m.rate), m.minCommission)
}

// Estimate is a pre-trade cost estimate.
type Estimate struct {
	Cost  decimal.Decimal
	Price decimal.Decimal
	// LowConfidence is set when Price is the sentinel rather than a market price.
	LowConfidence bool
}

// OrderCost estimates the commission of a pending order. The price is the
// limit or frozen price, else the last price from prices. With allowSentinel
// a missing price falls back to SentinelPrice and the estimate is flagged.
func (m *Model) OrderCost(order *domain.Order, prices domain.PriceSource, allowSentinel bool) (Estimate, error) {
	price, ok := orderPrice(order, prices)
	if !ok {
		if !allowSentinel {
			return Estimate{}, fmt.Errorf("%w: no price to estimate cost of %s", domain.ErrNoMarketData, order.Symbol)
		}
		m.metrics.RecordSentinelPrice()
		m.log.Warn("No market price for cost estimate, using sentinel price",
			slog.String("symbol", order.Symbol),
			slog.String("order_id", order.ID),
			slog.String("sentinel", SentinelPrice.String()))
		return Estimate{
			Cost:          m.TradeCommission(SentinelPrice, order.AbsQuantity()),
			Price:         SentinelPrice,
			LowConfidence: true,
		}, nil
	}
	return Estimate{
		Cost:  m.TradeCommission(price, order.AbsQuantity()),
		Price: price,
	}, nil
}

func orderPrice(order *domain.Order, prices domain.PriceSource) (decimal.Decimal, bool) {
	if order.Style.IsLimit() && order.Style.LimitPrice.IsPositive() {
		return order.Style.LimitPrice, true
	}
	if order.FrozenPrice.IsPositive() {
		return order.FrozenPrice, true
	}
	if prices == nil {
		return decimal.Zero, false
	}
	if p, ok := prices.LastPrice(order.Symbol); ok && p.IsPositive() {
		return p, true
	}
	return decimal.Zero, false
}
