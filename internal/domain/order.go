package domain

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Side of an order.
type Side string

// PositionEffect tells whether an order opens or closes exposure.
type PositionEffect string

// OrderType distinguishes market and limit styles.
type OrderType string

// OrderStatus is the lifecycle state of an order.
type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"

	PositionEffectOpen  PositionEffect = "OPEN"
	PositionEffectClose PositionEffect = "CLOSE"

	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"

	OrderStatusPendingNew OrderStatus = "PENDING_NEW"
	OrderStatusActive     OrderStatus = "ACTIVE"
	OrderStatusFilled     OrderStatus = "FILLED"
	OrderStatusRejected   OrderStatus = "REJECTED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

// OrderStyle is either a market order or a limit order at LimitPrice.
type OrderStyle struct {
	Type       OrderType
	LimitPrice decimal.Decimal
}

// MarketOrder returns the market style.
func MarketOrder() OrderStyle { return OrderStyle{Type: OrderTypeMarket} }

// LimitOrder returns a limit style at price.
func LimitOrder(price decimal.Decimal) OrderStyle {
	return OrderStyle{Type: OrderTypeLimit, LimitPrice: price}
}

// IsLimit reports whether the style carries a limit price.
func (s OrderStyle) IsLimit() bool { return s.Type == OrderTypeLimit }

func (s OrderStyle) String() string {
	if s.IsLimit() {
		return fmt.Sprintf("LIMIT(%s)", s.LimitPrice)
	}
	return string(OrderTypeMarket)
}

// Order is a normalized order request. Quantity is signed: positive buys, negative sells.
// Ownership passes to the submitter as soon as it is created.
type Order struct {
	ID             string
	Symbol         string
	Quantity       decimal.Decimal
	Side           Side
	PositionEffect PositionEffect
	Style          OrderStyle
	Status         OrderStatus
	// FrozenPrice is the price used to reserve cash when the order was sized.
	FrozenPrice decimal.Decimal
	CreatedAt   Date
}

// NewOrder creates a pending order. Side and position effect derive from the sign of qty.
func NewOrder(symbol string, qty decimal.Decimal, style OrderStyle, frozenPrice decimal.Decimal, at Date) *Order {
	side, effect := SideBuy, PositionEffectOpen
	if qty.IsNegative() {
		side, effect = SideSell, PositionEffectClose
	}
	return &Order{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Quantity:       qty,
		Side:           side,
		PositionEffect: effect,
		Style:          style,
		Status:         OrderStatusPendingNew,
		FrozenPrice:    frozenPrice,
		CreatedAt:      at,
	}
}

// AbsQuantity returns the unsigned order size.
func (o *Order) AbsQuantity() decimal.Decimal { return o.Quantity.Abs() }

// IsOpen checks if the order is still active.
func (o *Order) IsOpen() bool {
	return o.Status == OrderStatusPendingNew || o.Status == OrderStatusActive
}

// Position is the read-only view of a holding.
type Position struct {
	Symbol      string
	Quantity    decimal.Decimal
	MarketValue decimal.Decimal
	Closable    decimal.Decimal
}

// Account is the read-only view of the trading account.
type Account struct {
	Cash       decimal.Decimal
	TotalValue decimal.Decimal
	FrozenCash decimal.Decimal
}
