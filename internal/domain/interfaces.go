package domain

import "github.com/shopspring/decimal"

// BarStore is a symbol-keyed sequence store for one asset class.
type BarStore interface {
	GetBars(symbol string) []Bar
	StoreBars(symbol string, bars []Bar) error
	GetDateRange(symbol string) (first, last Date, ok bool)
	Symbols() []string
}

// PriceSource provides the last observed price of a symbol.
type PriceSource interface {
	LastPrice(symbol string) (decimal.Decimal, bool)
}

// Portfolio exposes the read-only account and position views consumed by the sizer.
type Portfolio interface {
	Account() Account
	Position(symbol string) Position
}

// OrderSubmitter receives created orders. The caller does not keep a reference after submission.
type OrderSubmitter interface {
	SubmitOrder(o *Order) error
}
