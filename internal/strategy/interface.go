package strategy

import (
	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/history"

	"github.com/shopspring/decimal"
)

// ActionType defines the type of trading action
type ActionType int

const (
	// ActionBuy moves the symbol to Action.Percent of the portfolio.
	ActionBuy ActionType = iota + 1
	// ActionSell closes the symbol.
	ActionSell
)

// String returns the string representation of ActionType
func (a ActionType) String() string {
	switch a {
	case ActionBuy:
		return "BUY"
	case ActionSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// Action represents a decision made by the strategy
type Action struct {
	Type    ActionType
	Symbol  string
	Percent decimal.Decimal
	Reason  string
}

// HistoryReader is the slice of the history engine a strategy may use.
type HistoryReader interface {
	History(q history.Query) (*domain.BarSeries, error)
}

// Strategy is the interface that all trading strategies must implement.
// It is called synchronously by the Runner once per session in the OnBar phase.
type Strategy interface {
	Name() string
	// OnBar returns the actions for date. Data visible to the strategy ends at date.
	OnBar(date domain.Date, data HistoryReader) ([]Action, error)
}
