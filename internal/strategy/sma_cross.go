package strategy

import (
	"fmt"
	"math"

	"crypto_backtest/internal/domain"
	"crypto_backtest/internal/history"

	"github.com/shopspring/decimal"
)

// SMACrossName is the configuration name of SMACrossStrategy.
const SMACrossName = "sma_cross"

// SMACrossStrategy implements a simple SMA Crossover strategy over the
// closes served by the history engine. It keeps no state between sessions,
// so a run is reproducible from the stored bars alone.
type SMACrossStrategy struct {
	symbols       []string
	shortPeriod   int
	longPeriod    int
	frequency     string
	targetPercent decimal.Decimal
}

// NewSMACrossStrategy creates a new instance. Each symbol is held at
// targetPercent of the portfolio while its short SMA is above the long one.
func NewSMACrossStrategy(symbols []string, shortPeriod, longPeriod int, frequency string, targetPercent decimal.Decimal) (*SMACrossStrategy, error) {
	if shortPeriod <= 0 || shortPeriod >= longPeriod {
		return nil, fmt.Errorf("%w: sma periods %d/%d", domain.ErrInvalidArgument, shortPeriod, longPeriod)
	}
	if targetPercent.IsNegative() || targetPercent.GreaterThan(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("%w: target percent %s", domain.ErrInvalidArgument, targetPercent)
	}
	if frequency == "" {
		frequency = history.Daily
	}
	return &SMACrossStrategy{
		symbols:       append([]string(nil), symbols...),
		shortPeriod:   shortPeriod,
		longPeriod:    longPeriod,
		frequency:     frequency,
		targetPercent: targetPercent,
	}, nil
}

// Name implements Strategy.
func (s *SMACrossStrategy) Name() string { return SMACrossName }

// OnBar processes the session and generates cross signals.
func (s *SMACrossStrategy) OnBar(date domain.Date, data HistoryReader) ([]Action, error) {
	var actions []Action
	for _, symbol := range s.symbols {
		series, err := data.History(history.Query{
			Symbol:     symbol,
			Count:      s.longPeriod + 1,
			Frequency:  s.frequency,
			Fields:     []string{domain.FieldClose},
			AsOf:       date,
			IncludeNow: true,
		})
		if err != nil {
			return nil, err
		}
		closes, _ := series.Column(domain.FieldClose)
		if action, ok := s.signal(symbol, closes); ok {
			actions = append(actions, action)
		}
	}
	return actions, nil
}

// signal compares the SMAs of the latest window with the previous one.
func (s *SMACrossStrategy) signal(symbol string, closes []float64) (Action, bool) {
	// Check if we have enough data
	if len(closes) < s.longPeriod+1 {
		return Action{}, false
	}

	prevShort, ok1 := sma(closes[:len(closes)-1], s.shortPeriod)
	prevLong, ok2 := sma(closes[:len(closes)-1], s.longPeriod)
	currShort, ok3 := sma(closes, s.shortPeriod)
	currLong, ok4 := sma(closes, s.longPeriod)
	if !ok1 || !ok2 || !ok3 || !ok4 {
		return Action{}, false
	}

	// Golden Cross: Short goes above Long
	if prevShort <= prevLong && currShort > currLong {
		return Action{
			Type:    ActionBuy,
			Symbol:  symbol,
			Percent: s.targetPercent,
			Reason:  fmt.Sprintf("golden cross %.4f > %.4f", currShort, currLong),
		}, true
	}

	// Dead Cross: Short goes below Long
	if prevShort >= prevLong && currShort < currLong {
		return Action{
			Type:   ActionSell,
			Symbol: symbol,
			Reason: fmt.Sprintf("dead cross %.4f < %.4f", currShort, currLong),
		}, true
	}

	return Action{}, false
}

// sma averages the last period values. Any NaN in the window yields false.
func sma(values []float64, period int) (float64, bool) {
	if len(values) < period {
		return 0, false
	}
	var sum float64
	for _, v := range values[len(values)-period:] {
		if math.IsNaN(v) {
			return 0, false
		}
		sum += v
	}
	return sum / float64(period), true
}
