package execution

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"crypto_backtest/internal/catalog"
	"crypto_backtest/internal/cost"
	"crypto_backtest/internal/domain"

	"github.com/shopspring/decimal"
)

// Fill records an executed order.
type Fill struct {
	OrderID    string
	Symbol     string
	Side       domain.Side
	Quantity   decimal.Decimal
	Price      decimal.Decimal
	Commission decimal.Decimal
	Date       domain.Date
}

type paperPosition struct {
	quantity decimal.Decimal
	avgPrice decimal.Decimal
}

// PaperPortfolio is a single-account paper broker. Market orders fill at the
// last price on submission; limit orders fill at the last price once it
// crosses the limit and are cancelled at session end.
type PaperPortfolio struct {
	mu sync.Mutex

	catalog       *catalog.Catalog
	costs         *cost.Schedule
	prices        domain.PriceSource
	allowSentinel bool
	log           *slog.Logger

	cash      decimal.Decimal
	positions map[string]*paperPosition
	open      []*domain.Order
	fills     []Fill
}

// NewPaperPortfolio creates a portfolio with no cash.
func NewPaperPortfolio(cat *catalog.Catalog, costs *cost.Schedule, prices domain.PriceSource, allowSentinel bool, log *slog.Logger) *PaperPortfolio {
	if log == nil {
		log = slog.Default()
	}
	return &PaperPortfolio{
		catalog:       cat,
		costs:         costs,
		prices:        prices,
		allowSentinel: allowSentinel,
		log:           log,
		positions:     make(map[string]*paperPosition),
	}
}

// Deposit adds cash to the account.
func (p *PaperPortfolio) Deposit(amount decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cash = p.cash.Add(amount)
}

// Account returns the account view. Cash excludes the amount frozen by open buy orders.
func (p *PaperPortfolio) Account() domain.Account {
	p.mu.Lock()
	defer p.mu.Unlock()

	frozen := p.frozenCash()
	total := p.cash
	for symbol, pos := range p.positions {
		total = total.Add(p.marketValue(symbol, pos))
	}
	return domain.Account{
		Cash:       p.cash.Sub(frozen),
		TotalValue: total,
		FrozenCash: frozen,
	}
}

// Position returns the view of one holding; unknown symbols are flat.
func (p *PaperPortfolio) Position(symbol string) domain.Position {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		return domain.Position{Symbol: symbol}
	}
	closable := pos.quantity.Sub(p.pendingSell(symbol))
	if closable.IsNegative() {
		closable = decimal.Zero
	}
	return domain.Position{
		Symbol:      symbol,
		Quantity:    pos.quantity,
		MarketValue: p.marketValue(symbol, pos),
		Closable:    closable,
	}
}

// SubmitOrder takes ownership of o and fills it when possible.
func (p *PaperPortfolio) SubmitOrder(o *domain.Order) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if o.Quantity.IsZero() {
		o.Status = domain.OrderStatusRejected
		return domain.Reject("submit_order", o.Symbol, domain.ErrZeroQuantity, "0 order quantity")
	}
	if o.Side == domain.SideSell {
		held := decimal.Zero
		if pos, ok := p.positions[o.Symbol]; ok {
			held = pos.quantity.Sub(p.pendingSell(o.Symbol))
		}
		if o.AbsQuantity().GreaterThan(held) {
			o.Status = domain.OrderStatusRejected
			return domain.Reject("submit_order", o.Symbol, domain.ErrInvalidArgument,
				fmt.Sprintf("sell %s exceeds closable %s", o.AbsQuantity(), held))
		}
	}

	o.Status = domain.OrderStatusActive
	filled, err := p.tryFill(o)
	if err != nil {
		o.Status = domain.OrderStatusRejected
		return err
	}
	if !filled {
		p.open = append(p.open, o)
	}
	return nil
}

// Match retries the open limit orders against the current prices.
func (p *PaperPortfolio) Match() {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, o := range append([]*domain.Order(nil), p.open...) {
		filled, err := p.tryFill(o)
		if err != nil {
			o.Status = domain.OrderStatusRejected
			p.log.Warn("Open order rejected", slog.String("order_id", o.ID), slog.Any("error", err))
		}
		if filled || err != nil {
			p.removeOpen(o)
		}
	}
}

func (p *PaperPortfolio) removeOpen(o *domain.Order) {
	for i, open := range p.open {
		if open == o {
			p.open = append(p.open[:i], p.open[i+1:]...)
			return
		}
	}
}

// CancelOpen cancels every open order and returns how many were cancelled.
func (p *PaperPortfolio) CancelOpen() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.open)
	for _, o := range p.open {
		o.Status = domain.OrderStatusCancelled
	}
	p.open = nil
	return n
}

// Fills returns a copy of the fill history.
func (p *PaperPortfolio) Fills() []Fill {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Fill(nil), p.fills...)
}

// Symbols lists held symbols in order.
func (p *PaperPortfolio) Symbols() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]string, 0, len(p.positions))
	for s := range p.positions {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// tryFill executes o at the last price if it is marketable. Caller holds mu.
func (p *PaperPortfolio) tryFill(o *domain.Order) (bool, error) {
	price, ok := p.prices.LastPrice(o.Symbol)
	if !ok || !price.IsPositive() {
		return false, nil
	}
	if o.Style.IsLimit() &&
		((o.Side == domain.SideBuy && price.GreaterThan(o.Style.LimitPrice)) ||
			(o.Side == domain.SideSell && price.LessThan(o.Style.LimitPrice))) {
		return false, nil
	}

	model, err := p.model(o.Symbol)
	if err != nil {
		return false, err
	}
	qty := o.AbsQuantity()
	notional := price.Mul(qty)
	commission := model.TradeCommission(price, qty).Add(model.TradeTax(price, qty))

	pos, exists := p.positions[o.Symbol]
	if !exists {
		pos = &paperPosition{}
	}

	if o.Side == domain.SideBuy {
		need := notional.Add(commission)
		if available := p.cash.Sub(p.frozenCashExcept(o)); need.GreaterThan(available) {
			return false, domain.Reject("submit_order", o.Symbol, domain.ErrInvalidArgument,
				fmt.Sprintf("insufficient cash: need %s, have %s", need, available))
		}
		p.cash = p.cash.Sub(need)
		newQty := pos.quantity.Add(qty)
		pos.avgPrice = pos.avgPrice.Mul(pos.quantity).Add(notional).Div(newQty)
		pos.quantity = newQty
	} else {
		p.cash = p.cash.Add(notional).Sub(commission)
		pos.quantity = pos.quantity.Sub(qty)
	}

	if pos.quantity.IsZero() {
		delete(p.positions, o.Symbol)
	} else {
		p.positions[o.Symbol] = pos
	}

	o.Status = domain.OrderStatusFilled
	p.fills = append(p.fills, Fill{
		OrderID:    o.ID,
		Symbol:     o.Symbol,
		Side:       o.Side,
		Quantity:   qty,
		Price:      price,
		Commission: commission,
		Date:       o.CreatedAt,
	})
	p.log.Info("Order filled",
		slog.String("order_id", o.ID),
		slog.String("symbol", o.Symbol),
		slog.String("side", string(o.Side)),
		slog.String("quantity", qty.String()),
		slog.String("price", price.String()),
		slog.String("commission", commission.String()))
	return true, nil
}

func (p *PaperPortfolio) model(symbol string) (*cost.Model, error) {
	ins, ok := p.catalog.Lookup(symbol)
	if !ok {
		return nil, fmt.Errorf("%w: %w: %s", domain.ErrInvalidArgument, domain.ErrUnknownInstrument, symbol)
	}
	return p.costs.For(ins.AssetClass)
}

func (p *PaperPortfolio) marketValue(symbol string, pos *paperPosition) decimal.Decimal {
	if last, ok := p.prices.LastPrice(symbol); ok && last.IsPositive() {
		return pos.quantity.Mul(last)
	}
	return pos.quantity.Mul(pos.avgPrice)
}

func (p *PaperPortfolio) frozenCash() decimal.Decimal {
	return p.frozenCashExcept(nil)
}

// frozenCashExcept sums the cash reserved by open buy orders other than skip.
func (p *PaperPortfolio) frozenCashExcept(skip *domain.Order) decimal.Decimal {
	frozen := decimal.Zero
	for _, o := range p.open {
		if o == skip || o.Side != domain.SideBuy {
			continue
		}
		frozen = frozen.Add(p.reserved(o))
	}
	return frozen
}

// reserved is the cash held back for an open buy: notional at the frozen
// price plus the estimated commission.
func (p *PaperPortfolio) reserved(o *domain.Order) decimal.Decimal {
	notional := o.AbsQuantity().Mul(o.FrozenPrice)
	model, err := p.model(o.Symbol)
	if err != nil {
		return notional
	}
	est, err := model.OrderCost(o, p.prices, p.allowSentinel)
	if err != nil {
		p.log.Debug("No cost estimate for open order", slog.String("order_id", o.ID), slog.Any("error", err))
		return notional
	}
	if est.LowConfidence {
		notional = o.AbsQuantity().Mul(est.Price)
	}
	return notional.Add(est.Cost)
}

func (p *PaperPortfolio) pendingSell(symbol string) decimal.Decimal {
	pending := decimal.Zero
	for _, o := range p.open {
		if o.Symbol == symbol && o.Side == domain.SideSell {
			pending = pending.Add(o.AbsQuantity())
		}
	}
	return pending
}
