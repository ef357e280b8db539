package broker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// PaperBroker is an in-memory Broker for dry runs and tests. Market
// entries fill immediately at the last price pushed via SetLastPrice;
// bracket legs are recorded but never trigger on their own, exits go
// through ClosePosition.
type PaperBroker struct {
	mu sync.Mutex

	cash       float64
	lastPrices map[string]float64
	positions  map[string]*Position
	orders     map[string]*Order
	realized   float64
}

// NewPaperBroker creates a paper broker seeded with cash.
func NewPaperBroker(initialCash float64) *PaperBroker {
	return &PaperBroker{
		cash:       initialCash,
		lastPrices: make(map[string]float64),
		positions:  make(map[string]*Position),
		orders:     make(map[string]*Order),
	}
}

// SetLastPrice feeds the broker the mark used for fills and equity.
func (b *PaperBroker) SetLastPrice(symbol string, price float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastPrices[symbol] = price
	if pos, ok := b.positions[symbol]; ok {
		pos.CurrentPrice = price
		pos.UnrealizedPL = (price - pos.AvgEntryPrice) * float64(pos.Qty)
		if pos.AvgEntryPrice > 0 {
			pos.UnrealizedPLPct = (price - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		}
	}
}

// GetAccount reports the simulated account.
func (b *PaperBroker) GetAccount(ctx context.Context) (*Account, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	equity := b.cash
	for _, pos := range b.positions {
		equity += pos.CurrentPrice * float64(pos.Qty)
	}
	return &Account{
		PortfolioValue: equity,
		Equity:         equity,
		LastEquity:     equity,
		BuyingPower:    b.cash,
		Cash:           b.cash,
	}, nil
}

// GetPositions returns the simulated holdings.
func (b *PaperBroker) GetPositions(ctx context.Context) ([]Position, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Position, 0, len(b.positions))
	for _, pos := range b.positions {
		out = append(out, *pos)
	}
	return out, nil
}

// PlaceBracketOrder fills the market entry at the last price.
func (b *PaperBroker) PlaceBracketOrder(ctx context.Context, symbol string, qty int64, side string, takeProfit, stopLoss float64) (*Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", qty)
	}
	price, ok := b.lastPrices[symbol]
	if !ok || price <= 0 {
		return nil, fmt.Errorf("no market price for %s", symbol)
	}
	cost := price * float64(qty)
	if side == "buy" && cost > b.cash {
		return nil, fmt.Errorf("insufficient buying power: need %.2f, have %.2f", cost, b.cash)
	}
	if _, exists := b.positions[symbol]; exists {
		return nil, fmt.Errorf("position already open for %s", symbol)
	}

	order := &Order{
		ID:             uuid.NewString(),
		Symbol:         symbol,
		Side:           side,
		Type:           "market",
		Status:         OrderStatusFilled,
		Qty:            qty,
		LimitPrice:     round2(takeProfit),
		StopPrice:      round2(stopLoss),
		FilledAvgPrice: price,
		SubmittedAt:    time.Now().UTC(),
	}
	b.orders[order.ID] = order

	b.positions[symbol] = &Position{
		Symbol:        symbol,
		Qty:           qty,
		AvgEntryPrice: price,
		CurrentPrice:  price,
	}
	if side == "buy" {
		b.cash -= cost
	} else {
		b.cash += cost
	}

	cp := *order
	return &cp, nil
}

// CancelOrder marks a non-terminal order canceled.
func (b *PaperBroker) CancelOrder(ctx context.Context, orderID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	order, ok := b.orders[orderID]
	if !ok {
		return fmt.Errorf("unknown order %s", orderID)
	}
	if order.Status == OrderStatusNew || order.Status == OrderStatusAccepted {
		order.Status = OrderStatusCanceled
	}
	return nil
}

// GetOrders lists orders by status bucket.
func (b *PaperBroker) GetOrders(ctx context.Context, status string) ([]Order, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Order
	for _, o := range b.orders {
		open := o.Status == OrderStatusNew || o.Status == OrderStatusAccepted
		switch status {
		case "", "open":
			if !open {
				continue
			}
		case "closed":
			if open {
				continue
			}
		}
		out = append(out, *o)
	}
	return out, nil
}

// ClosePosition liquidates the symbol at the last price.
func (b *PaperBroker) ClosePosition(ctx context.Context, symbol string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	pos, ok := b.positions[symbol]
	if !ok {
		return fmt.Errorf("no open position for %s", symbol)
	}
	price, has := b.lastPrices[symbol]
	if !has {
		price = pos.AvgEntryPrice
	}
	b.cash += price * float64(pos.Qty)
	b.realized += (price - pos.AvgEntryPrice) * float64(pos.Qty)
	delete(b.positions, symbol)
	return nil
}

// RealizedPnL reports cumulative realized pnl since creation.
func (b *PaperBroker) RealizedPnL() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.realized
}

var _ Broker = (*PaperBroker)(nil)
