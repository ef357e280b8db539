// Package broker defines the order-execution contract the trader and
// order monitor consume, with a live Alpaca REST implementation and an
// in-memory paper broker for dry runs and tests.
package broker

import (
	"context"
	"time"
)

// Order statuses the platform cares about. Brokers report more; anything
// not "open-like" is treated as terminal.
const (
	OrderStatusNew      = "new"
	OrderStatusAccepted = "accepted"
	OrderStatusFilled   = "filled"
	OrderStatusCanceled = "canceled"
)

// Account is the broker's view of the trading account.
type Account struct {
	PortfolioValue float64
	Equity         float64
	LastEquity     float64
	BuyingPower    float64
	Cash           float64
	AccountBlocked bool
	TradingBlocked bool
}

// Position is one holding as the broker reports it.
type Position struct {
	Symbol           string
	Qty              int64
	AvgEntryPrice    float64
	CurrentPrice     float64
	UnrealizedPL     float64
	UnrealizedPLPct  float64
}

// Order is one broker order.
type Order struct {
	ID             string
	ClientOrderID  string
	Symbol         string
	Side           string
	Type           string
	Status         string
	Qty            int64
	LimitPrice     float64
	StopPrice      float64
	FilledAvgPrice float64
	SubmittedAt    time.Time
}

// Broker is the execution interface shared by live and paper trading.
type Broker interface {
	GetAccount(ctx context.Context) (*Account, error)
	GetPositions(ctx context.Context) ([]Position, error)
	// PlaceBracketOrder submits a market entry linked to a limit
	// take-profit and a stop-loss, all managed as one unit.
	PlaceBracketOrder(ctx context.Context, symbol string, qty int64, side string, takeProfit, stopLoss float64) (*Order, error)
	CancelOrder(ctx context.Context, orderID string) error
	GetOrders(ctx context.Context, status string) ([]Order, error)
	ClosePosition(ctx context.Context, symbol string) error
}
