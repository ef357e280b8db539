package orders

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/broker"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
)

// Cancellation reasons reported to the cancel callback.
const (
	CancelReasonTimeout  = "timeout"
	CancelReasonSlippage = "slippage"
	CancelReasonBroker   = "broker"
)

// Tracked is an in-flight order the monitor watches until it resolves.
type Tracked struct {
	OrderID       string
	ClientOrderID string
	Symbol        string
	Side          string
	Qty           int64
	EntryPrice    float64
	PlacedAt      time.Time
	Status        string
}

// Config tunes the monitor's cancellation thresholds.
type Config struct {
	MaxOrderAge    time.Duration
	MaxSlippagePct float64
}

// markSource supplies the latest observed market price per symbol.
type markSource interface {
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
}

// Monitor polls the broker for the fate of tracked orders. An order
// missing from the broker's open set is treated as filled unless the
// closed set reports it canceled.
type Monitor struct {
	broker broker.Broker
	marks  markSource
	cfg    Config
	logger zerolog.Logger

	mu      sync.Mutex
	tracked map[string]*Tracked

	onFill   func(t Tracked, fillPrice float64)
	onCancel func(t Tracked, reason string)
}

// NewMonitor creates an order monitor over the broker. marks may be nil;
// without a price feed the slippage check cannot run.
func NewMonitor(b broker.Broker, marks markSource, cfg Config) *Monitor {
	if cfg.MaxOrderAge <= 0 {
		cfg.MaxOrderAge = 5 * time.Minute
	}
	if cfg.MaxSlippagePct <= 0 {
		cfg.MaxSlippagePct = 1.0
	}
	return &Monitor{
		broker:  b,
		marks:   marks,
		cfg:     cfg,
		logger:  logging.Component("order_monitor"),
		tracked: make(map[string]*Tracked),
	}
}

// OnFill registers the callback fired when a tracked order fills.
func (m *Monitor) OnFill(fn func(t Tracked, fillPrice float64)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onFill = fn
}

// OnCancel registers the callback fired when a tracked order is
// cancelled, by us or by the broker.
func (m *Monitor) OnCancel(fn func(t Tracked, reason string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onCancel = fn
}

// Track starts watching an order just placed.
func (m *Monitor) Track(order *broker.Order, entryPrice float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tracked[order.ID] = &Tracked{
		OrderID:       order.ID,
		ClientOrderID: order.ClientOrderID,
		Symbol:        order.Symbol,
		Side:          order.Side,
		Qty:           order.Qty,
		EntryPrice:    entryPrice,
		PlacedAt:      order.SubmittedAt,
		Status:        order.Status,
	}
}

// TrackedCount returns how many orders are being watched.
func (m *Monitor) TrackedCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracked)
}

// slippagePct is the percent distance of the current market price from
// the intended entry.
func slippagePct(markPrice, entry float64) float64 {
	if entry <= 0 {
		return 0
	}
	return math.Abs(markPrice-entry) / entry * 100
}

// currentMarks fetches the latest price for every tracked symbol.
// Symbols without a quote are simply absent from the map.
func (m *Monitor) currentMarks(ctx context.Context) map[string]float64 {
	marks := make(map[string]float64)
	if m.marks == nil {
		return marks
	}

	m.mu.Lock()
	symbols := make(map[string]struct{}, len(m.tracked))
	for _, t := range m.tracked {
		symbols[t.Symbol] = struct{}{}
	}
	m.mu.Unlock()

	for symbol := range symbols {
		if price, err := m.marks.GetLastPrice(ctx, symbol); err == nil && price > 0 {
			marks[symbol] = price
		}
	}
	return marks
}

// Poll runs one monitoring cycle: detect fills, cancel stale orders,
// cancel limit orders that drifted past the slippage cap.
func (m *Monitor) Poll(ctx context.Context) error {
	m.mu.Lock()
	if len(m.tracked) == 0 {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	open, err := m.broker.GetOrders(ctx, "open")
	if err != nil {
		return fmt.Errorf("failed to fetch open orders: %w", err)
	}
	openByID := make(map[string]broker.Order, len(open))
	for _, o := range open {
		openByID[o.ID] = o
	}

	// Closed set is only needed to distinguish fills from broker-side
	// cancellations and to learn the fill price.
	closed, err := m.broker.GetOrders(ctx, "closed")
	if err != nil {
		return fmt.Errorf("failed to fetch closed orders: %w", err)
	}
	closedByID := make(map[string]broker.Order, len(closed))
	for _, o := range closed {
		closedByID[o.ID] = o
	}

	marks := m.currentMarks(ctx)
	now := time.Now()

	m.mu.Lock()
	type resolution struct {
		t         Tracked
		filled    bool
		fillPrice float64
		reason    string
	}
	var resolved []resolution
	var toCancel []Tracked

	for id, t := range m.tracked {
		if o, isOpen := openByID[id]; isOpen {
			if now.Sub(t.PlacedAt) > m.cfg.MaxOrderAge {
				toCancel = append(toCancel, *t)
				resolved = append(resolved, resolution{t: *t, reason: CancelReasonTimeout})
				delete(m.tracked, id)
				continue
			}
			// A resting limit order never moves; the market does. Cancel
			// once the mark has drifted too far from the intended entry.
			if mark, ok := marks[t.Symbol]; ok && o.Type == "limit" &&
				slippagePct(mark, t.EntryPrice) > m.cfg.MaxSlippagePct {
				toCancel = append(toCancel, *t)
				resolved = append(resolved, resolution{t: *t, reason: CancelReasonSlippage})
				delete(m.tracked, id)
			}
			continue
		}

		// Gone from the open set: filled or cancelled upstream.
		if o, ok := closedByID[id]; ok && o.Status == broker.OrderStatusCanceled {
			resolved = append(resolved, resolution{t: *t, reason: CancelReasonBroker})
		} else {
			fillPrice := t.EntryPrice
			if ok && o.FilledAvgPrice > 0 {
				fillPrice = o.FilledAvgPrice
			}
			resolved = append(resolved, resolution{t: *t, filled: true, fillPrice: fillPrice})
		}
		delete(m.tracked, id)
	}
	onFill := m.onFill
	onCancel := m.onCancel
	m.mu.Unlock()

	for _, t := range toCancel {
		if err := m.broker.CancelOrder(ctx, t.OrderID); err != nil {
			m.logger.Error().Err(err).Str("order_id", t.OrderID).Msg("failed to cancel order")
		}
	}

	for _, r := range resolved {
		if r.filled {
			m.logger.Info().
				Str("order_id", r.t.OrderID).
				Str("symbol", r.t.Symbol).
				Float64("fill_price", r.fillPrice).
				Msg("order filled")
			if onFill != nil {
				onFill(r.t, r.fillPrice)
			}
		} else {
			metrics.OrdersCancelled.WithLabelValues(r.reason).Inc()
			m.logger.Warn().
				Str("order_id", r.t.OrderID).
				Str("symbol", r.t.Symbol).
				Str("reason", r.reason).
				Msg("order cancelled")
			if onCancel != nil {
				onCancel(r.t, r.reason)
			}
		}
	}
	return nil
}

// Reconcile drops tracked orders the broker no longer knows at all,
// open or closed. Happens after restarts when local state outlives the
// broker's order history window.
func (m *Monitor) Reconcile(ctx context.Context) error {
	all, err := m.broker.GetOrders(ctx, "all")
	if err != nil {
		return fmt.Errorf("failed to fetch orders for reconcile: %w", err)
	}
	known := make(map[string]struct{}, len(all))
	for _, o := range all {
		known[o.ID] = struct{}{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.tracked {
		if _, ok := known[id]; !ok {
			m.logger.Warn().
				Str("order_id", id).
				Str("symbol", t.Symbol).
				Msg("dropping order unknown to broker")
			delete(m.tracked, id)
		}
	}
	return nil
}
