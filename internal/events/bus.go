package events

import (
	"sync"
	"time"
)

// EventType represents different types of events in the system
type EventType string

const (
	EventTradeOpened          EventType = "TRADE_OPENED"
	EventTradeClosed          EventType = "TRADE_CLOSED"
	EventOrderPlaced          EventType = "ORDER_PLACED"
	EventOrderFilled          EventType = "ORDER_FILLED"
	EventOrderCancelled       EventType = "ORDER_CANCELLED"
	EventSignalGenerated      EventType = "SIGNAL_GENERATED"
	EventSignalBlocked        EventType = "SIGNAL_BLOCKED"
	EventMarketState          EventType = "MARKET_STATE"
	EventLVNAlert             EventType = "LVN_ALERT"
	EventPriceUpdate          EventType = "PRICE_UPDATE"
	EventArbitrageOpportunity EventType = "ARBITRAGE_OPPORTUNITY"
	EventArbitrageExecuted    EventType = "ARBITRAGE_EXECUTED"
	EventArbitrageExit        EventType = "ARBITRAGE_EXIT"
	EventTradingHalted        EventType = "TRADING_HALTED"
	EventTradingResumed       EventType = "TRADING_RESUMED"
	EventError                EventType = "ERROR"
)

// Event represents a system event
type Event struct {
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscriber is a function that handles events
type Subscriber func(Event)

// EventBus manages event publishing and subscriptions
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]Subscriber
	allSubs     []Subscriber // Subscribers to all events
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[EventType][]Subscriber),
		allSubs:     make([]Subscriber, 0),
	}
}

// Subscribe registers a subscriber for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], subscriber)
}

// SubscribeAll registers a subscriber for all events
func (eb *EventBus) SubscribeAll(subscriber Subscriber) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.allSubs = append(eb.allSubs, subscriber)
}

// Publish sends an event to all subscribers
func (eb *EventBus) Publish(event Event) {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if subs, ok := eb.subscribers[event.Type]; ok {
		for _, sub := range subs {
			go sub(event) // Run in goroutine to avoid blocking
		}
	}

	for _, sub := range eb.allSubs {
		go sub(event)
	}
}

// PublishTradeOpened publishes a trade opened event
func (eb *EventBus) PublishTradeOpened(symbol, side string, entryPrice float64, qty int64) {
	eb.Publish(Event{
		Type: EventTradeOpened,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"entry_price": entryPrice,
			"qty":         qty,
		},
	})
}

// PublishTradeClosed publishes a trade closed event
func (eb *EventBus) PublishTradeClosed(symbol, side, reason string, entryPrice, exitPrice, pnl, pnlPct float64) {
	eb.Publish(Event{
		Type: EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      symbol,
			"side":        side,
			"exit_reason": reason,
			"entry_price": entryPrice,
			"exit_price":  exitPrice,
			"pnl":         pnl,
			"pnl_pct":     pnlPct,
		},
	})
}

// PublishSignal publishes a signal generated event
func (eb *EventBus) PublishSignal(symbol, side, reason string, price, score float64) {
	eb.Publish(Event{
		Type: EventSignalGenerated,
		Data: map[string]interface{}{
			"symbol":           symbol,
			"side":             side,
			"reason":           reason,
			"price":            price,
			"aggression_score": score,
		},
	})
}

// PublishSignalBlocked publishes a blocked-signal event with the gate reason.
func (eb *EventBus) PublishSignalBlocked(symbol, side, reason string) {
	eb.Publish(Event{
		Type: EventSignalBlocked,
		Data: map[string]interface{}{
			"symbol": symbol,
			"side":   side,
			"reason": reason,
		},
	})
}

// PublishMarketState publishes a detector observation.
func (eb *EventBus) PublishMarketState(symbol, state string, confidence float64) {
	eb.Publish(Event{
		Type: EventMarketState,
		Data: map[string]interface{}{
			"symbol":     symbol,
			"state":      state,
			"confidence": confidence,
		},
	})
}

// PublishLVNAlert publishes a low-volume-node proximity alert.
func (eb *EventBus) PublishLVNAlert(symbol string, price, lvn, distancePct float64, direction string) {
	eb.Publish(Event{
		Type: EventLVNAlert,
		Data: map[string]interface{}{
			"symbol":        symbol,
			"current_price": price,
			"lvn_price":     lvn,
			"distance_pct":  distancePct,
			"direction":     direction,
		},
	})
}

// PublishOrderPlaced publishes an order placed event
func (eb *EventBus) PublishOrderPlaced(orderID, symbol, side string, price float64, qty int64) {
	eb.Publish(Event{
		Type: EventOrderPlaced,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"side":     side,
			"price":    price,
			"qty":      qty,
		},
	})
}

// PublishOrderFilled publishes an order fill event
func (eb *EventBus) PublishOrderFilled(orderID, symbol string) {
	eb.Publish(Event{
		Type: EventOrderFilled,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
		},
	})
}

// PublishOrderCancelled publishes an order cancellation with its reason.
func (eb *EventBus) PublishOrderCancelled(orderID, symbol, reason string) {
	eb.Publish(Event{
		Type: EventOrderCancelled,
		Data: map[string]interface{}{
			"order_id": orderID,
			"symbol":   symbol,
			"reason":   reason,
		},
	})
}

// PublishPriceUpdate publishes a price update event
func (eb *EventBus) PublishPriceUpdate(symbol string, price float64) {
	eb.Publish(Event{
		Type: EventPriceUpdate,
		Data: map[string]interface{}{
			"symbol": symbol,
			"price":  price,
		},
	})
}

// PublishArbitrageOpportunity publishes a detected spread opportunity.
func (eb *EventBus) PublishArbitrageOpportunity(marketID, symbol string, spread, profitPct float64) {
	eb.Publish(Event{
		Type: EventArbitrageOpportunity,
		Data: map[string]interface{}{
			"market_id":  marketID,
			"symbol":     symbol,
			"spread":     spread,
			"profit_pct": profitPct,
		},
	})
}

// PublishArbitrageExecuted publishes a completed paired entry.
func (eb *EventBus) PublishArbitrageExecuted(marketID, symbol string, yesQty, noQty, entrySpread float64) {
	eb.Publish(Event{
		Type: EventArbitrageExecuted,
		Data: map[string]interface{}{
			"market_id":    marketID,
			"symbol":       symbol,
			"yes_qty":      yesQty,
			"no_qty":       noQty,
			"entry_spread": entrySpread,
		},
	})
}

// PublishArbitrageExit publishes an early-exit of a paired position.
func (eb *EventBus) PublishArbitrageExit(marketID, symbol, reason string, exitSpread, pnl float64) {
	eb.Publish(Event{
		Type: EventArbitrageExit,
		Data: map[string]interface{}{
			"market_id":   marketID,
			"symbol":      symbol,
			"reason":      reason,
			"exit_spread": exitSpread,
			"pnl":         pnl,
		},
	})
}

// PublishTradingHalted publishes a halt-breaker trip.
func (eb *EventBus) PublishTradingHalted(reason string) {
	eb.Publish(Event{
		Type: EventTradingHalted,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishTradingResumed publishes a halt-breaker reset.
func (eb *EventBus) PublishTradingResumed() {
	eb.Publish(Event{
		Type: EventTradingResumed,
		Data: map[string]interface{}{},
	})
}

// PublishError publishes an error event
func (eb *EventBus) PublishError(source, message string, err error) {
	data := map[string]interface{}{
		"source":  source,
		"message": message,
	}
	if err != nil {
		data["error"] = err.Error()
	}
	eb.Publish(Event{
		Type: EventError,
		Data: data,
	})
}
