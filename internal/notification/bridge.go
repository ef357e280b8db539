package notification

import (
	"auction-market-bot/internal/events"
)

// Bridge forwards bus events to the notification manager.
type Bridge struct {
	manager *Manager
}

// NewBridge creates the bridge.
func NewBridge(manager *Manager) *Bridge {
	return &Bridge{manager: manager}
}

// Attach subscribes the bridge to the events worth a chat message.
func (b *Bridge) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventTradeOpened, b.handle)
	bus.Subscribe(events.EventTradeClosed, b.handle)
	bus.Subscribe(events.EventArbitrageExecuted, b.handle)
	bus.Subscribe(events.EventArbitrageExit, b.handle)
	bus.Subscribe(events.EventTradingHalted, b.handle)
}

func (b *Bridge) handle(ev events.Event) {
	switch ev.Type {
	case events.EventTradeOpened:
		b.manager.SendTradeOpened(
			dataStr(ev, "symbol"), dataStr(ev, "side"),
			dataFloat(ev, "entry_price"), dataInt64(ev, "qty"))
	case events.EventTradeClosed:
		b.manager.SendTradeClosed(
			dataStr(ev, "symbol"), dataStr(ev, "exit_reason"),
			dataFloat(ev, "entry_price"), dataFloat(ev, "exit_price"),
			dataFloat(ev, "pnl"), dataFloat(ev, "pnl_pct"))
	case events.EventArbitrageExecuted:
		b.manager.SendArbitrageExecuted(
			dataStr(ev, "symbol"),
			dataFloat(ev, "yes_qty"), dataFloat(ev, "no_qty"),
			dataFloat(ev, "entry_spread"))
	case events.EventArbitrageExit:
		b.manager.SendTradeClosed(
			dataStr(ev, "symbol"), dataStr(ev, "reason"),
			0, dataFloat(ev, "exit_spread"), dataFloat(ev, "pnl"), 0)
	case events.EventTradingHalted:
		b.manager.SendTradingHalted(dataStr(ev, "reason"))
	}
}

func dataStr(ev events.Event, key string) string {
	if v, ok := ev.Data[key].(string); ok {
		return v
	}
	return ""
}

func dataFloat(ev events.Event, key string) float64 {
	switch v := ev.Data[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	}
	return 0
}

func dataInt64(ev events.Event, key string) int64 {
	switch v := ev.Data[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
