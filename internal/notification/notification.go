// Package notification fans trading events out to chat channels. The
// manager swallows delivery errors after logging them; a dead webhook
// must never stall the trading path.
package notification

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/logging"
)

// Type classifies a notification.
type Type string

const (
	NotifyTradeOpen  Type = "trade_open"
	NotifyTradeClose Type = "trade_close"
	NotifyArbitrage  Type = "arbitrage"
	NotifyHalt       Type = "halt"
	NotifyInfo       Type = "info"
)

// Notification is one outbound message.
type Notification struct {
	Type      Type
	Title     string
	Message   string
	Symbol    string
	PnL       float64
	Timestamp time.Time
}

// Notifier delivers notifications over one channel.
type Notifier interface {
	Send(n *Notification) error
	Name() string
	IsEnabled() bool
}

// Manager fans notifications out to every enabled notifier.
type Manager struct {
	notifiers []Notifier
	enabled   bool
	logger    zerolog.Logger
}

// NewManager creates an empty manager.
func NewManager(enabled bool) *Manager {
	return &Manager{enabled: enabled, logger: logging.Component("notification")}
}

// AddNotifier registers a delivery channel.
func (m *Manager) AddNotifier(n Notifier) {
	m.notifiers = append(m.notifiers, n)
}

// Send delivers to every enabled notifier. Failures are logged, not
// returned; callers fire and forget.
func (m *Manager) Send(n *Notification) {
	if !m.enabled {
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now()
	}
	for _, notifier := range m.notifiers {
		if !notifier.IsEnabled() {
			continue
		}
		if err := notifier.Send(n); err != nil {
			m.logger.Error().Err(err).Str("notifier", notifier.Name()).Msg("notification delivery failed")
		}
	}
}

// SendTradeOpened announces a new position.
func (m *Manager) SendTradeOpened(symbol, side string, price float64, qty int64) {
	m.Send(&Notification{
		Type:    NotifyTradeOpen,
		Title:   fmt.Sprintf("Trade opened: %s", symbol),
		Message: fmt.Sprintf("%s %d %s @ %.2f", side, qty, symbol, price),
		Symbol:  symbol,
	})
}

// SendTradeClosed announces a closed position with its result.
func (m *Manager) SendTradeClosed(symbol, reason string, entryPrice, exitPrice, pnl, pnlPct float64) {
	m.Send(&Notification{
		Type:    NotifyTradeClose,
		Title:   fmt.Sprintf("Trade closed: %s", symbol),
		Message: fmt.Sprintf("Entry %.2f, exit %.2f\nPnL %.2f (%.2f%%)\nReason: %s", entryPrice, exitPrice, pnl, pnlPct, reason),
		Symbol:  symbol,
		PnL:     pnl,
	})
}

// SendArbitrageExecuted announces a paired binary-market entry.
func (m *Manager) SendArbitrageExecuted(symbol string, yesQty, noQty, spread float64) {
	m.Send(&Notification{
		Type:    NotifyArbitrage,
		Title:   fmt.Sprintf("Arbitrage entered: %s", symbol),
		Message: fmt.Sprintf("YES %.2f / NO %.2f shares at spread %.4f", yesQty, noQty, spread),
		Symbol:  symbol,
	})
}

// SendTradingHalted announces a halt-breaker trip.
func (m *Manager) SendTradingHalted(reason string) {
	m.Send(&Notification{
		Type:    NotifyHalt,
		Title:   "Trading halted",
		Message: reason,
	})
}
