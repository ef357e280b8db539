// Package risk enforces the account-level gates every new position must
// pass, and the halt breaker that pauses trading after a losing streak.
package risk

import (
	"fmt"
	"sync"
	"time"
)

// Config holds the risk gate thresholds.
type Config struct {
	MaxDailyLossPct   float64 // stop opening once daily pnl is worse than -this
	MinAccountBalance float64 // refuse to trade below this equity
	MaxPositions      int     // concurrent position cap
}

// Manager tracks daily pnl and account health and answers the one
// question the trader asks: may this position open.
type Manager struct {
	mu sync.RWMutex

	config         Config
	accountValue   float64
	dailyPnL       float64
	dailyReset     time.Time
	accountBlocked bool
	tradingBlocked bool
}

// NewManager creates a risk manager.
func NewManager(config Config) *Manager {
	return &Manager{
		config:     config,
		dailyReset: time.Now().Truncate(24 * time.Hour),
	}
}

// UpdateAccount records the broker's view of the account.
func (m *Manager) UpdateAccount(portfolioValue float64, accountBlocked, tradingBlocked bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accountValue = portfolioValue
	m.accountBlocked = accountBlocked
	m.tradingBlocked = tradingBlocked
}

// RecordTradePnL folds a closed trade into the daily total.
func (m *Manager) RecordTradePnL(pnl float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()
	m.dailyPnL += pnl
}

// DailyPnL returns today's realized pnl.
func (m *Manager) DailyPnL() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()
	return m.dailyPnL
}

// CanOpenPosition checks every gate. The caller passes its own view of
// open positions so live and backtest share one rule set.
func (m *Manager) CanOpenPosition(symbol string, openPositions int, hasPositionForSymbol bool) (bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkDailyReset()

	if m.accountValue < m.config.MinAccountBalance {
		return false, fmt.Sprintf("account value %.2f below minimum %.2f", m.accountValue, m.config.MinAccountBalance)
	}
	if m.accountBlocked {
		return false, "account is blocked"
	}
	if m.tradingBlocked {
		return false, "trading is blocked"
	}
	if openPositions >= m.config.MaxPositions {
		return false, fmt.Sprintf("max positions reached (%d/%d)", openPositions, m.config.MaxPositions)
	}
	if hasPositionForSymbol {
		return false, fmt.Sprintf("position already open for %s", symbol)
	}
	if m.accountValue > 0 {
		dailyPct := m.dailyPnL / m.accountValue * 100
		if dailyPct <= -m.config.MaxDailyLossPct {
			return false, fmt.Sprintf("daily loss %.2f%% at limit %.2f%%", dailyPct, m.config.MaxDailyLossPct)
		}
	}

	return true, ""
}

// checkDailyReset zeroes the daily pnl at midnight. Caller holds the lock.
func (m *Manager) checkDailyReset() {
	today := time.Now().Truncate(24 * time.Hour)
	if today.After(m.dailyReset) {
		m.dailyPnL = 0
		m.dailyReset = today
	}
}
