// Package portfolio owns open positions and the cash ledger. It is the
// only component allowed to create or destroy a Position; detectors and
// strategies see read-only copies.
package portfolio

import (
	"fmt"
	"sync"
	"time"

	"auction-market-bot/internal/strategy"
)

// Position lifecycle states.
const (
	StatusOpening = "opening"
	StatusOpen    = "open"
	StatusClosing = "closing"
	StatusClosed  = "closed"
)

// Position is one open holding, exclusively owned by the Portfolio.
type Position struct {
	Symbol            string
	Side              string
	Qty               int64
	EntryPrice        float64
	EntryTime         time.Time
	StopLoss          float64
	TakeProfit        float64
	Status            string
	OrderID           string
	EntryReason       string
	StateAtEntry      string
	AggressionAtEntry float64

	BarsHeld int
	MAE      float64 // max adverse excursion, always <= 0
	MFE      float64 // max favorable excursion, always >= 0
}

// excursion is the direction-aware unrealized pnl at a price.
func (p *Position) excursion(price float64) float64 {
	if p.Side == strategy.SideBuy {
		return (price - p.EntryPrice) * float64(p.Qty)
	}
	return (p.EntryPrice - price) * float64(p.Qty)
}

// MarkValue is the position's contribution to equity at a price.
func (p *Position) MarkValue(price float64) float64 {
	return p.EntryPrice*float64(p.Qty) + p.excursion(price)
}

// Trade is a closed position, never mutated after creation.
type Trade struct {
	Symbol            string
	Side              string
	Qty               int64
	EntryPrice        float64
	EntryTime         time.Time
	ExitPrice         float64
	ExitTime          time.Time
	ExitReason        string
	PnL               float64
	PnLPct            float64
	MAE               float64
	MFE               float64
	BarsHeld          int
	StateAtEntry      string
	AggressionAtEntry float64
}

// Portfolio tracks at most one position per symbol plus the cash ledger
// and the per-symbol signal counters.
type Portfolio struct {
	mu sync.RWMutex

	initialCapital float64
	cash           float64
	positions      map[string]*Position
	trades         []Trade

	signalsGenerated map[string]int
	signalsBlocked   map[string]int
}

// New creates a portfolio seeded with the initial capital.
func New(initialCapital float64) *Portfolio {
	return &Portfolio{
		initialCapital:   initialCapital,
		cash:             initialCapital,
		positions:        make(map[string]*Position),
		signalsGenerated: make(map[string]int),
		signalsBlocked:   make(map[string]int),
	}
}

// Open creates a position in the given lifecycle status (StatusOpen for
// backtests, StatusOpening for live orders awaiting acknowledgement)
// and debits its cost from cash.
func (pf *Portfolio) Open(pos Position, status string) (*Position, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if _, exists := pf.positions[pos.Symbol]; exists {
		return nil, fmt.Errorf("position already open for %s", pos.Symbol)
	}
	cost := pos.EntryPrice * float64(pos.Qty)
	if cost > pf.cash {
		return nil, fmt.Errorf("insufficient cash: need %.2f, have %.2f", cost, pf.cash)
	}
	if pos.Qty <= 0 {
		return nil, fmt.Errorf("quantity must be positive, got %d", pos.Qty)
	}

	pos.Status = status
	pf.cash -= cost
	pf.positions[pos.Symbol] = &pos
	return &pos, nil
}

// MarkOpen transitions a pending position to open after broker
// acknowledgement.
func (pf *Portfolio) MarkOpen(symbol string) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok && pos.Status == StatusOpening {
		pos.Status = StatusOpen
	}
}

// Abort removes a position that never filled and refunds its cost.
func (pf *Portfolio) Abort(symbol string) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	if pos, ok := pf.positions[symbol]; ok && pos.Status == StatusOpening {
		pf.cash += pos.EntryPrice * float64(pos.Qty)
		delete(pf.positions, symbol)
	}
}

// UpdateBar folds one bar into the position's excursion metrics.
// bars_held only ever grows; MAE stays <= 0 <= MFE.
func (pf *Portfolio) UpdateBar(symbol string, price float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		return
	}
	pos.BarsHeld++
	exc := pos.excursion(price)
	if exc < pos.MAE {
		pos.MAE = exc
	}
	if exc > pos.MFE {
		pos.MFE = exc
	}
}

// Close destroys the position, credits cash with cost plus pnl, and
// appends the immutable Trade record.
func (pf *Portfolio) Close(symbol string, exitPrice float64, exitTime time.Time, reason string) (*Trade, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	pos, ok := pf.positions[symbol]
	if !ok {
		return nil, fmt.Errorf("no open position for %s", symbol)
	}

	pnl := pos.excursion(exitPrice)
	cost := pos.EntryPrice * float64(pos.Qty)
	var pnlPct float64
	if cost > 0 {
		pnlPct = pnl / cost * 100
	}

	trade := Trade{
		Symbol:            pos.Symbol,
		Side:              pos.Side,
		Qty:               pos.Qty,
		EntryPrice:        pos.EntryPrice,
		EntryTime:         pos.EntryTime,
		ExitPrice:         exitPrice,
		ExitTime:          exitTime,
		ExitReason:        reason,
		PnL:               pnl,
		PnLPct:            pnlPct,
		MAE:               pos.MAE,
		MFE:               pos.MFE,
		BarsHeld:          pos.BarsHeld,
		StateAtEntry:      pos.StateAtEntry,
		AggressionAtEntry: pos.AggressionAtEntry,
	}

	pf.cash += cost + pnl
	delete(pf.positions, symbol)
	pf.trades = append(pf.trades, trade)
	return &trade, nil
}

// Get returns a copy of the symbol's position, if any.
func (pf *Portfolio) Get(symbol string) (Position, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	pos, ok := pf.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// HasPosition reports whether the symbol has an open position.
func (pf *Portfolio) HasPosition(symbol string) bool {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	_, ok := pf.positions[symbol]
	return ok
}

// OpenCount returns the number of open positions.
func (pf *Portfolio) OpenCount() int {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return len(pf.positions)
}

// Symbols returns the symbols with open positions.
func (pf *Portfolio) Symbols() []string {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]string, 0, len(pf.positions))
	for sym := range pf.positions {
		out = append(out, sym)
	}
	return out
}

// Cash returns the free cash balance.
func (pf *Portfolio) Cash() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.cash
}

// Equity marks every open position against the supplied prices. A
// symbol missing from marks is valued at its entry price.
func (pf *Portfolio) Equity(marks map[string]float64) float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	equity := pf.cash
	for sym, pos := range pf.positions {
		price, ok := marks[sym]
		if !ok {
			price = pos.EntryPrice
		}
		equity += pos.MarkValue(price)
	}
	return equity
}

// InitialCapital returns the seed capital.
func (pf *Portfolio) InitialCapital() float64 {
	return pf.initialCapital
}

// Trades returns a copy of the trade log in close order.
func (pf *Portfolio) Trades() []Trade {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	out := make([]Trade, len(pf.trades))
	copy(out, pf.trades)
	return out
}

// RecordSignalGenerated bumps the per-symbol generated counter.
func (pf *Portfolio) RecordSignalGenerated(symbol string) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.signalsGenerated[symbol]++
}

// RecordSignalBlocked bumps the per-symbol blocked counter.
func (pf *Portfolio) RecordSignalBlocked(symbol string) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.signalsBlocked[symbol]++
}

// SignalCounts returns totals of generated and blocked signals.
func (pf *Portfolio) SignalCounts() (generated, blocked int) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	for _, n := range pf.signalsGenerated {
		generated += n
	}
	for _, n := range pf.signalsBlocked {
		blocked += n
	}
	return generated, blocked
}

// SignalCountsBySymbol returns copies of the per-symbol counters.
func (pf *Portfolio) SignalCountsBySymbol() (generated, blocked map[string]int) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	generated = make(map[string]int, len(pf.signalsGenerated))
	blocked = make(map[string]int, len(pf.signalsBlocked))
	for k, v := range pf.signalsGenerated {
		generated[k] = v
	}
	for k, v := range pf.signalsBlocked {
		blocked[k] = v
	}
	return generated, blocked
}
