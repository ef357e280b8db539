package risk

import (
	"fmt"
	"sync"
	"time"
)

// HaltBreaker pauses trading after a run of consecutive losses and
// resumes after a cooldown. A winning trade while armed resets the
// streak.
type HaltBreaker struct {
	mu sync.Mutex

	maxConsecutiveLosses int
	cooldown             time.Duration

	consecutiveLosses int
	halted            bool
	haltedAt          time.Time
	haltReason        string

	onTrip  func(reason string)
	onReset func()
}

// NewHaltBreaker creates a halt breaker. A non-positive loss limit
// disables it.
func NewHaltBreaker(maxConsecutiveLosses int, cooldown time.Duration) *HaltBreaker {
	return &HaltBreaker{
		maxConsecutiveLosses: maxConsecutiveLosses,
		cooldown:             cooldown,
	}
}

// OnTrip registers the callback fired when the breaker halts trading.
func (b *HaltBreaker) OnTrip(fn func(reason string)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onTrip = fn
}

// OnReset registers the callback fired when trading resumes.
func (b *HaltBreaker) OnReset(fn func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onReset = fn
}

// RecordTrade feeds a closed trade's pnl into the streak counter.
func (b *HaltBreaker) RecordTrade(pnl float64) {
	if b.maxConsecutiveLosses <= 0 {
		return
	}

	b.mu.Lock()
	if pnl >= 0 {
		b.consecutiveLosses = 0
		b.mu.Unlock()
		return
	}

	b.consecutiveLosses++
	shouldTrip := !b.halted && b.consecutiveLosses >= b.maxConsecutiveLosses
	var trip func(string)
	var reason string
	if shouldTrip {
		b.halted = true
		b.haltedAt = time.Now()
		reason = fmt.Sprintf("%d consecutive losing trades", b.consecutiveLosses)
		b.haltReason = reason
		trip = b.onTrip
	}
	b.mu.Unlock()

	if trip != nil {
		trip(reason)
	}
}

// CanTrade reports whether the breaker permits new entries, resuming
// automatically once the cooldown has elapsed.
func (b *HaltBreaker) CanTrade() (bool, string) {
	if b.maxConsecutiveLosses <= 0 {
		return true, ""
	}

	b.mu.Lock()
	if !b.halted {
		b.mu.Unlock()
		return true, ""
	}

	elapsed := time.Since(b.haltedAt)
	if elapsed < b.cooldown {
		reason := fmt.Sprintf("trading halted (%s), cooldown remaining %v",
			b.haltReason, (b.cooldown - elapsed).Round(time.Second))
		b.mu.Unlock()
		return false, reason
	}

	b.halted = false
	b.consecutiveLosses = 0
	reset := b.onReset
	b.mu.Unlock()

	if reset != nil {
		reset()
	}
	return true, ""
}
