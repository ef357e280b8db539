package orders

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"auction-market-bot/internal/broker"
)

type stubBroker struct {
	open      []broker.Order
	closed    []broker.Order
	cancelled []string
}

func (s *stubBroker) GetAccount(ctx context.Context) (*broker.Account, error) { return nil, nil }
func (s *stubBroker) GetPositions(ctx context.Context) ([]broker.Position, error) {
	return nil, nil
}
func (s *stubBroker) PlaceBracketOrder(ctx context.Context, symbol string, qty int64, side string, tp, sl float64) (*broker.Order, error) {
	return nil, nil
}
func (s *stubBroker) CancelOrder(ctx context.Context, orderID string) error {
	s.cancelled = append(s.cancelled, orderID)
	return nil
}
func (s *stubBroker) GetOrders(ctx context.Context, status string) ([]broker.Order, error) {
	switch status {
	case "open":
		return s.open, nil
	case "closed":
		return s.closed, nil
	default:
		return append(append([]broker.Order{}, s.open...), s.closed...), nil
	}
}
func (s *stubBroker) ClosePosition(ctx context.Context, symbol string) error { return nil }

// stubMarks serves last prices from a fixed map.
type stubMarks map[string]float64

func (s stubMarks) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	price, ok := s[symbol]
	if !ok {
		return 0, errors.New("no price cached")
	}
	return price, nil
}

func trackOrder(m *Monitor, id, symbol string, entry float64, placedAt time.Time) {
	m.Track(&broker.Order{
		ID:          id,
		Symbol:      symbol,
		Side:        "buy",
		Qty:         10,
		Status:      broker.OrderStatusAccepted,
		SubmittedAt: placedAt,
	}, entry)
}

func TestMonitorDetectsFill(t *testing.T) {
	sb := &stubBroker{
		closed: []broker.Order{{ID: "o1", Status: broker.OrderStatusFilled, FilledAvgPrice: 100.5}},
	}
	m := NewMonitor(sb, nil, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})

	var fillPrice float64
	m.OnFill(func(tr Tracked, p float64) { fillPrice = p })
	trackOrder(m, "o1", "AAPL", 100, time.Now())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if fillPrice != 100.5 {
		t.Errorf("fill price = %v, want 100.5", fillPrice)
	}
	if m.TrackedCount() != 0 {
		t.Errorf("tracked = %d, want 0 after fill", m.TrackedCount())
	}
}

func TestMonitorCancelsStaleOrder(t *testing.T) {
	placedAt := time.Now().Add(-10 * time.Minute)
	sb := &stubBroker{
		open: []broker.Order{{ID: "o1", Symbol: "AAPL", Type: "market", SubmittedAt: placedAt}},
	}
	m := NewMonitor(sb, nil, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})

	var reason string
	m.OnCancel(func(tr Tracked, r string) { reason = r })
	trackOrder(m, "o1", "AAPL", 100, placedAt)

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reason != CancelReasonTimeout {
		t.Errorf("reason = %q, want timeout", reason)
	}
	if len(sb.cancelled) != 1 || sb.cancelled[0] != "o1" {
		t.Errorf("cancelled = %v, want [o1]", sb.cancelled)
	}
}

func TestMonitorCancelsSlippedLimitOrder(t *testing.T) {
	// The limit order rests at its placed price; the market has moved
	// 5% against a 1% cap.
	sb := &stubBroker{
		open: []broker.Order{{ID: "o1", Symbol: "AAPL", Type: "limit", LimitPrice: 100}},
	}
	m := NewMonitor(sb, stubMarks{"AAPL": 105}, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})

	var reason string
	m.OnCancel(func(tr Tracked, r string) { reason = r })
	trackOrder(m, "o1", "AAPL", 100, time.Now())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reason != CancelReasonSlippage {
		t.Errorf("reason = %q, want slippage", reason)
	}
	if len(sb.cancelled) != 1 || sb.cancelled[0] != "o1" {
		t.Errorf("cancelled = %v, want [o1]", sb.cancelled)
	}
}

func TestMonitorLeavesHealthyOpenOrder(t *testing.T) {
	sb := &stubBroker{
		open: []broker.Order{{ID: "o1", Symbol: "AAPL", Type: "limit", LimitPrice: 100}},
	}
	m := NewMonitor(sb, stubMarks{"AAPL": 100.5}, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})
	trackOrder(m, "o1", "AAPL", 100, time.Now())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.TrackedCount() != 1 {
		t.Errorf("tracked = %d, want 1", m.TrackedCount())
	}
	if len(sb.cancelled) != 0 {
		t.Errorf("cancelled = %v, want none", sb.cancelled)
	}
}

func TestMonitorSkipsSlippageWithoutQuote(t *testing.T) {
	// No cached price for the symbol: the order stays working rather
	// than being cancelled on a guess.
	sb := &stubBroker{
		open: []broker.Order{{ID: "o1", Symbol: "AAPL", Type: "limit", LimitPrice: 100}},
	}
	m := NewMonitor(sb, stubMarks{}, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})
	trackOrder(m, "o1", "AAPL", 100, time.Now())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.TrackedCount() != 1 {
		t.Errorf("tracked = %d, want 1", m.TrackedCount())
	}
	if len(sb.cancelled) != 0 {
		t.Errorf("cancelled = %v, want none", sb.cancelled)
	}
}

func TestMonitorBrokerCancellation(t *testing.T) {
	sb := &stubBroker{
		closed: []broker.Order{{ID: "o1", Status: broker.OrderStatusCanceled}},
	}
	m := NewMonitor(sb, nil, Config{MaxOrderAge: 5 * time.Minute, MaxSlippagePct: 1})

	var reason string
	m.OnCancel(func(tr Tracked, r string) { reason = r })
	trackOrder(m, "o1", "AAPL", 100, time.Now())

	if err := m.Poll(context.Background()); err != nil {
		t.Fatal(err)
	}
	if reason != CancelReasonBroker {
		t.Errorf("reason = %q, want broker", reason)
	}
}

func TestReconcileDropsUnknownOrders(t *testing.T) {
	sb := &stubBroker{
		open: []broker.Order{{ID: "known"}},
	}
	m := NewMonitor(sb, nil, Config{})
	trackOrder(m, "known", "AAPL", 100, time.Now())
	trackOrder(m, "ghost", "TSLA", 200, time.Now())

	if err := m.Reconcile(context.Background()); err != nil {
		t.Fatal(err)
	}
	if m.TrackedCount() != 1 {
		t.Errorf("tracked = %d, want 1 after reconcile", m.TrackedCount())
	}
}

func TestClientOrderID(t *testing.T) {
	id := NewClientOrderID("BUY")
	if !strings.HasPrefix(id, "amb-buy-") {
		t.Errorf("id = %q, want amb-buy- prefix", id)
	}
	if !IsOurs(id) {
		t.Error("IsOurs rejected our own id")
	}
	if IsOurs("manual-order-1") {
		t.Error("IsOurs accepted a foreign id")
	}
	if got := SideFromClientOrderID(id); got != "buy" {
		t.Errorf("side = %q, want buy", got)
	}
}
