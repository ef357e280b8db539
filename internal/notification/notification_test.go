package notification

import (
	"strings"
	"testing"

	"auction-market-bot/internal/events"
)

type recordingNotifier struct {
	enabled bool
	sent    []Notification
}

func (r *recordingNotifier) Send(n *Notification) error {
	r.sent = append(r.sent, *n)
	return nil
}
func (r *recordingNotifier) Name() string    { return "recording" }
func (r *recordingNotifier) IsEnabled() bool { return r.enabled }

func TestManagerFansOutToEnabledNotifiers(t *testing.T) {
	on := &recordingNotifier{enabled: true}
	off := &recordingNotifier{enabled: false}
	m := NewManager(true)
	m.AddNotifier(on)
	m.AddNotifier(off)

	m.SendTradeOpened("AAPL", "buy", 150.25, 10)

	if len(on.sent) != 1 {
		t.Fatalf("enabled notifier got %d messages, want 1", len(on.sent))
	}
	if len(off.sent) != 0 {
		t.Errorf("disabled notifier got %d messages, want 0", len(off.sent))
	}
	if on.sent[0].Type != NotifyTradeOpen || on.sent[0].Symbol != "AAPL" {
		t.Errorf("notification = %+v", on.sent[0])
	}
	if on.sent[0].Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestManagerDisabledSendsNothing(t *testing.T) {
	rec := &recordingNotifier{enabled: true}
	m := NewManager(false)
	m.AddNotifier(rec)

	m.SendTradingHalted("3 consecutive losses")
	if len(rec.sent) != 0 {
		t.Errorf("disabled manager sent %d messages", len(rec.sent))
	}
}

func TestBridgeFormatsTradeClosed(t *testing.T) {
	rec := &recordingNotifier{enabled: true}
	m := NewManager(true)
	m.AddNotifier(rec)
	b := NewBridge(m)

	b.handle(events.Event{
		Type: events.EventTradeClosed,
		Data: map[string]interface{}{
			"symbol":      "TSLA",
			"exit_reason": "Take Profit",
			"entry_price": 200.0,
			"exit_price":  212.5,
			"pnl":         125.0,
			"pnl_pct":     6.25,
		},
	})

	if len(rec.sent) != 1 {
		t.Fatalf("messages = %d, want 1", len(rec.sent))
	}
	n := rec.sent[0]
	if n.Type != NotifyTradeClose || n.PnL != 125.0 {
		t.Errorf("notification = %+v", n)
	}
	if !strings.Contains(n.Message, "Take Profit") {
		t.Errorf("message %q missing exit reason", n.Message)
	}
}

func TestBridgeFormatsArbitrageExecuted(t *testing.T) {
	rec := &recordingNotifier{enabled: true}
	m := NewManager(true)
	m.AddNotifier(rec)
	b := NewBridge(m)

	b.handle(events.Event{
		Type: events.EventArbitrageExecuted,
		Data: map[string]interface{}{
			"symbol":       "PM:election-2026",
			"yes_qty":      103.09,
			"no_qty":       103.09,
			"entry_spread": 0.97,
		},
	})

	if len(rec.sent) != 1 {
		t.Fatalf("messages = %d, want 1", len(rec.sent))
	}
	if rec.sent[0].Type != NotifyArbitrage {
		t.Errorf("type = %s, want %s", rec.sent[0].Type, NotifyArbitrage)
	}
}

func TestBridgeHalt(t *testing.T) {
	rec := &recordingNotifier{enabled: true}
	m := NewManager(true)
	m.AddNotifier(rec)
	b := NewBridge(m)

	b.handle(events.Event{
		Type: events.EventTradingHalted,
		Data: map[string]interface{}{"reason": "5 consecutive losses"},
	})

	if len(rec.sent) != 1 || rec.sent[0].Type != NotifyHalt {
		t.Fatalf("sent = %+v, want one halt", rec.sent)
	}
}

func TestDisabledNotifiersConstruct(t *testing.T) {
	tg, err := NewTelegramNotifier(TelegramConfig{})
	if err != nil {
		t.Fatal(err)
	}
	if tg.IsEnabled() {
		t.Error("empty telegram config should be disabled")
	}
	if err := tg.Send(&Notification{Title: "x"}); err != nil {
		t.Errorf("disabled telegram send errored: %v", err)
	}

	dc := NewDiscordNotifier(DiscordConfig{Enabled: true})
	if dc.IsEnabled() {
		t.Error("discord without webhook URL should be disabled")
	}
}
