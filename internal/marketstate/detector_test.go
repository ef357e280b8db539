package marketstate

import (
	"testing"

	"auction-market-bot/internal/database"
)

func flatCloses(n int, price float64) []float64 {
	closes := make([]float64, n)
	for i := range closes {
		closes[i] = price
	}
	return closes
}

func TestClassifyBalanceNearPOC(t *testing.T) {
	m := &database.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := &database.OrderFlowRow{BuyPressure: 52, SellPressure: 48}

	obs := Classify(100.2, m, flatCloses(30, 100.2), flow, DefaultParams())

	if obs.State != StateBalance {
		t.Fatalf("state = %s, want BALANCE", obs.State)
	}
	// dist 0.2% < 1.5 (+40), in value area and dist < 2.0 (+30), flat
	// momentum (+10): confidence 80.
	if obs.Confidence != 80 {
		t.Errorf("confidence = %v, want 80", obs.Confidence)
	}
}

func TestClassifyImbalanceUpAboveValueArea(t *testing.T) {
	m := &database.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := &database.OrderFlowRow{BuyPressure: 75, SellPressure: 25}

	// Price 4% above POC, breakout over VAH, strong buy pressure.
	closes := flatCloses(30, 104)
	obs := Classify(104, m, closes, flow, DefaultParams())

	if obs.State != StateImbalanceUp {
		t.Fatalf("state = %s, want IMBALANCE_UP", obs.State)
	}
	if obs.Confidence == 0 {
		t.Error("confidence = 0, want positive")
	}
}

func TestClassifyImbalanceDownBelowValueArea(t *testing.T) {
	m := &database.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := &database.OrderFlowRow{BuyPressure: 20, SellPressure: 80}

	obs := Classify(96, m, flatCloses(30, 96), flow, DefaultParams())

	if obs.State != StateImbalanceDown {
		t.Fatalf("state = %s, want IMBALANCE_DOWN", obs.State)
	}
}

func TestClassifyMomentumOverridesGeometry(t *testing.T) {
	m := &database.ProfileMetrics{POC: 100, VAH: 102, VAL: 98}

	// Price inside the value area but climbing hard: 1% move plus a
	// 3-bar up run pushes momentum past the threshold.
	closes := []float64{100, 100.2, 100.5, 100.8, 101}
	obs := Classify(101, m, closes, nil, DefaultParams())

	if obs.State != StateImbalanceUp {
		t.Fatalf("state = %s, want IMBALANCE_UP from momentum", obs.State)
	}
}

func TestClassifyUnknownWithoutMetrics(t *testing.T) {
	obs := Classify(100, nil, flatCloses(10, 100), nil, DefaultParams())
	if obs.State != StateUnknown || obs.Confidence != 0 {
		t.Errorf("got %s/%v, want UNKNOWN/0", obs.State, obs.Confidence)
	}
}

func TestClassifyConfidenceClamped(t *testing.T) {
	m := &database.ProfileMetrics{POC: 100, VAH: 101, VAL: 99}
	flow := &database.OrderFlowRow{BuyPressure: 95, SellPressure: 5}

	// Every imbalance rule fires at once.
	closes := []float64{100, 102, 104, 106, 108}
	obs := Classify(108, m, closes, flow, DefaultParams())

	if obs.Confidence > 100 {
		t.Errorf("confidence = %v, want clamped to 100", obs.Confidence)
	}
	if obs.State != StateImbalanceUp {
		t.Errorf("state = %s, want IMBALANCE_UP", obs.State)
	}
}

func TestMomentum(t *testing.T) {
	tests := []struct {
		name   string
		closes []float64
		want   func(m float64) bool
	}{
		{"empty", nil, func(m float64) bool { return m == 0 }},
		{"flat", flatCloses(10, 100), func(m float64) bool { return m == 0 }},
		{"up run adds kicker", []float64{100, 101, 102, 103}, func(m float64) bool { return m > 20 }},
		{"down run subtracts kicker", []float64{103, 102, 101, 100}, func(m float64) bool { return m < -20 }},
		{"clamped high", []float64{10, 100, 200, 300, 400}, func(m float64) bool { return m == 100 }},
		{"clamped low", []float64{400, 300, 200, 100, 10}, func(m float64) bool { return m == -100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Momentum(tt.closes); !tt.want(got) {
				t.Errorf("Momentum(%v) = %v", tt.closes, got)
			}
		})
	}
}
