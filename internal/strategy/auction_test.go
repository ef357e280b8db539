package strategy

import (
	"math"
	"testing"

	"auction-market-bot/internal/aggression"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/marketstate"
)

func testParams() Params {
	return Params{
		MinAggressionScore:  70,
		ATRStopMultiplier:   1.5,
		ATRTargetMultiplier: 3.0,
		RiskPerTradePct:     1.0,
		MaxPositions:        5,
	}
}

func TestEvaluateEntryBlocksOnBalance(t *testing.T) {
	in := Inputs{
		Symbol:      "AAPL",
		MarketState: marketstate.StateBalance,
		Confidence:  80,
		BuyPressure: 75, SellPressure: 25,
		CVDMomentum: 2000,
		Price:       100,
		ATR:         1,
	}

	sig, reason := EvaluateEntry(in, testParams())
	if sig != nil {
		t.Fatalf("got signal %+v, want none on BALANCE", sig)
	}
	if reason == "" {
		t.Error("expected a gate reason for the blocked entry")
	}
}

func TestEvaluateEntryBuySignal(t *testing.T) {
	in := Inputs{
		Symbol:      "AAPL",
		MarketState: marketstate.StateImbalanceUp,
		Confidence:  75,
		BuyPressure: 75, SellPressure: 25,
		CVDMomentum: 1500,
		Price:       100,
		ATR:         2,
	}

	sig, reason := EvaluateEntry(in, testParams())
	if sig == nil {
		t.Fatalf("expected a signal, blocked with: %s", reason)
	}
	if sig.Side != SideBuy {
		t.Errorf("side = %s, want buy", sig.Side)
	}
	if sig.StopLoss != 97 {
		t.Errorf("stop = %v, want 97", sig.StopLoss)
	}
	if sig.TakeProfit != 106 {
		t.Errorf("take profit = %v, want 106", sig.TakeProfit)
	}
	if sig.AggressionScore < 70 {
		t.Errorf("aggression score = %v, want >= 70", sig.AggressionScore)
	}
}

func TestEvaluateEntrySellSignal(t *testing.T) {
	in := Inputs{
		Symbol:      "TSLA",
		MarketState: marketstate.StateImbalanceDown,
		BuyPressure: 20, SellPressure: 80,
		CVDMomentum: -1500,
		Price:       200,
		ATR:         4,
	}

	sig, reason := EvaluateEntry(in, testParams())
	if sig == nil {
		t.Fatalf("expected a sell signal, blocked with: %s", reason)
	}
	if sig.Side != SideSell {
		t.Errorf("side = %s, want sell", sig.Side)
	}
	if sig.StopLoss != 206 {
		t.Errorf("stop = %v, want 206", sig.StopLoss)
	}
	if sig.TakeProfit != 188 {
		t.Errorf("take profit = %v, want 188", sig.TakeProfit)
	}
}

func TestEvaluateEntryGates(t *testing.T) {
	base := Inputs{
		Symbol:      "AAPL",
		MarketState: marketstate.StateImbalanceUp,
		BuyPressure: 75, SellPressure: 25,
		CVDMomentum: 1500,
		Price:       100,
		ATR:         2,
	}

	tests := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"weak aggression", func(in *Inputs) { in.CVDMomentum = 100; in.BuyPressure = 55; in.SellPressure = 45 }},
		{"flow contradicts state", func(in *Inputs) {
			in.BuyPressure = 20
			in.SellPressure = 80
			in.CVDMomentum = -1500
		}},
		{"zero ATR", func(in *Inputs) { in.ATR = 0 }},
		{"unknown state", func(in *Inputs) { in.MarketState = marketstate.StateUnknown }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			if sig, _ := EvaluateEntry(in, testParams()); sig != nil {
				t.Errorf("expected no signal, got %+v", sig)
			}
		})
	}
}

func TestEvaluateEntryIsPure(t *testing.T) {
	in := Inputs{
		Symbol:      "AAPL",
		MarketState: marketstate.StateImbalanceUp,
		BuyPressure: 75, SellPressure: 25,
		CVDMomentum: 1500,
		Price:       100,
		ATR:         2,
	}

	first, _ := EvaluateEntry(in, testParams())
	for i := 0; i < 10; i++ {
		again, _ := EvaluateEntry(in, testParams())
		if *again != *first {
			t.Fatalf("call %d produced %+v, first call produced %+v", i, again, first)
		}
	}
}

func TestEvaluateExit(t *testing.T) {
	tests := []struct {
		name       string
		side       string
		stop, tp   float64
		price      float64
		state      string
		flow       string
		wantExit   bool
		wantReason string
	}{
		{"long stop hit", SideBuy, 97, 106, 96.5, "", "", true, ExitStopLoss},
		{"long target hit", SideBuy, 97, 106, 106.2, "", "", true, ExitTakeProfit},
		{"long opposite signal", SideBuy, 97, 106, 100, marketstate.StateImbalanceDown, aggression.DirectionSell, true, ExitOppositeSignal},
		{"long holds", SideBuy, 97, 106, 100, marketstate.StateBalance, aggression.DirectionNeutral, false, ""},
		{"short stop hit", SideSell, 206, 188, 207, "", "", true, ExitStopLoss},
		{"short target hit", SideSell, 206, 188, 187, "", "", true, ExitTakeProfit},
		{"short opposite signal", SideSell, 206, 188, 200, marketstate.StateImbalanceUp, aggression.DirectionBuy, true, ExitOppositeSignal},
		{"short ignores sell flow", SideSell, 206, 188, 200, marketstate.StateImbalanceDown, aggression.DirectionSell, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, reason := EvaluateExit(tt.side, tt.stop, tt.tp, tt.price, tt.state, tt.flow)
			if exit != tt.wantExit {
				t.Fatalf("exit = %v, want %v", exit, tt.wantExit)
			}
			if reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", reason, tt.wantReason)
			}
		})
	}
}

func TestPositionSize(t *testing.T) {
	tests := []struct {
		name                string
		equity, cash        float64
		entry, stop, pct    float64
		want                int64
	}{
		{"risk bound", 100000, 100000, 100, 97, 1.0, 333}, // 1000 / 3
		{"cash bound", 100000, 5000, 100, 97, 1.0, 50},
		{"zero stop distance", 100000, 100000, 100, 100, 1.0, 0},
		{"no equity", 0, 1000, 100, 97, 1.0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PositionSize(tt.equity, tt.cash, tt.entry, tt.stop, tt.pct); got != tt.want {
				t.Errorf("qty = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestATR(t *testing.T) {
	// 15 identical bars with a constant 2-point range.
	var candles []database.Candle
	for i := 0; i < 15; i++ {
		candles = append(candles, database.Candle{Open: 100, High: 101, Low: 99, Close: 100})
	}
	if got := ATR(candles, 14); math.Abs(got-2) > 1e-9 {
		t.Errorf("ATR = %v, want 2", got)
	}

	// Cold-start fallbacks.
	if got := ATR(candles[:1], 14); math.Abs(got-4) > 1e-9 {
		t.Errorf("single-bar ATR = %v, want 4%% of price", got)
	}
	if got := ATR(candles[:5], 14); math.Abs(got-2) > 1e-9 {
		t.Errorf("short-history ATR = %v, want 2%% of price", got)
	}
	if got := ATR(nil, 14); got != 0 {
		t.Errorf("empty ATR = %v, want 0", got)
	}
}

func TestVolumeRatio(t *testing.T) {
	candles := []database.Candle{
		{Volume: 100}, {Volume: 100}, {Volume: 100}, {Volume: 300},
	}
	if got := VolumeRatio(candles); math.Abs(got-3) > 1e-9 {
		t.Errorf("volume ratio = %v, want 3", got)
	}
	if got := VolumeRatio(candles[:1]); got != 1 {
		t.Errorf("volume ratio with no history = %v, want 1", got)
	}
}

func TestCVDMomentum(t *testing.T) {
	flows := []database.OrderFlowRow{
		{CumulativeDelta: 100},
		{CumulativeDelta: 400},
		{CumulativeDelta: 1600},
	}
	if got := CVDMomentum(flows); got != 1500 {
		t.Errorf("cvd momentum = %v, want 1500", got)
	}
	if got := CVDMomentum(flows[:1]); got != 0 {
		t.Errorf("cvd momentum with one row = %v, want 0", got)
	}
}
