package portfolio

import (
	"testing"
	"time"

	"auction-market-bot/internal/strategy"
)

var entryTime = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func openLong(t *testing.T, pf *Portfolio, symbol string, qty int64, entry float64) {
	t.Helper()
	_, err := pf.Open(Position{
		Symbol:     symbol,
		Side:       strategy.SideBuy,
		Qty:        qty,
		EntryPrice: entry,
		EntryTime:  entryTime,
	}, StatusOpen)
	if err != nil {
		t.Fatalf("failed to open %s: %v", symbol, err)
	}
}

func TestOpenDebitsCash(t *testing.T) {
	pf := New(10000)
	openLong(t, pf, "AAPL", 50, 100)

	if pf.Cash() != 5000 {
		t.Errorf("cash = %v, want 5000", pf.Cash())
	}
	if !pf.HasPosition("AAPL") || pf.OpenCount() != 1 {
		t.Error("position not tracked after open")
	}
}

func TestOpenRejectsDuplicateAndOverspend(t *testing.T) {
	pf := New(10000)
	openLong(t, pf, "AAPL", 50, 100)

	if _, err := pf.Open(Position{Symbol: "AAPL", Side: strategy.SideBuy, Qty: 1, EntryPrice: 100}, StatusOpen); err == nil {
		t.Error("expected duplicate-symbol open to fail")
	}
	if _, err := pf.Open(Position{Symbol: "TSLA", Side: strategy.SideBuy, Qty: 100, EntryPrice: 100}, StatusOpen); err == nil {
		t.Error("expected overspend open to fail")
	}
	if pf.Cash() < 0 {
		t.Errorf("cash went negative: %v", pf.Cash())
	}
}

func TestCloseLongProfit(t *testing.T) {
	pf := New(10000)
	openLong(t, pf, "AAPL", 50, 100)

	trade, err := pf.Close("AAPL", 106, entryTime.Add(time.Hour), strategy.ExitTakeProfit)
	if err != nil {
		t.Fatal(err)
	}
	if trade.PnL != 300 {
		t.Errorf("pnl = %v, want 300", trade.PnL)
	}
	if trade.PnLPct != 6 {
		t.Errorf("pnl pct = %v, want 6", trade.PnLPct)
	}
	if pf.Cash() != 10300 {
		t.Errorf("cash = %v, want 10300", pf.Cash())
	}
	if pf.HasPosition("AAPL") {
		t.Error("position still present after close")
	}
	if len(pf.Trades()) != 1 {
		t.Errorf("trade log has %d entries, want 1", len(pf.Trades()))
	}
}

func TestCloseShortProfit(t *testing.T) {
	pf := New(10000)
	_, err := pf.Open(Position{
		Symbol:     "TSLA",
		Side:       strategy.SideSell,
		Qty:        10,
		EntryPrice: 200,
		EntryTime:  entryTime,
	}, StatusOpen)
	if err != nil {
		t.Fatal(err)
	}

	trade, err := pf.Close("TSLA", 188, entryTime.Add(time.Hour), strategy.ExitTakeProfit)
	if err != nil {
		t.Fatal(err)
	}
	if trade.PnL != 120 {
		t.Errorf("short pnl = %v, want 120", trade.PnL)
	}
	if pf.Cash() != 10120 {
		t.Errorf("cash = %v, want 10120", pf.Cash())
	}
}

func TestExcursionInvariants(t *testing.T) {
	pf := New(10000)
	openLong(t, pf, "AAPL", 10, 100)

	prices := []float64{101, 98, 103, 97, 105}
	for _, p := range prices {
		pf.UpdateBar("AAPL", p)
	}

	pos, _ := pf.Get("AAPL")
	if pos.BarsHeld != len(prices) {
		t.Errorf("bars held = %d, want %d", pos.BarsHeld, len(prices))
	}
	if pos.MAE > 0 {
		t.Errorf("MAE = %v, want <= 0", pos.MAE)
	}
	if pos.MFE < 0 {
		t.Errorf("MFE = %v, want >= 0", pos.MFE)
	}
	if pos.MAE != -30 {
		t.Errorf("MAE = %v, want -30 (worst at 97)", pos.MAE)
	}
	if pos.MFE != 50 {
		t.Errorf("MFE = %v, want 50 (best at 105)", pos.MFE)
	}
}

func TestEquityMarksOpenPositions(t *testing.T) {
	pf := New(10000)
	openLong(t, pf, "AAPL", 50, 100)

	equity := pf.Equity(map[string]float64{"AAPL": 102})
	if equity != 10100 {
		t.Errorf("equity = %v, want 10100", equity)
	}

	// Missing mark values the position at entry.
	if got := pf.Equity(nil); got != 10000 {
		t.Errorf("equity without marks = %v, want 10000", got)
	}
}

func TestSignalCounters(t *testing.T) {
	pf := New(10000)
	pf.RecordSignalGenerated("AAPL")
	pf.RecordSignalGenerated("AAPL")
	pf.RecordSignalBlocked("TSLA")

	gen, blocked := pf.SignalCounts()
	if gen != 2 || blocked != 1 {
		t.Errorf("counts = %d/%d, want 2/1", gen, blocked)
	}

	_, blockedBySym := pf.SignalCountsBySymbol()
	if blockedBySym["TSLA"] != 1 {
		t.Errorf("blocked[TSLA] = %d, want 1", blockedBySym["TSLA"])
	}
}

func TestMaxPositionsGateBlocksSignal(t *testing.T) {
	// One slot, one position held; a valid signal for another symbol
	// must be counted as blocked, not opened.
	pf := New(100000)
	openLong(t, pf, "AAPL", 10, 100)

	maxPositions := 1
	if pf.OpenCount() >= maxPositions {
		pf.RecordSignalBlocked("TSLA")
	} else {
		t.Fatal("gate did not trigger")
	}

	if pf.HasPosition("TSLA") {
		t.Error("position opened past the max-positions gate")
	}
	_, blocked := pf.SignalCounts()
	if blocked != 1 {
		t.Errorf("blocked = %d, want 1", blocked)
	}
}

func TestAbortRefunds(t *testing.T) {
	pf := New(10000)
	_, err := pf.Open(Position{
		Symbol:     "AAPL",
		Side:       strategy.SideBuy,
		Qty:        50,
		EntryPrice: 100,
		EntryTime:  entryTime,
	}, StatusOpening)
	if err != nil {
		t.Fatal(err)
	}

	pf.Abort("AAPL")
	if pf.Cash() != 10000 {
		t.Errorf("cash = %v, want full refund to 10000", pf.Cash())
	}
	if pf.HasPosition("AAPL") {
		t.Error("aborted position still tracked")
	}
}
