package trader

import (
	"context"
	"testing"
	"time"

	"auction-market-bot/internal/broker"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/marketstate"
	"auction-market-bot/internal/orders"
	"auction-market-bot/internal/portfolio"
	"auction-market-bot/internal/risk"
	"auction-market-bot/internal/strategy"
)

type fakeTraderStore struct {
	lastPrice float64
	candles   []database.Candle
	state     *database.MarketStateRow
	flow      *database.OrderFlowRow
	flows     []database.OrderFlowRow

	signals   []database.SignalRow
	positions []database.PositionRow
	trades    []database.TradeRow
}

func (f *fakeTraderStore) GetLastPrice(ctx context.Context, symbolID int) (float64, error) {
	return f.lastPrice, nil
}
func (f *fakeTraderStore) GetRecentCandles(ctx context.Context, symbolID, n int) ([]database.Candle, error) {
	return f.candles, nil
}
func (f *fakeTraderStore) GetLatestMarketState(ctx context.Context, symbolID int) (*database.MarketStateRow, error) {
	if f.state == nil {
		return nil, database.ErrNotFound
	}
	return f.state, nil
}
func (f *fakeTraderStore) GetLatestOrderFlow(ctx context.Context, symbolID int) (*database.OrderFlowRow, error) {
	if f.flow == nil {
		return nil, database.ErrNotFound
	}
	return f.flow, nil
}
func (f *fakeTraderStore) GetOrderFlowRange(ctx context.Context, symbolID int, start, end time.Time) ([]database.OrderFlowRow, error) {
	return f.flows, nil
}
func (f *fakeTraderStore) AppendSignal(ctx context.Context, s *database.SignalRow) error {
	f.signals = append(f.signals, *s)
	return nil
}
func (f *fakeTraderStore) CreatePosition(ctx context.Context, p *database.PositionRow) error {
	p.ID = int64(len(f.positions) + 1)
	f.positions = append(f.positions, *p)
	return nil
}
func (f *fakeTraderStore) UpdatePositionStatus(ctx context.Context, id int64, status string) error {
	return nil
}
func (f *fakeTraderStore) ClosePositionRow(ctx context.Context, id int64) error { return nil }
func (f *fakeTraderStore) AppendTrade(ctx context.Context, t *database.TradeRow) error {
	f.trades = append(f.trades, *t)
	return nil
}

// bullishStore returns data that clears every strategy gate for a buy.
func bullishStore() *fakeTraderStore {
	candles := make([]database.Candle, 20)
	base := time.Date(2024, 3, 1, 14, 0, 0, 0, time.UTC)
	for i := range candles {
		candles[i] = database.Candle{
			Time: base.Add(time.Duration(i) * time.Minute),
			Open: 100, High: 102, Low: 99, Close: 100, Volume: 1000,
		}
	}
	candles[len(candles)-1].Volume = 2500 // volume expansion

	return &fakeTraderStore{
		lastPrice: 100,
		candles:   candles,
		state:     &database.MarketStateRow{State: marketstate.StateImbalanceUp, Confidence: 80},
		flow:      &database.OrderFlowRow{BuyPressure: 75, SellPressure: 25, CumulativeDelta: 1200},
		flows: []database.OrderFlowRow{
			{CumulativeDelta: 100},
			{CumulativeDelta: 1300}, // momentum +1200
		},
	}
}

func newTestTrader(st *fakeTraderStore, pb *broker.PaperBroker, maxPositions int) (*Trader, *portfolio.Portfolio) {
	pf := portfolio.New(100000)
	rm := risk.NewManager(risk.Config{MaxDailyLossPct: 5, MinAccountBalance: 100, MaxPositions: maxPositions})
	hb := risk.NewHaltBreaker(0, time.Minute)
	mon := orders.NewMonitor(pb, nil, orders.Config{})
	params := strategy.DefaultParams()
	tr := New(st, pb, mon, pf, rm, hb, nil, nil, params, 14, true)
	return tr, pf
}

func TestProcessSymbolOpensPosition(t *testing.T) {
	st := bullishStore()
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 5)

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}

	if !pf.HasPosition("AAPL") {
		t.Fatal("no position opened on a clean buy setup")
	}
	if len(st.signals) != 1 || !st.signals[0].Executed {
		t.Errorf("signals = %+v, want one executed", st.signals)
	}
	if len(st.positions) != 1 {
		t.Errorf("position rows = %d, want 1", len(st.positions))
	}
	if st.positions[0].Side != strategy.SideBuy {
		t.Errorf("side = %s, want buy", st.positions[0].Side)
	}
	// 1.5 ATR stop below entry
	if st.positions[0].StopLoss >= 100 {
		t.Errorf("stop = %v, want below entry", st.positions[0].StopLoss)
	}
}

func TestProcessSymbolRecordsBlockedSignal(t *testing.T) {
	st := bullishStore()
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 0) // zero slots, every entry blocked

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}

	if pf.HasPosition("AAPL") {
		t.Error("position opened past the max-positions gate")
	}
	if len(st.signals) != 1 || st.signals[0].Executed {
		t.Errorf("signals = %+v, want one unexecuted", st.signals)
	}
	_, blocked := pf.SignalCounts()
	if blocked != 1 {
		t.Errorf("blocked count = %d, want 1", blocked)
	}
}

func TestProcessSymbolNoSignalInBalance(t *testing.T) {
	st := bullishStore()
	st.state = &database.MarketStateRow{State: marketstate.StateBalance, Confidence: 90}
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 5)

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}

	if pf.HasPosition("AAPL") {
		t.Error("position opened in a balanced market")
	}
	if len(st.signals) != 0 {
		t.Errorf("signals = %d, want 0 (gate fail is not a blocked signal)", len(st.signals))
	}
}

func TestProcessSymbolBeforeFirstDetection(t *testing.T) {
	// Candles and prices flow before the detectors have written any
	// state or flow rows. That is absence of data, not an error.
	st := bullishStore()
	st.state = nil
	st.flow = nil
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 5)

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatalf("ProcessSymbol with no state/flow rows: %v", err)
	}
	if pf.HasPosition("AAPL") {
		t.Error("position opened with no market state observed")
	}
	if len(st.signals) != 0 {
		t.Errorf("signals = %d, want 0", len(st.signals))
	}
}

func TestProcessSymbolDisabled(t *testing.T) {
	st := bullishStore()
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 5)
	tr.SetEnabled(false)

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}
	if pf.HasPosition("AAPL") {
		t.Error("position opened while trading disabled")
	}
}

func TestProcessSymbolExitsOnTarget(t *testing.T) {
	st := bullishStore()
	pb := broker.NewPaperBroker(100000)
	pb.SetLastPrice("AAPL", 100)
	tr, pf := newTestTrader(st, pb, 5)

	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}
	pos, _ := pf.Get("AAPL")
	pf.MarkOpen("AAPL")

	// price runs through the target
	st.lastPrice = pos.TakeProfit + 1
	pb.SetLastPrice("AAPL", st.lastPrice)
	if err := tr.ProcessSymbol(context.Background(), 1, "AAPL"); err != nil {
		t.Fatal(err)
	}

	if pf.HasPosition("AAPL") {
		t.Fatal("position still open after target hit")
	}
	if len(st.trades) != 1 {
		t.Fatalf("trade rows = %d, want 1", len(st.trades))
	}
	if st.trades[0].ExitReason != strategy.ExitTakeProfit {
		t.Errorf("exit reason = %s, want take profit", st.trades[0].ExitReason)
	}
	if st.trades[0].PnL <= 0 {
		t.Errorf("pnl = %v, want positive", st.trades[0].PnL)
	}
}
