package arbitrage

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/polymarket"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func TestSpreadAndProfit(t *testing.T) {
	// Paired buy at 0.52 + 0.45 costs 0.97 and pays 1.00.
	spread := Spread(d("0.52"), d("0.45"))
	if !spread.Equal(d("0.97")) {
		t.Fatalf("spread = %s, want 0.97", spread)
	}

	profit := ProfitPct(spread, decimal.Zero)
	if profit.Sub(d("3.09")).Abs().GreaterThan(d("0.01")) {
		t.Errorf("profit = %s, want ~3.09", profit)
	}

	// Fees shave the payout.
	withFee := ProfitPct(spread, d("0.01"))
	if withFee.GreaterThanOrEqual(profit) {
		t.Errorf("fee-adjusted profit %s not below %s", withFee, profit)
	}

	if !ProfitPct(decimal.Zero, decimal.Zero).IsZero() {
		t.Error("zero spread must yield zero profit, not a division blowup")
	}
}

func TestLockedProfit(t *testing.T) {
	// 100 yes + 110 no shares, $101 total cost: worst case pays min(qty).
	got := LockedProfit(d("100"), d("110"), d("101"))
	if !got.Equal(d("-1")) {
		t.Errorf("locked profit = %s, want -1", got)
	}

	got = LockedProfit(d("192.30"), d("222.22"), d("199.99"))
	want := d("192.30").Sub(d("199.99"))
	if !got.Equal(want) {
		t.Errorf("locked profit = %s, want %s", got, want)
	}
}

func TestShouldExit(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	farOut := now.Add(72 * time.Hour)
	soon := now.Add(6 * time.Hour)

	tests := []struct {
		name       string
		spread     string
		endDate    time.Time
		wantExit   bool
		wantReason string
	}{
		{"spike above 1.02", "1.03", farOut, true, ExitSpreadSpike},
		{"full value at par", "1.00", farOut, true, ExitFullValue},
		{"between 1.00 and 1.02", "1.01", farOut, true, ExitFullValue},
		{"near resolution at 0.99", "0.99", soon, true, ExitNearResolution},
		{"near resolution below 0.99", "0.985", soon, false, ""},
		{"far from resolution at 0.99", "0.99", farOut, false, ""},
		{"healthy spread", "0.95", farOut, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exit, reason := ShouldExit(d(tt.spread), tt.endDate, now)
			if exit != tt.wantExit || reason != tt.wantReason {
				t.Errorf("ShouldExit = (%v, %q), want (%v, %q)", exit, reason, tt.wantExit, tt.wantReason)
			}
		})
	}
}

type fakeOrderClient struct {
	mu     sync.Mutex
	orders []struct {
		tokenID string
		side    string
		price   decimal.Decimal
		qty     decimal.Decimal
	}
	failToken string
}

func (f *fakeOrderClient) PlaceOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tokenID == f.failToken && side == polymarket.SideBuy {
		return "", context.DeadlineExceeded
	}
	f.orders = append(f.orders, struct {
		tokenID string
		side    string
		price   decimal.Decimal
		qty     decimal.Decimal
	}{tokenID, side, price, size})
	return "order-" + tokenID, nil
}

type fakeArbStore struct {
	mu        sync.Mutex
	prices    []database.BinaryPriceRow
	positions []database.BinaryPositionRow
	exposure  float64
	closed    []int64
}

func (f *fakeArbStore) UpsertBinaryPrice(ctx context.Context, p *database.BinaryPriceRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prices = append(f.prices, *p)
	return nil
}

func (f *fakeArbStore) CreateBinaryPosition(ctx context.Context, p *database.BinaryPositionRow) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	p.ID = int64(len(f.positions) + 1)
	f.positions = append(f.positions, *p)
	return nil
}

func (f *fakeArbStore) CloseBinaryPosition(ctx context.Context, id int64, exitSpread, realizedPnL float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
	for i := range f.positions {
		if f.positions[i].ID == id {
			f.positions[i].Status = database.BinaryStatusClosed
		}
	}
	return nil
}

func (f *fakeArbStore) GetOpenBinaryPositions(ctx context.Context) ([]database.BinaryPositionRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var open []database.BinaryPositionRow
	for _, p := range f.positions {
		if p.Status == database.BinaryStatusOpen {
			open = append(open, p)
		}
	}
	return open, nil
}

func (f *fakeArbStore) GetOpenBinaryExposure(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exposure, nil
}

func (f *fakeArbStore) HasOpenBinaryPosition(ctx context.Context, marketID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.positions {
		if p.MarketID == marketID && p.Status == database.BinaryStatusOpen {
			return true, nil
		}
	}
	return false, nil
}

func testMarket() database.BinaryMarket {
	return database.BinaryMarket{
		MarketID:   "0xmkt",
		SymbolID:   1,
		Symbol:     "PM:test",
		Question:   "Will it happen?",
		YesTokenID: "yes-token",
		NoTokenID:  "no-token",
		EndDate:    time.Now().UTC().Add(72 * time.Hour),
		Status:     database.MarketStatusActive,
	}
}

func feedBothSides(e *Engine, yesBid, yesAsk, noBid, noAsk string) {
	now := time.Now().UTC()
	e.OnQuote(context.Background(), Quote{TokenID: "yes-token", BestBid: d(yesBid), BestAsk: d(yesAsk), Time: now})
	e.OnQuote(context.Background(), Quote{TokenID: "no-token", BestBid: d(noBid), BestAsk: d(noAsk), Time: now})
}

func TestEngineExecutesPairedEntry(t *testing.T) {
	client := &fakeOrderClient{}
	store := &fakeArbStore{}
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	// yes ask 0.52 + no ask 0.45 = 0.97, under the 0.995 threshold
	feedBothSides(e, "0.50", "0.52", "0.43", "0.45")

	client.mu.Lock()
	buys := len(client.orders)
	client.mu.Unlock()
	if buys != 2 {
		t.Fatalf("orders placed = %d, want paired 2", buys)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.positions) != 1 {
		t.Fatalf("positions = %d, want 1", len(store.positions))
	}
	pos := store.positions[0]
	if pos.EntrySpread != 0.97 {
		t.Errorf("entry spread = %v, want 0.97", pos.EntrySpread)
	}
	if pos.Status != database.BinaryStatusOpen {
		t.Errorf("status = %s, want open", pos.Status)
	}
	// Equal dollars per side: the cheaper no side holds more shares.
	if pos.NoQty <= pos.YesQty {
		t.Errorf("no qty %v should exceed yes qty %v", pos.NoQty, pos.YesQty)
	}
}

func TestEngineSkipsWideSpread(t *testing.T) {
	client := &fakeOrderClient{}
	store := &fakeArbStore{}
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	feedBothSides(e, "0.50", "0.52", "0.46", "0.48") // spread 1.00

	if len(client.orders) != 0 {
		t.Errorf("orders placed = %d, want 0 for non-arb spread", len(client.orders))
	}
}

func TestEngineSkipsDuplicateMarket(t *testing.T) {
	client := &fakeOrderClient{}
	store := &fakeArbStore{}
	store.positions = append(store.positions, database.BinaryPositionRow{
		ID: 1, MarketID: "0xmkt", Status: database.BinaryStatusOpen,
	})
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	feedBothSides(e, "0.50", "0.52", "0.43", "0.45")

	if len(client.orders) != 0 {
		t.Errorf("orders placed = %d, want 0 with a position already open", len(client.orders))
	}
}

func TestEngineRespectsExposureCap(t *testing.T) {
	client := &fakeOrderClient{}
	store := &fakeArbStore{exposure: 900} // cap 1000, pair costs 200
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	feedBothSides(e, "0.50", "0.52", "0.43", "0.45")

	if len(client.orders) != 0 {
		t.Errorf("orders placed = %d, want 0 at the exposure cap", len(client.orders))
	}
}

func TestEngineUnwindsOneSidedFill(t *testing.T) {
	client := &fakeOrderClient{failToken: "no-token"}
	store := &fakeArbStore{}
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	feedBothSides(e, "0.50", "0.52", "0.43", "0.45")

	store.mu.Lock()
	positions := len(store.positions)
	store.mu.Unlock()
	if positions != 0 {
		t.Errorf("positions recorded = %d, want 0 after failed pair", positions)
	}

	client.mu.Lock()
	defer client.mu.Unlock()
	var sells int
	for _, o := range client.orders {
		if o.side == polymarket.SideSell && o.tokenID == "yes-token" {
			sells++
		}
	}
	if sells != 1 {
		t.Errorf("unwind sells = %d, want 1 on the filled yes leg", sells)
	}
}

func TestScanExitsClosesAtPar(t *testing.T) {
	client := &fakeOrderClient{}
	store := &fakeArbStore{}
	e := NewEngine(DefaultParams(), client, store, nil)
	e.RegisterMarkets([]database.BinaryMarket{testMarket()})

	// open a pair at 0.97
	feedBothSides(e, "0.50", "0.52", "0.43", "0.45")
	store.mu.Lock()
	opened := len(store.positions)
	store.mu.Unlock()
	if opened != 1 {
		t.Fatalf("positions = %d, want 1", opened)
	}

	// bids rally to a combined 1.01
	feedBothSides(e, "0.55", "0.99", "0.46", "0.99")

	if err := e.ScanExits(context.Background()); err != nil {
		t.Fatal(err)
	}

	store.mu.Lock()
	defer store.mu.Unlock()
	if len(store.closed) != 1 {
		t.Fatalf("closed = %d, want 1", len(store.closed))
	}
	if store.positions[0].Status != database.BinaryStatusClosed {
		t.Errorf("status = %s, want closed", store.positions[0].Status)
	}
}
