package ingest

import (
	"context"
	"testing"
	"time"

	"auction-market-bot/internal/database"
)

type fakeStore struct {
	symbols map[string]int
	ticks   []database.Tick
	candles []database.Candle
}

func newFakeStore() *fakeStore {
	return &fakeStore{symbols: make(map[string]int)}
}

func (f *fakeStore) GetOrCreateSymbol(ctx context.Context, symbol, exchange string) (int, error) {
	if id, ok := f.symbols[symbol]; ok {
		return id, nil
	}
	id := len(f.symbols) + 1
	f.symbols[symbol] = id
	return id, nil
}

func (f *fakeStore) InsertTick(ctx context.Context, t *database.Tick) error {
	f.ticks = append(f.ticks, *t)
	return nil
}

func (f *fakeStore) UpsertCandle(ctx context.Context, c *database.Candle) error {
	f.candles = append(f.candles, *c)
	return nil
}

type fakePublisher struct {
	lastPrices map[string]float64
	published  []string
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{lastPrices: make(map[string]float64)}
}

func (f *fakePublisher) SetLastPrice(ctx context.Context, symbol string, price float64) {
	f.lastPrices[symbol] = price
}

func (f *fakePublisher) Publish(ctx context.Context, channel string, v interface{}) error {
	f.published = append(f.published, channel)
	return nil
}

var tickTime = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func TestRouterPersistsTick(t *testing.T) {
	st := newFakeStore()
	pub := newFakePublisher()
	r := NewRouter(st, pub, "sim")

	rec := NormalizedRecord{Kind: KindTick, Tick: &Tick{
		Symbol: "AAPL", Time: tickTime, Price: 100.5, Size: 10,
	}}
	if err := r.Route(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if len(st.ticks) != 1 {
		t.Fatalf("ticks stored = %d, want 1", len(st.ticks))
	}
	if st.ticks[0].SymbolID != 1 {
		t.Errorf("symbol id = %d, want 1", st.ticks[0].SymbolID)
	}
	if pub.lastPrices["AAPL"] != 100.5 {
		t.Errorf("last price = %v, want 100.5", pub.lastPrices["AAPL"])
	}
}

func TestRouterPublishesCandle(t *testing.T) {
	st := newFakeStore()
	pub := newFakePublisher()
	r := NewRouter(st, pub, "sim")

	rec := NormalizedRecord{Kind: KindCandle, Candle: &Candle{
		Symbol: "AAPL", Time: tickTime.Add(10 * time.Second),
		Open: 100, High: 102, Low: 99, Close: 101, Volume: 500,
	}}
	if err := r.Route(context.Background(), rec); err != nil {
		t.Fatal(err)
	}

	if len(st.candles) != 1 {
		t.Fatalf("candles stored = %d, want 1", len(st.candles))
	}
	if !st.candles[0].Time.Equal(tickTime.Truncate(time.Minute)) {
		t.Errorf("candle time = %v, want truncated to minute", st.candles[0].Time)
	}
	if len(pub.published) != 1 || pub.published[0] != candlesChannel {
		t.Errorf("published = %v, want [%s]", pub.published, candlesChannel)
	}
	if pub.lastPrices["AAPL"] != 101 {
		t.Errorf("last price = %v, want close 101", pub.lastPrices["AAPL"])
	}
}

func TestRouterDropsMalformedRecords(t *testing.T) {
	st := newFakeStore()
	pub := newFakePublisher()
	r := NewRouter(st, pub, "sim")
	ctx := context.Background()

	bad := []NormalizedRecord{
		{Kind: KindTick, Tick: &Tick{Symbol: "", Time: tickTime, Price: 100, Size: 1}},
		{Kind: KindTick, Tick: &Tick{Symbol: "AAPL", Time: tickTime, Price: -1, Size: 1}},
		{Kind: KindTick, Tick: &Tick{Symbol: "AAPL", Time: tickTime, Price: 100, Size: 0}},
		{Kind: KindCandle, Candle: &Candle{Symbol: "AAPL", Time: tickTime, Open: 100, High: 99, Low: 101, Close: 100}},
		{Kind: KindTick},
		{Kind: "unknown"},
	}
	for _, rec := range bad {
		if err := r.Route(ctx, rec); err != nil {
			t.Errorf("malformed record returned error: %v", err)
		}
	}

	if len(st.ticks) != 0 || len(st.candles) != 0 {
		t.Errorf("stored %d ticks, %d candles, want 0/0", len(st.ticks), len(st.candles))
	}
}

func TestRouterCachesSymbolIDs(t *testing.T) {
	st := newFakeStore()
	r := NewRouter(st, newFakePublisher(), "sim")
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := NormalizedRecord{Kind: KindTick, Tick: &Tick{
			Symbol: "AAPL", Time: tickTime.Add(time.Duration(i) * time.Second), Price: 100, Size: 1,
		}}
		if err := r.Route(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	if len(st.symbols) != 1 {
		t.Errorf("symbol registry has %d entries, want 1", len(st.symbols))
	}
	for _, tick := range st.ticks {
		if tick.SymbolID != 1 {
			t.Errorf("symbol id = %d, want stable 1", tick.SymbolID)
		}
	}
}

func TestNormalizeWire(t *testing.T) {
	ts := tickTime.Format(time.RFC3339)

	rec, ok := normalizeWire(wireMessage{Type: "t", Symbol: "AAPL", Price: 100.5, Size: 10, Timestamp: ts})
	if !ok || rec.Kind != KindTick {
		t.Fatal("trade frame did not normalize to a tick")
	}
	if rec.Tick.Price != 100.5 {
		t.Errorf("price = %v, want 100.5", rec.Tick.Price)
	}

	rec, ok = normalizeWire(wireMessage{Type: "b", Symbol: "AAPL", Open: 100, High: 102, Low: 99, Close: 101, Volume: 500, Timestamp: ts})
	if !ok || rec.Kind != KindCandle {
		t.Fatal("bar frame did not normalize to a candle")
	}

	if _, ok := normalizeWire(wireMessage{Type: "t", Symbol: "AAPL", Price: 100, Size: 10, Timestamp: "garbage"}); ok {
		t.Error("bad timestamp accepted")
	}
	if _, ok := normalizeWire(wireMessage{Type: "b", Symbol: "AAPL", Open: 100, High: 99, Low: 101, Close: 100, Timestamp: ts}); ok {
		t.Error("inverted bar accepted")
	}
}

func TestGenerateCandlesDeterministic(t *testing.T) {
	a := GenerateCandles("AAPL", tickTime, 20)
	b := GenerateCandles("AAPL", tickTime, 20)

	if len(a) != 20 {
		t.Fatalf("generated %d candles, want 20", len(a))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("candle %d differs between runs", i)
		}
		if a[i].High < a[i].Low || a[i].High < a[i].Open || a[i].Low > a[i].Close {
			t.Errorf("candle %d violates OHLC bounds: %+v", i, a[i])
		}
	}

	other := GenerateCandles("TSLA", tickTime, 20)
	if other[0].Open == a[0].Open {
		t.Error("different symbols produced the same walk")
	}
}
