package polymarket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"auction-market-bot/internal/database"
)

var fetchNow = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func gamma(question, category, endDate string) gammaMarket {
	return gammaMarket{
		ConditionID:  "0xabc",
		Question:     question,
		Category:     category,
		Slug:         "test-market",
		EndDate:      endDate,
		Active:       true,
		Closed:       false,
		ClobTokenIDs: `["111","222"]`,
	}
}

func TestParseTokenIDs(t *testing.T) {
	yes, no, err := parseTokenIDs(`["111","222"]`)
	if err != nil {
		t.Fatal(err)
	}
	if yes != "111" || no != "222" {
		t.Errorf("tokens = %s/%s, want 111/222", yes, no)
	}

	if _, _, err := parseTokenIDs(`["only-one"]`); err == nil {
		t.Error("expected error for single token")
	}
	if _, _, err := parseTokenIDs(`not json`); err == nil {
		t.Error("expected error for malformed payload")
	}
}

func TestAcceptFilters(t *testing.T) {
	f := NewFetcher("", []string{"Politics"}, nil)
	farOut := fetchNow.Add(60 * 24 * time.Hour).Format(time.RFC3339)

	tests := []struct {
		name   string
		market gammaMarket
		want   bool
	}{
		{"matching category", gamma("Will X win?", "Politics", farOut), true},
		{"wrong category", gamma("Will X win?", "Sports", farOut), false},
		{"category case insensitive", gamma("Will X win?", "politics", farOut), true},
		{"closed market", func() gammaMarket {
			m := gamma("Will X win?", "Politics", farOut)
			m.Closed = true
			return m
		}(), false},
		{"inactive market", func() gammaMarket {
			m := gamma("Will X win?", "Politics", farOut)
			m.Active = false
			return m
		}(), false},
		{"missing condition id", func() gammaMarket {
			m := gamma("Will X win?", "Politics", farOut)
			m.ConditionID = ""
			return m
		}(), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.accept(tt.market, fetchNow); got != tt.want {
				t.Errorf("accept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestShortHorizonCryptoExcluded(t *testing.T) {
	soon := fetchNow.Add(6 * time.Hour).Format(time.RFC3339)
	later := fetchNow.Add(10 * 24 * time.Hour).Format(time.RFC3339)

	f := NewFetcher("", nil, nil)

	if f.accept(gamma("Will Bitcoin close above 70k today?", "Crypto", soon), fetchNow) {
		t.Error("short-horizon bitcoin market accepted")
	}
	if !f.accept(gamma("Will Bitcoin reach 100k this year?", "Crypto", later), fetchNow) {
		t.Error("long-horizon bitcoin market rejected")
	}
	if !f.accept(gamma("Will X resign this week?", "Politics", soon), fetchNow) {
		t.Error("short-horizon non-crypto market rejected")
	}
}

func TestToBinaryMarketEndDateFallback(t *testing.T) {
	m := gamma("Will X win?", "Politics", "not-a-date")
	market, err := toBinaryMarket(m, fetchNow)
	if err != nil {
		t.Fatal(err)
	}

	want := fetchNow.Add(30 * 24 * time.Hour)
	if !market.EndDate.Equal(want) {
		t.Errorf("end date = %v, want fallback %v", market.EndDate, want)
	}
	if market.YesTokenID != "111" || market.NoTokenID != "222" {
		t.Errorf("tokens = %s/%s, want 111/222", market.YesTokenID, market.NoTokenID)
	}
	if market.Status != database.MarketStatusActive {
		t.Errorf("status = %s, want active", market.Status)
	}
}

type recordingStore struct {
	symbols map[string]int
	markets []database.BinaryMarket
}

func (s *recordingStore) GetOrCreateSymbol(ctx context.Context, symbol, exchange string) (int, error) {
	if s.symbols == nil {
		s.symbols = make(map[string]int)
	}
	if id, ok := s.symbols[symbol]; ok {
		return id, nil
	}
	id := len(s.symbols) + 1
	s.symbols[symbol] = id
	return id, nil
}

func (s *recordingStore) UpsertBinaryMarket(ctx context.Context, m *database.BinaryMarket) error {
	s.markets = append(s.markets, *m)
	return nil
}

func TestFetchAllPagesAndStores(t *testing.T) {
	farOut := time.Now().UTC().Add(60 * 24 * time.Hour).Format(time.RFC3339)
	good := gamma("Will X win?", "Politics", farOut)
	rejected := gamma("Will Y win?", "Sports", farOut)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		offset := r.URL.Query().Get("offset")
		if offset != "0" {
			json.NewEncoder(w).Encode([]gammaMarket{})
			return
		}
		json.NewEncoder(w).Encode([]gammaMarket{good, rejected})
	}))
	defer srv.Close()

	store := &recordingStore{}
	f := NewFetcher(srv.URL, []string{"Politics"}, store)

	stored, err := f.FetchAll(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if stored != 1 {
		t.Errorf("stored = %d, want 1", stored)
	}
	if len(store.markets) != 1 || store.markets[0].MarketID != "0xabc" {
		t.Errorf("markets = %+v, want one with id 0xabc", store.markets)
	}
	if store.markets[0].SymbolID == 0 {
		t.Error("symbol id not assigned")
	}
}

func TestSymbolForPrefersSlug(t *testing.T) {
	m := gamma("Will X win?", "Politics", "")
	if got := symbolFor(m); got != "PM:test-market" {
		t.Errorf("symbol = %s, want PM:test-market", got)
	}
	m.Slug = ""
	if got := symbolFor(m); got != "PM:0xabc" {
		t.Errorf("symbol = %s, want PM:0xabc", got)
	}
}

func TestOrderBookBest(t *testing.T) {
	book := OrderBook{
		Bids: []BookLevel{
			{Price: decimal.NewFromFloat(0.48)},
			{Price: decimal.NewFromFloat(0.50)},
			{Price: decimal.NewFromFloat(0.49)},
		},
		Asks: []BookLevel{
			{Price: decimal.NewFromFloat(0.53)},
			{Price: decimal.NewFromFloat(0.52)},
		},
	}
	if !book.BestBid().Equal(decimal.NewFromFloat(0.50)) {
		t.Errorf("best bid = %s, want 0.50", book.BestBid())
	}
	if !book.BestAsk().Equal(decimal.NewFromFloat(0.52)) {
		t.Errorf("best ask = %s, want 0.52", book.BestAsk())
	}
}
