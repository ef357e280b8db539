package arbitrage

import (
	"testing"
)

func collectQuotes(c *WSClient) *[]Quote {
	quotes := &[]Quote{}
	c.handler = func(q Quote) { *quotes = append(*quotes, q) }
	return quotes
}

func TestBookSnapshotArrayProducesQuotes(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	// Subscription response: array of snapshots with object levels.
	frame := `[{
		"event_type": "book",
		"asset_id": "tok-yes",
		"market": "0xabc",
		"bids": [{"price": "0.45", "size": "120"}, {"price": "0.48", "size": "30"}],
		"asks": [{"price": "0.55", "size": "80"}, {"price": "0.52", "size": "50"}]
	}]`
	c.processMessage([]byte(frame))

	if len(*quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(*quotes))
	}
	q := (*quotes)[0]
	if q.TokenID != "tok-yes" {
		t.Errorf("token = %q, want tok-yes", q.TokenID)
	}
	if !q.BestBid.Equal(d("0.48")) {
		t.Errorf("best bid = %s, want 0.48", q.BestBid)
	}
	if !q.BestAsk.Equal(d("0.52")) {
		t.Errorf("best ask = %s, want 0.52", q.BestAsk)
	}
}

func TestSingleBookSnapshotProducesQuote(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	frame := `{
		"event_type": "book",
		"asset_id": "tok-no",
		"bids": [{"price": "0.40", "size": "10"}],
		"asks": [{"price": "0.47", "size": "10"}]
	}`
	c.processMessage([]byte(frame))

	if len(*quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(*quotes))
	}
	if !(*quotes)[0].BestAsk.Equal(d("0.47")) {
		t.Errorf("best ask = %s, want 0.47", (*quotes)[0].BestAsk)
	}
}

func TestPriceChangeUpdatesBook(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	c.processMessage([]byte(`[{
		"event_type": "book",
		"asset_id": "tok-yes",
		"bids": [{"price": "0.45", "size": "10"}],
		"asks": [{"price": "0.52", "size": "10"}]
	}]`))

	frame := `{
		"event_type": "price_change",
		"market": "0xabc",
		"price_changes": [
			{"asset_id": "tok-yes", "price": "0.50", "size": "25", "side": "BUY",
			 "best_bid": "0.50", "best_ask": "0.51"}
		]
	}`
	c.processMessage([]byte(frame))

	if len(*quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(*quotes))
	}
	q := (*quotes)[1]
	if !q.BestBid.Equal(d("0.50")) {
		t.Errorf("best bid = %s, want 0.50", q.BestBid)
	}
	if !q.BestAsk.Equal(d("0.51")) {
		t.Errorf("best ask = %s, want 0.51", q.BestAsk)
	}
}

func TestPriceChangeWithoutPriorSnapshot(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	frame := `{
		"event_type": "price_change",
		"price_changes": [
			{"asset_id": "tok-cold", "best_bid": "0.61", "best_ask": "0.63", "side": "SELL"}
		]
	}`
	c.processMessage([]byte(frame))

	if len(*quotes) != 1 {
		t.Fatalf("quotes = %d, want 1", len(*quotes))
	}
	if !(*quotes)[0].BestAsk.Equal(d("0.63")) {
		t.Errorf("best ask = %s, want 0.63", (*quotes)[0].BestAsk)
	}
}

func TestPriceChangeBatchesPerToken(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	frame := `{
		"event_type": "price_change",
		"price_changes": [
			{"asset_id": "tok-yes", "best_bid": "0.50", "best_ask": "0.52"},
			{"asset_id": "tok-no", "best_bid": "0.44", "best_ask": "0.46"}
		]
	}`
	c.processMessage([]byte(frame))

	if len(*quotes) != 2 {
		t.Fatalf("quotes = %d, want 2", len(*quotes))
	}
	if (*quotes)[0].TokenID != "tok-yes" || (*quotes)[1].TokenID != "tok-no" {
		t.Errorf("tokens = %q, %q", (*quotes)[0].TokenID, (*quotes)[1].TokenID)
	}
}

func TestMalformedFramesAreDropped(t *testing.T) {
	c := NewWSClient("", nil, nil)
	quotes := collectQuotes(c)

	for _, frame := range []string{
		`not json`,
		`{"event_type": "book"}`,                              // no asset id
		`{"event_type": "price_change", "price_changes": []}`, // empty batch
		`[{"asset_id": "tok", "bids": [{"price": "bad"}]}]`,   // unparseable, no ask
	} {
		c.processMessage([]byte(frame))
	}

	if len(*quotes) != 0 {
		t.Errorf("quotes = %d, want 0 from malformed frames", len(*quotes))
	}
}
