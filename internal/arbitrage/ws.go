// Package arbitrage detects and trades YES/NO spread mispricings on
// binary outcome markets.
package arbitrage

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"auction-market-bot/internal/logging"
)

const (
	wsReconnectDelay = 5 * time.Second
	wsPingInterval   = 30 * time.Second
)

// Quote is a best bid/ask update for one token.
type Quote struct {
	TokenID string
	BestBid decimal.Decimal
	BestAsk decimal.Decimal
	Time    time.Time
}

// wsBookLevel is one price level in a book snapshot.
type wsBookLevel struct {
	Price string `json:"price"`
	Size  string `json:"size"`
}

// wsBookSnapshot is a full order book for one token. The subscription
// response arrives as an array of these.
type wsBookSnapshot struct {
	EventType string        `json:"event_type"`
	AssetID   string        `json:"asset_id"`
	Market    string        `json:"market"`
	Bids      []wsBookLevel `json:"bids"`
	Asks      []wsBookLevel `json:"asks"`
}

// wsPriceChange carries incremental best bid/ask updates, batched per
// market under price_changes.
type wsPriceChange struct {
	EventType    string `json:"event_type"`
	Market       string `json:"market"`
	PriceChanges []struct {
		AssetID string `json:"asset_id"`
		Price   string `json:"price"`
		Size    string `json:"size"`
		Side    string `json:"side"`
		BestBid string `json:"best_bid"`
		BestAsk string `json:"best_ask"`
	} `json:"price_changes"`
}

// WSClient streams order book updates for a token set and forwards
// quotes to a handler. Reconnects every 5s on failure and resubscribes.
type WSClient struct {
	url      string
	tokenIDs []string
	handler  func(Quote)
	logger   zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
	once sync.Once

	// best known book per token, updated incrementally
	books map[string]*tokenBook
}

type tokenBook struct {
	bestBid decimal.Decimal
	bestAsk decimal.Decimal
}

// NewWSClient creates a client subscribed to the token set.
func NewWSClient(url string, tokenIDs []string, handler func(Quote)) *WSClient {
	return &WSClient{
		url:      url,
		tokenIDs: tokenIDs,
		handler:  handler,
		logger:   logging.Component("arb_ws"),
		stop:     make(chan struct{}),
		books:    make(map[string]*tokenBook),
	}
}

// Stop shuts the client down; safe to call more than once.
func (c *WSClient) Stop() {
	c.once.Do(func() {
		close(c.stop)
		c.mu.Lock()
		if c.conn != nil {
			c.conn.Close()
		}
		c.mu.Unlock()
	})
}

// Start runs the connect/read loop until ctx is done or Stop is called.
func (c *WSClient) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		default:
		}

		if err := c.connectAndRead(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("market stream dropped, reconnecting")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		case <-time.After(wsReconnectDelay):
		}
	}
}

func (c *WSClient) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer conn.Close()

	sub := map[string]any{
		"type":       "market",
		"assets_ids": c.tokenIDs,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}
	c.logger.Info().Int("tokens", len(c.tokenIDs)).Msg("subscribed to market channel")

	pingDone := make(chan struct{})
	defer close(pingDone)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-pingDone:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.conn != nil {
					_ = c.conn.WriteMessage(websocket.PingMessage, nil)
				}
				c.mu.Unlock()
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stop:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.processMessage(data)
	}
}

// processMessage handles one frame: a price_change event, or one or
// more book snapshots.
func (c *WSClient) processMessage(data []byte) {
	var pc wsPriceChange
	if err := json.Unmarshal(data, &pc); err == nil && pc.EventType == "price_change" {
		c.applyPriceChange(pc)
		return
	}

	var snaps []wsBookSnapshot
	if err := json.Unmarshal(data, &snaps); err != nil {
		var single wsBookSnapshot
		if err := json.Unmarshal(data, &single); err != nil {
			return
		}
		snaps = []wsBookSnapshot{single}
	}
	for _, snap := range snaps {
		c.applySnapshot(snap)
	}
}

func (c *WSClient) applySnapshot(snap wsBookSnapshot) {
	if snap.AssetID == "" {
		return
	}
	book := c.book(snap.AssetID)
	if bid, ok := bestOf(snap.Bids, true); ok {
		book.bestBid = bid
	}
	if ask, ok := bestOf(snap.Asks, false); ok {
		book.bestAsk = ask
	}
	c.emit(snap.AssetID, book)
}

func (c *WSClient) applyPriceChange(pc wsPriceChange) {
	for _, change := range pc.PriceChanges {
		if change.AssetID == "" {
			continue
		}
		book := c.book(change.AssetID)
		if bid, err := decimal.NewFromString(change.BestBid); err == nil && bid.IsPositive() {
			book.bestBid = bid
		}
		if ask, err := decimal.NewFromString(change.BestAsk); err == nil && ask.IsPositive() {
			book.bestAsk = ask
		}
		c.emit(change.AssetID, book)
	}
}

func (c *WSClient) book(tokenID string) *tokenBook {
	book, ok := c.books[tokenID]
	if !ok {
		book = &tokenBook{}
		c.books[tokenID] = book
	}
	return book
}

// emit forwards the book as a quote once an ask is known; the engine
// cannot price a spread without one.
func (c *WSClient) emit(tokenID string, book *tokenBook) {
	if c.handler != nil && book.bestAsk.IsPositive() {
		c.handler(Quote{
			TokenID: tokenID,
			BestBid: book.bestBid,
			BestAsk: book.bestAsk,
			Time:    time.Now().UTC(),
		})
	}
}

// bestOf extracts the best price from a snapshot side.
func bestOf(levels []wsBookLevel, highest bool) (decimal.Decimal, bool) {
	var best decimal.Decimal
	found := false
	for _, lvl := range levels {
		price, err := decimal.NewFromString(lvl.Price)
		if err != nil {
			continue
		}
		if !found || (highest && price.GreaterThan(best)) || (!highest && price.LessThan(best)) {
			best = price
			found = true
		}
	}
	return best, found
}
