// Package polymarket integrates the Polymarket CLOB trading API and the
// gamma-api market catalogue.
package polymarket

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"auction-market-bot/internal/logging"
)

const (
	// DefaultCLOBURL is the production CLOB endpoint.
	DefaultCLOBURL = "https://clob.polymarket.com"

	maxRetries = 3
)

// Order sides on the CLOB.
const (
	SideBuy  = "BUY"
	SideSell = "SELL"
)

// BookLevel is one price level of an order book side.
type BookLevel struct {
	Price decimal.Decimal `json:"price"`
	Size  decimal.Decimal `json:"size"`
}

// OrderBook is a token's book snapshot.
type OrderBook struct {
	TokenID string      `json:"asset_id"`
	Bids    []BookLevel `json:"bids"`
	Asks    []BookLevel `json:"asks"`
}

// BestBid returns the highest bid, zero when the side is empty.
func (b *OrderBook) BestBid() decimal.Decimal {
	best := decimal.Zero
	for _, lvl := range b.Bids {
		if lvl.Price.GreaterThan(best) {
			best = lvl.Price
		}
	}
	return best
}

// BestAsk returns the lowest ask, zero when the side is empty.
func (b *OrderBook) BestAsk() decimal.Decimal {
	var best decimal.Decimal
	for i, lvl := range b.Asks {
		if i == 0 || lvl.Price.LessThan(best) {
			best = lvl.Price
		}
	}
	return best
}

// Market is the CLOB view of one market.
type Market struct {
	ConditionID string    `json:"condition_id"`
	Question    string    `json:"question"`
	EndDateISO  string    `json:"end_date_iso"`
	Closed      bool      `json:"closed"`
	Active      bool      `json:"active"`
	FetchedAt   time.Time `json:"-"`
}

// Client is the CLOB REST client. Requests are signed with
// HMAC-SHA256 over timestamp+method+path+body.
type Client struct {
	baseURL   string
	apiKey    string
	apiSecret string
	client    *http.Client
	logger    zerolog.Logger
	dryRun    bool
}

// NewClient creates a CLOB client. An empty baseURL targets production.
func NewClient(baseURL, apiKey, apiSecret string, dryRun bool) *Client {
	if baseURL == "" {
		baseURL = DefaultCLOBURL
	}
	return &Client{
		baseURL:   baseURL,
		apiKey:    apiKey,
		apiSecret: apiSecret,
		client:    &http.Client{Timeout: 10 * time.Second},
		logger:    logging.Component("polymarket"),
		dryRun:    dryRun,
	}
}

// sign computes the request signature.
func (c *Client) sign(timestamp, method, path string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(c.apiSecret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	var lastErr error
	backoff := time.Second
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("failed to build request: %w", err)
		}
		timestamp := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("POLY-API-KEY", c.apiKey)
		req.Header.Set("POLY-TIMESTAMP", timestamp)
		req.Header.Set("POLY-SIGNATURE", c.sign(timestamp, method, path, payload))
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("request failed: %w", err)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response: %w", err)
			continue
		}
		if resp.StatusCode >= 500 {
			lastErr = fmt.Errorf("clob %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
			continue
		}
		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return fmt.Errorf("clob %s %s returned %d: %s", method, path, resp.StatusCode, string(data))
		}
		if out != nil && len(data) > 0 {
			if err := json.Unmarshal(data, out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
	return lastErr
}

// PlaceOrder submits a limit order for a token and returns the order id.
// In dry-run mode the order is logged and a synthetic id returned.
func (c *Client) PlaceOrder(ctx context.Context, tokenID string, price, size decimal.Decimal, side string) (string, error) {
	if c.dryRun {
		orderID := fmt.Sprintf("dry-%d", time.Now().UnixNano())
		c.logger.Info().
			Str("order_id", orderID).
			Str("token", tokenID).
			Str("side", side).
			Str("price", price.StringFixed(3)).
			Str("size", size.StringFixed(2)).
			Msg("dry run, order not sent")
		return orderID, nil
	}

	body := map[string]any{
		"tokenID": tokenID,
		"price":   price.String(),
		"size":    size.String(),
		"side":    side,
		"type":    "GTC",
	}
	var resp struct {
		OrderID string `json:"orderID"`
		Success bool   `json:"success"`
	}
	if err := c.do(ctx, http.MethodPost, "/order", body, &resp); err != nil {
		return "", fmt.Errorf("failed to place order: %w", err)
	}
	if !resp.Success {
		return "", fmt.Errorf("order rejected for token %s", tokenID)
	}
	return resp.OrderID, nil
}

// CancelOrder cancels a working order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	body := map[string]any{"orderID": orderID}
	if err := c.do(ctx, http.MethodDelete, "/order", body, nil); err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrderBook fetches the book for a token.
func (c *Client) GetOrderBook(ctx context.Context, tokenID string) (*OrderBook, error) {
	var book OrderBook
	if err := c.do(ctx, http.MethodGet, "/book?token_id="+tokenID, nil, &book); err != nil {
		return nil, fmt.Errorf("failed to get order book: %w", err)
	}
	return &book, nil
}

// GetBalance fetches the available collateral balance.
func (c *Client) GetBalance(ctx context.Context) (decimal.Decimal, error) {
	var resp struct {
		Balance string `json:"balance"`
	}
	if err := c.do(ctx, http.MethodGet, "/balance", nil, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("failed to get balance: %w", err)
	}
	balance, err := decimal.NewFromString(resp.Balance)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse balance %q: %w", resp.Balance, err)
	}
	return balance, nil
}

// GetMarket fetches one market by condition id.
func (c *Client) GetMarket(ctx context.Context, conditionID string) (*Market, error) {
	var market Market
	if err := c.do(ctx, http.MethodGet, "/markets/"+conditionID, nil, &market); err != nil {
		return nil, fmt.Errorf("failed to get market %s: %w", conditionID, err)
	}
	market.FetchedAt = time.Now().UTC()
	return &market, nil
}
