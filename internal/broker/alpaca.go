package broker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"auction-market-bot/internal/logging"
)

const defaultAlpacaBaseURL = "https://paper-api.alpaca.markets"

// AlpacaClient talks to the Alpaca trading REST API. Requests are rate
// limited client side; Alpaca allows 200/min so we stay under 3/s.
type AlpacaClient struct {
	apiKey    string
	secretKey string
	baseURL   string
	client    *http.Client
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewAlpacaClient creates a client for the given credentials. An empty
// baseURL targets the paper trading API.
func NewAlpacaClient(apiKey, secretKey, baseURL string) *AlpacaClient {
	if baseURL == "" {
		baseURL = defaultAlpacaBaseURL
	}
	return &AlpacaClient{
		apiKey:    apiKey,
		secretKey: secretKey,
		baseURL:   baseURL,
		client:    &http.Client{Timeout: 10 * time.Second},
		limiter:   rate.NewLimiter(rate.Limit(3), 5),
		logger:    logging.Component("alpaca"),
	}
}

// Alpaca serializes decimals as JSON strings.
type alpacaAccount struct {
	PortfolioValue string `json:"portfolio_value"`
	Equity         string `json:"equity"`
	LastEquity     string `json:"last_equity"`
	BuyingPower    string `json:"buying_power"`
	Cash           string `json:"cash"`
	AccountBlocked bool   `json:"account_blocked"`
	TradingBlocked bool   `json:"trading_blocked"`
}

type alpacaPosition struct {
	Symbol         string `json:"symbol"`
	Qty            string `json:"qty"`
	AvgEntryPrice  string `json:"avg_entry_price"`
	CurrentPrice   string `json:"current_price"`
	UnrealizedPL   string `json:"unrealized_pl"`
	UnrealizedPLPC string `json:"unrealized_plpc"`
}

type alpacaOrder struct {
	ID             string `json:"id"`
	ClientOrderID  string `json:"client_order_id"`
	Symbol         string `json:"symbol"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Status         string `json:"status"`
	Qty            string `json:"qty"`
	LimitPrice     string `json:"limit_price"`
	StopPrice      string `json:"stop_price"`
	FilledAvgPrice string `json:"filled_avg_price"`
	SubmittedAt    string `json:"submitted_at"`
}

func parseFloat(s string) float64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

func parseInt(s string) int64 {
	if s == "" {
		return 0
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// fractional qty, truncate
		return int64(parseFloat(s))
	}
	return v
}

func (o alpacaOrder) toOrder() Order {
	submitted, _ := time.Parse(time.RFC3339, o.SubmittedAt)
	return Order{
		ID:             o.ID,
		ClientOrderID:  o.ClientOrderID,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Type:           o.Type,
		Status:         o.Status,
		Qty:            parseInt(o.Qty),
		LimitPrice:     parseFloat(o.LimitPrice),
		StopPrice:      parseFloat(o.StopPrice),
		FilledAvgPrice: parseFloat(o.FilledAvgPrice),
		SubmittedAt:    submitted,
	}
}

// round2 snaps a price to cents, required by the orders endpoint for
// equities above $1.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func (c *AlpacaClient) do(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait: %w", err)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
	}

	attempt := func() (int, []byte, error) {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to build request: %w", err)
		}
		req.Header.Set("APCA-API-KEY-ID", c.apiKey)
		req.Header.Set("APCA-API-SECRET-KEY", c.secretKey)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return 0, nil, fmt.Errorf("request failed: %w", err)
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return resp.StatusCode, nil, fmt.Errorf("failed to read response: %w", err)
		}
		return resp.StatusCode, data, nil
	}

	status, data, err := attempt()
	if err != nil {
		return err
	}
	// 401 can mean a transient auth hiccup on the broker side; retry
	// once before failing the call.
	if status == http.StatusUnauthorized {
		c.logger.Warn().Str("path", path).Msg("unauthorized response, retrying once")
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}
		status, data, err = attempt()
		if err != nil {
			return err
		}
	}

	if status < 200 || status >= 300 {
		return fmt.Errorf("alpaca %s %s returned %d: %s", method, path, status, string(data))
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// GetAccount fetches the account snapshot.
func (c *AlpacaClient) GetAccount(ctx context.Context) (*Account, error) {
	var raw alpacaAccount
	if err := c.do(ctx, http.MethodGet, "/v2/account", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &Account{
		PortfolioValue: parseFloat(raw.PortfolioValue),
		Equity:         parseFloat(raw.Equity),
		LastEquity:     parseFloat(raw.LastEquity),
		BuyingPower:    parseFloat(raw.BuyingPower),
		Cash:           parseFloat(raw.Cash),
		AccountBlocked: raw.AccountBlocked,
		TradingBlocked: raw.TradingBlocked,
	}, nil
}

// GetPositions fetches all open positions.
func (c *AlpacaClient) GetPositions(ctx context.Context) ([]Position, error) {
	var raw []alpacaPosition
	if err := c.do(ctx, http.MethodGet, "/v2/positions", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}
	positions := make([]Position, 0, len(raw))
	for _, p := range raw {
		positions = append(positions, Position{
			Symbol:          p.Symbol,
			Qty:             parseInt(p.Qty),
			AvgEntryPrice:   parseFloat(p.AvgEntryPrice),
			CurrentPrice:    parseFloat(p.CurrentPrice),
			UnrealizedPL:    parseFloat(p.UnrealizedPL),
			UnrealizedPLPct: parseFloat(p.UnrealizedPLPC) * 100,
		})
	}
	return positions, nil
}

// PlaceBracketOrder submits a day market order with attached take-profit
// and stop-loss legs.
func (c *AlpacaClient) PlaceBracketOrder(ctx context.Context, symbol string, qty int64, side string, takeProfit, stopLoss float64) (*Order, error) {
	body := map[string]any{
		"symbol":        symbol,
		"qty":           strconv.FormatInt(qty, 10),
		"side":          side,
		"type":          "market",
		"time_in_force": "day",
		"order_class":   "bracket",
		"take_profit": map[string]any{
			"limit_price": round2(takeProfit),
		},
		"stop_loss": map[string]any{
			"stop_price": round2(stopLoss),
		},
	}

	var raw alpacaOrder
	if err := c.do(ctx, http.MethodPost, "/v2/orders", body, &raw); err != nil {
		return nil, fmt.Errorf("failed to place bracket order for %s: %w", symbol, err)
	}

	c.logger.Info().
		Str("symbol", symbol).
		Str("side", side).
		Int64("qty", qty).
		Float64("take_profit", round2(takeProfit)).
		Float64("stop_loss", round2(stopLoss)).
		Str("order_id", raw.ID).
		Msg("bracket order placed")

	order := raw.toOrder()
	return &order, nil
}

// CancelOrder cancels an order by id. Cancelling an already terminal
// order is not an error.
func (c *AlpacaClient) CancelOrder(ctx context.Context, orderID string) error {
	err := c.do(ctx, http.MethodDelete, "/v2/orders/"+orderID, nil, nil)
	if err != nil {
		return fmt.Errorf("failed to cancel order %s: %w", orderID, err)
	}
	return nil
}

// GetOrders lists orders filtered by status ("open", "closed" or "all").
func (c *AlpacaClient) GetOrders(ctx context.Context, status string) ([]Order, error) {
	if status == "" {
		status = "open"
	}
	var raw []alpacaOrder
	if err := c.do(ctx, http.MethodGet, "/v2/orders?status="+status+"&limit=500", nil, &raw); err != nil {
		return nil, fmt.Errorf("failed to get orders: %w", err)
	}
	orders := make([]Order, 0, len(raw))
	for _, o := range raw {
		orders = append(orders, o.toOrder())
	}
	return orders, nil
}

// ClosePosition liquidates the symbol's position at market.
func (c *AlpacaClient) ClosePosition(ctx context.Context, symbol string) error {
	if err := c.do(ctx, http.MethodDelete, "/v2/positions/"+symbol, nil, nil); err != nil {
		return fmt.Errorf("failed to close position %s: %w", symbol, err)
	}
	c.logger.Info().Str("symbol", symbol).Msg("position close submitted")
	return nil
}

var _ Broker = (*AlpacaClient)(nil)
