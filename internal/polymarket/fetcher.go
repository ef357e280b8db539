package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
)

// DefaultGammaURL is the market catalogue endpoint.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

const fetchPageSize = 100

// gammaMarket is one entry from gamma-api /markets.
type gammaMarket struct {
	ConditionID  string `json:"conditionId"`
	Question     string `json:"question"`
	Category     string `json:"category"`
	Slug         string `json:"slug"`
	EndDate      string `json:"endDate"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
	ClobTokenIDs string `json:"clobTokenIds"` // JSON-encoded string array
}

type marketStore interface {
	GetOrCreateSymbol(ctx context.Context, symbol, exchange string) (int, error)
	UpsertBinaryMarket(ctx context.Context, m *database.BinaryMarket) error
}

// Fetcher discovers tradable binary markets from gamma-api and stores
// them for the arbitrage engine.
type Fetcher struct {
	gammaURL   string
	categories map[string]struct{} // empty = accept all
	store      marketStore
	client     *http.Client
	logger     zerolog.Logger
}

// NewFetcher creates a market fetcher. categories filters by gamma
// category, case-insensitive; empty accepts everything.
func NewFetcher(gammaURL string, categories []string, store marketStore) *Fetcher {
	if gammaURL == "" {
		gammaURL = DefaultGammaURL
	}
	catSet := make(map[string]struct{}, len(categories))
	for _, c := range categories {
		catSet[strings.ToLower(c)] = struct{}{}
	}
	return &Fetcher{
		gammaURL:   gammaURL,
		categories: catSet,
		store:      store,
		client:     &http.Client{Timeout: 15 * time.Second},
		logger:     logging.Component("market_fetcher"),
	}
}

// parseTokenIDs decodes the clobTokenIds field, a JSON array serialized
// as a string. Returns yes and no token ids.
func parseTokenIDs(raw string) (yes, no string, err error) {
	var ids []string
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return "", "", fmt.Errorf("failed to parse clobTokenIds: %w", err)
	}
	if len(ids) != 2 || ids[0] == "" || ids[1] == "" {
		return "", "", fmt.Errorf("expected 2 token ids, got %d", len(ids))
	}
	return ids[0], ids[1], nil
}

// isShortHorizonCrypto rejects the hourly/daily crypto price markets
// whose spreads resolve too fast to arb safely.
func isShortHorizonCrypto(m gammaMarket, now time.Time) bool {
	q := strings.ToLower(m.Question)
	if !strings.Contains(q, "bitcoin") && !strings.Contains(q, "ethereum") &&
		!strings.Contains(q, "btc") && !strings.Contains(q, "eth") {
		return false
	}
	end, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		return false
	}
	return end.Sub(now) < 48*time.Hour
}

// accept applies the discovery filters.
func (f *Fetcher) accept(m gammaMarket, now time.Time) bool {
	if !m.Active || m.Closed || m.ConditionID == "" {
		return false
	}
	if len(f.categories) > 0 {
		if _, ok := f.categories[strings.ToLower(m.Category)]; !ok {
			return false
		}
	}
	return !isShortHorizonCrypto(m, now)
}

// toBinaryMarket converts an accepted gamma market. End date falls back
// to now+30d when missing or unparsable.
func toBinaryMarket(m gammaMarket, now time.Time) (*database.BinaryMarket, error) {
	yes, no, err := parseTokenIDs(m.ClobTokenIDs)
	if err != nil {
		return nil, err
	}
	endDate, err := time.Parse(time.RFC3339, m.EndDate)
	if err != nil {
		endDate = now.Add(30 * 24 * time.Hour)
	}
	return &database.BinaryMarket{
		MarketID:   m.ConditionID,
		Question:   m.Question,
		Category:   m.Category,
		YesTokenID: yes,
		NoTokenID:  no,
		EndDate:    endDate,
		Status:     database.MarketStatusActive,
	}, nil
}

func (f *Fetcher) fetchPage(ctx context.Context, offset int) ([]gammaMarket, error) {
	q := url.Values{}
	q.Set("active", "true")
	q.Set("closed", "false")
	q.Set("limit", strconv.Itoa(fetchPageSize))
	q.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.gammaURL+"/markets?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("gamma returned %d: %s", resp.StatusCode, string(body))
	}

	var markets []gammaMarket
	if err := json.NewDecoder(resp.Body).Decode(&markets); err != nil {
		return nil, fmt.Errorf("failed to decode markets: %w", err)
	}
	return markets, nil
}

// FetchAll pages through gamma-api and upserts every accepted market,
// returning how many were stored.
func (f *Fetcher) FetchAll(ctx context.Context) (int, error) {
	now := time.Now().UTC()
	stored := 0

	for offset := 0; ; offset += fetchPageSize {
		page, err := f.fetchPage(ctx, offset)
		if err != nil {
			return stored, fmt.Errorf("failed to fetch markets page at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, gm := range page {
			if !f.accept(gm, now) {
				continue
			}
			market, err := toBinaryMarket(gm, now)
			if err != nil {
				f.logger.Debug().Str("market", gm.ConditionID).Err(err).Msg("skipping market")
				continue
			}

			symbolID, err := f.store.GetOrCreateSymbol(ctx, symbolFor(gm), "polymarket")
			if err != nil {
				return stored, fmt.Errorf("failed to register symbol: %w", err)
			}
			market.SymbolID = symbolID

			if err := f.store.UpsertBinaryMarket(ctx, market); err != nil {
				return stored, fmt.Errorf("failed to store market %s: %w", market.MarketID, err)
			}
			stored++
		}

		if len(page) < fetchPageSize {
			break
		}
	}

	f.logger.Info().Int("stored", stored).Msg("market discovery complete")
	return stored, nil
}

// symbolFor derives a stable symbol name from the market slug, falling
// back to the condition id.
func symbolFor(m gammaMarket) string {
	if m.Slug != "" {
		return "PM:" + m.Slug
	}
	return "PM:" + m.ConditionID
}
