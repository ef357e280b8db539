package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
)

// barsResponse is the REST poll payload: bars grouped per symbol.
type barsResponse struct {
	Bars map[string][]restBar `json:"bars"`
}

type restBar struct {
	Timestamp string  `json:"t"`
	Open      float64 `json:"o"`
	High      float64 `json:"h"`
	Low       float64 `json:"l"`
	Close     float64 `json:"c"`
	Volume    float64 `json:"v"`
}

// PollingProvider fetches recent bars over REST on a fixed interval.
// Used where no streaming feed is available.
type PollingProvider struct {
	url      string
	symbols  []string
	interval time.Duration
	out      chan<- NormalizedRecord
	client   *http.Client
	logger   zerolog.Logger

	stop chan struct{}
	once sync.Once

	// last bar timestamp seen per symbol, to avoid re-emitting
	seen map[string]time.Time
}

// NewPollingProvider creates a polling provider writing into out.
func NewPollingProvider(pollURL string, symbols []string, intervalSec int, out chan<- NormalizedRecord) *PollingProvider {
	if intervalSec <= 0 {
		intervalSec = 60
	}
	return &PollingProvider{
		url:      pollURL,
		symbols:  symbols,
		interval: time.Duration(intervalSec) * time.Second,
		out:      out,
		client:   &http.Client{Timeout: 10 * time.Second},
		logger:   logging.Component("ingest_poll"),
		stop:     make(chan struct{}),
		seen:     make(map[string]time.Time),
	}
}

func (p *PollingProvider) Name() string { return "polling" }

func (p *PollingProvider) Stop() {
	p.once.Do(func() { close(p.stop) })
}

// Start polls until ctx is done or Stop is called.
func (p *PollingProvider) Start(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		if err := p.pollOnce(ctx); err != nil {
			p.logger.Warn().Err(err).Msg("poll failed")
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-ticker.C:
		}
	}
}

func (p *PollingProvider) pollOnce(ctx context.Context) error {
	u := fmt.Sprintf("%s?symbols=%s&timeframe=1Min", p.url, url.QueryEscape(strings.Join(p.symbols, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build poll request: %w", err)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("poll request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("poll returned %d: %s", resp.StatusCode, string(body))
	}

	var payload barsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return fmt.Errorf("failed to decode poll response: %w", err)
	}

	for symbol, bars := range payload.Bars {
		for _, bar := range bars {
			ts, err := time.Parse(time.RFC3339, bar.Timestamp)
			if err != nil || bar.Open <= 0 || bar.High < bar.Low {
				metrics.RecordsDropped.WithLabelValues(p.Name()).Inc()
				continue
			}
			ts = ts.Truncate(time.Minute)
			if last, ok := p.seen[symbol]; ok && !ts.After(last) {
				continue
			}
			p.seen[symbol] = ts

			rec := NormalizedRecord{Kind: KindCandle, Candle: &Candle{
				Symbol: symbol,
				Time:   ts,
				Open:   bar.Open,
				High:   bar.High,
				Low:    bar.Low,
				Close:  bar.Close,
				Volume: bar.Volume,
			}}
			select {
			case p.out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stop:
				return nil
			}
		}
	}
	return nil
}
