package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
)

// wireMessage is one frame from the streaming feed. Feeds serialize
// prices as strings.
type wireMessage struct {
	Type      string  `json:"T"` // "t" trade, "b" bar
	Symbol    string  `json:"S"`
	Price     float64 `json:"p,string"`
	Size      int64   `json:"s"`
	Open      float64 `json:"o,string"`
	High      float64 `json:"h,string"`
	Low       float64 `json:"l,string"`
	Close     float64 `json:"c,string"`
	Volume    float64 `json:"v,string"`
	Timestamp string  `json:"t"`
}

type subscribeMessage struct {
	Action string   `json:"action"`
	Trades []string `json:"trades"`
	Bars   []string `json:"bars"`
}

// StreamingProvider consumes a websocket trade and bar feed, emitting
// normalized records. It reconnects with exponential backoff capped at
// the configured maximum and resubscribes after every reconnect.
type StreamingProvider struct {
	url        string
	symbols    []string
	out        chan<- NormalizedRecord
	maxBackoff time.Duration
	logger     zerolog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	stop chan struct{}
	once sync.Once
}

// NewStreamingProvider creates a streaming provider writing into out.
func NewStreamingProvider(url string, symbols []string, maxBackoffSec int, out chan<- NormalizedRecord) *StreamingProvider {
	if maxBackoffSec <= 0 {
		maxBackoffSec = 60
	}
	return &StreamingProvider{
		url:        url,
		symbols:    symbols,
		out:        out,
		maxBackoff: time.Duration(maxBackoffSec) * time.Second,
		logger:     logging.Component("ingest_ws"),
		stop:       make(chan struct{}),
	}
}

func (p *StreamingProvider) Name() string { return "websocket" }

// Stop shuts the provider down; safe to call more than once.
func (p *StreamingProvider) Stop() {
	p.once.Do(func() {
		close(p.stop)
		p.mu.Lock()
		if p.conn != nil {
			p.conn.Close()
		}
		p.mu.Unlock()
	})
}

// Start runs the connect/read loop until ctx is done or Stop is called.
func (p *StreamingProvider) Start(ctx context.Context) error {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		default:
		}

		if err := p.connectAndRead(ctx); err != nil {
			p.logger.Warn().Err(err).Dur("backoff", backoff).Msg("stream dropped, reconnecting")
			metrics.ProviderReconnects.WithLabelValues(p.Name()).Inc()
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > p.maxBackoff {
			backoff = p.maxBackoff
		}
	}
}

func (p *StreamingProvider) connectAndRead(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, p.url, nil)
	if err != nil {
		return fmt.Errorf("failed to dial %s: %w", p.url, err)
	}
	p.mu.Lock()
	p.conn = conn
	p.mu.Unlock()
	defer conn.Close()

	sub := subscribeMessage{Action: "subscribe", Trades: p.symbols, Bars: p.symbols}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}
	p.logger.Info().Strs("symbols", p.symbols).Msg("subscribed to stream")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.stop:
			return nil
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read failed: %w", err)
		}

		// Frames carry an array of messages.
		var msgs []wireMessage
		if err := json.Unmarshal(data, &msgs); err != nil {
			var single wireMessage
			if err := json.Unmarshal(data, &single); err != nil {
				metrics.RecordsDropped.WithLabelValues(p.Name()).Inc()
				continue
			}
			msgs = []wireMessage{single}
		}

		for _, msg := range msgs {
			rec, ok := normalizeWire(msg)
			if !ok {
				metrics.RecordsDropped.WithLabelValues(p.Name()).Inc()
				continue
			}
			select {
			case p.out <- rec:
			case <-ctx.Done():
				return ctx.Err()
			case <-p.stop:
				return nil
			}
		}
	}
}

// normalizeWire converts a feed frame to a record, rejecting malformed
// shapes.
func normalizeWire(msg wireMessage) (NormalizedRecord, bool) {
	ts, err := time.Parse(time.RFC3339, msg.Timestamp)
	if err != nil || msg.Symbol == "" {
		return NormalizedRecord{}, false
	}
	switch msg.Type {
	case "t":
		if msg.Price <= 0 || msg.Size <= 0 {
			return NormalizedRecord{}, false
		}
		return NormalizedRecord{Kind: KindTick, Tick: &Tick{
			Symbol: msg.Symbol,
			Time:   ts,
			Price:  msg.Price,
			Size:   msg.Size,
		}}, true
	case "b":
		if msg.Open <= 0 || msg.High <= 0 || msg.Low <= 0 || msg.Close <= 0 || msg.High < msg.Low {
			return NormalizedRecord{}, false
		}
		return NormalizedRecord{Kind: KindCandle, Candle: &Candle{
			Symbol: msg.Symbol,
			Time:   ts.Truncate(time.Minute),
			Open:   msg.Open,
			High:   msg.High,
			Low:    msg.Low,
			Close:  msg.Close,
			Volume: msg.Volume,
		}}, true
	default:
		return NormalizedRecord{}, false
	}
}
