package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/metrics"
)

// store is the slice of the repository the router writes through.
type store interface {
	GetOrCreateSymbol(ctx context.Context, symbol, exchange string) (int, error)
	InsertTick(ctx context.Context, t *database.Tick) error
	UpsertCandle(ctx context.Context, c *database.Candle) error
}

// publisher is the slice of the cache service the router fans out on.
type publisher interface {
	SetLastPrice(ctx context.Context, symbol string, price float64)
	Publish(ctx context.Context, channel string, v interface{}) error
}

const candlesChannel = "ticks:candles"

// Router drains the provider channel, persists records and fans candles
// out on redis. One router per process; providers share its channel.
type Router struct {
	store     store
	publisher publisher
	exchange  string
	records   chan NormalizedRecord
	logger    zerolog.Logger

	mu        sync.Mutex
	symbolIDs map[string]int
}

// NewRouter creates a router with its record channel.
func NewRouter(st store, pub publisher, exchange string) *Router {
	return &Router{
		store:     st,
		publisher: pub,
		exchange:  exchange,
		records:   make(chan NormalizedRecord, 1024),
		logger:    logging.Component("ingest_router"),
		symbolIDs: make(map[string]int),
	}
}

// Records returns the channel providers write into.
func (r *Router) Records() chan NormalizedRecord {
	return r.records
}

// Run drains the channel until ctx is done.
func (r *Router) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case rec := <-r.records:
			if err := r.Route(ctx, rec); err != nil {
				r.logger.Error().Err(err).Str("kind", rec.Kind).Msg("failed to route record")
			}
		}
	}
}

func (r *Router) symbolID(ctx context.Context, symbol string) (int, error) {
	r.mu.Lock()
	id, ok := r.symbolIDs[symbol]
	r.mu.Unlock()
	if ok {
		return id, nil
	}

	id, err := r.store.GetOrCreateSymbol(ctx, symbol, r.exchange)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve symbol %s: %w", symbol, err)
	}
	r.mu.Lock()
	r.symbolIDs[symbol] = id
	r.mu.Unlock()
	return id, nil
}

// Route validates and persists one record. Malformed records are
// dropped and counted, never returned as errors.
func (r *Router) Route(ctx context.Context, rec NormalizedRecord) error {
	switch rec.Kind {
	case KindTick:
		if rec.Tick == nil || !validTick(rec.Tick) {
			metrics.RecordsDropped.WithLabelValues("router").Inc()
			return nil
		}
		id, err := r.symbolID(ctx, rec.Tick.Symbol)
		if err != nil {
			return err
		}
		if err := r.store.InsertTick(ctx, &database.Tick{
			Time:     rec.Tick.Time,
			SymbolID: id,
			Price:    rec.Tick.Price,
			Size:     rec.Tick.Size,
			Venue:    rec.Tick.Venue,
		}); err != nil {
			return fmt.Errorf("failed to insert tick: %w", err)
		}
		r.publisher.SetLastPrice(ctx, rec.Tick.Symbol, rec.Tick.Price)
		metrics.TicksIngested.WithLabelValues(rec.Tick.Symbol).Inc()
		return nil

	case KindCandle:
		if rec.Candle == nil || !validCandle(rec.Candle) {
			metrics.RecordsDropped.WithLabelValues("router").Inc()
			return nil
		}
		id, err := r.symbolID(ctx, rec.Candle.Symbol)
		if err != nil {
			return err
		}
		if err := r.store.UpsertCandle(ctx, &database.Candle{
			Time:     rec.Candle.Time.Truncate(time.Minute),
			SymbolID: id,
			Symbol:   rec.Candle.Symbol,
			Open:     rec.Candle.Open,
			High:     rec.Candle.High,
			Low:      rec.Candle.Low,
			Close:    rec.Candle.Close,
			Volume:   rec.Candle.Volume,
		}); err != nil {
			return fmt.Errorf("failed to upsert candle: %w", err)
		}
		r.publisher.SetLastPrice(ctx, rec.Candle.Symbol, rec.Candle.Close)
		_ = r.publisher.Publish(ctx, candlesChannel, rec.Candle)
		metrics.CandlesIngested.WithLabelValues(rec.Candle.Symbol).Inc()
		return nil

	default:
		metrics.RecordsDropped.WithLabelValues("router").Inc()
		return nil
	}
}

func validTick(t *Tick) bool {
	return t.Symbol != "" && !t.Time.IsZero() && t.Price > 0 && t.Size > 0
}

func validCandle(c *Candle) bool {
	if c.Symbol == "" || c.Time.IsZero() || c.Volume < 0 {
		return false
	}
	if c.Open <= 0 || c.High <= 0 || c.Low <= 0 || c.Close <= 0 {
		return false
	}
	return c.High >= c.Low && c.High >= c.Open && c.High >= c.Close &&
		c.Low <= c.Open && c.Low <= c.Close
}
