// Package scheduler drives the per-second analysis cadence: profile and
// flow on minute close, market state every fifth tick, LVN alerts every
// second tick, aggression and trading every tick.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/alerts"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/marketstate"
	"auction-market-bot/internal/metrics"
	"auction-market-bot/internal/orderflow"
	"auction-market-bot/internal/profile"
	"auction-market-bot/internal/trader"
)

// SymbolRef identifies one scheduled symbol.
type SymbolRef struct {
	ID     int
	Symbol string
}

type priceSource interface {
	GetLastPrice(ctx context.Context, symbolID int) (float64, error)
}

// Scheduler runs the analysis cadence over a fixed symbol set.
type Scheduler struct {
	symbols  []SymbolRef
	profile  *profile.Engine
	flow     *orderflow.Engine
	detector *marketstate.Detector
	lvn      *alerts.LVNMonitor
	trader   *trader.Trader
	prices   priceSource
	logger   zerolog.Logger

	stopCh chan struct{}
	once   sync.Once

	// last minute bucket already processed, per symbol
	lastBucket map[int]time.Time
}

// New creates a scheduler. Any component may be nil and its work is
// skipped, which keeps partial deployments (ingest-only, no trading)
// simple.
func New(symbols []SymbolRef, pe *profile.Engine, fe *orderflow.Engine,
	det *marketstate.Detector, lvn *alerts.LVNMonitor, tr *trader.Trader,
	prices priceSource) *Scheduler {

	return &Scheduler{
		symbols:    symbols,
		profile:    pe,
		flow:       fe,
		detector:   det,
		lvn:        lvn,
		trader:     tr,
		prices:     prices,
		logger:     logging.Component("scheduler"),
		stopCh:     make(chan struct{}),
		lastBucket: make(map[int]time.Time),
	}
}

// Stop ends the loop; safe to call more than once.
func (s *Scheduler) Stop() {
	s.once.Do(func() { close(s.stopCh) })
}

// Run executes the tick loop until ctx is done or Stop is called.
func (s *Scheduler) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	tickCount := 0
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.stopCh:
			return nil
		case now := <-ticker.C:
			tickCount++
			s.pass(ctx, now.UTC(), tickCount)
		}
	}
}

// pass runs one tick's work across every symbol. Errors are logged,
// never fatal; the next tick retries.
func (s *Scheduler) pass(ctx context.Context, now time.Time, tick int) {
	closedBucket := now.Truncate(time.Minute).Add(-time.Minute)

	for _, sym := range s.symbols {
		// Minute rollover first so downstream readers see fresh
		// profile and flow rows.
		if last, done := s.lastBucket[sym.ID]; !done || closedBucket.After(last) {
			s.processBucket(ctx, sym, closedBucket)
		}

		if tick%5 == 0 && s.detector != nil {
			if _, err := s.detector.Detect(ctx, sym.ID, sym.Symbol); err != nil {
				metrics.DetectionErrors.WithLabelValues("state").Inc()
				s.logger.Error().Err(err).Str("symbol", sym.Symbol).Msg("state detection failed")
			}
		}

		if tick%2 == 0 && s.lvn != nil && s.prices != nil {
			if price, err := s.prices.GetLastPrice(ctx, sym.ID); err == nil && price > 0 {
				if _, err := s.lvn.Check(ctx, sym.ID, sym.Symbol, price); err != nil {
					s.logger.Error().Err(err).Str("symbol", sym.Symbol).Msg("LVN check failed")
				}
			}
		}

		if s.trader != nil {
			if err := s.trader.ProcessSymbol(ctx, sym.ID, sym.Symbol); err != nil {
				s.logger.Error().Err(err).Str("symbol", sym.Symbol).Msg("trading pass failed")
			}
		}
	}
}

func (s *Scheduler) processBucket(ctx context.Context, sym SymbolRef, bucket time.Time) {
	if s.profile != nil {
		if _, err := s.profile.ProcessBucket(ctx, sym.ID, bucket); err != nil {
			s.logger.Error().Err(err).Str("symbol", sym.Symbol).Time("bucket", bucket).Msg("profile pass failed")
			return // leave the bucket unmarked so the next tick retries
		}
	}
	if s.flow != nil {
		if _, err := s.flow.ProcessBucket(ctx, sym.ID, bucket); err != nil {
			s.logger.Error().Err(err).Str("symbol", sym.Symbol).Time("bucket", bucket).Msg("flow pass failed")
			return
		}
	}
	s.lastBucket[sym.ID] = bucket
}
