// Package orderflow derives aggressor flow (delta, cumulative delta and
// buy/sell pressure) from per-bucket volume profiles.
package orderflow

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
)

// Engine computes and persists per-bucket order-flow rows.
type Engine struct {
	repo   *database.Repository
	logger zerolog.Logger
}

// NewEngine creates an order-flow engine.
func NewEngine(repo *database.Repository, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		logger: logger.With().Str("component", "orderflow").Logger(),
	}
}

// Compute folds profile levels into a flow row. The cumulative delta
// chains off prevCVD; an empty bucket carries the previous CVD forward
// with neutral 50/50 pressure.
func Compute(bucket time.Time, symbolID int, levels []database.ProfileRow, prevCVD float64) database.OrderFlowRow {
	var buys, sells float64
	for _, lv := range levels {
		buys += lv.BuyVolume
		sells += lv.SellVolume
	}

	total := buys + sells
	if total == 0 {
		return database.OrderFlowRow{
			Bucket:          bucket,
			SymbolID:        symbolID,
			CumulativeDelta: prevCVD,
			BuyPressure:     50,
			SellPressure:    50,
		}
	}

	delta := buys - sells
	denom := math.Max(1, total)
	return database.OrderFlowRow{
		Bucket:          bucket,
		SymbolID:        symbolID,
		Delta:           delta,
		CumulativeDelta: prevCVD + delta,
		AggressiveBuys:  buys,
		AggressiveSells: sells,
		BuyPressure:     100 * buys / denom,
		SellPressure:    100 * sells / denom,
	}
}

// ProcessBucket reads the bucket's profile rows, chains the cumulative
// delta off the newest prior bucket, and upserts the flow row.
func (e *Engine) ProcessBucket(ctx context.Context, symbolID int, bucket time.Time) (*database.OrderFlowRow, error) {
	bucket = bucket.Truncate(time.Minute)

	levels, err := e.repo.GetProfileRows(ctx, symbolID, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile rows: %w", err)
	}
	prevCVD, err := e.repo.GetLastCVD(ctx, symbolID, bucket)
	if err != nil {
		return nil, err
	}

	row := Compute(bucket, symbolID, levels, prevCVD)
	if err := e.repo.UpsertOrderFlow(ctx, &row); err != nil {
		return nil, err
	}

	e.logger.Debug().
		Int("symbol_id", symbolID).
		Time("bucket", bucket).
		Float64("delta", row.Delta).
		Float64("cvd", row.CumulativeDelta).
		Msg("order flow computed")
	return &row, nil
}
