// Package profile implements the per-minute volume profile computation:
// distributing traded volume across price levels and deriving the POC,
// value area and volume-node geometry the rest of the pipeline reads.
package profile

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/metrics"
)

// Params tunes the profile computation. Zero values are replaced by the
// defaults the platform ships with.
type Params struct {
	ValueAreaPct float64 // contiguous volume share around POC, default 0.70
	LVNFactor    float64 // level is an LVN below factor*mean, default 0.30
	HVNFactor    float64 // level is an HVN above factor*mean, default 1.50
	MinLevels    int     // candle distribution level count, default 10
	MinLevelStep float64 // price granularity floor, default 0.10
}

// DefaultParams returns the stock profile parameters.
func DefaultParams() Params {
	return Params{
		ValueAreaPct: 0.70,
		LVNFactor:    0.30,
		HVNFactor:    1.50,
		MinLevels:    10,
		MinLevelStep: 0.10,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.ValueAreaPct <= 0 {
		p.ValueAreaPct = d.ValueAreaPct
	}
	if p.LVNFactor <= 0 {
		p.LVNFactor = d.LVNFactor
	}
	if p.HVNFactor <= 0 {
		p.HVNFactor = d.HVNFactor
	}
	if p.MinLevels <= 0 {
		p.MinLevels = d.MinLevels
	}
	if p.MinLevelStep <= 0 {
		p.MinLevelStep = d.MinLevelStep
	}
	return p
}

// Level is one price level of an aggregated profile.
type Level struct {
	Price      float64
	Total      float64
	Buy        float64
	Sell       float64
	TradeCount int
}

// Metrics summarizes a bucket's profile geometry.
type Metrics struct {
	POC         float64
	VAH         float64
	VAL         float64
	TotalVolume float64
	LVNs        []float64
	HVNs        []float64
}

// Engine computes and persists per-minute profiles.
type Engine struct {
	repo   *database.Repository
	params Params
	logger zerolog.Logger
}

// NewEngine creates a profile engine.
func NewEngine(repo *database.Repository, params Params, logger zerolog.Logger) *Engine {
	return &Engine{
		repo:   repo,
		params: params.withDefaults(),
		logger: logger.With().Str("component", "profile").Logger(),
	}
}

// ProcessBucket aggregates the bucket [t, t+1m) for one symbol, persists
// the profile rows and the metrics row, and returns the metrics. Ticks
// take precedence; candles are the fallback. A bucket with no data
// returns nil without error.
func (e *Engine) ProcessBucket(ctx context.Context, symbolID int, bucket time.Time) (*Metrics, error) {
	bucket = bucket.Truncate(time.Minute)
	end := bucket.Add(time.Minute)

	ticks, err := e.repo.GetTicksRange(ctx, symbolID, bucket, end)
	if err != nil {
		return nil, fmt.Errorf("failed to load ticks for bucket: %w", err)
	}

	var levels []Level
	if len(ticks) > 0 {
		levels = AggregateTicks(ticks)
	} else {
		candles, err := e.repo.GetCandlesRange(ctx, symbolID, bucket, end.Add(-time.Nanosecond))
		if err != nil {
			return nil, fmt.Errorf("failed to load candles for bucket: %w", err)
		}
		if len(candles) == 0 {
			return nil, nil
		}
		levels = AggregateCandles(candles, e.params.MinLevels, e.params.MinLevelStep)
	}
	if len(levels) == 0 {
		return nil, nil
	}

	m := ComputeMetrics(levels, e.params)

	rows := make([]database.ProfileRow, 0, len(levels))
	for _, lv := range levels {
		rows = append(rows, database.ProfileRow{
			Bucket:      bucket,
			SymbolID:    symbolID,
			PriceLevel:  lv.Price,
			TotalVolume: lv.Total,
			BuyVolume:   lv.Buy,
			SellVolume:  lv.Sell,
			TradeCount:  lv.TradeCount,
		})
	}
	if err := e.repo.UpsertProfileRows(ctx, rows); err != nil {
		return nil, err
	}
	if err := e.repo.UpsertProfileMetrics(ctx, &database.ProfileMetrics{
		Bucket:      bucket,
		SymbolID:    symbolID,
		POC:         m.POC,
		VAH:         m.VAH,
		VAL:         m.VAL,
		TotalVolume: m.TotalVolume,
		LVNs:        m.LVNs,
		HVNs:        m.HVNs,
	}); err != nil {
		return nil, err
	}

	metrics.ProfilesComputed.Inc()
	e.logger.Debug().
		Int("symbol_id", symbolID).
		Time("bucket", bucket).
		Float64("poc", m.POC).
		Float64("vah", m.VAH).
		Float64("val", m.VAL).
		Msg("profile computed")
	return &m, nil
}

// priceKey snaps a price to cents so level grids from different candles
// land on the same buckets.
func priceKey(p float64) int64 {
	return int64(math.Round(p * 100))
}

func keyPrice(k int64) float64 {
	return float64(k) / 100
}

// AggregateTicks walks ticks in time order applying the uptick rule:
// price above the previous print is aggressive buying, below is selling,
// and a flat print splits the size in half with the odd share on the
// sell side. The first tick of the walk splits the same way.
func AggregateTicks(ticks []database.Tick) []Level {
	acc := make(map[int64]*Level)
	var prevPrice float64
	for i, t := range ticks {
		key := priceKey(t.Price)
		lv, ok := acc[key]
		if !ok {
			lv = &Level{Price: keyPrice(key)}
			acc[key] = lv
		}

		var buy, sell int64
		switch {
		case i == 0 || t.Price == prevPrice:
			buy = t.Size / 2
			sell = t.Size - buy
		case t.Price > prevPrice:
			buy = t.Size
		default:
			sell = t.Size
		}

		lv.Buy += float64(buy)
		lv.Sell += float64(sell)
		lv.Total += float64(t.Size)
		lv.TradeCount++
		prevPrice = t.Price
	}
	return sortLevels(acc)
}

// AggregateCandles approximates a profile from OHLCV bars: each candle's
// volume is spread evenly over price levels between low and high with
// step max(minStep, range/minLevels), weighted 60/40 toward the candle's
// direction. Each slice keeps buy+sell equal to the slice volume.
func AggregateCandles(candles []database.Candle, minLevels int, minStep float64) []Level {
	acc := make(map[int64]*Level)
	for _, c := range candles {
		if c.Volume <= 0 || c.High < c.Low {
			continue
		}
		step := math.Max(minStep, (c.High-c.Low)/float64(minLevels))
		var keys []int64
		for p := c.Low; p <= c.High+1e-9; p += step {
			keys = append(keys, priceKey(p))
		}
		if len(keys) == 0 {
			keys = []int64{priceKey(c.Low)}
		}

		slice := c.Volume / float64(len(keys))
		bullish := c.Close >= c.Open
		for _, key := range keys {
			lv, ok := acc[key]
			if !ok {
				lv = &Level{Price: keyPrice(key)}
				acc[key] = lv
			}
			major := slice * 0.6
			minor := slice - major
			if bullish {
				lv.Buy += major
				lv.Sell += minor
			} else {
				lv.Sell += major
				lv.Buy += minor
			}
			lv.Total += slice
			lv.TradeCount++
		}
	}
	return sortLevels(acc)
}

func sortLevels(acc map[int64]*Level) []Level {
	out := make([]Level, 0, len(acc))
	for _, lv := range acc {
		out = append(out, *lv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Price < out[j].Price })
	return out
}

// ComputeMetrics derives POC, value area and volume nodes from sorted
// levels. POC ties break toward the lowest price; value-area expansion
// ties break upward.
func ComputeMetrics(levels []Level, params Params) Metrics {
	params = params.withDefaults()
	if len(levels) == 0 {
		return Metrics{}
	}

	var total float64
	pocIdx := 0
	for i, lv := range levels {
		total += lv.Total
		if lv.Total > levels[pocIdx].Total {
			pocIdx = i
		}
	}

	// Expand from POC toward the heavier neighbor until the value area
	// holds the configured share of volume.
	lo, hi := pocIdx, pocIdx
	accumulated := levels[pocIdx].Total
	target := params.ValueAreaPct * total
	for accumulated < target && (lo > 0 || hi < len(levels)-1) {
		var below, above float64 = -1, -1
		if lo > 0 {
			below = levels[lo-1].Total
		}
		if hi < len(levels)-1 {
			above = levels[hi+1].Total
		}
		if above >= below && above >= 0 {
			hi++
			accumulated += levels[hi].Total
		} else {
			lo--
			accumulated += levels[lo].Total
		}
	}

	mean := total / float64(len(levels))
	var lvns, hvns []float64
	for _, lv := range levels {
		if lv.Total < params.LVNFactor*mean {
			lvns = append(lvns, lv.Price)
		} else if lv.Total > params.HVNFactor*mean {
			hvns = append(hvns, lv.Price)
		}
	}

	return Metrics{
		POC:         levels[pocIdx].Price,
		VAH:         levels[hi].Price,
		VAL:         levels[lo].Price,
		TotalVolume: total,
		LVNs:        lvns,
		HVNs:        hvns,
	}
}

// ComputeFromCandles is the pure in-memory profile used by the backtest
// when no stored profile rows exist for the window.
func ComputeFromCandles(candles []database.Candle, params Params) Metrics {
	params = params.withDefaults()
	levels := AggregateCandles(candles, params.MinLevels, params.MinLevelStep)
	return ComputeMetrics(levels, params)
}
