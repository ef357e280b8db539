// Package alerts watches price against low-volume nodes and raises
// proximity alerts. LVNs are thin spots in the profile where price
// tends to travel fast; approaching one is worth a heads-up.
package alerts

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/cache"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/logging"
)

// Alert directions: UP means price sits below the node and would cross
// it moving up.
const (
	DirectionUp   = "UP"
	DirectionDown = "DOWN"
)

// DefaultProximityPct triggers an alert inside half a percent.
const DefaultProximityPct = 0.5

// metricsLookback is how many recent profile metrics rows contribute
// their LVNs.
const metricsLookback = 10

// Alert is one LVN proximity observation.
type Alert struct {
	Symbol      string    `json:"symbol"`
	Price       float64   `json:"price"`
	LVN         float64   `json:"lvn"`
	DistancePct float64   `json:"distance_pct"`
	Direction   string    `json:"direction"`
	Message     string    `json:"message"`
	Time        time.Time `json:"time"`
}

type metricsStore interface {
	GetRecentProfileMetrics(ctx context.Context, symbolID, n int) ([]database.ProfileMetrics, error)
}

// LVNMonitor checks symbols against their recent low-volume nodes.
type LVNMonitor struct {
	store        metricsStore
	cache        *cache.Service
	bus          *events.EventBus
	proximityPct float64
	logger       zerolog.Logger
}

// NewLVNMonitor creates a monitor. A non-positive proximity uses the
// default 0.5%.
func NewLVNMonitor(store metricsStore, cacheSvc *cache.Service, bus *events.EventBus, proximityPct float64) *LVNMonitor {
	if proximityPct <= 0 {
		proximityPct = DefaultProximityPct
	}
	return &LVNMonitor{
		store:        store,
		cache:        cacheSvc,
		bus:          bus,
		proximityPct: proximityPct,
		logger:       logging.Component("lvn_monitor"),
	}
}

// CollectLVNs flattens, dedupes and sorts the nodes from recent metrics
// rows. Pure.
func CollectLVNs(rows []database.ProfileMetrics) []float64 {
	seen := make(map[float64]struct{})
	var nodes []float64
	for _, row := range rows {
		for _, lvn := range row.LVNs {
			if _, dup := seen[lvn]; dup {
				continue
			}
			seen[lvn] = struct{}{}
			nodes = append(nodes, lvn)
		}
	}
	sort.Float64s(nodes)
	return nodes
}

// Nearest finds the closest node and its percent distance from price.
// Pure; ok is false when nodes is empty.
func Nearest(price float64, nodes []float64) (lvn, distancePct float64, ok bool) {
	if len(nodes) == 0 || price <= 0 {
		return 0, 0, false
	}
	best := nodes[0]
	bestDist := math.Abs(price-best) / best * 100
	for _, node := range nodes[1:] {
		d := math.Abs(price-node) / node * 100
		if d < bestDist {
			best, bestDist = node, d
		}
	}
	return best, bestDist, true
}

// Evaluate is the pure alert decision against a node set.
func Evaluate(symbol string, price float64, nodes []float64, proximityPct float64, now time.Time) *Alert {
	lvn, dist, ok := Nearest(price, nodes)
	if !ok || dist >= proximityPct {
		return nil
	}
	direction := DirectionDown
	if price < lvn {
		direction = DirectionUp
	}
	return &Alert{
		Symbol:      symbol,
		Price:       price,
		LVN:         lvn,
		DistancePct: dist,
		Direction:   direction,
		Message: fmt.Sprintf("%s approaching LVN %.2f from %s (%.2f, %.2f%% away)",
			symbol, lvn, map[string]string{DirectionUp: "below", DirectionDown: "above"}[direction], price, dist),
		Time: now,
	}
}

// Check runs one pass for a symbol at the given last price, publishing
// any alert on the bus and the redis alert channel.
func (m *LVNMonitor) Check(ctx context.Context, symbolID int, symbol string, lastPrice float64) (*Alert, error) {
	rows, err := m.store.GetRecentProfileMetrics(ctx, symbolID, metricsLookback)
	if err != nil {
		return nil, fmt.Errorf("failed to load profile metrics for %s: %w", symbol, err)
	}

	alert := Evaluate(symbol, lastPrice, CollectLVNs(rows), m.proximityPct, time.Now().UTC())
	if alert == nil {
		return nil, nil
	}

	m.logger.Info().
		Str("symbol", symbol).
		Float64("price", alert.Price).
		Float64("lvn", alert.LVN).
		Str("direction", alert.Direction).
		Msg("LVN proximity alert")

	if m.bus != nil {
		m.bus.PublishLVNAlert(symbol, alert.Price, alert.LVN, alert.DistancePct, alert.Direction)
	}
	if m.cache != nil {
		_ = m.cache.Publish(ctx, cache.ChannelLVNAlerts, alert)
	}
	return alert, nil
}
