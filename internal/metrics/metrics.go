// Package metrics exposes prometheus instrumentation for the platform.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Ingestion.
	TicksIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_ticks_ingested_total",
		Help: "Ticks written to the store, by symbol.",
	}, []string{"symbol"})

	CandlesIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_candles_ingested_total",
		Help: "Candles written to the store, by symbol.",
	}, []string{"symbol"})

	RecordsDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_records_dropped_total",
		Help: "Malformed provider records dropped, by provider.",
	}, []string{"provider"})

	ProviderReconnects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_provider_reconnects_total",
		Help: "Provider reconnect attempts, by provider.",
	}, []string{"provider"})

	// Analytics.
	ProfilesComputed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amb_profiles_computed_total",
		Help: "Per-minute volume profiles computed.",
	})

	DetectionPasses = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_detection_passes_total",
		Help: "Detection passes by kind (state, aggression, lvn).",
	}, []string{"kind"})

	DetectionErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_detection_errors_total",
		Help: "Recoverable errors during detection passes, by kind.",
	}, []string{"kind"})

	// Trading.
	SignalsGenerated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_signals_generated_total",
		Help: "Strategy signals emitted, by symbol and side.",
	}, []string{"symbol", "side"})

	SignalsBlocked = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_signals_blocked_total",
		Help: "Signals blocked by portfolio gates, by reason.",
	}, []string{"reason"})

	OrdersPlaced = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_orders_placed_total",
		Help: "Bracket orders accepted by the broker, by side.",
	}, []string{"side"})

	OrdersCancelled = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "amb_orders_cancelled_total",
		Help: "Tracked orders cancelled, by reason (timeout, slippage).",
	}, []string{"reason"})

	OpenPositions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amb_open_positions",
		Help: "Currently open equity positions.",
	})

	// Arbitrage.
	ArbOpportunities = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amb_arbitrage_opportunities_total",
		Help: "Binary-market spreads below the arbitrage threshold.",
	})

	ArbExecutions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "amb_arbitrage_executions_total",
		Help: "Paired YES+NO entries executed.",
	})

	ArbOpenExposure = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "amb_arbitrage_open_exposure_dollars",
		Help: "Cost basis of open paired positions.",
	})
)
