// Package marketstate classifies the auction regime of a symbol from
// profile geometry, price momentum and order-flow pressure.
package marketstate

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/events"
	"auction-market-bot/internal/metrics"
)

// Market regimes.
const (
	StateBalance       = "BALANCE"
	StateImbalanceUp   = "IMBALANCE_UP"
	StateImbalanceDown = "IMBALANCE_DOWN"
	StateUnknown       = "UNKNOWN"
)

// Params holds the classifier thresholds.
type Params struct {
	POCDistanceThreshold float64 // percent distance from POC, default 1.5
	MomentumThreshold    float64 // default 1.5
	CVDPressureThreshold float64 // default 15
	LookbackMinutes      int     // candle window, default 60
}

// DefaultParams returns the stock detector thresholds.
func DefaultParams() Params {
	return Params{
		POCDistanceThreshold: 1.5,
		MomentumThreshold:    1.5,
		CVDPressureThreshold: 15,
		LookbackMinutes:      60,
	}
}

func (p Params) withDefaults() Params {
	d := DefaultParams()
	if p.POCDistanceThreshold <= 0 {
		p.POCDistanceThreshold = d.POCDistanceThreshold
	}
	if p.MomentumThreshold <= 0 {
		p.MomentumThreshold = d.MomentumThreshold
	}
	if p.CVDPressureThreshold <= 0 {
		p.CVDPressureThreshold = d.CVDPressureThreshold
	}
	if p.LookbackMinutes <= 0 {
		p.LookbackMinutes = d.LookbackMinutes
	}
	return p
}

// Observation is one classification result.
type Observation struct {
	State      string
	Confidence float64
	POC        float64
	VAH        float64
	VAL        float64
	Momentum   float64
}

// Detector runs classification passes and appends observations.
type Detector struct {
	repo   *database.Repository
	bus    *events.EventBus
	params Params
	logger zerolog.Logger
}

// NewDetector creates a market-state detector.
func NewDetector(repo *database.Repository, bus *events.EventBus, params Params, logger zerolog.Logger) *Detector {
	return &Detector{
		repo:   repo,
		bus:    bus,
		params: params.withDefaults(),
		logger: logger.With().Str("component", "marketstate").Logger(),
	}
}

// Momentum is the signed momentum measure over a close series, clamped
// to [-100, 100]: ten times the percent change first-to-last, with a
// +-20 kicker when a run of three or more consecutive directional
// closes exists in the window.
func Momentum(closes []float64) float64 {
	if len(closes) < 2 || closes[0] == 0 {
		return 0
	}

	m := 10 * (closes[len(closes)-1] - closes[0]) / closes[0] * 100

	upRun, downRun := 0, 0
	maxUp, maxDown := 0, 0
	for i := 1; i < len(closes); i++ {
		switch {
		case closes[i] > closes[i-1]:
			upRun++
			downRun = 0
		case closes[i] < closes[i-1]:
			downRun++
			upRun = 0
		default:
			upRun, downRun = 0, 0
		}
		if upRun > maxUp {
			maxUp = upRun
		}
		if downRun > maxDown {
			maxDown = downRun
		}
	}
	if maxUp >= 3 {
		m += 20
	}
	if maxDown >= 3 {
		m -= 20
	}

	if m > 100 {
		m = 100
	}
	if m < -100 {
		m = -100
	}
	return m
}

// Classify applies the additive-confidence rule table. Confidence is
// clamped to [0, 100]; if no rule picks a regime the result is UNKNOWN
// with zero confidence.
func Classify(price float64, m *database.ProfileMetrics, closes []float64, flow *database.OrderFlowRow, params Params) Observation {
	params = params.withDefaults()
	obs := Observation{State: StateUnknown}
	if m == nil || m.POC == 0 || price <= 0 {
		return obs
	}
	obs.POC = m.POC
	obs.VAH = m.VAH
	obs.VAL = m.VAL

	dist := price - m.POC
	if dist < 0 {
		dist = -dist
	}
	dist = dist / m.POC * 100
	inValueArea := price >= m.VAL && price <= m.VAH

	state := ""
	confidence := 0.0
	th := params.POCDistanceThreshold

	switch {
	case dist < th:
		state = StateBalance
		confidence += 40
	case dist < th*5.0/3.0:
		confidence += 20
	default:
		confidence += 30
	}

	switch {
	case inValueArea && dist < th*4.0/3.0:
		state = StateBalance
		confidence += 30
	case !inValueArea && price > m.VAH:
		state = StateImbalanceUp
		confidence += 30
	case !inValueArea && price < m.VAL:
		state = StateImbalanceDown
		confidence += 30
	}

	momentum := Momentum(closes)
	obs.Momentum = momentum
	absMomentum := momentum
	if absMomentum < 0 {
		absMomentum = -absMomentum
	}
	switch {
	case absMomentum > params.MomentumThreshold:
		if momentum > 0 {
			state = StateImbalanceUp
		} else {
			state = StateImbalanceDown
		}
		confidence += 20
	case absMomentum < params.MomentumThreshold/3.0:
		state = StateBalance
		confidence += 10
	}

	if flow != nil {
		cvdPressure := flow.BuyPressure - flow.SellPressure
		absPressure := cvdPressure
		if absPressure < 0 {
			absPressure = -absPressure
		}
		if absPressure > params.CVDPressureThreshold {
			if cvdPressure > 0 {
				state = StateImbalanceUp
			} else {
				state = StateImbalanceDown
			}
			confidence += 10
		}
	}

	if state == "" {
		return obs
	}
	if confidence > 100 {
		confidence = 100
	}
	if confidence < 0 {
		confidence = 0
	}
	obs.State = state
	obs.Confidence = confidence
	return obs
}

// Detect runs one classification pass for a symbol, persists the
// observation and publishes it. Missing inputs produce no observation
// and no error; the next pass retries.
func (d *Detector) Detect(ctx context.Context, symbolID int, symbol string) (*Observation, error) {
	m, err := d.repo.GetLatestProfileMetrics(ctx, symbolID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	candles, err := d.repo.GetRecentCandles(ctx, symbolID, d.params.LookbackMinutes)
	if err != nil {
		return nil, err
	}
	if len(candles) == 0 {
		return nil, nil
	}
	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	price := closes[len(closes)-1]

	flow, err := d.repo.GetLatestOrderFlow(ctx, symbolID)
	if err != nil && !errors.Is(err, database.ErrNotFound) {
		return nil, err
	}

	obs := Classify(price, m, closes, flow, d.params)

	row := &database.MarketStateRow{
		Time:       time.Now().UTC(),
		SymbolID:   symbolID,
		State:      obs.State,
		Confidence: obs.Confidence,
	}
	if obs.POC != 0 {
		poc, vah, val := obs.POC, obs.VAH, obs.VAL
		row.POC = &poc
		row.BalanceHigh = &vah
		row.BalanceLow = &val
	}
	if err := d.repo.InsertMarketState(ctx, row); err != nil {
		return nil, err
	}

	metrics.DetectionPasses.WithLabelValues("state").Inc()
	d.bus.PublishMarketState(symbol, obs.State, obs.Confidence)
	d.logger.Debug().
		Str("symbol", symbol).
		Str("state", obs.State).
		Float64("confidence", obs.Confidence).
		Msg("market state detected")
	return &obs, nil
}
