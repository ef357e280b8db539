// Package strategy holds the auction market strategy: a pure signal
// evaluator shared verbatim by the live trader and the backtest driver.
// It performs no I/O; identical inputs always produce identical outputs.
package strategy

import (
	"fmt"
	"math"

	"auction-market-bot/internal/aggression"
	"auction-market-bot/internal/marketstate"
)

// Params is the strategy parameter bundle.
type Params struct {
	MinAggressionScore  float64
	ATRStopMultiplier   float64
	ATRTargetMultiplier float64
	RiskPerTradePct     float64
	MaxPositions        int
}

// DefaultParams returns the stock strategy parameters.
func DefaultParams() Params {
	return Params{
		MinAggressionScore:  70,
		ATRStopMultiplier:   1.5,
		ATRTargetMultiplier: 3.0,
		RiskPerTradePct:     1.0,
		MaxPositions:        5,
	}
}

// Inputs is everything the evaluator reads. All fields are values; the
// evaluator never reaches out to a store or a clock.
type Inputs struct {
	Symbol       string
	MarketState  string
	Confidence   float64
	BuyPressure  float64
	SellPressure float64
	CVDMomentum  float64
	VolumeRatio  float64
	Price        float64
	ATR          float64
}

// Signal is an actionable entry with its bracket prices and audit
// context.
type Signal struct {
	Symbol          string
	Side            string
	EntryPrice      float64
	StopLoss        float64
	TakeProfit      float64
	AggressionScore float64
	MarketState     string
	Confidence      float64
	Reason          string
}

// Sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Exit reasons.
const (
	ExitStopLoss       = "Stop Loss"
	ExitTakeProfit     = "Take Profit"
	ExitOppositeSignal = "Opposite Signal"
)

// aggressionScore is the strategy's own, tighter-weighted rubric: it
// demands more of the flow than the standalone indicator before it will
// risk capital.
func aggressionScore(in Inputs) float64 {
	var score float64

	cvd := math.Abs(in.CVDMomentum)
	switch {
	case cvd >= 1000:
		score += 40
	case cvd >= 500:
		score += 20
	}

	maxPressure := math.Max(in.BuyPressure, in.SellPressure)
	switch {
	case maxPressure >= 70:
		score += 40
	case maxPressure >= 60:
		score += 20
	}

	switch {
	case in.VolumeRatio >= 2.0:
		score += 20
	case in.VolumeRatio >= 1.5:
		score += 10
	}

	return score
}

// flowDirection reuses the indicator's direction rule so live and
// backtest agree on what "confirming flow" means.
func flowDirection(in Inputs) string {
	return aggression.Score(aggression.Inputs{
		VolumeRatio:  in.VolumeRatio,
		CVDMomentum:  in.CVDMomentum,
		BuyPressure:  in.BuyPressure,
		SellPressure: in.SellPressure,
	}).Direction
}

// EvaluateEntry emits a signal when the market is imbalanced, the flow
// is aggressive enough, the flow direction confirms the imbalance, and
// volatility is measurable. A nil signal comes with the gate reason.
func EvaluateEntry(in Inputs, p Params) (*Signal, string) {
	if in.MarketState != marketstate.StateImbalanceUp && in.MarketState != marketstate.StateImbalanceDown {
		return nil, fmt.Sprintf("market state %s is not an imbalance", in.MarketState)
	}

	score := aggressionScore(in)
	if score < p.MinAggressionScore {
		return nil, fmt.Sprintf("aggression %.0f below minimum %.0f", score, p.MinAggressionScore)
	}

	direction := flowDirection(in)
	if in.MarketState == marketstate.StateImbalanceUp && direction != aggression.DirectionBuy {
		return nil, fmt.Sprintf("flow %s does not confirm IMBALANCE_UP", direction)
	}
	if in.MarketState == marketstate.StateImbalanceDown && direction != aggression.DirectionSell {
		return nil, fmt.Sprintf("flow %s does not confirm IMBALANCE_DOWN", direction)
	}

	if in.ATR <= 0 {
		return nil, "ATR not positive"
	}

	sig := &Signal{
		Symbol:          in.Symbol,
		EntryPrice:      in.Price,
		AggressionScore: score,
		MarketState:     in.MarketState,
		Confidence:      in.Confidence,
	}
	if in.MarketState == marketstate.StateImbalanceUp {
		sig.Side = SideBuy
		sig.StopLoss = in.Price - in.ATR*p.ATRStopMultiplier
		sig.TakeProfit = in.Price + in.ATR*p.ATRTargetMultiplier
		sig.Reason = fmt.Sprintf("IMBALANCE_UP with %s flow, aggression %.0f", direction, score)
	} else {
		sig.Side = SideSell
		sig.StopLoss = in.Price + in.ATR*p.ATRStopMultiplier
		sig.TakeProfit = in.Price - in.ATR*p.ATRTargetMultiplier
		sig.Reason = fmt.Sprintf("IMBALANCE_DOWN with %s flow, aggression %.0f", direction, score)
	}
	return sig, ""
}

// EvaluateExit reports whether an open position should close at the
// given price: the bracket prices on their respective sides, or an
// opposite regime confirmed by matching flow.
func EvaluateExit(side string, stopLoss, takeProfit, price float64, state, flowDir string) (bool, string) {
	if side == SideBuy {
		if price <= stopLoss {
			return true, ExitStopLoss
		}
		if price >= takeProfit {
			return true, ExitTakeProfit
		}
		if state == marketstate.StateImbalanceDown && flowDir == aggression.DirectionSell {
			return true, ExitOppositeSignal
		}
		return false, ""
	}

	if price >= stopLoss {
		return true, ExitStopLoss
	}
	if price <= takeProfit {
		return true, ExitTakeProfit
	}
	if state == marketstate.StateImbalanceUp && flowDir == aggression.DirectionBuy {
		return true, ExitOppositeSignal
	}
	return false, ""
}

// PositionSize converts account risk into share count: the quantity
// whose stop-out loss equals the risk budget, capped by available cash.
func PositionSize(equity, cash, entryPrice, stopLoss, riskPerTradePct float64) int64 {
	stopDistance := math.Abs(entryPrice - stopLoss)
	if stopDistance <= 0 || entryPrice <= 0 || equity <= 0 {
		return 0
	}

	riskAmount := equity * riskPerTradePct / 100
	qty := int64(riskAmount / stopDistance)

	maxAffordable := int64(cash / entryPrice)
	if qty > maxAffordable {
		qty = maxAffordable
	}
	if qty < 0 {
		qty = 0
	}
	return qty
}
