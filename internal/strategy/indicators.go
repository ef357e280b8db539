package strategy

import (
	"math"

	"auction-market-bot/internal/database"
)

// DefaultATRPeriod is the stock ATR window.
const DefaultATRPeriod = 14

// ATR is the mean true range over the trailing period. With too little
// history it falls back to a fixed fraction of price so the strategy
// still has a volatility estimate on cold starts: 4% with fewer than
// two bars, 2% with fewer than period+1.
func ATR(candles []database.Candle, period int) float64 {
	if period <= 0 {
		period = DefaultATRPeriod
	}
	n := len(candles)
	if n == 0 {
		return 0
	}
	last := candles[n-1].Close
	if n < 2 {
		return last * 0.04
	}
	if n < period+1 {
		return last * 0.02
	}

	var sum float64
	start := n - period
	for i := start; i < n; i++ {
		high := candles[i].High
		low := candles[i].Low
		prevClose := candles[i-1].Close

		tr := high - low
		if d := math.Abs(high - prevClose); d > tr {
			tr = d
		}
		if d := math.Abs(low - prevClose); d > tr {
			tr = d
		}
		sum += tr
	}
	return sum / float64(period)
}

// VolumeRatio compares the newest bar's volume against the average of
// the bars before it. Returns 1 when there is no meaningful history.
func VolumeRatio(candles []database.Candle) float64 {
	n := len(candles)
	if n < 2 {
		return 1
	}

	var sum float64
	for _, c := range candles[:n-1] {
		sum += c.Volume
	}
	avg := sum / float64(n-1)
	if avg <= 0 {
		return 1
	}
	return candles[n-1].Volume / avg
}

// CVDMomentum is the change of cumulative delta across a flow window
// sorted ascending by bucket.
func CVDMomentum(flows []database.OrderFlowRow) float64 {
	if len(flows) < 2 {
		return 0
	}
	return flows[len(flows)-1].CumulativeDelta - flows[0].CumulativeDelta
}
