package profile

import (
	"math"
	"testing"
	"time"

	"auction-market-bot/internal/database"
)

func TestAggregateTicksUptickRule(t *testing.T) {
	base := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	ticks := []database.Tick{
		{Time: base, Price: 100, Size: 10},
		{Time: base.Add(1 * time.Second), Price: 101, Size: 20},
		{Time: base.Add(2 * time.Second), Price: 101, Size: 5},
		{Time: base.Add(3 * time.Second), Price: 100, Size: 15},
		{Time: base.Add(4 * time.Second), Price: 102, Size: 8},
	}

	levels := AggregateTicks(ticks)

	var buy, sell, total float64
	for _, lv := range levels {
		buy += lv.Buy
		sell += lv.Sell
		total += lv.Total
	}

	// First tick 50/50, uptick 20 buy, flat 5 splits 2/3 with the odd
	// share on the sell side, downtick 15 sell, uptick 8 buy.
	if buy != 35 {
		t.Errorf("aggressive buys = %v, want 35", buy)
	}
	if sell != 23 {
		t.Errorf("aggressive sells = %v, want 23", sell)
	}
	if total != 58 {
		t.Errorf("total volume = %v, want 58", total)
	}
	if delta := buy - sell; delta != 12 {
		t.Errorf("delta = %v, want +12", delta)
	}
}

func TestAggregateTicksLevelInvariant(t *testing.T) {
	base := time.Date(2024, 3, 1, 9, 30, 0, 0, time.UTC)
	ticks := []database.Tick{
		{Time: base, Price: 50.25, Size: 7},
		{Time: base.Add(time.Second), Price: 50.25, Size: 9},
		{Time: base.Add(2 * time.Second), Price: 50.30, Size: 3},
	}

	for _, lv := range AggregateTicks(ticks) {
		if lv.Buy+lv.Sell != lv.Total {
			t.Errorf("level %v: buy %v + sell %v != total %v", lv.Price, lv.Buy, lv.Sell, lv.Total)
		}
	}
}

func TestCandleProfileMetrics(t *testing.T) {
	bucket := time.Date(2024, 3, 1, 15, 0, 0, 0, time.UTC)
	candles := []database.Candle{
		{Time: bucket, Open: 100, High: 102, Low: 100, Close: 101, Volume: 100},
		{Time: bucket, Open: 101, High: 103, Low: 101, Close: 102, Volume: 300},
		{Time: bucket, Open: 101, High: 101, Low: 100, Close: 100, Volume: 50},
	}

	m := ComputeFromCandles(candles, DefaultParams())

	if math.Abs(m.TotalVolume-450) > 1e-6 {
		t.Errorf("total volume = %v, want 450", m.TotalVolume)
	}
	if m.POC < 101 || m.POC > 102 {
		t.Errorf("POC = %v, want within [101, 102]", m.POC)
	}
	if m.VAL > 100 {
		t.Errorf("VAL = %v, want <= 100", m.VAL)
	}
	if m.VAH < 102 {
		t.Errorf("VAH = %v, want >= 102", m.VAH)
	}
	if !(m.VAL <= m.POC && m.POC <= m.VAH) {
		t.Errorf("VAL %v <= POC %v <= VAH %v violated", m.VAL, m.POC, m.VAH)
	}
}

func TestComputeMetricsPOCTieBreaksLow(t *testing.T) {
	levels := []Level{
		{Price: 100, Total: 50},
		{Price: 101, Total: 50},
		{Price: 102, Total: 10},
	}
	m := ComputeMetrics(levels, DefaultParams())
	if m.POC != 100 {
		t.Errorf("POC = %v, want 100 (lowest price on tie)", m.POC)
	}
}

func TestComputeMetricsValueAreaTieExpandsUp(t *testing.T) {
	// Neighbors of the POC carry equal volume; the expansion must go up
	// first so runs stay deterministic.
	levels := []Level{
		{Price: 99, Total: 20},
		{Price: 100, Total: 100},
		{Price: 101, Total: 20},
		{Price: 102, Total: 5},
	}
	m := ComputeMetrics(levels, DefaultParams())
	if m.POC != 100 {
		t.Fatalf("POC = %v, want 100", m.POC)
	}
	// Target is 70% of 145 = 101.5; POC alone is 100, first expansion
	// must pick 101 over 99.
	if m.VAH != 101 {
		t.Errorf("VAH = %v, want 101 (tie expands upward)", m.VAH)
	}
	if m.VAL != 100 {
		t.Errorf("VAL = %v, want 100", m.VAL)
	}
}

func TestComputeMetricsValueAreaCoverage(t *testing.T) {
	levels := []Level{
		{Price: 98, Total: 5},
		{Price: 99, Total: 30},
		{Price: 100, Total: 60},
		{Price: 101, Total: 40},
		{Price: 102, Total: 15},
	}
	m := ComputeMetrics(levels, DefaultParams())

	var inArea float64
	for _, lv := range levels {
		if lv.Price >= m.VAL && lv.Price <= m.VAH {
			inArea += lv.Total
		}
	}
	if inArea < 0.70*m.TotalVolume {
		t.Errorf("value area holds %v of %v, want >= 70%%", inArea, m.TotalVolume)
	}
	if !(m.VAL <= m.POC && m.POC <= m.VAH) {
		t.Errorf("VAL %v <= POC %v <= VAH %v violated", m.VAL, m.POC, m.VAH)
	}
}

func TestComputeMetricsVolumeNodes(t *testing.T) {
	// Mean is 40: LVN below 12, HVN above 60.
	levels := []Level{
		{Price: 99, Total: 5},
		{Price: 100, Total: 100},
		{Price: 101, Total: 40},
		{Price: 102, Total: 15},
	}
	m := ComputeMetrics(levels, DefaultParams())

	if len(m.LVNs) != 1 || m.LVNs[0] != 99 {
		t.Errorf("LVNs = %v, want [99]", m.LVNs)
	}
	if len(m.HVNs) != 1 || m.HVNs[0] != 100 {
		t.Errorf("HVNs = %v, want [100]", m.HVNs)
	}
}

func TestAggregateCandlesEmptyAndDegenerate(t *testing.T) {
	if levels := AggregateCandles(nil, 10, 0.10); len(levels) != 0 {
		t.Errorf("expected no levels for empty input, got %d", len(levels))
	}

	// Zero-range candle lands all volume on one level.
	candles := []database.Candle{
		{Open: 100, High: 100, Low: 100, Close: 100, Volume: 42},
	}
	levels := AggregateCandles(candles, 10, 0.10)
	if len(levels) != 1 {
		t.Fatalf("expected a single level, got %d", len(levels))
	}
	if math.Abs(levels[0].Total-42) > 1e-6 {
		t.Errorf("level total = %v, want 42", levels[0].Total)
	}
}
