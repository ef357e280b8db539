package orderflow

import (
	"math"
	"testing"
	"time"

	"auction-market-bot/internal/database"
)

var bucket = time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)

func TestComputeDelta(t *testing.T) {
	levels := []database.ProfileRow{
		{PriceLevel: 100, BuyVolume: 5, SellVolume: 20},
		{PriceLevel: 101, BuyVolume: 22, SellVolume: 3},
		{PriceLevel: 102, BuyVolume: 8, SellVolume: 0},
	}

	row := Compute(bucket, 1, levels, 0)

	if row.AggressiveBuys != 35 {
		t.Errorf("aggressive buys = %v, want 35", row.AggressiveBuys)
	}
	if row.AggressiveSells != 23 {
		t.Errorf("aggressive sells = %v, want 23", row.AggressiveSells)
	}
	if row.Delta != 12 {
		t.Errorf("delta = %v, want 12", row.Delta)
	}
	if row.CumulativeDelta != 12 {
		t.Errorf("cvd = %v, want 12 (seeded from 0)", row.CumulativeDelta)
	}

	wantBuy := 100.0 * 35 / 58
	if math.Abs(row.BuyPressure-wantBuy) > 1e-9 {
		t.Errorf("buy pressure = %v, want %v", row.BuyPressure, wantBuy)
	}
	if math.Abs(row.BuyPressure+row.SellPressure-100) > 1e-9 {
		t.Errorf("pressures sum to %v, want 100", row.BuyPressure+row.SellPressure)
	}
}

func TestComputeChainsCVD(t *testing.T) {
	levels := []database.ProfileRow{
		{PriceLevel: 100, BuyVolume: 10, SellVolume: 40},
	}

	row := Compute(bucket, 1, levels, 150)

	if row.Delta != -30 {
		t.Errorf("delta = %v, want -30", row.Delta)
	}
	if row.CumulativeDelta != 120 {
		t.Errorf("cvd = %v, want 120 (150 + -30)", row.CumulativeDelta)
	}
	if got := row.CumulativeDelta - 150; got != row.Delta {
		t.Errorf("cvd(t) - cvd(t-1) = %v, want delta %v", got, row.Delta)
	}
}

func TestComputeEmptyBucket(t *testing.T) {
	row := Compute(bucket, 1, nil, 77)

	if row.Delta != 0 || row.AggressiveBuys != 0 || row.AggressiveSells != 0 {
		t.Errorf("empty bucket flow = %+v, want zero delta and volumes", row)
	}
	if row.CumulativeDelta != 77 {
		t.Errorf("cvd = %v, want previous value 77", row.CumulativeDelta)
	}
	if row.BuyPressure != 50 || row.SellPressure != 50 {
		t.Errorf("pressures = %v/%v, want 50/50", row.BuyPressure, row.SellPressure)
	}
}
