// Package aggression scores how aggressively one side of the market is
// hitting the book, on a 0-100 scale fused from volume expansion, CVD
// momentum and pressure extremes.
package aggression

// Flow directions.
const (
	DirectionBuy     = "BUY"
	DirectionSell    = "SELL"
	DirectionNeutral = "NEUTRAL"
)

// AggressiveScoreFloor is the score at and above which flow counts as
// aggressive.
const AggressiveScoreFloor = 50

// Inputs are the raw measures the indicator fuses.
type Inputs struct {
	VolumeRatio  float64 // current bar volume over lookback average
	CVDMomentum  float64 // change of cumulative delta over the lookback
	BuyPressure  float64 // percent
	SellPressure float64 // percent
}

// Result is one indicator reading.
type Result struct {
	Score        float64
	Direction    string
	IsAggressive bool
}

// Score fuses the inputs into a 0-100 reading with a direction.
func Score(in Inputs) Result {
	var score float64

	switch {
	case in.VolumeRatio >= 3.0:
		score += 30
	case in.VolumeRatio >= 2.0:
		score += 20
	case in.VolumeRatio >= 1.5:
		score += 10
	}

	cvd := in.CVDMomentum
	if cvd < 0 {
		cvd = -cvd
	}
	switch {
	case cvd >= 2000:
		score += 40
	case cvd >= 1000:
		score += 30
	case cvd >= 500:
		score += 20
	case cvd >= 100:
		score += 10
	}

	maxPressure := in.BuyPressure
	if in.SellPressure > maxPressure {
		maxPressure = in.SellPressure
	}
	switch {
	case maxPressure >= 80:
		score += 30
	case maxPressure >= 70:
		score += 20
	case maxPressure >= 60:
		score += 10
	}

	direction := DirectionNeutral
	switch {
	case in.BuyPressure >= 70 || in.CVDMomentum > 500:
		direction = DirectionBuy
	case in.SellPressure >= 70 || in.CVDMomentum < -500:
		direction = DirectionSell
	}

	return Result{
		Score:        score,
		Direction:    direction,
		IsAggressive: score >= AggressiveScoreFloor,
	}
}
