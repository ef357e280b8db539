// Package backtest replays stored candles through the live strategy
// with simulated fills. The replay is deterministic: identical inputs
// produce identical trade logs.
package backtest

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"auction-market-bot/internal/aggression"
	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
	"auction-market-bot/internal/marketstate"
	"auction-market-bot/internal/portfolio"
	"auction-market-bot/internal/profile"
	"auction-market-bot/internal/risk"
	"auction-market-bot/internal/strategy"
)

// Replay modes.
const (
	ModePortfolio  = "portfolio"  // shared capital, risk gates on
	ModeIndividual = "individual" // one symbol, full capital
	ModeUnlimited  = "unlimited"  // gates off, signal ceiling report
)

// ExitEndOfBacktest closes whatever is still open at the end of range.
const ExitEndOfBacktest = "End of Backtest"

const (
	profileWindow       = 30  // rolling candles per profile fallback
	equitySnapshotEvery = 100 // timestamps between equity samples
)

// Config tunes one run.
type Config struct {
	Mode            string
	Start           time.Time
	End             time.Time
	InitialCapital  float64
	MaxPositions    int
	RiskPerTradePct float64
	Strategy        strategy.Params
	Detector        marketstate.Params
	Profile         profile.Params
	ATRPeriod       int
}

// Result is everything one replay produced.
type Result struct {
	Run    database.BacktestRun
	Trades []portfolio.Trade
	Equity []database.EquityPoint

	SignalsBySymbol map[string]int
	BlockedBySymbol map[string]int
}

// Engine replays candles through the strategy.
type Engine struct {
	cfg    Config
	logger zerolog.Logger
}

// NewEngine creates a backtest engine.
func NewEngine(cfg Config) *Engine {
	if cfg.Mode == "" {
		cfg.Mode = ModePortfolio
	}
	if cfg.MaxPositions <= 0 {
		cfg.MaxPositions = 5
	}
	if cfg.RiskPerTradePct <= 0 {
		cfg.RiskPerTradePct = 1.0
	}
	if cfg.InitialCapital <= 0 {
		cfg.InitialCapital = 100000
	}
	cfg.Strategy.RiskPerTradePct = cfg.RiskPerTradePct
	cfg.Strategy.MaxPositions = cfg.MaxPositions
	return &Engine{cfg: cfg, logger: logging.Component("backtest")}
}

// symbolSeries is a symbol's candles indexed for the replay.
type symbolSeries struct {
	symbol  string
	candles []database.Candle
	// cursor of the last bar at or before the current timestamp
	pos int
	// synthetic flow history derived from candle color
	flows []database.OrderFlowRow
	cvd   float64
}

// syntheticFlow approximates aggressor flow from a candle the same way
// the live profile candle path splits volume 60/40 by color.
func (s *symbolSeries) syntheticFlow(c database.Candle) database.OrderFlowRow {
	buy := c.Volume * 0.6
	sell := c.Volume - buy
	if c.Close < c.Open {
		buy, sell = sell, buy
	}
	delta := buy - sell
	s.cvd += delta

	total := c.Volume
	if total < 1 {
		total = 1
	}
	return database.OrderFlowRow{
		Bucket:          c.Time,
		Delta:           delta,
		CumulativeDelta: s.cvd,
		AggressiveBuys:  buy,
		AggressiveSells: sell,
		BuyPressure:     buy / total * 100,
		SellPressure:    sell / total * 100,
	}
}

// Run replays the candle sets. data maps symbol to its ascending bars;
// bars outside [Start, End) are ignored.
func (e *Engine) Run(data map[string][]database.Candle) (*Result, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("no candle data supplied")
	}

	// Deterministic order: merge timestamps, then visit symbols
	// alphabetically within each.
	series := make([]*symbolSeries, 0, len(data))
	timestampSet := make(map[int64]struct{})
	for symbol, candles := range data {
		filtered := make([]database.Candle, 0, len(candles))
		for _, c := range candles {
			if (e.cfg.Start.IsZero() || !c.Time.Before(e.cfg.Start)) &&
				(e.cfg.End.IsZero() || c.Time.Before(e.cfg.End)) {
				filtered = append(filtered, c)
			}
		}
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Time.Before(filtered[j].Time) })
		if len(filtered) == 0 {
			continue
		}
		series = append(series, &symbolSeries{symbol: symbol, candles: filtered, pos: -1})
		for _, c := range filtered {
			timestampSet[c.Time.UnixNano()] = struct{}{}
		}
	}
	if len(series) == 0 {
		return nil, fmt.Errorf("no candles inside the requested range")
	}
	sort.Slice(series, func(i, j int) bool { return series[i].symbol < series[j].symbol })

	timestamps := make([]int64, 0, len(timestampSet))
	for ts := range timestampSet {
		timestamps = append(timestamps, ts)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })

	pf := portfolio.New(e.cfg.InitialCapital)
	rm := risk.NewManager(risk.Config{
		MaxDailyLossPct:   100, // backtests do not stop on daily loss
		MinAccountBalance: 0,
		MaxPositions:      e.cfg.MaxPositions,
	})
	rm.UpdateAccount(e.cfg.InitialCapital, false, false)

	runID := uuid.NewString()
	var equity []database.EquityPoint
	lastClose := make(map[string]float64)

	snapshotCounter := 0
	for _, tsNano := range timestamps {
		ts := time.Unix(0, tsNano).UTC()

		for _, s := range series {
			// advance the cursor to this timestamp
			next := s.pos + 1
			if next >= len(s.candles) || !s.candles[next].Time.Equal(ts) {
				continue
			}
			s.pos = next
			bar := s.candles[next]
			s.flows = append(s.flows, s.syntheticFlow(bar))
			if len(s.flows) > profileWindow {
				s.flows = s.flows[1:]
			}
			lastClose[s.symbol] = bar.Close

			e.step(pf, rm, s, bar, ts)
		}

		snapshotCounter++
		if snapshotCounter%equitySnapshotEvery == 0 {
			equity = append(equity, database.EquityPoint{
				RunID:         runID,
				Time:          ts,
				Equity:        pf.Equity(lastClose),
				Cash:          pf.Cash(),
				OpenPositions: pf.OpenCount(),
			})
		}
	}

	// Force-close whatever survived the range at its last close.
	endTime := time.Unix(0, timestamps[len(timestamps)-1]).UTC()
	for _, symbol := range pf.Symbols() {
		price := lastClose[symbol]
		if _, err := pf.Close(symbol, price, endTime, ExitEndOfBacktest); err != nil {
			e.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to force close")
		}
	}
	equity = append(equity, database.EquityPoint{
		RunID:  runID,
		Time:   endTime,
		Equity: pf.Equity(lastClose),
		Cash:   pf.Cash(),
	})

	trades := pf.Trades()
	generated, blocked := pf.SignalCounts()
	genBySym, blockedBySym := pf.SignalCountsBySymbol()

	params, _ := json.Marshal(e.cfg.Strategy)
	run := database.BacktestRun{
		ID:               runID,
		Mode:             e.cfg.Mode,
		StartDate:        e.cfg.Start,
		EndDate:          e.cfg.End,
		InitialCapital:   e.cfg.InitialCapital,
		FinalEquity:      pf.Equity(lastClose),
		TotalTrades:      len(trades),
		WinRate:          WinRate(trades),
		ProfitFactor:     ProfitFactor(trades),
		SharpeRatio:      Sharpe(trades),
		MaxDrawdownPct:   MaxDrawdownPct(equity, e.cfg.InitialCapital),
		SignalsGenerated: generated,
		SignalsBlocked:   blocked,
		Params:           params,
	}

	return &Result{
		Run:             run,
		Trades:          trades,
		Equity:          equity,
		SignalsBySymbol: genBySym,
		BlockedBySymbol: blockedBySym,
	}, nil
}

// step processes one bar for one symbol: position upkeep, exits, then a
// possible entry.
func (e *Engine) step(pf *portfolio.Portfolio, rm *risk.Manager, s *symbolSeries, bar database.Candle, ts time.Time) {
	symbol := s.symbol
	price := bar.Close

	window := s.candles[:s.pos+1]
	if len(window) > profileWindow {
		window = window[len(window)-profileWindow:]
	}
	metrics := profile.ComputeFromCandles(window, e.cfg.Profile)
	pm := &database.ProfileMetrics{
		POC: metrics.POC, VAH: metrics.VAH, VAL: metrics.VAL, TotalVolume: metrics.TotalVolume,
	}

	closes := make([]float64, len(window))
	for i, c := range window {
		closes[i] = c.Close
	}
	flow := s.flows[len(s.flows)-1]
	obs := marketstate.Classify(price, pm, closes, &flow, e.cfg.Detector)

	cvdMomentum := strategy.CVDMomentum(s.flows)
	volumeRatio := strategy.VolumeRatio(window)
	flowDir := aggression.Score(aggression.Inputs{
		VolumeRatio:  volumeRatio,
		CVDMomentum:  cvdMomentum,
		BuyPressure:  flow.BuyPressure,
		SellPressure: flow.SellPressure,
	}).Direction

	pf.UpdateBar(symbol, price)
	if pos, open := pf.Get(symbol); open {
		if exit, reason := strategy.EvaluateExit(pos.Side, pos.StopLoss, pos.TakeProfit, price, obs.State, flowDir); exit {
			if _, err := pf.Close(symbol, price, ts, reason); err != nil {
				e.logger.Error().Err(err).Str("symbol", symbol).Msg("failed to close position")
			}
		}
		return
	}

	in := strategy.Inputs{
		Symbol:       symbol,
		MarketState:  obs.State,
		Confidence:   obs.Confidence,
		BuyPressure:  flow.BuyPressure,
		SellPressure: flow.SellPressure,
		CVDMomentum:  cvdMomentum,
		VolumeRatio:  volumeRatio,
		Price:        price,
		ATR:          strategy.ATR(window, e.cfg.ATRPeriod),
	}
	signal, _ := strategy.EvaluateEntry(in, e.cfg.Strategy)
	if signal == nil {
		return
	}
	pf.RecordSignalGenerated(symbol)

	if e.cfg.Mode != ModeUnlimited {
		rm.UpdateAccount(pf.Equity(nil), false, false)
		if ok, _ := rm.CanOpenPosition(symbol, pf.OpenCount(), pf.HasPosition(symbol)); !ok {
			pf.RecordSignalBlocked(symbol)
			return
		}
	}

	qty := strategy.PositionSize(pf.Equity(nil), pf.Cash(), signal.EntryPrice, signal.StopLoss, e.cfg.RiskPerTradePct)
	if qty <= 0 {
		pf.RecordSignalBlocked(symbol)
		return
	}

	if _, err := pf.Open(portfolio.Position{
		Symbol:            symbol,
		Side:              signal.Side,
		Qty:               qty,
		EntryPrice:        signal.EntryPrice,
		EntryTime:         ts,
		StopLoss:          signal.StopLoss,
		TakeProfit:        signal.TakeProfit,
		EntryReason:       signal.Reason,
		StateAtEntry:      signal.MarketState,
		AggressionAtEntry: signal.AggressionScore,
	}, portfolio.StatusOpen); err != nil {
		pf.RecordSignalBlocked(symbol)
	}
}

// WinRate is the percent of trades with positive pnl.
func WinRate(trades []portfolio.Trade) float64 {
	if len(trades) == 0 {
		return 0
	}
	wins := 0
	for _, t := range trades {
		if t.PnL > 0 {
			wins++
		}
	}
	return float64(wins) / float64(len(trades)) * 100
}

// ProfitFactor is gross profit over gross loss. All-winning trade sets
// report 0 loss as factor 0 to avoid infinities in storage.
func ProfitFactor(trades []portfolio.Trade) float64 {
	var profit, loss float64
	for _, t := range trades {
		if t.PnL > 0 {
			profit += t.PnL
		} else {
			loss -= t.PnL
		}
	}
	if loss == 0 {
		return 0
	}
	return profit / loss
}

// Sharpe is the annualized per-trade Sharpe ratio: mean over standard
// deviation of per-trade percent returns, scaled by sqrt(252).
func Sharpe(trades []portfolio.Trade) float64 {
	if len(trades) < 2 {
		return 0
	}
	var sum float64
	for _, t := range trades {
		sum += t.PnLPct
	}
	mean := sum / float64(len(trades))

	var variance float64
	for _, t := range trades {
		d := t.PnLPct - mean
		variance += d * d
	}
	variance /= float64(len(trades))
	std := math.Sqrt(variance)
	if std == 0 {
		return 0
	}
	return mean / std * math.Sqrt(252)
}

// MaxDrawdownPct is the worst peak-to-trough equity drop in percent.
func MaxDrawdownPct(equity []database.EquityPoint, initialCapital float64) float64 {
	peak := initialCapital
	var maxDD float64
	for _, p := range equity {
		if p.Equity > peak {
			peak = p.Equity
		}
		if peak > 0 {
			dd := (peak - p.Equity) / peak * 100
			if dd > maxDD {
				maxDD = dd
			}
		}
	}
	return maxDD
}
