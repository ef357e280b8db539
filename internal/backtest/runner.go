package backtest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"auction-market-bot/internal/database"
	"auction-market-bot/internal/logging"
)

type runStore interface {
	GetSymbolID(ctx context.Context, symbol string) (int, error)
	GetCandlesRange(ctx context.Context, symbolID int, start, end time.Time) ([]database.Candle, error)
	ListSymbols(ctx context.Context) ([]database.Symbol, error)
	CreateBacktestRun(ctx context.Context, run *database.BacktestRun) error
	FinishBacktestRun(ctx context.Context, run *database.BacktestRun) error
	SaveTradesBatch(ctx context.Context, trades []database.TradeRow) error
	SaveEquityCurveBatch(ctx context.Context, points []database.EquityPoint) error
}

// Runner loads candles from storage, replays them and persists the run.
type Runner struct {
	store  runStore
	engine *Engine
	logger zerolog.Logger
}

// NewRunner creates a runner over the store.
func NewRunner(store runStore, engine *Engine) *Runner {
	return &Runner{store: store, engine: engine, logger: logging.Component("backtest_runner")}
}

// AllSymbols returns every symbol known to storage.
func (r *Runner) AllSymbols(ctx context.Context) ([]string, error) {
	rows, err := r.store.ListSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	symbols := make([]string, 0, len(rows))
	for _, row := range rows {
		symbols = append(symbols, row.Symbol)
	}
	return symbols, nil
}

// Execute runs the backtest over the symbols and persists run, trades
// and equity curve.
func (r *Runner) Execute(ctx context.Context, symbols []string) (*Result, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("no symbols requested")
	}

	symbolIDs := make(map[string]int, len(symbols))
	data := make(map[string][]database.Candle, len(symbols))
	for _, symbol := range symbols {
		id, err := r.store.GetSymbolID(ctx, symbol)
		if err != nil {
			return nil, fmt.Errorf("unknown symbol %s: %w", symbol, err)
		}
		candles, err := r.store.GetCandlesRange(ctx, id, r.engine.cfg.Start, r.engine.cfg.End)
		if err != nil {
			return nil, fmt.Errorf("failed to load candles for %s: %w", symbol, err)
		}
		if len(candles) == 0 {
			r.logger.Warn().Str("symbol", symbol).Msg("no candles in range, skipping")
			continue
		}
		symbolIDs[symbol] = id
		data[symbol] = candles
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no candle data for any requested symbol")
	}

	result, err := r.engine.Run(data)
	if err != nil {
		return nil, err
	}

	run := result.Run
	if err := r.store.CreateBacktestRun(ctx, &run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}

	runID := run.ID
	tradeRows := make([]database.TradeRow, 0, len(result.Trades))
	for _, t := range result.Trades {
		tradeRows = append(tradeRows, database.TradeRow{
			RunID:             &runID,
			SymbolID:          symbolIDs[t.Symbol],
			Side:              t.Side,
			Qty:               t.Qty,
			EntryPrice:        t.EntryPrice,
			EntryTime:         t.EntryTime,
			ExitPrice:         t.ExitPrice,
			ExitTime:          t.ExitTime,
			ExitReason:        t.ExitReason,
			PnL:               t.PnL,
			PnLPct:            t.PnLPct,
			MAE:               t.MAE,
			MFE:               t.MFE,
			BarsHeld:          t.BarsHeld,
			StateAtEntry:      t.StateAtEntry,
			AggressionAtEntry: t.AggressionAtEntry,
		})
	}
	if err := r.store.SaveTradesBatch(ctx, tradeRows); err != nil {
		return nil, fmt.Errorf("failed to save trades: %w", err)
	}
	if err := r.store.SaveEquityCurveBatch(ctx, result.Equity); err != nil {
		return nil, fmt.Errorf("failed to save equity curve: %w", err)
	}
	if err := r.store.FinishBacktestRun(ctx, &run); err != nil {
		return nil, fmt.Errorf("failed to finish run: %w", err)
	}

	r.logger.Info().
		Str("run_id", run.ID).
		Int("trades", run.TotalTrades).
		Float64("final_equity", run.FinalEquity).
		Float64("win_rate", run.WinRate).
		Msg("backtest complete")
	return result, nil
}
