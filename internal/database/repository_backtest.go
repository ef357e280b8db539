package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// ============================================================
// BACKTEST RUNS
// ============================================================

// CreateBacktestRun registers a run before the replay starts.
func (r *Repository) CreateBacktestRun(ctx context.Context, run *BacktestRun) error {
	query := `
		INSERT INTO backtest_runs (id, mode, start_date, end_date, initial_capital, params)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at`
	if err := r.db.Pool.QueryRow(ctx, query,
		run.ID, run.Mode, run.StartDate, run.EndDate, run.InitialCapital, run.Params).Scan(&run.CreatedAt); err != nil {
		return fmt.Errorf("failed to create backtest run: %w", err)
	}
	return nil
}

// FinishBacktestRun writes the run summary after the replay completes.
func (r *Repository) FinishBacktestRun(ctx context.Context, run *BacktestRun) error {
	query := `
		UPDATE backtest_runs SET
			final_equity = $2,
			total_trades = $3,
			win_rate = $4,
			profit_factor = $5,
			sharpe_ratio = $6,
			max_drawdown_pct = $7,
			signals_generated = $8,
			signals_blocked = $9,
			finished_at = NOW()
		WHERE id = $1`
	if _, err := r.db.Pool.Exec(ctx, query,
		run.ID, run.FinalEquity, run.TotalTrades, run.WinRate, run.ProfitFactor,
		run.SharpeRatio, run.MaxDrawdownPct, run.SignalsGenerated, run.SignalsBlocked); err != nil {
		return fmt.Errorf("failed to finish backtest run: %w", err)
	}
	return nil
}

// GetBacktestRun returns one run summary.
func (r *Repository) GetBacktestRun(ctx context.Context, id string) (*BacktestRun, error) {
	query := `
		SELECT id, mode, start_date, end_date, initial_capital, final_equity, total_trades,
		       win_rate, profit_factor, sharpe_ratio, max_drawdown_pct, signals_generated,
		       signals_blocked, params, created_at, finished_at
		FROM backtest_runs
		WHERE id = $1`
	var run BacktestRun
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&run.ID, &run.Mode, &run.StartDate, &run.EndDate, &run.InitialCapital, &run.FinalEquity,
		&run.TotalTrades, &run.WinRate, &run.ProfitFactor, &run.SharpeRatio, &run.MaxDrawdownPct,
		&run.SignalsGenerated, &run.SignalsBlocked, &run.Params, &run.CreatedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get backtest run: %w", err)
	}
	return &run, nil
}

// SaveTradesBatch appends all trades of a run in one transaction.
func (r *Repository) SaveTradesBatch(ctx context.Context, trades []TradeRow) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin trades tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO trades (run_id, symbol_id, side, qty, entry_price, entry_time, exit_price, exit_time,
			exit_reason, pnl, pnl_pct, mae, mfe, bars_held, state_at_entry, aggression_at_entry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	for _, t := range trades {
		if _, err := tx.Exec(ctx, query,
			t.RunID, t.SymbolID, t.Side, t.Qty, t.EntryPrice, t.EntryTime, t.ExitPrice, t.ExitTime,
			t.ExitReason, t.PnL, t.PnLPct, t.MAE, t.MFE, t.BarsHeld, t.StateAtEntry, t.AggressionAtEntry); err != nil {
			return fmt.Errorf("failed to insert trade batch row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit trades tx: %w", err)
	}
	return nil
}

// SaveEquityCurveBatch appends a run's equity samples in one transaction.
func (r *Repository) SaveEquityCurveBatch(ctx context.Context, points []EquityPoint) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin equity tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO equity_curve (run_id, time, equity, cash, open_positions)
		VALUES ($1, $2, $3, $4, $5)`
	for _, p := range points {
		if _, err := tx.Exec(ctx, query, p.RunID, p.Time, p.Equity, p.Cash, p.OpenPositions); err != nil {
			return fmt.Errorf("failed to insert equity point: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit equity tx: %w", err)
	}
	return nil
}

// GetTradesByRun returns a run's trades ordered by exit time.
func (r *Repository) GetTradesByRun(ctx context.Context, runID string) ([]TradeRow, error) {
	query := `
		SELECT t.id, t.run_id, t.symbol_id, sym.symbol, t.side, t.qty, t.entry_price, t.entry_time,
		       t.exit_price, t.exit_time, t.exit_reason, t.pnl, t.pnl_pct, t.mae, t.mfe, t.bars_held,
		       t.state_at_entry, t.aggression_at_entry
		FROM trades t
		JOIN symbols sym ON sym.id = t.symbol_id
		WHERE t.run_id = $1
		ORDER BY t.exit_time ASC`
	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query run trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}
