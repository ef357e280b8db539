package database

import (
	"context"
	"fmt"
)

// ============================================================
// BINARY MARKETS
// ============================================================

// UpsertBinaryMarket registers or refreshes a YES/NO market.
func (r *Repository) UpsertBinaryMarket(ctx context.Context, m *BinaryMarket) error {
	query := `
		INSERT INTO binary_markets (market_id, symbol_id, question, category, yes_token_id, no_token_id, end_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (market_id) DO UPDATE SET
			question = EXCLUDED.question,
			category = EXCLUDED.category,
			yes_token_id = EXCLUDED.yes_token_id,
			no_token_id = EXCLUDED.no_token_id,
			end_date = EXCLUDED.end_date,
			status = EXCLUDED.status`
	if _, err := r.db.Pool.Exec(ctx, query,
		m.MarketID, m.SymbolID, m.Question, m.Category,
		m.YesTokenID, m.NoTokenID, m.EndDate, m.Status); err != nil {
		return fmt.Errorf("failed to upsert binary market: %w", err)
	}
	return nil
}

// ListActiveBinaryMarkets returns markets still open for trading.
func (r *Repository) ListActiveBinaryMarkets(ctx context.Context) ([]BinaryMarket, error) {
	query := `
		SELECT m.market_id, m.symbol_id, sym.symbol, m.question, m.category,
		       m.yes_token_id, m.no_token_id, m.end_date, m.status
		FROM binary_markets m
		JOIN symbols sym ON sym.id = m.symbol_id
		WHERE m.status = $1 AND m.end_date > NOW()
		ORDER BY m.end_date ASC`
	rows, err := r.db.Pool.Query(ctx, query, MarketStatusActive)
	if err != nil {
		return nil, fmt.Errorf("failed to list binary markets: %w", err)
	}
	defer rows.Close()

	var out []BinaryMarket
	for rows.Next() {
		var m BinaryMarket
		if err := rows.Scan(&m.MarketID, &m.SymbolID, &m.Symbol, &m.Question, &m.Category,
			&m.YesTokenID, &m.NoTokenID, &m.EndDate, &m.Status); err != nil {
			return nil, fmt.Errorf("failed to scan binary market: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ============================================================
// BINARY PRICES
// ============================================================

// UpsertBinaryPrice writes one fused quote observation.
func (r *Repository) UpsertBinaryPrice(ctx context.Context, p *BinaryPriceRow) error {
	query := `
		INSERT INTO binary_prices (timestamp, symbol_id, yes_bid, yes_ask, yes_mid, no_bid, no_ask, no_mid, spread, arbitrage, estimated_profit_pct)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (timestamp, symbol_id) DO UPDATE SET
			yes_bid = EXCLUDED.yes_bid,
			yes_ask = EXCLUDED.yes_ask,
			yes_mid = EXCLUDED.yes_mid,
			no_bid = EXCLUDED.no_bid,
			no_ask = EXCLUDED.no_ask,
			no_mid = EXCLUDED.no_mid,
			spread = EXCLUDED.spread,
			arbitrage = EXCLUDED.arbitrage,
			estimated_profit_pct = EXCLUDED.estimated_profit_pct`
	if _, err := r.db.Pool.Exec(ctx, query,
		p.Timestamp, p.SymbolID, p.YesBid, p.YesAsk, p.YesMid,
		p.NoBid, p.NoAsk, p.NoMid, p.Spread, p.Arbitrage, p.EstimatedProfitPct); err != nil {
		return fmt.Errorf("failed to upsert binary price: %w", err)
	}
	return nil
}

// ListRecentArbitrageOpportunities returns recent rows flagged as arbitrage.
func (r *Repository) ListRecentArbitrageOpportunities(ctx context.Context, limit int) ([]BinaryPriceRow, error) {
	query := `
		SELECT timestamp, symbol_id, yes_bid, yes_ask, yes_mid, no_bid, no_ask, no_mid, spread, arbitrage, estimated_profit_pct
		FROM binary_prices
		WHERE arbitrage = TRUE
		ORDER BY timestamp DESC
		LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list arbitrage opportunities: %w", err)
	}
	defer rows.Close()

	var out []BinaryPriceRow
	for rows.Next() {
		var p BinaryPriceRow
		if err := rows.Scan(&p.Timestamp, &p.SymbolID, &p.YesBid, &p.YesAsk, &p.YesMid,
			&p.NoBid, &p.NoAsk, &p.NoMid, &p.Spread, &p.Arbitrage, &p.EstimatedProfitPct); err != nil {
			return nil, fmt.Errorf("failed to scan binary price: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================
// BINARY POSITIONS
// ============================================================

// CreateBinaryPosition persists a paired YES+NO entry and fills in its id.
func (r *Repository) CreateBinaryPosition(ctx context.Context, p *BinaryPositionRow) error {
	query := `
		INSERT INTO binary_positions (market_id, symbol_id, yes_qty, no_qty, yes_entry, no_entry, entry_spread, status, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, query,
		p.MarketID, p.SymbolID, p.YesQty, p.NoQty, p.YesEntry, p.NoEntry,
		p.EntrySpread, p.Status, p.OpenedAt).Scan(&p.ID); err != nil {
		return fmt.Errorf("failed to create binary position: %w", err)
	}
	return nil
}

// CloseBinaryPosition records the exit spread and realized pnl.
func (r *Repository) CloseBinaryPosition(ctx context.Context, id int64, exitSpread, realizedPnL float64) error {
	query := `
		UPDATE binary_positions SET
			status = $2,
			closed_at = NOW(),
			exit_spread = $3,
			realized_pnl = $4
		WHERE id = $1`
	if _, err := r.db.Pool.Exec(ctx, query, id, BinaryStatusClosed, exitSpread, realizedPnL); err != nil {
		return fmt.Errorf("failed to close binary position: %w", err)
	}
	return nil
}

// GetOpenBinaryPositions returns all open paired holdings.
func (r *Repository) GetOpenBinaryPositions(ctx context.Context) ([]BinaryPositionRow, error) {
	query := `
		SELECT id, market_id, symbol_id, yes_qty, no_qty, yes_entry, no_entry, entry_spread,
		       status, opened_at, closed_at, exit_spread, realized_pnl
		FROM binary_positions
		WHERE status = $1
		ORDER BY opened_at ASC`
	rows, err := r.db.Pool.Query(ctx, query, BinaryStatusOpen)
	if err != nil {
		return nil, fmt.Errorf("failed to query open binary positions: %w", err)
	}
	defer rows.Close()

	var out []BinaryPositionRow
	for rows.Next() {
		var p BinaryPositionRow
		if err := rows.Scan(&p.ID, &p.MarketID, &p.SymbolID, &p.YesQty, &p.NoQty, &p.YesEntry, &p.NoEntry,
			&p.EntrySpread, &p.Status, &p.OpenedAt, &p.ClosedAt, &p.ExitSpread, &p.RealizedPnL); err != nil {
			return nil, fmt.Errorf("failed to scan binary position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetOpenBinaryExposure sums the cost basis of all open paired holdings.
func (r *Repository) GetOpenBinaryExposure(ctx context.Context) (float64, error) {
	var exposure float64
	query := `
		SELECT COALESCE(SUM(yes_qty * yes_entry + no_qty * no_entry), 0)
		FROM binary_positions
		WHERE status = $1`
	if err := r.db.Pool.QueryRow(ctx, query, BinaryStatusOpen).Scan(&exposure); err != nil {
		return 0, fmt.Errorf("failed to sum binary exposure: %w", err)
	}
	return exposure, nil
}

// HasOpenBinaryPosition reports whether a market already has an open pair.
func (r *Repository) HasOpenBinaryPosition(ctx context.Context, marketID string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS(SELECT 1 FROM binary_positions WHERE market_id = $1 AND status = $2)`
	if err := r.db.Pool.QueryRow(ctx, query, marketID, BinaryStatusOpen).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check binary position: %w", err)
	}
	return exists, nil
}
