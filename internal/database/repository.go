package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("row not found")

// Repository provides data access methods for all time-series tables.
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// ============================================================
// SYMBOLS
// ============================================================

// GetOrCreateSymbol returns the id for a symbol, registering it on first
// sighting. Symbols are never deleted while referenced.
func (r *Repository) GetOrCreateSymbol(ctx context.Context, symbol, exchange string) (int, error) {
	var id int
	query := `
		INSERT INTO symbols (symbol, exchange)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET symbol = EXCLUDED.symbol
		RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, query, symbol, exchange).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to get or create symbol %s: %w", symbol, err)
	}
	return id, nil
}

// GetSymbolID looks up an existing symbol id.
func (r *Repository) GetSymbolID(ctx context.Context, symbol string) (int, error) {
	var id int
	err := r.db.Pool.QueryRow(ctx, `SELECT id FROM symbols WHERE symbol = $1`, symbol).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get symbol id for %s: %w", symbol, err)
	}
	return id, nil
}

// ListSymbols returns all registered symbols ordered by name.
func (r *Repository) ListSymbols(ctx context.Context) ([]Symbol, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT id, symbol, exchange, created_at FROM symbols ORDER BY symbol`)
	if err != nil {
		return nil, fmt.Errorf("failed to list symbols: %w", err)
	}
	defer rows.Close()

	var symbols []Symbol
	for rows.Next() {
		var s Symbol
		if err := rows.Scan(&s.ID, &s.Symbol, &s.Exchange, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, s)
	}
	return symbols, rows.Err()
}

// ============================================================
// CANDLES
// ============================================================

// UpsertCandle writes a candle; last write wins per (time, symbol).
func (r *Repository) UpsertCandle(ctx context.Context, c *Candle) error {
	query := `
		INSERT INTO candles (time, symbol_id, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (time, symbol_id) DO UPDATE SET
			open = EXCLUDED.open,
			high = EXCLUDED.high,
			low = EXCLUDED.low,
			close = EXCLUDED.close,
			volume = EXCLUDED.volume`
	if _, err := r.db.Pool.Exec(ctx, query,
		c.Time, c.SymbolID, c.Open, c.High, c.Low, c.Close, c.Volume); err != nil {
		return fmt.Errorf("failed to upsert candle: %w", err)
	}
	return nil
}

// GetCandlesRange returns candles in [start, end] sorted ascending by time.
func (r *Repository) GetCandlesRange(ctx context.Context, symbolID int, start, end time.Time) ([]Candle, error) {
	query := `
		SELECT time, symbol_id, open, high, low, close, volume
		FROM candles
		WHERE symbol_id = $1 AND time >= $2 AND time <= $3
		ORDER BY time ASC`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// GetRecentCandles returns the newest n candles sorted ascending by time.
func (r *Repository) GetRecentCandles(ctx context.Context, symbolID, n int) ([]Candle, error) {
	query := `
		SELECT time, symbol_id, open, high, low, close, volume
		FROM (
			SELECT time, symbol_id, open, high, low, close, volume
			FROM candles
			WHERE symbol_id = $1
			ORDER BY time DESC
			LIMIT $2
		) recent
		ORDER BY time ASC`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent candles: %w", err)
	}
	defer rows.Close()
	return scanCandles(rows)
}

// GetLastPrice returns the most recent close for a symbol.
func (r *Repository) GetLastPrice(ctx context.Context, symbolID int) (float64, error) {
	var price float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT close FROM candles WHERE symbol_id = $1 ORDER BY time DESC LIMIT 1`,
		symbolID).Scan(&price)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last price: %w", err)
	}
	return price, nil
}

func scanCandles(rows pgx.Rows) ([]Candle, error) {
	var candles []Candle
	for rows.Next() {
		var c Candle
		if err := rows.Scan(&c.Time, &c.SymbolID, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan candle: %w", err)
		}
		candles = append(candles, c)
	}
	return candles, rows.Err()
}

// ============================================================
// TICKS
// ============================================================

// InsertTick stores a tick; the first print at (time, symbol, price) wins.
func (r *Repository) InsertTick(ctx context.Context, t *Tick) error {
	query := `
		INSERT INTO ticks (time, symbol_id, price, size, venue)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (time, symbol_id, price) DO NOTHING`
	if _, err := r.db.Pool.Exec(ctx, query, t.Time, t.SymbolID, t.Price, t.Size, t.Venue); err != nil {
		return fmt.Errorf("failed to insert tick: %w", err)
	}
	return nil
}

// GetTicksRange returns ticks in [start, end) sorted ascending by time.
func (r *Repository) GetTicksRange(ctx context.Context, symbolID int, start, end time.Time) ([]Tick, error) {
	query := `
		SELECT time, symbol_id, price, size, venue
		FROM ticks
		WHERE symbol_id = $1 AND time >= $2 AND time < $3
		ORDER BY time ASC`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query ticks: %w", err)
	}
	defer rows.Close()

	var ticks []Tick
	for rows.Next() {
		var t Tick
		if err := rows.Scan(&t.Time, &t.SymbolID, &t.Price, &t.Size, &t.Venue); err != nil {
			return nil, fmt.Errorf("failed to scan tick: %w", err)
		}
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// ============================================================
// VOLUME PROFILE
// ============================================================

// UpsertProfileRows writes all levels of one bucket's profile in a single
// transaction so readers never observe a half-written profile.
func (r *Repository) UpsertProfileRows(ctx context.Context, profileRows []ProfileRow) error {
	if len(profileRows) == 0 {
		return nil
	}

	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin profile tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO volume_profile (bucket, symbol_id, price_level, total_volume, buy_volume, sell_volume, trade_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (bucket, symbol_id, price_level) DO UPDATE SET
			total_volume = EXCLUDED.total_volume,
			buy_volume = EXCLUDED.buy_volume,
			sell_volume = EXCLUDED.sell_volume,
			trade_count = EXCLUDED.trade_count`
	for _, row := range profileRows {
		if _, err := tx.Exec(ctx, query,
			row.Bucket, row.SymbolID, row.PriceLevel,
			row.TotalVolume, row.BuyVolume, row.SellVolume, row.TradeCount); err != nil {
			return fmt.Errorf("failed to upsert profile row: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit profile tx: %w", err)
	}
	return nil
}

// GetProfileRows returns all levels of one bucket sorted by price.
func (r *Repository) GetProfileRows(ctx context.Context, symbolID int, bucket time.Time) ([]ProfileRow, error) {
	query := `
		SELECT bucket, symbol_id, price_level, total_volume, buy_volume, sell_volume, trade_count
		FROM volume_profile
		WHERE symbol_id = $1 AND bucket = $2
		ORDER BY price_level ASC`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile rows: %w", err)
	}
	defer rows.Close()

	var out []ProfileRow
	for rows.Next() {
		var p ProfileRow
		if err := rows.Scan(&p.Bucket, &p.SymbolID, &p.PriceLevel, &p.TotalVolume, &p.BuyVolume, &p.SellVolume, &p.TradeCount); err != nil {
			return nil, fmt.Errorf("failed to scan profile row: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// UpsertProfileMetrics writes the bucket's profile summary.
func (r *Repository) UpsertProfileMetrics(ctx context.Context, m *ProfileMetrics) error {
	lvns, err := json.Marshal(m.LVNs)
	if err != nil {
		return fmt.Errorf("failed to marshal lvns: %w", err)
	}
	hvns, err := json.Marshal(m.HVNs)
	if err != nil {
		return fmt.Errorf("failed to marshal hvns: %w", err)
	}

	query := `
		INSERT INTO profile_metrics (bucket, symbol_id, poc, vah, val, total_volume, lvns, hvns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bucket, symbol_id) DO UPDATE SET
			poc = EXCLUDED.poc,
			vah = EXCLUDED.vah,
			val = EXCLUDED.val,
			total_volume = EXCLUDED.total_volume,
			lvns = EXCLUDED.lvns,
			hvns = EXCLUDED.hvns`
	if _, err := r.db.Pool.Exec(ctx, query,
		m.Bucket, m.SymbolID, m.POC, m.VAH, m.VAL, m.TotalVolume, lvns, hvns); err != nil {
		return fmt.Errorf("failed to upsert profile metrics: %w", err)
	}
	return nil
}

// GetLatestProfileMetrics returns the newest metrics row for a symbol.
func (r *Repository) GetLatestProfileMetrics(ctx context.Context, symbolID int) (*ProfileMetrics, error) {
	query := `
		SELECT bucket, symbol_id, poc, vah, val, total_volume, lvns, hvns
		FROM profile_metrics
		WHERE symbol_id = $1
		ORDER BY bucket DESC
		LIMIT 1`
	m, err := r.scanProfileMetrics(r.db.Pool.QueryRow(ctx, query, symbolID))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetRecentProfileMetrics returns the newest n metrics rows, newest first.
func (r *Repository) GetRecentProfileMetrics(ctx context.Context, symbolID, n int) ([]ProfileMetrics, error) {
	query := `
		SELECT bucket, symbol_id, poc, vah, val, total_volume, lvns, hvns
		FROM profile_metrics
		WHERE symbol_id = $1
		ORDER BY bucket DESC
		LIMIT $2`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, n)
	if err != nil {
		return nil, fmt.Errorf("failed to query profile metrics: %w", err)
	}
	defer rows.Close()

	var out []ProfileMetrics
	for rows.Next() {
		var m ProfileMetrics
		var lvns, hvns []byte
		if err := rows.Scan(&m.Bucket, &m.SymbolID, &m.POC, &m.VAH, &m.VAL, &m.TotalVolume, &lvns, &hvns); err != nil {
			return nil, fmt.Errorf("failed to scan profile metrics: %w", err)
		}
		if len(lvns) > 0 {
			_ = json.Unmarshal(lvns, &m.LVNs)
		}
		if len(hvns) > 0 {
			_ = json.Unmarshal(hvns, &m.HVNs)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *Repository) scanProfileMetrics(row pgx.Row) (*ProfileMetrics, error) {
	var m ProfileMetrics
	var lvns, hvns []byte
	err := row.Scan(&m.Bucket, &m.SymbolID, &m.POC, &m.VAH, &m.VAL, &m.TotalVolume, &lvns, &hvns)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan profile metrics: %w", err)
	}
	if len(lvns) > 0 {
		_ = json.Unmarshal(lvns, &m.LVNs)
	}
	if len(hvns) > 0 {
		_ = json.Unmarshal(hvns, &m.HVNs)
	}
	return &m, nil
}

// ============================================================
// ORDER FLOW
// ============================================================

// UpsertOrderFlow writes a bucket's order-flow row.
func (r *Repository) UpsertOrderFlow(ctx context.Context, f *OrderFlowRow) error {
	query := `
		INSERT INTO order_flow (bucket, symbol_id, delta, cumulative_delta, aggressive_buys, aggressive_sells, buy_pressure, sell_pressure)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (bucket, symbol_id) DO UPDATE SET
			delta = EXCLUDED.delta,
			cumulative_delta = EXCLUDED.cumulative_delta,
			aggressive_buys = EXCLUDED.aggressive_buys,
			aggressive_sells = EXCLUDED.aggressive_sells,
			buy_pressure = EXCLUDED.buy_pressure,
			sell_pressure = EXCLUDED.sell_pressure`
	if _, err := r.db.Pool.Exec(ctx, query,
		f.Bucket, f.SymbolID, f.Delta, f.CumulativeDelta,
		f.AggressiveBuys, f.AggressiveSells, f.BuyPressure, f.SellPressure); err != nil {
		return fmt.Errorf("failed to upsert order flow: %w", err)
	}
	return nil
}

// GetLastCVD returns the cumulative delta of the newest bucket strictly
// before the given one, or 0 when no history exists.
func (r *Repository) GetLastCVD(ctx context.Context, symbolID int, before time.Time) (float64, error) {
	var cvd float64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT cumulative_delta FROM order_flow WHERE symbol_id = $1 AND bucket < $2 ORDER BY bucket DESC LIMIT 1`,
		symbolID, before).Scan(&cvd)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get last cvd: %w", err)
	}
	return cvd, nil
}

// GetLatestOrderFlow returns the newest order-flow row for a symbol.
func (r *Repository) GetLatestOrderFlow(ctx context.Context, symbolID int) (*OrderFlowRow, error) {
	query := `
		SELECT bucket, symbol_id, delta, cumulative_delta, aggressive_buys, aggressive_sells, buy_pressure, sell_pressure
		FROM order_flow
		WHERE symbol_id = $1
		ORDER BY bucket DESC
		LIMIT 1`
	var f OrderFlowRow
	err := r.db.Pool.QueryRow(ctx, query, symbolID).Scan(
		&f.Bucket, &f.SymbolID, &f.Delta, &f.CumulativeDelta,
		&f.AggressiveBuys, &f.AggressiveSells, &f.BuyPressure, &f.SellPressure)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest order flow: %w", err)
	}
	return &f, nil
}

// GetOrderFlowRange returns order-flow rows in [start, end] ascending.
func (r *Repository) GetOrderFlowRange(ctx context.Context, symbolID int, start, end time.Time) ([]OrderFlowRow, error) {
	query := `
		SELECT bucket, symbol_id, delta, cumulative_delta, aggressive_buys, aggressive_sells, buy_pressure, sell_pressure
		FROM order_flow
		WHERE symbol_id = $1 AND bucket >= $2 AND bucket <= $3
		ORDER BY bucket ASC`
	rows, err := r.db.Pool.Query(ctx, query, symbolID, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query order flow: %w", err)
	}
	defer rows.Close()

	var out []OrderFlowRow
	for rows.Next() {
		var f OrderFlowRow
		if err := rows.Scan(&f.Bucket, &f.SymbolID, &f.Delta, &f.CumulativeDelta,
			&f.AggressiveBuys, &f.AggressiveSells, &f.BuyPressure, &f.SellPressure); err != nil {
			return nil, fmt.Errorf("failed to scan order flow: %w", err)
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

// ============================================================
// MARKET STATE
// ============================================================

// InsertMarketState appends a detector observation.
func (r *Repository) InsertMarketState(ctx context.Context, s *MarketStateRow) error {
	query := `
		INSERT INTO market_state (time, symbol_id, state, confidence, balance_high, balance_low, poc)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := r.db.Pool.Exec(ctx, query,
		s.Time, s.SymbolID, s.State, s.Confidence, s.BalanceHigh, s.BalanceLow, s.POC); err != nil {
		return fmt.Errorf("failed to insert market state: %w", err)
	}
	return nil
}

// GetLatestMarketState returns the newest detector observation.
func (r *Repository) GetLatestMarketState(ctx context.Context, symbolID int) (*MarketStateRow, error) {
	query := `
		SELECT time, symbol_id, state, confidence, balance_high, balance_low, poc
		FROM market_state
		WHERE symbol_id = $1
		ORDER BY time DESC
		LIMIT 1`
	var s MarketStateRow
	err := r.db.Pool.QueryRow(ctx, query, symbolID).Scan(
		&s.Time, &s.SymbolID, &s.State, &s.Confidence, &s.BalanceHigh, &s.BalanceLow, &s.POC)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest market state: %w", err)
	}
	return &s, nil
}

// ============================================================
// SIGNALS
// ============================================================

// AppendSignal stores an emitted signal and fills in its id.
func (r *Repository) AppendSignal(ctx context.Context, s *SignalRow) error {
	query := `
		INSERT INTO signals (time, symbol_id, side, entry_price, stop_loss, take_profit, aggression_score, market_state, confidence, reason, executed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, query,
		s.Time, s.SymbolID, s.Side, s.EntryPrice, s.StopLoss, s.TakeProfit,
		s.AggressionScore, s.MarketState, s.Confidence, s.Reason, s.Executed).Scan(&s.ID); err != nil {
		return fmt.Errorf("failed to append signal: %w", err)
	}
	return nil
}

// MarkSignalExecuted flags a signal after its order was accepted.
func (r *Repository) MarkSignalExecuted(ctx context.Context, id int64) error {
	if _, err := r.db.Pool.Exec(ctx, `UPDATE signals SET executed = TRUE WHERE id = $1`, id); err != nil {
		return fmt.Errorf("failed to mark signal executed: %w", err)
	}
	return nil
}

// ListRecentSignals returns the newest signals across all symbols.
func (r *Repository) ListRecentSignals(ctx context.Context, limit int) ([]SignalRow, error) {
	query := `
		SELECT s.id, s.time, s.symbol_id, sym.symbol, s.side, s.entry_price, s.stop_loss, s.take_profit,
		       s.aggression_score, s.market_state, s.confidence, s.reason, s.executed
		FROM signals s
		JOIN symbols sym ON sym.id = s.symbol_id
		ORDER BY s.time DESC
		LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list signals: %w", err)
	}
	defer rows.Close()

	var out []SignalRow
	for rows.Next() {
		var s SignalRow
		if err := rows.Scan(&s.ID, &s.Time, &s.SymbolID, &s.Symbol, &s.Side, &s.EntryPrice, &s.StopLoss,
			&s.TakeProfit, &s.AggressionScore, &s.MarketState, &s.Confidence, &s.Reason, &s.Executed); err != nil {
			return nil, fmt.Errorf("failed to scan signal: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// ============================================================
// POSITIONS (live)
// ============================================================

// CreatePosition persists a new live position and fills in its id.
func (r *Repository) CreatePosition(ctx context.Context, p *PositionRow) error {
	query := `
		INSERT INTO positions (symbol_id, side, qty, entry_price, entry_time, stop_loss, take_profit, status, order_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at`
	if err := r.db.Pool.QueryRow(ctx, query,
		p.SymbolID, p.Side, p.Qty, p.EntryPrice, p.EntryTime,
		p.StopLoss, p.TakeProfit, p.Status, p.OrderID).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return fmt.Errorf("failed to create position: %w", err)
	}
	return nil
}

// UpdatePositionStatus advances a position through its lifecycle.
func (r *Repository) UpdatePositionStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE positions SET status = $1, updated_at = NOW() WHERE id = $2`
	if _, err := r.db.Pool.Exec(ctx, query, status, id); err != nil {
		return fmt.Errorf("failed to update position status: %w", err)
	}
	return nil
}

// ClosePositionRow marks a live position closed.
func (r *Repository) ClosePositionRow(ctx context.Context, id int64) error {
	query := `UPDATE positions SET status = $1, closed_at = NOW(), updated_at = NOW() WHERE id = $2`
	if _, err := r.db.Pool.Exec(ctx, query, PositionStatusClosed, id); err != nil {
		return fmt.Errorf("failed to close position: %w", err)
	}
	return nil
}

// GetOpenPositions returns positions not yet closed.
func (r *Repository) GetOpenPositions(ctx context.Context) ([]PositionRow, error) {
	query := `
		SELECT p.id, p.symbol_id, sym.symbol, p.side, p.qty, p.entry_price, p.entry_time,
		       p.stop_loss, p.take_profit, p.status, p.order_id, p.created_at, p.updated_at, p.closed_at
		FROM positions p
		JOIN symbols sym ON sym.id = p.symbol_id
		WHERE p.status != $1
		ORDER BY p.entry_time ASC`
	rows, err := r.db.Pool.Query(ctx, query, PositionStatusClosed)
	if err != nil {
		return nil, fmt.Errorf("failed to query open positions: %w", err)
	}
	defer rows.Close()

	var out []PositionRow
	for rows.Next() {
		var p PositionRow
		if err := rows.Scan(&p.ID, &p.SymbolID, &p.Symbol, &p.Side, &p.Qty, &p.EntryPrice, &p.EntryTime,
			&p.StopLoss, &p.TakeProfit, &p.Status, &p.OrderID, &p.CreatedAt, &p.UpdatedAt, &p.ClosedAt); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ============================================================
// TRADES
// ============================================================

// AppendTrade stores a closed trade and fills in its id.
func (r *Repository) AppendTrade(ctx context.Context, t *TradeRow) error {
	query := `
		INSERT INTO trades (run_id, symbol_id, side, qty, entry_price, entry_time, exit_price, exit_time,
			exit_reason, pnl, pnl_pct, mae, mfe, bars_held, state_at_entry, aggression_at_entry)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, query,
		t.RunID, t.SymbolID, t.Side, t.Qty, t.EntryPrice, t.EntryTime, t.ExitPrice, t.ExitTime,
		t.ExitReason, t.PnL, t.PnLPct, t.MAE, t.MFE, t.BarsHeld, t.StateAtEntry, t.AggressionAtEntry).Scan(&t.ID); err != nil {
		return fmt.Errorf("failed to append trade: %w", err)
	}
	return nil
}

// ListRecentTrades returns the newest closed trades.
func (r *Repository) ListRecentTrades(ctx context.Context, limit int) ([]TradeRow, error) {
	query := `
		SELECT t.id, t.run_id, t.symbol_id, sym.symbol, t.side, t.qty, t.entry_price, t.entry_time,
		       t.exit_price, t.exit_time, t.exit_reason, t.pnl, t.pnl_pct, t.mae, t.mfe, t.bars_held,
		       t.state_at_entry, t.aggression_at_entry
		FROM trades t
		JOIN symbols sym ON sym.id = t.symbol_id
		ORDER BY t.exit_time DESC
		LIMIT $1`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list trades: %w", err)
	}
	defer rows.Close()
	return scanTrades(rows)
}

func scanTrades(rows pgx.Rows) ([]TradeRow, error) {
	var out []TradeRow
	for rows.Next() {
		var t TradeRow
		if err := rows.Scan(&t.ID, &t.RunID, &t.SymbolID, &t.Symbol, &t.Side, &t.Qty, &t.EntryPrice, &t.EntryTime,
			&t.ExitPrice, &t.ExitTime, &t.ExitReason, &t.PnL, &t.PnLPct, &t.MAE, &t.MFE, &t.BarsHeld,
			&t.StateAtEntry, &t.AggressionAtEntry); err != nil {
			return nil, fmt.Errorf("failed to scan trade: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ============================================================
// STRATEGY CONFIGS
// ============================================================

// GetStrategyConfig returns the per-symbol strategy override, or ErrNotFound.
func (r *Repository) GetStrategyConfig(ctx context.Context, symbolID int, strategyName string) (*StrategyConfigRow, error) {
	query := `
		SELECT id, symbol_id, strategy_name, enabled, parameters, risk_per_trade_pct, max_positions
		FROM strategy_configs
		WHERE symbol_id = $1 AND strategy_name = $2`
	var c StrategyConfigRow
	err := r.db.Pool.QueryRow(ctx, query, symbolID, strategyName).Scan(
		&c.ID, &c.SymbolID, &c.StrategyName, &c.Enabled, &c.Parameters, &c.RiskPerTradePct, &c.MaxPositions)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy config: %w", err)
	}
	return &c, nil
}

// UpsertStrategyConfig writes a per-symbol strategy override.
func (r *Repository) UpsertStrategyConfig(ctx context.Context, c *StrategyConfigRow) error {
	query := `
		INSERT INTO strategy_configs (symbol_id, strategy_name, enabled, parameters, risk_per_trade_pct, max_positions)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (symbol_id, strategy_name) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			parameters = EXCLUDED.parameters,
			risk_per_trade_pct = EXCLUDED.risk_per_trade_pct,
			max_positions = EXCLUDED.max_positions
		RETURNING id`
	if err := r.db.Pool.QueryRow(ctx, query,
		c.SymbolID, c.StrategyName, c.Enabled, c.Parameters, c.RiskPerTradePct, c.MaxPositions).Scan(&c.ID); err != nil {
		return fmt.Errorf("failed to upsert strategy config: %w", err)
	}
	return nil
}
