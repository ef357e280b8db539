package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Config holds database connection configuration
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DB wraps the pgx connection pool
type DB struct {
	Pool *pgxpool.Pool
}

// NewDB creates a new database connection pool
func NewDB(cfg Config) (*DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)

	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{Pool: pool}, nil
}

// Close closes the connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// HealthCheck verifies the database connection is alive
func (db *DB) HealthCheck(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// RunMigrations creates the schema. Each statement is idempotent so the
// platform can run them on every start.
func (db *DB) RunMigrations(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS symbols (
			id SERIAL PRIMARY KEY,
			symbol VARCHAR(64) UNIQUE NOT NULL,
			exchange VARCHAR(32) NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS candles (
			time TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			open DOUBLE PRECISION NOT NULL,
			high DOUBLE PRECISION NOT NULL,
			low DOUBLE PRECISION NOT NULL,
			close DOUBLE PRECISION NOT NULL,
			volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			PRIMARY KEY (time, symbol_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_candles_symbol_time ON candles(symbol_id, time)`,

		`CREATE TABLE IF NOT EXISTS ticks (
			time TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			price DOUBLE PRECISION NOT NULL,
			size BIGINT NOT NULL,
			venue VARCHAR(16) NOT NULL DEFAULT '',
			UNIQUE (time, symbol_id, price)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ticks_symbol_time ON ticks(symbol_id, time)`,

		`CREATE TABLE IF NOT EXISTS volume_profile (
			bucket TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			price_level DOUBLE PRECISION NOT NULL,
			total_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			buy_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			sell_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			trade_count INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (bucket, symbol_id, price_level)
		)`,

		`CREATE TABLE IF NOT EXISTS profile_metrics (
			bucket TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			poc DOUBLE PRECISION NOT NULL,
			vah DOUBLE PRECISION NOT NULL,
			val DOUBLE PRECISION NOT NULL,
			total_volume DOUBLE PRECISION NOT NULL DEFAULT 0,
			lvns JSONB,
			hvns JSONB,
			PRIMARY KEY (bucket, symbol_id)
		)`,

		`CREATE TABLE IF NOT EXISTS order_flow (
			bucket TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			delta DOUBLE PRECISION NOT NULL DEFAULT 0,
			cumulative_delta DOUBLE PRECISION NOT NULL DEFAULT 0,
			aggressive_buys DOUBLE PRECISION NOT NULL DEFAULT 0,
			aggressive_sells DOUBLE PRECISION NOT NULL DEFAULT 0,
			buy_pressure DOUBLE PRECISION NOT NULL DEFAULT 50,
			sell_pressure DOUBLE PRECISION NOT NULL DEFAULT 50,
			PRIMARY KEY (bucket, symbol_id)
		)`,

		`CREATE TABLE IF NOT EXISTS market_state (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			state VARCHAR(20) NOT NULL,
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			balance_high DOUBLE PRECISION,
			balance_low DOUBLE PRECISION,
			poc DOUBLE PRECISION
		)`,
		`CREATE INDEX IF NOT EXISTS idx_market_state_symbol_time ON market_state(symbol_id, time DESC)`,

		`CREATE TABLE IF NOT EXISTS signals (
			id BIGSERIAL PRIMARY KEY,
			time TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			side VARCHAR(4) NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL,
			take_profit DOUBLE PRECISION NOT NULL,
			aggression_score DOUBLE PRECISION NOT NULL DEFAULT 0,
			market_state VARCHAR(20) NOT NULL DEFAULT '',
			confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
			reason TEXT NOT NULL DEFAULT '',
			executed BOOLEAN NOT NULL DEFAULT FALSE
		)`,
		`CREATE INDEX IF NOT EXISTS idx_signals_symbol_time ON signals(symbol_id, time DESC)`,

		`CREATE TABLE IF NOT EXISTS positions (
			id BIGSERIAL PRIMARY KEY,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			side VARCHAR(4) NOT NULL,
			qty BIGINT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			stop_loss DOUBLE PRECISION NOT NULL DEFAULT 0,
			take_profit DOUBLE PRECISION NOT NULL DEFAULT 0,
			status VARCHAR(10) NOT NULL DEFAULT 'opening',
			order_id VARCHAR(128),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		)`,
		`CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status)`,

		`CREATE TABLE IF NOT EXISTS trades (
			id BIGSERIAL PRIMARY KEY,
			run_id UUID,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			side VARCHAR(4) NOT NULL,
			qty BIGINT NOT NULL,
			entry_price DOUBLE PRECISION NOT NULL,
			entry_time TIMESTAMPTZ NOT NULL,
			exit_price DOUBLE PRECISION NOT NULL,
			exit_time TIMESTAMPTZ NOT NULL,
			exit_reason VARCHAR(64) NOT NULL DEFAULT '',
			pnl DOUBLE PRECISION NOT NULL DEFAULT 0,
			pnl_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			mae DOUBLE PRECISION NOT NULL DEFAULT 0,
			mfe DOUBLE PRECISION NOT NULL DEFAULT 0,
			bars_held INTEGER NOT NULL DEFAULT 0,
			state_at_entry VARCHAR(20) NOT NULL DEFAULT '',
			aggression_at_entry DOUBLE PRECISION NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_run ON trades(run_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trades_symbol_time ON trades(symbol_id, exit_time DESC)`,

		`CREATE TABLE IF NOT EXISTS backtest_runs (
			id UUID PRIMARY KEY,
			mode VARCHAR(16) NOT NULL,
			start_date TIMESTAMPTZ NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			initial_capital DOUBLE PRECISION NOT NULL,
			final_equity DOUBLE PRECISION NOT NULL DEFAULT 0,
			total_trades INTEGER NOT NULL DEFAULT 0,
			win_rate DOUBLE PRECISION NOT NULL DEFAULT 0,
			profit_factor DOUBLE PRECISION NOT NULL DEFAULT 0,
			sharpe_ratio DOUBLE PRECISION NOT NULL DEFAULT 0,
			max_drawdown_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
			signals_generated INTEGER NOT NULL DEFAULT 0,
			signals_blocked INTEGER NOT NULL DEFAULT 0,
			params JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			finished_at TIMESTAMPTZ
		)`,

		`CREATE TABLE IF NOT EXISTS equity_curve (
			run_id UUID NOT NULL REFERENCES backtest_runs(id),
			time TIMESTAMPTZ NOT NULL,
			equity DOUBLE PRECISION NOT NULL,
			cash DOUBLE PRECISION NOT NULL,
			open_positions INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_equity_curve_run ON equity_curve(run_id, time)`,

		`CREATE TABLE IF NOT EXISTS strategy_configs (
			id SERIAL PRIMARY KEY,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			strategy_name VARCHAR(64) NOT NULL,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			parameters JSONB,
			risk_per_trade_pct DOUBLE PRECISION NOT NULL DEFAULT 1.0,
			max_positions INTEGER NOT NULL DEFAULT 5,
			UNIQUE (symbol_id, strategy_name)
		)`,

		`CREATE TABLE IF NOT EXISTS binary_markets (
			market_id VARCHAR(128) PRIMARY KEY,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			question TEXT NOT NULL DEFAULT '',
			category VARCHAR(64) NOT NULL DEFAULT '',
			yes_token_id VARCHAR(128) NOT NULL,
			no_token_id VARCHAR(128) NOT NULL,
			end_date TIMESTAMPTZ NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'active'
		)`,

		`CREATE TABLE IF NOT EXISTS binary_prices (
			timestamp TIMESTAMPTZ NOT NULL,
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			yes_bid NUMERIC(18,8) NOT NULL DEFAULT 0,
			yes_ask NUMERIC(18,8) NOT NULL DEFAULT 0,
			yes_mid NUMERIC(18,8) NOT NULL DEFAULT 0,
			no_bid NUMERIC(18,8) NOT NULL DEFAULT 0,
			no_ask NUMERIC(18,8) NOT NULL DEFAULT 0,
			no_mid NUMERIC(18,8) NOT NULL DEFAULT 0,
			spread NUMERIC(18,8) NOT NULL DEFAULT 0,
			arbitrage BOOLEAN NOT NULL DEFAULT FALSE,
			estimated_profit_pct NUMERIC(18,8) NOT NULL DEFAULT 0,
			PRIMARY KEY (timestamp, symbol_id)
		)`,

		`CREATE TABLE IF NOT EXISTS binary_positions (
			id BIGSERIAL PRIMARY KEY,
			market_id VARCHAR(128) NOT NULL REFERENCES binary_markets(market_id),
			symbol_id INTEGER NOT NULL REFERENCES symbols(id),
			yes_qty NUMERIC(18,8) NOT NULL,
			no_qty NUMERIC(18,8) NOT NULL,
			yes_entry NUMERIC(18,8) NOT NULL,
			no_entry NUMERIC(18,8) NOT NULL,
			entry_spread NUMERIC(18,8) NOT NULL,
			status VARCHAR(10) NOT NULL DEFAULT 'open',
			opened_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ,
			exit_spread NUMERIC(18,8),
			realized_pnl NUMERIC(18,8)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_binary_positions_status ON binary_positions(status)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i, err)
		}
	}

	return nil
}
