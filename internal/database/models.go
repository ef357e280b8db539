package database

import (
	"encoding/json"
	"time"
)

// Position status lifecycle.
const (
	PositionStatusOpening = "opening"
	PositionStatusOpen    = "open"
	PositionStatusClosing = "closing"
	PositionStatusClosed  = "closed"
)

// Order sides.
const (
	SideBuy  = "buy"
	SideSell = "sell"
)

// Binary position status.
const (
	BinaryStatusOpen   = "open"
	BinaryStatusClosed = "closed"
)

// Binary market status.
const (
	MarketStatusActive = "active"
	MarketStatusClosed = "closed"
)

// Symbol is the registry row every time-series references by id.
type Symbol struct {
	ID        int       `json:"id"`
	Symbol    string    `json:"symbol"`
	Exchange  string    `json:"exchange"`
	CreatedAt time.Time `json:"created_at"`
}

// Candle is a 1-minute OHLCV bar.
type Candle struct {
	Time     time.Time `json:"time"`
	SymbolID int       `json:"symbol_id"`
	Symbol   string    `json:"symbol,omitempty"`
	Open     float64   `json:"open"`
	High     float64   `json:"high"`
	Low      float64   `json:"low"`
	Close    float64   `json:"close"`
	Volume   float64   `json:"volume"`
}

// Tick is a single trade print. When ticks exist for a bucket they take
// precedence over candles for profile computation.
type Tick struct {
	Time     time.Time `json:"time"`
	SymbolID int       `json:"symbol_id"`
	Price    float64   `json:"price"`
	Size     int64     `json:"size"`
	Venue    string    `json:"venue,omitempty"`
}

// ProfileRow is one price level of a per-minute volume profile.
type ProfileRow struct {
	Bucket      time.Time `json:"bucket"`
	SymbolID    int       `json:"symbol_id"`
	PriceLevel  float64   `json:"price_level"`
	TotalVolume float64   `json:"total_volume"`
	BuyVolume   float64   `json:"buy_volume"`
	SellVolume  float64   `json:"sell_volume"`
	TradeCount  int       `json:"trade_count"`
}

// ProfileMetrics summarizes a bucket's profile geometry.
type ProfileMetrics struct {
	Bucket      time.Time `json:"bucket"`
	SymbolID    int       `json:"symbol_id"`
	POC         float64   `json:"poc"`
	VAH         float64   `json:"vah"`
	VAL         float64   `json:"val"`
	TotalVolume float64   `json:"total_volume"`
	LVNs        []float64 `json:"lvns"`
	HVNs        []float64 `json:"hvns"`
}

// OrderFlowRow carries per-bucket aggressor flow.
type OrderFlowRow struct {
	Bucket          time.Time `json:"bucket"`
	SymbolID        int       `json:"symbol_id"`
	Delta           float64   `json:"delta"`
	CumulativeDelta float64   `json:"cumulative_delta"`
	AggressiveBuys  float64   `json:"aggressive_buys"`
	AggressiveSells float64   `json:"aggressive_sells"`
	BuyPressure     float64   `json:"buy_pressure"`
	SellPressure    float64   `json:"sell_pressure"`
}

// MarketStateRow is one detector observation, append-only.
type MarketStateRow struct {
	Time        time.Time `json:"time"`
	SymbolID    int       `json:"symbol_id"`
	State       string    `json:"state"`
	Confidence  float64   `json:"confidence"`
	BalanceHigh *float64  `json:"balance_high,omitempty"`
	BalanceLow  *float64  `json:"balance_low,omitempty"`
	POC         *float64  `json:"poc,omitempty"`
}

// SignalRow is an emitted strategy signal, append-only.
type SignalRow struct {
	ID              int64     `json:"id"`
	Time            time.Time `json:"time"`
	SymbolID        int       `json:"symbol_id"`
	Symbol          string    `json:"symbol,omitempty"`
	Side            string    `json:"side"`
	EntryPrice      float64   `json:"entry_price"`
	StopLoss        float64   `json:"stop_loss"`
	TakeProfit      float64   `json:"take_profit"`
	AggressionScore float64   `json:"aggression_score"`
	MarketState     string    `json:"market_state"`
	Confidence      float64   `json:"confidence"`
	Reason          string    `json:"reason"`
	Executed        bool      `json:"executed"`
}

// PositionRow is a live open position persisted for restart recovery and
// broker reconciliation.
type PositionRow struct {
	ID         int64      `json:"id"`
	SymbolID   int        `json:"symbol_id"`
	Symbol     string     `json:"symbol,omitempty"`
	Side       string     `json:"side"`
	Qty        int64      `json:"qty"`
	EntryPrice float64    `json:"entry_price"`
	EntryTime  time.Time  `json:"entry_time"`
	StopLoss   float64    `json:"stop_loss"`
	TakeProfit float64    `json:"take_profit"`
	Status     string     `json:"status"`
	OrderID    *string    `json:"order_id,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// TradeRow is a closed position, append-only. RunID links backtest trades
// to their run; live trades leave it nil.
type TradeRow struct {
	ID                int64     `json:"id"`
	RunID             *string   `json:"run_id,omitempty"`
	SymbolID          int       `json:"symbol_id"`
	Symbol            string    `json:"symbol,omitempty"`
	Side              string    `json:"side"`
	Qty               int64     `json:"qty"`
	EntryPrice        float64   `json:"entry_price"`
	EntryTime         time.Time `json:"entry_time"`
	ExitPrice         float64   `json:"exit_price"`
	ExitTime          time.Time `json:"exit_time"`
	ExitReason        string    `json:"exit_reason"`
	PnL               float64   `json:"pnl"`
	PnLPct            float64   `json:"pnl_pct"`
	MAE               float64   `json:"mae"`
	MFE               float64   `json:"mfe"`
	BarsHeld          int       `json:"bars_held"`
	StateAtEntry      string    `json:"state_at_entry"`
	AggressionAtEntry float64   `json:"aggression_at_entry"`
}

// BacktestRun summarizes one replay.
type BacktestRun struct {
	ID               string          `json:"id"`
	Mode             string          `json:"mode"`
	StartDate        time.Time       `json:"start_date"`
	EndDate          time.Time       `json:"end_date"`
	InitialCapital   float64         `json:"initial_capital"`
	FinalEquity      float64         `json:"final_equity"`
	TotalTrades      int             `json:"total_trades"`
	WinRate          float64         `json:"win_rate"`
	ProfitFactor     float64         `json:"profit_factor"`
	SharpeRatio      float64         `json:"sharpe_ratio"`
	MaxDrawdownPct   float64         `json:"max_drawdown_pct"`
	SignalsGenerated int             `json:"signals_generated"`
	SignalsBlocked   int             `json:"signals_blocked"`
	Params           json.RawMessage `json:"params,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	FinishedAt       *time.Time      `json:"finished_at,omitempty"`
}

// EquityPoint is one sample of a run's equity curve.
type EquityPoint struct {
	RunID         string    `json:"run_id"`
	Time          time.Time `json:"time"`
	Equity        float64   `json:"equity"`
	Cash          float64   `json:"cash"`
	OpenPositions int       `json:"open_positions"`
}

// StrategyConfigRow holds per-symbol strategy overrides.
type StrategyConfigRow struct {
	ID              int             `json:"id"`
	SymbolID        int             `json:"symbol_id"`
	Symbol          string          `json:"symbol,omitempty"`
	StrategyName    string          `json:"strategy_name"`
	Enabled         bool            `json:"enabled"`
	Parameters      json.RawMessage `json:"parameters,omitempty"`
	RiskPerTradePct float64         `json:"risk_per_trade_pct"`
	MaxPositions    int             `json:"max_positions"`
}

// BinaryMarket describes a YES/NO outcome market.
type BinaryMarket struct {
	MarketID   string    `json:"market_id"`
	SymbolID   int       `json:"symbol_id"`
	Symbol     string    `json:"symbol,omitempty"`
	Question   string    `json:"question"`
	Category   string    `json:"category"`
	YesTokenID string    `json:"yes_token_id"`
	NoTokenID  string    `json:"no_token_id"`
	EndDate    time.Time `json:"end_date"`
	Status     string    `json:"status"`
}

// BinaryPriceRow is one fused YES+NO quote observation.
type BinaryPriceRow struct {
	Timestamp          time.Time `json:"timestamp"`
	SymbolID           int       `json:"symbol_id"`
	YesBid             float64   `json:"yes_bid"`
	YesAsk             float64   `json:"yes_ask"`
	YesMid             float64   `json:"yes_mid"`
	NoBid              float64   `json:"no_bid"`
	NoAsk              float64   `json:"no_ask"`
	NoMid              float64   `json:"no_mid"`
	Spread             float64   `json:"spread"`
	Arbitrage          bool      `json:"arbitrage"`
	EstimatedProfitPct float64   `json:"estimated_profit_pct"`
}

// BinaryPositionRow is a paired YES+NO holding.
type BinaryPositionRow struct {
	ID          int64      `json:"id"`
	MarketID    string     `json:"market_id"`
	SymbolID    int        `json:"symbol_id"`
	YesQty      float64    `json:"yes_qty"`
	NoQty       float64    `json:"no_qty"`
	YesEntry    float64    `json:"yes_entry"`
	NoEntry     float64    `json:"no_entry"`
	EntrySpread float64    `json:"entry_spread"`
	Status      string     `json:"status"`
	OpenedAt    time.Time  `json:"opened_at"`
	ClosedAt    *time.Time `json:"closed_at,omitempty"`
	ExitSpread  *float64   `json:"exit_spread,omitempty"`
	RealizedPnL *float64   `json:"realized_pnl,omitempty"`
}
