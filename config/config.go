package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseConfig     DatabaseConfig     `json:"database"`
	RedisConfig        RedisConfig        `json:"redis"`
	LoggingConfig      LoggingConfig      `json:"logging"`
	IngestConfig       IngestConfig       `json:"ingest"`
	ProfileConfig      ProfileConfig      `json:"profile"`
	DetectorConfig     DetectorConfig     `json:"detector"`
	StrategyConfig     StrategyConfig     `json:"strategy"`
	RiskConfig         RiskConfig         `json:"risk"`
	TradingConfig      TradingConfig      `json:"trading"`
	BrokerConfig       BrokerConfig       `json:"broker"`
	OrderMonitorConfig OrderMonitorConfig `json:"order_monitor"`
	ArbitrageConfig    ArbitrageConfig    `json:"arbitrage"`
	ServerConfig       ServerConfig       `json:"server"`
	AuthConfig         AuthConfig         `json:"auth"`
	VaultConfig        VaultConfig        `json:"vault"`
	NotificationConfig NotificationConfig `json:"notification"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

type LoggingConfig struct {
	Level      string `json:"level"`       // debug, info, warn, error
	Output     string `json:"output"`      // stdout, stderr, or file path
	JSONFormat bool   `json:"json_format"` // Output as JSON
}

// IngestConfig selects the market-data providers and the symbol universe.
type IngestConfig struct {
	Symbols         []string `json:"symbols"`
	Provider        string   `json:"provider"`          // "websocket", "polling" or "simulated"
	WSURL           string   `json:"ws_url"`            // streaming provider endpoint
	PollURL         string   `json:"poll_url"`          // polling provider endpoint
	PollInterval    int      `json:"poll_interval"`     // seconds between REST polls
	ReconnectMaxSec int      `json:"reconnect_max_sec"` // backoff cap for streams
}

// ProfileConfig tunes the volume profile computation.
type ProfileConfig struct {
	ValueAreaPct  float64 `json:"value_area_pct"`  // contiguous volume share around POC
	LVNFactor     float64 `json:"lvn_factor"`      // level is LVN below factor*mean
	HVNFactor     float64 `json:"hvn_factor"`      // level is HVN above factor*mean
	MinLevels     int     `json:"min_levels"`      // minimum levels for candle distribution
	MinLevelStep  float64 `json:"min_level_step"`  // price granularity floor
	LVNAlertPct   float64 `json:"lvn_alert_pct"`   // proximity alert threshold in percent
	LookbackBars  int     `json:"lookback_bars"`   // bars for in-memory profile fallback
}

// DetectorConfig tunes the market-state classifier.
type DetectorConfig struct {
	POCDistanceThreshold float64 `json:"poc_distance_threshold"` // percent from POC
	MomentumThreshold    float64 `json:"momentum_threshold"`
	CVDPressureThreshold float64 `json:"cvd_pressure_threshold"`
	LookbackMinutes      int     `json:"lookback_minutes"`
}

// StrategyConfig carries the auction market strategy parameters.
type StrategyConfig struct {
	MinAggressionScore  float64 `json:"min_aggression_score"`
	ATRStopMultiplier   float64 `json:"atr_stop_multiplier"`
	ATRTargetMultiplier float64 `json:"atr_target_multiplier"`
	RiskPerTradePct     float64 `json:"risk_per_trade_pct"`
	MaxPositions        int     `json:"max_positions"`
	InitialCapital      float64 `json:"initial_capital"`
	ATRPeriod           int     `json:"atr_period"`
}

type RiskConfig struct {
	MaxDailyLossPct      float64 `json:"max_daily_loss_pct"`
	MinAccountBalance    float64 `json:"min_account_balance"`
	MaxConsecutiveLosses int     `json:"max_consecutive_losses"` // halt breaker trip point
	HaltCooldownMinutes  int     `json:"halt_cooldown_minutes"`
}

type TradingConfig struct {
	Enabled bool `json:"enabled"`
	DryRun  bool `json:"dry_run"` // paper broker instead of live orders
}

type BrokerConfig struct {
	APIKey    string `json:"api_key"`
	SecretKey string `json:"secret_key"`
	BaseURL   string `json:"base_url"`
	Paper     bool   `json:"paper"`
}

type OrderMonitorConfig struct {
	MaxOrderAgeMinutes int     `json:"max_order_age_minutes"`
	MaxSlippagePct     float64 `json:"max_slippage_pct"`
	PollIntervalSec    int     `json:"poll_interval_sec"`
	ReconcileEverySec  int     `json:"reconcile_every_sec"`
}

type ArbitrageConfig struct {
	Enabled          bool    `json:"enabled"`
	WSURL            string  `json:"ws_url"`
	RESTURL          string  `json:"rest_url"`
	GammaURL         string  `json:"gamma_url"`
	APIKey           string  `json:"api_key"`
	APISecret        string  `json:"api_secret"`
	SpreadThreshold  float64 `json:"spread_threshold"`
	MinProfitPct     float64 `json:"min_profit_pct"`
	MaxPositionSize  float64 `json:"max_position_size"`  // dollars per side
	MaxTotalExposure float64 `json:"max_total_exposure"` // dollars across markets
	FeeRate          float64 `json:"fee_rate"`
	ExitScanSec      int     `json:"exit_scan_sec"`
	Categories       []string `json:"categories"` // market discovery filter, empty = all
}

type ServerConfig struct {
	Enabled         bool   `json:"enabled"`
	Host            string `json:"host"`
	Port            int    `json:"port"`
	AllowedOrigins  string `json:"allowed_origins"`
	ReadTimeout     int    `json:"read_timeout"`
	WriteTimeout    int    `json:"write_timeout"`
	ShutdownTimeout int    `json:"shutdown_timeout"`
}

type AuthConfig struct {
	Enabled          bool          `json:"enabled"`
	JWTSecret        string        `json:"jwt_secret"`
	TokenDuration    time.Duration `json:"token_duration"`
	OperatorUser     string        `json:"operator_user"`
	OperatorPassHash string        `json:"operator_pass_hash"` // bcrypt hash
}

type VaultConfig struct {
	Enabled    bool   `json:"enabled"`
	Address    string `json:"address"`
	Token      string `json:"token"`
	MountPath  string `json:"mount_path"`
	SecretPath string `json:"secret_path"`
}

type NotificationConfig struct {
	Enabled  bool           `json:"enabled"`
	Telegram TelegramConfig `json:"telegram"`
	Discord  DiscordConfig  `json:"discord"`
}

type TelegramConfig struct {
	Enabled  bool   `json:"enabled"`
	BotToken string `json:"bot_token"`
	ChatID   int64  `json:"chat_id"`
}

type DiscordConfig struct {
	Enabled    bool   `json:"enabled"`
	WebhookURL string `json:"webhook_url"`
}

// Load reads config.json when present, then applies environment overrides.
// A missing file is not an error; the environment alone is enough to run.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := defaultConfig()
	if fileCfg, err := loadFromFile("config.json"); err == nil {
		cfg = fileCfg
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ProfileConfig: ProfileConfig{
			ValueAreaPct: 0.70,
			LVNFactor:    0.30,
			HVNFactor:    1.50,
			MinLevels:    10,
			MinLevelStep: 0.10,
			LVNAlertPct:  0.5,
			LookbackBars: 100,
		},
		DetectorConfig: DetectorConfig{
			POCDistanceThreshold: 1.5,
			MomentumThreshold:    1.5,
			CVDPressureThreshold: 15,
			LookbackMinutes:      60,
		},
		StrategyConfig: StrategyConfig{
			MinAggressionScore:  70,
			ATRStopMultiplier:   1.5,
			ATRTargetMultiplier: 3.0,
			RiskPerTradePct:     1.0,
			MaxPositions:        5,
			InitialCapital:      100000,
			ATRPeriod:           14,
		},
		RiskConfig: RiskConfig{
			MaxDailyLossPct:      5.0,
			MinAccountBalance:    1000,
			MaxConsecutiveLosses: 5,
			HaltCooldownMinutes:  30,
		},
		OrderMonitorConfig: OrderMonitorConfig{
			MaxOrderAgeMinutes: 5,
			MaxSlippagePct:     1.0,
			PollIntervalSec:    10,
			ReconcileEverySec:  300,
		},
		ArbitrageConfig: ArbitrageConfig{
			SpreadThreshold:  0.995,
			MinProfitPct:     0.5,
			MaxPositionSize:  100,
			MaxTotalExposure: 1000,
			FeeRate:          0.0,
			ExitScanSec:      60,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	// Database config
	cfg.DatabaseConfig.Host = getEnvOrDefault("DB_HOST", withDefault(cfg.DatabaseConfig.Host, "localhost"))
	cfg.DatabaseConfig.Port = getEnvIntOrDefault("DB_PORT", withDefaultInt(cfg.DatabaseConfig.Port, 5432))
	cfg.DatabaseConfig.User = getEnvOrDefault("DB_USER", withDefault(cfg.DatabaseConfig.User, "postgres"))
	cfg.DatabaseConfig.Password = getEnvOrDefault("DB_PASSWORD", cfg.DatabaseConfig.Password)
	cfg.DatabaseConfig.DBName = getEnvOrDefault("DB_NAME", withDefault(cfg.DatabaseConfig.DBName, "auction_market"))
	cfg.DatabaseConfig.SSLMode = getEnvOrDefault("DB_SSLMODE", withDefault(cfg.DatabaseConfig.SSLMode, "disable"))

	// Redis config
	cfg.RedisConfig.Enabled = getEnvOrDefault("REDIS_ENABLED", "true") == "true"
	cfg.RedisConfig.Addr = getEnvOrDefault("REDIS_ADDR", withDefault(cfg.RedisConfig.Addr, "localhost:6379"))
	cfg.RedisConfig.Password = getEnvOrDefault("REDIS_PASSWORD", cfg.RedisConfig.Password)
	cfg.RedisConfig.DB = getEnvIntOrDefault("REDIS_DB", cfg.RedisConfig.DB)
	cfg.RedisConfig.PoolSize = getEnvIntOrDefault("REDIS_POOL_SIZE", withDefaultInt(cfg.RedisConfig.PoolSize, 10))

	// Logging config
	cfg.LoggingConfig.Level = getEnvOrDefault("LOG_LEVEL", withDefault(cfg.LoggingConfig.Level, "info"))
	cfg.LoggingConfig.Output = getEnvOrDefault("LOG_OUTPUT", withDefault(cfg.LoggingConfig.Output, "stdout"))
	cfg.LoggingConfig.JSONFormat = getEnvOrDefault("LOG_JSON", "false") == "true"

	// Ingest config
	if symbols := getEnvOrDefault("SYMBOLS", ""); symbols != "" {
		cfg.IngestConfig.Symbols = splitCSV(symbols)
	}
	cfg.IngestConfig.Provider = getEnvOrDefault("INGEST_PROVIDER", withDefault(cfg.IngestConfig.Provider, "simulated"))
	cfg.IngestConfig.WSURL = getEnvOrDefault("INGEST_WS_URL", cfg.IngestConfig.WSURL)
	cfg.IngestConfig.PollURL = getEnvOrDefault("INGEST_POLL_URL", cfg.IngestConfig.PollURL)
	cfg.IngestConfig.PollInterval = getEnvIntOrDefault("INGEST_POLL_INTERVAL", withDefaultInt(cfg.IngestConfig.PollInterval, 60))
	cfg.IngestConfig.ReconnectMaxSec = getEnvIntOrDefault("INGEST_RECONNECT_MAX_SEC", withDefaultInt(cfg.IngestConfig.ReconnectMaxSec, 60))

	// Detector config
	cfg.DetectorConfig.POCDistanceThreshold = getEnvFloatOrDefault("DETECTOR_POC_DISTANCE", cfg.DetectorConfig.POCDistanceThreshold)
	cfg.DetectorConfig.MomentumThreshold = getEnvFloatOrDefault("DETECTOR_MOMENTUM", cfg.DetectorConfig.MomentumThreshold)
	cfg.DetectorConfig.CVDPressureThreshold = getEnvFloatOrDefault("DETECTOR_CVD_PRESSURE", cfg.DetectorConfig.CVDPressureThreshold)
	cfg.DetectorConfig.LookbackMinutes = getEnvIntOrDefault("DETECTOR_LOOKBACK_MINUTES", cfg.DetectorConfig.LookbackMinutes)

	// Strategy config
	cfg.StrategyConfig.MinAggressionScore = getEnvFloatOrDefault("STRATEGY_MIN_AGGRESSION", cfg.StrategyConfig.MinAggressionScore)
	cfg.StrategyConfig.ATRStopMultiplier = getEnvFloatOrDefault("STRATEGY_ATR_STOP_MULT", cfg.StrategyConfig.ATRStopMultiplier)
	cfg.StrategyConfig.ATRTargetMultiplier = getEnvFloatOrDefault("STRATEGY_ATR_TARGET_MULT", cfg.StrategyConfig.ATRTargetMultiplier)
	cfg.StrategyConfig.RiskPerTradePct = getEnvFloatOrDefault("STRATEGY_RISK_PER_TRADE", cfg.StrategyConfig.RiskPerTradePct)
	cfg.StrategyConfig.MaxPositions = getEnvIntOrDefault("STRATEGY_MAX_POSITIONS", cfg.StrategyConfig.MaxPositions)
	cfg.StrategyConfig.InitialCapital = getEnvFloatOrDefault("STRATEGY_INITIAL_CAPITAL", cfg.StrategyConfig.InitialCapital)

	// Risk config
	cfg.RiskConfig.MaxDailyLossPct = getEnvFloatOrDefault("RISK_MAX_DAILY_LOSS", cfg.RiskConfig.MaxDailyLossPct)
	cfg.RiskConfig.MinAccountBalance = getEnvFloatOrDefault("RISK_MIN_ACCOUNT_BALANCE", cfg.RiskConfig.MinAccountBalance)
	cfg.RiskConfig.MaxConsecutiveLosses = getEnvIntOrDefault("RISK_MAX_CONSECUTIVE_LOSSES", cfg.RiskConfig.MaxConsecutiveLosses)
	cfg.RiskConfig.HaltCooldownMinutes = getEnvIntOrDefault("RISK_HALT_COOLDOWN_MINUTES", cfg.RiskConfig.HaltCooldownMinutes)

	// Trading config
	cfg.TradingConfig.Enabled = getEnvOrDefault("TRADING_ENABLED", "false") == "true"
	cfg.TradingConfig.DryRun = getEnvOrDefault("TRADING_DRY_RUN", "true") == "true"

	// Broker config
	cfg.BrokerConfig.APIKey = getEnvOrDefault("BROKER_API_KEY", cfg.BrokerConfig.APIKey)
	cfg.BrokerConfig.SecretKey = getEnvOrDefault("BROKER_SECRET_KEY", cfg.BrokerConfig.SecretKey)
	cfg.BrokerConfig.BaseURL = getEnvOrDefault("BROKER_BASE_URL", withDefault(cfg.BrokerConfig.BaseURL, "https://paper-api.alpaca.markets"))
	cfg.BrokerConfig.Paper = getEnvOrDefault("BROKER_PAPER", "true") == "true"

	// Order monitor config
	cfg.OrderMonitorConfig.MaxOrderAgeMinutes = getEnvIntOrDefault("ORDER_MAX_AGE_MINUTES", cfg.OrderMonitorConfig.MaxOrderAgeMinutes)
	cfg.OrderMonitorConfig.MaxSlippagePct = getEnvFloatOrDefault("ORDER_MAX_SLIPPAGE_PCT", cfg.OrderMonitorConfig.MaxSlippagePct)
	cfg.OrderMonitorConfig.PollIntervalSec = getEnvIntOrDefault("ORDER_POLL_INTERVAL_SEC", cfg.OrderMonitorConfig.PollIntervalSec)
	cfg.OrderMonitorConfig.ReconcileEverySec = getEnvIntOrDefault("ORDER_RECONCILE_EVERY_SEC", cfg.OrderMonitorConfig.ReconcileEverySec)

	// Arbitrage config
	cfg.ArbitrageConfig.Enabled = getEnvOrDefault("ARB_ENABLED", "false") == "true"
	cfg.ArbitrageConfig.WSURL = getEnvOrDefault("ARB_WS_URL", withDefault(cfg.ArbitrageConfig.WSURL, "wss://ws-subscriptions-clob.polymarket.com/ws/market"))
	cfg.ArbitrageConfig.RESTURL = getEnvOrDefault("ARB_REST_URL", withDefault(cfg.ArbitrageConfig.RESTURL, "https://clob.polymarket.com"))
	cfg.ArbitrageConfig.GammaURL = getEnvOrDefault("ARB_GAMMA_URL", withDefault(cfg.ArbitrageConfig.GammaURL, "https://gamma-api.polymarket.com"))
	cfg.ArbitrageConfig.APIKey = getEnvOrDefault("POLY_API_KEY", cfg.ArbitrageConfig.APIKey)
	cfg.ArbitrageConfig.APISecret = getEnvOrDefault("POLY_API_SECRET", cfg.ArbitrageConfig.APISecret)
	cfg.ArbitrageConfig.SpreadThreshold = getEnvFloatOrDefault("ARB_SPREAD_THRESHOLD", cfg.ArbitrageConfig.SpreadThreshold)
	cfg.ArbitrageConfig.MinProfitPct = getEnvFloatOrDefault("ARB_MIN_PROFIT_PCT", cfg.ArbitrageConfig.MinProfitPct)
	cfg.ArbitrageConfig.MaxPositionSize = getEnvFloatOrDefault("ARB_MAX_POSITION_SIZE", cfg.ArbitrageConfig.MaxPositionSize)
	cfg.ArbitrageConfig.MaxTotalExposure = getEnvFloatOrDefault("ARB_MAX_TOTAL_EXPOSURE", cfg.ArbitrageConfig.MaxTotalExposure)
	cfg.ArbitrageConfig.FeeRate = getEnvFloatOrDefault("ARB_FEE_RATE", cfg.ArbitrageConfig.FeeRate)
	cfg.ArbitrageConfig.ExitScanSec = getEnvIntOrDefault("ARB_EXIT_SCAN_SEC", cfg.ArbitrageConfig.ExitScanSec)
	if cats := getEnvOrDefault("ARB_CATEGORIES", ""); cats != "" {
		cfg.ArbitrageConfig.Categories = splitCSV(cats)
	}

	// Server config
	cfg.ServerConfig.Enabled = getEnvOrDefault("SERVER_ENABLED", "true") == "true"
	cfg.ServerConfig.Host = getEnvOrDefault("SERVER_HOST", withDefault(cfg.ServerConfig.Host, "0.0.0.0"))
	cfg.ServerConfig.Port = getEnvIntOrDefault("SERVER_PORT", withDefaultInt(cfg.ServerConfig.Port, 8080))
	cfg.ServerConfig.AllowedOrigins = getEnvOrDefault("SERVER_ALLOWED_ORIGINS", withDefault(cfg.ServerConfig.AllowedOrigins, "*"))
	cfg.ServerConfig.ReadTimeout = getEnvIntOrDefault("SERVER_READ_TIMEOUT", withDefaultInt(cfg.ServerConfig.ReadTimeout, 30))
	cfg.ServerConfig.WriteTimeout = getEnvIntOrDefault("SERVER_WRITE_TIMEOUT", withDefaultInt(cfg.ServerConfig.WriteTimeout, 30))
	cfg.ServerConfig.ShutdownTimeout = getEnvIntOrDefault("SERVER_SHUTDOWN_TIMEOUT", withDefaultInt(cfg.ServerConfig.ShutdownTimeout, 10))

	// Auth config
	cfg.AuthConfig.Enabled = getEnvOrDefault("AUTH_ENABLED", "false") == "true"
	cfg.AuthConfig.JWTSecret = getEnvOrDefault("AUTH_JWT_SECRET", cfg.AuthConfig.JWTSecret)
	cfg.AuthConfig.TokenDuration = getEnvDurationOrDefault("AUTH_TOKEN_DURATION", 24*time.Hour)
	cfg.AuthConfig.OperatorUser = getEnvOrDefault("AUTH_OPERATOR_USER", withDefault(cfg.AuthConfig.OperatorUser, "operator"))
	cfg.AuthConfig.OperatorPassHash = getEnvOrDefault("AUTH_OPERATOR_PASS_HASH", cfg.AuthConfig.OperatorPassHash)

	// Vault config
	cfg.VaultConfig.Enabled = getEnvOrDefault("VAULT_ENABLED", "false") == "true"
	cfg.VaultConfig.Address = getEnvOrDefault("VAULT_ADDR", withDefault(cfg.VaultConfig.Address, "http://localhost:8200"))
	cfg.VaultConfig.Token = getEnvOrDefault("VAULT_TOKEN", cfg.VaultConfig.Token)
	cfg.VaultConfig.MountPath = getEnvOrDefault("VAULT_MOUNT_PATH", withDefault(cfg.VaultConfig.MountPath, "secret"))
	cfg.VaultConfig.SecretPath = getEnvOrDefault("VAULT_SECRET_PATH", withDefault(cfg.VaultConfig.SecretPath, "auction-market-bot/api-keys"))

	// Notification config
	cfg.NotificationConfig.Enabled = getEnvOrDefault("NOTIFICATIONS_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.Enabled = getEnvOrDefault("TELEGRAM_ENABLED", "false") == "true"
	cfg.NotificationConfig.Telegram.BotToken = getEnvOrDefault("TELEGRAM_BOT_TOKEN", cfg.NotificationConfig.Telegram.BotToken)
	cfg.NotificationConfig.Telegram.ChatID = getEnvInt64OrDefault("TELEGRAM_CHAT_ID", cfg.NotificationConfig.Telegram.ChatID)
	cfg.NotificationConfig.Discord.Enabled = getEnvOrDefault("DISCORD_ENABLED", "false") == "true"
	cfg.NotificationConfig.Discord.WebhookURL = getEnvOrDefault("DISCORD_WEBHOOK_URL", cfg.NotificationConfig.Discord.WebhookURL)
}

// Validate rejects configurations the platform cannot start with.
func (c *Config) Validate() error {
	if c.DatabaseConfig.Host == "" || c.DatabaseConfig.DBName == "" {
		return fmt.Errorf("database host and name are required")
	}
	if c.StrategyConfig.MaxPositions <= 0 {
		return fmt.Errorf("strategy max_positions must be positive, got %d", c.StrategyConfig.MaxPositions)
	}
	if c.StrategyConfig.RiskPerTradePct <= 0 || c.StrategyConfig.RiskPerTradePct > 100 {
		return fmt.Errorf("strategy risk_per_trade_pct must be in (0, 100], got %v", c.StrategyConfig.RiskPerTradePct)
	}
	if c.StrategyConfig.ATRStopMultiplier <= 0 || c.StrategyConfig.ATRTargetMultiplier <= 0 {
		return fmt.Errorf("strategy ATR multipliers must be positive")
	}
	if c.ArbitrageConfig.SpreadThreshold <= 0 || c.ArbitrageConfig.SpreadThreshold >= 2 {
		return fmt.Errorf("arbitrage spread_threshold out of range: %v", c.ArbitrageConfig.SpreadThreshold)
	}
	if c.TradingConfig.Enabled && !c.TradingConfig.DryRun {
		if c.BrokerConfig.APIKey == "" && !c.VaultConfig.Enabled {
			return fmt.Errorf("live trading requires broker credentials (env or vault)")
		}
	}
	if c.AuthConfig.Enabled && c.AuthConfig.JWTSecret == "" {
		return fmt.Errorf("auth enabled but AUTH_JWT_SECRET is empty")
	}
	return nil
}

// GenerateSampleConfig writes a fully populated config.json template.
func GenerateSampleConfig(filename string) error {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	cfg.IngestConfig.Symbols = []string{"AAPL", "TSLA", "SPY"}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("error marshaling sample config: %w", err)
	}
	return os.WriteFile(filename, data, 0o644)
}

func loadFromFile(filename string) (*Config, error) {
	file, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	config := defaultConfig()
	if err := json.Unmarshal(file, config); err != nil {
		return nil, fmt.Errorf("error parsing config file: %w", err)
	}
	return config, nil
}

func withDefault(val, def string) string {
	if val == "" {
		return def
	}
	return val
}

func withDefaultInt(val, def int) int {
	if val == 0 {
		return def
	}
	return val
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64OrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
