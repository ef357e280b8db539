// Package cache provides Redis-backed caching and pub/sub fanout with
// graceful degradation. When Redis is unavailable the service keeps
// running in a degraded mode: reads miss, writes and publishes become
// no-ops, and a background health check brings it back once Redis
// recovers.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Pub/sub channels consumed by the dashboard and downstream tooling.
const (
	ChannelCandles   = "ticks:candles"
	ChannelSignals   = "signals"
	ChannelLVNAlerts = "lvn_alerts"
)

// Key prefixes.
const (
	PrefixLastPrice = "price:last:"    // price:last:<symbol>
	PrefixSymbolID  = "symbol:id:"     // symbol:id:<symbol>
	PrefixProfile   = "profile:last:"  // profile:last:<symbol>
)

// DefaultTTL bounds how stale a cached price or profile may get.
const DefaultTTL = 5 * time.Minute

// Config mirrors the redis section of the platform config.
type Config struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// Service wraps a redis client with a small circuit breaker.
type Service struct {
	client *redis.Client
	logger zerolog.Logger

	mu           sync.RWMutex
	healthy      bool
	failureCount int
	lastCheck    time.Time

	maxFailures   int
	checkInterval time.Duration
}

// NewService connects to Redis. A failed initial connection is not fatal;
// the service starts degraded and recovers in the background.
func NewService(cfg Config, logger zerolog.Logger) *Service {
	s := &Service{
		logger:        logger.With().Str("component", "cache").Logger(),
		maxFailures:   3,
		checkInterval: 30 * time.Second,
	}
	if !cfg.Enabled {
		s.logger.Info().Msg("redis disabled, running without cache")
		return s
	}

	s.client = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: 2,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		s.logger.Warn().Err(err).Msg("initial redis connection failed, starting degraded")
		return s
	}

	s.healthy = true
	s.lastCheck = time.Now()
	s.logger.Info().Str("addr", cfg.Addr).Msg("redis connected")
	return s
}

// IsHealthy reports whether Redis is currently usable.
func (s *Service) IsHealthy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.client != nil && s.healthy
}

func (s *Service) recordFailure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failureCount++
	if s.failureCount >= s.maxFailures && s.healthy {
		s.logger.Warn().Int("failures", s.failureCount).Msg("redis marked unhealthy")
		s.healthy = false
	}
}

func (s *Service) recordSuccess() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.healthy {
		s.logger.Info().Msg("redis recovered")
	}
	s.healthy = true
	s.failureCount = 0
	s.lastCheck = time.Now()
}

// checkHealth pings Redis in the background once the check interval has
// elapsed since the last known-good operation.
func (s *Service) checkHealth() {
	if s.client == nil {
		return
	}
	s.mu.RLock()
	shouldCheck := !s.healthy && time.Since(s.lastCheck) >= s.checkInterval
	s.mu.RUnlock()
	if !shouldCheck {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := s.client.Ping(ctx).Err(); err == nil {
			s.recordSuccess()
		} else {
			s.mu.Lock()
			s.lastCheck = time.Now()
			s.mu.Unlock()
		}
	}()
}

// Get returns the value at key, or redis.Nil on a miss.
func (s *Service) Get(ctx context.Context, key string) (string, error) {
	s.checkHealth()
	if !s.IsHealthy() {
		return "", fmt.Errorf("redis unavailable")
	}
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if err == redis.Nil {
			return "", err
		}
		s.recordFailure()
		return "", fmt.Errorf("redis get failed: %w", err)
	}
	s.recordSuccess()
	return val, nil
}

// Set stores a value with a TTL.
func (s *Service) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.checkHealth()
	if !s.IsHealthy() {
		return fmt.Errorf("redis unavailable")
	}
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis set failed: %w", err)
	}
	s.recordSuccess()
	return nil
}

// SetJSON marshals v and stores it with a TTL.
func (s *Service) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return s.Set(ctx, key, string(data), ttl)
}

// GetJSON reads key and unmarshals it into v.
func (s *Service) GetJSON(ctx context.Context, key string, v interface{}) error {
	data, err := s.Get(ctx, key)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), v)
}

// SetLastPrice caches the latest observed price for a symbol.
func (s *Service) SetLastPrice(ctx context.Context, symbol string, price float64) {
	_ = s.Set(ctx, PrefixLastPrice+symbol, fmt.Sprintf("%g", price), DefaultTTL)
}

// GetLastPrice returns the cached latest price for a symbol.
func (s *Service) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	raw, err := s.Get(ctx, PrefixLastPrice+symbol)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(raw, 64)
}

// Publish marshals v and publishes it on a channel. Publishing while
// degraded is a silent no-op; subscribers reconnect on their own.
func (s *Service) Publish(ctx context.Context, channel string, v interface{}) error {
	s.checkHealth()
	if !s.IsHealthy() {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal publish payload: %w", err)
	}
	if err := s.client.Publish(ctx, channel, data).Err(); err != nil {
		s.recordFailure()
		return fmt.Errorf("redis publish failed: %w", err)
	}
	s.recordSuccess()
	return nil
}

// Close releases the underlying client.
func (s *Service) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}
