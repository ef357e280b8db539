// Package vault loads broker and Polymarket credentials from a KV v2
// secrets engine. When vault is disabled the environment-sourced config
// values are used as-is.
package vault

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/vault/api"

	"auction-market-bot/config"
)

// Credentials holds every secret the platform needs at runtime.
type Credentials struct {
	BrokerAPIKey     string `json:"broker_api_key"`
	BrokerSecretKey  string `json:"broker_secret_key"`
	PolymarketKey    string `json:"polymarket_api_key"`
	PolymarketSecret string `json:"polymarket_api_secret"`
}

// Client wraps the HashiCorp Vault client.
type Client struct {
	client *api.Client
	cfg    config.VaultConfig

	mu     sync.RWMutex
	cached *Credentials
}

// NewClient creates a vault client. A disabled config returns a client
// whose loads fall through to the provided fallback.
func NewClient(cfg config.VaultConfig) (*Client, error) {
	if !cfg.Enabled {
		return &Client{cfg: cfg}, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)

	return &Client{client: client, cfg: cfg}, nil
}

// IsEnabled reports whether vault lookups are active.
func (c *Client) IsEnabled() bool {
	return c.cfg.Enabled
}

// LoadCredentials reads the secret bundle, caching the first success.
// When vault is disabled the fallback is returned unchanged.
func (c *Client) LoadCredentials(ctx context.Context, fallback Credentials) (*Credentials, error) {
	if !c.cfg.Enabled {
		return &fallback, nil
	}

	c.mu.RLock()
	if c.cached != nil {
		cached := *c.cached
		c.mu.RUnlock()
		return &cached, nil
	}
	c.mu.RUnlock()

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return nil, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("no credentials at %s", c.dataPath())
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected secret format at %s", c.dataPath())
	}

	creds := &Credentials{
		BrokerAPIKey:     getString(data, "broker_api_key"),
		BrokerSecretKey:  getString(data, "broker_secret_key"),
		PolymarketKey:    getString(data, "polymarket_api_key"),
		PolymarketSecret: getString(data, "polymarket_api_secret"),
	}

	c.mu.Lock()
	c.cached = creds
	c.mu.Unlock()

	out := *creds
	return &out, nil
}

// StoreCredentials writes the secret bundle and refreshes the cache.
func (c *Client) StoreCredentials(ctx context.Context, creds Credentials) error {
	if !c.cfg.Enabled {
		return fmt.Errorf("vault is disabled")
	}

	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"broker_api_key":        creds.BrokerAPIKey,
			"broker_secret_key":     creds.BrokerSecretKey,
			"polymarket_api_key":    creds.PolymarketKey,
			"polymarket_api_secret": creds.PolymarketSecret,
		},
	}
	if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), payload); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// ClearCache drops the cached bundle so the next load hits vault.
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the vault connection.
func (c *Client) Health(ctx context.Context) error {
	if !c.cfg.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// dataPath is the KV v2 data path of the credential bundle.
func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.cfg.MountPath, c.cfg.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
