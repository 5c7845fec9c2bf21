package core

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultAPIVersion     = "2025-01"
	DefaultBypassToken    = "test-hmac"
	DefaultPageLimit      = 250
	DefaultSchedule       = "@every 15m"
	DefaultHTTPAddr       = ":3000"
	DefaultPersistenceDrv = "sqlite"
)

type ShopifyConfig struct {
	WebhookSecret string `koanf:"webhook_secret" mapstructure:"webhook_secret"`
	APIVersion    string `koanf:"api_version" mapstructure:"api_version"`
	TestMode      bool   `koanf:"test_mode" mapstructure:"test_mode"`
	BypassToken   string `koanf:"bypass_token" mapstructure:"bypass_token"`
	PageLimit     int    `koanf:"page_limit" mapstructure:"page_limit"`
	// WebhookAddress is the public URL subscriptions deliver to.
	WebhookAddress string `koanf:"webhook_address" mapstructure:"webhook_address"`
}

type ResilienceConfig struct {
	CallTimeout           time.Duration `koanf:"call_timeout" mapstructure:"call_timeout"`
	ErrorThresholdPercent int           `koanf:"error_threshold_percent" mapstructure:"error_threshold_percent"`
	RollingWindow         time.Duration `koanf:"rolling_window" mapstructure:"rolling_window"`
	RollingBuckets        int           `koanf:"rolling_buckets" mapstructure:"rolling_buckets"`
	ResetTimeout          time.Duration `koanf:"reset_timeout" mapstructure:"reset_timeout"`
	MinimumRequests       int           `koanf:"minimum_requests" mapstructure:"minimum_requests"`
	DLQCapacity           int           `koanf:"dlq_capacity" mapstructure:"dlq_capacity"`
	ReplayAttempts        int           `koanf:"replay_attempts" mapstructure:"replay_attempts"`
	ReplayBaseDelay       time.Duration `koanf:"replay_base_delay" mapstructure:"replay_base_delay"`
	ReplayBatchSize       int           `koanf:"replay_batch_size" mapstructure:"replay_batch_size"`
}

type ReconcileConfig struct {
	Enabled         bool          `koanf:"enabled" mapstructure:"enabled"`
	Schedule        string        `koanf:"schedule" mapstructure:"schedule"`
	StartupDelay    time.Duration `koanf:"startup_delay" mapstructure:"startup_delay"`
	PacingThreshold float64       `koanf:"pacing_threshold" mapstructure:"pacing_threshold"`
}

type PersistenceConfig struct {
	Driver      string        `koanf:"driver" mapstructure:"driver"`
	DSN         string        `koanf:"dsn" mapstructure:"dsn"`
	Debug       bool          `koanf:"debug" mapstructure:"debug"`
	PingTimeout time.Duration `koanf:"ping_timeout" mapstructure:"ping_timeout"`
}

type HTTPConfig struct {
	Addr string `koanf:"addr" mapstructure:"addr"`
}

type Config struct {
	ServiceName    string            `koanf:"service_name" mapstructure:"service_name"`
	Shopify        ShopifyConfig     `koanf:"shopify" mapstructure:"shopify"`
	Resilience     ResilienceConfig  `koanf:"resilience" mapstructure:"resilience"`
	Reconcile      ReconcileConfig   `koanf:"reconcile" mapstructure:"reconcile"`
	Persistence    PersistenceConfig `koanf:"persistence" mapstructure:"persistence"`
	HTTP           HTTPConfig        `koanf:"http" mapstructure:"http"`
	TenantCacheTTL time.Duration     `koanf:"tenant_cache_ttl" mapstructure:"tenant_cache_ttl"`
	LogLevel       string            `koanf:"log_level" mapstructure:"log_level"`
	SecretKey      string            `koanf:"secret_key" mapstructure:"secret_key"`
}

func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		CallTimeout:           10 * time.Second,
		ErrorThresholdPercent: 50,
		RollingWindow:         10 * time.Second,
		RollingBuckets:        10,
		ResetTimeout:          30 * time.Second,
		MinimumRequests:       5,
		DLQCapacity:           1000,
		ReplayAttempts:        3,
		ReplayBaseDelay:       2 * time.Second,
		ReplayBatchSize:       5,
	}
}

func DefaultReconcileConfig() ReconcileConfig {
	return ReconcileConfig{
		Enabled:         true,
		Schedule:        DefaultSchedule,
		StartupDelay:    5 * time.Second,
		PacingThreshold: 0.8,
	}
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "shopsync",
		Shopify: ShopifyConfig{
			APIVersion:  DefaultAPIVersion,
			BypassToken: DefaultBypassToken,
			PageLimit:   DefaultPageLimit,
		},
		Resilience: DefaultResilienceConfig(),
		Reconcile:  DefaultReconcileConfig(),
		Persistence: PersistenceConfig{
			Driver:      DefaultPersistenceDrv,
			DSN:         "file:shopsync.db?cache=shared&_foreign_keys=on",
			PingTimeout: 5 * time.Second,
		},
		HTTP:           HTTPConfig{Addr: DefaultHTTPAddr},
		TenantCacheTTL: time.Minute,
		LogLevel:       "info",
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Shopify.APIVersion) == "" {
		return fmt.Errorf("core: shopify.api_version is required")
	}
	if c.Shopify.PageLimit <= 0 || c.Shopify.PageLimit > DefaultPageLimit {
		return fmt.Errorf("core: shopify.page_limit must be between 1 and %d", DefaultPageLimit)
	}
	if c.Shopify.TestMode && strings.TrimSpace(c.Shopify.BypassToken) == "" {
		return fmt.Errorf("core: shopify.bypass_token is required in test mode")
	}
	if err := c.Resilience.Validate(); err != nil {
		return err
	}
	if c.Reconcile.Enabled && strings.TrimSpace(c.Reconcile.Schedule) == "" {
		return fmt.Errorf("core: reconcile.schedule is required")
	}
	if c.Reconcile.PacingThreshold <= 0 || c.Reconcile.PacingThreshold > 1 {
		return fmt.Errorf("core: reconcile.pacing_threshold must be in (0, 1]")
	}
	switch strings.ToLower(strings.TrimSpace(c.Persistence.Driver)) {
	case "sqlite", "sqlite3", "postgres", "postgresql", "memory":
	default:
		return fmt.Errorf("core: persistence.driver %q is invalid", c.Persistence.Driver)
	}
	if c.TenantCacheTTL < 0 {
		return fmt.Errorf("core: tenant_cache_ttl must not be negative")
	}
	return nil
}

func (c ResilienceConfig) Validate() error {
	switch {
	case c.CallTimeout <= 0:
		return fmt.Errorf("core: resilience.call_timeout must be positive")
	case c.ErrorThresholdPercent <= 0 || c.ErrorThresholdPercent > 100:
		return fmt.Errorf("core: resilience.error_threshold_percent must be in 1..100")
	case c.RollingWindow <= 0:
		return fmt.Errorf("core: resilience.rolling_window must be positive")
	case c.RollingBuckets <= 0:
		return fmt.Errorf("core: resilience.rolling_buckets must be positive")
	case c.ResetTimeout <= 0:
		return fmt.Errorf("core: resilience.reset_timeout must be positive")
	case c.DLQCapacity <= 0:
		return fmt.Errorf("core: resilience.dlq_capacity must be positive")
	case c.ReplayAttempts <= 0:
		return fmt.Errorf("core: resilience.replay_attempts must be positive")
	}
	return nil
}
