package core

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-config/cfgx"
	opts "github.com/goliatone/go-options"
)

type ConfigProvider interface {
	Load(ctx context.Context, defaults Config) (Config, error)
}

type RawConfigLoader interface {
	LoadRaw(ctx context.Context) (map[string]any, error)
}

type OptionsResolver interface {
	Resolve(defaults Config, loaded Config, runtime Config) (Config, error)
}

// StaticRawConfigLoader serves a fixed map, mostly for tests and embedding.
type StaticRawConfigLoader struct {
	Values map[string]any
}

func (l StaticRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	out := make(map[string]any, len(l.Values))
	for key, value := range l.Values {
		out[key] = value
	}
	return out, nil
}

// EnvRawConfigLoader reads PREFIX_SECTION_KEY variables for every key the
// default config declares. Values are parsed to the default's type.
type EnvRawConfigLoader struct {
	Prefix string
	Lookup func(string) (string, bool)
}

func NewEnvRawConfigLoader(prefix string) EnvRawConfigLoader {
	return EnvRawConfigLoader{Prefix: prefix, Lookup: os.LookupEnv}
}

func (l EnvRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	lookup := l.Lookup
	if lookup == nil {
		lookup = os.LookupEnv
	}
	prefix := strings.ToUpper(strings.Trim(strings.TrimSpace(l.Prefix), "_"))
	return envLayer(prefix, configToLayerMap(DefaultConfig(), true), lookup)
}

func envLayer(prefix string, shape map[string]any, lookup func(string) (string, bool)) (map[string]any, error) {
	out := map[string]any{}
	for key, sample := range shape {
		name := strings.ToUpper(key)
		if prefix != "" {
			name = prefix + "_" + name
		}
		if nested, ok := sample.(map[string]any); ok {
			child, err := envLayer(name, nested, lookup)
			if err != nil {
				return nil, err
			}
			if len(child) > 0 {
				out[key] = child
			}
			continue
		}
		raw, ok := lookup(name)
		if !ok {
			continue
		}
		value, err := parseEnvValue(raw, sample)
		if err != nil {
			return nil, fmt.Errorf("core: env %s: %w", name, err)
		}
		out[key] = value
	}
	return out, nil
}

func parseEnvValue(raw string, sample any) (any, error) {
	raw = strings.TrimSpace(raw)
	switch sample.(type) {
	case time.Duration:
		return time.ParseDuration(raw)
	case bool:
		return strconv.ParseBool(raw)
	case int:
		return strconv.Atoi(raw)
	case float64:
		return strconv.ParseFloat(raw, 64)
	default:
		return raw, nil
	}
}

type CfgxConfigProvider struct {
	Loader RawConfigLoader
}

func NewCfgxConfigProvider(loader RawConfigLoader) *CfgxConfigProvider {
	return &CfgxConfigProvider{Loader: loader}
}

func (p *CfgxConfigProvider) Load(ctx context.Context, defaults Config) (Config, error) {
	if p == nil {
		return defaults, nil
	}
	loader := p.Loader
	if loader == nil {
		loader = StaticRawConfigLoader{}
	}
	raw, err := loader.LoadRaw(ctx)
	if err != nil {
		return Config{}, err
	}
	return cfgx.Build[Config](raw,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
}

// GoOptionsResolver merges defaults < loaded config < runtime overrides.
// The loaded config already carries defaults so it is layered whole; only
// non-zero runtime values take part.
type GoOptionsResolver struct{}

func (GoOptionsResolver) Resolve(defaults Config, loaded Config, runtime Config) (Config, error) {
	stack, err := opts.NewStack(
		opts.NewLayer(
			opts.NewScope("defaults", 0),
			configToLayerMap(defaults, true),
			opts.WithSnapshotID[map[string]any]("defaults"),
		),
		opts.NewLayer(
			opts.NewScope("config", 10),
			configToLayerMap(loaded, true),
			opts.WithSnapshotID[map[string]any]("config"),
		),
		opts.NewLayer(
			opts.NewScope("runtime", 20),
			configToLayerMap(runtime, false),
			opts.WithSnapshotID[map[string]any]("runtime"),
		),
	)
	if err != nil {
		return Config{}, fmt.Errorf("core: options stack build failed: %w", err)
	}
	merged, err := stack.Merge()
	if err != nil {
		return Config{}, fmt.Errorf("core: options merge failed: %w", err)
	}
	resolved, err := cfgx.Build[Config](merged.Value,
		cfgx.WithDefaults(defaults),
		cfgx.WithValidator[Config]((*Config).Validate),
	)
	if err != nil {
		return Config{}, err
	}
	return resolved, nil
}

// ResolveConfig loads config through provider and layers runtime on top.
func ResolveConfig(ctx context.Context, provider ConfigProvider, resolver OptionsResolver, runtime Config) (Config, error) {
	defaults := DefaultConfig()
	if provider == nil {
		provider = NewCfgxConfigProvider(nil)
	}
	if resolver == nil {
		resolver = GoOptionsResolver{}
	}
	loaded, err := provider.Load(ctx, defaults)
	if err != nil {
		return Config{}, err
	}
	return resolver.Resolve(defaults, loaded, runtime)
}

func configToLayerMap(cfg Config, includeZero bool) map[string]any {
	layer := map[string]any{}
	putString(layer, "service_name", cfg.ServiceName, includeZero)
	putString(layer, "log_level", cfg.LogLevel, includeZero)
	putString(layer, "secret_key", cfg.SecretKey, includeZero)
	putValue(layer, "tenant_cache_ttl", cfg.TenantCacheTTL, includeZero || cfg.TenantCacheTTL != 0)

	shopify := map[string]any{}
	putString(shopify, "webhook_secret", cfg.Shopify.WebhookSecret, includeZero)
	putString(shopify, "api_version", cfg.Shopify.APIVersion, includeZero)
	putString(shopify, "bypass_token", cfg.Shopify.BypassToken, includeZero)
	putString(shopify, "webhook_address", cfg.Shopify.WebhookAddress, includeZero)
	putValue(shopify, "test_mode", cfg.Shopify.TestMode, includeZero || cfg.Shopify.TestMode)
	putValue(shopify, "page_limit", cfg.Shopify.PageLimit, includeZero || cfg.Shopify.PageLimit != 0)
	putSection(layer, "shopify", shopify)

	res := cfg.Resilience
	resilience := map[string]any{}
	putValue(resilience, "call_timeout", res.CallTimeout, includeZero || res.CallTimeout != 0)
	putValue(resilience, "error_threshold_percent", res.ErrorThresholdPercent, includeZero || res.ErrorThresholdPercent != 0)
	putValue(resilience, "rolling_window", res.RollingWindow, includeZero || res.RollingWindow != 0)
	putValue(resilience, "rolling_buckets", res.RollingBuckets, includeZero || res.RollingBuckets != 0)
	putValue(resilience, "reset_timeout", res.ResetTimeout, includeZero || res.ResetTimeout != 0)
	putValue(resilience, "minimum_requests", res.MinimumRequests, includeZero || res.MinimumRequests != 0)
	putValue(resilience, "dlq_capacity", res.DLQCapacity, includeZero || res.DLQCapacity != 0)
	putValue(resilience, "replay_attempts", res.ReplayAttempts, includeZero || res.ReplayAttempts != 0)
	putValue(resilience, "replay_base_delay", res.ReplayBaseDelay, includeZero || res.ReplayBaseDelay != 0)
	putValue(resilience, "replay_batch_size", res.ReplayBatchSize, includeZero || res.ReplayBatchSize != 0)
	putSection(layer, "resilience", resilience)

	rec := cfg.Reconcile
	reconcile := map[string]any{}
	putValue(reconcile, "enabled", rec.Enabled, includeZero || rec.Enabled)
	putString(reconcile, "schedule", rec.Schedule, includeZero)
	putValue(reconcile, "startup_delay", rec.StartupDelay, includeZero || rec.StartupDelay != 0)
	putValue(reconcile, "pacing_threshold", rec.PacingThreshold, includeZero || rec.PacingThreshold != 0)
	putSection(layer, "reconcile", reconcile)

	persistence := map[string]any{}
	putString(persistence, "driver", cfg.Persistence.Driver, includeZero)
	putString(persistence, "dsn", cfg.Persistence.DSN, includeZero)
	putValue(persistence, "debug", cfg.Persistence.Debug, includeZero || cfg.Persistence.Debug)
	putValue(persistence, "ping_timeout", cfg.Persistence.PingTimeout, includeZero || cfg.Persistence.PingTimeout != 0)
	putSection(layer, "persistence", persistence)

	httpSection := map[string]any{}
	putString(httpSection, "addr", cfg.HTTP.Addr, includeZero)
	putSection(layer, "http", httpSection)
	return layer
}

func putString(layer map[string]any, key string, value string, includeZero bool) {
	if includeZero || strings.TrimSpace(value) != "" {
		layer[key] = value
	}
}

func putValue(layer map[string]any, key string, value any, include bool) {
	if include {
		layer[key] = value
	}
}

func putSection(layer map[string]any, key string, section map[string]any) {
	if len(section) > 0 {
		layer[key] = section
	}
}
