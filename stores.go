package shopsync

import (
	"fmt"
	"strings"

	persistence "github.com/goliatone/go-persistence-bun"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/security"
	"github.com/goliatone/go-shopsync/store/memory"
	sqlstore "github.com/goliatone/go-shopsync/store/sql"
)

// NewSQLStores builds the bun-backed store set over a migrated persistence
// client. Access tokens are sealed when cfg.SecretKey is set and tenant
// lookups are cached for cfg.TenantCacheTTL. extra options are applied
// after the config derived ones.
func NewSQLStores(client *persistence.Client, cfg core.Config, extra ...sqlstore.FactoryOption) (*sqlstore.RepositoryFactory, error) {
	if client == nil {
		return nil, core.InternalError(nil, "shopsync: persistence client is required")
	}
	opts := []sqlstore.FactoryOption{}
	if key := strings.TrimSpace(cfg.SecretKey); key != "" {
		secrets, err := security.NewAppKeySecretProviderFromString(key)
		if err != nil {
			return nil, fmt.Errorf("shopsync: secret provider: %w", err)
		}
		opts = append(opts, sqlstore.WithSecretProvider(secrets))
	}
	if cfg.TenantCacheTTL > 0 {
		cacheService, err := sqlstore.NewTenantCacheService(cfg.TenantCacheTTL)
		if err != nil {
			return nil, fmt.Errorf("shopsync: tenant cache: %w", err)
		}
		opts = append(opts, sqlstore.WithTenantCache(cacheService))
	}
	return sqlstore.NewRepositoryFactoryFromPersistence(client, append(opts, extra...)...)
}

// resolveStores picks, in order: an injected provider, the sql stores over
// an injected persistence client, or the in-memory set for driver "memory".
func resolveStores(cfg core.Config, o options) (core.StoreProvider, error) {
	if o.stores != nil {
		return o.stores, nil
	}
	if o.persistence != nil {
		observer := core.NewObserver("sqlstore", o.loggerProvider, nil, o.metrics)
		return NewSQLStores(o.persistence, cfg, sqlstore.WithObserver(observer))
	}
	if strings.EqualFold(strings.TrimSpace(cfg.Persistence.Driver), "memory") {
		return memory.New(), nil
	}
	return nil, core.InternalError(nil, fmt.Sprintf(
		"shopsync: driver %q needs a persistence client", cfg.Persistence.Driver,
	))
}
