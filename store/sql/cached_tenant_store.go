package sqlstore

import (
	"context"
	"net/url"
	"strings"
	"time"

	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-shopsync/core"
)

const tenantCacheKeyPrefix = "go-shopsync::tenant::v1"

// CachedTenantStore reads tenants through a go-repository-cache service.
// Writes go to the base store and then drop the id and shop domain keys of
// the affected tenant. A failed drop is logged and never fails a write that
// already committed; the stale entry ages out with the cache TTL.
type CachedTenantStore struct {
	base     core.TenantStore
	cache    repositorycache.CacheService
	observer *core.Observer
}

func NewCachedTenantStore(base core.TenantStore, cacheService repositorycache.CacheService) (*CachedTenantStore, error) {
	if base == nil {
		return nil, core.InternalError(nil, "sqlstore: base tenant store is required")
	}
	if cacheService == nil {
		return nil, core.InternalError(nil, "sqlstore: tenant cache service is required")
	}
	return &CachedTenantStore{base: base, cache: cacheService}, nil
}

// WithObserver sets where invalidation failures are reported.
func (s *CachedTenantStore) WithObserver(observer *core.Observer) *CachedTenantStore {
	if s != nil {
		s.observer = observer
	}
	return s
}

// NewTenantCacheService builds the cache service used for tenant lookups.
func NewTenantCacheService(ttl time.Duration) (repositorycache.CacheService, error) {
	config := repositorycache.DefaultConfig()
	if ttl > 0 {
		config.TTL = ttl
	}
	return repositorycache.NewCacheService(config)
}

// TenantCacheKey returns go-shopsync::tenant::v1::<kind>::<value>, with the
// value URL-path escaped.
func TenantCacheKey(kind string, value string) string {
	return strings.Join([]string{
		tenantCacheKeyPrefix,
		url.PathEscape(strings.TrimSpace(kind)),
		url.PathEscape(strings.ToLower(strings.TrimSpace(value))),
	}, "::")
}

func (s *CachedTenantStore) Get(ctx context.Context, id string) (core.Tenant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	id = strings.TrimSpace(id)
	return repositorycache.GetOrFetch(ctx, s.cache, TenantCacheKey("id", id), func(ctx context.Context) (core.Tenant, error) {
		return s.base.Get(ctx, id)
	})
}

func (s *CachedTenantStore) GetByShopDomain(ctx context.Context, shopDomain string) (core.Tenant, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	return repositorycache.GetOrFetch(ctx, s.cache, TenantCacheKey("domain", shopDomain), func(ctx context.Context) (core.Tenant, error) {
		return s.base.GetByShopDomain(ctx, shopDomain)
	})
}

func (s *CachedTenantStore) Create(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	if s == nil || s.base == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	tenant, err := s.base.Create(ctx, in)
	if err != nil {
		return core.Tenant{}, err
	}
	s.invalidate(ctx, tenant)
	return tenant, nil
}

func (s *CachedTenantStore) List(ctx context.Context) ([]core.Tenant, error) {
	if s == nil || s.base == nil {
		return nil, notConfigured("cached tenant")
	}
	return s.base.List(ctx)
}

func (s *CachedTenantStore) ListSyncable(ctx context.Context) ([]core.Tenant, error) {
	if s == nil || s.base == nil {
		return nil, notConfigured("cached tenant")
	}
	return s.base.ListSyncable(ctx)
}

func (s *CachedTenantStore) Deactivate(ctx context.Context, id string) (core.Tenant, error) {
	if s == nil || s.base == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	tenant, err := s.base.Deactivate(ctx, id)
	if err != nil {
		return core.Tenant{}, err
	}
	s.invalidate(ctx, tenant)
	return tenant, nil
}

func (s *CachedTenantStore) UpdateAccessToken(ctx context.Context, id string, accessToken string) (core.Tenant, error) {
	if s == nil || s.base == nil {
		return core.Tenant{}, notConfigured("cached tenant")
	}
	tenant, err := s.base.UpdateAccessToken(ctx, id, accessToken)
	if err != nil {
		return core.Tenant{}, err
	}
	s.invalidate(ctx, tenant)
	return tenant, nil
}

func (s *CachedTenantStore) MarkSynced(ctx context.Context, id string, entity core.EntityType, at time.Time) error {
	if s == nil || s.base == nil {
		return notConfigured("cached tenant")
	}
	if err := s.base.MarkSynced(ctx, id, entity, at); err != nil {
		return err
	}
	tenant, err := s.base.Get(ctx, id)
	if err != nil {
		s.observer.Warn(ctx, "tenant cache invalidation skipped", map[string]any{
			"tenant_id": id,
			"error":     err.Error(),
		})
		return nil
	}
	s.invalidate(ctx, tenant)
	return nil
}

func (s *CachedTenantStore) invalidate(ctx context.Context, tenant core.Tenant) {
	if s.cache == nil {
		return
	}
	keys := []string{TenantCacheKey("id", tenant.ID), TenantCacheKey("domain", tenant.ShopDomain)}
	for _, key := range keys {
		if err := s.cache.Delete(ctx, key); err != nil {
			s.observer.Warn(ctx, "tenant cache invalidation failed", map[string]any{
				"tenant_id": tenant.ID,
				"cache_key": key,
				"error":     err.Error(),
			})
		}
	}
}

var _ core.TenantStore = (*CachedTenantStore)(nil)
