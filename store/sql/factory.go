package sqlstore

import (
	"context"
	"fmt"

	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	"github.com/goliatone/go-shopsync/core"
	"github.com/uptrace/bun"
)

// RepositoryFactory builds the bun-backed store set from a persistence
// client or a bare *bun.DB.
type RepositoryFactory struct {
	db       *bun.DB
	secrets  core.SecretProvider
	cache    repositorycache.CacheService
	observer *core.Observer

	tenantStore   core.TenantStore
	eventStore    *EventStore
	orderStore    *OrderStore
	productStore  *ProductStore
	customerStore *CustomerStore
}

type FactoryOption func(*RepositoryFactory)

// WithSecretProvider seals tenant access tokens at rest.
func WithSecretProvider(provider core.SecretProvider) FactoryOption {
	return func(f *RepositoryFactory) {
		f.secrets = provider
	}
}

// WithTenantCache fronts the tenant store with a CachedTenantStore.
func WithTenantCache(cacheService repositorycache.CacheService) FactoryOption {
	return func(f *RepositoryFactory) {
		f.cache = cacheService
	}
}

// WithObserver reports store side effects, such as failed cache
// invalidations, that do not fail the calling operation.
func WithObserver(observer *core.Observer) FactoryOption {
	return func(f *RepositoryFactory) {
		f.observer = observer
	}
}

func NewRepositoryFactory(opts ...FactoryOption) *RepositoryFactory {
	factory := &RepositoryFactory{}
	for _, opt := range opts {
		if opt != nil {
			opt(factory)
		}
	}
	return factory
}

func NewRepositoryFactoryFromPersistence(client *persistence.Client, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(client); err != nil {
		return nil, err
	}
	return factory, nil
}

func NewRepositoryFactoryFromDB(db *bun.DB, opts ...FactoryOption) (*RepositoryFactory, error) {
	factory := NewRepositoryFactory(opts...)
	if _, err := factory.BuildStores(db); err != nil {
		return nil, err
	}
	return factory, nil
}

func (f *RepositoryFactory) BuildStores(persistenceClient any) (core.StoreProvider, error) {
	if f == nil {
		return nil, fmt.Errorf("sqlstore: repository factory is nil")
	}
	if f.db == nil {
		db, err := resolveBunDB(persistenceClient)
		if err != nil {
			return nil, err
		}
		f.db = db
	}
	if f.tenantStore != nil && f.eventStore != nil {
		return f, nil
	}
	if err := f.initStores(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *RepositoryFactory) DB() *bun.DB {
	if f == nil {
		return nil
	}
	return f.db
}

func (f *RepositoryFactory) TenantStore() core.TenantStore {
	if f == nil {
		return nil
	}
	return f.tenantStore
}

func (f *RepositoryFactory) EventStore() core.EventStore {
	if f == nil || f.eventStore == nil {
		return nil
	}
	return f.eventStore
}

func (f *RepositoryFactory) OrderStore() core.OrderStore {
	if f == nil || f.orderStore == nil {
		return nil
	}
	return f.orderStore
}

func (f *RepositoryFactory) ProductStore() core.ProductStore {
	if f == nil || f.productStore == nil {
		return nil
	}
	return f.productStore
}

func (f *RepositoryFactory) CustomerStore() core.CustomerStore {
	if f == nil || f.customerStore == nil {
		return nil
	}
	return f.customerStore
}

// Ping probes the database for health checks.
func (f *RepositoryFactory) Ping(ctx context.Context) error {
	if f == nil || f.db == nil {
		return notConfigured("repository factory")
	}
	return f.db.PingContext(ctx)
}

func (f *RepositoryFactory) initStores() error {
	tenantStore, err := NewTenantStore(f.db, f.secrets)
	if err != nil {
		return err
	}
	f.tenantStore = tenantStore
	if f.cache != nil {
		cached, err := NewCachedTenantStore(tenantStore, f.cache)
		if err != nil {
			return err
		}
		f.tenantStore = cached.WithObserver(f.observer)
	}
	if f.eventStore, err = NewEventStore(f.db); err != nil {
		return err
	}
	if f.orderStore, err = NewOrderStore(f.db); err != nil {
		return err
	}
	if f.productStore, err = NewProductStore(f.db); err != nil {
		return err
	}
	if f.customerStore, err = NewCustomerStore(f.db); err != nil {
		return err
	}
	return nil
}

func resolveBunDB(candidate any) (*bun.DB, error) {
	switch typed := candidate.(type) {
	case nil:
		return nil, fmt.Errorf("sqlstore: persistence client is required")
	case *bun.DB:
		return typed, nil
	case interface{ DB() *bun.DB }:
		db := typed.DB()
		if db == nil {
			return nil, fmt.Errorf("sqlstore: persistence client returned nil bun db")
		}
		return db, nil
	default:
		return nil, fmt.Errorf("sqlstore: unsupported persistence client type %T", candidate)
	}
}

var (
	_ core.StoreProvider = (*RepositoryFactory)(nil)
	_ core.HealthChecker = (*RepositoryFactory)(nil)
)
