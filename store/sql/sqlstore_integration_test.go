package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"testing"
	"time"

	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/goliatone/go-shopsync/core"
	shopmigrations "github.com/goliatone/go-shopsync/migrations"
	"github.com/goliatone/go-shopsync/security"
	sqlstore "github.com/goliatone/go-shopsync/store/sql"
	"github.com/goliatone/go-shopsync/transform"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-shopsync-tests"
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client := newSQLiteClient(t)

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"webhook_events",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "webhook_events" {
		t.Fatalf("expected webhook_events table, got %q", tableName)
	}
}

func TestTenantStore_LifecycleAndSyncMarkers(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	tenants := factory.TenantStore()

	tenant, err := tenants.Create(ctx, core.CreateTenantInput{
		Name:        "Demo",
		Email:       "owner@demo.test",
		ShopDomain:  "Demo.myshopify.com",
		AccessToken: "shpat_demo",
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if tenant.ShopDomain != "demo.myshopify.com" || !tenant.Active || tenant.AccessToken != "shpat_demo" {
		t.Fatalf("unexpected tenant %+v", tenant)
	}
	if _, err := tenants.Create(ctx, core.CreateTenantInput{
		Name: "Dup", Email: "other@demo.test", ShopDomain: "demo.myshopify.com",
	}); !core.IsConflict(err) {
		t.Fatalf("expected conflict for duplicate shop domain, got %v", err)
	}
	if _, err := tenants.Create(ctx, core.CreateTenantInput{
		Name: "No token", Email: "none@demo.test", ShopDomain: "none.myshopify.com",
	}); err != nil {
		t.Fatalf("create tokenless tenant: %v", err)
	}

	byDomain, err := tenants.GetByShopDomain(ctx, "demo.myshopify.com")
	if err != nil || byDomain.ID != tenant.ID {
		t.Fatalf("expected lookup by domain, got %+v %v", byDomain, err)
	}
	if _, err := tenants.GetByShopDomain(ctx, "missing.myshopify.com"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}

	syncable, err := tenants.ListSyncable(ctx)
	if err != nil {
		t.Fatalf("list syncable: %v", err)
	}
	if len(syncable) != 1 || syncable[0].ID != tenant.ID {
		t.Fatalf("expected only the tenant with a token, got %+v", syncable)
	}

	syncedAt := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := tenants.MarkSynced(ctx, tenant.ID, core.EntityOrders, syncedAt); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	reloaded, err := tenants.Get(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("get tenant: %v", err)
	}
	if reloaded.LastOrderSync == nil || !reloaded.LastOrderSync.Equal(syncedAt) {
		t.Fatalf("expected last order sync %v, got %v", syncedAt, reloaded.LastOrderSync)
	}
	if reloaded.LastProductSync != nil || reloaded.LastCustomerSync != nil {
		t.Fatalf("expected other entities untouched, got %+v", reloaded)
	}

	deactivated, err := tenants.Deactivate(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active || deactivated.AccessToken != "" {
		t.Fatalf("expected token cleared and tenant inactive, got %+v", deactivated)
	}
	if all, _ := tenants.List(ctx); len(all) != 2 {
		t.Fatalf("deactivation must keep the row, got %d tenants", len(all))
	}
	if _, err := tenants.Deactivate(ctx, "00000000-0000-0000-0000-000000000000"); !core.IsNotFound(err) {
		t.Fatalf("expected not found for unknown tenant, got %v", err)
	}
}

func TestTenantStore_SealsAccessTokens(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)
	secrets, err := security.NewAppKeySecretProviderFromString("test-app-key")
	if err != nil {
		t.Fatalf("secret provider: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithSecretProvider(secrets))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}

	tenant, err := factory.TenantStore().Create(ctx, core.CreateTenantInput{
		Name: "Sealed", Email: "sealed@demo.test", ShopDomain: "sealed.myshopify.com", AccessToken: "shpat_secret",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if tenant.AccessToken != "shpat_secret" {
		t.Fatalf("expected opened token on read, got %q", tenant.AccessToken)
	}

	var stored string
	if err := client.DB().NewRaw("SELECT access_token FROM tenants WHERE id = ?", tenant.ID).Scan(ctx, &stored); err != nil {
		t.Fatalf("read raw token: %v", err)
	}
	if !security.IsEnvelope([]byte(stored)) {
		t.Fatalf("expected sealed token at rest, got %q", stored)
	}
}

func TestEventStore_LogUpsertsOnDeliveryKey(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	tenant := createTenant(t, factory)
	events := factory.EventStore()

	first, err := events.Log(ctx, core.LogEventInput{
		TenantID: tenant.ID, ExternalID: "12345", Topic: core.TopicOrdersCreate, Payload: []byte(`{"id":12345}`),
	})
	if err != nil {
		t.Fatalf("log pending: %v", err)
	}
	if processed, _ := events.IsProcessed(ctx, tenant.ID, "12345", core.TopicOrdersCreate); processed {
		t.Fatalf("pending event must not count as processed")
	}

	second, err := events.Log(ctx, core.LogEventInput{
		TenantID: tenant.ID, ExternalID: "12345", Topic: core.TopicOrdersCreate, Payload: []byte(`{"id":12345}`), Processed: true,
	})
	if err != nil {
		t.Fatalf("log processed: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected the same row to be updated, got %s and %s", first.ID, second.ID)
	}
	if !second.Processed || second.ProcessedAt == nil {
		t.Fatalf("expected processed with timestamp, got %+v", second)
	}
	if processed, _ := events.IsProcessed(ctx, tenant.ID, "12345", core.TopicOrdersCreate); !processed {
		t.Fatalf("expected processed event")
	}
	if processed, _ := events.IsProcessed(ctx, tenant.ID, "12345", core.TopicOrdersUpdated); processed {
		t.Fatalf("topic is part of the delivery key")
	}

	failed, err := events.MarkFailed(ctx, second.ID, "boom")
	if err != nil {
		t.Fatalf("mark failed: %v", err)
	}
	if failed.Processed || failed.ProcessedAt != nil || failed.Error != "boom" {
		t.Fatalf("unexpected failed event %+v", failed)
	}
	retried, err := events.MarkProcessed(ctx, second.ID)
	if err != nil {
		t.Fatalf("mark processed: %v", err)
	}
	if !retried.Processed || retried.Error != "" || retried.ProcessedAt == nil {
		t.Fatalf("unexpected retried event %+v", retried)
	}
	if _, err := events.MarkProcessed(ctx, "00000000-0000-0000-0000-000000000000"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestEventStore_LogsDeliveriesWithoutTenant(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	events := factory.EventStore()

	first, err := events.Log(ctx, core.LogEventInput{Topic: core.TopicOrdersCreate, Payload: []byte(`{}`), Error: "unknown shop"})
	if err != nil {
		t.Fatalf("log tenantless event: %v", err)
	}
	if first.TenantID != "" || first.ExternalID != core.UnknownExternalID || first.Error != "unknown shop" {
		t.Fatalf("unexpected tenantless event %+v", first)
	}
	second, err := events.Log(ctx, core.LogEventInput{Topic: core.TopicOrdersCreate, Payload: []byte(`{}`), Error: "unknown shop"})
	if err != nil {
		t.Fatalf("log second tenantless event: %v", err)
	}
	if second.ID == first.ID {
		t.Fatalf("tenantless deliveries must not share a delivery key")
	}
	loaded, err := events.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get tenantless event: %v", err)
	}
	if loaded.TenantID != "" {
		t.Fatalf("expected empty tenant id, got %q", loaded.TenantID)
	}
}

func TestEventStore_ListFailedAndStats(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	tenant := createTenant(t, factory)
	events := factory.EventStore()

	seed := []core.LogEventInput{
		{ExternalID: "1", Topic: core.TopicOrdersCreate, Processed: true},
		{ExternalID: "2", Topic: core.TopicOrdersCreate, Processed: true},
		{ExternalID: "3", Topic: core.TopicOrdersCreate, Error: "bad"},
		{ExternalID: "4", Topic: core.TopicProductsUpdate, Processed: true},
	}
	for _, in := range seed {
		in.TenantID = tenant.ID
		in.Payload = []byte(`{}`)
		if _, err := events.Log(ctx, in); err != nil {
			t.Fatalf("seed %s: %v", in.ExternalID, err)
		}
	}

	failed, err := events.ListFailed(ctx, tenant.ID, 0)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(failed) != 1 || failed[0].ExternalID != "3" {
		t.Fatalf("expected one failed event, got %+v", failed)
	}

	processed := true
	page, err := events.List(ctx, core.EventFilter{TenantID: tenant.ID, Processed: &processed, PerPage: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 3 || page.Pages != 2 || len(page.Items) != 2 {
		t.Fatalf("unexpected page %+v", page)
	}

	stats, err := events.Stats(ctx, tenant.ID, time.Now().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if stats.TotalEvents != 4 || stats.FailedEvents != 1 || stats.SuccessRate != 75 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.ByTopic) != 3 {
		t.Fatalf("expected 3 topic groups, got %+v", stats.ByTopic)
	}
	if future, _ := events.Stats(ctx, tenant.ID, time.Now().Add(time.Hour)); future.TotalEvents != 0 {
		t.Fatalf("expected empty window, got %+v", future)
	}
}

func TestEntityStores_UpsertOverwritesEveryField(t *testing.T) {
	ctx := context.Background()
	factory := newFactory(t)
	tenant := createTenant(t, factory)
	transformer := transform.New(factory, nil)

	created, err := transformer.UpsertOrder(ctx, []byte(`{
		"id": 12345, "order_number": "TEST-001", "email": "a@demo.test",
		"total_price": "99.99", "subtotal_price": "90.00", "total_tax": "9.99", "currency": "eur",
		"customer": {"id": 77, "email": "buyer@demo.test", "first_name": "Ada"}
	}`), tenant.ID)
	if err != nil {
		t.Fatalf("create order: %v", err)
	}
	if created.CustomerID == "" {
		t.Fatalf("expected embedded customer to be linked")
	}

	updated, err := transformer.UpsertOrder(ctx, []byte(`{"id": 12345, "order_number": "TEST-001", "total_price": "120.50"}`), tenant.ID)
	if err != nil {
		t.Fatalf("update order: %v", err)
	}
	if updated.ID != created.ID {
		t.Fatalf("expected stable internal id, got %s and %s", created.ID, updated.ID)
	}

	stored, err := factory.OrderStore().GetByShopifyID(ctx, tenant.ID, "12345")
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	if !stored.TotalPrice.Valid || !stored.TotalPrice.Decimal.Equal(decimal.RequireFromString("120.50")) {
		t.Fatalf("expected total overwritten, got %+v", stored.TotalPrice)
	}
	if stored.SubtotalPrice.Valid || stored.TaxPrice.Valid || stored.Email != "" || stored.CustomerID != "" {
		t.Fatalf("expected last write to null omitted fields, got %+v", stored)
	}
	if stored.Currency != core.DefaultCurrency {
		t.Fatalf("expected default currency, got %q", stored.Currency)
	}

	if _, err := transformer.UpsertProduct(ctx, []byte(`{
		"id": 9, "title": "Shirt", "tags": "summer, sale", "variants": [{"price": "19.99", "sku": "SH-1"}]
	}`), tenant.ID); err != nil {
		t.Fatalf("upsert product: %v", err)
	}
	product, err := factory.ProductStore().GetByShopifyID(ctx, tenant.ID, "9")
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if len(product.Tags) != 2 || product.SKU != "SH-1" || product.Status != core.DefaultProductStat {
		t.Fatalf("unexpected product %+v", product)
	}

	customer, err := factory.CustomerStore().GetByShopifyID(ctx, tenant.ID, "77")
	if err != nil {
		t.Fatalf("get customer: %v", err)
	}
	if customer.Email != "buyer@demo.test" || customer.FirstName != "Ada" {
		t.Fatalf("unexpected customer %+v", customer)
	}
	if _, err := factory.CustomerStore().GetByShopifyID(ctx, tenant.ID, "404"); !core.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRepositoryFactory_PingAndCachedTenants(t *testing.T) {
	ctx := context.Background()
	client := newSQLiteClient(t)
	cacheService, err := sqlstore.NewTenantCacheService(time.Minute)
	if err != nil {
		t.Fatalf("cache service: %v", err)
	}
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, sqlstore.WithTenantCache(cacheService))
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	if err := factory.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	if _, ok := factory.TenantStore().(*sqlstore.CachedTenantStore); !ok {
		t.Fatalf("expected cached tenant store, got %T", factory.TenantStore())
	}

	tenant := createTenant(t, factory)
	if _, err := factory.TenantStore().GetByShopDomain(ctx, tenant.ShopDomain); err != nil {
		t.Fatalf("warm cache: %v", err)
	}
	if _, err := factory.TenantStore().Deactivate(ctx, tenant.ID); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	reloaded, err := factory.TenantStore().GetByShopDomain(ctx, tenant.ShopDomain)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Active {
		t.Fatalf("expected invalidated cache entry to reflect deactivation")
	}
}

func newFactory(t *testing.T) *sqlstore.RepositoryFactory {
	t.Helper()
	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(newSQLiteClient(t))
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	return factory
}

func createTenant(t *testing.T, factory *sqlstore.RepositoryFactory) core.Tenant {
	t.Helper()
	tenant, err := factory.TenantStore().Create(context.Background(), core.CreateTenantInput{
		Name:        "Demo",
		Email:       "owner@demo.test",
		ShopDomain:  "demo.myshopify.com",
		AccessToken: "shpat_demo",
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	return tenant
}

func newSQLiteClient(t *testing.T) *persistence.Client {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:shopsync-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	client, err := persistence.New(testPersistenceConfig{driver: "sqlite3", server: dsn}, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })

	ctx := context.Background()
	_, err = shopmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != shopmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, shopmigrations.WithValidationTargets(shopmigrations.DialectSQLite))
	if err != nil {
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return client
}
