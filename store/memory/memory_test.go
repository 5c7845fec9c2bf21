package memory

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/goliatone/go-shopsync/core"
)

func fixedClock() time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func TestTenantStore_CreateNormalizesAndRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	tenants := New().WithClock(fixedClock).TenantStore()

	tenant, err := tenants.Create(ctx, core.CreateTenantInput{
		Name:        " Demo ",
		Email:       "owner@demo.test",
		ShopDomain:  " Demo.MyShopify.com ",
		AccessToken: "shpat_demo",
	})
	if err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if tenant.ShopDomain != "demo.myshopify.com" || tenant.Name != "Demo" || !tenant.Active {
		t.Fatalf("unexpected tenant %#v", tenant)
	}

	found, err := tenants.GetByShopDomain(ctx, "DEMO.myshopify.com")
	if err != nil || found.ID != tenant.ID {
		t.Fatalf("expected lookup by domain, got %#v %v", found, err)
	}
	if _, err := tenants.GetByShopDomain(ctx, "other.myshopify.com"); !core.IsNotFound(err) {
		t.Fatalf("expected tenant not found, got %v", err)
	}

	_, err = tenants.Create(ctx, core.CreateTenantInput{Email: "other@demo.test", ShopDomain: "demo.myshopify.com"})
	if !core.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate domain, got %v", err)
	}
	_, err = tenants.Create(ctx, core.CreateTenantInput{Email: "owner@demo.test", ShopDomain: "second.myshopify.com"})
	if !core.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
}

func TestTenantStore_DeactivateAndSyncMarkers(t *testing.T) {
	ctx := context.Background()
	tenants := New().WithClock(fixedClock).TenantStore()
	active, _ := tenants.Create(ctx, core.CreateTenantInput{Email: "a@demo.test", ShopDomain: "a.myshopify.com", AccessToken: "tok_a"})
	idle, _ := tenants.Create(ctx, core.CreateTenantInput{Email: "b@demo.test", ShopDomain: "b.myshopify.com"})

	syncable, _ := tenants.ListSyncable(ctx)
	if len(syncable) != 1 || syncable[0].ID != active.ID {
		t.Fatalf("expected only the token holder to be syncable, got %#v", syncable)
	}

	deactivated, err := tenants.Deactivate(ctx, active.ID)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active || deactivated.AccessToken != "" {
		t.Fatalf("expected token cleared and inactive, got %#v", deactivated)
	}
	if syncable, _ = tenants.ListSyncable(ctx); len(syncable) != 0 {
		t.Fatalf("expected no syncable tenants, got %d", len(syncable))
	}

	reinstalled, err := tenants.UpdateAccessToken(ctx, idle.ID, "tok_b")
	if err != nil || !reinstalled.CanSync() {
		t.Fatalf("expected reinstalled tenant to sync, got %#v %v", reinstalled, err)
	}

	at := fixedClock().Add(time.Hour)
	if err := tenants.MarkSynced(ctx, idle.ID, core.EntityProducts, at); err != nil {
		t.Fatalf("mark synced: %v", err)
	}
	got, _ := tenants.Get(ctx, idle.ID)
	if got.LastProductSync == nil || !got.LastProductSync.Equal(at) || got.LastOrderSync != nil {
		t.Fatalf("expected only product sync marker, got %#v", got)
	}
	if err := tenants.MarkSynced(ctx, "missing", core.EntityOrders, at); !core.IsNotFound(err) {
		t.Fatalf("expected not found for unknown tenant, got %v", err)
	}
}

func TestEventStore_LogUpsertsOnTenantTopicExternalID(t *testing.T) {
	ctx := context.Background()
	events := New().WithClock(fixedClock).EventStore()

	first, err := events.Log(ctx, core.LogEventInput{TenantID: "t1", ExternalID: "1", Topic: core.TopicOrdersCreate, Payload: []byte(`{}`), Error: "boom"})
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	processed, _ := events.IsProcessed(ctx, "t1", "1", core.TopicOrdersCreate)
	if processed {
		t.Fatalf("failed event must not count as processed")
	}

	second, err := events.Log(ctx, core.LogEventInput{TenantID: "t1", ExternalID: "1", Topic: core.TopicOrdersCreate, Payload: []byte(`{"v":2}`), Processed: true})
	if err != nil {
		t.Fatalf("relog: %v", err)
	}
	if second.ID != first.ID || second.Error != "" || second.ProcessedAt == nil || string(second.Payload) != `{"v":2}` {
		t.Fatalf("expected overwrite of the same row, got %#v", second)
	}
	if processed, _ = events.IsProcessed(ctx, "t1", "1", core.TopicOrdersCreate); !processed {
		t.Fatalf("expected processed after relog")
	}

	other, _ := events.Log(ctx, core.LogEventInput{TenantID: "t1", ExternalID: "1", Topic: core.TopicOrdersUpdated})
	if other.ID == first.ID {
		t.Fatalf("different topic must create a separate event")
	}
}

func TestEventStore_ListFailedAndStats(t *testing.T) {
	ctx := context.Background()
	events := New().WithClock(fixedClock).EventStore()
	for _, in := range []core.LogEventInput{
		{TenantID: "t1", ExternalID: "1", Topic: core.TopicOrdersCreate, Processed: true},
		{TenantID: "t1", ExternalID: "2", Topic: core.TopicOrdersCreate, Error: "boom"},
		{TenantID: "t1", ExternalID: "3", Topic: core.TopicProductsUpdate, Error: "bad"},
		{TenantID: "t2", ExternalID: "4", Topic: core.TopicOrdersCreate, Error: "other tenant"},
	} {
		if _, err := events.Log(ctx, in); err != nil {
			t.Fatalf("log: %v", err)
		}
	}

	failed, _ := events.ListFailed(ctx, "t1", 0)
	if len(failed) != 2 || failed[0].ExternalID != "2" || failed[1].ExternalID != "3" {
		t.Fatalf("expected oldest-first failed events for t1, got %#v", failed)
	}
	if limited, _ := events.ListFailed(ctx, "t1", 1); len(limited) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(limited))
	}

	processedOnly := false
	page, _ := events.List(ctx, core.EventFilter{TenantID: "t1", Processed: &processedOnly, PerPage: 1, Page: 2})
	if page.Total != 2 || page.Pages != 2 || len(page.Items) != 1 || page.Items[0].ExternalID != "2" {
		t.Fatalf("expected newest-first pagination, got %#v", page)
	}

	stats, _ := events.Stats(ctx, "t1", fixedClock().Add(-24*time.Hour))
	if stats.TotalEvents != 3 || stats.FailedEvents != 2 || len(stats.ByTopic) != 3 {
		t.Fatalf("unexpected stats %#v", stats)
	}
	if stats.SuccessRate < 33.3 || stats.SuccessRate > 33.4 {
		t.Fatalf("expected one third success rate, got %v", stats.SuccessRate)
	}
	if future, _ := events.Stats(ctx, "t1", fixedClock().Add(time.Hour)); future.TotalEvents != 0 || future.SuccessRate != 0 {
		t.Fatalf("expected empty window, got %#v", future)
	}
}

func TestEntityUpsertsOverwriteAndKeepIdentity(t *testing.T) {
	ctx := context.Background()
	stores := New().WithClock(fixedClock)

	order, _ := stores.OrderStore().Upsert(ctx, core.Order{
		TenantID:   "t1",
		ShopifyID:  "100",
		TotalPrice: decimal.NewNullDecimal(decimal.RequireFromString("10.50")),
		TaxPrice:   decimal.NewNullDecimal(decimal.RequireFromString("1.00")),
	})
	updated, _ := stores.OrderStore().Upsert(ctx, core.Order{TenantID: "t1", ShopifyID: "100", TotalPrice: decimal.NewNullDecimal(decimal.RequireFromString("12"))})
	if updated.ID != order.ID || !updated.CreatedAt.Equal(order.CreatedAt) || updated.TaxPrice.Valid {
		t.Fatalf("expected last write to win with identity kept, got %#v", updated)
	}

	tags := []string{"a", "b"}
	product, _ := stores.ProductStore().Upsert(ctx, core.Product{TenantID: "t1", ShopifyID: "200", Tags: tags})
	tags[0] = "mutated"
	stored, _ := stores.ProductStore().GetByShopifyID(ctx, "t1", "200")
	if stored.ID != product.ID || stored.Tags[0] != "a" {
		t.Fatalf("expected stored tags to be copied, got %#v", stored.Tags)
	}

	if _, err := stores.CustomerStore().GetByShopifyID(ctx, "t1", "300"); !core.IsNotFound(err) {
		t.Fatalf("expected missing customer, got %v", err)
	}
	customer, _ := stores.CustomerStore().Upsert(ctx, core.Customer{TenantID: "t1", ShopifyID: "300", Email: "c@demo.test"})
	again, _ := stores.CustomerStore().Upsert(ctx, core.Customer{TenantID: "t1", ShopifyID: "300"})
	if again.ID != customer.ID || again.Email != "" {
		t.Fatalf("expected email overwritten with empty value, got %#v", again)
	}
}
