// Package memory provides map-backed implementations of the core store
// contracts. They mirror the SQL stores' semantics closely enough for tests
// and single-process runs.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-shopsync/core"
)

type Stores struct {
	mu        sync.RWMutex
	now       func() time.Time
	tenants   map[string]core.Tenant
	events    map[string]core.WebhookEvent
	orders    map[string]core.Order
	products  map[string]core.Product
	customers map[string]core.Customer
	seq       int64
}

func New() *Stores {
	return &Stores{
		now:       func() time.Time { return time.Now().UTC() },
		tenants:   map[string]core.Tenant{},
		events:    map[string]core.WebhookEvent{},
		orders:    map[string]core.Order{},
		products:  map[string]core.Product{},
		customers: map[string]core.Customer{},
	}
}

// WithClock pins the timestamps the stores assign.
func (s *Stores) WithClock(now func() time.Time) *Stores {
	if now != nil {
		s.now = now
	}
	return s
}

func (s *Stores) TenantStore() core.TenantStore     { return tenantStore{s} }
func (s *Stores) EventStore() core.EventStore       { return eventStore{s} }
func (s *Stores) OrderStore() core.OrderStore       { return orderStore{s} }
func (s *Stores) ProductStore() core.ProductStore   { return productStore{s} }
func (s *Stores) CustomerStore() core.CustomerStore { return customerStore{s} }

func (s *Stores) Ping(context.Context) error { return nil }

// stamp returns a strictly increasing time so ordering by created_at is
// stable even under a fixed clock.
func (s *Stores) stamp() time.Time {
	s.seq++
	return s.now().Add(time.Duration(s.seq) * time.Microsecond)
}

func entityKey(tenantID string, shopifyID string) string {
	return tenantID + "|" + shopifyID
}

func eventKey(tenantID string, topic core.Topic, externalID string) string {
	return tenantID + "|" + topic.String() + "|" + externalID
}

type tenantStore struct{ s *Stores }

func (t tenantStore) Get(_ context.Context, id string) (core.Tenant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	tenant, ok := t.s.tenants[strings.TrimSpace(id)]
	if !ok {
		return core.Tenant{}, core.NotFoundError("Tenant not found", map[string]any{"tenant_id": id})
	}
	return tenant, nil
}

func (t tenantStore) GetByShopDomain(_ context.Context, shopDomain string) (core.Tenant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	for _, tenant := range t.s.tenants {
		if tenant.ShopDomain == shopDomain {
			return tenant, nil
		}
	}
	return core.Tenant{}, core.TenantNotFoundError(shopDomain)
}

func (t tenantStore) Create(_ context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	domain := strings.ToLower(strings.TrimSpace(in.ShopDomain))
	email := strings.TrimSpace(in.Email)
	for _, existing := range t.s.tenants {
		if existing.ShopDomain == domain || (email != "" && existing.Email == email) {
			return core.Tenant{}, core.ConflictError("tenant already exists", map[string]any{"shop_domain": domain})
		}
	}
	now := t.s.stamp()
	tenant := core.Tenant{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Email:       email,
		ShopDomain:  domain,
		AccessToken: in.AccessToken,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.s.tenants[tenant.ID] = tenant
	return tenant, nil
}

func (t tenantStore) List(context.Context) ([]core.Tenant, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	out := make([]core.Tenant, 0, len(t.s.tenants))
	for _, tenant := range t.s.tenants {
		out = append(out, tenant)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (t tenantStore) ListSyncable(ctx context.Context) ([]core.Tenant, error) {
	all, _ := t.List(ctx)
	out := make([]core.Tenant, 0, len(all))
	for _, tenant := range all {
		if tenant.CanSync() {
			out = append(out, tenant)
		}
	}
	return out, nil
}

func (t tenantStore) Deactivate(ctx context.Context, id string) (core.Tenant, error) {
	return t.update(id, func(tenant *core.Tenant) {
		tenant.Active = false
		tenant.AccessToken = ""
	})
}

func (t tenantStore) UpdateAccessToken(_ context.Context, id string, accessToken string) (core.Tenant, error) {
	return t.update(id, func(tenant *core.Tenant) {
		tenant.AccessToken = accessToken
		tenant.Active = true
	})
}

func (t tenantStore) MarkSynced(_ context.Context, id string, entity core.EntityType, at time.Time) error {
	_, err := t.update(id, func(tenant *core.Tenant) {
		at := at.UTC()
		switch entity {
		case core.EntityOrders:
			tenant.LastOrderSync = &at
		case core.EntityProducts:
			tenant.LastProductSync = &at
		case core.EntityCustomers:
			tenant.LastCustomerSync = &at
		}
	})
	return err
}

func (t tenantStore) update(id string, mutate func(*core.Tenant)) (core.Tenant, error) {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	tenant, ok := t.s.tenants[strings.TrimSpace(id)]
	if !ok {
		return core.Tenant{}, core.NotFoundError("Tenant not found", map[string]any{"tenant_id": id})
	}
	mutate(&tenant)
	tenant.UpdatedAt = t.s.stamp()
	t.s.tenants[tenant.ID] = tenant
	return tenant, nil
}

type eventStore struct{ s *Stores }

func (e eventStore) IsProcessed(_ context.Context, tenantID string, externalID string, topic core.Topic) (bool, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	for _, event := range e.s.events {
		if eventKey(event.TenantID, event.Topic, event.ExternalID) == eventKey(tenantID, topic, externalID) {
			return event.Processed, nil
		}
	}
	return false, nil
}

func (e eventStore) Log(_ context.Context, in core.LogEventInput) (core.WebhookEvent, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	now := e.s.stamp()
	key := eventKey(in.TenantID, in.Topic, in.ExternalID)
	var event core.WebhookEvent
	for _, existing := range e.s.events {
		if eventKey(existing.TenantID, existing.Topic, existing.ExternalID) == key {
			event = existing
			break
		}
	}
	if event.ID == "" {
		event = core.WebhookEvent{
			ID:         uuid.NewString(),
			TenantID:   in.TenantID,
			ExternalID: in.ExternalID,
			Topic:      in.Topic,
			CreatedAt:  now,
		}
	}
	event.Payload = append([]byte(nil), in.Payload...)
	event.Processed = in.Processed
	event.Error = in.Error
	event.ProcessedAt = nil
	if in.Processed {
		event.ProcessedAt = &now
	}
	event.UpdatedAt = now
	e.s.events[event.ID] = event
	return event, nil
}

func (e eventStore) Get(_ context.Context, id string) (core.WebhookEvent, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	event, ok := e.s.events[strings.TrimSpace(id)]
	if !ok {
		return core.WebhookEvent{}, core.NotFoundError("Webhook event not found", map[string]any{"event_id": id})
	}
	return event, nil
}

func (e eventStore) List(_ context.Context, filter core.EventFilter) (core.EventPage, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	page, perPage := normalizePage(filter.Page, filter.PerPage)
	matched := make([]core.WebhookEvent, 0)
	for _, event := range e.s.events {
		if filter.TenantID != "" && event.TenantID != filter.TenantID {
			continue
		}
		if filter.Topic != "" && event.Topic != filter.Topic {
			continue
		}
		if filter.Processed != nil && event.Processed != *filter.Processed {
			continue
		}
		matched = append(matched, event)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	start := (page - 1) * perPage
	if start > total {
		start = total
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return core.EventPage{
		Items:   append([]core.WebhookEvent(nil), matched[start:end]...),
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
	}, nil
}

func (e eventStore) ListFailed(_ context.Context, tenantID string, limit int) ([]core.WebhookEvent, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	out := make([]core.WebhookEvent, 0)
	for _, event := range e.s.events {
		if event.TenantID == tenantID && !event.Processed {
			out = append(out, event)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (e eventStore) Stats(_ context.Context, tenantID string, since time.Time) (core.EventStats, error) {
	e.s.mu.RLock()
	defer e.s.mu.RUnlock()
	stats := core.EventStats{TenantID: tenantID, Since: since}
	counts := map[core.TopicStat]int{}
	for _, event := range e.s.events {
		if event.TenantID != tenantID || event.CreatedAt.Before(since) {
			continue
		}
		stats.TotalEvents++
		if !event.Processed {
			stats.FailedEvents++
		}
		counts[core.TopicStat{Topic: event.Topic, Processed: event.Processed}]++
	}
	for key, count := range counts {
		key.Count = count
		stats.ByTopic = append(stats.ByTopic, key)
	}
	sort.Slice(stats.ByTopic, func(i, j int) bool {
		if stats.ByTopic[i].Topic != stats.ByTopic[j].Topic {
			return stats.ByTopic[i].Topic < stats.ByTopic[j].Topic
		}
		return stats.ByTopic[i].Processed && !stats.ByTopic[j].Processed
	})
	stats.SuccessRate = successRate(stats.TotalEvents, stats.FailedEvents)
	return stats, nil
}

func (e eventStore) MarkProcessed(_ context.Context, id string) (core.WebhookEvent, error) {
	return e.update(id, func(event *core.WebhookEvent, now time.Time) {
		event.Processed = true
		event.ProcessedAt = &now
		event.Error = ""
	})
}

func (e eventStore) MarkFailed(_ context.Context, id string, message string) (core.WebhookEvent, error) {
	return e.update(id, func(event *core.WebhookEvent, _ time.Time) {
		event.Processed = false
		event.ProcessedAt = nil
		event.Error = message
	})
}

func (e eventStore) update(id string, mutate func(*core.WebhookEvent, time.Time)) (core.WebhookEvent, error) {
	e.s.mu.Lock()
	defer e.s.mu.Unlock()
	event, ok := e.s.events[strings.TrimSpace(id)]
	if !ok {
		return core.WebhookEvent{}, core.NotFoundError("Webhook event not found", map[string]any{"event_id": id})
	}
	now := e.s.stamp()
	mutate(&event, now)
	event.UpdatedAt = now
	e.s.events[event.ID] = event
	return event, nil
}

type orderStore struct{ s *Stores }

func (o orderStore) Upsert(_ context.Context, order core.Order) (core.Order, error) {
	o.s.mu.Lock()
	defer o.s.mu.Unlock()
	now := o.s.stamp()
	key := entityKey(order.TenantID, order.ShopifyID)
	if existing, ok := o.s.orders[key]; ok {
		order.ID = existing.ID
		order.CreatedAt = existing.CreatedAt
	} else {
		order.ID = uuid.NewString()
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	o.s.orders[key] = order
	return order, nil
}

func (o orderStore) GetByShopifyID(_ context.Context, tenantID string, shopifyID string) (core.Order, error) {
	o.s.mu.RLock()
	defer o.s.mu.RUnlock()
	order, ok := o.s.orders[entityKey(tenantID, shopifyID)]
	if !ok {
		return core.Order{}, core.NotFoundError("order not found", map[string]any{"shopify_id": shopifyID})
	}
	return order, nil
}

type productStore struct{ s *Stores }

func (p productStore) Upsert(_ context.Context, product core.Product) (core.Product, error) {
	p.s.mu.Lock()
	defer p.s.mu.Unlock()
	now := p.s.stamp()
	key := entityKey(product.TenantID, product.ShopifyID)
	if existing, ok := p.s.products[key]; ok {
		product.ID = existing.ID
		product.CreatedAt = existing.CreatedAt
	} else {
		product.ID = uuid.NewString()
		product.CreatedAt = now
	}
	product.Tags = append([]string(nil), product.Tags...)
	product.UpdatedAt = now
	p.s.products[key] = product
	return product, nil
}

func (p productStore) GetByShopifyID(_ context.Context, tenantID string, shopifyID string) (core.Product, error) {
	p.s.mu.RLock()
	defer p.s.mu.RUnlock()
	product, ok := p.s.products[entityKey(tenantID, shopifyID)]
	if !ok {
		return core.Product{}, core.NotFoundError("product not found", map[string]any{"shopify_id": shopifyID})
	}
	return product, nil
}

type customerStore struct{ s *Stores }

func (c customerStore) Upsert(_ context.Context, customer core.Customer) (core.Customer, error) {
	c.s.mu.Lock()
	defer c.s.mu.Unlock()
	now := c.s.stamp()
	key := entityKey(customer.TenantID, customer.ShopifyID)
	if existing, ok := c.s.customers[key]; ok {
		customer.ID = existing.ID
		customer.CreatedAt = existing.CreatedAt
	} else {
		customer.ID = uuid.NewString()
		customer.CreatedAt = now
	}
	customer.UpdatedAt = now
	c.s.customers[key] = customer
	return customer, nil
}

func (c customerStore) GetByShopifyID(_ context.Context, tenantID string, shopifyID string) (core.Customer, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	customer, ok := c.s.customers[entityKey(tenantID, shopifyID)]
	if !ok {
		return core.Customer{}, core.NotFoundError("customer not found", map[string]any{"shopify_id": shopifyID})
	}
	return customer, nil
}

func normalizePage(page int, perPage int) (int, int) {
	if page <= 0 {
		page = 1
	}
	if perPage <= 0 {
		perPage = 50
	}
	return page, perPage
}

func successRate(total int, failed int) float64 {
	if total == 0 {
		return 0
	}
	return float64(total-failed) / float64(total) * 100
}

var (
	_ core.StoreProvider = (*Stores)(nil)
	_ core.HealthChecker = (*Stores)(nil)
)
