// Package tenants maps inbound shop domains onto tenants and gates inactive
// ones.
package tenants

import (
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

const shopDomainSuffix = ".myshopify.com"

type Resolver struct {
	store    core.TenantStore
	observer *core.Observer
}

func NewResolver(store core.TenantStore, observer *core.Observer) *Resolver {
	if observer == nil {
		observer = core.NewObserver("tenants", nil, nil, nil)
	}
	return &Resolver{store: store, observer: observer}
}

// Resolve looks a tenant up by its normalized shop domain.
func (r *Resolver) Resolve(ctx context.Context, shopDomain string) (tenant core.Tenant, err error) {
	if r == nil || r.store == nil {
		return core.Tenant{}, core.InternalError(nil, "tenants: resolver store is not configured")
	}
	startedAt := time.Now()
	domain := NormalizeShopDomain(shopDomain)
	defer func() {
		fields := map[string]any{"shop_domain": domain}
		if err == nil {
			fields["tenant_id"] = tenant.ID
		}
		r.observer.Observe(ctx, startedAt, "resolve", err, fields)
	}()
	if domain == "" {
		return core.Tenant{}, core.BadInputError(core.MessageMissingShop)
	}
	tenant, err = r.store.GetByShopDomain(ctx, domain)
	if err != nil {
		if core.IsNotFound(err) {
			return core.Tenant{}, core.TenantNotFoundError(domain)
		}
		return core.Tenant{}, err
	}
	return tenant, nil
}

// Authorize rejects inactive tenants for every topic except app/uninstalled,
// which must still reach the deactivation handler.
func (r *Resolver) Authorize(tenant core.Tenant, topic core.Topic) error {
	if tenant.Active || topic.IsUninstall() {
		return nil
	}
	return core.TenantInactiveError(tenant.ID)
}

// NormalizeShopDomain lowercases the host and appends .myshopify.com to bare
// shop handles. Scheme and path are dropped.
func NormalizeShopDomain(value string) string {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return ""
	}
	if strings.Contains(value, "://") {
		if parsed, err := url.Parse(value); err == nil && parsed.Host != "" {
			value = parsed.Host
		}
	}
	if idx := strings.IndexAny(value, "/?#"); idx >= 0 {
		value = value[:idx]
	}
	value = strings.TrimSuffix(value, ".")
	if value == "" {
		return ""
	}
	if !strings.Contains(value, ".") {
		value += shopDomainSuffix
	}
	return value
}
