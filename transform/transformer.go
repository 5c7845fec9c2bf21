// Package transform maps Shopify payloads onto stored entities. Every upsert
// is keyed by (tenant, shopify id) and overwrites all mapped fields.
package transform

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

type Transformer struct {
	Tenants   core.TenantStore
	Orders    core.OrderStore
	Products  core.ProductStore
	Customers core.CustomerStore
	Observer  *core.Observer
}

func New(stores core.StoreProvider, observer *core.Observer) *Transformer {
	if observer == nil {
		observer = core.NewObserver("transform", nil, nil, nil)
	}
	t := &Transformer{Observer: observer}
	if stores != nil {
		t.Tenants = stores.TenantStore()
		t.Orders = stores.OrderStore()
		t.Products = stores.ProductStore()
		t.Customers = stores.CustomerStore()
	}
	return t
}

func (t *Transformer) UpsertOrder(ctx context.Context, payload []byte, tenantID string) (order core.Order, err error) {
	startedAt := time.Now()
	defer func() {
		t.observe(ctx, startedAt, "upsert_order", err, tenantID, core.EntityOrders, order.ShopifyID)
	}()
	if t == nil || t.Orders == nil || t.Customers == nil {
		return core.Order{}, notWired("orders")
	}

	var in orderPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return core.Order{}, core.ValidationError("payload", "Invalid order payload: "+err.Error())
	}
	if in.ID == "" {
		return core.Order{}, core.ValidationError("id", "Missing order id")
	}
	if in.OrderNumber == "" {
		return core.Order{}, core.ValidationError("order_number", "Missing order number")
	}

	tax := in.TotalTax
	if !tax.Valid {
		tax = in.TaxPrice
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = core.DefaultCurrency
	}

	order = core.Order{
		TenantID:          tenantID,
		ShopifyID:         in.ID.String(),
		OrderNumber:       in.OrderNumber.String(),
		Email:             strings.TrimSpace(in.Email),
		TotalPrice:        in.TotalPrice.NullDecimal,
		SubtotalPrice:     in.SubtotalPrice.NullDecimal,
		TaxPrice:          tax.NullDecimal,
		Currency:          currency,
		FinancialStatus:   in.FinancialStatus,
		FulfillmentStatus: in.FulfillmentStatus,
		SourceCreatedAt:   in.CreatedAt.Time(),
		SourceUpdatedAt:   in.UpdatedAt.Time(),
	}
	if in.Customer != nil && in.Customer.ID != "" {
		order.CustomerShopifyID = in.Customer.ID.String()
		customerID, err := t.linkCustomer(ctx, tenantID, *in.Customer)
		if err != nil {
			return core.Order{}, err
		}
		order.CustomerID = customerID
	}

	saved, err := t.Orders.Upsert(ctx, order)
	if err != nil {
		return core.Order{}, storeError(err, "transform: upsert order")
	}
	return saved, nil
}

// linkCustomer resolves the internal id of an embedded customer, creating the
// customer only when the payload carries an email.
func (t *Transformer) linkCustomer(ctx context.Context, tenantID string, in customerPayload) (string, error) {
	existing, err := t.Customers.GetByShopifyID(ctx, tenantID, in.ID.String())
	if err == nil {
		return existing.ID, nil
	}
	if !core.IsNotFound(err) {
		return "", storeError(err, "transform: lookup order customer")
	}
	if strings.TrimSpace(in.Email) == "" {
		return "", nil
	}
	created, err := t.Customers.Upsert(ctx, customerFromPayload(tenantID, in))
	if err != nil {
		return "", storeError(err, "transform: create order customer")
	}
	return created.ID, nil
}

func (t *Transformer) UpsertProduct(ctx context.Context, payload []byte, tenantID string) (product core.Product, err error) {
	startedAt := time.Now()
	defer func() {
		t.observe(ctx, startedAt, "upsert_product", err, tenantID, core.EntityProducts, product.ShopifyID)
	}()
	if t == nil || t.Products == nil {
		return core.Product{}, notWired("products")
	}

	var in productPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return core.Product{}, core.ValidationError("payload", "Invalid product payload: "+err.Error())
	}
	if in.ID == "" {
		return core.Product{}, core.ValidationError("id", "Missing product id")
	}
	status := strings.TrimSpace(in.Status)
	if status == "" {
		status = core.DefaultProductStat
	}

	product = core.Product{
		TenantID:        tenantID,
		ShopifyID:       in.ID.String(),
		Title:           in.Title,
		Handle:          in.Handle,
		Description:     in.BodyHTML,
		Vendor:          in.Vendor,
		ProductType:     in.ProductType,
		Status:          status,
		Tags:            SplitTags(in.Tags),
		SourceCreatedAt: in.CreatedAt.Time(),
		SourceUpdatedAt: in.UpdatedAt.Time(),
	}
	if len(in.Variants) > 0 {
		product.Price = in.Variants[0].Price.NullDecimal
		product.SKU = in.Variants[0].SKU
	}

	saved, err := t.Products.Upsert(ctx, product)
	if err != nil {
		return core.Product{}, storeError(err, "transform: upsert product")
	}
	return saved, nil
}

func (t *Transformer) UpsertCustomer(ctx context.Context, payload []byte, tenantID string) (customer core.Customer, err error) {
	startedAt := time.Now()
	defer func() {
		t.observe(ctx, startedAt, "upsert_customer", err, tenantID, core.EntityCustomers, customer.ShopifyID)
	}()
	if t == nil || t.Customers == nil {
		return core.Customer{}, notWired("customers")
	}

	var in customerPayload
	if err := json.Unmarshal(payload, &in); err != nil {
		return core.Customer{}, core.ValidationError("payload", "Invalid customer payload: "+err.Error())
	}
	if in.ID == "" {
		return core.Customer{}, core.ValidationError("id", "Missing customer id")
	}
	saved, err := t.Customers.Upsert(ctx, customerFromPayload(tenantID, in))
	if err != nil {
		return core.Customer{}, storeError(err, "transform: upsert customer")
	}
	return saved, nil
}

// DeactivateTenant handles app/uninstalled: the token is cleared and the
// tenant marked inactive. The row itself is kept.
func (t *Transformer) DeactivateTenant(ctx context.Context, tenantID string) (tenant core.Tenant, err error) {
	startedAt := time.Now()
	defer func() {
		t.observe(ctx, startedAt, "deactivate_tenant", err, tenantID, "", "")
	}()
	if t == nil || t.Tenants == nil {
		return core.Tenant{}, notWired("tenants")
	}
	tenant, err = t.Tenants.Deactivate(ctx, tenantID)
	if err != nil {
		if core.IsNotFound(err) {
			return core.Tenant{}, core.ValidationError("tenant_id", "Tenant not found")
		}
		return core.Tenant{}, storeError(err, "transform: deactivate tenant")
	}
	return tenant, nil
}

func customerFromPayload(tenantID string, in customerPayload) core.Customer {
	return core.Customer{
		TenantID:        tenantID,
		ShopifyID:       in.ID.String(),
		Email:           strings.TrimSpace(in.Email),
		FirstName:       in.FirstName,
		LastName:        in.LastName,
		Phone:           in.Phone,
		SourceCreatedAt: in.CreatedAt.Time(),
		SourceUpdatedAt: in.UpdatedAt.Time(),
	}
}

func (t *Transformer) observe(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	tenantID string,
	entity core.EntityType,
	shopifyID string,
) {
	if t == nil {
		return
	}
	fields := map[string]any{"tenant_id": tenantID}
	if entity != "" {
		fields["entity"] = string(entity)
	}
	if shopifyID != "" {
		fields["shopify_id"] = shopifyID
	}
	t.Observer.Observe(ctx, startedAt, operation, err, fields)
}

// storeError marks persistence failures as transient unless they already
// carry a permanent classification.
func storeError(err error, message string) error {
	if core.IsValidation(err) || core.IsCanceled(err) {
		return err
	}
	return core.TransientError(err, message)
}

func notWired(entity string) error {
	return core.InternalError(nil, "transform: "+entity+" store is not configured")
}
