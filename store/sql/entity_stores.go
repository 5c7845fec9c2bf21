package sqlstore

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Entity upserts are keyed by (tenant_id, shopify_id). Every mapped column is
// overwritten, nulls included; id and created_at survive from the first write.

var (
	orderColumns = []string{
		"order_number", "email", "total_price", "subtotal_price", "tax_price", "currency",
		"financial_status", "fulfillment_status", "customer_id", "customer_shopify_id",
		"source_created_at", "source_updated_at", "updated_at",
	}
	productColumns = []string{
		"title", "handle", "description", "vendor", "product_type", "status", "tags",
		"price", "sku", "source_created_at", "source_updated_at", "updated_at",
	}
	customerColumns = []string{
		"email", "first_name", "last_name", "phone",
		"source_created_at", "source_updated_at", "updated_at",
	}
)

type OrderStore struct {
	db *bun.DB
}

func NewOrderStore(db *bun.DB) (*OrderStore, error) {
	if db == nil {
		return nil, core.InternalError(nil, "sqlstore: bun db is required")
	}
	return &OrderStore{db: db}, nil
}

func (s *OrderStore) Upsert(ctx context.Context, order core.Order) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, notConfigured("order")
	}
	if err := requireEntityKey(order.TenantID, order.ShopifyID); err != nil {
		return core.Order{}, err
	}
	record := newOrderRecord(order)
	stampNew(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err := upsertEntity(ctx, s.db, record, orderColumns); err != nil {
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

func (s *OrderStore) GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (core.Order, error) {
	if s == nil || s.db == nil {
		return core.Order{}, notConfigured("order")
	}
	record := &orderRecord{}
	if err := selectEntity(ctx, s.db, record, tenantID, shopifyID, "Order not found"); err != nil {
		return core.Order{}, err
	}
	return record.toDomain(), nil
}

type ProductStore struct {
	db *bun.DB
}

func NewProductStore(db *bun.DB) (*ProductStore, error) {
	if db == nil {
		return nil, core.InternalError(nil, "sqlstore: bun db is required")
	}
	return &ProductStore{db: db}, nil
}

func (s *ProductStore) Upsert(ctx context.Context, product core.Product) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, notConfigured("product")
	}
	if err := requireEntityKey(product.TenantID, product.ShopifyID); err != nil {
		return core.Product{}, err
	}
	record := newProductRecord(product)
	stampNew(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err := upsertEntity(ctx, s.db, record, productColumns); err != nil {
		return core.Product{}, err
	}
	return record.toDomain(), nil
}

func (s *ProductStore) GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (core.Product, error) {
	if s == nil || s.db == nil {
		return core.Product{}, notConfigured("product")
	}
	record := &productRecord{}
	if err := selectEntity(ctx, s.db, record, tenantID, shopifyID, "Product not found"); err != nil {
		return core.Product{}, err
	}
	return record.toDomain(), nil
}

type CustomerStore struct {
	db *bun.DB
}

func NewCustomerStore(db *bun.DB) (*CustomerStore, error) {
	if db == nil {
		return nil, core.InternalError(nil, "sqlstore: bun db is required")
	}
	return &CustomerStore{db: db}, nil
}

func (s *CustomerStore) Upsert(ctx context.Context, customer core.Customer) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, notConfigured("customer")
	}
	if err := requireEntityKey(customer.TenantID, customer.ShopifyID); err != nil {
		return core.Customer{}, err
	}
	record := newCustomerRecord(customer)
	stampNew(&record.ID, &record.CreatedAt, &record.UpdatedAt)
	if err := upsertEntity(ctx, s.db, record, customerColumns); err != nil {
		return core.Customer{}, err
	}
	return record.toDomain(), nil
}

func (s *CustomerStore) GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (core.Customer, error) {
	if s == nil || s.db == nil {
		return core.Customer{}, notConfigured("customer")
	}
	record := &customerRecord{}
	if err := selectEntity(ctx, s.db, record, tenantID, shopifyID, "Customer not found"); err != nil {
		return core.Customer{}, err
	}
	return record.toDomain(), nil
}

// upsertEntity inserts record or overwrites columns of the row holding the
// same key. RETURNING refreshes record with the stored id and created_at.
func upsertEntity(ctx context.Context, db bun.IDB, record any, columns []string) error {
	query := db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, shopify_id) DO UPDATE")
	for _, column := range columns {
		query = query.Set("? = EXCLUDED.?", bun.Ident(column), bun.Ident(column))
	}
	_, err := query.Returning("*").Exec(ctx)
	return err
}

func selectEntity(ctx context.Context, db bun.IDB, record any, tenantID string, shopifyID string, message string) error {
	tenantID = strings.TrimSpace(tenantID)
	shopifyID = strings.TrimSpace(shopifyID)
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.shopify_id = ?", shopifyID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.NotFoundError(message, map[string]any{"tenant_id": tenantID, "shopify_id": shopifyID})
		}
		return err
	}
	return nil
}

func requireEntityKey(tenantID string, shopifyID string) error {
	if strings.TrimSpace(tenantID) == "" {
		return core.ValidationError("tenant_id", "Tenant id is required")
	}
	if strings.TrimSpace(shopifyID) == "" {
		return core.ValidationError("id", "Shopify id is required")
	}
	return nil
}

func stampNew(id *string, createdAt *time.Time, updatedAt *time.Time) {
	now := time.Now().UTC()
	*id = uuid.NewString()
	*createdAt = now
	*updatedAt = now
}

var (
	_ core.OrderStore    = (*OrderStore)(nil)
	_ core.ProductStore  = (*ProductStore)(nil)
	_ core.CustomerStore = (*CustomerStore)(nil)
)
