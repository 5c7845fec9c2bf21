package sqlstore

import (
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

type tenantRecord struct {
	bun.BaseModel `bun:"table:tenants,alias:t"`

	ID               string     `bun:"id,pk"`
	Name             string     `bun:"name,notnull"`
	Email            string     `bun:"email,notnull"`
	ShopDomain       string     `bun:"shop_domain,notnull"`
	AccessToken      *string    `bun:"access_token"`
	Active           bool       `bun:"active,notnull"`
	LastOrderSync    *time.Time `bun:"last_order_sync,nullzero"`
	LastProductSync  *time.Time `bun:"last_product_sync,nullzero"`
	LastCustomerSync *time.Time `bun:"last_customer_sync,nullzero"`
	CreatedAt        time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt        time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type webhookEventRecord struct {
	bun.BaseModel `bun:"table:webhook_events,alias:we"`

	ID          string     `bun:"id,pk"`
	TenantID    string     `bun:"tenant_id,nullzero"`
	ExternalID  string     `bun:"external_id,notnull"`
	Topic       string     `bun:"topic,notnull"`
	Payload     []byte     `bun:"payload"`
	Processed   bool       `bun:"processed,notnull"`
	ProcessedAt *time.Time `bun:"processed_at,nullzero"`
	Error       string     `bun:"error"`
	CreatedAt   time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt   time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type orderRecord struct {
	bun.BaseModel `bun:"table:orders,alias:o"`

	ID                string              `bun:"id,pk"`
	TenantID          string              `bun:"tenant_id,notnull"`
	ShopifyID         string              `bun:"shopify_id,notnull"`
	OrderNumber       string              `bun:"order_number,notnull"`
	Email             string              `bun:"email"`
	TotalPrice        decimal.NullDecimal `bun:"total_price"`
	SubtotalPrice     decimal.NullDecimal `bun:"subtotal_price"`
	TaxPrice          decimal.NullDecimal `bun:"tax_price"`
	Currency          string              `bun:"currency,notnull"`
	FinancialStatus   string              `bun:"financial_status"`
	FulfillmentStatus string              `bun:"fulfillment_status"`
	CustomerID        *string             `bun:"customer_id"`
	CustomerShopifyID string              `bun:"customer_shopify_id"`
	SourceCreatedAt   *time.Time          `bun:"source_created_at,nullzero"`
	SourceUpdatedAt   *time.Time          `bun:"source_updated_at,nullzero"`
	CreatedAt         time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt         time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type productRecord struct {
	bun.BaseModel `bun:"table:products,alias:p"`

	ID              string              `bun:"id,pk"`
	TenantID        string              `bun:"tenant_id,notnull"`
	ShopifyID       string              `bun:"shopify_id,notnull"`
	Title           string              `bun:"title"`
	Handle          string              `bun:"handle"`
	Description     string              `bun:"description"`
	Vendor          string              `bun:"vendor"`
	ProductType     string              `bun:"product_type"`
	Status          string              `bun:"status,notnull"`
	Tags            []string            `bun:"tags,type:jsonb,notnull"`
	Price           decimal.NullDecimal `bun:"price"`
	SKU             string              `bun:"sku"`
	SourceCreatedAt *time.Time          `bun:"source_created_at,nullzero"`
	SourceUpdatedAt *time.Time          `bun:"source_updated_at,nullzero"`
	CreatedAt       time.Time           `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time           `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

type customerRecord struct {
	bun.BaseModel `bun:"table:customers,alias:c"`

	ID              string     `bun:"id,pk"`
	TenantID        string     `bun:"tenant_id,notnull"`
	ShopifyID       string     `bun:"shopify_id,notnull"`
	Email           string     `bun:"email"`
	FirstName       string     `bun:"first_name"`
	LastName        string     `bun:"last_name"`
	Phone           string     `bun:"phone"`
	SourceCreatedAt *time.Time `bun:"source_created_at,nullzero"`
	SourceUpdatedAt *time.Time `bun:"source_updated_at,nullzero"`
	CreatedAt       time.Time  `bun:"created_at,nullzero,notnull,default:current_timestamp"`
	UpdatedAt       time.Time  `bun:"updated_at,nullzero,notnull,default:current_timestamp"`
}

// topicCountRow is one group of the event stats aggregation.
type topicCountRow struct {
	Topic     string `bun:"topic"`
	Processed bool   `bun:"processed"`
	Count     int    `bun:"count"`
}

func (r *tenantRecord) toDomain(accessToken string) core.Tenant {
	if r == nil {
		return core.Tenant{}
	}
	return core.Tenant{
		ID:               r.ID,
		Name:             r.Name,
		Email:            r.Email,
		ShopDomain:       r.ShopDomain,
		AccessToken:      accessToken,
		Active:           r.Active,
		LastOrderSync:    utcPointer(r.LastOrderSync),
		LastProductSync:  utcPointer(r.LastProductSync),
		LastCustomerSync: utcPointer(r.LastCustomerSync),
		CreatedAt:        r.CreatedAt.UTC(),
		UpdatedAt:        r.UpdatedAt.UTC(),
	}
}

func (r *webhookEventRecord) toDomain() core.WebhookEvent {
	if r == nil {
		return core.WebhookEvent{}
	}
	return core.WebhookEvent{
		ID:          r.ID,
		TenantID:    r.TenantID,
		ExternalID:  r.ExternalID,
		Topic:       core.Topic(r.Topic),
		Payload:     append([]byte(nil), r.Payload...),
		Processed:   r.Processed,
		ProcessedAt: utcPointer(r.ProcessedAt),
		Error:       r.Error,
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
}

func newOrderRecord(order core.Order) *orderRecord {
	return &orderRecord{
		TenantID:          order.TenantID,
		ShopifyID:         order.ShopifyID,
		OrderNumber:       order.OrderNumber,
		Email:             order.Email,
		TotalPrice:        order.TotalPrice,
		SubtotalPrice:     order.SubtotalPrice,
		TaxPrice:          order.TaxPrice,
		Currency:          order.Currency,
		FinancialStatus:   order.FinancialStatus,
		FulfillmentStatus: order.FulfillmentStatus,
		CustomerID:        optionalString(order.CustomerID),
		CustomerShopifyID: order.CustomerShopifyID,
		SourceCreatedAt:   utcPointer(order.SourceCreatedAt),
		SourceUpdatedAt:   utcPointer(order.SourceUpdatedAt),
	}
}

func (r *orderRecord) toDomain() core.Order {
	if r == nil {
		return core.Order{}
	}
	out := core.Order{
		ID:                r.ID,
		TenantID:          r.TenantID,
		ShopifyID:         r.ShopifyID,
		OrderNumber:       r.OrderNumber,
		Email:             r.Email,
		TotalPrice:        r.TotalPrice,
		SubtotalPrice:     r.SubtotalPrice,
		TaxPrice:          r.TaxPrice,
		Currency:          r.Currency,
		FinancialStatus:   r.FinancialStatus,
		FulfillmentStatus: r.FulfillmentStatus,
		CustomerShopifyID: r.CustomerShopifyID,
		SourceCreatedAt:   utcPointer(r.SourceCreatedAt),
		SourceUpdatedAt:   utcPointer(r.SourceUpdatedAt),
		CreatedAt:         r.CreatedAt.UTC(),
		UpdatedAt:         r.UpdatedAt.UTC(),
	}
	if r.CustomerID != nil {
		out.CustomerID = *r.CustomerID
	}
	return out
}

func newProductRecord(product core.Product) *productRecord {
	tags := append([]string{}, product.Tags...)
	return &productRecord{
		TenantID:        product.TenantID,
		ShopifyID:       product.ShopifyID,
		Title:           product.Title,
		Handle:          product.Handle,
		Description:     product.Description,
		Vendor:          product.Vendor,
		ProductType:     product.ProductType,
		Status:          product.Status,
		Tags:            tags,
		Price:           product.Price,
		SKU:             product.SKU,
		SourceCreatedAt: utcPointer(product.SourceCreatedAt),
		SourceUpdatedAt: utcPointer(product.SourceUpdatedAt),
	}
}

func (r *productRecord) toDomain() core.Product {
	if r == nil {
		return core.Product{}
	}
	return core.Product{
		ID:              r.ID,
		TenantID:        r.TenantID,
		ShopifyID:       r.ShopifyID,
		Title:           r.Title,
		Handle:          r.Handle,
		Description:     r.Description,
		Vendor:          r.Vendor,
		ProductType:     r.ProductType,
		Status:          r.Status,
		Tags:            append([]string(nil), r.Tags...),
		Price:           r.Price,
		SKU:             r.SKU,
		SourceCreatedAt: utcPointer(r.SourceCreatedAt),
		SourceUpdatedAt: utcPointer(r.SourceUpdatedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func newCustomerRecord(customer core.Customer) *customerRecord {
	return &customerRecord{
		TenantID:        customer.TenantID,
		ShopifyID:       customer.ShopifyID,
		Email:           customer.Email,
		FirstName:       customer.FirstName,
		LastName:        customer.LastName,
		Phone:           customer.Phone,
		SourceCreatedAt: utcPointer(customer.SourceCreatedAt),
		SourceUpdatedAt: utcPointer(customer.SourceUpdatedAt),
	}
}

func (r *customerRecord) toDomain() core.Customer {
	if r == nil {
		return core.Customer{}
	}
	return core.Customer{
		ID:              r.ID,
		TenantID:        r.TenantID,
		ShopifyID:       r.ShopifyID,
		Email:           r.Email,
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Phone:           r.Phone,
		SourceCreatedAt: utcPointer(r.SourceCreatedAt),
		SourceUpdatedAt: utcPointer(r.SourceUpdatedAt),
		CreatedAt:       r.CreatedAt.UTC(),
		UpdatedAt:       r.UpdatedAt.UTC(),
	}
}

func utcPointer(input *time.Time) *time.Time {
	if input == nil || input.IsZero() {
		return nil
	}
	value := input.UTC()
	return &value
}

func optionalString(value string) *string {
	if value == "" {
		return nil
	}
	return &value
}
