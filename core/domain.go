package core

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	ProviderID = "shopify"

	DefaultCurrency    = "USD"
	DefaultProductStat = "active"
	UnknownExternalID  = "unknown"
)

type EntityType string

const (
	EntityOrders    EntityType = "orders"
	EntityProducts  EntityType = "products"
	EntityCustomers EntityType = "customers"
)

// SyncedEntities lists entity types in reconciliation order.
func SyncedEntities() []EntityType {
	return []EntityType{EntityOrders, EntityProducts, EntityCustomers}
}

type Tenant struct {
	ID               string     `json:"id"`
	Name             string     `json:"name"`
	Email            string     `json:"email"`
	ShopDomain       string     `json:"shopDomain"`
	AccessToken      string     `json:"-"`
	Active           bool       `json:"active"`
	LastOrderSync    *time.Time `json:"lastOrderSync,omitempty"`
	LastProductSync  *time.Time `json:"lastProductSync,omitempty"`
	LastCustomerSync *time.Time `json:"lastCustomerSync,omitempty"`
	CreatedAt        time.Time  `json:"createdAt"`
	UpdatedAt        time.Time  `json:"updatedAt"`
}

// CanSync reports whether the tenant is eligible for reconciliation pulls.
func (t Tenant) CanSync() bool {
	return t.Active && strings.TrimSpace(t.AccessToken) != ""
}

func (t Tenant) LastSync(entity EntityType) *time.Time {
	switch entity {
	case EntityOrders:
		return t.LastOrderSync
	case EntityProducts:
		return t.LastProductSync
	case EntityCustomers:
		return t.LastCustomerSync
	default:
		return nil
	}
}

type CreateTenantInput struct {
	Name        string
	Email       string
	ShopDomain  string
	AccessToken string
}

type WebhookEvent struct {
	ID          string     `json:"id"`
	TenantID    string     `json:"tenantId"`
	ExternalID  string     `json:"shopifyId"`
	Topic       Topic      `json:"topic"`
	Payload     []byte     `json:"payload,omitempty"`
	Processed   bool       `json:"processed"`
	ProcessedAt *time.Time `json:"processedAt,omitempty"`
	Error       string     `json:"errorMessage,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// LogEventInput is the single call shape used to mark a delivery seen,
// processed or failed.
type LogEventInput struct {
	TenantID   string
	ExternalID string
	Topic      Topic
	Payload    []byte
	Processed  bool
	Error      string
}

type Order struct {
	ID                string              `json:"id"`
	TenantID          string              `json:"tenantId"`
	ShopifyID         string              `json:"shopifyId"`
	OrderNumber       string              `json:"orderNumber"`
	Email             string              `json:"email"`
	TotalPrice        decimal.NullDecimal `json:"totalPrice,omitempty"`
	SubtotalPrice     decimal.NullDecimal `json:"subtotalPrice,omitempty"`
	TaxPrice          decimal.NullDecimal `json:"taxPrice,omitempty"`
	Currency          string              `json:"currency"`
	FinancialStatus   string              `json:"financialStatus,omitempty"`
	FulfillmentStatus string              `json:"fulfillmentStatus,omitempty"`
	CustomerID        string              `json:"customerId,omitempty"`
	CustomerShopifyID string              `json:"customerShopifyId,omitempty"`
	SourceCreatedAt   *time.Time          `json:"sourceCreatedAt,omitempty"`
	SourceUpdatedAt   *time.Time          `json:"sourceUpdatedAt,omitempty"`
	CreatedAt         time.Time           `json:"createdAt"`
	UpdatedAt         time.Time           `json:"updatedAt"`
}

type Product struct {
	ID              string              `json:"id"`
	TenantID        string              `json:"tenantId"`
	ShopifyID       string              `json:"shopifyId"`
	Title           string              `json:"title"`
	Handle          string              `json:"handle,omitempty"`
	Description     string              `json:"description,omitempty"`
	Vendor          string              `json:"vendor,omitempty"`
	ProductType     string              `json:"productType,omitempty"`
	Status          string              `json:"status"`
	Tags            []string            `json:"tags,omitempty"`
	Price           decimal.NullDecimal `json:"price,omitempty"`
	SKU             string              `json:"sku,omitempty"`
	SourceCreatedAt *time.Time          `json:"sourceCreatedAt,omitempty"`
	SourceUpdatedAt *time.Time          `json:"sourceUpdatedAt,omitempty"`
	CreatedAt       time.Time           `json:"createdAt"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

type Customer struct {
	ID              string     `json:"id"`
	TenantID        string     `json:"tenantId"`
	ShopifyID       string     `json:"shopifyId"`
	Email           string     `json:"email"`
	FirstName       string     `json:"firstName,omitempty"`
	LastName        string     `json:"lastName,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	SourceCreatedAt *time.Time `json:"sourceCreatedAt,omitempty"`
	SourceUpdatedAt *time.Time `json:"sourceUpdatedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// ProcessResult is the typed outcome of dispatching one topic payload.
// Unhandled topics report Success=false with a message and no error.
type ProcessResult struct {
	Success   bool
	Topic     Topic
	Kind      TopicKind
	Message   string
	Data      any
	Unhandled bool
}

type DeadLetterEntry struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId"`
	TenantID   string    `json:"tenantId"`
	ExternalID string    `json:"shopifyId,omitempty"`
	Topic      Topic     `json:"topic"`
	Payload    []byte    `json:"payload,omitempty"`
	Error      string    `json:"error,omitempty"`
	FailedAt   time.Time `json:"failedAt"`
	RetryCount int       `json:"retryCount"`
}

type EventFilter struct {
	TenantID  string
	Topic     Topic
	Processed *bool
	Page      int
	PerPage   int
}

type EventPage struct {
	Items   []WebhookEvent
	Page    int
	PerPage int
	Total   int
	Pages   int
}

type TopicStat struct {
	Topic     Topic
	Processed bool
	Count     int
}

type EventStats struct {
	TenantID     string
	Since        time.Time
	TotalEvents  int
	FailedEvents int
	SuccessRate  float64
	ByTopic      []TopicStat
}

const (
	HealthStatusUp       = "UP"
	HealthStatusDegraded = "DEGRADED"
	HealthStatusDown     = "DOWN"
)

type BreakerCounts struct {
	Requests             uint32
	TotalSuccesses       uint32
	TotalFailures        uint32
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

type ResilienceHealth struct {
	Status       string
	BreakerState string
	Counts       BreakerCounts
	DLQSize      int
	DLQCapacity  int
}

// HealthReport is DOWN when the database cannot be reached and DEGRADED
// while the dispatch breaker is not closed.
type HealthReport struct {
	Status        string
	Database      string
	DatabaseError string
	Resilience    *ResilienceHealth
	Uptime        time.Duration
	CheckedAt     time.Time
}

const (
	RetryStatusSuccess = "success"
	RetryStatusFailed  = "failed"
	RetryStatusError   = "error"
)

type RetryOutcome struct {
	EventID string
	Status  string
	Error   string
	Result  ProcessResult
}

type RetryReport struct {
	TenantID string
	Total    int
	Retried  int
	Failed   int
	Results  []RetryOutcome
}
