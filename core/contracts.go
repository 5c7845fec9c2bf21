package core

import (
	"context"
	"time"

	glog "github.com/goliatone/go-logger/glog"
)

type TenantStore interface {
	Get(ctx context.Context, id string) (Tenant, error)
	GetByShopDomain(ctx context.Context, shopDomain string) (Tenant, error)
	Create(ctx context.Context, in CreateTenantInput) (Tenant, error)
	List(ctx context.Context) ([]Tenant, error)
	// ListSyncable returns active tenants holding a non-empty access token.
	ListSyncable(ctx context.Context) ([]Tenant, error)
	Deactivate(ctx context.Context, id string) (Tenant, error)
	UpdateAccessToken(ctx context.Context, id string, accessToken string) (Tenant, error)
	MarkSynced(ctx context.Context, id string, entity EntityType, at time.Time) error
}

type EventStore interface {
	IsProcessed(ctx context.Context, tenantID string, externalID string, topic Topic) (bool, error)
	Log(ctx context.Context, in LogEventInput) (WebhookEvent, error)
	Get(ctx context.Context, id string) (WebhookEvent, error)
	List(ctx context.Context, filter EventFilter) (EventPage, error)
	ListFailed(ctx context.Context, tenantID string, limit int) ([]WebhookEvent, error)
	Stats(ctx context.Context, tenantID string, since time.Time) (EventStats, error)
	MarkProcessed(ctx context.Context, id string) (WebhookEvent, error)
	MarkFailed(ctx context.Context, id string, message string) (WebhookEvent, error)
}

type OrderStore interface {
	Upsert(ctx context.Context, order Order) (Order, error)
	GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (Order, error)
}

type ProductStore interface {
	Upsert(ctx context.Context, product Product) (Product, error)
	GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (Product, error)
}

type CustomerStore interface {
	Upsert(ctx context.Context, customer Customer) (Customer, error)
	GetByShopifyID(ctx context.Context, tenantID string, shopifyID string) (Customer, error)
}

// StoreProvider groups the stores a runtime is wired with.
type StoreProvider interface {
	TenantStore() TenantStore
	EventStore() EventStore
	OrderStore() OrderStore
	ProductStore() ProductStore
	CustomerStore() CustomerStore
}

// HealthChecker is implemented by stores that can probe their backend.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type Clock func() time.Time

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type TransportRequest struct {
	Method               string
	URL                  string
	Headers              map[string]string
	Query                map[string]string
	Body                 []byte
	Metadata             map[string]any
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type TransportResponse struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Metadata   map[string]any
}

type TransportAdapter interface {
	Do(ctx context.Context, req TransportRequest) (TransportResponse, error)
}

// Dispatcher routes one topic payload to its handler.
type Dispatcher interface {
	Process(ctx context.Context, topic Topic, payload []byte, tenantID string) (ProcessResult, error)
}

// DispatchRequest carries what a guarded dispatch needs to dead-letter a
// failed call.
type DispatchRequest struct {
	EventID    string
	TenantID   string
	ExternalID string
	Topic      Topic
	Payload    []byte
}

// GuardedDispatcher wraps a Dispatcher with failure isolation.
type GuardedDispatcher interface {
	Dispatch(ctx context.Context, req DispatchRequest) (ProcessResult, error)
}
