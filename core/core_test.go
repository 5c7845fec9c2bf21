package core

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"net/http"
	"strings"
	"testing"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

func TestTopicKind_StaticTable(t *testing.T) {
	cases := map[Topic]TopicKind{
		TopicOrdersCreate:    TopicKindOrderUpsert,
		TopicOrdersFulfilled: TopicKindOrderUpsert,
		TopicProductsUpdate:  TopicKindProductUpsert,
		TopicCustomersCreate: TopicKindCustomerUpsert,
		TopicAppUninstalled:  TopicKindTenantDeactivate,
		"ORDERS/PAID ":       TopicKindOrderUpsert,
		"carts/update":       TopicKindUnhandled,
		"":                   TopicKindUnhandled,
	}
	for topic, want := range cases {
		if got := topic.Kind(); got != want {
			t.Fatalf("topic %q: expected kind %q, got %q", topic, want, got)
		}
	}
	if !Topic("app/uninstalled").IsUninstall() {
		t.Fatalf("expected uninstall topic")
	}
	if len(SubscribedTopics()) != len(topicKinds) {
		t.Fatalf("expected every routed topic to be subscribed")
	}
}

func TestTenant_CanSyncAndLastSync(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tenant := Tenant{Active: true, AccessToken: "shpat_x", LastProductSync: &at}
	if !tenant.CanSync() {
		t.Fatalf("expected active tenant with token to be syncable")
	}
	if got := tenant.LastSync(EntityProducts); got == nil || !got.Equal(at) {
		t.Fatalf("expected product last sync %v, got %v", at, got)
	}
	if tenant.LastSync(EntityOrders) != nil {
		t.Fatalf("expected nil order last sync")
	}
	tenant.AccessToken = "  "
	if tenant.CanSync() {
		t.Fatalf("expected blank token to disable sync")
	}
}

func TestMapError_AssignsStableCodes(t *testing.T) {
	mapped := MapError(stderrors.New("shopify: rate limit exceeded"))
	if mapped.TextCode != IngestErrorRateLimited || mapped.Code != http.StatusTooManyRequests {
		t.Fatalf("expected rate limited envelope, got %q/%d", mapped.TextCode, mapped.Code)
	}

	mapped = MapError(TenantInactiveError("t1"))
	if mapped.Code != http.StatusForbidden || mapped.TextCode != IngestErrorTenantInactive {
		t.Fatalf("expected 403 inactive, got %d/%q", mapped.Code, mapped.TextCode)
	}

	mapped = MapError(goerrors.New("boom", goerrors.CategoryConflict))
	if mapped.Code != http.StatusConflict || mapped.TextCode != IngestErrorConflict {
		t.Fatalf("expected conflict defaults, got %d/%q", mapped.Code, mapped.TextCode)
	}
	if MapError(nil) != nil {
		t.Fatalf("expected nil mapping for nil error")
	}
}

func TestErrorClassification(t *testing.T) {
	validation := ValidationError("id", "Missing order id")
	if !IsValidation(validation) {
		t.Fatalf("expected validation classification")
	}
	if HTTPStatus(validation) != http.StatusBadRequest {
		t.Fatalf("expected 400 for validation")
	}
	transient := TransientError(stderrors.New("connection reset"), "upsert order")
	if IsValidation(transient) {
		t.Fatalf("transient error must not classify as validation")
	}
	if HTTPStatus(transient) != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 for transient, got %d", HTTPStatus(transient))
	}
	if !IsNotFound(TenantNotFoundError("a.myshopify.com")) {
		t.Fatalf("expected not found classification")
	}
	if HTTPStatus(UnauthenticatedError(MessageInvalidSignature)) != http.StatusUnauthorized {
		t.Fatalf("expected 401 for unauthenticated")
	}
	if !IsCanceled(InternalError(context.Canceled, "dispatch")) {
		t.Fatalf("expected wrapped cancellation to be detected")
	}
}

func TestFieldError_Envelope(t *testing.T) {
	err := FieldError("query", "tenant_id", "tenant id is required")
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		t.Fatalf("expected rich error, got %T", err)
	}
	if rich.Category != goerrors.CategoryValidation || rich.TextCode != IngestErrorBadInput || rich.Code != http.StatusBadRequest {
		t.Fatalf("unexpected envelope %#v", rich)
	}
	if fields := rich.AllValidationErrors(); len(fields) != 1 || fields[0].Field != "tenant_id" {
		t.Fatalf("expected tenant_id field, got %#v", fields)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected defaults to validate: %v", err)
	}
	cfg.Resilience.ErrorThresholdPercent = 0
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected threshold validation error")
	}
	cfg = DefaultConfig()
	cfg.Persistence.Driver = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected driver validation error")
	}
}

func TestResolveConfig_LayeringPrecedence(t *testing.T) {
	provider := NewCfgxConfigProvider(StaticRawConfigLoader{Values: map[string]any{
		"service_name": "from-config",
		"shopify": map[string]any{
			"webhook_secret": "s3cret",
			"page_limit":     100,
		},
	}})
	cfg, err := ResolveConfig(context.Background(), provider, GoOptionsResolver{}, Config{
		ServiceName: "from-runtime",
		HTTP:        HTTPConfig{Addr: ":9090"},
	})
	if err != nil {
		t.Fatalf("resolve config: %v", err)
	}
	if cfg.ServiceName != "from-runtime" {
		t.Fatalf("expected runtime service name, got %q", cfg.ServiceName)
	}
	if cfg.Shopify.WebhookSecret != "s3cret" || cfg.Shopify.PageLimit != 100 {
		t.Fatalf("expected loaded shopify section, got %+v", cfg.Shopify)
	}
	if cfg.Shopify.APIVersion != DefaultAPIVersion {
		t.Fatalf("expected default api version, got %q", cfg.Shopify.APIVersion)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Fatalf("expected runtime addr, got %q", cfg.HTTP.Addr)
	}
}

func TestEnvRawConfigLoader_ParsesTypedValues(t *testing.T) {
	env := map[string]string{
		"SHOPSYNC_SHOPIFY_TEST_MODE":           "true",
		"SHOPSYNC_RESILIENCE_CALL_TIMEOUT":     "3s",
		"SHOPSYNC_RESILIENCE_MINIMUM_REQUESTS": "7",
		"SHOPSYNC_RECONCILE_PACING_THRESHOLD":  "0.5",
		"SHOPSYNC_LOG_LEVEL":                   "debug",
	}
	loader := EnvRawConfigLoader{Prefix: "SHOPSYNC", Lookup: func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	}}
	raw, err := loader.LoadRaw(context.Background())
	if err != nil {
		t.Fatalf("load env: %v", err)
	}
	resilience, _ := raw["resilience"].(map[string]any)
	if resilience["call_timeout"] != 3*time.Second {
		t.Fatalf("expected parsed duration, got %#v", resilience["call_timeout"])
	}
	if resilience["minimum_requests"] != 7 {
		t.Fatalf("expected parsed int, got %#v", resilience["minimum_requests"])
	}
	shopify, _ := raw["shopify"].(map[string]any)
	if shopify["test_mode"] != true {
		t.Fatalf("expected parsed bool, got %#v", shopify["test_mode"])
	}
	if raw["log_level"] != "debug" {
		t.Fatalf("expected log level, got %#v", raw["log_level"])
	}
	if _, ok := raw["persistence"]; ok {
		t.Fatalf("expected untouched sections to be omitted")
	}

	env["SHOPSYNC_RESILIENCE_RESET_TIMEOUT"] = "soon"
	if _, err := loader.LoadRaw(context.Background()); err == nil {
		t.Fatalf("expected malformed duration error")
	}
}

func TestEntityJSON_CamelCaseWithoutAccessToken(t *testing.T) {
	tenant := Tenant{ID: "t1", ShopDomain: "demo.myshopify.com", AccessToken: "shpat_secret", Active: true}
	raw, err := json.Marshal(tenant)
	if err != nil {
		t.Fatalf("marshal tenant: %v", err)
	}
	if strings.Contains(string(raw), "shpat_secret") || strings.Contains(string(raw), "AccessToken") {
		t.Fatalf("access token leaked: %s", raw)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode tenant: %v", err)
	}
	if decoded["shopDomain"] != "demo.myshopify.com" || decoded["active"] != true {
		t.Fatalf("unexpected tenant keys: %v", decoded)
	}

	raw, err = json.Marshal(Order{ID: "o1", TenantID: "t1", ShopifyID: "8001", OrderNumber: "1001"})
	if err != nil {
		t.Fatalf("marshal order: %v", err)
	}
	decoded = nil
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if decoded["tenantId"] != "t1" || decoded["orderNumber"] != "1001" {
		t.Fatalf("unexpected order keys: %v", decoded)
	}
	if _, ok := decoded["TenantID"]; ok {
		t.Fatalf("expected camelCase keys, got %v", decoded)
	}
}
