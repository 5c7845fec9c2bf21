package shopify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/ratelimit"
	"github.com/goliatone/go-shopsync/transport"
)

const testShop = "demo.myshopify.com"

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	client := NewClient(transport.NewRESTAdapter(server.Client(), nil), core.ShopifyConfig{APIVersion: "2025-01"}, nil, nil)
	client.Endpoint = func(string) string { return server.URL }
	return client, server
}

func creds() Credentials {
	return Credentials{ShopDomain: testShop, AccessToken: "shpat_test"}
}

func TestFirstPageURL(t *testing.T) {
	client := NewClient(nil, core.ShopifyConfig{}, nil, nil)
	got := client.FirstPageURL(testShop, core.EntityOrders, nil)
	want := "https://demo.myshopify.com/admin/api/2025-01/orders.json?limit=250&status=any"
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
	since := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	got = client.FirstPageURL(testShop, core.EntityProducts, &since)
	want = "https://demo.myshopify.com/admin/api/2025-01/products.json?limit=250&updated_at_min=2025-03-01T10%3A00%3A00Z"
	if got != want {
		t.Fatalf("want %q got %q", want, got)
	}
}

func TestNextPageURL(t *testing.T) {
	link := `<https://demo.myshopify.com/admin/api/2025-01/orders.json?page_info=prev>; rel="previous", ` +
		`<https://demo.myshopify.com/admin/api/2025-01/orders.json?page_info=abc&limit=250>; rel="next"`
	if got := NextPageURL(link); got != "https://demo.myshopify.com/admin/api/2025-01/orders.json?page_info=abc&limit=250" {
		t.Fatalf("unexpected next url %q", got)
	}
	if got := NextPageURL(`<https://x/prev>; rel="previous"`); got != "" {
		t.Fatalf("expected no next url, got %q", got)
	}
	if got := NextPageURL(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}

func TestFetchPageDecodesItemsAndLink(t *testing.T) {
	var token string
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token = r.Header.Get(HeaderAccessToken)
		w.Header().Set(HeaderLink, `<https://demo.myshopify.com/next>; rel="next"`)
		w.Header().Set(ratelimit.HeaderCallLimit, "39/40")
		_, _ = io.WriteString(w, `{"orders":[{"id":1},{"id":2}]}`)
	}))
	pacer := ratelimit.NewPacer(0.8, nil)
	client.Pacer = pacer

	page, err := client.FetchPage(context.Background(), creds(), core.EntityOrders, server.URL+"/admin/api/2025-01/orders.json")
	if err != nil {
		t.Fatalf("fetch page: %v", err)
	}
	if token != "shpat_test" {
		t.Fatalf("expected access token header, got %q", token)
	}
	if len(page.Items) != 2 || page.NextURL != "https://demo.myshopify.com/next" {
		t.Fatalf("unexpected page %+v", page)
	}
	if !page.Meta.HasBudget || page.Meta.Budget.Used != 39 {
		t.Fatalf("expected call budget in meta, got %+v", page.Meta)
	}
	var slept time.Duration
	pacer.Sleep = func(_ context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	if _, err := pacer.Pace(context.Background(), testShop); err != nil || slept != 975*time.Millisecond {
		t.Fatalf("expected recorded budget to pace 975ms, got %s %v", slept, err)
	}
}

func TestFetchPageClassifiesFailures(t *testing.T) {
	status := http.StatusTooManyRequests
	client, server := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(status)
		_, _ = io.WriteString(w, `{"errors":"Exceeded 2 calls per second for api client. Reduce request rates to resume uninterrupted service."}`)
	}))
	_, err := client.FetchPage(context.Background(), creds(), core.EntityOrders, server.URL)
	if core.HTTPStatus(err) != http.StatusTooManyRequests {
		t.Fatalf("expected rate limit error, got %v", err)
	}

	status = http.StatusUnauthorized
	_, err = client.FetchPage(context.Background(), creds(), core.EntityOrders, server.URL)
	if core.HTTPStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected external error, got %v", err)
	}

	status = http.StatusServiceUnavailable
	_, err = client.FetchPage(context.Background(), creds(), core.EntityOrders, server.URL)
	if core.HTTPStatus(err) != http.StatusServiceUnavailable {
		t.Fatalf("expected transient error, got %v", err)
	}

	_, err = client.FetchPage(context.Background(), Credentials{ShopDomain: testShop}, core.EntityOrders, server.URL)
	if core.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected missing token rejection, got %v", err)
	}
}

func TestRegisterWebhooksCreatesMissingTopics(t *testing.T) {
	var mu sync.Mutex
	var created []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && strings.HasSuffix(r.URL.Path, "/webhooks.json"):
			_, _ = io.WriteString(w, `{"webhooks":[{"id":11,"topic":"orders/create","address":"https://hooks","format":"json"}]}`)
		case r.Method == http.MethodPost:
			var body struct {
				Webhook map[string]string `json:"webhook"`
			}
			_ = json.NewDecoder(r.Body).Decode(&body)
			mu.Lock()
			created = append(created, body.Webhook["topic"])
			mu.Unlock()
			switch body.Webhook["topic"] {
			case "products/create":
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"errors":{"address":["for this topic has already been taken"]}}`)
			case "customers/create":
				w.WriteHeader(http.StatusUnprocessableEntity)
				_, _ = io.WriteString(w, `{"errors":{"topic":["Invalid topic specified"]}}`)
			default:
				w.WriteHeader(http.StatusCreated)
				_, _ = io.WriteString(w, `{"webhook":{"id":42,"topic":"`+body.Webhook["topic"]+`"}}`)
			}
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))

	results, err := client.RegisterWebhooks(context.Background(), creds(), "https://hooks", []core.Topic{
		core.TopicOrdersCreate, core.TopicOrdersUpdated, core.TopicProductsCreate, core.TopicCustomersCreate,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	statuses := map[string]Registration{}
	for _, result := range results {
		statuses[result.Topic] = result
	}
	if got := statuses["orders/create"]; got.Status != RegistrationExists || got.WebhookID != 11 {
		t.Fatalf("expected existing orders/create, got %+v", got)
	}
	if got := statuses["orders/updated"]; got.Status != RegistrationCreated || got.WebhookID != 42 {
		t.Fatalf("expected created orders/updated, got %+v", got)
	}
	if got := statuses["products/create"]; got.Status != RegistrationExists {
		t.Fatalf("expected 422 already taken counted as exists, got %+v", got)
	}
	if got := statuses["customers/create"]; got.Status != RegistrationFailed || !strings.Contains(got.Error, "Invalid topic") {
		t.Fatalf("expected failed customers/create, got %+v", got)
	}
	if len(created) != 3 {
		t.Fatalf("expected three create calls, got %v", created)
	}
}

func TestDeleteAllWebhooks(t *testing.T) {
	var deleted []string
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"webhooks":[{"id":1,"topic":"orders/create"},{"id":2,"topic":"app/uninstalled"}]}`)
		case http.MethodDelete:
			deleted = append(deleted, r.URL.Path)
			if strings.HasSuffix(r.URL.Path, "/2.json") {
				w.WriteHeader(http.StatusNotFound)
				_, _ = io.WriteString(w, `{"errors":"Not Found"}`)
				return
			}
			_, _ = io.WriteString(w, `{}`)
		}
	}))
	results, err := client.DeleteAllWebhooks(context.Background(), creds())
	if err != nil {
		t.Fatalf("delete all: %v", err)
	}
	if len(results) != 2 || results[0].Status != RegistrationDeleted || results[1].Status != RegistrationFailed {
		t.Fatalf("unexpected results %+v", results)
	}
	if deleted[0] != "/admin/api/2025-01/webhooks/1.json" {
		t.Fatalf("unexpected delete path %q", deleted[0])
	}
}

func TestErrorDetail(t *testing.T) {
	cases := map[string]string{
		`{"errors":"Not Found"}`:                         "Not Found",
		`{"errors":["a","b"]}`:                           "a; b",
		`{"errors":{"topic":["x"],"address":["y","z"]}}`: "address y, z; topic x",
		`{"error":"invalid_request"}`:                    "invalid_request",
		`not json`:                                       "not json",
	}
	for body, want := range cases {
		if got := ErrorDetail([]byte(body)); got != want {
			t.Fatalf("ErrorDetail(%s) = %q, want %q", body, got, want)
		}
	}
}
