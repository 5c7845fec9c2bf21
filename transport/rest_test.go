package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goliatone/go-shopsync/core"
)

func TestRESTAdapterSendsHeadersAndQuery(t *testing.T) {
	var gotToken, gotQuery, gotMethod string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Shopify-Access-Token")
		gotQuery = r.URL.RawQuery
		gotMethod = r.Method
		w.Header().Add("Link", `<https://a/next>; rel="next"`)
		w.Header().Set("X-Shopify-Shop-Api-Call-Limit", "1/40")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"orders":[]}`)
	}))
	defer server.Close()

	adapter := NewRESTAdapter(server.Client(), nil)
	res, err := adapter.Do(context.Background(), core.TransportRequest{
		URL:     server.URL + "/admin/api/2025-01/orders.json?status=any",
		Headers: map[string]string{"X-Shopify-Access-Token": "tok"},
		Query:   map[string]string{"limit": "250"},
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if gotMethod != http.MethodGet || gotToken != "tok" {
		t.Fatalf("unexpected request method=%q token=%q", gotMethod, gotToken)
	}
	if gotQuery != "limit=250&status=any" {
		t.Fatalf("unexpected query %q", gotQuery)
	}
	if res.StatusCode != http.StatusOK || string(res.Body) != `{"orders":[]}` {
		t.Fatalf("unexpected response %+v", res)
	}
	if res.Headers["X-Shopify-Shop-Api-Call-Limit"] != "1/40" {
		t.Fatalf("expected call limit header, got %v", res.Headers)
	}
}

func TestRESTAdapterReturnsNon2xxAsResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"errors":{"address":["has already been taken"]}}`)
	}))
	defer server.Close()

	res, err := NewRESTAdapter(server.Client(), nil).Do(context.Background(), core.TransportRequest{
		Method: http.MethodPost,
		URL:    server.URL,
		Body:   []byte(`{}`),
	})
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	if res.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(string(res.Body), "already been taken") {
		t.Fatalf("unexpected response %+v", res)
	}
}

func TestRESTAdapterRejectsBadURLsAndLargeBodies(t *testing.T) {
	adapter := NewRESTAdapter(http.DefaultClient, nil)
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: ""}); core.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected bad input for empty url, got %v", err)
	}
	if _, err := adapter.Do(context.Background(), core.TransportRequest{URL: "ftp://shop"}); core.HTTPStatus(err) != http.StatusBadRequest {
		t.Fatalf("expected bad input for ftp url, got %v", err)
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, strings.Repeat("x", 64))
	}))
	defer server.Close()
	_, err := NewRESTAdapter(server.Client(), nil).Do(context.Background(), core.TransportRequest{
		URL:                  server.URL,
		MaxResponseBodyBytes: 16,
	})
	if core.HTTPStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected body limit failure, got %v", err)
	}
}
