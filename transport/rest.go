// Package transport executes Admin API requests over HTTP.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

const (
	defaultClientTimeout           = 30 * time.Second
	defaultResponseBodyLimit int64 = 10 << 20
)

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RESTAdapter sends a core.TransportRequest and returns the status, the
// flattened headers and the body capped at MaxResponseBodyBytes. Non-2xx
// statuses are returned as responses, not errors.
type RESTAdapter struct {
	Client               HTTPDoer
	DefaultHeaders       map[string]string
	MaxResponseBodyBytes int64
	Observer             *core.Observer
}

func NewRESTAdapter(client HTTPDoer, observer *core.Observer) *RESTAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultClientTimeout}
	}
	if observer == nil {
		observer = core.NewObserver("transport", nil, nil, nil)
	}
	return &RESTAdapter{
		Client: client,
		DefaultHeaders: map[string]string{
			"Accept":       "application/json",
			"Content-Type": "application/json",
		},
		MaxResponseBodyBytes: defaultResponseBodyLimit,
		Observer:             observer,
	}
}

func (a *RESTAdapter) Do(ctx context.Context, req core.TransportRequest) (res core.TransportResponse, err error) {
	if a == nil || a.Client == nil {
		return core.TransportResponse{}, core.InternalError(nil, "transport: rest adapter requires an http client")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	method := strings.TrimSpace(strings.ToUpper(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return core.TransportResponse{}, err
	}

	startedAt := time.Now()
	defer func() {
		a.Observer.Observe(ctx, startedAt, "request", err, map[string]any{
			"method":      method,
			"host":        target.Host,
			"path":        target.Path,
			"status_code": res.StatusCode,
		})
	}()

	requestCtx := ctx
	cancel := func() {}
	if req.Timeout > 0 {
		requestCtx, cancel = context.WithTimeout(ctx, req.Timeout)
	}
	defer cancel()

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(requestCtx, method, target.String(), body)
	if err != nil {
		return core.TransportResponse{}, core.BadInputError("transport: create " + method + " request: " + err.Error())
	}
	setHeaders(httpReq.Header, a.DefaultHeaders)
	setHeaders(httpReq.Header, req.Headers)

	httpRes, err := a.Client.Do(httpReq)
	if err != nil {
		return core.TransportResponse{}, core.ExternalError(err, "transport: request failed", map[string]any{"method": method, "host": target.Host, "path": target.Path})
	}
	defer httpRes.Body.Close()

	limit := resolveResponseBodyLimit(req.MaxResponseBodyBytes, a.MaxResponseBodyBytes)
	payload, err := io.ReadAll(io.LimitReader(httpRes.Body, limit+1))
	if err != nil {
		return core.TransportResponse{}, core.ExternalError(err, "transport: read response body", map[string]any{"status_code": httpRes.StatusCode, "host": target.Host})
	}
	if int64(len(payload)) > limit {
		return core.TransportResponse{}, core.ExternalError(nil, fmt.Sprintf("transport: response body over %d bytes", limit), map[string]any{"status_code": httpRes.StatusCode, "host": target.Host})
	}

	return core.TransportResponse{
		StatusCode: httpRes.StatusCode,
		Headers:    flattenHeaders(httpRes.Header),
		Body:       payload,
		Metadata: map[string]any{
			"duration_ms": time.Since(startedAt).Milliseconds(),
			"host":        target.Host,
		},
	}, nil
}

func buildURL(raw string, query map[string]string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, core.BadInputError("transport: request url is required")
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return nil, core.BadInputError("transport: invalid request url " + strconv.Quote(raw))
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, core.BadInputError("transport: unsupported url scheme " + strconv.Quote(parsed.Scheme))
	}
	if len(query) > 0 {
		values := parsed.Query()
		for key, value := range query {
			if strings.TrimSpace(key) == "" {
				continue
			}
			values.Set(strings.TrimSpace(key), strings.TrimSpace(value))
		}
		parsed.RawQuery = values.Encode()
	}
	return parsed, nil
}

func setHeaders(dst http.Header, headers map[string]string) {
	for key, value := range headers {
		if strings.TrimSpace(key) == "" {
			continue
		}
		dst.Set(strings.TrimSpace(key), strings.TrimSpace(value))
	}
}

// flattenHeaders joins repeated values with a comma, which keeps multi-part
// Link headers parseable.
func flattenHeaders(headers http.Header) map[string]string {
	flat := make(map[string]string, len(headers))
	for key, values := range headers {
		flat[key] = strings.Join(values, ",")
	}
	return flat
}

func resolveResponseBodyLimit(requestLimit int64, adapterLimit int64) int64 {
	if requestLimit > 0 {
		return requestLimit
	}
	if adapterLimit > 0 {
		return adapterLimit
	}
	return defaultResponseBodyLimit
}

var _ core.TransportAdapter = (*RESTAdapter)(nil)
