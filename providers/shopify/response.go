package shopify

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/ratelimit"
)

const defaultRetryAfter429 = 2 * time.Second

// ResponseMeta is what the client reads from every Admin API response
// besides the body.
type ResponseMeta struct {
	StatusCode       int
	RequestID        string
	APIVersion       string
	Budget           ratelimit.Budget
	HasBudget        bool
	RetryAfter       time.Duration
	RetryAfterSource string
	ErrorType        string
}

func ParseResponseMeta(response core.TransportResponse) ResponseMeta {
	meta := ResponseMeta{
		StatusCode: response.StatusCode,
		RequestID:  headerValue(response.Headers, "x-request-id"),
		APIVersion: headerValue(response.Headers, "x-shopify-api-version"),
	}
	meta.Budget, meta.HasBudget = ratelimit.ParseCallLimit(headerValue(response.Headers, ratelimit.HeaderCallLimit))
	if retryAfter, ok := parseRetryAfter(response.Headers); ok {
		meta.RetryAfter = retryAfter
		meta.RetryAfterSource = "header"
	} else if meta.StatusCode == http.StatusTooManyRequests {
		meta.RetryAfter = defaultRetryAfter429
		meta.RetryAfterSource = "default"
	}
	meta.ErrorType = readErrorType(response.Body)
	return meta
}

// Fields renders the meta as log fields.
func (m ResponseMeta) Fields() map[string]any {
	fields := map[string]any{"status_code": m.StatusCode}
	if m.RequestID != "" {
		fields["shopify_request_id"] = m.RequestID
	}
	if m.APIVersion != "" {
		fields["shopify_api_version"] = m.APIVersion
	}
	if m.HasBudget {
		fields["shopify_api_call_used"] = m.Budget.Used
		fields["shopify_api_call_limit"] = m.Budget.Limit
	}
	if m.RetryAfter > 0 {
		fields["shopify_retry_after_ms"] = m.RetryAfter.Milliseconds()
	}
	return fields
}

// statusError converts a non-2xx response into a classified error.
func statusError(shop string, operation string, response core.TransportResponse, meta ResponseMeta) error {
	if response.StatusCode >= 200 && response.StatusCode < 300 {
		return nil
	}
	metadata := map[string]any{
		"shop_domain": shop,
		"operation":   operation,
		"status_code": response.StatusCode,
	}
	if meta.RequestID != "" {
		metadata["shopify_request_id"] = meta.RequestID
	}
	if response.StatusCode == http.StatusTooManyRequests {
		return ratelimit.ThrottledError{Shop: shop, RetryAfter: meta.RetryAfter}.ToServiceError().WithMetadata(metadata)
	}
	message := fmt.Sprintf("shopify: %s returned status %d", operation, response.StatusCode)
	if detail := ErrorDetail(response.Body); detail != "" {
		message += ": " + detail
	}
	if response.StatusCode >= http.StatusInternalServerError {
		return core.TransientError(nil, message)
	}
	return core.ExternalError(nil, message, metadata)
}

// ErrorDetail flattens the "errors" member of an Admin API error body.
func ErrorDetail(body []byte) string {
	var doc struct {
		Errors json.RawMessage `json:"errors"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &doc); err != nil {
		return strings.TrimSpace(string(body))
	}
	if strings.TrimSpace(doc.Error) != "" {
		return strings.TrimSpace(doc.Error)
	}
	if len(doc.Errors) == 0 {
		return ""
	}
	var text string
	if err := json.Unmarshal(doc.Errors, &text); err == nil {
		return strings.TrimSpace(text)
	}
	var list []string
	if err := json.Unmarshal(doc.Errors, &list); err == nil {
		return strings.Join(list, "; ")
	}
	var byField map[string][]string
	if err := json.Unmarshal(doc.Errors, &byField); err == nil {
		keys := make([]string, 0, len(byField))
		for key := range byField {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, key := range keys {
			parts = append(parts, key+" "+strings.Join(byField[key], ", "))
		}
		return strings.Join(parts, "; ")
	}
	return strings.TrimSpace(string(doc.Errors))
}

func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	raw := headerValue(headers, "retry-after")
	if raw == "" {
		return 0, false
	}
	seconds, err := strconv.ParseFloat(raw, 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func readErrorType(body []byte) string {
	lowered := strings.ToLower(strings.TrimSpace(string(body)))
	switch {
	case lowered == "":
		return ""
	case strings.Contains(lowered, "throttle"):
		return "throttle"
	case strings.Contains(lowered, "rate"):
		return "rate_limit"
	}
	return ""
}

func headerValue(headers map[string]string, key string) string {
	for existing, value := range headers {
		if strings.EqualFold(strings.TrimSpace(existing), strings.TrimSpace(key)) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}
