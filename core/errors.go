package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	IngestErrorUnauthenticated = "INGEST_UNAUTHENTICATED"
	IngestErrorTenantNotFound  = "INGEST_TENANT_NOT_FOUND"
	IngestErrorTenantInactive  = "INGEST_TENANT_INACTIVE"
	IngestErrorValidation      = "INGEST_VALIDATION"
	IngestErrorTransient       = "INGEST_TRANSIENT"
	IngestErrorUnhandledTopic  = "INGEST_UNHANDLED_TOPIC"
	IngestErrorBadInput        = "INGEST_BAD_INPUT"
	IngestErrorNotFound        = "INGEST_NOT_FOUND"
	IngestErrorConflict        = "INGEST_CONFLICT"
	IngestErrorRateLimited     = "INGEST_RATE_LIMITED"
	IngestErrorExternalFailure = "INGEST_EXTERNAL_FAILURE"
	IngestErrorInternal        = "INGEST_INTERNAL_ERROR"
)

const (
	MessageMissingHMAC      = "Missing HMAC header"
	MessageMissingShop      = "Missing shop domain"
	MessageMissingTopic     = "Missing topic"
	MessageSecretMissing    = "Webhook secret not configured"
	MessageInvalidSignature = "Invalid webhook signature"
	MessageTenantNotFound   = "Tenant not found"
	MessageTenantInactive   = "Tenant is inactive"
	MessageInternalError    = "Internal server error"
)

func ingestError(message string, category goerrors.Category, textCode string, metadata map[string]any) *goerrors.Error {
	err := goerrors.New(message, category).
		WithCode(ingestHTTPStatus(category)).
		WithTextCode(textCode)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func UnauthenticatedError(message string) error {
	return ingestError(message, goerrors.CategoryAuth, IngestErrorUnauthenticated, nil)
}

func TenantNotFoundError(shopDomain string) error {
	return ingestError(MessageTenantNotFound, goerrors.CategoryNotFound, IngestErrorTenantNotFound, map[string]any{
		"shop_domain": shopDomain,
	})
}

func TenantInactiveError(tenantID string) error {
	return ingestError(MessageTenantInactive, goerrors.CategoryAuthz, IngestErrorTenantInactive, map[string]any{
		"tenant_id": tenantID,
	})
}

// ValidationError marks a payload that can never succeed on retry.
func ValidationError(field string, message string) error {
	return goerrors.NewValidation(message, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(IngestErrorValidation).
		WithSeverity(goerrors.SeverityError)
}

// FieldError rejects one field of a command or query message. scope names
// the message family in the summary.
func FieldError(scope string, field string, message string) error {
	return goerrors.NewValidation(scope+": invalid "+field, goerrors.FieldError{
		Field:   field,
		Message: message,
	}).
		WithCode(http.StatusBadRequest).
		WithTextCode(IngestErrorBadInput)
}

func BadInputError(message string) error {
	return ingestError(message, goerrors.CategoryBadInput, IngestErrorBadInput, nil)
}

func NotFoundError(message string, metadata map[string]any) error {
	return ingestError(message, goerrors.CategoryNotFound, IngestErrorNotFound, metadata)
}

func ConflictError(message string, metadata map[string]any) error {
	return ingestError(message, goerrors.CategoryConflict, IngestErrorConflict, metadata)
}

func UnhandledTopicError(topic Topic) error {
	return ingestError("Unhandled webhook topic: "+topic.String(), goerrors.CategoryBadInput, IngestErrorUnhandledTopic, map[string]any{
		"topic": topic.String(),
	})
}

// TransientError wraps a failure expected to succeed on a later attempt.
func TransientError(source error, message string) error {
	if source == nil {
		return ingestError(message, goerrors.CategoryExternal, IngestErrorTransient, nil).
			WithCode(http.StatusServiceUnavailable)
	}
	return goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(IngestErrorTransient)
}

func ExternalError(source error, message string, metadata map[string]any) error {
	if source == nil {
		return ingestError(message, goerrors.CategoryExternal, IngestErrorExternalFailure, metadata)
	}
	err := goerrors.Wrap(source, goerrors.CategoryExternal, message).
		WithCode(http.StatusBadGateway).
		WithTextCode(IngestErrorExternalFailure)
	if len(metadata) > 0 {
		err.WithMetadata(metadata)
	}
	return err
}

func InternalError(source error, message string) error {
	if source == nil {
		return ingestError(message, goerrors.CategoryInternal, IngestErrorInternal, nil)
	}
	return goerrors.Wrap(source, goerrors.CategoryInternal, message).
		WithCode(http.StatusInternalServerError).
		WithTextCode(IngestErrorInternal)
}

// IsValidation reports whether err is a permanent payload rejection.
func IsValidation(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		if richErr.TextCode == IngestErrorValidation {
			return true
		}
		return richErr.Category == goerrors.CategoryValidation
	}
	return false
}

func IsNotFound(err error) bool {
	return hasCategory(err, goerrors.CategoryNotFound)
}

func IsConflict(err error) bool {
	return hasCategory(err, goerrors.CategoryConflict)
}

// IsCanceled reports caller-side cancellation, which is never the
// downstream's fault.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

func hasCategory(err error, category goerrors.Category) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.Category == category
	}
	return false
}

// MapError converts any error into an envelope carrying an HTTP code and a
// stable text code.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureIngestErrorEnvelope(richErr)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return ensureIngestErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryRateLimit))
	case strings.Contains(msg, "not found"):
		return ensureIngestErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryNotFound))
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return ensureIngestErrorEnvelope(goerrors.New(err.Error(), goerrors.CategoryBadInput))
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureIngestErrorEnvelope(mapped)
}

func HTTPStatus(err error) int {
	mapped := MapError(err)
	if mapped == nil {
		return http.StatusOK
	}
	return mapped.Code
}

func ensureIngestErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = ingestHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultIngestTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultIngestTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryValidation:
		return IngestErrorValidation
	case goerrors.CategoryBadInput:
		return IngestErrorBadInput
	case goerrors.CategoryNotFound:
		return IngestErrorNotFound
	case goerrors.CategoryAuth:
		return IngestErrorUnauthenticated
	case goerrors.CategoryAuthz:
		return IngestErrorTenantInactive
	case goerrors.CategoryConflict:
		return IngestErrorConflict
	case goerrors.CategoryRateLimit:
		return IngestErrorRateLimited
	case goerrors.CategoryExternal:
		return IngestErrorExternalFailure
	default:
		return IngestErrorInternal
	}
}

func ingestHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
