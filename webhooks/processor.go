package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopsync/core"
)

const (
	MessageProcessed        = "Webhook processed successfully"
	MessageAlreadyProcessed = "Webhook already processed"
)

type Verifier interface {
	Verify(rawBody []byte, signature string, secret string) bool
}

type TenantResolver interface {
	Resolve(ctx context.Context, shopDomain string) (core.Tenant, error)
	Authorize(tenant core.Tenant, topic core.Topic) error
}

// ResponseBody is the JSON envelope returned to Shopify. Boundary rejections
// fill Error, processing outcomes fill Message.
type ResponseBody struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type Response struct {
	StatusCode int
	Body       ResponseBody
}

type Processor struct {
	Secret     string
	Verifier   Verifier
	Tenants    TenantResolver
	Events     core.EventStore
	Dispatcher core.Dispatcher
	Guard      core.GuardedDispatcher
	Observer   *core.Observer
}

func NewProcessor(
	secret string,
	verifier Verifier,
	tenants TenantResolver,
	events core.EventStore,
	dispatcher core.Dispatcher,
) *Processor {
	return &Processor{
		Secret:     secret,
		Verifier:   verifier,
		Tenants:    tenants,
		Events:     events,
		Dispatcher: dispatcher,
		Observer:   core.NewObserver("webhooks", nil, nil, nil),
	}
}

// decodedPayload is the step-4 result: the raw bytes plus the external id.
type decodedPayload struct {
	Raw        []byte
	ExternalID string
}

// Handle runs one delivery through the ingestion pipeline. It never returns
// an error; every outcome is expressed as a Response.
func (p *Processor) Handle(ctx context.Context, delivery Delivery) Response {
	if p == nil {
		return rejection(http.StatusInternalServerError, core.MessageInternalError)
	}
	startedAt := time.Now()
	fields := map[string]any{}
	response := p.handle(ctx, delivery, fields)
	fields["status_code"] = response.StatusCode
	var outcome error
	if response.StatusCode >= http.StatusInternalServerError {
		outcome = core.InternalError(nil, firstNonEmpty(response.Body.Error, response.Body.Message))
	}
	p.Observer.Observe(ctx, startedAt, "handle_delivery", outcome, fields)
	return response
}

func (p *Processor) handle(ctx context.Context, delivery Delivery, fields map[string]any) Response {
	if p.Tenants == nil || p.Events == nil || (p.Dispatcher == nil && p.Guard == nil) {
		return rejection(http.StatusInternalServerError, core.MessageInternalError)
	}

	headers, err := ExtractHeaders(delivery)
	if err != nil {
		return rejectionFromError(err)
	}
	fields["shop_domain"] = headers.ShopDomain
	fields["topic"] = headers.Topic.String()

	if resp, ok := p.verify(delivery.Body, headers); !ok {
		return resp
	}

	tenant, err := p.resolveTenant(ctx, headers)
	if err != nil {
		return rejectionFromError(err)
	}
	fields["tenant_id"] = tenant.ID

	payload, err := decodePayload(delivery.Body)
	if err != nil {
		return outcomeFailure(http.StatusBadRequest, errorMessage(err))
	}
	fields["external_id"] = payload.ExternalID

	processed, err := p.Events.IsProcessed(ctx, tenant.ID, payload.ExternalID, headers.Topic)
	if err != nil {
		p.Observer.Warn(ctx, "idempotency check failed; processing delivery", withError(fields, err))
	}
	if processed {
		return Response{
			StatusCode: http.StatusOK,
			Body: ResponseBody{
				Success: true,
				Message: MessageAlreadyProcessed,
				Data: map[string]any{
					"message":    MessageAlreadyProcessed,
					"idempotent": true,
				},
			},
		}
	}

	event, err := p.Events.Log(ctx, core.LogEventInput{
		TenantID:   tenant.ID,
		ExternalID: payload.ExternalID,
		Topic:      headers.Topic,
		Payload:    payload.Raw,
	})
	if err != nil {
		p.Observer.Warn(ctx, "event log failed before dispatch", withError(fields, err))
	}

	result, err := p.dispatch(ctx, core.DispatchRequest{
		EventID:    event.ID,
		TenantID:   tenant.ID,
		ExternalID: payload.ExternalID,
		Topic:      headers.Topic,
		Payload:    payload.Raw,
	})
	return p.settle(ctx, tenant.ID, payload, headers.Topic, result, err, fields)
}

func (p *Processor) verify(body []byte, headers DeliveryHeaders) (Response, bool) {
	if strings.TrimSpace(p.Secret) == "" {
		return rejection(http.StatusInternalServerError, core.MessageSecretMissing), false
	}
	verifier := p.Verifier
	if verifier == nil {
		verifier = SignatureVerifier{}
	}
	if !verifier.Verify(body, headers.HMAC, p.Secret) {
		return rejection(http.StatusUnauthorized, core.MessageInvalidSignature), false
	}
	return Response{}, true
}

func (p *Processor) resolveTenant(ctx context.Context, headers DeliveryHeaders) (core.Tenant, error) {
	tenant, err := p.Tenants.Resolve(ctx, headers.ShopDomain)
	if err != nil {
		return core.Tenant{}, err
	}
	if err := p.Tenants.Authorize(tenant, headers.Topic); err != nil {
		return core.Tenant{}, err
	}
	return tenant, nil
}

func (p *Processor) dispatch(ctx context.Context, req core.DispatchRequest) (core.ProcessResult, error) {
	if p.Guard != nil {
		return p.Guard.Dispatch(ctx, req)
	}
	return p.Dispatcher.Process(ctx, req.Topic, req.Payload, req.TenantID)
}

// settle records the dispatch outcome and maps it onto a Response.
func (p *Processor) settle(
	ctx context.Context,
	tenantID string,
	payload decodedPayload,
	topic core.Topic,
	result core.ProcessResult,
	dispatchErr error,
	fields map[string]any,
) Response {
	logInput := core.LogEventInput{
		TenantID:   tenantID,
		ExternalID: payload.ExternalID,
		Topic:      topic,
		Payload:    payload.Raw,
	}

	var response Response
	switch {
	case dispatchErr == nil && result.Success:
		logInput.Processed = true
		response = Response{
			StatusCode: http.StatusOK,
			Body:       ResponseBody{Success: true, Message: MessageProcessed, Data: result.Data},
		}
	case dispatchErr == nil:
		logInput.Error = result.Message
		response = outcomeFailure(http.StatusBadRequest, result.Message)
	case core.IsValidation(dispatchErr):
		logInput.Error = errorMessage(dispatchErr)
		response = outcomeFailure(http.StatusBadRequest, logInput.Error)
	default:
		logInput.Error = errorMessage(dispatchErr)
		p.Observer.Error(ctx, "webhook dispatch failed", withError(fields, dispatchErr))
		response = Response{
			StatusCode: http.StatusInternalServerError,
			Body:       ResponseBody{Success: false, Error: core.MessageInternalError},
		}
	}

	if _, err := p.Events.Log(ctx, logInput); err != nil {
		p.Observer.Warn(ctx, "event log failed after dispatch", withError(fields, err))
	}
	return response
}

func decodePayload(body []byte) (decodedPayload, error) {
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()
	var doc map[string]any
	if err := decoder.Decode(&doc); err != nil {
		return decodedPayload{}, core.BadInputError("Invalid JSON payload")
	}
	return decodedPayload{
		Raw:        append([]byte(nil), body...),
		ExternalID: externalID(doc["id"]),
	}, nil
}

func externalID(value any) string {
	switch typed := value.(type) {
	case json.Number:
		return typed.String()
	case string:
		if strings.TrimSpace(typed) != "" {
			return strings.TrimSpace(typed)
		}
	}
	return core.UnknownExternalID
}

func rejection(status int, message string) Response {
	return Response{StatusCode: status, Body: ResponseBody{Success: false, Error: message}}
}

func rejectionFromError(err error) Response {
	mapped := core.MapError(err)
	if mapped.Code >= http.StatusInternalServerError {
		return rejection(http.StatusInternalServerError, core.MessageInternalError)
	}
	return rejection(mapped.Code, mapped.Message)
}

func outcomeFailure(status int, message string) Response {
	return Response{StatusCode: status, Body: ResponseBody{Success: false, Message: message}}
}

// errorMessage strips the category prefix go-errors adds to Error().
func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}

func withError(fields map[string]any, err error) map[string]any {
	out := make(map[string]any, len(fields)+1)
	for key, value := range fields {
		out[key] = value
	}
	if err != nil {
		out["error"] = err.Error()
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}
