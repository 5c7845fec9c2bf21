package webhooks

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

const (
	DefaultRetryFailedLimit  = 100
	DefaultMarkFailedMessage = "Manually marked as failed"
)

// EventAdmin re-runs logged deliveries outside the inbound request. Retries
// call the Dispatcher directly; the breaker only guards live traffic.
type EventAdmin struct {
	Events     core.EventStore
	Tenants    core.TenantStore
	Dispatcher core.Dispatcher
	Observer   *core.Observer
}

func NewEventAdmin(events core.EventStore, tenants core.TenantStore, dispatcher core.Dispatcher) *EventAdmin {
	return &EventAdmin{
		Events:     events,
		Tenants:    tenants,
		Dispatcher: dispatcher,
		Observer:   core.NewObserver("webhooks.admin", nil, nil, nil),
	}
}

func (a *EventAdmin) RetryEvent(ctx context.Context, eventID string) (outcome core.RetryOutcome, err error) {
	startedAt := time.Now()
	defer func() {
		a.observer().Observe(ctx, startedAt, "retry_event", err, map[string]any{"event_id": eventID})
	}()
	if err := a.ready(); err != nil {
		return core.RetryOutcome{}, err
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return core.RetryOutcome{}, core.BadInputError("event id is required")
	}
	event, err := a.Events.Get(ctx, eventID)
	if err != nil {
		return core.RetryOutcome{}, err
	}
	if event.Processed {
		return core.RetryOutcome{}, core.BadInputError("Webhook event already processed")
	}
	if _, err := a.Tenants.Get(ctx, event.TenantID); err != nil {
		return core.RetryOutcome{}, err
	}
	return a.retry(ctx, event)
}

// RetryFailed retries up to limit unprocessed events of a tenant, oldest
// first. Per-event failures are reported, not returned.
func (a *EventAdmin) RetryFailed(ctx context.Context, tenantID string, limit int) (report core.RetryReport, err error) {
	startedAt := time.Now()
	defer func() {
		a.observer().Observe(ctx, startedAt, "retry_failed", err, map[string]any{
			"tenant_id": tenantID,
			"retried":   report.Retried,
			"failed":    report.Failed,
		})
	}()
	if err := a.ready(); err != nil {
		return core.RetryReport{}, err
	}
	if limit <= 0 {
		limit = DefaultRetryFailedLimit
	}
	report.TenantID = tenantID
	events, err := a.Events.ListFailed(ctx, tenantID, limit)
	if err != nil {
		return report, err
	}
	if len(events) == 0 {
		return report, nil
	}
	if _, err := a.Tenants.Get(ctx, tenantID); err != nil {
		return report, err
	}
	report.Total = len(events)
	for _, event := range events {
		outcome, retryErr := a.retry(ctx, event)
		if retryErr != nil {
			outcome = core.RetryOutcome{EventID: event.ID, Status: core.RetryStatusError, Error: errorMessage(retryErr)}
		}
		if outcome.Status == core.RetryStatusSuccess {
			report.Retried++
		} else {
			report.Failed++
		}
		report.Results = append(report.Results, outcome)
	}
	return report, nil
}

func (a *EventAdmin) MarkFailed(ctx context.Context, eventID string, message string) (core.WebhookEvent, error) {
	if err := a.ready(); err != nil {
		return core.WebhookEvent{}, err
	}
	if strings.TrimSpace(message) == "" {
		message = DefaultMarkFailedMessage
	}
	return a.Events.MarkFailed(ctx, strings.TrimSpace(eventID), message)
}

// retry dispatches one event. A handled failure is recorded on the event and
// reported as RetryStatusFailed; store errors are returned.
func (a *EventAdmin) retry(ctx context.Context, event core.WebhookEvent) (core.RetryOutcome, error) {
	result, dispatchErr := a.Dispatcher.Process(ctx, event.Topic, event.Payload, event.TenantID)
	if dispatchErr == nil && result.Success {
		if _, err := a.Events.MarkProcessed(ctx, event.ID); err != nil {
			return core.RetryOutcome{}, err
		}
		return core.RetryOutcome{EventID: event.ID, Status: core.RetryStatusSuccess, Result: result}, nil
	}

	message := result.Message
	status := core.RetryStatusFailed
	if dispatchErr != nil {
		message = errorMessage(dispatchErr)
		if !core.IsValidation(dispatchErr) {
			status = core.RetryStatusError
		}
	}
	if _, err := a.Events.MarkFailed(ctx, event.ID, message); err != nil {
		return core.RetryOutcome{}, err
	}
	return core.RetryOutcome{EventID: event.ID, Status: status, Error: message, Result: result}, nil
}

func (a *EventAdmin) ready() error {
	if a == nil || a.Events == nil || a.Tenants == nil || a.Dispatcher == nil {
		return core.InternalError(nil, "webhooks: event admin is not fully wired")
	}
	return nil
}

func (a *EventAdmin) observer() *core.Observer {
	if a == nil {
		return nil
	}
	return a.Observer
}
