package query

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/providers/shopify"
)

type EventReader interface {
	List(ctx context.Context, filter core.EventFilter) (core.EventPage, error)
	Stats(ctx context.Context, tenantID string, since time.Time) (core.EventStats, error)
}

type ResilienceReporter interface {
	Health() core.ResilienceHealth
}

type DeadLetterReader interface {
	DeadLetters(limit int) []core.DeadLetterEntry
}

type WebhookLister interface {
	ListWebhooks(ctx context.Context, creds shopify.Credentials) ([]shopify.Webhook, error)
}

type ListEventsQuery struct {
	reader EventReader
}

func NewListEventsQuery(reader EventReader) *ListEventsQuery {
	return &ListEventsQuery{reader: reader}
}

func (q *ListEventsQuery) Query(ctx context.Context, msg ListEventsMessage) (core.EventPage, error) {
	if q == nil || q.reader == nil {
		return core.EventPage{}, core.InternalError(nil, "query: event reader is required")
	}
	filter := msg.Filter
	filter.TenantID = strings.TrimSpace(filter.TenantID)
	filter.Topic = core.ParseTopic(filter.Topic.String())
	return q.reader.List(ctx, filter)
}

type EventStatsQuery struct {
	reader EventReader
	now    core.Clock
}

func NewEventStatsQuery(reader EventReader, now core.Clock) *EventStatsQuery {
	if now == nil {
		now = time.Now
	}
	return &EventStatsQuery{reader: reader, now: now}
}

func (q *EventStatsQuery) Query(ctx context.Context, msg EventStatsMessage) (core.EventStats, error) {
	if q == nil || q.reader == nil {
		return core.EventStats{}, core.InternalError(nil, "query: event reader is required")
	}
	days := msg.Days
	if days <= 0 {
		days = DefaultStatsDays
	}
	since := q.now().UTC().AddDate(0, 0, -days)
	return q.reader.Stats(ctx, strings.TrimSpace(msg.TenantID), since)
}

// HealthQuery probes the database and, for detailed reports, the dispatch
// breaker and dead-letter queue.
type HealthQuery struct {
	db         core.HealthChecker
	resilience ResilienceReporter
	startedAt  time.Time
	now        core.Clock
}

func NewHealthQuery(db core.HealthChecker, resilience ResilienceReporter, now core.Clock) *HealthQuery {
	if now == nil {
		now = time.Now
	}
	return &HealthQuery{db: db, resilience: resilience, startedAt: now(), now: now}
}

func (q *HealthQuery) Query(ctx context.Context, msg HealthMessage) (core.HealthReport, error) {
	if q == nil || q.db == nil {
		return core.HealthReport{}, core.InternalError(nil, "query: health checker is required")
	}
	checkedAt := q.now()
	report := core.HealthReport{
		Status:    core.HealthStatusUp,
		Database:  core.HealthStatusUp,
		Uptime:    checkedAt.Sub(q.startedAt),
		CheckedAt: checkedAt.UTC(),
	}
	if err := q.db.Ping(ctx); err != nil {
		report.Status = core.HealthStatusDown
		report.Database = core.HealthStatusDown
		report.DatabaseError = err.Error()
	}
	if msg.Detailed && q.resilience != nil {
		health := q.resilience.Health()
		report.Resilience = &health
		if report.Status == core.HealthStatusUp && health.Status != core.HealthStatusUp {
			report.Status = core.HealthStatusDegraded
		}
	}
	return report, nil
}

type ListDeadLettersQuery struct {
	reader DeadLetterReader
}

func NewListDeadLettersQuery(reader DeadLetterReader) *ListDeadLettersQuery {
	return &ListDeadLettersQuery{reader: reader}
}

func (q *ListDeadLettersQuery) Query(_ context.Context, msg ListDeadLettersMessage) ([]core.DeadLetterEntry, error) {
	if q == nil || q.reader == nil {
		return nil, core.InternalError(nil, "query: dead letter reader is required")
	}
	return q.reader.DeadLetters(msg.Limit), nil
}

type ListWebhooksQuery struct {
	tenants core.TenantStore
	client  WebhookLister
}

func NewListWebhooksQuery(tenants core.TenantStore, client WebhookLister) *ListWebhooksQuery {
	return &ListWebhooksQuery{tenants: tenants, client: client}
}

func (q *ListWebhooksQuery) Query(ctx context.Context, msg ListWebhooksMessage) ([]shopify.Webhook, error) {
	if q == nil || q.tenants == nil || q.client == nil {
		return nil, core.InternalError(nil, "query: webhook listing requires tenants and client")
	}
	tenant, err := q.tenants.Get(ctx, strings.TrimSpace(msg.TenantID))
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(tenant.AccessToken) == "" {
		return nil, core.BadInputError("query: tenant has no access token")
	}
	return q.client.ListWebhooks(ctx, shopify.CredentialsFor(tenant))
}
