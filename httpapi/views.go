package httpapi

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
)

type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type eventView struct {
	ID          string          `json:"id"`
	TenantID    string          `json:"tenantId,omitempty"`
	ShopifyID   string          `json:"shopifyId"`
	Topic       string          `json:"topic"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Processed   bool            `json:"processed"`
	ProcessedAt *time.Time      `json:"processedAt,omitempty"`
	Error       string          `json:"errorMessage,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

func newEventView(event core.WebhookEvent) eventView {
	view := eventView{
		ID:          event.ID,
		TenantID:    event.TenantID,
		ShopifyID:   event.ExternalID,
		Topic:       event.Topic.String(),
		Processed:   event.Processed,
		ProcessedAt: event.ProcessedAt,
		Error:       event.Error,
		CreatedAt:   event.CreatedAt,
		UpdatedAt:   event.UpdatedAt,
	}
	if json.Valid(event.Payload) {
		view.Payload = json.RawMessage(event.Payload)
	}
	return view
}

type paginationView struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

type eventPageView struct {
	Events     []eventView    `json:"events"`
	Pagination paginationView `json:"pagination"`
}

func newEventPageView(page core.EventPage) eventPageView {
	events := make([]eventView, 0, len(page.Items))
	for _, item := range page.Items {
		events = append(events, newEventView(item))
	}
	return eventPageView{
		Events: events,
		Pagination: paginationView{
			Page:  page.Page,
			Limit: page.PerPage,
			Total: page.Total,
			Pages: page.Pages,
		},
	}
}

type topicStatView struct {
	Topic     string `json:"topic"`
	Processed bool   `json:"processed"`
	Count     int    `json:"count"`
}

type statsView struct {
	TotalEvents  int             `json:"totalEvents"`
	FailedEvents int             `json:"failedEvents"`
	SuccessRate  string          `json:"successRate"`
	Stats        []topicStatView `json:"stats"`
	Period       string          `json:"period"`
}

func newStatsView(stats core.EventStats, days int) statsView {
	rows := make([]topicStatView, 0, len(stats.ByTopic))
	for _, row := range stats.ByTopic {
		rows = append(rows, topicStatView{Topic: row.Topic.String(), Processed: row.Processed, Count: row.Count})
	}
	return statsView{
		TotalEvents:  stats.TotalEvents,
		FailedEvents: stats.FailedEvents,
		SuccessRate:  fmt.Sprintf("%.2f", stats.SuccessRate),
		Stats:        rows,
		Period:       fmt.Sprintf("%d days", days),
	}
}

type retryOutcomeView struct {
	EventID string `json:"eventId"`
	Status  string `json:"status"`
	Error   string `json:"error,omitempty"`
}

type retryReportView struct {
	Retried int                `json:"retried"`
	Failed  int                `json:"failed"`
	Total   int                `json:"total"`
	Results []retryOutcomeView `json:"results"`
}

func newRetryReportView(report core.RetryReport) retryReportView {
	results := make([]retryOutcomeView, 0, len(report.Results))
	for _, outcome := range report.Results {
		results = append(results, retryOutcomeView{EventID: outcome.EventID, Status: outcome.Status, Error: outcome.Error})
	}
	return retryReportView{Retried: report.Retried, Failed: report.Failed, Total: report.Total, Results: results}
}

type deadLetterView struct {
	ID         string    `json:"id"`
	EventID    string    `json:"eventId,omitempty"`
	TenantID   string    `json:"tenantId"`
	ShopifyID  string    `json:"shopifyId,omitempty"`
	Topic      string    `json:"topic"`
	Error      string    `json:"error"`
	FailedAt   time.Time `json:"failedAt"`
	RetryCount int       `json:"retryCount"`
}

func newDeadLetterViews(entries []core.DeadLetterEntry) []deadLetterView {
	out := make([]deadLetterView, 0, len(entries))
	for _, entry := range entries {
		out = append(out, deadLetterView{
			ID:         entry.ID,
			EventID:    entry.EventID,
			TenantID:   entry.TenantID,
			ShopifyID:  entry.ExternalID,
			Topic:      entry.Topic.String(),
			Error:      entry.Error,
			FailedAt:   entry.FailedAt,
			RetryCount: entry.RetryCount,
		})
	}
	return out
}

type replayView struct {
	EntryID  string `json:"entryId"`
	EventID  string `json:"eventId,omitempty"`
	TenantID string `json:"tenantId"`
	Topic    string `json:"topic"`
	Success  bool   `json:"success"`
	Attempts int    `json:"attempts"`
	Error    string `json:"error,omitempty"`
}

func newReplayViews(results []resilience.ReplayResult) []replayView {
	out := make([]replayView, 0, len(results))
	for _, result := range results {
		out = append(out, replayView{
			EntryID:  result.EntryID,
			EventID:  result.EventID,
			TenantID: result.TenantID,
			Topic:    result.Topic.String(),
			Success:  result.Success,
			Attempts: result.Attempts,
			Error:    result.Error,
		})
	}
	return out
}

type entityReportView struct {
	Entity   string `json:"entity"`
	Pages    int    `json:"pages"`
	Items    int    `json:"items"`
	Failures int    `json:"failures"`
	Synced   bool   `json:"synced"`
	Error    string `json:"error,omitempty"`
}

type tenantReportView struct {
	TenantID   string             `json:"tenantId"`
	ShopDomain string             `json:"shopDomain"`
	Entities   []entityReportView `json:"entities"`
}

type runReportView struct {
	StartedAt  time.Time          `json:"startedAt"`
	FinishedAt time.Time          `json:"finishedAt"`
	Skipped    bool               `json:"skipped"`
	Items      int                `json:"items"`
	Tenants    []tenantReportView `json:"tenants"`
}

func newRunReportView(report reconcile.RunReport) runReportView {
	tenants := make([]tenantReportView, 0, len(report.Tenants))
	for _, tenant := range report.Tenants {
		entities := make([]entityReportView, 0, len(tenant.Entities))
		for _, entity := range tenant.Entities {
			entities = append(entities, entityReportView{
				Entity:   string(entity.Entity),
				Pages:    entity.Pages,
				Items:    entity.Items,
				Failures: entity.Failures,
				Synced:   entity.Synced,
				Error:    entity.Error,
			})
		}
		tenants = append(tenants, tenantReportView{TenantID: tenant.TenantID, ShopDomain: tenant.ShopDomain, Entities: entities})
	}
	return runReportView{
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
		Skipped:    report.Skipped,
		Items:      report.Items(),
		Tenants:    tenants,
	}
}

type checkView struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type breakerView struct {
	Status      string             `json:"status"`
	State       string             `json:"state"`
	Stats       core.BreakerCounts `json:"stats"`
	DLQSize     int                `json:"dlqSize"`
	DLQCapacity int                `json:"dlqCapacity"`
}

type healthView struct {
	Status    string         `json:"status"`
	Message   string         `json:"message"`
	Uptime    float64        `json:"uptime"`
	Timestamp string         `json:"timestamp"`
	Checks    map[string]any `json:"checks"`
}

func newHealthView(report core.HealthReport) healthView {
	message := "OK"
	if report.Status == core.HealthStatusDown {
		message = "Service Unavailable"
	}
	checks := map[string]any{
		"database": checkView{Status: report.Database, Error: report.DatabaseError},
	}
	if report.Resilience != nil {
		checks["circuitBreaker"] = breakerView{
			Status:      report.Resilience.Status,
			State:       report.Resilience.BreakerState,
			Stats:       report.Resilience.Counts,
			DLQSize:     report.Resilience.DLQSize,
			DLQCapacity: report.Resilience.DLQCapacity,
		}
	}
	return healthView{
		Status:    report.Status,
		Message:   message,
		Uptime:    report.Uptime.Seconds(),
		Timestamp: report.CheckedAt.Format(time.RFC3339),
		Checks:    checks,
	}
}
