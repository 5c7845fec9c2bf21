package query

import (
	"strings"

	"github.com/goliatone/go-shopsync/core"
)

const (
	TypeListEvents      = "shopsync.query.events.list"
	TypeEventStats      = "shopsync.query.events.stats"
	TypeHealth          = "shopsync.query.health"
	TypeListDeadLetters = "shopsync.query.dlq.list"
	TypeListWebhooks    = "shopsync.query.webhooks.list"

	DefaultStatsDays = 7
	MaxEventsPerPage = 250
)

type ListEventsMessage struct {
	Filter core.EventFilter
}

func (ListEventsMessage) Type() string { return TypeListEvents }

func (m ListEventsMessage) Validate() error {
	if m.Filter.Page < 0 {
		return core.FieldError("query", "page", "page must be >= 0")
	}
	if m.Filter.PerPage < 0 || m.Filter.PerPage > MaxEventsPerPage {
		return core.FieldError("query", "per_page", "per_page must be between 0 and 250")
	}
	return nil
}

// EventStatsMessage covers the trailing Days window, DefaultStatsDays when
// unset.
type EventStatsMessage struct {
	TenantID string
	Days     int
}

func (EventStatsMessage) Type() string { return TypeEventStats }

func (m EventStatsMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldError("query", "tenant_id", "tenant id is required")
	}
	if m.Days < 0 {
		return core.FieldError("query", "days", "days must be >= 0")
	}
	return nil
}

type HealthMessage struct {
	Detailed bool
}

func (HealthMessage) Type() string { return TypeHealth }

func (HealthMessage) Validate() error { return nil }

type ListDeadLettersMessage struct {
	Limit int
}

func (ListDeadLettersMessage) Type() string { return TypeListDeadLetters }

func (m ListDeadLettersMessage) Validate() error {
	if m.Limit < 0 {
		return core.FieldError("query", "limit", "limit must be >= 0")
	}
	return nil
}

type ListWebhooksMessage struct {
	TenantID string
}

func (ListWebhooksMessage) Type() string { return TypeListWebhooks }

func (m ListWebhooksMessage) Validate() error {
	if strings.TrimSpace(m.TenantID) == "" {
		return core.FieldError("query", "tenant_id", "tenant id is required")
	}
	return nil
}
