package sqlstore

import (
	"context"
	"sort"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-shopsync/core"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	defaultEventsPerPage   = 50
	defaultFailedListLimit = 100
)

// EventStore is the webhook delivery ledger. Rows are unique on
// (tenant_id, topic, external_id) and Log overwrites the outcome columns of
// an existing row.
type EventStore struct {
	db   *bun.DB
	repo repository.Repository[*webhookEventRecord]
}

func NewEventStore(db *bun.DB) (*EventStore, error) {
	if db == nil {
		return nil, core.InternalError(nil, "sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*webhookEventRecord](db, webhookEventHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, core.InternalError(err, "sqlstore: invalid webhook event repository wiring")
		}
	}
	return &EventStore{db: db, repo: repo}, nil
}

func (s *EventStore) IsProcessed(ctx context.Context, tenantID string, externalID string, topic core.Topic) (bool, error) {
	if s == nil || s.db == nil {
		return false, notConfigured("webhook event")
	}
	count, err := s.db.NewSelect().
		Model((*webhookEventRecord)(nil)).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.topic = ?", topic.String()).
		Where("?TableAlias.external_id = ?", strings.TrimSpace(externalID)).
		Where("?TableAlias.processed = ?", true).
		Count(ctx)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (s *EventStore) Log(ctx context.Context, in core.LogEventInput) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, notConfigured("webhook event")
	}
	now := time.Now().UTC()
	record := &webhookEventRecord{
		ID:         uuid.NewString(),
		TenantID:   strings.TrimSpace(in.TenantID),
		ExternalID: strings.TrimSpace(in.ExternalID),
		Topic:      in.Topic.String(),
		Payload:    append([]byte(nil), in.Payload...),
		Processed:  in.Processed,
		Error:      in.Error,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if record.ExternalID == "" {
		record.ExternalID = core.UnknownExternalID
	}
	if in.Processed {
		record.ProcessedAt = &now
	}
	_, err := s.db.NewInsert().
		Model(record).
		On("CONFLICT (tenant_id, topic, external_id) DO UPDATE").
		Set("payload = EXCLUDED.payload").
		Set("processed = EXCLUDED.processed").
		Set("processed_at = EXCLUDED.processed_at").
		Set("error = EXCLUDED.error").
		Set("updated_at = EXCLUDED.updated_at").
		Returning("*").
		Exec(ctx)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

func (s *EventStore) Get(ctx context.Context, id string) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, notConfigured("webhook event")
	}
	id = strings.TrimSpace(id)
	record := &webhookEventRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.WebhookEvent{}, core.NotFoundError("Webhook event not found", map[string]any{"event_id": id})
		}
		return core.WebhookEvent{}, err
	}
	return record.toDomain(), nil
}

// List pages events newest first. Page and PerPage default to 1 and 50.
func (s *EventStore) List(ctx context.Context, filter core.EventFilter) (core.EventPage, error) {
	if s == nil || s.repo == nil {
		return core.EventPage{}, notConfigured("webhook event")
	}
	page := max(filter.Page, 1)
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = defaultEventsPerPage
	}

	criteria := []repository.SelectCriteria{}
	if tenantID := strings.TrimSpace(filter.TenantID); tenantID != "" {
		criteria = append(criteria, repository.SelectBy("tenant_id", "=", tenantID))
	}
	if topic := strings.TrimSpace(filter.Topic.String()); topic != "" {
		criteria = append(criteria, repository.SelectBy("topic", "=", topic))
	}
	if filter.Processed != nil {
		processed := *filter.Processed
		criteria = append(criteria, repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.processed = ?", processed)
		}))
	}
	criteria = append(criteria,
		repository.OrderBy("created_at DESC"),
		repository.SelectPaginate(perPage, (page-1)*perPage),
	)

	records, total, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return core.EventPage{}, err
	}
	items := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		items = append(items, record.toDomain())
	}
	return core.EventPage{
		Items:   items,
		Page:    page,
		PerPage: perPage,
		Total:   total,
		Pages:   (total + perPage - 1) / perPage,
	}, nil
}

// ListFailed returns unprocessed events of a tenant, oldest first.
func (s *EventStore) ListFailed(ctx context.Context, tenantID string, limit int) ([]core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return nil, notConfigured("webhook event")
	}
	if limit <= 0 {
		limit = defaultFailedListLimit
	}
	var records []*webhookEventRecord
	err := s.db.NewSelect().
		Model(&records).
		Where("?TableAlias.tenant_id = ?", strings.TrimSpace(tenantID)).
		Where("?TableAlias.processed = ?", false).
		OrderExpr("?TableAlias.created_at ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]core.WebhookEvent, 0, len(records))
	for _, record := range records {
		out = append(out, record.toDomain())
	}
	return out, nil
}

func (s *EventStore) Stats(ctx context.Context, tenantID string, since time.Time) (core.EventStats, error) {
	if s == nil || s.db == nil {
		return core.EventStats{}, notConfigured("webhook event")
	}
	tenantID = strings.TrimSpace(tenantID)
	stats := core.EventStats{TenantID: tenantID, Since: since.UTC()}

	var rows []topicCountRow
	err := s.db.NewSelect().
		Model((*webhookEventRecord)(nil)).
		ColumnExpr("?TableAlias.topic AS topic").
		ColumnExpr("?TableAlias.processed AS processed").
		ColumnExpr("COUNT(*) AS count").
		Where("?TableAlias.tenant_id = ?", tenantID).
		Where("?TableAlias.created_at >= ?", since.UTC()).
		GroupExpr("?TableAlias.topic, ?TableAlias.processed").
		Scan(ctx, &rows)
	if err != nil {
		return core.EventStats{}, err
	}
	for _, row := range rows {
		stats.TotalEvents += row.Count
		if !row.Processed {
			stats.FailedEvents += row.Count
		}
		stats.ByTopic = append(stats.ByTopic, core.TopicStat{
			Topic:     core.Topic(row.Topic),
			Processed: row.Processed,
			Count:     row.Count,
		})
	}
	sort.Slice(stats.ByTopic, func(i, j int) bool {
		if stats.ByTopic[i].Topic != stats.ByTopic[j].Topic {
			return stats.ByTopic[i].Topic < stats.ByTopic[j].Topic
		}
		return stats.ByTopic[i].Processed && !stats.ByTopic[j].Processed
	})
	if stats.TotalEvents > 0 {
		stats.SuccessRate = float64(stats.TotalEvents-stats.FailedEvents) / float64(stats.TotalEvents) * 100
	}
	return stats, nil
}

func (s *EventStore) MarkProcessed(ctx context.Context, id string) (core.WebhookEvent, error) {
	now := time.Now().UTC()
	return s.update(ctx, id, now, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("processed = ?", true).Set("processed_at = ?", now).Set("error = ?", "")
	})
}

func (s *EventStore) MarkFailed(ctx context.Context, id string, message string) (core.WebhookEvent, error) {
	return s.update(ctx, id, time.Now().UTC(), func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("processed = ?", false).Set("processed_at = NULL").Set("error = ?", message)
	})
}

func (s *EventStore) update(
	ctx context.Context,
	id string,
	now time.Time,
	apply func(*bun.UpdateQuery) *bun.UpdateQuery,
) (core.WebhookEvent, error) {
	if s == nil || s.db == nil {
		return core.WebhookEvent{}, notConfigured("webhook event")
	}
	id = strings.TrimSpace(id)
	query := s.db.NewUpdate().
		Model((*webhookEventRecord)(nil)).
		Set("updated_at = ?", now).
		Where("id = ?", id)
	result, err := apply(query).Exec(ctx)
	if err != nil {
		return core.WebhookEvent{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.WebhookEvent{}, core.NotFoundError("Webhook event not found", map[string]any{"event_id": id})
	}
	return s.Get(ctx, id)
}

var _ core.EventStore = (*EventStore)(nil)
