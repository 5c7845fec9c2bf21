package sqlstore

import (
	"context"
	"strings"
	"time"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/security"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// TenantStore persists tenants. When a secret provider is set, access tokens
// are sealed before they are written and opened on read. Rows written before
// encryption was enabled are returned as stored.
type TenantStore struct {
	db      *bun.DB
	repo    repository.Repository[*tenantRecord]
	secrets core.SecretProvider
}

func NewTenantStore(db *bun.DB, secrets core.SecretProvider) (*TenantStore, error) {
	if db == nil {
		return nil, core.InternalError(nil, "sqlstore: bun db is required")
	}
	repo := repository.NewRepository[*tenantRecord](db, tenantHandlers())
	if validator, ok := repo.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, core.InternalError(err, "sqlstore: invalid tenant repository wiring")
		}
	}
	return &TenantStore{db: db, repo: repo, secrets: secrets}, nil
}

func (s *TenantStore) Get(ctx context.Context, id string) (core.Tenant, error) {
	return s.findOne(ctx, "id", strings.TrimSpace(id))
}

func (s *TenantStore) GetByShopDomain(ctx context.Context, shopDomain string) (core.Tenant, error) {
	return s.findOne(ctx, "shop_domain", strings.ToLower(strings.TrimSpace(shopDomain)))
}

func (s *TenantStore) Create(ctx context.Context, in core.CreateTenantInput) (core.Tenant, error) {
	if s == nil || s.repo == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	domain := strings.ToLower(strings.TrimSpace(in.ShopDomain))
	if domain == "" {
		return core.Tenant{}, core.ValidationError("shop_domain", "Shop domain is required")
	}
	email := strings.TrimSpace(in.Email)
	if email == "" {
		return core.Tenant{}, core.ValidationError("email", "Email is required")
	}
	token, err := s.seal(ctx, in.AccessToken)
	if err != nil {
		return core.Tenant{}, err
	}
	now := time.Now().UTC()
	created, err := s.repo.Create(ctx, &tenantRecord{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Email:       email,
		ShopDomain:  domain,
		AccessToken: token,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		if isUniqueViolation(err) {
			return core.Tenant{}, core.ConflictError("tenant already exists", map[string]any{"shop_domain": domain})
		}
		return core.Tenant{}, err
	}
	return s.toDomain(ctx, created)
}

func (s *TenantStore) List(ctx context.Context) ([]core.Tenant, error) {
	return s.list(ctx)
}

func (s *TenantStore) ListSyncable(ctx context.Context) ([]core.Tenant, error) {
	return s.list(ctx,
		repository.SelectRawProcessor(func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Where("?TableAlias.active = ?", true).
				Where("?TableAlias.access_token IS NOT NULL").
				Where("?TableAlias.access_token <> ''")
		}),
	)
}

func (s *TenantStore) Deactivate(ctx context.Context, id string) (core.Tenant, error) {
	return s.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("active = ?", false).Set("access_token = NULL")
	})
}

func (s *TenantStore) UpdateAccessToken(ctx context.Context, id string, accessToken string) (core.Tenant, error) {
	token, err := s.seal(ctx, accessToken)
	if err != nil {
		return core.Tenant{}, err
	}
	return s.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("access_token = ?", token).Set("active = ?", true)
	})
}

func (s *TenantStore) MarkSynced(ctx context.Context, id string, entity core.EntityType, at time.Time) error {
	column := syncColumn(entity)
	if column == "" {
		return core.ValidationError("entity", "Unsupported entity "+string(entity))
	}
	_, err := s.update(ctx, id, func(q *bun.UpdateQuery) *bun.UpdateQuery {
		return q.Set("? = ?", bun.Ident(column), at.UTC())
	})
	return err
}

func (s *TenantStore) list(ctx context.Context, criteria ...repository.SelectCriteria) ([]core.Tenant, error) {
	if s == nil || s.repo == nil {
		return nil, notConfigured("tenant")
	}
	criteria = append(criteria, repository.OrderBy("created_at ASC"))
	records, _, err := s.repo.List(ctx, criteria...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Tenant, 0, len(records))
	for _, record := range records {
		tenant, err := s.toDomain(ctx, record)
		if err != nil {
			return nil, err
		}
		out = append(out, tenant)
	}
	return out, nil
}

func (s *TenantStore) findOne(ctx context.Context, column string, value string) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	record := &tenantRecord{}
	err := s.db.NewSelect().
		Model(record).
		Where("?TableAlias.? = ?", bun.Ident(column), value).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return core.Tenant{}, core.NotFoundError("Tenant not found", map[string]any{column: value})
		}
		return core.Tenant{}, err
	}
	return s.toDomain(ctx, record)
}

func (s *TenantStore) update(ctx context.Context, id string, apply func(*bun.UpdateQuery) *bun.UpdateQuery) (core.Tenant, error) {
	if s == nil || s.db == nil {
		return core.Tenant{}, notConfigured("tenant")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return core.Tenant{}, core.ValidationError("tenant_id", "Tenant id is required")
	}
	query := s.db.NewUpdate().
		Model((*tenantRecord)(nil)).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id)
	result, err := apply(query).Exec(ctx)
	if err != nil {
		return core.Tenant{}, err
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return core.Tenant{}, core.NotFoundError("Tenant not found", map[string]any{"tenant_id": id})
	}
	return s.Get(ctx, id)
}

func (s *TenantStore) seal(ctx context.Context, token string) (*string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, nil
	}
	if s.secrets == nil {
		return &token, nil
	}
	sealed, err := s.secrets.Encrypt(ctx, []byte(token))
	if err != nil {
		return nil, core.InternalError(err, "sqlstore: seal access token")
	}
	value := string(sealed)
	return &value, nil
}

func (s *TenantStore) toDomain(ctx context.Context, record *tenantRecord) (core.Tenant, error) {
	if record == nil {
		return core.Tenant{}, nil
	}
	token := ""
	if record.AccessToken != nil {
		token = *record.AccessToken
	}
	if token != "" && security.IsEnvelope([]byte(token)) {
		if s.secrets == nil {
			return core.Tenant{}, core.InternalError(nil, "sqlstore: sealed access token found but no secret provider is configured")
		}
		opened, err := s.secrets.Decrypt(ctx, []byte(token))
		if err != nil {
			return core.Tenant{}, core.InternalError(err, "sqlstore: open access token")
		}
		token = string(opened)
	}
	return record.toDomain(token), nil
}

func syncColumn(entity core.EntityType) string {
	switch entity {
	case core.EntityOrders:
		return "last_order_sync"
	case core.EntityProducts:
		return "last_product_sync"
	case core.EntityCustomers:
		return "last_customer_sync"
	default:
		return ""
	}
}

var _ core.TenantStore = (*TenantStore)(nil)
