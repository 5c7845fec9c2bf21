// Package sync runs the scheduled reconciliation pull: every syncable tenant
// is paged through the Admin API per entity and each item goes through the
// same upserts as webhook dispatch.
package sync

import (
	"context"
	gosync "sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/providers/shopify"
	"github.com/robfig/cron/v3"
)

const MessageAlreadyRunning = "Reconciliation already running"

type PageFetcher interface {
	FirstPageURL(shopDomain string, entity core.EntityType, since *time.Time) string
	FetchPage(ctx context.Context, creds shopify.Credentials, entity core.EntityType, pageURL string) (shopify.Page, error)
}

type Transformer interface {
	UpsertOrder(ctx context.Context, payload []byte, tenantID string) (core.Order, error)
	UpsertProduct(ctx context.Context, payload []byte, tenantID string) (core.Product, error)
	UpsertCustomer(ctx context.Context, payload []byte, tenantID string) (core.Customer, error)
}

type Pacer interface {
	Pace(ctx context.Context, shopDomain string) (time.Duration, error)
}

type Worker struct {
	Tenants      core.TenantStore
	Client       PageFetcher
	Transformer  Transformer
	Pacer        Pacer
	Schedule     string
	StartupDelay time.Duration
	Now          core.Clock
	Observer     *core.Observer
	CronLogger   cron.Logger

	running atomic.Bool
	mu      gosync.Mutex
	cron    *cron.Cron
	timer   *time.Timer
	cancel  context.CancelFunc
}

func NewWorker(
	tenants core.TenantStore,
	client PageFetcher,
	transformer Transformer,
	pacer Pacer,
	cfg core.ReconcileConfig,
	observer *core.Observer,
) *Worker {
	if observer == nil {
		observer = core.NewObserver("sync", nil, nil, nil)
	}
	schedule := cfg.Schedule
	if schedule == "" {
		schedule = core.DefaultSchedule
	}
	return &Worker{
		Tenants:      tenants,
		Client:       client,
		Transformer:  transformer,
		Pacer:        pacer,
		Schedule:     schedule,
		StartupDelay: cfg.StartupDelay,
		Now:          func() time.Time { return time.Now().UTC() },
		Observer:     observer,
	}
}

// Start registers the schedule and arms the one-off startup run. Runs use a
// context derived from ctx, so cancelling it stops in-flight pulls.
func (w *Worker) Start(ctx context.Context) error {
	if w == nil {
		return core.InternalError(nil, "sync: worker is nil")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cron != nil {
		return core.ConflictError("sync: worker already started", nil)
	}
	runCtx, cancel := context.WithCancel(ctx)

	opts := []cron.Option{}
	if w.CronLogger != nil {
		opts = append(opts, cron.WithLogger(w.CronLogger))
	}
	scheduler := cron.New(opts...)
	if _, err := scheduler.AddFunc(w.Schedule, func() { w.trigger(runCtx, "schedule") }); err != nil {
		cancel()
		return core.ValidationError("schedule", "Invalid reconcile schedule: "+err.Error())
	}
	scheduler.Start()
	w.cron = scheduler
	w.cancel = cancel
	if w.StartupDelay >= 0 {
		w.timer = time.AfterFunc(w.StartupDelay, func() { w.trigger(runCtx, "startup") })
	}
	w.Observer.Info(ctx, "reconciliation worker started", map[string]any{
		"schedule":      w.Schedule,
		"startup_delay": w.StartupDelay.String(),
	})
	return nil
}

// Stop halts scheduling and cancels in-flight runs. The returned context is
// done once running jobs have returned.
func (w *Worker) Stop() context.Context {
	if w == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	if w.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	done := w.cron.Stop()
	w.cron = nil
	return done
}

func (w *Worker) Running() bool {
	return w != nil && w.running.Load()
}

func (w *Worker) trigger(ctx context.Context, source string) {
	report, err := w.RunOnce(ctx)
	if err != nil && core.IsConflict(err) {
		w.Observer.Warn(ctx, "reconciliation still running, skipping trigger", map[string]any{"trigger": source})
		return
	}
	if err != nil {
		w.Observer.Error(ctx, "reconciliation run failed", map[string]any{"trigger": source, "error": err.Error()})
		return
	}
	w.Observer.Info(ctx, "reconciliation run completed", map[string]any{
		"trigger": source,
		"tenants": len(report.Tenants),
		"items":   report.Items(),
		"failed":  report.Failures(),
	})
}

// RunOnce syncs every active tenant holding an access token. An overlapping
// call returns a conflict error without doing any work.
func (w *Worker) RunOnce(ctx context.Context) (report RunReport, err error) {
	if err := w.ready(); err != nil {
		return RunReport{}, err
	}
	if !w.running.CompareAndSwap(false, true) {
		return RunReport{Skipped: true}, core.ConflictError(MessageAlreadyRunning, nil)
	}
	defer w.running.Store(false)

	startedAt := w.now()
	defer func() {
		w.Observer.Observe(ctx, startedAt, "run", err, map[string]any{
			"tenants": len(report.Tenants),
			"items":   report.Items(),
		})
	}()

	report.StartedAt = startedAt
	tenants, err := w.Tenants.ListSyncable(ctx)
	if err != nil {
		return report, err
	}
	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Tenants = append(report.Tenants, w.syncTenant(ctx, tenant, startedAt))
	}
	report.FinishedAt = w.now()
	return report, nil
}

// SyncTenant runs one tenant under the same overlap guard as RunOnce.
func (w *Worker) SyncTenant(ctx context.Context, tenantID string) (report RunReport, err error) {
	if err := w.ready(); err != nil {
		return RunReport{}, err
	}
	tenant, err := w.Tenants.Get(ctx, tenantID)
	if err != nil {
		return RunReport{}, err
	}
	if !tenant.CanSync() {
		return RunReport{}, core.ValidationError("tenant_id", "Tenant is inactive or has no access token")
	}
	if !w.running.CompareAndSwap(false, true) {
		return RunReport{Skipped: true}, core.ConflictError(MessageAlreadyRunning, nil)
	}
	defer w.running.Store(false)

	startedAt := w.now()
	report.StartedAt = startedAt
	report.Tenants = []TenantReport{w.syncTenant(ctx, tenant, startedAt)}
	report.FinishedAt = w.now()
	return report, nil
}

func (w *Worker) syncTenant(ctx context.Context, tenant core.Tenant, runStartedAt time.Time) TenantReport {
	out := TenantReport{TenantID: tenant.ID, ShopDomain: tenant.ShopDomain}
	for _, entity := range core.SyncedEntities() {
		out.Entities = append(out.Entities, w.syncEntity(ctx, tenant, entity, runStartedAt))
	}
	return out
}

// syncEntity pages one entity type. A page failure stops this entity and
// leaves its last-sync timestamp untouched so the next run covers the gap.
func (w *Worker) syncEntity(ctx context.Context, tenant core.Tenant, entity core.EntityType, runStartedAt time.Time) (out EntityReport) {
	startedAt := time.Now()
	fields := map[string]any{
		"tenant_id":   tenant.ID,
		"shop_domain": tenant.ShopDomain,
		"entity":      string(entity),
	}
	var pageErr error
	defer func() {
		fields["pages"] = out.Pages
		fields["items"] = out.Items
		fields["failures"] = out.Failures
		w.Observer.Observe(ctx, startedAt, "sync_entity", pageErr, fields)
	}()

	out.Entity = entity
	creds := shopify.CredentialsFor(tenant)
	pageURL := w.Client.FirstPageURL(tenant.ShopDomain, entity, tenant.LastSync(entity))
	for pageURL != "" {
		page, err := w.Client.FetchPage(ctx, creds, entity, pageURL)
		if err != nil {
			pageErr = err
			out.Error = err.Error()
			return out
		}
		out.Pages++
		for _, item := range page.Items {
			if err := w.upsert(ctx, entity, item, tenant.ID); err != nil {
				out.Failures++
				w.Observer.Warn(ctx, "reconciliation item failed", map[string]any{
					"tenant_id": tenant.ID,
					"entity":    string(entity),
					"error":     err.Error(),
				})
				continue
			}
			out.Items++
		}
		pageURL = page.NextURL
		if w.Pacer != nil {
			if _, err := w.Pacer.Pace(ctx, tenant.ShopDomain); err != nil {
				pageErr = err
				out.Error = err.Error()
				return out
			}
		}
	}

	if err := w.Tenants.MarkSynced(ctx, tenant.ID, entity, runStartedAt); err != nil {
		pageErr = err
		out.Error = err.Error()
		return out
	}
	out.Synced = true
	return out
}

func (w *Worker) upsert(ctx context.Context, entity core.EntityType, payload []byte, tenantID string) error {
	var err error
	switch entity {
	case core.EntityOrders:
		_, err = w.Transformer.UpsertOrder(ctx, payload, tenantID)
	case core.EntityProducts:
		_, err = w.Transformer.UpsertProduct(ctx, payload, tenantID)
	case core.EntityCustomers:
		_, err = w.Transformer.UpsertCustomer(ctx, payload, tenantID)
	default:
		err = core.ValidationError("entity", "Unsupported entity "+string(entity))
	}
	return err
}

func (w *Worker) ready() error {
	if w == nil || w.Tenants == nil || w.Client == nil || w.Transformer == nil {
		return core.InternalError(nil, "sync: worker is not fully wired")
	}
	return nil
}

func (w *Worker) now() time.Time {
	if w.Now != nil {
		return w.Now().UTC()
	}
	return time.Now().UTC()
}
