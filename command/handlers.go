package command

import (
	"context"
	"strings"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/providers/shopify"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
)

type EventAdministrator interface {
	RetryEvent(ctx context.Context, eventID string) (core.RetryOutcome, error)
	RetryFailed(ctx context.Context, tenantID string, limit int) (core.RetryReport, error)
	MarkFailed(ctx context.Context, eventID string, message string) (core.WebhookEvent, error)
}

type DeadLetterService interface {
	ReplayDeadLetters(ctx context.Context, batch int) ([]resilience.ReplayResult, error)
	RemoveDeadLetter(id string) bool
	ClearDeadLetters() int
}

type WebhookClient interface {
	RegisterWebhooks(ctx context.Context, creds shopify.Credentials, address string, topics []core.Topic) ([]shopify.Registration, error)
	DeleteAllWebhooks(ctx context.Context, creds shopify.Credentials) ([]shopify.Registration, error)
}

type Reconciler interface {
	RunOnce(ctx context.Context) (reconcile.RunReport, error)
	SyncTenant(ctx context.Context, tenantID string) (reconcile.RunReport, error)
}

type RetryEventCommand struct {
	admin EventAdministrator
}

func NewRetryEventCommand(admin EventAdministrator) *RetryEventCommand {
	return &RetryEventCommand{admin: admin}
}

func (c *RetryEventCommand) Execute(ctx context.Context, msg RetryEventMessage) error {
	if c == nil || c.admin == nil {
		return core.InternalError(nil, "command: event admin is required")
	}
	out, err := c.admin.RetryEvent(ctx, strings.TrimSpace(msg.EventID))
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RetryFailedCommand struct {
	admin EventAdministrator
}

func NewRetryFailedCommand(admin EventAdministrator) *RetryFailedCommand {
	return &RetryFailedCommand{admin: admin}
}

func (c *RetryFailedCommand) Execute(ctx context.Context, msg RetryFailedMessage) error {
	if c == nil || c.admin == nil {
		return core.InternalError(nil, "command: event admin is required")
	}
	out, err := c.admin.RetryFailed(ctx, strings.TrimSpace(msg.TenantID), msg.Limit)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type MarkFailedCommand struct {
	admin EventAdministrator
}

func NewMarkFailedCommand(admin EventAdministrator) *MarkFailedCommand {
	return &MarkFailedCommand{admin: admin}
}

func (c *MarkFailedCommand) Execute(ctx context.Context, msg MarkFailedMessage) error {
	if c == nil || c.admin == nil {
		return core.InternalError(nil, "command: event admin is required")
	}
	out, err := c.admin.MarkFailed(ctx, strings.TrimSpace(msg.EventID), msg.Message)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReplayDeadLettersCommand struct {
	service DeadLetterService
}

func NewReplayDeadLettersCommand(service DeadLetterService) *ReplayDeadLettersCommand {
	return &ReplayDeadLettersCommand{service: service}
}

func (c *ReplayDeadLettersCommand) Execute(ctx context.Context, msg ReplayDeadLettersMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError(nil, "command: dead letter service is required")
	}
	out, err := c.service.ReplayDeadLetters(ctx, msg.Batch)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveDeadLetterCommand struct {
	service DeadLetterService
}

func NewRemoveDeadLetterCommand(service DeadLetterService) *RemoveDeadLetterCommand {
	return &RemoveDeadLetterCommand{service: service}
}

func (c *RemoveDeadLetterCommand) Execute(_ context.Context, msg RemoveDeadLetterMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError(nil, "command: dead letter service is required")
	}
	id := strings.TrimSpace(msg.EntryID)
	if !c.service.RemoveDeadLetter(id) {
		return core.NotFoundError("Dead letter entry not found", map[string]any{"dlq_id": id})
	}
	return nil
}

type ClearDeadLettersCommand struct {
	service DeadLetterService
}

func NewClearDeadLettersCommand(service DeadLetterService) *ClearDeadLettersCommand {
	return &ClearDeadLettersCommand{service: service}
}

func (c *ClearDeadLettersCommand) Execute(ctx context.Context, _ ClearDeadLettersMessage) error {
	if c == nil || c.service == nil {
		return core.InternalError(nil, "command: dead letter service is required")
	}
	storeResult(ctx, c.service.ClearDeadLetters())
	return nil
}

type RegisterWebhooksCommand struct {
	tenants core.TenantStore
	client  WebhookClient
}

func NewRegisterWebhooksCommand(tenants core.TenantStore, client WebhookClient) *RegisterWebhooksCommand {
	return &RegisterWebhooksCommand{tenants: tenants, client: client}
}

func (c *RegisterWebhooksCommand) Execute(ctx context.Context, msg RegisterWebhooksMessage) error {
	if c == nil || c.tenants == nil || c.client == nil {
		return core.InternalError(nil, "command: webhook registration requires tenants and client")
	}
	creds, err := TenantCredentials(ctx, c.tenants, msg.TenantID)
	if err != nil {
		return err
	}
	out, err := c.client.RegisterWebhooks(ctx, creds, msg.Address, msg.Topics)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DeleteWebhooksCommand struct {
	tenants core.TenantStore
	client  WebhookClient
}

func NewDeleteWebhooksCommand(tenants core.TenantStore, client WebhookClient) *DeleteWebhooksCommand {
	return &DeleteWebhooksCommand{tenants: tenants, client: client}
}

func (c *DeleteWebhooksCommand) Execute(ctx context.Context, msg DeleteWebhooksMessage) error {
	if c == nil || c.tenants == nil || c.client == nil {
		return core.InternalError(nil, "command: webhook removal requires tenants and client")
	}
	creds, err := TenantCredentials(ctx, c.tenants, msg.TenantID)
	if err != nil {
		return err
	}
	out, err := c.client.DeleteAllWebhooks(ctx, creds)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReconcileNowCommand struct {
	reconciler Reconciler
}

func NewReconcileNowCommand(reconciler Reconciler) *ReconcileNowCommand {
	return &ReconcileNowCommand{reconciler: reconciler}
}

func (c *ReconcileNowCommand) Execute(ctx context.Context, msg ReconcileNowMessage) error {
	if c == nil || c.reconciler == nil {
		return core.InternalError(nil, "command: reconciler is required")
	}
	var (
		out reconcile.RunReport
		err error
	)
	if tenantID := strings.TrimSpace(msg.TenantID); tenantID != "" {
		out, err = c.reconciler.SyncTenant(ctx, tenantID)
	} else {
		out, err = c.reconciler.RunOnce(ctx)
	}
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

// TenantCredentials loads the tenant and returns its Admin API credentials.
// Tenants without a token cannot call the Admin API.
func TenantCredentials(ctx context.Context, tenants core.TenantStore, tenantID string) (shopify.Credentials, error) {
	tenant, err := tenants.Get(ctx, strings.TrimSpace(tenantID))
	if err != nil {
		return shopify.Credentials{}, err
	}
	if strings.TrimSpace(tenant.AccessToken) == "" {
		return shopify.Credentials{}, core.BadInputError("command: tenant has no access token")
	}
	return shopify.CredentialsFor(tenant), nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
