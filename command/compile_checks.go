package command

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-shopsync/providers/shopify"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
	"github.com/goliatone/go-shopsync/webhooks"
)

var (
	_ gocmd.Commander[RetryEventMessage]        = (*RetryEventCommand)(nil)
	_ gocmd.Commander[RetryFailedMessage]       = (*RetryFailedCommand)(nil)
	_ gocmd.Commander[MarkFailedMessage]        = (*MarkFailedCommand)(nil)
	_ gocmd.Commander[ReplayDeadLettersMessage] = (*ReplayDeadLettersCommand)(nil)
	_ gocmd.Commander[RemoveDeadLetterMessage]  = (*RemoveDeadLetterCommand)(nil)
	_ gocmd.Commander[ClearDeadLettersMessage]  = (*ClearDeadLettersCommand)(nil)
	_ gocmd.Commander[RegisterWebhooksMessage]  = (*RegisterWebhooksCommand)(nil)
	_ gocmd.Commander[DeleteWebhooksMessage]    = (*DeleteWebhooksCommand)(nil)
	_ gocmd.Commander[ReconcileNowMessage]      = (*ReconcileNowCommand)(nil)

	_ EventAdministrator = (*webhooks.EventAdmin)(nil)
	_ DeadLetterService  = (*resilience.Wrapper)(nil)
	_ WebhookClient      = (*shopify.Client)(nil)
	_ Reconciler         = (*reconcile.Worker)(nil)
)
