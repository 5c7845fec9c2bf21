package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/providers/shopify"
	"github.com/goliatone/go-shopsync/resilience"
)

var (
	_ gocmd.Querier[ListEventsMessage, core.EventPage]              = (*ListEventsQuery)(nil)
	_ gocmd.Querier[EventStatsMessage, core.EventStats]             = (*EventStatsQuery)(nil)
	_ gocmd.Querier[HealthMessage, core.HealthReport]               = (*HealthQuery)(nil)
	_ gocmd.Querier[ListDeadLettersMessage, []core.DeadLetterEntry] = (*ListDeadLettersQuery)(nil)
	_ gocmd.Querier[ListWebhooksMessage, []shopify.Webhook]         = (*ListWebhooksQuery)(nil)

	_ ResilienceReporter = (*resilience.Wrapper)(nil)
	_ DeadLetterReader   = (*resilience.Wrapper)(nil)
	_ WebhookLister      = (*shopify.Client)(nil)
	_ EventReader        = core.EventStore(nil)
)
