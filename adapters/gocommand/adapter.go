// Package gocommand registers the shopsync admin commands and queries on a
// go-command registry and the process dispatcher.
package gocommand

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-command"
	commanddispatcher "github.com/goliatone/go-command/dispatcher"
	"github.com/goliatone/go-command/runner"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"

	shopcmd "github.com/goliatone/go-shopsync/command"
	"github.com/goliatone/go-shopsync/core"
	shopquery "github.com/goliatone/go-shopsync/query"
)

// ValidateMessageContract enforces Type() plus optional Validate() contract.
func ValidateMessageContract(msg any) error {
	if err := command.ValidateMessage(msg); err != nil {
		return err
	}
	m, ok := msg.(command.Message)
	if !ok {
		return fmt.Errorf("gocommand: message must implement Type() string")
	}
	if strings.TrimSpace(m.Type()) == "" {
		return fmt.Errorf("gocommand: message type is required")
	}
	return nil
}

// WebhookAPI is the Admin API surface the webhook commands and queries use.
type WebhookAPI interface {
	shopcmd.WebhookClient
	shopquery.WebhookLister
}

// ResilienceOps is the guarded dispatch path seen by the operator surface.
type ResilienceOps interface {
	shopcmd.DeadLetterService
	shopquery.ResilienceReporter
	shopquery.DeadLetterReader
}

// Services are the dependencies handlers are built from. A nil dependency
// leaves its handlers unregistered.
type Services struct {
	Admin      shopcmd.EventAdministrator
	Events     shopquery.EventReader
	Tenants    core.TenantStore
	Webhooks   WebhookAPI
	Resilience ResilienceOps
	Reconciler shopcmd.Reconciler
	Health     core.HealthChecker
	Now        core.Clock
	// RunnerOptions are applied to every subscription.
	RunnerOptions []runner.Option
}

type Bus struct {
	mu            sync.Mutex
	registry      *command.Registry
	subscriptions []commanddispatcher.Subscription
}

func NewBus(registry *command.Registry) *Bus {
	if registry == nil {
		registry = command.NewRegistry()
	}
	return &Bus{registry: registry}
}

func (b *Bus) Registry() *command.Registry {
	if b == nil {
		return nil
	}
	return b.registry
}

// Register subscribes every handler whose dependencies are present and then
// initializes the registry.
func (b *Bus) Register(services Services) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	opts := services.RunnerOptions

	var steps []func() error
	if services.Admin != nil {
		steps = append(steps,
			func() error { return registerCommand(b, shopcmd.NewRetryEventCommand(services.Admin), opts...) },
			func() error { return registerCommand(b, shopcmd.NewRetryFailedCommand(services.Admin), opts...) },
			func() error { return registerCommand(b, shopcmd.NewMarkFailedCommand(services.Admin), opts...) },
		)
	}
	if services.Resilience != nil {
		steps = append(steps,
			func() error {
				return registerCommand(b, shopcmd.NewReplayDeadLettersCommand(services.Resilience), opts...)
			},
			func() error {
				return registerCommand(b, shopcmd.NewRemoveDeadLetterCommand(services.Resilience), opts...)
			},
			func() error {
				return registerCommand(b, shopcmd.NewClearDeadLettersCommand(services.Resilience), opts...)
			},
			func() error {
				return registerQuery(b, shopquery.NewListDeadLettersQuery(services.Resilience), opts...)
			},
		)
	}
	if services.Tenants != nil && services.Webhooks != nil {
		steps = append(steps,
			func() error {
				return registerCommand(b, shopcmd.NewRegisterWebhooksCommand(services.Tenants, services.Webhooks), opts...)
			},
			func() error {
				return registerCommand(b, shopcmd.NewDeleteWebhooksCommand(services.Tenants, services.Webhooks), opts...)
			},
			func() error {
				return registerQuery(b, shopquery.NewListWebhooksQuery(services.Tenants, services.Webhooks), opts...)
			},
		)
	}
	if services.Reconciler != nil {
		steps = append(steps, func() error {
			return registerCommand(b, shopcmd.NewReconcileNowCommand(services.Reconciler), opts...)
		})
	}
	if services.Events != nil {
		steps = append(steps,
			func() error { return registerQuery(b, shopquery.NewListEventsQuery(services.Events), opts...) },
			func() error {
				return registerQuery(b, shopquery.NewEventStatsQuery(services.Events, services.Now), opts...)
			},
		)
	}
	if services.Health != nil {
		var reporter shopquery.ResilienceReporter
		if services.Resilience != nil {
			reporter = services.Resilience
		}
		steps = append(steps, func() error {
			return registerQuery(b, shopquery.NewHealthQuery(services.Health, reporter, services.Now), opts...)
		})
	}

	for _, step := range steps {
		if err := step(); err != nil {
			b.Close()
			return err
		}
	}
	return b.registry.Initialize()
}

func (b *Bus) AddQueueResolver(key string, queueRegistry *jobqueuecommand.Registry) error {
	if b == nil || b.registry == nil {
		return fmt.Errorf("gocommand: registry is not configured")
	}
	if queueRegistry == nil {
		return fmt.Errorf("gocommand: queue registry is required")
	}
	return b.registry.AddResolver(strings.TrimSpace(key), jobqueuecommand.QueueResolver(queueRegistry))
}

// Close removes every dispatcher subscription made by Register.
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, subscription := range b.subscriptions {
		if subscription != nil {
			subscription.Unsubscribe()
		}
	}
	b.subscriptions = nil
}

func (b *Bus) track(subscription commanddispatcher.Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscriptions = append(b.subscriptions, subscription)
}

func registerCommand[T any](b *Bus, cmd command.Commander[T], opts ...runner.Option) error {
	subscription := commanddispatcher.SubscribeCommand(causeCommand(cmd), opts...)
	if err := b.registry.RegisterCommand(cmd); err != nil {
		if subscription != nil {
			subscription.Unsubscribe()
		}
		return err
	}
	b.track(subscription)
	return nil
}

// registerQuery only subscribes on the dispatcher. Queries stay off the
// registry so command resolvers, such as the go-job queue, never see them.
func registerQuery[T any, R any](b *Bus, qry command.Querier[T, R], opts ...runner.Option) error {
	b.track(commanddispatcher.SubscribeQuery(causeQuery(qry), opts...))
	return nil
}

type causeKey struct{}

// cause keeps the error a handler returned. The dispatcher rewrites text
// code and message of rich errors it wraps, so Dispatch and Query hand the
// handler's own error back to callers.
type cause struct {
	err error
}

func withCause(ctx context.Context) (context.Context, *cause) {
	c := &cause{}
	return context.WithValue(ctx, causeKey{}, c), c
}

func recordCause(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if c, ok := ctx.Value(causeKey{}).(*cause); ok {
		c.err = err
	}
	return err
}

func (c *cause) resolve(err error) error {
	if err != nil && c.err != nil {
		return c.err
	}
	return err
}

func causeCommand[T any](cmd command.Commander[T]) command.CommandFunc[T] {
	return func(ctx context.Context, msg T) error {
		return recordCause(ctx, cmd.Execute(ctx, msg))
	}
}

func causeQuery[T any, R any](qry command.Querier[T, R]) command.QueryFunc[T, R] {
	return func(ctx context.Context, msg T) (R, error) {
		out, err := qry.Query(ctx, msg)
		return out, recordCause(ctx, err)
	}
}

// Dispatch validates msg and sends it to its command handler.
func Dispatch[T any](ctx context.Context, msg T) error {
	if err := ValidateMessageContract(msg); err != nil {
		return err
	}
	ctx, c := withCause(ctx)
	return c.resolve(commanddispatcher.Dispatch(ctx, msg))
}

// Execute dispatches msg and returns the result its handler stored.
func Execute[T any, R any](ctx context.Context, msg T) (R, error) {
	var zero R
	collector := command.NewResult[R]()
	if err := Dispatch(command.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, ok := collector.Load()
	if !ok {
		return zero, nil
	}
	return out, nil
}

func Query[T any, R any](ctx context.Context, msg T) (R, error) {
	if err := ValidateMessageContract(msg); err != nil {
		var zero R
		return zero, err
	}
	ctx, c := withCause(ctx)
	out, err := commanddispatcher.Query[T, R](ctx, msg)
	return out, c.resolve(err)
}
