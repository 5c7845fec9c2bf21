package inbound

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

// Transformer is the write side the default handlers call into.
type Transformer interface {
	UpsertOrder(ctx context.Context, payload []byte, tenantID string) (core.Order, error)
	UpsertProduct(ctx context.Context, payload []byte, tenantID string) (core.Product, error)
	UpsertCustomer(ctx context.Context, payload []byte, tenantID string) (core.Customer, error)
	DeactivateTenant(ctx context.Context, tenantID string) (core.Tenant, error)
}

// HandlerFunc processes one payload and returns the stored entity.
type HandlerFunc func(ctx context.Context, payload []byte, tenantID string) (any, error)

type Dispatcher struct {
	Observer *core.Observer

	mu       sync.RWMutex
	handlers map[core.TopicKind]HandlerFunc
}

func NewDispatcher(observer *core.Observer) *Dispatcher {
	if observer == nil {
		observer = core.NewObserver("inbound", nil, nil, nil)
	}
	return &Dispatcher{
		Observer: observer,
		handlers: map[core.TopicKind]HandlerFunc{},
	}
}

// NewTopicDispatcher wires the four standard handler kinds to transformer.
func NewTopicDispatcher(transformer Transformer, observer *core.Observer) (*Dispatcher, error) {
	if transformer == nil {
		return nil, core.InternalError(nil, "inbound: transformer is required")
	}
	d := NewDispatcher(observer)
	handlers := map[core.TopicKind]HandlerFunc{
		core.TopicKindOrderUpsert: func(ctx context.Context, payload []byte, tenantID string) (any, error) {
			return transformer.UpsertOrder(ctx, payload, tenantID)
		},
		core.TopicKindProductUpsert: func(ctx context.Context, payload []byte, tenantID string) (any, error) {
			return transformer.UpsertProduct(ctx, payload, tenantID)
		},
		core.TopicKindCustomerUpsert: func(ctx context.Context, payload []byte, tenantID string) (any, error) {
			return transformer.UpsertCustomer(ctx, payload, tenantID)
		},
		core.TopicKindTenantDeactivate: func(ctx context.Context, _ []byte, tenantID string) (any, error) {
			return transformer.DeactivateTenant(ctx, tenantID)
		},
	}
	for _, kind := range []core.TopicKind{
		core.TopicKindOrderUpsert,
		core.TopicKindProductUpsert,
		core.TopicKindCustomerUpsert,
		core.TopicKindTenantDeactivate,
	} {
		if err := d.Register(kind, handlers[kind]); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Dispatcher) Register(kind core.TopicKind, handler HandlerFunc) error {
	if d == nil {
		return core.InternalError(nil, "inbound: dispatcher is nil")
	}
	if handler == nil {
		return core.BadInputError(fmt.Sprintf("inbound: nil handler for kind %q", kind))
	}
	if kind == "" || kind == core.TopicKindUnhandled {
		return core.BadInputError(fmt.Sprintf("inbound: cannot register handler for kind %q", kind))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.handlers == nil {
		d.handlers = map[core.TopicKind]HandlerFunc{}
	}
	if _, exists := d.handlers[kind]; exists {
		return core.ConflictError("inbound: duplicate handler", map[string]any{"kind": string(kind)})
	}
	d.handlers[kind] = handler
	return nil
}

// Process routes payload by topic. Unknown topics, and known topics without
// a registered handler, return an unhandled result and a nil error.
func (d *Dispatcher) Process(ctx context.Context, topic core.Topic, payload []byte, tenantID string) (result core.ProcessResult, err error) {
	if d == nil {
		return core.ProcessResult{}, core.InternalError(nil, "inbound: dispatcher is nil")
	}
	startedAt := time.Now()
	topic = core.ParseTopic(topic.String())
	kind := topic.Kind()
	defer func() {
		d.Observer.Observe(ctx, startedAt, "process", err, map[string]any{
			"tenant_id": tenantID,
			"topic":     topic.String(),
			"kind":      string(kind),
			"unhandled": result.Unhandled,
		})
	}()

	handler := d.handlerFor(kind)
	if handler == nil {
		return core.ProcessResult{
			Success:   false,
			Topic:     topic,
			Kind:      core.TopicKindUnhandled,
			Message:   "Unhandled webhook topic: " + topic.String(),
			Unhandled: true,
		}, nil
	}

	data, err := handler(ctx, payload, tenantID)
	if err != nil {
		return core.ProcessResult{Topic: topic, Kind: kind}, err
	}
	return core.ProcessResult{
		Success: true,
		Topic:   topic,
		Kind:    kind,
		Data:    data,
	}, nil
}

func (d *Dispatcher) handlerFor(kind core.TopicKind) HandlerFunc {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.handlers[kind]
}

var _ core.Dispatcher = (*Dispatcher)(nil)
