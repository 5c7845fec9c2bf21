package inbound

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/goliatone/go-shopsync/core"
)

type stubTransformer struct {
	orders      int
	products    int
	customers   int
	deactivated int
	err         error
}

func (s *stubTransformer) UpsertOrder(context.Context, []byte, string) (core.Order, error) {
	s.orders++
	return core.Order{ShopifyID: "1"}, s.err
}

func (s *stubTransformer) UpsertProduct(context.Context, []byte, string) (core.Product, error) {
	s.products++
	return core.Product{}, s.err
}

func (s *stubTransformer) UpsertCustomer(context.Context, []byte, string) (core.Customer, error) {
	s.customers++
	return core.Customer{}, s.err
}

func (s *stubTransformer) DeactivateTenant(context.Context, string) (core.Tenant, error) {
	s.deactivated++
	return core.Tenant{}, s.err
}

func TestDispatcher_RoutesEveryTopicKind(t *testing.T) {
	transformer := &stubTransformer{}
	dispatcher, err := NewTopicDispatcher(transformer, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	ctx := context.Background()
	for _, topic := range core.SubscribedTopics() {
		result, err := dispatcher.Process(ctx, topic, []byte(`{}`), "t1")
		if err != nil {
			t.Fatalf("process %s: %v", topic, err)
		}
		if !result.Success || result.Kind != topic.Kind() {
			t.Fatalf("unexpected result for %s: %+v", topic, result)
		}
	}
	if transformer.orders != 5 || transformer.products != 2 || transformer.customers != 2 || transformer.deactivated != 1 {
		t.Fatalf("unexpected routing counts: %+v", transformer)
	}
}

func TestDispatcher_UnknownTopicIsTypedOutcome(t *testing.T) {
	dispatcher, err := NewTopicDispatcher(&stubTransformer{}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	result, err := dispatcher.Process(context.Background(), "carts/update", []byte(`{}`), "t1")
	if err != nil {
		t.Fatalf("expected nil error for unknown topic, got %v", err)
	}
	if result.Success || !result.Unhandled {
		t.Fatalf("expected unhandled result, got %+v", result)
	}
	if !strings.Contains(result.Message, "Unhandled webhook topic: carts/update") {
		t.Fatalf("unexpected message %q", result.Message)
	}
}

func TestDispatcher_PropagatesHandlerErrors(t *testing.T) {
	sentinel := errors.New("db down")
	dispatcher, err := NewTopicDispatcher(&stubTransformer{err: sentinel}, nil)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	_, err = dispatcher.Process(context.Background(), core.TopicOrdersPaid, []byte(`{}`), "t1")
	if !errors.Is(err, sentinel) {
		t.Fatalf("expected handler error, got %v", err)
	}
}

func TestDispatcher_RegisterRejectsDuplicates(t *testing.T) {
	dispatcher := NewDispatcher(nil)
	handler := func(context.Context, []byte, string) (any, error) { return nil, nil }
	if err := dispatcher.Register(core.TopicKindOrderUpsert, handler); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := dispatcher.Register(core.TopicKindOrderUpsert, handler); !core.IsConflict(err) {
		t.Fatalf("expected conflict on duplicate registration, got %v", err)
	}
	if err := dispatcher.Register(core.TopicKindUnhandled, handler); err == nil {
		t.Fatalf("expected unhandled kind to be rejected")
	}
}
