package core

import "strings"

type Topic string

const (
	TopicOrdersCreate    Topic = "orders/create"
	TopicOrdersUpdated   Topic = "orders/updated"
	TopicOrdersPaid      Topic = "orders/paid"
	TopicOrdersCancelled Topic = "orders/cancelled"
	TopicOrdersFulfilled Topic = "orders/fulfilled"
	TopicProductsCreate  Topic = "products/create"
	TopicProductsUpdate  Topic = "products/update"
	TopicCustomersCreate Topic = "customers/create"
	TopicCustomersUpdate Topic = "customers/update"
	TopicAppUninstalled  Topic = "app/uninstalled"
)

// TopicKind classifies a topic by the handler it is routed to.
type TopicKind string

const (
	TopicKindUnhandled        TopicKind = "unhandled"
	TopicKindOrderUpsert      TopicKind = "order_upsert"
	TopicKindProductUpsert    TopicKind = "product_upsert"
	TopicKindCustomerUpsert   TopicKind = "customer_upsert"
	TopicKindTenantDeactivate TopicKind = "tenant_deactivate"
)

var topicKinds = map[Topic]TopicKind{
	TopicOrdersCreate:    TopicKindOrderUpsert,
	TopicOrdersUpdated:   TopicKindOrderUpsert,
	TopicOrdersPaid:      TopicKindOrderUpsert,
	TopicOrdersCancelled: TopicKindOrderUpsert,
	TopicOrdersFulfilled: TopicKindOrderUpsert,
	TopicProductsCreate:  TopicKindProductUpsert,
	TopicProductsUpdate:  TopicKindProductUpsert,
	TopicCustomersCreate: TopicKindCustomerUpsert,
	TopicCustomersUpdate: TopicKindCustomerUpsert,
	TopicAppUninstalled:  TopicKindTenantDeactivate,
}

// subscribedTopics is the registration order used for webhook subscriptions.
var subscribedTopics = []Topic{
	TopicOrdersCreate,
	TopicOrdersUpdated,
	TopicOrdersPaid,
	TopicOrdersCancelled,
	TopicOrdersFulfilled,
	TopicProductsCreate,
	TopicProductsUpdate,
	TopicCustomersCreate,
	TopicCustomersUpdate,
	TopicAppUninstalled,
}

func ParseTopic(value string) Topic {
	return Topic(strings.ToLower(strings.TrimSpace(value)))
}

func (t Topic) String() string {
	return string(t)
}

// Kind returns TopicKindUnhandled for anything outside the static table.
func (t Topic) Kind() TopicKind {
	if kind, ok := topicKinds[ParseTopic(string(t))]; ok {
		return kind
	}
	return TopicKindUnhandled
}

func (t Topic) Known() bool {
	return t.Kind() != TopicKindUnhandled
}

func (t Topic) IsUninstall() bool {
	return ParseTopic(string(t)) == TopicAppUninstalled
}

func SubscribedTopics() []Topic {
	return append([]Topic(nil), subscribedTopics...)
}
