// Package shopsync wires the webhook ingestion pipeline, the reconciliation
// worker and the operator surface into one Runtime.
package shopsync

import "github.com/goliatone/go-shopsync/core"

type Config = core.Config
type ShopifyConfig = core.ShopifyConfig
type ResilienceConfig = core.ResilienceConfig
type ReconcileConfig = core.ReconcileConfig
type PersistenceConfig = core.PersistenceConfig

type Tenant = core.Tenant
type WebhookEvent = core.WebhookEvent
type Order = core.Order
type Product = core.Product
type Customer = core.Customer
type Topic = core.Topic

type StoreProvider = core.StoreProvider
type MetricsRecorder = core.MetricsRecorder
type Logger = core.Logger
type LoggerProvider = core.LoggerProvider

const (
	DefaultSchedule   = core.DefaultSchedule
	DefaultHTTPAddr   = core.DefaultHTTPAddr
	DefaultAPIVersion = core.DefaultAPIVersion
)

var (
	DefaultConfig    = core.DefaultConfig
	ResolveConfig    = core.ResolveConfig
	MapError         = core.MapError
	HTTPStatus       = core.HTTPStatus
	NewEnvLoader     = core.NewEnvRawConfigLoader
	NewConfigLoader  = core.NewCfgxConfigProvider
	SubscribedTopics = core.SubscribedTopics
	ParseTopic       = core.ParseTopic
)
