package shopsync

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/goliatone/go-command"
	jobqueuecommand "github.com/goliatone/go-job/queue/command"
	persistence "github.com/goliatone/go-persistence-bun"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/goliatone/go-shopsync/adapters/gocommand"
	"github.com/goliatone/go-shopsync/adapters/gojob"
	"github.com/goliatone/go-shopsync/adapters/gologger"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/httpapi"
	"github.com/goliatone/go-shopsync/inbound"
	"github.com/goliatone/go-shopsync/providers/shopify"
	"github.com/goliatone/go-shopsync/ratelimit"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
	"github.com/goliatone/go-shopsync/tenants"
	"github.com/goliatone/go-shopsync/transform"
	"github.com/goliatone/go-shopsync/transport"
	"github.com/goliatone/go-shopsync/webhooks"
)

const (
	shutdownTimeout  = 10 * time.Second
	queueResolverKey = "queue"
)

type Option func(*options)

type options struct {
	stores         core.StoreProvider
	persistence    *persistence.Client
	loggerProvider core.LoggerProvider
	metrics        core.MetricsRecorder
	gatherer       prometheus.Gatherer
	httpClient     transport.HTTPDoer
	endpoint       func(shopDomain string) string
	registry       *command.Registry
	queue          *jobqueuecommand.Registry
	now            core.Clock
}

// WithStores injects a ready store set and skips persistence wiring.
func WithStores(stores core.StoreProvider) Option {
	return func(o *options) { o.stores = stores }
}

// WithPersistence builds the sql stores over client. Migrations must already
// have run.
func WithPersistence(client *persistence.Client) Option {
	return func(o *options) { o.persistence = client }
}

func WithLoggerProvider(provider core.LoggerProvider) Option {
	return func(o *options) { o.loggerProvider = provider }
}

func WithMetrics(metrics core.MetricsRecorder, gatherer prometheus.Gatherer) Option {
	return func(o *options) {
		o.metrics = metrics
		o.gatherer = gatherer
	}
}

// WithHTTPClient replaces the client used for Admin API calls.
func WithHTTPClient(client transport.HTTPDoer) Option {
	return func(o *options) { o.httpClient = client }
}

// WithShopifyEndpoint overrides the scheme and host Admin API requests go
// to, per shop domain.
func WithShopifyEndpoint(endpoint func(shopDomain string) string) Option {
	return func(o *options) { o.endpoint = endpoint }
}

func WithCommandRegistry(registry *command.Registry) Option {
	return func(o *options) { o.registry = registry }
}

// WithQueueRegistry mirrors every admin command into a go-job queue
// registry so queue workers can execute them by message type.
func WithQueueRegistry(registry *jobqueuecommand.Registry) Option {
	return func(o *options) { o.queue = registry }
}

func WithClock(now core.Clock) Option {
	return func(o *options) { o.now = now }
}

// Runtime holds the wired components of one shopsync process.
type Runtime struct {
	Config      core.Config
	Stores      core.StoreProvider
	Resolver    *tenants.Resolver
	Transformer *transform.Transformer
	Dispatcher  *inbound.Dispatcher
	Resilience  *resilience.Wrapper
	Processor   *webhooks.Processor
	Admin       *webhooks.EventAdmin
	Shopify     *shopify.Client
	Worker      *reconcile.Worker
	Bus         *gocommand.Bus
	Jobs        *gojob.Runner
	Server      *httpapi.Server
	Observer    *core.Observer

	workerStarted bool
}

// NewRuntime validates cfg and wires every component. The command bus is
// registered on the process dispatcher; call Close to release it.
func NewRuntime(cfg core.Config, opts ...Option) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, core.BadInputError(err.Error())
	}
	o := options{}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	stores, err := resolveStores(cfg, o)
	if err != nil {
		return nil, err
	}
	observer := func(name string) *core.Observer {
		return core.NewObserver(name, o.loggerProvider, nil, o.metrics)
	}

	rt := &Runtime{Config: cfg, Stores: stores, Observer: observer(cfg.ServiceName)}
	rt.Resolver = tenants.NewResolver(stores.TenantStore(), observer("tenants"))
	rt.Transformer = transform.New(stores, observer("transform"))
	rt.Dispatcher, err = inbound.NewTopicDispatcher(rt.Transformer, observer("inbound"))
	if err != nil {
		return nil, err
	}

	rt.Resilience = resilience.NewWrapper(rt.Dispatcher, cfg.Resilience, observer("resilience"))
	rt.Resilience.Events = stores.EventStore()

	rt.Processor = webhooks.NewProcessor(
		cfg.Shopify.WebhookSecret,
		webhooks.NewSignatureVerifier(cfg.Shopify),
		rt.Resolver,
		stores.EventStore(),
		rt.Dispatcher,
	)
	rt.Processor.Guard = rt.Resilience
	rt.Processor.Observer = observer("webhooks")

	rt.Admin = webhooks.NewEventAdmin(stores.EventStore(), stores.TenantStore(), rt.Dispatcher)
	rt.Admin.Observer = observer("webhooks.admin")

	pacer := ratelimit.NewPacer(cfg.Reconcile.PacingThreshold, ratelimit.NewMemoryStateStore())
	rt.Shopify = shopify.NewClient(
		transport.NewRESTAdapter(o.httpClient, observer("transport")),
		cfg.Shopify,
		pacer,
		observer("shopify"),
	)
	if o.endpoint != nil {
		rt.Shopify.Endpoint = o.endpoint
	}

	rt.Worker = reconcile.NewWorker(stores.TenantStore(), rt.Shopify, rt.Transformer, pacer, cfg.Reconcile, observer("sync"))
	if o.now != nil {
		rt.Worker.Now = o.now
	}
	if o.loggerProvider != nil {
		rt.Worker.CronLogger = gologger.NewBridge("cron", o.loggerProvider, nil).Cron()
	}
	rt.Jobs = gojob.NewRunner(rt.Resilience, rt.Worker, observer("gojob"))

	services := gocommand.Services{
		Admin:      rt.Admin,
		Events:     stores.EventStore(),
		Tenants:    stores.TenantStore(),
		Webhooks:   rt.Shopify,
		Resilience: rt.Resilience,
		Reconciler: rt.Worker,
		Now:        o.now,
	}
	if checker, ok := stores.(core.HealthChecker); ok {
		services.Health = checker
	}
	rt.Bus = gocommand.NewBus(o.registry)
	if o.queue != nil {
		if err := rt.Bus.AddQueueResolver(queueResolverKey, o.queue); err != nil {
			return nil, err
		}
	}
	if err := rt.Bus.Register(services); err != nil {
		return nil, err
	}

	rt.Server = httpapi.NewServer(rt.Processor, httpapi.Config{
		WebhookAddress: cfg.Shopify.WebhookAddress,
		Gatherer:       o.gatherer,
		Observer:       observer("httpapi"),
	})
	return rt, nil
}

func (r *Runtime) Handler() http.Handler {
	if r == nil || r.Server == nil {
		return http.NotFoundHandler()
	}
	return r.Server.Handler()
}

// Start arms the reconciliation schedule when it is enabled.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return core.InternalError(nil, "shopsync: runtime is nil")
	}
	if !r.Config.Reconcile.Enabled {
		r.Observer.Info(ctx, "reconciliation disabled", nil)
		return nil
	}
	if err := r.Worker.Start(ctx); err != nil {
		return err
	}
	r.workerStarted = true
	return nil
}

// Serve listens on the configured address until ctx is cancelled, then
// drains in-flight requests.
func (r *Runtime) Serve(ctx context.Context) error {
	addr := strings.TrimSpace(r.Config.HTTP.Addr)
	if addr == "" {
		addr = core.DefaultHTTPAddr
	}
	server := &http.Server{
		Addr:              addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errs := make(chan error, 1)
	go func() {
		r.Observer.Info(ctx, "http server listening", map[string]any{"addr": addr})
		errs <- server.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// Reconcile runs one reconciliation pass in process, for every syncable
// tenant or for tenantID alone.
func (r *Runtime) Reconcile(ctx context.Context, tenantID string) (reconcile.RunReport, error) {
	result, err := r.Jobs.Run(ctx, gojob.ReconcileMessage(tenantID))
	return result.Reconcile, err
}

// Replay re-dispatches up to batch dead-letter entries.
func (r *Runtime) Replay(ctx context.Context, batch int) ([]resilience.ReplayResult, error) {
	result, err := r.Jobs.Run(ctx, gojob.ReplayMessage(batch))
	return result.Replays, err
}

// Close stops the worker, waiting for in-flight runs until ctx is done, and
// releases the bus subscriptions.
func (r *Runtime) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	var err error
	if r.workerStarted {
		select {
		case <-r.Worker.Stop().Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		r.workerStarted = false
	}
	r.Bus.Close()
	return err
}
