// Package httpapi is the gin boundary: the Shopify webhook endpoint, the
// operator routes and the health and metrics probes.
package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/webhooks"
)

const (
	DefaultWebhookPath  = "/webhooks/shopify"
	DefaultAdminPrefix  = "/api/webhook-management"
	DefaultMaxBodyBytes = 10 << 20

	HeaderRequestID = "X-Request-Id"
)

// DeliveryHandler runs one webhook delivery through ingestion.
type DeliveryHandler interface {
	Handle(ctx context.Context, delivery webhooks.Delivery) webhooks.Response
}

type Config struct {
	WebhookPath  string
	AdminPrefix  string
	MaxBodyBytes int64
	// PublicURL is the externally reachable base used as the default
	// subscription address when registering webhooks.
	PublicURL string
	// WebhookAddress, when set, is used as the subscription address as is.
	WebhookAddress string
	// Gatherer backs /metrics. Nil disables the route.
	Gatherer prometheus.Gatherer
	Observer *core.Observer
}

type Server struct {
	config    Config
	processor DeliveryHandler
	engine    *gin.Engine
	observer  *core.Observer
}

// NewServer builds the router. Operator routes dispatch through the
// go-command dispatcher, so the handlers they need must already be
// registered on the process bus.
func NewServer(processor DeliveryHandler, cfg Config) *Server {
	cfg = withDefaults(cfg)
	observer := cfg.Observer
	if observer == nil {
		observer = core.NewObserver("httpapi", nil, nil, nil)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		config:    cfg,
		processor: processor,
		engine:    engine,
		observer:  observer,
	}
	engine.Use(s.requestContext())

	engine.POST(cfg.WebhookPath, s.handleWebhook)
	engine.POST("/api/webhooks", s.handleWebhook)

	engine.GET("/health", s.handleHealth)
	engine.GET("/health/detailed", s.handleHealthDetailed)
	engine.GET("/ready", s.handleReady)
	engine.GET("/live", s.handleLive)
	if cfg.Gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))
	}

	admin := engine.Group(cfg.AdminPrefix)
	{
		admin.POST("/register/:tenantId", s.handleRegisterWebhooks)
		admin.GET("/list/:tenantId", s.handleListWebhooks)
		admin.DELETE("/delete-all/:tenantId", s.handleDeleteWebhooks)
		admin.GET("/events/:tenantId", s.handleListEvents)
		admin.POST("/retry/:eventId", s.handleRetryEvent)
		admin.POST("/retry-failed/:tenantId", s.handleRetryFailed)
		admin.GET("/stats/:tenantId", s.handleStats)
		admin.POST("/mark-failed/:eventId", s.handleMarkFailed)
		admin.GET("/dlq", s.handleListDeadLetters)
		admin.POST("/dlq/replay", s.handleReplayDeadLetters)
		admin.DELETE("/dlq/:entryId", s.handleRemoveDeadLetter)
		admin.DELETE("/dlq", s.handleClearDeadLetters)
		admin.POST("/reconcile", s.handleReconcile)
	}

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "Route not found"})
	})
	return s
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// requestContext tags the request with an id and records its outcome.
func (s *Server) requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		startedAt := time.Now()
		requestID := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header(HeaderRequestID, requestID)
		c.Request = c.Request.WithContext(core.ContextWithRequestID(c.Request.Context(), requestID))

		c.Next()

		status := c.Writer.Status()
		var outcome error
		if status >= http.StatusInternalServerError {
			outcome = core.InternalError(nil, http.StatusText(status))
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		s.observer.Observe(c.Request.Context(), startedAt, "http_request", outcome, map[string]any{
			"method":      c.Request.Method,
			"route":       route,
			"status_code": status,
		})
	}
}

func withDefaults(cfg Config) Config {
	if strings.TrimSpace(cfg.WebhookPath) == "" {
		cfg.WebhookPath = DefaultWebhookPath
	}
	if strings.TrimSpace(cfg.AdminPrefix) == "" {
		cfg.AdminPrefix = DefaultAdminPrefix
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	cfg.PublicURL = strings.TrimRight(strings.TrimSpace(cfg.PublicURL), "/")
	cfg.WebhookAddress = strings.TrimSpace(cfg.WebhookAddress)
	return cfg
}
