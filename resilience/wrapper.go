package resilience

import (
	"context"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopsync/core"
)

// Wrapper is the guarded dispatch path for live deliveries. Failures other
// than validation errors are copied to the dead-letter queue before being
// returned.
type Wrapper struct {
	Dispatcher core.Dispatcher
	Breaker    *Breaker
	DLQ        *DeadLetterQueue
	// Events, when set, is marked processed for replayed entries that carry
	// an event id.
	Events   core.EventStore
	Backoff  Backoff
	Config   core.ResilienceConfig
	Observer *core.Observer
}

func NewWrapper(dispatcher core.Dispatcher, cfg core.ResilienceConfig, observer *core.Observer) *Wrapper {
	if observer == nil {
		observer = core.NewObserver("resilience", nil, nil, nil)
	}
	cfg = withDefaults(cfg)
	return &Wrapper{
		Dispatcher: dispatcher,
		Breaker:    NewBreaker("webhook-dispatch", cfg, observer),
		DLQ:        NewDeadLetterQueue(cfg.DLQCapacity),
		Config:     cfg,
		Observer:   observer,
	}
}

var _ core.GuardedDispatcher = (*Wrapper)(nil)

func (w *Wrapper) Dispatch(ctx context.Context, req core.DispatchRequest) (result core.ProcessResult, err error) {
	startedAt := time.Now()
	defer func() {
		w.observer().Observe(ctx, startedAt, "dispatch", err, map[string]any{
			"tenant_id": req.TenantID,
			"topic":     req.Topic.String(),
		})
	}()
	if w == nil || w.Dispatcher == nil || w.Breaker == nil {
		return core.ProcessResult{}, core.InternalError(nil, "resilience: wrapper is not configured")
	}

	result, err = w.Breaker.Execute(ctx, func(callCtx context.Context) (core.ProcessResult, error) {
		return w.Dispatcher.Process(callCtx, req.Topic, req.Payload, req.TenantID)
	})
	if err != nil && !core.IsValidation(err) {
		w.deadLetter(ctx, req, err)
	}
	return result, err
}

func (w *Wrapper) deadLetter(ctx context.Context, req core.DispatchRequest, cause error) {
	if w.DLQ == nil {
		return
	}
	stored, evicted := w.DLQ.Add(core.DeadLetterEntry{
		EventID:    req.EventID,
		TenantID:   req.TenantID,
		ExternalID: req.ExternalID,
		Topic:      req.Topic,
		Payload:    req.Payload,
		Error:      messageOf(cause),
	})
	fields := map[string]any{
		"dlq_id":    stored.ID,
		"tenant_id": req.TenantID,
		"topic":     req.Topic.String(),
		"dlq_size":  w.DLQ.Len(),
	}
	if evicted != nil {
		fields["evicted_id"] = evicted.ID
		w.observer().Counter(ctx, "dlq.evicted", 1, nil)
	}
	w.observer().Warn(ctx, "dispatch failure dead-lettered", fields)
	w.observer().Counter(ctx, "dlq.added", 1, map[string]string{"topic": req.Topic.String()})
}

// Health is UP while the breaker is closed and DEGRADED otherwise.
func (w *Wrapper) Health() core.ResilienceHealth {
	if w == nil {
		return core.ResilienceHealth{Status: core.HealthStatusDown}
	}
	state := w.Breaker.State()
	status := core.HealthStatusUp
	if state != BreakerStateClosed {
		status = core.HealthStatusDegraded
	}
	return core.ResilienceHealth{
		Status:       status,
		BreakerState: state,
		Counts:       w.Breaker.Counts(),
		DLQSize:      w.DLQ.Len(),
		DLQCapacity:  w.DLQ.Capacity(),
	}
}

func (w *Wrapper) observer() *core.Observer {
	if w == nil {
		return nil
	}
	return w.Observer
}

func withDefaults(cfg core.ResilienceConfig) core.ResilienceConfig {
	defaults := core.DefaultResilienceConfig()
	if cfg.DLQCapacity <= 0 {
		cfg.DLQCapacity = defaults.DLQCapacity
	}
	if cfg.ReplayAttempts <= 0 {
		cfg.ReplayAttempts = defaults.ReplayAttempts
	}
	if cfg.ReplayBaseDelay <= 0 {
		cfg.ReplayBaseDelay = defaults.ReplayBaseDelay
	}
	if cfg.ReplayBatchSize <= 0 {
		cfg.ReplayBatchSize = defaults.ReplayBatchSize
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = defaults.MinimumRequests
	}
	return cfg
}

func messageOf(err error) string {
	if err == nil {
		return ""
	}
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) && strings.TrimSpace(richErr.Message) != "" {
		return richErr.Message
	}
	return err.Error()
}

// DeadLetters lists queued failures, most recent limit entries.
func (w *Wrapper) DeadLetters(limit int) []core.DeadLetterEntry {
	if w == nil || w.DLQ == nil {
		return nil
	}
	if limit <= 0 {
		limit = DefaultDLQListLimit
	}
	return w.DLQ.List(limit)
}

func (w *Wrapper) RemoveDeadLetter(id string) bool {
	if w == nil || w.DLQ == nil {
		return false
	}
	return w.DLQ.Remove(strings.TrimSpace(id))
}

func (w *Wrapper) ClearDeadLetters() int {
	if w == nil || w.DLQ == nil {
		return 0
	}
	return w.DLQ.Clear()
}
