// Package gojob expresses dead-letter replay and reconciliation runs as go-job
// execution messages so they can be triggered from the CLI or a queue worker.
package gojob

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	shopcmd "github.com/goliatone/go-shopsync/command"
	"github.com/goliatone/go-shopsync/core"
	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
)

const (
	JobIDReplayDeadLetters = "shopsync.dlq.replay"
	JobIDReconcile         = "shopsync.reconcile.run"

	ParamBatch    = "batch"
	ParamTenantID = "tenant_id"
)

// RetryPolicy defines queue retry bounds to avoid unbounded retry loops.
type RetryPolicy struct {
	MaxAttempts     int
	MaxDelay        time.Duration
	DeadLetterOnMax bool
}

// NormalizeAttempt enforces bounded retry behavior for a nack operation. A
// missing disposition means retry; a retry at or past MaxAttempts becomes a
// dead letter when DeadLetterOnMax is set and a terminal failure otherwise.
func (p RetryPolicy) NormalizeAttempt(opts queue.NackOptions, attempt int) queue.NackOptions {
	out := opts
	out.Reason = strings.TrimSpace(out.Reason)
	if out.Disposition == "" {
		out.Disposition = queue.NackDispositionRetry
	}
	if out.Disposition == queue.NackDispositionRetry && p.MaxAttempts > 0 && attempt >= p.MaxAttempts {
		out.Disposition = queue.NackDispositionFailed
		if p.DeadLetterOnMax {
			out.Disposition = queue.NackDispositionDeadLetter
		}
	}
	if out.Disposition != queue.NackDispositionRetry {
		out.Delay = 0
		return out
	}
	if out.Delay < 0 {
		out.Delay = 0
	}
	if p.MaxDelay > 0 && out.Delay > p.MaxDelay {
		out.Delay = p.MaxDelay
	}
	return out
}

func ReplayMessage(batch int) *job.ExecutionMessage {
	return &job.ExecutionMessage{
		JobID:      JobIDReplayDeadLetters,
		ScriptPath: JobIDReplayDeadLetters,
		Parameters: map[string]any{ParamBatch: batch},
	}
}

// ReconcileMessage targets one tenant, or every syncable tenant when tenantID
// is empty. Runs for the same target share an idempotency key.
func ReconcileMessage(tenantID string) *job.ExecutionMessage {
	tenantID = strings.TrimSpace(tenantID)
	key := JobIDReconcile
	if tenantID != "" {
		key += ":" + tenantID
	}
	return &job.ExecutionMessage{
		JobID:          JobIDReconcile,
		ScriptPath:     JobIDReconcile,
		Parameters:     map[string]any{ParamTenantID: tenantID},
		IdempotencyKey: key,
		DedupPolicy:    job.DeduplicationPolicy("drop"),
	}
}

// Runner executes shopsync job messages in process.
type Runner struct {
	DeadLetters shopcmd.DeadLetterService
	Reconciler  shopcmd.Reconciler
	Observer    *core.Observer
}

func NewRunner(deadLetters shopcmd.DeadLetterService, reconciler shopcmd.Reconciler, observer *core.Observer) *Runner {
	if observer == nil {
		observer = core.NewObserver("gojob", nil, nil, nil)
	}
	return &Runner{DeadLetters: deadLetters, Reconciler: reconciler, Observer: observer}
}

// Result carries whichever report the job produced.
type Result struct {
	JobID     string
	Replays   []resilience.ReplayResult
	Reconcile reconcile.RunReport
}

func (r *Runner) Run(ctx context.Context, msg *job.ExecutionMessage) (result Result, err error) {
	if msg == nil {
		return Result{}, fmt.Errorf("gojob: execution message is required")
	}
	startedAt := time.Now()
	jobID := strings.TrimSpace(msg.JobID)
	defer func() {
		r.observer().Observe(ctx, startedAt, "run_job", err, map[string]any{"job_id": jobID})
	}()
	result.JobID = jobID

	switch jobID {
	case JobIDReplayDeadLetters:
		if r.DeadLetters == nil {
			return result, fmt.Errorf("gojob: dead letter service is not configured")
		}
		batch, err := intParam(msg.Parameters, ParamBatch)
		if err != nil {
			return result, err
		}
		result.Replays, err = r.DeadLetters.ReplayDeadLetters(ctx, batch)
		return result, err
	case JobIDReconcile:
		if r.Reconciler == nil {
			return result, fmt.Errorf("gojob: reconciler is not configured")
		}
		tenantID := stringParam(msg.Parameters, ParamTenantID)
		if tenantID != "" {
			result.Reconcile, err = r.Reconciler.SyncTenant(ctx, tenantID)
		} else {
			result.Reconcile, err = r.Reconciler.RunOnce(ctx)
		}
		return result, err
	default:
		return result, fmt.Errorf("gojob: unknown job id %q", jobID)
	}
}

func (r *Runner) observer() *core.Observer {
	if r == nil {
		return nil
	}
	return r.Observer
}

// Consumer pulls one delivery at a time and acks or nacks it by outcome.
type Consumer struct {
	Dequeuer queue.Dequeuer
	Runner   *Runner
	Policy   RetryPolicy
	Hook     worker.Hook
	// RetryDelay is the requeue delay requested on failure.
	RetryDelay time.Duration
}

// ConsumeOnce processes the next delivery. attempt is the delivery attempt
// as tracked by the caller.
func (c *Consumer) ConsumeOnce(ctx context.Context, attempt int) error {
	if c == nil || c.Dequeuer == nil || c.Runner == nil {
		return fmt.Errorf("gojob: consumer is not configured")
	}
	delivery, err := c.Dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	msg := delivery.Message()
	event := worker.Event{Message: msg, Delivery: delivery, Attempt: attempt, StartedAt: time.Now()}
	c.hook().OnStart(ctx, event)

	_, runErr := c.Runner.Run(ctx, msg)
	event.Duration = time.Since(event.StartedAt)
	if runErr == nil {
		c.hook().OnSuccess(ctx, event)
		return delivery.Ack(ctx)
	}

	event.Err = runErr
	opts := c.Policy.NormalizeAttempt(queue.NackOptions{
		Disposition: queue.NackDispositionRetry,
		Delay:       c.RetryDelay,
		Reason:      runErr.Error(),
	}, attempt)
	if err := queue.ValidateNackOptions(opts); err != nil {
		return err
	}
	event.Delay = opts.Delay
	if opts.Disposition == queue.NackDispositionRetry {
		c.hook().OnRetry(ctx, event)
	} else {
		c.hook().OnFailure(ctx, event)
	}
	return delivery.Nack(ctx, opts)
}

func (c *Consumer) hook() worker.Hook {
	if c.Hook == nil {
		return ObserverHook{}
	}
	return c.Hook
}

// ObserverHook logs worker lifecycle events through a core.Observer.
type ObserverHook struct {
	Observer *core.Observer
}

func (h ObserverHook) OnStart(ctx context.Context, event worker.Event) {
	h.Observer.Debug(ctx, "job started", eventFields(event))
}

func (h ObserverHook) OnSuccess(ctx context.Context, event worker.Event) {
	h.Observer.Info(ctx, "job completed", eventFields(event))
}

func (h ObserverHook) OnFailure(ctx context.Context, event worker.Event) {
	h.Observer.Error(ctx, "job failed", eventFields(event))
}

func (h ObserverHook) OnRetry(ctx context.Context, event worker.Event) {
	h.Observer.Warn(ctx, "job requeued", eventFields(event))
}

func eventFields(event worker.Event) map[string]any {
	fields := map[string]any{"attempt": event.Attempt}
	message := event.Message
	if message == nil && event.Delivery != nil {
		message = event.Delivery.Message()
	}
	if message != nil {
		fields["job_id"] = message.JobID
	}
	if event.Duration > 0 {
		fields["duration_ms"] = event.Duration.Milliseconds()
	}
	if event.Delay > 0 {
		fields["delay_ms"] = event.Delay.Milliseconds()
	}
	if event.Err != nil {
		fields["error"] = event.Err.Error()
	}
	return fields
}

func intParam(params map[string]any, key string) (int, error) {
	switch value := params[key].(type) {
	case nil:
		return 0, nil
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	case string:
		if strings.TrimSpace(value) == "" {
			return 0, nil
		}
		parsed, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("gojob: parameter %s must be an integer", key)
		}
		return parsed, nil
	default:
		return 0, fmt.Errorf("gojob: parameter %s must be an integer", key)
	}
}

func stringParam(params map[string]any, key string) string {
	value, _ := params[key].(string)
	return strings.TrimSpace(value)
}

var _ worker.Hook = ObserverHook{}
