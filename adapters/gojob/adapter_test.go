package gojob

import (
	"context"
	"errors"
	"testing"
	"time"

	job "github.com/goliatone/go-job"
	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/worker"

	"github.com/goliatone/go-shopsync/resilience"
	reconcile "github.com/goliatone/go-shopsync/sync"
)

type stubDeadLetters struct {
	batch int
	err   error
}

func (s *stubDeadLetters) ReplayDeadLetters(_ context.Context, batch int) ([]resilience.ReplayResult, error) {
	s.batch = batch
	if s.err != nil {
		return nil, s.err
	}
	return []resilience.ReplayResult{{EntryID: "dlq-1", Success: true, Attempts: 1}}, nil
}

func (s *stubDeadLetters) RemoveDeadLetter(string) bool { return false }

func (s *stubDeadLetters) ClearDeadLetters() int { return 0 }

type stubReconciler struct {
	runOnce int
	tenants []string
}

func (s *stubReconciler) RunOnce(context.Context) (reconcile.RunReport, error) {
	s.runOnce++
	return reconcile.RunReport{}, nil
}

func (s *stubReconciler) SyncTenant(_ context.Context, tenantID string) (reconcile.RunReport, error) {
	s.tenants = append(s.tenants, tenantID)
	return reconcile.RunReport{Tenants: []reconcile.TenantReport{{TenantID: tenantID}}}, nil
}

func TestReconcileMessageIdempotencyKey(t *testing.T) {
	all := ReconcileMessage("")
	one := ReconcileMessage(" tenant-1 ")
	if all.JobID != JobIDReconcile || all.IdempotencyKey != JobIDReconcile {
		t.Fatalf("unexpected full reconcile message %#v", all)
	}
	if one.IdempotencyKey != JobIDReconcile+":tenant-1" || one.Parameters[ParamTenantID] != "tenant-1" {
		t.Fatalf("unexpected tenant reconcile message %#v", one)
	}
}

func TestRunnerRoutesByJobID(t *testing.T) {
	ctx := context.Background()
	deadLetters := &stubDeadLetters{}
	reconciler := &stubReconciler{}
	runner := NewRunner(deadLetters, reconciler, nil)

	result, err := runner.Run(ctx, ReplayMessage(7))
	if err != nil {
		t.Fatalf("run replay: %v", err)
	}
	if deadLetters.batch != 7 || len(result.Replays) != 1 {
		t.Fatalf("expected replay batch 7, got batch=%d result=%#v", deadLetters.batch, result)
	}

	if _, err := runner.Run(ctx, ReconcileMessage("")); err != nil {
		t.Fatalf("run reconcile: %v", err)
	}
	result, err = runner.Run(ctx, ReconcileMessage("tenant-2"))
	if err != nil {
		t.Fatalf("run tenant reconcile: %v", err)
	}
	if reconciler.runOnce != 1 || len(reconciler.tenants) != 1 || len(result.Reconcile.Tenants) != 1 {
		t.Fatalf("unexpected reconcile calls once=%d tenants=%v", reconciler.runOnce, reconciler.tenants)
	}

	if _, err := runner.Run(ctx, &job.ExecutionMessage{JobID: "shopsync.unknown"}); err == nil {
		t.Fatalf("expected unknown job id to fail")
	}
	bad := ReplayMessage(0)
	bad.Parameters[ParamBatch] = "many"
	if _, err := runner.Run(ctx, bad); err == nil {
		t.Fatalf("expected non-integer batch to fail")
	}
}

func TestNackRetryPolicyBoundaries(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3, MaxDelay: 10 * time.Second, DeadLetterOnMax: true}

	cases := []struct {
		name    string
		policy  RetryPolicy
		opts    queue.NackOptions
		attempt int
		want    queue.NackDisposition
		delay   time.Duration
	}{
		{
			name:    "retry delay is capped",
			policy:  policy,
			opts:    queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: 30 * time.Second},
			attempt: 1,
			want:    queue.NackDispositionRetry,
			delay:   10 * time.Second,
		},
		{
			name:    "missing disposition retries",
			policy:  policy,
			opts:    queue.NackOptions{Delay: -time.Second},
			attempt: 1,
			want:    queue.NackDispositionRetry,
		},
		{
			name:    "max attempts dead letters",
			policy:  policy,
			opts:    queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second},
			attempt: 3,
			want:    queue.NackDispositionDeadLetter,
		},
		{
			name:    "max attempts fails without dead letter",
			policy:  RetryPolicy{MaxAttempts: 3},
			opts:    queue.NackOptions{Disposition: queue.NackDispositionRetry, Delay: time.Second},
			attempt: 4,
			want:    queue.NackDispositionFailed,
		},
		{
			name:    "terminal disposition is kept",
			policy:  policy,
			opts:    queue.NackOptions{Disposition: queue.NackDispositionCanceled, Delay: time.Second},
			attempt: 1,
			want:    queue.NackDispositionCanceled,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.policy.NormalizeAttempt(tc.opts, tc.attempt)
			if got.Disposition != tc.want || got.Delay != tc.delay {
				t.Fatalf("expected %s with delay %s, got %#v", tc.want, tc.delay, got)
			}
			if err := queue.ValidateNackOptions(got); err != nil {
				t.Fatalf("normalized options rejected: %v", err)
			}
		})
	}

	trimmed := policy.NormalizeAttempt(queue.NackOptions{Reason: " transient "}, 1)
	if trimmed.Reason != "transient" {
		t.Fatalf("expected trimmed reason, got %q", trimmed.Reason)
	}
}

func TestConsumerAcksSuccessAndNacksFailure(t *testing.T) {
	ctx := context.Background()
	deadLetters := &stubDeadLetters{}
	hook := &capturingHook{}
	delivery := &stubQueueDelivery{msg: ReplayMessage(3)}
	consumer := &Consumer{
		Dequeuer:   &stubQueueDequeuer{delivery: delivery},
		Runner:     NewRunner(deadLetters, nil, nil),
		Policy:     RetryPolicy{MaxAttempts: 2, DeadLetterOnMax: true},
		Hook:       hook,
		RetryDelay: time.Second,
	}

	if err := consumer.ConsumeOnce(ctx, 1); err != nil {
		t.Fatalf("consume success: %v", err)
	}
	if !delivery.acked || hook.successes != 1 {
		t.Fatalf("expected ack and success hook, got acked=%v successes=%d", delivery.acked, hook.successes)
	}

	deadLetters.err = errors.New("dispatcher down")
	failing := &stubQueueDelivery{msg: ReplayMessage(3)}
	consumer.Dequeuer = &stubQueueDequeuer{delivery: failing}
	if err := consumer.ConsumeOnce(ctx, 1); err != nil {
		t.Fatalf("consume failure: %v", err)
	}
	if failing.nackOpts.Disposition != queue.NackDispositionRetry || failing.nackOpts.Delay != time.Second || hook.retries != 1 {
		t.Fatalf("expected requeue on first failure, got %#v retries=%d", failing.nackOpts, hook.retries)
	}

	exhausted := &stubQueueDelivery{msg: ReplayMessage(3)}
	consumer.Dequeuer = &stubQueueDequeuer{delivery: exhausted}
	if err := consumer.ConsumeOnce(ctx, 2); err != nil {
		t.Fatalf("consume exhausted: %v", err)
	}
	if exhausted.nackOpts.Disposition != queue.NackDispositionDeadLetter || hook.failures != 1 {
		t.Fatalf("expected dead letter at max attempts, got %#v failures=%d", exhausted.nackOpts, hook.failures)
	}
	if hook.last.Err == nil || hook.last.Message == nil || hook.last.Message.JobID != JobIDReplayDeadLetters {
		t.Fatalf("expected failure event mapping, got %#v", hook.last)
	}
}

type stubQueueDequeuer struct {
	delivery queue.Delivery
}

func (s *stubQueueDequeuer) Dequeue(context.Context) (queue.Delivery, error) {
	return s.delivery, nil
}

type stubQueueDelivery struct {
	msg      *job.ExecutionMessage
	acked    bool
	nackOpts queue.NackOptions
}

func (s *stubQueueDelivery) Message() *job.ExecutionMessage {
	return s.msg
}

func (s *stubQueueDelivery) Ack(context.Context) error {
	s.acked = true
	return nil
}

func (s *stubQueueDelivery) Nack(_ context.Context, opts queue.NackOptions) error {
	s.nackOpts = opts
	return nil
}

type capturingHook struct {
	successes int
	retries   int
	failures  int
	last      worker.Event
}

func (h *capturingHook) OnStart(context.Context, worker.Event) {}

func (h *capturingHook) OnSuccess(_ context.Context, event worker.Event) {
	h.successes++
	h.last = event
}

func (h *capturingHook) OnFailure(_ context.Context, event worker.Event) {
	h.failures++
	h.last = event
}

func (h *capturingHook) OnRetry(_ context.Context, event worker.Event) {
	h.retries++
	h.last = event
}
