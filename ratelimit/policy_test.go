package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

func TestParseCallLimit(t *testing.T) {
	budget, ok := ParseCallLimit(" 32/40 ")
	if !ok || budget.Used != 32 || budget.Limit != 40 {
		t.Fatalf("unexpected budget %+v ok=%v", budget, ok)
	}
	if budget.Ratio() != 0.8 || budget.Remaining() != 8 {
		t.Fatalf("unexpected ratio %f remaining %d", budget.Ratio(), budget.Remaining())
	}
	for _, raw := range []string{"", "40", "a/40", "1/0", "-1/40", "1/2/3"} {
		if _, ok := ParseCallLimit(raw); ok {
			t.Fatalf("expected %q to be rejected", raw)
		}
	}
}

func TestPacer_DelayOnlyAboveThreshold(t *testing.T) {
	pacer := NewPacer(0.8, nil)
	if got := pacer.Delay(Budget{Used: 32, Limit: 40}); got != 0 {
		t.Fatalf("expected no delay at exactly 80%%, got %s", got)
	}
	if got := pacer.Delay(Budget{Used: 36, Limit: 40}); got != 900*time.Millisecond {
		t.Fatalf("expected 900ms at 90%%, got %s", got)
	}
	if got := pacer.Delay(Budget{Used: 40, Limit: 40}); got != time.Second {
		t.Fatalf("expected 1s at 100%%, got %s", got)
	}
}

func TestPacer_PaceSleepsUsingRecordedBudget(t *testing.T) {
	pacer := NewPacer(0.8, NewMemoryStateStore())
	var slept []time.Duration
	pacer.Sleep = func(_ context.Context, d time.Duration) error {
		slept = append(slept, d)
		return nil
	}
	ctx := context.Background()

	if _, err := pacer.AfterCall(ctx, "Demo.myshopify.com", core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{"x-shopify-shop-api-call-limit": "10/40"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	if delay, err := pacer.Pace(ctx, "demo.myshopify.com"); err != nil || delay != 0 {
		t.Fatalf("expected no pacing at 25%%, got %s %v", delay, err)
	}

	if _, err := pacer.AfterCall(ctx, "demo.myshopify.com", core.TransportResponse{
		StatusCode: 200,
		Headers:    map[string]string{HeaderCallLimit: "38/40"},
	}); err != nil {
		t.Fatalf("after call: %v", err)
	}
	delay, err := pacer.Pace(ctx, "demo.myshopify.com")
	if err != nil {
		t.Fatalf("pace: %v", err)
	}
	if delay != 950*time.Millisecond || len(slept) != 1 || slept[0] != delay {
		t.Fatalf("expected one 950ms sleep, got %s %v", delay, slept)
	}
}

func TestPacer_ThrottleWindowFromRetryAfter(t *testing.T) {
	store := NewMemoryStateStore()
	pacer := NewPacer(0.8, store)
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer.Now = func() time.Time { return now }
	ctx := context.Background()

	state, err := pacer.AfterCall(ctx, "demo.myshopify.com", core.TransportResponse{
		StatusCode: 429,
		Headers:    map[string]string{"Retry-After": "2.0"},
	})
	if err != nil {
		t.Fatalf("after call: %v", err)
	}
	if state.Attempts != 1 || state.ThrottledUntil == nil || state.ThrottledUntil.Sub(now) != 2*time.Second {
		t.Fatalf("unexpected throttle state %+v", state)
	}

	err = pacer.BeforeCall(ctx, "demo.myshopify.com")
	var throttled ThrottledError
	if !errors.As(err, &throttled) || throttled.RetryAfter != 2*time.Second {
		t.Fatalf("expected throttled error, got %v", err)
	}
	mapped := throttled.ToServiceError()
	if mapped.Code != 429 || mapped.TextCode != core.IngestErrorRateLimited {
		t.Fatalf("unexpected service error %+v", mapped)
	}

	now = now.Add(3 * time.Second)
	if err := pacer.BeforeCall(ctx, "demo.myshopify.com"); err != nil {
		t.Fatalf("expected window to expire, got %v", err)
	}
}

func TestPacer_BackoffWithoutRetryAfterAndReset(t *testing.T) {
	pacer := NewPacer(0.8, NewMemoryStateStore())
	pacer.InitialBackoff = 2 * time.Second
	pacer.MaxBackoff = 30 * time.Second
	now := time.Unix(1_700_000_000, 0).UTC()
	pacer.Now = func() time.Time { return now }
	ctx := context.Background()

	if _, err := pacer.AfterCall(ctx, "shop", core.TransportResponse{StatusCode: 429}); err != nil {
		t.Fatalf("first throttled call: %v", err)
	}
	state, err := pacer.AfterCall(ctx, "shop", core.TransportResponse{StatusCode: 429})
	if err != nil {
		t.Fatalf("second throttled call: %v", err)
	}
	if state.Attempts != 2 || state.ThrottledUntil.Sub(now) != 4*time.Second {
		t.Fatalf("expected 4s adaptive window, got %+v", state)
	}

	state, err = pacer.AfterCall(ctx, "shop", core.TransportResponse{StatusCode: 200})
	if err != nil {
		t.Fatalf("successful call: %v", err)
	}
	if state.Attempts != 0 || state.ThrottledUntil != nil {
		t.Fatalf("expected throttle state reset, got %+v", state)
	}
}
