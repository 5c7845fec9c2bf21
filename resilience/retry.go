package resilience

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/goliatone/go-shopsync/core"
)

const MaxJitter = time.Second

type RetryFunc func(ctx context.Context, attempt int) error

// Backoff sleeps base*2^(n-1) plus up to one second of jitter after failed
// attempt n. Sleep and Jitter are swappable for tests.
type Backoff struct {
	Sleep  func(ctx context.Context, delay time.Duration) error
	Jitter func() time.Duration
}

// RetryWithBackoff runs op up to maxAttempts times and returns the last
// error. Validation errors are not retried.
func RetryWithBackoff(ctx context.Context, op RetryFunc, maxAttempts int, baseDelay time.Duration) error {
	_, err := Backoff{}.Retry(ctx, op, maxAttempts, baseDelay)
	return err
}

// Retry returns the number of attempts made alongside the final error.
func (b Backoff) Retry(ctx context.Context, op RetryFunc, maxAttempts int, baseDelay time.Duration) (int, error) {
	if op == nil {
		return 0, core.InternalError(nil, "resilience: retry operation is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt - 1, err
		}
		lastErr = op(ctx, attempt)
		if lastErr == nil {
			return attempt, nil
		}
		if core.IsValidation(lastErr) || attempt == maxAttempts {
			return attempt, lastErr
		}
		if err := b.sleep(ctx, Delay(attempt, baseDelay, b.jitter())); err != nil {
			return attempt, err
		}
	}
	return maxAttempts, lastErr
}

// Delay is the wait after failed attempt n (1-based).
func Delay(attempt int, baseDelay time.Duration, jitter time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if baseDelay < 0 {
		baseDelay = 0
	}
	shift := min(attempt-1, 30)
	return baseDelay*time.Duration(1<<shift) + jitter
}

func (b Backoff) jitter() time.Duration {
	if b.Jitter != nil {
		return b.Jitter()
	}
	return rand.N(MaxJitter)
}

func (b Backoff) sleep(ctx context.Context, delay time.Duration) error {
	if b.Sleep != nil {
		return b.Sleep(ctx, delay)
	}
	if delay <= 0 {
		return nil
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
