package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/goliatone/go-shopsync/core"
	"github.com/sony/gobreaker/v2"
)

const (
	BreakerStateClosed   = "closed"
	BreakerStateOpen     = "open"
	BreakerStateHalfOpen = "half-open"
)

type CallFunc func(ctx context.Context) (core.ProcessResult, error)

// Breaker trips when the failure rate over a rolling window reaches the
// configured threshold. Each call runs under its own deadline; a call that
// outlives it is reported as a failure even if it later completes.
type Breaker struct {
	cb          *gobreaker.CircuitBreaker[core.ProcessResult]
	callTimeout time.Duration
	observer    *core.Observer
}

func NewBreaker(name string, cfg core.ResilienceConfig, observer *core.Observer) *Breaker {
	defaults := core.DefaultResilienceConfig()
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaults.CallTimeout
	}
	if cfg.ErrorThresholdPercent <= 0 {
		cfg.ErrorThresholdPercent = defaults.ErrorThresholdPercent
	}
	if cfg.RollingWindow <= 0 {
		cfg.RollingWindow = defaults.RollingWindow
	}
	if cfg.RollingBuckets <= 0 {
		cfg.RollingBuckets = defaults.RollingBuckets
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = defaults.ResetTimeout
	}
	if cfg.MinimumRequests <= 0 {
		cfg.MinimumRequests = 1
	}
	if observer == nil {
		observer = core.NewObserver("resilience.breaker", nil, nil, nil)
	}

	b := &Breaker{callTimeout: cfg.CallTimeout, observer: observer}
	threshold := uint32(cfg.ErrorThresholdPercent)
	minimum := uint32(cfg.MinimumRequests)
	bucket := cfg.RollingWindow / time.Duration(cfg.RollingBuckets)

	b.cb = gobreaker.NewCircuitBreaker[core.ProcessResult](gobreaker.Settings{
		Name:         name,
		MaxRequests:  1,
		Interval:     cfg.RollingWindow,
		BucketPeriod: bucket,
		Timeout:      cfg.ResetTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return ShouldTrip(counts.Requests-counts.TotalExclusions, counts.TotalFailures, minimum, threshold)
		},
		IsExcluded: isExcluded,
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			b.observer.Warn(context.Background(), "circuit breaker state changed", map[string]any{
				"breaker": name,
				"from":    from.String(),
				"to":      to.String(),
			})
			b.observer.Counter(context.Background(), "state_change", 1, map[string]string{"to": to.String()})
		},
	})
	return b
}

// ShouldTrip reports whether failures make up at least thresholdPercent of
// requests once the minimum volume has been seen.
func ShouldTrip(requests uint32, failures uint32, minimum uint32, thresholdPercent uint32) bool {
	if requests == 0 || requests < minimum {
		return false
	}
	return uint64(failures)*100 >= uint64(requests)*uint64(thresholdPercent)
}

// Validation failures and caller cancellations say nothing about the health
// of the downstream, so they do not move the breaker.
func isExcluded(err error) bool {
	if err == nil {
		return false
	}
	return core.IsValidation(err) || errors.Is(err, context.Canceled)
}

func (b *Breaker) Execute(ctx context.Context, call CallFunc) (core.ProcessResult, error) {
	if b == nil || b.cb == nil {
		return core.ProcessResult{}, core.InternalError(nil, "resilience: breaker is not configured")
	}
	if call == nil {
		return core.ProcessResult{}, core.InternalError(nil, "resilience: call is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := b.cb.Execute(func() (core.ProcessResult, error) {
		return b.run(ctx, call)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return core.ProcessResult{}, core.TransientError(err, "Service temporarily unavailable: circuit breaker is "+b.State())
	}
	return result, err
}

type callResult struct {
	result core.ProcessResult
	err    error
}

func (b *Breaker) run(ctx context.Context, call CallFunc) (core.ProcessResult, error) {
	callCtx, cancel := context.WithTimeout(ctx, b.callTimeout)
	defer cancel()

	done := make(chan callResult, 1)
	go func() {
		result, err := call(callCtx)
		done <- callResult{result: result, err: err}
	}()

	select {
	case out := <-done:
		if out.err != nil && errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			return core.ProcessResult{}, b.timeoutError(out.err)
		}
		return out.result, out.err
	case <-callCtx.Done():
		if err := ctx.Err(); err != nil {
			return core.ProcessResult{}, err
		}
		return core.ProcessResult{}, b.timeoutError(callCtx.Err())
	}
}

func (b *Breaker) timeoutError(cause error) error {
	return core.TransientError(cause, "Dispatch timed out after "+b.callTimeout.String())
}

func (b *Breaker) State() string {
	if b == nil || b.cb == nil {
		return BreakerStateClosed
	}
	switch b.cb.State() {
	case gobreaker.StateOpen:
		return BreakerStateOpen
	case gobreaker.StateHalfOpen:
		return BreakerStateHalfOpen
	default:
		return BreakerStateClosed
	}
}

func (b *Breaker) Counts() core.BreakerCounts {
	if b == nil || b.cb == nil {
		return core.BreakerCounts{}
	}
	counts := b.cb.Counts()
	return core.BreakerCounts{
		Requests:             counts.Requests,
		TotalSuccesses:       counts.TotalSuccesses,
		TotalFailures:        counts.TotalFailures,
		ConsecutiveSuccesses: counts.ConsecutiveSuccesses,
		ConsecutiveFailures:  counts.ConsecutiveFailures,
	}
}
