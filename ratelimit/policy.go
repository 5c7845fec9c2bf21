// Package ratelimit tracks the Shopify Admin REST call budget per shop and
// paces paginated pulls before the leaky bucket overflows.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-shopsync/core"
)

const (
	HeaderCallLimit = "X-Shopify-Shop-Api-Call-Limit"

	DefaultThreshold = 0.8
	DefaultPaceUnit  = time.Second
)

var ErrStateNotFound = errors.New("ratelimit: state not found")

// Budget is a parsed "used/limit" call-limit header.
type Budget struct {
	Used  int
	Limit int
}

func (b Budget) Ratio() float64 {
	if b.Limit <= 0 {
		return 0
	}
	return float64(b.Used) / float64(b.Limit)
}

func (b Budget) Remaining() int {
	return max(b.Limit-b.Used, 0)
}

func ParseCallLimit(value string) (Budget, bool) {
	parts := strings.Split(strings.TrimSpace(value), "/")
	if len(parts) != 2 {
		return Budget{}, false
	}
	used, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil || used < 0 {
		return Budget{}, false
	}
	limit, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || limit <= 0 {
		return Budget{}, false
	}
	return Budget{Used: used, Limit: limit}, true
}

type State struct {
	Shop           string
	Budget         Budget
	HasBudget      bool
	RetryAfter     *time.Duration
	ThrottledUntil *time.Time
	LastStatus     int
	Attempts       int
	UpdatedAt      time.Time
}

type StateStore interface {
	Get(ctx context.Context, shop string) (State, error)
	Upsert(ctx context.Context, state State) error
}

type ThrottledError struct {
	Shop       string
	RetryAfter time.Duration
}

func (e ThrottledError) Error() string {
	return fmt.Sprintf("ratelimit: shop %q throttled for %s", strings.TrimSpace(e.Shop), e.RetryAfter)
}

func (e ThrottledError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"shop_domain": strings.TrimSpace(e.Shop)}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryRateLimit).
		WithCode(http.StatusTooManyRequests).
		WithTextCode(core.IngestErrorRateLimited).
		WithMetadata(metadata)
}

// Pacer records the call budget reported after each request and sleeps
// before the next one when usage is above Threshold. The sleep is PaceUnit
// scaled by the usage ratio. A 429 opens a throttle window during which
// BeforeCall fails fast.
type Pacer struct {
	Store          StateStore
	Threshold      float64
	PaceUnit       time.Duration
	Now            func() time.Time
	Sleep          func(ctx context.Context, delay time.Duration) error
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func NewPacer(threshold float64, store StateStore) *Pacer {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	if store == nil {
		store = NewMemoryStateStore()
	}
	return &Pacer{
		Store:          store,
		Threshold:      threshold,
		PaceUnit:       DefaultPaceUnit,
		Now:            func() time.Time { return time.Now().UTC() },
		InitialBackoff: 2 * time.Second,
		MaxBackoff:     time.Minute,
	}
}

func (p *Pacer) BeforeCall(ctx context.Context, shop string) error {
	if p == nil || p.Store == nil {
		return nil
	}
	state, err := p.Store.Get(ctx, normalizeShop(shop))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return nil
		}
		return err
	}
	now := p.now()
	if until := state.ThrottledUntil; until != nil && now.Before(*until) {
		return ThrottledError{Shop: state.Shop, RetryAfter: until.Sub(now)}
	}
	return nil
}

func (p *Pacer) AfterCall(ctx context.Context, shop string, res core.TransportResponse) (State, error) {
	if p == nil || p.Store == nil {
		return State{}, nil
	}
	shop = normalizeShop(shop)
	now := p.now()
	state, err := p.Store.Get(ctx, shop)
	if err != nil && !errors.Is(err, ErrStateNotFound) {
		return State{}, err
	}
	if errors.Is(err, ErrStateNotFound) {
		state = State{Shop: shop}
	}
	state.LastStatus = res.StatusCode
	state.UpdatedAt = now
	if budget, ok := ParseCallLimit(headerValue(res.Headers, HeaderCallLimit)); ok {
		state.Budget = budget
		state.HasBudget = true
	}
	retryAfter, hasRetryAfter := parseRetryAfter(res.Headers)
	if hasRetryAfter {
		state.RetryAfter = &retryAfter
	} else {
		state.RetryAfter = nil
	}

	if res.StatusCode == http.StatusTooManyRequests {
		state.Attempts++
		delay := retryAfter
		if !hasRetryAfter {
			delay = p.nextBackoff(state.Attempts)
		}
		until := now.Add(delay)
		state.ThrottledUntil = &until
	} else {
		state.Attempts = 0
		state.ThrottledUntil = nil
	}
	if err := p.Store.Upsert(ctx, state); err != nil {
		return State{}, err
	}
	return state, nil
}

// Delay is the pause owed before the next call for the given budget.
func (p *Pacer) Delay(budget Budget) time.Duration {
	if p == nil {
		return 0
	}
	threshold := p.Threshold
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	ratio := budget.Ratio()
	if ratio <= threshold {
		return 0
	}
	unit := p.PaceUnit
	if unit <= 0 {
		unit = DefaultPaceUnit
	}
	return unit * time.Duration(budget.Used) / time.Duration(budget.Limit)
}

// Pace sleeps according to the last budget recorded for shop.
func (p *Pacer) Pace(ctx context.Context, shop string) (time.Duration, error) {
	if p == nil || p.Store == nil {
		return 0, nil
	}
	state, err := p.Store.Get(ctx, normalizeShop(shop))
	if err != nil {
		if errors.Is(err, ErrStateNotFound) {
			return 0, nil
		}
		return 0, err
	}
	if !state.HasBudget {
		return 0, nil
	}
	delay := p.Delay(state.Budget)
	if delay <= 0 {
		return 0, nil
	}
	return delay, p.sleep(ctx, delay)
}

func (p *Pacer) now() time.Time {
	if p != nil && p.Now != nil {
		return p.Now().UTC()
	}
	return time.Now().UTC()
}

func (p *Pacer) sleep(ctx context.Context, delay time.Duration) error {
	if p.Sleep != nil {
		return p.Sleep(ctx, delay)
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

// nextBackoff doubles InitialBackoff per consecutive 429, capped at
// MaxBackoff.
func (p *Pacer) nextBackoff(attempt int) time.Duration {
	base, ceiling := p.InitialBackoff, p.MaxBackoff
	if base <= 0 {
		base = 2 * time.Second
	}
	if ceiling <= 0 {
		ceiling = time.Minute
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 16 {
		return ceiling
	}
	return min(base<<(attempt-1), ceiling)
}

// parseRetryAfter reads Shopify's Retry-After, which is a decimal number of
// seconds such as "2.0".
func parseRetryAfter(headers map[string]string) (time.Duration, bool) {
	seconds, err := strconv.ParseFloat(headerValue(headers, "Retry-After"), 64)
	if err != nil || seconds <= 0 {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[http.CanonicalHeaderKey(key)]; ok {
		return strings.TrimSpace(value)
	}
	for name, value := range headers {
		if strings.EqualFold(name, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func normalizeShop(shop string) string {
	return strings.ToLower(strings.TrimSpace(shop))
}
