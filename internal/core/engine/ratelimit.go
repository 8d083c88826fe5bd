package engine

import (
	"context"
	"math"
	"strings"
	"time"
)

// DefaultLimitKey names the limit applied to hosts without their own entry.
const DefaultLimitKey = "default"

// RateLimiter enforces per-upstream-host request budgets.
type RateLimiter struct {
	Store  RateLimitStore
	Limits map[string]RateLimit
	Clock  func() time.Time
	Margin float64
}

// RateLimit represents a rate limit window.
type RateLimit struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// RateLimitStore stores rate limit state.
type RateLimitStore interface {
	GetRateLimit(ctx context.Context, host string) (*RateLimitState, error)
	UpdateRateLimit(ctx context.Context, host string, state *RateLimitState) error
}

// NewRateLimiter builds an in-memory limiter from per-minute overrides keyed by
// host. An empty map yields a limiter that only honors upstream 429 backoff.
func NewRateLimiter(perMinute map[string]int, margin float64) *RateLimiter {
	limiter := &RateLimiter{Store: NewMemoryStore()}
	limiter.ApplyOverrides(perMinute)
	limiter.ApplySafetyMargin(margin)
	return limiter
}

// Allow checks if a request to host is allowed and returns the wait duration if not.
func (r *RateLimiter) Allow(ctx context.Context, host string) (bool, time.Duration, error) {
	if r == nil || r.Store == nil {
		return true, 0, nil
	}
	host = normalizeHost(host)

	state, err := r.Store.GetRateLimit(ctx, host)
	if err != nil {
		return true, 0, err
	}
	if state == nil {
		state = &RateLimitState{WindowStart: r.now()}
	}

	if state.BackoffUntil != nil && r.now().Before(*state.BackoffUntil) {
		return false, state.BackoffUntil.Sub(r.now()), nil
	}

	limit, ok := r.getLimit(host)
	if !ok {
		return true, 0, nil
	}
	windowEnd := state.WindowStart.Add(limit.WindowDuration)
	if r.now().After(windowEnd) {
		return true, 0, nil
	}

	if state.RequestCount >= limit.RequestsPerWindow {
		return false, windowEnd.Sub(r.now()), nil
	}

	return true, 0, nil
}

// Record counts a request against host's current window.
func (r *RateLimiter) Record(ctx context.Context, host string) error {
	if r == nil || r.Store == nil {
		return nil
	}
	host = normalizeHost(host)

	state, err := r.Store.GetRateLimit(ctx, host)
	if err != nil {
		return err
	}
	if state == nil {
		state = &RateLimitState{WindowStart: r.now()}
	}

	if limit, ok := r.getLimit(host); ok && r.now().After(state.WindowStart.Add(limit.WindowDuration)) {
		state.RequestCount = 0
		state.WindowStart = r.now()
	}
	state.RequestCount++
	if state.WindowStart.IsZero() {
		state.WindowStart = r.now()
	}

	return r.Store.UpdateRateLimit(ctx, host, state)
}

// Record429 applies a backoff window after an upstream 429 response.
func (r *RateLimiter) Record429(ctx context.Context, host string, retryAfter time.Duration) error {
	if r == nil || r.Store == nil {
		return nil
	}
	host = normalizeHost(host)

	state, err := r.Store.GetRateLimit(ctx, host)
	if err != nil {
		return err
	}
	if state == nil {
		state = &RateLimitState{WindowStart: r.now()}
	}

	now := r.now()
	state.Last429At = &now
	if retryAfter > 0 {
		until := now.Add(retryAfter)
		state.BackoffUntil = &until
	}

	return r.Store.UpdateRateLimit(ctx, host, state)
}

// ApplyOverrides merges per-host request limits (per minute).
func (r *RateLimiter) ApplyOverrides(overrides map[string]int) {
	if r == nil || len(overrides) == 0 {
		return
	}

	if r.Limits == nil {
		r.Limits = make(map[string]RateLimit, len(overrides))
	}

	for host, value := range overrides {
		host = normalizeHost(host)
		if host == "" || value <= 0 {
			continue
		}
		r.Limits[host] = RateLimit{
			RequestsPerWindow: value,
			WindowDuration:    time.Minute,
		}
	}
}

// ApplySafetyMargin adjusts the effective request limits by a ratio (0-1].
func (r *RateLimiter) ApplySafetyMargin(margin float64) {
	if r == nil {
		return
	}
	if margin <= 0 || margin > 1 {
		return
	}
	r.Margin = margin
}

func (r *RateLimiter) getLimit(host string) (RateLimit, bool) {
	if r == nil || len(r.Limits) == 0 {
		return RateLimit{}, false
	}

	if limit, ok := r.Limits[host]; ok {
		return r.applyMargin(limit), true
	}

	if limit, ok := r.Limits[DefaultLimitKey]; ok {
		return r.applyMargin(limit), true
	}

	return RateLimit{}, false
}

func (r *RateLimiter) now() time.Time {
	if r != nil && r.Clock != nil {
		return r.Clock()
	}
	return time.Now().UTC()
}

func (r *RateLimiter) applyMargin(limit RateLimit) RateLimit {
	if r == nil || r.Margin <= 0 || r.Margin > 1 {
		return limit
	}
	adjusted := int(math.Floor(float64(limit.RequestsPerWindow) * r.Margin))
	if adjusted < 1 {
		adjusted = 1
	}
	limit.RequestsPerWindow = adjusted
	return limit
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
