package engine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/refreshrelay/refreshrelay/internal/core/fetch"
)

// ErrRateLimited is returned when a host's request budget is exhausted.
var ErrRateLimited = errors.New("upstream rate limited")

// RateLimitedError reports which host is limited and for how long.
type RateLimitedError struct {
	Host string
	Wait time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("%s: %s, retry in %s", ErrRateLimited, e.Host, e.Wait.Round(time.Second))
}

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// LimitedFetcher applies a RateLimiter around another Fetcher.
type LimitedFetcher struct {
	Fetcher fetch.Fetcher
	Limiter *RateLimiter

	mu sync.Mutex
}

// Fetch checks and records the host budget, then delegates. An upstream 429
// starts a backoff window for the host.
func (f *LimitedFetcher) Fetch(ctx context.Context, target *url.URL) (*fetch.Response, error) {
	if target == nil || f.Limiter == nil {
		return f.Fetcher.Fetch(ctx, target)
	}
	host := target.Hostname()

	if err := f.reserve(ctx, host); err != nil {
		return nil, err
	}

	resp, err := f.Fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		_ = f.Limiter.Record429(ctx, host, retryAfterHeader(resp.Header, f.Limiter.now()))
	}
	return resp, nil
}

func (f *LimitedFetcher) reserve(ctx context.Context, host string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	allowed, wait, err := f.Limiter.Allow(ctx, host)
	if err != nil {
		return err
	}
	if !allowed {
		return &RateLimitedError{Host: host, Wait: wait}
	}
	return f.Limiter.Record(ctx, host)
}

func retryAfterHeader(header http.Header, now time.Time) time.Duration {
	retry := header.Get("Retry-After")
	if retry == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(retry); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if parsed, err := http.ParseTime(retry); err == nil && parsed.After(now) {
		return parsed.Sub(now)
	}
	return 0
}
