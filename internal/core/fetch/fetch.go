// Package fetch performs the single upstream GET a refresh resolution inspects.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const (
	DefaultUserAgent = "Mozilla/5.0 (compatible; refreshrelay; +https://github.com/refreshrelay/refreshrelay)"
	DefaultAccept    = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"
	DefaultTimeout   = 15 * time.Second
)

// ErrTransport marks failures to obtain an upstream response at all.
var ErrTransport = errors.New("upstream transport failure")

// Response is the upstream response handed to the resolver. The receiver owns Body
// and must close it.
type Response struct {
	StatusCode int
	Header     http.Header
	// FinalURL is the URL that produced this response after any transport redirects.
	FinalURL *url.URL
	Body     io.ReadCloser
}

// Fetcher retrieves a single upstream resource.
type Fetcher interface {
	Fetch(ctx context.Context, target *url.URL) (*Response, error)
}

// TooManyRedirectsError is returned when the upstream exceeds the redirect budget.
type TooManyRedirectsError struct {
	Limit int
	Via   []*http.Request
}

func (e *TooManyRedirectsError) Error() string {
	return fmt.Sprintf("stopped after %d redirects (limit: %d)", len(e.Via), e.Limit)
}

// HTTPFetcher fetches over net/http.
type HTTPFetcher struct {
	Client    *http.Client
	UserAgent string
	// MaxRedirects bounds transport-level 3xx following. Zero returns the first
	// response as is.
	MaxRedirects int
}

// NewHTTPFetcher builds a fetcher with its own client.
func NewHTTPFetcher(timeout time.Duration, maxRedirects int, userAgent string) *HTTPFetcher {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPFetcher{
		Client:       &http.Client{Timeout: timeout},
		UserAgent:    userAgent,
		MaxRedirects: maxRedirects,
	}
}

// Fetch issues a GET for target. Errors wrap ErrTransport.
func (f *HTTPFetcher) Fetch(ctx context.Context, target *url.URL) (*Response, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if target == nil {
		return nil, fmt.Errorf("%w: target is required", ErrTransport)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	userAgent := f.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", DefaultAccept)

	resp, err := f.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		FinalURL:   finalURL,
		Body:       resp.Body,
	}, nil
}

// client returns a shallow copy of the configured client carrying the redirect policy.
func (f *HTTPFetcher) client() *http.Client {
	base := f.Client
	if base == nil {
		base = &http.Client{Timeout: DefaultTimeout}
	}
	c := *base
	c.CheckRedirect = checkRedirect(f.MaxRedirects)
	return &c
}

func checkRedirect(maxRedirects int) func(*http.Request, []*http.Request) error {
	return func(_ *http.Request, via []*http.Request) error {
		if maxRedirects <= 0 {
			return http.ErrUseLastResponse
		}
		if len(via) > maxRedirects {
			return &TooManyRedirectsError{Limit: maxRedirects, Via: via}
		}
		return nil
	}
}
