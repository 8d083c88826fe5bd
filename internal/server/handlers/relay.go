package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/refreshrelay/refreshrelay/internal/core/engine"
	"github.com/refreshrelay/refreshrelay/internal/core/policy"
	"github.com/refreshrelay/refreshrelay/internal/core/refresh"
	apperrors "github.com/refreshrelay/refreshrelay/internal/errors"
	"github.com/refreshrelay/refreshrelay/internal/metrics"
	"github.com/refreshrelay/refreshrelay/internal/observability"
	"github.com/refreshrelay/refreshrelay/internal/server/middleware"
)

// RefreshSourceHeader names where a redirect came from: header, meta or fallback.
const RefreshSourceHeader = "X-Refresh-Source"

const robotsBody = "User-agent: *\nDisallow: /\n"

// RelayOptions is the reloadable part of the relay.
type RelayOptions struct {
	Policy         policy.Policy
	Resolver       *refresh.Resolver
	RedirectStatus int
}

// RelayHandler serves GET and HEAD requests of the form /<target-url> by
// resolving the target's refresh hint and redirecting to the result.
type RelayHandler struct {
	state atomic.Pointer[RelayOptions]
}

// NewRelayHandler creates a handler using opts.
func NewRelayHandler(opts RelayOptions) *RelayHandler {
	h := &RelayHandler{}
	h.Apply(opts)
	return h
}

// Apply swaps in new options. Requests in flight keep the options they started with.
func (h *RelayHandler) Apply(opts RelayOptions) {
	if opts.RedirectStatus == 0 {
		opts.RedirectStatus = http.StatusFound
	}
	opts.Policy.AllowedPrefixes = append([]string(nil), opts.Policy.AllowedPrefixes...)
	h.state.Store(&opts)
}

// Options returns the options currently in effect.
func (h *RelayHandler) Options() RelayOptions {
	return *h.state.Load()
}

// CheckHealth fails when no resolver is configured.
func (h *RelayHandler) CheckHealth(ctx context.Context) error {
	opts := h.state.Load()
	if opts == nil || opts.Resolver == nil || opts.Resolver.Fetcher == nil {
		return errors.New("relay resolver is not configured")
	}
	return nil
}

// ServeHTTP relays one request.
func (h *RelayHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	opts := h.state.Load()
	ctx := r.Context()

	target, err := opts.Policy.ParseTarget(requestURI(r))
	if err != nil {
		metrics.RecordPolicyRejection("invalid_target")
		respondWithError(w, r, apperrors.WrapInvalidTarget(ctx, err, err.Error()))
		return
	}
	if err := opts.Policy.Check(target); err != nil {
		metrics.RecordPolicyRejection("not_allowed")
		respondWithError(w, r, apperrors.WrapTargetForbidden(ctx, err, err.Error()))
		return
	}

	start := time.Now()
	decision, err := opts.Resolver.Resolve(ctx, target)
	if err != nil {
		var limited *engine.RateLimitedError
		if errors.As(err, &limited) {
			metrics.RecordRateLimited(limited.Host)
			w.Header().Set("Retry-After", apperrors.RetryAfterHeader(limited.Wait))
			respondWithError(w, r, apperrors.WrapRateLimited(ctx, err, limited.Wait))
			return
		}
		metrics.RecordFetchError("transport")
		respondWithError(w, r, apperrors.WrapUpstreamUnreachable(ctx, err,
			fmt.Sprintf("fetching %s failed", target)))
		return
	}

	metrics.RecordDecision(string(decision.Outcome), string(decision.Source), time.Since(start))
	logDecision(r, decision)
	writeDecision(w, r, decision, opts.RedirectStatus)
}

func writeDecision(w http.ResponseWriter, r *http.Request, d refresh.Decision, status int) {
	header := w.Header()
	header.Set("Location", d.Location)
	header.Set("Cache-Control", "no-store")

	var body string
	if d.IsRedirect() {
		header.Set(RefreshSourceHeader, string(d.Source))
		header.Set("Content-Type", "text/html; charset=utf-8")
		escaped := html.EscapeString(d.Location)
		body = fmt.Sprintf("Moved to <a href=\"%s\">%s</a>", escaped, escaped)
	} else {
		header.Set(RefreshSourceHeader, string(refresh.OutcomeFallback))
		header.Set("Content-Type", "text/plain; charset=utf-8")
		body = d.Reason
	}

	w.WriteHeader(status)
	if r.Method != http.MethodHead {
		_, _ = fmt.Fprint(w, body)
	}
}

func logDecision(r *http.Request, d refresh.Decision) {
	logger := observability.Logger()
	if logger == nil {
		return
	}
	fields := []zap.Field{
		zap.String("target", d.Original),
		zap.String("outcome", string(d.Outcome)),
		zap.String("location", d.Location),
		zap.Int("upstream_status", d.UpstreamStatus),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
	}
	if d.Source != "" {
		fields = append(fields, zap.String("source", string(d.Source)))
	}
	if d.Reason != "" {
		fields = append(fields, zap.String("reason", d.Reason))
	}
	logger.Info("relay decision", fields...)
}

// requestURI returns the raw path and query so that targets keep their own
// escaping and double slashes.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" && strings.HasPrefix(r.RequestURI, "/") {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

// Help describes how to use the relay.
func (h *RelayHandler) Help(w http.ResponseWriter, r *http.Request) {
	opts := h.state.Load()
	base := baseURL(r)

	var b strings.Builder
	fmt.Fprintf(&b, "refreshrelay\n\n")
	fmt.Fprintf(&b, "Fetches a remote URL and inspects the response for a 'Refresh: 0; URL=<url>'\n")
	fmt.Fprintf(&b, "HTTP header or a '<meta http-equiv=\"refresh\" content=\"0; URL=<url>\">' element.\n")
	fmt.Fprintf(&b, "If one is present the relay answers %d with the refresh URL as Location.\n", opts.RedirectStatus)
	fmt.Fprintf(&b, "Otherwise it answers %d back to the remote URL.\n\n", opts.RedirectStatus)
	fmt.Fprintf(&b, "Usage:\n  %s<refresh-url>\n\n", base)
	fmt.Fprintf(&b, "Examples:\n  %shttps://example.org/http-refresh\n  %shttps://example.org/meta-http-equiv-refresh\n", base, base)
	if len(opts.Policy.AllowedPrefixes) > 0 {
		fmt.Fprintf(&b, "\nAllowed prefixes:\n  %s\n", strings.Join(opts.Policy.AllowedPrefixes, ", "))
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = fmt.Fprint(w, b.String())
	}
}

// Robots disallows all crawling.
func (h *RelayHandler) Robots(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if r.Method != http.MethodHead {
		_, _ = fmt.Fprint(w, robotsBody)
	}
}

// Favicon answers 404 with no body.
func (h *RelayHandler) Favicon(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

func baseURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto == "http" || proto == "https" {
		scheme = proto
	}
	return scheme + "://" + r.Host + "/"
}
