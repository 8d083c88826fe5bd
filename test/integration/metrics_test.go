package integration

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refreshrelay/refreshrelay/internal/config"
	"github.com/refreshrelay/refreshrelay/internal/core/engine"
	"github.com/refreshrelay/refreshrelay/internal/core/fetch"
	"github.com/refreshrelay/refreshrelay/internal/core/policy"
	"github.com/refreshrelay/refreshrelay/internal/core/refresh"
	"github.com/refreshrelay/refreshrelay/internal/observability"
	"github.com/refreshrelay/refreshrelay/internal/server"
	"github.com/refreshrelay/refreshrelay/internal/server/handlers"
)

// cleanupMetrics tears down global telemetry state so each test starts clean.
func cleanupMetrics(t *testing.T) {
	t.Helper()
	t.Cleanup(func() {
		if observability.PrometheusExporter != nil {
			_ = observability.PrometheusExporter.Stop()
			observability.PrometheusExporter = nil
		}
		observability.TelemetrySystem = nil
	})
}

// isPermissionError normalizes OS-specific permission errors so we can skip
// when loopback sockets are blocked.
func isPermissionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.EACCES) || errors.Is(err, syscall.EPERM) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{"permission denied", "operation not permitted", "not permitted"} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func initMetricsOrSkip(t *testing.T) {
	t.Helper()
	if err := observability.InitMetrics("test", 0, "test"); err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping metrics tests due to sandbox permissions: %v", err)
		}
		require.NoError(t, err)
	}
	cleanupMetrics(t)
}

func listenOrSkip(t *testing.T) net.Listener {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		if isPermissionError(err) {
			t.Skipf("skipping: loopback listen refused: %v", err)
		}
		require.NoError(t, err)
	}
	return listener
}

// newUpstream serves pages with each flavour of refresh hint.
func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/header", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Refresh", "0; url=/landing")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/meta", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = io.WriteString(w, `<html><head><meta http-equiv="refresh" content="0;URL='/from-meta'"></head></html>`)
	})
	mux.HandleFunc("/plain", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = io.WriteString(w, "<html><body>nothing here</body></html>")
	})

	ts := &httptest.Server{Listener: listenOrSkip(t), Config: &http.Server{Handler: mux}}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}

// newRelayServer runs the full router on loopback with a real fetcher and
// rate limiter. The client does not follow redirects.
func newRelayServer(t *testing.T, limits map[string]int) (*httptest.Server, *http.Client) {
	t.Helper()
	handlers.InitHealthManager("test")

	cfg := &config.Config{
		Server:  config.ServerConfig{Host: "127.0.0.1", ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		Health:  config.HealthConfig{Enabled: true},
		Metrics: config.MetricsConfig{Enabled: true},
	}
	fetcher := &engine.LimitedFetcher{
		Fetcher: fetch.NewHTTPFetcher(5*time.Second, 0, "refreshrelay-test"),
		Limiter: engine.NewRateLimiter(limits, 1.0),
	}
	relay := handlers.NewRelayHandler(handlers.RelayOptions{
		Policy:         policy.Policy{},
		Resolver:       &refresh.Resolver{Fetcher: fetcher},
		RedirectStatus: http.StatusFound,
	})
	srv := server.New(cfg, relay)

	ts := &httptest.Server{Listener: listenOrSkip(t), Config: &http.Server{Handler: srv.Handler()}}
	ts.Start()
	t.Cleanup(ts.Close)

	client := ts.Client()
	client.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return ts, client
}

func get(t *testing.T, client *http.Client, url string) *http.Response {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	_, _ = io.Copy(io.Discard, resp.Body)
	require.NoError(t, resp.Body.Close())
	return resp
}

func TestRelay_EndToEnd(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	upstream := newUpstream(t)
	ts, client := newRelayServer(t, nil)

	tests := []struct {
		path     string
		location string
		source   string
	}{
		{"/header", upstream.URL + "/landing", "header"},
		{"/meta", upstream.URL + "/from-meta", "meta"},
		{"/plain", upstream.URL + "/plain", "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp := get(t, client, ts.URL+"/"+upstream.URL+tt.path)
			assert.Equal(t, http.StatusFound, resp.StatusCode)
			assert.Equal(t, tt.location, resp.Header.Get("Location"))
			assert.Equal(t, tt.source, resp.Header.Get(handlers.RefreshSourceHeader))
			assert.Equal(t, "no-store", resp.Header.Get("Cache-Control"))
		})
	}
}

func TestRelay_RateLimitedUpstream(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	upstream := newUpstream(t)
	ts, client := newRelayServer(t, map[string]int{"127.0.0.1": 1})

	first := get(t, client, ts.URL+"/"+upstream.URL+"/header")
	assert.Equal(t, http.StatusFound, first.StatusCode)

	second := get(t, client, ts.URL+"/"+upstream.URL+"/header")
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.NotEmpty(t, second.Header.Get("Retry-After"))
}

func TestMetricsEndpoint_Integration(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")
	initMetricsOrSkip(t)

	upstream := newUpstream(t)
	ts, client := newRelayServer(t, nil)

	const numRequests = 40
	const numWorkers = 8

	paths := []string{"/header", "/meta", "/plain"}
	requests := make(chan int, numRequests)
	for i := 0; i < numRequests; i++ {
		requests <- i
	}
	close(requests)

	start := time.Now()
	var wg sync.WaitGroup
	wg.Add(numWorkers)
	for i := 0; i < numWorkers; i++ {
		go func() {
			defer wg.Done()
			for n := range requests {
				var target string
				if n%4 == 3 {
					target = ts.URL + "/health"
				} else {
					target = fmt.Sprintf("%s/%s%s", ts.URL, upstream.URL, paths[n%3])
				}
				resp, err := client.Get(target)
				if err == nil {
					_, _ = io.Copy(io.Discard, resp.Body)
					_ = resp.Body.Close()
				}
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)

	resp, err := client.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, readErr := io.ReadAll(resp.Body)
	require.NoError(t, resp.Body.Close())
	require.NoError(t, readErr)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	content := string(body)
	assert.Contains(t, content, "test_http_requests_total", "Should have HTTP request metrics")
	assert.Contains(t, content, "test_relay_decisions_total", "Should have relay decision metrics")
	assert.Contains(t, content, "test_relay_resolve_ms", "Should have resolve duration metrics")
	assert.Less(t, elapsed, 5*time.Second, "Load test should complete in reasonable time")
	t.Logf("Load test completed: %d requests in %v", numRequests, elapsed)
}

func TestMetricsEndpoint_WithTelemetryDisabled(t *testing.T) {
	observability.InitCLILogger("test", false)
	observability.InitServerLogger("test", "info")

	originalExporter := observability.PrometheusExporter
	originalTelemetry := observability.TelemetrySystem
	observability.PrometheusExporter = nil
	observability.TelemetrySystem = nil
	t.Cleanup(func() {
		observability.PrometheusExporter = originalExporter
		observability.TelemetrySystem = originalTelemetry
	})

	upstream := newUpstream(t)
	ts, client := newRelayServer(t, nil)

	resp := get(t, client, ts.URL+"/"+upstream.URL+"/header")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp = get(t, client, ts.URL+"/metrics")
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
