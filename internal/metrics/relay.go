package metrics

import (
	"time"

	"github.com/refreshrelay/refreshrelay/internal/observability"
)

// Relay metrics following Prometheus conventions
const (
	DecisionsTotal        = "relay_decisions_total"
	ResolveDuration       = "relay_resolve_ms"
	FetchErrorsTotal      = "relay_fetch_errors_total"
	PolicyRejectionsTotal = "relay_policy_rejections_total"
	RateLimitedTotal      = "relay_rate_limited_total"

	HealthCheckTotal    = "app_health_check_total"
	HealthCheckDuration = "app_health_check_duration_ms"

	ServerStartTime = "app_server_start_time_seconds"
)

// RecordDecision counts one resolved request by outcome ("redirect", "fallback")
// and hint source ("header", "meta", or "none").
func RecordDecision(outcome, source string, duration time.Duration) {
	if !observability.MetricsEnabled() {
		return
	}
	if source == "" {
		source = "none"
	}
	_ = observability.TelemetrySystem.Counter(
		DecisionsTotal,
		1,
		map[string]string{
			"outcome": outcome,
			"source":  source,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		ResolveDuration,
		duration,
		map[string]string{
			"outcome": outcome,
		},
	)
}

// RecordFetchError counts upstream fetches that failed before a response arrived.
func RecordFetchError(kind string) {
	if !observability.MetricsEnabled() {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		FetchErrorsTotal,
		1,
		map[string]string{"kind": kind},
	)
}

// RecordPolicyRejection counts targets refused before any fetch.
func RecordPolicyRejection(reason string) {
	if !observability.MetricsEnabled() {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		PolicyRejectionsTotal,
		1,
		map[string]string{"reason": reason},
	)
}

// RecordRateLimited counts fetches refused by the per-host limiter.
func RecordRateLimited(host string) {
	if !observability.MetricsEnabled() {
		return
	}
	_ = observability.TelemetrySystem.Counter(
		RateLimitedTotal,
		1,
		map[string]string{"host": host},
	)
}

// RecordHealthCheck records a health check execution
func RecordHealthCheck(checkName string, healthy bool, duration time.Duration) {
	if !observability.MetricsEnabled() {
		return
	}
	status := "healthy"
	if !healthy {
		status = "unhealthy"
	}
	_ = observability.TelemetrySystem.Counter(
		HealthCheckTotal,
		1,
		map[string]string{
			"check":  checkName,
			"status": status,
		},
	)
	_ = observability.TelemetrySystem.Histogram(
		HealthCheckDuration,
		duration,
		map[string]string{"check": checkName},
	)
}

// SetServerStartTime records the server start time (Unix timestamp)
func SetServerStartTime(timestamp int64) {
	if !observability.MetricsEnabled() {
		return
	}
	_ = observability.TelemetrySystem.Gauge(ServerStartTime, float64(timestamp), nil)
}
