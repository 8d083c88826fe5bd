package config

import (
	"time"
)

// Config represents the complete application configuration. Values are layered:
// defaults, then the config file, then environment variables, then runtime
// overrides.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Fetch   FetchConfig   `mapstructure:"fetch"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Health  HealthConfig  `mapstructure:"health"`
	Debug   DebugConfig   `mapstructure:"debug"`
	Workers int           `mapstructure:"workers"`

	RateLimits      []RateLimitRule `mapstructure:"rate_limits"`
	RateLimitMargin float64         `mapstructure:"rate_limit_margin"`
}

// RateLimitRule caps requests per minute to one upstream host. The host
// "default" applies to hosts without their own rule.
type RateLimitRule struct {
	Host      string `mapstructure:"host"`
	PerMinute int    `mapstructure:"per_minute"`
}

// RateLimitMap returns the rules keyed by host.
func (c *Config) RateLimitMap() map[string]int {
	limits := make(map[string]int, len(c.RateLimits))
	for _, rule := range c.RateLimits {
		limits[rule.Host] = rule.PerMinute
	}
	return limits
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RelayConfig controls which targets are relayed and how decisions are answered.
type RelayConfig struct {
	// PrefixLimit is the number of body bytes searched for a meta refresh.
	PrefixLimit int `mapstructure:"prefix_limit"`

	// RedirectStatus is the status used for both followed refreshes and fallbacks.
	// Valid values: 301, 302, 303, 307, 308
	RedirectStatus int `mapstructure:"redirect_status"`

	// AllowedPrefixes restricts targets; empty relays any target.
	AllowedPrefixes []string `mapstructure:"allowed_prefixes"`
	RequireHTTPS    bool     `mapstructure:"require_https"`
	BlockPrivate    bool     `mapstructure:"block_private"`
}

// FetchConfig configures the upstream HTTP client.
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxRedirects int           `mapstructure:"max_redirects"`
	UserAgent    string        `mapstructure:"user_agent"`
}

// LoggingConfig contains logging configuration
// Supports progressive logging profiles:
// - SIMPLE: Console output only, minimal configuration (CLI tools)
// - STRUCTURED: Structured sinks, correlation IDs (API services)
type LoggingConfig struct {
	// Level controls the minimum log level
	// Valid values: trace, debug, info, warn, error
	Level string `mapstructure:"level"`

	// Profile selects the logging complexity level
	Profile string `mapstructure:"profile"`
}

// MetricsConfig contains Prometheus metrics configuration
type MetricsConfig struct {
	// Enabled controls whether metrics are exposed
	Enabled bool `mapstructure:"enabled"`

	// Port is the dedicated metrics endpoint port (Prometheus format)
	Port int `mapstructure:"port"`
}

// HealthConfig contains health check configuration
type HealthConfig struct {
	// Enabled controls whether health endpoints are exposed
	Enabled bool `mapstructure:"enabled"`
}

// DebugConfig contains debug and profiling configuration
type DebugConfig struct {
	// Enabled controls whether debug mode is active
	Enabled bool `mapstructure:"enabled"`

	// PprofEnabled controls whether pprof endpoints are exposed
	// WARNING: Only enable in development/staging environments
	PprofEnabled bool `mapstructure:"pprof_enabled"`
}
