// Package config provides centralized configuration management for refreshrelay.
// Values are layered with spf13/viper:
// Layer 1: built-in defaults
// Layer 2: the user config file (--config, or discovered via app identity)
// Layer 3: environment variables and runtime overrides
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fulmenhq/gofulmen/appidentity"
	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/refreshrelay/refreshrelay/internal/appid"
)

var (
	// appConfig holds the current application configuration
	appConfig   *Config
	configMu    sync.RWMutex
	appIdentity *appidentity.Identity

	// configFile is an explicit config file path set from the CLI
	configFile string
)

// EnvVarSpec defines environment variable mappings for config fields
// following the pattern: {PREFIX}{NAME} maps to config path
type EnvVarSpec = gfconfig.EnvVarSpec

// Environment variable types
const (
	EnvString = gfconfig.EnvString
	EnvInt    = gfconfig.EnvInt
	EnvBool   = gfconfig.EnvBool
)

var validRedirectStatuses = map[int]bool{
	http.StatusMovedPermanently:  true,
	http.StatusFound:             true,
	http.StatusSeeOther:          true,
	http.StatusTemporaryRedirect: true,
	http.StatusPermanentRedirect: true,
}

// SetConfigFile pins Load to a specific config file. An empty path restores
// discovery through the app identity config directory.
func SetConfigFile(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFile = strings.TrimSpace(path)
}

// Load loads configuration using the three-layer pattern. Runtime overrides take
// precedence over environment variables, which take precedence over the config
// file and defaults.
//
// This function is safe to call multiple times (e.g., for config reload)
func Load(ctx context.Context, runtimeOverrides ...map[string]any) (*Config, error) {
	// Get app identity if not already loaded
	if appIdentity == nil {
		identity, err := appid.Get(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to load app identity: %w", err)
		}
		appIdentity = identity
	}

	v := viper.New()
	setDefaults(v)

	path, err := resolveConfigFile()
	if err != nil {
		return nil, err
	}
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	for _, spec := range getEnvSpecs() {
		if err := v.BindEnv(strings.Join(spec.Path, "."), spec.Name); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", spec.Name, err)
		}
	}

	for _, overrides := range runtimeOverrides {
		applyOverrides(v, "", overrides)
	}

	// Unmarshal into typed config struct
	cfg := &Config{}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           cfg,
		WeaklyTypedInput: true,
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
			mapstructure.StringToFloat64HookFunc(),
		),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create decoder: %w", err)
	}

	if err := decoder.Decode(v.AllSettings()); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Store the loaded config
	setConfig(cfg)

	return cfg, nil
}

// Validate rejects values the relay cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if !validRedirectStatuses[c.Relay.RedirectStatus] {
		errs = append(errs, fmt.Errorf("relay.redirect_status %d is not a redirect status", c.Relay.RedirectStatus))
	}
	if c.Relay.PrefixLimit <= 0 {
		errs = append(errs, fmt.Errorf("relay.prefix_limit must be positive, got %d", c.Relay.PrefixLimit))
	}
	if c.Fetch.MaxRedirects < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_redirects must not be negative, got %d", c.Fetch.MaxRedirects))
	}
	if c.Workers <= 0 {
		errs = append(errs, fmt.Errorf("workers must be positive, got %d", c.Workers))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

// GetConfig returns the current application configuration (thread-safe)
func GetConfig() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return appConfig
}

// setConfig updates the current configuration (thread-safe)
func setConfig(cfg *Config) {
	configMu.Lock()
	defer configMu.Unlock()
	appConfig = cfg
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "120s")
	v.SetDefault("server.shutdown_timeout", "10s")

	// Relay defaults
	v.SetDefault("relay.prefix_limit", 1024)
	v.SetDefault("relay.redirect_status", http.StatusFound)
	v.SetDefault("relay.allowed_prefixes", []string{})
	v.SetDefault("relay.require_https", true)
	v.SetDefault("relay.block_private", true)

	// Upstream fetch defaults
	v.SetDefault("fetch.timeout", "15s")
	v.SetDefault("fetch.max_redirects", 0)
	v.SetDefault("fetch.user_agent", "")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.profile", "SIMPLE")

	// Rate limit overrides (optional)
	v.SetDefault("rate_limits", []map[string]any{})
	v.SetDefault("rate_limit_margin", 1.0)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.port", 9090)

	// Health check defaults
	v.SetDefault("health.enabled", true)

	// Worker defaults
	v.SetDefault("workers", 4)

	// Debug defaults
	v.SetDefault("debug.enabled", false)
	v.SetDefault("debug.pprof_enabled", false)
}

// applyOverrides flattens nested runtime overrides into viper's override layer.
func applyOverrides(v *viper.Viper, prefix string, overrides map[string]any) {
	for key, value := range overrides {
		path := key
		if prefix != "" {
			path = prefix + "." + key
		}
		if nested, ok := value.(map[string]any); ok {
			applyOverrides(v, path, nested)
			continue
		}
		v.Set(path, value)
	}
}

// resolveConfigFile returns the explicit config file, or the first existing
// user config path. A missing explicit file is an error; a missing discovered
// file is not.
func resolveConfigFile() (string, error) {
	configMu.RLock()
	explicit := configFile
	configMu.RUnlock()

	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}

	for _, candidate := range getUserConfigPaths() {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	return "", nil
}

// getUserConfigPaths returns the list of user config file paths to check
func getUserConfigPaths() []string {
	configName, binaryName := appNamesForPaths()

	paths := []string{}
	for _, name := range []string{configName, binaryName} {
		dir := gfconfig.GetAppConfigDir(name)
		if strings.TrimSpace(dir) == "" {
			continue
		}
		candidate := filepath.Join(dir, "config.yaml")
		if len(paths) > 0 && paths[len(paths)-1] == candidate {
			continue
		}
		paths = append(paths, candidate)
	}
	return paths
}

// getEnvSpecs returns environment variable specifications for config mapping
// Maps {PREFIX}{NAME} environment variables to config paths
func getEnvSpecs() []EnvVarSpec {
	if appIdentity == nil {
		return []EnvVarSpec{}
	}

	prefix := appIdentity.EnvPrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}

	return []EnvVarSpec{
		// Server config
		{Name: prefix + "HOST", Path: []string{"server", "host"}, Type: EnvString},
		{Name: prefix + "PORT", Path: []string{"server", "port"}, Type: EnvInt},
		// Duration fields are parsed as strings and converted by mapstructure decode hook
		{Name: prefix + "READ_TIMEOUT", Path: []string{"server", "read_timeout"}, Type: EnvString},
		{Name: prefix + "WRITE_TIMEOUT", Path: []string{"server", "write_timeout"}, Type: EnvString},
		{Name: prefix + "IDLE_TIMEOUT", Path: []string{"server", "idle_timeout"}, Type: EnvString},
		{Name: prefix + "SHUTDOWN_TIMEOUT", Path: []string{"server", "shutdown_timeout"}, Type: EnvString},

		// Relay config
		{Name: prefix + "PREFIX_LIMIT", Path: []string{"relay", "prefix_limit"}, Type: EnvInt},
		{Name: prefix + "REDIRECT_STATUS", Path: []string{"relay", "redirect_status"}, Type: EnvInt},
		{Name: prefix + "ALLOWED_PREFIXES", Path: []string{"relay", "allowed_prefixes"}, Type: EnvString},
		{Name: prefix + "REQUIRE_HTTPS", Path: []string{"relay", "require_https"}, Type: EnvBool},
		{Name: prefix + "BLOCK_PRIVATE", Path: []string{"relay", "block_private"}, Type: EnvBool},

		// Upstream fetch config
		{Name: prefix + "FETCH_TIMEOUT", Path: []string{"fetch", "timeout"}, Type: EnvString},
		{Name: prefix + "FETCH_MAX_REDIRECTS", Path: []string{"fetch", "max_redirects"}, Type: EnvInt},
		{Name: prefix + "USER_AGENT", Path: []string{"fetch", "user_agent"}, Type: EnvString},

		// Logging config
		{Name: prefix + "LOG_LEVEL", Path: []string{"logging", "level"}, Type: EnvString},
		{Name: prefix + "LOG_PROFILE", Path: []string{"logging", "profile"}, Type: EnvString},

		// Rate limiting
		{Name: prefix + "RATE_LIMIT_MARGIN", Path: []string{"rate_limit_margin"}, Type: EnvString},

		// Metrics config
		{Name: prefix + "METRICS_ENABLED", Path: []string{"metrics", "enabled"}, Type: EnvBool},
		{Name: prefix + "METRICS_PORT", Path: []string{"metrics", "port"}, Type: EnvInt},

		// Health config
		{Name: prefix + "HEALTH_ENABLED", Path: []string{"health", "enabled"}, Type: EnvBool},

		// Debug config
		{Name: prefix + "DEBUG_ENABLED", Path: []string{"debug", "enabled"}, Type: EnvBool},
		{Name: prefix + "DEBUG_PPROF_ENABLED", Path: []string{"debug", "pprof_enabled"}, Type: EnvBool},

		// Workers
		{Name: prefix + "WORKERS", Path: []string{"workers"}, Type: EnvInt},
	}
}

// appNamesForPaths returns the config name and binary name from app identity,
// falling back to "refreshrelay" if not set.
func appNamesForPaths() (configName string, binaryName string) {
	configName = "refreshrelay"
	binaryName = "refreshrelay"
	if appIdentity == nil {
		return configName, binaryName
	}

	if strings.TrimSpace(appIdentity.ConfigName) != "" {
		configName = appIdentity.ConfigName
	}
	if strings.TrimSpace(appIdentity.BinaryName) != "" {
		binaryName = appIdentity.BinaryName
	}
	return configName, binaryName
}

// DefaultConfigPath returns the XDG-compliant path to the user config file.
func DefaultConfigPath() string {
	configName, _ := appNamesForPaths()
	configDir := gfconfig.GetAppConfigDir(configName)
	if strings.TrimSpace(configDir) == "" {
		return ""
	}
	return filepath.Join(configDir, "config.yaml")
}

// ConfigFileUsed reports the file Load would read, or "" when running on
// defaults and environment only.
func ConfigFileUsed() string {
	path, err := resolveConfigFile()
	if err != nil {
		return ""
	}
	return path
}
