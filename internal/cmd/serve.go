package cmd

import (
	"context"
	"time"

	"github.com/fulmenhq/gofulmen/signals"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/refreshrelay/refreshrelay/internal/config"
	errwrap "github.com/refreshrelay/refreshrelay/internal/errors"
	"github.com/refreshrelay/refreshrelay/internal/metrics"
	"github.com/refreshrelay/refreshrelay/internal/observability"
	"github.com/refreshrelay/refreshrelay/internal/server"
	"github.com/refreshrelay/refreshrelay/internal/server/handlers"
)

var (
	serverPort int
	serverHost string
)

// telemetryHealthChecker ensures telemetry system and exporter are available
type telemetryHealthChecker struct{}

func (telemetryHealthChecker) CheckHealth(ctx context.Context) error {
	if observability.TelemetrySystem == nil || observability.PrometheusExporter == nil {
		return errwrap.NewInternalError("telemetry system not initialized")
	}
	return nil
}

// identityHealthChecker validates app identity metadata
type identityHealthChecker struct {
	binaryName string
	envPrefix  string
	configName string
}

func (i identityHealthChecker) CheckHealth(ctx context.Context) error {
	switch {
	case i.binaryName == "":
		return errwrap.NewConfigInvalidError("app identity missing binary name")
	case i.envPrefix == "":
		return errwrap.NewConfigInvalidError("app identity missing env prefix")
	case i.configName == "":
		return errwrap.NewConfigInvalidError("app identity missing config name")
	}
	return nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the refresh relay",
	Long: `Start the relay. Requests of the form /<target-url> are resolved and redirected.

Signal Handling:
  • Ctrl+C (SIGINT) or SIGTERM: Graceful shutdown
  • Ctrl+C twice within 2s: Force quit
  • SIGHUP: Reload configuration (policy, fetch and rate limit settings)`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serverHost, "host", "localhost", "server host")
	serveCmd.Flags().IntVarP(&serverPort, "port", "p", 8080, "server port")
}

// serveOverrides turns explicitly set flags into runtime config overrides.
func serveOverrides(cmd *cobra.Command) map[string]any {
	serverOverrides := map[string]any{}
	if cmd.Flags().Changed("host") {
		serverOverrides["host"] = serverHost
	}
	if cmd.Flags().Changed("port") {
		serverOverrides["port"] = serverPort
	}

	overrides := map[string]any{}
	if len(serverOverrides) > 0 {
		overrides["server"] = serverOverrides
	}
	if verbose {
		overrides["logging"] = map[string]any{"level": "debug"}
	}
	return overrides
}

func runServe(cmd *cobra.Command, args []string) error {
	overrides := serveOverrides(cmd)
	cfg := loadConfig(cmd, overrides)

	identity := GetAppIdentity()
	namespace := identity.TelemetryNamespace()

	observability.InitServerLogger(identity.BinaryName, cfg.Logging.Level, namespace)
	logger := observability.ServerLogger

	if cfg.Metrics.Enabled {
		if err := observability.InitMetrics(identity.BinaryName, cfg.Metrics.Port, namespace); err != nil {
			logger.Error("Failed to initialize metrics", zap.Error(err))
			return errwrap.WrapInternal(cmd.Context(), err, "metrics initialization failed")
		}
		metrics.SetServerStartTime(time.Now().Unix())
	}

	relay := handlers.NewRelayHandler(buildRelayOptions(cfg))

	handlers.InitHealthManager(versionInfo.Version)
	hm := handlers.GetHealthManager()
	hm.RegisterChecker("resolver", relay)
	hm.RegisterChecker("app_identity", identityHealthChecker{
		binaryName: identity.BinaryName,
		envPrefix:  identity.EnvPrefix,
		configName: identity.ConfigName,
	})
	if cfg.Metrics.Enabled {
		hm.RegisterChecker("telemetry", telemetryHealthChecker{})
	}

	handlers.SetAppIdentity(identity)
	handlers.SetVersionInfo(versionInfo.Version, versionInfo.Commit, versionInfo.BuildDate)

	srv := server.New(cfg, relay)
	ln, err := srv.Listen()
	if err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server listen failed")
	}

	logger.Info("Initializing relay",
		zap.String("service", identity.BinaryName),
		zap.String("namespace", namespace),
		zap.String("version", versionInfo.Version),
		zap.String("addr", ln.Addr().String()),
		zap.Int("prefix_limit", cfg.Relay.PrefixLimit),
		zap.Strings("allowed_prefixes", cfg.Relay.AllowedPrefixes),
		zap.Bool("metrics_enabled", cfg.Metrics.Enabled),
		zap.Int("metrics_port", observability.GetMetricsPort()),
		zap.String("config_file", config.ConfigFileUsed()))

	shutdownTimeout := cfg.Server.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}

	// Shutdown handlers run LIFO: the server stops first, the logger flushes last.
	signals.OnShutdown(func(ctx context.Context) error {
		if err := logger.Sync(); err != nil {
			// stderr may already be closed
			logger.Warn("Logger sync returned error (may be benign)", zap.Error(err))
		}
		return nil
	})

	signals.OnShutdown(func(ctx context.Context) error {
		logger.Info("Shutting down HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return errwrap.WrapInternal(ctx, err, "server shutdown failed")
		}
		logger.Info("HTTP server stopped gracefully")
		return nil
	})

	signals.OnReload(func(ctx context.Context) error {
		logger.Info("Received SIGHUP: reloading configuration")

		next, err := config.Load(ctx, overrides)
		if err != nil {
			logger.Error("Config reload failed, keeping current settings",
				zap.String("file", config.ConfigFileUsed()),
				zap.Error(err))
			return err
		}

		relay.Apply(buildRelayOptions(next))
		logger.Info("Configuration reloaded",
			zap.String("file", config.ConfigFileUsed()),
			zap.Int("redirect_status", next.Relay.RedirectStatus),
			zap.Strings("allowed_prefixes", next.Relay.AllowedPrefixes))
		if next.Server != cfg.Server || next.Metrics != cfg.Metrics {
			logger.Warn("Server and metrics settings changed; restart to apply them")
		}
		return nil
	})

	if err := signals.EnableDoubleTap(signals.DoubleTapConfig{
		Window:  2 * time.Second,
		Message: "Press Ctrl+C again within 2 seconds to force quit",
	}); err != nil {
		logger.Warn("Failed to enable double-tap force quit", zap.Error(err))
	}

	errChan := make(chan error, 1)
	go func() {
		// Serve returns nil once a graceful shutdown completes.
		errChan <- srv.Serve(ln)
	}()

	go func() {
		if err := signals.Listen(cmd.Context()); err != nil {
			logger.Error("Signal handler error", zap.Error(err))
			errChan <- err
		}
	}()

	if err := <-errChan; err != nil {
		return errwrap.WrapInternal(cmd.Context(), err, "server error")
	}
	return nil
}
