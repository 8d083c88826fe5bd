package cmd

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/refreshrelay/refreshrelay/internal/config"
	"github.com/refreshrelay/refreshrelay/internal/observability"
)

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display environment, effective relay configuration, and version information.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		version := crucible.GetVersion()
		identity := GetAppIdentity()

		log.Info("=== RefreshRelay Environment Information ===")
		log.Info("")

		log.Info("Application:")
		log.Info("  Name:       " + identity.BinaryName)
		log.Info("  Version:    " + versionInfo.Version)
		log.Info("  Commit:     " + versionInfo.Commit)
		log.Info("  Built:      " + versionInfo.BuildDate)
		log.Info("")

		log.Info("SSOT:")
		log.Info("  Gofulmen:   "+version.Gofulmen, zap.String("gofulmen_version", version.Gofulmen))
		log.Info("  Crucible:   "+version.Crucible, zap.String("crucible_version", version.Crucible))
		log.Info("")

		log.Info("Runtime:")
		log.Info("  Go Version: "+runtime.Version(), zap.String("go_version", runtime.Version()))
		log.Info("  GOOS:       "+runtime.GOOS, zap.String("goos", runtime.GOOS))
		log.Info("  GOARCH:     "+runtime.GOARCH, zap.String("goarch", runtime.GOARCH))
		log.Info(fmt.Sprintf("  NumCPU:     %d", runtime.NumCPU()), zap.Int("num_cpu", runtime.NumCPU()))
		log.Info("")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return
		}

		configFile := config.ConfigFileUsed()
		if configFile == "" {
			configFile = config.DefaultConfigPath() + " (not found)"
		}

		log.Info("Configuration:")
		log.Info("  Server Host:    "+cfg.Server.Host, zap.String("host", cfg.Server.Host))
		log.Info(fmt.Sprintf("  Server Port:    %d", cfg.Server.Port), zap.Int("port", cfg.Server.Port))
		log.Info("  Log Level:      "+cfg.Logging.Level, zap.String("log_level", cfg.Logging.Level))
		log.Info("  Log Profile:    "+cfg.Logging.Profile, zap.String("log_profile", cfg.Logging.Profile))
		log.Info(fmt.Sprintf("  Metrics:        %t (port %d)", cfg.Metrics.Enabled, cfg.Metrics.Port), zap.Int("metrics_port", cfg.Metrics.Port))
		log.Info(fmt.Sprintf("  Workers:        %d", cfg.Workers))
		log.Info("  Config File:    "+configFile, zap.String("config_file", configFile))
		log.Info("")

		log.Info("Relay:")
		log.Info(fmt.Sprintf("  Redirect Status:  %d", cfg.Relay.RedirectStatus))
		log.Info(fmt.Sprintf("  Prefix Limit:     %d bytes", cfg.Relay.PrefixLimit))
		log.Info(fmt.Sprintf("  Require HTTPS:    %t", cfg.Relay.RequireHTTPS))
		log.Info(fmt.Sprintf("  Block Private:    %t", cfg.Relay.BlockPrivate))
		if len(cfg.Relay.AllowedPrefixes) > 0 {
			log.Info("  Allowed Prefixes: " + strings.Join(cfg.Relay.AllowedPrefixes, ", "))
		} else {
			log.Info("  Allowed Prefixes: (any)")
		}
		log.Info("")

		log.Info("Fetch:")
		log.Info("  Timeout:        " + cfg.Fetch.Timeout.String())
		log.Info(fmt.Sprintf("  Max Redirects:  %d", cfg.Fetch.MaxRedirects))
		log.Info("  User Agent:     " + cfg.Fetch.UserAgent)
		log.Info("")

		log.Info("Rate Limits:")
		log.Info(fmt.Sprintf("  Margin:         %.2f", cfg.RateLimitMargin))
		if len(cfg.RateLimits) == 0 {
			log.Info("  (none)")
		}
		for _, rule := range cfg.RateLimits {
			log.Info(fmt.Sprintf("  %s: %d/min", rule.Host, rule.PerMinute),
				zap.String("host", rule.Host), zap.Int("per_minute", rule.PerMinute))
		}
		log.Info("")

		log.Info("=== End Environment Information ===")
	},
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
