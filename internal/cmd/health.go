package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	apperrors "github.com/refreshrelay/refreshrelay/internal/errors"
	"github.com/refreshrelay/refreshrelay/internal/config"
	"github.com/refreshrelay/refreshrelay/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Verify version information, logging and configuration so the relay can start.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", apperrors.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", apperrors.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", err)
			return
		}
		log.Info("✅ Configuration loaded", zap.String("config_file", config.ConfigFileUsed()))

		opts := buildRelayOptions(cfg)
		if opts.Resolver == nil || opts.Resolver.Fetcher == nil {
			ExitWithCode(log, foundry.ExitConfigInvalid, "Resolver not configured", apperrors.NewConfigInvalidError("Resolver not configured"))
			return
		}
		log.Info("✅ Resolver ready", zap.Int("redirect_status", opts.RedirectStatus))

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
