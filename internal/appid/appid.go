// Package appid exposes the application identity (binary name, env prefix,
// config name) shared by the CLI, config loader, and server.
package appid

import (
	"context"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/refreshrelay/refreshrelay/internal/assets/appidentity"
)

func init() {
	// An explicit identity (FULMEN_APP_IDENTITY_PATH or a discovered
	// .fulmen/app.yaml) still wins over the embedded copy.
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Get returns the process-wide application identity.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	return appidentity.Get(ctx)
}

// EnvPrefix returns the identity's environment prefix with a trailing
// underscore, or fallback when no identity is available.
func EnvPrefix(ctx context.Context, fallback string) string {
	identity, err := Get(ctx)
	if err != nil || identity == nil || identity.EnvPrefix == "" {
		return fallback
	}
	prefix := identity.EnvPrefix
	if prefix[len(prefix)-1] != '_' {
		prefix += "_"
	}
	return prefix
}
