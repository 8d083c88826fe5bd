package appid

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appidentityassets "github.com/refreshrelay/refreshrelay/internal/assets/appidentity"
)

func prepareIdentityForTest(t *testing.T) {
	t.Helper()

	// gofulmen caches identity and the embedded registration per process.
	appidentity.Reset()
	require.NoError(t, appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML))

	t.Cleanup(func() { appidentity.Reset() })
}

func TestGetEmbeddedIdentityOutsideRepo(t *testing.T) {
	prepareIdentityForTest(t)
	t.Setenv(appidentity.EnvIdentityPath, "")

	oldWD, err := os.Getwd()
	require.NoError(t, err)
	t.Cleanup(func() { _ = os.Chdir(oldWD) })
	require.NoError(t, os.Chdir(t.TempDir()))

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "refreshrelay", identity.BinaryName)
	assert.Equal(t, "REFRESHRELAY_", identity.EnvPrefix)
	assert.Equal(t, "refreshrelay", identity.ConfigName)
	assert.Equal(t, "REFRESHRELAY_", EnvPrefix(context.Background(), "FALLBACK_"))
}

func TestGetEnvVarRemainsAuthoritative(t *testing.T) {
	prepareIdentityForTest(t)

	missing := filepath.Join(t.TempDir(), "missing-app.yaml")
	t.Setenv(appidentity.EnvIdentityPath, missing)

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	assert.True(t, errors.As(err, &notFound), "expected NotFoundError, got %T: %v", err, err)
	assert.Equal(t, "FALLBACK_", EnvPrefix(context.Background(), "FALLBACK_"))
}
