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

	appidentityassets "github.com/ev119/erlocator/internal/assets/appidentity"
)

// resetIdentity clears gofulmen's process-wide identity cache and registers
// the embedded copy again.
func resetIdentity(t *testing.T) {
	t.Helper()
	appidentity.Reset()
	require.NoError(t, appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML))
	t.Cleanup(appidentity.Reset)
}

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}

func TestGetUsesEmbeddedIdentityOutsideRepo(t *testing.T) {
	resetIdentity(t)
	t.Setenv(appidentity.EnvIdentityPath, "")
	chdirTemp(t)

	identity, err := Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "erlocator", identity.BinaryName)
	assert.Equal(t, "ERLOCATOR_", identity.EnvPrefix)
}

func TestGetFailsOnMissingExplicitPath(t *testing.T) {
	resetIdentity(t)
	t.Setenv(appidentity.EnvIdentityPath, filepath.Join(t.TempDir(), "app.yaml"))

	_, err := Get(context.Background())
	require.Error(t, err)

	var notFound *appidentity.NotFoundError
	assert.True(t, errors.As(err, &notFound), "got %T", err)
}

func TestDefaultMatchesEmbeddedIdentity(t *testing.T) {
	resetIdentity(t)
	t.Setenv(appidentity.EnvIdentityPath, "")
	chdirTemp(t)

	embedded, err := Get(context.Background())
	require.NoError(t, err)

	fallback := Default()
	assert.Equal(t, embedded.BinaryName, fallback.BinaryName)
	assert.Equal(t, embedded.EnvPrefix, fallback.EnvPrefix)
	assert.Equal(t, "erlocator", fallback.ConfigName)
}
