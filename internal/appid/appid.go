package appid

import (
	"context"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/appidentity"

	appidentityassets "github.com/ev119/erlocator/internal/assets/appidentity"
)

func init() {
	// Best-effort registration.
	//
	// Explicit identity overrides remain authoritative (Options.ExplicitPath and
	// FULMEN_APP_IDENTITY_PATH).
	_ = appidentity.RegisterEmbeddedIdentityYAML(appidentityassets.YAML)
}

// Default is the identity used when neither an identity file nor the embedded
// copy can be loaded.
func Default() *appidentity.Identity {
	return &appidentity.Identity{
		Vendor:      "ev119",
		BinaryName:  "erlocator",
		EnvPrefix:   "ERLOCATOR_",
		ConfigName:  "erlocator",
		Description: "Nearby emergency rooms with live bed availability",
	}
}

// Get returns the application identity. An explicit identity path that cannot
// be loaded is an error; otherwise failures fall back to Default.
func Get(ctx context.Context) (*appidentity.Identity, error) {
	identity, err := appidentity.Get(ctx)
	if err == nil && identity != nil {
		return identity, nil
	}
	if strings.TrimSpace(os.Getenv(appidentity.EnvIdentityPath)) != "" {
		return nil, err
	}
	return Default(), nil
}
