package handlers

import (
	"net/http"
	"runtime"

	"github.com/fulmenhq/gofulmen/appidentity"
	"github.com/fulmenhq/gofulmen/crucible"

	"github.com/ev119/erlocator/internal/appid"
)

// BuildInfo is stamped into the binary by the linker.
type BuildInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildDate string `json:"build_date"`
}

var (
	build       = BuildInfo{Version: "dev", Commit: "unknown", BuildDate: "unknown"}
	appIdentity *appidentity.Identity
)

// SetVersionInfo records the linker-provided build metadata.
func SetVersionInfo(version, commit, buildDate string) {
	build = BuildInfo{Version: version, Commit: commit, BuildDate: buildDate}
}

// SetAppIdentity overrides the identity reported by /version.
func SetAppIdentity(identity *appidentity.Identity) {
	appIdentity = identity
}

// VersionResponse is the /version body.
type VersionResponse struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	BuildInfo
	GoVersion    string            `json:"go_version"`
	Platform     string            `json:"platform"`
	Dependencies map[string]string `json:"dependencies"`
}

// VersionHandler reports build and identity metadata.
func VersionHandler(w http.ResponseWriter, _ *http.Request) {
	identity := appIdentity
	if identity == nil {
		identity = appid.Default()
	}
	deps := crucible.GetVersion()

	writeJSON(w, VersionResponse{
		Name:        identity.BinaryName,
		Description: identity.Description,
		BuildInfo:   build,
		GoVersion:   runtime.Version(),
		Platform:    runtime.GOOS + "/" + runtime.GOARCH,
		Dependencies: map[string]string{
			"gofulmen": deps.Gofulmen,
			"crucible": deps.Crucible,
		},
	})
}
