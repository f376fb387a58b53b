package main

import (
	"github.com/fulmenhq/gofulmen/foundry"

	"github.com/ev119/erlocator/internal/cmd"
	"github.com/ev119/erlocator/internal/server/handlers"
)

// Set via ldflags, e.g. -X main.version=1.0.0
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		// Commands log their own failures; this only maps the exit code.
		cmd.ExitWithCodeStderr(foundry.ExitFailure, "Command execution failed", err)
	}
}
