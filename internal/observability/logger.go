package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger writes human-oriented output for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger writes JSON lines for the long-running HTTP service.
	ServerLogger *logging.Logger
)

// EnvironmentVariable names the deployment environment stamped on server logs.
const EnvironmentVariable = "ERLOCATOR_ENV"

var logLevels = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger sets CLILogger. Verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "cli logger", err)
	}
	if verbose {
		logger.SetLevel(logging.DEBUG)
	}
	CLILogger = logger
}

// InitServerLogger sets ServerLogger. The optional namespace becomes a static
// field on every entry.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := logging.New(serverLoggerConfig(serviceName, logLevel, ns))
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "server logger", err)
	}
	ServerLogger = logger
}

func serverLoggerConfig(service, level, namespace string) *logging.LoggerConfig {
	static := map[string]any{}
	if namespace != "" {
		static["namespace"] = namespace
	}
	env := strings.TrimSpace(os.Getenv(EnvironmentVariable))
	if env == "" {
		env = "production"
	}

	return &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(level),
		Service:      service,
		Environment:  env,
		StaticFields: static,
		Middleware: []logging.MiddlewareConfig{
			{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
		},
		Sinks: []logging.SinkConfig{
			{
				Type:    "console",
				Format:  "json",
				Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
			},
		},
		EnableCaller:     true,
		EnableStacktrace: true,
	}
}

// PipelineLogger returns the logger handed to the search pipeline: the server
// logger when serving, otherwise the CLI logger. It may be nil.
func PipelineLogger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

// parseLogLevel maps a config level to a gofulmen severity. Unknown values
// fall back to INFO.
func parseLogLevel(level string) string {
	if sev, ok := logLevels[strings.ToLower(strings.TrimSpace(level))]; ok {
		return sev
	}
	return "INFO"
}

// fatal reports a logger bootstrap failure on stderr and exits. No logger
// exists yet at this point.
func fatal(code foundry.ExitCode, what string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: initialize %s: %v\n", what, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
