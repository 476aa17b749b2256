package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger writes human-oriented logs for one-shot commands.
	CLILogger *logging.Logger

	// ServerLogger writes JSON logs for the long-running gateway.
	ServerLogger *logging.Logger
)

// severities maps config and flag spellings onto logging severities.
var severities = map[string]string{
	"trace":   "TRACE",
	"debug":   "DEBUG",
	"info":    "INFO",
	"warn":    "WARN",
	"warning": "WARN",
	"error":   "ERROR",
}

// InitCLILogger installs CLILogger. verbose wins over level; an empty or
// unknown level keeps the CLI profile default.
func InitCLILogger(serviceName string, verbose bool, level ...string) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	requested := ""
	if len(level) > 0 {
		requested = severities[strings.ToLower(strings.TrimSpace(level[0]))]
	}
	switch {
	case verbose, requested == "DEBUG", requested == "TRACE":
		logger.SetLevel(logging.DEBUG)
	case requested == "WARN":
		logger.SetLevel(logging.WARN)
	case requested == "ERROR":
		logger.SetLevel(logging.ERROR)
	}

	CLILogger = logger
}

// InitServerLogger installs ServerLogger as a structured JSON logger on
// stderr. It is safe to call again on config reload.
func InitServerLogger(serviceName string, logLevel string, namespace ...string) {
	static := map[string]any{}
	if len(namespace) > 0 && namespace[0] != "" {
		static["namespace"] = namespace[0]
	}

	logger, err := logging.New(&logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  environment(),
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
	})
	if err != nil {
		fatal(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}

	ServerLogger = logger
}

// Logger returns the server logger when running as a server, else the CLI
// logger. It may be nil before initialization.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

func parseLogLevel(level string) string {
	if severity, ok := severities[strings.ToLower(strings.TrimSpace(level))]; ok {
		return severity
	}
	return "INFO"
}

// environment labels server logs; LINGUALENS_ENV overrides the default.
func environment() string {
	if env := strings.TrimSpace(os.Getenv("LINGUALENS_ENV")); env != "" {
		return env
	}
	return "production"
}

// fatal reports a logger setup failure on stderr and exits; no logger
// exists yet to report it through.
func fatal(code foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	if info, ok := foundry.GetExitCodeInfo(code); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		os.Exit(info.Code)
	}
	os.Exit(int(code))
}
