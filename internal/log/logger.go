package log

import (
	"log/slog"
	"os"
	"strings"
)

// Component names used across the application.
const (
	ComponentApp      = "app"
	ComponentHTTP     = "http"
	ComponentStorage  = "storage"
	ComponentSnapshot = "snapshot"
	ComponentWizard   = "wizard"
	ComponentCatalog  = "catalog"
	ComponentImport   = "import"
	ComponentAMQP     = "amqp"
	ComponentWorker   = "worker"
	ComponentExport   = "export"
)

// Setup configures the process-wide default slog logger. Level is read from
// the LOG_LEVEL environment variable (debug, info, warn, error).
func Setup() *slog.Logger {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: levelFromEnv(),
	}))
	slog.SetDefault(logger)
	return logger
}

// WithComponent returns the default logger scoped to a component name.
func WithComponent(component string) *slog.Logger {
	return slog.Default().With("component", component)
}

func levelFromEnv() slog.Level {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL"))) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
