package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/exporters/autoexport"
	logGlobal "go.opentelemetry.io/otel/log/global"
	logSdk "go.opentelemetry.io/otel/sdk/log"

	"github.com/moonshotcommons/timelock/config"
)

// ParseLogLevel returns the slog level for a "logLevel" configuration value.
// An empty string maps to the info level.
func ParseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, config.NewConfigError("Invalid value '"+level+"' for 'logLevel'", "Invalid configuration")
	}
}

// InitLogsOpts contains options for the InitLogs method
type InitLogsOpts struct {
	// Log level: "debug", "info", "warn", "error", or an empty string (defaults to "info")
	Level string
	// If true, logs as JSON
	JSON bool
	// Destination for the console logs
	// Default: os.Stdout
	Out io.Writer

	Config     config.Base
	AppName    string
	AppVersion string
}

// InitLogs creates the slog logger for the app.
// Records are written to the console and sent to the OpenTelemetry log exporter selected with OTEL_LOGS_EXPORTER, which is "none" unless set.
func InitLogs(ctx context.Context, opts InitLogsOpts) (log *slog.Logger, shutdownFn func(ctx context.Context) error, err error) {
	level, err := ParseLogLevel(opts.Level)
	if err != nil {
		return nil, nil, err
	}

	handler := consoleHandler(opts.Out, level, opts.JSON)

	res, err := opts.Config.GetOtelResource(opts.AppName)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get OpenTelemetry resource: %w", err)
	}

	setEnvDefault("OTEL_LOGS_EXPORTER", "none")
	exp, err := autoexport.NewLogExporter(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OpenTelemetry log exporter: %w", err)
	}

	provider := logSdk.NewLoggerProvider(
		logSdk.WithProcessor(logSdk.NewBatchProcessor(exp)),
		logSdk.WithResource(res),
	)
	logGlobal.SetLoggerProvider(provider)

	// Fan out to the console and to OpenTelemetry
	handler = slog.NewMultiHandler(
		handler,
		otelslog.NewHandler(opts.AppName, otelslog.WithLoggerProvider(provider)),
	)

	log = slog.New(handler).With(
		slog.String("app", opts.AppName),
		slog.String("version", opts.AppVersion),
	)
	return log, provider.Shutdown, nil
}

func consoleHandler(out io.Writer, level slog.Level, asJSON bool) slog.Handler {
	if out == nil {
		out = os.Stdout
	}

	switch {
	case asJSON:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case isTerminal(out):
		// Colors only when writing to a TTY
		return tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.StampMilli,
		})
	default:
		return slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Sets an env var used by autoexport, unless the user already set it.
func setEnvDefault(key, value string) {
	if os.Getenv(key) == "" {
		_ = os.Setenv(key, value) //nolint:errcheck
	}
}
