package logger

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/getsentry/sentry-go"
	sentryslog "github.com/getsentry/sentry-go/slog"
)

// SentryConfig holds Sentry integration configuration.
type SentryConfig struct {
	DSN         string `env:"SENTRY_DSN"`
	Environment string `env:"SENTRY_ENVIRONMENT" envDefault:"production"`
	Release     string `env:"SENTRY_RELEASE"`
	// Lowest level stored as Sentry logs. Errors always create issues.
	MinLevel slog.Level `env:"SENTRY_MIN_LEVEL" envDefault:"WARN"`
}

// NewWithSentry creates a logger that sends logs to both stdout and Sentry.
// An empty DSN logs to stdout only.
func NewWithSentry(cfg SentryConfig, extractors ...ContextExtractor) *slog.Logger {
	stdout := newHandler(os.Stdout, Config{})
	if cfg.DSN == "" {
		return slog.New(NewLogHandlerDecorator(stdout, extractors...))
	}
	return newWithSentry(stdout, cfg, extractors...)
}

func newWithSentry(stdout slog.Handler, cfg SentryConfig, extractors ...ContextExtractor) *slog.Logger {
	if err := sentry.Init(sentry.ClientOptions{
		Dsn:         cfg.DSN,
		Environment: cfg.Environment,
		Release:     cfg.Release,
		EnableLogs:  true,
	}); err != nil {
		slog.New(stdout).Error("failed to initialize Sentry", slog.String("error", err.Error()))
		return slog.New(NewLogHandlerDecorator(stdout, extractors...))
	}

	sentryHandler := sentryslog.Option{
		EventLevel: []slog.Level{slog.LevelError},
		LogLevel:   sentryLogLevels(cfg.MinLevel),
	}.NewSentryHandler(context.Background())

	// Extractors run before the fan-out so both destinations see job attributes.
	return slog.New(NewLogHandlerDecorator(newMultiHandler(stdout, sentryHandler), extractors...))
}

func sentryLogLevels(minLevel slog.Level) []slog.Level {
	var levels []slog.Level
	for _, l := range []slog.Level{slog.LevelDebug, slog.LevelInfo, slog.LevelWarn, slog.LevelError} {
		if l >= minLevel {
			levels = append(levels, l)
		}
	}
	return levels
}

// FlushSentry returns a shutdown hook that delivers buffered Sentry events.
func FlushSentry(timeout time.Duration) func(context.Context) error {
	return func(context.Context) error {
		sentry.Flush(timeout)
		return nil
	}
}
