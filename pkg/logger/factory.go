package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config selects the stdout handler. Populated by caarlos0/env.
type Config struct {
	Level  slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	Format string     `env:"LOG_FORMAT" envDefault:"json"`
	Sentry SentryConfig
}

// New creates a JSON logger at info level on stdout with optional context extractors.
func New(extractors ...ContextExtractor) *slog.Logger {
	return slog.New(NewLogHandlerDecorator(newHandler(os.Stdout, Config{}), extractors...))
}

// NewFromConfig builds the process logger: stdout in the configured format,
// plus Sentry when cfg.Sentry.DSN is set.
func NewFromConfig(cfg Config, extractors ...ContextExtractor) *slog.Logger {
	stdout := newHandler(os.Stdout, cfg)
	if cfg.Sentry.DSN == "" {
		return slog.New(NewLogHandlerDecorator(stdout, extractors...))
	}
	return newWithSentry(stdout, cfg.Sentry, extractors...)
}

func newHandler(w io.Writer, cfg Config) slog.Handler {
	opts := &slog.HandlerOptions{Level: cfg.Level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.NewTextHandler(w, opts)
	}
	return slog.NewJSONHandler(w, opts)
}
