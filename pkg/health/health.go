package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/logger"
)

const (
	defaultTimeout = 5 * time.Second

	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// CheckFunc matches the Healthcheck closures of the db, redis, queue and
// worker packages.
type CheckFunc func(ctx context.Context) error

// Checks maps a component name to its check.
type Checks map[string]CheckFunc

// Response is the JSON body of the readiness endpoint.
type Response struct {
	Checks map[string]Check `json:"checks,omitempty"`
	Status string           `json:"status"`
}

// Check is the outcome of one named check.
type Check struct {
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
	Duration string `json:"duration"`

	err error
}

type config struct {
	logger  *slog.Logger
	timeout time.Duration
}

// Option configures health check behavior.
type Option func(*config)

// WithTimeout bounds the whole set of checks. Default 5s.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets the logger for failed checks.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		timeout: defaultTimeout,
		logger:  logger.NewNope(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Run executes checks and returns nil when all pass. Otherwise the error
// matches ErrCheckFailed, and ErrCheckTimeout when a check ran out of time.
func Run(ctx context.Context, checks Checks, opts ...Option) error {
	resp := runChecks(ctx, checks, newConfig(opts...))
	if resp.Status == StatusHealthy {
		return nil
	}

	names := make([]string, 0, len(resp.Checks))
	for name := range resp.Checks {
		names = append(names, name)
	}
	sort.Strings(names)

	errs := []error{ErrCheckFailed}
	for _, name := range names {
		if c := resp.Checks[name]; c.err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, c.err))
		}
	}
	return errors.Join(errs...)
}

// runChecks executes all checks in parallel under one timeout.
func runChecks(ctx context.Context, checks Checks, cfg *config) *Response {
	if len(checks) == 0 {
		return &Response{Status: StatusHealthy}
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]Check, len(checks))
		failed  bool
	)

	for name, check := range checks {
		wg.Go(func() {
			start := time.Now()
			err := check(ctx)
			if err == nil && ctx.Err() != nil {
				err = ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				err = errors.Join(ErrCheckTimeout, err)
			}

			result := Check{Status: StatusHealthy, Duration: time.Since(start).Round(time.Millisecond).String()}
			if err != nil {
				result.Status = StatusUnhealthy
				result.Error = err.Error()
				result.err = err
				cfg.logger.WarnContext(ctx, "health check failed",
					slog.String("check", name),
					slog.Any("error", err),
				)
			}

			mu.Lock()
			results[name] = result
			failed = failed || err != nil
			mu.Unlock()
		})
	}
	wg.Wait()

	status := StatusHealthy
	if failed {
		status = StatusUnhealthy
	}
	return &Response{Status: status, Checks: results}
}
