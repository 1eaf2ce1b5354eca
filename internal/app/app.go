// Package app runs notification processes: long-running components, an ops
// HTTP server and ordered shutdown hooks.
package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PermAdut/autoservice-notify/pkg/health"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

const (
	defaultAddress           = ":8081"
	defaultShutdownTimeout   = 30 * time.Second
	defaultReadHeaderTimeout = 5 * time.Second
	defaultReadTimeout       = 10 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 60 * time.Second
)

// ErrNoComponents is returned by Run without any component to run.
var ErrNoComponents = errors.New("app: no components configured")

// Component is a blocking unit of work. It must return nil when ctx is
// cancelled. Returning for any other reason stops the process.
type Component func(ctx context.Context) error

type component struct {
	name string
	run  Component
}

// Option configures Run.
type Option func(*config)

type config struct {
	logger          *slog.Logger
	address         string
	shutdownTimeout time.Duration
	baseCtx         context.Context
	store           queue.Store
	components      []component
	checks          health.Checks
	shutdownHooks   []func(context.Context) error
	listener        net.Listener
}

// WithLogger sets the process logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithAddress sets the ops server address. Default ":8081".
func WithAddress(addr string) Option {
	return func(c *config) {
		if addr != "" {
			c.address = addr
		}
	}
}

// WithListener serves ops traffic on ln instead of listening on the address.
func WithListener(ln net.Listener) Option {
	return func(c *config) {
		c.listener = ln
	}
}

// WithShutdownTimeout bounds the ops server shutdown and every hook together.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithContext sets the parent of the signal-aware context.
func WithContext(ctx context.Context) Option {
	return func(c *config) {
		if ctx != nil {
			c.baseCtx = ctx
		}
	}
}

// WithStore exposes queue stats and job listings on the ops server and adds
// a "queue" readiness check.
func WithStore(s queue.Store) Option {
	return func(c *config) {
		if s != nil {
			c.store = s
			c.checks["queue"] = queue.Healthcheck(s)
		}
	}
}

// WithComponent registers a component started after the ops server.
func WithComponent(name string, fn Component) Option {
	return func(c *config) {
		if fn != nil {
			c.components = append(c.components, component{name: name, run: fn})
		}
	}
}

// WithHealthCheck adds a named readiness check.
func WithHealthCheck(name string, fn health.CheckFunc) Option {
	return func(c *config) {
		if name != "" && fn != nil {
			c.checks[name] = fn
		}
	}
}

// WithShutdownHook registers cleanup run after every component returned.
// Hooks run in registration order.
func WithShutdownHook(fn func(context.Context) error) Option {
	return func(c *config) {
		if fn != nil {
			c.shutdownHooks = append(c.shutdownHooks, fn)
		}
	}
}

// Run blocks until SIGINT, SIGTERM, cancellation of the base context or the
// first component that returns. A component error is returned joined with
// any shutdown hook errors.
func Run(opts ...Option) error {
	cfg := &config{
		logger:          logger.NewNope(),
		address:         defaultAddress,
		shutdownTimeout: defaultShutdownTimeout,
		baseCtx:         context.Background(),
		checks:          health.Checks{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if len(cfg.components) == 0 {
		return ErrNoComponents
	}
	log := cfg.logger

	sigCtx, stopSignals := signal.NotifyContext(cfg.baseCtx, os.Interrupt, syscall.SIGTERM)
	defer stopSignals()
	ctx, stop := context.WithCancel(sigCtx)
	defer stop()

	ln := cfg.listener
	if ln == nil {
		var err error
		if ln, err = net.Listen("tcp", cfg.address); err != nil {
			return errors.Join(err, runHooks(cfg))
		}
	}

	server := &http.Server{
		Handler:           opsRouter(cfg),
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		ReadTimeout:       defaultReadTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.InfoContext(ctx, "ops server starting", slog.String("address", ln.Addr().String()))
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	for _, c := range cfg.components {
		g.Go(func() error {
			defer stop()
			log.InfoContext(gctx, "component starting", slog.String("component", c.name))
			if err := c.run(gctx); err != nil {
				log.ErrorContext(gctx, "component failed",
					slog.String("component", c.name),
					slog.Any("error", err),
				)
				return err
			}
			log.InfoContext(gctx, "component stopped", slog.String("component", c.name))
			return nil
		})
	}

	err := g.Wait()
	log.Info("shutting down")
	if hookErr := runHooks(cfg); hookErr != nil {
		err = errors.Join(err, hookErr)
	}
	if err != nil {
		log.Error("shutdown completed with errors", slog.Any("error", err))
		return err
	}
	log.Info("shutdown completed")
	return nil
}

func runHooks(cfg *config) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.shutdownTimeout)
	defer cancel()

	var errs []error
	for _, hook := range cfg.shutdownHooks {
		if err := hook(ctx); err != nil {
			cfg.logger.Error("shutdown hook failed", slog.Any("error", err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
