package queue

import (
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/clock"
)

// Store defaults.
const (
	DefaultLeaseTTL      = 5 * time.Minute
	DefaultMaxAttempts   = 3
	DefaultKeepCompleted = 100
	DefaultKeepFailed    = 500
)

// Retention bounds how many terminal jobs a store keeps.
// A non-positive value disables pruning for that state.
type Retention struct {
	Completed int
	Failed    int
}

// Config is shared by every Store implementation.
// Backends build it with NewConfig and must not mutate it afterwards.
type Config struct {
	Clock              clock.Clock
	Backoff            Backoff
	Retention          Retention
	LeaseTTL           time.Duration
	DefaultMaxAttempts int
}

// Option configures a Store.
type Option func(*Config)

// NewConfig returns the default store configuration modified by opts.
func NewConfig(opts ...Option) Config {
	cfg := Config{
		Clock:              clock.Real(),
		Backoff:            NewExponentialBackoff(),
		Retention:          Retention{Completed: DefaultKeepCompleted, Failed: DefaultKeepFailed},
		LeaseTTL:           DefaultLeaseTTL,
		DefaultMaxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Now returns the current time truncated to milliseconds, the precision every
// backend can persist.
func (c Config) Now() time.Time {
	return c.Clock.Now().UTC().Truncate(time.Millisecond)
}

// WithClock sets the time source used for scheduling, leases and backoff.
func WithClock(c clock.Clock) Option {
	return func(cfg *Config) {
		if c != nil {
			cfg.Clock = c
		}
	}
}

// WithBackoff replaces the retry delay policy.
func WithBackoff(b Backoff) Option {
	return func(cfg *Config) {
		if b != nil {
			cfg.Backoff = b
		}
	}
}

// WithBaseDelay keeps exponential backoff but changes its base delay.
func WithBaseDelay(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.Backoff = ExponentialBackoff{BaseDelay: d, MaxDelay: DefaultMaxDelay}
		}
	}
}

// WithLeaseTTL sets how long a lease lasts before it can be reclaimed.
func WithLeaseTTL(d time.Duration) Option {
	return func(cfg *Config) {
		if d > 0 {
			cfg.LeaseTTL = d
		}
	}
}

// WithDefaultMaxAttempts sets the attempt ceiling for jobs enqueued without one.
func WithDefaultMaxAttempts(n int) Option {
	return func(cfg *Config) {
		if n > 0 {
			cfg.DefaultMaxAttempts = n
		}
	}
}

// WithRetention sets how many completed and failed jobs survive pruning.
func WithRetention(r Retention) Option {
	return func(cfg *Config) {
		cfg.Retention = r
	}
}
