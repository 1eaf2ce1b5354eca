// Package config loads process configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/PermAdut/autoservice-notify/internal/reminder"
	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/mailer/resend"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/redis"
	"github.com/PermAdut/autoservice-notify/pkg/scheduler"
	"github.com/PermAdut/autoservice-notify/pkg/sms/twilio"
	"github.com/PermAdut/autoservice-notify/pkg/worker"
)

var (
	ErrInvalid         = errors.New("config: invalid configuration")
	ErrUnknownBackend  = errors.New("config: unknown queue backend")
	ErrMissingDatabase = errors.New("config: DATABASE_CONN_URL is required")
	ErrMissingRedis    = errors.New("config: REDIS_URL is required")
)

// Backend selects the queue store implementation.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendSQLite   Backend = "sqlite"
	// BackendMemory is process local; producers and workers must share the process.
	BackendMemory Backend = "memory"
)

// UnmarshalText implements encoding.TextUnmarshaler for env parsing.
func (b *Backend) UnmarshalText(text []byte) error {
	v := Backend(strings.ToLower(strings.TrimSpace(string(text))))
	switch v {
	case BackendPostgres, BackendRedis, BackendSQLite, BackendMemory:
		*b = v
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownBackend, string(text))
}

// Queue configures the job store shared by every process.
type Queue struct {
	Backend     Backend       `env:"BACKEND" envDefault:"postgres"`
	SQLitePath  string        `env:"SQLITE_PATH" envDefault:"notify.db"`
	RedisPrefix string        `env:"REDIS_PREFIX" envDefault:"{notify}"`
	LeaseTTL    time.Duration `env:"LEASE_TTL" envDefault:"5m"`
	MaxAttempts int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	// First retry delay; later retries double it.
	BaseDelay     time.Duration `env:"BASE_DELAY" envDefault:"2s"`
	KeepCompleted int           `env:"KEEP_COMPLETED" envDefault:"100"`
	KeepFailed    int           `env:"KEEP_FAILED" envDefault:"500"`
}

// Options converts the config to store options.
func (q Queue) Options() []queue.Option {
	return []queue.Option{
		queue.WithLeaseTTL(q.LeaseTTL),
		queue.WithDefaultMaxAttempts(q.MaxAttempts),
		queue.WithBaseDelay(q.BaseDelay),
		queue.WithRetention(queue.Retention{Completed: q.KeepCompleted, Failed: q.KeepFailed}),
	}
}

// Reminders configures the reminder repository.
type Reminders struct {
	MileageMargin int `env:"MILEAGE_MARGIN" envDefault:"500"`
	Limit         int `env:"LIMIT" envDefault:"1000"`
}

// Options converts the config to repository options.
func (r Reminders) Options() []reminder.Option {
	return []reminder.Option{
		reminder.WithMileageMargin(r.MileageMargin),
		reminder.WithLimit(r.Limit),
	}
}

// Config is the full process configuration. Provider sections left empty
// select logging senders.
type Config struct {
	Env             string        `env:"APP_ENV" envDefault:"development"`
	OpsAddr         string        `env:"OPS_ADDR" envDefault:":8081"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`

	Log       logger.Config
	Queue     Queue `envPrefix:"QUEUE_"`
	Database  db.Config
	Redis     redis.Config
	Worker    worker.Config    `envPrefix:"WORKER_"`
	Scheduler scheduler.Config `envPrefix:"SCHEDULER_"`
	Reminders Reminders        `envPrefix:"REMINDER_"`
	Resend    resend.Config
	Twilio    twilio.Config
}

// Load parses the process environment.
func Load() (Config, error) {
	return parse(env.Options{})
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return Config{}, errors.Join(ErrInvalid, err)
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.Queue.Backend {
	case BackendPostgres:
		if c.Database.ConnectionString == "" {
			return errors.Join(ErrInvalid, ErrMissingDatabase)
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			return errors.Join(ErrInvalid, ErrMissingRedis)
		}
	}
	return nil
}

// RequireDatabase reports a missing database URL for processes that read
// business tables regardless of the queue backend.
func (c Config) RequireDatabase() error {
	if c.Database.ConnectionString == "" {
		return errors.Join(ErrInvalid, ErrMissingDatabase)
	}
	return nil
}

// EmailConfigured reports whether real email delivery is configured.
func (c Config) EmailConfigured() bool { return c.Resend.APIKey != "" }

// SMSConfigured reports whether real SMS delivery is configured.
func (c Config) SMSConfigured() bool {
	return c.Twilio.AccountSID != "" && c.Twilio.AuthToken != ""
}
