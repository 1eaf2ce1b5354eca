package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/PermAdut/autoservice-notify/pkg/clock"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/render"
)

const (
	DefaultConcurrency           = 10
	DefaultPollInterval          = time.Second
	DefaultReclaimInterval       = 30 * time.Second
	DefaultPruneInterval         = 5 * time.Minute
	DefaultDeliveryTimeout       = 30 * time.Second
	DefaultStorageErrorThreshold = 10
)

// ReminderMarker records that a maintenance reminder was delivered.
// Implementations must be idempotent.
type ReminderMarker interface {
	MarkReminderSent(ctx context.Context, reminderID string) error
}

// ReminderMarkerFunc adapts a function to ReminderMarker.
type ReminderMarkerFunc func(ctx context.Context, reminderID string) error

func (f ReminderMarkerFunc) MarkReminderSent(ctx context.Context, reminderID string) error {
	return f(ctx, reminderID)
}

// Renderer produces the messages of templated notifications.
type Renderer interface {
	Render(p notify.Payload) (*render.Message, error)
}

// Config is the env-driven worker configuration.
// Embed it in the process config for parsing with caarlos0/env.
type Config struct {
	ID                    string        `env:"ID"`
	Concurrency           int           `env:"CONCURRENCY" envDefault:"10"`
	BatchSize             int           `env:"BATCH_SIZE"`
	PollInterval          time.Duration `env:"POLL_INTERVAL" envDefault:"1s"`
	ReclaimInterval       time.Duration `env:"RECLAIM_INTERVAL" envDefault:"30s"`
	PruneInterval         time.Duration `env:"PRUNE_INTERVAL" envDefault:"5m"`
	DeliveryTimeout       time.Duration `env:"DELIVERY_TIMEOUT" envDefault:"30s"`
	StorageErrorThreshold int           `env:"STORAGE_ERROR_THRESHOLD" envDefault:"10"`
	ChannelPolicy         ChannelPolicy `env:"CHANNEL_POLICY" envDefault:"any"`
	Kinds                 []queue.Kind  `env:"KINDS" envSeparator:","`
}

// Options converts the config to worker options. Zero values keep defaults.
func (c Config) Options() []Option {
	return []Option{
		WithWorkerID(c.ID),
		WithConcurrency(c.Concurrency),
		WithBatchSize(c.BatchSize),
		WithPollInterval(c.PollInterval),
		WithReclaimInterval(c.ReclaimInterval),
		WithPruneInterval(c.PruneInterval),
		WithDeliveryTimeout(c.DeliveryTimeout),
		WithStorageErrorThreshold(c.StorageErrorThreshold),
		WithChannelPolicy(c.ChannelPolicy),
		WithKinds(c.Kinds...),
	}
}

type config struct {
	logger   *slog.Logger
	clock    clock.Clock
	renderer Renderer
	marker   ReminderMarker
	workerID string
	kinds    []queue.Kind
	policy   ChannelPolicy

	concurrency           int
	batchSize             int
	storageErrorThreshold int

	pollInterval    time.Duration
	reclaimInterval time.Duration
	pruneInterval   time.Duration
	deliveryTimeout time.Duration
}

func newConfig(opts ...Option) *config {
	cfg := &config{
		logger:                logger.NewNope(),
		clock:                 clock.Real(),
		workerID:              "worker-" + uuid.NewString(),
		policy:                AnyChannel,
		concurrency:           DefaultConcurrency,
		storageErrorThreshold: DefaultStorageErrorThreshold,
		pollInterval:          DefaultPollInterval,
		reclaimInterval:       DefaultReclaimInterval,
		pruneInterval:         DefaultPruneInterval,
		deliveryTimeout:       DefaultDeliveryTimeout,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.renderer == nil {
		cfg.renderer = render.New()
	}
	if cfg.batchSize <= 0 || cfg.batchSize > cfg.concurrency {
		cfg.batchSize = cfg.concurrency
	}
	return cfg
}

// Option configures a Worker.
type Option func(*config)

// WithLogger sets the logger. Default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClock sets the time source for poll and maintenance intervals.
func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// WithRenderer replaces the built-in templates.
func WithRenderer(r Renderer) Option {
	return func(c *config) {
		if r != nil {
			c.renderer = r
		}
	}
}

// WithReminderMarker is called after a maintenance reminder is delivered.
func WithReminderMarker(m ReminderMarker) Option {
	return func(c *config) {
		c.marker = m
	}
}

// WithWorkerID sets the lease owner id. Default is "worker-" plus a random uuid.
func WithWorkerID(id string) Option {
	return func(c *config) {
		if id != "" {
			c.workerID = id
		}
	}
}

// WithKinds restricts the worker to the given job kinds. No kinds means all.
func WithKinds(kinds ...queue.Kind) Option {
	return func(c *config) {
		c.kinds = append([]queue.Kind(nil), kinds...)
	}
}

// WithChannelPolicy sets how channel failures of templated notifications
// affect the job. Default AnyChannel.
func WithChannelPolicy(p ChannelPolicy) Option {
	return func(c *config) {
		c.policy = p
	}
}

// WithConcurrency bounds the number of jobs processed at once. Default 10.
func WithConcurrency(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

// WithBatchSize caps jobs per lease call. It never exceeds concurrency.
func WithBatchSize(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.batchSize = n
		}
	}
}

// WithPollInterval sets the wait after an empty lease. Default 1s.
func WithPollInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithReclaimInterval sets how often expired leases are reclaimed. Default 30s.
func WithReclaimInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.reclaimInterval = d
		}
	}
}

// WithPruneInterval sets how often terminal jobs are pruned. Default 5m.
func WithPruneInterval(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.pruneInterval = d
		}
	}
}

// WithDeliveryTimeout bounds each provider call. Default 30s.
func WithDeliveryTimeout(d time.Duration) Option {
	return func(c *config) {
		if d > 0 {
			c.deliveryTimeout = d
		}
	}
}

// WithStorageErrorThreshold sets how many consecutive store failures end Run.
// Default 10.
func WithStorageErrorThreshold(n int) Option {
	return func(c *config) {
		if n > 0 {
			c.storageErrorThreshold = n
		}
	}
}
