// Package scheduler periodically enqueues maintenance reminders that are
// coming due. It never delivers anything itself.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PermAdut/autoservice-notify/pkg/clock"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

const (
	DefaultSchedule  = "0 9 * * *"
	DefaultLookahead = 72 * time.Hour
)

var (
	ErrSourceRequired   = errors.New("scheduler: reminder source is required")
	ErrEnqueuerRequired = errors.New("scheduler: reminder enqueuer is required")
	ErrInvalidSchedule  = errors.New("scheduler: invalid cron schedule")
	ErrAlreadyRunning   = errors.New("scheduler: already running")
)

// ReminderSource lists reminders not yet sent that fall due before dueBefore.
type ReminderSource interface {
	DueReminders(ctx context.Context, dueBefore time.Time) ([]notify.MaintenanceReminder, error)
}

// ReminderEnqueuer is the part of notify.Producer the scheduler needs.
type ReminderEnqueuer interface {
	EnqueueMaintenanceReminder(ctx context.Context, r notify.MaintenanceReminder, opts ...queue.EnqueueOption) (string, error)
}

// Result summarizes one scan.
type Result struct {
	Scanned int
	// Enqueued includes reminders already pending, which dedup turns into no-ops.
	Enqueued int
	// Skipped counts reminders rejected by validation.
	Skipped int
}

// Config is the env-driven scheduler configuration.
type Config struct {
	Schedule   string        `env:"SCHEDULE" envDefault:"0 9 * * *"`
	TimeZone   string        `env:"TIMEZONE" envDefault:"UTC"`
	Lookahead  time.Duration `env:"LOOKAHEAD" envDefault:"72h"`
	RunOnStart bool          `env:"RUN_ON_START"`
}

// Options converts the config to scheduler options.
func (c Config) Options() ([]Option, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("scheduler: invalid time zone %q: %w", c.TimeZone, err)
	}
	return []Option{
		WithSchedule(c.Schedule),
		WithLocation(loc),
		WithLookahead(c.Lookahead),
		WithRunOnStart(c.RunOnStart),
	}, nil
}

type config struct {
	logger     *slog.Logger
	clock      clock.Clock
	location   *time.Location
	schedule   string
	lookahead  time.Duration
	runOnStart bool
}

// Option configures a Scheduler.
type Option func(*config)

// WithSchedule sets the cron expression (minute hour dom month dow).
// Default "0 9 * * *".
func WithSchedule(expr string) Option {
	return func(c *config) {
		if expr != "" {
			c.schedule = expr
		}
	}
}

// WithLocation sets the time zone the schedule is evaluated in. Default UTC.
func WithLocation(loc *time.Location) Option {
	return func(c *config) {
		if loc != nil {
			c.location = loc
		}
	}
}

// WithLookahead includes reminders due up to d from now. Default 72h.
func WithLookahead(d time.Duration) Option {
	return func(c *config) {
		if d >= 0 {
			c.lookahead = d
		}
	}
}

// WithRunOnStart scans once as soon as Run starts.
func WithRunOnStart(v bool) Option {
	return func(c *config) {
		c.runOnStart = v
	}
}

func WithClock(clk clock.Clock) Option {
	return func(c *config) {
		if clk != nil {
			c.clock = clk
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

// Scheduler scans for due reminders on a cron schedule.
type Scheduler struct {
	source   ReminderSource
	enqueuer ReminderEnqueuer
	schedule cron.Schedule
	cfg      *config
	running  chan struct{}
}

// New creates a Scheduler. The cron expression is validated here.
func New(source ReminderSource, enqueuer ReminderEnqueuer, opts ...Option) (*Scheduler, error) {
	if source == nil {
		return nil, ErrSourceRequired
	}
	if enqueuer == nil {
		return nil, ErrEnqueuerRequired
	}

	cfg := &config{
		logger:    logger.NewNope(),
		clock:     clock.Real(),
		location:  time.UTC,
		schedule:  DefaultSchedule,
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	schedule, err := parseSchedule(cfg.schedule)
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		source:   source,
		enqueuer: enqueuer,
		schedule: schedule,
		cfg:      cfg,
		running:  make(chan struct{}, 1),
	}, nil
}

func parseSchedule(expr string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidSchedule, expr, err)
	}
	return schedule, nil
}

// Next returns the first scheduled scan after t.
func (s *Scheduler) Next(t time.Time) time.Time {
	return s.schedule.Next(t.In(s.cfg.location))
}

// RunOnce enqueues every reminder due within the lookahead window.
// Invalid reminders are skipped; any other enqueue error aborts the scan.
func (s *Scheduler) RunOnce(ctx context.Context) (Result, error) {
	now := s.cfg.clock.Now()
	dueBefore := now.Add(s.cfg.lookahead)

	reminders, err := s.source.DueReminders(ctx, dueBefore)
	if err != nil {
		return Result{}, fmt.Errorf("scheduler: list due reminders: %w", err)
	}

	res := Result{Scanned: len(reminders)}
	for _, r := range reminders {
		if _, err := s.enqueuer.EnqueueMaintenanceReminder(ctx, r); err != nil {
			if errors.Is(err, notify.ErrValidation) {
				res.Skipped++
				s.cfg.logger.WarnContext(ctx, "skipping invalid reminder",
					slog.String("reminder_id", r.ReminderID),
					slog.Any("error", err),
				)
				continue
			}
			return res, fmt.Errorf("scheduler: enqueue reminder %s: %w", r.ReminderID, err)
		}
		res.Enqueued++
	}

	s.cfg.logger.InfoContext(ctx, "reminder scan finished",
		slog.Time("due_before", dueBefore),
		slog.Int("scanned", res.Scanned),
		slog.Int("enqueued", res.Enqueued),
		slog.Int("skipped", res.Skipped),
	)
	return res, nil
}

// Run scans on the schedule until ctx ends. A failed scan is logged and the
// next tick retries; dedup keeps retried scans from duplicating reminders.
func (s *Scheduler) Run(ctx context.Context) error {
	select {
	case s.running <- struct{}{}:
		defer func() { <-s.running }()
	default:
		return ErrAlreadyRunning
	}

	s.cfg.logger.InfoContext(ctx, "scheduler started",
		slog.String("schedule", s.cfg.schedule),
		slog.String("location", s.cfg.location.String()),
		slog.Duration("lookahead", s.cfg.lookahead),
	)

	if s.cfg.runOnStart {
		s.scan(ctx)
	}

	for {
		now := s.cfg.clock.Now()
		next := s.Next(now)

		select {
		case <-ctx.Done():
			s.cfg.logger.InfoContext(ctx, "scheduler stopped")
			return nil
		case <-s.cfg.clock.After(next.Sub(now)):
		}
		s.scan(ctx)
	}
}

func (s *Scheduler) scan(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.cfg.logger.ErrorContext(ctx, "reminder scan failed", slog.Any("error", err))
	}
}

// Healthcheck fails while the scheduler is not running.
func Healthcheck(s *Scheduler) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s == nil || len(s.running) == 0 {
			return errors.New("scheduler: not running")
		}
		return nil
	}
}
