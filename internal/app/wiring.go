package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	appconfig "github.com/PermAdut/autoservice-notify/internal/config"
	"github.com/PermAdut/autoservice-notify/internal/reminder"
	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/mailer"
	"github.com/PermAdut/autoservice-notify/pkg/mailer/resend"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/queue/memory"
	"github.com/PermAdut/autoservice-notify/pkg/queue/postgres"
	redisstore "github.com/PermAdut/autoservice-notify/pkg/queue/redis"
	"github.com/PermAdut/autoservice-notify/pkg/queue/sqlite"
	redisconn "github.com/PermAdut/autoservice-notify/pkg/redis"
	"github.com/PermAdut/autoservice-notify/pkg/sms"
	"github.com/PermAdut/autoservice-notify/pkg/sms/twilio"
)

func noop(context.Context) error { return nil }

// OpenStore opens the configured queue backend. The returned hook releases
// everything the store holds, including a Redis client.
func OpenStore(ctx context.Context, cfg appconfig.Config, log *slog.Logger, opts ...queue.Option) (queue.Store, func(context.Context) error, error) {
	opts = append(cfg.Queue.Options(), opts...)

	switch cfg.Queue.Backend {
	case appconfig.BackendPostgres:
		store, err := postgres.Open(ctx, cfg.Database, log, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, closeHook(store), nil

	case appconfig.BackendRedis:
		client, err := redisconn.Connect(ctx, cfg.Redis, log)
		if err != nil {
			return nil, nil, queue.Unavailable(err)
		}
		store := redisstore.New(client, cfg.Queue.RedisPrefix, opts...)
		closeClient := redisconn.Shutdown(client)
		return store, func(ctx context.Context) error {
			_ = store.Close()
			return closeClient(ctx)
		}, nil

	case appconfig.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Queue.SQLitePath, log, opts...)
		if err != nil {
			return nil, nil, err
		}
		return store, closeHook(store), nil

	case appconfig.BackendMemory:
		log.WarnContext(ctx, "using in-memory queue: jobs are lost on exit and not shared between processes")
		store := memory.New(opts...)
		return store, closeHook(store), nil
	}
	return nil, nil, fmt.Errorf("%w: %q", appconfig.ErrUnknownBackend, cfg.Queue.Backend)
}

func closeHook(store queue.Store) func(context.Context) error {
	return func(context.Context) error { return store.Close() }
}

// OpenReminders returns the reminder repository over the business database.
// A Postgres queue store lends its pool; otherwise a pool is opened and the
// hook closes it.
func OpenReminders(ctx context.Context, cfg appconfig.Config, store queue.Store, log *slog.Logger) (*reminder.Repository, *pgxpool.Pool, func(context.Context) error, error) {
	opts := append(cfg.Reminders.Options(), reminder.WithLogger(log))

	if pg, ok := store.(*postgres.Store); ok {
		return reminder.New(pg.Pool(), opts...), pg.Pool(), noop, nil
	}

	if err := cfg.RequireDatabase(); err != nil {
		return nil, nil, nil, err
	}
	pool, err := db.Connect(ctx, cfg.Database, log)
	if err != nil {
		return nil, nil, nil, err
	}
	return reminder.New(pool, opts...), pool, db.Shutdown(pool), nil
}

// NewSenders builds the delivery providers. Unconfigured providers fall back
// to log senders so development setups run without credentials.
func NewSenders(cfg appconfig.Config, log *slog.Logger) (sms.Sender, mailer.Sender, error) {
	var smsSender sms.Sender = sms.NewLogSender(log)
	if cfg.SMSConfigured() {
		s, err := twilio.New(cfg.Twilio)
		if err != nil {
			return nil, nil, err
		}
		smsSender = s
	} else {
		log.Warn("twilio is not configured: sms messages are logged, not sent")
	}

	var mailSender mailer.Sender = mailer.NewLogSender(log)
	from := cfg.Resend.SenderEmail
	if cfg.EmailConfigured() {
		s, err := resend.New(cfg.Resend)
		if err != nil {
			return nil, nil, err
		}
		mailSender = s
		from = cfg.Resend.From()
	} else {
		log.Warn("resend is not configured: emails are logged, not sent")
	}

	var mailOpts []mailer.Option
	if from != "" {
		mailOpts = append(mailOpts, mailer.WithFrom(from))
	}
	return sms.New(smsSender), mailer.New(mailSender, mailOpts...), nil
}
