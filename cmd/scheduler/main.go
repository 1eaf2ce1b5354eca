// Command scheduler scans the business database for due maintenance
// reminders on a cron schedule and enqueues them.
//
// With -once it runs a single scan and exits, for use under an external cron.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/PermAdut/autoservice-notify/internal/app"
	"github.com/PermAdut/autoservice-notify/internal/config"
	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/scheduler"
)

func main() {
	once := flag.Bool("once", false, "run a single scan and exit")
	flag.Parse()

	if err := run(*once); err != nil {
		fmt.Fprintln(os.Stderr, "scheduler:", err)
		os.Exit(1)
	}
}

func run(once bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}
	log := logger.NewFromConfig(cfg.Log, logger.DefaultExtractors()...).
		With(slog.String("service", "notify-scheduler"), slog.String("env", cfg.Env))

	ctx := context.Background()
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	repo, pool, closePool, err := app.OpenReminders(ctx, cfg, store, log)
	if err != nil {
		_ = closeStore(ctx)
		return err
	}

	schedOpts, err := cfg.Scheduler.Options()
	if err != nil {
		_ = closePool(ctx)
		_ = closeStore(ctx)
		return err
	}
	producer := notify.NewProducer(store, notify.WithLogger(log))
	sched, err := scheduler.New(repo, producer, append(schedOpts, scheduler.WithLogger(log))...)
	if err != nil {
		_ = closePool(ctx)
		_ = closeStore(ctx)
		return err
	}

	if once {
		defer closeStore(ctx)
		defer closePool(ctx)
		_, err := sched.RunOnce(ctx)
		return err
	}

	return app.Run(
		app.WithLogger(log),
		app.WithAddress(cfg.OpsAddr),
		app.WithShutdownTimeout(cfg.ShutdownTimeout),
		app.WithStore(store),
		app.WithComponent("scheduler", sched.Run),
		app.WithHealthCheck("scheduler", scheduler.Healthcheck(sched)),
		app.WithHealthCheck("database", db.Healthcheck(pool)),
		app.WithShutdownHook(closePool),
		app.WithShutdownHook(closeStore),
		app.WithShutdownHook(logger.FlushSentry(2*time.Second)),
	)
}
