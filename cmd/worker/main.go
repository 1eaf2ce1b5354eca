// Command worker leases notification jobs and delivers them over SMS and
// email until SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/PermAdut/autoservice-notify/internal/app"
	"github.com/PermAdut/autoservice-notify/internal/config"
	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "worker:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewFromConfig(cfg.Log, logger.DefaultExtractors()...).
		With(slog.String("service", "notify-worker"), slog.String("env", cfg.Env))

	ctx := context.Background()
	store, closeStore, err := app.OpenStore(ctx, cfg, log)
	if err != nil {
		return err
	}

	smsSender, mailSender, err := app.NewSenders(cfg, log)
	if err != nil {
		return err
	}

	opts := append(cfg.Worker.Options(), worker.WithLogger(log))
	runOpts := []app.Option{
		app.WithLogger(log),
		app.WithAddress(cfg.OpsAddr),
		app.WithShutdownTimeout(cfg.ShutdownTimeout),
		app.WithStore(store),
	}

	// Reminders are marked sent in the business database when one is configured.
	if cfg.RequireDatabase() == nil {
		repo, pool, closePool, err := app.OpenReminders(ctx, cfg, store, log)
		if err != nil {
			return err
		}
		opts = append(opts, worker.WithReminderMarker(repo))
		runOpts = append(runOpts,
			app.WithHealthCheck("database", db.Healthcheck(pool)),
			app.WithShutdownHook(closePool),
		)
	} else {
		log.Warn("DATABASE_CONN_URL is not set: maintenance reminders are not marked sent")
	}

	w, err := worker.New(store, smsSender, mailSender, opts...)
	if err != nil {
		return err
	}

	return app.Run(append(runOpts,
		app.WithComponent("worker", w.Run),
		app.WithHealthCheck("worker", worker.Healthcheck(w)),
		app.WithShutdownHook(closeStore),
		app.WithShutdownHook(logger.FlushSentry(2*time.Second)),
	)...)
}
