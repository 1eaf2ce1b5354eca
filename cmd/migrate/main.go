// Command migrate applies the queue schema for the configured backend.
// Redis and memory backends have no schema and exit immediately.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/PermAdut/autoservice-notify/internal/config"
	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/queue/postgres"
	"github.com/PermAdut/autoservice-notify/pkg/queue/sqlite"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.NewFromConfig(cfg.Log).With(slog.String("service", "notify-migrate"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cfg.Queue.Backend {
	case config.BackendPostgres:
		pool, err := db.Connect(ctx, cfg.Database, log)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := db.MigratePool(ctx, pool, postgres.Migrations(), cfg.Database.MigrationsTable, log); err != nil {
			return err
		}

	case config.BackendSQLite:
		store, err := sqlite.Open(ctx, cfg.Queue.SQLitePath, log)
		if err != nil {
			return err
		}
		if err := store.Close(); err != nil {
			return err
		}

	default:
		log.Info("backend has no schema to migrate", slog.String("backend", string(cfg.Queue.Backend)))
		return nil
	}

	log.Info("queue schema is up to date", slog.String("backend", string(cfg.Queue.Backend)))
	return nil
}
