package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// Goose dialect names used by the queue backends.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

// goose keeps its base FS, dialect and table name in package globals.
var migrateMu sync.Mutex

// Migrate applies every pending migration found at the root of migrations.
func Migrate(ctx context.Context, db *sql.DB, dialect string, migrations fs.FS, migrationTable string, log *slog.Logger) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	goose.SetBaseFS(migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(&gooseLoggerAdapter{log})
	goose.SetTableName(migrationTable)

	if err := goose.SetDialect(dialect); err != nil {
		return errors.Join(ErrSetDialect, err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}

	return nil
}

// MigratePool runs Postgres migrations over a pgx pool.
func MigratePool(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, migrationTable string, log *slog.Logger) error {
	// The stdlib wrapper shares the pool's connections; closing it would close the pool.
	db := stdlib.OpenDBFromPool(pool)
	return Migrate(ctx, db, DialectPostgres, migrations, migrationTable, log)
}

type gooseLoggerAdapter struct {
	log *slog.Logger
}

func (g *gooseLoggerAdapter) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...))
}

func (g *gooseLoggerAdapter) Fatalf(format string, args ...any) {
	// goose returns the error as well; exiting here would skip shutdown hooks.
	g.log.Error(fmt.Sprintf(format, args...))
}
