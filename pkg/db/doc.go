// Package db provides PostgreSQL and migration helpers for the queue backends
// and the reminder repository.
//
// [Connect] opens a [github.com/jackc/pgx/v5/pgxpool] pool with startup retries.
// [Migrate] applies embedded goose migrations for either Postgres or SQLite,
// and [MigratePool] does the same over a pgx pool.
//
//	pool, err := db.Connect(ctx, cfg.Database, log)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	if err := db.MigratePool(ctx, pool, postgres.Migrations(), cfg.Database.MigrationsTable, log); err != nil {
//		return err
//	}
//
// [WithTx] runs a function inside a transaction and rolls back on error or panic.
//
// Configuration is read from the environment:
//
//	DATABASE_CONN_URL           - PostgreSQL connection URL
//	DATABASE_MAX_OPEN_CONNS     - Maximum open connections (default: 12)
//	DATABASE_MIN_CONNS          - Minimum idle connections (default: 2)
//	DATABASE_HEALTHCHECK_PERIOD - Health check interval (default: 1m)
//	DATABASE_MAX_CONN_IDLE_TIME - Maximum connection idle time (default: 10m)
//	DATABASE_MAX_CONN_LIFETIME  - Maximum connection lifetime (default: 30m)
//	DATABASE_RETRY_ATTEMPTS     - Connection retry attempts (default: 3)
//	DATABASE_RETRY_INTERVAL     - Base retry interval (default: 5s)
//	DATABASE_MIGRATIONS_TABLE   - Goose table (default: notify_schema_migrations)
package db
