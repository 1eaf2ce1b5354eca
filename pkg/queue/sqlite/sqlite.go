// Package sqlite implements queue.Store on an embedded SQLite database using
// the pure Go modernc.org/sqlite driver.
//
// The store serializes all access through a single connection, which makes
// the select-then-update lease transaction atomic without row locks. It suits
// single-host deployments that want durability without an external database.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/PermAdut/autoservice-notify/pkg/db"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrations returns the goose migrations for the jobs table.
func Migrations() fs.FS {
	sub, err := fs.Sub(migrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

const migrationsTable = "notify_schema_migrations"

const jobColumns = `id, kind, payload, dedup_key, state, attempts, max_attempts, next_run_at,
	created_at, updated_at, completed_at, failed_at, last_error, lease_owner, lease_expires_at`

// ErrEmptyPath is returned by Open without a database path.
var ErrEmptyPath = errors.New("sqlite: database path is required")

// Store is a queue.Store backed by SQLite.
type Store struct {
	db  *sql.DB
	cfg queue.Config
}

var _ queue.Store = (*Store)(nil)

// Open opens (or creates) the database at path, applies migrations and
// returns a ready store. Use ":memory:" for a throwaway database.
func Open(ctx context.Context, path string, log *slog.Logger, opts ...queue.Option) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}

	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, queue.Unavailable(fmt.Errorf("sqlite: open: %w", err))
	}
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, queue.Unavailable(fmt.Errorf("sqlite: ping: %w", err))
	}

	if err := db.Migrate(ctx, conn, db.DialectSQLite, Migrations(), migrationsTable, log); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return New(conn, opts...), nil
}

// New wraps an already migrated database. The caller must limit it to one
// open connection.
func New(conn *sql.DB, opts ...queue.Option) *Store {
	return &Store{db: conn, cfg: queue.NewConfig(opts...)}
}

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
}

// Enqueue implements queue.Store.
func (s *Store) Enqueue(ctx context.Context, kind queue.Kind, payload []byte, opts ...queue.EnqueueOption) (string, error) {
	job, err := s.cfg.NewJob(kind, payload, opts...)
	if err != nil {
		return "", err
	}

	id := job.ID
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if job.DedupKey != "" {
			var existing string
			err := tx.QueryRowContext(ctx,
				`SELECT id FROM notification_jobs
				 WHERE dedup_key = ? AND state IN ('waiting', 'active', 'delayed_retry')`,
				job.DedupKey,
			).Scan(&existing)
			switch {
			case err == nil:
				id = existing
				return nil
			case !errors.Is(err, sql.ErrNoRows):
				return queue.Unavailable(err)
			}
		}

		_, err := tx.ExecContext(ctx,
			`INSERT INTO notification_jobs (`+jobColumns+`)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			insertArgs(job)...,
		)
		return queue.Unavailable(err)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// Lease implements queue.Store.
func (s *Store) Lease(ctx context.Context, workerID string, batchSize int, kinds ...queue.Kind) ([]*queue.Job, error) {
	if workerID == "" {
		return nil, queue.ErrEmptyWorkerID
	}
	if batchSize <= 0 {
		return nil, queue.ErrInvalidBatchSize
	}

	now := s.cfg.Now()
	query := `SELECT ` + jobColumns + ` FROM notification_jobs
		WHERE state IN ('waiting', 'delayed_retry') AND next_run_at <= ?`
	args := []any{toMillis(now)}
	if len(kinds) > 0 {
		query += ` AND kind IN (` + placeholders(len(kinds)) + `)`
		for _, k := range kinds {
			args = append(args, string(k))
		}
	}
	query += ` ORDER BY next_run_at, created_at, id LIMIT ?`
	args = append(args, batchSize)

	var leased []*queue.Job
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		jobs, err := queryJobs(ctx, tx, query, args...)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			job.MarkLeased(workerID, now, s.cfg.LeaseTTL)
			if err := saveJob(ctx, tx, job); err != nil {
				return err
			}
		}
		leased = jobs
		return nil
	})
	if err != nil {
		return nil, err
	}
	return leased, nil
}

// Ack implements queue.Store.
func (s *Store) Ack(ctx context.Context, id string) error {
	return s.transition(ctx, id, func(job *queue.Job) (bool, error) {
		return job.MarkCompleted(s.cfg.Now())
	})
}

// Nack implements queue.Store.
func (s *Store) Nack(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, func(job *queue.Job) (bool, error) {
		return true, job.MarkRetry(reason, s.cfg.Now(), s.cfg.Backoff)
	})
}

// Fail implements queue.Store.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.transition(ctx, id, func(job *queue.Job) (bool, error) {
		return true, job.MarkFailed(reason, s.cfg.Now())
	})
}

func (s *Store) transition(ctx context.Context, id string, fn func(*queue.Job) (bool, error)) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		jobs, err := queryJobs(ctx, tx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return queue.ErrJobNotFound
		}

		changed, err := fn(jobs[0])
		if err != nil || !changed {
			return err
		}
		return saveJob(ctx, tx, jobs[0])
	})
}

// ReclaimExpiredLeases implements queue.Store.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	now := s.cfg.Now()
	var n int64
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		jobs, err := queryJobs(ctx, tx,
			`SELECT `+jobColumns+` FROM notification_jobs
			 WHERE state = 'active' AND lease_expires_at <= ?`,
			toMillis(now),
		)
		if err != nil {
			return err
		}
		for _, job := range jobs {
			if !job.MarkReclaimed(now) {
				continue
			}
			if err := saveJob(ctx, tx, job); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// Prune implements queue.Store.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	var total int64
	for state, keep := range map[queue.State]int{
		queue.StateCompleted: s.cfg.Retention.Completed,
		queue.StateFailed:    s.cfg.Retention.Failed,
	} {
		if keep <= 0 {
			continue
		}
		res, err := s.db.ExecContext(ctx,
			`DELETE FROM notification_jobs WHERE id IN (
				SELECT id FROM notification_jobs WHERE state = ?
				ORDER BY updated_at DESC, id DESC LIMIT -1 OFFSET ?
			)`,
			string(state), keep,
		)
		if err != nil {
			return total, queue.Unavailable(err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, queue.Unavailable(err)
		}
		total += n
	}
	return total, nil
}

// Stats implements queue.Store.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM notification_jobs GROUP BY state`)
	if err != nil {
		return queue.Stats{}, queue.Unavailable(err)
	}
	defer rows.Close()

	var stats queue.Stats
	for rows.Next() {
		var (
			state string
			n     int64
		)
		if err := rows.Scan(&state, &n); err != nil {
			return queue.Stats{}, queue.Unavailable(err)
		}
		stats.Add(queue.State(state), n)
	}
	if err := rows.Err(); err != nil {
		return queue.Stats{}, queue.Unavailable(err)
	}
	return stats, nil
}

// Get implements queue.Store.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	jobs, err := queryJobs(ctx, s.db, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, queue.ErrJobNotFound
	}
	return jobs[0], nil
}

// List implements queue.Store.
func (s *Store) List(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error) {
	if limit <= 0 {
		limit = -1
	}
	return queryJobs(ctx, s.db,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE state = ?
		 ORDER BY updated_at DESC, id DESC LIMIT ?`,
		string(state), limit,
	)
}

// Ping implements queue.Store.
func (s *Store) Ping(ctx context.Context) error {
	return queue.Unavailable(s.db.PingContext(ctx))
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// withTx runs fn in a transaction. fn is responsible for wrapping its own
// database errors so domain errors pass through untouched.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return queue.Unavailable(err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return queue.Unavailable(tx.Commit())
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func queryJobs(ctx context.Context, q querier, query string, args ...any) ([]*queue.Job, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	defer rows.Close()

	var jobs []*queue.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, queue.Unavailable(err)
		}
		jobs = append(jobs, job)
	}
	if err := rows.Err(); err != nil {
		return nil, queue.Unavailable(err)
	}
	return jobs, nil
}

func scanJob(rows *sql.Rows) (*queue.Job, error) {
	var (
		job                                  queue.Job
		kind, state, payload                 string
		dedupKey                             sql.NullString
		nextRunAt, createdAt, updatedAt      int64
		completedAt, failedAt, leaseExpireAt sql.NullInt64
	)
	err := rows.Scan(
		&job.ID, &kind, &payload, &dedupKey, &state, &job.Attempts, &job.MaxAttempts, &nextRunAt,
		&createdAt, &updatedAt, &completedAt, &failedAt, &job.LastError, &job.LeaseOwner, &leaseExpireAt,
	)
	if err != nil {
		return nil, err
	}

	job.Kind = queue.Kind(kind)
	job.State = queue.State(state)
	job.Payload = []byte(payload)
	job.DedupKey = dedupKey.String
	job.NextRunAt = fromMillis(nextRunAt)
	job.CreatedAt = fromMillis(createdAt)
	job.UpdatedAt = fromMillis(updatedAt)
	job.CompletedAt = fromNullMillis(completedAt)
	job.FailedAt = fromNullMillis(failedAt)
	job.LeaseExpiresAt = fromNullMillis(leaseExpireAt)
	return &job, nil
}

func saveJob(ctx context.Context, tx *sql.Tx, job *queue.Job) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE notification_jobs SET
			state = ?, attempts = ?, next_run_at = ?, updated_at = ?, completed_at = ?,
			failed_at = ?, last_error = ?, lease_owner = ?, lease_expires_at = ?
		 WHERE id = ?`,
		string(job.State), job.Attempts, toMillis(job.NextRunAt), toMillis(job.UpdatedAt),
		toNullMillis(job.CompletedAt), toNullMillis(job.FailedAt), job.LastError, job.LeaseOwner,
		toNullMillis(job.LeaseExpiresAt), job.ID,
	)
	return queue.Unavailable(err)
}

func insertArgs(job *queue.Job) []any {
	var dedup sql.NullString
	if job.DedupKey != "" {
		dedup = sql.NullString{String: job.DedupKey, Valid: true}
	}
	return []any{
		job.ID, string(job.Kind), string(job.Payload), dedup, string(job.State), job.Attempts,
		job.MaxAttempts, toMillis(job.NextRunAt), toMillis(job.CreatedAt), toMillis(job.UpdatedAt),
		toNullMillis(job.CompletedAt), toNullMillis(job.FailedAt), job.LastError, job.LeaseOwner,
		toNullMillis(job.LeaseExpiresAt),
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func toNullMillis(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixMilli(), Valid: true}
}

func fromNullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}
