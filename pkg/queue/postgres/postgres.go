// Package postgres implements queue.Store on PostgreSQL with pgx.
//
// Leasing uses SELECT ... FOR UPDATE SKIP LOCKED inside a single UPDATE
// statement, so any number of worker processes can lease concurrently without
// ever receiving the same job. Dedup keys are enforced by a partial unique
// index over pending states.
package postgres

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

var columns = []string{
	"id", "kind", "payload", "dedup_key", "state", "attempts", "max_attempts", "next_run_at",
	"created_at", "updated_at", "completed_at", "failed_at", "last_error", "lease_owner", "lease_expires_at",
}

var jobColumns = strings.Join(columns, ", ")

const defaultMigrationsTable = "notify_schema_migrations"

// enqueueRetries bounds the insert/lookup race where the conflicting job
// turns terminal between the two statements.
const enqueueRetries = 3

// Store is a queue.Store backed by PostgreSQL.
type Store struct {
	pool  *pgxpool.Pool
	cfg   queue.Config
	owned bool
}

var _ queue.Store = (*Store)(nil)

// New wraps an existing pool. The schema must already be migrated and Close
// leaves the pool open.
func New(pool *pgxpool.Pool, opts ...queue.Option) *Store {
	return &Store{pool: pool, cfg: queue.NewConfig(opts...)}
}

// Open connects with cfg, applies migrations and returns a store that owns
// its pool.
func Open(ctx context.Context, cfg db.Config, log *slog.Logger, opts ...queue.Option) (*Store, error) {
	pool, err := db.Connect(ctx, cfg, log)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	table := cfg.MigrationsTable
	if table == "" {
		table = defaultMigrationsTable
	}
	if err := db.MigratePool(ctx, pool, Migrations(), table, log); err != nil {
		pool.Close()
		return nil, err
	}

	s := New(pool, opts...)
	s.owned = true
	return s, nil
}

// Pool exposes the underlying pool for health checks and shared repositories.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Enqueue implements queue.Store.
func (s *Store) Enqueue(ctx context.Context, kind queue.Kind, payload []byte, opts ...queue.EnqueueOption) (string, error) {
	job, err := s.cfg.NewJob(kind, payload, opts...)
	if err != nil {
		return "", err
	}

	for range enqueueRetries {
		var id string
		err := s.pool.QueryRow(ctx,
			`INSERT INTO notification_jobs (`+jobColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
			 ON CONFLICT (dedup_key)
			     WHERE dedup_key IS NOT NULL AND state IN ('waiting', 'active', 'delayed_retry')
			     DO NOTHING
			 RETURNING id`,
			insertArgs(job)...,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", queue.Unavailable(err)
		}

		err = s.pool.QueryRow(ctx,
			`SELECT id FROM notification_jobs
			 WHERE dedup_key = $1 AND state IN ('waiting', 'active', 'delayed_retry')`,
			job.DedupKey,
		).Scan(&id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return "", queue.Unavailable(err)
		}
	}

	return "", queue.Unavailable(errors.New("postgres: dedup key kept changing state during enqueue"))
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
	rows, err := s.pool.Query(ctx,
		`WITH next AS (
			SELECT id FROM notification_jobs
			WHERE state IN ('waiting', 'delayed_retry')
			  AND next_run_at <= $1
			  AND (coalesce(cardinality($4::text[]), 0) = 0 OR kind = ANY($4::text[]))
			ORDER BY next_run_at, created_at, id
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE notification_jobs j
		SET state = 'active', lease_owner = $3, lease_expires_at = $5, updated_at = $1
		FROM next
		WHERE j.id = next.id
		RETURNING `+prefixed("j"),
		now, batchSize, workerID, queue.KindStrings(kinds), now.Add(s.cfg.LeaseTTL),
	)
	if err != nil {
		return nil, queue.Unavailable(err)
	}

	jobs, err := collectJobs(rows)
	if err != nil {
		return nil, err
	}

	// RETURNING does not preserve the CTE order.
	sort.Slice(jobs, func(i, j int) bool {
		a, b := jobs[i], jobs[j]
		if !a.NextRunAt.Equal(b.NextRunAt) {
			return a.NextRunAt.Before(b.NextRunAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return jobs, nil
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

// transition locks the row, applies fn and writes the result back.
func (s *Store) transition(ctx context.Context, id string, fn func(*queue.Job) (bool, error)) error {
	err := db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1 FOR UPDATE`, id)
		if err != nil {
			return queue.Unavailable(err)
		}
		jobs, err := collectJobs(rows)
		if err != nil {
			return err
		}
		if len(jobs) == 0 {
			return queue.ErrJobNotFound
		}

		job := jobs[0]
		changed, err := fn(job)
		if err != nil || !changed {
			return err
		}

		_, err = tx.Exec(ctx,
			`UPDATE notification_jobs SET
				state = $2, attempts = $3, next_run_at = $4, updated_at = $5, completed_at = $6,
				failed_at = $7, last_error = $8, lease_owner = $9, lease_expires_at = $10
			 WHERE id = $1`,
			job.ID, string(job.State), job.Attempts, job.NextRunAt, job.UpdatedAt, job.CompletedAt,
			job.FailedAt, job.LastError, job.LeaseOwner, job.LeaseExpiresAt,
		)
		return queue.Unavailable(err)
	})
	return classify(err)
}

// ReclaimExpiredLeases implements queue.Store.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	now := s.cfg.Now()
	tag, err := s.pool.Exec(ctx,
		`UPDATE notification_jobs
		 SET state = 'waiting', lease_owner = '', lease_expires_at = NULL, updated_at = $1
		 WHERE state = 'active' AND lease_expires_at <= $1`,
		now,
	)
	if err != nil {
		return 0, queue.Unavailable(err)
	}
	return tag.RowsAffected(), nil
}

// Prune implements queue.Store.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	var total int64
	for _, r := range []struct {
		state queue.State
		keep  int
	}{
		{queue.StateCompleted, s.cfg.Retention.Completed},
		{queue.StateFailed, s.cfg.Retention.Failed},
	} {
		if r.keep <= 0 {
			continue
		}
		tag, err := s.pool.Exec(ctx,
			`DELETE FROM notification_jobs WHERE id IN (
				SELECT id FROM notification_jobs WHERE state = $1
				ORDER BY updated_at DESC, id DESC OFFSET $2
			)`,
			string(r.state), r.keep,
		)
		if err != nil {
			return total, queue.Unavailable(err)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}

// Stats implements queue.Store.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	rows, err := s.pool.Query(ctx, `SELECT state, count(*) FROM notification_jobs GROUP BY state`)
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
	rows, err := s.pool.Query(ctx, `SELECT `+jobColumns+` FROM notification_jobs WHERE id = $1`, id)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	jobs, err := collectJobs(rows)
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
	var limitArg any
	if limit > 0 {
		limitArg = limit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+jobColumns+` FROM notification_jobs WHERE state = $1
		 ORDER BY updated_at DESC, id DESC LIMIT $2`,
		string(state), limitArg,
	)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	return collectJobs(rows)
}

// Ping implements queue.Store.
func (s *Store) Ping(ctx context.Context) error {
	return queue.Unavailable(s.pool.Ping(ctx))
}

// Close closes the pool when the store opened it.
func (s *Store) Close() error {
	if s.owned {
		s.pool.Close()
	}
	return nil
}

func collectJobs(rows pgx.Rows) ([]*queue.Job, error) {
	jobs, err := pgx.CollectRows(rows, scanJob)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	return jobs, nil
}

func scanJob(row pgx.CollectableRow) (*queue.Job, error) {
	var (
		job         queue.Job
		kind, state string
		dedupKey    *string
	)
	err := row.Scan(
		&job.ID, &kind, &job.Payload, &dedupKey, &state, &job.Attempts, &job.MaxAttempts, &job.NextRunAt,
		&job.CreatedAt, &job.UpdatedAt, &job.CompletedAt, &job.FailedAt, &job.LastError, &job.LeaseOwner,
		&job.LeaseExpiresAt,
	)
	if err != nil {
		return nil, err
	}
	job.Kind = queue.Kind(kind)
	job.State = queue.State(state)
	if dedupKey != nil {
		job.DedupKey = *dedupKey
	}
	return &job, nil
}

func insertArgs(job *queue.Job) []any {
	var dedup *string
	if job.DedupKey != "" {
		dedup = &job.DedupKey
	}
	return []any{
		job.ID, string(job.Kind), []byte(job.Payload), dedup, string(job.State), job.Attempts,
		job.MaxAttempts, job.NextRunAt, job.CreatedAt, job.UpdatedAt, job.CompletedAt, job.FailedAt,
		job.LastError, job.LeaseOwner, job.LeaseExpiresAt,
	}
}

func prefixed(alias string) string {
	out := make([]string, len(columns))
	for i, c := range columns {
		out[i] = alias + "." + c
	}
	return strings.Join(out, ", ")
}

// classify wraps unexpected transaction errors while keeping domain errors intact.
func classify(err error) error {
	switch {
	case err == nil,
		errors.Is(err, queue.ErrStorageUnavailable),
		errors.Is(err, queue.ErrJobNotFound),
		errors.Is(err, queue.ErrNotActive):
		return err
	}
	return queue.Unavailable(err)
}
