// Package redis implements queue.Store on Redis.
//
// Each job is a hash. Sorted sets index the jobs that are ready to lease
// (scored by next run time), the active leases (scored by lease expiry) and
// every state (scored by last update) for stats, listing and retention.
// Enqueue, lease, reclaim and prune run as Lua scripts; ack, nack and fail
// use optimistic WATCH transactions so the transition rules stay in Go.
//
// All keys share one hash tag, so the store also works on Redis Cluster.
package redis

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// DefaultPrefix is the key prefix used when New is given an empty one.
const DefaultPrefix = "{notify}"

// maxTxRetries bounds optimistic transaction retries under contention.
const maxTxRetries = 16

var errContention = errors.New("redis: transaction retries exhausted")

// Store is a queue.Store backed by Redis.
type Store struct {
	client goredis.UniversalClient
	cfg    queue.Config
	prefix string
}

var _ queue.Store = (*Store)(nil)

// New creates a store using client. The client lifecycle stays with the
// caller; Close does not close it.
func New(client goredis.UniversalClient, prefix string, opts ...queue.Option) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, cfg: queue.NewConfig(opts...), prefix: prefix}
}

func (s *Store) jobPrefix() string { return s.prefix + ":job:" }

func (s *Store) jobKey(id string) string { return s.jobPrefix() + id }

func (s *Store) statePrefix() string { return s.prefix + ":state:" }

func (s *Store) stateKey(state queue.State) string { return s.statePrefix() + string(state) }

func (s *Store) readyKey() string { return s.prefix + ":ready" }

func (s *Store) activeKey() string { return s.prefix + ":active" }

func (s *Store) dedupKey(key string) string { return s.prefix + ":dedup:" + key }

// Enqueue implements queue.Store.
func (s *Store) Enqueue(ctx context.Context, kind queue.Kind, payload []byte, opts ...queue.EnqueueOption) (string, error) {
	job, err := s.cfg.NewJob(kind, payload, opts...)
	if err != nil {
		return "", err
	}

	keys := []string{s.jobKey(job.ID), s.readyKey(), s.stateKey(job.State)}
	if job.DedupKey != "" {
		keys = append(keys, s.dedupKey(job.DedupKey))
	}
	args := append([]any{
		job.ID,
		job.NextRunAt.UnixMilli(),
		job.UpdatedAt.UnixMilli(),
		s.jobPrefix(),
	}, encodeJob(job)...)

	id, err := enqueueScript.Run(ctx, s.client, keys, args...).Text()
	if err != nil {
		return "", queue.Unavailable(err)
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
	args := []any{
		now.UnixMilli(),
		batchSize,
		workerID,
		now.Add(s.cfg.LeaseTTL).UnixMilli(),
		s.jobPrefix(),
		s.statePrefix(),
	}
	for _, k := range kinds {
		args = append(args, string(k))
	}

	ids, err := leaseScript.Run(ctx, s.client,
		[]string{s.readyKey(), s.activeKey(), s.stateKey(queue.StateActive)},
		args...,
	).StringSlice()
	if err != nil {
		return nil, queue.Unavailable(err)
	}

	jobs, err := s.load(ctx, ids)
	if err != nil {
		return nil, err
	}
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

func (s *Store) transition(ctx context.Context, id string, fn func(*queue.Job) (bool, error)) error {
	key := s.jobKey(id)

	for range maxTxRetries {
		err := s.client.Watch(ctx, func(tx *goredis.Tx) error {
			fields, err := tx.HGetAll(ctx, key).Result()
			if err != nil {
				return queue.Unavailable(err)
			}
			if len(fields) == 0 {
				return queue.ErrJobNotFound
			}
			job, err := decodeJob(fields)
			if err != nil {
				return queue.Unavailable(err)
			}

			prev := job.State
			changed, err := fn(job)
			if err != nil || !changed {
				return err
			}

			releaseDedup := false
			if job.DedupKey != "" && job.State.Terminal() {
				dk := s.dedupKey(job.DedupKey)
				if err := tx.Watch(ctx, dk).Err(); err != nil {
					return queue.Unavailable(err)
				}
				owner, err := tx.Get(ctx, dk).Result()
				if err != nil && !errors.Is(err, goredis.Nil) {
					return queue.Unavailable(err)
				}
				releaseDedup = owner == job.ID
			}

			_, err = tx.TxPipelined(ctx, func(p goredis.Pipeliner) error {
				s.writeJob(ctx, p, job, prev)
				if releaseDedup {
					p.Del(ctx, s.dedupKey(job.DedupKey))
				}
				return nil
			})
			return err
		}, key)

		if errors.Is(err, goredis.TxFailedErr) {
			continue
		}
		return classify(err)
	}
	return queue.Unavailable(errContention)
}

// writeJob queues the hash update and index moves for job.
func (s *Store) writeJob(ctx context.Context, p goredis.Pipeliner, job *queue.Job, prev queue.State) {
	p.HSet(ctx, s.jobKey(job.ID), encodeJob(job)...)

	if prev != job.State {
		p.ZRem(ctx, s.stateKey(prev), job.ID)
	}
	p.ZAdd(ctx, s.stateKey(job.State), goredis.Z{Score: float64(job.UpdatedAt.UnixMilli()), Member: job.ID})

	switch job.State {
	case queue.StateWaiting, queue.StateDelayedRetry:
		p.ZAdd(ctx, s.readyKey(), goredis.Z{Score: float64(job.NextRunAt.UnixMilli()), Member: job.ID})
	default:
		p.ZRem(ctx, s.readyKey(), job.ID)
	}

	if job.State == queue.StateActive && job.LeaseExpiresAt != nil {
		p.ZAdd(ctx, s.activeKey(), goredis.Z{Score: float64(job.LeaseExpiresAt.UnixMilli()), Member: job.ID})
	} else {
		p.ZRem(ctx, s.activeKey(), job.ID)
	}
}

// ReclaimExpiredLeases implements queue.Store.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	n, err := reclaimScript.Run(ctx, s.client,
		[]string{s.activeKey(), s.readyKey(), s.stateKey(queue.StateActive), s.stateKey(queue.StateWaiting)},
		s.cfg.Now().UnixMilli(), s.jobPrefix(),
	).Int64()
	if err != nil {
		return 0, queue.Unavailable(err)
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
		n, err := pruneScript.Run(ctx, s.client, []string{s.stateKey(state)}, keep, s.jobPrefix()).Int64()
		if err != nil {
			return total, queue.Unavailable(err)
		}
		total += n
	}
	return total, nil
}

// Stats implements queue.Store.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	states := []queue.State{
		queue.StateWaiting, queue.StateActive, queue.StateDelayedRetry, queue.StateCompleted, queue.StateFailed,
	}
	cmds := make([]*goredis.IntCmd, len(states))
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, st := range states {
			cmds[i] = p.ZCard(ctx, s.stateKey(st))
		}
		return nil
	})
	if err != nil {
		return queue.Stats{}, queue.Unavailable(err)
	}

	var stats queue.Stats
	for i, st := range states {
		stats.Add(st, cmds[i].Val())
	}
	return stats, nil
}

// Get implements queue.Store.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	fields, err := s.client.HGetAll(ctx, s.jobKey(id)).Result()
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	if len(fields) == 0 {
		return nil, queue.ErrJobNotFound
	}
	job, err := decodeJob(fields)
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	return job, nil
}

// List implements queue.Store.
func (s *Store) List(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error) {
	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit) - 1
	}
	ids, err := s.client.ZRevRange(ctx, s.stateKey(state), 0, stop).Result()
	if err != nil {
		return nil, queue.Unavailable(err)
	}
	return s.load(ctx, ids)
}

// load fetches jobs in the order of ids, skipping ids whose hash is gone.
func (s *Store) load(ctx context.Context, ids []string) ([]*queue.Job, error) {
	if len(ids) == 0 {
		return []*queue.Job{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(p goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = p.HGetAll(ctx, s.jobKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, queue.Unavailable(err)
	}

	jobs := make([]*queue.Job, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		job, err := decodeJob(fields)
		if err != nil {
			return nil, queue.Unavailable(err)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// Ping implements queue.Store.
func (s *Store) Ping(ctx context.Context) error {
	return queue.Unavailable(s.client.Ping(ctx).Err())
}

// Close is a no-op; the client is closed by its owner.
func (s *Store) Close() error {
	return nil
}

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

func encodeJob(job *queue.Job) []any {
	return []any{
		"id", job.ID,
		"kind", string(job.Kind),
		"payload", string(job.Payload),
		"dedup_key", job.DedupKey,
		"state", string(job.State),
		"attempts", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"next_run_at", job.NextRunAt.UnixMilli(),
		"created_at", job.CreatedAt.UnixMilli(),
		"updated_at", job.UpdatedAt.UnixMilli(),
		"completed_at", encodeTime(job.CompletedAt),
		"failed_at", encodeTime(job.FailedAt),
		"last_error", job.LastError,
		"lease_owner", job.LeaseOwner,
		"lease_expires_at", encodeTime(job.LeaseExpiresAt),
	}
}

func decodeJob(f map[string]string) (*queue.Job, error) {
	job := &queue.Job{
		ID:         f["id"],
		Kind:       queue.Kind(f["kind"]),
		Payload:    []byte(f["payload"]),
		DedupKey:   f["dedup_key"],
		State:      queue.State(f["state"]),
		LastError:  f["last_error"],
		LeaseOwner: f["lease_owner"],
	}

	var err error
	if job.Attempts, err = strconv.Atoi(f["attempts"]); err != nil {
		return nil, err
	}
	if job.MaxAttempts, err = strconv.Atoi(f["max_attempts"]); err != nil {
		return nil, err
	}
	if job.NextRunAt, err = decodeTime(f["next_run_at"]); err != nil {
		return nil, err
	}
	if job.CreatedAt, err = decodeTime(f["created_at"]); err != nil {
		return nil, err
	}
	if job.UpdatedAt, err = decodeTime(f["updated_at"]); err != nil {
		return nil, err
	}
	if job.CompletedAt, err = decodeOptionalTime(f["completed_at"]); err != nil {
		return nil, err
	}
	if job.FailedAt, err = decodeOptionalTime(f["failed_at"]); err != nil {
		return nil, err
	}
	if job.LeaseExpiresAt, err = decodeOptionalTime(f["lease_expires_at"]); err != nil {
		return nil, err
	}
	return job, nil
}

func encodeTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func decodeTime(v string) (time.Time, error) {
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms).UTC(), nil
}

func decodeOptionalTime(v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := decodeTime(v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
