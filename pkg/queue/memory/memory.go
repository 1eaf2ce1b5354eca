// Package memory implements queue.Store in process memory.
//
// It is the reference backend: every transition is done under one mutex, so
// it trivially satisfies the atomicity guarantees. Jobs are lost on restart;
// use it for tests and local development.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// Store is an in-memory queue.Store. The zero value is not usable; call New.
type Store struct {
	jobs   map[string]*queue.Job
	dedup  map[string]string
	cfg    queue.Config
	mu     sync.Mutex
	closed bool
}

var _ queue.Store = (*Store)(nil)

// New creates an empty store.
func New(opts ...queue.Option) *Store {
	return &Store{
		jobs:  make(map[string]*queue.Job),
		dedup: make(map[string]string),
		cfg:   queue.NewConfig(opts...),
	}
}

// Enqueue implements queue.Store.
func (s *Store) Enqueue(ctx context.Context, kind queue.Kind, payload []byte, opts ...queue.EnqueueOption) (string, error) {
	job, err := s.cfg.NewJob(kind, payload, opts...)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return "", queue.Unavailable(queue.ErrStoreClosed)
	}

	if job.DedupKey != "" {
		if id, ok := s.dedup[job.DedupKey]; ok {
			return id, nil
		}
		s.dedup[job.DedupKey] = job.ID
	}
	s.jobs[job.ID] = job
	return job.ID, nil
}

// Lease implements queue.Store.
func (s *Store) Lease(ctx context.Context, workerID string, batchSize int, kinds ...queue.Kind) ([]*queue.Job, error) {
	if workerID == "" {
		return nil, queue.ErrEmptyWorkerID
	}
	if batchSize <= 0 {
		return nil, queue.ErrInvalidBatchSize
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, queue.Unavailable(queue.ErrStoreClosed)
	}

	now := s.cfg.Now()
	eligible := make([]*queue.Job, 0, batchSize)
	for _, job := range s.jobs {
		if job.Eligible(now) && queue.MatchKind(job.Kind, kinds) {
			eligible = append(eligible, job)
		}
	}

	sort.Slice(eligible, func(i, j int) bool {
		a, b := eligible[i], eligible[j]
		if !a.NextRunAt.Equal(b.NextRunAt) {
			return a.NextRunAt.Before(b.NextRunAt)
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})

	if len(eligible) > batchSize {
		eligible = eligible[:batchSize]
	}

	leased := make([]*queue.Job, len(eligible))
	for i, job := range eligible {
		job.MarkLeased(workerID, now, s.cfg.LeaseTTL)
		leased[i] = job.Clone()
	}
	return leased, nil
}

// Ack implements queue.Store.
func (s *Store) Ack(ctx context.Context, id string) error {
	return s.update(id, func(job *queue.Job) error {
		_, err := job.MarkCompleted(s.cfg.Now())
		return err
	})
}

// Nack implements queue.Store.
func (s *Store) Nack(ctx context.Context, id, reason string) error {
	return s.update(id, func(job *queue.Job) error {
		return job.MarkRetry(reason, s.cfg.Now(), s.cfg.Backoff)
	})
}

// Fail implements queue.Store.
func (s *Store) Fail(ctx context.Context, id, reason string) error {
	return s.update(id, func(job *queue.Job) error {
		return job.MarkFailed(reason, s.cfg.Now())
	})
}

func (s *Store) update(id string, fn func(*queue.Job) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return queue.Unavailable(queue.ErrStoreClosed)
	}

	job, ok := s.jobs[id]
	if !ok {
		return queue.ErrJobNotFound
	}
	if err := fn(job); err != nil {
		return err
	}
	if job.State.Terminal() && job.DedupKey != "" && s.dedup[job.DedupKey] == job.ID {
		delete(s.dedup, job.DedupKey)
	}
	return nil
}

// ReclaimExpiredLeases implements queue.Store.
func (s *Store) ReclaimExpiredLeases(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, queue.Unavailable(queue.ErrStoreClosed)
	}

	now := s.cfg.Now()
	var n int64
	for _, job := range s.jobs {
		if job.MarkReclaimed(now) {
			n++
		}
	}
	return n, nil
}

// Prune implements queue.Store.
func (s *Store) Prune(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, queue.Unavailable(queue.ErrStoreClosed)
	}

	var n int64
	n += s.pruneState(queue.StateCompleted, s.cfg.Retention.Completed)
	n += s.pruneState(queue.StateFailed, s.cfg.Retention.Failed)
	return n, nil
}

func (s *Store) pruneState(state queue.State, keep int) int64 {
	if keep <= 0 {
		return 0
	}

	var terminal []*queue.Job
	for _, job := range s.jobs {
		if job.State == state {
			terminal = append(terminal, job)
		}
	}
	if len(terminal) <= keep {
		return 0
	}

	sortNewestFirst(terminal)
	for _, job := range terminal[keep:] {
		delete(s.jobs, job.ID)
	}
	return int64(len(terminal) - keep)
}

// Stats implements queue.Store.
func (s *Store) Stats(ctx context.Context) (queue.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return queue.Stats{}, queue.Unavailable(queue.ErrStoreClosed)
	}

	var stats queue.Stats
	for _, job := range s.jobs {
		stats.Add(job.State, 1)
	}
	return stats, nil
}

// Get implements queue.Store.
func (s *Store) Get(ctx context.Context, id string) (*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, queue.Unavailable(queue.ErrStoreClosed)
	}

	job, ok := s.jobs[id]
	if !ok {
		return nil, queue.ErrJobNotFound
	}
	return job.Clone(), nil
}

// List implements queue.Store.
func (s *Store) List(ctx context.Context, state queue.State, limit int) ([]*queue.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, queue.Unavailable(queue.ErrStoreClosed)
	}

	var out []*queue.Job
	for _, job := range s.jobs {
		if job.State == state {
			out = append(out, job)
		}
	}
	sortNewestFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	for i, job := range out {
		out[i] = job.Clone()
	}
	return out, nil
}

// Ping implements queue.Store.
func (s *Store) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return queue.Unavailable(queue.ErrStoreClosed)
	}
	return nil
}

// Close marks the store closed. Further calls fail with ErrStorageUnavailable.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func sortNewestFirst(jobs []*queue.Job) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].UpdatedAt.Equal(jobs[j].UpdatedAt) {
			return jobs[i].UpdatedAt.After(jobs[j].UpdatedAt)
		}
		return jobs[i].ID > jobs[j].ID
	})
}
