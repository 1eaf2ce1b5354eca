package queue

import "context"

// Store is the durable job queue shared by producers, workers and the scheduler.
//
// All transitions are atomic. Every backend I/O failure is returned wrapped
// with ErrStorageUnavailable.
type Store interface {
	// Enqueue persists a Waiting job and returns its id. When a dedup key
	// matches a pending job the existing id is returned and nothing is written.
	Enqueue(ctx context.Context, kind Kind, payload []byte, opts ...EnqueueOption) (string, error)

	// Lease atomically claims up to batchSize eligible jobs for workerID.
	// An empty kinds list means any kind.
	Lease(ctx context.Context, workerID string, batchSize int, kinds ...Kind) ([]*Job, error)

	// Ack completes an active job. Acking a completed job is a no-op.
	Ack(ctx context.Context, id string) error

	// Nack records a failed attempt and schedules a retry or fails the job.
	Nack(ctx context.Context, id string, reason string) error

	// Fail records a permanent failure without further retries.
	Fail(ctx context.Context, id string, reason string) error

	// ReclaimExpiredLeases returns expired active jobs to Waiting.
	ReclaimExpiredLeases(ctx context.Context) (int64, error)

	// Prune deletes terminal jobs outside the retention window.
	Prune(ctx context.Context) (int64, error)

	Stats(ctx context.Context) (Stats, error)
	Get(ctx context.Context, id string) (*Job, error)

	// List returns up to limit jobs in state, most recently updated first.
	List(ctx context.Context, state State, limit int) ([]*Job, error)

	Ping(ctx context.Context) error
	Close() error
}

// Stats holds per-state job counts.
type Stats struct {
	Waiting      int64 `json:"waiting"`
	Active       int64 `json:"active"`
	DelayedRetry int64 `json:"delayed_retry"`
	Completed    int64 `json:"completed"`
	Failed       int64 `json:"failed"`
}

// Total returns the number of stored jobs.
func (s Stats) Total() int64 {
	return s.Waiting + s.Active + s.DelayedRetry + s.Completed + s.Failed
}

// Pending returns the number of non-terminal jobs.
func (s Stats) Pending() int64 {
	return s.Waiting + s.Active + s.DelayedRetry
}

// Add increments the counter for state by n.
func (s *Stats) Add(state State, n int64) {
	switch state {
	case StateWaiting:
		s.Waiting += n
	case StateActive:
		s.Active += n
	case StateDelayedRetry:
		s.DelayedRetry += n
	case StateCompleted:
		s.Completed += n
	case StateFailed:
		s.Failed += n
	}
}

// Healthcheck returns a closure for readiness probes.
func Healthcheck(s Store) func(context.Context) error {
	return func(ctx context.Context) error {
		if s == nil {
			return ErrStorageUnavailable
		}
		return s.Ping(ctx)
	}
}

// MatchKind reports whether kind is in kinds. An empty list matches everything.
func MatchKind(kind Kind, kinds []Kind) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// KindStrings converts kinds for use as query parameters.
func KindStrings(kinds []Kind) []string {
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}
