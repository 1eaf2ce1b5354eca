package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EnqueueOptions holds the resolved per-job options.
type EnqueueOptions struct {
	RunAt       time.Time
	DedupKey    string
	Delay       time.Duration
	MaxAttempts int
}

// EnqueueOption configures a single enqueue call.
type EnqueueOption func(*EnqueueOptions)

// WithDedupKey makes the enqueue idempotent: while a waiting, active or
// delayed job with the same key exists, its id is returned instead.
//
// Example:
//
//	store.Enqueue(ctx, queue.KindMaintenanceReminder, payload, queue.WithDedupKey("reminder:42"))
func WithDedupKey(key string) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.DedupKey = key
	}
}

// WithDelay postpones the first lease by d.
//
// Example:
//
//	store.Enqueue(ctx, queue.KindSendSMS, payload, queue.WithDelay(10*time.Minute))
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *EnqueueOptions) {
		if d > 0 {
			o.Delay = d
		}
	}
}

// WithRunAt postpones the first lease until t. It takes precedence over WithDelay.
func WithRunAt(t time.Time) EnqueueOption {
	return func(o *EnqueueOptions) {
		o.RunAt = t
	}
}

// WithMaxAttempts overrides the attempt ceiling. Values <= 0 are ignored.
func WithMaxAttempts(n int) EnqueueOption {
	return func(o *EnqueueOptions) {
		if n > 0 {
			o.MaxAttempts = n
		}
	}
}

// ResolveEnqueueOptions applies opts in order.
func ResolveEnqueueOptions(opts ...EnqueueOption) EnqueueOptions {
	var o EnqueueOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}

// NewJob validates the input and builds the Waiting job record a backend persists.
func (c Config) NewJob(kind Kind, payload []byte, opts ...EnqueueOption) (*Job, error) {
	if !kind.Valid() {
		return nil, ErrUnknownKind
	}
	if len(payload) == 0 || !json.Valid(payload) {
		return nil, ErrInvalidPayload
	}

	o := ResolveEnqueueOptions(opts...)
	now := c.Now()

	runAt := now
	switch {
	case !o.RunAt.IsZero():
		runAt = o.RunAt.UTC().Truncate(time.Millisecond)
	case o.Delay > 0:
		runAt = now.Add(o.Delay)
	}

	maxAttempts := c.DefaultMaxAttempts
	if o.MaxAttempts > 0 {
		maxAttempts = o.MaxAttempts
	}

	id, err := uuid.NewV7()
	if err != nil {
		return nil, err
	}

	return &Job{
		ID:          id.String(),
		Kind:        kind,
		Payload:     append(json.RawMessage(nil), payload...),
		DedupKey:    o.DedupKey,
		State:       StateWaiting,
		MaxAttempts: maxAttempts,
		NextRunAt:   runAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}
