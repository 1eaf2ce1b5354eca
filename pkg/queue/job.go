package queue

import (
	"encoding/json"
	"time"
)

// Job is a persisted unit of delivery work.
type Job struct {
	ID             string          `json:"id"`
	Kind           Kind            `json:"kind"`
	Payload        json.RawMessage `json:"payload"`
	DedupKey       string          `json:"dedup_key,omitempty"`
	State          State           `json:"state"`
	Attempts       int             `json:"attempts"`
	MaxAttempts    int             `json:"max_attempts"`
	NextRunAt      time.Time       `json:"next_run_at"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
	CompletedAt    *time.Time      `json:"completed_at,omitempty"`
	FailedAt       *time.Time      `json:"failed_at,omitempty"`
	LastError      string          `json:"last_error,omitempty"`
	LeaseOwner     string          `json:"lease_owner,omitempty"`
	LeaseExpiresAt *time.Time      `json:"lease_expires_at,omitempty"`
}

// Clone returns a deep copy so callers cannot mutate stored state.
func (j *Job) Clone() *Job {
	if j == nil {
		return nil
	}
	c := *j
	if j.Payload != nil {
		c.Payload = append(json.RawMessage(nil), j.Payload...)
	}
	c.CompletedAt = cloneTime(j.CompletedAt)
	c.FailedAt = cloneTime(j.FailedAt)
	c.LeaseExpiresAt = cloneTime(j.LeaseExpiresAt)
	return &c
}

// Eligible reports whether the job may be leased at now.
func (j *Job) Eligible(now time.Time) bool {
	return (j.State == StateWaiting || j.State == StateDelayedRetry) && !j.NextRunAt.After(now)
}

// LeaseExpired reports whether an active lease is past its expiry at now.
func (j *Job) LeaseExpired(now time.Time) bool {
	return j.State == StateActive && j.LeaseExpiresAt != nil && !j.LeaseExpiresAt.After(now)
}

// MarkLeased moves an eligible job to Active under workerID until now+ttl.
func (j *Job) MarkLeased(workerID string, now time.Time, ttl time.Duration) {
	expires := now.Add(ttl)
	j.State = StateActive
	j.LeaseOwner = workerID
	j.LeaseExpiresAt = &expires
	j.UpdatedAt = now
}

// MarkCompleted records a successful attempt.
// It returns false without error when the job is already completed.
func (j *Job) MarkCompleted(now time.Time) (bool, error) {
	switch j.State {
	case StateCompleted:
		return false, nil
	case StateActive:
	default:
		return false, ErrNotActive
	}

	j.Attempts = min(j.Attempts+1, j.MaxAttempts)
	j.State = StateCompleted
	j.CompletedAt = &now
	j.UpdatedAt = now
	j.clearLease()
	return true, nil
}

// MarkRetry records a failed attempt. The job becomes Failed once attempts
// reach MaxAttempts, otherwise DelayedRetry with a backed-off NextRunAt that
// never moves backwards.
func (j *Job) MarkRetry(reason string, now time.Time, backoff Backoff) error {
	if j.State != StateActive {
		return ErrNotActive
	}

	j.Attempts++
	j.LastError = reason
	j.UpdatedAt = now
	j.clearLease()

	if j.Attempts >= j.MaxAttempts {
		j.Attempts = j.MaxAttempts
		j.State = StateFailed
		j.FailedAt = &now
		return nil
	}

	next := now.Add(backoff.Delay(j.Attempts))
	if next.Before(j.NextRunAt) {
		next = j.NextRunAt
	}
	j.State = StateDelayedRetry
	j.NextRunAt = next
	return nil
}

// MarkFailed records a permanent failure. Remaining attempts are skipped.
func (j *Job) MarkFailed(reason string, now time.Time) error {
	if j.State != StateActive {
		return ErrNotActive
	}

	j.Attempts = min(j.Attempts+1, j.MaxAttempts)
	j.LastError = reason
	j.State = StateFailed
	j.FailedAt = &now
	j.UpdatedAt = now
	j.clearLease()
	return nil
}

// MarkReclaimed returns an expired lease to Waiting. Attempts are untouched.
func (j *Job) MarkReclaimed(now time.Time) bool {
	if !j.LeaseExpired(now) {
		return false
	}
	j.State = StateWaiting
	j.UpdatedAt = now
	j.clearLease()
	return true
}

func (j *Job) clearLease() {
	j.LeaseOwner = ""
	j.LeaseExpiresAt = nil
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
