package queue

import "errors"

var (
	// ErrStorageUnavailable wraps every backend I/O failure.
	// Callers should treat it as retryable at the process level.
	ErrStorageUnavailable = errors.New("queue: storage unavailable")

	// ErrJobNotFound is returned when a job id does not exist (or was pruned).
	ErrJobNotFound = errors.New("queue: job not found")

	// ErrNotActive is returned when ack, nack or fail targets a job that is not leased.
	ErrNotActive = errors.New("queue: job is not active")

	// ErrUnknownKind is returned when enqueueing a kind the pipeline does not know.
	ErrUnknownKind = errors.New("queue: unknown job kind")

	// ErrInvalidPayload is returned for empty or non-JSON payloads.
	ErrInvalidPayload = errors.New("queue: payload must be a JSON document")

	// ErrInvalidBatchSize is returned when lease is called with a non-positive batch size.
	ErrInvalidBatchSize = errors.New("queue: batch size must be positive")

	// ErrEmptyWorkerID is returned when lease is called without a worker id.
	ErrEmptyWorkerID = errors.New("queue: worker id is required")

	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("queue: store is closed")
)

// Unavailable marks err as a storage failure. Nil stays nil.
func Unavailable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(ErrStorageUnavailable, err)
}
