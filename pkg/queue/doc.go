// Package queue defines the durable notification job queue: job records,
// lifecycle transitions, retry backoff and the Store contract that every
// backend implements.
//
// # Lifecycle
//
//	Enqueue -> waiting -> Lease -> active -> Ack  -> completed
//	                                      -> Nack -> delayed_retry -> Lease ...
//	                                              -> failed (attempts == max)
//	                                      -> Fail -> failed
//	              active (lease expired) -> ReclaimExpiredLeases -> waiting
//
// Transition rules live on [Job] (MarkLeased, MarkCompleted, MarkRetry,
// MarkFailed, MarkReclaimed) so memory, SQLite, Postgres and Redis backends
// share one definition of attempts, backoff and terminal states.
//
// # Deduplication
//
// [WithDedupKey] makes Enqueue idempotent while a job with the same key is
// waiting, active or delayed. Once that job reaches a terminal state the key
// is free again.
//
// # Backoff
//
// Failed attempts are retried after [ExponentialBackoff]:
// BaseDelay * 2^(attempts-1), 2s by default. NextRunAt never moves backwards.
//
// # Retention
//
// [Store.Prune] keeps the most recent completed and failed jobs (100 and 500
// by default, see [WithRetention]) and never touches pending ones.
//
// # Errors
//
// Backend I/O errors are wrapped with [ErrStorageUnavailable]:
//
//	if _, err := store.Enqueue(ctx, kind, payload); errors.Is(err, queue.ErrStorageUnavailable) {
//		// surface a 503, keep the in-process work
//	}
package queue
