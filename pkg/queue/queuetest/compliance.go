// Package queuetest holds the behavioural suite every queue.Store backend must pass.
package queuetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/clock"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// Epoch is the fake clock start used by the suite.
var Epoch = time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

// Factory returns a fresh, empty store configured with opts.
// The suite closes the store when the test ends.
type Factory func(t *testing.T, opts ...queue.Option) queue.Store

// RunCompliance runs the full suite against a backend.
//
//	func TestMemoryCompliance(t *testing.T) {
//		queuetest.RunCompliance(t, func(t *testing.T, opts ...queue.Option) queue.Store {
//			return memory.New(opts...)
//		})
//	}
func RunCompliance(t *testing.T, factory Factory) {
	t.Run("EnqueueAndGet", testEnqueueAndGet(factory))
	t.Run("EnqueueValidation", testEnqueueValidation(factory))
	t.Run("EnqueueWithoutDedupKeyCreatesDistinctJobs", testNoDedupKey(factory))
	t.Run("DedupKeyIsIdempotent", testDedupKey(factory))
	t.Run("DedupKeyHeldWhileActiveAndDelayed", testDedupKeyWhilePending(factory))
	t.Run("DedupKeyReleasedAfterTerminal", testDedupKeyReleased(factory))
	t.Run("LeaseMarksActive", testLease(factory))
	t.Run("LeaseOrder", testLeaseOrder(factory))
	t.Run("LeaseRespectsNextRunAt", testLeaseDelayed(factory))
	t.Run("LeaseFiltersKinds", testLeaseKinds(factory))
	t.Run("LeaseValidation", testLeaseValidation(factory))
	t.Run("ConcurrentLeaseAtMostOnce", testConcurrentLease(factory))
	t.Run("AckIsIdempotent", testAck(factory))
	t.Run("NackBackoffUntilFailed", testNackBackoff(factory))
	t.Run("NackRequiresActive", testNackNotActive(factory))
	t.Run("SucceedOnSecondAttempt", testSecondAttempt(factory))
	t.Run("FailIsPermanent", testFail(factory))
	t.Run("ReclaimExpiredLeases", testReclaim(factory))
	t.Run("PruneKeepsRetentionWindow", testPrune(factory))
	t.Run("Stats", testStats(factory))
	t.Run("List", testList(factory))
	t.Run("GetNotFound", testGetNotFound(factory))
	t.Run("Ping", testPing(factory))
}

type harness struct {
	store queue.Store
	clock *clock.Fake
	ctx   context.Context
}

func setup(t *testing.T, factory Factory, opts ...queue.Option) *harness {
	t.Helper()

	fake := clock.NewFake(Epoch)
	all := append([]queue.Option{queue.WithClock(fake)}, opts...)
	store := factory(t, all...)
	require.NotNil(t, store)
	t.Cleanup(func() { _ = store.Close() })

	return &harness{store: store, clock: fake, ctx: context.Background()}
}

func (h *harness) enqueue(t *testing.T, kind queue.Kind, opts ...queue.EnqueueOption) string {
	t.Helper()

	id, err := h.store.Enqueue(h.ctx, kind, []byte(`{"phone":"+15550001111","message":"hi"}`), opts...)
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func (h *harness) leaseOne(t *testing.T, worker string) *queue.Job {
	t.Helper()

	jobs, err := h.store.Lease(h.ctx, worker, 1)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	return jobs[0]
}

func (h *harness) get(t *testing.T, id string) *queue.Job {
	t.Helper()

	job, err := h.store.Get(h.ctx, id)
	require.NoError(t, err)
	return job
}

func (h *harness) stats(t *testing.T) queue.Stats {
	t.Helper()

	s, err := h.store.Stats(h.ctx)
	require.NoError(t, err)
	return s
}

func testEnqueueAndGet(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id, err := h.store.Enqueue(h.ctx, queue.KindSendEmail, []byte(`{"to":"ops@example.com"}`), queue.WithMaxAttempts(5))
		require.NoError(t, err)

		job := h.get(t, id)
		assert.Equal(t, id, job.ID)
		assert.Equal(t, queue.KindSendEmail, job.Kind)
		assert.JSONEq(t, `{"to":"ops@example.com"}`, string(job.Payload))
		assert.Equal(t, queue.StateWaiting, job.State)
		assert.Equal(t, 0, job.Attempts)
		assert.Equal(t, 5, job.MaxAttempts)
		assert.True(t, job.NextRunAt.Equal(Epoch), "next run %s", job.NextRunAt)
		assert.True(t, job.CreatedAt.Equal(Epoch), "created %s", job.CreatedAt)
		assert.Nil(t, job.CompletedAt)
		assert.Nil(t, job.FailedAt)
		assert.Empty(t, job.LeaseOwner)

		other := h.enqueue(t, queue.KindSendSMS)
		assert.Equal(t, queue.DefaultMaxAttempts, h.get(t, other).MaxAttempts)
	}
}

func testEnqueueValidation(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		_, err := h.store.Enqueue(h.ctx, queue.Kind("pager"), []byte(`{}`))
		require.ErrorIs(t, err, queue.ErrUnknownKind)

		_, err = h.store.Enqueue(h.ctx, queue.KindSendSMS, nil)
		require.ErrorIs(t, err, queue.ErrInvalidPayload)

		assert.Zero(t, h.stats(t).Total())
	}
}

func testNoDedupKey(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		a := h.enqueue(t, queue.KindSendSMS)
		b := h.enqueue(t, queue.KindSendSMS)
		assert.NotEqual(t, a, b)
		assert.Equal(t, int64(2), h.stats(t).Waiting)
	}
}

func testDedupKey(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		first := h.enqueue(t, queue.KindMaintenanceReminder, queue.WithDedupKey("reminder:42"))
		second := h.enqueue(t, queue.KindMaintenanceReminder, queue.WithDedupKey("reminder:42"))
		assert.Equal(t, first, second)

		other := h.enqueue(t, queue.KindMaintenanceReminder, queue.WithDedupKey("reminder:43"))
		assert.NotEqual(t, first, other)

		assert.Equal(t, int64(2), h.stats(t).Total())
		assert.Equal(t, "reminder:42", h.get(t, first).DedupKey)
	}
}

func testDedupKeyWhilePending(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindBookingConfirmation, queue.WithDedupKey("booking:7"))
		h.leaseOne(t, "w1")
		assert.Equal(t, id, h.enqueue(t, queue.KindBookingConfirmation, queue.WithDedupKey("booking:7")), "active")

		require.NoError(t, h.store.Nack(h.ctx, id, "provider down"))
		assert.Equal(t, queue.StateDelayedRetry, h.get(t, id).State)
		assert.Equal(t, id, h.enqueue(t, queue.KindBookingConfirmation, queue.WithDedupKey("booking:7")), "delayed")

		assert.Equal(t, int64(1), h.stats(t).Total())
	}
}

func testDedupKeyReleased(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		first := h.enqueue(t, queue.KindMaintenanceReminder, queue.WithDedupKey("reminder:1"))
		h.leaseOne(t, "w1")
		require.NoError(t, h.store.Ack(h.ctx, first))

		second := h.enqueue(t, queue.KindMaintenanceReminder, queue.WithDedupKey("reminder:1"))
		assert.NotEqual(t, first, second)

		failed := h.enqueue(t, queue.KindSendSMS, queue.WithDedupKey("sms:1"), queue.WithMaxAttempts(1))
		h.clock.Advance(time.Millisecond)
		jobs, err := h.store.Lease(h.ctx, "w1", 10, queue.KindSendSMS)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		require.NoError(t, h.store.Nack(h.ctx, failed, "boom"))
		assert.Equal(t, queue.StateFailed, h.get(t, failed).State)

		again := h.enqueue(t, queue.KindSendSMS, queue.WithDedupKey("sms:1"))
		assert.NotEqual(t, failed, again)
	}
}

func testLease(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory, queue.WithLeaseTTL(90*time.Second))

		for range 3 {
			h.enqueue(t, queue.KindSendSMS)
		}

		jobs, err := h.store.Lease(h.ctx, "worker-a", 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		for _, job := range jobs {
			assert.Equal(t, queue.StateActive, job.State)
			assert.Equal(t, "worker-a", job.LeaseOwner)
			require.NotNil(t, job.LeaseExpiresAt)
			assert.True(t, job.LeaseExpiresAt.Equal(Epoch.Add(90*time.Second)), "lease expires %s", job.LeaseExpiresAt)

			stored := h.get(t, job.ID)
			assert.Equal(t, queue.StateActive, stored.State)
			assert.Equal(t, "worker-a", stored.LeaseOwner)
		}

		rest, err := h.store.Lease(h.ctx, "worker-b", 2)
		require.NoError(t, err)
		require.Len(t, rest, 1)

		empty, err := h.store.Lease(h.ctx, "worker-b", 2)
		require.NoError(t, err)
		assert.Empty(t, empty)

		assert.Equal(t, int64(3), h.stats(t).Active)
	}
}

func testLeaseOrder(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		late := h.enqueue(t, queue.KindSendSMS, queue.WithRunAt(Epoch.Add(-time.Second)))
		h.clock.Advance(time.Millisecond)
		first := h.enqueue(t, queue.KindSendSMS)
		h.clock.Advance(time.Millisecond)
		second := h.enqueue(t, queue.KindSendSMS)

		var got []string
		for range 3 {
			got = append(got, h.leaseOne(t, "w").ID)
		}
		assert.Equal(t, []string{late, first, second}, got)
	}
}

func testLeaseDelayed(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendSMS, queue.WithDelay(time.Minute))

		jobs, err := h.store.Lease(h.ctx, "w", 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)

		h.clock.Advance(59 * time.Second)
		jobs, err = h.store.Lease(h.ctx, "w", 10)
		require.NoError(t, err)
		assert.Empty(t, jobs)

		h.clock.Advance(time.Second)
		assert.Equal(t, id, h.leaseOne(t, "w").ID)
	}
}

func testLeaseKinds(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		sms := h.enqueue(t, queue.KindSendSMS)
		h.clock.Advance(time.Millisecond)
		email := h.enqueue(t, queue.KindSendEmail)

		jobs, err := h.store.Lease(h.ctx, "w", 10, queue.KindSendEmail, queue.KindOrderNotification)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, email, jobs[0].ID)

		jobs, err = h.store.Lease(h.ctx, "w", 10)
		require.NoError(t, err)
		require.Len(t, jobs, 1)
		assert.Equal(t, sms, jobs[0].ID)
	}
}

func testLeaseValidation(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		_, err := h.store.Lease(h.ctx, "w", 0)
		require.ErrorIs(t, err, queue.ErrInvalidBatchSize)

		_, err = h.store.Lease(h.ctx, "", 1)
		require.ErrorIs(t, err, queue.ErrEmptyWorkerID)
	}
}

func testConcurrentLease(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		const total = 40
		for range total {
			h.enqueue(t, queue.KindSendSMS)
		}

		var (
			mu   sync.Mutex
			seen = make(map[string]string, total)
			dups []string
			wg   sync.WaitGroup
		)

		for w := range 8 {
			worker := fmt.Sprintf("worker-%d", w)
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					jobs, err := h.store.Lease(h.ctx, worker, 3)
					if !assert.NoError(t, err) || len(jobs) == 0 {
						return
					}
					mu.Lock()
					for _, job := range jobs {
						if prev, ok := seen[job.ID]; ok {
							dups = append(dups, job.ID+" by "+prev+" and "+worker)
						}
						seen[job.ID] = worker
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Empty(t, dups, "jobs leased more than once")
		assert.Len(t, seen, total)
		assert.Equal(t, int64(total), h.stats(t).Active)
	}
}

func testAck(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendSMS)
		waiting := h.enqueue(t, queue.KindSendSMS, queue.WithDelay(time.Hour))

		h.leaseOne(t, "w")
		h.clock.Advance(3 * time.Second)
		require.NoError(t, h.store.Ack(h.ctx, id))

		job := h.get(t, id)
		assert.Equal(t, queue.StateCompleted, job.State)
		assert.Equal(t, 1, job.Attempts)
		require.NotNil(t, job.CompletedAt)
		assert.True(t, job.CompletedAt.Equal(Epoch.Add(3*time.Second)))
		assert.Empty(t, job.LeaseOwner)
		assert.Nil(t, job.LeaseExpiresAt)

		require.NoError(t, h.store.Ack(h.ctx, id), "second ack is a no-op")
		assert.Equal(t, 1, h.get(t, id).Attempts)

		require.ErrorIs(t, h.store.Ack(h.ctx, waiting), queue.ErrNotActive)
		require.ErrorIs(t, h.store.Ack(h.ctx, "0190b7c4-0000-7000-8000-000000000000"), queue.ErrJobNotFound)
	}
}

func testNackBackoff(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendSMS, queue.WithMaxAttempts(3))

		var prevNext time.Time
		for attempt := 1; attempt <= 3; attempt++ {
			job := h.leaseOne(t, "w")
			require.Equal(t, id, job.ID)

			now := h.clock.Now()
			reason := fmt.Sprintf("provider error %d", attempt)
			require.NoError(t, h.store.Nack(h.ctx, id, reason))

			job = h.get(t, id)
			assert.Equal(t, attempt, job.Attempts)
			assert.Equal(t, reason, job.LastError)
			assert.Empty(t, job.LeaseOwner)

			if attempt < 3 {
				expected := now.Add(queue.DefaultBaseDelay << (attempt - 1))
				assert.Equal(t, queue.StateDelayedRetry, job.State)
				assert.True(t, job.NextRunAt.Equal(expected), "attempt %d next run %s want %s", attempt, job.NextRunAt, expected)
				assert.True(t, job.NextRunAt.After(prevNext))
				prevNext = job.NextRunAt

				early, err := h.store.Lease(h.ctx, "w", 1)
				require.NoError(t, err)
				assert.Empty(t, early, "leased before backoff elapsed")

				h.clock.Set(job.NextRunAt)
				continue
			}

			assert.Equal(t, queue.StateFailed, job.State)
			assert.NotNil(t, job.FailedAt)
		}

		h.clock.Advance(24 * time.Hour)
		jobs, err := h.store.Lease(h.ctx, "w", 1)
		require.NoError(t, err)
		assert.Empty(t, jobs, "failed job leased again")
		assert.Equal(t, 3, h.get(t, id).Attempts)
	}
}

func testNackNotActive(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendSMS)
		require.ErrorIs(t, h.store.Nack(h.ctx, id, "x"), queue.ErrNotActive)
		require.ErrorIs(t, h.store.Fail(h.ctx, id, "x"), queue.ErrNotActive)
		require.ErrorIs(t, h.store.Nack(h.ctx, "0190b7c4-0000-7000-8000-000000000001", "x"), queue.ErrJobNotFound)
		assert.Equal(t, 0, h.get(t, id).Attempts)
	}
}

func testSecondAttempt(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendEmail, queue.WithMaxAttempts(3))
		h.leaseOne(t, "w")
		require.NoError(t, h.store.Nack(h.ctx, id, "timeout"))

		h.clock.Advance(queue.DefaultBaseDelay)
		h.leaseOne(t, "w")
		require.NoError(t, h.store.Ack(h.ctx, id))

		job := h.get(t, id)
		assert.Equal(t, queue.StateCompleted, job.State)
		assert.Equal(t, 2, job.Attempts)
		assert.Equal(t, "timeout", job.LastError)
	}
}

func testFail(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		id := h.enqueue(t, queue.KindSendSMS, queue.WithMaxAttempts(5))
		h.leaseOne(t, "w")
		require.NoError(t, h.store.Fail(h.ctx, id, "invalid phone number"))

		job := h.get(t, id)
		assert.Equal(t, queue.StateFailed, job.State)
		assert.Equal(t, 1, job.Attempts)
		assert.Equal(t, "invalid phone number", job.LastError)

		h.clock.Advance(time.Hour)
		jobs, err := h.store.Lease(h.ctx, "w", 1)
		require.NoError(t, err)
		assert.Empty(t, jobs)
	}
}

func testReclaim(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory, queue.WithLeaseTTL(time.Minute))

		id := h.enqueue(t, queue.KindSendSMS)
		other := h.enqueue(t, queue.KindSendSMS, queue.WithDelay(time.Hour))
		h.leaseOne(t, "crashed-worker")

		n, err := h.store.ReclaimExpiredLeases(h.ctx)
		require.NoError(t, err)
		assert.Zero(t, n, "lease still valid")

		h.clock.Advance(time.Minute)
		n, err = h.store.ReclaimExpiredLeases(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)

		job := h.get(t, id)
		assert.Equal(t, queue.StateWaiting, job.State)
		assert.Equal(t, 0, job.Attempts)
		assert.Empty(t, job.LeaseOwner)
		assert.Nil(t, job.LeaseExpiresAt)
		assert.Equal(t, queue.StateWaiting, h.get(t, other).State)

		again := h.leaseOne(t, "healthy-worker")
		assert.Equal(t, id, again.ID)
		assert.Equal(t, "healthy-worker", again.LeaseOwner)
		require.NoError(t, h.store.Ack(h.ctx, id))
		assert.Equal(t, 1, h.get(t, id).Attempts)
	}
}

func testPrune(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory, queue.WithRetention(queue.Retention{Completed: 2, Failed: 1}))

		var completed, failed []string
		for range 4 {
			id := h.enqueue(t, queue.KindSendSMS)
			h.leaseOne(t, "w")
			h.clock.Advance(time.Second)
			require.NoError(t, h.store.Ack(h.ctx, id))
			completed = append(completed, id)
		}
		for range 3 {
			id := h.enqueue(t, queue.KindSendSMS, queue.WithMaxAttempts(1))
			h.leaseOne(t, "w")
			h.clock.Advance(time.Second)
			require.NoError(t, h.store.Nack(h.ctx, id, "boom"))
			failed = append(failed, id)
		}
		pending := []string{
			h.enqueue(t, queue.KindSendSMS),
			h.enqueue(t, queue.KindSendSMS, queue.WithDelay(time.Hour)),
		}

		n, err := h.store.Prune(h.ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), n)

		s := h.stats(t)
		assert.Equal(t, int64(2), s.Completed)
		assert.Equal(t, int64(1), s.Failed)
		assert.Equal(t, int64(2), s.Waiting)

		for _, id := range completed[:2] {
			_, err := h.store.Get(h.ctx, id)
			require.ErrorIs(t, err, queue.ErrJobNotFound)
		}
		for _, id := range completed[2:] {
			h.get(t, id)
		}
		for _, id := range failed[:2] {
			_, err := h.store.Get(h.ctx, id)
			require.ErrorIs(t, err, queue.ErrJobNotFound)
		}
		h.get(t, failed[2])
		for _, id := range pending {
			h.get(t, id)
		}

		n, err = h.store.Prune(h.ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	}
}

func testStats(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		assert.Equal(t, queue.Stats{}, h.stats(t))

		done := h.enqueue(t, queue.KindSendSMS)
		h.leaseOne(t, "w")
		require.NoError(t, h.store.Ack(h.ctx, done))

		retry := h.enqueue(t, queue.KindSendSMS)
		h.leaseOne(t, "w")
		require.NoError(t, h.store.Nack(h.ctx, retry, "x"))

		h.enqueue(t, queue.KindSendSMS)
		h.leaseOne(t, "w")
		h.enqueue(t, queue.KindSendSMS, queue.WithDelay(time.Hour))

		assert.Equal(t, queue.Stats{Waiting: 1, Active: 1, DelayedRetry: 1, Completed: 1}, h.stats(t))
	}
}

func testList(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		var ids []string
		for range 3 {
			id := h.enqueue(t, queue.KindSendSMS)
			h.leaseOne(t, "w")
			h.clock.Advance(time.Second)
			require.NoError(t, h.store.Ack(h.ctx, id))
			ids = append(ids, id)
		}
		h.enqueue(t, queue.KindSendSMS)

		jobs, err := h.store.List(h.ctx, queue.StateCompleted, 2)
		require.NoError(t, err)
		require.Len(t, jobs, 2)
		assert.Equal(t, ids[2], jobs[0].ID)
		assert.Equal(t, ids[1], jobs[1].ID)

		waiting, err := h.store.List(h.ctx, queue.StateWaiting, 10)
		require.NoError(t, err)
		assert.Len(t, waiting, 1)
	}
}

func testGetNotFound(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)

		_, err := h.store.Get(h.ctx, "0190b7c4-0000-7000-8000-0000000000ff")
		require.ErrorIs(t, err, queue.ErrJobNotFound)
	}
}

func testPing(factory Factory) func(*testing.T) {
	return func(t *testing.T) {
		h := setup(t, factory)
		require.NoError(t, h.store.Ping(h.ctx))
		require.NoError(t, queue.Healthcheck(h.store)(h.ctx))
	}
}
