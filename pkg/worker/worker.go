package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/mailer"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
	"github.com/PermAdut/autoservice-notify/pkg/sms"
)

// Worker leases jobs from a queue store and delivers them.
type Worker struct {
	store   queue.Store
	handler notify.Handler
	cfg     *config
	log     *slog.Logger

	sem      *semaphore.Weighted
	inflight sync.WaitGroup

	running         atomic.Bool
	storageFailures atomic.Int64
}

// New creates a Worker. Both senders are required; use the log senders of
// the sms and mailer packages to disable real delivery.
func New(store queue.Store, smsSender sms.Sender, mailSender mailer.Sender, opts ...Option) (*Worker, error) {
	if store == nil {
		return nil, ErrStoreRequired
	}
	if smsSender == nil || mailSender == nil {
		return nil, ErrSenderRequired
	}

	cfg := newConfig(opts...)
	w := &Worker{
		store: store,
		cfg:   cfg,
		log:   cfg.logger,
		sem:   semaphore.NewWeighted(int64(cfg.concurrency)),
	}
	w.handler = &dispatcher{
		sms:      smsSender,
		mail:     mailSender,
		renderer: cfg.renderer,
		marker:   cfg.marker,
		policy:   cfg.policy,
		timeout:  cfg.deliveryTimeout,
		log:      cfg.logger,
	}
	return w, nil
}

// ID returns the lease owner id of this worker.
func (w *Worker) ID() string { return w.cfg.workerID }

// Run processes jobs until ctx is cancelled, then waits for in-flight jobs.
// It returns an error matching ErrStorageFailures when the store keeps
// failing and nil on cancellation.
func (w *Worker) Run(ctx context.Context) error {
	if !w.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer w.running.Store(false)

	ctx = logger.WithWorkerID(ctx, w.cfg.workerID)
	w.log.InfoContext(ctx, "worker started",
		slog.Int("concurrency", w.cfg.concurrency),
		slog.Int("batch_size", w.cfg.batchSize),
		slog.String("channel_policy", w.cfg.policy.String()),
		slog.Any("kinds", queue.KindStrings(w.cfg.kinds)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.leaseLoop(gctx) })
	g.Go(func() error { return w.every(gctx, w.cfg.reclaimInterval, w.reclaim) })
	g.Go(func() error { return w.every(gctx, w.cfg.pruneInterval, w.prune) })

	err := g.Wait()
	w.inflight.Wait()

	if err != nil {
		w.log.ErrorContext(ctx, "worker stopped", slog.Any("error", err))
		return err
	}
	w.log.InfoContext(ctx, "worker stopped")
	return nil
}

// RunOnce leases one batch, processes it and returns the number of jobs
// handled.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	ctx = logger.WithWorkerID(ctx, w.cfg.workerID)

	jobs, err := w.store.Lease(ctx, w.cfg.workerID, w.cfg.batchSize, w.cfg.kinds...)
	if err != nil {
		w.storageFailed(ctx, "lease", err)
		return 0, err
	}
	w.storageOK()

	var wg sync.WaitGroup
	for _, job := range jobs {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			// Unprocessed jobs stay leased until reclaimed.
			wg.Wait()
			return 0, err
		}
		wg.Go(func() {
			defer w.sem.Release(1)
			w.process(context.WithoutCancel(ctx), job)
		})
	}
	wg.Wait()
	return len(jobs), nil
}

func (w *Worker) leaseLoop(ctx context.Context) error {
	for {
		if err := w.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		if ctx.Err() != nil {
			w.sem.Release(1)
			return nil
		}
		slots := 1
		for slots < w.cfg.batchSize && w.sem.TryAcquire(1) {
			slots++
		}

		jobs, err := w.store.Lease(ctx, w.cfg.workerID, slots, w.cfg.kinds...)
		if err != nil {
			w.sem.Release(int64(slots))
			if ctx.Err() != nil {
				return nil
			}
			if n := w.storageFailed(ctx, "lease", err); n >= int64(w.cfg.storageErrorThreshold) {
				return errors.Join(ErrStorageFailures, err)
			}
			if !w.wait(ctx, w.cfg.pollInterval) {
				return nil
			}
			continue
		}
		w.storageOK()

		if unused := slots - len(jobs); unused > 0 {
			w.sem.Release(int64(unused))
		}

		for _, job := range jobs {
			// In-flight jobs finish after shutdown starts.
			jobCtx := context.WithoutCancel(ctx)
			w.inflight.Go(func() {
				defer w.sem.Release(1)
				w.process(jobCtx, job)
			})
		}

		if n := w.storageFailures.Load(); n >= int64(w.cfg.storageErrorThreshold) {
			return fmt.Errorf("%w: %d in a row", ErrStorageFailures, n)
		}

		if len(jobs) == 0 && !w.wait(ctx, w.cfg.pollInterval) {
			return nil
		}
	}
}

// process runs one job and records its outcome in the store.
func (w *Worker) process(ctx context.Context, job *queue.Job) {
	ctx = logger.WithJob(ctx, logger.JobInfo{
		ID:      job.ID,
		Kind:    string(job.Kind),
		Attempt: job.Attempts + 1,
	})
	start := w.cfg.clock.Now()

	err := w.execute(ctx, job)

	attrs := []any{
		slog.Int("max_attempts", job.MaxAttempts),
		slog.Duration("duration", w.cfg.clock.Now().Sub(start)),
	}

	var settleErr error
	switch {
	case err == nil:
		settleErr = w.settle(ctx, func(ctx context.Context) error { return w.store.Ack(ctx, job.ID) })
		w.log.InfoContext(ctx, "job completed", attrs...)
	case Permanent(err):
		settleErr = w.settle(ctx, func(ctx context.Context) error { return w.store.Fail(ctx, job.ID, err.Error()) })
		w.log.ErrorContext(ctx, "job failed permanently", append(attrs, slog.Any("error", err))...)
	default:
		settleErr = w.settle(ctx, func(ctx context.Context) error { return w.store.Nack(ctx, job.ID, err.Error()) })
		level := slog.LevelWarn
		if job.Attempts+1 >= job.MaxAttempts {
			level = slog.LevelError
		}
		w.log.Log(ctx, level, "job attempt failed", append(attrs, slog.Any("error", err))...)
	}

	if settleErr != nil {
		w.log.ErrorContext(ctx, "failed to record job outcome", slog.Any("error", settleErr))
	}
}

// execute decodes and dispatches the payload, converting panics to errors.
func (w *Worker) execute(ctx context.Context, job *queue.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
			w.log.ErrorContext(ctx, "handler panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	payload, err := notify.DecodeJob(job)
	if err != nil {
		return err
	}
	if err := payload.Validate(); err != nil {
		return err
	}
	return payload.Dispatch(ctx, w.handler)
}

// settle runs a store transition with its own deadline.
// Losing the job (not found, no longer active) is not a storage failure.
func (w *Worker) settle(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, w.cfg.deliveryTimeout)
	defer cancel()

	err := fn(ctx)
	switch {
	case err == nil:
		w.storageOK()
	case errors.Is(err, queue.ErrStorageUnavailable):
		w.storageFailed(ctx, "settle", err)
	}
	return err
}

func (w *Worker) reclaim(ctx context.Context) error {
	n, err := w.store.ReclaimExpiredLeases(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.WarnContext(ctx, "reclaimed expired leases", slog.Int64("count", n))
	}
	return nil
}

func (w *Worker) prune(ctx context.Context) error {
	n, err := w.store.Prune(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.log.DebugContext(ctx, "pruned terminal jobs", slog.Int64("count", n))
	}
	return nil
}

// every runs fn each interval until ctx ends. Failures are logged and
// counted, never fatal on their own.
func (w *Worker) every(ctx context.Context, interval time.Duration, fn func(context.Context) error) error {
	for w.wait(ctx, interval) {
		if err := fn(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.storageFailed(ctx, "maintenance", err)
			continue
		}
		w.storageOK()
	}
	return nil
}

// wait blocks for d on the worker clock. It returns false when ctx ended.
func (w *Worker) wait(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-w.cfg.clock.After(d):
		return true
	}
}

func (w *Worker) storageFailed(ctx context.Context, op string, err error) int64 {
	n := w.storageFailures.Add(1)
	w.log.ErrorContext(ctx, "queue store failure",
		slog.String("op", op),
		slog.Int64("consecutive", n),
		slog.Any("error", err),
	)
	return n
}

func (w *Worker) storageOK() { w.storageFailures.Store(0) }

// Healthcheck reports whether w is running and its store is reachable.
// Compatible with health.CheckFunc.
func Healthcheck(w *Worker) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if w == nil {
			return errors.Join(ErrHealthcheckFailed, errWorkerNil)
		}
		if !w.running.Load() {
			return errors.Join(ErrHealthcheckFailed, errNotRunning)
		}
		if w.storageFailures.Load() >= int64(w.cfg.storageErrorThreshold) {
			return errors.Join(ErrHealthcheckFailed, errStorageBroken)
		}
		if err := w.store.Ping(ctx); err != nil {
			return errors.Join(ErrHealthcheckFailed, err)
		}
		return nil
	}
}
