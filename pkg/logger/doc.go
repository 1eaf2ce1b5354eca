// Package logger builds the slog loggers used by the worker and scheduler.
//
// Records go to stdout as JSON (or text) and, when SENTRY_DSN is set, also to
// Sentry: errors become issues, records at or above SENTRY_MIN_LEVEL are
// stored as logs. A missing or broken DSN falls back to stdout only.
//
// Context extractors add request-scoped attributes at log time. The worker
// tags every record of a job run:
//
//	log := logger.NewFromConfig(cfg.Log, logger.DefaultExtractors()...)
//	ctx = logger.WithWorkerID(ctx, "worker-1")
//	ctx = logger.WithJob(ctx, logger.JobInfo{ID: job.ID, Kind: "send_sms", Attempt: 1})
//	log.InfoContext(ctx, "job completed")
//	// {"level":"INFO","msg":"job completed","worker_id":"worker-1","job":{"id":"...","kind":"send_sms","attempt":1}}
//
// [NewNope] returns a logger that discards everything; packages use it as
// their default.
package logger
