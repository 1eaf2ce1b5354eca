package logger

import (
	"context"
	"log/slog"
)

type (
	jobKey    struct{}
	workerKey struct{}
)

// JobInfo identifies the job being processed in log records.
type JobInfo struct {
	ID      string
	Kind    string
	Attempt int
}

// WithJob stores job identity in ctx for JobExtractor.
func WithJob(ctx context.Context, info JobInfo) context.Context {
	return context.WithValue(ctx, jobKey{}, info)
}

// JobFromContext returns the job stored by WithJob.
func JobFromContext(ctx context.Context) (JobInfo, bool) {
	info, ok := ctx.Value(jobKey{}).(JobInfo)
	return info, ok
}

// WithWorkerID stores the worker id in ctx for WorkerExtractor.
func WithWorkerID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workerKey{}, id)
}

// JobExtractor adds a "job" group with id, kind and attempt.
func JobExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		info, ok := JobFromContext(ctx)
		if !ok || info.ID == "" {
			return slog.Attr{}, false
		}
		return slog.Group("job",
			slog.String("id", info.ID),
			slog.String("kind", info.Kind),
			slog.Int("attempt", info.Attempt),
		), true
	}
}

// WorkerExtractor adds "worker_id".
func WorkerExtractor() ContextExtractor {
	return func(ctx context.Context) (slog.Attr, bool) {
		id, ok := ctx.Value(workerKey{}).(string)
		if !ok || id == "" {
			return slog.Attr{}, false
		}
		return slog.String("worker_id", id), true
	}
}

// DefaultExtractors returns the extractors every process installs.
func DefaultExtractors() []ContextExtractor {
	return []ContextExtractor{WorkerExtractor(), JobExtractor()}
}
