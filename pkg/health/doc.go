// Package health serves liveness and readiness probes for the worker and
// scheduler processes.
//
// Readiness runs named [Checks] in parallel under a shared timeout:
//
//	r.Get("/health/live", health.LivenessHandler())
//	r.Get("/health/ready", health.ReadinessHandler(health.Checks{
//		"queue":  queue.Healthcheck(store),
//		"worker": worker.Healthcheck(w),
//	}))
//
// Handlers answer "OK" or "Service Unavailable" in plain text, and JSON
// when the request sends Accept: application/json or ?format=json.
// [Run] evaluates the same checks outside HTTP, for startup gating.
package health
