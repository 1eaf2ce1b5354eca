// Package notify defines the typed notification payloads and the Producer
// that enqueues them.
//
// Every payload carries the denormalized data needed to deliver it, so the
// worker never looks anything up at send time. Dispatch is a closed visitor:
// each payload calls the matching [Handler] method, and a new kind only
// compiles once every handler implements it.
//
// Producer calls validate before touching the store and return as soon as
// the job is persisted or found pending under the same dedup key:
//
//	p := notify.NewProducer(store, notify.WithLogger(log))
//	id, err := p.EnqueueMaintenanceReminder(ctx, notify.MaintenanceReminder{...})
//	switch {
//	case errors.Is(err, notify.ErrValidation):
//		// bad input, report to the caller
//	case errors.Is(err, queue.ErrStorageUnavailable):
//		// infrastructure problem
//	}
package notify
