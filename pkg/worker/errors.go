package worker

import (
	"errors"

	"github.com/PermAdut/autoservice-notify/pkg/mailer"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/sms"
)

var (
	ErrStoreRequired  = errors.New("worker: queue store is required")
	ErrSenderRequired = errors.New("worker: sms and email senders are required")
	ErrAlreadyRunning = errors.New("worker: already running")

	// ErrPermanent marks a failure that will not succeed on retry. The job
	// goes straight to Failed.
	ErrPermanent = errors.New("worker: permanent failure")

	// ErrPanic wraps a recovered handler panic. Panics are retried.
	ErrPanic = errors.New("worker: handler panicked")

	// ErrStorageFailures ends Run after too many consecutive store errors.
	ErrStorageFailures = errors.New("worker: too many consecutive storage failures")

	ErrHealthcheckFailed = errors.New("worker: healthcheck failed")

	errWorkerNil     = errors.New("worker is nil")
	errNotRunning    = errors.New("worker not running")
	errStorageBroken = errors.New("storage failure threshold reached")
)

// Permanent reports whether err must fail the job without retry: provider
// rejections, undecodable or invalid payloads and errors marked ErrPermanent.
// A DeliveryError is permanent only when every channel failure is.
func Permanent(err error) bool {
	if err == nil {
		return false
	}
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Permanent()
	}
	return errors.Is(err, ErrPermanent) ||
		errors.Is(err, sms.ErrRejected) ||
		errors.Is(err, mailer.ErrRejected) ||
		errors.Is(err, notify.ErrDecode) ||
		errors.Is(err, notify.ErrValidation)
}
