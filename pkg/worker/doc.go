// Package worker consumes the notification queue.
//
// A Worker leases batches of jobs, decodes each payload and dispatches it
// to the handler for its kind. Raw SMS and email jobs go straight to the
// provider. Order, reminder and booking notifications are rendered from
// templates and sent to every channel the recipient has; the
// [ChannelPolicy] decides whether partial delivery counts as success.
//
// Outcomes map onto the store:
//
//   - success: Ack
//   - provider rejection, bad payload, broken template: Fail
//   - anything else, including panics and timeouts: Nack with backoff
//
// Run also reclaims expired leases and prunes terminal jobs on their own
// intervals. Cancelling its context stops leasing; jobs already in flight
// finish on a detached context bounded by the delivery timeout.
//
//	w, err := worker.New(store, sms.New(twilioSender), mailer.New(resendSender),
//		worker.WithConcurrency(20),
//		worker.WithReminderMarker(reminders),
//		worker.WithLogger(log),
//	)
//	if err != nil {
//		return err
//	}
//	return w.Run(ctx)
package worker
