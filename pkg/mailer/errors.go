package mailer

import "errors"

var (
	// ErrNoRecipient indicates no recipient was specified.
	ErrNoRecipient = errors.New("mailer: email must have at least one recipient")

	// ErrInvalidRecipient indicates a recipient is not a valid address.
	ErrInvalidRecipient = errors.New("mailer: invalid recipient address")

	// ErrNoSubject indicates no subject was provided.
	ErrNoSubject = errors.New("mailer: email must have a subject")

	// ErrNoContent indicates no HTML content was provided.
	ErrNoContent = errors.New("mailer: email must have HTML content")

	// ErrSendFailed indicates the provider call failed.
	ErrSendFailed = errors.New("mailer: failed to send email")

	// ErrRejected marks failures that will not succeed on retry, such as an
	// address the provider refuses.
	ErrRejected = errors.New("mailer: email rejected")
)
