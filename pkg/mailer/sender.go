package mailer

import (
	"context"
	"errors"
	"net/mail"
)

// Sender defines the minimal interface that email providers must implement.
// It accepts a fully-prepared Email and returns the provider receipt.
type Sender interface {
	Send(ctx context.Context, email *Email) (Receipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, email *Email) (Receipt, error)

func (f SenderFunc) Send(ctx context.Context, email *Email) (Receipt, error) { return f(ctx, email) }

// Validate checks the fields every provider requires. Invalid messages are
// rejected permanently.
func Validate(email *Email) error {
	if email == nil || len(email.To) == 0 {
		return errors.Join(ErrRejected, ErrNoRecipient)
	}
	for _, to := range email.To {
		if _, err := mail.ParseAddress(to); err != nil {
			return errors.Join(ErrRejected, ErrInvalidRecipient, err)
		}
	}
	if email.Subject == "" {
		return errors.Join(ErrRejected, ErrNoSubject)
	}
	if email.HTML == "" {
		return errors.Join(ErrRejected, ErrNoContent)
	}
	return nil
}
