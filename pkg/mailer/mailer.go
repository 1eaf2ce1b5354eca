package mailer

import (
	"context"
	"errors"
	"log/slog"
)

// Mailer validates emails and delegates delivery to a Sender.
type Mailer struct {
	sender Sender
	from   string
}

// Option configures a Mailer.
type Option func(*Mailer)

// WithFrom sets the sender address used when an Email has none.
func WithFrom(from string) Option {
	return func(m *Mailer) {
		m.from = from
	}
}

// New creates a Mailer around sender.
func New(sender Sender, opts ...Option) *Mailer {
	m := &Mailer{sender: sender}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Send validates email and sends it. Provider errors are joined with
// ErrSendFailed; errors already marked ErrRejected keep that mark.
func (m *Mailer) Send(ctx context.Context, email *Email) (Receipt, error) {
	if err := Validate(email); err != nil {
		return Receipt{}, err
	}
	if email.From == "" && m.from != "" {
		cp := *email
		cp.From = m.from
		email = &cp
	}

	receipt, err := m.sender.Send(ctx, email)
	if err != nil {
		return Receipt{}, errors.Join(ErrSendFailed, err)
	}
	return receipt, nil
}

// LogSender logs emails instead of delivering them. Used in development.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a LogSender writing to log.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, email *Email) (Receipt, error) {
	s.log.InfoContext(ctx, "email not delivered: log sender",
		slog.Any("to", email.To),
		slog.String("subject", email.Subject),
		slog.Int("html_bytes", len(email.HTML)),
		slog.String("text", email.Text),
	)
	return Receipt{Provider: "log"}, nil
}

var (
	_ Sender = (*Mailer)(nil)
	_ Sender = (*LogSender)(nil)
	_ Sender = SenderFunc(nil)
)
