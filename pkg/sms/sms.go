// Package sms defines the SMS delivery provider interface.
//
// A [Sender] delivers one [Message] and returns the provider [Receipt].
// Errors joined with [ErrRejected] are permanent, for example a number the
// carrier reports as invalid, and make the worker fail the job instead of
// retrying it.
package sms

import (
	"context"
	"errors"
	"log/slog"
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNoRecipient indicates the message has no phone number.
	ErrNoRecipient = errors.New("sms: message must have a recipient")

	// ErrInvalidRecipient indicates the phone number is not E.164.
	ErrInvalidRecipient = errors.New("sms: recipient must be an E.164 number")

	// ErrNoBody indicates the message text is empty.
	ErrNoBody = errors.New("sms: message must have a body")

	// ErrBodyTooLong indicates the text exceeds MaxBodyLength characters.
	ErrBodyTooLong = errors.New("sms: message body too long")

	// ErrSendFailed indicates the provider call failed.
	ErrSendFailed = errors.New("sms: failed to send message")

	// ErrRejected marks failures that will not succeed on retry.
	ErrRejected = errors.New("sms: message rejected")
)

// MaxBodyLength is the provider limit for a concatenated message.
const MaxBodyLength = 1600

var e164 = regexp.MustCompile(`^\+[1-9][0-9]{6,14}$`)

// Message is a single text message.
type Message struct {
	To   string
	Body string
}

// Receipt is the provider acknowledgement of an accepted message.
type Receipt struct {
	ID       string
	Provider string
}

// Sender delivers text messages.
type Sender interface {
	Send(ctx context.Context, msg *Message) (Receipt, error)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg *Message) (Receipt, error)

func (f SenderFunc) Send(ctx context.Context, msg *Message) (Receipt, error) { return f(ctx, msg) }

// Validate checks msg before it reaches a provider. Invalid messages are
// rejected permanently.
func Validate(msg *Message) error {
	switch {
	case msg == nil || msg.To == "":
		return errors.Join(ErrRejected, ErrNoRecipient)
	case !e164.MatchString(msg.To):
		return errors.Join(ErrRejected, ErrInvalidRecipient)
	case strings.TrimSpace(msg.Body) == "":
		return errors.Join(ErrRejected, ErrNoBody)
	case utf8.RuneCountInString(msg.Body) > MaxBodyLength:
		return errors.Join(ErrRejected, ErrBodyTooLong)
	}
	return nil
}

// Client validates messages and wraps provider errors with ErrSendFailed.
type Client struct {
	sender Sender
}

// New creates a Client around sender.
func New(sender Sender) *Client {
	return &Client{sender: sender}
}

func (c *Client) Send(ctx context.Context, msg *Message) (Receipt, error) {
	if err := Validate(msg); err != nil {
		return Receipt{}, err
	}
	receipt, err := c.sender.Send(ctx, msg)
	if err != nil {
		return Receipt{}, errors.Join(ErrSendFailed, err)
	}
	return receipt, nil
}

// LogSender logs messages instead of delivering them. Used in development.
type LogSender struct {
	log *slog.Logger
}

// NewLogSender creates a LogSender writing to log.
func NewLogSender(log *slog.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(ctx context.Context, msg *Message) (Receipt, error) {
	s.log.InfoContext(ctx, "sms not delivered: log sender",
		slog.String("to", msg.To),
		slog.String("body", msg.Body),
	)
	return Receipt{Provider: "log"}, nil
}

var (
	_ Sender = (*Client)(nil)
	_ Sender = (*LogSender)(nil)
	_ Sender = SenderFunc(nil)
)
