// Package mailer defines the email delivery provider interface.
//
// A [Sender] delivers one fully rendered [Email] and returns the provider
// [Receipt]. [Mailer] wraps any Sender with validation and a default From
// address. Errors joined with [ErrRejected] are permanent: the worker fails
// the job instead of retrying it.
//
// Providers live in subpackages ([github.com/PermAdut/autoservice-notify/pkg/mailer/resend]);
// [LogSender] only logs and is meant for local development.
package mailer
