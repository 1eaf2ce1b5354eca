package resend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/resend/resend-go/v3"

	"github.com/PermAdut/autoservice-notify/pkg/mailer"
)

// ErrMissingAPIKey is returned by New without an API key.
var ErrMissingAPIKey = errors.New("resend: api key is required")

// emailSender is the part of the Resend client used here.
type emailSender interface {
	SendWithContext(ctx context.Context, params *resend.SendEmailRequest) (*resend.SendEmailResponse, error)
}

// Sender implements mailer.Sender using the Resend API.
type Sender struct {
	emails emailSender
	config Config
}

// New creates a new Resend sender.
func New(cfg Config) (*Sender, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	client := resend.NewCustomClient(&http.Client{Timeout: cfg.Timeout}, cfg.APIKey)
	return &Sender{emails: client.Emails, config: cfg}, nil
}

// Send implements mailer.Sender.
func (s *Sender) Send(ctx context.Context, email *mailer.Email) (mailer.Receipt, error) {
	if err := mailer.Validate(email); err != nil {
		return mailer.Receipt{}, err
	}

	from := email.From
	if from == "" {
		from = s.config.From()
	}

	req := &resend.SendEmailRequest{
		From:    from,
		To:      email.To,
		Subject: email.Subject,
		Html:    email.HTML,
		Text:    email.Text,
		ReplyTo: email.ReplyTo,
		Headers: email.Headers,
	}
	if len(email.Tags) > 0 {
		req.Tags = convertTags(email.Tags)
	}

	resp, err := s.emails.SendWithContext(ctx, req)
	if err != nil {
		if rejected(err) {
			return mailer.Receipt{}, errors.Join(mailer.ErrRejected, fmt.Errorf("resend: %w", err))
		}
		return mailer.Receipt{}, fmt.Errorf("resend: failed to send email: %w", err)
	}

	receipt := mailer.Receipt{Provider: "resend"}
	if resp != nil {
		receipt.ID = resp.Id
	}
	return receipt, nil
}

// rejected reports API validation failures, which fail again on retry.
func rejected(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "validation_error") ||
		strings.Contains(msg, "invalid `to` field") ||
		strings.Contains(msg, "invalid_to_address")
}

func convertTags(tags mailer.Tags) []resend.Tag {
	result := make([]resend.Tag, 0, len(tags))
	for name, value := range tags {
		result = append(result, resend.Tag{Name: name, Value: tagValue(value)})
	}
	return result
}

// tagValue converts any value to a string for Resend's tag API.
// Presence-only tags (struct{}{}) become "true".
func tagValue(v any) string {
	switch val := v.(type) {
	case nil, struct{}:
		return "true"
	case string:
		return val
	case bool:
		return strconv.FormatBool(val)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

var _ mailer.Sender = (*Sender)(nil)
