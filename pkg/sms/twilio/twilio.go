// Package twilio implements sms.Sender with the Twilio Messaging API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twilio/twilio-go"
	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/PermAdut/autoservice-notify/pkg/sms"
)

// Config holds Twilio credentials, populated by caarlos0/env.
type Config struct {
	AccountSID string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken  string `env:"TWILIO_AUTH_TOKEN"`
	// Sender number in E.164. Ignored when MessagingServiceSID is set.
	From                string        `env:"TWILIO_FROM_NUMBER"`
	MessagingServiceSID string        `env:"TWILIO_MESSAGING_SERVICE_SID"`
	Timeout             time.Duration `env:"TWILIO_TIMEOUT" envDefault:"15s"`
}

var (
	ErrMissingCredentials = errors.New("twilio: account sid and auth token are required")
	ErrMissingSender      = errors.New("twilio: from number or messaging service sid is required")
)

// Error codes that fail again on retry: invalid or unreachable numbers,
// opted-out recipients and blocked regions.
var permanentCodes = map[int]bool{
	21211: true, // invalid To number
	21408: true, // region not enabled
	21610: true, // recipient replied STOP
	21612: true, // To not reachable from From
	21614: true, // not a mobile number
}

type messageCreator interface {
	CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error)
}

// Sender sends SMS through Twilio.
type Sender struct {
	api    messageCreator
	config Config
}

// New creates a Twilio sender.
func New(cfg Config) (*Sender, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, ErrMissingCredentials
	}
	if cfg.From == "" && cfg.MessagingServiceSID == "" {
		return nil, ErrMissingSender
	}

	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	if cfg.Timeout > 0 {
		client.SetTimeout(cfg.Timeout)
	}
	return &Sender{api: client.Api, config: cfg}, nil
}

// Send implements sms.Sender. The Twilio client has no context support, so
// the call runs in a goroutine and Send returns early when ctx ends.
func (s *Sender) Send(ctx context.Context, msg *sms.Message) (sms.Receipt, error) {
	if err := sms.Validate(msg); err != nil {
		return sms.Receipt{}, err
	}

	params := &api.CreateMessageParams{}
	params.SetTo(msg.To)
	params.SetBody(msg.Body)
	if s.config.MessagingServiceSID != "" {
		params.SetMessagingServiceSid(s.config.MessagingServiceSID)
	} else {
		params.SetFrom(s.config.From)
	}

	type result struct {
		resp *api.ApiV2010Message
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.api.CreateMessage(params)
		done <- result{resp, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return sms.Receipt{}, fmt.Errorf("twilio: %w", ctx.Err())
	case r = <-done:
	}

	if r.err != nil {
		var restErr *twclient.TwilioRestError
		if errors.As(r.err, &restErr) && permanentCodes[restErr.Code] {
			return sms.Receipt{}, errors.Join(sms.ErrRejected,
				fmt.Errorf("twilio: error %d: %s", restErr.Code, restErr.Message))
		}
		return sms.Receipt{}, fmt.Errorf("twilio: failed to send message: %w", r.err)
	}

	receipt := sms.Receipt{Provider: "twilio"}
	if r.resp != nil && r.resp.Sid != nil {
		receipt.ID = *r.resp.Sid
	}
	return receipt, nil
}

var _ sms.Sender = (*Sender)(nil)
