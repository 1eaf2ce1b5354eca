package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/mailer"
	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/sanitizer"
	"github.com/PermAdut/autoservice-notify/pkg/sms"
)

// dispatcher delivers each payload kind. Adding a kind to notify.Handler
// breaks the build here until it is handled.
type dispatcher struct {
	sms      sms.Sender
	mail     mailer.Sender
	renderer Renderer
	marker   ReminderMarker
	policy   ChannelPolicy
	timeout  time.Duration
	log      *slog.Logger
}

var _ notify.Handler = (*dispatcher)(nil)

func (d *dispatcher) HandleSMS(ctx context.Context, p *notify.SMS) error {
	return d.sendSMS(ctx, p.Phone, p.Message)
}

func (d *dispatcher) HandleEmail(ctx context.Context, p *notify.Email) error {
	text := p.Text
	if text == "" {
		text = sanitizer.PlainText(p.HTML)
	}
	return d.sendEmail(ctx, &mailer.Email{
		To:      []string{p.To},
		Subject: p.Subject,
		HTML:    p.HTML,
		Text:    text,
		Tags:    mailer.Tags{"kind": string(p.Kind())},
	})
}

func (d *dispatcher) HandleOrderNotification(ctx context.Context, p *notify.OrderNotification) error {
	return d.deliver(ctx, p, p.Recipient)
}

func (d *dispatcher) HandleMaintenanceReminder(ctx context.Context, p *notify.MaintenanceReminder) error {
	if err := d.deliver(ctx, p, p.Recipient); err != nil {
		return err
	}
	if d.marker == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	if err := d.marker.MarkReminderSent(ctx, p.ReminderID); err != nil {
		return fmt.Errorf("mark reminder %s sent: %w", p.ReminderID, err)
	}
	return nil
}

func (d *dispatcher) HandleBookingConfirmation(ctx context.Context, p *notify.BookingConfirmation) error {
	return d.deliver(ctx, p, p.Recipient)
}

// deliver renders p and sends it to every channel the recipient has.
// Channels are independent: one failing does not skip the other.
func (d *dispatcher) deliver(ctx context.Context, p notify.Payload, to notify.Contact) error {
	msg, err := d.renderer.Render(p)
	if err != nil {
		return errors.Join(ErrPermanent, err)
	}

	var (
		attempted int
		failures  []ChannelFailure
	)
	record := func(ch Channel, err error) {
		attempted++
		if err == nil {
			return
		}
		d.log.WarnContext(ctx, "channel delivery failed",
			slog.String("channel", string(ch)),
			slog.Bool("permanent", Permanent(err)),
			slog.Any("error", err),
		)
		failures = append(failures, ChannelFailure{Channel: ch, Err: err})
	}

	if to.HasPhone() {
		record(ChannelSMS, d.sendSMS(ctx, to.Phone, msg.SMS))
	}
	if to.HasEmail() {
		record(ChannelEmail, d.sendEmail(ctx, &mailer.Email{
			To:      []string{mailer.Recipient(to.Name, to.Email)},
			Subject: msg.Subject,
			HTML:    msg.HTML,
			Text:    msg.Text,
			Tags:    mailer.Tags{"kind": string(p.Kind())},
		}))
	}

	return d.policy.outcome(attempted, failures)
}

func (d *dispatcher) sendSMS(ctx context.Context, to, body string) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	receipt, err := d.sms.Send(ctx, &sms.Message{To: to, Body: body})
	if err != nil {
		return err
	}
	d.log.DebugContext(ctx, "sms sent",
		slog.String("provider", receipt.Provider),
		slog.String("message_id", receipt.ID),
	)
	return nil
}

func (d *dispatcher) sendEmail(ctx context.Context, email *mailer.Email) error {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	receipt, err := d.mail.Send(ctx, email)
	if err != nil {
		return err
	}
	d.log.DebugContext(ctx, "email sent",
		slog.String("provider", receipt.Provider),
		slog.String("message_id", receipt.ID),
	)
	return nil
}
