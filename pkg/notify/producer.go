package notify

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/PermAdut/autoservice-notify/pkg/logger"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// Enqueuer is the part of queue.Store the Producer needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, kind queue.Kind, payload []byte, opts ...queue.EnqueueOption) (string, error)
}

// Producer validates payloads and enqueues them without waiting for delivery.
type Producer struct {
	store    Enqueuer
	log      *slog.Logger
	defaults []queue.EnqueueOption
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithLogger sets the logger. Default discards output.
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) {
		if l != nil {
			p.log = l
		}
	}
}

// WithDefaults applies opts to every enqueue before the per-call options.
func WithDefaults(opts ...queue.EnqueueOption) ProducerOption {
	return func(p *Producer) {
		p.defaults = append(p.defaults, opts...)
	}
}

// NewProducer creates a Producer writing to store.
func NewProducer(store Enqueuer, opts ...ProducerOption) *Producer {
	p := &Producer{store: store, log: logger.NewNope()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue validates payload and persists it as a job. Deduplicated payloads
// always use their own dedup key, overriding any WithDedupKey option.
func (p *Producer) Enqueue(ctx context.Context, payload Payload, opts ...queue.EnqueueOption) (string, error) {
	if payload == nil {
		return "", &ValidationError{Field: "payload", Reason: "is required"}
	}
	if err := payload.Validate(); err != nil {
		return "", err
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", errors.Join(ErrValidation, err)
	}

	all := make([]queue.EnqueueOption, 0, len(p.defaults)+len(opts)+1)
	all = append(all, p.defaults...)
	all = append(all, opts...)
	if d, ok := payload.(Deduplicated); ok {
		all = append(all, queue.WithDedupKey(d.DedupKey()))
	}

	id, err := p.store.Enqueue(ctx, payload.Kind(), raw, all...)
	if err != nil {
		p.log.ErrorContext(ctx, "failed to enqueue notification",
			slog.String("kind", string(payload.Kind())),
			slog.Any("error", err),
		)
		return "", err
	}

	p.log.DebugContext(ctx, "notification enqueued",
		slog.String("kind", string(payload.Kind())),
		slog.String("job_id", id),
	)
	return id, nil
}

// EnqueueSMS enqueues a raw SMS.
func (p *Producer) EnqueueSMS(ctx context.Context, phone, message string, opts ...queue.EnqueueOption) (string, error) {
	return p.Enqueue(ctx, &SMS{Phone: phone, Message: message}, opts...)
}

// EnqueueEmail enqueues a pre-rendered email. text may be empty.
func (p *Producer) EnqueueEmail(ctx context.Context, to, subject, html, text string, opts ...queue.EnqueueOption) (string, error) {
	return p.Enqueue(ctx, &Email{To: to, Subject: subject, HTML: html, Text: text}, opts...)
}

// EnqueueOrderNotification enqueues an order status notification.
func (p *Producer) EnqueueOrderNotification(ctx context.Context, n OrderNotification, opts ...queue.EnqueueOption) (string, error) {
	return p.Enqueue(ctx, &n, opts...)
}

// EnqueueMaintenanceReminder enqueues a reminder under "reminder:"+ReminderID.
func (p *Producer) EnqueueMaintenanceReminder(ctx context.Context, r MaintenanceReminder, opts ...queue.EnqueueOption) (string, error) {
	return p.Enqueue(ctx, &r, opts...)
}

// EnqueueBookingConfirmation enqueues a confirmation under "booking:"+AppointmentID.
func (p *Producer) EnqueueBookingConfirmation(ctx context.Context, b BookingConfirmation, opts ...queue.EnqueueOption) (string, error) {
	return p.Enqueue(ctx, &b, opts...)
}
