package notify

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// Payload is one of the notification payload types of this package.
type Payload interface {
	Kind() queue.Kind
	Validate() error
	// Dispatch calls the Handler method for the concrete payload type.
	Dispatch(ctx context.Context, h Handler) error
}

// Deduplicated payloads always enqueue under their own dedup key.
type Deduplicated interface {
	DedupKey() string
}

// Handler processes each payload kind.
type Handler interface {
	HandleSMS(ctx context.Context, p *SMS) error
	HandleEmail(ctx context.Context, p *Email) error
	HandleOrderNotification(ctx context.Context, p *OrderNotification) error
	HandleMaintenanceReminder(ctx context.Context, p *MaintenanceReminder) error
	HandleBookingConfirmation(ctx context.Context, p *BookingConfirmation) error
}

// New returns an empty payload for kind.
func New(kind queue.Kind) (Payload, error) {
	switch kind {
	case queue.KindSendSMS:
		return &SMS{}, nil
	case queue.KindSendEmail:
		return &Email{}, nil
	case queue.KindOrderNotification:
		return &OrderNotification{}, nil
	case queue.KindMaintenanceReminder:
		return &MaintenanceReminder{}, nil
	case queue.KindBookingConfirmation:
		return &BookingConfirmation{}, nil
	}
	return nil, queue.ErrUnknownKind
}

// Decode parses a stored job payload into its typed form.
func Decode(kind queue.Kind, raw []byte) (Payload, error) {
	p, err := New(kind)
	if err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, errors.Join(ErrDecode, err)
	}
	return p, nil
}

// DecodeJob decodes the payload of a leased job.
func DecodeJob(job *queue.Job) (Payload, error) {
	return Decode(job.Kind, job.Payload)
}
