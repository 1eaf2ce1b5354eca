package notify

import (
	"context"
	"time"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

// SMS is a raw text message to one phone number.
type SMS struct {
	Phone   string `json:"phone"`
	Message string `json:"message"`
}

func (*SMS) Kind() queue.Kind { return queue.KindSendSMS }

func (p *SMS) Validate() error {
	if !ValidPhone(p.Phone) {
		return invalid(p.Kind(), "phone", "must be in E.164 format")
	}
	return requireText(p.Kind(), "message", p.Message)
}

func (p *SMS) Dispatch(ctx context.Context, h Handler) error { return h.HandleSMS(ctx, p) }

// Email is a pre-rendered email to one address. Text is derived from HTML
// at delivery time when empty.
type Email struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text,omitempty"`
}

func (*Email) Kind() queue.Kind { return queue.KindSendEmail }

func (p *Email) Validate() error {
	if !ValidEmail(p.To) {
		return invalid(p.Kind(), "to", "must be a valid email address")
	}
	if err := requireText(p.Kind(), "subject", p.Subject); err != nil {
		return err
	}
	return requireText(p.Kind(), "html", p.HTML)
}

func (p *Email) Dispatch(ctx context.Context, h Handler) error { return h.HandleEmail(ctx, p) }

// OrderStatus is the repair order state reported to the customer.
type OrderStatus string

const (
	OrderStatusCreated    OrderStatus = "created"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusWaitParts  OrderStatus = "waiting_for_parts"
	OrderStatusReady      OrderStatus = "ready_for_pickup"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// OrderNotification tells a customer their repair order changed status.
type OrderNotification struct {
	OrderID     string      `json:"order_id"`
	OrderNumber string      `json:"order_number,omitempty"`
	Status      OrderStatus `json:"status"`
	// Total in minor currency units, zero when not applicable.
	TotalCents int64   `json:"total_cents,omitempty"`
	Currency   string  `json:"currency,omitempty"`
	Car        Car     `json:"car"`
	Recipient  Contact `json:"recipient"`
	Company    Company `json:"company"`
}

func (*OrderNotification) Kind() queue.Kind { return queue.KindOrderNotification }

// Reference is the order number shown to customers, the id when unset.
func (p *OrderNotification) Reference() string {
	if p.OrderNumber != "" {
		return p.OrderNumber
	}
	return p.OrderID
}

func (p *OrderNotification) Validate() error {
	if err := requireText(p.Kind(), "order_id", p.OrderID); err != nil {
		return err
	}
	if err := requireText(p.Kind(), "status", string(p.Status)); err != nil {
		return err
	}
	if err := validateContact(p.Kind(), p.Recipient); err != nil {
		return err
	}
	return validateCompany(p.Kind(), p.Company)
}

func (p *OrderNotification) Dispatch(ctx context.Context, h Handler) error {
	return h.HandleOrderNotification(ctx, p)
}

// MaintenanceReminder tells a customer a service is due by date, mileage or both.
type MaintenanceReminder struct {
	ReminderID string     `json:"reminder_id"`
	Car        Car        `json:"car"`
	Type       string     `json:"type"`
	DueDate    *time.Time `json:"due_date,omitempty"`
	DueMileage *int       `json:"due_mileage,omitempty"`
	Recipient  Contact    `json:"recipient"`
	Company    Company    `json:"company"`
}

func (*MaintenanceReminder) Kind() queue.Kind { return queue.KindMaintenanceReminder }

// DedupKey keeps repeated scheduler scans from enqueueing a reminder twice.
func (p *MaintenanceReminder) DedupKey() string { return "reminder:" + p.ReminderID }

func (p *MaintenanceReminder) Validate() error {
	if err := requireText(p.Kind(), "reminder_id", p.ReminderID); err != nil {
		return err
	}
	if err := requireText(p.Kind(), "type", p.Type); err != nil {
		return err
	}
	if p.Car.empty() {
		return invalid(p.Kind(), "car", "is required")
	}
	if p.DueDate == nil && p.DueMileage == nil {
		return invalid(p.Kind(), "due_date", "or due_mileage is required")
	}
	if p.DueMileage != nil && *p.DueMileage <= 0 {
		return invalid(p.Kind(), "due_mileage", "must be positive")
	}
	if err := validateContact(p.Kind(), p.Recipient); err != nil {
		return err
	}
	return validateCompany(p.Kind(), p.Company)
}

func (p *MaintenanceReminder) Dispatch(ctx context.Context, h Handler) error {
	return h.HandleMaintenanceReminder(ctx, p)
}

// BookingConfirmation confirms an appointment to the customer.
type BookingConfirmation struct {
	AppointmentID    string    `json:"appointment_id"`
	ConfirmationCode string    `json:"confirmation_code"`
	ScheduledAt      time.Time `json:"scheduled_at"`
	Service          string    `json:"service,omitempty"`
	Car              Car       `json:"car"`
	// Optional link for rescheduling or cancelling, rendered as a button.
	ManageURL string  `json:"manage_url,omitempty"`
	Recipient Contact `json:"recipient"`
	Company   Company `json:"company"`
}

func (*BookingConfirmation) Kind() queue.Kind { return queue.KindBookingConfirmation }

// DedupKey makes confirmations for one appointment idempotent.
func (p *BookingConfirmation) DedupKey() string { return "booking:" + p.AppointmentID }

func (p *BookingConfirmation) Validate() error {
	if err := requireText(p.Kind(), "appointment_id", p.AppointmentID); err != nil {
		return err
	}
	if err := requireText(p.Kind(), "confirmation_code", p.ConfirmationCode); err != nil {
		return err
	}
	if p.ScheduledAt.IsZero() {
		return invalid(p.Kind(), "scheduled_at", "is required")
	}
	if err := validateContact(p.Kind(), p.Recipient); err != nil {
		return err
	}
	return validateCompany(p.Kind(), p.Company)
}

func (p *BookingConfirmation) Dispatch(ctx context.Context, h Handler) error {
	return h.HandleBookingConfirmation(ctx, p)
}

var (
	_ Payload      = (*SMS)(nil)
	_ Payload      = (*Email)(nil)
	_ Payload      = (*OrderNotification)(nil)
	_ Payload      = (*MaintenanceReminder)(nil)
	_ Payload      = (*BookingConfirmation)(nil)
	_ Deduplicated = (*MaintenanceReminder)(nil)
	_ Deduplicated = (*BookingConfirmation)(nil)
)
