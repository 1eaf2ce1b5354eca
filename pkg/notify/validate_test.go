package notify_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

func TestValidPhone(t *testing.T) {
	t.Parallel()

	for phone, want := range map[string]bool{
		"+10000000000":    true,
		"+15550001111":    true,
		"+442071838750":   true,
		"15550001111":     false,
		"+0123456789":     false,
		"+1 555 000 1111": false,
		"+123":            false,
		"":                false,
	} {
		assert.Equal(t, want, notify.ValidPhone(phone), phone)
	}
}

func TestValidEmail(t *testing.T) {
	t.Parallel()

	for addr, want := range map[string]bool{
		"ann@example.com":         true,
		"a.b+tag@sub.example.io":  true,
		"Ann <ann@example.com>":   false,
		"not-an-email":            false,
		"":                        false,
		"ann@example.com, b@c.io": false,
	} {
		assert.Equal(t, want, notify.ValidEmail(addr), addr)
	}
}

func TestPayloadValidation(t *testing.T) {
	t.Parallel()

	mileage := 0
	testCases := []struct {
		name    string
		payload notify.Payload
		field   string
	}{
		{name: "sms bad phone", payload: &notify.SMS{Phone: "555", Message: "hi"}, field: "phone"},
		{name: "sms empty message", payload: &notify.SMS{Phone: "+10000000000", Message: "  "}, field: "message"},
		{name: "email bad address", payload: &notify.Email{To: "nope", Subject: "s", HTML: "<p>x</p>"}, field: "to"},
		{name: "email no subject", payload: &notify.Email{To: "a@b.io", HTML: "<p>x</p>"}, field: "subject"},
		{name: "email no html", payload: &notify.Email{To: "a@b.io", Subject: "s"}, field: "html"},
		{
			name: "order without contact",
			payload: func() notify.Payload {
				o := order("1")
				o.Recipient = notify.Contact{Name: "Ann"}
				return &o
			}(),
			field: "recipient",
		},
		{
			name: "order bad email",
			payload: func() notify.Payload {
				o := order("1")
				o.Recipient.Email = "ann"
				return &o
			}(),
			field: "recipient.email",
		},
		{
			name: "order without status",
			payload: func() notify.Payload {
				o := order("1")
				o.Status = ""
				return &o
			}(),
			field: "status",
		},
		{
			name: "reminder without due",
			payload: func() notify.Payload {
				r := reminder("1")
				r.DueDate = nil
				return &r
			}(),
			field: "due_date",
		},
		{
			name: "reminder zero mileage",
			payload: func() notify.Payload {
				r := reminder("1")
				r.DueMileage = &mileage
				return &r
			}(),
			field: "due_mileage",
		},
		{
			name: "reminder without car",
			payload: func() notify.Payload {
				r := reminder("1")
				r.Car = notify.Car{}
				return &r
			}(),
			field: "car",
		},
		{
			name: "booking without time",
			payload: func() notify.Payload {
				b := booking("1")
				b.ScheduledAt = time.Time{}
				return &b
			}(),
			field: "scheduled_at",
		},
		{
			name: "booking unknown zone",
			payload: func() notify.Payload {
				b := booking("1")
				b.Company.TimeZone = "Mars/Olympus"
				return &b
			}(),
			field: "company.time_zone",
		},
		{
			name: "booking without company",
			payload: func() notify.Payload {
				b := booking("1")
				b.Company.Name = ""
				return &b
			}(),
			field: "company.name",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := tc.payload.Validate()
			require.ErrorIs(t, err, notify.ErrValidation)

			var verr *notify.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Equal(t, tc.field, verr.Field)
			assert.Equal(t, tc.payload.Kind(), verr.Kind)
		})
	}
}

func TestValidPayloads(t *testing.T) {
	t.Parallel()

	emailOnly := order("2")
	emailOnly.Recipient = notify.Contact{Email: "ann@example.com"}
	mileage := 90000
	byMileage := reminder("3")
	byMileage.DueDate = nil
	byMileage.DueMileage = &mileage
	r, b, o := reminder("1"), booking("1"), order("1")

	for _, p := range []notify.Payload{
		&notify.SMS{Phone: "+10000000000", Message: "hi"},
		&notify.Email{To: "ann@example.com", Subject: "Hello", HTML: "<p>Hi</p>"},
		&o, &emailOnly, &r, &byMileage, &b,
	} {
		assert.NoError(t, p.Validate(), p.Kind())
	}
}

func TestValidationErrorMessage(t *testing.T) {
	t.Parallel()

	err := (&notify.SMS{Phone: "x", Message: "hi"}).Validate()
	assert.EqualError(t, err, "notify: invalid "+string(queue.KindSendSMS)+" payload: phone must be in E.164 format")
}
