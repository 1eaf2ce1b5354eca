package render_test

import (
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/render"
)

var (
	company = notify.Company{
		Name:     "Downtown Auto",
		Phone:    "+15550009999",
		Address:  "12 Main St",
		TimeZone: "America/New_York",
	}
	contact = notify.Contact{Name: "Ann Lee", Phone: "+15550001111", Email: "ann@example.com"}
	car     = notify.Car{Make: "Toyota", Model: "Corolla", Year: 2019, LicensePlate: "AB123C"}
)

func TestRenderOrderNotification(t *testing.T) {
	t.Parallel()

	msg, err := render.New().Render(&notify.OrderNotification{
		OrderID:     "o-1",
		OrderNumber: "RO-1001",
		Status:      notify.OrderStatusReady,
		TotalCents:  12550,
		Currency:    "usd",
		Car:         car,
		Recipient:   contact,
		Company:     company,
	})
	require.NoError(t, err)

	assert.Equal(t, "Downtown Auto: order RO-1001 is ready for pickup", msg.Subject)
	assert.Equal(t,
		"Downtown Auto: your 2019 Toyota Corolla (AB123C) order RO-1001 is ready for pickup. Total 125.50 USD. Questions? Call +15550009999.",
		msg.SMS)
	assert.Contains(t, msg.HTML, "<strong>RO-1001</strong>")
	assert.Contains(t, msg.HTML, "<title>Downtown Auto: order RO-1001 is ready for pickup</title>")
	assert.Contains(t, msg.HTML, "12 Main St")
	assert.Contains(t, msg.Text, "Hello Ann Lee,")
	assert.Contains(t, msg.Text, "**125.50 USD**")
	assert.Contains(t, msg.Text, "pick it up during business hours at 12 Main St.")
	assert.NotContains(t, msg.Text, "<")
}

func TestRenderOrderFallsBackToOrderID(t *testing.T) {
	t.Parallel()

	msg, err := render.New().Render(&notify.OrderNotification{
		OrderID:   "o-77",
		Status:    notify.OrderStatusInProgress,
		Car:       car,
		Recipient: notify.Contact{Phone: "+15550001111"},
		Company:   notify.Company{Name: "Downtown Auto"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Downtown Auto: order o-77 is in progress", msg.Subject)
	assert.Contains(t, msg.Text, "Hello there,")
	assert.NotContains(t, msg.Text, "Order total")
	assert.NotContains(t, msg.SMS, "Total")
}

func TestRenderMaintenanceReminder(t *testing.T) {
	t.Parallel()

	due := time.Date(2026, 4, 3, 12, 0, 0, 0, time.UTC)
	miles := 45000

	tests := []struct {
		name     string
		date     *time.Time
		mileage  *int
		sms      string
		contains []string
	}{
		{
			name:     "due by date",
			date:     &due,
			sms:      "Downtown Auto: oil change is due for your 2019 Toyota Corolla (AB123C) on April 3, 2026. Book at +15550009999.",
			contains: []string{"**oil change** on **April 3, 2026**."},
		},
		{
			name:     "due by mileage",
			mileage:  &miles,
			sms:      "Downtown Auto: oil change is due for your 2019 Toyota Corolla (AB123C) at 45,000 mi. Book at +15550009999.",
			contains: []string{"**oil change** at **45,000** miles."},
		},
		{
			name:     "due by both",
			date:     &due,
			mileage:  &miles,
			contains: []string{"on **April 3, 2026** or at **45,000** miles, whichever comes first."},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			msg, err := render.New().Render(&notify.MaintenanceReminder{
				ReminderID: "r-1",
				Car:        car,
				Type:       "oil_change",
				DueDate:    tt.date,
				DueMileage: tt.mileage,
				Recipient:  contact,
				Company:    company,
			})
			require.NoError(t, err)

			assert.Equal(t, "Downtown Auto: Oil Change due for your 2019 Toyota Corolla (AB123C)", msg.Subject)
			if tt.sms != "" {
				assert.Equal(t, tt.sms, msg.SMS)
			}
			for _, s := range tt.contains {
				assert.Contains(t, msg.Text, s)
			}
		})
	}
}

func TestRenderBookingConfirmation(t *testing.T) {
	t.Parallel()

	msg, err := render.New().Render(&notify.BookingConfirmation{
		AppointmentID:    "a-1",
		ConfirmationCode: "K7Q2",
		ScheduledAt:      time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC),
		Service:          "Brake inspection",
		Car:              car,
		ManageURL:        "https://book.example.com/a-1?token=x&y=1",
		Recipient:        contact,
		Company:          company,
	})
	require.NoError(t, err)

	assert.Equal(t, "Downtown Auto: appointment confirmed for Thu, Apr 2 at 10:30 AM EDT", msg.Subject)
	assert.Equal(t,
		"Downtown Auto: your appointment for Brake inspection is confirmed for Thu, Apr 2 at 10:30 AM EDT. Code K7Q2. Manage: https://book.example.com/a-1?token=x&y=1",
		msg.SMS)
	assert.Contains(t, msg.HTML, `class="btn">Manage appointment</a>`)
	assert.Contains(t, msg.HTML, `href="https://book.example.com/a-1?token=x&amp;y=1"`)
	assert.Contains(t, msg.HTML, "<li><strong>Service:</strong> Brake inspection</li>")
	assert.Contains(t, msg.Text, "Manage appointment: https://book.example.com/a-1?token=x&y=1")
	assert.NotContains(t, msg.Text, "[!button")
}

func TestRenderEscapesUserContent(t *testing.T) {
	t.Parallel()

	msg, err := render.New().Render(&notify.OrderNotification{
		OrderID:   "o-1",
		Status:    notify.OrderStatusCreated,
		Car:       car,
		Recipient: notify.Contact{Name: `<script>alert(1)</script>`, Email: "ann@example.com"},
		Company:   notify.Company{Name: "Downtown Auto"},
	})
	require.NoError(t, err)
	assert.NotContains(t, msg.HTML, "<script>")
}

func TestRenderRequiresTemplate(t *testing.T) {
	t.Parallel()

	_, err := render.New().Render(&notify.SMS{Phone: "+15550001111", Message: "hi"})
	require.ErrorIs(t, err, render.ErrTemplateNotFound)
}

func TestRenderCustomFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"layouts/plain.html": &fstest.MapFile{Data: []byte(`<main>{{.Content}}</main>`)},
		"send_sms.md": &fstest.MapFile{Data: []byte("---\nsubject: \"To {{.Phone}}\"\n---\n*{{.Message}}*\n")},
	}
	r := render.New(render.WithFS(fsys), render.WithLayout("plain.html"))

	msg, err := r.Render(&notify.SMS{Phone: "+15550001111", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "To +15550001111", msg.Subject)
	assert.Equal(t, "<main><p><em>hi</em></p>\n</main>", msg.HTML)
	assert.Equal(t, "*hi*", msg.Text)
	assert.Equal(t, "*hi*", msg.SMS, "body text is the SMS fallback")
}

func TestRenderTemplateErrors(t *testing.T) {
	t.Parallel()

	sms := &notify.SMS{Phone: "+15550001111", Message: "hi"}
	layout := &fstest.MapFile{Data: []byte(`{{.Content}}`)}

	tests := []struct {
		name string
		fs   fstest.MapFS
		err  error
	}{
		{
			name: "missing subject",
			fs:   fstest.MapFS{"layouts/base.html": layout, "send_sms.md": {Data: []byte("---\nsms: x\n---\nbody")}},
			err:  render.ErrNoSubject,
		},
		{
			name: "unclosed frontmatter",
			fs:   fstest.MapFS{"layouts/base.html": layout, "send_sms.md": {Data: []byte("---\nsubject: x\nbody")}},
			err:  render.ErrInvalidFrontmatter,
		},
		{
			name: "bad yaml",
			fs:   fstest.MapFS{"layouts/base.html": layout, "send_sms.md": {Data: []byte("---\nsubject: [x\n---\nbody")}},
			err:  render.ErrInvalidFrontmatter,
		},
		{
			name: "bad template syntax",
			fs:   fstest.MapFS{"layouts/base.html": layout, "send_sms.md": {Data: []byte("---\nsubject: x\n---\n{{.Phone")}},
			err:  render.ErrRenderFailed,
		},
		{
			name: "unknown field",
			fs:   fstest.MapFS{"layouts/base.html": layout, "send_sms.md": {Data: []byte("---\nsubject: x\n---\n{{.Nope}}")}},
			err:  render.ErrRenderFailed,
		},
		{
			name: "missing layout",
			fs:   fstest.MapFS{"send_sms.md": {Data: []byte("---\nsubject: x\n---\nbody")}},
			err:  render.ErrLayoutNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := render.New(render.WithFS(tt.fs)).Render(sms)
			require.ErrorIs(t, err, tt.err)
		})
	}
}

func TestRenderConcurrent(t *testing.T) {
	t.Parallel()

	r := render.New()
	p := &notify.OrderNotification{
		OrderID:   "o-1",
		Status:    notify.OrderStatusCompleted,
		Car:       car,
		Recipient: contact,
		Company:   company,
	}

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg, err := r.Render(p)
			assert.NoError(t, err)
			assert.Equal(t, "Downtown Auto: order o-1 is completed", msg.Subject)
		}()
	}
	wg.Wait()
}
