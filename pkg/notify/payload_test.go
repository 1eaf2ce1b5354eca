package notify_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/notify"
	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

type recordingHandler struct {
	calls []queue.Kind
}

func (h *recordingHandler) HandleSMS(_ context.Context, _ *notify.SMS) error {
	h.calls = append(h.calls, queue.KindSendSMS)
	return nil
}

func (h *recordingHandler) HandleEmail(_ context.Context, _ *notify.Email) error {
	h.calls = append(h.calls, queue.KindSendEmail)
	return nil
}

func (h *recordingHandler) HandleOrderNotification(_ context.Context, _ *notify.OrderNotification) error {
	h.calls = append(h.calls, queue.KindOrderNotification)
	return nil
}

func (h *recordingHandler) HandleMaintenanceReminder(_ context.Context, _ *notify.MaintenanceReminder) error {
	h.calls = append(h.calls, queue.KindMaintenanceReminder)
	return nil
}

func (h *recordingHandler) HandleBookingConfirmation(_ context.Context, _ *notify.BookingConfirmation) error {
	h.calls = append(h.calls, queue.KindBookingConfirmation)
	return nil
}

func TestDecodeDispatchesEveryKind(t *testing.T) {
	t.Parallel()

	r, b, o := reminder("1"), booking("1"), order("1")
	payloads := []notify.Payload{
		&notify.SMS{Phone: "+10000000000", Message: "hi"},
		&notify.Email{To: "a@b.io", Subject: "s", HTML: "<p>x</p>"},
		&o, &r, &b,
	}

	h := &recordingHandler{}
	for _, p := range payloads {
		raw, err := json.Marshal(p)
		require.NoError(t, err)

		decoded, err := notify.Decode(p.Kind(), raw)
		require.NoError(t, err)
		assert.Equal(t, p, decoded)
		require.NoError(t, decoded.Dispatch(context.Background(), h))
	}

	assert.Equal(t, queue.Kinds(), h.calls)
}

func TestDecodeErrors(t *testing.T) {
	t.Parallel()

	_, err := notify.Decode("fax", []byte(`{}`))
	require.ErrorIs(t, err, notify.ErrDecode)
	require.ErrorIs(t, err, queue.ErrUnknownKind)

	_, err = notify.Decode(queue.KindSendSMS, []byte(`{"phone":`))
	require.ErrorIs(t, err, notify.ErrDecode)

	_, err = notify.DecodeJob(&queue.Job{Kind: queue.KindSendSMS, Payload: []byte(`[]`)})
	require.ErrorIs(t, err, notify.ErrDecode)
}

func TestDedupKeys(t *testing.T) {
	t.Parallel()

	r := reminder("42")
	b := booking("7")
	assert.Equal(t, "reminder:42", r.DedupKey())
	assert.Equal(t, "booking:7", b.DedupKey())
}

func TestCarString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "2019 Toyota Corolla (AB123C)", car.String())
	assert.Equal(t, "AB123C", notify.Car{LicensePlate: "AB123C"}.String())
	assert.Equal(t, "Ford", notify.Car{Make: "Ford"}.String())
}

func TestCompanyLocation(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "America/New_York", company.Location().String())
	assert.Equal(t, "UTC", notify.Company{}.Location().String())
	assert.Equal(t, "UTC", notify.Company{TimeZone: "Nowhere/City"}.Location().String())
}
