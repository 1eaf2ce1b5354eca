package twilio

import (
	"context"
	"errors"
	"testing"
	"time"

	twclient "github.com/twilio/twilio-go/client"
	api "github.com/twilio/twilio-go/rest/api/v2010"
	"github.com/stretchr/testify/require"

	"github.com/PermAdut/autoservice-notify/pkg/sms"
)

type fakeAPI struct {
	params *api.CreateMessageParams
	resp   *api.ApiV2010Message
	err    error
	block  chan struct{}
}

func (f *fakeAPI) CreateMessage(params *api.CreateMessageParams) (*api.ApiV2010Message, error) {
	f.params = params
	if f.block != nil {
		<-f.block
	}
	return f.resp, f.err
}

var msg = &sms.Message{To: "+15550001111", Body: "Your car is ready"}

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{From: "+15550009999"})
	require.ErrorIs(t, err, ErrMissingCredentials)

	_, err = New(Config{AccountSID: "AC1", AuthToken: "t"})
	require.ErrorIs(t, err, ErrMissingSender)

	s, err := New(Config{AccountSID: "AC1", AuthToken: "t", From: "+15550009999", Timeout: time.Second})
	require.NoError(t, err)
	require.NotNil(t, s)
}

func TestSend(t *testing.T) {
	t.Parallel()

	sid := "SM123"
	fake := &fakeAPI{resp: &api.ApiV2010Message{Sid: &sid}}
	s := &Sender{api: fake, config: Config{From: "+15550009999"}}

	receipt, err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, sms.Receipt{ID: "SM123", Provider: "twilio"}, receipt)
	require.Equal(t, "+15550001111", *fake.params.To)
	require.Equal(t, "+15550009999", *fake.params.From)
	require.Equal(t, "Your car is ready", *fake.params.Body)
	require.Nil(t, fake.params.MessagingServiceSid)
}

func TestSendWithMessagingService(t *testing.T) {
	t.Parallel()

	fake := &fakeAPI{resp: &api.ApiV2010Message{}}
	s := &Sender{api: fake, config: Config{From: "+15550009999", MessagingServiceSID: "MG1"}}

	_, err := s.Send(context.Background(), msg)
	require.NoError(t, err)
	require.Equal(t, "MG1", *fake.params.MessagingServiceSid)
	require.Nil(t, fake.params.From)
}

func TestSendErrors(t *testing.T) {
	t.Parallel()

	t.Run("invalid number is permanent", func(t *testing.T) {
		t.Parallel()

		s := &Sender{api: &fakeAPI{err: &twclient.TwilioRestError{Code: 21211, Message: "Invalid 'To' Phone Number", Status: 400}}}
		_, err := s.Send(context.Background(), msg)
		require.ErrorIs(t, err, sms.ErrRejected)
		require.Contains(t, err.Error(), "21211")
	})

	t.Run("server error is transient", func(t *testing.T) {
		t.Parallel()

		s := &Sender{api: &fakeAPI{err: &twclient.TwilioRestError{Code: 20500, Status: 500}}}
		_, err := s.Send(context.Background(), msg)
		require.Error(t, err)
		require.NotErrorIs(t, err, sms.ErrRejected)
	})

	t.Run("network error is transient", func(t *testing.T) {
		t.Parallel()

		s := &Sender{api: &fakeAPI{err: errors.New("dial tcp: i/o timeout")}}
		_, err := s.Send(context.Background(), msg)
		require.Error(t, err)
		require.NotErrorIs(t, err, sms.ErrRejected)
	})

	t.Run("context ends before provider answers", func(t *testing.T) {
		t.Parallel()

		fake := &fakeAPI{block: make(chan struct{})}
		defer close(fake.block)
		s := &Sender{api: fake, config: Config{From: "+15550009999"}}

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		_, err := s.Send(ctx, msg)
		require.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("invalid message skips the API", func(t *testing.T) {
		t.Parallel()

		fake := &fakeAPI{}
		s := &Sender{api: fake}
		_, err := s.Send(context.Background(), &sms.Message{To: "555", Body: "x"})
		require.ErrorIs(t, err, sms.ErrInvalidRecipient)
		require.Nil(t, fake.params)
	})
}
