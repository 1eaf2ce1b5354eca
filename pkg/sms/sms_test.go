package sms

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockSender struct {
	mock.Mock
}

func (m *MockSender) Send(ctx context.Context, msg *Message) (Receipt, error) {
	args := m.Called(ctx, msg)
	return args.Get(0).(Receipt), args.Error(1)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		msg  *Message
		want error
	}{
		{name: "nil", msg: nil, want: ErrNoRecipient},
		{name: "no recipient", msg: &Message{Body: "hi"}, want: ErrNoRecipient},
		{name: "local number", msg: &Message{To: "5550001111", Body: "hi"}, want: ErrInvalidRecipient},
		{name: "blank body", msg: &Message{To: "+15550001111", Body: " \n"}, want: ErrNoBody},
		{name: "too long", msg: &Message{To: "+15550001111", Body: strings.Repeat("a", MaxBodyLength+1)}, want: ErrBodyTooLong},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			err := Validate(tc.msg)
			require.ErrorIs(t, err, tc.want)
			require.ErrorIs(t, err, ErrRejected)
		})
	}

	require.NoError(t, Validate(&Message{To: "+10000000000", Body: "hi"}))
	require.NoError(t, Validate(&Message{To: "+10000000000", Body: strings.Repeat("я", MaxBodyLength)}))
}

func TestClient_Send(t *testing.T) {
	t.Parallel()

	t.Run("delegates valid messages", func(t *testing.T) {
		t.Parallel()

		sender := &MockSender{}
		msg := &Message{To: "+10000000000", Body: "hi"}
		sender.On("Send", mock.Anything, msg).Return(Receipt{ID: "SM1", Provider: "twilio"}, nil)

		receipt, err := New(sender).Send(context.Background(), msg)
		require.NoError(t, err)
		require.Equal(t, "SM1", receipt.ID)
		sender.AssertExpectations(t)
	})

	t.Run("invalid message skips provider", func(t *testing.T) {
		t.Parallel()

		sender := &MockSender{}
		_, err := New(sender).Send(context.Background(), &Message{To: "+1", Body: "hi"})
		require.ErrorIs(t, err, ErrRejected)
		sender.AssertNotCalled(t, "Send")
	})

	t.Run("wraps provider errors", func(t *testing.T) {
		t.Parallel()

		sender := &MockSender{}
		sender.On("Send", mock.Anything, mock.Anything).Return(Receipt{}, errors.New("503"))

		_, err := New(sender).Send(context.Background(), &Message{To: "+10000000000", Body: "hi"})
		require.ErrorIs(t, err, ErrSendFailed)
		require.NotErrorIs(t, err, ErrRejected)
	})
}

func TestLogSender(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	receipt, err := NewLogSender(slog.New(slog.NewTextHandler(&buf, nil))).
		Send(context.Background(), &Message{To: "+10000000000", Body: "hello there"})
	require.NoError(t, err)
	require.Equal(t, "log", receipt.Provider)
	require.Contains(t, buf.String(), "hello there")
}
