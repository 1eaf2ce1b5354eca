package mailer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSimpleTags(t *testing.T) {
	t.Parallel()

	tags := SimpleTags("notification", "send_email")
	require.Len(t, tags, 2)
	require.Equal(t, struct{}{}, tags["notification"])
	require.Equal(t, struct{}{}, tags["send_email"])

	require.Empty(t, SimpleTags())
}

func TestRecipient(t *testing.T) {
	t.Parallel()

	require.Equal(t, "Ann Lee <ann@example.com>", Recipient("Ann Lee", "ann@example.com"))
	require.Equal(t, "ann@example.com", Recipient("", "ann@example.com"))
}
