package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

func TestExponentialBackoff(t *testing.T) {
	t.Parallel()

	t.Run("doubles from the base delay", func(t *testing.T) {
		t.Parallel()

		b := queue.NewExponentialBackoff()
		assert.Equal(t, 2*time.Second, b.Delay(1))
		assert.Equal(t, 4*time.Second, b.Delay(2))
		assert.Equal(t, 8*time.Second, b.Delay(3))
		assert.Equal(t, 16*time.Second, b.Delay(4))
	})

	t.Run("custom base", func(t *testing.T) {
		t.Parallel()

		b := queue.ExponentialBackoff{BaseDelay: 100 * time.Millisecond}
		assert.Equal(t, 100*time.Millisecond, b.Delay(1))
		assert.Equal(t, 800*time.Millisecond, b.Delay(4))
	})

	t.Run("caps at max delay", func(t *testing.T) {
		t.Parallel()

		b := queue.ExponentialBackoff{BaseDelay: time.Second, MaxDelay: 10 * time.Second}
		assert.Equal(t, 8*time.Second, b.Delay(4))
		assert.Equal(t, 10*time.Second, b.Delay(5))
		assert.Equal(t, 10*time.Second, b.Delay(500))
	})

	t.Run("non-positive attempts behave like the first", func(t *testing.T) {
		t.Parallel()

		b := queue.NewExponentialBackoff()
		assert.Equal(t, 2*time.Second, b.Delay(0))
		assert.Equal(t, 2*time.Second, b.Delay(-3))
	})

	t.Run("zero base falls back to default", func(t *testing.T) {
		t.Parallel()

		assert.Equal(t, queue.DefaultBaseDelay, queue.ExponentialBackoff{}.Delay(1))
	})

	t.Run("uncapped huge attempts do not overflow", func(t *testing.T) {
		t.Parallel()

		b := queue.ExponentialBackoff{BaseDelay: time.Second}
		assert.Positive(t, b.Delay(200))
	})

	t.Run("delays are monotonic", func(t *testing.T) {
		t.Parallel()

		b := queue.NewExponentialBackoff()
		prev := time.Duration(0)
		for attempt := 1; attempt <= 30; attempt++ {
			d := b.Delay(attempt)
			assert.GreaterOrEqual(t, d, prev, "attempt %d", attempt)
			prev = d
		}
	})
}

func TestBackoffFunc(t *testing.T) {
	t.Parallel()

	b := queue.BackoffFunc(func(attempts int) time.Duration {
		return time.Duration(attempts) * time.Minute
	})
	assert.Equal(t, 3*time.Minute, b.Delay(3))
}
