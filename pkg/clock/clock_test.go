package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("now does not move on its own", func(t *testing.T) {
		t.Parallel()

		c := NewFake(start)
		require.Equal(t, start, c.Now())
		time.Sleep(5 * time.Millisecond)
		require.Equal(t, start, c.Now())
	})

	t.Run("advance fires due timers only", func(t *testing.T) {
		t.Parallel()

		c := NewFake(start)
		short := c.After(time.Second)
		long := c.After(time.Minute)
		require.Equal(t, 2, c.Waiters())

		c.Advance(2 * time.Second)

		select {
		case got := <-short:
			assert.Equal(t, start.Add(2*time.Second), got)
		default:
			t.Fatal("short timer did not fire")
		}

		select {
		case <-long:
			t.Fatal("long timer fired early")
		default:
		}
		assert.Equal(t, 1, c.Waiters())
	})

	t.Run("non-positive duration fires immediately", func(t *testing.T) {
		t.Parallel()

		c := NewFake(start)
		select {
		case got := <-c.After(0):
			assert.Equal(t, start, got)
		default:
			t.Fatal("zero timer did not fire")
		}
		assert.Equal(t, 0, c.Waiters())
	})

	t.Run("set jumps to absolute time", func(t *testing.T) {
		t.Parallel()

		c := NewFake(start)
		ch := c.After(time.Hour)
		c.Set(start.Add(90 * time.Minute))

		select {
		case <-ch:
		default:
			t.Fatal("timer did not fire after set")
		}
		assert.Equal(t, start.Add(90*time.Minute), c.Now())
	})
}

func TestFunc(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	c := Func(func() time.Time { return fixed })
	assert.Equal(t, fixed, c.Now())
}
