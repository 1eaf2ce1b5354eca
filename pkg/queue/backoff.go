package queue

import "time"

// Default retry timing.
const (
	DefaultBaseDelay = 2 * time.Second
	DefaultMaxDelay  = time.Hour
)

// Backoff computes the wait before the next attempt after a failed one.
// attempts is the number of attempts already made, starting at 1.
type Backoff interface {
	Delay(attempts int) time.Duration
}

// BackoffFunc adapts a function to Backoff.
type BackoffFunc func(attempts int) time.Duration

func (f BackoffFunc) Delay(attempts int) time.Duration { return f(attempts) }

// ExponentialBackoff doubles the delay per attempt: BaseDelay * 2^(attempts-1).
// A positive MaxDelay caps the result.
type ExponentialBackoff struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
}

// NewExponentialBackoff returns the default policy (2s base, 1h cap).
func NewExponentialBackoff() ExponentialBackoff {
	return ExponentialBackoff{BaseDelay: DefaultBaseDelay, MaxDelay: DefaultMaxDelay}
}

// Delay implements Backoff.
func (b ExponentialBackoff) Delay(attempts int) time.Duration {
	base := b.BaseDelay
	if base <= 0 {
		base = DefaultBaseDelay
	}
	if attempts < 1 {
		attempts = 1
	}

	delay := base
	for i := 1; i < attempts; i++ {
		next := delay * 2
		// Overflow guard: doubling a positive duration must grow it.
		if next <= delay {
			delay = time.Duration(1<<63 - 1)
			break
		}
		delay = next
		if b.MaxDelay > 0 && delay >= b.MaxDelay {
			break
		}
	}

	if b.MaxDelay > 0 && delay > b.MaxDelay {
		return b.MaxDelay
	}
	return delay
}
