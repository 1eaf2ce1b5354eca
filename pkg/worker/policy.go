package worker

import (
	"fmt"
	"strings"
)

// Channel is a delivery medium of a templated notification.
type Channel string

const (
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// ChannelPolicy decides the job outcome when a templated notification is
// sent over more than one channel.
type ChannelPolicy int

const (
	// AnyChannel succeeds when at least one attempted channel delivered.
	AnyChannel ChannelPolicy = iota
	// AllChannels fails when any attempted channel failed.
	AllChannels
	// Lenient never fails the job on channel errors. They are only logged.
	Lenient
)

func (p ChannelPolicy) String() string {
	switch p {
	case AnyChannel:
		return "any"
	case AllChannels:
		return "all"
	case Lenient:
		return "lenient"
	}
	return fmt.Sprintf("ChannelPolicy(%d)", int(p))
}

// ParseChannelPolicy accepts "any", "all" or "lenient".
func ParseChannelPolicy(s string) (ChannelPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any":
		return AnyChannel, nil
	case "all":
		return AllChannels, nil
	case "lenient":
		return Lenient, nil
	}
	return AnyChannel, fmt.Errorf("worker: unknown channel policy %q", s)
}

// UnmarshalText lets env and flag parsers fill a ChannelPolicy.
func (p *ChannelPolicy) UnmarshalText(text []byte) error {
	v, err := ParseChannelPolicy(string(text))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p ChannelPolicy) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// ChannelFailure is one channel that could not deliver.
type ChannelFailure struct {
	Channel Channel
	Err     error
}

// DeliveryError reports the failed channels of a templated notification.
type DeliveryError struct {
	Failures  []ChannelFailure
	Attempted int
}

func (e *DeliveryError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = fmt.Sprintf("%s: %v", f.Channel, f.Err)
	}
	return fmt.Sprintf("delivery failed on %d of %d channels: %s",
		len(e.Failures), e.Attempted, strings.Join(parts, "; "))
}

func (e *DeliveryError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f.Err
	}
	return errs
}

// Permanent reports whether every channel failed permanently.
func (e *DeliveryError) Permanent() bool {
	if len(e.Failures) == 0 {
		return false
	}
	for _, f := range e.Failures {
		if !Permanent(f.Err) {
			return false
		}
	}
	return true
}

// outcome applies the policy to the channel results.
func (p ChannelPolicy) outcome(attempted int, failures []ChannelFailure) error {
	if len(failures) == 0 || p == Lenient {
		return nil
	}
	if p == AnyChannel && len(failures) < attempted {
		return nil
	}
	return &DeliveryError{Failures: failures, Attempted: attempted}
}
