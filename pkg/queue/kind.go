package queue

// Kind identifies the payload schema of a job.
type Kind string

// Job kinds handled by the delivery pipeline.
const (
	KindSendSMS             Kind = "send_sms"
	KindSendEmail           Kind = "send_email"
	KindOrderNotification   Kind = "order_notification"
	KindMaintenanceReminder Kind = "maintenance_reminder"
	KindBookingConfirmation Kind = "booking_confirmation"
)

var kinds = []Kind{
	KindSendSMS,
	KindSendEmail,
	KindOrderNotification,
	KindMaintenanceReminder,
	KindBookingConfirmation,
}

// Kinds returns every known job kind.
func Kinds() []Kind {
	out := make([]Kind, len(kinds))
	copy(out, kinds)
	return out
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range kinds {
		if k == known {
			return true
		}
	}
	return false
}

func (k Kind) String() string { return string(k) }

// State is the lifecycle position of a job.
type State string

const (
	StateWaiting      State = "waiting"
	StateActive       State = "active"
	StateCompleted    State = "completed"
	StateFailed       State = "failed"
	StateDelayedRetry State = "delayed_retry"
)

// Terminal reports whether no further transition can happen from s.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// Valid reports whether s is a known state.
func (s State) Valid() bool {
	switch s {
	case StateWaiting, StateActive, StateCompleted, StateFailed, StateDelayedRetry:
		return true
	}
	return false
}

func (s State) String() string { return string(s) }

// PendingStates are the states that hold a dedup key.
func PendingStates() []State {
	return []State{StateWaiting, StateActive, StateDelayedRetry}
}
