package notify

import (
	"errors"
	"fmt"

	"github.com/PermAdut/autoservice-notify/pkg/queue"
)

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("notify: invalid payload")

	// ErrDecode indicates a stored payload could not be decoded.
	ErrDecode = errors.New("notify: failed to decode payload")
)

// ValidationError describes the first invalid field of a payload.
type ValidationError struct {
	Kind   queue.Kind
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("notify: invalid %s payload: %s %s", e.Kind, e.Field, e.Reason)
}

// Is reports ErrValidation as a match.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

func invalid(kind queue.Kind, field, reason string) error {
	return &ValidationError{Kind: kind, Field: field, Reason: reason}
}
