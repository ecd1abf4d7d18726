package webhook

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is.
var (
	ErrUnknownSender      = errors.New("unknown sender")
	ErrSenderDisabled     = errors.New("sender disabled")
	ErrInvalidSignature   = errors.New("invalid signature or timestamp")
	ErrInvalidPayload     = errors.New("invalid payload")
	ErrUnknownEventType   = errors.New("unknown event type")
	ErrSenderNotSupported = errors.New("event type not supported for sender")
	ErrInvalidTransition  = errors.New("invalid status transition")
	ErrRetryBudgetSpent   = errors.New("retry budget exhausted")
	ErrEventNotFound      = errors.New("webhook event not found")
	ErrStore              = errors.New("event store unavailable")
	ErrHandlerNotFound    = errors.New("no handler registered")
)

// ErrorClass groups failures by how intake and processing must react.
type ErrorClass string

const (
	// ClassSecurity covers bad signatures and stale timestamps. Never persisted, never retried.
	ClassSecurity ErrorClass = "security"
	// ClassValidation covers malformed bodies and taxonomy rejections.
	ClassValidation ErrorClass = "validation"
	// ClassProcessing covers handler failures. The event is stored as failed.
	ClassProcessing ErrorClass = "processing"
	// ClassSystem covers store outages. Surfaced as 500 so the sender retries.
	ClassSystem ErrorClass = "system"
)

// Classify maps an error onto its ErrorClass.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidSignature):
		return ClassSecurity
	case errors.Is(err, ErrInvalidPayload),
		errors.Is(err, ErrUnknownEventType),
		errors.Is(err, ErrSenderNotSupported),
		errors.Is(err, ErrUnknownSender),
		errors.Is(err, ErrSenderDisabled):
		return ClassValidation
	case errors.Is(err, ErrStore):
		return ClassSystem
	}
	return ClassProcessing
}

// TransitionError describes a refused status change.
type TransitionError struct {
	From Status
	To   Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot transition from %s to %s", e.From, e.To)
}

// Unwrap lets errors.Is match ErrInvalidTransition.
func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}
