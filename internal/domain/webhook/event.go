package webhook

import (
	"time"

	"github.com/google/uuid"
)

// DefaultMaxAttempts is the processing budget before an event is dead-lettered.
const DefaultMaxAttempts = 3

// WebhookEvent is the unit of work stored in the event log.
//
// RawPayload is written once at insert and never updated afterwards. All
// other mutation goes through the transition methods below, which enforce
// the status machine.
type WebhookEvent struct {
	ID              uuid.UUID
	Sender          Sender
	EventType       EventType
	RawEventName    string
	ExternalID      string
	RawPayload      []byte
	CanonicalData   CanonicalData
	Priority        Priority
	Status          Status
	ReceivedAt      time.Time
	ProcessAt       *time.Time
	ProcessedAt     *time.Time
	ResponseMessage string
	AttemptCount    int
	UpdatedAt       time.Time
}

// NewWebhookEvent builds a pending event from an accepted envelope.
func NewWebhookEvent(env CanonicalEnvelope, raw []byte, priority Priority, receivedAt time.Time) *WebhookEvent {
	payload := make([]byte, len(raw))
	copy(payload, raw)
	return &WebhookEvent{
		ID:            uuid.New(),
		Sender:        env.Sender,
		EventType:     env.EventType,
		RawEventName:  env.RawEventName,
		ExternalID:    env.ExternalID,
		RawPayload:    payload,
		CanonicalData: env.Data,
		Priority:      priority,
		Status:        StatusPending,
		ReceivedAt:    receivedAt,
		UpdatedAt:     receivedAt,
	}
}

// NewRejectedEvent builds a rejected audit record for a request that failed
// taxonomy validation.
func NewRejectedEvent(env CanonicalEnvelope, raw []byte, reason string, receivedAt time.Time) *WebhookEvent {
	e := NewWebhookEvent(env, raw, PriorityLow, receivedAt)
	_ = e.Reject(reason, receivedAt)
	return e
}

func (e *WebhookEvent) transition(next Status, now time.Time) error {
	if !e.Status.CanTransitionTo(next) {
		return &TransitionError{From: e.Status, To: next}
	}
	e.Status = next
	e.UpdatedAt = now
	return nil
}

// Reject marks a pending event as rejected.
func (e *WebhookEvent) Reject(reason string, now time.Time) error {
	if err := e.transition(StatusRejected, now); err != nil {
		return err
	}
	e.ResponseMessage = reason
	return nil
}

// Queue defers a pending event until processAt.
func (e *WebhookEvent) Queue(processAt time.Time, now time.Time) error {
	if err := e.transition(StatusQueued, now); err != nil {
		return err
	}
	e.ProcessAt = &processAt
	return nil
}

// StartProcessing claims the event for one attempt.
func (e *WebhookEvent) StartProcessing(now time.Time) error {
	if err := e.transition(StatusProcessing, now); err != nil {
		return err
	}
	e.AttemptCount++
	return nil
}

// Complete records a successful handler run.
func (e *WebhookEvent) Complete(message string, now time.Time) error {
	if err := e.transition(StatusCompleted, now); err != nil {
		return err
	}
	e.ResponseMessage = message
	e.ProcessedAt = &now
	return nil
}

// Fail records a failed handler run.
func (e *WebhookEvent) Fail(message string, now time.Time) error {
	if err := e.transition(StatusFailed, now); err != nil {
		return err
	}
	e.ResponseMessage = message
	e.ProcessedAt = &now
	return nil
}

// Requeue moves a failed event back to queued while its budget lasts.
func (e *WebhookEvent) Requeue(processAt time.Time, maxAttempts int, now time.Time) error {
	if e.Status == StatusFailed && !e.CanRetry(maxAttempts) {
		return ErrRetryBudgetSpent
	}
	if err := e.transition(StatusQueued, now); err != nil {
		return err
	}
	e.ProcessAt = &processAt
	return nil
}

// ResetAttempts clears the attempt budget of a dead-lettered event so an
// operator can force another try.
func (e *WebhookEvent) ResetAttempts(now time.Time) error {
	if e.Status != StatusFailed {
		return &TransitionError{From: e.Status, To: StatusQueued}
	}
	e.AttemptCount = 0
	e.UpdatedAt = now
	return nil
}

// CanRetry reports whether a failed event still has budget.
func (e *WebhookEvent) CanRetry(maxAttempts int) bool {
	return e.Status == StatusFailed && e.AttemptCount < maxAttempts
}

// IsDeadLetter reports whether the event failed with no budget left.
func (e *WebhookEvent) IsDeadLetter(maxAttempts int) bool {
	return e.Status == StatusFailed && e.AttemptCount >= maxAttempts
}

// IsDue reports whether a queued event may be processed at now.
func (e *WebhookEvent) IsDue(now time.Time) bool {
	return e.Status == StatusQueued && (e.ProcessAt == nil || !e.ProcessAt.After(now))
}

// Reclaim resets an abandoned processing event. With budget left it is
// queued for processAt; otherwise it is failed and becomes a dead letter.
func (e *WebhookEvent) Reclaim(processAt time.Time, maxAttempts int, now time.Time) error {
	if e.Status != StatusProcessing {
		return &TransitionError{From: e.Status, To: StatusQueued}
	}
	if e.AttemptCount >= maxAttempts {
		return e.Fail("processing abandoned: retry budget exhausted", now)
	}
	return e.Requeue(processAt, maxAttempts, now)
}
