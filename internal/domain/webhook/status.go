package webhook

// Status is the processing state of a WebhookEvent.
type Status string

const (
	StatusRejected   Status = "rejected"
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// transitions lists every legal edge of the status machine.
var transitions = map[Status][]Status{
	StatusPending:    {StatusRejected, StatusQueued, StatusProcessing},
	StatusQueued:     {StatusProcessing},
	StatusProcessing: {StatusCompleted, StatusFailed, StatusQueued},
	StatusFailed:     {StatusQueued},
}

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{
		StatusRejected,
		StatusPending,
		StatusQueued,
		StatusProcessing,
		StatusCompleted,
		StatusFailed,
	}
}

// IsValid reports whether s is a known status.
func (s Status) IsValid() bool {
	switch s {
	case StatusRejected, StatusPending, StatusQueued, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (s Status) IsTerminal() bool {
	return s == StatusRejected || s == StatusCompleted
}

// IsClaimable reports whether a worker may move s to processing.
func (s Status) IsClaimable() bool {
	return s == StatusPending || s == StatusQueued
}

// CanTransitionTo reports whether s -> next is a legal edge.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
