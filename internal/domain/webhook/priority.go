package webhook

import "fmt"

// Priority is the processing class of an event type.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// IsValid reports whether p is a known priority.
func (p Priority) IsValid() bool {
	switch p {
	case PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// IsSynchronous reports whether events of this priority run inside the
// inbound request.
func (p Priority) IsSynchronous() bool {
	return p == PriorityCritical
}

// ParsePriority converts a configuration value into a Priority.
func ParsePriority(v string) (Priority, error) {
	p := Priority(v)
	if !p.IsValid() {
		return "", fmt.Errorf("invalid priority %q", v)
	}
	return p, nil
}
