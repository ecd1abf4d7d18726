package webhook

import (
	"fmt"
	"slices"
	"sort"
)

// EventTypeDescriptor is one registry entry.
type EventTypeDescriptor struct {
	Name             EventType
	SupportedSenders []Sender
	Priority         Priority
	HandlerID        HandlerID
}

// Supports reports whether sender may deliver this event type.
func (d EventTypeDescriptor) Supports(sender Sender) bool {
	return slices.Contains(d.SupportedSenders, sender)
}

func (d EventTypeDescriptor) clone() EventTypeDescriptor {
	d.SupportedSenders = slices.Clone(d.SupportedSenders)
	return d
}

// Taxonomy is the immutable catalog of known event types.
// It is safe for concurrent use.
type Taxonomy struct {
	byName map[EventType]EventTypeDescriptor
}

// NewTaxonomy validates descriptors and builds the registry. handlers lists
// the handler IDs the dispatcher provides; a descriptor naming any other
// handler is refused so a typo cannot reach production as a runtime miss.
func NewTaxonomy(descriptors []EventTypeDescriptor, handlers []HandlerID) (*Taxonomy, error) {
	if len(descriptors) == 0 {
		return nil, fmt.Errorf("taxonomy: no event types defined")
	}

	known := make(map[HandlerID]bool, len(handlers))
	for _, h := range handlers {
		known[h] = true
	}

	t := &Taxonomy{byName: make(map[EventType]EventTypeDescriptor, len(descriptors))}
	for _, d := range descriptors {
		if d.Name == "" {
			return nil, fmt.Errorf("taxonomy: event type with empty name")
		}
		if _, dup := t.byName[d.Name]; dup {
			return nil, fmt.Errorf("taxonomy: duplicate event type %q", d.Name)
		}
		if !d.Priority.IsValid() {
			return nil, fmt.Errorf("taxonomy: event type %q has invalid priority %q", d.Name, d.Priority)
		}
		if !known[d.HandlerID] {
			return nil, fmt.Errorf("taxonomy: event type %q references unknown handler %q", d.Name, d.HandlerID)
		}
		if len(d.SupportedSenders) == 0 {
			return nil, fmt.Errorf("taxonomy: event type %q has no supported senders", d.Name)
		}
		for _, s := range d.SupportedSenders {
			if !s.IsValid() {
				return nil, fmt.Errorf("taxonomy: event type %q lists unknown sender %q", d.Name, s)
			}
		}
		t.byName[d.Name] = d.clone()
	}
	return t, nil
}

// Lookup returns the descriptor for eventType if sender may deliver it.
func (t *Taxonomy) Lookup(eventType EventType, sender Sender) (EventTypeDescriptor, error) {
	d, ok := t.byName[eventType]
	if !ok {
		return EventTypeDescriptor{}, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}
	if !d.Supports(sender) {
		return EventTypeDescriptor{}, fmt.Errorf("%w: %q from %s", ErrSenderNotSupported, eventType, sender)
	}
	return d.clone(), nil
}

// Has reports whether eventType is registered, regardless of sender.
func (t *Taxonomy) Has(eventType EventType) bool {
	_, ok := t.byName[eventType]
	return ok
}

// Descriptors returns a copy of every entry sorted by name.
func (t *Taxonomy) Descriptors() []EventTypeDescriptor {
	out := make([]EventTypeDescriptor, 0, len(t.byName))
	for _, d := range t.byName {
		out = append(out, d.clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Len returns the number of registered event types.
func (t *Taxonomy) Len() int {
	return len(t.byName)
}
