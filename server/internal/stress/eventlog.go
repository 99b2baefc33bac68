package stress

import "github.com/senseease/senseease/pkg/types"

// DefaultLogCapacity is the number of events a session log retains.
const DefaultLogCapacity = 200

// EventLog is an append-only, ordered interaction log that keeps only the
// most recent events. When full, the oldest events are evicted first.
//
// EventLog is not safe for concurrent use.
type EventLog struct {
	events   []types.InteractionEvent
	capacity int
}

// NewEventLog returns an empty log holding at most capacity events.
// A capacity of zero or less selects DefaultLogCapacity.
func NewEventLog(capacity int) *EventLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &EventLog{capacity: capacity}
}

// Append adds events in order and returns how many old events were evicted.
func (l *EventLog) Append(events ...types.InteractionEvent) int {
	l.events = append(l.events, events...)
	evicted := 0
	if len(l.events) > l.capacity {
		evicted = len(l.events) - l.capacity
		// Release evicted events still held by the backing array.
		clear(l.events[:evicted])
		l.events = l.events[evicted:]
	}
	return evicted
}

// Events returns a copy of the retained events, oldest first.
func (l *EventLog) Events() []types.InteractionEvent {
	return append([]types.InteractionEvent(nil), l.events...)
}

// Len returns the number of retained events.
func (l *EventLog) Len() int { return len(l.events) }

// Capacity returns the maximum number of retained events.
func (l *EventLog) Capacity() int { return l.capacity }

// Reset drops every event.
func (l *EventLog) Reset() { l.events = nil }
