package queue

import "github.com/osa030/feeltune/internal/domain/transition"

// EventType represents a queue event type.
type EventType int

const (
	EventStarted   EventType = iota // Transition dequeued and executing
	EventCompleted                  // Transition finished
	EventFailed                     // Transition returned an error or panicked
	EventIdle                       // Queue drained
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventStarted:
		return "started"
	case EventCompleted:
		return "completed"
	case EventFailed:
		return "failed"
	case EventIdle:
		return "idle"
	default:
		return "unknown"
	}
}

// Event represents a queue event.
type Event struct {
	Type       EventType
	Transition transition.Transition // Zero for EventIdle
	Err        error                 // Set for EventFailed
}
