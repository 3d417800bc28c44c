package playback

import "github.com/osa030/feeltune/internal/domain/player"

// EventType represents a playback event type.
type EventType int

const (
	EventConnectionChanged  EventType = iota // Connection state changed
	EventPlayerStateChanged                  // Track or pause state changed on the device
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventConnectionChanged:
		return "connection_changed"
	case EventPlayerStateChanged:
		return "player_state_changed"
	default:
		return "unknown"
	}
}

// Event represents a playback event.
type Event struct {
	Type     EventType
	State    ConnectionState // Connection state after the event
	DeviceID string          // Bound device, empty when none
	Player   *player.State   // Set for EventPlayerStateChanged
}
