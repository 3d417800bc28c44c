// Package player provides the device-bound player boundary and its events.
package player

import (
	"context"
	"time"

	"github.com/osa030/feeltune/internal/domain/track"
)

// EventType represents a player event type.
type EventType int

const (
	EventReady        EventType = iota // Device available, DeviceID set
	EventNotReady                      // Device went away
	EventStateChanged                  // Track or pause state changed
)

// String returns the string representation of the event type.
func (e EventType) String() string {
	switch e {
	case EventReady:
		return "ready"
	case EventNotReady:
		return "not_ready"
	case EventStateChanged:
		return "player_state_changed"
	default:
		return "unknown"
	}
}

// Event is emitted by a Player.
type Event struct {
	Type     EventType
	DeviceID string
	State    *State // Set for EventStateChanged
}

// State is the playback state seen by the device.
type State struct {
	DeviceID string
	Paused   bool
	Position time.Duration
	Track    *track.Track
}

// Playback is what the account is currently playing on any device.
type Playback struct {
	IsPlaying bool
	Progress  time.Duration
	Track     *track.Track
}

// Player controls playback on one device.
// Events is closed after Disconnect.
type Player interface {
	Connect(ctx context.Context) error
	Disconnect()
	Events() <-chan Event

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, position time.Duration) error
	SetVolume(ctx context.Context, fraction float64) error
	PreviousTrack(ctx context.Context) error
	NextTrack(ctx context.Context) error

	CurrentState(ctx context.Context) (*State, error)
}
