// Package playback drives a device-bound player and the remote Web API.
package playback

// ConnectionState represents the player connection state.
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota // No player loaded
	StateConnecting                          // Player loaded, waiting for the device
	StateReady                               // Device available
	StateNotReady                            // Device went away
)

// String returns the string representation of the state.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateNotReady:
		return "not_ready"
	default:
		return "unknown"
	}
}
