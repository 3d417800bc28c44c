// Package auth implements the PKCE authorization code flow and the token lifecycle.
package auth

// State is the position of the flow in the token lifecycle.
type State int

const (
	StateUnauthenticated        State = iota // No usable token recorded
	StateAuthorizationRequested              // User sent to the authorization page
	StateCodeReceived                        // Callback delivered a code, exchange pending
	StateAuthenticated                       // Token recorded
	StateExpiring                            // Token within the refresh margin
	StateRefreshing                          // Refresh request in flight
	StateFailed                              // Last exchange or refresh failed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthorizationRequested:
		return "authorization_requested"
	case StateCodeReceived:
		return "code_received"
	case StateAuthenticated:
		return "authenticated"
	case StateExpiring:
		return "expiring"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
