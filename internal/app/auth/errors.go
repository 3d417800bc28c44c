package auth

import "github.com/cockroachdb/errors"

// Errors
var (
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrMissingVerifier     = errors.New("missing code verifier")
	ErrMissingRefreshToken = errors.New("missing refresh token")
	ErrRefreshFailed       = errors.New("token refresh failed")
	ErrExchangeFailed      = errors.New("authorization code exchange failed")
	ErrAuthorizationDenied = errors.New("authorization denied by user")
	ErrMissingParameters   = errors.New("authorization response is missing parameters")
	ErrStateMismatch       = errors.New("authorization state mismatch")
)

// User-facing messages. None of them carries token material.
const (
	MessageDenied     = "Spotify authorization was denied. Start the login again and accept the requested permissions to use FeelTune."
	MessageParameters = "The authorization response was incomplete or did not match this login attempt. Please start the login again."
	MessageUnexpected = "An unexpected error occurred while signing in to Spotify. Please try again in a moment."
)

// Failure classes of an authorization attempt as shown to the user.
const (
	FailureDenied     = "denied"
	FailureParameters = "parameters"
	FailureUnexpected = "unexpected"
)

// Classify returns the failure class of err, or "" for nil.
func Classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorizationDenied):
		return FailureDenied
	case errors.Is(err, ErrMissingParameters),
		errors.Is(err, ErrStateMismatch),
		errors.Is(err, ErrMissingVerifier):
		return FailureParameters
	default:
		return FailureUnexpected
	}
}

// UserMessage returns a human readable description of an authorization failure.
func UserMessage(err error) string {
	switch Classify(err) {
	case "":
		return ""
	case FailureDenied:
		return MessageDenied
	case FailureParameters:
		return MessageParameters
	default:
		return MessageUnexpected
	}
}
