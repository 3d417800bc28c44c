// Package credential provides the OAuth Credential domain entity.
package credential

import "time"

// Credential holds the OAuth credential for the configured client.
// Empty strings and the zero time stand for "not set".
// AccessToken and ExpiresAt are always set together.
type Credential struct {
	ClientID     string    // Configured at startup, never persisted
	AccessToken  string    // Bearer token for Web API calls
	RefreshToken string    // Long-lived token used to obtain new access tokens
	ExpiresAt    time.Time // Access token expiry
	DeviceID     string    // Active playback device
}

// HasToken reports whether an access token and its expiry are recorded.
func (c Credential) HasToken() bool {
	return c.AccessToken != "" && !c.ExpiresAt.IsZero()
}

// ValidAt reports whether the access token is still valid at now.
func (c Credential) ValidAt(now time.Time) bool {
	return c.HasToken() && c.ExpiresAt.After(now)
}

// ExpiresWithin reports whether the token expires within margin of now.
// A credential without a token is always considered expiring.
func (c Credential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if !c.HasToken() {
		return true
	}
	return !now.Before(c.ExpiresAt.Add(-margin))
}

// Consistent reports whether AccessToken and ExpiresAt are both set or both unset.
func (c Credential) Consistent() bool {
	return (c.AccessToken == "") == c.ExpiresAt.IsZero()
}
