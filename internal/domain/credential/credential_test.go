package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCredential_ValidAt(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		cred     Credential
		expected bool
	}{
		{
			name:     "empty credential",
			cred:     Credential{},
			expected: false,
		},
		{
			name:     "expires in the future",
			cred:     Credential{AccessToken: "a", ExpiresAt: now.Add(time.Minute)},
			expected: true,
		},
		{
			name:     "expires exactly now",
			cred:     Credential{AccessToken: "a", ExpiresAt: now},
			expected: false,
		},
		{
			name:     "token without expiry",
			cred:     Credential{AccessToken: "a"},
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.cred.ValidAt(now))
		})
	}
}

func TestCredential_ExpiresWithin(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	margin := time.Minute

	assert.True(t, Credential{}.ExpiresWithin(now, margin))
	assert.True(t, Credential{AccessToken: "a", ExpiresAt: now.Add(59 * time.Second)}.ExpiresWithin(now, margin))
	assert.True(t, Credential{AccessToken: "a", ExpiresAt: now.Add(time.Minute)}.ExpiresWithin(now, margin))
	assert.False(t, Credential{AccessToken: "a", ExpiresAt: now.Add(61 * time.Second)}.ExpiresWithin(now, margin))
}

func TestCredential_Consistent(t *testing.T) {
	assert.True(t, Credential{}.Consistent())
	assert.True(t, Credential{AccessToken: "a", ExpiresAt: time.Now()}.Consistent())
	assert.False(t, Credential{AccessToken: "a"}.Consistent())
	assert.False(t, Credential{ExpiresAt: time.Now()}.Consistent())
}
