package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrowserCommand(t *testing.T) {
	const authURL = "https://accounts.example.com/authorize?state=x"
	tests := []struct {
		platform string
		want     []string
	}{
		{"darwin", []string{"open", authURL}},
		{"linux", []string{"xdg-open", authURL}},
		{"windows", []string{"rundll32", "url.dll,FileProtocolHandler", authURL}},
	}
	for _, tt := range tests {
		t.Run(tt.platform, func(t *testing.T) {
			cmd, err := browserCommand(tt.platform, authURL)
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Args)
		})
	}

	_, err := browserCommand("plan9", authURL)
	assert.Error(t, err)
}

func TestBrowserNavigator_UnsupportedPlatform(t *testing.T) {
	prev := goos
	goos = "plan9"
	t.Cleanup(func() { goos = prev })

	assert.Error(t, BrowserNavigator.Navigate(context.Background(), "https://example.com"))
}

func TestNavigatorFunc(t *testing.T) {
	var got string
	nav := NavigatorFunc(func(_ context.Context, authURL string) error {
		got = authURL
		return nil
	})
	require.NoError(t, nav.Navigate(context.Background(), "https://example.com/a"))
	assert.Equal(t, "https://example.com/a", got)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, "", Classify(nil))
	assert.Equal(t, FailureDenied, Classify(ErrAuthorizationDenied))
	assert.Equal(t, FailureParameters, Classify(ErrStateMismatch))
	assert.Equal(t, FailureUnexpected, Classify(ErrExchangeFailed))
}
