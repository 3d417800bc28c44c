package auth

import (
	"context"
	"os/exec"
	"runtime"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

// Navigator sends the user to the authorization page.
type Navigator interface {
	Navigate(ctx context.Context, authURL string) error
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(ctx context.Context, authURL string) error

// Navigate calls f.
func (f NavigatorFunc) Navigate(ctx context.Context, authURL string) error {
	return f(ctx, authURL)
}

// LogNavigator logs the authorization URL so an operator can open it by hand.
var LogNavigator = NavigatorFunc(func(_ context.Context, authURL string) error {
	zlog.Info().Msgf("auth: open the following URL to authorize FeelTune: %s", authURL)
	return nil
})

var goos = runtime.GOOS

// BrowserNavigator opens the authorization URL in the system browser and
// also logs it, in case no browser is available.
var BrowserNavigator = NavigatorFunc(func(ctx context.Context, authURL string) error {
	_ = LogNavigator(ctx, authURL)

	cmd, err := browserCommand(goos, authURL)
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to open browser")
	}
	// Reap the launcher in the background.
	go func() { _ = cmd.Wait() }()
	return nil
})

func browserCommand(platform, authURL string) (*exec.Cmd, error) {
	switch platform {
	case "darwin":
		return exec.Command("open", authURL), nil
	case "linux", "freebsd", "openbsd":
		return exec.Command("xdg-open", authURL), nil
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", authURL), nil
	default:
		return nil, errors.Newf("unsupported platform: %s", platform)
	}
}
