package connect

import (
	"context"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"

	"github.com/osa030/feeltune/internal/app/auth"
	"github.com/osa030/feeltune/internal/app/mood"
	"github.com/osa030/feeltune/internal/app/playback"
	"github.com/osa030/feeltune/internal/app/queue"
	"github.com/osa030/feeltune/internal/app/recommend"
	"github.com/osa030/feeltune/internal/domain/failure"
)

// toConnectError maps domain errors to Connect codes.
func toConnectError(err error) error {
	var code connect.Code
	switch {
	case errors.Is(err, context.Canceled):
		code = connect.CodeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		code = connect.CodeDeadlineExceeded
	case errors.Is(err, auth.ErrNotAuthenticated),
		errors.Is(err, auth.ErrMissingRefreshToken),
		errors.Is(err, auth.ErrRefreshFailed),
		errors.Is(err, playback.ErrAuthorizationStarted):
		code = connect.CodeUnauthenticated
	case errors.Is(err, playback.ErrPlayerNotInitialized),
		errors.Is(err, playback.ErrNoActiveDevice):
		code = connect.CodeFailedPrecondition
	case errors.Is(err, queue.ErrInvalidTransition),
		errors.Is(err, mood.ErrEmptyMood):
		code = connect.CodeInvalidArgument
	case errors.Is(err, recommend.ErrNoCandidates):
		code = connect.CodeNotFound
	case errors.Is(err, playback.ErrSDKLoadFailure),
		errors.Is(err, queue.ErrClosed),
		errors.Is(err, failure.ErrNetwork):
		code = connect.CodeUnavailable
	default:
		code = connect.CodeInternal
	}
	return connect.NewError(code, err)
}
