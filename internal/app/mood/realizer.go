package mood

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/feeltune/internal/domain/transition"
)

// TrackPlayer plays a single track.
type TrackPlayer interface {
	PlayTrack(ctx context.Context, uri string) error
}

// PlaybackRealizer realizes transitions by playing their "to" track.
type PlaybackRealizer struct {
	player TrackPlayer
}

// NewPlaybackRealizer creates a realizer backed by player.
func NewPlaybackRealizer(player TrackPlayer) *PlaybackRealizer {
	return &PlaybackRealizer{player: player}
}

// Realize plays t.To.
func (r *PlaybackRealizer) Realize(ctx context.Context, t transition.Transition) error {
	if t.To.TrackID == "" {
		return errors.New("transition has no target track")
	}
	return r.player.PlayTrack(ctx, t.To.TrackID)
}
