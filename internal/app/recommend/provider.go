// Package recommend provides mood-based track candidate providers.
package recommend

import (
	"context"

	"github.com/osa030/feeltune/internal/domain/track"
)

// Provider is the interface for track candidate providers.
type Provider interface {
	// GetCandidates returns up to count tracks for mood.
	// exclude holds track URIs that must not be returned.
	GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]track.Track, error)

	// Name returns the provider type (used in config).
	Name() string
}

// Recommender returns Web API recommendations for a mood.
type Recommender interface {
	GetRecommendations(ctx context.Context, mood string) ([]track.Track, error)
}

// Resolver finds the Spotify track for an artist and title.
type Resolver interface {
	ResolveTrack(ctx context.Context, artist, title string) (*track.Track, error)
}

// selectTracks drops excluded and repeated tracks and keeps at most count.
func selectTracks(tracks []track.Track, count int, exclude map[string]bool) []track.Track {
	seen := make(map[string]bool, len(tracks))
	result := make([]track.Track, 0, min(count, len(tracks)))
	for _, t := range tracks {
		if len(result) >= count {
			break
		}
		if t.URI == "" || exclude[t.URI] || seen[t.URI] {
			continue
		}
		seen[t.URI] = true
		result = append(result, t)
	}
	return result
}
