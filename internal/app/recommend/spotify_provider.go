package recommend

import (
	"context"

	"github.com/cockroachdb/errors"

	"github.com/osa030/feeltune/internal/domain/track"
)

// SpotifyProvider returns Web API recommendations tuned to the mood's audio features.
type SpotifyProvider struct {
	recommender Recommender
}

// NewSpotifyProvider creates a new SpotifyProvider.
func NewSpotifyProvider(recommender Recommender) (*SpotifyProvider, error) {
	if recommender == nil {
		return nil, errors.New("recommender is required")
	}
	return &SpotifyProvider{recommender: recommender}, nil
}

// GetCandidates retrieves recommendations for mood.
func (p *SpotifyProvider) GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	tracks, err := p.recommender.GetRecommendations(ctx, mood)
	if err != nil {
		return nil, errors.Wrap(err, "failed to get recommendations")
	}
	return selectTracks(tracks, count, exclude), nil
}

// Name returns the provider name.
func (p *SpotifyProvider) Name() string {
	return "spotify"
}
