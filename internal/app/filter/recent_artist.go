package filter

import (
	"context"
	"strings"

	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/domain/track"
)

// RecentArtistConfig represents the configuration for RecentArtistFilter.
type RecentArtistConfig struct {
	Window int `yaml:"window" mapstructure:"window" default:"3" validate:"gte=1,lte=50"`
}

// RecentArtistFilter rejects candidates by an artist among the last few queued tracks.
type RecentArtistFilter struct {
	recent RecentTracks
	window int
}

// NewRecentArtistFilter creates a new recent artist filter.
func NewRecentArtistFilter(recent RecentTracks) *RecentArtistFilter {
	return &RecentArtistFilter{recent: recent, window: 3}
}

func (f *RecentArtistFilter) Name() string {
	return "recent_artist_filter"
}

func (f *RecentArtistFilter) Description() string {
	return "Rejects candidates whose artist was queued within the last few tracks"
}

func (f *RecentArtistFilter) ReturnCodes() []string {
	return []string{"recent_artist"}
}

func (f *RecentArtistFilter) ValidateConfig(settings map[string]any) error {
	var config RecentArtistConfig
	if err := decodeSettings(settings, &config); err != nil {
		return err
	}
	f.window = config.Window
	zlog.Info().Msgf("filter: recent artist window: %d", f.window)
	return nil
}

func (f *RecentArtistFilter) Check(_ context.Context, candidate track.Track) Result {
	if f.recent == nil || candidate.Artist == "" {
		return Accept()
	}
	recent := f.recent()
	if len(recent) > f.window {
		recent = recent[len(recent)-f.window:]
	}
	for _, played := range recent {
		if strings.EqualFold(played.Artist, candidate.Artist) {
			return Reject("recent_artist")
		}
	}
	return Accept()
}
