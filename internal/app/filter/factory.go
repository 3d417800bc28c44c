package filter

import (
	"slices"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/infra/config"
)

// Available returns every known filter factory, including the ones that
// read the recent track history.
func Available(recent RecentTracks) map[string]func() Filter {
	factories := make(map[string]func() Filter, len(registry)+2)
	for name, factory := range registry {
		factories[name] = factory
	}
	factories["duplicate_track_filter"] = func() Filter { return NewDuplicateTrackFilter(recent) }
	factories["recent_artist_filter"] = func() Filter { return NewRecentArtistFilter(recent) }
	return factories
}

// NewChainFromConfig builds a chain of the enabled filters, ordered by name.
func NewChainFromConfig(cfgs map[string]config.FilterConfig, recent RecentTracks) (*Chain, error) {
	factories := Available(recent)
	chain := NewChain()

	names := make([]string, 0, len(cfgs))
	for name := range cfgs {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		fc := cfgs[name]
		if !fc.Enabled {
			zlog.Debug().Msgf("filter: skipping disabled filter: %s", name)
			continue
		}
		factory, ok := factories[name]
		if !ok {
			return nil, errors.Newf("unknown filter: %s", name)
		}
		f := factory()
		if err := f.ValidateConfig(fc.Settings); err != nil {
			return nil, errors.Wrapf(err, "invalid config for filter %s", name)
		}
		chain.Add(f)
		zlog.Info().Msgf("filter: enabled filter: %s", name)
	}
	return chain, nil
}
