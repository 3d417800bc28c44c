package recommend

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/app/filter"
	"github.com/osa030/feeltune/internal/domain/track"
)

// ErrNoCandidates is returned when no provider produced a track.
var ErrNoCandidates = errors.New("no candidates")

// Candidate represents a track candidate with its source provider info.
type Candidate struct {
	Track       track.Track
	DisplayName string
}

// ProviderWithMetadata wraps a provider with its metadata.
type ProviderWithMetadata struct {
	Provider    Provider
	DisplayName string
}

// Chain tries multiple providers in order until enough candidates are found.
type Chain struct {
	providers []ProviderWithMetadata
	filters   *filter.Chain // Optional candidate screening
}

// NewChain creates a new provider chain.
func NewChain(providers []ProviderWithMetadata) *Chain {
	return &Chain{
		providers: providers,
	}
}

// SetFilters screens every provider result with filters.
// It must be called before the chain is used.
func (c *Chain) SetFilters(filters *filter.Chain) {
	c.filters = filters
}

// GetCandidates asks each provider in turn and stops once count candidates are
// collected. A failing provider is skipped. Candidates are unique by URI.
func (c *Chain) GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]Candidate, error) {
	var all []Candidate
	var errs error
	current := make(map[string]bool, len(exclude))
	for k, v := range exclude {
		current[k] = v
	}

	for i, pm := range c.providers {
		if len(all) >= count {
			break
		}
		zlog.Debug().Msgf("recommend: trying provider: index=%d total=%d name=%s provider_type=%s",
			i+1, len(c.providers), pm.DisplayName, pm.Provider.Name())

		tracks, err := pm.Provider.GetCandidates(ctx, mood, count-len(all), current)
		if err != nil {
			zlog.Warn().Msgf("recommend: provider failed, trying next: provider=%s error=%v", pm.DisplayName, err)
			errs = errors.CombineErrors(errs, errors.Wrapf(err, "provider %s", pm.DisplayName))
			continue
		}

		for _, t := range tracks {
			if current[t.URI] {
				continue
			}
			if c.filters != nil {
				if result := c.filters.Execute(ctx, t); !result.Accepted {
					zlog.Debug().Msgf("recommend: candidate rejected: uri=%s code=%s", t.URI, result.Code)
					continue
				}
			}
			current[t.URI] = true
			all = append(all, Candidate{Track: t, DisplayName: pm.DisplayName})
		}

		zlog.Debug().Msgf("recommend: provider returned candidates: provider=%s count=%d total_so_far=%d",
			pm.DisplayName, len(tracks), len(all))
	}

	if len(all) == 0 {
		if errs != nil {
			return nil, errors.Mark(errors.Wrap(errs, "all providers failed"), ErrNoCandidates)
		}
		return nil, errors.Wrapf(ErrNoCandidates, "mood %q", mood)
	}
	return all, nil
}

// Len returns the number of providers.
func (c *Chain) Len() int {
	return len(c.providers)
}
