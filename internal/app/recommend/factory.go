package recommend

import (
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/infra/config"
)

// Deps are the collaborators providers are built on.
type Deps struct {
	Recommender Recommender
	Resolver    Resolver
}

// NewChainFromConfig creates a provider chain from configuration.
func NewChainFromConfig(cfg config.RecommendConfig, deps Deps) (*Chain, error) {
	if len(cfg.Providers) == 0 {
		return nil, errors.New("no recommendation providers configured")
	}

	var providers []ProviderWithMetadata

	for i, pcfg := range cfg.Providers {
		var provider Provider
		var err error
		zlog.Debug().Msgf("recommend: creating provider: index=%d type=%s", i+1, pcfg.Type)
		switch pcfg.Type {
		case "spotify":
			provider, err = NewSpotifyProvider(deps.Recommender)

		case "lastfm":
			provider, err = NewLastFmProvider(deps.Resolver, pcfg.Settings)

		default:
			return nil, errors.Newf("unsupported provider type: %s (provider index %d)", pcfg.Type, i)
		}

		if err != nil {
			return nil, errors.Wrapf(err, "failed to create provider (index %d, type %s)", i, pcfg.Type)
		}

		providers = append(providers, ProviderWithMetadata{
			Provider:    provider,
			DisplayName: pcfg.DisplayName,
		})

		zlog.Info().Msgf("recommend: registered provider: index=%d type=%s display_name=%s", i+1, pcfg.Type, pcfg.DisplayName)
	}

	return NewChain(providers), nil
}
