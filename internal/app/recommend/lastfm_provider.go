package recommend

import (
	"context"
	"math/rand/v2"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/osa030/feeltune/internal/domain/track"
	"github.com/osa030/feeltune/internal/infra/lastfm"
)

// LastFmClient defines the interface for Last.fm operations.
type LastFmClient interface {
	GetTopTracks(ctx context.Context, tagName string, limit int) ([]lastfm.TopTrack, error)
	GetChartTopTracks(ctx context.Context, limit int) ([]lastfm.TopTrack, error)
}

type LastFmProviderConfig struct {
	APIKey               string              `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	BaseURL              string              `yaml:"base_url" mapstructure:"base_url" validate:"omitempty,url"`
	TagLimit             int                 `yaml:"tag_limit" mapstructure:"tag_limit" default:"30" validate:"gte=1,lte=100"`
	Concurrency          int                 `yaml:"concurrency" mapstructure:"concurrency" default:"4" validate:"gte=1,lte=16"`
	Tags                 map[string][]string `yaml:"tags" mapstructure:"tags"`
	DisableChartFallback bool                `yaml:"disable_chart_fallback" mapstructure:"disable_chart_fallback"`
}

// LastFmProvider provides tracks from Last.fm tag charts, resolved on Spotify.
// The mood name is used as the tag unless the settings map it to other tags.
type LastFmProvider struct {
	lastfm   LastFmClient
	resolver Resolver

	// Resolution cache, nil entries mark tracks Spotify does not have
	resolveCache map[string]*track.Track
	cacheMutex   sync.RWMutex

	config *LastFmProviderConfig
}

// NewLastFmProvider creates a new LastFmProvider.
func NewLastFmProvider(resolver Resolver, settings map[string]any) (*LastFmProvider, error) {
	if resolver == nil {
		return nil, errors.New("track resolver is required")
	}
	if len(settings) == 0 {
		return nil, errors.New("settings are required")
	}

	var config LastFmProviderConfig
	if err := mapstructure.Decode(settings, &config); err != nil {
		return nil, errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return nil, errors.Wrap(err, "validation failed")
	}

	client, err := lastfm.New(lastfm.Config{APIKey: config.APIKey, BaseURL: config.BaseURL})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create last.fm client")
	}
	return newLastFmProvider(client, resolver, &config), nil
}

func newLastFmProvider(client LastFmClient, resolver Resolver, config *LastFmProviderConfig) *LastFmProvider {
	return &LastFmProvider{
		lastfm:       client,
		resolver:     resolver,
		resolveCache: make(map[string]*track.Track),
		config:       config,
	}
}

// GetCandidates retrieves tracks tagged with the mood.
func (p *LastFmProvider) GetCandidates(ctx context.Context, mood string, count int, exclude map[string]bool) ([]track.Track, error) {
	if count <= 0 {
		return []track.Track{}, nil
	}

	pool, err := p.tagTracks(ctx, mood)
	if len(pool) == 0 && !p.config.DisableChartFallback {
		zlog.Debug().Msgf("lastfm provider: no tag tracks for mood %q, using charts", mood)
		pool, err = p.lastfm.GetChartTopTracks(ctx, p.config.TagLimit)
	}
	if err != nil && len(pool) == 0 {
		return nil, errors.Wrap(err, "failed to get last.fm tracks")
	}

	rand.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})

	// Resolve a bit more than needed, some won't exist on Spotify or are excluded.
	if limit := count * 2; len(pool) > limit {
		pool = pool[:limit]
	}
	resolved := p.resolveAll(ctx, pool)

	tracks := make([]track.Track, 0, len(resolved))
	for _, t := range resolved {
		if t == nil {
			continue
		}
		t.Mood = strings.ToLower(strings.TrimSpace(mood))
		tracks = append(tracks, *t)
	}
	return selectTracks(tracks, count, exclude), nil
}

// tagTracks fetches the top tracks of every tag mapped to mood.
func (p *LastFmProvider) tagTracks(ctx context.Context, mood string) ([]lastfm.TopTrack, error) {
	tags := p.tagsFor(mood)
	results := make([][]lastfm.TopTrack, len(tags))
	errs := make([]error, len(tags))

	var g errgroup.Group
	for i, tag := range tags {
		g.Go(func() error {
			results[i], errs[i] = p.lastfm.GetTopTracks(ctx, tag, p.config.TagLimit)
			return nil
		})
	}
	_ = g.Wait()

	var pool []lastfm.TopTrack
	var err error
	for i := range tags {
		if errs[i] != nil {
			zlog.Warn().Msgf("lastfm provider: tag %q failed: %v", tags[i], errs[i])
			err = errors.CombineErrors(err, errs[i])
			continue
		}
		pool = append(pool, results[i]...)
	}
	return pool, err
}

func (p *LastFmProvider) tagsFor(mood string) []string {
	mood = strings.ToLower(strings.TrimSpace(mood))
	if tags, ok := p.config.Tags[mood]; ok && len(tags) > 0 {
		return tags
	}
	return []string{mood}
}

// resolveAll resolves tracks on Spotify, keeping the pool order.
func (p *LastFmProvider) resolveAll(ctx context.Context, pool []lastfm.TopTrack) []*track.Track {
	resolved := make([]*track.Track, len(pool))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.config.Concurrency)
	for i, t := range pool {
		g.Go(func() error {
			resolved[i] = p.resolve(gctx, t.Name, t.Artist)
			return nil
		})
	}
	_ = g.Wait()
	return resolved
}

// resolve searches for a track on Spotify with caching.
func (p *LastFmProvider) resolve(ctx context.Context, trackName, artistName string) *track.Track {
	key := strings.ToLower(artistName + "\x00" + trackName)

	p.cacheMutex.RLock()
	if cached, ok := p.resolveCache[key]; ok {
		p.cacheMutex.RUnlock()
		return copyTrack(cached)
	}
	p.cacheMutex.RUnlock()

	found, err := p.resolver.ResolveTrack(ctx, artistName, trackName)
	if err != nil {
		// Not cached, the failure may be transient.
		zlog.Debug().Msgf("lastfm provider: resolve %s - %s failed: %v", artistName, trackName, err)
		return nil
	}

	p.cacheMutex.Lock()
	p.resolveCache[key] = found
	p.cacheMutex.Unlock()

	return copyTrack(found)
}

func copyTrack(t *track.Track) *track.Track {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}

// Name returns the provider name.
func (p *LastFmProvider) Name() string {
	return "lastfm"
}
