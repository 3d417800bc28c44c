// Package spotify provides the Spotify Web API adapters: the remote client and the device-bound player.
package spotify

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/feeltune/internal/domain/failure"
	"github.com/osa030/feeltune/internal/domain/player"
	"github.com/osa030/feeltune/internal/domain/track"
)

// DefaultBaseURL is the Web API root. It must end with a slash.
const DefaultBaseURL = "https://api.spotify.com/v1/"

// Config represents Spotify client configuration.
type Config struct {
	BaseURL           string        // Web API root, DefaultBaseURL when empty
	Market            string        // Market for search, empty for the account's market
	RequestsPerSecond float64       // Request budget shared by every client, unlimited when zero
	Burst             int           // Burst allowance for the request budget
	Timeout           time.Duration // Per-request timeout, none when zero
}

// Client is the remote-control Web API client.
type Client struct {
	client *spotify.Client
	market string
}

// NewLimiter builds the request limiter described by cfg. It returns nil when
// no budget is configured.
func NewLimiter(cfg Config) *rate.Limiter {
	if cfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
}

// New creates a client whose requests are authorized by ts and throttled by limiter.
// limiter may be nil.
func New(ts oauth2.TokenSource, limiter *rate.Limiter, cfg Config) *Client {
	return &Client{
		client: newAPI(ts, limiter, cfg),
		market: cfg.Market,
	}
}

func newAPI(ts oauth2.TokenSource, limiter *rate.Limiter, cfg Config) *spotify.Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}

	var base http.RoundTripper = http.DefaultTransport
	if limiter != nil {
		base = &limitedTransport{limiter: limiter, base: base}
	}
	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: &oauth2.Transport{Source: ts, Base: base},
	}
	return spotify.New(httpClient, spotify.WithBaseURL(baseURL))
}

// Play starts playback of exactly uri on deviceID, replacing the device's queue.
func (c *Client) Play(ctx context.Context, deviceID, uri string) error {
	if !strings.HasPrefix(uri, "spotify:") {
		uri = track.URIFromID(uri)
	}

	id := spotify.ID(deviceID)
	err := c.client.PlayOpt(ctx, &spotify.PlayOptions{
		DeviceID: &id,
		URIs:     []spotify.URI{spotify.URI(uri)},
	})
	if err != nil {
		return failure.Network(err, "failed to start playback")
	}
	return nil
}

// Recommendations returns up to limit tracks close to the target audio features.
func (c *Client) Recommendations(ctx context.Context, genres []string, valence, energy float64, minPopularity, limit int) ([]track.Track, error) {
	if len(genres) == 0 {
		return nil, errors.New("at least one seed genre is required")
	}

	attrs := spotify.NewTrackAttributes().
		TargetValence(valence).
		TargetEnergy(energy).
		MinPopularity(minPopularity)

	recs, err := c.client.GetRecommendations(ctx, spotify.Seeds{Genres: genres}, attrs, spotify.Limit(limit))
	if err != nil {
		return nil, failure.Network(err, "failed to get recommendations")
	}

	tracks := make([]track.Track, 0, len(recs.Tracks))
	for _, t := range recs.Tracks {
		tracks = append(tracks, convertTrack(t, t.Album.Images))
	}
	return tracks, nil
}

// CurrentlyPlaying returns what the account is playing, or nil when nothing is.
func (c *Client) CurrentlyPlaying(ctx context.Context) (*player.Playback, error) {
	cp, err := c.client.PlayerCurrentlyPlaying(ctx)
	if err != nil {
		return nil, failure.Network(err, "failed to get currently playing track")
	}
	if cp == nil || cp.Item == nil {
		return nil, nil
	}

	t := convertTrack(cp.Item.SimpleTrack, cp.Item.Album.Images)
	return &player.Playback{
		IsPlaying: cp.Playing,
		Progress:  time.Duration(cp.Progress) * time.Millisecond,
		Track:     &t,
	}, nil
}

// Search searches for tracks.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]track.Track, error) {
	if query == "" {
		return nil, errors.New("search query is required")
	}

	if limit <= 0 {
		limit = 20
	}
	if limit > 50 {
		limit = 50
	}

	opts := []spotify.RequestOption{spotify.Limit(limit)}
	if c.market != "" {
		opts = append(opts, spotify.Market(c.market))
	}

	result, err := c.client.Search(ctx, query, spotify.SearchTypeTrack, opts...)
	if err != nil {
		return nil, failure.Network(err, "failed to search")
	}
	if result.Tracks == nil {
		return []track.Track{}, nil
	}

	tracks := make([]track.Track, 0, len(result.Tracks.Tracks))
	for _, t := range result.Tracks.Tracks {
		tracks = append(tracks, convertTrack(t.SimpleTrack, t.Album.Images))
	}
	return tracks, nil
}

// ResolveTrack finds the best match for an artist and title, or nil if none.
func (c *Client) ResolveTrack(ctx context.Context, artist, title string) (*track.Track, error) {
	query := fmt.Sprintf("track:%s artist:%s", title, artist)
	tracks, err := c.Search(ctx, query, 1)
	if err != nil {
		return nil, err
	}
	if len(tracks) == 0 {
		return nil, nil
	}
	return &tracks[0], nil
}

// convertTrack converts a Spotify track to the normalized domain Track.
func convertTrack(t spotify.SimpleTrack, images []spotify.Image) track.Track {
	var artist string
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}

	var cover string
	if len(images) > 0 {
		cover = images[0].URL
	}

	uri := string(t.URI)
	if uri == "" && t.ID != "" {
		uri = track.URIFromID(string(t.ID))
	}

	return track.Track{
		URI:             uri,
		Name:            t.Name,
		Artist:          artist,
		DurationSeconds: track.DurationSeconds(int(t.Duration)),
		AlbumCoverURL:   cover,
	}
}

// limitedTransport waits for the shared request budget before each request.
type limitedTransport struct {
	limiter *rate.Limiter
	base    http.RoundTripper
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, errors.Wrap(err, "request budget wait cancelled")
	}
	return t.base.RoundTrip(req)
}
