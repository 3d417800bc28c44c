// Package lastfm provides a client for the Last.fm API.
package lastfm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/domain/failure"
)

// DefaultBaseURL is the Last.fm API root.
const DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

// DefaultCacheTTL is how long tag results are reused.
const DefaultCacheTTL = 30 * time.Minute

// ErrAPI marks errors reported by Last.fm in a response body.
var ErrAPI = errors.New("last.fm API error")

type tagTracksCacheEntry struct {
	tracks  []TopTrack
	fetched time.Time
}

// Client is a Last.fm API client.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	ttl        time.Duration
	now        func() time.Time

	cacheMu        sync.RWMutex
	tagTracksCache map[string]*tagTracksCacheEntry
}

// Config represents Last.fm client configuration.
type Config struct {
	APIKey   string
	BaseURL  string        // DefaultBaseURL when empty
	Timeout  time.Duration // 10s when zero
	CacheTTL time.Duration // DefaultCacheTTL when zero
}

// TopTrack represents a top track for a tag.
type TopTrack struct {
	Name   string
	Artist string
}

// GetTopTracksResponse represents the response from tag.getTopTracks and chart.getTopTracks.
type GetTopTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string `json:"name"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
}

// LastFMError represents an error response from Last.fm API.
type LastFMError struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// New creates a new Last.fm client.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("last.fm API key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(cfg.BaseURL, "/") {
		cfg.BaseURL += "/"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	return &Client{
		apiKey:         cfg.APIKey,
		baseURL:        cfg.BaseURL,
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		ttl:            cfg.CacheTTL,
		now:            time.Now,
		tagTracksCache: make(map[string]*tagTracksCacheEntry),
	}, nil
}

// GetTopTracks retrieves top tracks for a tag. Results are cached per tag and limit.
// Reference: https://www.last.fm/api/show/tag.getTopTracks
func (c *Client) GetTopTracks(ctx context.Context, tagName string, limit int) ([]TopTrack, error) {
	tagName = strings.ToLower(strings.TrimSpace(tagName))
	if tagName == "" {
		return nil, errors.New("tag name is required")
	}
	limit = clampLimit(limit)

	cacheKey := tagName + ":" + strconv.Itoa(limit)
	if tracks, ok := c.cached(cacheKey); ok {
		zlog.Debug().Msgf("lastfm: using cached top tracks for tag: %s", tagName)
		return tracks, nil
	}

	params := url.Values{}
	params.Set("method", "tag.getTopTracks")
	params.Set("tag", tagName)
	params.Set("limit", strconv.Itoa(limit))

	tracks, err := c.topTracks(ctx, params)
	if err != nil {
		return nil, err
	}

	c.cacheMu.Lock()
	c.tagTracksCache[cacheKey] = &tagTracksCacheEntry{tracks: tracks, fetched: c.now()}
	c.cacheMu.Unlock()
	zlog.Debug().Msgf("lastfm: cached top tracks for tag: %s (count: %d)", tagName, len(tracks))

	return tracks, nil
}

// GetChartTopTracks retrieves global top tracks from Last.fm charts. It is not cached.
// Reference: https://www.last.fm/api/show/chart.getTopTracks
func (c *Client) GetChartTopTracks(ctx context.Context, limit int) ([]TopTrack, error) {
	params := url.Values{}
	params.Set("method", "chart.getTopTracks")
	params.Set("limit", strconv.Itoa(clampLimit(limit)))
	return c.topTracks(ctx, params)
}

func (c *Client) cached(key string) ([]TopTrack, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	entry, ok := c.tagTracksCache[key]
	if !ok || c.now().Sub(entry.fetched) >= c.ttl {
		return nil, false
	}
	return append([]TopTrack(nil), entry.tracks...), true
}

func (c *Client) topTracks(ctx context.Context, params url.Values) ([]TopTrack, error) {
	body, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}

	var response GetTopTracksResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, errors.Wrap(err, "failed to parse response")
	}

	tracks := make([]TopTrack, 0, len(response.Tracks.Track))
	for _, t := range response.Tracks.Track {
		if t.Name == "" || t.Artist.Name == "" {
			continue
		}
		tracks = append(tracks, TopTrack{
			Name:   t.Name,
			Artist: t.Artist.Name,
		})
	}
	return tracks, nil
}

func (c *Client) get(ctx context.Context, params url.Values) ([]byte, error) {
	params.Set("api_key", c.apiKey)
	params.Set("format", "json")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, failure.Network(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, failure.Network(err, "failed to read response body")
	}

	// Last.fm reports most errors with a JSON body, sometimes under a 200.
	var apiError LastFMError
	if err := json.Unmarshal(body, &apiError); err == nil && apiError.Error != 0 {
		return nil, errors.Wrapf(ErrAPI, "code %d: %s", apiError.Error, apiError.Message)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, failure.Network(errors.Newf("status %d", resp.StatusCode), "last.fm request failed")
	}
	return body, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 20
	}
	if limit > 100 {
		return 100
	}
	return limit
}
