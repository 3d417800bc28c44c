package lastfm

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/feeltune/internal/domain/failure"
)

const topTracksResponse = `{
	"tracks": {
		"track": [
			{
				"name": "Track 1",
				"mbid": "mbid1",
				"url": "url1",
				"artist": {"name": "Artist 1", "mbid": "ambid1", "url": "aurl1"}
			},
			{
				"name": "",
				"artist": {"name": "Nameless"}
			},
			{
				"name": "Track 2",
				"mbid": "mbid2",
				"url": "url2",
				"artist": {"name": "Artist 2", "mbid": "ambid2", "url": "aurl2"}
			}
		]
	}
}`

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *int32) {
	t.Helper()

	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		handler(w, r)
	}))
	t.Cleanup(server.Close)

	client, err := New(Config{APIKey: "test_key", BaseURL: server.URL})
	require.NoError(t, err)
	return client, &calls
}

func TestNew_RequiresAPIKey(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestGetTopTracks(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/", r.URL.Path)
		assert.Equal(t, "tag.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "happy", r.URL.Query().Get("tag"))
		assert.Equal(t, "5", r.URL.Query().Get("limit"))
		assert.Equal(t, "test_key", r.URL.Query().Get("api_key"))
		assert.Equal(t, "json", r.URL.Query().Get("format"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, topTracksResponse)
	})

	ctx := context.Background()
	tracks, err := client.GetTopTracks(ctx, " Happy ", 5)
	require.NoError(t, err)
	require.Len(t, tracks, 2)
	assert.Equal(t, TopTrack{Name: "Track 1", Artist: "Artist 1"}, tracks[0])
	assert.Equal(t, TopTrack{Name: "Track 2", Artist: "Artist 2"}, tracks[1])

	cached, err := client.GetTopTracks(ctx, "happy", 5)
	require.NoError(t, err)
	assert.Equal(t, tracks, cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(calls))
}

func TestGetTopTracks_CacheExpires(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, topTracksResponse)
	})
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	client.now = func() time.Time { return now }

	ctx := context.Background()
	_, err := client.GetTopTracks(ctx, "calm", 5)
	require.NoError(t, err)

	now = now.Add(DefaultCacheTTL)
	_, err = client.GetTopTracks(ctx, "calm", 5)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestGetTopTracks_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		isAPI     bool
		isNetwork bool
	}{
		{
			name:   "api error body",
			status: http.StatusOK,
			body:   `{"error": 6, "message": "Tag not found"}`,
			isAPI:  true,
		},
		{
			name:   "api error with status",
			status: http.StatusForbidden,
			body:   `{"error": 10, "message": "Invalid API key"}`,
			isAPI:  true,
		},
		{
			name:      "server error",
			status:    http.StatusBadGateway,
			body:      `bad gateway`,
			isNetwork: true,
		},
		{
			name:   "malformed body",
			status: http.StatusOK,
			body:   `{"tracks": [`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				fmt.Fprint(w, tt.body)
			})

			_, err := client.GetTopTracks(context.Background(), "sad", 5)
			require.Error(t, err)
			assert.Equal(t, tt.isAPI, errors.Is(err, ErrAPI))
			assert.Equal(t, tt.isNetwork, errors.Is(err, failure.ErrNetwork))
		})
	}
}

func TestGetTopTracks_RequiresTag(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	_, err := client.GetTopTracks(context.Background(), "  ", 5)
	assert.Error(t, err)
	assert.Equal(t, int32(0), atomic.LoadInt32(calls))
}

func TestGetChartTopTracks(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "chart.getTopTracks", r.URL.Query().Get("method"))
		assert.Equal(t, "100", r.URL.Query().Get("limit"))
		fmt.Fprint(w, topTracksResponse)
	})

	ctx := context.Background()
	tracks, err := client.GetChartTopTracks(ctx, 500)
	require.NoError(t, err)
	assert.Len(t, tracks, 2)

	_, err = client.GetChartTopTracks(ctx, 500)
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(calls))
}

func TestClampLimit(t *testing.T) {
	tests := []struct {
		in, want int
	}{
		{0, 20},
		{-1, 20},
		{5, 5},
		{100, 100},
		{101, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, clampLimit(tt.in))
	}
}
