package spotify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/osa030/feeltune/internal/domain/failure"
	"github.com/osa030/feeltune/internal/domain/player"
)

const trackJSON = `{
	"id": "4uLU6hMCjMI75M1A2tKUQC",
	"uri": "spotify:track:4uLU6hMCjMI75M1A2tKUQC",
	"name": "Never Gonna Give You Up",
	"duration_ms": 213573,
	"artists": [{"name": "Rick Astley"}, {"name": "Someone Else"}],
	"album": {"name": "Whenever You Need Somebody", "images": [{"url": "https://i.scdn.co/image/cover", "height": 640, "width": 640}]}
}`

type request struct {
	Method string
	Path   string
	Query  map[string]string
	Body   string
	Auth   string
}

// fakeAPI is a minimal Web API double.
type fakeAPI struct {
	*httptest.Server

	mu          sync.Mutex
	requests    []request
	devicesJSON atomic.Value // string
	playing     atomic.Bool
}

func newFakeAPI(t *testing.T) *fakeAPI {
	f := &fakeAPI{}
	f.devicesJSON.Store(`{"devices":[]}`)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/recommendations", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"seeds":[],"tracks":[` + trackJSON + `]}`))
	})
	mux.HandleFunc("/v1/search", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tracks":{"items":[` + trackJSON + `],"total":1}}`))
	})
	mux.HandleFunc("/v1/me/player/devices", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(f.devicesJSON.Load().(string)))
	})
	mux.HandleFunc("/v1/me/player/currently-playing", func(w http.ResponseWriter, r *http.Request) {
		if !f.playing.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"is_playing":true,"progress_ms":42000,"item":` + trackJSON + `}`))
	})
	mux.HandleFunc("/v1/me/player", func(w http.ResponseWriter, r *http.Request) {
		if !f.playing.Load() {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		_, _ = w.Write([]byte(`{"device":{"id":"dev-1","name":"Kitchen","is_active":true},"is_playing":true,"progress_ms":1000,"item":` + trackJSON + `}`))
	})
	for _, p := range []string{"/v1/me/player/play", "/v1/me/player/pause", "/v1/me/player/seek", "/v1/me/player/volume", "/v1/me/player/next", "/v1/me/player/previous"} {
		mux.HandleFunc(p, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	f.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req := request{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  map[string]string{},
			Auth:   r.Header.Get("Authorization"),
		}
		for k := range r.URL.Query() {
			req.Query[k] = r.URL.Query().Get(k)
		}
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			req.Body = string(body)
		}
		f.mu.Lock()
		f.requests = append(f.requests, req)
		f.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		mux.ServeHTTP(w, r)
	}))
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) find(method, path string) (request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.requests) - 1; i >= 0; i-- {
		if f.requests[i].Method == method && f.requests[i].Path == path {
			return f.requests[i], true
		}
	}
	return request{}, false
}

func (f *fakeAPI) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeAPI) config() Config {
	return Config{BaseURL: f.URL + "/v1"}
}

func staticToken() oauth2.TokenSource {
	return oauth2.StaticTokenSource(&oauth2.Token{AccessToken: "test-token"})
}

func TestClient_Recommendations(t *testing.T) {
	api := newFakeAPI(t)
	c := New(staticToken(), nil, api.config())

	tracks, err := c.Recommendations(context.Background(), []string{"pop", "dance"}, 0.8, 0.7, 50, 5)
	require.NoError(t, err)
	require.Len(t, tracks, 1)

	got := tracks[0]
	assert.Equal(t, "spotify:track:4uLU6hMCjMI75M1A2tKUQC", got.URI)
	assert.Equal(t, "Never Gonna Give You Up", got.Name)
	assert.Equal(t, "Rick Astley", got.Artist)
	assert.Equal(t, 214, got.DurationSeconds)
	assert.Equal(t, "https://i.scdn.co/image/cover", got.AlbumCoverURL)

	req, ok := api.find(http.MethodGet, "/v1/recommendations")
	require.True(t, ok)
	assert.Equal(t, "Bearer test-token", req.Auth)
	assert.Equal(t, "5", req.Query["limit"])
	assert.Equal(t, "50", req.Query["min_popularity"])
	assert.Equal(t, "pop,dance", req.Query["seed_genres"])

	valence, err := strconv.ParseFloat(req.Query["target_valence"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.8, valence, 1e-9)
	energy, err := strconv.ParseFloat(req.Query["target_energy"], 64)
	require.NoError(t, err)
	assert.InDelta(t, 0.7, energy, 1e-9)
}

func TestClient_RecommendationsRequiresSeed(t *testing.T) {
	api := newFakeAPI(t)
	c := New(staticToken(), nil, api.config())

	_, err := c.Recommendations(context.Background(), nil, 0.5, 0.5, 50, 5)
	assert.Error(t, err)
	assert.Equal(t, 0, api.count())
}

func TestClient_Play(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"uri", "spotify:track:4uLU6hMCjMI75M1A2tKUQC"},
		{"bare id", "4uLU6hMCjMI75M1A2tKUQC"},
		{"url", "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC?si=x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeAPI(t)
			c := New(staticToken(), nil, api.config())

			require.NoError(t, c.Play(context.Background(), "dev-1", tt.input))

			req, ok := api.find(http.MethodPut, "/v1/me/player/play")
			require.True(t, ok)
			assert.Equal(t, "dev-1", req.Query["device_id"])

			var body struct {
				URIs []string `json:"uris"`
			}
			require.NoError(t, json.Unmarshal([]byte(req.Body), &body))
			assert.Equal(t, []string{"spotify:track:4uLU6hMCjMI75M1A2tKUQC"}, body.URIs)
		})
	}
}

func TestClient_NetworkFailure(t *testing.T) {
	api := newFakeAPI(t)
	c := New(staticToken(), nil, api.config())
	api.Close()

	err := c.Play(context.Background(), "dev-1", "spotify:track:x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNetwork))
}

func TestClient_TokenErrorPropagates(t *testing.T) {
	api := newFakeAPI(t)
	sentinel := errors.New("not signed in")
	ts := tokenSourceFunc(func() (*oauth2.Token, error) { return nil, sentinel })
	c := New(ts, nil, api.config())

	err := c.Play(context.Background(), "dev-1", "spotify:track:x")
	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, 0, api.count(), "no request without a token")
}

type tokenSourceFunc func() (*oauth2.Token, error)

func (f tokenSourceFunc) Token() (*oauth2.Token, error) { return f() }

func TestClient_CurrentlyPlaying(t *testing.T) {
	api := newFakeAPI(t)
	c := New(staticToken(), nil, api.config())
	ctx := context.Background()

	pb, err := c.CurrentlyPlaying(ctx)
	require.NoError(t, err)
	assert.Nil(t, pb, "204 means nothing is playing")

	api.playing.Store(true)
	pb, err = c.CurrentlyPlaying(ctx)
	require.NoError(t, err)
	require.NotNil(t, pb)
	assert.True(t, pb.IsPlaying)
	assert.Equal(t, 42*time.Second, pb.Progress)
	require.NotNil(t, pb.Track)
	assert.Equal(t, "Rick Astley", pb.Track.Artist)
}

func TestClient_Search(t *testing.T) {
	api := newFakeAPI(t)
	c := New(staticToken(), nil, Config{BaseURL: api.URL + "/v1/", Market: "JP"})
	ctx := context.Background()

	_, err := c.Search(ctx, "", 5)
	assert.Error(t, err)

	found, err := c.ResolveTrack(ctx, "Rick Astley", "Never Gonna Give You Up")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "spotify:track:4uLU6hMCjMI75M1A2tKUQC", found.URI)

	req, ok := api.find(http.MethodGet, "/v1/search")
	require.True(t, ok)
	assert.Equal(t, "track", req.Query["type"])
	assert.Equal(t, "1", req.Query["limit"])
	assert.Equal(t, "JP", req.Query["market"])
	assert.Equal(t, "track:Never Gonna Give You Up artist:Rick Astley", req.Query["q"])
}

func TestNewLimiter(t *testing.T) {
	assert.Nil(t, NewLimiter(Config{}))

	l := NewLimiter(Config{RequestsPerSecond: 5, Burst: 2})
	require.NotNil(t, l)
	assert.Equal(t, 2, l.Burst())
}

func TestClient_RateLimited(t *testing.T) {
	api := newFakeAPI(t)
	limiter := NewLimiter(Config{RequestsPerSecond: 20, Burst: 1})
	c := New(staticToken(), limiter, api.config())
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		_, err := c.CurrentlyPlaying(ctx)
		require.NoError(t, err)
	}
	assert.GreaterOrEqual(t, time.Since(start), 90*time.Millisecond)
}

func nextEvent(t *testing.T, ch <-chan player.Event, want player.EventType) player.Event {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e, ok := <-ch:
			require.True(t, ok, "event channel closed while waiting for %s", want)
			if e.Type == want {
				return e
			}
		case <-timeout:
			t.Fatalf("no %s event", want)
		}
	}
}

func TestDevicePlayer_Lifecycle(t *testing.T) {
	api := newFakeAPI(t)
	ctx := context.Background()
	loader := NewLoader(api.config(), PlayerConfig{DeviceName: "kitchen", PollInterval: 10 * time.Millisecond}, nil)

	p, err := loader.Load(ctx, staticToken())
	require.NoError(t, err)
	dp := p.(*DevicePlayer)

	assert.True(t, errors.Is(p.Pause(ctx), ErrNoDevice))

	require.NoError(t, p.Connect(ctx))
	require.NoError(t, p.Connect(ctx))

	api.devicesJSON.Store(`{"devices":[{"id":"dev-0","name":"Phone","is_active":true},{"id":"dev-1","name":"Kitchen","is_active":false}]}`)
	ready := nextEvent(t, p.Events(), player.EventReady)
	assert.Equal(t, "dev-1", ready.DeviceID)
	assert.Equal(t, "dev-1", dp.DeviceID())

	api.playing.Store(true)
	changed := nextEvent(t, p.Events(), player.EventStateChanged)
	require.NotNil(t, changed.State)
	assert.False(t, changed.State.Paused)
	require.NotNil(t, changed.State.Track)
	assert.Equal(t, "spotify:track:4uLU6hMCjMI75M1A2tKUQC", changed.State.Track.URI)

	require.NoError(t, p.SetVolume(ctx, 0.5))
	req, ok := api.find(http.MethodPut, "/v1/me/player/volume")
	require.True(t, ok)
	assert.Equal(t, "50", req.Query["volume_percent"])
	assert.Equal(t, "dev-1", req.Query["device_id"])

	require.NoError(t, p.Seek(ctx, 90*time.Second))
	req, ok = api.find(http.MethodPut, "/v1/me/player/seek")
	require.True(t, ok)
	assert.Equal(t, "90000", req.Query["position_ms"])

	require.NoError(t, p.Pause(ctx))
	_, ok = api.find(http.MethodPut, "/v1/me/player/pause")
	assert.True(t, ok)

	require.NoError(t, p.NextTrack(ctx))
	_, ok = api.find(http.MethodPost, "/v1/me/player/next")
	assert.True(t, ok)

	require.NoError(t, p.PreviousTrack(ctx))
	_, ok = api.find(http.MethodPost, "/v1/me/player/previous")
	assert.True(t, ok)

	api.devicesJSON.Store(`{"devices":[{"id":"dev-0","name":"Phone","is_active":true}]}`)
	gone := nextEvent(t, p.Events(), player.EventNotReady)
	assert.Equal(t, "dev-1", gone.DeviceID)
	assert.Empty(t, dp.DeviceID())

	p.Disconnect()
	p.Disconnect()
	for range p.Events() {
	}
	assert.Error(t, p.Connect(ctx))
}

func TestDevicePlayer_BindsActiveDeviceByDefault(t *testing.T) {
	api := newFakeAPI(t)
	api.devicesJSON.Store(`{"devices":[{"id":"dev-0","name":"Phone","is_active":true},{"id":"dev-1","name":"Kitchen","is_active":false}]}`)
	ctx := context.Background()

	p, err := NewLoader(api.config(), PlayerConfig{PollInterval: 10 * time.Millisecond}, nil).Load(ctx, staticToken())
	require.NoError(t, err)
	require.NoError(t, p.Connect(ctx))
	defer p.Disconnect()

	ready := nextEvent(t, p.Events(), player.EventReady)
	assert.Equal(t, "dev-0", ready.DeviceID)
}

func TestDevicePlayer_EmitKeepsReadinessWhenBufferFull(t *testing.T) {
	p := &DevicePlayer{events: make(chan player.Event, 1)}
	ctx := context.Background()

	p.emit(ctx, player.Event{Type: player.EventStateChanged, DeviceID: "dev-1"})
	// Buffer is full: a second state change is dropped.
	p.emit(ctx, player.Event{Type: player.EventStateChanged, DeviceID: "dev-2"})

	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		p.emit(ctx, player.Event{Type: player.EventNotReady, DeviceID: "dev-1"})
	}()

	select {
	case <-delivered:
		t.Fatal("readiness event returned before the consumer made room")
	case <-time.After(50 * time.Millisecond):
	}

	first := <-p.events
	assert.Equal(t, player.EventStateChanged, first.Type)
	assert.Equal(t, "dev-1", first.DeviceID)

	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("readiness event was not delivered")
	}
	second := <-p.events
	assert.Equal(t, player.EventNotReady, second.Type)
}

func TestDevicePlayer_EmitReadinessStopsWithContext(t *testing.T) {
	p := &DevicePlayer{events: make(chan player.Event, 1)}
	p.events <- player.Event{Type: player.EventStateChanged}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.emit(ctx, player.Event{Type: player.EventReady, DeviceID: "dev-1"})
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("emit blocked after the context ended")
	}
	assert.Len(t, p.events, 1)
}

func TestLoader_LoadFailure(t *testing.T) {
	api := newFakeAPI(t)
	api.Close()

	_, err := NewLoader(api.config(), PlayerConfig{}, nil).Load(context.Background(), staticToken())
	require.Error(t, err)
	assert.True(t, errors.Is(err, failure.ErrNetwork))
}
