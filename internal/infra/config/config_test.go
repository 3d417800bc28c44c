package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{"SPOTIFY_CLIENT_ID", "SPOTIFY_REDIRECT_URI", "LASTFM_API_KEY", "CONTROL_TOKEN"} {
		t.Setenv(key, "")
	}
}

const minimalYAML = `
server:
  control_token: secret
spotify:
  client_id: test-client-id
recommend:
  providers:
    - type: spotify
      display_name: Spotify
`

func TestConfig_Validate_RequiredFields(t *testing.T) {
	valid := func() Config {
		return Config{
			Server: ServerConfig{Addr: ":8080", ControlToken: "secret"},
			Spotify: SpotifyConfig{
				ClientID:       "test-client-id",
				RedirectURI:    "http://127.0.0.1:8080/callback",
				Market:         "JP",
				PollIntervalMs: 2000,
			},
			Store: StoreConfig{Backend: "file", Path: "./data"},
			Mood:  MoodConfig{CrossfadeMs: 4000, GradualMs: 10000, GradualEnergyDelta: 0.4},
			Recommend: RecommendConfig{
				CandidateCount: 5,
				Providers: []ProviderConfig{
					{Type: "lastfm", DisplayName: "Last.fm", Settings: map[string]any{"api_key": "k"}},
				},
			},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(*Config) {},
		},
		{
			name:    "missing spotify client id",
			mutate:  func(c *Config) { c.Spotify.ClientID = "" },
			wantErr: true,
			errMsg:  "ClientID",
		},
		{
			name:    "missing control token",
			mutate:  func(c *Config) { c.Server.ControlToken = "" },
			wantErr: true,
			errMsg:  "ControlToken",
		},
		{
			name:    "invalid market",
			mutate:  func(c *Config) { c.Spotify.Market = "JPN" },
			wantErr: true,
			errMsg:  "Market",
		},
		{
			name:    "unknown store backend",
			mutate:  func(c *Config) { c.Store.Backend = "redis" },
			wantErr: true,
			errMsg:  "Backend",
		},
		{
			name:    "no providers",
			mutate:  func(c *Config) { c.Recommend.Providers = nil },
			wantErr: true,
			errMsg:  "Providers",
		},
		{
			name:    "provider without display name",
			mutate:  func(c *Config) { c.Recommend.Providers[0].DisplayName = "" },
			wantErr: true,
			errMsg:  "DisplayName",
		},
		{
			name:    "energy delta out of range",
			mutate:  func(c *Config) { c.Mood.GradualEnergyDelta = 1.5 },
			wantErr: true,
			errMsg:  "GradualEnergyDelta",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParse_Defaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "http://127.0.0.1:8080/callback", cfg.Spotify.RedirectURI)
	assert.Equal(t, "JP", cfg.Spotify.Market)
	assert.Equal(t, 10*time.Second, cfg.Spotify.Timeout())
	assert.Equal(t, 2*time.Second, cfg.Spotify.PollInterval())
	assert.Equal(t, time.Minute, cfg.Spotify.RefreshMargin())
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, 4*time.Second, cfg.Mood.Crossfade())
	assert.Equal(t, 10*time.Second, cfg.Mood.Gradual())
	assert.Equal(t, 0.4, cfg.Mood.GradualEnergyDelta)
	assert.Equal(t, 5, cfg.Recommend.CandidateCount)
	assert.NotEmpty(t, cfg.GetMessage("success"))
	assert.Empty(t, cfg.GetMessage("denied"))
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Setenv("SPOTIFY_CLIENT_ID", "env-client")
	t.Setenv("SPOTIFY_REDIRECT_URI", "http://localhost:9999/callback")
	t.Setenv("CONTROL_TOKEN", "env-token")
	t.Setenv("LASTFM_API_KEY", "env-lastfm")

	cfg, err := Parse([]byte(`
spotify:
  client_id: file-client
recommend:
  providers:
    - type: spotify
      display_name: Spotify
    - type: lastfm
      display_name: Last.fm
`))
	require.NoError(t, err)

	assert.Equal(t, "env-client", cfg.Spotify.ClientID)
	assert.Equal(t, "http://localhost:9999/callback", cfg.Spotify.RedirectURI)
	assert.Equal(t, "env-token", cfg.Server.ControlToken)
	assert.Equal(t, "env-lastfm", cfg.Recommend.Providers[1].Settings["api_key"])
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{name: "malformed yaml", yaml: "server: ["},
		{name: "missing required", yaml: "server:\n  addr: ':9090'\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			_, err := Parse([]byte(tt.yaml))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(minimalYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "test-client-id", cfg.Spotify.ClientID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParse_Filters(t *testing.T) {
	clearEnv(t)
	cfg, err := Parse([]byte(minimalYAML + `
filters:
  duplicate_track_filter:
    enabled: true
  recent_artist_filter:
    enabled: false
    settings:
      window: 2
`))
	require.NoError(t, err)

	assert.True(t, cfg.IsFilterEnabled("duplicate_track_filter"))
	assert.False(t, cfg.IsFilterEnabled("recent_artist_filter"))
	assert.False(t, cfg.IsFilterEnabled("unknown_filter"))
	assert.Equal(t, 2, cfg.Filters["recent_artist_filter"].Settings["window"])
}
