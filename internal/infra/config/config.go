// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration.
type Config struct {
	Server    ServerConfig            `yaml:"server"`
	Spotify   SpotifyConfig           `yaml:"spotify"`
	Store     StoreConfig             `yaml:"store"`
	Mood      MoodConfig              `yaml:"mood"`
	Recommend RecommendConfig         `yaml:"recommend"`
	Messages  MessagesConfig          `yaml:"messages"`
	Filters   map[string]FilterConfig `yaml:"filters"`
}

// ServerConfig represents server configuration.
type ServerConfig struct {
	Addr         string `yaml:"addr" default:":8080"`
	ControlToken string `yaml:"control_token" validate:"required"`
}

// SpotifyConfig represents Spotify API configuration.
type SpotifyConfig struct {
	ClientID          string   `yaml:"client_id" validate:"required"`
	RedirectURI       string   `yaml:"redirect_uri" default:"http://127.0.0.1:8080/callback" validate:"url"`
	Scopes            []string `yaml:"scopes"`
	Market            string   `yaml:"market" validate:"omitempty,len=2" default:"JP"`
	DeviceName        string   `yaml:"device_name"`
	APIBaseURL        string   `yaml:"api_base_url" validate:"omitempty,url"`
	AuthURL           string   `yaml:"auth_url" validate:"omitempty,url"`
	TokenURL          string   `yaml:"token_url" validate:"omitempty,url"`
	RequestsPerSecond float64  `yaml:"requests_per_second" default:"5" validate:"gte=0"`
	Burst             int      `yaml:"burst" default:"5" validate:"gte=0"`
	TimeoutMs         int      `yaml:"timeout_ms" default:"10000" validate:"gte=0"`
	PollIntervalMs    int      `yaml:"poll_interval_ms" default:"2000" validate:"gte=200"`
	RefreshMarginSec  int      `yaml:"refresh_margin_sec" default:"60" validate:"gte=0,lte=3000"`
}

// StoreConfig represents credential storage configuration.
type StoreConfig struct {
	Backend string `yaml:"backend" default:"file" validate:"oneof=file sqlite memory"`
	Path    string `yaml:"path" default:"./data"`
}

// MoodConfig represents mood transition configuration.
type MoodConfig struct {
	CrossfadeMs        int     `yaml:"crossfade_ms" default:"4000" validate:"gte=0,lte=60000"`
	GradualMs          int     `yaml:"gradual_ms" default:"10000" validate:"gte=0,lte=120000"`
	GradualEnergyDelta float64 `yaml:"gradual_energy_delta" default:"0.4" validate:"gt=0,lte=1"`
	HistorySize        int     `yaml:"history_size" default:"20" validate:"gte=0"`
}

// RecommendConfig represents recommendation provider configuration.
type RecommendConfig struct {
	CandidateCount int              `yaml:"candidate_count" default:"5" validate:"gte=1,lte=50"`
	Providers      []ProviderConfig `yaml:"providers" validate:"required,min=1,dive"`
}

// ProviderConfig represents a single recommendation provider configuration.
type ProviderConfig struct {
	Type        string         `yaml:"type" validate:"required"`
	DisplayName string         `yaml:"display_name" validate:"required"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents a candidate filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// MessagesConfig represents user-facing messages on the authorization result page.
// Empty messages fall back to built-in text.
type MessagesConfig struct {
	Success    string `yaml:"success" default:"FeelTune is connected to Spotify. You can close this window."`
	Denied     string `yaml:"denied"`
	Parameters string `yaml:"parameters"`
	Unexpected string `yaml:"unexpected"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses YAML configuration, applies environment overrides and defaults, and validates.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	cfg.overrideFromEnv()

	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("SPOTIFY_CLIENT_ID"); v != "" {
		c.Spotify.ClientID = v
	}
	if v := os.Getenv("SPOTIFY_REDIRECT_URI"); v != "" {
		c.Spotify.RedirectURI = v
	}
	if v := os.Getenv("LASTFM_API_KEY"); v != "" {
		for i := range c.Recommend.Providers {
			if c.Recommend.Providers[i].Type == "lastfm" {
				if c.Recommend.Providers[i].Settings == nil {
					c.Recommend.Providers[i].Settings = make(map[string]any)
				}
				c.Recommend.Providers[i].Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}
	return nil
}

// GetMessage returns the configured message for an authorization failure class,
// or "" when none is configured.
func (c *Config) GetMessage(code string) string {
	switch code {
	case "success":
		return c.Messages.Success
	case "denied":
		return c.Messages.Denied
	case "parameters":
		return c.Messages.Parameters
	case "unexpected":
		return c.Messages.Unexpected
	default:
		return ""
	}
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// Timeout returns the per-request Web API timeout.
func (s SpotifyConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutMs) * time.Millisecond
}

// PollInterval returns the device poll interval.
func (s SpotifyConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// RefreshMargin returns how long before expiry tokens are refreshed.
func (s SpotifyConfig) RefreshMargin() time.Duration {
	return time.Duration(s.RefreshMarginSec) * time.Second
}

// Crossfade returns the crossfade duration.
func (m MoodConfig) Crossfade() time.Duration {
	return time.Duration(m.CrossfadeMs) * time.Millisecond
}

// Gradual returns the gradual transition duration.
func (m MoodConfig) Gradual() time.Duration {
	return time.Duration(m.GradualMs) * time.Millisecond
}
