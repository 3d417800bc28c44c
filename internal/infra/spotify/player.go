package spotify

import (
	"context"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"github.com/zmb3/spotify/v2"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/osa030/feeltune/internal/domain/failure"
	"github.com/osa030/feeltune/internal/domain/player"
)

// DefaultPollInterval is how often the device player polls the Web API.
const DefaultPollInterval = 2 * time.Second

// ErrNoDevice is returned by transport calls while no device is bound.
var ErrNoDevice = errors.New("no playback device bound")

// PlayerConfig configures the device-bound player.
type PlayerConfig struct {
	DeviceName   string        // Bind to this device name, else to the active device
	PollInterval time.Duration // DefaultPollInterval when zero
}

// Loader creates device players.
type Loader struct {
	cfg       Config
	playerCfg PlayerConfig
	limiter   *rate.Limiter
}

// NewLoader creates a loader. limiter may be nil.
func NewLoader(cfg Config, playerCfg PlayerConfig, limiter *rate.Limiter) *Loader {
	if playerCfg.PollInterval <= 0 {
		playerCfg.PollInterval = DefaultPollInterval
	}
	return &Loader{cfg: cfg, playerCfg: playerCfg, limiter: limiter}
}

// Load builds a player whose requests are authorized by ts. It performs one
// device listing so that an unreachable API or a rejected token fails here.
func (l *Loader) Load(ctx context.Context, ts oauth2.TokenSource) (player.Player, error) {
	api := newAPI(ts, l.limiter, l.cfg)
	devices, err := api.PlayerDevices(ctx)
	if err != nil {
		return nil, failure.Network(err, "failed to list playback devices")
	}
	zlog.Debug().Msgf("spotify: player loaded, %d devices visible", len(devices))
	return newDevicePlayer(api, l.playerCfg), nil
}

// DevicePlayer binds to one Spotify Connect device and reports its
// availability and playback changes as events.
type DevicePlayer struct {
	api      *spotify.Client
	name     string
	interval time.Duration
	events   chan player.Event

	mu       sync.RWMutex
	deviceID string
	last     *player.State
	cancel   context.CancelFunc
	done     chan struct{}
	closed   bool
}

func newDevicePlayer(api *spotify.Client, cfg PlayerConfig) *DevicePlayer {
	return &DevicePlayer{
		api:      api,
		name:     cfg.DeviceName,
		interval: cfg.PollInterval,
		events:   make(chan player.Event, 16),
	}
}

// Events returns the event channel. It is closed after Disconnect.
func (p *DevicePlayer) Events() <-chan player.Event {
	return p.events
}

// Connect starts polling for the device. Connecting twice is a no-op; a
// disconnected player cannot be reconnected.
func (p *DevicePlayer) Connect(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return errors.New("player already disconnected")
	}
	if p.cancel != nil {
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
	return nil
}

// Disconnect stops polling and closes the event channel. It is idempotent.
func (p *DevicePlayer) Disconnect() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	cancel, done := p.cancel, p.done
	p.cancel = nil
	p.mu.Unlock()

	if cancel == nil {
		close(p.events)
		return
	}
	cancel()
	<-done
}

func (p *DevicePlayer) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	defer close(p.events)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func (p *DevicePlayer) poll(ctx context.Context) {
	devices, err := p.api.PlayerDevices(ctx)
	if err != nil {
		if ctx.Err() == nil {
			zlog.Debug().Err(err).Msg("spotify: device poll failed")
		}
		return
	}

	found := p.pick(devices)

	p.mu.Lock()
	prev := p.deviceID
	switch {
	case found != "" && found != prev:
		p.deviceID = found
		p.last = nil
	case found == "" && prev != "":
		p.deviceID = ""
		p.last = nil
	}
	current := p.deviceID
	p.mu.Unlock()

	if prev != "" && prev != found {
		p.emit(ctx, player.Event{Type: player.EventNotReady, DeviceID: prev})
	}
	if found != "" && found != prev {
		p.emit(ctx, player.Event{Type: player.EventReady, DeviceID: found})
	}
	if current == "" {
		return
	}

	state, err := p.CurrentState(ctx)
	if err != nil || state == nil {
		return
	}

	p.mu.Lock()
	changed := stateChanged(p.last, state)
	if changed {
		p.last = state
	}
	p.mu.Unlock()

	if changed {
		p.emit(ctx, player.Event{Type: player.EventStateChanged, DeviceID: current, State: state})
	}
}

// pick returns the configured device if visible, else the active device, else "".
func (p *DevicePlayer) pick(devices []spotify.PlayerDevice) string {
	if p.name != "" {
		for _, d := range devices {
			if strings.EqualFold(d.Name, p.name) && !d.Restricted {
				return string(d.ID)
			}
		}
		return ""
	}
	for _, d := range devices {
		if d.Active && !d.Restricted {
			return string(d.ID)
		}
	}
	return ""
}

// emit delivers e. State changes are dropped when the buffer is full; the
// next poll reports a fresher state. Readiness changes wait for the consumer
// until ctx ends.
func (p *DevicePlayer) emit(ctx context.Context, e player.Event) {
	if e.Type == player.EventStateChanged {
		select {
		case p.events <- e:
		default:
			zlog.Debug().Msgf("spotify: player event %s dropped, consumer too slow", e.Type)
		}
		return
	}

	select {
	case p.events <- e:
	case <-ctx.Done():
		zlog.Debug().Msgf("spotify: player event %s abandoned, player stopping", e.Type)
	}
}

func stateChanged(prev, next *player.State) bool {
	if prev == nil {
		return true
	}
	if prev.Paused != next.Paused {
		return true
	}
	prevURI, nextURI := "", ""
	if prev.Track != nil {
		prevURI = prev.Track.URI
	}
	if next.Track != nil {
		nextURI = next.Track.URI
	}
	return prevURI != nextURI
}

// DeviceID returns the bound device, or "".
func (p *DevicePlayer) DeviceID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.deviceID
}

func (p *DevicePlayer) target() (*spotify.PlayOptions, error) {
	id := p.DeviceID()
	if id == "" {
		return nil, ErrNoDevice
	}
	sid := spotify.ID(id)
	return &spotify.PlayOptions{DeviceID: &sid}, nil
}

// Pause pauses playback on the device.
func (p *DevicePlayer) Pause(ctx context.Context) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	return failure.Network(p.api.PauseOpt(ctx, opt), "failed to pause")
}

// Resume resumes playback on the device.
func (p *DevicePlayer) Resume(ctx context.Context) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	return failure.Network(p.api.PlayOpt(ctx, opt), "failed to resume")
}

// Seek moves playback to position.
func (p *DevicePlayer) Seek(ctx context.Context, position time.Duration) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	return failure.Network(p.api.SeekOpt(ctx, int(position.Milliseconds()), opt), "failed to seek")
}

// SetVolume sets the device volume from a 0..1 fraction.
func (p *DevicePlayer) SetVolume(ctx context.Context, fraction float64) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	percent := int(math.Round(math.Max(0, math.Min(1, fraction)) * 100))
	return failure.Network(p.api.VolumeOpt(ctx, percent, opt), "failed to set volume")
}

// PreviousTrack skips to the previous track.
func (p *DevicePlayer) PreviousTrack(ctx context.Context) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	return failure.Network(p.api.PreviousOpt(ctx, opt), "failed to skip to previous track")
}

// NextTrack skips to the next track.
func (p *DevicePlayer) NextTrack(ctx context.Context) error {
	opt, err := p.target()
	if err != nil {
		return err
	}
	return failure.Network(p.api.NextOpt(ctx, opt), "failed to skip to next track")
}

// CurrentState returns the playback state on the bound device, or nil when the
// device is not the one playing.
func (p *DevicePlayer) CurrentState(ctx context.Context) (*player.State, error) {
	id := p.DeviceID()
	if id == "" {
		return nil, nil
	}

	st, err := p.api.PlayerState(ctx)
	if err != nil {
		return nil, failure.Network(err, "failed to get player state")
	}
	if st == nil || string(st.Device.ID) != id {
		return nil, nil
	}

	state := &player.State{
		DeviceID: id,
		Paused:   !st.Playing,
		Position: time.Duration(st.Progress) * time.Millisecond,
	}
	if st.Item != nil {
		t := convertTrack(st.Item.SimpleTrack, st.Item.Album.Images)
		state.Track = &t
	}
	return state, nil
}
