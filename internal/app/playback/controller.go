package playback

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/feeltune/internal/app/credstore"
	"github.com/osa030/feeltune/internal/app/notification"
	"github.com/osa030/feeltune/internal/domain/player"
	"github.com/osa030/feeltune/internal/domain/track"
)

// Errors
var (
	ErrPlayerNotInitialized = errors.New("player not initialized")
	ErrNoActiveDevice       = errors.New("no active device")
	ErrSDKLoadFailure       = errors.New("failed to load player")
	ErrAuthorizationStarted = errors.New("authorization started, retry after login")
)

const (
	// RecommendationLimit is how many tracks GetRecommendations asks for.
	RecommendationLimit = 5
	// MinPopularity filters out obscure recommendations.
	MinPopularity = 50
)

// Remote is the Web API used without a loaded player.
type Remote interface {
	Play(ctx context.Context, deviceID, uri string) error
	Recommendations(ctx context.Context, genres []string, valence, energy float64, minPopularity, limit int) ([]track.Track, error)
	CurrentlyPlaying(ctx context.Context) (*player.Playback, error)
}

// Loader loads a player whose requests are authorized by ts.
type Loader interface {
	Load(ctx context.Context, ts oauth2.TokenSource) (player.Player, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, ts oauth2.TokenSource) (player.Player, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, ts oauth2.TokenSource) (player.Player, error) {
	return f(ctx, ts)
}

// Authenticator provides access tokens.
type Authenticator interface {
	Begin(ctx context.Context) (string, error)
	EnsureValid(ctx context.Context) (string, error)
	TokenSource(ctx context.Context) oauth2.TokenSource
}

// Controller owns the player connection and forwards transport commands to it.
type Controller struct {
	mu       sync.RWMutex
	initMu   sync.Mutex
	state    ConnectionState
	player   player.Player
	pumpDone chan struct{}
	last     *player.State

	auth   Authenticator
	creds  *credstore.Store
	loader Loader
	remote Remote
	events *notification.Manager[Event]

	ctx    context.Context
	cancel context.CancelFunc
}

// NewController creates a new playback controller.
func NewController(auth Authenticator, creds *credstore.Store, loader Loader, remote Remote) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	return &Controller{
		state:  StateDisconnected,
		auth:   auth,
		creds:  creds,
		loader: loader,
		remote: remote,
		events: notification.NewManager[Event](),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Init loads and connects the player. Without a recorded credential it starts
// authorization instead and returns ErrAuthorizationStarted. Calling Init while
// a player is loaded is a no-op.
func (c *Controller) Init(ctx context.Context) error {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	if !c.creds.HasToken() {
		if _, err := c.auth.Begin(ctx); err != nil {
			return errors.Wrap(err, "failed to start authorization")
		}
		return ErrAuthorizationStarted
	}

	c.mu.RLock()
	loaded := c.player != nil
	c.mu.RUnlock()
	if loaded {
		return nil
	}

	p, err := c.loader.Load(ctx, c.auth.TokenSource(c.ctx))
	if err != nil {
		zlog.Error().Err(err).Msg("playback: player load failed")
		return errors.Mark(errors.Wrap(err, "player load"), ErrSDKLoadFailure)
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.player = p
	c.pumpDone = done
	c.mu.Unlock()

	go c.pump(p, done)
	c.setState(StateConnecting, "")

	if err := p.Connect(ctx); err != nil {
		c.Disconnect()
		return errors.Wrap(err, "failed to connect player")
	}
	zlog.Info().Msg("playback: player connecting")
	return nil
}

// pump consumes player events until the player closes its channel.
func (c *Controller) pump(p player.Player, done chan struct{}) {
	defer close(done)

	for ev := range p.Events() {
		switch ev.Type {
		case player.EventReady:
			c.persistDevice(ev.DeviceID)
			c.setState(StateReady, ev.DeviceID)
			zlog.Info().Msgf("playback: ready with device %s", ev.DeviceID)
		case player.EventNotReady:
			c.persistDevice("")
			c.setState(StateNotReady, "")
			zlog.Warn().Msgf("playback: device %s went offline", ev.DeviceID)
		case player.EventStateChanged:
			c.mu.Lock()
			c.last = ev.State
			state := c.state
			c.mu.Unlock()
			c.events.Broadcast(Event{
				Type:     EventPlayerStateChanged,
				State:    state,
				DeviceID: ev.DeviceID,
				Player:   ev.State,
			})
		}
	}
}

func (c *Controller) persistDevice(deviceID string) {
	ctx, cancel := context.WithTimeout(c.ctx, 5*time.Second)
	defer cancel()
	if err := c.creds.SetDeviceID(ctx, deviceID); err != nil {
		zlog.Warn().Err(err).Msg("playback: failed to persist device id")
	}
}

func (c *Controller) setState(s ConnectionState, deviceID string) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()

	if prev != s {
		zlog.Debug().Msgf("playback: connection %s -> %s", prev, s)
	}
	c.events.Broadcast(Event{Type: EventConnectionChanged, State: s, DeviceID: deviceID})
}

// State returns the connection state.
func (c *Controller) State() ConnectionState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// DeviceID returns the recorded device id, or "".
func (c *Controller) DeviceID() string {
	return c.creds.DeviceID()
}

// Disconnect tears down the player. It is idempotent.
func (c *Controller) Disconnect() {
	c.mu.Lock()
	p, done := c.player, c.pumpDone
	c.player = nil
	c.pumpDone = nil
	c.last = nil
	c.mu.Unlock()

	if p == nil {
		return
	}
	p.Disconnect()
	<-done
	c.setState(StateDisconnected, "")
	zlog.Info().Msg("playback: player disconnected")
}

// Close disconnects the player and ends every subscription.
func (c *Controller) Close() {
	c.Disconnect()
	c.cancel()
	c.events.Close()
}

// Subscribe returns a channel of playback events.
func (c *Controller) Subscribe(buffer int) (string, <-chan notification.Notification[Event]) {
	return c.events.SubscribeChan(buffer)
}

// Unsubscribe removes a subscription created by Subscribe.
func (c *Controller) Unsubscribe(id string) {
	c.events.Unsubscribe(id)
}

func (c *Controller) readyPlayer() (player.Player, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.player == nil || c.state != StateReady {
		return nil, ErrPlayerNotInitialized
	}
	return c.player, nil
}

// Pause pauses playback on the device.
func (c *Controller) Pause(ctx context.Context) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	return p.Pause(ctx)
}

// Resume resumes playback on the device.
func (c *Controller) Resume(ctx context.Context) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	return p.Resume(ctx)
}

// Seek moves playback to positionMs.
func (c *Controller) Seek(ctx context.Context, positionMs int64) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	if positionMs < 0 {
		positionMs = 0
	}
	return p.Seek(ctx, time.Duration(positionMs)*time.Millisecond)
}

// SetVolume sets the volume in percent, clamped to 0..100.
func (c *Controller) SetVolume(ctx context.Context, percent int) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	percent = max(0, min(100, percent))
	return p.SetVolume(ctx, float64(percent)/100)
}

// Previous skips to the previous track.
func (c *Controller) Previous(ctx context.Context) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	return p.PreviousTrack(ctx)
}

// Next skips to the next track.
func (c *Controller) Next(ctx context.Context) error {
	p, err := c.readyPlayer()
	if err != nil {
		return err
	}
	return p.NextTrack(ctx)
}

// PlayTrack plays exactly uri on the recorded device. It fails with
// ErrNoActiveDevice before any network activity when no device is recorded.
func (c *Controller) PlayTrack(ctx context.Context, uri string) error {
	deviceID := c.creds.DeviceID()
	if deviceID == "" {
		return ErrNoActiveDevice
	}
	if _, err := c.auth.EnsureValid(ctx); err != nil {
		return err
	}
	if err := c.remote.Play(ctx, deviceID, uri); err != nil {
		return err
	}
	zlog.Info().Msgf("playback: playing %s on %s", uri, deviceID)
	return nil
}

// GetRecommendations returns tracks matching mood.
func (c *Controller) GetRecommendations(ctx context.Context, mood string) ([]track.Track, error) {
	profile := Profile(mood)
	tracks, err := c.remote.Recommendations(ctx, profile.Genres, profile.Valence, profile.Energy, MinPopularity, RecommendationLimit)
	if err != nil {
		return nil, err
	}

	name := NormalizeMood(mood)
	for i := range tracks {
		tracks[i].Mood = name
	}
	zlog.Debug().Msgf("playback: %d recommendations for mood %q", len(tracks), name)
	return tracks, nil
}

// PlaybackState returns what the account is playing, or nil when nothing is.
func (c *Controller) PlaybackState(ctx context.Context) (*player.Playback, error) {
	return c.remote.CurrentlyPlaying(ctx)
}

// PlayerState returns the device's playback state, or nil when no player is loaded.
func (c *Controller) PlayerState(ctx context.Context) (*player.State, error) {
	c.mu.RLock()
	p := c.player
	c.mu.RUnlock()

	if p == nil {
		return nil, nil
	}
	return p.CurrentState(ctx)
}

// LastPlayerState returns the last state reported by the device, or nil.
func (c *Controller) LastPlayerState() *player.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}
