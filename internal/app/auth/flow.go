package auth

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	zlog "github.com/rs/zerolog/log"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/osa030/feeltune/internal/app/credstore"
	"github.com/osa030/feeltune/internal/domain/failure"
)

// DefaultRefreshMargin is how long before expiry a token is refreshed.
const DefaultRefreshMargin = 60 * time.Second

// RefreshTimeout bounds a single token refresh.
const RefreshTimeout = 30 * time.Second

// DefaultScopes are the scopes needed to drive playback on a device.
var DefaultScopes = []string{
	spotifyauth.ScopeStreaming,
	spotifyauth.ScopeUserReadPlaybackState,
	spotifyauth.ScopeUserModifyPlaybackState,
	spotifyauth.ScopeUserReadCurrentlyPlaying,
	"app-remote-control",
}

// Config holds flow configuration.
type Config struct {
	ClientID      string
	RedirectURL   string
	Scopes        []string      // DefaultScopes when empty
	AuthURL       string        // spotifyauth.AuthURL when empty
	TokenURL      string        // spotifyauth.TokenURL when empty
	RefreshMargin time.Duration // DefaultRefreshMargin when zero
	HTTPClient    *http.Client  // Used for token endpoint calls when set
}

// Option configures a Flow.
type Option func(*Flow)

// WithNavigator sets where Begin sends the authorization URL.
func WithNavigator(nav Navigator) Option {
	return func(f *Flow) {
		f.nav = nav
	}
}

// WithClock overrides the time source used for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(f *Flow) {
		f.now = now
	}
}

// Flow drives the PKCE authorization code flow and keeps the access token fresh.
type Flow struct {
	mu    sync.RWMutex
	state State

	oauth      *oauth2.Config
	httpClient *http.Client
	margin     time.Duration
	creds      *credstore.Store
	nav        Navigator
	now        func() time.Time

	refreshes singleflight.Group
}

// New creates a flow bound to creds. The initial state is StateAuthenticated
// when creds already holds a token.
func New(cfg Config, creds *credstore.Store, opts ...Option) *Flow {
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = DefaultScopes
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = spotifyauth.AuthURL
	}
	if cfg.TokenURL == "" {
		cfg.TokenURL = spotifyauth.TokenURL
	}
	if cfg.RefreshMargin <= 0 {
		cfg.RefreshMargin = DefaultRefreshMargin
	}

	f := &Flow{
		state: StateUnauthenticated,
		oauth: &oauth2.Config{
			ClientID:    cfg.ClientID,
			RedirectURL: cfg.RedirectURL,
			Scopes:      cfg.Scopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:   cfg.AuthURL,
				TokenURL:  cfg.TokenURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: cfg.HTTPClient,
		margin:     cfg.RefreshMargin,
		creds:      creds,
		nav:        LogNavigator,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	if creds.HasToken() {
		f.state = StateAuthenticated
	}
	return f
}

// State returns the current lifecycle state.
func (f *Flow) State() State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.state
}

func (f *Flow) setState(s State) {
	f.mu.Lock()
	prev := f.state
	f.state = s
	f.mu.Unlock()

	if prev != s {
		zlog.Debug().Msgf("auth: state %s -> %s", prev, s)
	}
}

// IsAuthenticated reports whether a non-expired access token is recorded.
func (f *Flow) IsAuthenticated() bool {
	return f.creds.IsValid()
}

// Begin starts an authorization attempt: it records a fresh verifier and state,
// then hands the authorization URL to the navigator. The URL is also returned.
func (f *Flow) Begin(ctx context.Context) (string, error) {
	verifier := oauth2.GenerateVerifier()
	state := uuid.NewString()

	err := f.creds.PutHandshake(ctx, credstore.Handshake{
		Verifier:  verifier,
		State:     state,
		CreatedAt: f.now(),
	})
	if err != nil {
		return "", errors.Wrap(err, "failed to record authorization handshake")
	}

	authURL := f.oauth.AuthCodeURL(state, oauth2.S256ChallengeOption(verifier))
	f.setState(StateAuthorizationRequested)
	zlog.Info().Msg("auth: authorization requested")

	if f.nav != nil {
		if err := f.nav.Navigate(ctx, authURL); err != nil {
			return authURL, errors.Wrap(err, "failed to open authorization page")
		}
	}
	return authURL, nil
}

// HandleCallback interprets the query of the authorization redirect and,
// when it carries a code for the pending attempt, completes the exchange.
func (f *Flow) HandleCallback(ctx context.Context, query url.Values) error {
	if reason := query.Get("error"); reason != "" {
		f.abandon(ctx)
		return errors.Wrapf(ErrAuthorizationDenied, "authorization server returned %q", reason)
	}

	code, state := query.Get("code"), query.Get("state")
	if code == "" || state == "" {
		f.abandon(ctx)
		return ErrMissingParameters
	}

	h, err := f.creds.Handshake(ctx)
	if err != nil {
		f.setState(StateFailed)
		return ErrMissingVerifier
	}
	if h.State != state {
		f.abandon(ctx)
		return ErrStateMismatch
	}

	f.setState(StateCodeReceived)
	return f.Complete(ctx, code)
}

// Complete exchanges code and the recorded verifier for a token.
// The verifier is erased whether or not the exchange succeeds.
func (f *Flow) Complete(ctx context.Context, code string) error {
	defer f.eraseHandshake(ctx)

	h, err := f.creds.Handshake(ctx)
	if err != nil {
		f.setState(StateFailed)
		return ErrMissingVerifier
	}

	tok, err := f.oauth.Exchange(f.clientContext(ctx), code, oauth2.VerifierOption(h.Verifier))
	if err != nil {
		f.setState(StateFailed)
		return errors.Mark(tokenEndpointError(err, "code exchange"), ErrExchangeFailed)
	}
	if tok.Expiry.IsZero() {
		f.setState(StateFailed)
		return errors.Wrap(ErrExchangeFailed, "token response has no expiry")
	}

	err = f.creds.SetToken(ctx, tok.AccessToken, tok.Expiry, tok.RefreshToken)
	f.setState(StateAuthenticated)
	if err != nil {
		return errors.Wrap(err, "token obtained but could not be persisted")
	}
	zlog.Info().Msgf("auth: authorization complete, token expires at %s", tok.Expiry.Format(time.RFC3339))
	return nil
}

// EnsureValid returns an access token, refreshing it first when it expires
// within the refresh margin. Concurrent callers share a single refresh.
func (f *Flow) EnsureValid(ctx context.Context) (string, error) {
	cred := f.creds.Snapshot()
	if !cred.HasToken() {
		return "", ErrNotAuthenticated
	}
	if !cred.ExpiresWithin(f.now(), f.margin) {
		return cred.AccessToken, nil
	}

	f.setState(StateExpiring)
	return f.shared(ctx, func(refreshCtx context.Context) (string, error) {
		// A refresh that finished while this caller was queued already did the work.
		cur := f.creds.Snapshot()
		if cur.HasToken() && !cur.ExpiresWithin(f.now(), f.margin) {
			f.setState(StateAuthenticated)
			return cur.AccessToken, nil
		}
		return f.refresh(refreshCtx)
	})
}

// Refresh obtains a new access token with the recorded refresh token.
// On failure the recorded credential is left untouched.
func (f *Flow) Refresh(ctx context.Context) (string, error) {
	return f.shared(ctx, f.refresh)
}

// shared runs fn as the single in-flight refresh. The refresh is detached from
// the caller that started it and bounded by RefreshTimeout; each caller stops
// waiting when its own ctx ends.
func (f *Flow) shared(ctx context.Context, fn func(context.Context) (string, error)) (string, error) {
	ch := f.refreshes.DoChan("refresh", func() (any, error) {
		refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), RefreshTimeout)
		defer cancel()
		return fn(refreshCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", errors.Wrap(ctx.Err(), "gave up waiting for token refresh")
	}
}

func (f *Flow) refresh(ctx context.Context) (string, error) {
	cred := f.creds.Snapshot()
	if cred.RefreshToken == "" {
		f.setState(StateFailed)
		return "", ErrMissingRefreshToken
	}

	f.setState(StateRefreshing)
	tok, err := f.oauth.TokenSource(f.clientContext(ctx), &oauth2.Token{RefreshToken: cred.RefreshToken}).Token()
	if err != nil {
		f.setState(StateFailed)
		zlog.Warn().Err(err).Msg("auth: token refresh failed")
		return "", errors.Mark(tokenEndpointError(err, "token refresh"), ErrRefreshFailed)
	}
	if tok.Expiry.IsZero() {
		f.setState(StateFailed)
		return "", errors.Wrap(ErrRefreshFailed, "token response has no expiry")
	}

	if err := f.creds.SetToken(ctx, tok.AccessToken, tok.Expiry, tok.RefreshToken); err != nil {
		zlog.Warn().Err(err).Msg("auth: refreshed token could not be persisted")
	}
	f.setState(StateAuthenticated)
	zlog.Debug().Msgf("auth: token refreshed, expires at %s, rotated=%v",
		tok.Expiry.Format(time.RFC3339), tok.RefreshToken != cred.RefreshToken)
	return tok.AccessToken, nil
}

// Logout forgets the credential and any pending handshake.
func (f *Flow) Logout(ctx context.Context) error {
	f.eraseHandshake(ctx)
	if err := f.creds.Clear(ctx); err != nil {
		return errors.Wrap(err, "failed to clear credential")
	}
	f.setState(StateUnauthenticated)
	zlog.Info().Msg("auth: logged out")
	return nil
}

// TokenSource returns a token source whose every Token call goes through EnsureValid.
func (f *Flow) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, flow: f}
}

type tokenSource struct {
	ctx  context.Context
	flow *Flow
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	access, err := ts.flow.EnsureValid(ts.ctx)
	if err != nil {
		return nil, err
	}
	return &oauth2.Token{
		AccessToken: access,
		TokenType:   "Bearer",
		Expiry:      ts.flow.creds.Snapshot().ExpiresAt,
	}, nil
}

// abandon ends the pending attempt.
func (f *Flow) abandon(ctx context.Context) {
	f.eraseHandshake(ctx)
	f.setState(StateFailed)
}

func (f *Flow) eraseHandshake(ctx context.Context) {
	if err := f.creds.DeleteHandshake(ctx); err != nil {
		zlog.Warn().Err(err).Msg("auth: failed to erase authorization handshake")
	}
}

func (f *Flow) clientContext(ctx context.Context) context.Context {
	if f.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// tokenEndpointError wraps err. Errors that never reached a token response are
// marked as network failures.
func tokenEndpointError(err error, op string) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) {
		return errors.Wrapf(err, "%s rejected with status %d", op, re.Response.StatusCode)
	}
	return failure.Network(err, op+" failed")
}
