// Package credstore owns the OAuth credential record and its persistence.
package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/feeltune/internal/domain/credential"
	"github.com/osa030/feeltune/internal/infra/store"
)

// Storage keys.
const (
	CredentialsKey = "spotify_credentials"
	HandshakeKey   = "code_verifier"
)

var (
	ErrNoHandshake  = errors.New("no pending authorization handshake")
	ErrInvalidToken = errors.New("access token and expiry must both be set")
)

// record is the persisted layout. ExpiresAt is unix milliseconds.
type record struct {
	AccessToken  string `json:"accessToken,omitempty" mapstructure:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty" mapstructure:"refreshToken"`
	ExpiresAt    int64  `json:"expiresAt,omitempty" mapstructure:"expiresAt"`
	DeviceID     string `json:"deviceId,omitempty" mapstructure:"deviceId"`
}

// Handshake is the transient PKCE state of one authorization attempt.
type Handshake struct {
	Verifier  string    `json:"verifier"`
	State     string    `json:"state"`
	CreatedAt time.Time `json:"createdAt"`
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source used for validity checks.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store owns the Credential. Every mutation is persisted.
type Store struct {
	mu   sync.RWMutex
	kv   store.Store
	cred credential.Credential
	now  func() time.Time
}

// New creates a store with an empty credential for clientID.
func New(clientID string, kv store.Store, opts ...Option) *Store {
	s := &Store{
		kv:   kv,
		cred: credential.Credential{ClientID: clientID},
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load merges the persisted record, if any, over the in-memory credential.
// Read and parse errors are logged and treated as "no stored credential".
func (s *Store) Load(ctx context.Context) {
	data, err := s.kv.Get(ctx, CredentialsKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zlog.Debug().Err(err).Msg("credstore: ignoring unreadable credential record")
		}
		return
	}

	var fields map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		zlog.Debug().Err(err).Msg("credstore: ignoring malformed credential record")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec := toRecord(s.cred)
	if err := mapstructure.Decode(fields, &rec); err != nil {
		zlog.Debug().Err(err).Msg("credstore: ignoring credential record with unexpected fields")
		return
	}

	cred := fromRecord(s.cred.ClientID, rec)
	if !cred.Consistent() {
		zlog.Warn().Msg("credstore: stored access token without expiry (or vice versa), discarding token")
		cred.AccessToken = ""
		cred.ExpiresAt = time.Time{}
	}
	s.cred = cred

	zlog.Debug().Msgf("credstore: credential loaded: has_token=%v has_refresh=%v device=%q",
		cred.HasToken(), cred.RefreshToken != "", cred.DeviceID)
}

// Save persists the current credential.
func (s *Store) Save(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.saveLocked(ctx)
}

// saveLocked writes the record. Must be called with s.mu held.
func (s *Store) saveLocked(ctx context.Context) error {
	data, err := json.Marshal(toRecord(s.cred))
	if err != nil {
		return errors.Wrap(err, "failed to encode credential")
	}
	if err := s.kv.Put(ctx, CredentialsKey, data); err != nil {
		return errors.Wrap(err, "failed to persist credential")
	}
	return nil
}

// Snapshot returns a copy of the credential.
func (s *Store) Snapshot() credential.Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred
}

// IsValid reports whether an access token is set and has not expired.
func (s *Store) IsValid() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.ValidAt(s.now())
}

// HasToken reports whether an access token is recorded, expired or not.
func (s *Store) HasToken() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.HasToken()
}

// DeviceID returns the recorded playback device, or "".
func (s *Store) DeviceID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cred.DeviceID
}

// SetToken records a new access token and expiry. An empty refreshToken keeps the prior one.
// The in-memory credential is updated even when persisting fails.
func (s *Store) SetToken(ctx context.Context, accessToken string, expiresAt time.Time, refreshToken string) error {
	if accessToken == "" || expiresAt.IsZero() {
		return ErrInvalidToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred.AccessToken = accessToken
	s.cred.ExpiresAt = expiresAt
	if refreshToken != "" {
		s.cred.RefreshToken = refreshToken
	}
	return s.saveLocked(ctx)
}

// SetDeviceID records (or clears, with "") the active playback device.
func (s *Store) SetDeviceID(ctx context.Context, deviceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cred.DeviceID == deviceID {
		return nil
	}
	s.cred.DeviceID = deviceID
	return s.saveLocked(ctx)
}

// Clear drops every field except the client ID.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cred = credential.Credential{ClientID: s.cred.ClientID}
	return s.saveLocked(ctx)
}

// PutHandshake stores the transient PKCE record, replacing any previous one.
func (s *Store) PutHandshake(ctx context.Context, h Handshake) error {
	data, err := json.Marshal(h)
	if err != nil {
		return errors.Wrap(err, "failed to encode handshake")
	}
	if err := s.kv.Put(ctx, HandshakeKey, data); err != nil {
		return errors.Wrap(err, "failed to persist handshake")
	}
	return nil
}

// Handshake returns the transient PKCE record.
// A missing or unreadable record yields ErrNoHandshake.
func (s *Store) Handshake(ctx context.Context) (*Handshake, error) {
	data, err := s.kv.Get(ctx, HandshakeKey)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			zlog.Debug().Err(err).Msg("credstore: ignoring unreadable handshake record")
		}
		return nil, ErrNoHandshake
	}

	var h Handshake
	if err := json.Unmarshal(data, &h); err != nil || h.Verifier == "" {
		return nil, ErrNoHandshake
	}
	return &h, nil
}

// DeleteHandshake removes the transient PKCE record.
func (s *Store) DeleteHandshake(ctx context.Context) error {
	if err := s.kv.Delete(ctx, HandshakeKey); err != nil {
		return errors.Wrap(err, "failed to delete handshake")
	}
	return nil
}

func toRecord(c credential.Credential) record {
	rec := record{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
		DeviceID:     c.DeviceID,
	}
	if !c.ExpiresAt.IsZero() {
		rec.ExpiresAt = c.ExpiresAt.UnixMilli()
	}
	return rec
}

func fromRecord(clientID string, rec record) credential.Credential {
	c := credential.Credential{
		ClientID:     clientID,
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		DeviceID:     rec.DeviceID,
	}
	if rec.ExpiresAt > 0 {
		c.ExpiresAt = time.UnixMilli(rec.ExpiresAt)
	}
	return c
}
