// Package session owns the client's durable session record.
//
// State is the single writer for the token, its advisory expiry, the cached identity and
// the device identifier. The HTTP client only reaches the token through ReplaceToken and
// ExpireToken; every other mutation belongs to the auth service.
package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	domainauth "github.com/iamdevroyal/blocpoint-client/internal/domain/auth"
	apperrors "github.com/iamdevroyal/blocpoint-client/internal/errors"
	"github.com/iamdevroyal/blocpoint-client/internal/ports"
)

// Durable state keys.
const (
	KeyToken          = "token"
	KeyTokenExpiresAt = "token_expires_at"
	KeyIdentity       = "bp_user"
	KeyDeviceID       = "bp_device_id"
)

// State is the owned session context shared by the HTTP client and the auth service.
type State struct {
	store ports.StateStore

	// mu serialises writers; reads go straight to the store.
	mu sync.Mutex
}

// NewState wraps a durable store.
func NewState(store ports.StateStore) *State {
	return &State{store: store}
}

// Token returns the stored bearer token, or "" when none is stored.
func (s *State) Token(ctx context.Context) (string, error) {
	return s.get(ctx, KeyToken)
}

// Session loads the full durable session. A missing token yields an unauthenticated
// session that may still carry a cached identity and device id.
func (s *State) Session(ctx context.Context) (domainauth.Session, error) {
	var sess domainauth.Session
	var err error

	if sess.Token, err = s.get(ctx, KeyToken); err != nil {
		return domainauth.Session{}, err
	}
	rawExpiry, err := s.get(ctx, KeyTokenExpiresAt)
	if err != nil {
		return domainauth.Session{}, err
	}
	sess.ExpiresAt = ParseExpiry(rawExpiry)
	if sess.Identity, err = s.Identity(ctx); err != nil {
		return domainauth.Session{}, err
	}
	if sess.DeviceID, err = s.get(ctx, KeyDeviceID); err != nil {
		return domainauth.Session{}, err
	}
	return sess, nil
}

// Identity returns the cached identity record, or nil when none is cached.
func (s *State) Identity(ctx context.Context) (domainauth.Identity, error) {
	raw, err := s.get(ctx, KeyIdentity)
	if err != nil || raw == "" {
		return nil, err
	}
	var identity domainauth.Identity
	if err := json.Unmarshal([]byte(raw), &identity); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrCodeInternal, "decode cached identity")
	}
	return identity, nil
}

// Establish persists a freshly issued session (token, expiry, identity) in one write.
func (s *State) Establish(ctx context.Context, token string, expiresAt string, identity domainauth.Identity) error {
	if token == "" {
		return apperrors.Internal("establish session: token is empty")
	}
	encoded, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(ctx, map[string]string{
		KeyToken:          token,
		KeyTokenExpiresAt: expiresAt,
		KeyIdentity:       string(encoded),
	})
}

// SetIdentity overwrites the cached identity only.
func (s *State) SetIdentity(ctx context.Context, identity domainauth.Identity) error {
	encoded, err := json.Marshal(identity)
	if err != nil {
		return fmt.Errorf("encode identity: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(ctx, map[string]string{KeyIdentity: string(encoded)})
}

// ReplaceToken swaps the bearer token in place after a refresh. Identity and expiry are kept.
func (s *State) ReplaceToken(ctx context.Context, token string) error {
	if token == "" {
		return apperrors.Internal("replace token: token is empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Set(ctx, map[string]string{KeyToken: token})
}

// ExpireToken removes the token and its expiry, keeping the identity and device id so a
// returning device can use quick login.
func (s *State) ExpireToken(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, KeyToken, KeyTokenExpiresAt)
}

// Clear removes token, expiry and identity. The device id is left untouched.
func (s *State) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, KeyToken, KeyTokenExpiresAt, KeyIdentity)
}

// DeviceID returns the persisted device id, generating and storing one on first use.
func (s *State) DeviceID(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.get(ctx, KeyDeviceID)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	id = uuid.NewString()
	if err := s.store.Set(ctx, map[string]string{KeyDeviceID: id}); err != nil {
		return "", fmt.Errorf("persist device id: %w", err)
	}
	return id, nil
}

// HasDeviceID reports whether a device id is already bound, without creating one.
func (s *State) HasDeviceID(ctx context.Context) (bool, error) {
	id, err := s.get(ctx, KeyDeviceID)
	return id != "", err
}

// ForgetDevice removes the device id, e.g. after the backend stops recognising it.
func (s *State) ForgetDevice(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Delete(ctx, KeyDeviceID)
}

// get returns "" for missing keys.
func (s *State) get(ctx context.Context, key string) (string, error) {
	v, err := s.store.Get(ctx, key)
	if err != nil {
		if apperrors.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", key, err)
	}
	return v, nil
}

// ParseExpiry parses a server-issued ISO-8601 timestamp; unparseable values yield the zero time.
func ParseExpiry(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}
