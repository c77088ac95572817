// Package auth keeps one service's OAuth credentials valid.
//
// A Store holds the credentials as immutable snapshots; a Manager decides
// when they must be refreshed and drives the exchange.
package auth

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

var (
	ErrInvalidCredentials    = errors.New("invalid credentials: access token is empty")
	ErrNotAuthenticated      = errors.New("not authenticated")
	ErrAuthenticationExpired = errors.New("authentication expired")
	ErrNoRefreshToken        = errors.New("no refresh token stored")
)

// Credentials is a point-in-time snapshot. Empty strings and the zero
// time stand for absent values.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

func (c Credentials) Authenticated() bool {
	return c.AccessToken != ""
}

// HasExpiry reports whether an expiry is recorded. Credentials without one
// are never refreshed proactively.
func (c Credentials) HasExpiry() bool {
	return !c.ExpiresAt.IsZero()
}

type Store struct {
	mu    sync.Mutex
	snap  atomic.Pointer[Credentials]
	clock func() time.Time
}

type StoreOption func(*Store)

// WithStoreClock replaces time.Now as the basis for relative expiries set
// through Set. A Manager always passes its own clock's time instead.
func WithStoreClock(clock func() time.Time) StoreOption {
	return func(s *Store) { s.clock = clock }
}

func NewStore(opts ...StoreOption) *Store {
	s := &Store{clock: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	s.snap.Store(&Credentials{})
	return s
}

// Read returns the current snapshot.
func (s *Store) Read() Credentials {
	return *s.snap.Load()
}

// Set records a new access token. An empty refresh keeps the stored one
// and expiresIn <= 0 records no expiry.
func (s *Store) Set(access, refresh string, expiresIn int64) error {
	return s.SetIssued(access, refresh, expiresIn, time.Time{})
}

// SetIssued is Set with the expiry computed from issuedAt instead of now.
// A zero issuedAt falls back to now.
func (s *Store) SetIssued(access, refresh string, expiresIn int64, issuedAt time.Time) error {
	if access == "" {
		return ErrInvalidCredentials
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := Credentials{
		AccessToken:  access,
		RefreshToken: s.snap.Load().RefreshToken,
	}
	if refresh != "" {
		next.RefreshToken = refresh
	}
	if expiresIn > 0 {
		base := issuedAt
		if base.IsZero() {
			base = s.clock()
		}
		next.ExpiresAt = base.Add(time.Duration(expiresIn) * time.Second)
	}

	s.snap.Store(&next)
	return nil
}

// Restore replaces the snapshot wholesale, e.g. from persisted settings.
func (s *Store) Restore(c Credentials) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.Store(&c)
}

func (s *Store) Clear() {
	s.Restore(Credentials{})
}
