package auth

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

// RefreshSkew is how close to expiry a token may get before EnsureValid
// refreshes it.
const RefreshSkew = 5 * time.Minute

// Exchanger performs the two OAuth grants against one service.
type Exchanger interface {
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.Token, error)
}

// Persister saves credentials after every change.
type Persister interface {
	PersistCredentials(Credentials) error
}

// Manager owns one service's Store.
type Manager struct {
	store     *Store
	exchanger Exchanger
	persister Persister
	logger    *slog.Logger
	clock     func() time.Time

	refreshMu sync.Mutex
}

type ManagerOption func(*Manager)

func WithClock(clock func() time.Time) ManagerOption {
	return func(m *Manager) { m.clock = clock }
}

func WithPersister(p Persister) ManagerOption {
	return func(m *Manager) { m.persister = p }
}

func WithLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) { m.logger = logger }
}

func NewManager(store *Store, exchanger Exchanger, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:     store,
		exchanger: exchanger,
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Manager) Credentials() Credentials {
	return m.store.Read()
}

// EnsureValid must be called before every authenticated request.
//
// A token with no recorded expiry, or more than RefreshSkew left, is used
// as is. Otherwise one refresh is attempted; if it fails the token is still
// used unless it has actually expired.
func (m *Manager) EnsureValid(ctx context.Context) error {
	creds := m.store.Read()
	if !creds.Authenticated() {
		return ErrNotAuthenticated
	}
	if !creds.HasExpiry() {
		return nil
	}
	if creds.ExpiresAt.Sub(m.clock()) >= RefreshSkew {
		return nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another caller may have refreshed while we waited for the lock.
	creds = m.store.Read()
	if !creds.Authenticated() {
		return ErrNotAuthenticated
	}
	if !creds.HasExpiry() || creds.ExpiresAt.Sub(m.clock()) >= RefreshSkew {
		return nil
	}

	err := m.refresh(ctx, creds)
	if err == nil {
		return nil
	}
	if m.clock().After(creds.ExpiresAt) {
		return fmt.Errorf("%w: %w", ErrAuthenticationExpired, err)
	}

	m.logger.Warn("token refresh failed, using current token until it expires",
		"expires_at", creds.ExpiresAt,
		"error", err)
	return nil
}

// ExchangeCode trades an authorization code and stores the result.
func (m *Manager) ExchangeCode(ctx context.Context, code string) error {
	token, err := m.exchanger.ExchangeCode(ctx, code)
	if err != nil {
		return err
	}
	return m.apply(token)
}

// Refresh forces a refresh grant with the stored refresh token.
func (m *Manager) Refresh(ctx context.Context) error {
	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()
	return m.refresh(ctx, m.store.Read())
}

// Clear forgets all credentials; the user must authenticate again.
func (m *Manager) Clear() error {
	m.store.Clear()
	return m.persist()
}

func (m *Manager) refresh(ctx context.Context, creds Credentials) error {
	if creds.RefreshToken == "" {
		return ErrNoRefreshToken
	}
	token, err := m.exchanger.RefreshAccessToken(ctx, creds.RefreshToken)
	if err != nil {
		return err
	}
	return m.apply(token)
}

// apply stores token. Expiry counts from created_at when the service
// sends it, otherwise from the manager's clock.
func (m *Manager) apply(token *oauth.Token) error {
	issuedAt := token.IssuedAt()
	if issuedAt.IsZero() {
		issuedAt = m.clock()
	}
	if err := m.store.SetIssued(token.AccessToken, token.RefreshToken, token.ExpiresIn, issuedAt); err != nil {
		return err
	}
	m.logger.Debug("credentials updated", "expires_at", m.store.Read().ExpiresAt)
	if err := m.persist(); err != nil {
		m.logger.Error("failed to persist credentials", "error", err)
	}
	return nil
}

func (m *Manager) persist() error {
	if m.persister == nil {
		return nil
	}
	return m.persister.PersistCredentials(m.store.Read())
}
