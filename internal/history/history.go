package history

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gauthierbraillon/watchlog/internal/auth"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

// ErrMalformedPayload means the response is not even the expected top-level
// array or object. Bad individual items are dropped instead.
var ErrMalformedPayload = errors.New("malformed history payload")

// UpstreamError is a non-200 answer from a history endpoint.
type UpstreamError struct {
	Status int
	Body   string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("history request failed: status %d: %s", e.Status, e.Body)
}

// Provider is everything that differs between services.
type Provider interface {
	Name() Service
	ExchangeCode(ctx context.Context, code string) (*oauth.Token, error)
	RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.Token, error)
	// FetchHistory performs the authenticated request. It does not check
	// token validity.
	FetchHistory(ctx context.Context, accessToken string, r DateRange) (RawPayload, error)
	// Normalize is pure: no I/O, upstream order preserved.
	Normalize(raw RawPayload) ([]Item, error)
}

// Session pairs a provider with the manager that owns its credentials.
type Session struct {
	provider Provider
	manager  *auth.Manager
	logger   *slog.Logger
}

type SessionOption func(*Session)

func WithLogger(logger *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = logger }
}

func NewSession(provider Provider, manager *auth.Manager, opts ...SessionOption) *Session {
	s := &Session{
		provider: provider,
		manager:  manager,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) Service() Service {
	return s.provider.Name()
}

func (s *Session) Manager() *auth.Manager {
	return s.manager
}

// Fetch ensures a usable token, then requests the range.
func (s *Session) Fetch(ctx context.Context, r DateRange) (RawPayload, error) {
	if err := r.Validate(); err != nil {
		return RawPayload{}, err
	}
	if err := s.manager.EnsureValid(ctx); err != nil {
		return RawPayload{}, err
	}
	return s.provider.FetchHistory(ctx, s.manager.Credentials().AccessToken, r)
}

// History fetches and normalizes one range.
func (s *Session) History(ctx context.Context, r DateRange) ([]Item, error) {
	raw, err := s.Fetch(ctx, r)
	if err != nil {
		return nil, err
	}

	items, err := s.provider.Normalize(raw)
	if err != nil {
		return nil, err
	}

	s.logger.Info("history fetched",
		"service", s.provider.Name(),
		"start", r.Start,
		"end", r.End,
		"items", len(items))
	return items, nil
}
