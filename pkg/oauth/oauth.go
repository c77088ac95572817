// Package oauth provides the OAuth 2.0 authorization-code and refresh
// exchanges used by watchlog, in the dialects spoken by Trakt and SIMKL.
package oauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

var (
	// ErrMalformedResponse is returned when the token endpoint answers 200
	// with a body that is not a token (undecodable or without access_token).
	ErrMalformedResponse = errors.New("malformed token response")
	ErrInvalidConfig     = errors.New("invalid oauth config")
)

// ExchangeFailedError is returned when the token endpoint answers with a
// non-200 status.
type ExchangeFailedError struct {
	Status int
	Body   string
}

func (e *ExchangeFailedError) Error() string {
	return fmt.Sprintf("token exchange failed: status %d: %s", e.Status, e.Body)
}

// BodyStyle selects how the token request payload is encoded.
type BodyStyle int

const (
	BodyJSON BodyStyle = iota
	BodyForm
)

type Config struct {
	ClientID     string
	ClientSecret string // #nosec G117 - OAuth client config, not an exposed secret
	AuthURL      string
	TokenURL     string
	RedirectURL  string
	BodyStyle    BodyStyle
	// Headers are added to every token request.
	Headers map[string]string
}

func (c Config) Validate() error {
	switch {
	case c.ClientID == "":
		return fmt.Errorf("%w: client ID is required", ErrInvalidConfig)
	case c.ClientSecret == "":
		return fmt.Errorf("%w: client secret is required", ErrInvalidConfig)
	case c.TokenURL == "":
		return fmt.Errorf("%w: token URL is required", ErrInvalidConfig)
	case c.RedirectURL == "":
		return fmt.Errorf("%w: redirect URL is required", ErrInvalidConfig)
	}
	return nil
}

// TraktOAuthConfig returns the Trakt dialect: JSON body, API version headers.
func TraktOAuthConfig(clientID, clientSecret, redirectURL string) Config {
	return Config{ // #nosec G101 -- OAuth URLs are public API endpoints, not hardcoded credentials
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://trakt.tv/oauth/authorize",
		TokenURL:     "https://api.trakt.tv/oauth/token",
		RedirectURL:  redirectURL,
		BodyStyle:    BodyJSON,
		Headers: map[string]string{
			"trakt-api-version": "2",
			"trakt-api-key":     clientID,
		},
	}
}

// SimklOAuthConfig returns the SIMKL dialect: form-encoded body.
func SimklOAuthConfig(clientID, clientSecret, redirectURL string) Config {
	return Config{ // #nosec G101 -- OAuth URLs are public API endpoints, not hardcoded credentials
		ClientID:     clientID,
		ClientSecret: clientSecret,
		AuthURL:      "https://simkl.com/oauth/authorize",
		TokenURL:     "https://api.simkl.com/oauth/token",
		RedirectURL:  redirectURL,
		BodyStyle:    BodyForm,
		Headers: map[string]string{
			"simkl-api-key": clientID,
		},
	}
}

type Token struct {
	AccessToken  string `json:"access_token"`  // #nosec G117 - JSON field for OAuth token, not an exposed secret
	RefreshToken string `json:"refresh_token"` // #nosec G117 - JSON field for OAuth token, not an exposed secret
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	// CreatedAt is the unix time the token was issued, when the service reports it.
	CreatedAt int64 `json:"created_at,omitempty"`
}

// IssuedAt returns the issue time reported by the service, or the zero
// time when the response carried no created_at.
func (t *Token) IssuedAt() time.Time {
	if t.CreatedAt <= 0 {
		return time.Time{}
	}
	return time.Unix(t.CreatedAt, 0)
}

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type Flow struct {
	config     Config
	httpClient HTTPClient
}

type FlowOption func(*Flow)

func WithHTTPClient(client HTTPClient) FlowOption {
	return func(f *Flow) { f.httpClient = client }
}

func NewFlow(config Config, opts ...FlowOption) *Flow {
	f := &Flow{config: config, httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func (f *Flow) Config() Config {
	return f.config
}

// AuthURL returns the URL the user must visit to grant access.
func (f *Flow) AuthURL(state string) string {
	cfg := oauth2.Config{
		ClientID:     f.config.ClientID,
		ClientSecret: f.config.ClientSecret,
		RedirectURL:  f.config.RedirectURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  f.config.AuthURL,
			TokenURL: f.config.TokenURL,
		},
	}
	return cfg.AuthCodeURL(state)
}

// ExchangeCode trades an authorization code for a token.
func (f *Flow) ExchangeCode(ctx context.Context, code string) (*Token, error) {
	return f.exchange(ctx, map[string]string{
		"code":       code,
		"grant_type": "authorization_code",
	})
}

// RefreshAccessToken trades a refresh token for a new token.
func (f *Flow) RefreshAccessToken(ctx context.Context, refreshToken string) (*Token, error) {
	return f.exchange(ctx, map[string]string{
		"refresh_token": refreshToken,
		"grant_type":    "refresh_token",
	})
}

func (f *Flow) exchange(ctx context.Context, grant map[string]string) (*Token, error) {
	params := map[string]string{
		"client_id":     f.config.ClientID,
		"client_secret": f.config.ClientSecret,
		"redirect_uri":  f.config.RedirectURL,
	}
	for k, v := range grant {
		params[k] = v
	}

	body, contentType, err := f.encode(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.config.TokenURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Accept", "application/json")
	for k, v := range f.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ExchangeFailedError{Status: resp.StatusCode, Body: string(respBody)}
	}

	var token Token
	if err := json.Unmarshal(respBody, &token); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: missing access_token", ErrMalformedResponse)
	}

	return &token, nil
}

func (f *Flow) encode(params map[string]string) (io.Reader, string, error) {
	if f.config.BodyStyle == BodyForm {
		data := url.Values{}
		for k, v := range params {
			data.Set(k, v)
		}
		return strings.NewReader(data.Encode()), "application/x-www-form-urlencoded", nil
	}

	data, err := json.Marshal(params)
	if err != nil {
		return nil, "", fmt.Errorf("marshal request: %w", err)
	}
	return bytes.NewReader(data), "application/json", nil
}
