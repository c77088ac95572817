package simkl

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

const defaultBaseURL = "https://api.simkl.com"

// HTTPClient interface for making HTTP requests (allows injection for testing).
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client, used for both OAuth and API calls.
func WithHTTPClient(httpClient HTTPClient) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithBaseURL sets a custom API base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// Client implements history.Provider for SIMKL.
type Client struct {
	clientID   string
	baseURL    string
	httpClient HTTPClient
	flow       *oauth.Flow
}

var _ history.Provider = (*Client)(nil)

// NewClient creates a SIMKL provider from its OAuth configuration.
func NewClient(config oauth.Config, opts ...ClientOption) *Client {
	c := &Client{
		clientID:   config.ClientID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	c.flow = oauth.NewFlow(config, oauth.WithHTTPClient(c.httpClient))
	return c
}

func (c *Client) Name() history.Service {
	return history.ServiceSimkl
}

func (c *Client) AuthURL(state string) string {
	return c.flow.AuthURL(state)
}

func (c *Client) ExchangeCode(ctx context.Context, code string) (*oauth.Token, error) {
	return c.flow.ExchangeCode(ctx, code)
}

func (c *Client) RefreshAccessToken(ctx context.Context, refreshToken string) (*oauth.Token, error) {
	return c.flow.RefreshAccessToken(ctx, refreshToken)
}

// FetchHistory requests /sync/all-items for the range.
func (c *Client) FetchHistory(ctx context.Context, accessToken string, r history.DateRange) (history.RawPayload, error) {
	query := url.Values{}
	query.Set("date_from", r.Start.UTC().Format(time.RFC3339))
	query.Set("date_to", r.End.UTC().Format(time.RFC3339))
	query.Set("extended", "full")
	query.Set("episode_watched_at", "yes")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync/all-items/?"+query.Encode(), nil)
	if err != nil {
		return history.RawPayload{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("simkl-api-key", c.clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return history.RawPayload{}, fmt.Errorf("simkl api request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return history.RawPayload{}, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return history.RawPayload{}, &history.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	return history.RawPayload{Service: history.ServiceSimkl, Body: body, Range: r}, nil
}
