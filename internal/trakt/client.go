package trakt

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

const (
	defaultBaseURL = "https://api.trakt.tv"
	apiVersion     = "2"
	pageLimit      = 100
	maxPages       = 50
)

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

// WithLogger sets the logger used for pagination warnings.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL sets a custom API base URL (useful for testing).
func WithBaseURL(url string) ClientOption {
	return func(c *Client) {
		c.baseURL = url
	}
}

// Client implements history.Provider for Trakt.
type Client struct {
	clientID   string
	baseURL    string
	httpClient HTTPClient
	flow       *oauth.Flow
	logger     *slog.Logger
}

var _ history.Provider = (*Client)(nil)

// NewClient creates a Trakt provider from its OAuth configuration.
func NewClient(config oauth.Config, opts ...ClientOption) *Client {
	c := &Client{
		clientID:   config.ClientID,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.flow = oauth.NewFlow(config, oauth.WithHTTPClient(c.httpClient))
	return c
}

func (c *Client) Name() history.Service {
	return history.ServiceTrakt
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

// FetchHistory requests /sync/history for the range, following pagination.
// Pages are concatenated into a single JSON array. At most maxPages are
// read; a longer history is logged as truncated.
func (c *Client) FetchHistory(ctx context.Context, accessToken string, r history.DateRange) (history.RawPayload, error) {
	payload := history.RawPayload{Service: history.ServiceTrakt, Range: r}

	var events []json.RawMessage
	for page := 1; page <= maxPages; page++ {
		body, pageCount, err := c.fetchPage(ctx, accessToken, r, page)
		if err != nil {
			return history.RawPayload{}, err
		}

		// Single page: hand the body over untouched so the normalizer sees
		// exactly what Trakt sent.
		if page == 1 && pageCount <= 1 {
			payload.Body = body
			return payload, nil
		}

		var pageEvents []json.RawMessage
		if err := json.Unmarshal(body, &pageEvents); err != nil {
			return history.RawPayload{}, fmt.Errorf("%w: page %d: %v", history.ErrMalformedPayload, page, err)
		}
		events = append(events, pageEvents...)

		if page >= pageCount || len(pageEvents) == 0 {
			break
		}
		if page == maxPages {
			c.logger.Warn("trakt history truncated; narrow the date range",
				"pages_read", maxPages, "page_count", pageCount, "events", len(events))
		}
	}

	body, err := json.Marshal(events)
	if err != nil {
		return history.RawPayload{}, fmt.Errorf("marshal history pages: %w", err)
	}
	payload.Body = body
	return payload, nil
}

func (c *Client) fetchPage(ctx context.Context, accessToken string, r history.DateRange, page int) ([]byte, int, error) {
	query := url.Values{}
	query.Set("start_at", r.Start.UTC().Format(time.RFC3339))
	query.Set("end_at", r.End.UTC().Format(time.RFC3339))
	query.Set("extended", "full")
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(pageLimit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/sync/history?"+query.Encode(), nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	c.setHeaders(req, accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("trakt api request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, 0, &history.UpstreamError{Status: resp.StatusCode, Body: string(body)}
	}

	pageCount := 1
	if v := resp.Header.Get("X-Pagination-Page-Count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			pageCount = n
		}
	}

	return body, pageCount, nil
}

func (c *Client) setHeaders(req *http.Request, accessToken string) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("trakt-api-version", apiVersion)
	req.Header.Set("trakt-api-key", c.clientID)
	req.Header.Set("Authorization", "Bearer "+accessToken)
}
