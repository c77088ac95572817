// Package simkl tests document the expected behavior of the SIMKL provider.
//
// Test requirements (this file serves as documentation):
// - History requests carry the bearer token and simkl-api-key header
// - The date range is sent as a hint; filtering happens on normalize
// - Non-200 answers surface as UpstreamError with status and body
// - Token exchanges use the form-encoded dialect
package simkl

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
	"github.com/gauthierbraillon/watchlog/pkg/oauth"
)

var testRange = history.DateRange{
	Start: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	End:   time.Date(2024, 1, 31, 23, 59, 59, 0, time.UTC),
}

func newTestClient(serverURL string) *Client {
	config := oauth.SimklOAuthConfig("test-client-id", "test-secret", "http://127.0.0.1:8899/callback")
	config.TokenURL = serverURL + "/oauth/token"
	return NewClient(config, WithBaseURL(serverURL))
}

func TestClient_FetchHistory(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/all-items/" {
			t.Errorf("expected /sync/all-items/, got %q", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer test-token" {
			t.Errorf("expected Bearer token in Authorization header, got %q", auth)
		}
		if r.Header.Get("simkl-api-key") != "test-client-id" {
			t.Errorf("expected simkl-api-key header")
		}
		q := r.URL.Query()
		if q.Get("date_from") != "2024-01-01T00:00:00Z" {
			t.Errorf("wrong date_from %q", q.Get("date_from"))
		}
		if q.Get("extended") != "full" {
			t.Errorf("expected extended=full, got %q", q.Get("extended"))
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"movies":[
			{"last_watched_at":"2024-01-10T20:00:00Z","movie":{"title":"Inside","runtime":100}},
			{"last_watched_at":"2023-12-10T20:00:00Z","movie":{"title":"Outside","runtime":100}}
		]}`))
	}))
	defer server.Close()

	client := newTestClient(server.URL)
	raw, err := client.FetchHistory(context.Background(), "test-token", testRange)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw.Service != history.ServiceSimkl {
		t.Errorf("wrong service %q", raw.Service)
	}

	items, err := client.Normalize(raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Movie.Title != "Inside" {
		t.Errorf("expected only the in-range movie, got %+v", items)
	}
}

func TestClient_FetchHistory_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte("boom"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).FetchHistory(context.Background(), "token", testRange)

	var upstream *history.UpstreamError
	if !errors.As(err, &upstream) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
	if upstream.Status != http.StatusInternalServerError || upstream.Body != "boom" {
		t.Errorf("unexpected upstream error %+v", upstream)
	}
}

func TestClient_RefreshAccessToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ct := r.Header.Get("Content-Type"); ct != "application/x-www-form-urlencoded" {
			t.Errorf("expected form body, got %q", ct)
		}
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		if r.PostForm.Get("grant_type") != "refresh_token" || r.PostForm.Get("refresh_token") != "old" {
			t.Errorf("unexpected form %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"new","token_type":"bearer"}`))
	}))
	defer server.Close()

	token, err := newTestClient(server.URL).RefreshAccessToken(context.Background(), "old")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token.AccessToken != "new" || token.ExpiresIn != 0 {
		t.Errorf("unexpected token %+v", token)
	}
}
