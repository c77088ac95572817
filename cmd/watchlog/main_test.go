package main

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gauthierbraillon/watchlog/internal/auth"
	"github.com/gauthierbraillon/watchlog/internal/history"
)

func TestParseRange(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name      string
		since     string
		until     string
		wantStart time.Time
		wantEnd   time.Time
	}{
		{
			name:      "default last day",
			since:     "24h",
			wantStart: now.Add(-24 * time.Hour),
			wantEnd:   now,
		},
		{
			name:      "durations on both ends",
			since:     "72h",
			until:     "1h",
			wantStart: now.Add(-72 * time.Hour),
			wantEnd:   now.Add(-time.Hour),
		},
		{
			name:      "dates cover the whole until day",
			since:     "2024-05-01",
			until:     "2024-05-02",
			wantStart: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 5, 2, 23, 59, 59, 0, time.UTC),
		},
		{
			name:      "RFC 3339 instants",
			since:     "2024-05-09T20:00:00Z",
			until:     "2024-05-09T22:00:00+02:00",
			wantStart: time.Date(2024, 5, 9, 20, 0, 0, 0, time.UTC),
			wantEnd:   time.Date(2024, 5, 9, 20, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := parseRange(tt.since, tt.until, now)

			require.NoError(t, err)
			assert.True(t, tt.wantStart.Equal(r.Start), "start %s, want %s", r.Start, tt.wantStart)
			assert.True(t, tt.wantEnd.Equal(r.End), "end %s, want %s", r.End, tt.wantEnd)
		})
	}
}

func TestParseRange_Errors(t *testing.T) {
	now := time.Date(2024, 5, 10, 15, 30, 0, 0, time.UTC)

	_, err := parseRange("last week", "", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--since")

	_, err = parseRange("24h", "tomorrow", now)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--until")

	_, err = parseRange("1h", "24h", now)
	assert.ErrorIs(t, err, history.ErrInvalidRange)
}

func TestSelectServices(t *testing.T) {
	got, err := selectServices("", history.ServiceSimkl)
	require.NoError(t, err)
	assert.Equal(t, []history.Service{history.ServiceSimkl}, got)

	got, err = selectServices("trakt", history.ServiceSimkl)
	require.NoError(t, err)
	assert.Equal(t, []history.Service{history.ServiceTrakt}, got)

	got, err = selectServices("all", history.ServiceSimkl)
	require.NoError(t, err)
	assert.Equal(t, history.Services, got)

	_, err = selectServices("plex", history.ServiceTrakt)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "all")
}

func TestDescribeError(t *testing.T) {
	err := describeError(history.ServiceTrakt, auth.ErrNotAuthenticated)
	assert.Contains(t, err.Error(), "watchlog auth trakt")

	err = describeError(history.ServiceSimkl, auth.ErrAuthenticationExpired)
	assert.Contains(t, err.Error(), "watchlog auth simkl")
	assert.ErrorIs(t, err, auth.ErrAuthenticationExpired)

	other := errors.New("boom")
	assert.Equal(t, other, describeError(history.ServiceTrakt, other))
}
