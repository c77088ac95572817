// Package trakt provides the Trakt.tv history provider.
//
// Trakt history is event-shaped: /sync/history returns a flat array of
// watch events, each tagged with its type and already carrying nested
// movie, show and episode objects.
package trakt

import (
	"encoding/json"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// API response types (private - implementation detail)
//
// Numeric fields use history.FlexInt and ids decode best-effort, so only
// watched_at, type and the titles decide whether an event is usable.

type historyEvent struct {
	ID        history.FlexInt `json:"id"`
	WatchedAt string          `json:"watched_at"`
	Action    string          `json:"action"`
	Type      string          `json:"type"`
	Movie     *movie          `json:"movie"`
	Show      *show           `json:"show"`
	Episode   *episode        `json:"episode"`
}

type ids struct {
	Trakt history.FlexInt `json:"trakt"`
	Slug  string          `json:"slug"`
	IMDB  string          `json:"imdb"`
	TMDB  history.FlexInt `json:"tmdb"`
	TVDB  history.FlexInt `json:"tvdb"`
}

func (i *ids) UnmarshalJSON(b []byte) error {
	type plain ids
	var p plain
	_ = json.Unmarshal(b, &p)
	*i = ids(p)
	return nil
}

type movie struct {
	Title   string          `json:"title"`
	Year    history.FlexInt `json:"year"`
	Runtime history.FlexInt `json:"runtime"`
	IDs     ids             `json:"ids"`
}

type show struct {
	Title   string          `json:"title"`
	Year    history.FlexInt `json:"year"`
	Runtime history.FlexInt `json:"runtime"`
	IDs     ids             `json:"ids"`
}

type episode struct {
	Season  history.FlexInt `json:"season"`
	Number  history.FlexInt `json:"number"`
	Title   string          `json:"title"`
	Runtime history.FlexInt `json:"runtime"`
	IDs     ids             `json:"ids"`
}
