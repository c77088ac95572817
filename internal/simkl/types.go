// Package simkl provides the SIMKL history provider.
//
// SIMKL history is bucketed: /sync/all-items returns an object with
// separate movies, shows and anime arrays, each entry carrying its own
// last-watched timestamp. The query range is only a hint upstream, so
// entries are filtered again here.
package simkl

import (
	"encoding/json"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// API response types (private - implementation detail)
//
// Only last_watched_at and the titles decide whether an entry is usable.
// Numeric fields use history.FlexInt, and ids and episode objects decode
// best-effort, so a malformed optional field never drops the entry.

type movieEntry struct {
	LastWatchedAt string `json:"last_watched_at"`
	Movie         *media `json:"movie"`
}

type showEntry struct {
	LastWatchedAt string  `json:"last_watched_at"`
	Show          *media  `json:"show"`
	Episode       episode `json:"episode"`
	// LastWatched is the compact summary, e.g. "S02E07".
	LastWatched string `json:"last_watched"`
}

type media struct {
	Title   string          `json:"title"`
	Year    history.FlexInt `json:"year"`
	Runtime history.FlexInt `json:"runtime"`
	IDs     ids             `json:"ids"`
}

type episode struct {
	Title   string          `json:"title"`
	Season  history.FlexInt `json:"season"`
	Episode history.FlexInt `json:"episode"`
	Number  history.FlexInt `json:"number"`
	Runtime history.FlexInt `json:"runtime"`
	IDs     ids             `json:"ids"`
}

// UnmarshalJSON keeps whatever fields decode. An episode that is not an
// object leaves season unset, so the summary is used instead.
func (e *episode) UnmarshalJSON(b []byte) error {
	type plain episode
	var p plain
	_ = json.Unmarshal(b, &p)
	*e = episode(p)
	return nil
}

type ids struct {
	Simkl history.FlexInt `json:"simkl"`
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
