package simkl

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// episodeCode matches the compact summary form, e.g. "S02E07".
var episodeCode = regexp.MustCompile(`(?i)\bS(\d{1,4})E(\d{1,5})\b`)

// Buckets in output order. Anime entries have the show shape.
var showBuckets = []string{"shows", "anime"}

// Normalize implements history.Provider.
func (c *Client) Normalize(raw history.RawPayload) ([]history.Item, error) {
	return Normalize(raw.Body, raw.Range)
}

// Normalize maps an /sync/all-items object to unified items, keeping only
// entries watched inside r (inclusive). A zero r keeps everything.
// SIMKL answers an empty body or null when nothing matched.
func Normalize(body []byte, r history.DateRange) ([]history.Item, error) {
	items := make([]history.Item, 0)

	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return items, nil
	}

	var buckets map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &buckets); err != nil {
		return nil, fmt.Errorf("%w: expected an object: %v", history.ErrMalformedPayload, err)
	}

	inRange := func(t time.Time) bool {
		if r.Start.IsZero() && r.End.IsZero() {
			return true
		}
		return r.Contains(t)
	}

	for _, raw := range entries(buckets["movies"]) {
		var entry movieEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			continue
		}
		if item, ok := normalizeMovie(entry); ok && inRange(item.WatchedAt) {
			items = append(items, item)
		}
	}

	for _, bucket := range showBuckets {
		for _, raw := range entries(buckets[bucket]) {
			var entry showEntry
			if err := json.Unmarshal(raw, &entry); err != nil {
				continue
			}
			if item, ok := normalizeShow(entry); ok && inRange(item.WatchedAt) {
				items = append(items, item)
			}
		}
	}

	return items, nil
}

// entries splits a bucket into its elements; a bucket that is not an
// array contributes nothing.
func entries(bucket json.RawMessage) []json.RawMessage {
	if len(bucket) == 0 {
		return nil
	}
	var out []json.RawMessage
	if err := json.Unmarshal(bucket, &out); err != nil {
		return nil
	}
	return out
}

func normalizeMovie(entry movieEntry) (history.Item, bool) {
	watchedAt, ok := parseTime(entry.LastWatchedAt)
	if !ok || entry.Movie == nil {
		return history.Item{}, false
	}
	item, err := history.NewMovieItem(history.ServiceSimkl, watchedAt, history.Movie{
		Title:          entry.Movie.Title,
		Year:           entry.Movie.Year.Int(),
		RuntimeMinutes: entry.Movie.Runtime.Int(),
		IDs:            mediaIDs(entry.Movie.IDs),
	})
	return item, err == nil
}

func normalizeShow(entry showEntry) (history.Item, bool) {
	watchedAt, ok := parseTime(entry.LastWatchedAt)
	if !ok || entry.Show == nil {
		return history.Item{}, false
	}
	ep, ok := resolveEpisode(entry)
	if !ok {
		return history.Item{}, false
	}
	item, err := history.NewEpisodeItem(history.ServiceSimkl, watchedAt, history.Show{
		Title:          entry.Show.Title,
		Year:           entry.Show.Year.Int(),
		RuntimeMinutes: entry.Show.Runtime.Int(),
		IDs:            mediaIDs(entry.Show.IDs),
	}, ep)
	return item, err == nil
}

// resolveEpisode prefers the structured episode object and falls back to
// the "SxxEyy" summary. The fallback carries no title.
func resolveEpisode(entry showEntry) (history.Episode, bool) {
	if e := entry.Episode; e.Season.Set() {
		number := e.Episode
		if !number.Set() {
			number = e.Number
		}
		if number.Set() {
			return history.Episode{
				Title:          e.Title,
				Season:         e.Season.Int(),
				Number:         number.Int(),
				RuntimeMinutes: e.Runtime.Int(),
				IDs: history.EpisodeIDs{
					IMDB: e.IDs.IMDB,
					TMDB: e.IDs.TMDB.Int64(),
					TVDB: e.IDs.TVDB.Int64(),
				},
			}, true
		}
	}

	m := episodeCode.FindStringSubmatch(entry.LastWatched)
	if m == nil {
		return history.Episode{}, false
	}
	season, err := strconv.Atoi(m[1])
	if err != nil {
		return history.Episode{}, false
	}
	number, err := strconv.Atoi(m[2])
	if err != nil {
		return history.Episode{}, false
	}
	return history.Episode{Season: season, Number: number}, true
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func mediaIDs(in ids) history.IDs {
	return history.IDs{
		Primary: in.Simkl.Int64(),
		Slug:    in.Slug,
		IMDB:    in.IMDB,
		TMDB:    in.TMDB.Int64(),
		TVDB:    in.TVDB.Int64(),
	}
}
