package trakt

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// Normalize implements history.Provider.
func (c *Client) Normalize(raw history.RawPayload) ([]history.Item, error) {
	return Normalize(raw.Body)
}

// Normalize maps a /sync/history array to unified items. Events that
// cannot be used are skipped; only a body that is not an array fails.
// Trakt answers [] when nothing was watched, so null is malformed too.
func Normalize(body []byte) ([]history.Item, error) {
	if bytes.Equal(bytes.TrimSpace(body), []byte("null")) {
		return nil, fmt.Errorf("%w: expected an array, got null", history.ErrMalformedPayload)
	}

	var events []json.RawMessage
	if err := json.Unmarshal(body, &events); err != nil {
		return nil, fmt.Errorf("%w: expected an array: %v", history.ErrMalformedPayload, err)
	}

	items := make([]history.Item, 0, len(events))
	for _, rawEvent := range events {
		var ev historyEvent
		if err := json.Unmarshal(rawEvent, &ev); err != nil {
			continue
		}
		if item, ok := normalizeEvent(ev); ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func normalizeEvent(ev historyEvent) (history.Item, bool) {
	watchedAt, err := time.Parse(time.RFC3339Nano, ev.WatchedAt)
	if err != nil {
		return history.Item{}, false
	}

	var item history.Item
	switch ev.Type {
	case "movie":
		if ev.Movie == nil {
			return history.Item{}, false
		}
		item, err = history.NewMovieItem(history.ServiceTrakt, watchedAt, history.Movie{
			Title:          ev.Movie.Title,
			Year:           ev.Movie.Year.Int(),
			RuntimeMinutes: ev.Movie.Runtime.Int(),
			IDs:            mediaIDs(ev.Movie.IDs),
		})
	case "episode":
		if ev.Show == nil || ev.Episode == nil || !ev.Episode.Season.Set() || !ev.Episode.Number.Set() {
			return history.Item{}, false
		}
		item, err = history.NewEpisodeItem(history.ServiceTrakt, watchedAt,
			history.Show{
				Title:          ev.Show.Title,
				Year:           ev.Show.Year.Int(),
				RuntimeMinutes: ev.Show.Runtime.Int(),
				IDs:            mediaIDs(ev.Show.IDs),
			},
			history.Episode{
				Title:          ev.Episode.Title,
				Season:         ev.Episode.Season.Int(),
				Number:         ev.Episode.Number.Int(),
				RuntimeMinutes: ev.Episode.Runtime.Int(),
				IDs: history.EpisodeIDs{
					IMDB: ev.Episode.IDs.IMDB,
					TMDB: ev.Episode.IDs.TMDB.Int64(),
					TVDB: ev.Episode.IDs.TVDB.Int64(),
				},
			})
	default:
		return history.Item{}, false
	}

	return item, err == nil
}

func mediaIDs(in ids) history.IDs {
	return history.IDs{
		Primary: in.Trakt.Int64(),
		Slug:    in.Slug,
		IMDB:    in.IMDB,
		TMDB:    in.TMDB.Int64(),
		TVDB:    in.TVDB.Int64(),
	}
}
