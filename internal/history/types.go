// Package history defines the unified viewing-history model shared by all
// services, and the fetch-then-normalize pipeline that produces it.
//
// This package enables watchlog to:
// - Treat Trakt and SIMKL as one capability (Provider)
// - Fetch a date range with valid credentials
// - Expose service-agnostic movie and episode items
package history

import (
	"errors"
	"fmt"
	"time"
)

// Service identifies a viewing-history provider.
type Service string

const (
	ServiceTrakt Service = "trakt"
	ServiceSimkl Service = "simkl"
)

// Services lists every supported service in display order.
var Services = []Service{ServiceTrakt, ServiceSimkl}

// ParseService validates a user-supplied service name.
func ParseService(name string) (Service, error) {
	for _, s := range Services {
		if string(s) == name {
			return s, nil
		}
	}
	return "", ErrUnknownService
}

// Kind identifies what was watched.
type Kind string

const (
	KindMovie   Kind = "movie"
	KindEpisode Kind = "episode"
)

var (
	ErrUnknownService = errors.New("unknown service: must be 'trakt' or 'simkl'")
	ErrInvalidItem    = errors.New("invalid history item")
	ErrInvalidRange   = errors.New("invalid date range")
)

// IDs are the identifiers of a movie or show. Primary is the service's own
// numeric id; ids are never merged across services. Zero means absent.
type IDs struct {
	Primary int64  `json:"primary"`
	Slug    string `json:"slug,omitempty"`
	IMDB    string `json:"imdb,omitempty"`
	TMDB    int64  `json:"tmdb,omitempty"`
	TVDB    int64  `json:"tvdb,omitempty"`
}

type EpisodeIDs struct {
	IMDB string `json:"imdb,omitempty"`
	TMDB int64  `json:"tmdb,omitempty"`
	TVDB int64  `json:"tvdb,omitempty"`
}

type Movie struct {
	Title          string `json:"title"`
	Year           int    `json:"year,omitempty"`
	RuntimeMinutes int    `json:"runtime_minutes,omitempty"`
	IDs            IDs    `json:"ids"`
}

type Show struct {
	Title          string `json:"title"`
	Year           int    `json:"year,omitempty"`
	RuntimeMinutes int    `json:"runtime_minutes,omitempty"`
	IDs            IDs    `json:"ids"`
}

type Episode struct {
	Title          string     `json:"title,omitempty"`
	Season         int        `json:"season"`
	Number         int        `json:"number"`
	RuntimeMinutes int        `json:"runtime_minutes,omitempty"`
	IDs            EpisodeIDs `json:"ids"`
}

// Item is one watched movie or episode. Exactly one of Movie or
// Show+Episode is set, matching Kind. Items are built by the constructors
// and not modified afterwards.
type Item struct {
	Service   Service   `json:"service"`
	Kind      Kind      `json:"kind"`
	WatchedAt time.Time `json:"watched_at"`
	StartedAt time.Time `json:"started_at"`
	Movie     *Movie    `json:"movie,omitempty"`
	Show      *Show     `json:"show,omitempty"`
	Episode   *Episode  `json:"episode,omitempty"`
}

// NewMovieItem builds a movie item; the movie must have a title.
func NewMovieItem(service Service, watchedAt time.Time, movie Movie) (Item, error) {
	if watchedAt.IsZero() || movie.Title == "" {
		return Item{}, ErrInvalidItem
	}
	return Item{
		Service:   service,
		Kind:      KindMovie,
		WatchedAt: watchedAt,
		StartedAt: DeriveStartedAt(watchedAt, 0, movie.RuntimeMinutes),
		Movie:     &movie,
	}, nil
}

// NewEpisodeItem builds an episode item; the show must have a title.
func NewEpisodeItem(service Service, watchedAt time.Time, show Show, episode Episode) (Item, error) {
	if watchedAt.IsZero() || show.Title == "" {
		return Item{}, ErrInvalidItem
	}
	return Item{
		Service:   service,
		Kind:      KindEpisode,
		WatchedAt: watchedAt,
		StartedAt: DeriveStartedAt(watchedAt, episode.RuntimeMinutes, show.RuntimeMinutes),
		Show:      &show,
		Episode:   &episode,
	}, nil
}

// DeriveStartedAt subtracts the most specific known runtime from watchedAt.
// With no runtime known the result equals watchedAt.
func DeriveStartedAt(watchedAt time.Time, specificMinutes, fallbackMinutes int) time.Time {
	minutes := specificMinutes
	if minutes <= 0 {
		minutes = fallbackMinutes
	}
	if minutes <= 0 {
		return watchedAt
	}
	return watchedAt.Add(-time.Duration(minutes) * time.Minute)
}

// DateRange is inclusive at both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.Start) && !t.After(r.End)
}

func (r DateRange) Validate() error {
	if r.Start.IsZero() || r.End.IsZero() {
		return fmt.Errorf("%w: needs both a start and an end", ErrInvalidRange)
	}
	if r.End.Before(r.Start) {
		return fmt.Errorf("%w: end is before start", ErrInvalidRange)
	}
	return nil
}

// RawPayload is an undecoded history response together with the range it
// was requested for.
type RawPayload struct {
	Service Service
	Body    []byte
	Range   DateRange
}
