// Package display provides terminal output formatting for watchlog.
package display

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

const separator = " • "

// TerminalFormatter formats history items for terminal display.
type TerminalFormatter struct {
	now func() time.Time
}

// NewTerminalFormatter creates a new terminal formatter.
func NewTerminalFormatter() *TerminalFormatter {
	return &TerminalFormatter{now: time.Now}
}

// FormatItem formats a single history item for display.
func (f *TerminalFormatter) FormatItem(item history.Item) string {
	var lines []string

	// Header: [SERVICE] Title
	lines = append(lines, fmt.Sprintf("[%s] %s", strings.ToUpper(string(item.Service)), f.title(item)))

	meta := "  watched " + f.FormatTimestamp(item.WatchedAt)
	if d := item.WatchedAt.Sub(item.StartedAt); d > 0 {
		meta += separator + FormatDuration(d)
	}
	lines = append(lines, meta)

	if ids := formatIDs(item); ids != "" {
		lines = append(lines, "  "+ids)
	}

	return strings.Join(lines, "\n") + "\n"
}

func (f *TerminalFormatter) title(item history.Item) string {
	switch item.Kind {
	case history.KindMovie:
		if item.Movie == nil {
			return ""
		}
		return withYear(item.Movie.Title, item.Movie.Year)
	case history.KindEpisode:
		if item.Show == nil || item.Episode == nil {
			return ""
		}
		t := fmt.Sprintf("%s S%02dE%02d", item.Show.Title, item.Episode.Season, item.Episode.Number)
		if item.Episode.Title != "" {
			t += separator + f.TruncateText(item.Episode.Title, 60)
		}
		return t
	}
	return ""
}

func withYear(title string, year int) string {
	if year > 0 {
		return fmt.Sprintf("%s (%d)", title, year)
	}
	return title
}

func formatIDs(item history.Item) string {
	var ids history.IDs
	switch {
	case item.Movie != nil:
		ids = item.Movie.IDs
	case item.Show != nil:
		ids = item.Show.IDs
	}

	var parts []string
	if ids.IMDB != "" {
		parts = append(parts, "imdb "+ids.IMDB)
	}
	if ids.TMDB > 0 {
		parts = append(parts, fmt.Sprintf("tmdb %d", ids.TMDB))
	}
	if ids.TVDB > 0 {
		parts = append(parts, fmt.Sprintf("tvdb %d", ids.TVDB))
	}
	return strings.Join(parts, separator)
}

// FormatHistory formats multiple items for display.
func (f *TerminalFormatter) FormatHistory(items []history.Item) string {
	if len(items) == 0 {
		return "Nothing watched in this period.\n"
	}

	var formatted []string
	for _, item := range items {
		formatted = append(formatted, f.FormatItem(item))
	}

	return strings.Join(formatted, "\n")
}

// FormatTimestamp formats a timestamp as relative time.
func (f *TerminalFormatter) FormatTimestamp(t time.Time) string {
	diff := f.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		return pluralize(int(diff.Minutes()), "minute")
	case diff < 24*time.Hour:
		return pluralize(int(diff.Hours()), "hour")
	case diff < 7*24*time.Hour:
		return pluralize(int(diff.Hours()/24), "day")
	default:
		return t.Local().Format("Jan 2, 2006")
	}
}

// pluralize returns "N unit ago" or "N units ago" based on count.
func pluralize(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

// FormatDuration renders a runtime as "1h 45m" or "45m".
func FormatDuration(d time.Duration) string {
	minutes := int(d.Round(time.Minute).Minutes())
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%dh", minutes/60)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

// TruncateText truncates text to maxLen runes, adding "..." if truncated.
func (f *TerminalFormatter) TruncateText(text string, maxLen int) string {
	runes := []rune(text)
	if len(runes) <= maxLen {
		return text
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(runes[:maxLen-3]) + "..."
}

// WriteJSONLines writes one JSON object per item.
func WriteJSONLines(w io.Writer, items []history.Item) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("encode item: %w", err)
		}
	}
	return nil
}
