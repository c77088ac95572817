// Package aggregator combines watch history from several services into a
// unified view.
//
// This package enables watchlog to:
// - Fetch Trakt and SIMKL concurrently for one date range
// - Merge their items newest first
// - Filter by service, kind and time, and limit the result
package aggregator

import (
	"context"
	"fmt"
	"time"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// Source is one service able to produce normalized history for a range.
// *history.Session satisfies it.
type Source interface {
	Service() history.Service
	History(ctx context.Context, r history.DateRange) ([]history.Item, error)
}

// SourceError records that one service failed; the others still count.
type SourceError struct {
	Service history.Service
	Err     error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// FeedOptions configures feed retrieval. Zero values mean no filter.
type FeedOptions struct {
	Limit    int
	Since    time.Time
	Until    time.Time
	Services []history.Service
	Kinds    []history.Kind
}
