package aggregator

import (
	"context"
	"slices"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/gauthierbraillon/watchlog/internal/history"
)

// Aggregator collects and merges history items from multiple services.
type Aggregator struct {
	mu    sync.Mutex
	items []history.Item
}

// New creates a new Aggregator instance.
func New() *Aggregator {
	return &Aggregator{
		items: make([]history.Item, 0),
	}
}

// AddItems adds history items to the aggregator. Safe for concurrent use.
func (a *Aggregator) AddItems(items []history.Item) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, items...)
}

// Collect fetches r from every source concurrently and adds what each
// returns. A failing source does not stop the others; its error is
// returned as a *SourceError, in source order.
func (a *Aggregator) Collect(ctx context.Context, r history.DateRange, sources ...Source) []error {
	if len(sources) == 0 {
		return nil
	}

	errs := make([]error, len(sources))
	p := pool.New().WithMaxGoroutines(len(sources))
	for i, src := range sources {
		p.Go(func() {
			items, err := src.History(ctx, r)
			if err != nil {
				errs[i] = &SourceError{Service: src.Service(), Err: err}
				return
			}
			a.AddItems(items)
		})
	}
	p.Wait()

	var failed []error
	for _, err := range errs {
		if err != nil {
			failed = append(failed, err)
		}
	}
	return failed
}

// GetFeed returns aggregated items based on options, newest first. Items
// watched at the same instant keep the order they were added in.
func (a *Aggregator) GetFeed(opts FeedOptions) []history.Item {
	a.mu.Lock()
	feed := make([]history.Item, 0, len(a.items))
	for _, item := range a.items {
		if matches(item, opts) {
			feed = append(feed, item)
		}
	}
	a.mu.Unlock()

	sort.SliceStable(feed, func(i, j int) bool {
		return feed[i].WatchedAt.After(feed[j].WatchedAt)
	})

	if opts.Limit > 0 && len(feed) > opts.Limit {
		feed = feed[:opts.Limit]
	}
	return feed
}

func matches(item history.Item, opts FeedOptions) bool {
	if len(opts.Services) > 0 && !slices.Contains(opts.Services, item.Service) {
		return false
	}
	if len(opts.Kinds) > 0 && !slices.Contains(opts.Kinds, item.Kind) {
		return false
	}
	if !opts.Since.IsZero() && item.WatchedAt.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && item.WatchedAt.After(opts.Until) {
		return false
	}
	return true
}
