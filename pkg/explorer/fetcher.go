package explorer

import (
	"context"
	"errors"

	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/storage"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// CachedFetcher loads figures from the timeline API and keeps the last good
// response per query in the event cache. When the API cannot be reached the
// cached figure is served instead, marked with CachedAt.
type CachedFetcher struct {
	client *client.Client
	cache  *storage.EventCache
	logger *log.Logger
}

// NewCachedFetcher returns a fetcher. cache may be nil, which disables both
// snapshots and the offline fallback.
func NewCachedFetcher(c *client.Client, cache *storage.EventCache) *CachedFetcher {
	return &CachedFetcher{client: c, cache: cache, logger: log.ForService("fetcher")}
}

// Timeline implements query.Fetcher.
func (f *CachedFetcher) Timeline(ctx context.Context, q timeline.Query) (*timeline.Figure, error) {
	fig, body, err := f.client.TimelineRaw(ctx, q)
	if err == nil {
		if f.cache != nil {
			if serr := f.cache.SaveSnapshot(ctx, q, body); serr != nil {
				f.logger.Warnf("saving snapshot for %s: %v", q, serr)
			}
		}
		return fig, nil
	}

	// Superseded requests and rejected input never fall back.
	if f.cache == nil || !timeline.Retryable(err) || errors.Is(ctx.Err(), context.Canceled) {
		return nil, err
	}
	snap, serr := f.cache.LoadSnapshot(context.WithoutCancel(ctx), q)
	if serr != nil {
		return nil, err
	}
	cached, derr := snap.Figure()
	if derr != nil {
		f.logger.Warnf("cached snapshot for %s is unreadable: %v", q, derr)
		return nil, err
	}
	cached.CachedAt = snap.FetchedAt
	f.logger.Warnf("timeline API unavailable (%v), using snapshot from %s", err, snap.FetchedAt.Format("2006-01-02 15:04"))
	return cached, nil
}
