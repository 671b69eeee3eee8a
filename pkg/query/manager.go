// Package query owns the timeline query of a session: the visible year
// range, the clustering switch and the spatial filter. Every mutation issues
// exactly one asynchronous fetch, and only the newest fetch is delivered.
package query

import (
	"context"
	"net/url"
	"sync"

	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/selection"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// Fetcher loads a timeline figure for a query.
type Fetcher interface {
	Timeline(ctx context.Context, q timeline.Query) (*timeline.Figure, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, q timeline.Query) (*timeline.Figure, error)

func (f FetcherFunc) Timeline(ctx context.Context, q timeline.Query) (*timeline.Figure, error) {
	return f(ctx, q)
}

// Result is the outcome of the newest fetch.
type Result struct {
	Token  uint64
	Query  timeline.Query
	Tier   timeline.Tier
	Figure *timeline.Figure
	Err    error
}

// Options configure a Manager.
type Options struct {
	StartYear int64
	EndYear   int64
	// NoClustering starts the session with clustering disabled.
	NoClustering bool
	// Selection, when set, leaves map selection mode on ClearSpatialFilter.
	Selection *selection.State
	// Context bounds every fetch. Defaults to context.Background().
	Context context.Context
}

// Manager is safe for concurrent use.
type Manager struct {
	fetcher   Fetcher
	selection *selection.State
	base      context.Context
	defaults  timeline.Query

	mu       sync.Mutex
	q        timeline.Query
	token    uint64
	toggles  uint64
	cancel   context.CancelFunc
	last     *Result
	handlers []func(Result)

	// inflight counts fetch goroutines that have not finished; idle is
	// signalled on m.mu when it drops to zero.
	inflight int
	idle     *sync.Cond

	deliverMu sync.Mutex
	logger    *log.Logger
}

// New returns a manager. No fetch is issued until the first mutation or
// Reload.
func New(fetcher Fetcher, opts Options) *Manager {
	q := timeline.DefaultQuery()
	if opts.StartYear != 0 || opts.EndYear != 0 {
		if timeline.ValidateRange(opts.StartYear, opts.EndYear) == nil {
			q.StartYear, q.EndYear = opts.StartYear, opts.EndYear
		}
	}
	q.Clustering = !opts.NoClustering
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	m := &Manager{
		fetcher:   fetcher,
		selection: opts.Selection,
		base:      opts.Context,
		defaults:  q.Clone(),
		q:         q,
		logger:    log.ForService("query"),
	}
	m.idle = sync.NewCond(&m.mu)
	return m
}

// OnResult registers a handler for delivered results. Handlers run one at a
// time, in token order.
func (m *Manager) OnResult(fn func(Result)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Query returns a copy of the current query.
func (m *Manager) Query() timeline.Query {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Clone()
}

// Clustering returns the current clustering switch.
func (m *Manager) Clustering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Clustering
}

// Toggles returns how many times ToggleClustering has been called.
func (m *Manager) Toggles() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.toggles
}

// Last returns the most recently delivered result.
func (m *Manager) Last() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.last == nil {
		return Result{}, false
	}
	return *m.last, true
}

// BuildRequest encodes the current query.
func (m *Manager) BuildRequest() url.Values {
	return m.Query().Values()
}

// SetRange sets the visible range and re-queries.
func (m *Manager) SetRange(start, end int64) error {
	if err := timeline.ValidateRange(start, end); err != nil {
		return err
	}
	m.mu.Lock()
	m.q.StartYear, m.q.EndYear = start, end
	m.dispatchLocked("range")
	m.mu.Unlock()
	return nil
}

// SetRangeWithClustering sets range and clustering in a single re-query.
func (m *Manager) SetRangeWithClustering(start, end int64, clustering bool) error {
	if err := timeline.ValidateRange(start, end); err != nil {
		return err
	}
	m.mu.Lock()
	m.q.StartYear, m.q.EndYear = start, end
	m.q.Clustering = clustering
	m.dispatchLocked("range+clustering")
	m.mu.Unlock()
	return nil
}

// ParseRange parses user-entered bounds and checks start < end.
func ParseRange(start, end string) (int64, int64, error) {
	s, err := timeline.ParseYear("start year", start)
	if err != nil {
		return 0, 0, err
	}
	e, err := timeline.ParseYear("end year", end)
	if err != nil {
		return 0, 0, err
	}
	if err := timeline.ValidateRange(s, e); err != nil {
		return 0, 0, err
	}
	return s, e, nil
}

// ToggleClustering flips clustering, re-queries and returns the new value.
func (m *Manager) ToggleClustering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.q.Clustering = !m.q.Clustering
	m.toggles++
	m.dispatchLocked("toggle clustering")
	return m.q.Clustering
}

// RestoreClustering sets clustering to v without re-querying, unless
// ToggleClustering was called since the toggle count was observed as since.
// It reports whether the value was applied.
func (m *Manager) RestoreClustering(v bool, since uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.toggles != since {
		m.logger.Debugf("clustering toggled since expansion, keeping %t", m.q.Clustering)
		return false
	}
	m.q.Clustering = v
	return true
}

// SetSpatialFilter validates and applies a point+radius filter.
func (m *Manager) SetSpatialFilter(lat, lon, radius float64) error {
	f, err := timeline.NewSpatialFilter(lat, lon, radius)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.q.Spatial = &f
	m.dispatchLocked("spatial filter")
	m.mu.Unlock()
	return nil
}

// ClearSpatialFilter removes the filter, leaves map selection mode and
// re-queries.
func (m *Manager) ClearSpatialFilter() {
	if m.selection != nil {
		m.selection.ClearMapFilter()
	}
	m.mu.Lock()
	m.q.Spatial = nil
	m.dispatchLocked("clear spatial filter")
	m.mu.Unlock()
}

// Reload re-issues the current query.
func (m *Manager) Reload() {
	m.mu.Lock()
	m.dispatchLocked("reload")
	m.mu.Unlock()
}

// Reset returns to the initial range and clustering and drops the filter.
func (m *Manager) Reset() {
	m.mu.Lock()
	m.q = m.defaults.Clone()
	m.dispatchLocked("reset")
	m.mu.Unlock()
}

// Wait blocks until every issued fetch has been delivered or discarded,
// including fetches issued by other goroutines while it waits. Result
// handlers must not call it.
func (m *Manager) Wait() {
	m.mu.Lock()
	for m.inflight > 0 {
		m.idle.Wait()
	}
	m.mu.Unlock()
}

// Close cancels the in-flight fetch.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.mu.Unlock()
}

func (m *Manager) dispatchLocked(reason string) {
	if m.cancel != nil {
		m.cancel()
	}
	m.token++
	token := m.token
	q := m.q.Clone()
	ctx, cancel := context.WithCancel(m.base)
	m.cancel = cancel

	m.logger.Debugf("fetch #%d (%s): %s", token, reason, q)
	m.inflight++
	go func() {
		defer m.finish()
		defer cancel()
		fig, err := m.fetcher.Timeline(ctx, q)
		m.deliver(Result{Token: token, Query: q, Tier: timeline.ZoomTier(q.Span()), Figure: fig, Err: err})
	}()
}

func (m *Manager) finish() {
	m.mu.Lock()
	m.inflight--
	if m.inflight == 0 {
		m.idle.Broadcast()
	}
	m.mu.Unlock()
}

func (m *Manager) deliver(res Result) {
	m.deliverMu.Lock()
	defer m.deliverMu.Unlock()

	m.mu.Lock()
	if res.Token != m.token {
		m.mu.Unlock()
		m.logger.Debugf("discarding stale response #%d", res.Token)
		return
	}
	m.last = &res
	handlers := append([]func(Result){}, m.handlers...)
	m.mu.Unlock()

	if res.Err != nil {
		m.logger.Warnf("fetch #%d failed: %v", res.Token, res.Err)
	}
	for _, fn := range handlers {
		fn(res)
	}
}
