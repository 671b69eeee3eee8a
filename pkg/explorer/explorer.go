// Package explorer assembles one timeline exploration session: the query
// manager, cluster expansion, chart surface, event locator, spatial filter
// and era backdrop, all sharing one selection state. Every state change is
// published on a realtime hub for the page shell.
package explorer

import (
	"context"
	"sync"
	"time"

	"github.com/rubiojr/timetrip/pkg/chart"
	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/cluster"
	"github.com/rubiojr/timetrip/pkg/crossfade"
	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/locate"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/query"
	"github.com/rubiojr/timetrip/pkg/realtime"
	"github.com/rubiojr/timetrip/pkg/selection"
	"github.com/rubiojr/timetrip/pkg/spatial"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// Options configure a session. Zero values select the package defaults.
type Options struct {
	Eras              era.Table
	StartYear         int64
	EndYear           int64
	NoClustering      bool
	CrossfadeDuration time.Duration
	ReducedMotion     bool
	ClusterGrace      time.Duration
	SettleDelay       time.Duration
	SpatialRadius     float64
	// MapView receives focus requests when a spatial filter is applied.
	MapView spatial.MapView
	// Hub receives state events. A private hub is created when nil.
	Hub     *realtime.Hub
	Clock   clock.Clock
	Context context.Context
}

// Explorer is safe for concurrent use. The components are exported for
// callers that need finer control than the convenience methods give.
type Explorer struct {
	Query     *query.Manager
	Clusters  *cluster.Engine
	Chart     *chart.Chart
	Locator   *locate.Locator
	Spatial   *spatial.Filter
	Crossfade *crossfade.Controller
	Selection *selection.State
	Layers    [2]*crossfade.MemoryLayer

	eras   era.Table
	hub    *realtime.Hub
	logger *log.Logger

	mu      sync.Mutex
	tier    timeline.Tier
	lastErr error
	cached  time.Time
}

// New wires a session around fetcher. Nothing is fetched until Start.
func New(fetcher query.Fetcher, opts Options) *Explorer {
	if len(opts.Eras) == 0 {
		opts.Eras = era.Default()
	}
	if opts.Hub == nil {
		opts.Hub = realtime.NewHub(0)
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}

	x := &Explorer{
		Selection: selection.New(),
		Chart:     chart.New(),
		eras:      opts.Eras,
		hub:       opts.Hub,
		logger:    log.ForService("explorer"),
	}
	x.Query = query.New(fetcher, query.Options{
		StartYear:    opts.StartYear,
		EndYear:      opts.EndYear,
		NoClustering: opts.NoClustering,
		Selection:    x.Selection,
		Context:      opts.Context,
	})
	x.Clusters = cluster.New(x.Query, cluster.Options{Grace: opts.ClusterGrace, Clock: opts.Clock})
	x.Locator = locate.New(x.Query, x.Selection, x.Chart, locate.Options{SettleDelay: opts.SettleDelay, Clock: opts.Clock})
	x.Spatial = spatial.New(x.Query, x.Selection, opts.MapView, opts.SpatialRadius)
	x.Layers[0] = crossfade.NewMemoryLayer("a", nil)
	x.Layers[1] = crossfade.NewMemoryLayer("b", nil)
	x.Crossfade = crossfade.New(opts.Eras, x.Layers[0], x.Layers[1], crossfade.Options{
		Duration:      opts.CrossfadeDuration,
		ReducedMotion: opts.ReducedMotion,
		Clock:         opts.Clock,
	})

	x.Query.OnResult(x.handleResult)
	x.Clusters.OnRestore(func(bool) { x.publishQuery() })
	x.Locator.OnHighlight(func(h locate.Highlight) {
		x.publish(realtime.TypeHighlight, HighlightInfo{
			EventID: h.EventID,
			Found:   h.Found,
			Markers: x.Chart.Highlights(),
		})
	})
	x.Crossfade.OnChange(func(ch crossfade.Change) {
		x.publish(realtime.TypeEra, EraInfo{
			From:       ch.From,
			Era:        ch.To,
			Year:       ch.Year,
			Instant:    ch.Instant,
			Background: ch.To.Theme.Background(),
			Layers:     [2]crossfade.LayerState{x.Layers[0].State(), x.Layers[1].State()},
		})
	})
	return x
}

// Hub returns the hub state events are published on.
func (x *Explorer) Hub() *realtime.Hub {
	return x.hub
}

// Eras returns the era table of the session.
func (x *Explorer) Eras() era.Table {
	return x.eras
}

// Start paints the initial backdrop and issues the first fetch.
func (x *Explorer) Start() {
	x.Crossfade.Init(crossfade.InitialYear)
	x.Query.Reload()
	x.publishQuery()
}

// Close cancels the in-flight fetch.
func (x *Explorer) Close() {
	x.Query.Close()
}

// Wait blocks until issued fetches have been handled.
func (x *Explorer) Wait() {
	x.Query.Wait()
}

// SetRange validates and applies a new visible range.
func (x *Explorer) SetRange(start, end int64) error {
	if err := x.Query.SetRange(start, end); err != nil {
		return err
	}
	x.publishQuery()
	return nil
}

// ToggleClustering flips the clustering switch and returns the new value.
func (x *Explorer) ToggleClustering() bool {
	v := x.Query.ToggleClustering()
	x.publishQuery()
	return v
}

// ApplyFilter restricts the timeline to events near a point. radius <= 0
// selects the configured default.
func (x *Explorer) ApplyFilter(lat, lon, radius float64) error {
	if radius <= 0 {
		radius = x.Spatial.DefaultRadius()
	}
	if err := x.Spatial.Apply(lat, lon, radius); err != nil {
		return err
	}
	x.publishQuery()
	return nil
}

// ClearFilter removes the spatial filter.
func (x *Explorer) ClearFilter() {
	x.Spatial.Clear()
	x.publishQuery()
}

// ExpandCluster zooms onto a cluster of the current figure. Unknown ids are
// ignored and reported with ok == false.
func (x *Explorer) ExpandCluster(id string) (ok bool, err error) {
	if _, found := x.Clusters.Lookup(id); !found {
		x.logger.Debugf("expand: cluster %s not found", id)
		return false, nil
	}
	if err := x.Clusters.Expand(id); err != nil {
		return true, err
	}
	x.publishQuery()
	return true, nil
}

// SelectEvent zooms onto ev and highlights it once the new figure is drawn.
func (x *Explorer) SelectEvent(ev timeline.Event) (int64, int64, error) {
	start, end, err := x.Locator.SelectEvent(ev)
	if err != nil {
		return 0, 0, err
	}
	x.publishQuery()
	return start, end, nil
}

// Reset returns to the default range and clears the selection.
func (x *Explorer) Reset() {
	x.Selection.Reset()
	x.Query.Reset()
	x.publishQuery()
}

// Reload refetches the current query.
func (x *Explorer) Reload() {
	x.Query.Reload()
}

// EraFor resolves the era of a year.
func (x *Explorer) EraFor(year int64) era.Era {
	return x.eras.Resolve(year)
}

func (x *Explorer) handleResult(res query.Result) {
	x.mu.Lock()
	x.tier = res.Tier
	x.lastErr = res.Err
	if res.Err == nil {
		x.cached = res.Figure.CachedAt
	}
	x.mu.Unlock()

	if res.Err != nil {
		x.hub.Publish(realtime.NewEvent(realtime.TypeError, res.Token, ErrorInfo{
			Message:   res.Err.Error(),
			Retryable: timeline.Retryable(res.Err),
		}))
		return
	}

	fig := res.Figure
	x.Clusters.Rebuild(fig.Metadata.Clusters)
	x.Chart.Render(fig)
	x.hub.Publish(realtime.NewEvent(realtime.TypeRender, res.Token, RenderInfo{
		Query:          res.Query,
		ZoomLevel:      res.Tier.Level,
		Points:         fig.PointCount(),
		Clusters:       x.Clusters.Clusters(),
		TotalEvents:    fig.Metadata.TotalEvents,
		FilteredEvents: fig.Metadata.FilteredEvents,
		Cached:         !fig.CachedAt.IsZero(),
	}))
	x.Locator.Rendered(x.Chart)
	x.Crossfade.ApplyEraForYear(res.Query.Midpoint())
}

func (x *Explorer) publishQuery() {
	q := x.Query.Query()
	x.publish(realtime.TypeQuery, QueryInfo{Query: q, Request: q.Values().Encode()})
}

func (x *Explorer) publish(typ string, data any) {
	x.hub.Publish(realtime.NewEvent(typ, 0, data))
}

// State is a point-in-time view of the whole session.
type State struct {
	Query     timeline.Query          `json:"query"`
	Request   string                  `json:"request"`
	ZoomLevel int                     `json:"zoom_level"`
	Era       crossfade.State         `json:"era"`
	Layers    [2]crossfade.LayerState `json:"layers"`
	Selection selection.Snapshot      `json:"selection"`
	Chart     chart.Snapshot          `json:"chart"`
	Clusters  []timeline.ClusterInfo  `json:"clusters"`
	CachedAt  *time.Time              `json:"cached_at,omitempty"`
	LastError string                  `json:"last_error,omitempty"`
}

// State returns the current session state.
func (x *Explorer) State() State {
	q := x.Query.Query()
	st := State{
		Query:     q,
		Request:   q.Values().Encode(),
		Era:       x.Crossfade.Snapshot(),
		Layers:    [2]crossfade.LayerState{x.Layers[0].State(), x.Layers[1].State()},
		Selection: x.Selection.Snapshot(),
		Chart:     x.Chart.Snapshot(),
		Clusters:  x.Clusters.Clusters(),
	}
	x.mu.Lock()
	st.ZoomLevel = x.tier.Level
	if x.lastErr != nil {
		st.LastError = x.lastErr.Error()
	}
	if !x.cached.IsZero() {
		t := x.cached
		st.CachedAt = &t
	}
	x.mu.Unlock()
	return st
}

// QueryInfo is the payload of "query" events.
type QueryInfo struct {
	Query   timeline.Query `json:"query"`
	Request string         `json:"request"`
}

// RenderInfo is the payload of "render" events.
type RenderInfo struct {
	Query          timeline.Query         `json:"query"`
	ZoomLevel      int                    `json:"zoom_level"`
	Points         int                    `json:"points"`
	Clusters       []timeline.ClusterInfo `json:"clusters"`
	TotalEvents    int                    `json:"total_events"`
	FilteredEvents int                    `json:"filtered_events"`
	Cached         bool                   `json:"cached"`
}

// EraInfo is the payload of "era" events.
type EraInfo struct {
	From       string                  `json:"from"`
	Era        era.Era                 `json:"era"`
	Year       float64                 `json:"year"`
	Instant    bool                    `json:"instant"`
	Background string                  `json:"background"`
	Layers     [2]crossfade.LayerState `json:"layers"`
}

// HighlightInfo is the payload of "highlight" events.
type HighlightInfo struct {
	EventID timeline.EventID `json:"event_id"`
	Found   bool             `json:"found"`
	Markers []chart.Marker   `json:"markers"`
}

// ErrorInfo is the payload of "error" events.
type ErrorInfo struct {
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}
