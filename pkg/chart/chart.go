// Package chart holds the rendered timeline figure and the highlight overlay
// drawn on top of it.
package chart

import (
	"sync"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

// Marker is an overlay drawn at a point of the chart.
type Marker struct {
	EventID timeline.EventID `json:"event_id"`
	X       float64          `json:"x"`
	XText   string           `json:"x_text,omitempty"`
	Y       string           `json:"y"`
	Trace   int              `json:"trace"`
	Index   int              `json:"index"`
}

// Chart is safe for concurrent use.
type Chart struct {
	mu       sync.RWMutex
	fig      *timeline.Figure
	overlay  []Marker
	renders  uint64
	onChange func(Snapshot)
}

// Snapshot describes what the chart currently shows.
type Snapshot struct {
	Renders        uint64   `json:"renders"`
	Points         int      `json:"points"`
	Clusters       int      `json:"clusters"`
	TotalEvents    int      `json:"total_events"`
	FilteredEvents int      `json:"filtered_events"`
	Highlights     []Marker `json:"highlights"`
}

// New returns an empty chart.
func New() *Chart {
	return &Chart{}
}

// OnChange registers a callback run after renders and overlay changes.
func (c *Chart) OnChange(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// Render replaces the figure. Overlays belong to the previous figure and are
// dropped.
func (c *Chart) Render(fig *timeline.Figure) {
	c.mu.Lock()
	c.fig = fig
	c.overlay = nil
	c.renders++
	snap, fn := c.snapshotLocked(), c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Figure returns the rendered figure, or nil before the first render.
func (c *Chart) Figure() *timeline.Figure {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.fig
}

// Points returns every rendered point.
func (c *Chart) Points() []timeline.Point {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.fig == nil {
		return nil
	}
	return c.fig.Points()
}

// ClearHighlight removes every overlay marker.
func (c *Chart) ClearHighlight() {
	c.mu.Lock()
	if len(c.overlay) == 0 {
		c.mu.Unlock()
		return
	}
	c.overlay = nil
	snap, fn := c.snapshotLocked(), c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// AddHighlight draws a marker at p.
func (c *Chart) AddHighlight(p timeline.Point) {
	m := Marker{X: p.X, XText: p.XText, Y: p.Y, Trace: p.Trace, Index: p.Index}
	if p.Event != nil {
		m.EventID = p.Event.ID
	}
	c.mu.Lock()
	c.overlay = append(c.overlay, m)
	snap, fn := c.snapshotLocked(), c.onChange
	c.mu.Unlock()
	if fn != nil {
		fn(snap)
	}
}

// Highlights returns the overlay markers.
func (c *Chart) Highlights() []Marker {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Marker(nil), c.overlay...)
}

// Snapshot returns a summary of the chart.
func (c *Chart) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshotLocked()
}

func (c *Chart) snapshotLocked() Snapshot {
	s := Snapshot{Renders: c.renders, Highlights: append([]Marker{}, c.overlay...)}
	if c.fig == nil {
		return s
	}
	for _, p := range c.fig.Points() {
		s.Points++
		if p.IsCluster() {
			s.Clusters++
		}
	}
	s.TotalEvents = c.fig.Metadata.TotalEvents
	s.FilteredEvents = c.fig.Metadata.FilteredEvents
	return s
}
