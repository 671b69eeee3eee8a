// Package spatial applies and clears the point+radius filter of a session.
// Distances are computed by the timeline server; this package only validates
// input and keeps the query, the selection state and the map view in step.
package spatial

import (
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/selection"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// DefaultRadius is the radius in kilometres used for map picks.
const DefaultRadius = 500

// MapView is the map widget of the page shell.
type MapView interface {
	Focus(lat, lon, radius float64)
}

// Querier is the part of the query manager the filter drives.
type Querier interface {
	SetSpatialFilter(lat, lon, radius float64) error
	ClearSpatialFilter()
}

// Filter couples the query manager, the selection state and the map.
type Filter struct {
	q             Querier
	sel           *selection.State
	view          MapView
	defaultRadius float64
	logger        *log.Logger
}

// New returns a filter. view may be nil; radius <= 0 selects DefaultRadius.
func New(q Querier, sel *selection.State, view MapView, radius float64) *Filter {
	if radius <= 0 {
		radius = DefaultRadius
	}
	if sel == nil {
		sel = selection.New()
	}
	return &Filter{q: q, sel: sel, view: view, defaultRadius: radius, logger: log.ForService("spatial")}
}

// DefaultRadius returns the radius used by PickPoint.
func (f *Filter) DefaultRadius() float64 {
	return f.defaultRadius
}

// Apply validates and activates a filter. Invalid input changes nothing.
func (f *Filter) Apply(lat, lon, radius float64) error {
	sf, err := timeline.NewSpatialFilter(lat, lon, radius)
	if err != nil {
		return err
	}
	if err := f.q.SetSpatialFilter(sf.Lat, sf.Lon, sf.Radius); err != nil {
		return err
	}
	f.sel.SetMapFilter(sf)
	if f.view != nil {
		f.view.Focus(sf.Lat, sf.Lon, sf.Radius)
	}
	f.logger.Debugf("filtering within %gkm of (%g, %g)", sf.Radius, sf.Lat, sf.Lon)
	return nil
}

// Clear removes the filter and leaves map selection mode.
func (f *Filter) Clear() {
	f.sel.ClearMapFilter()
	f.q.ClearSpatialFilter()
}

// EnterSelectionMode makes the next map click set the filter.
func (f *Filter) EnterSelectionMode() {
	f.sel.SetMapSelectionMode(true)
}

// ExitSelectionMode cancels a pending map pick.
func (f *Filter) ExitSelectionMode() {
	f.sel.SetMapSelectionMode(false)
}

// PickPoint handles a map click. Outside selection mode it does nothing and
// returns false. A successful pick leaves selection mode.
func (f *Filter) PickPoint(lat, lon float64) (bool, error) {
	if !f.sel.MapSelectionMode() {
		return false, nil
	}
	if err := f.Apply(lat, lon, f.defaultRadius); err != nil {
		return false, err
	}
	f.sel.SetMapSelectionMode(false)
	return true, nil
}

// Active returns the filter in effect, if any.
func (f *Filter) Active() (timeline.SpatialFilter, bool) {
	return f.sel.MapFilter()
}
