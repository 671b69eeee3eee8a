// Package selection holds the per-session selection state shared by the
// locator, the spatial filter and the page shell.
package selection

import (
	"sync"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

// Snapshot is a copy of the selection state.
type Snapshot struct {
	SelectedEvent      *timeline.Event         `json:"selected_event,omitempty"`
	MapFilter          *timeline.SpatialFilter `json:"map_filter,omitempty"`
	MapSelectionMode   bool                    `json:"map_selection_mode"`
	HighlightedEventID timeline.EventID        `json:"highlighted_event_id,omitempty"`
}

// State is safe for concurrent use. One State exists per session and is
// handed to every component that reads or writes it.
type State struct {
	mu   sync.RWMutex
	snap Snapshot
}

// New returns an empty selection state.
func New() *State {
	return &State{}
}

// Snapshot returns a deep copy of the state.
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := s.snap
	if out.SelectedEvent != nil {
		ev := *out.SelectedEvent
		out.SelectedEvent = &ev
	}
	if out.MapFilter != nil {
		f := *out.MapFilter
		out.MapFilter = &f
	}
	return out
}

// SelectEvent records the selected event.
func (s *State) SelectEvent(ev timeline.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.SelectedEvent = &ev
}

// SelectedEvent returns the selected event, if any.
func (s *State) SelectedEvent() (timeline.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.SelectedEvent == nil {
		return timeline.Event{}, false
	}
	return *s.snap.SelectedEvent, true
}

// SetHighlighted records the id of the highlighted event. An empty id clears
// it.
func (s *State) SetHighlighted(id timeline.EventID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.HighlightedEventID = id
}

// Highlighted returns the highlighted event id.
func (s *State) Highlighted() timeline.EventID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.HighlightedEventID
}

// SetMapFilter stores the active spatial filter.
func (s *State) SetMapFilter(f timeline.SpatialFilter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MapFilter = &f
}

// MapFilter returns the active spatial filter, if any.
func (s *State) MapFilter() (timeline.SpatialFilter, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snap.MapFilter == nil {
		return timeline.SpatialFilter{}, false
	}
	return *s.snap.MapFilter, true
}

// ClearMapFilter removes the spatial filter and leaves map selection mode.
func (s *State) ClearMapFilter() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MapFilter = nil
	s.snap.MapSelectionMode = false
}

// SetMapSelectionMode toggles click-to-filter on the map.
func (s *State) SetMapSelectionMode(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.MapSelectionMode = on
}

// MapSelectionMode reports whether map clicks set the filter.
func (s *State) MapSelectionMode() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.MapSelectionMode
}

// Reset clears everything. It is called when a new dataset is loaded.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap = Snapshot{}
}
