package selection

import (
	"sync"
	"testing"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.SelectEvent(timeline.Event{ID: "e1", Title: "Rome"})
	s.SetMapFilter(timeline.SpatialFilter{Lat: 1, Lon: 2, Radius: 3})

	snap := s.Snapshot()
	snap.SelectedEvent.Title = "changed"
	snap.MapFilter.Radius = 99

	ev, ok := s.SelectedEvent()
	if !ok || ev.Title != "Rome" {
		t.Fatalf("selected event mutated through snapshot: %+v", ev)
	}
	f, ok := s.MapFilter()
	if !ok || f.Radius != 3 {
		t.Fatalf("map filter mutated through snapshot: %+v", f)
	}
}

func TestClearMapFilterLeavesSelectionMode(t *testing.T) {
	s := New()
	s.SetMapSelectionMode(true)
	s.SetMapFilter(timeline.SpatialFilter{Lat: 1, Lon: 2, Radius: 3})
	s.SetHighlighted("e1")

	s.ClearMapFilter()
	if s.MapSelectionMode() {
		t.Error("selection mode should be off")
	}
	if _, ok := s.MapFilter(); ok {
		t.Error("filter should be cleared")
	}
	if s.Highlighted() != "e1" {
		t.Error("clearing the filter must not touch the highlight")
	}

	s.Reset()
	if s.Highlighted() != "" {
		t.Error("Reset should clear the highlight")
	}
}

func TestConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.SetHighlighted(timeline.EventID("e"))
				s.SetMapSelectionMode(j%2 == 0)
				_ = s.Snapshot()
			}
		}(i)
	}
	wg.Wait()
}
