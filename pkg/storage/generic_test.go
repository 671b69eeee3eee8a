package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

func openTestCache(t *testing.T) *EventCache {
	t.Helper()
	c, err := OpenEventCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("OpenEventCache: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func ptr(f float64) *float64 { return &f }

func sampleEvents() []timeline.Event {
	return []timeline.Event{
		{ID: "rome", Title: "Founding of Rome", Category: "Civilization", Continent: "Europe", StartYear: -753, EndYear: -753,
			Description: "Legendary founding by Romulus", Lat: ptr(41.89), Lon: ptr(12.49), LocationLabel: "Rome", Confidence: timeline.ConfidenceApproximate},
		{ID: "han", Title: "Han dynasty", Category: "Empire", Continent: "Asia", StartYear: -202, EndYear: 220},
		{ID: "kt", Title: "Cretaceous extinction", Category: "Geology", Continent: "Global", StartYear: -66_000_000, EndYear: -66_000_000},
		{Title: "no id is skipped", StartYear: 1},
	}
}

func TestStoreAndGetEvent(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	if err := c.StoreEvents(ctx, sampleEvents()); err != nil {
		t.Fatalf("StoreEvents: %v", err)
	}

	ev, err := c.GetEvent(ctx, "rome")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if ev.Title != "Founding of Rome" || ev.StartYear != -753 || ev.Confidence != timeline.ConfidenceApproximate {
		t.Fatalf("event = %+v", ev)
	}
	if loc, ok := ev.Location(); !ok || loc.Lat != 41.89 {
		t.Fatalf("location = %+v, %v", loc, ok)
	}

	han, err := c.GetEvent(ctx, "han")
	if err != nil {
		t.Fatal(err)
	}
	if han.Lat != nil || han.Confidence != timeline.ConfidenceExact {
		t.Fatalf("han = %+v", han)
	}

	_, err = c.GetEvent(ctx, "missing")
	if !errors.Is(err, timeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	st, err := c.Stats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if st.Events != 3 {
		t.Fatalf("Stats().Events = %d, want 3", st.Events)
	}
}

func TestUpsertKeepsSearchIndexInSync(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	_ = c.StoreEvents(ctx, sampleEvents())

	renamed := sampleEvents()[1]
	renamed.Title = "Western Han"
	if err := c.StoreEvent(ctx, renamed); err != nil {
		t.Fatal(err)
	}

	res, err := c.SearchEvents(ctx, "western", 10)
	if err != nil {
		t.Fatalf("SearchEvents: %v", err)
	}
	if len(res) != 1 || res[0].ID != "han" {
		t.Fatalf("search after update = %+v", res)
	}
	res, err = c.SearchEvents(ctx, "dynasty", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(res) != 0 {
		t.Fatalf("old title still indexed: %+v", res)
	}

	if err := c.DeleteEvent(ctx, "rome"); err != nil {
		t.Fatal(err)
	}
	res, _ = c.SearchEvents(ctx, "rome", 10)
	if len(res) != 0 {
		t.Fatalf("deleted event still indexed: %+v", res)
	}
}

func TestEventsInRange(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	_ = c.StoreEvents(ctx, sampleEvents())

	got, err := c.EventsInRange(ctx, -1000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "rome" || got[1].ID != "han" {
		t.Fatalf("EventsInRange = %+v", got)
	}

	// Han overlaps the range through its end year.
	got, _ = c.EventsInRange(ctx, 100, 2025)
	if len(got) != 1 || got[0].ID != "han" {
		t.Fatalf("overlap query = %+v", got)
	}
}

func TestSearchEvents(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	_ = c.StoreEvents(ctx, sampleEvents())

	tests := []struct {
		query string
		want  []timeline.EventID
	}{
		{"rom", []timeline.EventID{"rome"}},
		{"found rom", []timeline.EventID{"rome"}},
		{"geology", []timeline.EventID{"kt"}},
		{"category:empire", []timeline.EventID{"han"}},
		{"romulus", []timeline.EventID{"rome"}},
		{"atlantis", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			res, err := c.SearchEvents(ctx, tt.query, 0)
			if err != nil {
				t.Fatalf("SearchEvents(%q): %v", tt.query, err)
			}
			if len(res) != len(tt.want) {
				t.Fatalf("SearchEvents(%q) = %+v, want %v", tt.query, res, tt.want)
			}
			for i := range res {
				if res[i].ID != tt.want[i] {
					t.Fatalf("SearchEvents(%q)[%d] = %s, want %s", tt.query, i, res[i].ID, tt.want[i])
				}
			}
		})
	}

	if _, err := c.SearchEvents(ctx, "  ", 0); !timeline.IsValidation(err) {
		t.Fatalf("empty query should be rejected, got %v", err)
	}
}

func TestFTSQuery(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"rome", `"rome"*`},
		{"rom emp", `"rom"* "emp"*`},
		{`"roman empire"`, `"roman empire"`},
		{"rome OR han", "rome OR han"},
		{"title:rome", "title:rome"},
		{"pre*", "pre*"},
		{"  ", ""},
	}
	for _, tt := range tests {
		if got := ftsQuery(tt.in); got != tt.want {
			t.Errorf("ftsQuery(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

const snapshotBody = `{"data":[{"x":[-753],"y":["Europe"],"customdata":[["rome","Founding of Rome","Civilization","Europe",-753,-753]]}],"layout":{},"_metadata":{"total_events":1,"filtered_events":1,"start_year":-1000,"end_year":0}}`

func TestSnapshots(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	q := timeline.Query{StartYear: -1000, EndYear: 0, Clustering: true}

	if _, err := c.LoadSnapshot(ctx, q); !errors.Is(err, timeline.ErrNotFound) {
		t.Fatalf("expected ErrNotFound before saving, got %v", err)
	}
	if err := c.SaveSnapshot(ctx, q, []byte(snapshotBody)); err != nil {
		t.Fatalf("SaveSnapshot: %v", err)
	}

	snap, err := c.LoadSnapshot(ctx, q)
	if err != nil {
		t.Fatalf("LoadSnapshot: %v", err)
	}
	if string(snap.Body) != snapshotBody || snap.Size != len(snapshotBody) {
		t.Fatalf("snapshot body mismatch: %q", snap.Body)
	}
	fig, err := snap.Figure()
	if err != nil || fig.PointCount() != 1 {
		t.Fatalf("Figure() = %+v, %v", fig, err)
	}

	// Events inside the figure are cached for offline lookup.
	if _, err := c.GetEvent(ctx, "rome"); err != nil {
		t.Fatalf("figure events not cached: %v", err)
	}

	other := q
	other.Clustering = false
	if _, err := c.LoadSnapshot(ctx, other); !errors.Is(err, timeline.ErrNotFound) {
		t.Fatal("snapshots must be keyed by the full query")
	}

	c.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	n, err := c.PruneSnapshots(ctx, 24*time.Hour)
	if err != nil || n != 1 {
		t.Fatalf("PruneSnapshots = %d, %v", n, err)
	}
}

func TestManagerSeparatesAPIs(t *testing.T) {
	m := NewManager(t.TempDir())
	defer m.Close()

	a, err := m.GetCache("http://localhost:5000")
	if err != nil {
		t.Fatal(err)
	}
	again, _ := m.GetCache("http://localhost:5000/")
	if a != again {
		t.Fatal("same API should share a cache")
	}
	b, err := m.GetCache("https://timeline.example.com/v2")
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("different APIs must not share a cache")
	}
	if got := m.OpenCaches(); len(got) != 2 {
		t.Fatalf("OpenCaches() = %v", got)
	}
}

func TestCacheName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"http://localhost:5000", "localhost_5000"},
		{"https://Timeline.Example.com/v2/", "timeline.example.com_v2"},
		{"not a url", "default"},
	}
	for _, tt := range tests {
		if got := CacheName(tt.in); got != tt.want {
			t.Errorf("CacheName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestOptimizeKeepsSearchWorking(t *testing.T) {
	c := openTestCache(t)
	ctx := context.Background()
	if err := c.StoreEvents(ctx, sampleEvents()); err != nil {
		t.Fatal(err)
	}
	if err := c.Optimize(ctx); err != nil {
		t.Fatalf("Optimize: %v", err)
	}
	if err := c.Vacuum(ctx); err != nil {
		t.Fatalf("Vacuum: %v", err)
	}
	res, err := c.SearchEvents(ctx, "rome", 0)
	if err != nil || len(res) != 1 {
		t.Fatalf("search after optimize = %v, %v", res, err)
	}
}
