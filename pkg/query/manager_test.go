package query

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rubiojr/timetrip/pkg/selection"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

type recordingFetcher struct {
	mu      sync.Mutex
	queries []timeline.Query
	err     error
}

func (f *recordingFetcher) Timeline(_ context.Context, q timeline.Query) (*timeline.Figure, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries = append(f.queries, q)
	if f.err != nil {
		return nil, f.err
	}
	return &timeline.Figure{Metadata: timeline.Metadata{StartYear: q.StartYear, EndYear: q.EndYear}}, nil
}

func (f *recordingFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func TestSetRange(t *testing.T) {
	f := &recordingFetcher{}
	m := New(f, Options{})

	err := m.SetRange(100, 50)
	if !timeline.IsValidation(err) {
		t.Fatalf("SetRange(100, 50) = %v, want ValidationError", err)
	}
	if err := m.SetRange(50, 50); !timeline.IsValidation(err) {
		t.Fatalf("SetRange(50, 50) = %v, want ValidationError", err)
	}
	m.Wait()
	if f.calls() != 0 {
		t.Fatalf("invalid ranges must not be dispatched, got %d calls", f.calls())
	}

	if err := m.SetRange(50, 100); err != nil {
		t.Fatalf("SetRange(50, 100) = %v", err)
	}
	m.Wait()
	if f.calls() != 1 {
		t.Fatalf("expected exactly one fetch, got %d", f.calls())
	}
	req := m.BuildRequest()
	if req.Get("start_year") != "50" || req.Get("end_year") != "100" {
		t.Fatalf("request = %s", req.Encode())
	}
	if req.Has("filter_lat") {
		t.Fatalf("no filter expected: %s", req.Encode())
	}
}

func TestParseRange(t *testing.T) {
	if _, _, err := ParseRange("abc", "100"); !timeline.IsValidation(err) {
		t.Fatalf("non-numeric start: %v", err)
	}
	if _, _, err := ParseRange("100", "50"); !timeline.IsValidation(err) {
		t.Fatalf("inverted range: %v", err)
	}
	for _, in := range [][2]string{{"1e30", "100"}, {"-1e30", "100"}, {"0", "1e30"}} {
		if s, e, err := ParseRange(in[0], in[1]); !timeline.IsValidation(err) {
			t.Fatalf("ParseRange(%q, %q) = %d, %d, %v", in[0], in[1], s, e, err)
		}
	}
	s, e, err := ParseRange(" -3000 ", "2,025")
	if err != nil || s != -3000 || e != 2025 {
		t.Fatalf("ParseRange = %d, %d, %v", s, e, err)
	}
}

func TestSpatialFilter(t *testing.T) {
	f := &recordingFetcher{}
	sel := selection.New()
	m := New(f, Options{Selection: sel})

	if err := m.SetSpatialFilter(91, 0, 500); !timeline.IsValidation(err) {
		t.Fatalf("SetSpatialFilter(91, 0, 500) = %v", err)
	}
	if err := m.SetSpatialFilter(10, 20, 500); err != nil {
		t.Fatalf("SetSpatialFilter(10, 20, 500) = %v", err)
	}
	m.Wait()
	req := m.BuildRequest()
	if req.Get("filter_lat") != "10" || req.Get("filter_lon") != "20" || req.Get("filter_radius") != "500" {
		t.Fatalf("request = %s", req.Encode())
	}

	sel.SetMapSelectionMode(true)
	m.ClearSpatialFilter()
	m.Wait()
	if sel.MapSelectionMode() {
		t.Fatal("clearing the filter should leave map selection mode")
	}
	if m.Query().Spatial != nil {
		t.Fatal("filter should be cleared")
	}
	if f.calls() != 2 {
		t.Fatalf("expected 2 fetches, got %d", f.calls())
	}
}

func TestToggleAndRestoreClustering(t *testing.T) {
	f := &recordingFetcher{}
	m := New(f, Options{})
	if !m.Clustering() {
		t.Fatal("clustering should start enabled")
	}
	since := m.Toggles()
	if m.ToggleClustering() {
		t.Fatal("toggle should disable clustering")
	}
	m.Wait()
	if f.calls() != 1 {
		t.Fatalf("toggle should issue one fetch, got %d", f.calls())
	}
	if m.RestoreClustering(true, since) {
		t.Fatal("restore must not override a user toggle")
	}
	if m.Clustering() {
		t.Fatal("clustering changed despite the toggle")
	}

	since = m.Toggles()
	if !m.RestoreClustering(true, since) || !m.Clustering() {
		t.Fatal("restore should apply when nothing was toggled")
	}
	m.Wait()
	if f.calls() != 1 {
		t.Fatal("restore must not re-query")
	}
}

func TestResetAndReload(t *testing.T) {
	f := &recordingFetcher{}
	m := New(f, Options{})
	_ = m.SetRange(0, 10)
	_ = m.SetSpatialFilter(1, 1, 1)
	m.Reset()
	m.Wait()

	q := m.Query()
	if q.StartYear != timeline.DefaultStartYear || q.EndYear != timeline.DefaultEndYear || q.Spatial != nil || !q.Clustering {
		t.Fatalf("Reset() left %s", q)
	}
	m.Reload()
	m.Wait()
	if f.calls() != 4 {
		t.Fatalf("expected 4 fetches, got %d", f.calls())
	}
}

// gatedFetcher blocks each fetch until its gate is released, so tests can
// resolve requests out of order.
type gatedFetcher struct {
	mu    sync.Mutex
	gates map[int64]chan struct{}
}

func (g *gatedFetcher) gate(start int64) chan struct{} {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gates == nil {
		g.gates = map[int64]chan struct{}{}
	}
	ch, ok := g.gates[start]
	if !ok {
		ch = make(chan struct{})
		g.gates[start] = ch
	}
	return ch
}

func (g *gatedFetcher) Timeline(_ context.Context, q timeline.Query) (*timeline.Figure, error) {
	<-g.gate(q.StartYear)
	return &timeline.Figure{Metadata: timeline.Metadata{StartYear: q.StartYear}}, nil
}

func TestOutOfOrderResponsesDiscarded(t *testing.T) {
	g := &gatedFetcher{}
	m := New(g, Options{})

	var mu sync.Mutex
	var delivered []int64
	m.OnResult(func(r Result) {
		mu.Lock()
		defer mu.Unlock()
		delivered = append(delivered, r.Figure.Metadata.StartYear)
	})

	_ = m.SetRange(1, 100)
	_ = m.SetRange(2, 100)

	close(g.gate(2))
	close(g.gate(1))
	m.Wait()

	mu.Lock()
	defer mu.Unlock()
	if len(delivered) != 1 || delivered[0] != 2 {
		t.Fatalf("delivered = %v, want only the newest response", delivered)
	}
	last, ok := m.Last()
	if !ok || last.Query.StartYear != 2 {
		t.Fatalf("Last() = %+v", last)
	}
}

func TestFetchErrorDelivered(t *testing.T) {
	f := &recordingFetcher{err: &timeline.NetworkError{Op: "timeline", Err: errors.New("refused")}}
	m := New(f, Options{})

	var got error
	m.OnResult(func(r Result) { got = r.Err })
	m.Reload()
	m.Wait()
	if !timeline.Retryable(got) {
		t.Fatalf("expected a retryable error, got %v", got)
	}
}

func TestResultCarriesZoomTier(t *testing.T) {
	f := &recordingFetcher{}
	m := New(f, Options{})
	var tier timeline.Tier
	m.OnResult(func(r Result) { tier = r.Tier })
	_ = m.SetRange(0, 1000)
	m.Wait()
	if tier.Level != 4 {
		t.Fatalf("tier = %+v, want level 4", tier)
	}
}

func TestWaitOverlapsConcurrentMutations(t *testing.T) {
	gate := make(chan struct{})
	f := FetcherFunc(func(ctx context.Context, q timeline.Query) (*timeline.Figure, error) {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &timeline.Figure{}, nil
	})
	m := New(f, Options{})
	if err := m.SetRange(0, 100); err != nil {
		t.Fatal(err)
	}

	waited := make(chan struct{})
	go func() {
		m.Wait()
		close(waited)
	}()

	var wg sync.WaitGroup
	for i := int64(1); i <= 20; i++ {
		wg.Add(1)
		go func(start int64) {
			defer wg.Done()
			_ = m.SetRange(start, start+100)
		}(i)
	}
	wg.Wait()
	close(gate)

	select {
	case <-waited:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait did not return")
	}
	m.Wait()

	res, ok := m.Last()
	if !ok || res.Err != nil {
		t.Fatalf("Last() = %+v, %v", res, ok)
	}
	if q := m.Query(); res.Query.StartYear != q.StartYear || res.Query.Span() != 100 {
		t.Fatalf("delivered %s, current %s", res.Query, q)
	}
}
