package integration_tests

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rubiojr/timetrip/pkg/api"
	"github.com/rubiojr/timetrip/pkg/client"
	"github.com/rubiojr/timetrip/pkg/clock"
	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/realtime"
	"github.com/rubiojr/timetrip/pkg/storage"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// TimelineAPI is an in-memory stand-in for the timeline API server. Wide
// ranges are answered with one cluster, narrow ones with single events.
type TimelineAPI struct {
	mu       sync.Mutex
	down     bool
	requests []timeline.Query
}

func (a *TimelineAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/api/timeline" {
		http.NotFound(w, r)
		return
	}
	v := r.URL.Query()
	q := timeline.Query{Clustering: v.Get("enable_clustering") != "false"}
	fmt.Sscan(v.Get("start_year"), &q.StartYear)
	fmt.Sscan(v.Get("end_year"), &q.EndYear)

	a.mu.Lock()
	a.requests = append(a.requests, q)
	down := a.down
	a.mu.Unlock()

	if down {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "upstream database offline"})
		return
	}
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprint(w, FigureFor(q))
}

// SetDown makes every later request fail with a 5xx status.
func (a *TimelineAPI) SetDown(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.down = v
}

// Requests returns the queries received so far.
func (a *TimelineAPI) Requests() []timeline.Query {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]timeline.Query(nil), a.requests...)
}

// FigureFor builds the timeline response for q.
func FigureFor(q timeline.Query) string {
	points, ys := `[-2950]`, `["Europe"]`
	rows := `[["e1","Bronze Age collapse","War","Europe",-3000,-2900]]`
	clusters := ""
	if q.Clustering && q.Span() > 1_000_000 {
		points, ys = `[-2950, -1000000]`, `["Europe", "Global"]`
		rows = `[["e1","Bronze Age collapse","War","Europe",-3000,-2900],["c1"]]`
		clusters = `,"cluster_info":{"c1":{"bucket_start":-2000000,"bucket_end":-1000,"event_count":40,"category":"Geology","continent":"Global"}}`
	}
	return fmt.Sprintf(`{"data":[{"type":"scatter","mode":"markers","x":%s,"y":%s,"customdata":%s}],"layout":{},`+
		`"_metadata":{"total_events":41,"filtered_events":41,"start_year":%d,"end_year":%d%s}}`,
		points, ys, rows, q.StartYear, q.EndYear, clusters)
}

// Shell is a page shell server wired the way the shell command wires it,
// with a fake clock driving every timer.
type Shell struct {
	API      *TimelineAPI
	Storage  *storage.Manager
	Explorer *explorer.Explorer
	Clock    *clock.Fake
	Server   *httptest.Server
}

// NewShell starts a page shell against a fresh TimelineAPI and waits for the
// initial figure.
func NewShell(t *testing.T) *Shell {
	t.Helper()

	timelineAPI := &TimelineAPI{}
	apiServer := httptest.NewServer(timelineAPI)
	t.Cleanup(apiServer.Close)

	c, err := client.New(apiServer.URL, nil)
	if err != nil {
		t.Fatalf("creating client: %v", err)
	}

	manager := storage.NewManager(t.TempDir())
	t.Cleanup(func() {
		if err := manager.Close(); err != nil {
			t.Logf("Warning: failed to close storage manager: %v", err)
		}
	})
	cache, err := manager.GetCache(apiServer.URL)
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}

	fake := clock.NewFake()
	x := explorer.New(explorer.NewCachedFetcher(c, cache), explorer.Options{
		Hub:           realtime.NewHub(256),
		Clock:         fake,
		ReducedMotion: true,
	})
	t.Cleanup(x.Close)

	server := api.NewServer(x)
	mux := http.NewServeMux()
	server.RegisterRoutes(mux)
	shell := httptest.NewServer(api.CorsMiddleware(mux))
	t.Cleanup(shell.Close)

	x.Start()
	x.Wait()

	return &Shell{API: timelineAPI, Storage: manager, Explorer: x, Clock: fake, Server: shell}
}
