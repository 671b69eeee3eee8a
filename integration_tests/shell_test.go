package integration_tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rubiojr/timetrip/pkg/explorer"
)

type streamMessage struct {
	Type  string          `json:"type"`
	Token uint64          `json:"token"`
	Data  json.RawMessage `json:"data"`
	State json.RawMessage `json:"state"`
}

func dialState(t *testing.T, s *Shell) *websocket.Conn {
	t.Helper()
	u, _ := url.Parse(s.Server.URL)
	u.Scheme = "ws"
	u.Path = "/ws/state"
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	var init streamMessage
	if err := conn.ReadJSON(&init); err != nil || init.Type != "init" {
		t.Fatalf("init frame = %+v, %v", init, err)
	}
	return conn
}

// waitFor reads frames until one of type typ satisfies match.
func waitFor(t *testing.T, conn *websocket.Conn, typ string, match func(json.RawMessage) bool) json.RawMessage {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	_ = conn.SetReadDeadline(deadline)
	for {
		var msg streamMessage
		if err := conn.ReadJSON(&msg); err != nil {
			t.Fatalf("waiting for %s: %v", typ, err)
		}
		if msg.Type == typ && (match == nil || match(msg.Data)) {
			return msg.Data
		}
	}
}

func post(t *testing.T, s *Shell, path, body string) int {
	t.Helper()
	resp, err := http.Post(s.Server.URL+path, "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	return resp.StatusCode
}

func renderOf(raw json.RawMessage) explorer.RenderInfo {
	var r explorer.RenderInfo
	_ = json.Unmarshal(raw, &r)
	return r
}

func TestShellInitialLoad(t *testing.T) {
	s := NewShell(t)

	st := s.Explorer.State()
	if st.Era.Era != "Proterozoic" {
		t.Fatalf("initial era = %s", st.Era.Era)
	}
	if len(st.Clusters) != 1 || st.Clusters[0].ID != "c1" {
		t.Fatalf("clusters = %+v", st.Clusters)
	}
	if reqs := s.API.Requests(); len(reqs) != 1 || !reqs[0].Clustering {
		t.Fatalf("requests = %+v", reqs)
	}
}

func TestShellRangeChangeStreamsRenderAndEra(t *testing.T) {
	s := NewShell(t)
	conn := dialState(t, s)

	if code := post(t, s, "/api/range", `{"start_year":-4000,"end_year":"-1900"}`); code != http.StatusAccepted {
		t.Fatalf("POST /api/range = %d", code)
	}

	data := waitFor(t, conn, "render", func(raw json.RawMessage) bool {
		return renderOf(raw).Query.StartYear == -4000
	})
	if r := renderOf(data); r.Points != 1 || len(r.Clusters) != 0 || r.Cached {
		t.Fatalf("render = %+v", r)
	}

	eraData := waitFor(t, conn, "era", nil)
	var ev explorer.EraInfo
	if err := json.Unmarshal(eraData, &ev); err != nil {
		t.Fatal(err)
	}
	if ev.Era.Name != "Human Era" || !ev.Instant {
		t.Fatalf("era event = %+v", ev)
	}
}

func TestShellExpandClusterThenRestore(t *testing.T) {
	s := NewShell(t)
	conn := dialState(t, s)

	if code := post(t, s, "/api/clusters/c1/expand", ""); code != http.StatusOK {
		t.Fatalf("expand = %d", code)
	}
	waitFor(t, conn, "render", func(raw json.RawMessage) bool {
		return !renderOf(raw).Query.Clustering
	})

	before := len(s.API.Requests())
	s.Clock.Advance(2 * time.Second)
	if !s.Explorer.Query.Clustering() {
		t.Fatal("clustering not restored after the grace period")
	}
	s.Explorer.Wait()
	if after := len(s.API.Requests()); after != before {
		t.Fatalf("restoring clustering refetched (%d -> %d requests)", before, after)
	}
}

func TestShellSelectEventHighlights(t *testing.T) {
	s := NewShell(t)
	conn := dialState(t, s)

	body := `{"event":{"id":"e1","title":"Bronze Age collapse","category":"War","start_year":-3000,"end_year":-2900}}`
	if code := post(t, s, "/api/select", body); code != http.StatusAccepted {
		t.Fatalf("select = %d", code)
	}

	data := waitFor(t, conn, "highlight", nil)
	var h explorer.HighlightInfo
	if err := json.Unmarshal(data, &h); err != nil {
		t.Fatal(err)
	}
	if !h.Found || h.EventID != "e1" || len(h.Markers) != 1 {
		t.Fatalf("highlight = %+v", h)
	}
	if got := s.Explorer.Selection.Highlighted(); got != "e1" {
		t.Fatalf("highlighted = %q", got)
	}
}

func TestShellFallsBackToSnapshot(t *testing.T) {
	s := NewShell(t)
	conn := dialState(t, s)

	s.API.SetDown(true)
	if code := post(t, s, "/api/reload", ""); code != http.StatusAccepted {
		t.Fatalf("reload = %d", code)
	}
	data := waitFor(t, conn, "render", nil)
	if r := renderOf(data); !r.Cached || len(r.Clusters) != 1 {
		t.Fatalf("cached render = %+v", r)
	}
	s.Explorer.Wait()
	if st := s.Explorer.State(); st.CachedAt == nil {
		t.Fatal("state does not report the snapshot time")
	}

	// Ranges never fetched before surface the API error.
	if code := post(t, s, "/api/range", `{"start_year":0,"end_year":100}`); code != http.StatusAccepted {
		t.Fatalf("range = %d", code)
	}
	errData := waitFor(t, conn, "error", nil)
	var info explorer.ErrorInfo
	if err := json.Unmarshal(errData, &info); err != nil {
		t.Fatal(err)
	}
	if !info.Retryable || !strings.Contains(info.Message, "502") {
		t.Fatalf("error event = %+v", info)
	}
}
