package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/timetrip/pkg/cluster"
	"github.com/rubiojr/timetrip/pkg/query"
	"github.com/rubiojr/timetrip/pkg/realtime"
	"github.com/rubiojr/timetrip/pkg/timeline"
	"github.com/rubiojr/timetrip/pkg/version"
)

func (s *Server) HandleState(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.explorer.State())
}

func (s *Server) queryResponse() QueryResponse {
	q := s.explorer.Query.Query()
	return QueryResponse{Query: q, Request: q.Values().Encode()}
}

func (s *Server) HandleSetRange(w http.ResponseWriter, r *http.Request) {
	var req RangeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	start, end, err := query.ParseRange(req.StartYear.String(), req.EndYear.String())
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	if err := s.explorer.SetRange(start, end); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.queryResponse())
}

func (s *Server) HandleReset(w http.ResponseWriter, r *http.Request) {
	s.explorer.Reset()
	s.writeJSON(w, http.StatusAccepted, s.queryResponse())
}

func (s *Server) HandleReload(w http.ResponseWriter, r *http.Request) {
	s.explorer.Reload()
	s.writeJSON(w, http.StatusAccepted, s.queryResponse())
}

func (s *Server) HandleToggleClustering(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusAccepted, ToggleResponse{Clustering: s.explorer.ToggleClustering()})
}

func (s *Server) HandleSetFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if err := s.explorer.ApplyFilter(req.Lat, req.Lon, req.Radius); err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, s.queryResponse())
}

func (s *Server) HandleClearFilter(w http.ResponseWriter, r *http.Request) {
	s.explorer.ClearFilter()
	s.writeJSON(w, http.StatusAccepted, s.queryResponse())
}

func (s *Server) HandleSelectionMode(w http.ResponseWriter, r *http.Request) {
	var req SelectionModeRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Enabled {
		s.explorer.Spatial.EnterSelectionMode()
	} else {
		s.explorer.Spatial.ExitSelectionMode()
	}
	s.writeJSON(w, http.StatusOK, s.explorer.Selection.Snapshot())
}

func (s *Server) HandlePickPoint(w http.ResponseWriter, r *http.Request) {
	var req PickRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	applied, err := s.explorer.Spatial.PickPoint(req.Lat, req.Lon)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := PickResponse{Applied: applied}
	if f, ok := s.explorer.Spatial.Active(); ok && applied {
		resp.Filter = &f
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleExpandCluster(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid path", "Cluster id is required")
		return
	}

	// Ids from an older response are a no-op, not an error.
	c, known := s.explorer.Clusters.Lookup(id)
	expanded, err := s.explorer.ExpandCluster(id)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	resp := ExpandResponse{ClusterID: id, Expanded: expanded && known}
	if resp.Expanded {
		resp.StartYear, resp.EndYear = cluster.ExpandRange(c)
		s.logger.Debugf("cluster %s expanded to [%d, %d]", id, resp.StartYear, resp.EndYear)
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) HandleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest
	if !s.decodeBody(w, r, &req) {
		return
	}
	if req.Event.ID == "" {
		s.writeError(w, http.StatusBadRequest, "Invalid event", "Event id is required")
		return
	}
	start, end, err := s.explorer.SelectEvent(req.Event)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, SelectResponse{EventID: req.Event.ID, StartYear: start, EndYear: end})
}

func (s *Server) HandleEra(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		s.writeError(w, http.StatusBadRequest, "Missing query parameter", "Query parameter 'year' is required")
		return
	}
	year, err := timeline.ParseYear("year", raw)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	e := s.explorer.EraFor(year)
	s.writeJSON(w, http.StatusOK, EraResponse{Year: year, Era: e, Background: e.Theme.Background()})
}

// HandleStateStream upgrades to a WebSocket, writes an init frame with the
// full state and then relays hub events until the client goes away.
func (s *Server) HandleStateStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied with an HTTP error.
		s.logger.Warnf("state stream upgrade: %v", err)
		return
	}
	defer conn.Close()

	hub := s.explorer.Hub()
	id, events := hub.Register()
	defer hub.Unregister(id)
	s.logger.Debugf("state stream %d connected from %s", id, r.RemoteAddr)

	if err := conn.WriteJSON(InitMessage{Type: "init", State: s.explorer.State()}); err != nil {
		s.logger.Debugf("state stream %d: writing init: %v", id, err)
		return
	}

	// Client frames are ignored; reading is only needed to notice a close.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			s.logger.Debugf("state stream %d closed by client", id)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debugf("state stream %d: %v", id, err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(realtime.StateEvent{Type: realtime.TypeHeartbeat, Time: time.Now().UTC()}); err != nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
		Version:   version.APIVersion(),
		Listeners: s.explorer.Hub().Size(),
	}

	s.writeJSON(w, http.StatusOK, health)
}
