package api

import (
	"net/http"
)

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	// API routes with method-specific routing
	mux.HandleFunc("GET /api/state", s.HandleState)
	mux.HandleFunc("POST /api/range", s.HandleSetRange)
	mux.HandleFunc("POST /api/reset", s.HandleReset)
	mux.HandleFunc("POST /api/reload", s.HandleReload)
	mux.HandleFunc("POST /api/clustering/toggle", s.HandleToggleClustering)
	mux.HandleFunc("POST /api/filter", s.HandleSetFilter)
	mux.HandleFunc("DELETE /api/filter", s.HandleClearFilter)
	mux.HandleFunc("POST /api/map/selection-mode", s.HandleSelectionMode)
	mux.HandleFunc("POST /api/map/pick", s.HandlePickPoint)
	mux.HandleFunc("POST /api/clusters/{id}/expand", s.HandleExpandCluster)
	mux.HandleFunc("POST /api/select", s.HandleSelect)
	mux.HandleFunc("GET /api/era", s.HandleEra)
	mux.HandleFunc("GET /ws/state", s.HandleStateStream)
	mux.HandleFunc("GET /health", s.HandleHealth)
}
