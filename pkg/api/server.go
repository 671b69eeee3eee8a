package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// DefaultHeartbeat is the interval between ping frames on state streams.
const DefaultHeartbeat = 30 * time.Second

type Server struct {
	explorer  *explorer.Explorer
	upgrader  websocket.Upgrader
	heartbeat time.Duration
	logger    *log.Logger
}

func NewServer(x *explorer.Explorer) *Server {
	return &Server{
		explorer:  x,
		heartbeat: DefaultHeartbeat,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The shell is served from anywhere on the local machine.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger: log.ForService("api"),
	}
}

// SetHeartbeat changes the ping interval of new state streams.
func (s *Server) SetHeartbeat(d time.Duration) {
	if d > 0 {
		s.heartbeat = d
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Errorf("Error encoding JSON response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, error, message string) {
	response := ErrorResponse{
		Error:   error,
		Message: message,
	}
	s.writeJSON(w, status, response)
}

// writeFailure maps explorer errors to HTTP statuses.
func (s *Server) writeFailure(w http.ResponseWriter, err error) {
	var verr *timeline.ValidationError
	if errors.As(err, &verr) {
		s.writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid input",
			Message: verr.Error(),
			Field:   verr.Field,
		})
		return
	}
	if errors.Is(err, timeline.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "Not found", err.Error())
		return
	}
	s.writeError(w, http.StatusInternalServerError, "Request failed", err.Error())
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	if err := dec.Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "Invalid request body", err.Error())
		return false
	}
	return true
}

func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
