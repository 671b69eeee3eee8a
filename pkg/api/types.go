package api

import (
	"encoding/json"
	"time"

	"github.com/rubiojr/timetrip/pkg/era"
	"github.com/rubiojr/timetrip/pkg/explorer"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
	Listeners int       `json:"listeners"`
}

// RangeRequest accepts years as JSON numbers or numeric strings.
type RangeRequest struct {
	StartYear json.Number `json:"start_year"`
	EndYear   json.Number `json:"end_year"`
}

type QueryResponse struct {
	Query   timeline.Query `json:"query"`
	Request string         `json:"request"`
}

type ToggleResponse struct {
	Clustering bool `json:"clustering"`
}

type FilterRequest struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius"`
}

type PickRequest struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

type PickResponse struct {
	Applied bool                    `json:"applied"`
	Filter  *timeline.SpatialFilter `json:"filter,omitempty"`
}

type SelectionModeRequest struct {
	Enabled bool `json:"enabled"`
}

type ExpandResponse struct {
	ClusterID string `json:"cluster_id"`
	Expanded  bool   `json:"expanded"`
	StartYear int64  `json:"start_year,omitempty"`
	EndYear   int64  `json:"end_year,omitempty"`
}

type SelectRequest struct {
	Event timeline.Event `json:"event"`
}

type SelectResponse struct {
	EventID   timeline.EventID `json:"event_id"`
	StartYear int64            `json:"start_year"`
	EndYear   int64            `json:"end_year"`
}

type EraResponse struct {
	Year       int64   `json:"year"`
	Era        era.Era `json:"era"`
	Background string  `json:"background"`
}

// InitMessage is the first frame of a state stream.
type InitMessage struct {
	Type  string         `json:"type"`
	State explorer.State `json:"state"`
}
