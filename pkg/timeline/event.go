package timeline

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Location confidence tags.
const (
	ConfidenceExact       = "exact"
	ConfidenceApproximate = "approximate"
	ConfidenceRegion      = "region"
	ConfidenceUnknown     = "unknown"
)

// EventID is an event identity. The timeline API emits ids as strings, but
// rendered chart data and older exports may carry the same id as a JSON
// number, so decoding accepts both.
type EventID string

func (id *EventID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = EventID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("event id: %w", err)
	}
	*id = EventID(normalizeNumber(n.String()))
	return nil
}

// Matches reports whether a raw identity taken from chart data denotes this
// id. Numbers and numeric strings compare by value, so 42, 42.0 and "42" all
// match EventID("42").
func (id EventID) Matches(v any) bool {
	if id == "" || v == nil {
		return false
	}
	other, ok := identityString(v)
	if !ok {
		return false
	}
	if other == string(id) {
		return true
	}
	return normalizeNumber(other) == normalizeNumber(string(id))
}

func identityString(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t), true
	case EventID:
		return string(t), true
	case json.Number:
		return t.String(), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32), true
	case int:
		return strconv.Itoa(t), true
	case int32:
		return strconv.FormatInt(int64(t), 10), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case uint64:
		return strconv.FormatUint(t, 10), true
	case fmt.Stringer:
		return t.String(), true
	}
	return "", false
}

// normalizeNumber rewrites numeric strings to their shortest decimal form.
// Non-numeric input is returned unchanged.
func normalizeNumber(s string) string {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return s
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// GeoPoint is a WGS84 coordinate.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Event is a timeline entry as served by the timeline API.
type Event struct {
	ID            EventID  `json:"id"`
	Title         string   `json:"title"`
	Category      string   `json:"category"`
	Continent     string   `json:"continent"`
	StartYear     int64    `json:"start_year"`
	EndYear       int64    `json:"end_year"`
	Description   string   `json:"description,omitempty"`
	StartDate     string   `json:"start_date,omitempty"`
	EndDate       string   `json:"end_date,omitempty"`
	Lat           *float64 `json:"lat,omitempty"`
	Lon           *float64 `json:"lon,omitempty"`
	LocationLabel string   `json:"location_label,omitempty"`
	Geometry      string   `json:"geometry,omitempty"`
	Confidence    string   `json:"location_confidence,omitempty"`
}

// UnmarshalJSON fills defaults the API leaves out: a missing end year means
// a single-year event and a missing continent means "Global".
func (e *Event) UnmarshalJSON(data []byte) error {
	type alias Event
	aux := struct {
		*alias
		EndYear     *float64 `json:"end_year"`
		StartYear   *float64 `json:"start_year"`
		Description *string  `json:"description"`
	}{alias: (*alias)(e)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if aux.StartYear != nil {
		y, ok := yearFromFloat(*aux.StartYear)
		if !ok {
			return fmt.Errorf("start_year %g out of range", *aux.StartYear)
		}
		e.StartYear = y
	}
	if aux.EndYear != nil {
		y, ok := yearFromFloat(*aux.EndYear)
		if !ok {
			return fmt.Errorf("end_year %g out of range", *aux.EndYear)
		}
		e.EndYear = y
	} else {
		e.EndYear = e.StartYear
	}
	if aux.Description != nil {
		e.Description = *aux.Description
	}
	if e.Continent == "" {
		e.Continent = "Global"
	}
	if e.Confidence == "" {
		e.Confidence = ConfidenceExact
	}
	return nil
}

// Location returns the event coordinate when both components are known.
func (e Event) Location() (GeoPoint, bool) {
	if e.Lat == nil || e.Lon == nil {
		return GeoPoint{}, false
	}
	return GeoPoint{Lat: *e.Lat, Lon: *e.Lon}, true
}

// Span returns the event duration in years.
func (e Event) Span() int64 {
	if e.EndYear < e.StartYear {
		return 0
	}
	return e.EndYear - e.StartYear
}

func (e Event) String() string {
	if e.EndYear != e.StartYear {
		return fmt.Sprintf("%s (%s) %d..%d", e.Title, e.ID, e.StartYear, e.EndYear)
	}
	return fmt.Sprintf("%s (%s) %d", e.Title, e.ID, e.StartYear)
}
