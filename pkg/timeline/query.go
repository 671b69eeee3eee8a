package timeline

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
)

// Default visible range, from the formation of the Earth to the present.
const (
	DefaultStartYear int64 = -5_000_000_000
	DefaultEndYear   int64 = 2025
)

// Representable year bounds.
const (
	MinYear int64 = -5_000_000_000
	MaxYear int64 = 10_000_000_000
)

// SpatialFilter is a point+radius constraint. Radius is in kilometres; the
// distance test itself runs on the server.
type SpatialFilter struct {
	Lat    float64 `json:"lat"`
	Lon    float64 `json:"lon"`
	Radius float64 `json:"radius"`
}

// NewSpatialFilter validates and builds a filter.
func NewSpatialFilter(lat, lon, radius float64) (SpatialFilter, error) {
	f := SpatialFilter{Lat: lat, Lon: lon, Radius: radius}
	if err := f.Validate(); err != nil {
		return SpatialFilter{}, err
	}
	return f, nil
}

// Validate checks geographic bounds.
func (f SpatialFilter) Validate() error {
	if math.IsNaN(f.Lat) || f.Lat < -90 || f.Lat > 90 {
		return &ValidationError{Field: "latitude", Value: f.Lat, Reason: "must be between -90 and 90"}
	}
	if math.IsNaN(f.Lon) || f.Lon < -180 || f.Lon > 180 {
		return &ValidationError{Field: "longitude", Value: f.Lon, Reason: "must be between -180 and 180"}
	}
	if math.IsNaN(f.Radius) || math.IsInf(f.Radius, 0) || f.Radius <= 0 {
		return &ValidationError{Field: "radius", Value: f.Radius, Reason: "must be a positive number"}
	}
	return nil
}

// Query is the state sent to GET /api/timeline.
type Query struct {
	StartYear  int64          `json:"start_year"`
	EndYear    int64          `json:"end_year"`
	Clustering bool           `json:"enable_clustering"`
	Spatial    *SpatialFilter `json:"spatial_filter,omitempty"`
}

// DefaultQuery returns the initial query of a session.
func DefaultQuery() Query {
	return Query{StartYear: DefaultStartYear, EndYear: DefaultEndYear, Clustering: true}
}

// ValidateRange checks start < end.
func ValidateRange(start, end int64) error {
	if start >= end {
		return &ValidationError{Field: "range", Value: fmt.Sprintf("[%d, %d]", start, end), Reason: "start year must be less than end year"}
	}
	return nil
}

// Validate checks the invariants enforced before dispatch.
func (q Query) Validate() error {
	if err := ValidateRange(q.StartYear, q.EndYear); err != nil {
		return err
	}
	if q.Spatial != nil {
		return q.Spatial.Validate()
	}
	return nil
}

// Span returns the visible range width in years.
func (q Query) Span() int64 {
	return q.EndYear - q.StartYear
}

// Midpoint returns the centre of the visible range.
func (q Query) Midpoint() float64 {
	return (float64(q.StartYear) + float64(q.EndYear)) / 2
}

// Values encodes the query as request parameters. Equal queries always
// produce identical encodings.
func (q Query) Values() url.Values {
	v := url.Values{}
	v.Set("start_year", strconv.FormatInt(q.StartYear, 10))
	v.Set("end_year", strconv.FormatInt(q.EndYear, 10))
	v.Set("enable_clustering", strconv.FormatBool(q.Clustering))
	if q.Spatial != nil {
		v.Set("filter_lat", formatFloat(q.Spatial.Lat))
		v.Set("filter_lon", formatFloat(q.Spatial.Lon))
		v.Set("filter_radius", formatFloat(q.Spatial.Radius))
	}
	return v
}

// Clone returns a deep copy.
func (q Query) Clone() Query {
	if q.Spatial != nil {
		f := *q.Spatial
		q.Spatial = &f
	}
	return q
}

func (q Query) String() string {
	s := fmt.Sprintf("[%d, %d] clustering=%t", q.StartYear, q.EndYear, q.Clustering)
	if q.Spatial != nil {
		s += fmt.Sprintf(" near=(%s,%s) r=%skm", formatFloat(q.Spatial.Lat), formatFloat(q.Spatial.Lon), formatFloat(q.Spatial.Radius))
	}
	return s
}

// ParseYear parses a year typed by the user. Surrounding whitespace and
// digit-group underscores or commas are accepted.
func ParseYear(field, text string) (int64, error) {
	clean := make([]byte, 0, len(text))
	for i := 0; i < len(text); i++ {
		switch c := text[i]; c {
		case ' ', '\t', '_', ',':
		default:
			clean = append(clean, c)
		}
	}
	if len(clean) == 0 {
		return 0, &ValidationError{Field: field, Value: text, Reason: "please enter a valid number"}
	}
	n, err := strconv.ParseInt(string(clean), 10, 64)
	if err != nil {
		f, ferr := strconv.ParseFloat(string(clean), 64)
		if ferr != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, &ValidationError{Field: field, Value: text, Reason: "please enter a valid number"}
		}
		var ok bool
		if n, ok = yearFromFloat(f); !ok {
			return 0, &ValidationError{Field: field, Value: text, Reason: fmt.Sprintf("years must be between %d and %d", MinYear, MaxYear)}
		}
	}
	if n < MinYear || n > MaxYear {
		return 0, &ValidationError{Field: field, Value: text, Reason: fmt.Sprintf("years must be between %d and %d", MinYear, MaxYear)}
	}
	return n, nil
}

// yearFromFloat truncates f to a whole year, reporting false when f is not
// finite or lies outside [MinYear, MaxYear].
func yearFromFloat(f float64) (int64, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < float64(MinYear) || f > float64(MaxYear) {
		return 0, false
	}
	return int64(math.Trunc(f)), true
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
