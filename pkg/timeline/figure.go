package timeline

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// ClusterInfo describes a server-side aggregation of events in one time
// bucket. Cluster ids are only meaningful within the response that produced
// them.
type ClusterInfo struct {
	ID          string  `json:"id"`
	BucketStart float64 `json:"bucket_start"`
	BucketEnd   float64 `json:"bucket_end"`
	EventCount  int     `json:"event_count"`
	Category    string  `json:"category"`
	Continent   string  `json:"continent"`
	Events      []Event `json:"events,omitempty"`
}

// Metadata is the `_metadata` block of a timeline response.
type Metadata struct {
	TotalEvents    int                    `json:"total_events"`
	FilteredEvents int                    `json:"filtered_events"`
	StartYear      int64                  `json:"start_year"`
	EndYear        int64                  `json:"end_year"`
	Clusters       map[string]ClusterInfo `json:"cluster_info,omitempty"`
}

// Trace is one series of the chart figure.
type Trace struct {
	Name   string
	Mode   string
	Points []Point
}

// Point is one rendered data point with its customdata decoded into named
// fields.
type Point struct {
	Trace int
	Index int
	X     float64
	// XText holds the raw x value for date axes, where X is NaN.
	XText string
	Y     string
	// Identity is the id exactly as it appeared in the payload (string or
	// number).
	Identity  any
	Event     *Event
	ClusterID string
}

// IsCluster reports whether the point is an aggregate marker.
func (p Point) IsCluster() bool {
	return p.ClusterID != ""
}

// Figure is a decoded timeline response.
type Figure struct {
	Traces   []Trace
	Layout   json.RawMessage
	Metadata Metadata
	// CachedAt is set when the figure was served from the local snapshot
	// cache instead of the API.
	CachedAt time.Time
}

// PointCount returns the number of points across all traces.
func (f *Figure) PointCount() int {
	n := 0
	for _, t := range f.Traces {
		n += len(t.Points)
	}
	return n
}

// Points returns every point in trace order.
func (f *Figure) Points() []Point {
	out := make([]Point, 0, f.PointCount())
	for _, t := range f.Traces {
		out = append(out, t.Points...)
	}
	return out
}

type rawFigure struct {
	Data     []rawTrace      `json:"data"`
	Layout   json.RawMessage `json:"layout"`
	Metadata *rawMetadata    `json:"_metadata"`
}

type rawTrace struct {
	Name       string            `json:"name"`
	Mode       string            `json:"mode"`
	X          json.RawMessage   `json:"x"`
	Y          json.RawMessage   `json:"y"`
	CustomData []json.RawMessage `json:"customdata"`
}

type rawMetadata struct {
	TotalEvents    int                        `json:"total_events"`
	FilteredEvents int                        `json:"filtered_events"`
	StartYear      float64                    `json:"start_year"`
	EndYear        float64                    `json:"end_year"`
	Clusters       map[string]json.RawMessage `json:"cluster_info"`
}

type rawCluster struct {
	BucketStart float64 `json:"bucket_start"`
	BucketEnd   float64 `json:"bucket_end"`
	EventCount  int     `json:"event_count"`
	Category    string  `json:"category"`
	Continent   string  `json:"continent"`
	Events      []Event `json:"events"`
}

// DecodeFigure parses a timeline response body. Positional customdata rows
// ([id, title, category, continent, start_year, end_year, start_date,
// end_date, description]) and object rows are both accepted.
func DecodeFigure(body []byte) (*Figure, error) {
	var raw rawFigure
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decoding figure: %w", err)
	}

	fig := &Figure{Layout: raw.Layout}
	if raw.Metadata != nil {
		md, err := raw.Metadata.decode()
		if err != nil {
			return nil, err
		}
		fig.Metadata = md
	}

	for ti, rt := range raw.Data {
		xs, xTexts, err := decodeAxis(rt.X)
		if err != nil {
			return nil, fmt.Errorf("trace %d x: %w", ti, err)
		}
		_, ys, err := decodeAxis(rt.Y)
		if err != nil {
			return nil, fmt.Errorf("trace %d y: %w", ti, err)
		}
		trace := Trace{Name: rt.Name, Mode: rt.Mode}
		for i := range xs {
			p := Point{Trace: ti, Index: i, X: xs[i], XText: xTexts[i]}
			if i < len(ys) {
				p.Y = ys[i]
			}
			if i < len(rt.CustomData) {
				if err := decodeCustomData(rt.CustomData[i], &p, fig.Metadata.Clusters); err != nil {
					return nil, fmt.Errorf("trace %d point %d: %w", ti, i, err)
				}
			}
			trace.Points = append(trace.Points, p)
		}
		fig.Traces = append(fig.Traces, trace)
	}
	return fig, nil
}

func (m *rawMetadata) decode() (Metadata, error) {
	md := Metadata{
		TotalEvents:    m.TotalEvents,
		FilteredEvents: m.FilteredEvents,
		StartYear:      int64(m.StartYear),
		EndYear:        int64(m.EndYear),
	}
	if len(m.Clusters) == 0 {
		return md, nil
	}
	md.Clusters = make(map[string]ClusterInfo, len(m.Clusters))
	for id, rawInfo := range m.Clusters {
		var rc rawCluster
		if err := json.Unmarshal(rawInfo, &rc); err != nil {
			return Metadata{}, fmt.Errorf("decoding cluster %s: %w", id, err)
		}
		md.Clusters[id] = ClusterInfo{
			ID:          id,
			BucketStart: rc.BucketStart,
			BucketEnd:   rc.BucketEnd,
			EventCount:  rc.EventCount,
			Category:    rc.Category,
			Continent:   rc.Continent,
			Events:      rc.Events,
		}
	}
	return md, nil
}

func decodeCustomData(raw json.RawMessage, p *Point, clusters map[string]ClusterInfo) error {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	if raw[0] == '{' {
		var obj struct {
			ID        json.RawMessage `json:"id"`
			ClusterID string          `json:"cluster_id"`
			IsCluster bool            `json:"is_cluster"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return err
		}
		p.Identity = rawIdentity(obj.ID)
		if obj.IsCluster || obj.ClusterID != "" {
			p.ClusterID = obj.ClusterID
			if p.ClusterID == "" {
				p.ClusterID, _ = identityString(p.Identity)
			}
			return nil
		}
		var ev Event
		if err := json.Unmarshal(raw, &ev); err != nil {
			return err
		}
		p.Event = &ev
		return nil
	}

	var row []json.RawMessage
	if err := json.Unmarshal(raw, &row); err != nil {
		return err
	}
	if len(row) == 0 {
		return nil
	}
	p.Identity = rawIdentity(row[0])
	if id, ok := identityString(p.Identity); ok {
		if _, isCluster := clusters[id]; isCluster {
			p.ClusterID = id
			return nil
		}
	}
	p.Event = eventFromRow(row)
	return nil
}

func eventFromRow(row []json.RawMessage) *Event {
	field := func(i int) json.RawMessage {
		if i < len(row) {
			return row[i]
		}
		return nil
	}
	var ev Event
	_ = ev.ID.UnmarshalJSON(field(0))
	ev.Title = rawString(field(1))
	ev.Category = rawString(field(2))
	ev.Continent = rawString(field(3))
	ev.StartYear = rawInt(field(4))
	if end := field(5); end != nil && !bytes.Equal(bytes.TrimSpace(end), []byte("null")) {
		ev.EndYear = rawInt(end)
	} else {
		ev.EndYear = ev.StartYear
	}
	ev.StartDate = rawString(field(6))
	ev.EndDate = rawString(field(7))
	ev.Description = rawString(field(8))
	ev.Confidence = ConfidenceExact
	return &ev
}

func rawIdentity(raw json.RawMessage) any {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}
	if raw[0] == '"' {
		var s string
		if json.Unmarshal(raw, &s) == nil {
			return s
		}
		return nil
	}
	var n json.Number
	if json.Unmarshal(raw, &n) == nil {
		return n
	}
	return nil
}

func rawString(raw json.RawMessage) string {
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	return ""
}

func rawInt(raw json.RawMessage) int64 {
	var f float64
	if json.Unmarshal(raw, &f) != nil {
		return 0
	}
	y, _ := yearFromFloat(f)
	return y
}

// decodeAxis reads a Plotly axis array. Numbers land in the float slice,
// strings (categories, ISO dates) in the text slice with NaN as the number.
// Binary typed arrays ({"dtype": "f8", "bdata": "..."}) are also accepted.
func decodeAxis(raw json.RawMessage) ([]float64, []string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil, nil
	}
	if raw[0] == '{' {
		nums, err := decodeTypedArray(raw)
		if err != nil {
			return nil, nil, err
		}
		return nums, make([]string, len(nums)), nil
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, nil, err
	}
	nums := make([]float64, len(items))
	texts := make([]string, len(items))
	for i, item := range items {
		item = bytes.TrimSpace(item)
		if len(item) > 0 && item[0] == '"' {
			_ = json.Unmarshal(item, &texts[i])
			nums[i] = math.NaN()
			continue
		}
		if err := json.Unmarshal(item, &nums[i]); err != nil {
			nums[i] = math.NaN()
		}
		texts[i] = string(item)
	}
	return nums, texts, nil
}

func decodeTypedArray(raw json.RawMessage) ([]float64, error) {
	var ta struct {
		DType string `json:"dtype"`
		BData string `json:"bdata"`
	}
	if err := json.Unmarshal(raw, &ta); err != nil {
		return nil, err
	}
	buf, err := base64.StdEncoding.DecodeString(ta.BData)
	if err != nil {
		return nil, fmt.Errorf("typed array: %w", err)
	}

	var width int
	var read func([]byte) float64
	le := binary.LittleEndian
	switch ta.DType {
	case "f8":
		width, read = 8, func(b []byte) float64 { return math.Float64frombits(le.Uint64(b)) }
	case "f4":
		width, read = 4, func(b []byte) float64 { return float64(math.Float32frombits(le.Uint32(b))) }
	case "i4":
		width, read = 4, func(b []byte) float64 { return float64(int32(le.Uint32(b))) }
	case "u4":
		width, read = 4, func(b []byte) float64 { return float64(le.Uint32(b)) }
	case "i2":
		width, read = 2, func(b []byte) float64 { return float64(int16(le.Uint16(b))) }
	case "u2":
		width, read = 2, func(b []byte) float64 { return float64(le.Uint16(b)) }
	case "i1":
		width, read = 1, func(b []byte) float64 { return float64(int8(b[0])) }
	case "u1":
		width, read = 1, func(b []byte) float64 { return float64(b[0]) }
	default:
		return nil, fmt.Errorf("typed array: unsupported dtype %q", ta.DType)
	}
	if len(buf)%width != 0 {
		return nil, fmt.Errorf("typed array: %d bytes is not a multiple of %d", len(buf), width)
	}
	out := make([]float64, 0, len(buf)/width)
	for i := 0; i < len(buf); i += width {
		out = append(out, read(buf[i:i+width]))
	}
	return out, nil
}
