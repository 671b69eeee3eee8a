// Package client talks to the timeline HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// ListTimeout bounds the events list and search calls.
const ListTimeout = 10 * time.Second

// DefaultSearchLimit is used when Search is called with limit <= 0.
const DefaultSearchLimit = 20

// Client is safe for concurrent use.
type Client struct {
	base        *url.URL
	http        *http.Client
	listTimeout time.Duration
	logger      *log.Logger
}

// EventList is the response of GET /api/events.
type EventList struct {
	Count int              `json:"count"`
	Data  []timeline.Event `json:"data"`
}

// ImportStatus is the server's CSV import bookkeeping, passed through as-is.
type ImportStatus map[string]any

// New returns a client for the API rooted at baseURL. A nil httpClient uses
// a client with a 60 second timeout.
func New(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url %q must be http or https", baseURL)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	return &Client{base: u, http: httpClient, listTimeout: ListTimeout, logger: log.ForService("client")}, nil
}

// SetListTimeout overrides ListTimeout for this client.
func (c *Client) SetListTimeout(d time.Duration) {
	if d > 0 {
		c.listTimeout = d
	}
}

// BaseURL returns the API root.
func (c *Client) BaseURL() string {
	return c.base.String()
}

// Timeline fetches the chart figure for q.
func (c *Client) Timeline(ctx context.Context, q timeline.Query) (*timeline.Figure, error) {
	fig, _, err := c.TimelineRaw(ctx, q)
	return fig, err
}

// TimelineRaw is Timeline that also returns the undecoded response body.
func (c *Client) TimelineRaw(ctx context.Context, q timeline.Query) (*timeline.Figure, []byte, error) {
	if err := q.Validate(); err != nil {
		return nil, nil, err
	}
	body, err := c.do(ctx, "timeline", http.MethodGet, "/api/timeline", q.Values(), nil, 0)
	if err != nil {
		return nil, nil, err
	}
	fig, err := timeline.DecodeFigure(body)
	if err != nil {
		return nil, nil, fmt.Errorf("timeline: %w", err)
	}
	return fig, body, nil
}

// Events lists the events in [start, end].
func (c *Client) Events(ctx context.Context, start, end int64) (*EventList, error) {
	if err := timeline.ValidateRange(start, end); err != nil {
		return nil, err
	}
	v := url.Values{}
	v.Set("start_year", strconv.FormatInt(start, 10))
	v.Set("end_year", strconv.FormatInt(end, 10))
	body, err := c.do(ctx, "events", http.MethodGet, "/api/events", v, nil, c.listTimeout)
	if err != nil {
		return nil, err
	}
	var list EventList
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("events: decoding response: %w", err)
	}
	if list.Count == 0 {
		list.Count = len(list.Data)
	}
	return &list, nil
}

// Search runs a full text search on the server.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]timeline.Event, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &timeline.ValidationError{Field: "query", Value: query, Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	v := url.Values{}
	v.Set("q", query)
	v.Set("limit", strconv.Itoa(limit))
	body, err := c.do(ctx, "search", http.MethodGet, "/api/events/search", v, nil, c.listTimeout)
	if err != nil {
		return nil, err
	}
	var res struct {
		Data []timeline.Event `json:"data"`
	}
	if err := json.Unmarshal(body, &res); err != nil {
		return nil, fmt.Errorf("search: decoding response: %w", err)
	}
	return res.Data, nil
}

// CreateEvent adds an event. Title, category and start year are required.
func (c *Client) CreateEvent(ctx context.Context, ev timeline.Event) (*timeline.Event, error) {
	if strings.TrimSpace(ev.Title) == "" || strings.TrimSpace(ev.Category) == "" {
		return nil, &timeline.ValidationError{Reason: "please fill in all required fields (title, category, start year)"}
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	body, err := c.do(ctx, "create event", http.MethodPost, "/api/events", nil, payload, 0)
	if err != nil {
		return nil, err
	}

	var created timeline.Event
	if err := json.Unmarshal(body, &created); err != nil {
		return nil, fmt.Errorf("create event: decoding response: %w", err)
	}
	// Some servers wrap the created row.
	if created.ID == "" {
		var wrapped struct {
			Data timeline.Event `json:"data"`
		}
		if json.Unmarshal(body, &wrapped) == nil && wrapped.Data.ID != "" {
			created = wrapped.Data
		}
	}
	if created.ID == "" {
		created = ev
	}
	return &created, nil
}

// DeleteEvent removes an event.
func (c *Client) DeleteEvent(ctx context.Context, id timeline.EventID) error {
	if id == "" {
		return &timeline.ValidationError{Field: "id", Value: id, Reason: "must not be empty"}
	}
	_, err := c.do(ctx, "delete event", http.MethodDelete, "/api/events/"+url.PathEscape(string(id)), nil, nil, 0)
	return err
}

// ImportStatus returns the CSV import bookkeeping.
func (c *Client) ImportStatus(ctx context.Context) (ImportStatus, error) {
	body, err := c.do(ctx, "import status", http.MethodGet, "/api/import-status", nil, nil, 0)
	if err != nil {
		return nil, err
	}
	var st ImportStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("import status: decoding response: %w", err)
	}
	return st, nil
}

// ImportCSV asks the server to import its CSV file, optionally clearing the
// table first.
func (c *Client) ImportCSV(ctx context.Context, clear bool) (ImportStatus, error) {
	v := url.Values{}
	if clear {
		v.Set("clear", "true")
	}
	body, err := c.do(ctx, "import csv", http.MethodPost, "/api/import-csv", v, nil, 0)
	if err != nil {
		return nil, err
	}
	var st ImportStatus
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("import csv: decoding response: %w", err)
	}
	return st, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, payload []byte, timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("%s: creating request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.logger.Debugf("%s %s", method, u.String())
	resp, err := c.http.Do(req)
	if err != nil {
		if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &timeline.TimeoutError{Op: op, After: timeout}
		}
		return nil, &timeline.NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if timeout > 0 && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &timeline.TimeoutError{Op: op, After: timeout}
		}
		return nil, &timeline.NetworkError{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &timeline.APIError{Op: op, Status: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func errorMessage(body []byte) string {
	var e struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &e) == nil {
		if e.Error != "" {
			return e.Error
		}
		if e.Message != "" {
			return e.Message
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
