package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

// DefaultSearchLimit caps offline search results when no limit is given.
const DefaultSearchLimit = 20

// SearchEvents runs a full text search over cached titles, categories,
// continents and descriptions, best matches first.
func (s *EventCache) SearchEvents(ctx context.Context, query string, limit int) ([]timeline.Event, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, &timeline.ValidationError{Field: "query", Value: query, Reason: "must not be empty"}
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.title, e.category, e.continent, e.start_year, e.end_year, e.description,
			e.start_date, e.end_date, e.lat, e.lon, e.location_label, e.geometry, e.location_confidence
		FROM events_fts
		JOIN events e ON e.rowid = events_fts.rowid
		WHERE events_fts MATCH ?
		ORDER BY bm25(events_fts), e.start_year
		LIMIT ?
	`, match, limit)
	if err != nil {
		return nil, fmt.Errorf("searching events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ftsQuery turns user input into an FTS5 MATCH expression. Input that
// already uses FTS5 syntax (quotes, column filters, operators, prefixes) is
// passed through. Plain words become quoted prefix terms, so "rom emp"
// matches "Roman Empire".
func ftsQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return ""
	}
	if strings.ContainsAny(q, `"*:()^`) {
		return q
	}
	fields := strings.Fields(q)
	for _, f := range fields {
		switch f {
		case "AND", "OR", "NOT", "NEAR":
			return q
		}
	}
	terms := make([]string, len(fields))
	for i, f := range fields {
		terms[i] = `"` + f + `"*`
	}
	return strings.Join(terms, " ")
}
