package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rubiojr/timetrip/pkg/timeline"
)

const encodingZstd = "zstd"

// Snapshot is a cached timeline response.
type Snapshot struct {
	Query     timeline.Query
	Body      []byte
	FetchedAt time.Time
	// Size is the uncompressed body size.
	Size int
}

// Figure decodes the snapshot body.
func (s *Snapshot) Figure() (*timeline.Figure, error) {
	return timeline.DecodeFigure(s.Body)
}

// SnapshotKey is the cache key of a query.
func SnapshotKey(q timeline.Query) string {
	return q.Values().Encode()
}

// SaveSnapshot stores the raw timeline response for q, zstd compressed.
// Events carried by the figure are cached as well.
func (s *EventCache) SaveSnapshot(ctx context.Context, q timeline.Query, body []byte) error {
	compressed := s.encoder.EncodeAll(body, make([]byte, 0, len(body)/4))
	clustering := 0
	if q.Clustering {
		clustering = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshots (query_key, start_year, end_year, clustering, encoding, size, body, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(query_key) DO UPDATE SET
			encoding = excluded.encoding,
			size = excluded.size,
			body = excluded.body,
			fetched_at = excluded.fetched_at
	`, SnapshotKey(q), q.StartYear, q.EndYear, clustering, encodingZstd, len(body), compressed, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("saving snapshot: %w", err)
	}
	s.logger.Debugf("snapshot %s: %d bytes (%d compressed)", SnapshotKey(q), len(body), len(compressed))

	fig, err := timeline.DecodeFigure(body)
	if err != nil {
		return nil
	}
	var events []timeline.Event
	for _, p := range fig.Points() {
		if p.Event != nil {
			events = append(events, *p.Event)
		}
	}
	return s.StoreEvents(ctx, events)
}

// LoadSnapshot returns the cached response for q.
func (s *EventCache) LoadSnapshot(ctx context.Context, q timeline.Query) (*Snapshot, error) {
	var encoding string
	var size int
	var body []byte
	var fetched int64
	err := s.db.QueryRowContext(ctx,
		"SELECT encoding, size, body, fetched_at FROM snapshots WHERE query_key = ?", SnapshotKey(q),
	).Scan(&encoding, &size, &body, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &timeline.NotFoundError{Kind: "snapshot", ID: SnapshotKey(q)}
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}

	if encoding == encodingZstd {
		body, err = s.decoder.DecodeAll(body, make([]byte, 0, size))
		if err != nil {
			return nil, fmt.Errorf("decompressing snapshot: %w", err)
		}
	}
	return &Snapshot{Query: q.Clone(), Body: body, FetchedAt: time.UnixMilli(fetched), Size: size}, nil
}

// PruneSnapshots deletes snapshots older than maxAge and returns how many
// were removed.
func (s *EventCache) PruneSnapshots(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := s.now().Add(-maxAge).UnixMilli()
	res, err := s.db.ExecContext(ctx, "DELETE FROM snapshots WHERE fetched_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("pruning snapshots: %w", err)
	}
	return res.RowsAffected()
}
