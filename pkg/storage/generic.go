package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/rubiojr/timetrip/pkg/db"
	"github.com/rubiojr/timetrip/pkg/log"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

// EventCache is a local SQLite copy of events seen through the timeline API
// plus the last good timeline figure per query.
type EventCache struct {
	db      *sql.DB
	path    string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
	logger  *log.Logger
}

// OpenEventCache opens (creating if needed) the cache at dbPath and applies
// pending migrations.
func OpenEventCache(dbPath string) (*EventCache, error) {
	sqldb, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
		"PRAGMA cache_size = -16000",
		"PRAGMA temp_store = memory",
	}
	for _, pragma := range pragmas {
		if _, err := sqldb.Exec(pragma); err != nil {
			sqldb.Close()
			return nil, fmt.Errorf("applying pragma %q: %w", pragma, err)
		}
	}

	if err := db.InitializeDatabase(sqldb); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("creating zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		sqldb.Close()
		return nil, fmt.Errorf("creating zstd decoder: %w", err)
	}

	return &EventCache{
		db:      sqldb,
		path:    dbPath,
		encoder: enc,
		decoder: dec,
		now:     time.Now,
		logger:  log.ForService("storage"),
	}, nil
}

// Close releases the database and codecs.
func (s *EventCache) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		s.logger.Warnf("closing zstd encoder: %v", err)
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *EventCache) Path() string {
	return s.path
}

// GetDB returns the underlying connection.
func (s *EventCache) GetDB() *sql.DB {
	return s.db
}

const upsertEvent = `
	INSERT INTO events (id, title, category, continent, start_year, end_year, description,
		start_date, end_date, lat, lon, location_label, geometry, location_confidence, cached_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		title = excluded.title,
		category = excluded.category,
		continent = excluded.continent,
		start_year = excluded.start_year,
		end_year = excluded.end_year,
		description = excluded.description,
		start_date = excluded.start_date,
		end_date = excluded.end_date,
		lat = excluded.lat,
		lon = excluded.lon,
		location_label = excluded.location_label,
		geometry = excluded.geometry,
		location_confidence = excluded.location_confidence,
		cached_at = excluded.cached_at
`

// StoreEvent caches a single event.
func (s *EventCache) StoreEvent(ctx context.Context, ev timeline.Event) error {
	return s.StoreEvents(ctx, []timeline.Event{ev})
}

// StoreEvents caches events in one transaction. Events without an id are
// skipped.
func (s *EventCache) StoreEvents(ctx context.Context, events []timeline.Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil {
				s.logger.Warnf("rolling back event batch: %v", err)
			}
		}
	}()

	stmt, err := tx.PrepareContext(ctx, upsertEvent)
	if err != nil {
		return fmt.Errorf("preparing statement: %w", err)
	}
	defer stmt.Close()

	now := s.now().UnixMilli()
	stored := 0
	for _, ev := range events {
		if ev.ID == "" {
			continue
		}
		confidence := ev.Confidence
		if confidence == "" {
			confidence = timeline.ConfidenceExact
		}
		continent := ev.Continent
		if continent == "" {
			continent = "Global"
		}
		_, err := stmt.ExecContext(ctx,
			string(ev.ID), ev.Title, ev.Category, continent,
			ev.StartYear, ev.EndYear, ev.Description, ev.StartDate, ev.EndDate,
			nullFloat(ev.Lat), nullFloat(ev.Lon), ev.LocationLabel, ev.Geometry, confidence,
			now,
		)
		if err != nil {
			return fmt.Errorf("caching event %s: %w", ev.ID, err)
		}
		stored++
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	committed = true
	s.logger.Debugf("cached %d events", stored)
	return nil
}

const eventColumns = `id, title, category, continent, start_year, end_year, description,
	start_date, end_date, lat, lon, location_label, geometry, location_confidence`

// GetEvent returns a cached event.
func (s *EventCache) GetEvent(ctx context.Context, id timeline.EventID) (*timeline.Event, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+eventColumns+" FROM events WHERE id = ?", string(id))
	ev, err := scanEvent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &timeline.NotFoundError{Kind: "event", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("loading event %s: %w", id, err)
	}
	return ev, nil
}

// EventsInRange returns cached events overlapping [start, end], ordered by
// start year.
func (s *EventCache) EventsInRange(ctx context.Context, start, end int64) ([]timeline.Event, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE start_year <= ? AND end_year >= ? ORDER BY start_year, id",
		end, start)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// DeleteEvent removes an event from the cache. Missing events are not an
// error.
func (s *EventCache) DeleteEvent(ctx context.Context, id timeline.EventID) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", string(id)); err != nil {
		return fmt.Errorf("deleting event %s: %w", id, err)
	}
	return nil
}

// CacheStats summarizes the cache contents.
type CacheStats struct {
	Events    int
	Snapshots int
	Oldest    time.Time
	Newest    time.Time
}

// Stats returns row counts and the cache age range.
func (s *EventCache) Stats(ctx context.Context) (CacheStats, error) {
	var st CacheStats
	var oldest, newest sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), MIN(cached_at), MAX(cached_at) FROM events").Scan(&st.Events, &oldest, &newest)
	if err != nil {
		return st, fmt.Errorf("counting events: %w", err)
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM snapshots").Scan(&st.Snapshots); err != nil {
		return st, fmt.Errorf("counting snapshots: %w", err)
	}
	if oldest.Valid {
		st.Oldest = time.UnixMilli(oldest.Int64)
	}
	if newest.Valid {
		st.Newest = time.UnixMilli(newest.Int64)
	}
	return st, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEvent(row scanner) (*timeline.Event, error) {
	var ev timeline.Event
	var id string
	var lat, lon sql.NullFloat64
	err := row.Scan(&id, &ev.Title, &ev.Category, &ev.Continent, &ev.StartYear, &ev.EndYear,
		&ev.Description, &ev.StartDate, &ev.EndDate, &lat, &lon, &ev.LocationLabel, &ev.Geometry, &ev.Confidence)
	if err != nil {
		return nil, err
	}
	ev.ID = timeline.EventID(id)
	if lat.Valid {
		v := lat.Float64
		ev.Lat = &v
	}
	if lon.Valid {
		v := lon.Float64
		ev.Lon = &v
	}
	return &ev, nil
}

func scanEvents(rows *sql.Rows) ([]timeline.Event, error) {
	var events []timeline.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		events = append(events, *ev)
	}
	return events, rows.Err()
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

// Optimize merges the full-text index segments and refreshes the query
// planner statistics.
func (s *EventCache) Optimize(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "INSERT INTO events_fts(events_fts) VALUES('optimize')"); err != nil {
		return fmt.Errorf("optimizing search index: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA optimize"); err != nil {
		return fmt.Errorf("optimizing database: %w", err)
	}
	return nil
}

func (s *EventCache) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}
