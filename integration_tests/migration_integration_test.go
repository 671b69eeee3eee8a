package integration_tests

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/rubiojr/timetrip/pkg/db"
	"github.com/rubiojr/timetrip/pkg/storage"
	"github.com/rubiojr/timetrip/pkg/timeline"
)

func tableExists(t *testing.T, database *sql.DB, name string) bool {
	t.Helper()
	var count int
	err := database.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&count)
	if err != nil {
		t.Fatalf("checking table %s: %v", name, err)
	}
	return count > 0
}

func columnExists(t *testing.T, database *sql.DB, table, column string) bool {
	t.Helper()
	rows, err := database.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		t.Fatalf("table info for %s: %v", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var cid, notNull, pk int
		var name, dataType string
		var defaultValue sql.NullString
		if err := rows.Scan(&cid, &name, &dataType, &notNull, &defaultValue, &pk); err != nil {
			t.Fatalf("scanning table info: %v", err)
		}
		if name == column {
			return true
		}
	}
	return false
}

func TestCacheSchema(t *testing.T) {
	manager := storage.NewManager(t.TempDir())
	defer manager.Close()

	cache, err := manager.GetCache("http://localhost:5000")
	if err != nil {
		t.Fatalf("GetCache: %v", err)
	}
	database := cache.GetDB()

	for _, table := range []string{"events", "events_fts", "snapshots", "migrations"} {
		if !tableExists(t, database, table) {
			t.Errorf("table %s missing", table)
		}
	}
	for _, column := range []string{"lat", "lon", "location_label", "geometry", "location_confidence"} {
		if !columnExists(t, database, "events", column) {
			t.Errorf("events.%s missing", column)
		}
	}

	status, err := db.NewMigrationManager(database).GetMigrationStatus()
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Pending) != 0 || len(status.Applied) != len(status.Available) {
		t.Fatalf("status = %d applied, %d pending, %d available", len(status.Applied), len(status.Pending), len(status.Available))
	}
}

func TestCacheReopenKeepsData(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()
	lat, lon := 41.89, 12.49

	first := storage.NewManager(dir)
	cache, err := first.GetCache("http://localhost:5000")
	if err != nil {
		t.Fatal(err)
	}
	err = cache.StoreEvents(ctx, []timeline.Event{
		{ID: "rome", Title: "Founding of Rome", Category: "Civilization", Continent: "Europe", StartYear: -753, EndYear: -753, Lat: &lat, Lon: &lon},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Close(); err != nil {
		t.Fatal(err)
	}

	second := storage.NewManager(dir)
	defer second.Close()
	cache, err = second.GetCache("http://localhost:5000")
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	ev, err := cache.GetEvent(ctx, "rome")
	if err != nil {
		t.Fatalf("GetEvent: %v", err)
	}
	if p, ok := ev.Location(); !ok || p.Lat != lat {
		t.Fatalf("location lost: %+v", ev)
	}
	res, err := cache.SearchEvents(ctx, "rome", 0)
	if err != nil || len(res) != 1 {
		t.Fatalf("search after reopen = %v, %v", res, err)
	}
}

func TestMigrationsFromDisk(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	if err := os.MkdirAll(migrations, 0755); err != nil {
		t.Fatal(err)
	}
	files := map[string]string{
		"001_events.sql": "CREATE TABLE events (id TEXT PRIMARY KEY, title TEXT NOT NULL);",
		"002_notes.sql":  "ALTER TABLE events ADD COLUMN notes TEXT NOT NULL DEFAULT '';",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(migrations, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	database, err := sql.Open("sqlite3", filepath.Join(dir, "custom.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer database.Close()

	if err := db.InitializeDatabaseFromPath(database, migrations); err != nil {
		t.Fatalf("applying: %v", err)
	}
	if !columnExists(t, database, "events", "notes") {
		t.Fatal("second migration not applied")
	}
	// Applying again is a no-op.
	if err := db.InitializeDatabaseFromPath(database, migrations); err != nil {
		t.Fatalf("re-applying: %v", err)
	}
}
