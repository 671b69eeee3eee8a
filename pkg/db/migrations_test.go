package db

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEmbeddedMigrationsOrdered(t *testing.T) {
	migs, err := GetEmbeddedMigrations()
	if err != nil {
		t.Fatalf("GetEmbeddedMigrations: %v", err)
	}
	if len(migs) < 3 {
		t.Fatalf("expected at least 3 migrations, got %d", len(migs))
	}
	for i, m := range migs {
		if m.Version != i+1 {
			t.Fatalf("migration %d has version %d", i, m.Version)
		}
		if m.SQL == "" || m.Name == "" {
			t.Fatalf("migration %d is incomplete: %+v", m.Version, m)
		}
	}
}

func TestInitializeDatabaseIsIdempotent(t *testing.T) {
	db := openTestDB(t)
	if err := InitializeDatabase(db); err != nil {
		t.Fatalf("first InitializeDatabase: %v", err)
	}
	if err := InitializeDatabase(db); err != nil {
		t.Fatalf("second InitializeDatabase: %v", err)
	}

	status, err := NewMigrationManager(db).GetMigrationStatus()
	if err != nil {
		t.Fatal(err)
	}
	if len(status.Pending) != 0 || len(status.Applied) != len(status.Available) {
		t.Fatalf("status = %+v", status)
	}

	// The location columns from the second migration exist.
	if _, err := db.Exec(`INSERT INTO events (id, title, start_year, end_year, cached_at, lat, lon)
		VALUES ('a', 'A', 1, 2, 0, 1.5, 2.5)`); err != nil {
		t.Fatalf("inserting with location: %v", err)
	}
	var confidence string
	if err := db.QueryRow("SELECT location_confidence FROM events WHERE id = 'a'").Scan(&confidence); err != nil {
		t.Fatal(err)
	}
	if confidence != "exact" {
		t.Fatalf("default confidence = %q", confidence)
	}
}

func TestMigrationsFromPath(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"001_first.sql":  "CREATE TABLE a (id INTEGER);",
		"002_second.sql": "CREATE TABLE b (id INTEGER);",
		"notes.txt":      "ignored",
		"bad.sql":        "ignored: no version prefix",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatal(err)
		}
	}

	db := openTestDB(t)
	if err := InitializeDatabaseFromPath(db, dir); err != nil {
		t.Fatalf("InitializeDatabaseFromPath: %v", err)
	}
	m := NewMigrationManagerFromPath(db, dir)
	available, err := m.GetAvailableMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(available) != 2 || available[1].Name != "second" {
		t.Fatalf("available = %+v", available)
	}
	if _, err := db.Exec("INSERT INTO b (id) VALUES (1)"); err != nil {
		t.Fatalf("table from second migration missing: %v", err)
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	dir := t.TempDir()
	_ = os.WriteFile(filepath.Join(dir, "001_broken.sql"), []byte("CREATE TABLE x (id INTEGER); THIS IS NOT SQL;"), 0644)

	db := openTestDB(t)
	if err := InitializeDatabaseFromPath(db, dir); err == nil {
		t.Fatal("expected an error from a broken migration")
	}
	pending, err := NewMigrationManagerFromPath(db, dir).GetPendingMigrations()
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("broken migration should stay pending, got %d", len(pending))
	}
}
