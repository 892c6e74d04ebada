package db

import (
	"path/filepath"
	"testing"
)

func TestNewDBAndMigrate(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}

	version, dirty, err := database.MigrateVersion()
	if err != nil {
		t.Fatalf("MigrateVersion failed: %v", err)
	}
	if dirty {
		t.Error("database should not be dirty after clean migration")
	}
	latest, err := LatestMigrationVersion()
	if err != nil {
		t.Fatalf("LatestMigrationVersion failed: %v", err)
	}
	if version != latest {
		t.Errorf("migrated to version %d, latest is %d", version, latest)
	}

	// MigrateUp again is a no-op.
	if err := database.MigrateUp(); err != nil {
		t.Fatalf("second MigrateUp failed: %v", err)
	}

	// The migrated schema must accept run rows.
	_, err = database.Exec(`INSERT INTO analysis_runs (run_id, created_at, source_path, params_json, status)
		VALUES ('r1', '2026-01-01T00:00:00Z', '/frames', '{}', 'running')`)
	if err != nil {
		t.Errorf("inserting into analysis_runs failed: %v", err)
	}
}

func TestMigrateDown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	database, err := NewDB(dbPath)
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(); err != nil {
		t.Fatalf("MigrateUp failed: %v", err)
	}
	if err := database.MigrateDown(); err != nil {
		t.Fatalf("MigrateDown failed: %v", err)
	}

	var count int
	err = database.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='analysis_runs'`).Scan(&count)
	if err != nil {
		t.Fatalf("querying sqlite_master: %v", err)
	}
	if count != 0 {
		t.Error("analysis_runs should be dropped after MigrateDown")
	}
}
