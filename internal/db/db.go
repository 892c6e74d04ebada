// Package db owns the SQLite database handle and its schema migrations.
// The database persists analysis runs and the tracks each run produced so
// results can be compared across parameter changes.
package db

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// DB wraps the sql.DB handle so store types can hang methods off a single
// shared connection.
type DB struct {
	*sql.DB
}

// pragmas applied to every new connection. WAL keeps readers unblocked
// while a run is writing results.
var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA temp_store=MEMORY",
	"PRAGMA foreign_keys=ON",
}

// NewDB opens (or creates) the SQLite database at path and applies the
// standard pragmas. Use ":memory:" for an ephemeral database in tests.
func NewDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database %s: %w", path, err)
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("executing %q: %w", pragma, err)
		}
	}
	return &DB{sqlDB}, nil
}
