// Package store is the Persistence & Migrations layer (C7): a sqlite-backed
// schema over repositories, workspaces, session tabs, fork seeds, and
// app-wide key/value state, fronted by a versioned, idempotent migration
// engine.
//
// Grounded on internal/db/sqlite.go's writer-DSN recipe (WAL + busy_timeout
// + single-writer connection) and internal/task/repository/sqlite/base.go's
// schema-init entrypoint shape, restated around the sqlite schema in
// original_source/src/data/migrations.rs.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

const defaultBusyTimeout = 5 * time.Second

// openSQLite opens a sqlite database configured for a single writer
// connection (serializes writes, avoids SQLITE_BUSY under WAL).
func openSQLite(dbPath string) (*sqlx.DB, error) {
	normalized := normalizePath(dbPath)
	if normalized != ":memory:" {
		if err := ensureDir(normalized); err != nil {
			return nil, fmt.Errorf("prepare database path: %w", err)
		}
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_busy_timeout=%d&_journal_mode=WAL&_synchronous=NORMAL",
		normalized,
		int(defaultBusyTimeout/time.Millisecond),
	)
	db, err := sqlx.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

func ensureDir(dbPath string) error {
	dir := filepath.Dir(dbPath)
	if dir == "." || dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func normalizePath(dbPath string) string {
	if dbPath == "" || dbPath == ":memory:" {
		return dbPath
	}
	abs, err := filepath.Abs(dbPath)
	if err != nil {
		return dbPath
	}
	return abs
}
