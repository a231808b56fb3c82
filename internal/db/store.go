package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database holding page snapshots, preferences and
// the account registry.
type Store struct {
	db *sql.DB
}

// Open opens (and creates/migrates) the database at the given path
func Open(ctx context.Context, dbPath string) (*Store, error) {
	if strings.TrimSpace(dbPath) == "" {
		return nil, fmt.Errorf("empty database path")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create database dir: %w", err)
	}
	// Ensure file exists with strict perms
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		f, err := os.OpenFile(dbPath, os.O_CREATE|os.O_RDWR, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create database file: %w", err)
		}
		f.Close()
	}
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// Pragmas
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL: %w", err)
	}
	_, _ = db.ExecContext(ctx, "PRAGMA foreign_keys=ON;")
	_, _ = db.ExecContext(ctx, "PRAGMA busy_timeout=5000;")
	_, _ = db.ExecContext(ctx, "PRAGMA synchronous=NORMAL;")

	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrations are applied in order; user_version holds the number applied.
var migrations = []string{
	// v1: offline snapshot of the first page, one row per account
	`CREATE TABLE IF NOT EXISTS page_snapshots (
  cache_key     TEXT PRIMARY KEY,
  payload       TEXT NOT NULL,
  record_count  INTEGER NOT NULL DEFAULT 0,
  updated_at    INTEGER NOT NULL
);`,
	// v2: user preferences, values are JSON text
	`CREATE TABLE IF NOT EXISTS preferences (
  key           TEXT PRIMARY KEY,
  value         TEXT NOT NULL,
  updated_at    INTEGER NOT NULL
);`,
	// v3: account registry
	`CREATE TABLE IF NOT EXISTS accounts (
  alias         TEXT PRIMARY KEY,
  email         TEXT NOT NULL DEFAULT '',
  token_path    TEXT NOT NULL DEFAULT '',
  active        BOOLEAN NOT NULL DEFAULT FALSE,
  created_at    INTEGER NOT NULL
);`,
}

func (s *Store) migrate(ctx context.Context) error {
	var ver int
	_ = s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver)

	for ver < len(migrations) {
		next := ver + 1
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, migrations[ver])
		if err == nil {
			_, err = tx.ExecContext(ctx, fmt.Sprintf("PRAGMA user_version=%d;", next))
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("migrate v%d: %w", next, err)
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		ver = next
	}
	return nil
}

// SchemaVersion returns the applied migration count.
func (s *Store) SchemaVersion(ctx context.Context) (int, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("store not initialized")
	}
	var ver int
	if err := s.db.QueryRowContext(ctx, "PRAGMA user_version;").Scan(&ver); err != nil {
		return 0, err
	}
	return ver, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for use by domain stores
func (s *Store) DB() *sql.DB {
	return s.db
}
