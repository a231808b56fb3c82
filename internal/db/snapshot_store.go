package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// SnapshotStore persists serialized page snapshots keyed by account.
type SnapshotStore struct {
	db *sql.DB
}

// NewSnapshotStore creates a snapshot store from a base store
func NewSnapshotStore(store *Store) *SnapshotStore {
	if store == nil {
		return nil
	}
	return &SnapshotStore{db: store.DB()}
}

// SaveSnapshot upserts the payload stored under key
func (ss *SnapshotStore) SaveSnapshot(ctx context.Context, key, payload string, count int) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("invalid snapshot key")
	}
	_, err := ss.db.ExecContext(ctx, `INSERT INTO page_snapshots(cache_key, payload, record_count, updated_at)
VALUES(?,?,?,?)
ON CONFLICT(cache_key) DO UPDATE SET payload=excluded.payload, record_count=excluded.record_count, updated_at=excluded.updated_at;
`, key, payload, count, time.Now().Unix())
	return err
}

// LoadSnapshot returns the payload stored under key if present
func (ss *SnapshotStore) LoadSnapshot(ctx context.Context, key string) (string, bool, error) {
	if ss == nil || ss.db == nil {
		return "", false, fmt.Errorf("snapshot store not initialized")
	}
	var out string
	err := ss.db.QueryRowContext(ctx, `SELECT payload FROM page_snapshots WHERE cache_key=?`, key).Scan(&out)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// ClearSnapshots removes every snapshot
func (ss *SnapshotStore) ClearSnapshots(ctx context.Context) error {
	if ss == nil || ss.db == nil {
		return fmt.Errorf("snapshot store not initialized")
	}
	_, err := ss.db.ExecContext(ctx, `DELETE FROM page_snapshots`)
	return err
}

// CountSnapshots returns how many snapshots are stored
func (ss *SnapshotStore) CountSnapshots(ctx context.Context) (int, error) {
	if ss == nil || ss.db == nil {
		return 0, fmt.Errorf("snapshot store not initialized")
	}
	var n int
	if err := ss.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM page_snapshots`).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
