package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PreferenceStore is a key/value table of JSON-encoded preference values.
type PreferenceStore struct {
	db *sql.DB
}

// NewPreferenceStore creates a preference store from a base store
func NewPreferenceStore(store *Store) *PreferenceStore {
	if store == nil {
		return nil
	}
	return &PreferenceStore{db: store.DB()}
}

// Get returns the raw value stored under key
func (ps *PreferenceStore) Get(ctx context.Context, key string) (string, bool, error) {
	if ps == nil || ps.db == nil {
		return "", false, fmt.Errorf("preference store not initialized")
	}
	var out string
	err := ps.db.QueryRowContext(ctx, `SELECT value FROM preferences WHERE key=?`, key).Scan(&out)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}

// Set upserts a raw value
func (ps *PreferenceStore) Set(ctx context.Context, key, value string) error {
	if ps == nil || ps.db == nil {
		return fmt.Errorf("preference store not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("invalid preference key")
	}
	_, err := ps.db.ExecContext(ctx, `INSERT INTO preferences(key, value, updated_at)
VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at;
`, key, value, time.Now().Unix())
	return err
}

// All returns every stored preference
func (ps *PreferenceStore) All(ctx context.Context) (map[string]string, error) {
	if ps == nil || ps.db == nil {
		return nil, fmt.Errorf("preference store not initialized")
	}
	rows, err := ps.db.QueryContext(ctx, `SELECT key, value FROM preferences`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		out[k] = v
	}
	return out, rows.Err()
}

// Delete removes a preference
func (ps *PreferenceStore) Delete(ctx context.Context, key string) error {
	if ps == nil || ps.db == nil {
		return fmt.Errorf("preference store not initialized")
	}
	_, err := ps.db.ExecContext(ctx, `DELETE FROM preferences WHERE key=?`, key)
	return err
}
