package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AccountRow is one registered account.
type AccountRow struct {
	Alias     string
	Email     string
	TokenPath string
	Active    bool
	CreatedAt int64
}

// AccountStore persists the account registry.
type AccountStore struct {
	db *sql.DB
}

// NewAccountStore creates an account store from a base store
func NewAccountStore(store *Store) *AccountStore {
	if store == nil {
		return nil
	}
	return &AccountStore{db: store.DB()}
}

// Upsert inserts or updates an account, keeping its active flag.
func (as *AccountStore) Upsert(ctx context.Context, row AccountRow) error {
	if as == nil || as.db == nil {
		return fmt.Errorf("account store not initialized")
	}
	if strings.TrimSpace(row.Alias) == "" {
		return fmt.Errorf("invalid account alias")
	}
	created := row.CreatedAt
	if created == 0 {
		created = time.Now().Unix()
	}
	_, err := as.db.ExecContext(ctx, `INSERT INTO accounts(alias, email, token_path, active, created_at)
VALUES(?,?,?,?,?)
ON CONFLICT(alias) DO UPDATE SET email=excluded.email, token_path=excluded.token_path;
`, row.Alias, row.Email, row.TokenPath, row.Active, created)
	return err
}

// List returns all accounts ordered by alias
func (as *AccountStore) List(ctx context.Context) ([]AccountRow, error) {
	if as == nil || as.db == nil {
		return nil, fmt.Errorf("account store not initialized")
	}
	rows, err := as.db.QueryContext(ctx, `SELECT alias, email, token_path, active, created_at FROM accounts ORDER BY alias`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AccountRow
	for rows.Next() {
		var r AccountRow
		if err := rows.Scan(&r.Alias, &r.Email, &r.TokenPath, &r.Active, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SetActive marks alias as the only active account
func (as *AccountStore) SetActive(ctx context.Context, alias string) error {
	if as == nil || as.db == nil {
		return fmt.Errorf("account store not initialized")
	}
	tx, err := as.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `UPDATE accounts SET active = (alias = ?)`, alias)
	if err == nil {
		var n int64
		err = tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM accounts WHERE alias=?`, alias).Scan(&n)
		if err == nil && n == 0 {
			err = fmt.Errorf("account %q not found", alias)
		}
	}
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Delete removes an account
func (as *AccountStore) Delete(ctx context.Context, alias string) error {
	if as == nil || as.db == nil {
		return fmt.Errorf("account store not initialized")
	}
	_, err := as.db.ExecContext(ctx, `DELETE FROM accounts WHERE alias=?`, alias)
	return err
}
