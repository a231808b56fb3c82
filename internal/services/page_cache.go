package services

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// CacheKeyPrefix prefixes the account identity in snapshot keys
const CacheKeyPrefix = "MessageData-"

// CacheKey returns the snapshot key of account
func CacheKey(account string) string { return CacheKeyPrefix + account }

// SnapshotPageCache stores page snapshots as JSON text in a SnapshotStore
type SnapshotPageCache struct {
	store  SnapshotStore
	logger *zap.Logger
}

// NewPageCache creates a page cache over store
func NewPageCache(store SnapshotStore, logger *zap.Logger) *SnapshotPageCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SnapshotPageCache{store: store, logger: logger}
}

// Get returns the snapshot of account, if any
func (c *SnapshotPageCache) Get(ctx context.Context, account string) ([]DisplayRecord, bool, error) {
	if c == nil || c.store == nil {
		return nil, false, ErrCacheUnavailable
	}
	payload, ok, err := c.store.LoadSnapshot(ctx, CacheKey(account))
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	var records []DisplayRecord
	if err := json.Unmarshal([]byte(payload), &records); err != nil {
		c.logger.Warn("discarding unreadable snapshot", zap.String("account", account), zap.Error(err))
		return nil, false, fmt.Errorf("%w: %v", ErrCacheCorrupted, err)
	}
	return records, true, nil
}

// Put replaces the snapshot of account with records
func (c *SnapshotPageCache) Put(ctx context.Context, account string, records []DisplayRecord) error {
	if c == nil || c.store == nil {
		return ErrCacheUnavailable
	}
	if records == nil {
		records = []DisplayRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := c.store.SaveSnapshot(ctx, CacheKey(account), string(data), len(records)); err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

// Clear removes every snapshot
func (c *SnapshotPageCache) Clear(ctx context.Context) error {
	if c == nil || c.store == nil {
		return ErrCacheUnavailable
	}
	return c.store.ClearSnapshots(ctx)
}

// IsEmpty reports whether no snapshot is stored
func (c *SnapshotPageCache) IsEmpty(ctx context.Context) (bool, error) {
	if c == nil || c.store == nil {
		return false, ErrCacheUnavailable
	}
	n, err := c.store.CountSnapshots(ctx)
	if err != nil {
		return false, err
	}
	return n == 0, nil
}
