package cache

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// DefaultPrefix namespaces every snapshot key.
const DefaultPrefix = "gmail-inbox:page0:"

// RedisStore keeps page snapshots in redis as plain string values. A set
// under <prefix>keys tracks what was written so Clear and Count never scan.
type RedisStore struct {
	rdb    redis.UniversalClient
	prefix string
	ttl    time.Duration
	logger *zap.Logger
}

// NewRedisStore creates a snapshot store over rdb. A zero ttl keeps entries
// until cleared.
func NewRedisStore(rdb redis.UniversalClient, ttl time.Duration, logger *zap.Logger) *RedisStore {
	if rdb == nil {
		return nil
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisStore{rdb: rdb, prefix: DefaultPrefix, ttl: ttl, logger: logger}
}

// Dial connects to addr and verifies the server answers.
func Dial(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connect redis %s: %w", addr, err)
	}
	return rdb, nil
}

func (rs *RedisStore) key(k string) string { return rs.prefix + k }
func (rs *RedisStore) index() string     { return rs.prefix + "keys" }

// SaveSnapshot stores payload under key
func (rs *RedisStore) SaveSnapshot(ctx context.Context, key, payload string, count int) error {
	if rs == nil || rs.rdb == nil {
		return fmt.Errorf("redis store not initialized")
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("invalid snapshot key")
	}
	_, err := rs.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, rs.key(key), payload, rs.ttl)
		pipe.SAdd(ctx, rs.index(), key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("save snapshot %s: %w", key, err)
	}
	rs.logger.Debug("snapshot saved", zap.String("key", key), zap.Int("records", count))
	return nil
}

// LoadSnapshot returns the payload stored under key if present
func (rs *RedisStore) LoadSnapshot(ctx context.Context, key string) (string, bool, error) {
	if rs == nil || rs.rdb == nil {
		return "", false, fmt.Errorf("redis store not initialized")
	}
	payload, err := rs.rdb.Get(ctx, rs.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load snapshot %s: %w", key, err)
	}
	return payload, true, nil
}

// ClearSnapshots removes every tracked snapshot
func (rs *RedisStore) ClearSnapshots(ctx context.Context) error {
	if rs == nil || rs.rdb == nil {
		return fmt.Errorf("redis store not initialized")
	}
	keys, err := rs.rdb.SMembers(ctx, rs.index()).Result()
	if err != nil {
		return fmt.Errorf("list snapshots: %w", err)
	}
	full := make([]string, 0, len(keys)+1)
	for _, k := range keys {
		full = append(full, rs.key(k))
	}
	full = append(full, rs.index())
	if err := rs.rdb.Del(ctx, full...).Err(); err != nil {
		return fmt.Errorf("clear snapshots: %w", err)
	}
	return nil
}

// CountSnapshots returns how many snapshots are tracked. Entries whose ttl
// expired are pruned from the index first.
func (rs *RedisStore) CountSnapshots(ctx context.Context) (int, error) {
	if rs == nil || rs.rdb == nil {
		return 0, fmt.Errorf("redis store not initialized")
	}
	keys, err := rs.rdb.SMembers(ctx, rs.index()).Result()
	if err != nil {
		return 0, fmt.Errorf("list snapshots: %w", err)
	}
	n := 0
	for _, k := range keys {
		exists, err := rs.rdb.Exists(ctx, rs.key(k)).Result()
		if err != nil {
			return 0, fmt.Errorf("check snapshot %s: %w", k, err)
		}
		if exists == 0 {
			rs.rdb.SRem(ctx, rs.index(), k)
			continue
		}
		n++
	}
	return n, nil
}
