package services

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ajramos/gmail-inbox/internal/config"
)

// PreferenceStore is a key/value store of JSON text values
type PreferenceStore interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	All(ctx context.Context) (map[string]string, error)
	Delete(ctx context.Context, key string) error
}

// PreferenceServiceImpl reads and writes the fetch preferences
type PreferenceServiceImpl struct {
	store PreferenceStore
	cache PageCache
}

// NewPreferenceService creates a preference service over store
func NewPreferenceService(store PreferenceStore) *PreferenceServiceImpl {
	return &PreferenceServiceImpl{store: store}
}

// WithPageCache makes turning caching off empty cache
func (s *PreferenceServiceImpl) WithPageCache(cache PageCache) *PreferenceServiceImpl {
	s.cache = cache
	return s
}

// AccountConfig parses the stored preferences, filling in defaults
func (s *PreferenceServiceImpl) AccountConfig(ctx context.Context) (config.AccountConfig, error) {
	if s == nil || s.store == nil {
		return config.DefaultAccountConfig(), nil
	}
	items, err := s.store.All(ctx)
	if err != nil {
		return config.DefaultAccountConfig(), fmt.Errorf("read preferences: %w", err)
	}
	return config.ParseAccountConfig(items), nil
}

// Save stores every field of cfg
func (s *PreferenceServiceImpl) Save(ctx context.Context, cfg config.AccountConfig) error {
	for k, v := range cfg.Items() {
		if err := s.store.Set(ctx, k, v); err != nil {
			return fmt.Errorf("save preference %s: %w", k, err)
		}
	}
	if !cfg.StoreCache {
		return s.dropCache(ctx)
	}
	return nil
}

// SetStoreCache toggles offline caching. Turning it off empties the page
// cache.
func (s *PreferenceServiceImpl) SetStoreCache(ctx context.Context, on bool) error {
	if err := s.store.Set(ctx, config.PrefStoreCache, strconv.FormatBool(on)); err != nil {
		return err
	}
	if !on {
		return s.dropCache(ctx)
	}
	return nil
}

func (s *PreferenceServiceImpl) dropCache(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	if empty, err := s.cache.IsEmpty(ctx); err == nil && empty {
		return nil
	}
	if err := s.cache.Clear(ctx); err != nil {
		return fmt.Errorf("clear page cache: %w", err)
	}
	return nil
}

// Reset removes the stored preferences so defaults apply
func (s *PreferenceServiceImpl) Reset(ctx context.Context) error {
	for _, k := range []string{config.PrefFetchLimit, config.PrefFetchSpeed, config.PrefTempFileLimit, config.PrefStoreCache} {
		if err := s.store.Delete(ctx, k); err != nil {
			return fmt.Errorf("reset preference %s: %w", k, err)
		}
	}
	return nil
}
