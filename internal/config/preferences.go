package config

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// Preference keys as stored in the preferences table
const (
	PrefFetchLimit    = "fetchLimit"
	PrefFetchSpeed    = "fetchSpeed"
	PrefTempFileLimit = "tempFileLimit"
	PrefStoreCache    = "storeCache"
)

// Defaults used when a preference is missing or unusable
const (
	DefaultFetchLimit    = 100
	DefaultFetchSpeedMs  = 10
	DefaultTempFileLimit = 100
	DefaultStoreCache    = true
)

// AccountConfig are the per-user fetch preferences read before each page load
type AccountConfig struct {
	FetchLimit    int  `json:"fetchLimit"`
	FetchSpeedMs  int  `json:"fetchSpeed"`
	TempFileLimit int  `json:"tempFileLimit"`
	StoreCache    bool `json:"storeCache"`
}

// DefaultAccountConfig returns the preferences of a fresh install
func DefaultAccountConfig() AccountConfig {
	return AccountConfig{
		FetchLimit:    DefaultFetchLimit,
		FetchSpeedMs:  DefaultFetchSpeedMs,
		TempFileLimit: DefaultTempFileLimit,
		StoreCache:    DefaultStoreCache,
	}
}

// ParseAccountConfig builds an AccountConfig from stored JSON text values.
// Numbers may be stored as JSON numbers or quoted strings. Missing,
// unparseable and non-positive values fall back to defaults; fetchSpeed
// also accepts 0.
func ParseAccountConfig(items map[string]string) AccountConfig {
	cfg := DefaultAccountConfig()
	if v, ok := parseInt(items[PrefFetchLimit]); ok && v > 0 {
		cfg.FetchLimit = v
	}
	if v, ok := parseInt(items[PrefFetchSpeed]); ok && v >= 0 {
		cfg.FetchSpeedMs = v
	}
	if v, ok := parseInt(items[PrefTempFileLimit]); ok && v > 0 {
		cfg.TempFileLimit = v
	}
	if v, ok := parseBool(items[PrefStoreCache]); ok {
		cfg.StoreCache = v
	}
	return cfg
}

// Items encodes c back into stored JSON text values
func (c AccountConfig) Items() map[string]string {
	return map[string]string{
		PrefFetchLimit:    strconv.Itoa(c.FetchLimit),
		PrefFetchSpeed:    strconv.Itoa(c.FetchSpeedMs),
		PrefTempFileLimit: strconv.Itoa(c.TempFileLimit),
		PrefStoreCache:    strconv.FormatBool(c.StoreCache),
	}
}

// FetchSpeed is the pause between metadata chunks
func (c AccountConfig) FetchSpeed() time.Duration {
	return time.Duration(c.FetchSpeedMs) * time.Millisecond
}

func decode(raw string) (interface{}, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}
	var v interface{}
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return nil, false
	}
	return v, true
}

func parseInt(raw string) (int, bool) {
	v, ok := decode(raw)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		if n != float64(int(n)) {
			return 0, false
		}
		return int(n), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}

func parseBool(raw string) (bool, bool) {
	v, ok := decode(raw)
	if !ok {
		return false, false
	}
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, false
		}
		return parsed, true
	}
	return false, false
}
