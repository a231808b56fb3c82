package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const appDirName = "gmail-inbox"

// Cache backends
const (
	CacheBackendSQLite = "sqlite"
	CacheBackendRedis  = "redis"
)

// Config holds all configuration for the inbox application
type Config struct {
	Credentials string `json:"credentials" yaml:"credentials"`

	// Accounts rotate in alias order; ActiveAccount is the one shown first
	Accounts      []AccountEntry `json:"accounts" yaml:"accounts"`
	ActiveAccount string         `json:"active_account,omitempty" yaml:"active_account,omitempty"`

	// Local storage
	Database string      `json:"database" yaml:"database"`
	Cache    CacheConfig `json:"cache" yaml:"cache"`

	Fetch    FetchConfig    `json:"fetch" yaml:"fetch"`
	Prefetch PrefetchConfig `json:"prefetch" yaml:"prefetch"`

	// Per-request HTTP timeout (Go duration)
	RequestTimeout string `json:"request_timeout" yaml:"request_timeout"`

	// Logging
	LogFile string `json:"log_file" yaml:"log_file"`
	Debug   bool   `json:"debug" yaml:"debug"`

	// Debug HTTP surface, disabled when empty
	DebugAddr string `json:"debug_addr,omitempty" yaml:"debug_addr,omitempty"`

	Colors ColorsConfig `json:"colors" yaml:"colors"`
}

// AccountEntry is one Gmail account. Token defaults to tokens/<alias>.json
// under the config directory.
type AccountEntry struct {
	Alias string `json:"alias" yaml:"alias"`
	Email string `json:"email,omitempty" yaml:"email,omitempty"`
	Token string `json:"token,omitempty" yaml:"token,omitempty"`
}

// CacheConfig selects where the offline page snapshot lives
type CacheConfig struct {
	Backend       string `json:"backend" yaml:"backend"` // sqlite, redis
	RedisAddr     string `json:"redis_addr,omitempty" yaml:"redis_addr,omitempty"`
	RedisPassword string `json:"redis_password,omitempty" yaml:"redis_password,omitempty"`
	RedisDB       int    `json:"redis_db,omitempty" yaml:"redis_db,omitempty"`
	TTL           string `json:"ttl,omitempty" yaml:"ttl,omitempty"`
}

// FetchConfig tunes the list and metadata calls
type FetchConfig struct {
	MaxPerRequest     int      `json:"max_per_request" yaml:"max_per_request"`
	MetadataBatchSize int      `json:"metadata_batch_size" yaml:"metadata_batch_size"`
	Query             string   `json:"query,omitempty" yaml:"query,omitempty"`
	LabelIDs          []string `json:"label_ids" yaml:"label_ids"`
	IncludeSpamTrash  bool     `json:"include_spam_trash,omitempty" yaml:"include_spam_trash,omitempty"`
}

// PrefetchConfig controls where message previews are written
type PrefetchConfig struct {
	Root  string `json:"root,omitempty" yaml:"root,omitempty"`
	Delay string `json:"delay" yaml:"delay"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Cache: CacheConfig{Backend: CacheBackendSQLite},
		Fetch: FetchConfig{
			MaxPerRequest:     500,
			MetadataBatchSize: 100,
			LabelIDs:          []string{"INBOX"},
		},
		Prefetch:       PrefetchConfig{Delay: "1ms"},
		RequestTimeout: "30s",
		Colors:         DefaultColors(),
	}
}

// LoadConfig loads configuration from file. A missing file yields defaults.
// Files ending in .yaml or .yml are parsed as YAML, anything else as JSON.
func LoadConfig(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err == nil {
			if isYAML(configPath) {
				err = yaml.Unmarshal(data, cfg)
			} else {
				err = json.Unmarshal(data, cfg)
			}
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
		}
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

func (c *Config) applyDefaults() {
	def := DefaultConfig()
	if c.Cache.Backend == "" {
		c.Cache.Backend = def.Cache.Backend
	}
	if c.Fetch.MaxPerRequest <= 0 || c.Fetch.MaxPerRequest > def.Fetch.MaxPerRequest {
		c.Fetch.MaxPerRequest = def.Fetch.MaxPerRequest
	}
	if c.Fetch.MetadataBatchSize <= 0 {
		c.Fetch.MetadataBatchSize = def.Fetch.MetadataBatchSize
	}
	if c.Fetch.LabelIDs == nil {
		c.Fetch.LabelIDs = def.Fetch.LabelIDs
	}
	if c.Prefetch.Delay == "" {
		c.Prefetch.Delay = def.Prefetch.Delay
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = def.RequestTimeout
	}
	c.Colors.fill(def.Colors)
}

// Validate reports the first inconsistency in c
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case CacheBackendSQLite:
	case CacheBackendRedis:
		if strings.TrimSpace(c.Cache.RedisAddr) == "" {
			return fmt.Errorf("cache backend redis requires redis_addr")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Cache.Backend)
	}

	seen := make(map[string]bool, len(c.Accounts))
	for _, a := range c.Accounts {
		alias := strings.TrimSpace(a.Alias)
		if alias == "" {
			return fmt.Errorf("account alias must not be empty")
		}
		if seen[alias] {
			return fmt.Errorf("duplicate account alias %q", alias)
		}
		seen[alias] = true
	}
	if c.ActiveAccount != "" && len(c.Accounts) > 0 && !seen[c.ActiveAccount] {
		return fmt.Errorf("active account %q is not configured", c.ActiveAccount)
	}

	for name, d := range map[string]string{
		"request_timeout": c.RequestTimeout,
		"prefetch.delay":  c.Prefetch.Delay,
		"cache.ttl":       c.Cache.TTL,
	} {
		if d == "" {
			continue
		}
		if _, err := time.ParseDuration(d); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

// DefaultConfigDir returns ~/.config/gmail-inbox
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", appDirName)
}

// DefaultConfigPath returns the default configuration file path
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "config.json")
}

// DefaultCredentialPaths returns the default paths for credentials and token
func DefaultCredentialPaths() (string, string) {
	dir := DefaultConfigDir()
	if dir == "" {
		return "", ""
	}
	return filepath.Join(dir, "credentials.json"), filepath.Join(dir, "token.json")
}

// DefaultDatabasePath returns the default sqlite database path
func DefaultDatabasePath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "gmail-inbox.db")
}

// DefaultLogPath returns the default log file path
func DefaultLogPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "gmail-inbox.log")
}

// DefaultPrefetchRoot returns the directory previews are written under
func DefaultPrefetchRoot() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return filepath.Join(os.TempDir(), appDirName)
	}
	return filepath.Join(dir, "cache")
}

// TokenPath returns where the account's OAuth token is stored
func (a AccountEntry) TokenPath() string {
	if a.Token != "" {
		return ExpandPath(a.Token)
	}
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, "tokens", a.Alias+".json")
}

// ExpandPath expands a leading ~ to the user's home directory
func ExpandPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}

// SaveConfig saves the configuration to a file, as YAML when the extension
// says so
func (c *Config) SaveConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	var (
		data []byte
		err  error
	)
	if isYAML(path) {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o600)
}

// GetRequestTimeout returns the parsed HTTP timeout
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

// GetPrefetchDelay returns the pause between prefetched bodies
func (c *Config) GetPrefetchDelay() time.Duration {
	return parseDurationOr(c.Prefetch.Delay, time.Millisecond)
}

// GetCacheTTL returns the redis snapshot ttl, zero meaning no expiry
func (c *Config) GetCacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTL, 0)
}

func parseDurationOr(s string, def time.Duration) time.Duration {
	if s != "" {
		if d, err := time.ParseDuration(s); err == nil && d >= 0 {
			return d
		}
	}
	return def
}
