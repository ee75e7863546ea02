package voicepool

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Allocation  AllocationConfig   `yaml:"allocation"`
	Split       SplitConfig        `yaml:"split"`
	Sweep       SweepConfig        `yaml:"sweep"`
	Provider    ProviderConfig     `yaml:"provider"`
	Store       StoreConfig        `yaml:"store"`
	Cache       CacheConfig        `yaml:"cache"`
	Server      ServerConfig       `yaml:"server"`
	Log         LogConfig          `yaml:"log"`
	Credentials []CredentialConfig `yaml:"credentials"`
}

// AllocationConfig tunes the allocator and the retry protocol.
type AllocationConfig struct {
	MaxRetries int `yaml:"max_retries"`
	// InPlaceRetries bounds retries on a credential after a stale quota
	// finding. Nil means 1; 0 disables them.
	InPlaceRetries *int `yaml:"in_place_retries"`

	BulkSyncAfter   time.Duration `yaml:"bulk_sync_after"`
	LazySyncAfter   time.Duration `yaml:"lazy_sync_after"`
	Strict          bool          `yaml:"strict"`
	SyncConcurrency int           `yaml:"sync_concurrency"`
	Policy          string        `yaml:"policy"`
}

// SweepConfig configures the periodic quota refresh. A zero Interval disables it.
type SweepConfig struct {
	Interval time.Duration `yaml:"interval"`
	// Rate is the number of usage queries per second.
	Rate float64 `yaml:"rate"`
}

// ProviderConfig selects and configures the speech provider.
type ProviderConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Model   string        `yaml:"model"`
	Timeout time.Duration `yaml:"timeout"`
}

// StoreConfig selects the credential store.
type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Prefix string `yaml:"prefix"`
	// SecretKey is a 64 character hex AES-256 key used to seal secrets at rest.
	SecretKey string `yaml:"secret_key"`
}

// CacheConfig selects the expiring cache used for sessions and rate limits.
type CacheConfig struct {
	Driver string `yaml:"driver"`
	Addr   string `yaml:"addr"`
}

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	Listen        string          `yaml:"listen"`
	AdminPassword string          `yaml:"admin_password"`
	SessionTTL    time.Duration   `yaml:"session_ttl"`
	RateLimit     RateLimitConfig `yaml:"rate_limit"`
	MinTextChars  int             `yaml:"min_text_chars"`
	MaxTextChars  int             `yaml:"max_text_chars"`
}

// RateLimitConfig is a fixed window limit per client.
type RateLimitConfig struct {
	Requests int           `yaml:"requests"`
	Window   time.Duration `yaml:"window"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// CredentialConfig seeds a credential at startup.
type CredentialConfig struct {
	Label      string `yaml:"label"`
	Secret     string `yaml:"secret"`
	TotalQuota int64  `yaml:"total_quota"`
}

// InPlaceRetryLimit returns InPlaceRetries, or 1 when unset.
func (a AllocationConfig) InPlaceRetryLimit() int {
	if a.InPlaceRetries == nil {
		return 1
	}
	return *a.InPlaceRetries
}

// Int returns a pointer to v, for optional config fields.
func Int(v int) *int { return &v }

// DefaultConfig returns a Config with every default applied.
func DefaultConfig() Config {
	return Config{}.WithDefaults()
}

// WithDefaults fills zero fields with their defaults.
func (c Config) WithDefaults() Config {
	if c.Allocation.MaxRetries == 0 {
		c.Allocation.MaxRetries = 3
	}
	if c.Allocation.InPlaceRetries == nil {
		c.Allocation.InPlaceRetries = Int(1)
	}
	if c.Allocation.BulkSyncAfter == 0 {
		c.Allocation.BulkSyncAfter = time.Hour
	}
	if c.Allocation.LazySyncAfter == 0 {
		c.Allocation.LazySyncAfter = 6 * time.Hour
	}
	if c.Allocation.SyncConcurrency == 0 {
		c.Allocation.SyncConcurrency = 4
	}
	if c.Allocation.Policy == "" {
		c.Allocation.Policy = "best_fit"
	}

	def := DefaultSplitConfig()
	if c.Split.SafetyMargin == nil {
		c.Split.SafetyMargin = def.SafetyMargin
	}
	if c.Split.MaxChunkChars == 0 {
		c.Split.MaxChunkChars = def.MaxChunkChars
	}
	if c.Split.MinChunkChars == 0 {
		c.Split.MinChunkChars = def.MinChunkChars
	}
	if c.Split.ChunkConcurrency == 0 {
		c.Split.ChunkConcurrency = def.ChunkConcurrency
	}

	if c.Sweep.Rate == 0 {
		c.Sweep.Rate = 2
	}
	if c.Provider.Name == "" {
		c.Provider.Name = "elevenlabs"
	}
	if c.Provider.Timeout == 0 {
		c.Provider.Timeout = 60 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Cache.Driver == "" {
		c.Cache.Driver = "memory"
	}

	if c.Server.Listen == "" {
		c.Server.Listen = "127.0.0.1:8080"
	}
	if c.Server.SessionTTL == 0 {
		c.Server.SessionTTL = 24 * time.Hour
	}
	if c.Server.RateLimit.Requests == 0 {
		c.Server.RateLimit.Requests = 10
	}
	if c.Server.RateLimit.Window == 0 {
		c.Server.RateLimit.Window = time.Minute
	}
	if c.Server.MinTextChars == 0 {
		c.Server.MinTextChars = 100
	}
	if c.Server.MaxTextChars == 0 {
		c.Server.MaxTextChars = 10000
	}

	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	return c
}

// LoadConfig reads and parses a YAML config file.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("voicepool: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("voicepool: parse config: %w", err)
	}

	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks the config for required fields and consistency.
func (c Config) Validate() error {
	if c.Allocation.MaxRetries < 1 {
		return fmt.Errorf("voicepool: config: allocation.max_retries must be at least 1")
	}
	if c.Allocation.InPlaceRetryLimit() < 0 {
		return fmt.Errorf("voicepool: config: allocation.in_place_retries must not be negative")
	}
	if c.Allocation.Policy != "best_fit" && c.Allocation.Policy != "largest_first" {
		return fmt.Errorf("voicepool: config: invalid allocation.policy %q", c.Allocation.Policy)
	}
	if c.Split.margin() < 0 || c.Split.MinChunkChars <= 0 || c.Split.MaxChunkChars <= c.Split.MinChunkChars {
		return fmt.Errorf("voicepool: config: split limits must satisfy 0 < min_chunk_chars < max_chunk_chars")
	}
	if c.Sweep.Interval < 0 || c.Sweep.Rate <= 0 {
		return fmt.Errorf("voicepool: config: sweep.interval must not be negative and sweep.rate must be positive")
	}

	switch c.Store.Driver {
	case "memory":
	case "sqlite", "postgres", "redis":
		if c.Store.DSN == "" {
			return fmt.Errorf("voicepool: config: store.dsn is required for driver %q", c.Store.Driver)
		}
	default:
		return fmt.Errorf("voicepool: config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Store.SecretKey != "" && len(c.Store.SecretKey) != 64 {
		return fmt.Errorf("voicepool: config: store.secret_key must be 64 hex characters")
	}

	switch c.Cache.Driver {
	case "memory":
	case "redis":
		if c.Cache.Addr == "" {
			return fmt.Errorf("voicepool: config: cache.addr is required for driver redis")
		}
	default:
		return fmt.Errorf("voicepool: config: unknown cache.driver %q", c.Cache.Driver)
	}

	if c.Server.MinTextChars > c.Server.MaxTextChars {
		return fmt.Errorf("voicepool: config: server.min_text_chars exceeds server.max_text_chars")
	}

	secrets := make(map[string]bool, len(c.Credentials))
	for i, cred := range c.Credentials {
		if cred.Label == "" {
			return fmt.Errorf("voicepool: config: credentials[%d]: label is required", i)
		}
		if cred.Secret == "" {
			return fmt.Errorf("voicepool: config: credentials[%d] (%s): secret is required", i, cred.Label)
		}
		if cred.TotalQuota <= 0 {
			return fmt.Errorf("voicepool: config: credentials[%d] (%s): total_quota must be positive", i, cred.Label)
		}
		if secrets[cred.Secret] {
			return fmt.Errorf("voicepool: config: credentials[%d] (%s): duplicate secret", i, cred.Label)
		}
		secrets[cred.Secret] = true
	}

	return nil
}
