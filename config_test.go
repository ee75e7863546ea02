package voicepool_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/voicepool"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voicepool.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := voicepool.DefaultConfig()
	assert.Equal(t, 3, cfg.Allocation.MaxRetries)
	assert.Equal(t, 1, cfg.Allocation.InPlaceRetryLimit())
	assert.Equal(t, time.Hour, cfg.Allocation.BulkSyncAfter)
	assert.Equal(t, 6*time.Hour, cfg.Allocation.LazySyncAfter)
	assert.Equal(t, "best_fit", cfg.Allocation.Policy)
	assert.Equal(t, voicepool.DefaultSplitConfig(), cfg.Split)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 10, cfg.Server.RateLimit.Requests)
	assert.Equal(t, 100, cfg.Server.MinTextChars)
	assert.Equal(t, 10000, cfg.Server.MaxTextChars)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_ExpandsEnv(t *testing.T) {
	t.Setenv("VOICEPOOL_TEST_KEY", "sk_from_env_0123456789")
	path := writeConfig(t, `
allocation:
  max_retries: 5
  strict: true
store:
  driver: sqlite
  dsn: /tmp/voicepool.db
sweep:
  interval: 15m
credentials:
  - label: main
    secret: ${VOICEPOOL_TEST_KEY}
    total_quota: 10000
`)

	cfg, err := voicepool.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Allocation.MaxRetries)
	assert.True(t, cfg.Allocation.Strict)
	assert.Equal(t, 15*time.Minute, cfg.Sweep.Interval)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	require.Len(t, cfg.Credentials, 1)
	assert.Equal(t, "sk_from_env_0123456789", cfg.Credentials[0].Secret)
	assert.Equal(t, 1, cfg.Allocation.InPlaceRetryLimit())
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := voicepool.LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = voicepool.LoadConfig(writeConfig(t, "allocation: [not, a, map]"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*voicepool.Config)
		want   string
	}{
		{"bad policy", func(c *voicepool.Config) { c.Allocation.Policy = "random" }, "allocation.policy"},
		{"negative in place", func(c *voicepool.Config) { c.Allocation.InPlaceRetries = voicepool.Int(-1) }, "in_place_retries"},
		{"split limits", func(c *voicepool.Config) { c.Split.MaxChunkChars = 50 }, "split limits"},
		{"unknown store", func(c *voicepool.Config) { c.Store.Driver = "mongo" }, "store.driver"},
		{"postgres without dsn", func(c *voicepool.Config) { c.Store.Driver = "postgres" }, "store.dsn"},
		{"short secret key", func(c *voicepool.Config) { c.Store.SecretKey = "abcd" }, "secret_key"},
		{"redis cache without addr", func(c *voicepool.Config) { c.Cache.Driver = "redis" }, "cache.addr"},
		{"text bounds", func(c *voicepool.Config) { c.Server.MinTextChars = 20000 }, "min_text_chars"},
		{"credential without label", func(c *voicepool.Config) {
			c.Credentials = []voicepool.CredentialConfig{{Secret: "s", TotalQuota: 1}}
		}, "label is required"},
		{"credential without quota", func(c *voicepool.Config) {
			c.Credentials = []voicepool.CredentialConfig{{Label: "a", Secret: "s"}}
		}, "total_quota"},
		{"duplicate secret", func(c *voicepool.Config) {
			c.Credentials = []voicepool.CredentialConfig{
				{Label: "a", Secret: "s", TotalQuota: 1},
				{Label: "b", Secret: "s", TotalQuota: 1},
			}
		}, "duplicate secret"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := voicepool.DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestWithDefaults_KeepsExplicitZero(t *testing.T) {
	cfg := voicepool.Config{
		Allocation: voicepool.AllocationConfig{InPlaceRetries: voicepool.Int(0)},
		Split:      voicepool.SplitConfig{SafetyMargin: voicepool.Int(0)},
	}.WithDefaults()
	assert.Equal(t, 0, cfg.Allocation.InPlaceRetryLimit())
	assert.Equal(t, 0, *cfg.Split.SafetyMargin)
	assert.NoError(t, cfg.Validate())

	path := writeConfig(t, `
allocation:
  in_place_retries: 0
split:
  safety_margin: 0
`)
	loaded, err := voicepool.LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.Allocation.InPlaceRetryLimit())
	assert.Equal(t, 0, *loaded.Split.SafetyMargin)
}
