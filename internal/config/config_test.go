package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("GROQ_API_KEY", "gsk-test")
	t.Setenv("HF_API_TOKEN", "hf-test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
}

func TestLoad_FromEnvironment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("DEBUG_MODE", "true")
	t.Setenv("SIMILARITY_THRESHOLD", "0.9")
	t.Setenv("RATE_LIMIT_REQUESTS", "120")
	t.Setenv("RATE_LIMIT_WINDOW", "30")
	t.Setenv("SENTINEL_USER_KEYS", "key-a, key-b,")
	t.Setenv("SENTINEL_ADMIN_KEY", "key-admin")
	t.Setenv("CACHE_TTL_SECONDS", "7200")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.True(t, cfg.DebugMode)
	assert.Equal(t, "gsk-test", cfg.Generator.APIKey)
	assert.Equal(t, "hf-test", cfg.Embedding.APIToken)
	assert.Equal(t, 0.9, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 120, cfg.RateLimit.Capacity)
	assert.Equal(t, 30*time.Second, cfg.RateLimit.Window)
	assert.Equal(t, []string{"key-a", "key-b"}, cfg.Auth.UserKeys)
	assert.Equal(t, "key-admin", cfg.Auth.AdminKey)
}

func TestLoad_DefaultsApply(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 10*time.Second, cfg.Server.DrainTimeout)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 0.75, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 30*time.Second, cfg.Cache.LockTTL)
	assert.Equal(t, 5, cfg.Generator.BreakerThreshold)
	assert.Equal(t, 60*time.Second, cfg.Generator.BreakerCooldown)
	assert.Equal(t, 384, cfg.Embedding.Dimension)
	assert.False(t, cfg.DebugMode)
}

func TestLoad_MissingRequiredKeyFails(t *testing.T) {
	t.Setenv("GROQ_API_KEY", "")
	t.Setenv("HF_API_TOKEN", "hf-test")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")

	_, err := Load()
	assert.ErrorContains(t, err, "GROQ_API_KEY")
}

func TestLoad_YAMLFileWithEnvOverride(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 7000
cache:
  similarity_threshold: 0.7
rate_limit:
  capacity: 10
`), 0o600))
	t.Setenv("SENTINEL_CONFIG", path)

	// Environment still wins over the file.
	t.Setenv("SIMILARITY_THRESHOLD", "0.95")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 7000, cfg.Server.Port)
	assert.Equal(t, 0.95, cfg.Cache.SimilarityThreshold)
	assert.Equal(t, 10, cfg.RateLimit.Capacity)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		cfg := DefaultConfig()
		cfg.Generator.APIKey = "k"
		cfg.Embedding.APIToken = "t"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "bad port", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: "port"},
		{name: "threshold too high", mutate: func(c *Config) { c.Cache.SimilarityThreshold = 1.5 }, wantErr: "threshold"},
		{name: "zero ttl", mutate: func(c *Config) { c.Cache.TTL = 0 }, wantErr: "ttl"},
		{name: "zero capacity", mutate: func(c *Config) { c.RateLimit.Capacity = 0 }, wantErr: "capacity"},
		{name: "missing redis", mutate: func(c *Config) { c.Redis.URL = "" }, wantErr: "redis"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.ErrorContains(t, err, tt.wantErr)
			}
		})
	}
}
