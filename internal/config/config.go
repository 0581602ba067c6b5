// Package config provides configuration management for the gateway.
// Settings come from the environment, optionally layered over a YAML file
// named by SENTINEL_CONFIG, with hot-reload via fsnotify.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete gateway configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Cache     CacheConfig     `yaml:"cache"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Generator GeneratorConfig `yaml:"generator"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Auth      AuthConfig      `yaml:"auth"`
	Logging   LoggingConfig   `yaml:"logging"`
	// DebugMode enables the admin/debug surface.
	DebugMode bool `yaml:"debug_mode"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
	// DrainTimeout bounds graceful shutdown.
	DrainTimeout time.Duration `yaml:"drain_timeout"`
}

// CacheConfig tunes the semantic cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
	// SimilarityThreshold is the default cosine score for a semantic hit.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	// LockTTL bounds the single-flight lock.
	LockTTL time.Duration `yaml:"lock_ttl"`
}

// EmbeddingConfig configures the embedding provider.
type EmbeddingConfig struct {
	APIToken  string        `yaml:"api_token"`
	BaseURL   string        `yaml:"base_url"`
	Model     string        `yaml:"model"`
	Dimension int           `yaml:"dimension"`
	Timeout   time.Duration `yaml:"timeout"`
	// MemoTTL caches embeddings in-process; zero disables the memo.
	MemoTTL time.Duration `yaml:"memo_ttl"`
}

// GeneratorConfig configures the upstream LLM provider.
type GeneratorConfig struct {
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Model          string        `yaml:"model"`
	Timeout        time.Duration `yaml:"timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	// BreakerThreshold is the consecutive failures before the circuit opens.
	BreakerThreshold int `yaml:"breaker_threshold"`
	// BreakerCooldown is how long the circuit stays open.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// RedisConfig contains store connection settings.
type RedisConfig struct {
	URL      string `yaml:"url"`
	PoolSize int    `yaml:"pool_size"`
}

// RateLimitConfig defines the per-key token bucket.
type RateLimitConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Capacity int           `yaml:"capacity"`
	Window   time.Duration `yaml:"window"`
}

// AuthConfig holds the static API key sets.
type AuthConfig struct {
	UserKeys []string `yaml:"user_keys"`
	AdminKey string   `yaml:"admin_key"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// DefaultConfig returns a configuration with production defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
			DrainTimeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL:                 time.Hour,
			SimilarityThreshold: 0.75,
			LockTTL:             30 * time.Second,
		},
		Embedding: EmbeddingConfig{
			Model:     "sentence-transformers/all-MiniLM-L6-v2",
			Dimension: 384,
			Timeout:   10 * time.Second,
			MemoTTL:   5 * time.Minute,
		},
		Generator: GeneratorConfig{
			Model:            "llama-3.1-8b-instant",
			Timeout:          30 * time.Second,
			MaxAttempts:      3,
			InitialBackoff:   time.Second,
			BreakerThreshold: 5,
			BreakerCooldown:  60 * time.Second,
		},
		Redis: RedisConfig{
			URL:      "redis://localhost:6379/0",
			PoolSize: 10,
		},
		RateLimit: RateLimitConfig{
			Enabled:  true,
			Capacity: 60,
			Window:   time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load builds the effective configuration: defaults, then the optional
// YAML file named by SENTINEL_CONFIG, then environment overrides.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv("SENTINEL_CONFIG"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadFromFile reads and parses a YAML configuration file over defaults
// and environment overrides. Used by the hot-reload manager.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	if err := applyFile(cfg, path); err != nil {
		return nil, err
	}
	applyEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// ${VAR} references in the file are expanded before parsing.
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Generator.APIKey, "GROQ_API_KEY")
	setString(&cfg.Generator.BaseURL, "GROQ_BASE_URL")
	setString(&cfg.Generator.Model, "GROQ_MODEL")
	setString(&cfg.Embedding.APIToken, "HF_API_TOKEN")
	setString(&cfg.Embedding.BaseURL, "HF_BASE_URL")
	setString(&cfg.Embedding.Model, "HF_MODEL")
	setString(&cfg.Redis.URL, "REDIS_URL")
	setString(&cfg.Auth.AdminKey, "SENTINEL_ADMIN_KEY")
	setString(&cfg.Logging.Level, "LOG_LEVEL")
	setString(&cfg.Logging.Format, "LOG_FORMAT")

	if v := os.Getenv("SENTINEL_USER_KEYS"); v != "" {
		cfg.Auth.UserKeys = splitKeys(v)
	}
	if v := os.Getenv("PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DEBUG_MODE"); v != "" {
		cfg.DebugMode = parseBool(v)
	}
	if v := os.Getenv("CACHE_TTL_SECONDS"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.Cache.TTL = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Cache.SimilarityThreshold = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_REQUESTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.RateLimit.Capacity = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.RateLimit.Window = time.Duration(sec) * time.Second
		}
	}
	if v := os.Getenv("RATE_LIMIT_ENABLED"); v != "" {
		cfg.RateLimit.Enabled = parseBool(v)
	}
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func parseBool(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

func splitKeys(v string) []string {
	parts := strings.Split(v, ",")
	keys := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			keys = append(keys, trimmed)
		}
	}
	return keys
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.Generator.APIKey == "" {
		return fmt.Errorf("generator api key is required (GROQ_API_KEY)")
	}
	if c.Embedding.APIToken == "" {
		return fmt.Errorf("embedding api token is required (HF_API_TOKEN)")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("redis url is required (REDIS_URL)")
	}
	if c.Cache.SimilarityThreshold < 0 || c.Cache.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0,1], got %v", c.Cache.SimilarityThreshold)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache ttl must be positive")
	}
	if c.RateLimit.Capacity <= 0 {
		return fmt.Errorf("rate limit capacity must be positive")
	}
	if c.RateLimit.Window <= 0 {
		return fmt.Errorf("rate limit window must be positive")
	}
	if c.Generator.MaxAttempts <= 0 {
		return fmt.Errorf("generator max attempts must be positive")
	}
	return nil
}
