// Package kv provides the typed adapter over the external key-value store.
// Every component reaches Redis through this adapter; nothing else holds a
// raw client handle, which keeps the store swappable and mockable.
package kv

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	goredis "github.com/redis/go-redis/v9"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

// Store wraps a Redis client with the operation set the gateway needs:
// get/set-with-TTL, delete, atomic set-if-absent, cursor scan, and
// pipelined multi-ops. All failures surface as StorageUnavailable.
type Store struct {
	client goredis.UniversalClient

	// Statistics
	hits   atomic.Int64
	misses atomic.Int64
	sets   atomic.Int64
	errors atomic.Int64
}

// Config holds connection settings for the store.
type Config struct {
	// URL is a redis:// connection string.
	URL          string
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	PoolSize     int
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		URL:          "redis://localhost:6379/0",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
	}
}

// New connects to Redis and verifies the connection.
func New(cfg Config) (*Store, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	if cfg.DialTimeout > 0 {
		opts.DialTimeout = cfg.DialTimeout
	}
	if cfg.ReadTimeout > 0 {
		opts.ReadTimeout = cfg.ReadTimeout
	}
	if cfg.WriteTimeout > 0 {
		opts.WriteTimeout = cfg.WriteTimeout
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	client := goredis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), opts.DialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{client: client}, nil
}

// NewFromClient wraps an existing client. Used by tests with miniredis.
func NewFromClient(client goredis.UniversalClient) *Store {
	return &Store{client: client}
}

// Get retrieves a value. A missing key returns ("", false, nil).
func (s *Store) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			s.misses.Add(1)
			return "", false, nil
		}
		s.errors.Add(1)
		return "", false, gwerrors.NewStorageUnavailable("get", err)
	}
	s.hits.Add(1)
	return val, true, nil
}

// SetEx stores a value with a TTL.
func (s *Store) SetEx(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := s.client.Set(ctx, key, value, ttl).Err(); err != nil {
		s.errors.Add(1)
		return gwerrors.NewStorageUnavailable("set", err)
	}
	s.sets.Add(1)
	return nil
}

// Del removes keys and returns how many existed.
func (s *Store) Del(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	n, err := s.client.Del(ctx, keys...).Result()
	if err != nil {
		s.errors.Add(1)
		return 0, gwerrors.NewStorageUnavailable("del", err)
	}
	return n, nil
}

// SetNXEx atomically sets key iff absent, with a TTL. Returns whether the
// write occurred. This is the single-flight lock primitive.
func (s *Store) SetNXEx(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	if err != nil {
		s.errors.Add(1)
		return false, gwerrors.NewStorageUnavailable("setnx", err)
	}
	if ok {
		s.sets.Add(1)
	}
	return ok, nil
}

// Scan walks the full keyspace matching pattern, batch keys per round trip.
// Interleaved deletes are safe: SCAN guarantees keys present for the whole
// walk are returned, and keys deleted mid-walk may simply be absent.
func (s *Store) Scan(ctx context.Context, pattern string, batch int64) ([]string, error) {
	if batch <= 0 {
		batch = 100
	}

	var (
		cursor uint64
		keys   []string
	)
	for {
		page, next, err := s.client.Scan(ctx, cursor, pattern, batch).Result()
		if err != nil {
			s.errors.Add(1)
			return nil, gwerrors.NewStorageUnavailable("scan", err)
		}
		keys = append(keys, page...)
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

// GetMulti retrieves several keys in one pipelined MGET.
// Missing keys are absent from the result map.
func (s *Store) GetMulti(ctx context.Context, keys []string) (map[string]string, error) {
	if len(keys) == 0 {
		return map[string]string{}, nil
	}

	vals, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		s.errors.Add(1)
		return nil, gwerrors.NewStorageUnavailable("mget", err)
	}

	result := make(map[string]string, len(keys))
	for i, val := range vals {
		switch v := val.(type) {
		case string:
			result[keys[i]] = v
			s.hits.Add(1)
		case []byte:
			result[keys[i]] = string(v)
			s.hits.Add(1)
		default:
			s.misses.Add(1)
		}
	}
	return result, nil
}

// Entry is one pipelined write.
type Entry struct {
	Key   string
	Value string
	TTL   time.Duration
}

// SetMultiEx stores several values with TTLs in one pipeline round trip.
func (s *Store) SetMultiEx(ctx context.Context, entries []Entry) error {
	if len(entries) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, e := range entries {
		pipe.Set(ctx, e.Key, e.Value, e.TTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		s.errors.Add(1)
		return gwerrors.NewStorageUnavailable("pipeline", err)
	}
	s.sets.Add(int64(len(entries)))
	return nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return gwerrors.NewStorageUnavailable("ping", err)
	}
	return nil
}

// Close releases the connection pool.
func (s *Store) Close() error {
	return s.client.Close()
}

// Stats reports adapter counters.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Sets   int64 `json:"sets"`
	Errors int64 `json:"errors"`
}

// Stats returns a snapshot of the adapter counters.
func (s *Store) Stats() Stats {
	return Stats{
		Hits:   s.hits.Load(),
		Misses: s.misses.Load(),
		Sets:   s.sets.Load(),
		Errors: s.errors.Load(),
	}
}
