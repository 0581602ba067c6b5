// Package cache implements the exact-match response cache and the linear
// semantic index over its live entry set.
//
// Layout in the KV store:
//
//	sentinel:cache:<prompt>            response text
//	sentinel:cache:<prompt>:embedding  JSON array of float32
//
// Both keys share the same TTL so an entry and its embedding expire together.
package cache

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"

	"github.com/sentinel-gateway/sentinel/internal/kv"
)

const (
	// DefaultPrefix namespaces every cache key.
	DefaultPrefix = "sentinel:cache:"

	// DefaultTTL is the entry lifetime when none is configured.
	DefaultTTL = time.Hour

	embeddingSuffix = ":embedding"
	scanBatch       = 100
)

// Entry is one live cache entry as seen by the semantic scan.
// Embedding is nil when the sibling key was never written or has expired;
// such entries can still serve exact hits but never semantic ones.
type Entry struct {
	Prompt    string
	Response  string
	Embedding []float32
}

// Store maps prompt fingerprints to responses with TTL.
type Store struct {
	kv     *kv.Store
	prefix string
	ttl    time.Duration

	// Process-local counters surfaced by the JSON stats endpoint.
	hits   atomic.Int64
	misses atomic.Int64
}

// New creates a cache store over the KV adapter.
func New(kvStore *kv.Store, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{kv: kvStore, prefix: prefix, ttl: ttl}
}

func (s *Store) key(prompt string) string {
	return s.prefix + prompt
}

// TTL returns the configured entry lifetime.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Get returns the cached response for an exact prompt match.
func (s *Store) Get(ctx context.Context, prompt string) (string, bool, error) {
	val, found, err := s.kv.Get(ctx, s.key(prompt))
	if err != nil {
		return "", false, err
	}
	if found {
		s.hits.Add(1)
	} else {
		s.misses.Add(1)
	}
	return val, found, nil
}

// Set stores a response and, when present, its embedding sibling, both under
// the configured TTL. Writes go through one pipeline so the two keys share
// the TTL within clock tolerance.
func (s *Store) Set(ctx context.Context, prompt, response string, embedding []float32) error {
	entries := []kv.Entry{
		{Key: s.key(prompt), Value: response, TTL: s.ttl},
	}
	if len(embedding) > 0 {
		encoded, err := json.Marshal(embedding)
		if err != nil {
			return err
		}
		entries = append(entries, kv.Entry{
			Key:   s.key(prompt) + embeddingSuffix,
			Value: string(encoded),
			TTL:   s.ttl,
		})
	}
	return s.kv.SetMultiEx(ctx, entries)
}

// Entries collects the current live cache set for the semantic scan.
// Embedding-sibling keys are filtered out; entries whose response expired
// between the scan and the read are skipped.
func (s *Store) Entries(ctx context.Context) ([]Entry, error) {
	keys, err := s.kv.Scan(ctx, s.prefix+"*", scanBatch)
	if err != nil {
		return nil, err
	}

	var cacheKeys []string
	for _, k := range keys {
		if strings.HasSuffix(k, embeddingSuffix) {
			continue
		}
		cacheKeys = append(cacheKeys, k)
	}
	if len(cacheKeys) == 0 {
		return nil, nil
	}

	fetch := make([]string, 0, len(cacheKeys)*2)
	for _, k := range cacheKeys {
		fetch = append(fetch, k, k+embeddingSuffix)
	}
	values, err := s.kv.GetMulti(ctx, fetch)
	if err != nil {
		return nil, err
	}

	entries := make([]Entry, 0, len(cacheKeys))
	for _, k := range cacheKeys {
		response, ok := values[k]
		if !ok {
			continue
		}
		entry := Entry{
			Prompt:   strings.TrimPrefix(k, s.prefix),
			Response: response,
		}
		if raw, ok := values[k+embeddingSuffix]; ok {
			var vec []float32
			if err := json.Unmarshal([]byte(raw), &vec); err == nil && len(vec) > 0 {
				entry.Embedding = vec
			}
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Count returns the number of live cache entries, excluding embedding siblings.
func (s *Store) Count(ctx context.Context) (int, error) {
	keys, err := s.kv.Scan(ctx, s.prefix+"*", scanBatch)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, k := range keys {
		if !strings.HasSuffix(k, embeddingSuffix) {
			n++
		}
	}
	return n, nil
}

// Clear deletes every key under the cache prefix and returns the count.
func (s *Store) Clear(ctx context.Context) (int, error) {
	keys, err := s.kv.Scan(ctx, s.prefix+"*", scanBatch)
	if err != nil {
		return 0, err
	}
	if len(keys) == 0 {
		return 0, nil
	}
	deleted, err := s.kv.Del(ctx, keys...)
	if err != nil {
		return 0, err
	}
	return int(deleted), nil
}

// HitCount and MissCount expose process-local counters.
func (s *Store) HitCount() int64  { return s.hits.Load() }
func (s *Store) MissCount() int64 { return s.misses.Load() }
