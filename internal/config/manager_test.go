package config

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
}

func TestManager_LoadsInitialConfig(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	writeConfig(t, path, "server:\n  port: 7100\n")

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)
	defer m.Close()

	assert.Equal(t, 7100, m.Get().Server.Port)
}

func TestManager_HotReload(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	writeConfig(t, path, "cache:\n  similarity_threshold: 0.8\n")

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)

	changed := make(chan *Config, 1)
	m.OnChange(func(cfg *Config) { changed <- cfg })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	writeConfig(t, path, "cache:\n  similarity_threshold: 0.6\n")

	select {
	case cfg := <-changed:
		assert.Equal(t, 0.6, cfg.Cache.SimilarityThreshold)
		assert.Equal(t, 0.6, m.Get().Cache.SimilarityThreshold)
	case <-time.After(5 * time.Second):
		t.Fatal("config change was not observed")
	}
}

func TestManager_InvalidReloadKeepsCurrent(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	writeConfig(t, path, "server:\n  port: 7100\n")

	m, err := NewManager(path, slog.Default())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.Watch(ctx))

	writeConfig(t, path, "server:\n  port: -1\n")

	// Give the debounce a chance to fire, then verify the old config held.
	time.Sleep(time.Second)
	assert.Equal(t, 7100, m.Get().Server.Port)
}

func TestStaticManager(t *testing.T) {
	cfg := DefaultConfig()
	m := NewStaticManager(cfg, slog.Default())

	assert.Same(t, cfg, m.Get())
	assert.NoError(t, m.Watch(context.Background()))
	assert.NoError(t, m.Close())
}
