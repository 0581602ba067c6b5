package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gwerrors "github.com/sentinel-gateway/sentinel/pkg/errors"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	return NewFromClient(client), mr
}

func TestStore_GetSetEx(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, found, err := store.Get(ctx, "absent")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetEx(ctx, "k", "v", time.Minute))

	val, found, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)

	// TTL applied
	assert.Greater(t, mr.TTL("k"), time.Duration(0))
}

func TestStore_SetNXEx(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	ok, err := store.SetNXEx(ctx, "lock", "held", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	// Second contender loses
	ok, err = store.SetNXEx(ctx, "lock", "held", 30*time.Second)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = store.Del(ctx, "lock")
	require.NoError(t, err)

	ok, err = store.SetNXEx(ctx, "lock", "held", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStore_Scan(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"cache:a", "cache:b", "cache:b:embedding", "other:c"} {
		require.NoError(t, store.SetEx(ctx, k, "x", time.Minute))
	}

	keys, err := store.Scan(ctx, "cache:*", 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"cache:a", "cache:b", "cache:b:embedding"}, keys)
}

func TestStore_GetMulti(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "a", "1", time.Minute))
	require.NoError(t, store.SetEx(ctx, "c", "3", time.Minute))

	got, err := store.GetMulti(ctx, []string{"a", "b", "c"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "c": "3"}, got)
}

func TestStore_SetMultiEx(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	entries := []Entry{
		{Key: "x", Value: "1", TTL: time.Hour},
		{Key: "y", Value: "2", TTL: time.Hour},
	}
	require.NoError(t, store.SetMultiEx(ctx, entries))

	for _, k := range []string{"x", "y"} {
		assert.True(t, mr.Exists(k))
		assert.Greater(t, mr.TTL(k), time.Duration(0))
	}
}

func TestStore_FailuresAreStorageUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()
	mr.Close()

	_, _, err := store.Get(ctx, "k")
	assert.True(t, gwerrors.IsKind(err, gwerrors.KindStorageUnavailable))

	err = store.SetEx(ctx, "k", "v", time.Minute)
	assert.True(t, gwerrors.IsKind(err, gwerrors.KindStorageUnavailable))

	_, err = store.SetNXEx(ctx, "k", "v", time.Minute)
	assert.True(t, gwerrors.IsKind(err, gwerrors.KindStorageUnavailable))

	_, err = store.Scan(ctx, "*", 10)
	assert.True(t, gwerrors.IsKind(err, gwerrors.KindStorageUnavailable))
}

func TestStore_Stats(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetEx(ctx, "k", "v", time.Minute))
	_, _, _ = store.Get(ctx, "k")
	_, _, _ = store.Get(ctx, "missing")

	stats := store.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Equal(t, int64(1), stats.Sets)
}
