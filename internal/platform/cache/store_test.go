package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisStore(client, time.Second), mr
}

func TestRedisStoreRoundTrip(t *testing.T) {
	store, mr := newTestStore(t)
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	require.True(t, errors.Is(err, ErrMiss))

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Minute))
	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, "v", string(got))

	ok, err := store.Exists(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)

	mr.FastForward(2 * time.Minute)
	ok, err = store.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestRedisStoreDeleteReportsPresence(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), 0))
	deleted, err := store.Delete(ctx, "k")
	require.NoError(t, err)
	require.True(t, deleted)

	deleted, err = store.Delete(ctx, "k")
	require.NoError(t, err)
	require.False(t, deleted)
}

func TestRedisStoreCounters(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	n, err := store.GetInt(ctx, "ver")
	require.NoError(t, err)
	require.Zero(t, n)

	n, err = store.Incr(ctx, "ver")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	n, err = store.GetInt(ctx, "ver")
	require.NoError(t, err)
	require.EqualValues(t, 1, n)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newTestStore(t)
	mr.Close()

	_, err := store.Get(context.Background(), "k")
	require.Error(t, err)
	require.False(t, errors.Is(err, ErrMiss))
}
