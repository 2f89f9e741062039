package rbac

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
)

func newTestCache(t *testing.T) (*PermissionCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewPermissionCache(cache.NewRedisStore(client, time.Second), time.Minute), mr
}

func testSnapshot(userID string, version int64, now time.Time) *PermissionSnapshot {
	return &PermissionSnapshot{
		UserID:           userID,
		GlobalRights:     []string{},
		DepartmentRights: map[string][]string{"d1": {"content:courses:read"}},
		Hierarchy:        map[string][]string{},
		ComputedAt:       now,
		ExpiresAt:        now.Add(time.Minute),
		Version:          version,
	}
}

func TestPermissionCacheRoundTrip(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, time.Now()), 0))
	snap, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []string{"content:courses:read"}, snap.DepartmentRights["d1"])
}

func TestPermissionCacheNeverServesStaleVersion(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, time.Now()), 0))
	require.NoError(t, c.Invalidate(ctx, "u1"))

	version, err := c.CurrentVersion(ctx, "u1")
	require.NoError(t, err)
	require.EqualValues(t, 1, version)

	// A late writer that computed before the invalidation must not win.
	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, time.Now()), 0))
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 1, time.Now()), 0))
	_, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPermissionCacheBumpHidesEverySnapshot(t *testing.T) {
	c, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, time.Now()), 0))
	require.NoError(t, c.Put(ctx, "u2", testSnapshot("u2", 0, time.Now()), 0))
	require.NoError(t, c.Bump(ctx))

	for _, id := range []string{"u1", "u2"} {
		_, ok, err := c.Get(ctx, id)
		require.NoError(t, err)
		require.False(t, ok, id)
	}
}

func TestPermissionCacheExpiry(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()
	now := time.Now()

	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, now), time.Hour))
	c.now = func() time.Time { return now.Add(2 * time.Minute) }
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok, "expired snapshot served while still stored")

	c.now = time.Now
	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, now), 0))
	mr.FastForward(2 * time.Minute)
	_, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheCorruptPayloadIsMiss(t *testing.T) {
	c, mr := newTestCache(t)
	require.NoError(t, mr.Set("authz:perm:0:u1", "{not json"))

	_, ok, err := c.Get(context.Background(), "u1")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestPermissionCacheUnavailable(t *testing.T) {
	c, mr := newTestCache(t)
	mr.Close()

	_, _, err := c.Get(context.Background(), "u1")
	require.Error(t, err)
}

func TestPermissionCacheDisabled(t *testing.T) {
	c := NewPermissionCache(nil, 0)
	ctx := context.Background()

	require.Equal(t, 15*time.Minute, c.TTL())
	require.NoError(t, c.Put(ctx, "u1", testSnapshot("u1", 0, time.Now()), 0))
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)
	require.NoError(t, c.Invalidate(ctx, "u1"))
	require.NoError(t, c.Bump(ctx))
}

func TestPermissionCacheIgnoresSnapshotFromOlderEpoch(t *testing.T) {
	c, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Bump(ctx))
	stale := testSnapshot("u1", 0, time.Now())
	require.NoError(t, c.Put(ctx, "u1", stale, 0))
	require.True(t, mr.Exists("authz:perm:0:u1"))
	_, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	// A payload whose epoch lags the key it sits under is stale too.
	require.NoError(t, mr.Set("authz:perm:1:u1", mustJSON(t, stale)))
	_, ok, err = c.Get(ctx, "u1")
	require.NoError(t, err)
	require.False(t, ok)

	fresh := testSnapshot("u1", 0, time.Now())
	fresh.Epoch = 1
	require.NoError(t, c.Put(ctx, "u1", fresh, 0))
	got, ok, err := c.Get(ctx, "u1")
	require.NoError(t, err)
	require.True(t, ok)
	require.EqualValues(t, 1, got.Epoch)

	stamp, err := c.CurrentStamp(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, Stamp{Version: 0, Epoch: 1}, stamp)
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	payload, err := json.Marshal(v)
	require.NoError(t, err)
	return string(payload)
}
