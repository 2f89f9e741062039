package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/odyssey-lms/odyssey-lms/internal/platform/cache"
)

const (
	permEpochKey       = "authz:perm:epoch"
	permVersionKey     = "authz:perm:ver:"
	permSnapshotKey    = "authz:perm:"
	defaultSnapshotTTL = 15 * time.Minute
)

// PermissionCache stores permission snapshots with per-user version counters
// and a global epoch that role definition edits bump.
type PermissionCache struct {
	store cache.Store
	ttl   time.Duration
	now   func() time.Time
}

// NewPermissionCache instantiates the cache helper. A nil store disables caching.
func NewPermissionCache(store cache.Store, ttl time.Duration) *PermissionCache {
	if ttl <= 0 {
		ttl = defaultSnapshotTTL
	}
	return &PermissionCache{store: store, ttl: ttl, now: time.Now}
}

// TTL exposes the snapshot lifetime.
func (c *PermissionCache) TTL() time.Duration {
	if c == nil {
		return defaultSnapshotTTL
	}
	return c.ttl
}

func (c *PermissionCache) enabled() bool {
	return c != nil && c.store != nil
}

func snapshotKey(epoch int64, userID string) string {
	return fmt.Sprintf("%s%d:%s", permSnapshotKey, epoch, userID)
}

// Get returns a fresh snapshot. Absent, expired and stale snapshots are all misses.
func (c *PermissionCache) Get(ctx context.Context, userID string) (*PermissionSnapshot, bool, error) {
	if !c.enabled() {
		return nil, false, nil
	}
	epoch, err := c.CurrentEpoch(ctx)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.store.Get(ctx, snapshotKey(epoch, userID))
	if errors.Is(err, cache.ErrMiss) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var snap PermissionSnapshot
	if err := json.Unmarshal(payload, &snap); err != nil {
		return nil, false, nil
	}
	if snap.Expired(c.now()) || snap.Epoch < epoch {
		return nil, false, nil
	}
	current, err := c.CurrentVersion(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	if snap.Version < current {
		return nil, false, nil
	}
	return &snap, true, nil
}

// Put stores snap for ttl under the epoch it was computed for, so a snapshot
// that raced a Bump is never visible under the newer epoch. Callers treat
// failures as non-fatal.
func (c *PermissionCache) Put(ctx context.Context, userID string, snap *PermissionSnapshot, ttl time.Duration) error {
	if !c.enabled() || snap == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, snapshotKey(snap.Epoch, userID), payload, ttl)
}

// Invalidate advances the user's version and drops the current snapshot.
func (c *PermissionCache) Invalidate(ctx context.Context, userID string) error {
	if !c.enabled() {
		return nil
	}
	if _, err := c.store.Incr(ctx, permVersionKey+userID); err != nil {
		return err
	}
	epoch, err := c.CurrentEpoch(ctx)
	if err != nil {
		return err
	}
	_, err = c.store.Delete(ctx, snapshotKey(epoch, userID))
	return err
}

// CurrentVersion returns the authoritative version counter for userID.
func (c *PermissionCache) CurrentVersion(ctx context.Context, userID string) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return c.store.GetInt(ctx, permVersionKey+userID)
}

// CurrentEpoch returns the global epoch.
func (c *PermissionCache) CurrentEpoch(ctx context.Context) (int64, error) {
	if !c.enabled() {
		return 0, nil
	}
	return c.store.GetInt(ctx, permEpochKey)
}

// CurrentStamp reads the user's version and the global epoch.
func (c *PermissionCache) CurrentStamp(ctx context.Context, userID string) (Stamp, error) {
	version, err := c.CurrentVersion(ctx, userID)
	if err != nil {
		return Stamp{}, err
	}
	epoch, err := c.CurrentEpoch(ctx)
	if err != nil {
		return Stamp{}, err
	}
	return Stamp{Version: version, Epoch: epoch}, nil
}

// Bump invalidates every snapshot by advancing the global epoch.
func (c *PermissionCache) Bump(ctx context.Context) error {
	if !c.enabled() {
		return nil
	}
	_, err := c.store.Incr(ctx, permEpochKey)
	return err
}
