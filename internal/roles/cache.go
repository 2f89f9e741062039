package roles

import (
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CacheObserver records role cache lookups.
type CacheObserver interface {
	ObserveRoleCache(result string)
}

// definitionCache is the in-process tier holding role definitions by name.
// Entries belong to one permission epoch; a different epoch empties the tier.
type definitionCache struct {
	mu       sync.Mutex
	epoch    int64
	lru      *expirable.LRU[string, RoleDefinition]
	observer CacheObserver
}

func newDefinitionCache(size int, ttl time.Duration, observer CacheObserver) *definitionCache {
	if size <= 0 {
		size = 512
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &definitionCache{lru: expirable.NewLRU[string, RoleDefinition](size, nil, ttl), observer: observer}
}

// advance moves the tier to epoch, purging it when the epoch changed.
func (c *definitionCache) advance(epoch int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch != c.epoch {
		c.lru.Purge()
		c.epoch = epoch
	}
}

func (c *definitionCache) get(name string, epoch int64) (RoleDefinition, bool) {
	c.mu.Lock()
	var (
		d  RoleDefinition
		ok bool
	)
	if epoch == c.epoch {
		d, ok = c.lru.Get(name)
	}
	c.mu.Unlock()
	if ok {
		c.observe("hit")
	} else {
		c.observe("miss")
	}
	return d, ok
}

// add keeps d only when it was loaded under the tier's current epoch.
func (c *definitionCache) add(d RoleDefinition, epoch int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if epoch == c.epoch {
		c.lru.Add(d.Name, d)
	}
}

func (c *definitionCache) remove(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(name)
}

func (c *definitionCache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveRoleCache(result)
	}
}
