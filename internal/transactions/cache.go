package transactions

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultCacheCapacity = 4096
	defaultCacheTTL      = 30 * time.Second
)

// statusCache is a capacity-bounded TTL cache for status lookups.
// Eviction is LRU when full; entries also expire after the TTL so a
// stale status can only delay a filing decision briefly, never past
// the cache window. The clock is injected for deterministic tests.
type statusCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time
	entries  map[string]*list.Element
	order    *list.List // front = most recently used
}

type cacheEntry struct {
	key       string
	info      *StatusInfo
	expiresAt time.Time
}

func newStatusCache(capacity int, ttl time.Duration, now func() time.Time) *statusCache {
	return &statusCache{
		capacity: capacity,
		ttl:      ttl,
		now:      now,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

func (c *statusCache) get(key string) (*StatusInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	entry := el.Value.(*cacheEntry)
	if c.now().After(entry.expiresAt) {
		c.order.Remove(el)
		delete(c.entries, key)
		return nil, false
	}
	c.order.MoveToFront(el)
	cp := *entry.info
	return &cp, true
}

func (c *statusCache) put(key string, info *StatusInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()

	cp := *info
	entry := &cacheEntry{key: key, info: &cp, expiresAt: c.now().Add(c.ttl)}

	if el, ok := c.entries[key]; ok {
		el.Value = entry
		c.order.MoveToFront(el)
		return
	}

	c.entries[key] = c.order.PushFront(entry)

	if c.order.Len() > c.capacity {
		oldest := c.order.Back()
		if oldest != nil {
			c.order.Remove(oldest)
			delete(c.entries, oldest.Value.(*cacheEntry).key)
		}
	}
}

func (c *statusCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		c.order.Remove(el)
		delete(c.entries, key)
	}
}
