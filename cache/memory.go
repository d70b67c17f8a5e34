package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// MemoryCache is an in-memory cache bounded by entry count.
//
// When full, expired entries are purged first, then the least recently used
// entry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]*list.Element
	lru        *list.List // front is most recently used
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
}

// MemoryOption configures a MemoryCache.
type MemoryOption func(*MemoryCache)

// WithClock sets the clock used for expiry.
func WithClock(now func() time.Time) MemoryOption {
	return func(c *MemoryCache) { c.now = now }
}

// NewMemoryCache creates an in-memory cache holding at most maxEntries
// entries. A non-positive maxEntries defaults to 10000.
func NewMemoryCache(maxEntries int, opts ...MemoryOption) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 10000
	}
	c := &MemoryCache{
		entries:    make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value from the cache. Expired entries are removed lazily.
func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.entries[key]
	if !ok {
		return nil, ErrNotFound
	}
	entry := el.Value.(*cacheEntry)
	if !c.now().Before(entry.expiresAt) {
		c.removeLocked(el)
		return nil, ErrNotFound
	}
	c.lru.MoveToFront(el)
	return entry.value, nil
}

// Set stores a value with the given TTL. A non-positive TTL stores nothing
// and removes any previous value.
func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[key]; ok {
		if ttl <= 0 {
			c.removeLocked(el)
			return nil
		}
		entry := el.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = c.now().Add(ttl)
		c.lru.MoveToFront(el)
		return nil
	}
	if ttl <= 0 {
		return nil
	}

	if len(c.entries) >= c.maxEntries {
		c.purgeExpiredLocked()
	}
	for len(c.entries) >= c.maxEntries {
		c.removeLocked(c.lru.Back())
	}

	c.entries[key] = c.lru.PushFront(&cacheEntry{
		key:       key,
		value:     value,
		expiresAt: c.now().Add(ttl),
	})
	return nil
}

// Delete removes a value from the cache. Idempotent - no error on miss.
func (c *MemoryCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.entries[key]; ok {
		c.removeLocked(el)
	}
	return nil
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryCache) purgeExpiredLocked() {
	now := c.now()
	for el := c.lru.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*cacheEntry).expiresAt) {
			c.removeLocked(el)
		}
		el = prev
	}
}

func (c *MemoryCache) removeLocked(el *list.Element) {
	c.lru.Remove(el)
	delete(c.entries, el.Value.(*cacheEntry).key)
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
