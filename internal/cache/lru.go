// Package cache stores analysis results in memory, in Redis, or in both.
package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// LRUCache is a thread-safe LRU cache with optional per-entry TTL.
// It is the default analysis cache and the L1 of the two-phase cache.
type LRUCache struct {
	mu      sync.RWMutex
	maxSize int // 0 means unbounded
	items   map[string]*list.Element
	order   *list.List
}

type cacheEntry struct {
	key       string
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e *cacheEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// NewLRUCache creates an LRU cache holding at most maxSize entries.
// A maxSize of 0 or less keeps every entry.
func NewLRUCache(maxSize int) *LRUCache {
	if maxSize < 0 {
		maxSize = 0
	}
	return &LRUCache{
		maxSize: maxSize,
		items:   make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get retrieves a value from cache.
func (c *LRUCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		return nil, nil
	}

	entry := elem.Value.(*cacheEntry)
	if entry.expired(time.Now()) {
		c.removeElement(elem)
		return nil, nil
	}

	c.order.MoveToFront(elem)
	return entry.value, nil
}

// Set stores a value. A zero ttl keeps the entry until it is evicted.
func (c *LRUCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.order.MoveToFront(elem)
		entry := elem.Value.(*cacheEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		return nil
	}

	elem := c.order.PushFront(&cacheEntry{key: key, value: value, expiresAt: expiresAt})
	c.items[key] = elem

	for c.maxSize > 0 && c.order.Len() > c.maxSize {
		c.removeOldest()
	}
	return nil
}

// Delete removes a value from cache.
func (c *LRUCache) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		c.removeElement(elem)
	}
	return nil
}

// Ping checks cache health.
func (c *LRUCache) Ping(context.Context) error {
	return nil
}

// Close drops every entry.
func (c *LRUCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order = list.New()
	return nil
}

// Stats returns the entry count and the configured capacity (0 = unbounded).
func (c *LRUCache) Stats() (size int, capacity int) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len(), c.maxSize
}

func (c *LRUCache) removeElement(elem *list.Element) {
	c.order.Remove(elem)
	entry := elem.Value.(*cacheEntry)
	delete(c.items, entry.key)
}

func (c *LRUCache) removeOldest() {
	if elem := c.order.Back(); elem != nil {
		c.removeElement(elem)
	}
}
