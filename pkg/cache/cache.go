package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

// Item represents a cached value with expiration time.
type Item struct {
	V   any
	Exp int64 // unix nanoseconds; 0 = no expiry
}

// Cache is a simple in-memory TTL cache safe for concurrent use.
type Cache struct {
	mu       sync.RWMutex
	items    map[string]*entry
	order    *list.List // MRU at front, LRU at back
	maxItems int        // 0 = unlimited
}

type entry struct {
	key  string
	item Item
	elem *list.Element
}

// New returns a cache bounded to maxItems entries (0 = unlimited). Expired
// entries are dropped lazily unless Janitor runs.
func New(maxItems int) *Cache {
	if maxItems < 0 {
		maxItems = 0
	}
	return &Cache{items: make(map[string]*entry), order: list.New(), maxItems: maxItems}
}

// Get returns value and whether it exists and not expired.
func (c *Cache) Get(key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.items[key]
	if !ok {
		return nil, false
	}
	if e.item.Exp != 0 && e.item.Exp <= now {
		c.removeNoLock(key)
		return nil, false
	}
	if e.elem != nil {
		c.order.MoveToFront(e.elem)
	}
	return e.item.V, true
}

// Set sets a value with TTL. ttl<=0 means no expiry.
func (c *Cache) Set(key string, v any, ttl time.Duration) {
	if c == nil {
		return
	}
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).UnixNano()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[key]; ok {
		e.item = Item{V: v, Exp: exp}
		if e.elem != nil {
			c.order.MoveToFront(e.elem)
		}
		return
	}
	e := &entry{key: key, item: Item{V: v, Exp: exp}}
	e.elem = c.order.PushFront(e)
	c.items[key] = e
	if c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
}

// Delete removes a key.
func (c *Cache) Delete(key string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.removeNoLock(key)
	c.mu.Unlock()
}

// Len reports the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.order.Len()
}

// Janitor removes expired items every interval until ctx is done.
func (c *Cache) Janitor(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			c.PurgeExpired()
		}
	}
}

// PurgeExpired drops every expired entry now.
func (c *Cache) PurgeExpired() int {
	now := time.Now().UnixNano()
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for k, e := range c.items {
		if e.item.Exp != 0 && e.item.Exp <= now {
			c.removeNoLock(k)
			n++
		}
	}
	return n
}

// Resize changes the capacity, evicting LRU entries when shrinking.
func (c *Cache) Resize(n int) {
	if n <= 0 {
		n = 0
	}
	c.mu.Lock()
	c.maxItems = n
	for c.maxItems > 0 && c.order.Len() > c.maxItems {
		c.evictLRUNoLock()
	}
	c.mu.Unlock()
}

// removeNoLock removes key from map/list; caller must hold c.mu.
func (c *Cache) removeNoLock(key string) {
	if e, ok := c.items[key]; ok {
		if e.elem != nil {
			c.order.Remove(e.elem)
		}
		delete(c.items, key)
	}
}

// evictLRUNoLock removes one LRU entry; caller must hold c.mu.
func (c *Cache) evictLRUNoLock() {
	back := c.order.Back()
	if back == nil {
		return
	}
	c.order.Remove(back)
	if e, ok := back.Value.(*entry); ok {
		delete(c.items, e.key)
	}
}
