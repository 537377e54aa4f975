package cache

import (
	"container/list"
	"sync"
	"time"
)

const (
	defaultCapacity = 1000
	defaultTTL      = 5 * time.Minute
)

// LRU is a size-bounded cache whose entries also expire after a TTL.
// Expired entries are dropped lazily on read and eagerly by Sweep.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	now      func() time.Time

	items map[string]*list.Element
	// recency holds *item[V], most recently used at the front.
	recency *list.List
	stats   Stats
}

type item[V any] struct {
	key     string
	value   V
	expires time.Time
}

// NewLRU creates a cache holding at most capacity entries with the given
// default TTL. Non-positive arguments select the defaults.
func NewLRU[V any](capacity int, ttl time.Duration) *LRU[V] {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &LRU[V]{
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
		items:    make(map[string]*list.Element, capacity),
		recency:  list.New(),
	}
}

func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return zero, false
	}
	it := el.Value.(*item[V])
	if !c.now().Before(it.expires) {
		c.drop(el)
		c.stats.Expired++
		c.stats.Misses++
		return zero, false
	}
	c.stats.Hits++
	c.recency.MoveToFront(el)
	return it.value, true
}

// Put inserts or replaces key. ttl <= 0 uses the default TTL.
func (c *LRU[V]) Put(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	expires := c.now().Add(ttl)
	if el, ok := c.items[key]; ok {
		it := el.Value.(*item[V])
		it.value, it.expires = value, expires
		c.recency.MoveToFront(el)
		return
	}
	for len(c.items) >= c.capacity {
		c.drop(c.recency.Back())
		c.stats.Evictions++
	}
	c.items[key] = c.recency.PushFront(&item[V]{key: key, value: value, expires: expires})
}

// Remove deletes key and reports whether it was present.
func (c *LRU[V]) Remove(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if ok {
		c.drop(el)
	}
	return ok
}

// Sweep drops every expired entry and returns how many were dropped.
func (c *LRU[V]) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.recency.Back(); el != nil; {
		prev := el.Prev()
		if !now.Before(el.Value.(*item[V]).expires) {
			c.drop(el)
			n++
		}
		el = prev
	}
	c.stats.Expired += int64(n)
	return n
}

func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Size = len(c.items)
	return s
}

// drop must be called with mu held.
func (c *LRU[V]) drop(el *list.Element) {
	if el == nil {
		return
	}
	c.recency.Remove(el)
	delete(c.items, el.Value.(*item[V]).key)
}
