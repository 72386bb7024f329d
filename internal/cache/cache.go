package cache

import "sync"

// EvictFunc is called with every entry that leaves the cache.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRU is a capacity-bounded map that evicts the least recently used entry.
//
// LRU must not be copied after creation (has mutex).
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	entries  map[K]*node[K, V]
	order    list[K, V]
	capacity int
	onEvict  EvictFunc[K, V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// New creates an LRU holding at most capacity entries. A capacity below 1 is
// treated as 1. onEvict may be nil.
func New[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *LRU[K, V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[K, V]{
		entries:  make(map[K]*node[K, V], capacity),
		capacity: capacity,
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it most recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.entries[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}
	c.hits++
	c.order.moveToFront(n)
	return n.value, true
}

// Put stores value under key as the most recently used entry. A value
// already stored under key is replaced and passed to the eviction callback,
// as is the oldest entry when the cache overflows.
func (c *LRU[K, V]) Put(key K, value V) {
	var evicted []*node[K, V]

	c.mu.Lock()
	if n, ok := c.entries[key]; ok {
		evicted = append(evicted, &node[K, V]{key: key, value: n.value})
		n.value = value
		c.order.moveToFront(n)
	} else {
		n := &node[K, V]{key: key, value: value}
		c.entries[key] = n
		c.order.pushFront(n)
		for c.order.len > c.capacity {
			old := c.order.popBack()
			delete(c.entries, old.key)
			c.evictions++
			evicted = append(evicted, old)
		}
	}
	c.mu.Unlock()

	c.evict(evicted)
}

// Clear removes every entry, oldest first, passing each to the eviction
// callback.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	evicted := make([]*node[K, V], 0, c.order.len)
	for n := c.order.popBack(); n != nil; n = c.order.popBack() {
		evicted = append(evicted, n)
	}
	clear(c.entries)
	c.mu.Unlock()

	c.evict(evicted)
}

// Len returns the number of entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.len
}

// Stats returns cache statistics.
func (c *LRU[K, V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := Stats{
		Len:       c.order.len,
		Capacity:  c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
	if total := c.hits + c.misses; total > 0 {
		s.HitRate = float64(c.hits) / float64(total)
	}
	return s
}

func (c *LRU[K, V]) evict(nodes []*node[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, n := range nodes {
		c.onEvict(n.key, n.value)
	}
}

// Stats contains cache statistics.
type Stats struct {
	// Len is the current number of entries.
	Len int
	// Capacity is the maximum number of entries.
	Capacity int
	// Hits is the number of Get calls that found their key.
	Hits uint64
	// Misses is the number of Get calls that did not.
	Misses uint64
	// HitRate is Hits / (Hits + Misses), or 0 before any Get.
	HitRate float64
	// Evictions counts entries dropped for capacity.
	Evictions uint64
}
