// Package cache provides a generic LRU map with an eviction callback.
//
// It backs GPU texture residency: values are device resources keyed by image
// identity, and the callback destroys a resource once it falls out of the
// cache or the cache is cleared.
//
//	c := cache.New[uint64, Texture](4, func(id uint64, tex Texture) { tex.Destroy() })
//	c.Put(h.ID(), tex)
//	tex, ok := c.Get(h.ID())
//
// # Thread Safety
//
// LRU is safe for concurrent use. Eviction callbacks run after the internal
// lock is released, on the goroutine that caused the eviction.
package cache
