// Package externalize implements the externalization cache: a fixed
// 100-entry LRU of denormalized vector buffers, kept alive between the
// index and a host callback so the host can deep-copy them without a
// dictionary round-trip.
package externalize

import (
	"container/list"
	"sync"

	"github.com/vsdb/vsengine/vecindex"
)

// lruCapacity is fixed, not exposed as a tuning knob.
const lruCapacity = 100

// entryKey identifies one externalized field by (external key,
// attribute identifier).
type entryKey struct {
	Key       string
	Attribute string
}

type entry struct {
	key       entryKey
	unit      []float32
	magnitude float32
	denorm    []float32
	elem      *list.Element
}

// Cache is main-thread-only: accesses from other goroutines are
// forbidden by construction, matching the concurrency model's
// invariant that only the host's command loop may touch it.
type Cache struct {
	mu      sync.Mutex // documents single-owner intent; not a concurrency guarantee
	order   *list.List
	entries map[entryKey]*entry
}

// New creates an empty externalization cache.
func New() *Cache {
	return &Cache{
		order:   list.New(),
		entries: make(map[entryKey]*entry),
	}
}

// Materialize denormalizes (unit, magnitude) for (key, attribute),
// caches the result (replacing any earlier entry for the same pair),
// and returns the denormalized bytes. The returned slice is owned by
// the cache; callers must deep-copy before the next eviction could
// reclaim it.
func (c *Cache) Materialize(key, attribute string, unit []float32, magnitude float32) []float32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	ek := entryKey{Key: key, Attribute: attribute}
	denorm := vecindex.Denormalize(unit, magnitude)
	if e, ok := c.entries[ek]; ok {
		e.unit, e.magnitude, e.denorm = unit, magnitude, denorm
		c.order.MoveToFront(e.elem)
		return denorm
	}

	e := &entry{key: ek, unit: unit, magnitude: magnitude, denorm: denorm}
	e.elem = c.order.PushFront(e)
	c.entries[ek] = e

	if c.order.Len() > lruCapacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*entry).key)
	}
	return denorm
}

// Remove evicts a cached entry, e.g. when the underlying record is
// deleted from its vector index.
func (c *Cache) Remove(key, attribute string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ek := entryKey{Key: key, Attribute: attribute}
	e, ok := c.entries[ek]
	if !ok {
		return
	}
	c.order.Remove(e.elem)
	delete(c.entries, ek)
}

// Len returns the number of currently cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats is the informational counters exposed under an "info" surface.
type Stats struct {
	Entries int
}

func (c *Cache) Stats() Stats {
	return Stats{Entries: c.Len()}
}
