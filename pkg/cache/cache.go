// Package cache provides a write-through block cache in front of a
// pager.Store. Blocks are evicted in insertion order once the ring is full.
package cache

import (
	"sync"
	"sync/atomic"

	"go-btindex/pkg/pager"
)

func New(store pager.Store, size int) *Cache {
	if size < 1 {
		size = 1
	}

	return &Cache{
		store: store,
		size:  size,
		items: make(map[uint64][]byte, size),
		keys:  make([]uint64, size),
	}
}

// Cache wraps a pager.Store. Writes go to the store before the cached copy
// is refreshed, so the store never lags behind the cache.
type Cache struct {
	store pager.Store

	mu     sync.Mutex
	size   int
	items  map[uint64][]byte
	keys   []uint64
	index  int
	filled int

	hits, misses atomic.Uint64
}

// Stats is a snapshot of cache effectiveness.
type Stats struct {
	Hits   uint64
	Misses uint64
	Cached int
}

func (c *Cache) BlockSize() int { return c.store.BlockSize() }

func (c *Cache) BlockCount() uint64 { return c.store.BlockCount() }

func (c *Cache) ReadBlock(addr uint64) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if b := c.items[addr]; b != nil {
		c.hits.Add(1)
		return append([]byte(nil), b...), nil
	}

	c.misses.Add(1)
	b, err := c.store.ReadBlock(addr)
	if err != nil {
		return nil, err
	}

	c.add(addr, b)
	return append([]byte(nil), b...), nil
}

func (c *Cache) WriteBlock(addr uint64, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.store.WriteBlock(addr, data); err != nil {
		// the store may hold part of the write; the slot stays in the ring
		// so the next read or write refills it in place
		if _, ok := c.items[addr]; ok {
			c.items[addr] = nil
		}
		return err
	}

	c.add(addr, append([]byte(nil), data...))
	return nil
}

func (c *Cache) NotifyAllocate(addr uint64) { c.store.NotifyAllocate(addr) }

func (c *Cache) NotifyDeallocate(addr uint64) { c.store.NotifyDeallocate(addr) }

// Clear drops every cached block.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[uint64][]byte, c.size)
	c.index = 0
	c.filled = 0
}

func (c *Cache) Stats() Stats {
	c.mu.Lock()
	cached := 0
	for _, b := range c.items {
		if b != nil {
			cached++
		}
	}
	c.mu.Unlock()

	return Stats{
		Hits:   c.hits.Load(),
		Misses: c.misses.Load(),
		Cached: cached,
	}
}

// add stores b under addr, evicting the oldest entry when the ring is full.
// c.mu must be held.
func (c *Cache) add(addr uint64, b []byte) {
	if _, ok := c.items[addr]; ok {
		c.items[addr] = b
		return
	}

	if c.filled == c.size {
		delete(c.items, c.keys[c.index])
	} else {
		c.filled++
	}

	c.keys[c.index] = addr
	c.items[addr] = b

	c.index++
	if c.index == c.size {
		c.index = 0
	}
}
