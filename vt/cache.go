// Copyright © 2026 Loom contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
//
// File: vt/cache.go
// Summary: Bounded LRU cache mapping raw escape-sequence bytes to their parsed action.
// Usage: Owned by a single Terminal instance; reset on session teardown.
// Notes: The cache only affects latency, never observable output.

package vt

import (
	"sync/atomic"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

const (
	// MinCacheCapacity and MaxCacheCapacity bound the configurable entry count.
	MinCacheCapacity = 64
	MaxCacheCapacity = 1024

	// DefaultCacheCapacity is used when no capacity is configured.
	DefaultCacheCapacity = 256
)

// SeqCache stores parsed actions keyed by the exact raw byte sequence.
// Eviction is strict least-recently-used. The cache is not safe for
// concurrent use; the Terminal that owns it runs on a single goroutine.
// Hit/miss counters are atomic so observers may read them from other
// goroutines without coordination.
type SeqCache struct {
	lru      *simplelru.LRU[string, Action]
	capacity int

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewSeqCache returns a cache holding at most capacity entries. The capacity
// is clamped into [MinCacheCapacity, MaxCacheCapacity].
func NewSeqCache(capacity int) *SeqCache {
	if capacity < MinCacheCapacity {
		capacity = MinCacheCapacity
	}
	if capacity > MaxCacheCapacity {
		capacity = MaxCacheCapacity
	}
	lru, err := simplelru.NewLRU[string, Action](capacity, nil)
	if err != nil {
		// Capacity is clamped positive above; simplelru only rejects size <= 0.
		panic(err)
	}
	return &SeqCache{lru: lru, capacity: capacity}
}

// Get looks up the parsed action for a raw sequence, marking it most
// recently used on a hit.
func (c *SeqCache) Get(raw []byte) (Action, bool) {
	act, ok := c.lru.Get(string(raw))
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return act, ok
}

// Add inserts a parsed action, evicting the least-recently-used entry when
// the cache is at capacity.
func (c *SeqCache) Add(raw []byte, act Action) {
	c.lru.Add(string(raw), act)
}

// Len returns the current number of entries.
func (c *SeqCache) Len() int { return c.lru.Len() }

// Capacity returns the configured maximum entry count.
func (c *SeqCache) Capacity() int { return c.capacity }

// Hits returns the monotonic hit counter.
func (c *SeqCache) Hits() uint64 { return c.hits.Load() }

// Misses returns the monotonic miss counter.
func (c *SeqCache) Misses() uint64 { return c.misses.Load() }

// Reset drops all entries and counters. Called on session teardown.
func (c *SeqCache) Reset() {
	c.lru.Purge()
	c.hits.Store(0)
	c.misses.Store(0)
}
