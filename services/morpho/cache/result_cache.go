// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/arbor/services/morpho/analysis"
)

// ComputeFunc produces the result to cache for a fingerprint.
type ComputeFunc func(ctx context.Context) (*analysis.PathResult, error)

// ResultCache provides LRU caching of diameter results keyed by graph
// fingerprint.
//
// Thread Safety:
//
//	Safe for concurrent use. Uses RWMutex for the entry map and
//	singleflight to deduplicate concurrent computations of the same
//	fingerprint.
type ResultCache struct {
	mu            sync.RWMutex
	entries       map[string]*resultEntry
	lru           *list.List
	flight        singleflight.Group
	failedResults map[string]*failedCompute
	options       CacheOptions

	// Stats
	hits         int64
	misses       int64
	evictions    int64
	computeCount int64
	errorCount   int64
}

// NewResultCache creates a ResultCache with the given options.
func NewResultCache(opts ...CacheOption) *ResultCache {
	options := DefaultCacheOptions()
	for _, opt := range opts {
		opt(&options)
	}

	return &ResultCache{
		entries:       make(map[string]*resultEntry),
		lru:           list.New(),
		failedResults: make(map[string]*failedCompute),
		options:       options,
	}
}

// Get retrieves a cached result by fingerprint.
//
// The returned result is a copy; callers may modify it freely.
func (c *ResultCache) Get(fingerprint string) (*analysis.PathResult, bool) {
	c.mu.RLock()
	entry, ok := c.entries[fingerprint]
	if !ok {
		c.mu.RUnlock()
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	if c.isExpired(entry) {
		c.mu.RUnlock()
		c.removeExpired(fingerprint)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}
	result := copyResult(entry.result)
	entry.lastAccessMilli = time.Now().UnixMilli()
	c.mu.RUnlock()

	c.updateLRU(entry)
	atomic.AddInt64(&c.hits, 1)
	return result, true
}

// GetOrCompute retrieves a cached result or computes and caches it.
//
// Uses singleflight to deduplicate concurrent computations for the same
// fingerprint. Computation errors are cached for ErrorCacheTTL so batch
// runs do not revalidate the same malformed graph on every encounter;
// while cached they surface as *ErrComputeFailed wrapping the original
// error.
func (c *ResultCache) GetOrCompute(ctx context.Context, fingerprint string, compute ComputeFunc) (*analysis.PathResult, error) {
	if result, ok := c.Get(fingerprint); ok {
		return result, nil
	}

	if fc := c.getCachedError(fingerprint); fc != nil {
		return nil, &ErrComputeFailed{
			Err:      fc.err,
			FailedAt: fc.failedAt,
			RetryAt:  fc.retryAt,
		}
	}

	result, err, _ := c.flight.Do(fingerprint, func() (interface{}, error) {
		value, err := compute(ctx)
		if err != nil {
			c.cacheError(fingerprint, err)
			atomic.AddInt64(&c.errorCount, 1)
			return nil, err
		}
		c.store(fingerprint, value)
		atomic.AddInt64(&c.computeCount, 1)
		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return copyResult(result.(*analysis.PathResult)), nil
}

// store inserts a computed result, evicting LRU entries as needed.
func (c *ResultCache) store(fingerprint string, value *analysis.PathResult) {
	now := time.Now().UnixMilli()
	entry := &resultEntry{
		fingerprint:     fingerprint,
		result:          copyResult(value),
		computedAtMilli: now,
		lastAccessMilli: now,
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[fingerprint]; ok {
		return
	}

	for len(c.entries) >= c.options.MaxEntries {
		if !c.evictLRUEntryLocked() {
			break
		}
	}

	entry.lruElement = c.lru.PushFront(fingerprint)
	c.entries[fingerprint] = entry
}

// Invalidate removes a fingerprint from the cache.
func (c *ResultCache) Invalidate(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[fingerprint]; ok {
		c.removeEntryLocked(fingerprint, entry)
	}
	delete(c.failedResults, fingerprint)
}

// Clear removes all entries.
func (c *ResultCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*resultEntry)
	c.failedResults = make(map[string]*failedCompute)
	c.lru.Init()
}

// Stats returns current cache statistics.
func (c *ResultCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return CacheStats{
		EntryCount:   len(c.entries),
		Hits:         atomic.LoadInt64(&c.hits),
		Misses:       atomic.LoadInt64(&c.misses),
		Evictions:    atomic.LoadInt64(&c.evictions),
		ComputeCount: atomic.LoadInt64(&c.computeCount),
		ErrorCount:   atomic.LoadInt64(&c.errorCount),
		MaxEntries:   c.options.MaxEntries,
		MaxAge:       c.options.MaxAge,
	}
}

// isExpired checks if an entry has exceeded its TTL.
func (c *ResultCache) isExpired(entry *resultEntry) bool {
	if c.options.MaxAge == 0 {
		return false
	}
	age := time.Since(time.UnixMilli(entry.computedAtMilli))
	return age > c.options.MaxAge
}

// updateLRU moves an entry to the front of the LRU list.
func (c *ResultCache) updateLRU(entry *resultEntry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry.lruElement != nil {
		c.lru.MoveToFront(entry.lruElement)
	}
}

// removeExpired removes an expired entry.
func (c *ResultCache) removeExpired(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[fingerprint]; ok {
		c.removeEntryLocked(fingerprint, entry)
	}
}

// evictLRUEntryLocked evicts the least recently used entry. Caller must
// hold the write lock.
func (c *ResultCache) evictLRUEntryLocked() bool {
	back := c.lru.Back()
	if back == nil {
		return false
	}
	fingerprint := back.Value.(string)
	entry, ok := c.entries[fingerprint]
	if !ok {
		c.lru.Remove(back)
		return true
	}
	c.removeEntryLocked(fingerprint, entry)
	atomic.AddInt64(&c.evictions, 1)
	return true
}

// removeEntryLocked removes an entry. Caller must hold the write lock.
func (c *ResultCache) removeEntryLocked(fingerprint string, entry *resultEntry) {
	if entry.lruElement != nil {
		c.lru.Remove(entry.lruElement)
	}
	delete(c.entries, fingerprint)
}

// getCachedError returns a cached computation error if it has not
// expired.
func (c *ResultCache) getCachedError(fingerprint string) *failedCompute {
	c.mu.RLock()
	defer c.mu.RUnlock()

	fc, ok := c.failedResults[fingerprint]
	if !ok {
		return nil
	}
	if time.Now().After(fc.retryAt) {
		go c.clearCachedError(fingerprint)
		return nil
	}
	return fc
}

// cacheError stores a computation error.
func (c *ResultCache) cacheError(fingerprint string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.failedResults[fingerprint] = &failedCompute{
		err:      err,
		failedAt: time.Now(),
		retryAt:  time.Now().Add(c.options.ErrorCacheTTL),
	}
}

// clearCachedError removes a cached error.
func (c *ResultCache) clearCachedError(fingerprint string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.failedResults, fingerprint)
}
