// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package cache provides LRU caching for analysis results keyed by
// graph fingerprint.
//
// Description:
//
//	A frozen graph's fingerprint fully determines its analysis results,
//	so cached values never go stale; entries only leave the cache
//	through LRU pressure or an optional age limit. Failed computations
//	are cached briefly to keep batch runs from revalidating the same
//	malformed graph on every encounter.
//
// Thread Safety:
//
//	ResultCache is safe for concurrent use.
package cache

import (
	"container/list"
	"fmt"
	"time"

	"github.com/AleutianAI/arbor/services/morpho/analysis"
)

// Default configuration values.
const (
	// DefaultMaxEntries is the default maximum number of cached results.
	DefaultMaxEntries = 128

	// DefaultMaxAge disables age-based expiry. Results are
	// content-addressed, so age adds nothing unless memory must be
	// bounded by time as well as count.
	DefaultMaxAge = time.Duration(0)

	// DefaultErrorCacheTTL is how long failed computations are cached.
	DefaultErrorCacheTTL = 30 * time.Second
)

// resultEntry is a cached diameter result.
type resultEntry struct {
	// fingerprint is the content hash of the analyzed graph.
	fingerprint string

	// result is the stored value. Never shared with callers; reads
	// receive a copy.
	result *analysis.PathResult

	// computedAtMilli is when the result was computed.
	computedAtMilli int64

	// lastAccessMilli is when the entry was last read.
	lastAccessMilli int64

	// lruElement is the position in the LRU list.
	lruElement *list.Element
}

// failedCompute records a computation error with its retry deadline.
type failedCompute struct {
	err      error
	failedAt time.Time
	retryAt  time.Time
}

// ErrComputeFailed wraps a cached computation error.
//
// Callers receive this instead of a fresh computation while the error
// is within its TTL. Unwrap exposes the original error so errors.Is
// still matches the underlying taxonomy.
type ErrComputeFailed struct {
	Err      error
	FailedAt time.Time
	RetryAt  time.Time
}

func (e *ErrComputeFailed) Error() string {
	return fmt.Sprintf("computation failed at %s (retry after %s): %v",
		e.FailedAt.Format(time.RFC3339), e.RetryAt.Format(time.RFC3339), e.Err)
}

func (e *ErrComputeFailed) Unwrap() error {
	return e.Err
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	EntryCount   int           `json:"entry_count"`
	Hits         int64         `json:"hits"`
	Misses       int64         `json:"misses"`
	Evictions    int64         `json:"evictions"`
	ComputeCount int64         `json:"compute_count"`
	ErrorCount   int64         `json:"error_count"`
	MaxEntries   int           `json:"max_entries"`
	MaxAge       time.Duration `json:"max_age"`
}

// CacheOptions configures a ResultCache.
type CacheOptions struct {
	// MaxEntries is the maximum number of cached results.
	MaxEntries int

	// MaxAge is the TTL for cached results. Zero means no expiry.
	MaxAge time.Duration

	// ErrorCacheTTL is how long failed computations are cached.
	ErrorCacheTTL time.Duration
}

// DefaultCacheOptions returns the default cache configuration.
func DefaultCacheOptions() CacheOptions {
	return CacheOptions{
		MaxEntries:    DefaultMaxEntries,
		MaxAge:        DefaultMaxAge,
		ErrorCacheTTL: DefaultErrorCacheTTL,
	}
}

// CacheOption customizes cache configuration.
type CacheOption func(*CacheOptions)

// WithMaxEntries sets the maximum number of cached results.
func WithMaxEntries(n int) CacheOption {
	return func(o *CacheOptions) {
		if n > 0 {
			o.MaxEntries = n
		}
	}
}

// WithMaxAge sets the TTL for cached results. Zero disables expiry.
func WithMaxAge(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		if d >= 0 {
			o.MaxAge = d
		}
	}
}

// WithErrorCacheTTL sets how long failed computations are cached.
func WithErrorCacheTTL(d time.Duration) CacheOption {
	return func(o *CacheOptions) {
		if d >= 0 {
			o.ErrorCacheTTL = d
		}
	}
}

// copyResult returns an independent copy so cached values can never be
// mutated through a returned pointer.
func copyResult(r *analysis.PathResult) *analysis.PathResult {
	if r == nil {
		return nil
	}
	cp := &analysis.PathResult{Length: r.Length}
	if r.Path != nil {
		cp.Path = append(cp.Path, r.Path...)
	}
	return cp
}
