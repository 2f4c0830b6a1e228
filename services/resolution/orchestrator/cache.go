// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package orchestrator

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ecp-platform/ecp/services/resolution/datatypes"
)

// DefaultCacheTTL is how long a resolved plan stays executable.
const DefaultCacheTTL = 3600 * time.Second

// DefaultSweepInterval is how often the background sweep evicts expired
// entries.
const DefaultSweepInterval = 60 * time.Second

// CacheEntry is one cached resolution: everything execute needs.
type CacheEntry struct {
	Plan             *datatypes.ExecutionPlan
	ResolvedConcepts map[string]any
	UserContext      datatypes.UserContext
	ConfidenceScore  float64

	expiresAt time.Time
}

// CacheStats is a point-in-time snapshot of cache counters.
type CacheStats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	Evicted int64 `json:"evicted"`
}

// ResolutionCache maps resolution ids to execution plans with TTL expiry.
// Expiry is checked lazily on every read and additionally by a periodic
// background sweep, so a reader deterministically sees either the live
// entry or a miss.
//
// Thread Safety: Safe for concurrent use.
type ResolutionCache struct {
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	entries map[string]CacheEntry
	hits    int64
	misses  int64
	evicted int64

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewResolutionCache creates a cache and starts its background sweep.
// Call Stop to release the sweep goroutine.
func NewResolutionCache(ttl, sweepInterval time.Duration, logger *slog.Logger) *ResolutionCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if sweepInterval <= 0 {
		sweepInterval = DefaultSweepInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &ResolutionCache{
		ttl:     ttl,
		logger:  logger.With(slog.String("component", "resolution_cache")),
		entries: make(map[string]CacheEntry),
		stopCh:  make(chan struct{}),
	}

	c.wg.Add(1)
	go c.runSweeper(sweepInterval)
	return c
}

// Put stores a resolution under its id, stamping the expiry.
func (c *ResolutionCache) Put(resolutionID string, entry CacheEntry) {
	entry.expiresAt = time.Now().Add(c.ttl)
	c.mu.Lock()
	c.entries[resolutionID] = entry
	c.mu.Unlock()
}

// Get returns the entry for a resolution id, or false on a miss. An
// expired entry counts as a miss and is evicted on the spot.
func (c *ResolutionCache) Get(resolutionID string) (CacheEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[resolutionID]
	if !ok {
		c.misses++
		return CacheEntry{}, false
	}
	if time.Now().After(entry.expiresAt) {
		delete(c.entries, resolutionID)
		c.evicted++
		c.misses++
		return CacheEntry{}, false
	}
	c.hits++
	return entry, true
}

// Stats returns a snapshot of cache counters.
func (c *ResolutionCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Evicted: c.evicted,
	}
}

// Stop halts the background sweep. Safe to call more than once.
func (c *ResolutionCache) Stop() {
	c.stopOnce.Do(func() { close(c.stopCh) })
	c.wg.Wait()
}

func (c *ResolutionCache) runSweeper(interval time.Duration) {
	defer c.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *ResolutionCache) sweep() {
	now := time.Now()
	c.mu.Lock()
	removed := 0
	for id, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, id)
			c.evicted++
			removed++
		}
	}
	remaining := len(c.entries)
	c.mu.Unlock()

	if removed > 0 {
		c.logger.Info("Swept expired resolutions",
			slog.Int("removed", removed),
			slog.Int("remaining", remaining))
	}
}
