// Package featurecache provides a per-tenant cache of grouped voice feature
// vectors.
//
// Recognition fans out over every tenant collection and compares the probe
// vector against all stored features. Reading every record from the index on
// each request is the dominant cost, so the grouped vectors are cached per
// tenant with a short TTL and invalidated on any write to that tenant.
//
// Example usage:
//
//	cache := featurecache.New(5*time.Minute, 1000)
//	cache.Put("alice", groups)
//	entry, ok := cache.Get("alice")
package featurecache

import (
	"sync"
	"time"
)

// Entry holds the cached feature groups for one tenant.
type Entry struct {
	// TenantID owns the cached groups.
	TenantID string

	// Groups maps a group key (the self group key or a person name) to the
	// feature vectors registered under it.
	Groups map[string][][]float32

	// ExpiresAt is when this entry should be evicted.
	ExpiresAt time.Time

	// CreatedAt is when this entry was created.
	CreatedAt time.Time

	// lastAccessed tracks LRU eviction (internal use only)
	lastAccessed time.Time
}

// Cache provides thread-safe per-tenant caching with TTL and LRU eviction.
type Cache struct {
	mu         sync.RWMutex
	entries    map[string]*Entry
	ttl        time.Duration
	maxEntries int
	metrics    *Metrics // Optional metrics tracking
}

// New creates a cache with the specified TTL and maximum tenant entries.
// When the cache is at capacity the least recently used tenant is evicted.
func New(ttl time.Duration, maxEntries int) *Cache {
	return &Cache{
		entries:    make(map[string]*Entry),
		ttl:        ttl,
		maxEntries: maxEntries,
	}
}

// SetMetrics sets the metrics tracker for this cache.
// Optional, call after creation if metrics are desired.
func (c *Cache) SetMetrics(m *Metrics) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.metrics = m
}

// Put stores the feature groups for a tenant, replacing any existing entry.
func (c *Cache) Put(tenantID string, groups map[string][][]float32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()

	if len(c.entries) >= c.maxEntries {
		if _, exists := c.entries[tenantID]; !exists {
			c.evictLRU()
		}
	}

	c.entries[tenantID] = &Entry{
		TenantID:     tenantID,
		Groups:       groups,
		ExpiresAt:    now.Add(c.ttl),
		CreatedAt:    now,
		lastAccessed: now,
	}

	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries))
	}
}

// Get retrieves the cached feature groups for a tenant.
// Expired entries are removed and reported as a miss.
func (c *Cache) Get(tenantID string) (*Entry, bool) {
	c.mu.RLock()
	entry, exists := c.entries[tenantID]
	metrics := c.metrics
	c.mu.RUnlock()

	if !exists {
		if metrics != nil {
			metrics.RecordMiss()
		}
		return nil, false
	}

	if time.Now().After(entry.ExpiresAt) {
		c.removeExpired(tenantID, entry)

		if metrics != nil {
			metrics.RecordMiss()
		}
		return nil, false
	}

	c.mu.Lock()
	entry.lastAccessed = time.Now()
	c.mu.Unlock()

	if metrics != nil {
		metrics.RecordHit()
	}

	return entry, true
}

// removeExpired drops an expired entry. A concurrent Put may have installed
// a fresh entry for the tenant since the caller's read; only the expired
// entry itself is removed.
func (c *Cache) removeExpired(tenantID string, entry *Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entries[tenantID] == entry {
		delete(c.entries, tenantID)
	}
	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries))
	}
}

// Invalidate removes a tenant's entry. No-op if the tenant is not cached.
// Call after any write to the tenant's collection.
func (c *Cache) Invalidate(tenantID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, tenantID)

	if c.metrics != nil {
		c.metrics.SetSize(len(c.entries))
	}
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry)

	if c.metrics != nil {
		c.metrics.SetSize(0)
	}
}

// Len returns the number of cached tenants.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// evictLRU removes the least recently used entry.
// Caller must hold the write lock.
func (c *Cache) evictLRU() {
	var oldestTenant string
	var oldestTime time.Time

	first := true
	for tenantID, entry := range c.entries {
		if first || entry.lastAccessed.Before(oldestTime) {
			oldestTenant = tenantID
			oldestTime = entry.lastAccessed
			first = false
		}
	}

	if oldestTenant != "" {
		delete(c.entries, oldestTenant)
	}
}
