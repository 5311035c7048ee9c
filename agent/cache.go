package agent

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Cache is the interface for response caching
type Cache interface {
	// Get retrieves a cached response
	Get(ctx context.Context, key string) (string, bool, error)

	// Set stores a response in cache with TTL
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// Delete removes a key from cache
	Delete(ctx context.Context, key string) error

	// Clear removes all keys from cache
	Clear(ctx context.Context) error

	// Stats returns cache statistics
	Stats() CacheStats
}

// CacheStats represents cache statistics
type CacheStats struct {
	Hits        int64 // Number of cache hits
	Misses      int64 // Number of cache misses
	Size        int   // Current number of cached items
	Evictions   int64 // Number of evictions (LRU)
	TotalWrites int64 // Total number of writes
}

// CacheEntry represents a cached item
type CacheEntry struct {
	Value       string    // Cached response
	ExpiresAt   time.Time // Expiration time
	CreatedAt   time.Time // Creation time
	AccessedAt  time.Time // Last access time
	AccessCount int64     // Number of times accessed
}

// MemoryCache is an in-memory LRU cache implementation
type MemoryCache struct {
	mu         sync.RWMutex
	entries    map[string]*CacheEntry
	maxSize    int           // Maximum number of entries
	defaultTTL time.Duration // Default TTL
	stats      CacheStats
}

// NewMemoryCache creates a new in-memory cache
func NewMemoryCache(maxSize int, defaultTTL time.Duration) *MemoryCache {
	if maxSize <= 0 {
		maxSize = 1000 // Default max size
	}
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute // Default TTL
	}

	cache := &MemoryCache{
		entries:    make(map[string]*CacheEntry),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
	}

	// Start cleanup goroutine
	go cache.cleanup()

	return cache
}

// Get retrieves a value from cache
func (c *MemoryCache) Get(ctx context.Context, key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists {
		c.stats.Misses++
		return "", false, nil
	}

	// Check if expired
	if time.Now().After(entry.ExpiresAt) {
		c.stats.Misses++
		// Don't delete here to avoid deadlock - cleanup will handle it
		return "", false, nil
	}

	// Update access stats (safe because Get holds the write lock)
	entry.AccessedAt = time.Now()
	entry.AccessCount++

	c.stats.Hits++
	return entry.Value, true, nil
}

// Set stores a value in cache
func (c *MemoryCache) Set(ctx context.Context, key string, value string, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	now := time.Now()

	// Check if we need to evict (LRU)
	if len(c.entries) >= c.maxSize {
		c.evictLRU()
	}

	c.entries[key] = &CacheEntry{
		Value:       value,
		ExpiresAt:   now.Add(ttl),
		CreatedAt:   now,
		AccessedAt:  now,
		AccessCount: 0,
	}

	c.stats.TotalWrites++
	return nil
}

// Delete removes a key from cache
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, key)
	return nil
}

// Clear removes all entries
func (c *MemoryCache) Clear(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*CacheEntry)
	c.stats = CacheStats{} // Reset stats
	return nil
}

// Stats returns cache statistics
func (c *MemoryCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.stats
	stats.Size = len(c.entries)
	return stats
}

// evictLRU evicts the least recently used entry
func (c *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, entry := range c.entries {
		if oldestKey == "" || entry.AccessedAt.Before(oldestTime) {
			oldestKey = key
			oldestTime = entry.AccessedAt
		}
	}

	if oldestKey != "" {
		delete(c.entries, oldestKey)
		c.stats.Evictions++
	}
}

// cleanup periodically removes expired entries
func (c *MemoryCache) cleanup() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()

		for key, entry := range c.entries {
			if now.After(entry.ExpiresAt) {
				delete(c.entries, key)
			}
		}
		c.mu.Unlock()
	}
}

// GenerateCacheKey generates a cache key from prompt and configuration
func GenerateCacheKey(model string, prompt string, temperature float64, systemPrompt string) string {
	// Create a deterministic key based on request parameters
	data := struct {
		Model       string
		Prompt      string
		Temperature float64
		System      string
	}{
		Model:       model,
		Prompt:      prompt,
		Temperature: temperature,
		System:      systemPrompt,
	}

	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// PlanCache wraps a Cache with the key convention the Planner uses to avoid
// re-decomposing an identical task description within the cache's TTL.
type PlanCache struct {
	cache Cache
	ttl   time.Duration
}

// NewPlanCache builds a PlanCache over the given backend.
func NewPlanCache(cache Cache, ttl time.Duration) *PlanCache {
	return &PlanCache{cache: cache, ttl: ttl}
}

// Get returns a previously cached plan decomposition for the given
// description, if present and unexpired.
func (pc *PlanCache) Get(ctx context.Context, model, description string) (string, bool) {
	if pc == nil || pc.cache == nil {
		return "", false
	}
	key := GenerateCacheKey(model, description, 0, "plan")
	value, ok, err := pc.cache.Get(ctx, key)
	if err != nil || !ok {
		return "", false
	}
	return value, true
}

// Set stores a plan decomposition response under the description's cache key.
func (pc *PlanCache) Set(ctx context.Context, model, description, response string) error {
	if pc == nil || pc.cache == nil {
		return nil
	}
	key := GenerateCacheKey(model, description, 0, "plan")
	return pc.cache.Set(ctx, key, response, pc.ttl)
}

// Clear clears all cached plan responses.
func (pc *PlanCache) Clear(ctx context.Context) error {
	if pc == nil || pc.cache == nil {
		return nil
	}
	return pc.cache.Clear(ctx)
}

// Stats returns cache statistics.
func (pc *PlanCache) Stats() CacheStats {
	if pc == nil || pc.cache == nil {
		return CacheStats{}
	}
	return pc.cache.Stats()
}
