package recurrence

import (
	"encoding/binary"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"golang.org/x/crypto/blake2b"
)

// CacheConfig holds configuration for the projection cache.
type CacheConfig struct {
	TTL             time.Duration // How long entries stay valid
	MaxEntries      int           // Maximum number of entries before eviction
	CleanupInterval time.Duration // How often expired entries are swept
}

// DefaultCacheConfig provides defaults for projection caching.
var DefaultCacheConfig = CacheConfig{
	TTL:             15 * time.Minute,
	MaxEntries:      1000,
	CleanupInterval: 5 * time.Minute,
}

type cacheEntry struct {
	dates      []Date
	expiresAt  time.Time
	accessedAt time.Time
}

// Cache stores projection results keyed by a digest of every input. Project
// is pure, so entries never need invalidation and simply expire.
type Cache struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry
	ttl         time.Duration
	maxEntries  int
	now         func() time.Time
	stopCleanup chan struct{}
	closeOnce   sync.Once
	hits        uint64
	misses      uint64
}

// CacheStats provides information about cache usage.
type CacheStats struct {
	TotalEntries   int
	ExpiredEntries int
	ActiveEntries  int
	Hits           uint64
	Misses         uint64
}

// NewCache creates a cache and starts its cleanup loop. Call Close to stop it.
func NewCache(config CacheConfig) *Cache {
	if config.TTL <= 0 {
		config.TTL = DefaultCacheConfig.TTL
	}
	if config.MaxEntries <= 0 {
		config.MaxEntries = DefaultCacheConfig.MaxEntries
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = DefaultCacheConfig.CleanupInterval
	}

	c := &Cache{
		entries:     make(map[string]*cacheEntry),
		ttl:         config.TTL,
		maxEntries:  config.MaxEntries,
		now:         time.Now,
		stopCleanup: make(chan struct{}),
	}
	go c.cleanupLoop(config.CleanupInterval)
	return c
}

func cacheKey(rule Rule, anchor, start, end Date, exceptions ExceptionIndex) string {
	h, _ := blake2b.New256(nil)
	kind, interval, mask := Encode(Normalize(rule))
	h.Write([]byte(kind))

	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(interval))
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(mask))
	h.Write(buf[:])

	for _, d := range []Date{anchor, start, end} {
		h.Write([]byte(d.String()))
		h.Write([]byte{0})
	}
	for _, d := range exceptions.Dates() {
		h.Write([]byte(d.String()))
		h.Write([]byte{1})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the cached dates for key if present and not expired.
func (c *Cache) Get(key string) ([]Date, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	now := c.now()
	if !ok || now.After(entry.expiresAt) {
		if ok {
			delete(c.entries, key)
		}
		c.misses++
		return nil, false
	}
	entry.accessedAt = now
	c.hits++
	return append([]Date(nil), entry.dates...), true
}

// Set stores dates under key.
func (c *Cache) Set(key string, dates []Date) {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = &cacheEntry{
		dates:      append([]Date(nil), dates...),
		expiresAt:  now.Add(c.ttl),
		accessedAt: now,
	}
	if len(c.entries) > c.maxEntries {
		c.cleanup(now)
	}
}

// cleanup removes expired entries, then the least recently accessed ones
// until the cache is back under its limit. Callers hold c.mu.
func (c *Cache) cleanup(now time.Time) {
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}
	if len(c.entries) <= c.maxEntries {
		return
	}

	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return c.entries[keys[i]].accessedAt.Before(c.entries[keys[j]].accessedAt)
	})
	for _, key := range keys[:len(keys)-c.maxEntries] {
		delete(c.entries, key)
	}
}

func (c *Cache) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.mu.Lock()
			c.cleanup(c.now())
			c.mu.Unlock()
		case <-c.stopCleanup:
			return
		}
	}
}

// Close stops the cleanup loop and clears the cache.
func (c *Cache) Close() {
	c.closeOnce.Do(func() {
		close(c.stopCleanup)
		c.mu.Lock()
		c.entries = make(map[string]*cacheEntry)
		c.mu.Unlock()
	})
}

// Stats returns cache statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	stats := CacheStats{TotalEntries: len(c.entries), Hits: c.hits, Misses: c.misses}
	for _, entry := range c.entries {
		if now.After(entry.expiresAt) {
			stats.ExpiredEntries++
		}
	}
	stats.ActiveEntries = stats.TotalEntries - stats.ExpiredEntries
	return stats
}
