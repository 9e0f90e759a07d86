package infrastructure

import (
	"sync"
	"time"

	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/application/ports"
	"github.com/monsieurgui/cafe-des-artistes/internal/modules/music_player/domain"
)

// Ensure TTLTrackCache implements TrackCache.
var _ ports.TrackCache = (*TTLTrackCache)(nil)

// DefaultCacheTTL bounds how long a resolved stream URI is trusted.
const DefaultCacheTTL = 30 * time.Minute

// TTLTrackCache is an in-memory TrackCache with per-entry expiry and a
// bounded size. Stream URIs carry signed expirations upstream, so entries
// must not outlive the TTL. Safe for concurrent use.
type TTLTrackCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

type cacheEntry struct {
	track    *domain.ResolvedTrack
	storedAt time.Time
}

// NewTTLTrackCache creates a cache holding up to maxEntries resolutions for
// at most ttl each. Non-positive arguments fall back to defaults.
func NewTTLTrackCache(ttl time.Duration, maxEntries int) *TTLTrackCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &TTLTrackCache{
		entries:    make(map[string]cacheEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

// Get returns the cached resolution for source if present and fresh.
func (c *TTLTrackCache) Get(source string) (*domain.ResolvedTrack, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[source]
	if !ok {
		return nil, false
	}
	if c.now().Sub(entry.storedAt) > c.ttl {
		delete(c.entries, source)
		return nil, false
	}
	return entry.track, true
}

// Put stores a resolution, overwriting any existing entry for the source.
// When the cache is full the oldest entry makes room.
func (c *TTLTrackCache) Put(source string, track *domain.ResolvedTrack) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[source]; !exists && len(c.entries) >= c.maxEntries {
		c.evictOldestLocked()
	}
	c.entries[source] = cacheEntry{track: track, storedAt: c.now()}
}

// Len returns the number of cached entries, expired or not.
func (c *TTLTrackCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *TTLTrackCache) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
		found     bool
	)
	for key, entry := range c.entries {
		if !found || entry.storedAt.Before(oldestAt) {
			oldestKey = key
			oldestAt = entry.storedAt
			found = true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}
