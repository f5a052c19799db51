package safety

import (
	"container/list"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

// Fingerprint deterministically identifies a cacheable analysis outcome.
// It covers the text, the child's age and the config version, so a config
// reload lazily invalidates every prior entry.
func Fingerprint(text string, childAge int, configVersion int64) string {
	h := sha256.New()
	fmt.Fprintf(h, "%d|%d|", configVersion, childAge)
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// RemoteCache is an optional write-through tier shared across processes.
// It is best effort: errors degrade to local-only caching.
type RemoteCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type cacheEntry struct {
	fingerprint string
	result      *AnalysisResult
	expiresAt   time.Time
	elem        *list.Element
}

// ContentCache is a fingerprint-keyed result cache with TTL, LRU capacity
// eviction and single-flight deduplication: concurrent lookups for the same
// fingerprint share one computation instead of fanning out duplicate layer
// runs.
type ContentCache struct {
	mu       sync.RWMutex
	entries  map[string]*cacheEntry
	lru      *list.List
	ttl      time.Duration
	capacity int

	flight singleflight.Group
	remote RemoteCache

	hits   uint64
	misses uint64
}

func NewContentCache(ttl time.Duration, capacity int, remote RemoteCache) *ContentCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if capacity <= 0 {
		capacity = 1000
	}
	return &ContentCache{
		entries:  make(map[string]*cacheEntry, capacity),
		lru:      list.New(),
		ttl:      ttl,
		capacity: capacity,
		remote:   remote,
	}
}

// GetOrCompute returns the cached result for fingerprint, or runs compute
// exactly once per fingerprint under concurrent access and caches the
// outcome. Errors are not cached.
func (c *ContentCache) GetOrCompute(ctx context.Context, fingerprint string, compute func() (*AnalysisResult, error)) (*AnalysisResult, bool, error) {
	if result := c.get(ctx, fingerprint); result != nil {
		return result, true, nil
	}

	v, err, shared := c.flight.Do(fingerprint, func() (interface{}, error) {
		// Double check after winning the flight: a sibling may have
		// populated the entry while this caller was queued.
		if result := c.get(ctx, fingerprint); result != nil {
			return result, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		// Degraded verdicts come from transient failures (scorer stalls,
		// missed deadlines). Serve them to the callers in flight but never
		// cache them; the next request gets a fresh analysis.
		if !result.Degraded {
			c.put(ctx, fingerprint, result)
		}
		return result, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v.(*AnalysisResult), shared, nil
}

func (c *ContentCache) get(ctx context.Context, fingerprint string) *AnalysisResult {
	c.mu.Lock()
	entry, ok := c.entries[fingerprint]
	if ok && time.Now().Before(entry.expiresAt) {
		c.lru.MoveToFront(entry.elem)
		c.hits++
		c.mu.Unlock()
		return entry.result
	}
	if ok {
		c.removeLocked(entry)
	}
	c.misses++
	c.mu.Unlock()

	if c.remote != nil {
		var result AnalysisResult
		if err := c.remote.Get(ctx, remoteKey(fingerprint), &result); err == nil {
			// Another process may have written a degraded verdict; evict
			// it rather than adopting it locally.
			if result.Degraded {
				_ = c.remote.Delete(ctx, remoteKey(fingerprint))
				return nil
			}
			c.put(ctx, fingerprint, &result)
			return &result
		}
	}
	return nil
}

func (c *ContentCache) put(ctx context.Context, fingerprint string, result *AnalysisResult) {
	c.mu.Lock()
	if entry, ok := c.entries[fingerprint]; ok {
		entry.result = result
		entry.expiresAt = time.Now().Add(c.ttl)
		c.lru.MoveToFront(entry.elem)
		c.mu.Unlock()
		return
	}
	entry := &cacheEntry{
		fingerprint: fingerprint,
		result:      result,
		expiresAt:   time.Now().Add(c.ttl),
	}
	entry.elem = c.lru.PushFront(entry)
	c.entries[fingerprint] = entry
	for len(c.entries) > c.capacity {
		oldest := c.lru.Back()
		if oldest == nil {
			break
		}
		c.removeLocked(oldest.Value.(*cacheEntry))
	}
	c.mu.Unlock()

	if c.remote != nil {
		// Write-through is best effort and never holds the lock.
		_ = c.remote.Set(ctx, remoteKey(fingerprint), result, c.ttl)
	}
}

func (c *ContentCache) removeLocked(entry *cacheEntry) {
	c.lru.Remove(entry.elem)
	delete(c.entries, entry.fingerprint)
}

// Invalidate drops every local entry, used on explicit config reloads.
// Entries under the old config version would miss anyway since the version
// is part of the fingerprint.
func (c *ContentCache) Invalidate() {
	c.mu.Lock()
	c.entries = make(map[string]*cacheEntry, c.capacity)
	c.lru.Init()
	c.mu.Unlock()
}

// Stats returns cumulative hit and miss counts.
func (c *ContentCache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *ContentCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func remoteKey(fingerprint string) string {
	return "safety:analysis:" + fingerprint
}
