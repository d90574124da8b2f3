package data

import (
	"container/list"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"sync/atomic"
	"time"

	"github.com/target/mmk-site-audit/internal/core"
	"github.com/target/mmk-site-audit/internal/domain/model"
)

const (
	DefaultAuditCacheTTL        = 24 * time.Hour
	DefaultAuditCacheMaxEntries = 100
)

// AuditCacheConfig groups constructor options.
type AuditCacheConfig struct {
	TTL          time.Duration
	MaxEntries   int
	TimeProvider TimeProvider
}

// CacheStats is a point-in-time view of cache counters.
type CacheStats struct {
	Size        int           `json:"size"`
	Capacity    int           `json:"capacity"`
	TTL         time.Duration `json:"ttl"`
	Hits        uint64        `json:"hits"`
	Misses      uint64        `json:"misses"`
	Evictions   uint64        `json:"evictions"`
	Expirations uint64        `json:"expirations"`
}

// AuditCache maps a (target URL, API key) pair to the id of its most recent completed job.
// Entries are kept in ascending completion order; the oldest completion is evicted first
// once the capacity is exceeded. Expired entries are dropped lazily on Lookup.
type AuditCache struct {
	mu      sync.Mutex
	max     int
	ttl     time.Duration
	ll      *list.List               // front = oldest completion
	items   map[string]*list.Element // cache key -> element
	clock   TimeProvider
	hits    atomic.Uint64
	misses  atomic.Uint64
	evicts  atomic.Uint64
	expired atomic.Uint64
}

type auditCacheEntry struct {
	key         string
	jobID       string
	completedAt time.Time
	expiresAt   time.Time
}

var _ core.ResultCache = (*AuditCache)(nil)

// NewAuditCache creates an AuditCache, applying defaults for unset fields.
func NewAuditCache(cfg AuditCacheConfig) *AuditCache {
	maxEntries := cfg.MaxEntries
	if maxEntries <= 0 {
		maxEntries = DefaultAuditCacheMaxEntries
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultAuditCacheTTL
	}
	return &AuditCache{
		max:   maxEntries,
		ttl:   ttl,
		ll:    list.New(),
		items: make(map[string]*list.Element, maxEntries),
		clock: timeProviderOrDefault(cfg.TimeProvider),
	}
}

// CacheKey builds the cache key for a target and API key. The API key only
// contributes its digest so raw keys never sit in memory as map keys.
func CacheKey(targetURL, apiKey string) (string, error) {
	target, err := model.NormalizeTargetURL(targetURL)
	if err != nil {
		return "", err
	}
	if apiKey == "" {
		return target + "|", nil
	}
	sum := sha256.Sum256([]byte(apiKey))
	return target + "|" + hex.EncodeToString(sum[:16]), nil
}

// Lookup returns the job id for a live entry.
func (c *AuditCache) Lookup(targetURL, apiKey string) (string, bool) {
	key, err := CacheKey(targetURL, apiKey)
	if err != nil {
		c.misses.Add(1)
		return "", false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, found := c.items[key]
	if !found {
		c.misses.Add(1)
		return "", false
	}
	ent, ok := el.Value.(*auditCacheEntry)
	if !ok {
		c.removeElement(el)
		c.misses.Add(1)
		return "", false
	}
	if c.clock.Now().After(ent.expiresAt) {
		c.removeElement(el)
		c.expired.Add(1)
		c.misses.Add(1)
		return "", false
	}
	c.hits.Add(1)
	return ent.jobID, true
}

// Record stores a completed job, replacing any entry for the same key.
func (c *AuditCache) Record(jobID, targetURL, apiKey string, completedAt time.Time) {
	key, err := CacheKey(targetURL, apiKey)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, found := c.items[key]; found {
		c.removeElement(el)
	}

	ent := &auditCacheEntry{
		key:         key,
		jobID:       jobID,
		completedAt: completedAt,
		expiresAt:   completedAt.Add(c.ttl),
	}

	// walk back from the newest entry to keep completion order
	mark := c.ll.Back()
	for mark != nil {
		if prev, ok := mark.Value.(*auditCacheEntry); ok && !prev.completedAt.After(completedAt) {
			break
		}
		mark = mark.Prev()
	}
	var el *list.Element
	if mark == nil {
		el = c.ll.PushFront(ent)
	} else {
		el = c.ll.InsertAfter(ent, mark)
	}
	c.items[key] = el
	c.evictIfNeeded()
}

// Remove drops any entry pointing at jobID.
func (c *AuditCache) Remove(jobID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for el := c.ll.Front(); el != nil; el = el.Next() {
		if ent, ok := el.Value.(*auditCacheEntry); ok && ent.jobID == jobID {
			c.removeElement(el)
			return true
		}
	}
	return false
}

// Purge drops every expired entry and returns how many were removed.
func (c *AuditCache) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for el := c.ll.Front(); el != nil; {
		next := el.Next()
		ent, ok := el.Value.(*auditCacheEntry)
		if !ok || now.After(ent.expiresAt) {
			c.removeElement(el)
			c.expired.Add(1)
			removed++
		}
		el = next
	}
	return removed
}

// Len returns the number of entries, expired or not.
func (c *AuditCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Stats returns current counters.
func (c *AuditCache) Stats() CacheStats {
	return CacheStats{
		Size:        c.Len(),
		Capacity:    c.max,
		TTL:         c.ttl,
		Hits:        c.hits.Load(),
		Misses:      c.misses.Load(),
		Evictions:   c.evicts.Load(),
		Expirations: c.expired.Load(),
	}
}

func (c *AuditCache) evictIfNeeded() {
	for c.ll.Len() > c.max {
		el := c.ll.Front()
		if el == nil {
			return
		}
		c.removeElement(el)
		c.evicts.Add(1)
	}
}

func (c *AuditCache) removeElement(el *list.Element) {
	c.ll.Remove(el)
	if ent, ok := el.Value.(*auditCacheEntry); ok {
		delete(c.items, ent.key)
	}
}
