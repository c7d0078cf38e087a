package bridge

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// dedupEntry is one cached invocation outcome keyed by {sessionId,
// invocationId}.
type dedupEntry struct {
	fingerprint string
	data        any
	err         error
	bytes       int
	expiresAt   time.Time
}

// DedupCache implements spec.md §4.9's invocation dedup: a concurrent
// duplicate of the same {sessionId, invocationId} collapses onto one
// underlying execution via singleflight.Group (so the "duplicate with
// matching fingerprint returns the cached response" property holds even
// when both calls arrive before the first completes), and a completed
// result stays cached for TTL so a retried request that arrives after
// completion also gets the cached response instead of re-executing.
// Capacity is bounded both by entry count and total cached bytes —
// spec.md's "entry-count and byte-budget cap" — evicting the
// oldest-expiring entry when either cap would be exceeded.
type DedupCache struct {
	mu          sync.Mutex
	entries     map[string]*dedupEntry
	group       singleflight.Group
	ttl         time.Duration
	maxEntries  int
	maxBytes    int
	totalBytes  int
}

// NewDedupCache builds a cache with the given TTL and caps.
func NewDedupCache(ttl time.Duration, maxEntries, maxBytes int) *DedupCache {
	return &DedupCache{
		entries:    make(map[string]*dedupEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

func dedupKey(sessionID, invocationID string) string {
	return sessionID + "\x00" + invocationID
}

// Execute runs fn at most once per {sessionID, invocationID} within the
// cache's lifetime window: concurrent calls coalesce via singleflight;
// a call arriving after a prior one completed but still within TTL
// returns the cached outcome (and deduped=true) without re-invoking fn,
// provided fingerprint matches — a mismatched fingerprint is an E_ARGS
// error regardless of concurrency.
func (c *DedupCache) Execute(sessionID, invocationID, fingerprint string, fn func() (any, int, error)) (data any, deduped bool, err error) {
	key := dedupKey(sessionID, invocationID)

	c.mu.Lock()
	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()
		if entry.fingerprint != fingerprint {
			return nil, false, pkgerrors.New(pkgerrors.CodeArgs, fmt.Sprintf("invocation %q already in flight with a different fingerprint", invocationID))
		}
		return entry.data, true, entry.err
	}
	c.mu.Unlock()

	v, err, shared := c.group.Do(key, func() (any, error) {
		data, size, fnErr := fn()
		c.store(key, fingerprint, data, size, fnErr)
		return data, fnErr
	})
	if shared {
		c.mu.Lock()
		entry, ok := c.entries[key]
		c.mu.Unlock()
		if ok && entry.fingerprint != fingerprint {
			return nil, false, pkgerrors.New(pkgerrors.CodeArgs, fmt.Sprintf("invocation %q already in flight with a different fingerprint", invocationID))
		}
	}
	return v, shared, err
}

func (c *DedupCache) store(key, fingerprint string, data any, size int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.evictExpiredLocked()
	overEntries := func() bool { return c.maxEntries > 0 && len(c.entries) >= c.maxEntries }
	overBytes := func() bool { return c.maxBytes > 0 && c.totalBytes+size > c.maxBytes }
	for (overEntries() || overBytes()) && len(c.entries) > 0 {
		c.evictOldestLocked()
	}

	c.entries[key] = &dedupEntry{
		fingerprint: fingerprint,
		data:        data,
		err:         err,
		bytes:       size,
		expiresAt:   time.Now().Add(c.ttl),
	}
	c.totalBytes += size
}

func (c *DedupCache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			c.totalBytes -= e.bytes
			delete(c.entries, k)
		}
	}
}

func (c *DedupCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.expiresAt.Before(oldest) {
			oldestKey, oldest = k, e.expiresAt
		}
	}
	if oldestKey != "" {
		c.totalBytes -= c.entries[oldestKey].bytes
		delete(c.entries, oldestKey)
	}
}
