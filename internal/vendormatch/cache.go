package vendormatch

import (
	"sync"
	"time"

	"github.com/afoxnyc3/invoice-agent/internal/domain"
)

const shardCount = 16

// vendorCache is the bounded in-process read-through cache allowed
// ("Vendor-store reads are frequent; a bounded in-process read-through
// cache with ≤1h TTL is permitted; writes invalidate on update"). Sharded
// by vendor key hash to reduce lock contention across concurrent workers,
// the same way the suppression engine shards its singleton manager's
// locking rather than using one global mutex.
type vendorCache struct {
	ttl    time.Duration
	shards [shardCount]*cacheShard
}

type cacheShard struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	vendor    domain.VendorMaster
	expiresAt time.Time
}

func newVendorCache(ttl time.Duration) *vendorCache {
	c := &vendorCache{ttl: ttl}
	for i := range c.shards {
		c.shards[i] = &cacheShard{entries: make(map[string]cacheEntry)}
	}
	return c
}

func (c *vendorCache) shardFor(key string) *cacheShard {
	var h uint32
	for i := 0; i < len(key); i++ {
		h = h*31 + uint32(key[i])
	}
	return c.shards[h%shardCount]
}

func (c *vendorCache) get(key string) (domain.VendorMaster, bool) {
	shard := c.shardFor(key)
	shard.mu.RLock()
	defer shard.mu.RUnlock()

	entry, ok := shard.entries[key]
	if !ok || time.Now().After(entry.expiresAt) {
		return domain.VendorMaster{}, false
	}
	return entry.vendor, true
}

func (c *vendorCache) set(key string, v domain.VendorMaster) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	shard.entries[key] = cacheEntry{vendor: v, expiresAt: time.Now().Add(c.ttl)}
}

// invalidate drops key, used after Update so a stale row never outlives
// its TTL unnecessarily.
func (c *vendorCache) invalidate(key string) {
	shard := c.shardFor(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	delete(shard.entries, key)
}
