package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/recordstack/entitystore/common/logger"
)

// Cache is the shared key-value store behind the entity loader.
// Entries are serialized entity documents keyed per account, see
// EntityKey and EntityGUIDKey.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// EntityKey addresses an entity document by object type and local id
func EntityKey(account, objType, id string) string {
	return fmt.Sprintf("%s/objects/%s/%s", account, objType, id)
}

// EntityGUIDKey addresses an entity document by global id alone
func EntityGUIDKey(account, guid string) string {
	return fmt.Sprintf("%s/objects/guid/%s", account, guid)
}

// MemoryCache keeps entity documents in process memory. It backs
// single-process deployments and tests where no shared tier exists;
// cross-process invalidation does not reach it.
type MemoryCache struct {
	data map[string]*cacheEntry
	mu   sync.RWMutex
	log  *logger.Logger
}

type cacheEntry struct {
	value     []byte
	expiresAt time.Time
}

// NewMemoryCache creates an in-memory cache with a background sweeper
func NewMemoryCache(log *logger.Logger) *MemoryCache {
	c := &MemoryCache{
		data: make(map[string]*cacheEntry),
		log:  log,
	}
	go c.sweep()
	return c
}

// Get returns the cached document for a key; expired entries read as
// misses even before the sweeper reclaims them
func (c *MemoryCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, exists := c.data[key]
	if !exists {
		return nil, false, nil
	}
	if time.Now().After(entry.expiresAt) {
		return nil, false, nil
	}
	return entry.value, true, nil
}

// Set stores a document under a key with a TTL
func (c *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[key] = &cacheEntry{
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	return nil
}

// Delete drops a key; missing keys are a no-op
func (c *MemoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, key)
	return nil
}

// Close releases the store
func (c *MemoryCache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data = nil
	c.log.Info("memory cache closed")
	return nil
}

// sweep reclaims expired entries once a minute
func (c *MemoryCache) sweep() {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		c.mu.Lock()
		now := time.Now()
		for key, entry := range c.data {
			if now.After(entry.expiresAt) {
				delete(c.data, key)
			}
		}
		c.mu.Unlock()
	}
}

// Stats reports entry count and backend type for the metrics endpoint
func (c *MemoryCache) Stats() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]any{
		"entries": len(c.data),
		"type":    "memory",
	}
}
