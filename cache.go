package gns

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Cache is an in-memory Namecache keeping encrypted blocks by query hash.
// Expired blocks are dropped on access. It is safe for concurrent use.
type Cache struct {
	count uint64 // atomic
	hits  uint64 // atomic
	mu    sync.RWMutex
	cache map[QueryHash]*Block
}

var _ Namecache = (*Cache)(nil) // ensure we implement interface

func NewCache() *Cache {
	return &Cache{
		cache: make(map[QueryHash]*Block),
	}
}

// HitRatio returns the hit ratio as a percentage.
func (cache *Cache) HitRatio() float64 {
	if cache != nil {
		if count := atomic.LoadUint64(&cache.count); count > 0 {
			hits := atomic.LoadUint64(&cache.hits)
			return float64(hits*100) / float64(count)
		}
	}
	return 0
}

// Entries returns the number of blocks in the cache.
func (cache *Cache) Entries() (n int) {
	if cache != nil {
		cache.mu.RLock()
		n = len(cache.cache)
		cache.mu.RUnlock()
	}
	return
}

func (cache *Cache) Set(block *Block) {
	if cache != nil && block != nil {
		cache.mu.Lock()
		cache.cache[block.Query] = block
		cache.mu.Unlock()
	}
}

func (cache *Cache) Get(query QueryHash) *Block {
	if cache != nil {
		cache.mu.RLock()
		block, ok := cache.cache[query]
		cache.mu.RUnlock()
		atomic.AddUint64(&cache.count, 1)
		if ok {
			if !block.Expired(time.Now()) {
				atomic.AddUint64(&cache.hits, 1)
				return block
			}
			cache.mu.Lock()
			delete(cache.cache, query)
			cache.mu.Unlock()
		}
	}
	return nil
}

// Clean removes blocks expired at the given time, or everything if now is
// the zero time.
func (cache *Cache) Clean(now time.Time) {
	if cache != nil {
		cache.mu.Lock()
		defer cache.mu.Unlock()
		if now.IsZero() {
			clear(cache.cache)
			return
		}
		for query, block := range cache.cache {
			if block.Expired(now) {
				delete(cache.cache, query)
			}
		}
	}
}

// LookupBlock implements Namecache.
func (cache *Cache) LookupBlock(ctx context.Context, query QueryHash) (*Block, error) {
	return cache.Get(query), nil
}

// CacheBlock implements Namecache.
func (cache *Cache) CacheBlock(ctx context.Context, block *Block) error {
	cache.Set(block)
	return nil
}
