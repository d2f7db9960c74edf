package cache

import (
	"context"
	"hash/fnv"
	"sync"
	"time"

	"mt5-gateway/pkg/mt5"
)

// SymbolCache stores recent symbol snapshots with an explicit TTL so
// limited mode can serve stale-but-labeled data.
type SymbolCache interface {
	Get(ctx context.Context, name string) (mt5.Symbol, bool)
	Set(ctx context.Context, sym mt5.Symbol)
	Close() error
}

const numShards = 16

// ShardedSymbolCache is the in-memory default backend.
type ShardedSymbolCache struct {
	ttl    time.Duration
	shards [numShards]*symbolShard
}

type symbolShard struct {
	mu    sync.RWMutex
	items map[string]symbolEntry
}

type symbolEntry struct {
	sym       mt5.Symbol
	updatedAt time.Time
}

// NewSharded creates an in-memory cache; entries expire after ttl.
func NewSharded(ttl time.Duration) *ShardedSymbolCache {
	c := &ShardedSymbolCache{ttl: ttl}
	for i := 0; i < numShards; i++ {
		c.shards[i] = &symbolShard{items: make(map[string]symbolEntry)}
	}
	return c
}

func (c *ShardedSymbolCache) getShard(key string) *symbolShard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return c.shards[h.Sum32()%numShards]
}

// Set stores a symbol snapshot.
func (c *ShardedSymbolCache) Set(_ context.Context, sym mt5.Symbol) {
	shard := c.getShard(sym.Name)
	shard.mu.Lock()
	shard.items[sym.Name] = symbolEntry{sym: sym, updatedAt: time.Now()}
	shard.mu.Unlock()
}

// Get retrieves a symbol snapshot if present and not expired.
func (c *ShardedSymbolCache) Get(_ context.Context, name string) (mt5.Symbol, bool) {
	shard := c.getShard(name)
	shard.mu.RLock()
	entry, ok := shard.items[name]
	shard.mu.RUnlock()
	if !ok || (c.ttl > 0 && time.Since(entry.updatedAt) > c.ttl) {
		return mt5.Symbol{}, false
	}
	return entry.sym, true
}

// Len returns total items across all shards.
func (c *ShardedSymbolCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.items)
		shard.mu.RUnlock()
	}
	return total
}

// Cleanup removes entries older than the TTL; returns how many.
func (c *ShardedSymbolCache) Cleanup() int {
	if c.ttl <= 0 {
		return 0
	}
	removed := 0
	cutoff := time.Now().Add(-c.ttl)
	for _, shard := range c.shards {
		shard.mu.Lock()
		for name, entry := range shard.items {
			if entry.updatedAt.Before(cutoff) {
				delete(shard.items, name)
				removed++
			}
		}
		shard.mu.Unlock()
	}
	return removed
}

func (c *ShardedSymbolCache) Close() error { return nil }
