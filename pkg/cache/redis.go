package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"mt5-gateway/pkg/mt5"
)

// RedisSymbolCache shares symbol snapshots across gateway replicas.
type RedisSymbolCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection.
func NewRedis(addr string, ttl time.Duration) (*RedisSymbolCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &RedisSymbolCache{client: client, ttl: ttl}, nil
}

func symbolKey(name string) string {
	return "symbol:" + name
}

// Set stores a symbol snapshot with the cache TTL.
func (c *RedisSymbolCache) Set(ctx context.Context, sym mt5.Symbol) {
	data, err := json.Marshal(sym)
	if err != nil {
		return
	}
	// Best-effort: a cache write failure never fails the request.
	_ = c.client.Set(ctx, symbolKey(sym.Name), data, c.ttl).Err()
}

// Get retrieves a symbol snapshot; expiry is handled by Redis.
func (c *RedisSymbolCache) Get(ctx context.Context, name string) (mt5.Symbol, bool) {
	data, err := c.client.Get(ctx, symbolKey(name)).Result()
	if err != nil {
		return mt5.Symbol{}, false
	}
	var sym mt5.Symbol
	if err := json.Unmarshal([]byte(data), &sym); err != nil {
		return mt5.Symbol{}, false
	}
	return sym, true
}

// Close closes the underlying Redis connection.
func (c *RedisSymbolCache) Close() error {
	return c.client.Close()
}
