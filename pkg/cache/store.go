package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Store is the string cache used for derived, rebuildable data such as the
// formatted catalog listings. Misses and backend errors look the same to
// callers; the source of truth is always the database.
type Store interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, keys ...string)
}

// MemoryStore adapts Cache to Store.
type MemoryStore struct {
	c *Cache
}

func NewMemoryStore(maxItems int) *MemoryStore {
	return &MemoryStore{c: New(maxItems)}
}

// Janitor purges expired entries every interval until ctx is done.
func (m *MemoryStore) Janitor(ctx context.Context, interval time.Duration) {
	m.c.Janitor(ctx, interval)
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, bool) {
	v, ok := m.c.Get(key)
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

func (m *MemoryStore) Set(_ context.Context, key, value string, ttl time.Duration) {
	m.c.Set(key, value, ttl)
}

func (m *MemoryStore) Delete(_ context.Context, keys ...string) {
	for _, k := range keys {
		m.c.Delete(k)
	}
}

// RedisStore keeps entries in Redis so several API instances share one
// catalog cache and one invalidation.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

// ConnectRedis parses url, pings the server and returns a store whose keys
// are namespaced with prefix.
func ConnectRedis(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (r *RedisStore) key(k string) string { return r.prefix + k }

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool) {
	val, err := r.rdb.Get(ctx, r.key(key)).Result()
	if err != nil {
		return "", false
	}
	return val, true
}

func (r *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) {
	if ttl < 0 {
		ttl = 0
	}
	_ = r.rdb.Set(ctx, r.key(key), value, ttl).Err()
}

func (r *RedisStore) Delete(ctx context.Context, keys ...string) {
	if len(keys) == 0 {
		return
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	_ = r.rdb.Del(ctx, full...).Err()
}

// Close releases the underlying connection pool.
func (r *RedisStore) Close() error { return r.rdb.Close() }
