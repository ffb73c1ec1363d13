// File: /services/cache.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"chyrp-api/metrics"
)

// Cache stores serialized read results. Implementations never return errors
// to callers: a failing cache behaves like an empty one.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte)
	Delete(ctx context.Context, keys ...string)
	DeletePrefix(ctx context.Context, prefix string)
}

// Cache key builders. Every key that depends on the viewer ends with the
// viewer id (0 for anonymous) so that prefix invalidation covers all viewers.
func feedKey(kind, filter string, page, perPage int, viewerID uint) string {
	return fmt.Sprintf("feed:%s:%s:%d:%d:%d", kind, filter, page, perPage, viewerID)
}

func postKey(postID, viewerID uint) string {
	return fmt.Sprintf("%s%d", postPrefix(postID), viewerID)
}

func postPrefix(postID uint) string {
	return fmt.Sprintf("post:%d:", postID)
}

const (
	feedPrefix    = "feed:"
	tagsKey       = "tags:all"
	categoriesKey = "categories:all"
	sitemapKey    = "sitemap"
)

// keyFamily is the metric label for a key: everything before the first colon.
func keyFamily(key string) string {
	if i := strings.IndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

// reader wraps a Cache with JSON encoding and miss deduplication.
//
// gen is bumped by every invalidation. A load only stores its result when
// no invalidation happened while it ran, so a read that overlaps a write
// never caches what the write replaced.
type reader struct {
	cache Cache
	group singleflight.Group
	log   *zap.Logger
	gen   atomic.Uint64

	mu       sync.Mutex
	inflight map[string]int
}

// readers holds one reader per Cache so that every service sharing a cache
// also shares its generation and in-flight loads.
var readers sync.Map

func newReader(cache Cache, log *zap.Logger) *reader {
	fresh := &reader{cache: cache, log: log, inflight: make(map[string]int)}
	if _, nop := cache.(NopCache); nop || cache == nil {
		fresh.cache = NopCache{}
		return fresh
	}
	r, _ := readers.LoadOrStore(cache, fresh)
	return r.(*reader)
}

// remember returns the cached value for key or computes, stores and returns it.
// Concurrent misses on the same key share one load.
func remember[T any](ctx context.Context, r *reader, key string, load func() (T, error)) (T, error) {
	family := keyFamily(key)
	if data, ok := r.cache.Get(ctx, key); ok {
		var out T
		if err := json.Unmarshal(data, &out); err == nil {
			metrics.CacheHits.WithLabelValues(family).Inc()
			return out, nil
		}
		r.log.Warn("dropping undecodable cache entry", zap.String("key", key))
		r.cache.Delete(ctx, key)
	}
	metrics.CacheMisses.WithLabelValues(family).Inc()

	v, err, _ := r.group.Do(key, func() (interface{}, error) {
		r.track(key, true)
		defer r.track(key, false)

		start := r.gen.Load()
		value, err := load()
		if err != nil {
			return nil, err
		}
		r.store(ctx, key, value, start)
		return value, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return v.(T), nil
}

// store caches value unless an invalidation ran since start. The second
// check covers an invalidation that lands between the first check and Set.
func (r *reader) store(ctx context.Context, key string, value interface{}, start uint64) {
	if r.gen.Load() != start {
		return
	}
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	r.cache.Set(ctx, key, payload)
	if r.gen.Load() != start {
		r.cache.Delete(ctx, key)
	}
}

func (r *reader) track(key string, running bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if running {
		r.inflight[key]++
		return
	}
	if r.inflight[key]--; r.inflight[key] <= 0 {
		delete(r.inflight, key)
	}
}

func (r *reader) invalidate(ctx context.Context, keys []string, prefixes ...string) {
	r.gen.Add(1)
	r.forget(keys, prefixes)

	if len(keys) > 0 {
		r.cache.Delete(ctx, keys...)
	}
	for _, p := range prefixes {
		r.cache.DeletePrefix(ctx, p)
	}
}

// forget detaches in-flight loads for the invalidated keys so that later
// callers start a fresh load instead of joining one that began before the write.
func (r *reader) forget(keys, prefixes []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.inflight {
		if matchesAny(key, keys, prefixes) {
			r.group.Forget(key)
		}
	}
}

func matchesAny(key string, keys, prefixes []string) bool {
	for _, k := range keys {
		if key == k {
			return true
		}
	}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	return false
}

// NopCache disables caching.
type NopCache struct{}

func (NopCache) Get(context.Context, string) ([]byte, bool) { return nil, false }
func (NopCache) Set(context.Context, string, []byte)        {}
func (NopCache) Delete(context.Context, ...string)          {}
func (NopCache) DeletePrefix(context.Context, string)       {}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryCache is a bounded in-process TTL cache. When full, the entry
// closest to expiry is evicted to make room.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	ttl        time.Duration
	maxEntries int
	now        func() time.Time
}

func NewMemoryCache(ttl time.Duration, maxEntries int) *MemoryCache {
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		ttl:        ttl,
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil, false
	}
	return e.value, true
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = memoryEntry{value: value, expiresAt: c.now().Add(c.ttl)}
}

func (c *MemoryCache) evictLocked() {
	var victim string
	var soonest time.Time
	for k, e := range c.entries {
		if victim == "" || e.expiresAt.Before(soonest) {
			victim, soonest = k, e.expiresAt
		}
	}
	delete(c.entries, victim)
}

func (c *MemoryCache) Delete(_ context.Context, keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.entries, k)
	}
}

func (c *MemoryCache) DeletePrefix(_ context.Context, prefix string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
}

// Sweep drops expired entries and returns how many were removed.
func (c *MemoryCache) Sweep() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RedisCache shares cached reads between processes.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
	log    *zap.Logger
}

func NewRedisCache(client redis.UniversalClient, keyPrefix string, ttl time.Duration, log *zap.Logger) *RedisCache {
	return &RedisCache{client: client, prefix: keyPrefix + "cache:", ttl: ttl, log: log}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool) {
	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.log.Warn("redis cache get failed", zap.String("key", key), zap.Error(err))
		}
		return nil, false
	}
	return data, true
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte) {
	if err := c.client.Set(ctx, c.prefix+key, value, c.ttl).Err(); err != nil {
		c.log.Warn("redis cache set failed", zap.String("key", key), zap.Error(err))
	}
}

func (c *RedisCache) Delete(ctx context.Context, keys ...string) {
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = c.prefix + k
	}
	if err := c.client.Del(ctx, full...).Err(); err != nil {
		c.log.Warn("redis cache delete failed", zap.Strings("keys", keys), zap.Error(err))
	}
}

func (c *RedisCache) DeletePrefix(ctx context.Context, prefix string) {
	iter := c.client.Scan(ctx, 0, c.prefix+prefix+"*", 200).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 200 {
			c.deleteBatch(ctx, prefix, batch)
			batch = batch[:0]
		}
	}
	if len(batch) > 0 {
		c.deleteBatch(ctx, prefix, batch)
	}
	if err := iter.Err(); err != nil {
		c.log.Warn("redis cache prefix delete failed", zap.String("prefix", prefix), zap.Error(err))
	}
}

func (c *RedisCache) deleteBatch(ctx context.Context, prefix string, keys []string) {
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		c.log.Warn("redis cache prefix delete failed", zap.String("prefix", prefix), zap.Int("keys", len(keys)), zap.Error(err))
	}
}
