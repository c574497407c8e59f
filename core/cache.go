package core

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache keys for public page data.
const (
	cacheKeyCategoryTree = "page:category_tree"
	cacheKeyHomeArticles = "page:home_articles"
)

// NewRedisClient returns a configured go-redis client from URL (e.g., redis://localhost:6379/0).
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, errors.New("empty redis url")
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return client, nil
}

// PageCache keeps JSON-encoded public page payloads in Redis with a fixed
// TTL. A nil *PageCache is a disabled cache: every operation is a no-op, so
// callers never branch on whether caching is configured.
type PageCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPageCache(client *redis.Client, ttl time.Duration) *PageCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &PageCache{client: client, ttl: ttl}
}

// Get loads a cached payload into out. It reports a miss (never an error)
// when the cache is disabled, the key is absent or the stored value no
// longer unmarshals.
func (p *PageCache) Get(ctx context.Context, key string, out any) bool {
	if p == nil {
		return false
	}
	raw, err := p.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			log.Printf("cache get %s failed: %v", key, err)
		}
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Printf("cache entry %s invalid, dropping: %v", key, err)
		p.Invalidate(ctx, key)
		return false
	}
	return true
}

// Set stores a payload best-effort; failures are logged, never returned.
func (p *PageCache) Set(ctx context.Context, key string, v any) {
	if p == nil {
		return
	}
	raw, err := json.Marshal(v)
	if err != nil {
		log.Printf("cache encode %s failed: %v", key, err)
		return
	}
	if err := p.client.Set(ctx, key, raw, p.ttl).Err(); err != nil {
		log.Printf("cache set %s failed: %v", key, err)
	}
}

// Invalidate drops cached entries, used after admin mutations.
func (p *PageCache) Invalidate(ctx context.Context, keys ...string) {
	if p == nil || len(keys) == 0 {
		return
	}
	if err := p.client.Del(ctx, keys...).Err(); err != nil {
		log.Printf("cache invalidate %v failed: %v", keys, err)
	}
}

// InvalidatePublic drops everything the public pages read, after any admin
// mutation that could affect them.
func (p *PageCache) InvalidatePublic(ctx context.Context) {
	p.Invalidate(ctx, cacheKeyCategoryTree, cacheKeyHomeArticles)
}
