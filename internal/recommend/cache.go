package recommend

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
)

// staleFactor keeps entries around past freshness so a failing upstream can
// still be served the last known answer.
const staleFactor = 10

type cacheEntry struct {
	FetchedAt time.Time       `json:"fetched_at"`
	Body      json.RawMessage `json:"body"`
}

// Cache is a Redis-backed TTL cache for upstream responses. Entries are
// fresh for TTL (with jitter) and readable, stale, for staleFactor times
// longer.
type Cache struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewCache(r redis.UniversalClient, prefix string, ttl time.Duration) *Cache {
	return &Cache{
		redis:  r,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the cached body and whether it is still fresh. A miss returns
// (nil, false, nil).
func (c *Cache) Get(ctx context.Context, key string) (json.RawMessage, bool, error) {
	raw, err := c.redis.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache get: %w", err)
	}

	var e cacheEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, false, fmt.Errorf("cache decode: %w", err)
	}

	fresh := time.Since(e.FetchedAt) < c.ttl
	return e.Body, fresh, nil
}

func (c *Cache) Set(ctx context.Context, key string, body json.RawMessage) error {
	raw, err := json.Marshal(cacheEntry{FetchedAt: time.Now(), Body: body})
	if err != nil {
		return fmt.Errorf("cache encode: %w", err)
	}

	return c.redis.Set(ctx, c.key(key), raw, c.ttlWithJitter()*staleFactor).Err()
}

func (c *Cache) key(key string) string {
	return fmt.Sprintf("%s:recommend:%s", c.prefix, key)
}

// ttlWithJitter spreads expirations by up to 10% so warm keys do not all
// fall out at once. Sets for different keys run concurrently, so this uses
// the locked top-level rand source.
func (c *Cache) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// cacheKey derives a stable key from the query parameters.
func cacheKey(path string, params any) string {
	raw, _ := json.Marshal(struct {
		Path   string `json:"path"`
		Params any    `json:"params"`
	}{path, params})
	sum := sha1.Sum(raw)
	return hex.EncodeToString(sum[:])
}
