package fingerprint

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/luissimon96/migration-validation-voe/internal/pkg/logger"
)

// Default namespace TTLs (§4.1). LLM answers outlive analyzer output since a
// cached Code/Visual Analyzer result is only as good as the analyzer
// version that produced it, while an LLM answer for an unchanged prompt
// stays valid far longer.
const (
	DefaultLLMTTL      = 30 * 24 * time.Hour
	DefaultAnalysisTTL = 7 * 24 * time.Hour
)

// Cache is C1: a namespaced, single-flight-collapsed lookup/store for LLM
// answers and analyzer outputs, addressed by fingerprint rather than owned
// by any session. A backend error downgrades to a cache miss — it never
// blocks the pipeline — and is logged at warn.
type Cache struct {
	log    *logger.Logger
	rdb    *goredis.Client
	flight singleflight.Group
}

func NewCache(log *logger.Logger, rdb *goredis.Client) *Cache {
	return &Cache{log: log.With("service", "FingerprintCache"), rdb: rdb}
}

// Get looks up a raw fingerprint hash in the given namespace. A miss and a
// backend error are indistinguishable to the caller (both return ok=false);
// the error case is logged here.
func (c *Cache) Get(ctx context.Context, ns Namespace, hash string) (string, bool) {
	if c.rdb == nil {
		return "", false
	}
	key := CacheKey(ns, hash)
	val, err := c.rdb.Get(ctx, key).Result()
	if err != nil {
		if err != goredis.Nil {
			c.log.Warn("cache backend error, treating as miss", "key", key, "error", err)
		}
		return "", false
	}
	return val, true
}

// Ping reports whether the backing store is reachable, for the health
// endpoint's per-subsystem breakdown.
func (c *Cache) Ping(ctx context.Context) error {
	if c.rdb == nil {
		return nil
	}
	return c.rdb.Ping(ctx).Err()
}

// Put writes a value under the given namespace's default TTL.
func (c *Cache) Put(ctx context.Context, ns Namespace, hash, value string) {
	if c.rdb == nil {
		return
	}
	key := CacheKey(ns, hash)
	ttl := ttlFor(ns)
	if err := c.rdb.Set(ctx, key, value, ttl).Err(); err != nil {
		c.log.Warn("cache write failed", "key", key, "error", err)
	}
}

// GetOrCompute collapses concurrent misses on the same fingerprint onto a
// single in-flight compute call; later arrivals block on the first to
// finish and read its result rather than recomputing (preventing duplicate
// LLM spend on cold-start bursts). The compute result is cached on success
// only; a compute error is returned to every waiter but never cached.
func (c *Cache) GetOrCompute(ctx context.Context, ns Namespace, hash string, compute func(ctx context.Context) (string, error)) (string, error) {
	if val, ok := c.Get(ctx, ns, hash); ok {
		return val, nil
	}

	flightKey := string(ns) + ":" + hash
	result, err, _ := c.flight.Do(flightKey, func() (interface{}, error) {
		if val, ok := c.Get(ctx, ns, hash); ok {
			return val, nil
		}
		val, err := compute(ctx)
		if err != nil {
			return "", err
		}
		c.Put(ctx, ns, hash, val)
		return val, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

func ttlFor(ns Namespace) time.Duration {
	switch ns {
	case NamespaceLLM:
		return DefaultLLMTTL
	case NamespaceAnalysis:
		return DefaultAnalysisTTL
	default:
		return DefaultAnalysisTTL
	}
}
