// Package cache implements the two-tier shared cache: a remote Redis KV
// shared across process replicas, backed by an in-process tier that keeps
// serving during remote outages.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/finscope/finscope/internal/metrics"
)

// Cache is the two-tier adapter. The remote client may be nil, in which
// case only the local tier is used (tests, offline runs).
type Cache struct {
	remote   redis.Cmdable
	local    *localTier
	localTTL time.Duration
}

// New wraps a Redis client. Pass nil to run local-only. localTTL, when
// positive, caps how long the in-process tier holds an entry: the local
// tier never sees cross-replica invalidations, so it may expire sooner
// than the remote one. Zero leaves local entries on the caller's TTL.
func New(remote redis.Cmdable, localTTL time.Duration) *Cache {
	return &Cache{remote: remote, local: newLocalTier(), localTTL: localTTL}
}

// Get returns the first non-expired value from remote then local. Remote
// failures are swallowed; the caller cannot distinguish them from a miss.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c.remote != nil {
		val, err := c.remote.Get(ctx, key).Bytes()
		switch {
		case err == nil:
			metrics.CacheHits.WithLabelValues("remote").Inc()
			return val, true
		case errors.Is(err, redis.Nil):
			// fall through to local
		default:
			metrics.CacheRemoteErrors.Inc()
			log.Warn().Err(err).Str("key", key).Msg("remote cache read failed, trying local tier")
		}
	}

	if val, ok := c.local.get(key); ok {
		metrics.CacheHits.WithLabelValues("local").Inc()
		return val, true
	}
	metrics.CacheMisses.Inc()
	return nil, false
}

// Set writes both tiers. The local write always succeeds; a remote failure
// is logged and tolerated.
func (c *Cache) Set(ctx context.Context, key string, val []byte, ttl time.Duration) {
	localTTL := ttl
	if c.localTTL > 0 && c.localTTL < localTTL {
		localTTL = c.localTTL
	}
	c.local.set(key, val, localTTL)

	if c.remote == nil {
		return
	}
	if err := c.remote.Set(ctx, key, val, ttl).Err(); err != nil {
		metrics.CacheRemoteErrors.Inc()
		log.Warn().Err(err).Str("key", key).Msg("remote cache write failed, local tier still populated")
	}
}

// Delete removes the key from both tiers. Remote failure is tolerated.
func (c *Cache) Delete(ctx context.Context, key string) {
	c.local.delete(key)
	if c.remote == nil {
		return
	}
	if err := c.remote.Del(ctx, key).Err(); err != nil {
		metrics.CacheRemoteErrors.Inc()
		log.Warn().Err(err).Str("key", key).Msg("remote cache delete failed")
	}
}

// GetJSON unmarshals the cached envelope into out. A corrupt envelope
// counts as a miss and is logged.
func (c *Cache) GetJSON(ctx context.Context, key string, out any) bool {
	raw, ok := c.Get(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, out); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("cached envelope is not valid JSON, discarding")
		return false
	}
	return true
}

// SetJSON marshals v and writes both tiers. Marshal errors are logged and
// dropped; cache writes are never fatal to the caller.
func (c *Cache) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) {
	raw, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("key", key).Msg("cache value not serialisable")
		return
	}
	c.Set(ctx, key, raw, ttl)
}
