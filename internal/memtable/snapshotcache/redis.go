// Package snapshotcache is an optional, strictly-advisory warm-start cache
// for published graduation tables. Save writes them and Load reads them
// back; riskcore serve only calls Save, and no memtable.Manager method
// installs loaded tables. Correctness never depends on it being present or
// fresh — a failed write or a corrupt entry is logged and skipped.
package snapshotcache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/riskcore-io/riskcore/internal/graduation"
	"github.com/riskcore-io/riskcore/internal/memtable"
)

const keyPrefix = "riskcore:graduation:"

// Cache wraps a redis client for snapshot warm-start.
type Cache struct {
	rdb *redis.Client
	ttl time.Duration
}

func New(rdb *redis.Client, ttl time.Duration) *Cache {
	return &Cache{rdb: rdb, ttl: ttl}
}

// Save writes every published graduation table to redis, best-effort. Any
// error is logged and swallowed — this is a cache, never authoritative.
func (c *Cache) Save(ctx context.Context, tables map[memtable.Key]*graduation.Table) {
	for k, t := range tables {
		if t == nil {
			continue
		}
		blob, err := json.Marshal(t)
		if err != nil {
			log.Warn().Err(err).Str("instrument", k.Instrument).Msg("snapshotcache: marshal failed")
			continue
		}
		if err := c.rdb.Set(ctx, cacheKey(k), blob, c.ttl).Err(); err != nil {
			log.Warn().Err(err).Str("instrument", k.Instrument).Msg("snapshotcache: redis set failed")
		}
	}
}

// Load reads cached tables for the requested keys. Missing or corrupt
// entries are silently skipped; the caller's cold-start path still runs
// regardless of what this returns.
func (c *Cache) Load(ctx context.Context, keys []memtable.Key) map[memtable.Key]*graduation.Table {
	out := make(map[memtable.Key]*graduation.Table, len(keys))
	for _, k := range keys {
		blob, err := c.rdb.Get(ctx, cacheKey(k)).Bytes()
		if err != nil {
			continue // redis.Nil or transient error — just skip
		}
		var t graduation.Table
		if err := json.Unmarshal(blob, &t); err != nil {
			log.Warn().Err(err).Str("instrument", k.Instrument).Msg("snapshotcache: corrupt cache entry")
			continue
		}
		out[k] = &t
	}
	return out
}

func cacheKey(k memtable.Key) string {
	return keyPrefix + k.Instrument + ":" + string(k.Direction)
}
