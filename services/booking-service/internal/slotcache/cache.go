package slotcache

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache memoizes serialized slot responses in Redis for a short TTL. Entries
// are keyed by the full query tuple plus a per-shop generation counter, so
// invalidation never needs key scans: bumping the generation orphans every
// cached entry for the shop and the TTL reaps them.
//
// The cached bytes are returned verbatim, which keeps slot ordering and
// content identical between cached and computed responses.
type Cache struct {
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Cache {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Cache{rdb: rdb, ttl: ttl, logger: logger}
}

// Key builds the cache key for a slot query. parts should identify the query
// completely (shop, barber-or-any, date, service, timezone).
func (c *Cache) Key(ctx context.Context, shopID string, parts ...string) string {
	gen, err := c.rdb.Get(ctx, genKey(shopID)).Result()
	if err != nil {
		// Missing or unreadable generation degrades to gen 0; worst case is a
		// cache miss, never a stale read past the TTL.
		gen = "0"
	}
	return "slots:" + shopID + ":" + gen + ":" + strings.Join(parts, ":")
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	body, err := c.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil && c.logger != nil {
			c.logger.Warn("slot cache read failed", "err", err)
		}
		return nil, false
	}
	return body, true
}

func (c *Cache) Set(ctx context.Context, key string, body []byte) {
	if err := c.rdb.Set(ctx, key, body, c.ttl).Err(); err != nil && c.logger != nil {
		c.logger.Warn("slot cache write failed", "err", err)
	}
}

// Invalidate bumps the shop's generation, orphaning all cached slot responses
// for the shop. Called after bookings, cancellations, and roster changes.
func (c *Cache) Invalidate(ctx context.Context, shopID string) {
	if err := c.rdb.Incr(ctx, genKey(shopID)).Err(); err != nil && c.logger != nil {
		c.logger.Warn("slot cache invalidation failed", "shop_id", shopID, "err", err)
	}
}

func genKey(shopID string) string {
	return fmt.Sprintf("slots:gen:%s", shopID)
}
