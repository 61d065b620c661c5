// Package cache is a best-effort Redis read cache for single-order
// lookups. A cache failure is never surfaced to the caller; the
// database stays the source of truth.
package cache

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/happyfeetfollowme/tdccp-ecommerce-platform/internal/orders/order"
)

const keyOrder = "order:"

var ttl = 5 * time.Minute

type OrderCache struct {
	rdb    *redis.Client
	logger *slog.Logger
}

func New(addr string, logger *slog.Logger) *OrderCache {
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	return &OrderCache{rdb: rdb, logger: logger}
}

func (c *OrderCache) Get(ctx context.Context, orderID string) (*order.Order, bool) {
	raw, err := c.rdb.Get(ctx, keyOrder+orderID).Bytes()
	if err != nil {
		if err != redis.Nil {
			c.logger.Warn("order cache read failed", "order_id", orderID, "err", err)
		}
		return nil, false
	}

	var o order.Order
	if err := json.Unmarshal(raw, &o); err != nil {
		c.logger.Warn("order cache entry corrupt", "order_id", orderID, "err", err)
		c.Invalidate(ctx, orderID)
		return nil, false
	}
	return &o, true
}

func (c *OrderCache) Set(ctx context.Context, o *order.Order) {
	raw, err := json.Marshal(o)
	if err != nil {
		return
	}
	if err := c.rdb.Set(ctx, keyOrder+o.ID, raw, ttl).Err(); err != nil {
		c.logger.Warn("order cache write failed", "order_id", o.ID, "err", err)
	}
}

func (c *OrderCache) Invalidate(ctx context.Context, orderID string) {
	if err := c.rdb.Del(ctx, keyOrder+orderID).Err(); err != nil {
		c.logger.Warn("order cache invalidate failed", "order_id", orderID, "err", err)
	}
}

func (c *OrderCache) Close() error {
	return c.rdb.Close()
}
