// Package cache speeds up promotion lookups with Redis and an in-memory
// bloom filter of known codes.
package cache

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/candleshop/internal/domain/promotion"
)

// Client is the subset of redis.Cmdable used by PromotionCache.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Store is the backing promotion store.
type Store interface {
	promotion.Repository
	promotion.RedemptionCounter
	ListRecords(ctx context.Context) ([]promotion.Record, error)
}

var (
	_ promotion.Repository        = (*PromotionCache)(nil)
	_ promotion.RedemptionCounter = (*PromotionCache)(nil)
)

// PromotionCache caches the full promotion list in Redis. Single lookups go
// straight to the store. Any Redis failure falls back to the store.
//
// A cached list may lag the store by at most the TTL, except for redemption
// counts which invalidate the list when incremented through the cache.
type PromotionCache struct {
	store  Store
	client Client
	key    string
	ttl    time.Duration
}

// NewPromotionCache wraps store. A nil client disables caching.
func NewPromotionCache(store Store, client Client, prefix string, ttl time.Duration) *PromotionCache {
	if prefix == "" {
		prefix = "candle"
	}
	return &PromotionCache{
		store:  store,
		client: client,
		key:    prefix + ":promotions:all",
		ttl:    ttl,
	}
}

// GetByID delegates to the store.
func (c *PromotionCache) GetByID(ctx context.Context, id string) (*promotion.Promotion, error) {
	return c.store.GetByID(ctx, id)
}

// GetByCode delegates to the store.
func (c *PromotionCache) GetByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return c.store.GetByCode(ctx, code)
}

// List returns every promotion, from Redis when cached.
func (c *PromotionCache) List(ctx context.Context) ([]promotion.Promotion, error) {
	records, ok := c.cached(ctx)
	if !ok {
		var err error
		records, err = c.store.ListRecords(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "list promotions")
		}
		c.fill(ctx, records)
	}

	out := make([]promotion.Promotion, 0, len(records))
	for _, rec := range records {
		p, err := promotion.FromRecord(rec)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// IncrementRedemptions delegates to the store and drops the cached list.
func (c *PromotionCache) IncrementRedemptions(ctx context.Context, id string) error {
	err := c.store.IncrementRedemptions(ctx, id)
	if err == nil || errors.Is(err, promotion.ErrRedemptionCapReached) {
		c.Invalidate(ctx)
	}
	return err
}

// Invalidate drops the cached list.
func (c *PromotionCache) Invalidate(ctx context.Context) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, c.key).Err(); err != nil {
		zctx.From(ctx).Warn("Promotion cache invalidation failed", zap.Error(err))
	}
}

func (c *PromotionCache) cached(ctx context.Context) ([]promotion.Record, bool) {
	if c.client == nil {
		return nil, false
	}
	data, err := c.client.Get(ctx, c.key).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, false
	case err != nil:
		zctx.From(ctx).Warn("Promotion cache read failed", zap.Error(err))
		return nil, false
	}

	records, err := promotion.DecodeRecords(jx.DecodeBytes(data))
	if err != nil {
		zctx.From(ctx).Warn("Promotion cache entry corrupt", zap.Error(err))
		return nil, false
	}
	return records, true
}

func (c *PromotionCache) fill(ctx context.Context, records []promotion.Record) {
	if c.client == nil {
		return
	}
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	promotion.EncodeRecords(e, records)

	if err := c.client.Set(ctx, c.key, e.Bytes(), c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Promotion cache write failed", zap.Error(err))
	}
}
