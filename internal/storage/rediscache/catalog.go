// Package rediscache provides a read-through Redis cache in front of the
// product catalog.
package rediscache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/bazaar/internal/domain/product"
)

const (
	keyPrefix = "bazaar:product:"
	listKey   = "bazaar:products"
)

var _ product.Repository = (*Catalog)(nil)

// Catalog caches product lookups in Redis. Cache failures are logged and
// the lookup falls through to the wrapped repository.
type Catalog struct {
	next   product.Repository
	client redis.UniversalClient
	ttl    time.Duration
}

// NewCatalog wraps next with a cache whose entries live for ttl.
func NewCatalog(next product.Repository, client redis.UniversalClient, ttl time.Duration) *Catalog {
	return &Catalog{next: next, client: client, ttl: ttl}
}

// NewClient creates a Redis client for addr.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr})
}

func productKey(id string) string {
	return keyPrefix + id
}

func (c *Catalog) List(ctx context.Context) ([]product.Product, error) {
	var cached []product.Product
	if c.load(ctx, listKey, &cached) {
		return cached, nil
	}

	products, err := c.next.List(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, listKey, products)
	return products, nil
}

func (c *Catalog) GetByID(ctx context.Context, id string) (*product.Product, error) {
	var cached product.Product
	if c.load(ctx, productKey(id), &cached) {
		return &cached, nil
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	c.store(ctx, productKey(id), p)
	return p, nil
}

func (c *Catalog) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = productKey(id)
	}

	found := make(map[string]product.Product, len(ids))
	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		zctx.From(ctx).Warn("Product cache read failed", zap.Error(err))
	}
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var p product.Product
		if err := json.Unmarshal([]byte(s), &p); err == nil {
			found[p.ID] = p
		}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		fetched, err := c.next.GetByIDs(ctx, missing)
		if err != nil {
			return nil, err
		}
		pipe := c.client.Pipeline()
		for _, p := range fetched {
			found[p.ID] = p
			if data, err := json.Marshal(p); err == nil {
				pipe.Set(ctx, productKey(p.ID), data, c.ttl)
			}
		}
		if _, err := pipe.Exec(ctx); err != nil {
			zctx.From(ctx).Warn("Product cache write failed", zap.Error(err))
		}
	}

	out := make([]product.Product, 0, len(found))
	for _, id := range ids {
		if p, ok := found[id]; ok {
			out = append(out, p)
			delete(found, id)
		}
	}
	return out, nil
}

// Invalidate drops the cached entries for ids and the cached listing.
func (c *Catalog) Invalidate(ctx context.Context, ids ...string) error {
	keys := []string{listKey}
	for _, id := range ids {
		keys = append(keys, productKey(id))
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return errors.Wrap(err, "invalidate products")
	}
	return nil
}

func (c *Catalog) load(ctx context.Context, key string, v any) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zctx.From(ctx).Warn("Product cache read failed", zap.String("key", key), zap.Error(err))
		}
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		zctx.From(ctx).Warn("Product cache entry corrupt", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (c *Catalog) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Product cache write failed", zap.String("key", key), zap.Error(err))
	}
}
