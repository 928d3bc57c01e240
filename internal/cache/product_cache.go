package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/contagem-app/contagem/internal/model"
)

// DefaultProductTTL is used when a ProductCache is built with a zero TTL.
const DefaultProductTTL = 10 * time.Minute

// ProductCache caches catalog lookups by scanned code. Entries live under a
// per-catalog generation number; invalidation bumps the generation so every
// older entry becomes unreachable and expires on its own.
type ProductCache struct {
	redis *RedisClient
	ttl   time.Duration
}

// NewProductCache creates a ProductCache.
func NewProductCache(redis *RedisClient, ttl time.Duration) *ProductCache {
	if ttl <= 0 {
		ttl = DefaultProductTTL
	}
	return &ProductCache{redis: redis, ttl: ttl}
}

func generationKey(ownerID int64) string {
	return fmt.Sprintf("catalog:%d:gen", ownerID)
}

func productKey(ownerID, generation int64, code string) string {
	return fmt.Sprintf("catalog:%d:g%d:code:%s", ownerID, generation, code)
}

func (c *ProductCache) generation(ctx context.Context, ownerID int64) (int64, error) {
	v, err := c.redis.Get(ctx, generationKey(ownerID))
	if errors.Is(err, ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// GetProduct returns the cached product for a code, or nil on a miss, along
// with the catalog generation it looked under. Pass that generation to
// SetProduct so a lookup that raced an invalidation is cached under the old,
// unreachable generation.
func (c *ProductCache) GetProduct(ctx context.Context, ownerID int64, code string) (*model.Product, int64, error) {
	gen, err := c.generation(ctx, ownerID)
	if err != nil {
		return nil, 0, fmt.Errorf("reading catalog generation: %w", err)
	}

	v, err := c.redis.Get(ctx, productKey(ownerID, gen, code))
	if errors.Is(err, ErrMiss) {
		return nil, gen, nil
	}
	if err != nil {
		return nil, gen, fmt.Errorf("reading cached product: %w", err)
	}

	var p model.Product
	if err := json.Unmarshal([]byte(v), &p); err != nil {
		return nil, gen, fmt.Errorf("decoding cached product: %w", err)
	}
	p.TenantID = ownerID
	return &p, gen, nil
}

// SetProduct caches the product a code resolved to under generation gen.
func (c *ProductCache) SetProduct(ctx context.Context, ownerID, gen int64, code string, p *model.Product) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("encoding product: %w", err)
	}
	return c.redis.Set(ctx, productKey(ownerID, gen, code), string(data), c.ttl)
}

// Invalidate drops every cached lookup of a catalog.
func (c *ProductCache) Invalidate(ctx context.Context, ownerID int64) error {
	if _, err := c.redis.Incr(ctx, generationKey(ownerID)); err != nil {
		return fmt.Errorf("bumping catalog generation: %w", err)
	}
	return nil
}
