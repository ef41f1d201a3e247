package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/marketplace/internal/core/domain"
)

const (
	stockKeyPrefix       = "stock:"
	idempotencyKeyPrefix = "idempotency:"
	idempotencyKeyTTL    = 24 * time.Hour
)

// reserveStockScript returns -1 for an unknown item, 0 when stock is short and 1 on success.
var reserveStockScript = redis.NewScript(`
local key = KEYS[1]
local quantity = tonumber(ARGV[1])

local current = redis.call('GET', key)
if not current then
	return -1
end

current = tonumber(current)
if current >= quantity then
	redis.call('DECRBY', key, quantity)
	return 1
end

return 0
`)

// releaseStockScript only increments existing keys so a release never resurrects a removed item.
var releaseStockScript = redis.NewScript(`
local key = KEYS[1]
if redis.call('EXISTS', key) == 0 then
	return -1
end
return redis.call('INCRBY', key, tonumber(ARGV[1]))
`)

// RedisAdapter is the Redis-backed InventoryLedger and IdempotencyStore.
type RedisAdapter struct {
	client *redis.Client
}

func NewRedisAdapter(client *redis.Client) *RedisAdapter {
	return &RedisAdapter{client: client}
}

func (r *RedisAdapter) Reserve(ctx context.Context, itemID string, amount int) error {
	result, err := reserveStockScript.Run(ctx, r.client, []string{stockKey(itemID)}, amount).Int()
	if err != nil {
		return redisErr("reserve stock", err)
	}

	switch result {
	case 1:
		return nil
	case -1:
		return domain.ErrNotFound
	default:
		return domain.ErrInsufficientStock
	}
}

func (r *RedisAdapter) Release(ctx context.Context, itemID string, amount int) error {
	result, err := releaseStockScript.Run(ctx, r.client, []string{stockKey(itemID)}, amount).Int()
	if err != nil {
		return redisErr("release stock", err)
	}
	if result < 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *RedisAdapter) Available(ctx context.Context, itemID string) (int, error) {
	stock, err := r.client.Get(ctx, stockKey(itemID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, redisErr("get stock", err)
	}
	return stock, nil
}

func (r *RedisAdapter) Seed(ctx context.Context, itemID string, quantity int) error {
	if err := r.client.Set(ctx, stockKey(itemID), quantity, 0).Err(); err != nil {
		return redisErr("seed stock", err)
	}
	return nil
}

func (r *RedisAdapter) Remove(ctx context.Context, itemID string) error {
	if err := r.client.Del(ctx, stockKey(itemID)).Err(); err != nil {
		return redisErr("remove stock", err)
	}
	return nil
}

func (r *RedisAdapter) SetIdempotency(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, idempotencyKeyTTL).Result()
	if err != nil {
		return false, redisErr("set idempotency", err)
	}

	return ok, nil
}

func (r *RedisAdapter) ClearIdempotency(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return redisErr("clear idempotency", err)
	}
	return nil
}

func stockKey(itemID string) string {
	return stockKeyPrefix + itemID
}

// redisErr classifies every client failure as transient.
func redisErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}
