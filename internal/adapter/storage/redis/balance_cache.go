package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// setIfGeneration writes the balance only while the generation key still holds the
// value the reader observed before loading from the store.
// KEYS[1] balance key, KEYS[2] generation key
// ARGV[1] balance, ARGV[2] expected generation, ARGV[3] ttl in ms (0 = no expiry)
var setIfGeneration = goredis.NewScript(`
local gen = redis.call('GET', KEYS[2])
if not gen then gen = '0' end
if gen ~= ARGV[2] then
	return 0
end
local ttl = tonumber(ARGV[3])
if ttl > 0 then
	redis.call('SET', KEYS[1], ARGV[1], 'PX', ttl)
else
	redis.call('SET', KEYS[1], ARGV[1])
end
return 1
`)

// BalanceCache implements ports.BalanceCache using Redis.
type BalanceCache struct {
	client    *goredis.Client
	prefix    string
	genPrefix string
}

// NewBalanceCache creates a new Redis-backed balance cache.
func NewBalanceCache(client *goredis.Client) *BalanceCache {
	return &BalanceCache{
		client:    client,
		prefix:    "wallet:balance:",
		genPrefix: "wallet:balance-gen:",
	}
}

func (c *BalanceCache) key(id uuid.UUID) string    { return c.prefix + id.String() }
func (c *BalanceCache) genKey(id uuid.UUID) string { return c.genPrefix + id.String() }

// Get retrieves a cached balance. Returns nil, nil on a miss.
func (c *BalanceCache) Get(ctx context.Context, id uuid.UUID) (*decimal.Decimal, error) {
	val, err := c.client.Get(ctx, c.key(id)).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis balance get: %w", err)
	}
	balance, err := decimal.NewFromString(val)
	if err != nil {
		return nil, fmt.Errorf("redis balance decode %q: %w", val, err)
	}
	return &balance, nil
}

// Generation returns the invalidation counter for a wallet, 0 if never invalidated.
func (c *BalanceCache) Generation(ctx context.Context, id uuid.UUID) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey(id)).Int64()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("redis balance generation: %w", err)
	}
	return gen, nil
}

// SetIfGeneration caches balance unless the wallet was invalidated after gen was read.
func (c *BalanceCache) SetIfGeneration(ctx context.Context, id uuid.UUID, balance decimal.Decimal, gen int64, ttl time.Duration) (bool, error) {
	stored, err := setIfGeneration.Run(ctx, c.client,
		[]string{c.key(id), c.genKey(id)},
		balance.String(), gen, ttl.Milliseconds(),
	).Int64()
	if err != nil {
		return false, fmt.Errorf("redis balance set: %w", err)
	}
	return stored == 1, nil
}

// Invalidate deletes the cached balance and bumps the generation in one MULTI/EXEC.
func (c *BalanceCache) Invalidate(ctx context.Context, id uuid.UUID) error {
	_, err := c.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, c.key(id))
		pipe.Incr(ctx, c.genKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis balance invalidate: %w", err)
	}
	return nil
}
