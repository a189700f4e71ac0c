package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"wallet-service/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// NoopBalanceCache is a ports.BalanceCache that never holds anything.
type NoopBalanceCache struct{}

func (NoopBalanceCache) Get(context.Context, uuid.UUID) (*decimal.Decimal, error) { return nil, nil }
func (NoopBalanceCache) Generation(context.Context, uuid.UUID) (int64, error)     { return 0, nil }
func (NoopBalanceCache) SetIfGeneration(context.Context, uuid.UUID, decimal.Decimal, int64, time.Duration) (bool, error) {
	return false, nil
}
func (NoopBalanceCache) Invalidate(context.Context, uuid.UUID) error { return nil }

// CacheAside fronts balance reads with a cache and drops entries after mutations.
// The store stays the source of truth: cache failures degrade to store reads.
//
// A wallet whose invalidation failed is marked pending. Reads of a pending wallet
// retry the invalidation and bypass the cache until one succeeds, so this instance
// never serves the entry it failed to drop.
type CacheAside struct {
	store ports.BalanceStore
	cache ports.BalanceCache
	ttl   time.Duration
	log   zerolog.Logger

	pending sync.Map // uuid.UUID -> uint64 mark
	marks   atomic.Uint64
}

// NewCacheAside creates a CacheAside. A nil cache disables caching.
func NewCacheAside(store ports.BalanceStore, cache ports.BalanceCache, ttl time.Duration, log zerolog.Logger) *CacheAside {
	if cache == nil {
		cache = NoopBalanceCache{}
	}
	return &CacheAside{store: store, cache: cache, ttl: ttl, log: log}
}

// GetBalance returns the cached balance, loading and populating it on a miss.
// The populate is skipped if the wallet was invalidated while the store read ran.
func (c *CacheAside) GetBalance(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	if mark, ok := c.pending.Load(id); ok {
		if err := c.cache.Invalidate(ctx, id); err != nil {
			c.log.Warn().Err(err).Str("wallet_id", id.String()).Msg("pending balance invalidation failed, reading store")
			return c.load(ctx, id)
		}
		c.pending.CompareAndDelete(id, mark)
	}

	cached, err := c.cache.Get(ctx, id)
	if err != nil {
		c.log.Warn().Err(err).Str("wallet_id", id.String()).Msg("balance cache read failed, reading store")
		return c.load(ctx, id)
	}
	if cached != nil {
		return *cached, nil
	}

	gen, err := c.cache.Generation(ctx, id)
	if err != nil {
		c.log.Warn().Err(err).Str("wallet_id", id.String()).Msg("balance cache generation read failed, reading store")
		return c.load(ctx, id)
	}

	balance, err := c.load(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}

	stored, err := c.cache.SetIfGeneration(ctx, id, balance, gen, c.ttl)
	if err != nil {
		c.log.Warn().Err(err).Str("wallet_id", id.String()).Msg("balance cache populate failed")
	} else if !stored {
		c.log.Debug().Str("wallet_id", id.String()).Int64("generation", gen).Msg("skipped stale balance cache populate")
	}
	return balance, nil
}

// Invalidate removes the cached balance so the next read goes to the store.
// On failure the wallet stays pending until a later invalidation succeeds.
func (c *CacheAside) Invalidate(ctx context.Context, id uuid.UUID) error {
	mark, wasPending := c.pending.Load(id)
	if err := c.cache.Invalidate(ctx, id); err != nil {
		c.pending.Store(id, c.marks.Add(1))
		return err
	}
	if wasPending {
		// A failure recorded meanwhile has a new mark and survives.
		c.pending.CompareAndDelete(id, mark)
	}
	return nil
}

// Pending reports whether the wallet has an invalidation that has not yet succeeded.
func (c *CacheAside) Pending(id uuid.UUID) bool {
	_, ok := c.pending.Load(id)
	return ok
}

func (c *CacheAside) load(ctx context.Context, id uuid.UUID) (decimal.Decimal, error) {
	w, err := c.store.GetBalance(ctx, id)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return w.Balance, nil
}
