package ports

import (
	"context"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=repositories.go -destination=mocks/mock_repositories.go -package=mocks

// BalanceStore is the durable keyed storage behind every wallet.
// ConditionalAdjust is the only way a balance changes, and it is atomic per wallet:
// the guard check and the write commit together or not at all.
type BalanceStore interface {
	// GetBalance returns domain.ErrWalletNotFound when the wallet does not exist.
	GetBalance(ctx context.Context, id uuid.UUID) (*domain.Wallet, error)
	// CreateWithBalance creates the wallet holding its first deposit, at version 1.
	// It returns domain.ErrConcurrencyConflict when the wallet already exists, so the
	// caller retries with ConditionalAdjust.
	CreateWithBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*domain.Wallet, error)
	// ConditionalAdjust applies balance += delta if guard holds at commit time.
	// Failures: domain.ErrWalletNotFound, *domain.InsufficientFundsError,
	// domain.ErrBalanceLimitExceeded, domain.ErrConcurrencyConflict (version mismatch
	// or lock timeout).
	ConditionalAdjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error)
	// Strategy reports the concurrency strategy the store applies.
	Strategy() domain.Strategy
}

// BalanceCache is the fast key-value front for balance reads.
// Generation tokens let a reader populate only if no invalidation happened since it
// started loading from the store.
type BalanceCache interface {
	// Get returns nil, nil on a cache miss.
	Get(ctx context.Context, id uuid.UUID) (*decimal.Decimal, error)
	Generation(ctx context.Context, id uuid.UUID) (int64, error)
	// SetIfGeneration stores balance only if the generation still equals gen.
	SetIfGeneration(ctx context.Context, id uuid.UUID, balance decimal.Decimal, gen int64, ttl time.Duration) (bool, error)
	// Invalidate drops the entry and bumps the generation in one step.
	Invalidate(ctx context.Context, id uuid.UUID) error
}
