// Package memory provides an in-process ports.BalanceStore. It backs the service when
// no database is configured and serves as the reference store in concurrency tests.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// record holds one wallet. mu guards wallet; lock is the exclusive
// read-check-write lock used by the pessimistic strategy.
type record struct {
	mu     sync.Mutex
	lock   chan struct{}
	wallet domain.Wallet
}

func (r *record) snapshot() domain.Wallet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.wallet
}

// WalletStore implements ports.BalanceStore in memory. Each wallet has its own locks;
// nothing is shared across identifiers except the record index.
type WalletStore struct {
	records     sync.Map // uuid.UUID -> *record
	strategy    domain.Strategy
	lockTimeout time.Duration
	now         func() time.Time
}

// NewWalletStore creates an empty in-memory store.
func NewWalletStore(strategy domain.Strategy, lockTimeout time.Duration) *WalletStore {
	return &WalletStore{
		strategy:    strategy,
		lockTimeout: lockTimeout,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Strategy reports the concurrency strategy applied by ConditionalAdjust.
func (s *WalletStore) Strategy() domain.Strategy {
	return s.strategy
}

func (s *WalletStore) load(id uuid.UUID) (*record, bool) {
	v, ok := s.records.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*record), true
}

// GetBalance returns a copy of the wallet.
func (s *WalletStore) GetBalance(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.load(id)
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	w := rec.snapshot()
	return &w, nil
}

// CreateWithBalance stores a new wallet holding balance. An existing wallet is left
// untouched and reported as ErrConcurrencyConflict.
func (s *WalletStore) CreateWithBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if balance.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("create wallet %s: %w", id, domain.ErrBalanceLimitExceeded)
	}
	if _, ok := s.records.Load(id); ok {
		return nil, fmt.Errorf("create wallet %s: %w", id, domain.ErrConcurrencyConflict)
	}
	now := s.now()
	rec := &record{
		lock: make(chan struct{}, 1),
		wallet: domain.Wallet{
			ID:        id,
			Balance:   balance,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if _, loaded := s.records.LoadOrStore(id, rec); loaded {
		return nil, fmt.Errorf("create wallet %s: %w", id, domain.ErrConcurrencyConflict)
	}
	w := rec.wallet
	return &w, nil
}

// ConditionalAdjust applies balance += delta if guard holds.
func (s *WalletStore) ConditionalAdjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := s.load(id)
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	if s.strategy == domain.StrategyPessimistic {
		return s.adjustLocked(ctx, rec, delta, guard)
	}
	return s.adjustVersioned(rec, delta, guard)
}

// adjustVersioned evaluates the guard on a snapshot and commits only if the version
// is unchanged when the record mutex is retaken.
func (s *WalletStore) adjustVersioned(rec *record, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	current := rec.snapshot()
	if !guard.Allows(current.Balance, delta) {
		return nil, &domain.InsufficientFundsError{Current: current.Balance, Requested: delta.Abs()}
	}
	next := current.Balance.Add(delta)
	if next.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("wallet %s: %w", current.ID, domain.ErrBalanceLimitExceeded)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if rec.wallet.Version != current.Version {
		return nil, fmt.Errorf("wallet %s at version %d: %w", current.ID, current.Version, domain.ErrConcurrencyConflict)
	}
	rec.wallet.Balance = next
	rec.wallet.Version++
	rec.wallet.UpdatedAt = s.now()
	w := rec.wallet
	return &w, nil
}

// adjustLocked holds the record's exclusive lock for read-check-write. Waiting longer
// than lockTimeout gives up with ErrConcurrencyConflict.
func (s *WalletStore) adjustLocked(ctx context.Context, rec *record, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()

	select {
	case rec.lock <- struct{}{}:
	case <-timer.C:
		return nil, fmt.Errorf("lock wallet %s after %s: %w", rec.wallet.ID, s.lockTimeout, domain.ErrConcurrencyConflict)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	defer func() { <-rec.lock }()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	if !guard.Allows(rec.wallet.Balance, delta) {
		return nil, &domain.InsufficientFundsError{Current: rec.wallet.Balance, Requested: delta.Abs()}
	}
	next := rec.wallet.Balance.Add(delta)
	if next.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("wallet %s: %w", rec.wallet.ID, domain.ErrBalanceLimitExceeded)
	}
	rec.wallet.Balance = next
	rec.wallet.Version++
	rec.wallet.UpdatedAt = s.now()
	w := rec.wallet
	return &w, nil
}
