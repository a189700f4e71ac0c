package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"
)

const (
	// pgLockNotAvailable is raised when lock_timeout expires waiting for a row lock.
	pgLockNotAvailable = "55P03"
	// pgNumericOutOfRange is raised when a balance overflows NUMERIC(20, 4).
	pgNumericOutOfRange = "22003"
)

const (
	selectWallet = `SELECT id, balance::text, version, created_at, updated_at
		FROM wallets WHERE id = $1`

	selectWalletForUpdate = `SELECT id, balance::text, version, created_at, updated_at
		FROM wallets WHERE id = $1 FOR UPDATE`

	insertWallet = `INSERT INTO wallets (id, balance, version, created_at, updated_at)
		VALUES ($1, $2::numeric, 1, NOW(), NOW())
		ON CONFLICT (id) DO NOTHING
		RETURNING id, balance::text, version, created_at, updated_at`

	updateWalletIfVersion = `UPDATE wallets
		SET balance = $1::numeric, version = version + 1, updated_at = NOW()
		WHERE id = $2 AND version = $3
		RETURNING id, balance::text, version, created_at, updated_at`
)

// WalletStore implements ports.BalanceStore on PostgreSQL with either
// version-checked writes or row locks, depending on strategy.
type WalletStore struct {
	pool        Pool
	strategy    domain.Strategy
	lockTimeout time.Duration
}

// NewWalletStore creates a WalletStore. lockTimeout bounds the wait for a row lock
// under the pessimistic strategy.
func NewWalletStore(pool Pool, strategy domain.Strategy, lockTimeout time.Duration) *WalletStore {
	return &WalletStore{pool: pool, strategy: strategy, lockTimeout: lockTimeout}
}

// Strategy reports the concurrency strategy applied by ConditionalAdjust.
func (s *WalletStore) Strategy() domain.Strategy {
	return s.strategy
}

// GetBalance fetches a wallet without locking.
func (s *WalletStore) GetBalance(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	w, err := scanWallet(s.pool.QueryRow(ctx, selectWallet, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		return nil, fmt.Errorf("get wallet %s: %w", id, err)
	}
	return w, nil
}

// CreateWithBalance inserts a wallet holding its first deposit. A row that already
// exists is left untouched and reported as ErrConcurrencyConflict.
func (s *WalletStore) CreateWithBalance(ctx context.Context, id uuid.UUID, balance decimal.Decimal) (*domain.Wallet, error) {
	if balance.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("create wallet %s: %w", id, domain.ErrBalanceLimitExceeded)
	}
	w, err := scanWallet(s.pool.QueryRow(ctx, insertWallet, id, balance.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("create wallet %s: %w", id, domain.ErrConcurrencyConflict)
		}
		return nil, writeError("create", id, err)
	}
	return w, nil
}

// ConditionalAdjust applies balance += delta if guard holds.
func (s *WalletStore) ConditionalAdjust(ctx context.Context, id uuid.UUID, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	if s.strategy == domain.StrategyPessimistic {
		return s.adjustLocked(ctx, id, delta, guard)
	}
	return s.adjustVersioned(ctx, id, delta, guard)
}

// adjustVersioned reads the current version and writes only if no one else has
// written since. A lost race returns ErrConcurrencyConflict for the caller to retry.
func (s *WalletStore) adjustVersioned(ctx context.Context, id uuid.UUID, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	current, err := s.GetBalance(ctx, id)
	if err != nil {
		return nil, err
	}
	if !guard.Allows(current.Balance, delta) {
		return nil, &domain.InsufficientFundsError{Current: current.Balance, Requested: delta.Abs()}
	}

	next := current.Balance.Add(delta)
	if next.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("wallet %s: %w", id, domain.ErrBalanceLimitExceeded)
	}
	updated, err := scanWallet(s.pool.QueryRow(ctx, updateWalletIfVersion, next.String(), id, current.Version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s at version %d: %w", id, current.Version, domain.ErrConcurrencyConflict)
		}
		return nil, writeError("update", id, err)
	}
	return updated, nil
}

// adjustLocked holds the row lock for the whole read-check-write.
func (s *WalletStore) adjustLocked(ctx context.Context, id uuid.UUID, delta decimal.Decimal, guard domain.Guard) (*domain.Wallet, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// SET does not accept bind parameters.
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())); err != nil {
		return nil, fmt.Errorf("set lock timeout: %w", err)
	}

	current, err := scanWallet(tx.QueryRow(ctx, selectWalletForUpdate, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrWalletNotFound
		}
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgLockNotAvailable {
			return nil, fmt.Errorf("lock wallet %s: %w: %w", id, domain.ErrConcurrencyConflict, err)
		}
		return nil, fmt.Errorf("lock wallet %s: %w", id, err)
	}
	if !guard.Allows(current.Balance, delta) {
		return nil, &domain.InsufficientFundsError{Current: current.Balance, Requested: delta.Abs()}
	}

	next := current.Balance.Add(delta)
	if next.GreaterThan(domain.MaxBalance) {
		return nil, fmt.Errorf("wallet %s: %w", id, domain.ErrBalanceLimitExceeded)
	}
	updated, err := scanWallet(tx.QueryRow(ctx, updateWalletIfVersion, next.String(), id, current.Version))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("wallet %s at version %d: %w", id, current.Version, domain.ErrConcurrencyConflict)
		}
		return nil, writeError("update", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit wallet %s: %w", id, err)
	}
	return updated, nil
}

// writeError wraps a failed write, tagging a column overflow as ErrBalanceLimitExceeded.
func writeError(op string, id uuid.UUID, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgNumericOutOfRange {
		return fmt.Errorf("%s wallet %s: %w: %w", op, id, domain.ErrBalanceLimitExceeded, err)
	}
	return fmt.Errorf("%s wallet %s: %w", op, id, err)
}

func scanWallet(row pgx.Row) (*domain.Wallet, error) {
	var (
		w       domain.Wallet
		balance string
	)
	if err := row.Scan(&w.ID, &balance, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("parse balance %q: %w", balance, err)
	}
	w.Balance = b
	return &w, nil
}
