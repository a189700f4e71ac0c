package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func walletColumns() []string {
	return []string{"id", "balance", "version", "created_at", "updated_at"}
}

func walletRow(id uuid.UUID, balance string, version int64) *pgxmock.Rows {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return pgxmock.NewRows(walletColumns()).AddRow(id, balance, version, now, now)
}

func newMockStore(t *testing.T, strategy domain.Strategy) (*WalletStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewWalletStore(mock, strategy, 250*time.Millisecond), mock
}

func TestWalletStore_Strategy(t *testing.T) {
	store, _ := newMockStore(t, domain.StrategyPessimistic)
	assert.Equal(t, domain.StrategyPessimistic, store.Strategy())
}

func TestWalletStore_GetBalance(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "125.5000", 3))

	w, err := store.GetBalance(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, id, w.ID)
	assert.True(t, decimal.RequireFromString("125.5").Equal(w.Balance))
	assert.Equal(t, int64(3), w.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_GetBalance_NotFound(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	w, err := store.GetBalance(context.Background(), id)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_CreateWithBalance(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO wallets .+ ON CONFLICT \\(id\\) DO NOTHING\\s+RETURNING").
		WithArgs(id, "25.5").
		WillReturnRows(walletRow(id, "25.5000", 1))

	w, err := store.CreateWithBalance(context.Background(), id, decimal.RequireFromString("25.5"))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("25.5").Equal(w.Balance))
	assert.Equal(t, int64(1), w.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_CreateWithBalance_AlreadyExists(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs(id, "10").
		WillReturnError(pgx.ErrNoRows)

	w, err := store.CreateWithBalance(context.Background(), id, decimal.NewFromInt(10))
	assert.Nil(t, w)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_CreateWithBalance_NumericOverflow(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()
	overflow := &pgconn.PgError{Code: pgNumericOutOfRange, Message: "numeric field overflow"}

	mock.ExpectQuery("INSERT INTO wallets").
		WithArgs(id, "5").
		WillReturnError(overflow)

	_, err := store.CreateWithBalance(context.Background(), id, decimal.NewFromInt(5))
	assert.ErrorIs(t, err, domain.ErrBalanceLimitExceeded)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, pgNumericOutOfRange, pgErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_CreateWithBalance_OverLimitSkipsInsert(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)

	_, err := store.CreateWithBalance(context.Background(), uuid.New(), domain.MaxBalance.Add(decimal.NewFromInt(1)))
	assert.ErrorIs(t, err, domain.ErrBalanceLimitExceeded)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_OptimisticDeposit(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "100.0000", 0))
	mock.ExpectQuery("UPDATE wallets .+ WHERE id = \\$2 AND version = \\$3").
		WithArgs("150", id, int64(0)).
		WillReturnRows(walletRow(id, "150.0000", 1))

	w, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(50), domain.GuardNone)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(150).Equal(w.Balance))
	assert.Equal(t, int64(1), w.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_DepositOverBalanceLimit(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "9999999999999999.0000", 6))

	w, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(1), domain.GuardNone)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, domain.ErrBalanceLimitExceeded)
	// No UPDATE was expected, so the limit check never reached the write.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_PessimisticNumericOverflow(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(id).
		WillReturnRows(walletRow(id, "100.0000", 2))
	mock.ExpectQuery("UPDATE wallets").
		WithArgs("150", id, int64(2)).
		WillReturnError(&pgconn.PgError{Code: pgNumericOutOfRange, Message: "numeric field overflow"})
	mock.ExpectRollback()

	_, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(50), domain.GuardNone)
	assert.ErrorIs(t, err, domain.ErrBalanceLimitExceeded)
	assert.NotErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_OptimisticVersionConflict(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "100.0000", 4))
	mock.ExpectQuery("UPDATE wallets").
		WithArgs("70", id, int64(4)).
		WillReturnError(pgx.ErrNoRows)

	w, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-30), domain.GuardNonNegative)
	assert.Nil(t, w)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_OptimisticInsufficientFunds(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "20.0000", 2))

	w, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-30), domain.GuardNonNegative)
	assert.Nil(t, w)

	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, decimal.NewFromInt(20).Equal(insufficient.Current))
	assert.True(t, decimal.NewFromInt(30).Equal(insufficient.Requested))
	// No UPDATE was expected, so the guard failure never reached the write.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_OptimisticNotFound(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-1), domain.GuardNonNegative)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
}

func TestWalletStore_PessimisticWithdraw(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = '250ms'").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id .+ FOR UPDATE").
		WithArgs(id).
		WillReturnRows(walletRow(id, "100.0000", 7))
	mock.ExpectQuery("UPDATE wallets").
		WithArgs("70", id, int64(7)).
		WillReturnRows(walletRow(id, "70.0000", 8))
	mock.ExpectCommit()

	w, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-30), domain.GuardNonNegative)
	require.NoError(t, err)
	assert.True(t, decimal.NewFromInt(70).Equal(w.Balance))
	assert.Equal(t, int64(8), w.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_PessimisticInsufficientFundsRollsBack(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(id).
		WillReturnRows(walletRow(id, "10.0000", 1))
	mock.ExpectRollback()

	_, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-30), domain.GuardNonNegative)

	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	assert.True(t, decimal.NewFromInt(10).Equal(insufficient.Current))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_PessimisticLockTimeout(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)
	id := uuid.New()
	lockErr := &pgconn.PgError{Code: pgLockNotAvailable, Message: "canceling statement due to lock timeout"}

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(id).
		WillReturnError(lockErr)
	mock.ExpectRollback()

	_, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(5), domain.GuardNone)
	assert.ErrorIs(t, err, domain.ErrConcurrencyConflict)

	var pgErr *pgconn.PgError
	require.ErrorAs(t, err, &pgErr)
	assert.Equal(t, pgLockNotAvailable, pgErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_PessimisticNotFound(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout").
		WillReturnResult(pgxmock.NewResult("SET", 0))
	mock.ExpectQuery("SELECT .+ FOR UPDATE").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	_, err := store.ConditionalAdjust(context.Background(), id, decimal.NewFromInt(-5), domain.GuardNonNegative)
	assert.ErrorIs(t, err, domain.ErrWalletNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWalletStore_PessimisticBeginError(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyPessimistic)

	mock.ExpectBegin().WillReturnError(errors.New("too many connections"))

	_, err := store.ConditionalAdjust(context.Background(), uuid.New(), decimal.NewFromInt(5), domain.GuardNone)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestScanWallet_BadBalance(t *testing.T) {
	store, mock := newMockStore(t, domain.StrategyOptimistic)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM wallets WHERE id").
		WithArgs(id).
		WillReturnRows(walletRow(id, "not-a-number", 0))

	_, err := store.GetBalance(context.Background(), id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse balance")
}
