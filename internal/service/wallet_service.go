package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	defaultTxTimeout  = 5 * time.Second
	invalidateTimeout = time.Second
)

// WalletServiceImpl implements ports.WalletService.
type WalletServiceImpl struct {
	store     ports.BalanceStore
	cache     *CacheAside
	retry     *RetryExecutor
	txTimeout time.Duration
	log       zerolog.Logger
}

// NewWalletService creates a new WalletServiceImpl. txTimeout bounds a whole request,
// retries and backoff included; zero means 5s.
func NewWalletService(
	store ports.BalanceStore,
	cache *CacheAside,
	retry *RetryExecutor,
	txTimeout time.Duration,
	log zerolog.Logger,
) *WalletServiceImpl {
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	return &WalletServiceImpl{
		store:     store,
		cache:     cache,
		retry:     retry,
		txTimeout: txTimeout,
		log:       log,
	}
}

// ProcessTransaction validates and applies one deposit or withdrawal.
func (s *WalletServiceImpl) ProcessTransaction(ctx context.Context, req ports.TransactionRequest) (*ports.BalanceResult, error) {
	id, err := parseWalletID(req.WalletID)
	if err != nil {
		return nil, err
	}
	if err := validateAmount(req.Amount); err != nil {
		return nil, err
	}
	if !req.OperationType.IsValid() {
		return nil, apperror.Validation("Operation type must be DEPOSIT or WITHDRAW")
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	var w *domain.Wallet
	switch req.OperationType {
	case domain.OperationDeposit:
		w, err = Retry(ctx, s.retry, func(ctx context.Context) (*domain.Wallet, error) {
			w, err := s.store.ConditionalAdjust(ctx, id, req.Amount, domain.GuardNone)
			if errors.Is(err, domain.ErrWalletNotFound) {
				// First deposit. Losing the insert race is a conflict, and the
				// next attempt adjusts the row the winner created.
				return s.store.CreateWithBalance(ctx, id, req.Amount)
			}
			return w, err
		})
	case domain.OperationWithdraw:
		w, err = Retry(ctx, s.retry, func(ctx context.Context) (*domain.Wallet, error) {
			return s.store.ConditionalAdjust(ctx, id, req.Amount.Neg(), domain.GuardNonNegative)
		})
	}
	if err != nil {
		return nil, s.mapError(err, id, req)
	}

	// The mutation is committed; a cache failure must not turn it into an error
	// the caller would retry.
	invCtx, invCancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer invCancel()
	if err := s.cache.Invalidate(invCtx, id); err != nil {
		s.log.Error().Err(err).Str("wallet_id", id.String()).Msg("balance cache invalidation failed after commit")
	}

	s.log.Info().
		Str("wallet_id", id.String()).
		Str("operation", string(req.OperationType)).
		Str("amount", req.Amount.String()).
		Int64("old_version", w.Version-1).
		Str("new_balance", w.Balance.StringFixed(domain.BalanceScale)).
		Msg("wallet operation applied")

	return &ports.BalanceResult{WalletID: w.ID, Balance: w.Balance}, nil
}

// GetBalance returns the current balance of an existing wallet.
func (s *WalletServiceImpl) GetBalance(ctx context.Context, walletID string) (*ports.BalanceResult, error) {
	id, err := parseWalletID(walletID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	balance, err := s.cache.GetBalance(ctx, id)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrWalletNotFound):
			return nil, apperror.ErrWalletNotFound(id.String())
		case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
			return nil, apperror.ErrTimeout(err)
		default:
			s.log.Error().Err(err).Str("wallet_id", id.String()).Msg("balance read failed")
			return nil, apperror.InternalError(err)
		}
	}
	return &ports.BalanceResult{WalletID: id, Balance: balance}, nil
}

func (s *WalletServiceImpl) mapError(err error, id uuid.UUID, req ports.TransactionRequest) error {
	var insufficient *domain.InsufficientFundsError
	switch {
	case errors.As(err, &insufficient):
		s.log.Warn().
			Str("wallet_id", id.String()).
			Str("current", insufficient.Current.StringFixed(domain.BalanceScale)).
			Str("requested", insufficient.Requested.StringFixed(domain.BalanceScale)).
			Msg("withdrawal rejected: insufficient funds")
		return apperror.ErrInsufficientFunds(insufficient)
	case errors.Is(err, domain.ErrWalletNotFound):
		return apperror.ErrWalletNotFound(id.String())
	case errors.Is(err, domain.ErrBalanceLimitExceeded):
		s.log.Warn().
			Str("wallet_id", id.String()).
			Str("amount", req.Amount.String()).
			Msg("deposit rejected: balance limit exceeded")
		return apperror.ErrBalanceLimitExceeded(id.String())
	case errors.Is(err, domain.ErrConcurrencyExhausted):
		var exhausted *ExhaustedError
		attempts := 0
		if errors.As(err, &exhausted) {
			attempts = exhausted.Attempts
		}
		s.log.Warn().
			Err(err).
			Str("wallet_id", id.String()).
			Str("operation", string(req.OperationType)).
			Int("attempts", attempts).
			Msg("wallet operation abandoned under contention")
		return apperror.ErrConcurrencyExhausted(err)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		s.log.Warn().
			Err(err).
			Str("wallet_id", id.String()).
			Str("operation", string(req.OperationType)).
			Msg("wallet operation timed out")
		return apperror.ErrTimeout(err)
	default:
		s.log.Error().
			Err(err).
			Str("wallet_id", id.String()).
			Str("operation", string(req.OperationType)).
			Str("amount", req.Amount.String()).
			Str("strategy", string(s.store.Strategy())).
			Msg("wallet operation failed")
		return apperror.InternalError(err)
	}
}

func parseWalletID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, apperror.Validation("Invalid UUID format")
	}
	return id, nil
}

// validateAmount checks digit counts before Truncate, which would rescale an
// exponent such as 1e-2000000 digit by digit.
func validateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperror.Validation("Amount must be a positive number")
	}
	if domain.IntegerDigits(amount) > domain.MaxIntegerDigits {
		return apperror.Validation(fmt.Sprintf("Amount must not exceed %d integer digits", domain.MaxIntegerDigits))
	}
	// Fewer significant digits than places past the fourth means a nonzero tail.
	if exp := int(amount.Exponent()); exp < -domain.BalanceScale && amount.NumDigits() <= -exp-domain.BalanceScale {
		return apperror.Validation("Amount must have at most 4 decimal places")
	}
	if !amount.Equal(amount.Truncate(domain.BalanceScale)) {
		return apperror.Validation("Amount must have at most 4 decimal places")
	}
	return nil
}
