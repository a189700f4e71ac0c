package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrorKind is the discriminant carried by every failure the service reports.
type ErrorKind string

const (
	KindValidation           ErrorKind = "VALIDATION"
	KindWalletNotFound       ErrorKind = "WALLET_NOT_FOUND"
	KindInsufficientFunds    ErrorKind = "INSUFFICIENT_FUNDS"
	KindConcurrencyConflict  ErrorKind = "CONCURRENCY_CONFLICT"
	KindConcurrencyExhausted ErrorKind = "CONCURRENCY_EXHAUSTED"
	KindTimeout              ErrorKind = "TIMEOUT"
	KindInternal             ErrorKind = "INTERNAL"
)

// Signals raised by balance stores and the retry executor.
var (
	ErrWalletNotFound       = errors.New("wallet not found")
	ErrConcurrencyConflict  = errors.New("concurrent modification of wallet")
	ErrConcurrencyExhausted = errors.New("retry budget exhausted on concurrent modification")
	ErrValidation           = errors.New("invalid request")
	ErrBalanceLimitExceeded = errors.New("balance limit exceeded")
)

// InsufficientFundsError reports a failed non-negative guard. Current is the balance the
// guard was evaluated against inside the atomic step, not an earlier read.
type InsufficientFundsError struct {
	Current   decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: current balance %s, requested %s",
		e.Current.StringFixed(BalanceScale), e.Requested.StringFixed(BalanceScale))
}
