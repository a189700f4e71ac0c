package apperror

import (
	"fmt"
	"net/http"

	"wallet-service/internal/core/domain"
)

// AppError is a structured error that maps to HTTP responses.
type AppError struct {
	Code       string            `json:"error_code"`
	Message    string            `json:"message"`
	Details    map[string]string `json:"details,omitempty"`
	HTTPStatus int               `json:"-"`
	Err        error             `json:"-"` // Wrapped internal error (not exposed to client)
	kind       domain.ErrorKind
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Kind returns the failure discriminant. Errors built with New or Wrap are Internal.
func (e *AppError) Kind() domain.ErrorKind {
	if e.kind == "" {
		return domain.KindInternal
	}
	return e.kind
}

// New creates a new AppError.
func New(code string, message string, httpStatus int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap wraps an internal error with an AppError.
func Wrap(code string, message string, httpStatus int, err error) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
		Err:        err,
	}
}

func (e *AppError) withKind(kind domain.ErrorKind) *AppError {
	e.kind = kind
	return e
}

// ---- Validation (VAL) ----

// Validation returns a VAL_001 error for a malformed request.
func Validation(message string) *AppError {
	return Wrap("VAL_001", message, http.StatusBadRequest, domain.ErrValidation).
		withKind(domain.KindValidation)
}

func ErrPayloadTooLarge() *AppError {
	return Wrap("VAL_002", "Request body too large", http.StatusRequestEntityTooLarge, domain.ErrValidation).
		withKind(domain.KindValidation)
}

// ---- Wallet Business Logic (WAL) ----

func ErrWalletNotFound(walletID string) *AppError {
	return Wrap("WAL_001", fmt.Sprintf("Wallet not found: %s", walletID), http.StatusNotFound, domain.ErrWalletNotFound).
		withKind(domain.KindWalletNotFound)
}

// ErrInsufficientFunds reports both figures in the message and in Details.
func ErrInsufficientFunds(err *domain.InsufficientFundsError) *AppError {
	appErr := Wrap("WAL_002",
		fmt.Sprintf("Insufficient funds. Current balance: %s, requested: %s",
			err.Current.StringFixed(domain.BalanceScale), err.Requested.StringFixed(domain.BalanceScale)),
		http.StatusBadRequest, err).
		withKind(domain.KindInsufficientFunds)
	appErr.Details = map[string]string{
		"current":   err.Current.StringFixed(domain.BalanceScale),
		"requested": err.Requested.StringFixed(domain.BalanceScale),
	}
	return appErr
}

// ErrBalanceLimitExceeded reports a deposit that would take the balance past domain.MaxBalance.
func ErrBalanceLimitExceeded(walletID string) *AppError {
	return Wrap("WAL_003",
		fmt.Sprintf("Deposit would exceed the maximum wallet balance of %s for wallet %s",
			domain.MaxBalance.StringFixed(domain.BalanceScale), walletID),
		http.StatusBadRequest, domain.ErrBalanceLimitExceeded).
		withKind(domain.KindValidation)
}

// ---- Concurrency (CON) ----

func ErrConcurrencyConflict(err error) *AppError {
	return Wrap("CON_001", "Concurrent operation detected", http.StatusConflict, err).
		withKind(domain.KindConcurrencyConflict)
}

func ErrConcurrencyExhausted(err error) *AppError {
	return Wrap("CON_002", "Wallet is busy, retry budget exhausted", http.StatusConflict, err).
		withKind(domain.KindConcurrencyExhausted)
}

// ---- Rate Limiting (RATE) ----

func ErrRateLimitExceeded() *AppError {
	return New("RATE_001", "Rate limit exceeded", http.StatusTooManyRequests)
}

// ---- System & Infrastructure (SYS) ----

// InternalError wraps an internal error as a SYS_001 error.
func InternalError(err error) *AppError {
	return Wrap("SYS_001", "Internal server error", http.StatusInternalServerError, err).
		withKind(domain.KindInternal)
}

func ErrTimeout(err error) *AppError {
	return Wrap("SYS_002", "Operation timed out", http.StatusGatewayTimeout, err).
		withKind(domain.KindTimeout)
}
