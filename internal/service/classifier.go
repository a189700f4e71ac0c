package service

import (
	"context"
	"errors"
	"net"

	"wallet-service/internal/core/domain"

	"github.com/jackc/pgx/v5/pgconn"
)

// FailureClass tells the retry executor what to do with a failed attempt.
type FailureClass int

const (
	// FailureFatal is surfaced as an internal error; the request budget or the
	// process is in a state retrying cannot fix.
	FailureFatal FailureClass = iota
	// FailureTransient may succeed if the same operation is attempted again.
	FailureTransient
	// FailurePermanent is a business outcome; retrying would give the same answer.
	FailurePermanent
)

func (c FailureClass) String() string {
	switch c {
	case FailureTransient:
		return "transient"
	case FailurePermanent:
		return "permanent"
	default:
		return "fatal"
	}
}

// PostgreSQL SQLSTATEs that mean "try again".
var transientPgCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available
}

// Classify maps a store or executor error onto a FailureClass.
func Classify(err error) FailureClass {
	if err == nil {
		return FailureFatal
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return FailureFatal
	}

	var insufficient *domain.InsufficientFundsError
	if errors.As(err, &insufficient) ||
		errors.Is(err, domain.ErrWalletNotFound) ||
		errors.Is(err, domain.ErrBalanceLimitExceeded) ||
		errors.Is(err, domain.ErrValidation) {
		return FailurePermanent
	}

	if errors.Is(err, domain.ErrConcurrencyConflict) {
		return FailureTransient
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if _, ok := transientPgCodes[pgErr.Code]; ok {
			return FailureTransient
		}
		// Class 08: connection exception.
		if len(pgErr.Code) == 5 && pgErr.Code[:2] == "08" {
			return FailureTransient
		}
		return FailureFatal
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return FailureTransient
	}
	if pgconn.SafeToRetry(err) {
		return FailureTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return FailureTransient
	}

	return FailureFatal
}
