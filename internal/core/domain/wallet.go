package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BalanceScale is the number of fractional digits a balance is stored with.
const BalanceScale = 4

// MaxIntegerDigits is the number of digits a balance may carry before the decimal point.
const MaxIntegerDigits = 16

// MaxBalance is the largest balance a wallet can hold.
var MaxBalance = decimal.New(1, MaxIntegerDigits).Sub(decimal.New(1, -BalanceScale))

// IntegerDigits counts the digits of d before the decimal point without rescaling it.
func IntegerDigits(d decimal.Decimal) int {
	if d.IsZero() {
		return 0
	}
	n := d.NumDigits() + int(d.Exponent())
	if n < 0 {
		return 0
	}
	return n
}

// Wallet is a per-identifier balance record. Balance and Version always change together.
type Wallet struct {
	ID        uuid.UUID       `json:"walletId"`
	Balance   decimal.Decimal `json:"balance"`
	Version   int64           `json:"-"`
	CreatedAt time.Time       `json:"-"`
	UpdatedAt time.Time       `json:"-"`
}

// OperationType is the kind of balance mutation requested.
type OperationType string

const (
	OperationDeposit  OperationType = "DEPOSIT"
	OperationWithdraw OperationType = "WITHDRAW"
)

// IsValid reports whether the operation type is one the service can route.
func (o OperationType) IsValid() bool {
	return o == OperationDeposit || o == OperationWithdraw
}

// Guard is the predicate a conditional adjustment must satisfy at commit time.
type Guard int

const (
	// GuardNone always holds (deposits).
	GuardNone Guard = iota
	// GuardNonNegative holds when balance + delta >= 0 (withdrawals).
	GuardNonNegative
)

// Allows reports whether applying delta to balance satisfies the guard.
func (g Guard) Allows(balance, delta decimal.Decimal) bool {
	switch g {
	case GuardNonNegative:
		return !balance.Add(delta).IsNegative()
	default:
		return true
	}
}

func (g Guard) String() string {
	if g == GuardNonNegative {
		return "non_negative"
	}
	return "none"
}

// Strategy selects how a balance store serializes concurrent mutations of one wallet.
type Strategy string

const (
	// StrategyOptimistic detects lost updates with the version token at write time.
	StrategyOptimistic Strategy = "optimistic"
	// StrategyPessimistic holds an exclusive row lock for read-check-write.
	StrategyPessimistic Strategy = "pessimistic"
)

// IsValid reports whether s names a supported strategy.
func (s Strategy) IsValid() bool {
	return s == StrategyOptimistic || s == StrategyPessimistic
}
