package ports

import (
	"context"

	"wallet-service/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

//go:generate mockgen -source=services.go -destination=mocks/mock_services.go -package=mocks

// WalletService coordinates deposit/withdraw requests and balance reads.
type WalletService interface {
	ProcessTransaction(ctx context.Context, req TransactionRequest) (*BalanceResult, error)
	GetBalance(ctx context.Context, walletID string) (*BalanceResult, error)
}

// TransactionRequest is the transport-agnostic deposit/withdraw request.
// WalletID is kept as received so the coordinator owns identifier validation.
type TransactionRequest struct {
	WalletID      string
	OperationType domain.OperationType
	Amount        decimal.Decimal
}

// BalanceResult is the outcome of a successful mutation or read.
type BalanceResult struct {
	WalletID uuid.UUID
	Balance  decimal.Decimal
}
