package dto

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount is returned while decoding an amount that is not a number.
var ErrInvalidAmount = errors.New("invalid amount")

// Amount accepts either a JSON number or a numeric string.
type Amount struct {
	decimal.Decimal
}

// UnmarshalJSON decodes the amount, tagging failures with ErrInvalidAmount.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if err := a.Decimal.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, err)
	}
	return nil
}

// WalletOperationRequest is the request body for a deposit or withdrawal.
type WalletOperationRequest struct {
	WalletID      string  `json:"walletId" binding:"required,uuid4"`
	OperationType string  `json:"operationType" binding:"required,oneof=DEPOSIT WITHDRAW"`
	Amount        *Amount `json:"amount" binding:"required"`
}

// WalletPath binds the wallet id from the URL.
type WalletPath struct {
	WalletID string `uri:"walletId" binding:"required,uuid4"`
}

// WalletBalanceResponse is the response body for mutations and balance reads.
type WalletBalanceResponse struct {
	WalletID string `json:"walletId"`
	Balance  string `json:"balance"`
}
