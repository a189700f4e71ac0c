package handler

import (
	"wallet-service/internal/adapter/http/dto"
	"wallet-service/internal/core/domain"
	"wallet-service/internal/core/ports"
	"wallet-service/pkg/apperror"
	"wallet-service/pkg/response"

	"github.com/gin-gonic/gin"
)

// WalletHandler handles wallet endpoints.
type WalletHandler struct {
	walletSvc ports.WalletService
}

// NewWalletHandler creates a new WalletHandler.
func NewWalletHandler(walletSvc ports.WalletService) *WalletHandler {
	return &WalletHandler{walletSvc: walletSvc}
}

// Operate handles POST /api/v1/wallets.
func (h *WalletHandler) Operate(c *gin.Context) {
	var req dto.WalletOperationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	result, err := h.walletSvc.ProcessTransaction(c.Request.Context(), ports.TransactionRequest{
		WalletID:      req.WalletID,
		OperationType: domain.OperationType(req.OperationType),
		Amount:        req.Amount.Decimal,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toBalanceResponse(result))
}

// GetBalance handles GET /api/v1/wallets/:walletId.
func (h *WalletHandler) GetBalance(c *gin.Context) {
	var path dto.WalletPath
	if err := c.ShouldBindUri(&path); err != nil {
		response.Error(c, bindingError(err))
		return
	}

	result, err := h.walletSvc.GetBalance(c.Request.Context(), path.WalletID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.OK(c, toBalanceResponse(result))
}

func bindingError(err error) *apperror.AppError {
	msg, tooLarge := dto.BindingMessage(err)
	if tooLarge {
		return apperror.ErrPayloadTooLarge()
	}
	return apperror.Validation(msg)
}

func toBalanceResponse(r *ports.BalanceResult) dto.WalletBalanceResponse {
	return dto.WalletBalanceResponse{
		WalletID: r.WalletID.String(),
		Balance:  r.Balance.StringFixed(domain.BalanceScale),
	}
}
