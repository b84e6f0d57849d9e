package public

import (
	"errors"
	"strings"

	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

// CreateTransactionRequest 创建交易请求
type CreateTransactionRequest struct {
	ServiceType   string `json:"service_type" binding:"required"`
	Provider      string `json:"provider" binding:"required"`
	TargetAccount string `json:"target_account" binding:"required"`
	ProductCode   string `json:"product_code"`
	CustomerEmail string `json:"customer_email"`
	Amount        string `json:"amount" binding:"required"`
}

// CreateTransaction 创建账单交易并开出首条支付记录
func (h *Handler) CreateTransaction(c *gin.Context) {
	var req CreateTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	transaction, err := h.TransactionService.CreateTransaction(c.Request.Context(), service.CreateTransactionInput{
		ServiceType:   req.ServiceType,
		Provider:      req.Provider,
		TargetAccount: req.TargetAccount,
		ProductCode:   req.ProductCode,
		CustomerEmail: req.CustomerEmail,
		AmountFiat:    req.Amount,
		ClientIP:      c.ClientIP(),
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrServiceTypeInvalid):
			respondError(c, response.CodeBadRequest, "unsupported service type", nil)
		case errors.Is(err, service.ErrValidation):
			respondError(c, response.CodeBadRequest, "invalid transaction details", nil)
		case errors.Is(err, service.ErrAmountInvalid):
			respondError(c, response.CodeBadRequest, "amount must be positive", nil)
		case errors.Is(err, service.ErrRateUnavailable):
			respondError(c, response.CodeInternal, "exchange rate temporarily unavailable", nil)
		case errors.Is(err, service.ErrAddressInvalid):
			respondError(c, response.CodeInternal, "payment address unavailable", err)
		default:
			respondError(c, response.CodeInternal, "failed to create transaction", err)
		}
		return
	}

	response.Success(c, transaction)
}

// GetTransaction 按编号查询交易
func (h *Handler) GetTransaction(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		respondError(c, response.CodeBadRequest, "transaction reference required", nil)
		return
	}

	transaction, err := h.TransactionService.GetByReference(reference)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			respondError(c, response.CodeNotFound, "transaction not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to fetch transaction", err)
		return
	}

	response.Success(c, transaction)
}

// GetTransactionPayments 查询交易的全部支付记录
func (h *Handler) GetTransactionPayments(c *gin.Context) {
	reference := strings.TrimSpace(c.Param("reference"))
	if reference == "" {
		respondError(c, response.CodeBadRequest, "transaction reference required", nil)
		return
	}

	transaction, err := h.TransactionService.GetByReference(reference)
	if err != nil {
		if errors.Is(err, service.ErrTransactionNotFound) {
			respondError(c, response.CodeNotFound, "transaction not found", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to fetch transaction", err)
		return
	}

	payments, err := h.PaymentService.ListByTransaction(transaction.ID)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch payments", err)
		return
	}

	response.Success(c, payments)
}
