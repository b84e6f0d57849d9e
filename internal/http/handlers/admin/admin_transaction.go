package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/repository"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminTransactions 获取交易列表
func (h *Handler) GetAdminTransactions(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid query parameters", err)
		return
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid query parameters", err)
		return
	}

	filter := repository.TransactionListFilter{
		Page:        page,
		PageSize:    pageSize,
		Reference:   strings.TrimSpace(c.Query("reference")),
		ServiceType: strings.TrimSpace(c.Query("service_type")),
		Provider:    strings.TrimSpace(c.Query("provider")),
		Status:      strings.TrimSpace(c.Query("status")),
		Search:      strings.TrimSpace(c.Query("search")),
		CreatedFrom: createdFrom,
		CreatedTo:   createdTo,
	}

	transactions, total, err := h.TransactionService.ListAdmin(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch transactions", err)
		return
	}

	response.SuccessWithPage(c, transactions, response.BuildPagination(page, pageSize, total))
}

// GetAdminTransaction 获取交易详情
func (h *Handler) GetAdminTransaction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}

	transaction, err := h.TransactionService.GetByID(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondError(c, response.CodeNotFound, "transaction not found", nil)
		default:
			respondError(c, response.CodeInternal, "failed to fetch transaction", err)
		}
		return
	}

	response.Success(c, transaction)
}

// RefulfillAdminTransaction 重置失败交付并重新入队发货
func (h *Handler) RefulfillAdminTransaction(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}

	fulfillment, err := h.FulfillmentService.Refulfill(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondError(c, response.CodeNotFound, "transaction not found", nil)
		case errors.Is(err, service.ErrFulfillmentNotFound):
			respondError(c, response.CodeNotFound, "transaction has no fulfillment record", nil)
		case errors.Is(err, service.ErrFulfillmentStateInvalid):
			respondError(c, response.CodeConflict, "fulfillment is not in a retryable state", nil)
		default:
			respondError(c, response.CodeInternal, "failed to requeue fulfillment", err)
		}
		return
	}

	requestLog(c).Infow("admin_transaction_refulfill", "transaction_id", id)
	response.Success(c, fulfillment)
}
