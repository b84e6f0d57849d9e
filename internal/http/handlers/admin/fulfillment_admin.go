package admin

import (
	"errors"
	"strconv"

	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

// GetAdminFulfillment 获取交易的交付记录
func (h *Handler) GetAdminFulfillment(c *gin.Context) {
	transactionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || transactionID == 0 {
		respondError(c, response.CodeBadRequest, "invalid transaction id", nil)
		return
	}

	fulfillment, err := h.FulfillmentService.GetByTransactionID(uint(transactionID))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrFulfillmentNotFound):
			respondError(c, response.CodeNotFound, "transaction has no fulfillment record", nil)
		default:
			respondError(c, response.CodeInternal, "failed to fetch fulfillment", err)
		}
		return
	}

	response.Success(c, fulfillment)
}
