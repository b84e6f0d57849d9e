package admin

import (
	"encoding/csv"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/repository"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

const adminPaymentExportBatchSize = 500

// GetAdminPayments 获取支付台账列表
func (h *Handler) GetAdminPayments(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	page, pageSize = normalizePagination(page, pageSize)

	filter, err := buildAdminPaymentFilter(c, page, pageSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid query parameters", err)
		return
	}

	payments, total, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch payments", err)
		return
	}

	response.SuccessWithPage(c, payments, response.BuildPagination(page, pageSize, total))
}

// GetAdminPayment 获取支付台账详情
func (h *Handler) GetAdminPayment(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		respondError(c, response.CodeBadRequest, "invalid payment id", nil)
		return
	}

	payment, err := h.PaymentService.GetPayment(uint(id))
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "payment not found", nil)
		default:
			respondError(c, response.CodeInternal, "failed to fetch payment", err)
		}
		return
	}

	response.Success(c, payment)
}

// RetryPaymentRequest 重开支付请求
type RetryPaymentRequest struct {
	TransactionID uint `json:"transaction_id" binding:"required"`
}

// RetryAdminPayment 为失败或过期的交易重开一条支付记录
func (h *Handler) RetryAdminPayment(c *gin.Context) {
	var req RetryPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	payment, err := h.PaymentService.RetryPayment(req.TransactionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			respondError(c, response.CodeNotFound, "transaction not found", nil)
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "transaction has no payment record", nil)
		case errors.Is(err, service.ErrPaymentStateInvalid):
			respondError(c, response.CodeConflict, "latest payment is not retryable", nil)
		case errors.Is(err, service.ErrActivePaymentExists):
			respondError(c, response.CodeConflict, "transaction already has an active payment", nil)
		case errors.Is(err, service.ErrAddressInvalid):
			respondError(c, response.CodeInternal, "address allocation unavailable", err)
		case errors.Is(err, service.ErrValidation):
			respondError(c, response.CodeBadRequest, "invalid transaction id", nil)
		default:
			respondError(c, response.CodeInternal, "failed to retry payment", err)
		}
		return
	}

	requestLog(c).Infow("admin_payment_retry",
		"transaction_id", req.TransactionID,
		"payment_id", payment.ID,
	)
	response.Success(c, payment)
}

// ExportAdminPayments 导出支付台账 CSV
func (h *Handler) ExportAdminPayments(c *gin.Context) {
	filter, err := buildAdminPaymentFilter(c, 1, adminPaymentExportBatchSize)
	if err != nil {
		respondError(c, response.CodeBadRequest, "invalid query parameters", err)
		return
	}

	payments, _, err := h.PaymentService.ListPayments(filter)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch payments", err)
		return
	}

	filename := fmt.Sprintf("payments_%s.csv", time.Now().Format("20060102_150405"))
	c.Header("Content-Type", "text/csv; charset=utf-8")
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", filename))

	writer := csv.NewWriter(c.Writer)
	if err := writer.Write([]string{
		"id",
		"transaction_id",
		"blockchain",
		"address",
		"tx_hash",
		"status",
		"failure_reason",
		"amount_bch",
		"amount_sats",
		"confirmations",
		"created_at",
		"confirmed_at",
		"closed_at",
		"expires_at",
	}); err != nil {
		requestLog(c).Errorw("admin_payment_export_header_write_failed", "error", err)
		return
	}

	page := 1
	for {
		if len(payments) > 0 {
			if err := writeAdminPaymentCSVRows(writer, payments); err != nil {
				requestLog(c).Errorw("admin_payment_export_rows_write_failed", "page", page, "error", err)
				return
			}
			writer.Flush()
			if err := writer.Error(); err != nil {
				requestLog(c).Errorw("admin_payment_export_flush_failed", "page", page, "error", err)
				return
			}
		}
		if len(payments) < adminPaymentExportBatchSize {
			break
		}
		page++
		filter.Page = page
		payments, _, err = h.PaymentService.ListPayments(filter)
		if err != nil {
			requestLog(c).Errorw("admin_payment_export_batch_fetch_failed", "page", page, "error", err)
			return
		}
	}
}

func formatTimeNullable(raw *time.Time) string {
	if raw == nil {
		return ""
	}
	return raw.Format(time.RFC3339)
}

func parseTimeNullable(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, raw); err == nil {
			return &parsed, nil
		}
	}
	return nil, fmt.Errorf("invalid time value: %s", raw)
}

func parseAdminQueryUint(c *gin.Context, key string) (uint, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	if parsed == 0 {
		return 0, errors.New("invalid query value")
	}
	return uint(parsed), nil
}

func buildAdminPaymentFilter(c *gin.Context, page, pageSize int) (repository.PaymentListFilter, error) {
	transactionID, err := parseAdminQueryUint(c, "transaction_id")
	if err != nil {
		return repository.PaymentListFilter{}, err
	}

	createdFrom, err := parseTimeNullable(strings.TrimSpace(c.Query("created_from")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}
	createdTo, err := parseTimeNullable(strings.TrimSpace(c.Query("created_to")))
	if err != nil {
		return repository.PaymentListFilter{}, err
	}

	return repository.PaymentListFilter{
		Page:          page,
		PageSize:      pageSize,
		TransactionID: transactionID,
		Address:       strings.TrimSpace(c.Query("address")),
		TxHash:        strings.TrimSpace(c.Query("tx_hash")),
		Status:        strings.TrimSpace(c.Query("status")),
		CreatedFrom:   createdFrom,
		CreatedTo:     createdTo,
	}, nil
}

func writeAdminPaymentCSVRows(writer *csv.Writer, payments []models.Payment) error {
	for _, payment := range payments {
		if err := writer.Write([]string{
			strconv.FormatUint(uint64(payment.ID), 10),
			strconv.FormatUint(uint64(payment.TransactionID), 10),
			payment.Blockchain,
			payment.Address,
			payment.TxHash,
			payment.Status,
			payment.FailureReason,
			payment.AmountBCH.String(),
			strconv.FormatInt(payment.AmountSats, 10),
			strconv.FormatUint(uint64(payment.Confirmations), 10),
			payment.CreatedAt.Format(time.RFC3339),
			formatTimeNullable(payment.ConfirmedAt),
			formatTimeNullable(payment.ClosedAt),
			formatTimeNullable(payment.ExpiresAt),
		}); err != nil {
			return err
		}
	}
	return nil
}
