package public

import (
	"errors"
	"io"
	"strings"

	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

const webhookRawBodyLogLimit = 2048

// BCHWebhook 链上处理器回调。
// 冲突类事件（确认数回退、终态改写）记录日志后仍回执成功，阻止处理器重试风暴。
func (h *Handler) BCHWebhook(c *gin.Context) {
	log := requestLog(c)

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		log.Warnw("bch_webhook_body_read_failed", "error", err)
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	signature := strings.TrimSpace(c.GetHeader("X-Paysats-Signature"))
	log.Infow("bch_webhook_received",
		"client_ip", c.ClientIP(),
		"body_size", len(body),
		"raw_body", webhookRawBodyForLog(body),
	)

	payment, err := h.PaymentService.HandleWebhook(service.WebhookInput{
		Signature: signature,
		Body:      body,
	})
	if err != nil {
		if service.IsWebhookConflict(err) {
			resp := gin.H{"accepted": true, "updated": false}
			if payment != nil {
				resp["payment_id"] = payment.ID
				resp["status"] = payment.Status
			}
			response.Success(c, resp)
			return
		}
		switch {
		case errors.Is(err, service.ErrWebhookSignatureInvalid):
			respondError(c, response.CodeUnauthorized, "webhook signature invalid", nil)
		case errors.Is(err, service.ErrValidation):
			respondError(c, response.CodeBadRequest, "webhook payload invalid", nil)
		case errors.Is(err, service.ErrBlockchainUnsupported):
			respondError(c, response.CodeBadRequest, "unsupported blockchain", nil)
		case errors.Is(err, service.ErrPaymentNotFound):
			respondError(c, response.CodeNotFound, "payment record not found", nil)
		default:
			respondError(c, response.CodeInternal, "failed to process webhook", err)
		}
		return
	}

	response.Success(c, gin.H{
		"accepted":      true,
		"updated":       true,
		"payment_id":    payment.ID,
		"status":        payment.Status,
		"confirmations": payment.Confirmations,
	})
}

func webhookRawBodyForLog(body []byte) string {
	if len(body) <= webhookRawBodyLogLimit {
		return string(body)
	}
	return string(body[:webhookRawBodyLogLimit]) + "...(truncated)"
}
