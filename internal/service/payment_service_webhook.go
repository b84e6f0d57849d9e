package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strings"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"
)

// WebhookInput 链上处理器回调输入
type WebhookInput struct {
	Signature string
	Body      []byte
}

// webhookPayload 处理器回调报文
type webhookPayload struct {
	Blockchain    string `json:"blockchain"`
	TxHash        string `json:"tx_hash"`
	Address       string `json:"address"`
	Confirmations uint   `json:"confirmations"`
	Status        string `json:"status"`
	Reason        string `json:"reason"`
	EventID       string `json:"event_id"`
}

// VerifyWebhookSignature 校验回调签名（HMAC-SHA256，共享密钥）
func (s *PaymentService) VerifyWebhookSignature(signature string, body []byte) error {
	secret := ""
	if s.cfg != nil {
		secret = strings.TrimSpace(s.cfg.Payment.WebhookSecret)
	}
	if secret == "" {
		return ErrWebhookSignatureInvalid
	}
	signature = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(signature), "sha256="))
	if signature == "" {
		return ErrWebhookSignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(strings.ToLower(signature)), []byte(expected)) {
		return ErrWebhookSignatureInvalid
	}
	return nil
}

// HandleWebhook 处理链上处理器回调。
// 重放返回当前记录且无副作用；确认数回退与终态冲突返回冲突类错误，
// 由 handler 记录日志后向处理器回执成功，避免对端重试风暴。
func (s *PaymentService) HandleWebhook(input WebhookInput) (*models.Payment, error) {
	log := paymentLogger("body_size", len(input.Body))

	if err := s.VerifyWebhookSignature(input.Signature, input.Body); err != nil {
		log.Warnw("payment_webhook_signature_invalid")
		return nil, err
	}

	var payload webhookPayload
	if err := json.Unmarshal(input.Body, &payload); err != nil {
		log.Warnw("payment_webhook_payload_invalid", "error", err)
		return nil, ErrValidation
	}
	if chain := strings.ToLower(strings.TrimSpace(payload.Blockchain)); chain != "" && chain != constants.BlockchainBCH {
		log.Warnw("payment_webhook_blockchain_unsupported", "blockchain", payload.Blockchain)
		return nil, ErrBlockchainUnsupported
	}

	txHash := strings.TrimSpace(payload.TxHash)
	address := strings.TrimSpace(payload.Address)
	if txHash == "" && address == "" {
		log.Warnw("payment_webhook_reference_missing", "event_id", payload.EventID)
		return nil, ErrValidation
	}

	payment, err := s.resolveWebhookPayment(txHash, address)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		log.Infow("payment_webhook_record_not_found",
			"tx_hash", txHash,
			"address", address,
			"event_id", payload.EventID,
		)
		return nil, ErrPaymentNotFound
	}

	rawMap := models.JSON{}
	_ = json.Unmarshal(input.Body, &rawMap)

	updated, err := s.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        txHash,
		Confirmations: payload.Confirmations,
		StatusHint:    payload.Status,
		FailureReason: payload.Reason,
		Payload:       rawMap,
	})
	if err != nil {
		if IsWebhookConflict(err) {
			// 状态回退：记录并丢弃，保留 updated 供 handler 回执
			log.Warnw("payment_webhook_conflict_dropped",
				"payment_id", payment.ID,
				"tx_hash", txHash,
				"event_id", payload.EventID,
				"error", err,
			)
			return updated, err
		}
		log.Errorw("payment_webhook_apply_failed",
			"payment_id", payment.ID,
			"tx_hash", txHash,
			"event_id", payload.EventID,
			"error", err,
		)
		return nil, err
	}

	log.Infow("payment_webhook_processed",
		"payment_id", updated.ID,
		"tx_hash", txHash,
		"event_id", payload.EventID,
		"status", updated.Status,
		"confirmations", updated.Confirmations,
	)
	return updated, nil
}

// resolveWebhookPayment 回调定位支付记录：优先交易哈希，其次收款地址
func (s *PaymentService) resolveWebhookPayment(txHash, address string) (*models.Payment, error) {
	if txHash != "" {
		payment, err := s.paymentRepo.GetLatestByTxHash(txHash)
		if err != nil {
			return nil, err
		}
		if payment != nil {
			return payment, nil
		}
	}
	if address != "" {
		return s.paymentRepo.GetLatestByAddress(address)
	}
	return nil, nil
}

// IsWebhookConflict 判断错误是否属于应回执成功的冲突类错误
func IsWebhookConflict(err error) bool {
	return errors.Is(err, ErrConfirmationRegression) || errors.Is(err, ErrPaymentAlreadyClosed)
}
