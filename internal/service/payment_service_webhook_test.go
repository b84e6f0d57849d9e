package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"testing"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"
)

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func buildWebhookBody(t *testing.T, payload map[string]interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal webhook body failed: %v", err)
	}
	return body
}

func TestVerifyWebhookSignature(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)
	body := []byte(`{"tx_hash":"abc"}`)
	valid := signWebhookBody("test-webhook-secret", body)

	if err := svc.VerifyWebhookSignature(valid, body); err != nil {
		t.Fatalf("valid signature rejected: %v", err)
	}
	if err := svc.VerifyWebhookSignature("sha256="+valid, body); err != nil {
		t.Fatalf("prefixed signature rejected: %v", err)
	}
	if err := svc.VerifyWebhookSignature(signWebhookBody("wrong-secret", body), body); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("want ErrWebhookSignatureInvalid got %v", err)
	}
	if err := svc.VerifyWebhookSignature("", body); !errors.Is(err, ErrWebhookSignatureInvalid) {
		t.Fatalf("empty signature want ErrWebhookSignatureInvalid got %v", err)
	}
}

func TestHandleWebhookConfirmsPayment(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-HOOK-1", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Address = "1WebhookAddr1"
	})

	body := buildWebhookBody(t, map[string]interface{}{
		"blockchain":    constants.BlockchainBCH,
		"tx_hash":       "hash-hook-1",
		"address":       "1WebhookAddr1",
		"confirmations": 2,
		"status":        constants.WebhookHintConfirmation,
		"event_id":      "evt-1",
	})

	updated, err := svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("handle webhook failed: %v", err)
	}
	if updated.ID != payment.ID {
		t.Fatalf("webhook resolved wrong payment: want %d got %d", payment.ID, updated.ID)
	}
	if updated.Status != constants.PaymentStatusConfirmed {
		t.Fatalf("status want confirmed got %s", updated.Status)
	}
	if updated.LastWebhookAt == nil {
		t.Fatalf("expected last_webhook_at set")
	}

	// 重放同一报文：无副作用
	before := updated.Confirmations
	replayed, err := svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("webhook replay should be a no-op, got %v", err)
	}
	if replayed.Confirmations != before || replayed.Status != constants.PaymentStatusConfirmed {
		t.Fatalf("replay changed record: status=%s conf=%d", replayed.Status, replayed.Confirmations)
	}
}

func TestHandleWebhookConflictIsReportable(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-HOOK-2", constants.TransactionStatusPendingPayment)
	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Address = "1WebhookAddr2"
		p.TxHash = "hash-hook-2"
		p.Confirmations = 1
	})

	body := buildWebhookBody(t, map[string]interface{}{
		"blockchain":    constants.BlockchainBCH,
		"tx_hash":       "hash-hook-2",
		"address":       "1WebhookAddr2",
		"confirmations": 0,
		"status":        constants.WebhookHintConfirmation,
		"event_id":      "evt-2",
	})

	_, err := svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if !errors.Is(err, ErrConfirmationRegression) {
		t.Fatalf("want ErrConfirmationRegression got %v", err)
	}
	if !IsWebhookConflict(err) {
		t.Fatalf("regression should classify as webhook conflict")
	}
}

func TestHandleWebhookValidation(t *testing.T) {
	svc, _ := setupPaymentServiceTest(t)

	body := buildWebhookBody(t, map[string]interface{}{
		"blockchain":    "ethereum",
		"tx_hash":       "hash-hook-3",
		"confirmations": 1,
	})
	_, err := svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if !errors.Is(err, ErrBlockchainUnsupported) {
		t.Fatalf("want ErrBlockchainUnsupported got %v", err)
	}

	body = buildWebhookBody(t, map[string]interface{}{
		"blockchain":    constants.BlockchainBCH,
		"confirmations": 1,
	})
	_, err = svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("missing reference want ErrValidation got %v", err)
	}

	body = buildWebhookBody(t, map[string]interface{}{
		"blockchain":    constants.BlockchainBCH,
		"tx_hash":       "hash-unknown",
		"confirmations": 1,
	})
	_, err = svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("unknown reference want ErrPaymentNotFound got %v", err)
	}
}

func TestHandleWebhookFailedHintClosesRecord(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-HOOK-4", constants.TransactionStatusPendingPayment)
	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Address = "1WebhookAddr4"
	})

	body := buildWebhookBody(t, map[string]interface{}{
		"blockchain":    constants.BlockchainBCH,
		"address":       "1WebhookAddr4",
		"confirmations": 0,
		"status":        constants.WebhookHintFailed,
		"reason":        "reorg_detected",
		"event_id":      "evt-4",
	})

	updated, err := svc.HandleWebhook(WebhookInput{
		Signature: signWebhookBody("test-webhook-secret", body),
		Body:      body,
	})
	if err != nil {
		t.Fatalf("handle failed hint webhook failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusFailed {
		t.Fatalf("status want failed got %s", updated.Status)
	}
	if updated.FailureReason != "reorg_detected" {
		t.Fatalf("failure reason want reorg_detected got %s", updated.FailureReason)
	}
	if updated.RawPayload == nil {
		t.Fatalf("expected raw payload recorded")
	}
}
