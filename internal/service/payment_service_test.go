package service

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/paysats/paysats-api/internal/bch"
	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// BIP32 公开测试向量，仅用于派生测试地址
const testXpub = "xpub661MyMwAqRbcFtXgS5sYJABqqG9YLmC4Q1Rdap9gSE8NqtwybGhePY2gZ29ESFjqJoCu1Rupje8YtGqsefD265TMg7usUDFdp6W1EGMcet8"

func setupPaymentServiceTest(t *testing.T) (*PaymentService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Payment{},
		&models.Setting{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	wallet, err := bch.NewWallet(testXpub, constants.BCHNetworkMainnet)
	if err != nil {
		t.Fatalf("new wallet failed: %v", err)
	}
	cfg := &config.Config{
		Payment: config.PaymentConfig{
			ConfirmationThreshold: 2,
			ExpireMinutes:         30,
			WebhookSecret:         "test-webhook-secret",
		},
	}
	svc := NewPaymentService(
		cfg,
		repository.NewTransactionRepository(db),
		repository.NewPaymentRepository(db),
		repository.NewSettingRepository(db),
		wallet,
		nil,
	)
	return svc, db
}

func createServiceTestTransaction(t *testing.T, db *gorm.DB, reference, status string) *models.Transaction {
	t.Helper()
	now := time.Now()
	transaction := &models.Transaction{
		Reference:     reference,
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		AmountFiat:    mustMoney(t, "5000"),
		Currency:      "NGN",
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
		Rate:          mustMoney(t, "333333.33"),
		Status:        status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}
	return transaction
}

func createServiceTestPayment(t *testing.T, db *gorm.DB, transactionID uint, mutate func(*models.Payment)) *models.Payment {
	t.Helper()
	now := time.Now()
	expiresAt := now.Add(30 * time.Minute)
	payment := &models.Payment{
		TransactionID: transactionID,
		Blockchain:    constants.BlockchainBCH,
		Address:       fmt.Sprintf("1TestAddr%d", time.Now().UnixNano()),
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
		AmountSats:    1_500_000,
		Status:        constants.PaymentStatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     &expiresAt,
	}
	if mutate != nil {
		mutate(payment)
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func mustMoney(t *testing.T, value string) models.Money {
	t.Helper()
	var money models.Money
	if err := money.UnmarshalJSON([]byte(fmt.Sprintf("%q", value))); err != nil {
		t.Fatalf("parse money %q failed: %v", value, err)
	}
	return money
}

func mustBCHAmount(t *testing.T, value string) models.BCHAmount {
	t.Helper()
	amount, err := models.NewBCHAmountFromString(value)
	if err != nil {
		t.Fatalf("parse bch amount %q failed: %v", value, err)
	}
	return amount
}

func TestCreatePaymentAllocatesAddressAndSats(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CREATE-1", constants.TransactionStatusPendingPayment)

	payment, err := svc.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
	})
	if err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	if payment.Status != constants.PaymentStatusPending {
		t.Fatalf("status want pending got %s", payment.Status)
	}
	if payment.AmountSats != 1_500_000 {
		t.Fatalf("amount sats want 1500000 got %d", payment.AmountSats)
	}
	if payment.Address == "" {
		t.Fatalf("expected derived receiving address")
	}
	if payment.ExpiresAt == nil || !payment.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected future expires_at, got %v", payment.ExpiresAt)
	}

	// 同一交易存在在途记录时拒绝再开
	_, err = svc.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
	})
	if !errors.Is(err, ErrActivePaymentExists) {
		t.Fatalf("want ErrActivePaymentExists got %v", err)
	}
}

func TestCreatePaymentRejectsAmountProblems(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CREATE-2", constants.TransactionStatusPendingPayment)

	_, err := svc.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
		AmountSats:    999,
	})
	if !errors.Is(err, ErrAmountMismatch) {
		t.Fatalf("want ErrAmountMismatch got %v", err)
	}

	_, err = svc.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     mustBCHAmount(t, "0"),
	})
	if !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("want ErrAmountInvalid got %v", err)
	}

	// 显式给出与换算一致的 satoshi 表示则放行
	payment, err := svc.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     mustBCHAmount(t, "0.01500000"),
		AmountSats:    1_500_000,
	})
	if err != nil {
		t.Fatalf("create payment with explicit sats failed: %v", err)
	}
	if payment.AmountSats != 1_500_000 {
		t.Fatalf("amount sats want 1500000 got %d", payment.AmountSats)
	}
}

func TestCreatePaymentTransactionStateChecks(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)

	_, err := svc.CreatePayment(CreatePaymentInput{
		TransactionID: 9999,
		AmountBCH:     mustBCHAmount(t, "0.01"),
	})
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("want ErrTransactionNotFound got %v", err)
	}

	paid := createServiceTestTransaction(t, db, "PS-CREATE-3", constants.TransactionStatusPaid)
	_, err = svc.CreatePayment(CreatePaymentInput{
		TransactionID: paid.ID,
		AmountBCH:     mustBCHAmount(t, "0.01"),
	})
	if !errors.Is(err, ErrTransactionStateInvalid) {
		t.Fatalf("want ErrTransactionStateInvalid got %v", err)
	}
}

func TestApplyConfirmationMonotonicProgress(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CONF-1", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, nil)

	updated, err := svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-conf-1",
		Confirmations: 1,
	})
	if err != nil {
		t.Fatalf("apply first confirmation failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusPending {
		t.Fatalf("below threshold should stay pending, got %s", updated.Status)
	}
	if updated.Confirmations != 1 {
		t.Fatalf("confirmations want 1 got %d", updated.Confirmations)
	}
	if updated.TxHash != "hash-conf-1" {
		t.Fatalf("tx hash want hash-conf-1 got %s", updated.TxHash)
	}

	updated, err = svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-conf-1",
		Confirmations: 2,
	})
	if err != nil {
		t.Fatalf("apply threshold confirmation failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusConfirmed {
		t.Fatalf("status want confirmed got %s", updated.Status)
	}
	if updated.ConfirmedAt == nil {
		t.Fatalf("expected confirmed_at set")
	}

	var reloaded models.Transaction
	if err := db.First(&reloaded, transaction.ID).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if reloaded.Status != constants.TransactionStatusPaid {
		t.Fatalf("transaction status want paid got %s", reloaded.Status)
	}
	if reloaded.PaidAt == nil {
		t.Fatalf("expected paid_at set")
	}
}

func TestApplyConfirmationRejectsRegression(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CONF-2", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.TxHash = "hash-conf-2"
		p.Confirmations = 1
	})

	_, err := svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-conf-2",
		Confirmations: 0,
	})
	if !errors.Is(err, ErrConfirmationRegression) {
		t.Fatalf("want ErrConfirmationRegression got %v", err)
	}

	// 同一记录不接受第二个交易哈希
	_, err = svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-other",
		Confirmations: 1,
	})
	if !errors.Is(err, ErrConfirmationRegression) {
		t.Fatalf("want ErrConfirmationRegression for second hash got %v", err)
	}

	var reloaded models.Payment
	if err := db.First(&reloaded, payment.ID).Error; err != nil {
		t.Fatalf("reload payment failed: %v", err)
	}
	if reloaded.Confirmations != 1 || reloaded.TxHash != "hash-conf-2" {
		t.Fatalf("conflict should leave record untouched, got conf=%d hash=%s", reloaded.Confirmations, reloaded.TxHash)
	}
}

func TestApplyConfirmationTerminalReplay(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CONF-3", constants.TransactionStatusPaid)
	now := time.Now()
	payment := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.TxHash = "hash-conf-3"
		p.Confirmations = 3
		p.Status = constants.PaymentStatusConfirmed
		p.ConfirmedAt = &now
	})

	// 精确重放：无副作用
	updated, err := svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-conf-3",
		Confirmations: 3,
	})
	if err != nil {
		t.Fatalf("terminal replay should be a no-op, got %v", err)
	}
	if updated.Status != constants.PaymentStatusConfirmed || updated.Confirmations != 3 {
		t.Fatalf("replay should not change record, got status=%s conf=%d", updated.Status, updated.Confirmations)
	}

	// 非重放更新一律冲突
	_, err = svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-different",
		Confirmations: 4,
	})
	if !errors.Is(err, ErrPaymentAlreadyClosed) {
		t.Fatalf("want ErrPaymentAlreadyClosed got %v", err)
	}
}

func TestApplyConfirmationFailedHint(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-CONF-4", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, nil)

	updated, err := svc.ApplyConfirmation(ApplyConfirmationInput{
		PaymentID:     payment.ID,
		TxHash:        "hash-conf-4",
		Confirmations: 0,
		StatusHint:    constants.WebhookHintFailed,
		FailureReason: "underpaid",
	})
	if err != nil {
		t.Fatalf("apply failed hint failed: %v", err)
	}
	if updated.Status != constants.PaymentStatusFailed {
		t.Fatalf("status want failed got %s", updated.Status)
	}
	if updated.FailureReason != "underpaid" {
		t.Fatalf("failure reason want underpaid got %s", updated.FailureReason)
	}
	if updated.ClosedAt == nil {
		t.Fatalf("expected closed_at set")
	}
}

func TestRetryPaymentRules(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-RETRY-1", constants.TransactionStatusPendingPayment)

	_, err := svc.RetryPayment(transaction.ID)
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("retry without payment want ErrPaymentNotFound got %v", err)
	}

	closedAt := time.Now().Add(-time.Minute)
	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Status = constants.PaymentStatusExpired
		p.FailureReason = "expiry_window_elapsed"
		p.ClosedAt = &closedAt
	})

	retried, err := svc.RetryPayment(transaction.ID)
	if err != nil {
		t.Fatalf("retry after expiry failed: %v", err)
	}
	if retried.Status != constants.PaymentStatusPending {
		t.Fatalf("retried status want pending got %s", retried.Status)
	}
	if retried.AmountSats != 1_500_000 {
		t.Fatalf("retried payment should keep amount, got %d", retried.AmountSats)
	}
	if retried.Confirmations != 0 {
		t.Fatalf("retried payment should start at zero confirmations")
	}

	// 存在在途记录时不允许再次重试
	_, err = svc.RetryPayment(transaction.ID)
	if !errors.Is(err, ErrPaymentStateInvalid) {
		t.Fatalf("retry with active payment want ErrPaymentStateInvalid got %v", err)
	}
}

func TestRetryPaymentRejectsConfirmed(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-RETRY-2", constants.TransactionStatusPaid)
	now := time.Now()
	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Status = constants.PaymentStatusConfirmed
		p.Confirmations = 2
		p.ConfirmedAt = &now
	})

	_, err := svc.RetryPayment(transaction.ID)
	if !errors.Is(err, ErrPaymentStateInvalid) {
		t.Fatalf("retry confirmed payment want ErrPaymentStateInvalid got %v", err)
	}
}

func TestExpirePaymentOutcomes(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-EXPIRE-1", constants.TransactionStatusPendingPayment)
	overdue := time.Now().Add(-time.Minute)

	zeroConf := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.ExpiresAt = &overdue
	})
	expired, err := svc.ExpirePayment(zeroConf.ID)
	if err != nil {
		t.Fatalf("expire zero-conf payment failed: %v", err)
	}
	if expired.Status != constants.PaymentStatusExpired {
		t.Fatalf("zero-conf status want expired got %s", expired.Status)
	}
	if expired.FailureReason != "expiry_window_elapsed" {
		t.Fatalf("unexpected failure reason %s", expired.FailureReason)
	}

	partial := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.ExpiresAt = &overdue
		p.Confirmations = 1
	})
	failed, err := svc.ExpirePayment(partial.ID)
	if err != nil {
		t.Fatalf("expire partial payment failed: %v", err)
	}
	if failed.Status != constants.PaymentStatusFailed {
		t.Fatalf("partial status want failed got %s", failed.Status)
	}
	if failed.FailureReason != "confirmation_timeout" {
		t.Fatalf("unexpected failure reason %s", failed.FailureReason)
	}

	// 终态重复触发无操作
	again, err := svc.ExpirePayment(zeroConf.ID)
	if err != nil {
		t.Fatalf("repeat expire should be no-op, got %v", err)
	}
	if again.Status != constants.PaymentStatusExpired {
		t.Fatalf("repeat expire should keep status, got %s", again.Status)
	}
}

func TestExpirePaymentBeforeWindow(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-EXPIRE-2", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, nil)

	current, err := svc.ExpirePayment(payment.ID)
	if err != nil {
		t.Fatalf("expire before window failed: %v", err)
	}
	if current.Status != constants.PaymentStatusPending {
		t.Fatalf("payment before window should stay pending, got %s", current.Status)
	}
}

func TestSweepOverduePayments(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-SWEEP-1", constants.TransactionStatusPendingPayment)
	overdue := time.Now().Add(-time.Minute)

	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.ExpiresAt = &overdue
	})
	createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.ExpiresAt = &overdue
		p.Confirmations = 1
	})
	createServiceTestPayment(t, db, transaction.ID, nil)

	closed, err := svc.SweepOverduePayments(time.Now())
	if err != nil {
		t.Fatalf("sweep failed: %v", err)
	}
	if closed != 2 {
		t.Fatalf("sweep closed want 2 got %d", closed)
	}

	var open int64
	if err := db.Model(&models.Payment{}).
		Where("status = ?", constants.PaymentStatusPending).
		Count(&open).Error; err != nil {
		t.Fatalf("count open payments failed: %v", err)
	}
	if open != 1 {
		t.Fatalf("open payments want 1 got %d", open)
	}
}

func TestGetPaymentByReference(t *testing.T) {
	svc, db := setupPaymentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-REF-1", constants.TransactionStatusPendingPayment)
	payment := createServiceTestPayment(t, db, transaction.ID, func(p *models.Payment) {
		p.Address = "1ReferenceAddr"
		p.TxHash = "hash-ref-1"
	})

	byHash, err := svc.GetPaymentByReference("hash-ref-1")
	if err != nil {
		t.Fatalf("get by tx hash failed: %v", err)
	}
	if byHash.ID != payment.ID {
		t.Fatalf("by hash want payment %d got %d", payment.ID, byHash.ID)
	}

	byAddress, err := svc.GetPaymentByReference("1ReferenceAddr")
	if err != nil {
		t.Fatalf("get by address failed: %v", err)
	}
	if byAddress.ID != payment.ID {
		t.Fatalf("by address want payment %d got %d", payment.ID, byAddress.ID)
	}

	_, err = svc.GetPaymentByReference("missing")
	if !errors.Is(err, ErrPaymentNotFound) {
		t.Fatalf("want ErrPaymentNotFound got %v", err)
	}
}
