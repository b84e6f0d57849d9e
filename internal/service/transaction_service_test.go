package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
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

func newRatesTestServer(t *testing.T, rate string) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/v1/ticker") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"base":"BCH","quote":"%s","rate":"%s","timestamp":%d}`,
			r.URL.Query().Get("quote"), rate, time.Now().Unix())
	}))
	t.Cleanup(server.Close)
	return server
}

func setupTransactionServiceTest(t *testing.T, rate string) (*TransactionService, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:transaction_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Payment{},
		&models.Fulfillment{},
		&models.Setting{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	server := newRatesTestServer(t, rate)
	cfg := &config.Config{
		Payment: config.PaymentConfig{
			ConfirmationThreshold: 1,
			ExpireMinutes:         30,
		},
		Rates: config.RatesConfig{
			BaseURL: server.URL,
		},
		Site: config.SiteConfig{
			Currency: "NGN",
		},
	}

	wallet, err := bch.NewWallet(testXpub, constants.BCHNetworkMainnet)
	if err != nil {
		t.Fatalf("new wallet failed: %v", err)
	}
	transactionRepo := repository.NewTransactionRepository(db)
	paymentService := NewPaymentService(
		cfg,
		transactionRepo,
		repository.NewPaymentRepository(db),
		repository.NewSettingRepository(db),
		wallet,
		nil,
	)
	return NewTransactionService(cfg, transactionRepo, paymentService, NewRateService(cfg)), db
}

func TestCreateTransactionLocksRateAndOpensPayment(t *testing.T) {
	svc, _ := setupTransactionServiceTest(t, "500000.00")

	transaction, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{
		ServiceType:   "Airtime",
		Provider:      "MTN",
		TargetAccount: "+2348010000001",
		AmountFiat:    "5000",
		ClientIP:      "127.0.0.1",
	})
	if err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}

	if transaction.Status != constants.TransactionStatusPendingPayment {
		t.Fatalf("status want pending_payment got %s", transaction.Status)
	}
	if !strings.HasPrefix(transaction.Reference, "PS") {
		t.Fatalf("reference want PS prefix got %s", transaction.Reference)
	}
	if transaction.ServiceType != constants.ServiceTypeAirtime || transaction.Provider != "mtn" {
		t.Fatalf("input should be normalized, got %s/%s", transaction.ServiceType, transaction.Provider)
	}
	if transaction.Currency != "NGN" {
		t.Fatalf("currency want NGN got %s", transaction.Currency)
	}
	// 5000 NGN / 500000 NGN/BCH = 0.01 BCH
	if transaction.AmountBCH.Sats() != 1_000_000 {
		t.Fatalf("amount sats want 1000000 got %d", transaction.AmountBCH.Sats())
	}
	if len(transaction.Payments) != 1 {
		t.Fatalf("expected one opened payment, got %d", len(transaction.Payments))
	}
	if transaction.Payments[0].AmountSats != transaction.AmountBCH.Sats() {
		t.Fatalf("payment sats should match locked amount")
	}
}

func TestCreateTransactionValidation(t *testing.T) {
	svc, _ := setupTransactionServiceTest(t, "500000.00")
	ctx := context.Background()

	_, err := svc.CreateTransaction(ctx, CreateTransactionInput{
		ServiceType:   "betting",
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		AmountFiat:    "1000",
	})
	if !errors.Is(err, ErrServiceTypeInvalid) {
		t.Fatalf("want ErrServiceTypeInvalid got %v", err)
	}

	// 流量类必须携带套餐编码
	_, err = svc.CreateTransaction(ctx, CreateTransactionInput{
		ServiceType:   constants.ServiceTypeData,
		Provider:      "airtel",
		TargetAccount: "+2348010000001",
		AmountFiat:    "1000",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("data without product code want ErrValidation got %v", err)
	}

	_, err = svc.CreateTransaction(ctx, CreateTransactionInput{
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		CustomerEmail: "not-an-email",
		AmountFiat:    "1000",
	})
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("bad email want ErrValidation got %v", err)
	}

	_, err = svc.CreateTransaction(ctx, CreateTransactionInput{
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		AmountFiat:    "-10",
	})
	if !errors.Is(err, ErrAmountInvalid) {
		t.Fatalf("negative amount want ErrAmountInvalid got %v", err)
	}
}

func TestCreateTransactionCancelsWhenPaymentFails(t *testing.T) {
	svc, db := setupTransactionServiceTest(t, "500000.00")
	// 无钱包时无法派生收款地址，首条支付记录创建失败
	svc.paymentService.wallet = nil

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		AmountFiat:    "5000",
	})
	if !errors.Is(err, ErrAddressInvalid) {
		t.Fatalf("want ErrAddressInvalid got %v", err)
	}

	var canceled int64
	if err := db.Model(&models.Transaction{}).
		Where("status = ?", constants.TransactionStatusCanceled).
		Count(&canceled).Error; err != nil {
		t.Fatalf("count canceled transactions failed: %v", err)
	}
	if canceled != 1 {
		t.Fatalf("failed payment should cancel transaction, canceled=%d", canceled)
	}
}

func TestCreateTransactionRateUnavailable(t *testing.T) {
	svc, _ := setupTransactionServiceTest(t, "500000.00")
	svc.cfg.Rates.BaseURL = "http://127.0.0.1:1"

	_, err := svc.CreateTransaction(context.Background(), CreateTransactionInput{
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "+2348010000001",
		AmountFiat:    "5000",
	})
	if !errors.Is(err, ErrRateUnavailable) {
		t.Fatalf("want ErrRateUnavailable got %v", err)
	}
}

func TestGetTransactionByReference(t *testing.T) {
	svc, db := setupTransactionServiceTest(t, "500000.00")
	created := createServiceTestTransaction(t, db, "PS-GETREF-1", constants.TransactionStatusPendingPayment)

	found, err := svc.GetByReference(" PS-GETREF-1 ")
	if err != nil {
		t.Fatalf("get by reference failed: %v", err)
	}
	if found.ID != created.ID {
		t.Fatalf("want transaction %d got %d", created.ID, found.ID)
	}

	_, err = svc.GetByReference("PS-MISSING")
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("want ErrTransactionNotFound got %v", err)
	}

	_, err = svc.GetByReference("  ")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("blank reference want ErrValidation got %v", err)
	}
}

func TestTransactionStatusTransitions(t *testing.T) {
	cases := []struct {
		from  string
		to    string
		allow bool
	}{
		{constants.TransactionStatusPendingPayment, constants.TransactionStatusPaid, true},
		{constants.TransactionStatusPendingPayment, constants.TransactionStatusCanceled, true},
		{constants.TransactionStatusPaid, constants.TransactionStatusFulfilling, true},
		{constants.TransactionStatusFulfilling, constants.TransactionStatusCompleted, true},
		{constants.TransactionStatusCompleted, constants.TransactionStatusPendingPayment, false},
		{constants.TransactionStatusCanceled, constants.TransactionStatusPaid, false},
		{constants.TransactionStatusPaid, constants.TransactionStatusPaid, true},
	}
	for _, item := range cases {
		if got := isTransitionAllowed(item.from, item.to); got != item.allow {
			t.Fatalf("transition %s -> %s want %v got %v", item.from, item.to, item.allow, got)
		}
	}
}
