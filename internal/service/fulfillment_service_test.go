package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type vtuTestUpstream struct {
	server   *httptest.Server
	requests int64
	respond  func(w http.ResponseWriter)
}

func newVTUTestUpstream(t *testing.T) *vtuTestUpstream {
	t.Helper()
	upstream := &vtuTestUpstream{}
	upstream.respond = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"success","data":{"provider_ref":"VTU-TEST-0001"}}`)
	}
	upstream.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&upstream.requests, 1)
		upstream.respond(w)
	}))
	t.Cleanup(upstream.server.Close)
	return upstream
}

func (u *vtuTestUpstream) requestCount() int64 {
	return atomic.LoadInt64(&u.requests)
}

func setupFulfillmentServiceTest(t *testing.T) (*FulfillmentService, *vtuTestUpstream, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:fulfillment_service_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Payment{},
		&models.Fulfillment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	models.DB = db

	upstream := newVTUTestUpstream(t)
	cfg := &config.Config{
		VTU: config.VTUConfig{
			BaseURL:     upstream.server.URL,
			APIKey:      "test-api-key",
			MaxAttempts: 2,
		},
	}
	svc := NewFulfillmentService(
		cfg,
		repository.NewTransactionRepository(db),
		repository.NewFulfillmentRepository(db),
		nil,
	)
	return svc, upstream, db
}

func TestDispatchDeliversAndCompletesTransaction(t *testing.T) {
	svc, upstream, db := setupFulfillmentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-FULFILL-1", constants.TransactionStatusPaid)

	fulfillment, err := svc.Dispatch(context.Background(), transaction.ID)
	if err != nil {
		t.Fatalf("dispatch failed: %v", err)
	}
	if fulfillment.Status != constants.FulfillmentStatusDelivered {
		t.Fatalf("status want delivered got %s", fulfillment.Status)
	}
	if fulfillment.ProviderRef != "VTU-TEST-0001" {
		t.Fatalf("provider ref want VTU-TEST-0001 got %s", fulfillment.ProviderRef)
	}
	if fulfillment.Attempts != 1 {
		t.Fatalf("attempts want 1 got %d", fulfillment.Attempts)
	}
	if fulfillment.DeliveredAt == nil {
		t.Fatalf("expected delivered_at set")
	}

	var reloaded models.Transaction
	if err := db.First(&reloaded, transaction.ID).Error; err != nil {
		t.Fatalf("reload transaction failed: %v", err)
	}
	if reloaded.Status != constants.TransactionStatusCompleted {
		t.Fatalf("transaction status want completed got %s", reloaded.Status)
	}
	if reloaded.CompletedAt == nil {
		t.Fatalf("expected completed_at set")
	}

	// 重复投递：已交付记录直接返回，不再请求上游
	before := upstream.requestCount()
	again, err := svc.Dispatch(context.Background(), transaction.ID)
	if err != nil {
		t.Fatalf("repeat dispatch failed: %v", err)
	}
	if again.Status != constants.FulfillmentStatusDelivered {
		t.Fatalf("repeat dispatch status want delivered got %s", again.Status)
	}
	if upstream.requestCount() != before {
		t.Fatalf("repeat dispatch should not call upstream")
	}
}

func TestDispatchRejectsUnpaidTransaction(t *testing.T) {
	svc, _, db := setupFulfillmentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-FULFILL-2", constants.TransactionStatusPendingPayment)

	_, err := svc.Dispatch(context.Background(), transaction.ID)
	if !errors.Is(err, ErrTransactionStateInvalid) {
		t.Fatalf("want ErrTransactionStateInvalid got %v", err)
	}

	_, err = svc.Dispatch(context.Background(), 9999)
	if !errors.Is(err, ErrTransactionNotFound) {
		t.Fatalf("want ErrTransactionNotFound got %v", err)
	}
}

func TestDispatchMarksFailedAfterMaxAttempts(t *testing.T) {
	svc, upstream, db := setupFulfillmentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-FULFILL-3", constants.TransactionStatusPaid)
	upstream.respond = func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"failed","message":"insufficient upstream balance"}`)
	}

	fulfillment, err := svc.Dispatch(context.Background(), transaction.ID)
	if err == nil {
		t.Fatalf("expected delivery error on first attempt")
	}
	if fulfillment.Status != constants.FulfillmentStatusPending {
		t.Fatalf("first failure should keep pending, got %s", fulfillment.Status)
	}
	if fulfillment.LastError == "" {
		t.Fatalf("expected last_error recorded")
	}

	fulfillment, err = svc.Dispatch(context.Background(), transaction.ID)
	if err == nil {
		t.Fatalf("expected delivery error on second attempt")
	}
	if fulfillment.Status != constants.FulfillmentStatusFailed {
		t.Fatalf("max attempts reached should mark failed, got %s", fulfillment.Status)
	}
	if fulfillment.Attempts != 2 {
		t.Fatalf("attempts want 2 got %d", fulfillment.Attempts)
	}
}

func TestRefulfillResetsFailedRecord(t *testing.T) {
	svc, _, db := setupFulfillmentServiceTest(t)
	transaction := createServiceTestTransaction(t, db, "PS-FULFILL-4", constants.TransactionStatusFulfilling)

	_, err := svc.Refulfill(transaction.ID)
	if !errors.Is(err, ErrFulfillmentNotFound) {
		t.Fatalf("missing record want ErrFulfillmentNotFound got %v", err)
	}

	record := &models.Fulfillment{
		TransactionID: transaction.ID,
		Status:        constants.FulfillmentStatusFailed,
		Attempts:      2,
		LastError:     "insufficient upstream balance",
	}
	if err := db.Create(record).Error; err != nil {
		t.Fatalf("create fulfillment failed: %v", err)
	}

	reset, err := svc.Refulfill(transaction.ID)
	if err != nil {
		t.Fatalf("refulfill failed: %v", err)
	}
	if reset.Status != constants.FulfillmentStatusPending {
		t.Fatalf("status want pending got %s", reset.Status)
	}
	if reset.Attempts != 0 || reset.LastError != "" {
		t.Fatalf("refulfill should reset attempts and last_error, got attempts=%d err=%q", reset.Attempts, reset.LastError)
	}

	// 非失败记录不允许重新入队
	_, err = svc.Refulfill(transaction.ID)
	if !errors.Is(err, ErrFulfillmentStateInvalid) {
		t.Fatalf("want ErrFulfillmentStateInvalid got %v", err)
	}
}
