package repository

import (
	"fmt"
	"testing"
	"time"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupPaymentRepositoryTest(t *testing.T) (*GormPaymentRepository, *gorm.DB) {
	t.Helper()
	dsn := fmt.Sprintf("file:payment_repo_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("auto migrate failed: %v", err)
	}
	return NewPaymentRepository(db), db
}

func createTestPayment(t *testing.T, db *gorm.DB, transactionID uint, status string, mutate func(*models.Payment)) models.Payment {
	t.Helper()
	payment := models.Payment{
		TransactionID: transactionID,
		Blockchain:    constants.BlockchainBCH,
		Address:       fmt.Sprintf("bitcoincash:qqtest%d%d", transactionID, time.Now().UnixNano()),
		AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00200000")),
		AmountSats:    200000,
		Status:        status,
	}
	if mutate != nil {
		mutate(&payment)
	}
	if err := db.Create(&payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}
	return payment
}

func TestPaymentRepositoryGetActiveByTransaction(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	closedAt := time.Now()
	createTestPayment(t, db, 7, constants.PaymentStatusExpired, func(p *models.Payment) {
		p.ClosedAt = &closedAt
	})
	active := createTestPayment(t, db, 7, constants.PaymentStatusPending, nil)
	createTestPayment(t, db, 8, constants.PaymentStatusPending, nil)

	got, err := repo.GetActiveByTransaction(7)
	if err != nil {
		t.Fatalf("get active failed: %v", err)
	}
	if got == nil || got.ID != active.ID {
		t.Fatalf("active payment mismatch, want id=%d got %+v", active.ID, got)
	}

	got, err = repo.GetActiveByTransaction(99)
	if err != nil {
		t.Fatalf("get active for missing transaction failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for transaction without active payment, got id=%d", got.ID)
	}
}

func TestPaymentRepositoryGetLatestByTxHash(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	first := createTestPayment(t, db, 1, constants.PaymentStatusFailed, func(p *models.Payment) {
		p.TxHash = "hash-shared"
	})
	second := createTestPayment(t, db, 1, constants.PaymentStatusPending, func(p *models.Payment) {
		p.TxHash = "hash-shared"
	})

	got, err := repo.GetLatestByTxHash("hash-shared")
	if err != nil {
		t.Fatalf("get latest by tx hash failed: %v", err)
	}
	if got == nil || got.ID != second.ID {
		t.Fatalf("want latest id=%d got %+v (first=%d)", second.ID, got, first.ID)
	}

	got, err = repo.GetLatestByTxHash("")
	if err != nil {
		t.Fatalf("empty tx hash lookup failed: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for empty tx hash, got id=%d", got.ID)
	}
}

func TestPaymentRepositoryListOverdueOpenIDs(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)
	now := time.Now()
	past := now.Add(-10 * time.Minute)
	future := now.Add(10 * time.Minute)

	overdue := createTestPayment(t, db, 1, constants.PaymentStatusPending, func(p *models.Payment) {
		p.ExpiresAt = &past
	})
	createTestPayment(t, db, 2, constants.PaymentStatusPending, func(p *models.Payment) {
		p.ExpiresAt = &future
	})
	createTestPayment(t, db, 3, constants.PaymentStatusExpired, func(p *models.Payment) {
		p.ExpiresAt = &past
	})
	createTestPayment(t, db, 4, constants.PaymentStatusPending, nil)

	ids, err := repo.ListOverdueOpenIDs(now, 10)
	if err != nil {
		t.Fatalf("list overdue failed: %v", err)
	}
	if len(ids) != 1 || ids[0] != overdue.ID {
		t.Fatalf("want [%d] got %v", overdue.ID, ids)
	}
}

func TestPaymentRepositoryListAdminFilters(t *testing.T) {
	repo, db := setupPaymentRepositoryTest(t)

	createTestPayment(t, db, 11, constants.PaymentStatusPending, nil)
	confirmed := createTestPayment(t, db, 11, constants.PaymentStatusConfirmed, func(p *models.Payment) {
		p.TxHash = "hash-confirmed"
	})
	createTestPayment(t, db, 12, constants.PaymentStatusConfirmed, nil)

	rows, total, err := repo.ListAdmin(PaymentListFilter{
		Page:          1,
		PageSize:      10,
		TransactionID: 11,
		Status:        constants.PaymentStatusConfirmed,
	})
	if err != nil {
		t.Fatalf("list admin failed: %v", err)
	}
	if total != 1 {
		t.Fatalf("total want 1 got %d", total)
	}
	if len(rows) != 1 || rows[0].ID != confirmed.ID {
		t.Fatalf("want payment id=%d got %+v", confirmed.ID, rows)
	}

	rows, total, err = repo.ListAdmin(PaymentListFilter{
		Page:     1,
		PageSize: 10,
		TxHash:   "hash-confirmed",
	})
	if err != nil {
		t.Fatalf("list admin by tx hash failed: %v", err)
	}
	if total != 1 || len(rows) != 1 || rows[0].ID != confirmed.ID {
		t.Fatalf("tx hash filter mismatch: total=%d rows=%+v", total, rows)
	}
}
