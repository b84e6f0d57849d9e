//go:build integration
// +build integration

package repository

import (
	"os"
	"strings"
	"testing"
	"time"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// setupPostgresIntegrationDB 初始化 PostgreSQL 集成测试数据库。
func setupPostgresIntegrationDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := strings.TrimSpace(os.Getenv("TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("skip postgres integration test: TEST_POSTGRES_DSN is empty")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open postgres failed: %v", err)
	}

	cleanupModels := []interface{}{
		&models.Fulfillment{},
		&models.Payment{},
		&models.Transaction{},
	}
	_ = db.Migrator().DropTable(cleanupModels...)

	if err := db.AutoMigrate(
		&models.Transaction{},
		&models.Payment{},
		&models.Fulfillment{},
	); err != nil {
		t.Fatalf("migrate postgres models failed: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Migrator().DropTable(cleanupModels...)
		sqlDB, err := db.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})

	return db
}

func TestPostgresPaymentRowLocking(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewPaymentRepository(db)
	now := time.Now().UTC().Truncate(time.Second)

	transaction := &models.Transaction{
		Reference:     "PG-TXN-001",
		ServiceType:   constants.ServiceTypeAirtime,
		Provider:      "mtn",
		TargetAccount: "08030000001",
		AmountFiat:    models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
		Currency:      "NGN",
		AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00210000")),
		Rate:          models.NewMoneyFromDecimal(decimal.NewFromInt(476190)),
		Status:        constants.TransactionStatusPendingPayment,
		CreatedAt:     now,
	}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}

	payment := &models.Payment{
		TransactionID: transaction.ID,
		Blockchain:    constants.BlockchainBCH,
		Address:       "bitcoincash:qqpgintegration001",
		AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00210000")),
		AmountSats:    210000,
		Status:        constants.PaymentStatusPending,
		CreatedAt:     now,
	}
	if err := repo.Create(payment); err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	err := db.Transaction(func(tx *gorm.DB) error {
		locked, err := repo.WithTx(tx).GetByIDForUpdate(payment.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			t.Fatalf("locked payment should exist")
		}
		locked.Confirmations = 1
		return repo.WithTx(tx).Update(locked)
	})
	if err != nil {
		t.Fatalf("locked update failed: %v", err)
	}

	got, err := repo.GetByID(payment.ID)
	if err != nil {
		t.Fatalf("get payment failed: %v", err)
	}
	if got.Confirmations != 1 {
		t.Fatalf("confirmations want 1 got %d", got.Confirmations)
	}
}

func TestPostgresDashboardQueries(t *testing.T) {
	db := setupPostgresIntegrationDB(t)
	repo := NewDashboardRepository(db)
	now := time.Now().UTC().Truncate(time.Second)
	paidAt := now

	transaction := &models.Transaction{
		Reference:     "PG-DASH-001",
		ServiceType:   constants.ServiceTypeData,
		Provider:      "airtel",
		TargetAccount: "08030000002",
		AmountFiat:    models.NewMoneyFromDecimal(decimal.NewFromInt(1500)),
		Currency:      "NGN",
		AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00315000")),
		Rate:          models.NewMoneyFromDecimal(decimal.NewFromInt(476190)),
		Status:        constants.TransactionStatusPaid,
		PaidAt:        &paidAt,
		CreatedAt:     now,
	}
	if err := db.Create(transaction).Error; err != nil {
		t.Fatalf("create transaction failed: %v", err)
	}

	confirmedAt := now
	payment := &models.Payment{
		TransactionID: transaction.ID,
		Blockchain:    constants.BlockchainBCH,
		Address:       "bitcoincash:qqpgdash001",
		TxHash:        "pg-dash-hash-001",
		AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00315000")),
		AmountSats:    315000,
		Confirmations: 2,
		Status:        constants.PaymentStatusConfirmed,
		ConfirmedAt:   &confirmedAt,
		CreatedAt:     now,
	}
	if err := db.Create(payment).Error; err != nil {
		t.Fatalf("create payment failed: %v", err)
	}

	startAt := now.Add(-time.Hour)
	endAt := now.Add(time.Hour)

	overview, err := repo.GetOverview(startAt, endAt)
	if err != nil {
		t.Fatalf("get overview failed: %v", err)
	}
	if overview.TransactionsTotal != 1 {
		t.Fatalf("transactions total want 1 got %d", overview.TransactionsTotal)
	}
	if overview.PaymentsConfirmed != 1 {
		t.Fatalf("payments confirmed want 1 got %d", overview.PaymentsConfirmed)
	}
	if overview.SettledSats != 315000 {
		t.Fatalf("settled sats want 315000 got %d", overview.SettledSats)
	}

	txnTrends, err := repo.GetTransactionTrends(startAt, endAt)
	if err != nil {
		t.Fatalf("get transaction trends failed: %v", err)
	}
	if len(txnTrends) == 0 {
		t.Fatalf("transaction trends should not be empty")
	}
	if strings.TrimSpace(txnTrends[0].Day) == "" {
		t.Fatalf("transaction trend day should not be empty")
	}

	paymentTrends, err := repo.GetPaymentTrends(startAt, endAt)
	if err != nil {
		t.Fatalf("get payment trends failed: %v", err)
	}
	if len(paymentTrends) == 0 {
		t.Fatalf("payment trends should not be empty")
	}
	if strings.TrimSpace(paymentTrends[0].Day) == "" {
		t.Fatalf("payment trend day should not be empty")
	}

	topServices, err := repo.GetTopServices(startAt, endAt, 5)
	if err != nil {
		t.Fatalf("get top services failed: %v", err)
	}
	if len(topServices) != 1 {
		t.Fatalf("top services len want 1 got %d", len(topServices))
	}
	if topServices[0].ServiceType != constants.ServiceTypeData {
		t.Fatalf("top service want data got %s", topServices[0].ServiceType)
	}
}
