package main

import (
	"fmt"
	"time"

	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/models"

	"github.com/shopspring/decimal"
)

func main() {
	// 连接数据库
	cfg := config.Load()
	logger.Init(cfg.Server.Mode, cfg.Log.ToLoggerOptions())
	stdLog := logger.StdLogger()
	if err := models.InitDB(cfg.Database.Driver, cfg.Database.DSN, models.DBPoolConfig{
		MaxOpenConns:           cfg.Database.Pool.MaxOpenConns,
		MaxIdleConns:           cfg.Database.Pool.MaxIdleConns,
		ConnMaxLifetimeSeconds: cfg.Database.Pool.ConnMaxLifetimeSeconds,
		ConnMaxIdleTimeSeconds: cfg.Database.Pool.ConnMaxIdleTimeSeconds,
	}); err != nil {
		stdLog.Fatalf("Failed to connect database: %v", err)
	}

	// 自动迁移
	if err := models.AutoMigrate(); err != nil {
		stdLog.Fatalf("Failed to migrate database: %v", err)
	}

	// 默认管理员
	if err := models.InitDefaultAdmin("", ""); err != nil {
		stdLog.Printf("Failed to init default admin: %v", err)
	}

	now := time.Now()
	paidAt := now.Add(-40 * time.Minute)
	completedAt := now.Add(-38 * time.Minute)
	pendingCreated := now.Add(-5 * time.Minute)
	expiredCreated := now.Add(-3 * time.Hour)

	// 演示交易：一笔已完成、一笔待支付、一笔支付过期
	transactions := []models.Transaction{
		{
			Reference:     "PS-20260901-DEMO01",
			ServiceType:   constants.ServiceTypeAirtime,
			Provider:      "mtn",
			TargetAccount: "08031234567",
			CustomerEmail: "demo@paysats.dev",
			AmountFiat:    models.NewMoneyFromDecimal(decimal.NewFromInt(1000)),
			Currency:      constants.SiteCurrencyDefault,
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00210000")),
			Rate:          models.NewMoneyFromDecimal(decimal.NewFromInt(476190)),
			Status:        constants.TransactionStatusCompleted,
			PaidAt:        &paidAt,
			CompletedAt:   &completedAt,
		},
		{
			Reference:     "PS-20260901-DEMO02",
			ServiceType:   constants.ServiceTypeData,
			Provider:      "airtel",
			TargetAccount: "08097654321",
			ProductCode:   "airtel-2gb-30d",
			AmountFiat:    models.NewMoneyFromDecimal(decimal.NewFromInt(1500)),
			Currency:      constants.SiteCurrencyDefault,
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00315000")),
			Rate:          models.NewMoneyFromDecimal(decimal.NewFromInt(476190)),
			Status:        constants.TransactionStatusPendingPayment,
			CreatedAt:     pendingCreated,
		},
		{
			Reference:     "PS-20260901-DEMO03",
			ServiceType:   constants.ServiceTypeCableTV,
			Provider:      "dstv",
			TargetAccount: "7023456789",
			ProductCode:   "dstv-compact",
			AmountFiat:    models.NewMoneyFromDecimal(decimal.NewFromInt(12500)),
			Currency:      constants.SiteCurrencyDefault,
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.02625000")),
			Rate:          models.NewMoneyFromDecimal(decimal.NewFromInt(476190)),
			Status:        constants.TransactionStatusPendingPayment,
			CreatedAt:     expiredCreated,
		},
	}

	refToID := map[string]uint{}
	for _, txn := range transactions {
		var existing models.Transaction
		if err := models.DB.Where("reference = ?", txn.Reference).First(&existing).Error; err != nil {
			if err := models.DB.Create(&txn).Error; err != nil {
				stdLog.Printf("Failed to create transaction %s: %v", txn.Reference, err)
				continue
			}
			stdLog.Printf("Created transaction: %s", txn.Reference)
			refToID[txn.Reference] = txn.ID
		} else {
			stdLog.Printf("Transaction already exists: %s", txn.Reference)
			refToID[txn.Reference] = existing.ID
		}
	}

	confirmedAt := now.Add(-40 * time.Minute)
	expiredExpiry := expiredCreated.Add(30 * time.Minute)
	expiredClosed := expiredExpiry.Add(time.Minute)
	pendingExpiry := pendingCreated.Add(30 * time.Minute)

	// 演示支付台账：确认到账、等待支付、超窗过期各一条
	payments := []models.Payment{
		{
			TransactionID: refToID["PS-20260901-DEMO01"],
			Blockchain:    constants.BlockchainBCH,
			Address:       "bitcoincash:qq0de0demo1seedaddressxxxxxxxxxxxxxxxxxxxx",
			TxHash:        "9b1f0c7d5e8a4b2c6d3f1a0e9c8b7a6d5e4f3c2b1a0d9e8f7c6b5a4d3e2f1c0b",
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00210000")),
			AmountSats:    210000,
			Confirmations: 3,
			Status:        constants.PaymentStatusConfirmed,
			ConfirmedAt:   &confirmedAt,
		},
		{
			TransactionID: refToID["PS-20260901-DEMO02"],
			Blockchain:    constants.BlockchainBCH,
			Address:       "bitcoincash:qq0de0demo2seedaddressxxxxxxxxxxxxxxxxxxxx",
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.00315000")),
			AmountSats:    315000,
			Status:        constants.PaymentStatusPending,
			ExpiresAt:     &pendingExpiry,
		},
		{
			TransactionID: refToID["PS-20260901-DEMO03"],
			Blockchain:    constants.BlockchainBCH,
			Address:       "bitcoincash:qq0de0demo3seedaddressxxxxxxxxxxxxxxxxxxxx",
			AmountBCH:     models.NewBCHAmountFromDecimal(decimal.RequireFromString("0.02625000")),
			AmountSats:    2625000,
			Status:        constants.PaymentStatusExpired,
			FailureReason: "expiry_window_elapsed",
			ExpiresAt:     &expiredExpiry,
			ClosedAt:      &expiredClosed,
		},
	}

	for _, payment := range payments {
		if payment.TransactionID == 0 {
			stdLog.Printf("Skip payment for %s: transaction missing", payment.Address)
			continue
		}
		var existing models.Payment
		if err := models.DB.Where("address = ?", payment.Address).First(&existing).Error; err != nil {
			if err := models.DB.Create(&payment).Error; err != nil {
				stdLog.Printf("Failed to create payment %s: %v", payment.Address, err)
			} else {
				stdLog.Printf("Created payment: %s (%s)", payment.Address, payment.Status)
			}
		} else {
			stdLog.Printf("Payment already exists: %s", payment.Address)
		}
	}

	// 已完成交易的交付记录
	if txnID := refToID["PS-20260901-DEMO01"]; txnID != 0 {
		deliveredAt := completedAt
		var existing models.Fulfillment
		if err := models.DB.Where("transaction_id = ?", txnID).First(&existing).Error; err != nil {
			fulfillment := models.Fulfillment{
				TransactionID: txnID,
				Status:        constants.FulfillmentStatusDelivered,
				Attempts:      1,
				ProviderRef:   "VTU-SEED-000001",
				ProviderReply: models.JSON(map[string]interface{}{
					"status":  "success",
					"message": "airtime delivered",
				}),
				DeliveredAt: &deliveredAt,
			}
			if err := models.DB.Create(&fulfillment).Error; err != nil {
				stdLog.Printf("Failed to create fulfillment: %v", err)
			} else {
				stdLog.Println("Created fulfillment for PS-20260901-DEMO01")
			}
		} else {
			stdLog.Println("Fulfillment already exists for PS-20260901-DEMO01")
		}
	}

	// 更新网站配置
	configData := map[string]interface{}{
		constants.SettingFieldSiteCurrency: constants.SiteCurrencyDefault,
		constants.SettingFieldSupportContact: map[string]string{
			"telegram": "https://t.me/paysats",
			"whatsapp": "https://wa.me/2348000000000",
		},
	}

	var setting models.Setting
	if err := models.DB.Where("key = ?", constants.SettingKeySiteConfig).First(&setting).Error; err != nil {
		setting = models.Setting{
			Key:       constants.SettingKeySiteConfig,
			ValueJSON: models.JSON(configData),
		}
		if err := models.DB.Create(&setting).Error; err != nil {
			stdLog.Printf("Failed to create setting: %v", err)
		} else {
			stdLog.Println("Created site config")
		}
	} else {
		setting.ValueJSON = models.JSON(configData)
		if err := models.DB.Save(&setting).Error; err != nil {
			stdLog.Printf("Failed to update setting: %v", err)
		} else {
			stdLog.Println("Updated site config")
		}
	}

	fmt.Println("\n✅ Demo data created successfully!")
	fmt.Println("Summary:")
	fmt.Println("- 1 Default admin")
	fmt.Println("- 3 Transactions (completed / pending_payment / expired payment)")
	fmt.Println("- 3 Payments (confirmed / pending / expired)")
	fmt.Println("- 1 Fulfillment (delivered)")
	fmt.Println("- Site configuration")
}
