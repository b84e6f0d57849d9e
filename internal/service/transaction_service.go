package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"net/mail"
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/repository"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// TransactionService 账单交易服务
type TransactionService struct {
	cfg             *config.Config
	transactionRepo repository.TransactionRepository
	paymentService  *PaymentService
	rateService     *RateService
}

// NewTransactionService 创建交易服务
func NewTransactionService(cfg *config.Config, transactionRepo repository.TransactionRepository, paymentService *PaymentService, rateService *RateService) *TransactionService {
	return &TransactionService{
		cfg:             cfg,
		transactionRepo: transactionRepo,
		paymentService:  paymentService,
		rateService:     rateService,
	}
}

func transactionLogger(kv ...interface{}) *zap.SugaredLogger {
	return logger.SW().With(kv...)
}

var transactionTransitions = map[string]map[string]bool{
	constants.TransactionStatusPendingPayment: {
		constants.TransactionStatusPaid:     true,
		constants.TransactionStatusCanceled: true,
	},
	constants.TransactionStatusPaid: {
		constants.TransactionStatusFulfilling: true,
		constants.TransactionStatusCompleted:  true,
	},
	constants.TransactionStatusFulfilling: {
		constants.TransactionStatusCompleted: true,
	},
}

func isTransitionAllowed(current, target string) bool {
	if current == target {
		return true
	}
	nexts, ok := transactionTransitions[current]
	if !ok {
		return false
	}
	return nexts[target]
}

var validServiceTypes = map[string]bool{
	constants.ServiceTypeAirtime:     true,
	constants.ServiceTypeData:        true,
	constants.ServiceTypeCableTV:     true,
	constants.ServiceTypeElectricity: true,
}

// CreateTransactionInput 创建交易请求
type CreateTransactionInput struct {
	ServiceType   string
	Provider      string
	TargetAccount string
	ProductCode   string
	CustomerEmail string
	AmountFiat    string
	ClientIP      string
}

func (input *CreateTransactionInput) normalize() error {
	input.ServiceType = strings.ToLower(strings.TrimSpace(input.ServiceType))
	if !validServiceTypes[input.ServiceType] {
		return ErrServiceTypeInvalid
	}
	input.Provider = strings.ToLower(strings.TrimSpace(input.Provider))
	input.TargetAccount = strings.TrimSpace(input.TargetAccount)
	input.ProductCode = strings.TrimSpace(input.ProductCode)
	if input.Provider == "" || input.TargetAccount == "" {
		return ErrValidation
	}
	// 流量与有线电视必须指定套餐编码
	if input.ProductCode == "" &&
		(input.ServiceType == constants.ServiceTypeData || input.ServiceType == constants.ServiceTypeCableTV) {
		return ErrValidation
	}
	input.CustomerEmail = strings.ToLower(strings.TrimSpace(input.CustomerEmail))
	if input.CustomerEmail != "" {
		if _, err := mail.ParseAddress(input.CustomerEmail); err != nil {
			return ErrValidation
		}
	}
	return nil
}

// CreateTransaction 创建交易：锁定当前汇率换算 BCH 应付金额，并开出首条支付记录。
// 支付记录创建失败时交易立即取消，避免留下无法支付的挂单。
func (s *TransactionService) CreateTransaction(ctx context.Context, input CreateTransactionInput) (*models.Transaction, error) {
	if err := (&input).normalize(); err != nil {
		return nil, err
	}

	amountRaw, err := decimal.NewFromString(strings.TrimSpace(input.AmountFiat))
	if err != nil || amountRaw.Sign() <= 0 {
		return nil, ErrAmountInvalid
	}
	amountFiat := models.NewMoneyFromDecimal(amountRaw)

	rate, currency, err := s.rateService.CurrentRate(ctx)
	if err != nil {
		return nil, err
	}

	amountBCH := models.NewBCHAmountFromDecimal(amountFiat.Decimal.DivRound(rate, 8))
	if amountBCH.Sats() <= 0 {
		return nil, ErrAmountInvalid
	}

	transaction := &models.Transaction{
		Reference:     generateReference(),
		ServiceType:   input.ServiceType,
		Provider:      input.Provider,
		TargetAccount: input.TargetAccount,
		ProductCode:   input.ProductCode,
		CustomerEmail: input.CustomerEmail,
		AmountFiat:    amountFiat,
		Currency:      currency,
		AmountBCH:     amountBCH,
		Rate:          models.NewMoneyFromDecimal(rate),
		Status:        constants.TransactionStatusPendingPayment,
		ClientIP:      input.ClientIP,
	}
	if err := s.transactionRepo.Create(transaction); err != nil {
		return nil, err
	}

	log := transactionLogger(
		"transaction_id", transaction.ID,
		"reference", transaction.Reference,
		"service_type", transaction.ServiceType,
		"provider", transaction.Provider,
	)

	payment, err := s.paymentService.CreatePayment(CreatePaymentInput{
		TransactionID: transaction.ID,
		AmountBCH:     amountBCH,
	})
	if err != nil {
		log.Errorw("transaction_initial_payment_failed", "error", err)
		if cancelErr := s.cancelTransaction(transaction.ID); cancelErr != nil {
			log.Errorw("transaction_cancel_failed", "error", cancelErr)
		}
		return nil, err
	}

	transaction.Payments = []models.Payment{*payment}
	log.Infow("transaction_created",
		"amount_fiat", amountFiat.String(),
		"amount_bch", amountBCH.String(),
		"rate", rate.StringFixed(2),
		"address", payment.Address,
	)
	return transaction, nil
}

// cancelTransaction 在事务内取消交易，仅允许从待支付状态取消
func (s *TransactionService) cancelTransaction(transactionID uint) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.transactionRepo.WithTx(tx)
		transaction, err := repo.GetByIDForUpdate(transactionID)
		if err != nil {
			return err
		}
		if transaction == nil {
			return ErrTransactionNotFound
		}
		if !isTransitionAllowed(transaction.Status, constants.TransactionStatusCanceled) {
			return ErrTransactionStateInvalid
		}
		now := time.Now()
		return repo.UpdateStatus(transactionID, constants.TransactionStatusCanceled, map[string]interface{}{
			"canceled_at": now,
			"updated_at":  now,
		})
	})
}

// GetByReference 根据对外编号获取交易（含支付与交付记录）
func (s *TransactionService) GetByReference(reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrValidation
	}
	transaction, err := s.transactionRepo.GetByReference(reference)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, ErrTransactionNotFound
	}
	return transaction, nil
}

// GetByID 管理端获取交易详情
func (s *TransactionService) GetByID(id uint) (*models.Transaction, error) {
	transaction, err := s.transactionRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, ErrTransactionNotFound
	}
	return transaction, nil
}

// ListAdmin 管理端交易列表
func (s *TransactionService) ListAdmin(filter repository.TransactionListFilter) ([]models.Transaction, int64, error) {
	return s.transactionRepo.ListAdmin(filter)
}

func generateReference() string {
	now := time.Now().Format("20060102150405")
	randPart := randNumeric(6)
	return fmt.Sprintf("PS%s%s", now, randPart)
}

func randNumeric(length int) string {
	var b strings.Builder
	for i := 0; i < length; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			b.WriteString("0")
			continue
		}
		b.WriteString(fmt.Sprintf("%d", n.Int64()))
	}
	return b.String()
}
