package service

import (
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/bch"
	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/queue"
	"github.com/paysats/paysats-api/internal/repository"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// PaymentService 支付台账服务
type PaymentService struct {
	cfg             *config.Config
	transactionRepo repository.TransactionRepository
	paymentRepo     repository.PaymentRepository
	settingRepo     repository.SettingRepository
	wallet          *bch.Wallet
	queueClient     *queue.Client
}

// NewPaymentService 创建支付台账服务
func NewPaymentService(cfg *config.Config, transactionRepo repository.TransactionRepository, paymentRepo repository.PaymentRepository, settingRepo repository.SettingRepository, wallet *bch.Wallet, queueClient *queue.Client) *PaymentService {
	return &PaymentService{
		cfg:             cfg,
		transactionRepo: transactionRepo,
		paymentRepo:     paymentRepo,
		settingRepo:     settingRepo,
		wallet:          wallet,
		queueClient:     queueClient,
	}
}

// paymentSweepBatchSize 单次兜底扫描处理的支付记录上限
const paymentSweepBatchSize = 200

func paymentLogger(kv ...interface{}) *zap.SugaredLogger {
	if len(kv) == 0 {
		return logger.S()
	}
	return logger.SW(kv...)
}

// ConfirmationThreshold 确认达标阈值
func (s *PaymentService) ConfirmationThreshold() uint {
	if s.cfg == nil || s.cfg.Payment.ConfirmationThreshold == 0 {
		return 1
	}
	return s.cfg.Payment.ConfirmationThreshold
}

// ExpireWindow 零确认过期窗口
func (s *PaymentService) ExpireWindow() time.Duration {
	minutes := 30
	if s.cfg != nil && s.cfg.Payment.ExpireMinutes > 0 {
		minutes = s.cfg.Payment.ExpireMinutes
	}
	return time.Duration(minutes) * time.Minute
}

// CreatePaymentInput 创建支付记录请求
type CreatePaymentInput struct {
	TransactionID uint
	AmountBCH     models.BCHAmount
	// AmountSats 可选：调用方自带的 satoshi 表示，为 0 时按 BCH 金额换算；
	// 与换算值不一致时拒绝写入。
	AmountSats int64
}

// reconcileSats 校验并补齐 BCH 金额与 satoshi 表示
func reconcileSats(amountBCH models.BCHAmount, amountSats int64) (int64, error) {
	if amountBCH.Decimal.Sign() <= 0 {
		return 0, ErrAmountInvalid
	}
	computed := amountBCH.Sats()
	if computed <= 0 {
		return 0, ErrAmountInvalid
	}
	if amountSats == 0 {
		return computed, nil
	}
	if amountSats != computed {
		return 0, ErrAmountMismatch
	}
	return amountSats, nil
}

// CreatePayment 为交易创建新的待支付记录。
// 同一交易同时至多一条非终态记录，检查与写入在事务内对交易行加锁后完成。
func (s *PaymentService) CreatePayment(input CreatePaymentInput) (*models.Payment, error) {
	if input.TransactionID == 0 {
		return nil, ErrValidation
	}
	sats, err := reconcileSats(input.AmountBCH, input.AmountSats)
	if err != nil {
		return nil, err
	}

	log := paymentLogger(
		"transaction_id", input.TransactionID,
		"amount_bch", input.AmountBCH.String(),
		"amount_sats", sats,
	)

	var payment *models.Payment
	now := time.Now()
	expiresAt := now.Add(s.ExpireWindow())

	err = models.DB.Transaction(func(tx *gorm.DB) error {
		transactionRepo := s.transactionRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)

		transaction, err := transactionRepo.GetByIDForUpdate(input.TransactionID)
		if err != nil {
			return err
		}
		if transaction == nil {
			return ErrTransactionNotFound
		}
		if transaction.Status != constants.TransactionStatusPendingPayment {
			return ErrTransactionStateInvalid
		}

		active, err := paymentRepo.GetActiveByTransaction(transaction.ID)
		if err != nil {
			return err
		}
		if active != nil {
			return ErrActivePaymentExists
		}

		address, err := s.allocateAddress(tx)
		if err != nil {
			return err
		}

		payment = &models.Payment{
			TransactionID: transaction.ID,
			Blockchain:    constants.BlockchainBCH,
			Address:       address,
			AmountBCH:     input.AmountBCH,
			AmountSats:    sats,
			Confirmations: 0,
			Status:        constants.PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     &expiresAt,
		}
		return paymentRepo.Create(payment)
	})
	if err != nil {
		return nil, err
	}

	s.enqueuePaymentExpireAsync(payment, log)
	log.Infow("payment_record_created",
		"payment_id", payment.ID,
		"address", payment.Address,
		"expires_at", expiresAt,
	)
	return payment, nil
}

// allocateAddress 在事务内推进地址游标并派生新收款地址
func (s *PaymentService) allocateAddress(tx *gorm.DB) (string, error) {
	if s.wallet == nil {
		return "", ErrAddressInvalid
	}
	settingRepo := s.settingRepo.WithTx(tx)
	setting, err := settingRepo.GetByKeyForUpdate(constants.SettingKeyAddressIndex)
	if err != nil {
		return "", err
	}
	var cursor uint32
	if setting != nil {
		if raw, ok := setting.ValueJSON[constants.SettingFieldAddressCursor]; ok {
			if num, ok := raw.(float64); ok && num >= 0 {
				cursor = uint32(num)
			}
		}
	}
	address, err := s.wallet.DeriveAddress(cursor)
	if err != nil {
		return "", err
	}
	if _, err := settingRepo.Upsert(constants.SettingKeyAddressIndex, models.JSON{
		constants.SettingFieldAddressCursor: float64(cursor + 1),
	}); err != nil {
		return "", err
	}
	return address, nil
}

// ApplyConfirmationInput 确认回调输入
type ApplyConfirmationInput struct {
	PaymentID     uint
	TxHash        string
	Confirmations uint
	// StatusHint 处理器给出的状态提示：confirmation（默认）或 failed
	StatusHint    string
	FailureReason string
	Payload       models.JSON
}

// ApplyConfirmation 将一次链上观测应用到支付记录。
// 确认数单调不减；重放为无副作用操作；终态记录只接受精确重放。
func (s *PaymentService) ApplyConfirmation(input ApplyConfirmationInput) (*models.Payment, error) {
	if input.PaymentID == 0 {
		return nil, ErrValidation
	}
	hint := strings.ToLower(strings.TrimSpace(input.StatusHint))
	if hint == "" {
		hint = constants.WebhookHintConfirmation
	}
	if hint != constants.WebhookHintConfirmation && hint != constants.WebhookHintFailed {
		return nil, ErrValidation
	}

	log := paymentLogger(
		"payment_id", input.PaymentID,
		"tx_hash", strings.TrimSpace(input.TxHash),
		"confirmations", input.Confirmations,
		"status_hint", hint,
	)

	var payment *models.Payment
	var confirmedNow bool
	now := time.Now()

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)

		locked, err := paymentRepo.GetByIDForUpdate(input.PaymentID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrPaymentNotFound
		}
		payment = locked

		txHash := strings.TrimSpace(input.TxHash)

		// 终态记录：精确重放视为无操作，其余一律冲突
		if locked.IsTerminal() {
			if isExactReplay(locked, txHash, input.Confirmations, hint) {
				log.Infow("payment_confirmation_replay_terminal",
					"status", locked.Status,
				)
				return nil
			}
			return ErrPaymentAlreadyClosed
		}

		// 确认数回退视为冲突，由调用方记录并确认回执，避免重试风暴
		if input.Confirmations < locked.Confirmations {
			return ErrConfirmationRegression
		}

		// 同一记录不接受第二个交易哈希
		if txHash != "" && locked.TxHash != "" && txHash != locked.TxHash {
			return ErrConfirmationRegression
		}

		if txHash != "" && locked.TxHash == "" {
			locked.TxHash = txHash
		}
		if input.Payload != nil {
			locked.RawPayload = input.Payload
		}
		locked.LastWebhookAt = &now
		locked.UpdatedAt = now

		if hint == constants.WebhookHintFailed {
			locked.Status = constants.PaymentStatusFailed
			locked.Confirmations = input.Confirmations
			locked.FailureReason = pickFirstNonEmpty(input.FailureReason, "processor_failed_hint")
			locked.ClosedAt = &now
			return paymentRepo.Update(locked)
		}

		locked.Confirmations = input.Confirmations
		if input.Confirmations >= s.ConfirmationThreshold() {
			locked.Status = constants.PaymentStatusConfirmed
			locked.ConfirmedAt = &now
			confirmedNow = true
			if err := paymentRepo.Update(locked); err != nil {
				return err
			}
			return s.markTransactionPaid(tx, locked.TransactionID, now)
		}
		return paymentRepo.Update(locked)
	})
	if err != nil {
		return payment, err
	}

	if confirmedNow {
		s.enqueueFulfillmentDispatchAsync(payment, log)
		log.Infow("payment_confirmed",
			"transaction_id", payment.TransactionID,
			"confirmed_at", now,
		)
	} else {
		log.Infow("payment_confirmation_applied",
			"status", payment.Status,
			"recorded_confirmations", payment.Confirmations,
		)
	}
	return payment, nil
}

// isExactReplay 判断对终态记录的更新是否为此前回调的精确重放
func isExactReplay(payment *models.Payment, txHash string, confirmations uint, hint string) bool {
	if txHash != "" && payment.TxHash != "" && txHash != payment.TxHash {
		return false
	}
	switch payment.Status {
	case constants.PaymentStatusConfirmed:
		return hint == constants.WebhookHintConfirmation && confirmations <= payment.Confirmations
	case constants.PaymentStatusFailed:
		if hint == constants.WebhookHintFailed {
			return true
		}
		return confirmations <= payment.Confirmations
	case constants.PaymentStatusExpired:
		return confirmations == 0
	}
	return false
}

// markTransactionPaid 在事务内将交易推进为已支付并保持状态机约束
func (s *PaymentService) markTransactionPaid(tx *gorm.DB, transactionID uint, now time.Time) error {
	transactionRepo := s.transactionRepo.WithTx(tx)
	transaction, err := transactionRepo.GetByIDForUpdate(transactionID)
	if err != nil {
		return err
	}
	if transaction == nil {
		return ErrTransactionNotFound
	}
	if transaction.Status == constants.TransactionStatusPaid {
		return nil
	}
	if !isTransitionAllowed(transaction.Status, constants.TransactionStatusPaid) {
		return ErrTransactionStateInvalid
	}
	return transactionRepo.UpdateStatus(transactionID, constants.TransactionStatusPaid, map[string]interface{}{
		"paid_at":    now,
		"updated_at": now,
	})
}

// RetryPayment 为失败或过期的交易重新开启一条支付记录。
// 已确认或仍有在途记录的交易不允许重试。
func (s *PaymentService) RetryPayment(transactionID uint) (*models.Payment, error) {
	if transactionID == 0 {
		return nil, ErrValidation
	}

	log := paymentLogger("transaction_id", transactionID)

	var payment *models.Payment
	now := time.Now()
	expiresAt := now.Add(s.ExpireWindow())

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		transactionRepo := s.transactionRepo.WithTx(tx)
		paymentRepo := s.paymentRepo.WithTx(tx)

		transaction, err := transactionRepo.GetByIDForUpdate(transactionID)
		if err != nil {
			return err
		}
		if transaction == nil {
			return ErrTransactionNotFound
		}

		latest, err := paymentRepo.GetLatestByTransaction(transactionID)
		if err != nil {
			return err
		}
		if latest == nil {
			return ErrPaymentNotFound
		}
		switch latest.Status {
		case constants.PaymentStatusFailed, constants.PaymentStatusExpired:
			// 仅失败类终态允许重试
		default:
			return ErrPaymentStateInvalid
		}

		address, err := s.allocateAddress(tx)
		if err != nil {
			return err
		}

		payment = &models.Payment{
			TransactionID: transaction.ID,
			Blockchain:    constants.BlockchainBCH,
			Address:       address,
			AmountBCH:     latest.AmountBCH,
			AmountSats:    latest.AmountSats,
			Confirmations: 0,
			Status:        constants.PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
			ExpiresAt:     &expiresAt,
		}
		return paymentRepo.Create(payment)
	})
	if err != nil {
		return nil, err
	}

	s.enqueuePaymentExpireAsync(payment, log)
	log.Infow("payment_retry_created",
		"payment_id", payment.ID,
		"address", payment.Address,
	)
	return payment, nil
}

// ExpirePayment 支付窗口到期处理：零确认转过期，部分确认转失败。
// 由队列任务在到期时间触发，记录已终态时为无操作。
func (s *PaymentService) ExpirePayment(paymentID uint) (*models.Payment, error) {
	if paymentID == 0 {
		return nil, ErrValidation
	}

	log := paymentLogger("payment_id", paymentID)

	var payment *models.Payment
	now := time.Now()

	err := models.DB.Transaction(func(tx *gorm.DB) error {
		paymentRepo := s.paymentRepo.WithTx(tx)

		locked, err := paymentRepo.GetByIDForUpdate(paymentID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrPaymentNotFound
		}
		payment = locked
		if locked.IsTerminal() {
			return nil
		}
		if locked.ExpiresAt != nil && locked.ExpiresAt.After(now) {
			return nil
		}

		if locked.Confirmations == 0 {
			locked.Status = constants.PaymentStatusExpired
			locked.FailureReason = "expiry_window_elapsed"
		} else {
			locked.Status = constants.PaymentStatusFailed
			locked.FailureReason = "confirmation_timeout"
		}
		locked.ClosedAt = &now
		locked.UpdatedAt = now
		return paymentRepo.Update(locked)
	})
	if err != nil {
		return nil, err
	}

	if payment.IsTerminal() && payment.ClosedAt != nil && payment.ClosedAt.Equal(now) {
		log.Infow("payment_expired",
			"status", payment.Status,
			"confirmations", payment.Confirmations,
		)
	}
	return payment, nil
}

// SweepOverduePayments 批量关闭已过窗口仍未终态的支付记录。
// 队列延时任务丢失时的兜底，由 worker 周期触发。
func (s *PaymentService) SweepOverduePayments(now time.Time) (int, error) {
	ids, err := s.paymentRepo.ListOverdueOpenIDs(now, paymentSweepBatchSize)
	if err != nil {
		return 0, err
	}
	closed := 0
	for _, id := range ids {
		if _, err := s.ExpirePayment(id); err != nil {
			logger.Warnw("payment_sweep_expire_failed", "payment_id", id, "error", err)
			continue
		}
		closed++
	}
	return closed, nil
}

// GetPayment 获取支付记录
func (s *PaymentService) GetPayment(id uint) (*models.Payment, error) {
	if id == 0 {
		return nil, ErrValidation
	}
	payment, err := s.paymentRepo.GetByID(id)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// GetPaymentByReference 根据链上引用定位支付记录：优先交易哈希，其次收款地址
func (s *PaymentService) GetPaymentByReference(reference string) (*models.Payment, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, ErrValidation
	}
	payment, err := s.paymentRepo.GetLatestByTxHash(reference)
	if err != nil {
		return nil, err
	}
	if payment != nil {
		return payment, nil
	}
	payment, err = s.paymentRepo.GetLatestByAddress(reference)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, ErrPaymentNotFound
	}
	return payment, nil
}

// ListPayments 管理端支付列表
func (s *PaymentService) ListPayments(filter repository.PaymentListFilter) ([]models.Payment, int64, error) {
	return s.paymentRepo.ListAdmin(filter)
}

// ListByTransaction 获取交易的全部支付记录
func (s *PaymentService) ListByTransaction(transactionID uint) ([]models.Payment, error) {
	if transactionID == 0 {
		return nil, ErrValidation
	}
	return s.paymentRepo.ListByTransactionID(transactionID)
}

func (s *PaymentService) enqueuePaymentExpireAsync(payment *models.Payment, log *zap.SugaredLogger) {
	if s.queueClient == nil || payment == nil {
		return
	}
	delay := s.ExpireWindow()
	if payment.ExpiresAt != nil {
		delay = time.Until(*payment.ExpiresAt)
	}
	if err := s.queueClient.EnqueuePaymentExpire(queue.PaymentExpirePayload{
		PaymentID: payment.ID,
	}, delay); err != nil {
		log.Warnw("payment_enqueue_expire_failed",
			"payment_id", payment.ID,
			"error", err,
		)
	}
}

func (s *PaymentService) enqueueFulfillmentDispatchAsync(payment *models.Payment, log *zap.SugaredLogger) {
	if s.queueClient == nil || payment == nil {
		return
	}
	if err := s.queueClient.EnqueueFulfillmentDispatch(queue.FulfillmentDispatchPayload{
		TransactionID: payment.TransactionID,
	}); err != nil {
		log.Warnw("payment_enqueue_fulfillment_failed",
			"transaction_id", payment.TransactionID,
			"error", err,
		)
	}
}

func pickFirstNonEmpty(values ...string) string {
	for _, val := range values {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
