package service

import (
	"context"
	"time"

	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/models"
	"github.com/paysats/paysats-api/internal/queue"
	"github.com/paysats/paysats-api/internal/repository"
	"github.com/paysats/paysats-api/internal/vtu"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// FulfillmentService 交付服务：支付确认后调用 VTU 上游完成充值
type FulfillmentService struct {
	cfg             *config.Config
	transactionRepo repository.TransactionRepository
	fulfillmentRepo repository.FulfillmentRepository
	queueClient     *queue.Client
}

// NewFulfillmentService 创建交付服务
func NewFulfillmentService(cfg *config.Config, transactionRepo repository.TransactionRepository, fulfillmentRepo repository.FulfillmentRepository, queueClient *queue.Client) *FulfillmentService {
	return &FulfillmentService{
		cfg:             cfg,
		transactionRepo: transactionRepo,
		fulfillmentRepo: fulfillmentRepo,
		queueClient:     queueClient,
	}
}

func fulfillmentLogger(kv ...interface{}) *zap.SugaredLogger {
	return logger.SW().With(kv...)
}

func (s *FulfillmentService) maxAttempts() int {
	if s.cfg != nil && s.cfg.VTU.MaxAttempts > 0 {
		return s.cfg.VTU.MaxAttempts
	}
	return 3
}

func (s *FulfillmentService) clientConfig() *vtu.Config {
	if s.cfg == nil {
		return nil
	}
	return &vtu.Config{
		BaseURL:        s.cfg.VTU.BaseURL,
		APIKey:         s.cfg.VTU.APIKey,
		TimeoutSeconds: s.cfg.VTU.TimeoutSeconds,
	}
}

// Dispatch 对已支付交易执行一次交付尝试。
// 队列任务重复投递时按交付记录幂等：已交付直接返回，不再请求上游。
func (s *FulfillmentService) Dispatch(ctx context.Context, transactionID uint) (*models.Fulfillment, error) {
	if transactionID == 0 {
		return nil, ErrValidation
	}

	transaction, err := s.transactionRepo.GetByID(transactionID)
	if err != nil {
		return nil, err
	}
	if transaction == nil {
		return nil, ErrTransactionNotFound
	}

	log := fulfillmentLogger(
		"transaction_id", transaction.ID,
		"reference", transaction.Reference,
		"service_type", transaction.ServiceType,
		"provider", transaction.Provider,
	)

	fulfillment, err := s.prepareAttempt(transaction)
	if err != nil {
		return nil, err
	}
	if fulfillment.Status == constants.FulfillmentStatusDelivered {
		return fulfillment, nil
	}

	result, deliverErr := vtu.Deliver(ctx, s.clientConfig(), vtu.DeliverInput{
		Reference:     transaction.Reference,
		ServiceType:   transaction.ServiceType,
		Provider:      transaction.Provider,
		TargetAccount: transaction.TargetAccount,
		ProductCode:   transaction.ProductCode,
		Amount:        transaction.AmountFiat.String(),
	})

	now := time.Now()
	if deliverErr != nil {
		fulfillment.LastError = deliverErr.Error()
		if fulfillment.Attempts >= s.maxAttempts() {
			fulfillment.Status = constants.FulfillmentStatusFailed
			log.Errorw("fulfillment_failed",
				"attempts", fulfillment.Attempts,
				"error", deliverErr,
			)
			s.notifyException(transaction.Reference, deliverErr.Error())
		} else {
			log.Warnw("fulfillment_attempt_failed",
				"attempts", fulfillment.Attempts,
				"error", deliverErr,
			)
		}
		if updateErr := s.fulfillmentRepo.Update(fulfillment); updateErr != nil {
			return nil, updateErr
		}
		return fulfillment, deliverErr
	}

	fulfillment.Status = constants.FulfillmentStatusDelivered
	fulfillment.ProviderRef = result.ProviderRef
	fulfillment.ProviderReply = models.JSON(result.Raw)
	fulfillment.LastError = ""
	fulfillment.DeliveredAt = &now
	if err := s.fulfillmentRepo.Update(fulfillment); err != nil {
		return nil, err
	}

	if err := s.markTransactionCompleted(transaction.ID, now); err != nil {
		log.Errorw("transaction_complete_failed", "error", err)
		return fulfillment, err
	}

	log.Infow("fulfillment_delivered",
		"provider_ref", result.ProviderRef,
		"attempts", fulfillment.Attempts,
	)
	return fulfillment, nil
}

// prepareAttempt 在事务内占位交付记录并累加尝试次数。
// 交易必须已支付；同一交易只允许一条交付记录。
func (s *FulfillmentService) prepareAttempt(transaction *models.Transaction) (*models.Fulfillment, error) {
	var prepared *models.Fulfillment
	err := models.DB.Transaction(func(tx *gorm.DB) error {
		transactionRepo := s.transactionRepo.WithTx(tx)
		locked, err := transactionRepo.GetByIDForUpdate(transaction.ID)
		if err != nil {
			return err
		}
		if locked == nil {
			return ErrTransactionNotFound
		}
		switch locked.Status {
		case constants.TransactionStatusPaid, constants.TransactionStatusFulfilling:
		case constants.TransactionStatusCompleted:
			// 已完成交易的交付记录原样返回，保持重复投递幂等
			existing, err := s.fulfillmentRepo.WithTx(tx).GetByTransactionID(transaction.ID)
			if err != nil {
				return err
			}
			if existing == nil {
				return ErrFulfillmentNotFound
			}
			prepared = existing
			return nil
		default:
			return ErrTransactionStateInvalid
		}

		fulfillmentRepo := s.fulfillmentRepo.WithTx(tx)
		fulfillment, err := fulfillmentRepo.GetByTransactionID(transaction.ID)
		if err != nil {
			return err
		}
		now := time.Now()
		if fulfillment == nil {
			fulfillment = &models.Fulfillment{
				TransactionID: transaction.ID,
				Status:        constants.FulfillmentStatusPending,
			}
			if err := fulfillmentRepo.Create(fulfillment); err != nil {
				return err
			}
		}
		if fulfillment.Status == constants.FulfillmentStatusDelivered {
			prepared = fulfillment
			return nil
		}

		fulfillment.Attempts++
		fulfillment.Status = constants.FulfillmentStatusPending
		if err := fulfillmentRepo.Update(fulfillment); err != nil {
			return err
		}

		if locked.Status == constants.TransactionStatusPaid {
			if err := transactionRepo.UpdateStatus(transaction.ID, constants.TransactionStatusFulfilling, map[string]interface{}{
				"updated_at": now,
			}); err != nil {
				return err
			}
		}
		prepared = fulfillment
		return nil
	})
	if err != nil {
		return nil, err
	}
	return prepared, nil
}

// markTransactionCompleted 在事务内将交易推进为已完成
func (s *FulfillmentService) markTransactionCompleted(transactionID uint, now time.Time) error {
	return models.DB.Transaction(func(tx *gorm.DB) error {
		repo := s.transactionRepo.WithTx(tx)
		transaction, err := repo.GetByIDForUpdate(transactionID)
		if err != nil {
			return err
		}
		if transaction == nil {
			return ErrTransactionNotFound
		}
		if transaction.Status == constants.TransactionStatusCompleted {
			return nil
		}
		if !isTransitionAllowed(transaction.Status, constants.TransactionStatusCompleted) {
			return ErrTransactionStateInvalid
		}
		return repo.UpdateStatus(transactionID, constants.TransactionStatusCompleted, map[string]interface{}{
			"completed_at": now,
			"updated_at":   now,
		})
	})
}

// Refulfill 管理端对失败交付重新入队
func (s *FulfillmentService) Refulfill(transactionID uint) (*models.Fulfillment, error) {
	fulfillment, err := s.fulfillmentRepo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if fulfillment == nil {
		return nil, ErrFulfillmentNotFound
	}
	if fulfillment.Status != constants.FulfillmentStatusFailed {
		return nil, ErrFulfillmentStateInvalid
	}

	fulfillment.Status = constants.FulfillmentStatusPending
	fulfillment.Attempts = 0
	fulfillment.LastError = ""
	if err := s.fulfillmentRepo.Update(fulfillment); err != nil {
		return nil, err
	}

	if s.queueClient != nil && s.queueClient.Enabled() {
		if err := s.queueClient.EnqueueFulfillmentDispatch(queue.FulfillmentDispatchPayload{
			TransactionID: transactionID,
		}); err != nil {
			fulfillmentLogger("transaction_id", transactionID).Errorw("fulfillment_enqueue_failed", "error", err)
		}
	}
	return fulfillment, nil
}

// GetByTransactionID 获取交易的交付记录
func (s *FulfillmentService) GetByTransactionID(transactionID uint) (*models.Fulfillment, error) {
	fulfillment, err := s.fulfillmentRepo.GetByTransactionID(transactionID)
	if err != nil {
		return nil, err
	}
	if fulfillment == nil {
		return nil, ErrFulfillmentNotFound
	}
	return fulfillment, nil
}

func (s *FulfillmentService) notifyException(reference, message string) {
	if s.queueClient == nil || !s.queueClient.Enabled() {
		return
	}
	if err := s.queueClient.EnqueueExceptionAlert(queue.ExceptionAlertPayload{
		Source:  "fulfillment",
		Message: reference + ": " + message,
	}); err != nil {
		fulfillmentLogger("reference", reference).Warnw("exception_alert_enqueue_failed", "error", err)
	}
}
