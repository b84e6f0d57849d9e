package worker

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/provider"
	"github.com/paysats/paysats-api/internal/queue"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskPaymentExpire, c.handlePaymentExpire)
	mux.HandleFunc(queue.TaskFulfillmentDispatch, c.handleFulfillmentDispatch)
	mux.HandleFunc(queue.TaskExceptionAlert, c.handleExceptionAlert)
}

func (c *Consumer) handlePaymentExpire(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_payment_expire_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.PaymentExpirePayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_payment_expire_unmarshal_failed", "error", err)
		return err
	}
	if payload.PaymentID == 0 {
		logger.Debugw("worker_payment_expire_skip_invalid_payload", "payment_id", payload.PaymentID)
		return nil
	}
	if c.PaymentService == nil {
		logger.Warnw("worker_payment_expire_skip_payment_service_nil", "payment_id", payload.PaymentID)
		return nil
	}
	_, err := c.PaymentService.ExpirePayment(payload.PaymentID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrPaymentNotFound):
			logger.Debugw("worker_payment_expire_skip_payment_not_found", "payment_id", payload.PaymentID)
			return nil
		case errors.Is(err, service.ErrPaymentAlreadyClosed):
			logger.Debugw("worker_payment_expire_skip_already_closed", "payment_id", payload.PaymentID)
			return nil
		case errors.Is(err, service.ErrValidation):
			logger.Debugw("worker_payment_expire_skip_invalid_payload", "payment_id", payload.PaymentID)
			return nil
		default:
			logger.Warnw("worker_payment_expire_failed", "payment_id", payload.PaymentID, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleFulfillmentDispatch(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_fulfillment_dispatch_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.FulfillmentDispatchPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_fulfillment_dispatch_unmarshal_failed", "error", err)
		return err
	}
	if payload.TransactionID == 0 {
		logger.Debugw("worker_fulfillment_dispatch_skip_invalid_payload", "transaction_id", payload.TransactionID)
		return nil
	}
	if c.FulfillmentService == nil {
		logger.Warnw("worker_fulfillment_dispatch_skip_fulfillment_service_nil", "transaction_id", payload.TransactionID)
		return nil
	}
	_, err := c.FulfillmentService.Dispatch(ctx, payload.TransactionID)
	if err != nil {
		switch {
		case errors.Is(err, service.ErrTransactionNotFound):
			logger.Debugw("worker_fulfillment_dispatch_skip_transaction_not_found", "transaction_id", payload.TransactionID)
			return nil
		case errors.Is(err, service.ErrTransactionStateInvalid):
			logger.Debugw("worker_fulfillment_dispatch_skip_invalid_state", "transaction_id", payload.TransactionID)
			return nil
		case errors.Is(err, service.ErrFulfillmentStateInvalid):
			logger.Debugw("worker_fulfillment_dispatch_skip_fulfillment_state", "transaction_id", payload.TransactionID)
			return nil
		default:
			logger.Warnw("worker_fulfillment_dispatch_failed", "transaction_id", payload.TransactionID, "error", err)
			return err
		}
	}
	return nil
}

func (c *Consumer) handleExceptionAlert(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_exception_alert_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ExceptionAlertPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_exception_alert_unmarshal_failed", "error", err)
		return err
	}
	if payload.Source == "" && payload.Message == "" {
		logger.Debugw("worker_exception_alert_skip_empty_payload")
		return nil
	}
	logger.Warnw("exception_alert",
		"source", payload.Source,
		"message", payload.Message,
	)
	return nil
}
