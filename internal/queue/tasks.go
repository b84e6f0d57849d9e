package queue

import (
	"encoding/json"

	"github.com/paysats/paysats-api/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskPaymentExpire 支付记录超时关闭任务
	TaskPaymentExpire = constants.TaskPaymentExpire
	// TaskFulfillmentDispatch 交付派发任务
	TaskFulfillmentDispatch = constants.TaskFulfillmentDispatch
	// TaskExceptionAlert 异常告警任务
	TaskExceptionAlert = constants.TaskExceptionAlert
)

// PaymentExpirePayload 支付超时任务载荷
type PaymentExpirePayload struct {
	PaymentID uint `json:"payment_id"`
}

// FulfillmentDispatchPayload 交付派发任务载荷
type FulfillmentDispatchPayload struct {
	TransactionID uint `json:"transaction_id"`
}

// ExceptionAlertPayload 异常告警任务载荷
type ExceptionAlertPayload struct {
	Source  string `json:"source"`
	Message string `json:"message"`
}

// NewPaymentExpireTask 创建支付超时任务
func NewPaymentExpireTask(payload PaymentExpirePayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPaymentExpire, body), nil
}

// NewFulfillmentDispatchTask 创建交付派发任务
func NewFulfillmentDispatchTask(payload FulfillmentDispatchPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskFulfillmentDispatch, body), nil
}

// NewExceptionAlertTask 创建异常告警任务
func NewExceptionAlertTask(payload ExceptionAlertPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskExceptionAlert, body), nil
}
