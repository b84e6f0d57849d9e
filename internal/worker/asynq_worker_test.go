package worker

import (
	"context"
	"testing"

	"github.com/paysats/paysats-api/internal/provider"
	"github.com/paysats/paysats-api/internal/queue"

	"github.com/hibiken/asynq"
)

func TestConsumerHandlePaymentExpireNilTask(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	if err := c.handlePaymentExpire(context.Background(), nil); err != nil {
		t.Fatalf("expected nil error for nil task, got %v", err)
	}
}

func TestConsumerHandlePaymentExpireInvalidPayload(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task := asynq.NewTask(queue.TaskPaymentExpire, []byte("{not json"))
	if err := c.handlePaymentExpire(context.Background(), task); err == nil {
		t.Fatal("expected error for malformed payload")
	}
}

func TestConsumerHandlePaymentExpireZeroID(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task := asynq.NewTask(queue.TaskPaymentExpire, []byte(`{"payment_id":0}`))
	if err := c.handlePaymentExpire(context.Background(), task); err != nil {
		t.Fatalf("expected zero payment id to be skipped, got %v", err)
	}
}

func TestConsumerHandleFulfillmentDispatchZeroID(t *testing.T) {
	c := NewConsumer(&provider.Container{})
	task := asynq.NewTask(queue.TaskFulfillmentDispatch, []byte(`{"transaction_id":0}`))
	if err := c.handleFulfillmentDispatch(context.Background(), task); err != nil {
		t.Fatalf("expected zero transaction id to be skipped, got %v", err)
	}
}

func TestConsumerHandleExceptionAlert(t *testing.T) {
	c := NewConsumer(&provider.Container{})

	task := asynq.NewTask(queue.TaskExceptionAlert, []byte(`{"source":"webhook","message":"confirmation regression"}`))
	if err := c.handleExceptionAlert(context.Background(), task); err != nil {
		t.Fatalf("expected alert task to succeed, got %v", err)
	}

	empty := asynq.NewTask(queue.TaskExceptionAlert, []byte(`{}`))
	if err := c.handleExceptionAlert(context.Background(), empty); err != nil {
		t.Fatalf("expected empty alert payload to be skipped, got %v", err)
	}
}
