package service

import "errors"

// 服务层哨兵错误，handler 层统一映射为业务响应码。
var (
	// 通用
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("invalid request")

	// 认证
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrInvalidPassword    = errors.New("invalid password")

	// 验证码
	ErrCaptchaRequired      = errors.New("captcha required")
	ErrCaptchaInvalid       = errors.New("captcha invalid")
	ErrCaptchaVerifyFailed  = errors.New("captcha verify failed")
	ErrCaptchaConfigInvalid = errors.New("captcha config invalid")

	// 交易
	ErrTransactionNotFound     = errors.New("transaction not found")
	ErrTransactionStateInvalid = errors.New("transaction state does not allow this operation")
	ErrServiceTypeInvalid      = errors.New("unsupported service type")

	// 支付台账
	ErrPaymentNotFound        = errors.New("payment record not found")
	ErrActivePaymentExists    = errors.New("transaction already has an active payment record")
	ErrAmountMismatch         = errors.New("sats amount does not match bch amount")
	ErrAmountInvalid          = errors.New("payment amount must be positive")
	ErrBlockchainUnsupported  = errors.New("unsupported blockchain")
	ErrAddressInvalid         = errors.New("invalid receiving address")
	ErrConfirmationRegression = errors.New("confirmation count lower than recorded")
	ErrPaymentAlreadyClosed   = errors.New("payment record is terminal")
	ErrPaymentStateInvalid    = errors.New("payment state does not allow this operation")

	// 汇率
	ErrRateUnavailable = errors.New("exchange rate unavailable")
	ErrQuoteExpired    = errors.New("rate quote expired")

	// 交付
	ErrFulfillmentNotFound     = errors.New("fulfillment not found")
	ErrFulfillmentStateInvalid = errors.New("fulfillment state does not allow this operation")

	// 回调
	ErrWebhookSignatureInvalid = errors.New("webhook signature invalid")

	// 仪表盘
	ErrDashboardRangeInvalid = errors.New("dashboard range invalid")
)
