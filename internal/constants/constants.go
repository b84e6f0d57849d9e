package constants

// 交易状态常量
const (
	TransactionStatusPendingPayment = "pending_payment"
	TransactionStatusPaid           = "paid"
	TransactionStatusFulfilling     = "fulfilling"
	TransactionStatusCompleted      = "completed"
	TransactionStatusCanceled       = "canceled"
)

// 业务类型常量（VTU 上游支持的充值类型）
const (
	ServiceTypeAirtime     = "airtime"
	ServiceTypeData        = "data"
	ServiceTypeCableTV     = "cable_tv"
	ServiceTypeElectricity = "electricity"
)

// 支付记录状态常量
const (
	PaymentStatusPending   = "pending"
	PaymentStatusConfirmed = "confirmed"
	PaymentStatusFailed    = "failed"
	PaymentStatusExpired   = "expired"
)

// 链上处理器回调携带的状态提示
const (
	WebhookHintConfirmation = "confirmation"
	WebhookHintFailed       = "failed"
)

// 链常量
const (
	BlockchainBCH = "bitcoin-cash"
)

// BCH 网络常量
const (
	BCHNetworkMainnet = "mainnet"
	BCHNetworkTestnet = "testnet"
)

// 交付状态常量
const (
	FulfillmentStatusPending   = "pending"
	FulfillmentStatusDelivered = "delivered"
	FulfillmentStatusFailed    = "failed"
)

// 队列常量
const (
	QueueDefault            = "default"
	TaskPaymentExpire       = "payment:timeout_expire"
	TaskFulfillmentDispatch = "fulfillment:dispatch"
	TaskExceptionAlert      = "alert:exception"
)

// 缓存默认配置常量
const (
	RedisPrefixDefault = "ps"
)

// 验证码提供方常量
const (
	CaptchaProviderNone      = "none"
	CaptchaProviderImage     = "image"
	CaptchaProviderTurnstile = "turnstile"
)

// 验证码场景常量
const (
	CaptchaSceneLogin = "login"
)

// 设置键常量
const (
	SettingKeySiteConfig       = "site_config"
	SettingKeyCaptchaConfig    = "captcha_config"
	SettingKeyAddressIndex     = "bch_address_index"
	SettingFieldAddressCursor  = "cursor"
	SettingFieldSiteCurrency   = "currency"
	SettingFieldSupportContact = "support_contact"
)

// 币种常量
const (
	SiteCurrencyDefault = "NGN"
)

// 一 BCH 对应的 satoshi 数
const SatsPerBCH = 100_000_000
