package models

import (
	"time"

	"gorm.io/gorm"
)

// Payment 链上支付台账记录（一笔交易的一次 BCH 付款尝试）
type Payment struct {
	ID            uint           `gorm:"primarykey" json:"id"`                              // 主键
	TransactionID uint           `gorm:"index;not null" json:"transaction_id"`              // 所属交易ID
	Blockchain    string         `gorm:"not null" json:"blockchain"`                        // 结算链（bitcoin-cash）
	Address       string         `gorm:"index;not null" json:"address"`                     // 收款地址
	TxHash        string         `gorm:"index" json:"tx_hash"`                              // 链上交易哈希（确认到账后填充）
	AmountBCH     BCHAmount      `gorm:"type:decimal(20,8);not null" json:"amount_bch"`     // 应付 BCH 金额
	AmountSats    int64          `gorm:"not null" json:"amount_sats"`                       // 应付金额的 satoshi 表示
	Confirmations uint           `gorm:"not null;default:0" json:"confirmations"`           // 已观测确认数（单调不减）
	Status        string         `gorm:"index;not null" json:"status"`                      // 记录状态（pending/confirmed/failed/expired）
	FailureReason string         `gorm:"type:varchar(200)" json:"failure_reason,omitempty"` // 终态原因（underpaid/reorg/timeout 等）
	RawPayload    JSON           `gorm:"type:json" json:"raw_payload"`                      // 最近一次处理器回调原文
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                           // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                           // 更新时间
	ConfirmedAt   *time.Time     `gorm:"index" json:"confirmed_at"`                         // 确认达标时间
	ClosedAt      *time.Time     `gorm:"index" json:"closed_at"`                            // 进入失败/过期终态时间
	ExpiresAt     *time.Time     `gorm:"index" json:"expires_at"`                           // 零确认过期截止时间
	LastWebhookAt *time.Time     `gorm:"index" json:"last_webhook_at"`                      // 最近一次回调处理时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                    // 软删除时间
}

// TableName 指定表名
func (Payment) TableName() string {
	return "payments"
}

// IsTerminal 是否已处于终态
func (p *Payment) IsTerminal() bool {
	switch p.Status {
	case "confirmed", "failed", "expired":
		return true
	}
	return false
}
