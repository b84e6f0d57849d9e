package models

import (
	"time"

	"gorm.io/gorm"
)

// Fulfillment 交付记录表（上游 VTU 渠道的发货结果）
type Fulfillment struct {
	ID            uint           `gorm:"primarykey" json:"id"`                       // 主键
	TransactionID uint           `gorm:"uniqueIndex;not null" json:"transaction_id"` // 交易ID
	Status        string         `gorm:"not null" json:"status"`                     // 交付状态（pending/delivered/failed）
	Attempts      int            `gorm:"not null;default:0" json:"attempts"`         // 已尝试次数
	ProviderRef   string         `gorm:"index" json:"provider_ref"`                  // 上游交付流水号
	ProviderReply JSON           `gorm:"type:json" json:"provider_reply"`            // 上游原始应答
	LastError     string         `gorm:"type:text" json:"last_error,omitempty"`      // 最近一次失败原因
	DeliveredAt   *time.Time     `gorm:"index" json:"delivered_at,omitempty"`        // 交付时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                    // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                    // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                             // 软删除时间
}

// TableName 指定表名
func (Fulfillment) TableName() string {
	return "fulfillments"
}
