package models

import (
	"time"

	"gorm.io/gorm"
)

// Transaction 账单购买交易（话费/流量/有线电视/电费）
type Transaction struct {
	ID            uint           `gorm:"primarykey" json:"id"`                           // 主键
	Reference     string         `gorm:"uniqueIndex;not null" json:"reference"`          // 对外交易编号
	ServiceType   string         `gorm:"index;not null" json:"service_type"`             // 业务类型（airtime/data/cable_tv/electricity）
	Provider      string         `gorm:"not null" json:"provider"`                       // 上游运营商标识（mtn/dstv/ikeja 等）
	TargetAccount string         `gorm:"not null" json:"target_account"`                 // 充值目标（手机号/智能卡号/电表号）
	ProductCode   string         `gorm:"type:varchar(100)" json:"product_code"`          // 套餐编码（流量/有线套餐）
	CustomerEmail string         `gorm:"index" json:"customer_email,omitempty"`          // 客户邮箱（回执用）
	AmountFiat    Money          `gorm:"type:decimal(20,2);not null" json:"amount_fiat"` // 账单金额（奈拉）
	Currency      string         `gorm:"not null" json:"currency"`                       // 法币币种
	AmountBCH     BCHAmount      `gorm:"type:decimal(20,8);not null" json:"amount_bch"`  // 锁定汇率换算出的 BCH 金额
	Rate          Money          `gorm:"type:decimal(20,2);not null" json:"rate"`        // 锁定汇率（1 BCH 对应的奈拉）
	Status        string         `gorm:"index;not null" json:"status"`                   // 交易状态
	ClientIP      string         `gorm:"type:varchar(64)" json:"client_ip,omitempty"`    // 下单客户端IP
	PaidAt        *time.Time     `gorm:"index" json:"paid_at"`                           // 支付确认时间
	CompletedAt   *time.Time     `gorm:"index" json:"completed_at"`                      // 交付完成时间
	CanceledAt    *time.Time     `gorm:"index" json:"canceled_at"`                       // 取消时间
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`                        // 创建时间
	UpdatedAt     time.Time      `gorm:"index" json:"updated_at"`                        // 更新时间
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"-"`                                 // 软删除时间

	// 关联
	Payments    []Payment    `gorm:"foreignKey:TransactionID" json:"payments,omitempty"`   // 支付记录
	Fulfillment *Fulfillment `gorm:"foreignKey:TransactionID" json:"fulfillment,omitempty"` // 交付记录
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}
