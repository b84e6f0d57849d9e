package repository

import (
	"errors"

	"github.com/paysats/paysats-api/internal/models"

	"gorm.io/gorm"
)

// FulfillmentRepository 交付数据访问接口
type FulfillmentRepository interface {
	Create(fulfillment *models.Fulfillment) error
	Update(fulfillment *models.Fulfillment) error
	GetByID(id uint) (*models.Fulfillment, error)
	GetByTransactionID(transactionID uint) (*models.Fulfillment, error)
	WithTx(tx *gorm.DB) *GormFulfillmentRepository
}

// GormFulfillmentRepository GORM 实现
type GormFulfillmentRepository struct {
	db *gorm.DB
}

// NewFulfillmentRepository 创建交付仓库
func NewFulfillmentRepository(db *gorm.DB) *GormFulfillmentRepository {
	return &GormFulfillmentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormFulfillmentRepository) WithTx(tx *gorm.DB) *GormFulfillmentRepository {
	if tx == nil {
		return r
	}
	return &GormFulfillmentRepository{db: tx}
}

// Create 创建交付记录
func (r *GormFulfillmentRepository) Create(fulfillment *models.Fulfillment) error {
	return r.db.Create(fulfillment).Error
}

// Update 更新交付记录
func (r *GormFulfillmentRepository) Update(fulfillment *models.Fulfillment) error {
	return r.db.Save(fulfillment).Error
}

// GetByID 根据 ID 获取交付记录
func (r *GormFulfillmentRepository) GetByID(id uint) (*models.Fulfillment, error) {
	var fulfillment models.Fulfillment
	if err := r.db.First(&fulfillment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fulfillment, nil
}

// GetByTransactionID 根据交易 ID 获取交付记录
func (r *GormFulfillmentRepository) GetByTransactionID(transactionID uint) (*models.Fulfillment, error) {
	var fulfillment models.Fulfillment
	if err := r.db.Where("transaction_id = ?", transactionID).First(&fulfillment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &fulfillment, nil
}
