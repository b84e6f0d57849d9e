package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PaymentRepository 支付台账数据访问接口
type PaymentRepository interface {
	Create(payment *models.Payment) error
	Update(payment *models.Payment) error
	GetByID(id uint) (*models.Payment, error)
	GetByIDForUpdate(id uint) (*models.Payment, error)
	GetLatestByTxHash(txHash string) (*models.Payment, error)
	GetLatestByAddress(address string) (*models.Payment, error)
	ListByTransactionID(transactionID uint) ([]models.Payment, error)
	GetActiveByTransaction(transactionID uint) (*models.Payment, error)
	GetLatestByTransaction(transactionID uint) (*models.Payment, error)
	ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error)
	ListOverdueOpenIDs(now time.Time, limit int) ([]uint, error)
	WithTx(tx *gorm.DB) *GormPaymentRepository
}

// GormPaymentRepository GORM 实现
type GormPaymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository 创建支付台账仓库
func NewPaymentRepository(db *gorm.DB) *GormPaymentRepository {
	return &GormPaymentRepository{db: db}
}

// WithTx 绑定事务
func (r *GormPaymentRepository) WithTx(tx *gorm.DB) *GormPaymentRepository {
	if tx == nil {
		return r
	}
	return &GormPaymentRepository{db: tx}
}

// Create 创建支付记录
func (r *GormPaymentRepository) Create(payment *models.Payment) error {
	return r.db.Create(payment).Error
}

// Update 更新支付记录
func (r *GormPaymentRepository) Update(payment *models.Payment) error {
	return r.db.Save(payment).Error
}

// GetByID 根据 ID 获取支付记录
func (r *GormPaymentRepository) GetByID(id uint) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.First(&payment, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

// GetByIDForUpdate 根据 ID 获取支付记录并加行锁（需在事务中调用）
func (r *GormPaymentRepository) GetByIDForUpdate(id uint) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByTxHash 根据链上交易哈希获取最新支付记录
func (r *GormPaymentRepository) GetLatestByTxHash(txHash string) (*models.Payment, error) {
	txHash = strings.TrimSpace(txHash)
	if txHash == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("tx_hash = ?", txHash).Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByAddress 根据收款地址获取最新支付记录
func (r *GormPaymentRepository) GetLatestByAddress(address string) (*models.Payment, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return nil, nil
	}
	var payment models.Payment
	result := r.db.Where("address = ?", address).Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// ListByTransactionID 获取交易的全部支付记录（新到旧）
func (r *GormPaymentRepository) ListByTransactionID(transactionID uint) ([]models.Payment, error) {
	var payments []models.Payment
	if err := r.db.Where("transaction_id = ?", transactionID).Order("id desc").Find(&payments).Error; err != nil {
		return nil, err
	}
	return payments, nil
}

// GetActiveByTransaction 获取交易当前的非终态支付记录
func (r *GormPaymentRepository) GetActiveByTransaction(transactionID uint) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Where("transaction_id = ? AND status = ?", transactionID, constants.PaymentStatusPending).
		Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// GetLatestByTransaction 获取交易最新一条支付记录
func (r *GormPaymentRepository) GetLatestByTransaction(transactionID uint) (*models.Payment, error) {
	var payment models.Payment
	result := r.db.Where("transaction_id = ?", transactionID).Order("id desc").Limit(1).Find(&payment)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &payment, nil
}

// ListOverdueOpenIDs 获取已过期仍未关闭的支付记录 ID（旧到新）
func (r *GormPaymentRepository) ListOverdueOpenIDs(now time.Time, limit int) ([]uint, error) {
	query := r.db.Model(&models.Payment{}).
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.PaymentStatusPending, now).
		Order("id asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var ids []uint
	if err := query.Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

// ListAdmin 管理端支付列表
func (r *GormPaymentRepository) ListAdmin(filter PaymentListFilter) ([]models.Payment, int64, error) {
	query := r.db.Model(&models.Payment{})

	if filter.TransactionID != 0 {
		query = query.Where("transaction_id = ?", filter.TransactionID)
	}
	if filter.Address != "" {
		query = query.Where("address = ?", strings.TrimSpace(filter.Address))
	}
	if filter.TxHash != "" {
		query = query.Where("tx_hash = ?", strings.TrimSpace(filter.TxHash))
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	query = applyPagination(query, filter.Page, filter.PageSize)

	var payments []models.Payment
	if err := query.Order("id desc").Find(&payments).Error; err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}
