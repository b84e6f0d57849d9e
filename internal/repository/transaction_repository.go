package repository

import (
	"errors"
	"strings"

	"github.com/paysats/paysats-api/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TransactionRepository 交易数据访问接口
type TransactionRepository interface {
	Create(transaction *models.Transaction) error
	GetByID(id uint) (*models.Transaction, error)
	GetByIDForUpdate(id uint) (*models.Transaction, error)
	GetByReference(reference string) (*models.Transaction, error)
	ListAdmin(filter TransactionListFilter) ([]models.Transaction, int64, error)
	UpdateStatus(id uint, status string, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormTransactionRepository
}

// GormTransactionRepository GORM 实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建交易仓库
func NewTransactionRepository(db *gorm.DB) *GormTransactionRepository {
	return &GormTransactionRepository{db: db}
}

// WithTx 绑定事务
func (r *GormTransactionRepository) WithTx(tx *gorm.DB) *GormTransactionRepository {
	if tx == nil {
		return r
	}
	return &GormTransactionRepository{db: tx}
}

// Create 创建交易
func (r *GormTransactionRepository) Create(transaction *models.Transaction) error {
	return r.db.Create(transaction).Error
}

// GetByID 根据 ID 获取交易
func (r *GormTransactionRepository) GetByID(id uint) (*models.Transaction, error) {
	var transaction models.Transaction
	query := r.db.Preload("Payments").Preload("Fulfillment")
	if err := query.First(&transaction, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// GetByIDForUpdate 根据 ID 获取交易并加行锁（需在事务中调用，用于支付记录的互斥写入）
func (r *GormTransactionRepository) GetByIDForUpdate(id uint) (*models.Transaction, error) {
	var transaction models.Transaction
	result := r.db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).Limit(1).Find(&transaction)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, nil
	}
	return &transaction, nil
}

// GetByReference 根据交易编号获取交易
func (r *GormTransactionRepository) GetByReference(reference string) (*models.Transaction, error) {
	reference = strings.TrimSpace(reference)
	if reference == "" {
		return nil, nil
	}
	var transaction models.Transaction
	query := r.db.Preload("Payments").Preload("Fulfillment")
	if err := query.Where("reference = ?", reference).First(&transaction).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &transaction, nil
}

// ListAdmin 管理端交易列表
func (r *GormTransactionRepository) ListAdmin(filter TransactionListFilter) ([]models.Transaction, int64, error) {
	var transactions []models.Transaction
	query := r.db.Model(&models.Transaction{})

	if filter.Reference != "" {
		query = query.Where("reference = ?", strings.TrimSpace(filter.Reference))
	}
	if filter.ServiceType != "" {
		query = query.Where("service_type = ?", filter.ServiceType)
	}
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}
	if filter.Search != "" {
		like := "%" + strings.TrimSpace(filter.Search) + "%"
		condition, argCount := buildLikeCondition(r.db, []string{"reference", "target_account", "customer_email"})
		if argCount > 0 {
			query = query.Where(condition, repeatLikeArgs(like, argCount)...)
		}
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

	if err := query.Preload("Fulfillment").Order("id desc").Find(&transactions).Error; err != nil {
		return nil, 0, err
	}
	return transactions, total, nil
}

// UpdateStatus 更新交易状态
func (r *GormTransactionRepository) UpdateStatus(id uint, status string, updates map[string]interface{}) error {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = status
	return r.db.Model(&models.Transaction{}).Where("id = ?", id).Updates(updates).Error
}
