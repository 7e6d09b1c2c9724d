package repository

import (
	"errors"

	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrTransactionDuplicate 同一 (transaction_id, order_id) 已存在流水
var ErrTransactionDuplicate = errors.New("transaction already recorded")

// TransactionRepository 交易流水数据访问接口（只追加）
type TransactionRepository interface {
	Append(txn *models.Transaction) error
	GetByOrderAndTransactionID(orderID, transactionID string) (*models.Transaction, error)
	ListByOrder(orderID string) ([]models.Transaction, error)
	CountByOrder(orderID string) (int64, error)
	WithTx(tx *gorm.DB) *GormTransactionRepository
}

// GormTransactionRepository GORM 实现
type GormTransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建流水仓库
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

// Append 追加流水，唯一键冲突返回 ErrTransactionDuplicate
// 使用 ON CONFLICT DO NOTHING，避免 postgres 事务因唯一键错误被中止
func (r *GormTransactionRepository) Append(txn *models.Transaction) error {
	result := r.db.Clauses(clause.OnConflict{DoNothing: true}).Create(txn)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrTransactionDuplicate
	}
	return nil
}

// GetByOrderAndTransactionID 按订单与第三方流水号查询
func (r *GormTransactionRepository) GetByOrderAndTransactionID(orderID, transactionID string) (*models.Transaction, error) {
	var txn models.Transaction
	if err := r.db.Where("order_id = ? AND transaction_id = ?", orderID, transactionID).First(&txn).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &txn, nil
}

// ListByOrder 获取订单的全部流水
func (r *GormTransactionRepository) ListByOrder(orderID string) ([]models.Transaction, error) {
	var rows []models.Transaction
	if err := r.db.Where("order_id = ?", orderID).Order("id asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// CountByOrder 统计订单流水数量
func (r *GormTransactionRepository) CountByOrder(orderID string) (int64, error) {
	var count int64
	if err := r.db.Model(&models.Transaction{}).Where("order_id = ?", orderID).Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}
