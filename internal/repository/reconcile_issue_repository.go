package repository

import (
	"errors"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"gorm.io/gorm"
)

// ReconcileIssueRepository 对账异常数据访问接口
type ReconcileIssueRepository interface {
	Create(issue *models.ReconcileIssue) error
	GetByID(id uint) (*models.ReconcileIssue, error)
	FindOpen(orderID, transactionID, stage string) (*models.ReconcileIssue, error)
	ListAdmin(filter ReconcileIssueListFilter) ([]models.ReconcileIssue, int64, error)
	ListRetryable(stage string, maxAttempts int, limit int) ([]models.ReconcileIssue, error)
	RecordAttempt(id uint, lastError string) error
	MarkResolved(id uint, at time.Time) error
}

// GormReconcileIssueRepository GORM 实现
type GormReconcileIssueRepository struct {
	db *gorm.DB
}

// NewReconcileIssueRepository 创建对账异常仓库
func NewReconcileIssueRepository(db *gorm.DB) *GormReconcileIssueRepository {
	return &GormReconcileIssueRepository{db: db}
}

// Create 创建对账异常
func (r *GormReconcileIssueRepository) Create(issue *models.ReconcileIssue) error {
	return r.db.Create(issue).Error
}

// GetByID 根据 ID 获取对账异常
func (r *GormReconcileIssueRepository) GetByID(id uint) (*models.ReconcileIssue, error) {
	if id == 0 {
		return nil, nil
	}
	var issue models.ReconcileIssue
	if err := r.db.First(&issue, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &issue, nil
}

// FindOpen 查找同一订单、流水号与阶段下未解决的异常
func (r *GormReconcileIssueRepository) FindOpen(orderID, transactionID, stage string) (*models.ReconcileIssue, error) {
	var issue models.ReconcileIssue
	err := r.db.
		Where("order_id = ? AND transaction_id = ? AND stage = ? AND status = ?", orderID, transactionID, stage, constants.ReconcileIssueStatusOpen).
		Order("id desc").
		First(&issue).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &issue, nil
}

// ListAdmin 管理端对账异常列表
func (r *GormReconcileIssueRepository) ListAdmin(filter ReconcileIssueListFilter) ([]models.ReconcileIssue, int64, error) {
	query := r.db.Model(&models.ReconcileIssue{}).Scopes(
		whereIfSet("order_id", filter.OrderID),
		whereIfSet("provider", filter.Provider),
		whereIfSet("stage", filter.Stage),
		whereIfSet("status", filter.Status),
	)
	return findPage[models.ReconcileIssue](query, filter.Page, filter.PageSize, "id desc")
}

// ListRetryable 获取仍可自动重试的异常
func (r *GormReconcileIssueRepository) ListRetryable(stage string, maxAttempts int, limit int) ([]models.ReconcileIssue, error) {
	query := r.db.Where("status = ? AND stage = ?", constants.ReconcileIssueStatusOpen, stage)
	if maxAttempts > 0 {
		query = query.Where("attempts < ?", maxAttempts)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	var issues []models.ReconcileIssue
	if err := query.Order("id asc").Find(&issues).Error; err != nil {
		return nil, err
	}
	return issues, nil
}

// RecordAttempt 累加重试次数并记录最后一次错误
func (r *GormReconcileIssueRepository) RecordAttempt(id uint, lastError string) error {
	return r.db.Model(&models.ReconcileIssue{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

// MarkResolved 标记异常已解决
func (r *GormReconcileIssueRepository) MarkResolved(id uint, at time.Time) error {
	return r.db.Model(&models.ReconcileIssue{}).
		Where("id = ? AND status = ?", id, constants.ReconcileIssueStatusOpen).
		Updates(map[string]interface{}{
			"status":      constants.ReconcileIssueStatusResolved,
			"resolved_at": at,
		}).Error
}
