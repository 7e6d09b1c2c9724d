package repository

import (
	"errors"
	"strings"
	"time"

	"github.com/qingyi232/QuizMate1-sub002/internal/constants"
	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OrderRepository 订单数据访问接口
type OrderRepository interface {
	Create(order *models.Order) error
	GetByID(id string) (*models.Order, error)
	GetByIDForUpdate(id string) (*models.Order, error)
	GetByIDAndUser(id string, userID string) (*models.Order, error)
	GetByProviderRef(paymentMethod, providerRef string) (*models.Order, error)
	FindReusablePending(userID, planType, paymentMethod string, now time.Time) (*models.Order, error)
	ListByUser(filter OrderListFilter) ([]models.Order, int64, error)
	ListAdmin(filter OrderListFilter) ([]models.Order, int64, error)
	ListExpiredPending(now time.Time, limit int) ([]models.Order, error)
	TransitionStatus(id, from, to string, updates map[string]interface{}) (bool, error)
	UpdatePendingFields(id string, updates map[string]interface{}) error
	WithTx(tx *gorm.DB) *GormOrderRepository
}

// GormOrderRepository GORM 实现
type GormOrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository 创建订单仓库
func NewOrderRepository(db *gorm.DB) *GormOrderRepository {
	return &GormOrderRepository{db: db}
}

// WithTx 绑定事务
func (r *GormOrderRepository) WithTx(tx *gorm.DB) *GormOrderRepository {
	if tx == nil {
		return r
	}
	return &GormOrderRepository{db: tx}
}

// Create 创建订单
func (r *GormOrderRepository) Create(order *models.Order) error {
	return r.db.Create(order).Error
}

// GetByID 根据订单号获取订单
func (r *GormOrderRepository) GetByID(id string) (*models.Order, error) {
	return r.first(r.db.Where("id = ?", id))
}

// GetByIDForUpdate 加锁读取订单（sqlite 下忽略行锁）
func (r *GormOrderRepository) GetByIDForUpdate(id string) (*models.Order, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", id))
}

// GetByIDAndUser 获取归属于指定用户的订单，不属于该用户时返回 nil
func (r *GormOrderRepository) GetByIDAndUser(id string, userID string) (*models.Order, error) {
	if strings.TrimSpace(id) == "" || strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	return r.first(r.db.Where("id = ? AND user_id = ?", id, userID))
}

// GetByProviderRef 按渠道单号查找订单
func (r *GormOrderRepository) GetByProviderRef(paymentMethod, providerRef string) (*models.Order, error) {
	providerRef = strings.TrimSpace(providerRef)
	if providerRef == "" {
		return nil, nil
	}
	return r.first(r.db.Where("payment_method = ? AND provider_ref = ?", paymentMethod, providerRef))
}

// FindReusablePending 查找同一用户、套餐、支付方式下未过期且已生成支付链接的待支付订单
func (r *GormOrderRepository) FindReusablePending(userID, planType, paymentMethod string, now time.Time) (*models.Order, error) {
	query := r.db.
		Where("user_id = ? AND plan_type = ? AND payment_method = ?", userID, planType, paymentMethod).
		Where("status = ?", constants.OrderStatusPending).
		Where("expires_at > ?", now).
		Where("payment_url <> ''").
		Order("created_at desc")
	return r.first(query)
}

// ListByUser 获取用户订单列表
func (r *GormOrderRepository) ListByUser(filter OrderListFilter) ([]models.Order, int64, error) {
	if strings.TrimSpace(filter.UserID) == "" {
		return []models.Order{}, 0, nil
	}
	return r.list(filter)
}

// ListAdmin 管理端订单列表
func (r *GormOrderRepository) ListAdmin(filter OrderListFilter) ([]models.Order, int64, error) {
	return r.list(filter)
}

func (r *GormOrderRepository) list(filter OrderListFilter) ([]models.Order, int64, error) {
	query := r.db.Model(&models.Order{}).Scopes(
		whereIfSet("user_id", filter.UserID),
		whereIfSet("status", filter.Status),
		whereIfSet("plan_type", filter.PlanType),
		whereIfSet("payment_method", filter.PaymentMethod),
		keywordMatch(filter.Keyword, "id", "transaction_id"),
	)
	if filter.CreatedFrom != nil {
		query = query.Where("created_at >= ?", *filter.CreatedFrom)
	}
	if filter.CreatedTo != nil {
		query = query.Where("created_at <= ?", *filter.CreatedTo)
	}
	return findPage[models.Order](query, filter.Page, filter.PageSize, "created_at desc", "id desc")
}

// ListExpiredPending 获取已过期的待支付订单
func (r *GormOrderRepository) ListExpiredPending(now time.Time, limit int) ([]models.Order, error) {
	var orders []models.Order
	query := r.db.
		Where("status = ? AND expires_at IS NOT NULL AND expires_at <= ?", constants.OrderStatusPending, now).
		Order("expires_at asc")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&orders).Error; err != nil {
		return nil, err
	}
	return orders, nil
}

// TransitionStatus 条件更新订单状态，仅当当前状态为 from 时生效，返回是否命中
func (r *GormOrderRepository) TransitionStatus(id, from, to string, updates map[string]interface{}) (bool, error) {
	if updates == nil {
		updates = map[string]interface{}{}
	}
	updates["status"] = to
	result := r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// UpdatePendingFields 更新待支付订单的渠道字段（支付链接、渠道单号等）
func (r *GormOrderRepository) UpdatePendingFields(id string, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	return r.db.Model(&models.Order{}).
		Where("id = ? AND status = ?", id, constants.OrderStatusPending).
		Updates(updates).Error
}

func (r *GormOrderRepository) first(query *gorm.DB) (*models.Order, error) {
	var order models.Order
	if err := query.First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}
