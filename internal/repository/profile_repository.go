package repository

import (
	"errors"
	"strings"

	"github.com/qingyi232/QuizMate1-sub002/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProfileRepository 用户订阅视图数据访问接口
type ProfileRepository interface {
	GetByID(userID string) (*models.Profile, error)
	GetByIDForUpdate(userID string) (*models.Profile, error)
	Upsert(profile *models.Profile) error
	WithTx(tx *gorm.DB) *GormProfileRepository
}

// GormProfileRepository GORM 实现
type GormProfileRepository struct {
	db *gorm.DB
}

// NewProfileRepository 创建订阅视图仓库
func NewProfileRepository(db *gorm.DB) *GormProfileRepository {
	return &GormProfileRepository{db: db}
}

// WithTx 绑定事务
func (r *GormProfileRepository) WithTx(tx *gorm.DB) *GormProfileRepository {
	if tx == nil {
		return r
	}
	return &GormProfileRepository{db: tx}
}

// GetByID 获取用户订阅视图
func (r *GormProfileRepository) GetByID(userID string) (*models.Profile, error) {
	return r.first(r.db, userID)
}

// GetByIDForUpdate 加锁获取用户订阅视图
func (r *GormProfileRepository) GetByIDForUpdate(userID string) (*models.Profile, error) {
	return r.first(r.db.Clauses(clause.Locking{Strength: "UPDATE"}), userID)
}

// Upsert 写入订阅视图，主键冲突时覆盖套餐、状态与到期时间
func (r *GormProfileRepository) Upsert(profile *models.Profile) error {
	if profile == nil || strings.TrimSpace(profile.ID) == "" {
		return errors.New("profile id is required")
	}
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"plan", "subscription_status", "subscription_end_date", "updated_at"}),
	}).Create(profile).Error
}

func (r *GormProfileRepository) first(query *gorm.DB, userID string) (*models.Profile, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	var profile models.Profile
	if err := query.Where("id = ?", userID).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}
