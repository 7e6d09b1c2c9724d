package models

import "time"

// Profile 用户订阅视图
type Profile struct {
	ID                  string     `gorm:"primaryKey;type:varchar(64)" json:"id"`                                  // 用户ID
	Plan                string     `gorm:"type:varchar(32);not null;default:free" json:"plan"`                    // 当前套餐
	SubscriptionStatus  string     `gorm:"type:varchar(16);not null;default:inactive" json:"subscription_status"` // 订阅状态
	SubscriptionEndDate *time.Time `json:"subscription_end_date"`                                                 // 订阅到期时间
	CreatedAt           time.Time  `json:"created_at"`
	UpdatedAt           time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (Profile) TableName() string {
	return "profiles"
}
