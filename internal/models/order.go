package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrOrderImmutableField 订单创建后禁止修改金额、币种、归属与套餐
var ErrOrderImmutableField = errors.New("order immutable field changed")

// Order 订单表
type Order struct {
	ID              string     `gorm:"primaryKey;type:varchar(64)" json:"id"`                                                 // 订单号（支付方式前缀 + 随机串）
	UserID          string     `gorm:"type:varchar(64);not null;index:idx_orders_user_plan_method,priority:1" json:"user_id"` // 用户ID
	PlanType        string     `gorm:"type:varchar(32);not null;index:idx_orders_user_plan_method,priority:2" json:"plan_type"`
	PaymentMethod   string     `gorm:"type:varchar(32);not null;index:idx_orders_user_plan_method,priority:3" json:"payment_method"`
	Amount          int64      `gorm:"not null" json:"amount"`                        // 金额（最小货币单位）
	Currency        string     `gorm:"type:varchar(8);not null" json:"currency"`      // 币种
	Status          string     `gorm:"type:varchar(16);not null;index" json:"status"` // 订单状态
	TransactionID   *string    `gorm:"type:varchar(128);index" json:"transaction_id"` // 第三方交易流水号
	InteractionMode string     `gorm:"type:varchar(16)" json:"interaction_mode"`      // 支付交互方式
	PaymentURL      string     `gorm:"type:text" json:"-"`                            // 支付链接/表单/二维码内容
	ProviderRef     string     `gorm:"type:varchar(128);index" json:"-"`              // 第三方订单/会话标识
	Metadata        JSON       `gorm:"type:json" json:"-"`                            // 透传数据与渠道原始载荷
	ClientIP        string     `gorm:"type:varchar(64)" json:"-"`                     // 下单客户端IP
	ExpiresAt       *time.Time `gorm:"index" json:"expires_at"`                       // 支付过期时间
	PaidAt          *time.Time `json:"paid_at"`                                       // 支付时间
	CancelledAt     *time.Time `json:"cancelled_at"`                                  // 取消时间
	CreatedAt       time.Time  `gorm:"index" json:"created_at"`                       // 创建时间
	UpdatedAt       time.Time  `json:"updated_at"`                                    // 更新时间
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// BeforeUpdate 拦截对不可变字段的修改
func (o *Order) BeforeUpdate(tx *gorm.DB) error {
	if tx.Statement.Changed("Amount", "Currency", "UserID", "PlanType", "PaymentMethod") {
		return ErrOrderImmutableField
	}
	return nil
}

// IsExpired 判断待支付订单是否已过期
func (o *Order) IsExpired(now time.Time) bool {
	if o == nil || o.ExpiresAt == nil {
		return false
	}
	return !o.ExpiresAt.After(now)
}
