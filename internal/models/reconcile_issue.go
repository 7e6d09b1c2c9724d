package models

import "time"

// ReconcileIssue 对账异常记录（补偿重试日志）
type ReconcileIssue struct {
	ID            uint       `gorm:"primarykey" json:"id"`
	OrderID       string     `gorm:"type:varchar(64);not null;index" json:"order_id"`
	Provider      string     `gorm:"type:varchar(32);not null" json:"provider"`
	TransactionID string     `gorm:"type:varchar(128);index" json:"transaction_id"`
	Stage         string     `gorm:"type:varchar(32);not null" json:"stage"` // apply / late_payment / amount_mismatch / passback_mismatch
	LastError     string     `gorm:"type:text" json:"last_error"`
	Attempts      int        `gorm:"not null;default:0" json:"attempts"`
	Status        string     `gorm:"type:varchar(16);not null;index" json:"status"`
	Payload       JSON       `gorm:"type:json" json:"payload"` // 已验签的回调事件，用于重放
	ResolvedAt    *time.Time `json:"resolved_at"`
	CreatedAt     time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName 指定表名
func (ReconcileIssue) TableName() string {
	return "reconcile_issues"
}
