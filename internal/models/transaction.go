package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// ErrTransactionImmutable 交易流水只允许追加
var ErrTransactionImmutable = errors.New("transaction record is append-only")

// Transaction 交易流水表
type Transaction struct {
	ID            uint      `gorm:"primarykey" json:"id"`
	UserID        string    `gorm:"type:varchar(64);not null;index" json:"user_id"`
	OrderID       string    `gorm:"type:varchar(64);not null;uniqueIndex:uk_transactions_txn_order,priority:2" json:"order_id"`
	PaymentMethod string    `gorm:"type:varchar(32);not null" json:"payment_method"`
	Amount        int64     `gorm:"not null" json:"amount"`
	Currency      string    `gorm:"type:varchar(8);not null" json:"currency"`
	Status        string    `gorm:"type:varchar(16);not null" json:"status"`
	TransactionID string    `gorm:"type:varchar(128);not null;uniqueIndex:uk_transactions_txn_order,priority:1" json:"transaction_id"` // 第三方交易流水号
	Metadata      JSON      `gorm:"type:json" json:"metadata,omitempty"`
	CreatedAt     time.Time `gorm:"index" json:"created_at"`
}

// TableName 指定表名
func (Transaction) TableName() string {
	return "transactions"
}

// BeforeUpdate 禁止修改流水
func (t *Transaction) BeforeUpdate(tx *gorm.DB) error {
	return ErrTransactionImmutable
}

// BeforeDelete 禁止删除流水
func (t *Transaction) BeforeDelete(tx *gorm.DB) error {
	return ErrTransactionImmutable
}
