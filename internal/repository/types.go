package repository

import "time"

// OrderListFilter 查询订单列表的过滤条件
type OrderListFilter struct {
	Page          int
	PageSize      int
	UserID        string
	Status        string
	PlanType      string
	PaymentMethod string
	Keyword       string // 订单号或第三方流水号
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// ReconcileIssueListFilter 查询对账异常列表的过滤条件
type ReconcileIssueListFilter struct {
	Page     int
	PageSize int
	OrderID  string
	Provider string
	Stage    string
	Status   string
}
