package repository

import "time"

// TransactionListFilter 查询交易列表的过滤条件
type TransactionListFilter struct {
	Page        int
	PageSize    int
	Reference   string
	ServiceType string
	Provider    string
	Status      string
	Search      string
	CreatedFrom *time.Time
	CreatedTo   *time.Time
}

// PaymentListFilter 查询支付台账列表的过滤条件
type PaymentListFilter struct {
	Page          int
	PageSize      int
	TransactionID uint
	Address       string
	TxHash        string
	Status        string
	CreatedFrom   *time.Time
	CreatedTo     *time.Time
}

// FulfillmentListFilter 查询交付记录列表的过滤条件
type FulfillmentListFilter struct {
	Page          int
	PageSize      int
	TransactionID uint
	Status        string
}

// AuthzAuditLogListFilter 查询权限审计日志列表的过滤条件
type AuthzAuditLogListFilter struct {
	Page            int
	PageSize        int
	OperatorAdminID uint
	TargetAdminID   uint
	Action          string
	Role            string
	Object          string
	Method          string
	CreatedFrom     *time.Time
	CreatedTo       *time.Time
}
