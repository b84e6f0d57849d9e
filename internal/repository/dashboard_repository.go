package repository

import (
	"fmt"
	"time"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"

	"gorm.io/gorm"
)

// DashboardRepository 仪表盘聚合查询接口
// 说明：仅聚合统计数据，不承载业务规则。
type DashboardRepository interface {
	GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error)
	GetTransactionTrends(startAt, endAt time.Time) ([]DashboardTransactionTrendRow, error)
	GetPaymentTrends(startAt, endAt time.Time) ([]DashboardPaymentTrendRow, error)
	GetTopServices(startAt, endAt time.Time, limit int) ([]DashboardServiceRankingRow, error)
}

// DashboardOverviewRow 仪表盘总览原始统计结果
type DashboardOverviewRow struct {
	TransactionsTotal   int64
	PaidTransactions    int64
	CompletedTxns       int64
	PendingPaymentTxns  int64
	CanceledTxns        int64
	GMVFiatPaid         float64
	PaymentsTotal       int64
	PaymentsConfirmed   int64
	PaymentsFailed      int64
	PaymentsExpired     int64
	SettledSats         int64
	PendingFulfillments int64
	Currency            string
}

// DashboardTransactionTrendRow 交易趋势统计
type DashboardTransactionTrendRow struct {
	Day        string
	TxnsTotal  int64
	TxnsPaid   int64
}

// DashboardPaymentTrendRow 支付趋势统计
type DashboardPaymentTrendRow struct {
	Day               string
	PaymentsConfirmed int64
	PaymentsFailed    int64
	SettledSats       int64
}

// DashboardServiceRankingRow 业务类型排行原始行
type DashboardServiceRankingRow struct {
	ServiceType string
	PaidTxns    int64
	PaidAmount  float64
}

// GormDashboardRepository GORM 仪表盘聚合实现
type GormDashboardRepository struct {
	db *gorm.DB
}

// NewDashboardRepository 创建仪表盘仓库
func NewDashboardRepository(db *gorm.DB) *GormDashboardRepository {
	return &GormDashboardRepository{db: db}
}

func paidTransactionStatuses() []string {
	return []string{
		constants.TransactionStatusPaid,
		constants.TransactionStatusFulfilling,
		constants.TransactionStatusCompleted,
	}
}

// GetOverview 获取总览统计
func (r *GormDashboardRepository) GetOverview(startAt, endAt time.Time) (DashboardOverviewRow, error) {
	result := DashboardOverviewRow{}

	txnBase := func() *gorm.DB {
		return r.db.Model(&models.Transaction{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}

	if err := txnBase().Count(&result.TransactionsTotal).Error; err != nil {
		return result, err
	}

	paidStatuses := paidTransactionStatuses()
	if err := txnBase().Where("status IN ?", paidStatuses).Count(&result.PaidTransactions).Error; err != nil {
		return result, err
	}
	if err := txnBase().Where("status = ?", constants.TransactionStatusCompleted).Count(&result.CompletedTxns).Error; err != nil {
		return result, err
	}
	if err := txnBase().Where("status = ?", constants.TransactionStatusPendingPayment).Count(&result.PendingPaymentTxns).Error; err != nil {
		return result, err
	}
	if err := txnBase().Where("status = ?", constants.TransactionStatusCanceled).Count(&result.CanceledTxns).Error; err != nil {
		return result, err
	}

	if err := r.db.Model(&models.Transaction{}).
		Where("paid_at IS NOT NULL AND paid_at >= ? AND paid_at < ? AND status IN ?", startAt, endAt, paidStatuses).
		Select("COALESCE(SUM(amount_fiat), 0)").
		Scan(&result.GMVFiatPaid).Error; err != nil {
		return result, err
	}

	paymentBase := func() *gorm.DB {
		return r.db.Model(&models.Payment{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}
	if err := paymentBase().Count(&result.PaymentsTotal).Error; err != nil {
		return result, err
	}
	if err := paymentBase().Where("status = ?", constants.PaymentStatusConfirmed).Count(&result.PaymentsConfirmed).Error; err != nil {
		return result, err
	}
	if err := paymentBase().Where("status = ?", constants.PaymentStatusFailed).Count(&result.PaymentsFailed).Error; err != nil {
		return result, err
	}
	if err := paymentBase().Where("status = ?", constants.PaymentStatusExpired).Count(&result.PaymentsExpired).Error; err != nil {
		return result, err
	}
	if err := paymentBase().Where("status = ?", constants.PaymentStatusConfirmed).
		Select("COALESCE(SUM(amount_sats), 0)").
		Scan(&result.SettledSats).Error; err != nil {
		return result, err
	}

	if err := r.db.Model(&models.Fulfillment{}).
		Where("created_at >= ? AND created_at < ? AND status = ?", startAt, endAt, constants.FulfillmentStatusPending).
		Count(&result.PendingFulfillments).Error; err != nil {
		return result, err
	}

	_ = r.db.Model(&models.Transaction{}).
		Where("created_at >= ? AND created_at < ? AND currency <> ''", startAt, endAt).
		Order("id DESC").
		Limit(1).
		Pluck("currency", &result.Currency).Error

	return result, nil
}

// GetTransactionTrends 获取交易趋势
func (r *GormDashboardRepository) GetTransactionTrends(startAt, endAt time.Time) ([]DashboardTransactionTrendRow, error) {
	type totalRow struct {
		Day   string
		Total int64
	}
	type paidRow struct {
		Day  string
		Paid int64
	}

	var totals []totalRow
	dayExpr := "CAST(date(created_at) AS TEXT)"
	if err := r.db.Model(&models.Transaction{}).
		Select(fmt.Sprintf("%s as day, COUNT(*) as total", dayExpr)).
		Where("created_at >= ? AND created_at < ?", startAt, endAt).
		Group(dayExpr).
		Order("day asc").
		Scan(&totals).Error; err != nil {
		return nil, err
	}

	var paids []paidRow
	if err := r.db.Model(&models.Transaction{}).
		Select(fmt.Sprintf("%s as day, COUNT(*) as paid", dayExpr)).
		Where("created_at >= ? AND created_at < ? AND status IN ?", startAt, endAt, paidTransactionStatuses()).
		Group(dayExpr).
		Order("day asc").
		Scan(&paids).Error; err != nil {
		return nil, err
	}

	paidMap := make(map[string]int64, len(paids))
	for _, item := range paids {
		paidMap[item.Day] = item.Paid
	}

	result := make([]DashboardTransactionTrendRow, 0, len(totals))
	for _, item := range totals {
		result = append(result, DashboardTransactionTrendRow{
			Day:       item.Day,
			TxnsTotal: item.Total,
			TxnsPaid:  paidMap[item.Day],
		})
	}
	return result, nil
}

// GetPaymentTrends 获取支付趋势
func (r *GormDashboardRepository) GetPaymentTrends(startAt, endAt time.Time) ([]DashboardPaymentTrendRow, error) {
	type countRow struct {
		Day   string
		Total int64
	}
	type satsRow struct {
		Day   string
		Total int64
	}

	dayExpr := "CAST(date(created_at) AS TEXT)"
	paymentBase := func() *gorm.DB {
		return r.db.Model(&models.Payment{}).
			Where("created_at >= ? AND created_at < ?", startAt, endAt)
	}

	var confirmedRows []countRow
	if err := paymentBase().
		Select(fmt.Sprintf("%s as day, COUNT(*) as total", dayExpr)).
		Where("status = ?", constants.PaymentStatusConfirmed).
		Group(dayExpr).
		Order("day asc").
		Scan(&confirmedRows).Error; err != nil {
		return nil, err
	}

	var failedRows []countRow
	if err := paymentBase().
		Select(fmt.Sprintf("%s as day, COUNT(*) as total", dayExpr)).
		Where("status IN ?", []string{constants.PaymentStatusFailed, constants.PaymentStatusExpired}).
		Group(dayExpr).
		Order("day asc").
		Scan(&failedRows).Error; err != nil {
		return nil, err
	}

	var satsRows []satsRow
	if err := paymentBase().
		Select(fmt.Sprintf("%s as day, COALESCE(SUM(amount_sats), 0) as total", dayExpr)).
		Where("status = ?", constants.PaymentStatusConfirmed).
		Group(dayExpr).
		Order("day asc").
		Scan(&satsRows).Error; err != nil {
		return nil, err
	}

	confirmedMap := make(map[string]int64, len(confirmedRows))
	for _, item := range confirmedRows {
		confirmedMap[item.Day] = item.Total
	}
	failedMap := make(map[string]int64, len(failedRows))
	for _, item := range failedRows {
		failedMap[item.Day] = item.Total
	}
	satsMap := make(map[string]int64, len(satsRows))
	for _, item := range satsRows {
		satsMap[item.Day] = item.Total
	}

	seen := make(map[string]struct{}, len(confirmedRows)+len(failedRows)+len(satsRows))
	result := make([]DashboardPaymentTrendRow, 0)
	push := func(day string) {
		if day == "" {
			return
		}
		if _, ok := seen[day]; ok {
			return
		}
		seen[day] = struct{}{}
		result = append(result, DashboardPaymentTrendRow{
			Day:               day,
			PaymentsConfirmed: confirmedMap[day],
			PaymentsFailed:    failedMap[day],
			SettledSats:       satsMap[day],
		})
	}
	for _, item := range confirmedRows {
		push(item.Day)
	}
	for _, item := range failedRows {
		push(item.Day)
	}
	for _, item := range satsRows {
		push(item.Day)
	}

	return result, nil
}

// GetTopServices 获取业务类型排行榜
func (r *GormDashboardRepository) GetTopServices(startAt, endAt time.Time, limit int) ([]DashboardServiceRankingRow, error) {
	if limit <= 0 {
		limit = 5
	}
	rows := make([]DashboardServiceRankingRow, 0)
	if err := r.db.Model(&models.Transaction{}).
		Select(`
			service_type as service_type,
			COUNT(*) as paid_txns,
			COALESCE(SUM(amount_fiat), 0) as paid_amount
		`).
		Where("created_at >= ? AND created_at < ? AND status IN ?", startAt, endAt, paidTransactionStatuses()).
		Group("service_type").
		Order("paid_amount DESC, paid_txns DESC").
		Limit(limit).
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
