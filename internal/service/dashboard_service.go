package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/cache"
	"github.com/paysats/paysats-api/internal/repository"
)

const (
	dashboardCacheTTL      = 45 * time.Second
	dashboardCustomMaxDays = 90

	// 告警阈值，超过即在总览返回告警项
	pendingPaymentAlertThreshold      = 20
	paymentsFailedAlertThreshold      = 10
	pendingFulfillmentsAlertThreshold = 5
)

// DashboardService 仪表盘服务
// 说明：聚合后台首页核心经营数据。
type DashboardService struct {
	repo repository.DashboardRepository
}

// NewDashboardService 创建仪表盘服务
func NewDashboardService(repo repository.DashboardRepository) *DashboardService {
	return &DashboardService{repo: repo}
}

// DashboardQueryInput 仪表盘查询输入
type DashboardQueryInput struct {
	Range        string
	From         *time.Time
	To           *time.Time
	Timezone     string
	ForceRefresh bool
}

// DashboardOverviewResponse 仪表盘总览响应
type DashboardOverviewResponse struct {
	Range    string               `json:"range"`
	From     string               `json:"from"`
	To       string               `json:"to"`
	Timezone string               `json:"timezone"`
	Currency string               `json:"currency,omitempty"`
	KPI      DashboardKPI         `json:"kpi"`
	Funnel   DashboardFunnel      `json:"funnel"`
	Alerts   []DashboardAlertItem `json:"alerts"`
}

// DashboardKPI 仪表盘核心指标
type DashboardKPI struct {
	TransactionsTotal          int64  `json:"transactions_total"`
	PaidTransactions           int64  `json:"paid_transactions"`
	CompletedTransactions      int64  `json:"completed_transactions"`
	PendingPaymentTransactions int64  `json:"pending_payment_transactions"`
	CanceledTransactions       int64  `json:"canceled_transactions"`
	GMVPaid                    string `json:"gmv_paid"`
	PaymentsTotal              int64  `json:"payments_total"`
	PaymentsConfirmed          int64  `json:"payments_confirmed"`
	PaymentsFailed             int64  `json:"payments_failed"`
	PaymentsExpired            int64  `json:"payments_expired"`
	PaymentConfirmRate         string `json:"payment_confirm_rate"`
	SettledSats                int64  `json:"settled_sats"`
	PendingFulfillments        int64  `json:"pending_fulfillments"`
}

// DashboardFunnel 仪表盘转化漏斗
type DashboardFunnel struct {
	TransactionsCreated   int64  `json:"transactions_created"`
	PaymentsCreated       int64  `json:"payments_created"`
	PaymentsConfirmed     int64  `json:"payments_confirmed"`
	TransactionsPaid      int64  `json:"transactions_paid"`
	TransactionsCompleted int64  `json:"transactions_completed"`
	PaymentConversionRate string `json:"payment_conversion_rate"`
	CompletionRate        string `json:"completion_rate"`
}

// DashboardAlertItem 仪表盘告警项
type DashboardAlertItem struct {
	Type  string `json:"type"`
	Level string `json:"level"`
	Value int64  `json:"value"`
}

// DashboardTrendResponse 仪表盘趋势响应
type DashboardTrendResponse struct {
	Range    string                `json:"range"`
	From     string                `json:"from"`
	To       string                `json:"to"`
	Timezone string                `json:"timezone"`
	Points   []DashboardTrendPoint `json:"points"`
}

// DashboardTrendPoint 趋势点
type DashboardTrendPoint struct {
	Date              string `json:"date"`
	TransactionsTotal int64  `json:"transactions_total"`
	TransactionsPaid  int64  `json:"transactions_paid"`
	PaymentsConfirmed int64  `json:"payments_confirmed"`
	PaymentsFailed    int64  `json:"payments_failed"`
	SettledSats       int64  `json:"settled_sats"`
}

// DashboardRankingsResponse 仪表盘排行榜响应
type DashboardRankingsResponse struct {
	Range       string                    `json:"range"`
	From        string                    `json:"from"`
	To          string                    `json:"to"`
	Timezone    string                    `json:"timezone"`
	TopServices []DashboardServiceRanking `json:"top_services"`
}

// DashboardServiceRanking 业务类型排行项
type DashboardServiceRanking struct {
	ServiceType string `json:"service_type"`
	PaidTxns    int64  `json:"paid_txns"`
	PaidAmount  string `json:"paid_amount"`
}

type dashboardWindow struct {
	rangeKey string
	startAt  time.Time
	endAt    time.Time
	timezone string
}

// GetOverview 获取仪表盘总览
func (s *DashboardService) GetOverview(ctx context.Context, input DashboardQueryInput) (*DashboardOverviewResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardOverviewResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:overview:%s:%d:%d:%s",
		window.rangeKey,
		window.startAt.Unix(),
		window.endAt.Unix(),
		window.timezone,
	)
	if !input.ForceRefresh {
		var cached DashboardOverviewResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	overview, err := s.repo.GetOverview(window.startAt, window.endAt)
	if err != nil {
		return nil, err
	}

	paymentConfirmRate := 0.0
	if overview.PaymentsTotal > 0 {
		paymentConfirmRate = float64(overview.PaymentsConfirmed) / float64(overview.PaymentsTotal) * 100
	}

	paymentConversionRate := 0.0
	if overview.TransactionsTotal > 0 {
		paymentConversionRate = float64(overview.PaidTransactions) / float64(overview.TransactionsTotal) * 100
	}

	completionRate := 0.0
	if overview.PaidTransactions > 0 {
		completionRate = float64(overview.CompletedTxns) / float64(overview.PaidTransactions) * 100
	}

	response := &DashboardOverviewResponse{
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		Currency: strings.ToUpper(strings.TrimSpace(overview.Currency)),
		KPI: DashboardKPI{
			TransactionsTotal:          overview.TransactionsTotal,
			PaidTransactions:           overview.PaidTransactions,
			CompletedTransactions:      overview.CompletedTxns,
			PendingPaymentTransactions: overview.PendingPaymentTxns,
			CanceledTransactions:       overview.CanceledTxns,
			GMVPaid:                    formatMoneyValue(overview.GMVFiatPaid),
			PaymentsTotal:              overview.PaymentsTotal,
			PaymentsConfirmed:          overview.PaymentsConfirmed,
			PaymentsFailed:             overview.PaymentsFailed,
			PaymentsExpired:            overview.PaymentsExpired,
			PaymentConfirmRate:         formatPercentValue(paymentConfirmRate),
			SettledSats:                overview.SettledSats,
			PendingFulfillments:        overview.PendingFulfillments,
		},
		Funnel: DashboardFunnel{
			TransactionsCreated:   overview.TransactionsTotal,
			PaymentsCreated:       overview.PaymentsTotal,
			PaymentsConfirmed:     overview.PaymentsConfirmed,
			TransactionsPaid:      overview.PaidTransactions,
			TransactionsCompleted: overview.CompletedTxns,
			PaymentConversionRate: formatPercentValue(paymentConversionRate),
			CompletionRate:        formatPercentValue(completionRate),
		},
		Alerts: buildDashboardAlerts(overview),
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

// GetTrends 获取仪表盘趋势
func (s *DashboardService) GetTrends(ctx context.Context, input DashboardQueryInput) (*DashboardTrendResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardTrendResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:trends:%s:%d:%d:%s",
		window.rangeKey,
		window.startAt.Unix(),
		window.endAt.Unix(),
		window.timezone,
	)
	if !input.ForceRefresh {
		var cached DashboardTrendResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	txnRows, err := s.repo.GetTransactionTrends(window.startAt, window.endAt)
	if err != nil {
		return nil, err
	}
	paymentRows, err := s.repo.GetPaymentTrends(window.startAt, window.endAt)
	if err != nil {
		return nil, err
	}

	paymentMap := make(map[string]repository.DashboardPaymentTrendRow, len(paymentRows))
	for _, row := range paymentRows {
		paymentMap[row.Day] = row
	}
	txnMap := make(map[string]repository.DashboardTransactionTrendRow, len(txnRows))
	for _, row := range txnRows {
		txnMap[row.Day] = row
	}

	seen := make(map[string]struct{}, len(txnRows)+len(paymentRows))
	points := make([]DashboardTrendPoint, 0, len(txnRows)+len(paymentRows))
	push := func(day string) {
		if day == "" {
			return
		}
		if _, ok := seen[day]; ok {
			return
		}
		seen[day] = struct{}{}
		txn := txnMap[day]
		payment := paymentMap[day]
		points = append(points, DashboardTrendPoint{
			Date:              day,
			TransactionsTotal: txn.TxnsTotal,
			TransactionsPaid:  txn.TxnsPaid,
			PaymentsConfirmed: payment.PaymentsConfirmed,
			PaymentsFailed:    payment.PaymentsFailed,
			SettledSats:       payment.SettledSats,
		})
	}
	for _, row := range txnRows {
		push(row.Day)
	}
	for _, row := range paymentRows {
		push(row.Day)
	}

	response := &DashboardTrendResponse{
		Range:    window.rangeKey,
		From:     window.startAt.Format(time.RFC3339),
		To:       window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone: window.timezone,
		Points:   points,
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

// GetRankings 获取仪表盘排行榜
func (s *DashboardService) GetRankings(ctx context.Context, input DashboardQueryInput) (*DashboardRankingsResponse, error) {
	if s == nil || s.repo == nil {
		return &DashboardRankingsResponse{}, nil
	}

	window, err := resolveDashboardWindow(input, time.Now())
	if err != nil {
		return nil, err
	}

	cacheKey := fmt.Sprintf("dashboard:rankings:%s:%d:%d:%s",
		window.rangeKey,
		window.startAt.Unix(),
		window.endAt.Unix(),
		window.timezone,
	)
	if !input.ForceRefresh {
		var cached DashboardRankingsResponse
		hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
		if cacheErr == nil && hit {
			return &cached, nil
		}
	}

	serviceRows, err := s.repo.GetTopServices(window.startAt, window.endAt, 5)
	if err != nil {
		return nil, err
	}

	topServices := make([]DashboardServiceRanking, 0, len(serviceRows))
	for _, row := range serviceRows {
		topServices = append(topServices, DashboardServiceRanking{
			ServiceType: row.ServiceType,
			PaidTxns:    row.PaidTxns,
			PaidAmount:  formatMoneyValue(row.PaidAmount),
		})
	}

	response := &DashboardRankingsResponse{
		Range:       window.rangeKey,
		From:        window.startAt.Format(time.RFC3339),
		To:          window.endAt.Add(-time.Second).Format(time.RFC3339),
		Timezone:    window.timezone,
		TopServices: topServices,
	}

	_ = cache.SetJSON(ctx, cacheKey, response, dashboardCacheTTL)
	return response, nil
}

func resolveDashboardWindow(input DashboardQueryInput, now time.Time) (dashboardWindow, error) {
	rangeKey := strings.ToLower(strings.TrimSpace(input.Range))
	if rangeKey == "" {
		rangeKey = "7d"
	}

	timezone := strings.TrimSpace(input.Timezone)
	location := time.Local
	if timezone != "" {
		if parsed, err := time.LoadLocation(timezone); err == nil {
			location = parsed
		} else {
			timezone = ""
		}
	}
	if timezone == "" {
		timezone = location.String()
	}

	localNow := now.In(location)
	todayStart := time.Date(localNow.Year(), localNow.Month(), localNow.Day(), 0, 0, 0, 0, location)
	window := dashboardWindow{rangeKey: rangeKey, timezone: timezone}

	switch rangeKey {
	case "today":
		window.startAt = todayStart
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "7d":
		window.startAt = todayStart.AddDate(0, 0, -6)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "30d":
		window.startAt = todayStart.AddDate(0, 0, -29)
		window.endAt = todayStart.AddDate(0, 0, 1)
	case "custom":
		if input.From == nil || input.To == nil {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		startAt := input.From.In(location)
		endAt := input.To.In(location)
		if endAt.Before(startAt) {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		if endAt.Sub(startAt) > time.Hour*24*dashboardCustomMaxDays {
			return dashboardWindow{}, ErrDashboardRangeInvalid
		}
		window.startAt = startAt
		window.endAt = endAt.Add(time.Second)
	default:
		return dashboardWindow{}, ErrDashboardRangeInvalid
	}

	if !window.endAt.After(window.startAt) {
		return dashboardWindow{}, ErrDashboardRangeInvalid
	}
	return window, nil
}

func formatMoneyValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func formatPercentValue(value float64) string {
	return fmt.Sprintf("%.2f", value)
}

func buildDashboardAlerts(overview repository.DashboardOverviewRow) []DashboardAlertItem {
	alerts := make([]DashboardAlertItem, 0, 3)
	if overview.PendingPaymentTxns >= pendingPaymentAlertThreshold {
		alerts = append(alerts, DashboardAlertItem{Type: "pending_payment_transactions", Level: "warning", Value: overview.PendingPaymentTxns})
	}
	if overview.PaymentsFailed >= paymentsFailedAlertThreshold {
		alerts = append(alerts, DashboardAlertItem{Type: "payments_failed", Level: "warning", Value: overview.PaymentsFailed})
	}
	if overview.PendingFulfillments >= pendingFulfillmentsAlertThreshold {
		alerts = append(alerts, DashboardAlertItem{Type: "pending_fulfillments", Level: "warning", Value: overview.PendingFulfillments})
	}
	return alerts
}
