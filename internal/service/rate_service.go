package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/paysats/paysats-api/internal/cache"
	"github.com/paysats/paysats-api/internal/config"
	"github.com/paysats/paysats-api/internal/logger"
	"github.com/paysats/paysats-api/internal/rates"

	"github.com/shopspring/decimal"
)

// RateService 汇率服务，带 Redis 缓存
type RateService struct {
	cfg *config.Config
}

// NewRateService 创建汇率服务
func NewRateService(cfg *config.Config) *RateService {
	return &RateService{cfg: cfg}
}

// RateQuote 对外报价
type RateQuote struct {
	Base      string `json:"base"`       // 结算币种
	Currency  string `json:"currency"`   // 法币币种
	Rate      string `json:"rate"`       // 1 BCH 对应的法币金额
	FetchedAt string `json:"fetched_at"` // 报价时间
}

func (s *RateService) currency() string {
	if s.cfg != nil {
		if c := strings.ToUpper(strings.TrimSpace(s.cfg.Site.Currency)); c != "" {
			return c
		}
	}
	return "NGN"
}

func (s *RateService) cacheTTL() time.Duration {
	if s.cfg != nil && s.cfg.Rates.CacheSeconds > 0 {
		return time.Duration(s.cfg.Rates.CacheSeconds) * time.Second
	}
	return 60 * time.Second
}

func (s *RateService) clientConfig() *rates.Config {
	if s.cfg == nil {
		return nil
	}
	return &rates.Config{
		BaseURL:        s.cfg.Rates.BaseURL,
		APIKey:         s.cfg.Rates.APIKey,
		TimeoutSeconds: s.cfg.Rates.TimeoutSeconds,
	}
}

// GetQuote 获取当前报价，优先读缓存
func (s *RateService) GetQuote(ctx context.Context) (*RateQuote, error) {
	currency := s.currency()
	cacheKey := fmt.Sprintf("rates:bch:%s", strings.ToLower(currency))

	var cached RateQuote
	hit, cacheErr := cache.GetJSON(ctx, cacheKey, &cached)
	if cacheErr == nil && hit {
		return &cached, nil
	}

	quote, err := rates.FetchQuote(ctx, s.clientConfig(), currency)
	if err != nil {
		logger.Warnw("rate_fetch_failed",
			"currency", currency,
			"error", err,
		)
		return nil, ErrRateUnavailable
	}

	response := &RateQuote{
		Base:      quote.Base,
		Currency:  quote.Currency,
		Rate:      quote.Rate.StringFixed(2),
		FetchedAt: quote.FetchedAt.Format(time.RFC3339),
	}
	_ = cache.SetJSON(ctx, cacheKey, response, s.cacheTTL())
	return response, nil
}

// CurrentRate 获取当前汇率数值，供下单锁价使用
func (s *RateService) CurrentRate(ctx context.Context) (decimal.Decimal, string, error) {
	quote, err := s.GetQuote(ctx)
	if err != nil {
		return decimal.Zero, "", err
	}
	rate, parseErr := decimal.NewFromString(quote.Rate)
	if parseErr != nil || rate.Sign() <= 0 {
		return decimal.Zero, "", ErrRateUnavailable
	}
	return rate, quote.Currency, nil
}
