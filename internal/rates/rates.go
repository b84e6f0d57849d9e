package rates

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrConfigInvalid   = errors.New("rates config invalid")
	ErrRequestFailed   = errors.New("rates request failed")
	ErrResponseInvalid = errors.New("rates response invalid")
	ErrRateInvalid     = errors.New("rates rate invalid")
)

// Config 汇率源配置
type Config struct {
	BaseURL        string `json:"base_url"`        // 汇率 API 地址
	APIKey         string `json:"api_key"`         // API Key，可选
	TimeoutSeconds int    `json:"timeout_seconds"` // 请求超时，默认 10 秒
}

// Quote 单次汇率报价
type Quote struct {
	Base      string          // 结算币种，固定 BCH
	Currency  string          // 法币币种
	Rate      decimal.Decimal // 1 BCH 对应的法币金额
	FetchedAt time.Time       // 获取时间
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 10 * time.Second
}

// FetchQuote 拉取当前 BCH 对指定法币的汇率
func FetchQuote(ctx context.Context, cfg *Config, currency string) (*Quote, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		return nil, fmt.Errorf("%w: currency is required", ErrConfigInvalid)
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/v1/ticker"
	query := url.Values{}
	query.Set("base", "BCH")
	query.Set("quote", currency)

	respBytes, err := getJSON(ctx, endpoint+"?"+query.Encode(), cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		Base      string `json:"base"`
		Quote     string `json:"quote"`
		Rate      string `json:"rate"`
		Timestamp int64  `json:"timestamp"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	rate, err := decimal.NewFromString(strings.TrimSpace(resp.Rate))
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRateInvalid, resp.Rate)
	}
	if rate.Sign() <= 0 {
		return nil, fmt.Errorf("%w: rate must be positive", ErrRateInvalid)
	}

	fetchedAt := time.Now()
	if resp.Timestamp > 0 {
		fetchedAt = time.Unix(resp.Timestamp, 0)
	}

	return &Quote{
		Base:      "BCH",
		Currency:  currency,
		Rate:      rate,
		FetchedAt: fetchedAt,
	}, nil
}

func getJSON(ctx context.Context, endpoint string, cfg *Config) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if strings.TrimSpace(cfg.APIKey) != "" {
		req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))
	}

	client := &http.Client{Timeout: cfg.timeout()}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("http status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
