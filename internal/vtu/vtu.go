package vtu

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	ErrConfigInvalid   = errors.New("vtu config invalid")
	ErrRequestFailed   = errors.New("vtu request failed")
	ErrResponseInvalid = errors.New("vtu response invalid")
	ErrDeliveryFailed  = errors.New("vtu delivery failed")
)

// Config 充值服务商配置
type Config struct {
	BaseURL        string `json:"base_url"`        // 服务商 API 地址
	APIKey         string `json:"api_key"`         // API Key
	TimeoutSeconds int    `json:"timeout_seconds"` // 请求超时，默认 20 秒
}

// DeliverInput 交付请求
type DeliverInput struct {
	Reference     string // 幂等引用，服务商按此去重
	ServiceType   string // airtime / data / cable_tv / electricity
	Provider      string // mtn / dstv / ikeja 等
	TargetAccount string // 手机号 / 智能卡号 / 电表号
	ProductCode   string // 套餐编码，话费与电费可为空
	Amount        string // 面值（法币）
}

// DeliverResult 交付结果
type DeliverResult struct {
	ProviderRef string                 // 服务商侧流水号
	Token       string                 // 电费类业务返回的充值令牌
	Raw         map[string]interface{} // 原始响应
}

// ValidateConfig 校验配置
func ValidateConfig(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("%w: config is nil", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return fmt.Errorf("%w: base_url is required", ErrConfigInvalid)
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return fmt.Errorf("%w: api_key is required", ErrConfigInvalid)
	}
	return nil
}

func (c *Config) timeout() time.Duration {
	if c.TimeoutSeconds > 0 {
		return time.Duration(c.TimeoutSeconds) * time.Second
	}
	return 20 * time.Second
}

// Deliver 发起一次充值交付。
// 服务商按 Reference 幂等，重复提交同一引用不会重复扣款。
func Deliver(ctx context.Context, cfg *Config, input DeliverInput) (*DeliverResult, error) {
	if err := ValidateConfig(cfg); err != nil {
		return nil, err
	}
	if input.Reference == "" || input.TargetAccount == "" || input.Amount == "" {
		return nil, fmt.Errorf("%w: reference, target_account and amount are required", ErrConfigInvalid)
	}

	params := map[string]interface{}{
		"reference":      input.Reference,
		"service_type":   input.ServiceType,
		"provider":       input.Provider,
		"target_account": input.TargetAccount,
		"amount":         input.Amount,
	}
	if input.ProductCode != "" {
		params["product_code"] = input.ProductCode
	}

	endpoint := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/") + "/v1/deliver"
	respBytes, err := postJSON(ctx, endpoint, cfg, params)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}

	var resp struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Data    struct {
			ProviderRef string `json:"provider_ref"`
			Token       string `json:"token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(respBytes, &resp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}

	var raw map[string]interface{}
	_ = json.Unmarshal(respBytes, &raw)

	switch strings.ToLower(resp.Status) {
	case "success", "delivered":
		return &DeliverResult{
			ProviderRef: resp.Data.ProviderRef,
			Token:       resp.Data.Token,
			Raw:         raw,
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrDeliveryFailed, resp.Message)
	}
}

func postJSON(ctx context.Context, endpoint string, cfg *Config, params map[string]interface{}) ([]byte, error) {
	body, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(string(body)))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+strings.TrimSpace(cfg.APIKey))

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
