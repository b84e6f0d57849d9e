package public

import (
	"errors"
	"time"

	"github.com/paysats/paysats-api/internal/cache"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

const (
	publicConfigCacheKey = "public:config"
	publicConfigCacheTTL = 60 * time.Second
)

// GetConfig 获取全局配置
func (h *Handler) GetConfig(c *gin.Context) {
	// 默认配置
	defaults := map[string]interface{}{
		constants.SettingFieldSiteCurrency: constants.SiteCurrencyDefault,
		constants.SettingFieldSupportContact: map[string]interface{}{
			"telegram": "",
			"whatsapp": "",
			"email":    "",
		},
	}

	var cached map[string]interface{}
	if hit, err := cache.GetJSON(c.Request.Context(), publicConfigCacheKey, &cached); err == nil && hit {
		response.Success(c, cached)
		return
	}

	data, err := h.SettingService.GetConfig(defaults)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch config", err)
		return
	}

	data["blockchain"] = constants.BlockchainBCH
	data["service_types"] = []string{
		constants.ServiceTypeAirtime,
		constants.ServiceTypeData,
		constants.ServiceTypeCableTV,
		constants.ServiceTypeElectricity,
	}
	if h.Config != nil {
		data["payment"] = map[string]interface{}{
			"confirmation_threshold": h.Config.Payment.ConfirmationThreshold,
			"expire_minutes":         h.Config.Payment.ExpireMinutes,
		}
	}

	if h.CaptchaService != nil {
		publicCaptcha, captchaErr := h.CaptchaService.GetPublicSetting()
		if captchaErr != nil {
			respondError(c, response.CodeInternal, "failed to fetch config", captchaErr)
			return
		}
		data["captcha"] = publicCaptcha
	}

	_ = cache.SetJSON(c.Request.Context(), publicConfigCacheKey, data, publicConfigCacheTTL)
	response.Success(c, data)
}

// GetRateQuote 获取当前 BCH 兑法币报价
func (h *Handler) GetRateQuote(c *gin.Context) {
	quote, err := h.RateService.GetQuote(c.Request.Context())
	if err != nil {
		if errors.Is(err, service.ErrRateUnavailable) {
			respondError(c, response.CodeInternal, "exchange rate temporarily unavailable", nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to fetch rate quote", err)
		return
	}

	response.Success(c, quote)
}
