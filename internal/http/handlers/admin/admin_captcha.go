package admin

import (
	"errors"
	"strings"

	"github.com/paysats/paysats-api/internal/cache"
	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/http/response"
	"github.com/paysats/paysats-api/internal/service"

	"github.com/gin-gonic/gin"
)

// GetCaptchaSettings 获取验证码配置（脱敏）
func (h *Handler) GetCaptchaSettings(c *gin.Context) {
	setting, err := h.SettingService.GetCaptchaSetting(h.Config.Captcha)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch settings", err)
		return
	}
	response.Success(c, service.MaskCaptchaSettingForAdmin(setting))
}

// UpdateCaptchaSettings 更新验证码配置
func (h *Handler) UpdateCaptchaSettings(c *gin.Context) {
	var req service.CaptchaSetting
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, response.CodeBadRequest, "invalid request body", err)
		return
	}

	current, err := h.SettingService.GetCaptchaSetting(h.Config.Captcha)
	if err != nil {
		respondError(c, response.CodeInternal, "failed to fetch settings", err)
		return
	}
	// 密钥留空或保持脱敏占位时沿用已保存的值
	secret := strings.TrimSpace(req.Turnstile.SecretKey)
	if secret == "" || secret == "******" {
		req.Turnstile.SecretKey = current.Turnstile.SecretKey
	}

	setting := service.NormalizeCaptchaSetting(req)
	if err := service.ValidateCaptchaSetting(setting); err != nil {
		if errors.Is(err, service.ErrCaptchaConfigInvalid) {
			respondError(c, response.CodeBadRequest, err.Error(), nil)
			return
		}
		respondError(c, response.CodeInternal, "failed to save settings", err)
		return
	}

	if _, err := h.SettingService.Update(constants.SettingKeyCaptchaConfig, service.CaptchaSettingToJSON(setting)); err != nil {
		respondError(c, response.CodeInternal, "failed to save settings", err)
		return
	}

	h.Config.Captcha = service.CaptchaSettingToConfig(setting)
	if h.CaptchaService != nil {
		h.CaptchaService.SetDefaultConfig(h.Config.Captcha)
		h.CaptchaService.InvalidateCache()
	}
	_ = cache.Del(c.Request.Context(), publicConfigCacheKey)

	response.Success(c, service.MaskCaptchaSettingForAdmin(setting))
}
