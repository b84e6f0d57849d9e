package service

import (
	"strings"

	"github.com/paysats/paysats-api/internal/constants"
	"github.com/paysats/paysats-api/internal/models"
)

// normalizeSettingValueByKey 按设置键执行归一化，避免非法值入库。
func normalizeSettingValueByKey(key string, value map[string]interface{}) models.JSON {
	switch key {
	case constants.SettingKeySiteConfig:
		return normalizeSiteSetting(value)
	case constants.SettingKeyAddressIndex:
		return normalizeAddressIndexSetting(value)
	default:
		return models.JSON(value)
	}
}

// normalizeSiteSetting 归一化站点配置结构。
func normalizeSiteSetting(value map[string]interface{}) models.JSON {
	normalized := make(models.JSON, len(value)+3)
	for key, raw := range value {
		normalized[key] = raw
	}

	currency := strings.ToUpper(normalizeSettingText(value[constants.SettingFieldSiteCurrency]))
	if currency == "" {
		currency = constants.SiteCurrencyDefault
	}
	normalized[constants.SettingFieldSiteCurrency] = currency
	normalized[constants.SettingFieldSupportContact] = normalizeSiteContact(value[constants.SettingFieldSupportContact])
	normalized["brand"] = normalizeSiteBrand(value["brand"])

	return normalized
}

// normalizeAddressIndexSetting 归一化地址游标，拒绝负值。
func normalizeAddressIndexSetting(value map[string]interface{}) models.JSON {
	normalized := make(models.JSON, 1)
	cursor := 0
	if raw, ok := value[constants.SettingFieldAddressCursor]; ok {
		if parsed, err := parseSettingInt(raw); err == nil && parsed > 0 {
			cursor = parsed
		}
	}
	normalized[constants.SettingFieldAddressCursor] = cursor
	return normalized
}

func normalizeSiteContact(raw interface{}) map[string]interface{} {
	result := map[string]interface{}{
		"telegram": "",
		"whatsapp": "",
		"email":    "",
	}
	contactMap, ok := raw.(map[string]interface{})
	if !ok {
		return result
	}
	result["telegram"] = normalizeSettingText(contactMap["telegram"])
	result["whatsapp"] = normalizeSettingText(contactMap["whatsapp"])
	result["email"] = normalizeSettingText(contactMap["email"])
	return result
}

func normalizeSiteBrand(raw interface{}) map[string]interface{} {
	result := map[string]interface{}{
		"site_name": "",
	}
	brandMap, ok := raw.(map[string]interface{})
	if !ok {
		return result
	}
	result["site_name"] = normalizeSettingText(brandMap["site_name"])
	return result
}

func normalizeSettingText(raw interface{}) string {
	text, ok := raw.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(text)
}
