package models

import (
	"database/sql/driver"
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Money 统一法币金额类型（保留 2 位小数）
type Money struct {
	decimal.Decimal
}

// NewMoneyFromDecimal 从 decimal 创建金额
func NewMoneyFromDecimal(amount decimal.Decimal) Money {
	return Money{Decimal: amount.Round(2)}
}

// MarshalJSON 统一输出 2 位小数的字符串
func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.Decimal.Round(2).StringFixed(2))
}

// UnmarshalJSON 解析金额（字符串或数字）
func (m *Money) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		m.Decimal = d.Round(2)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	m.Decimal = decimal.NewFromFloat(f).Round(2)
	return nil
}

// Value 用于数据库写入
func (m Money) Value() (driver.Value, error) {
	return m.Decimal.Round(2).Value()
}

// Scan 用于数据库读取
func (m *Money) Scan(value interface{}) error {
	if err := m.Decimal.Scan(value); err != nil {
		return err
	}
	m.Decimal = m.Decimal.Round(2)
	return nil
}

// String 返回 2 位小数格式
func (m Money) String() string {
	return m.Decimal.Round(2).StringFixed(2)
}

// BCHAmount 链上结算金额类型（保留 8 位小数，即 satoshi 精度）
type BCHAmount struct {
	decimal.Decimal
}

// NewBCHAmountFromDecimal 从 decimal 创建 BCH 金额
func NewBCHAmountFromDecimal(amount decimal.Decimal) BCHAmount {
	return BCHAmount{Decimal: amount.Round(8)}
}

// NewBCHAmountFromString 从字符串创建 BCH 金额
func NewBCHAmountFromString(s string) (BCHAmount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return BCHAmount{}, err
	}
	return BCHAmount{Decimal: d.Round(8)}, nil
}

// Sats 按四舍五入换算为 satoshi 整数
func (a BCHAmount) Sats() int64 {
	return a.Decimal.Mul(decimal.NewFromInt(100_000_000)).Round(0).IntPart()
}

// MarshalJSON 统一输出 8 位小数的字符串
func (a BCHAmount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.Decimal.Round(8).StringFixed(8))
}

// UnmarshalJSON 解析金额（字符串或数字）
func (a *BCHAmount) UnmarshalJSON(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return err
		}
		a.Decimal = d.Round(8)
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	a.Decimal = decimal.NewFromFloat(f).Round(8)
	return nil
}

// Value 用于数据库写入
func (a BCHAmount) Value() (driver.Value, error) {
	return a.Decimal.Round(8).Value()
}

// Scan 用于数据库读取
func (a *BCHAmount) Scan(value interface{}) error {
	if err := a.Decimal.Scan(value); err != nil {
		return err
	}
	a.Decimal = a.Decimal.Round(8)
	return nil
}

// String 返回 8 位小数格式
func (a BCHAmount) String() string {
	return a.Decimal.Round(8).StringFixed(8)
}
