// Package units converts between integer token amounts and their decimal string form.
package units

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrInvalidAmount 金额无法解析或精度超出
var ErrInvalidAmount = errors.New("invalid amount")

// FormatUnits 1500000 (6 位) -> "1.5"
func FormatUnits(amount *big.Int, decimals int32) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -decimals).String()
}

// FormatFixed 保留固定小数位，展示用：1500000 (6 位, 2 位) -> "1.50"
func FormatFixed(amount *big.Int, decimals int32, places int32) string {
	if amount == nil {
		amount = new(big.Int)
	}
	return decimal.NewFromBigInt(amount, -decimals).StringFixed(places)
}

// ParseUnits "1.5" (6 位) -> 1500000。拒绝负数和超出精度的小数位。
func ParseUnits(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("%w: empty", ErrInvalidAmount)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("%w: %q is negative", ErrInvalidAmount, s)
	}
	scaled := d.Shift(decimals)
	if !scaled.IsInteger() {
		return nil, fmt.Errorf("%w: %q has more than %d decimal places", ErrInvalidAmount, s, decimals)
	}
	return scaled.BigInt(), nil
}

// MustParseUnits 仅用于常量/测试
func MustParseUnits(s string, decimals int32) *big.Int {
	v, err := ParseUnits(s, decimals)
	if err != nil {
		panic(err)
	}
	return v
}

// FormatBasisPoints 200 -> "2%"
func FormatBasisPoints(bps *big.Int) string {
	if bps == nil {
		return "0%"
	}
	return decimal.NewFromBigInt(bps, -2).String() + "%"
}
