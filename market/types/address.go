package types

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/ethereum/go-ethereum/common"
)

var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ErrInvalidAddress 地址格式错误
var ErrInvalidAddress = errors.New("invalid address")

// IsValidAddress 仅接受 0x + 40 位十六进制
func IsValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// ValidateAddress 校验并转换地址。在任何网络调用之前调用。
func ValidateAddress(s string) (common.Address, error) {
	if !IsValidAddress(s) {
		return common.Address{}, fmt.Errorf("%w: %q must be 0x followed by 40 hex digits", ErrInvalidAddress, s)
	}
	return common.HexToAddress(s), nil
}

// ShortenAddress 0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e -> 0x592B...0b2e
func ShortenAddress(addr string) string {
	if len(addr) < 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
