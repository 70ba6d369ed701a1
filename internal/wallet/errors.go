package wallet

import (
	"errors"
	"fmt"

	"github.com/cryptolocker/nftwallet/market/client"
)

// EIP-1193 provider 错误码
const (
	CodeUserRejected      = client.CodeUserRejected
	CodeUnrecognizedChain = 4902
)

var (
	ErrNotConnected      = errors.New("wallet not connected")
	ErrWrongNetwork      = errors.New("wallet is on the wrong network")
	ErrNoAccounts        = errors.New("no accounts returned by provider")
	ErrUnrecognizedChain = errors.New("unrecognized chain")
	ErrUserRejected      = errors.New("user rejected the request")
	ErrReadOnly          = client.ErrReadOnly
)

// ProviderError 带 EIP-1193 错误码的 provider 错误
type ProviderError struct {
	Code    int
	Message string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider error %d: %s", e.Code, e.Message)
}

// ErrorCode 满足 go-ethereum rpc.Error
func (e *ProviderError) ErrorCode() int {
	return e.Code
}

func (e *ProviderError) Is(target error) bool {
	switch target {
	case ErrUnrecognizedChain:
		return e.Code == CodeUnrecognizedChain
	case ErrUserRejected:
		return e.Code == CodeUserRejected
	}
	return false
}
