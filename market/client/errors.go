package client

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// CodeUserRejected EIP-1193 用户拒绝签名
const CodeUserRejected = 4001

// RevertReason 从节点返回的 revert data 中解出 Error(string) 原因
func RevertReason(err error) (string, bool) {
	var dataErr rpc.DataError
	if !errors.As(err, &dataErr) {
		return "", false
	}
	var raw []byte
	switch v := dataErr.ErrorData().(type) {
	case string:
		b, decErr := hexutil.Decode(v)
		if decErr != nil {
			return "", false
		}
		raw = b
	case []byte:
		raw = v
	default:
		return "", false
	}
	reason, unpackErr := abi.UnpackRevert(raw)
	if unpackErr != nil || reason == "" {
		return "", false
	}
	return reason, true
}

// HumanizeError 把链上/钱包错误转换成可展示的一句话
func HumanizeError(err error) string {
	if err == nil {
		return ""
	}

	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == CodeUserRejected {
		return "Transaction rejected by user"
	}

	msg := err.Error()
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "action_rejected"),
		strings.Contains(lower, "user rejected"),
		strings.Contains(lower, "user denied"):
		return "Transaction rejected by user"
	case strings.Contains(lower, "insufficient funds"):
		return "Insufficient funds for transaction"
	}

	if reason, ok := RevertReason(err); ok {
		return fmt.Sprintf("Transaction reverted: %s", reason)
	}
	switch {
	case errors.Is(err, ErrTxReverted):
		return "Transaction reverted"
	case errors.Is(err, ErrReadOnly):
		return "Connect a wallet that can sign transactions"
	}

	if strings.TrimSpace(msg) == "" {
		return "Transaction failed"
	}
	return msg
}
