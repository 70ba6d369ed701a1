package wallet

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
)

// EventKind provider 事件类型
type EventKind string

const (
	EventConnected       EventKind = "connect"
	EventDisconnected    EventKind = "disconnect"
	EventAccountsChanged EventKind = "accountsChanged"
	EventChainChanged    EventKind = "chainChanged"
)

// Event provider / session 事件
type Event struct {
	Kind     EventKind        `json:"kind"`
	Accounts []common.Address `json:"accounts,omitempty"`
	ChainID  types.Chain      `json:"chainId,omitempty"`
	At       time.Time        `json:"at"`
}

// Provider 钱包提供方（浏览器扩展钱包、本地私钥等）
type Provider interface {
	// RequestAccounts 请求账户授权，返回的第一个账户为当前账户
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	ChainID(ctx context.Context) (types.Chain, error)
	// SwitchChain 链未知时返回的错误需满足 errors.Is(err, ErrUnrecognizedChain)
	SwitchChain(ctx context.Context, chain types.Chain) error
	AddChain(ctx context.Context, params types.ChainParams) error
	// Signer 不支持签名时返回 false
	Signer(account common.Address) (client.TxSigner, bool)
	Backend() client.Backend
	Subscribe(fn func(Event)) (unsubscribe func())
}
