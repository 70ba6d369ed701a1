package client

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/pkg/ratelimit"
)

// 限流端点名
const (
	EndpointRPCRead = ratelimit.EndpointRPCRead
	EndpointRPCSend = ratelimit.EndpointRPCSend
)

// Observer 每次 RPC 调用结束后回调（metrics 使用）
type Observer func(method string, took time.Duration, err error)

// ThrottledBackend 给 Backend 加上限流与调用观测
type ThrottledBackend struct {
	next    Backend
	limits  *ratelimit.RateLimitManager
	observe Observer
}

// NewThrottledBackend limits/observe 均可为 nil
func NewThrottledBackend(next Backend, limits *ratelimit.RateLimitManager, observe Observer) *ThrottledBackend {
	return &ThrottledBackend{next: next, limits: limits, observe: observe}
}

func (b *ThrottledBackend) before(ctx context.Context, endpoint string) error {
	if b.limits == nil {
		return nil
	}
	return b.limits.Wait(ctx, endpoint)
}

func (b *ThrottledBackend) after(method string, start time.Time, err error) {
	if b.observe != nil {
		b.observe(method, time.Since(start), err)
	}
}

func (b *ThrottledBackend) ChainID(ctx context.Context) (id *big.Int, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_chainId", start, err) }(time.Now())
	return b.next.ChainID(ctx)
}

func (b *ThrottledBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) (code []byte, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_getCode", start, err) }(time.Now())
	return b.next.CodeAt(ctx, account, blockNumber)
}

func (b *ThrottledBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (bal *big.Int, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_getBalance", start, err) }(time.Now())
	return b.next.BalanceAt(ctx, account, blockNumber)
}

func (b *ThrottledBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) (out []byte, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_call", start, err) }(time.Now())
	return b.next.CallContract(ctx, call, blockNumber)
}

func (b *ThrottledBackend) PendingNonceAt(ctx context.Context, account common.Address) (nonce uint64, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return 0, err
	}
	defer func(start time.Time) { b.after("eth_getTransactionCount", start, err) }(time.Now())
	return b.next.PendingNonceAt(ctx, account)
}

func (b *ThrottledBackend) SuggestGasPrice(ctx context.Context) (price *big.Int, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_gasPrice", start, err) }(time.Now())
	return b.next.SuggestGasPrice(ctx)
}

func (b *ThrottledBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (gas uint64, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return 0, err
	}
	defer func(start time.Time) { b.after("eth_estimateGas", start, err) }(time.Now())
	return b.next.EstimateGas(ctx, call)
}

func (b *ThrottledBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) (err error) {
	if err = b.before(ctx, EndpointRPCSend); err != nil {
		return err
	}
	defer func(start time.Time) { b.after("eth_sendRawTransaction", start, err) }(time.Now())
	return b.next.SendTransaction(ctx, tx)
}

func (b *ThrottledBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (r *ethtypes.Receipt, err error) {
	if err = b.before(ctx, EndpointRPCRead); err != nil {
		return nil, err
	}
	defer func(start time.Time) { b.after("eth_getTransactionReceipt", start, err) }(time.Now())
	return b.next.TransactionReceipt(ctx, txHash)
}
