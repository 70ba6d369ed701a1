package client

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	marketabi "github.com/cryptolocker/nftwallet/market/abi"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/cache"
)

// decimalsTTL 代币精度不会变化，缓存一天即可
const decimalsTTL = 24 * time.Hour

// Factory 合约句柄工厂：ABI 只解析一次，按 signer 生成只读或可签名的句柄
type Factory struct {
	backend   Backend
	contracts types.Contracts
	chain     types.Chain

	nftABI         abi.ABI
	marketplaceABI abi.ABI
	erc20ABI       abi.ABI

	decimals *cache.InMemoryCache[common.Address, uint8]
}

// NewFactory 创建合约句柄工厂
func NewFactory(backend Backend, contracts types.Contracts, chain types.Chain) (*Factory, error) {
	nftABI, err := parseABI("NFT", marketabi.NFTABI)
	if err != nil {
		return nil, err
	}
	marketplaceABI, err := parseABI("Marketplace", marketabi.MarketplaceABI)
	if err != nil {
		return nil, err
	}
	erc20ABI, err := parseABI("ERC20", marketabi.ERC20ABI)
	if err != nil {
		return nil, err
	}
	return &Factory{
		backend:        backend,
		contracts:      contracts,
		chain:          chain,
		nftABI:         nftABI,
		marketplaceABI: marketplaceABI,
		erc20ABI:       erc20ABI,
		decimals:       cache.NewInMemoryCache[common.Address, uint8](decimalsTTL),
	}, nil
}

func (f *Factory) Backend() Backend {
	return f.backend
}

func (f *Factory) Contracts() types.Contracts {
	return f.contracts
}

func (f *Factory) Chain() types.Chain {
	return f.chain
}

func (f *Factory) bind(name string, parsed abi.ABI, address common.Address, signer TxSigner) *contract {
	return &contract{
		name:    name,
		address: address,
		abi:     parsed,
		backend: f.backend,
		signer:  signer,
		chainID: f.chain.BigInt(),
	}
}

// NFT signer 为 nil 时返回只读句柄
func (f *Factory) NFT(signer TxSigner) *NFTClient {
	return &NFTClient{f.bind("NFT", f.nftABI, f.contracts.NFT, signer)}
}

func (f *Factory) Marketplace(signer TxSigner) *MarketplaceClient {
	return &MarketplaceClient{f.bind("Marketplace", f.marketplaceABI, f.contracts.Marketplace, signer)}
}

// Token 支付代币
func (f *Factory) Token(signer TxSigner) *TokenClient {
	return f.TokenAt(f.contracts.PaymentToken, signer)
}

// TokenAt 任意 ERC20（兑换时的输入代币）
func (f *Factory) TokenAt(address common.Address, signer TxSigner) *TokenClient {
	return &TokenClient{f.bind("ERC20", f.erc20ABI, address, signer)}
}

// WithBackend 复用已解析的 ABI，换一个 RPC 后端（切换网络后使用）
func (f *Factory) WithBackend(backend Backend) *Factory {
	cp := *f
	cp.backend = backend
	return &cp
}

// TokenDecimals 读取代币精度（只缓存成功结果，同一工厂的 WithBackend 副本共享缓存）
func (f *Factory) TokenDecimals(ctx context.Context, token common.Address) (uint8, error) {
	return f.decimals.GetOrLoad(token, 0, func() (uint8, error) {
		return f.TokenAt(token, nil).Decimals(ctx)
	})
}

// Close 释放缓存的清理 goroutine
func (f *Factory) Close() {
	f.decimals.Close()
}
