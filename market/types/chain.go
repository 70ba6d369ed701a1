package types

import (
	"fmt"
	"math/big"
	"strings"
)

// Chain 区块链网络 ID
type Chain int64

const (
	ChainPolygon Chain = 137
	ChainAmoy    Chain = 80002
)

// BigInt 返回 *big.Int 形式的链 ID（签名、比较时使用）
func (c Chain) BigInt() *big.Int {
	return big.NewInt(int64(c))
}

// Hex 返回钱包 RPC 使用的 0x 前缀十六进制链 ID，例如 137 -> "0x89"
func (c Chain) Hex() string {
	return fmt.Sprintf("0x%x", int64(c))
}

// NativeCurrency 原生代币描述（wallet_addEthereumChain 参数）
type NativeCurrency struct {
	Name     string `json:"name" yaml:"name"`
	Symbol   string `json:"symbol" yaml:"symbol"`
	Decimals int    `json:"decimals" yaml:"decimals"`
}

// Network 网络参数
type Network struct {
	ChainID        Chain          `json:"chainId" yaml:"chain_id"`
	Name           string         `json:"chainName" yaml:"name"`
	RPCURL         string         `json:"rpcUrl" yaml:"rpc_url"`
	BlockExplorer  string         `json:"blockExplorerUrl" yaml:"block_explorer"`
	NativeCurrency NativeCurrency `json:"nativeCurrency" yaml:"native_currency"`
}

// PolygonMainnet Polygon 主网默认参数
var PolygonMainnet = Network{
	ChainID:       ChainPolygon,
	Name:          "Polygon",
	RPCURL:        "https://polygon-rpc.com",
	BlockExplorer: "https://polygonscan.com",
	NativeCurrency: NativeCurrency{
		Name:     "MATIC",
		Symbol:   "MATIC",
		Decimals: 18,
	},
}

// AmoyTestnet Polygon Amoy 测试网参数
var AmoyTestnet = Network{
	ChainID:       ChainAmoy,
	Name:          "Polygon Amoy",
	RPCURL:        "https://rpc-amoy.polygon.technology",
	BlockExplorer: "https://amoy.polygonscan.com",
	NativeCurrency: NativeCurrency{
		Name:     "POL",
		Symbol:   "POL",
		Decimals: 18,
	},
}

// KnownNetworks 内置可切换的网络
func KnownNetworks() []Network {
	return []Network{PolygonMainnet, AmoyTestnet}
}

// ExplorerLink 区块浏览器链接，kind 为 "address" / "tx" / "token"
func (n Network) ExplorerLink(kind, value string) string {
	if kind == "" {
		kind = "address"
	}
	return fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(n.BlockExplorer, "/"), kind, value)
}

// String 展示用，例如 "Polygon (137)"
func (n Network) String() string {
	return fmt.Sprintf("%s (%d)", n.Name, n.ChainID)
}

// ChainParams 添加网络请求的参数（对应 EIP-3085）
type ChainParams struct {
	ChainID           string         `json:"chainId"`
	ChainName         string         `json:"chainName"`
	RPCURLs           []string       `json:"rpcUrls"`
	BlockExplorerURLs []string       `json:"blockExplorerUrls"`
	NativeCurrency    NativeCurrency `json:"nativeCurrency"`
}

// AddChainParams 构造添加网络所需参数
func (n Network) AddChainParams() ChainParams {
	params := ChainParams{
		ChainID:        n.ChainID.Hex(),
		ChainName:      n.Name,
		RPCURLs:        []string{n.RPCURL},
		NativeCurrency: n.NativeCurrency,
	}
	if n.BlockExplorer != "" {
		params.BlockExplorerURLs = []string{n.BlockExplorer}
	}
	return params
}

// NetworkFromParams 由添加网络参数还原 Network
func NetworkFromParams(p ChainParams) (Network, error) {
	id, ok := new(big.Int).SetString(strings.TrimPrefix(strings.ToLower(p.ChainID), "0x"), 16)
	if !ok || id.Sign() <= 0 {
		return Network{}, fmt.Errorf("invalid chain id %q", p.ChainID)
	}
	if len(p.RPCURLs) == 0 || strings.TrimSpace(p.RPCURLs[0]) == "" {
		return Network{}, fmt.Errorf("chain %s has no rpc url", p.ChainID)
	}
	n := Network{
		ChainID:        Chain(id.Int64()),
		Name:           p.ChainName,
		RPCURL:         p.RPCURLs[0],
		NativeCurrency: p.NativeCurrency,
	}
	if len(p.BlockExplorerURLs) > 0 {
		n.BlockExplorer = p.BlockExplorerURLs[0]
	}
	return n, nil
}
