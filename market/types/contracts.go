package types

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	// PaymentTokenDecimals 支付代币精度（Polygon USDC = 6）
	PaymentTokenDecimals = 6

	// FeeBasisPoints 手续费基数（200 = 2%）
	FeeBasisPoints = 10_000
)

// Contracts 合约地址配置
type Contracts struct {
	NFT          common.Address
	Marketplace  common.Address
	PaymentToken common.Address
	FeeCollector common.Address
}

// PolygonMainnetContracts Polygon 主网部署地址
var PolygonMainnetContracts = Contracts{
	NFT:          common.HexToAddress("0x4e4Cd138F5B45D98C0511D7309f99C6e0656cAe1"),
	Marketplace:  common.HexToAddress("0x5e3Ad80a03E7dA15B4b74DC3Aa35661996E6b263"),
	PaymentToken: common.HexToAddress("0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174"), // USDC
	FeeCollector: common.HexToAddress("0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e"),
}

// GetContracts 根据链 ID 获取默认合约地址
func GetContracts(chain Chain) (*Contracts, error) {
	switch chain {
	case ChainPolygon:
		c := PolygonMainnetContracts
		return &c, nil
	default:
		return nil, fmt.Errorf("no default contracts for chain %d", chain)
	}
}

// Listing 市场挂单（链上状态镜像，本地不持久化）
type Listing struct {
	TokenID  *big.Int       `json:"tokenId"`
	Seller   common.Address `json:"seller"`
	Price    *big.Int       `json:"price"`
	Active   bool           `json:"active"`
	ListedAt time.Time      `json:"listedAt"`
}

// Vault 时间锁金库
type Vault struct {
	ID         *big.Int       `json:"id"`
	Token      common.Address `json:"token"`
	Amount     *big.Int       `json:"amount"`
	UnlockTime time.Time      `json:"unlockTime"`
	Withdrawn  bool           `json:"withdrawn"`
}

// Unlockable 解锁时间已到且未提取
func (v Vault) Unlockable(now time.Time) bool {
	return !v.Withdrawn && !now.Before(v.UnlockTime)
}

// StakeInfo 质押信息
type StakeInfo struct {
	Amount        *big.Int  `json:"amount"`
	PendingReward *big.Int  `json:"pendingReward"`
	Since         time.Time `json:"since"`
}

// Auction 拍卖信息
type Auction struct {
	TokenID       *big.Int       `json:"tokenId"`
	Seller        common.Address `json:"seller"`
	HighestBidder common.Address `json:"highestBidder"`
	HighestBid    *big.Int       `json:"highestBid"`
	EndTime       time.Time      `json:"endTime"`
	Active        bool           `json:"active"`
}

// UnixTime 链上秒级时间戳转 time.Time，nil/0 返回零值
func UnixTime(ts *big.Int) time.Time {
	if ts == nil || ts.Sign() == 0 {
		return time.Time{}
	}
	return time.Unix(ts.Int64(), 0).UTC()
}
