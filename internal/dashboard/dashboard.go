// Package dashboard aggregates the read-only account view shown after connecting.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

var dashLog = logrus.WithField("component", "dashboard")

// Snapshot 一次完整读取的结果；任何一项失败整体失败，不返回部分数据
type Snapshot struct {
	Address   common.Address `json:"address"`
	ChainID   types.Chain    `json:"chainId"`
	Network   string         `json:"network"`
	FetchedAt time.Time      `json:"fetchedAt"`

	NFTBalance      *big.Int `json:"nftBalance"`
	TokenBalance    *big.Int `json:"tokenBalance"`
	PendingEarnings *big.Int `json:"pendingEarnings"`
	PlatformFeeBps  *big.Int `json:"platformFeeBps"`

	TokenBalanceFormatted    string `json:"tokenBalanceFormatted"`
	PendingEarningsFormatted string `json:"pendingEarningsFormatted"`
	PlatformFeeFormatted     string `json:"platformFeeFormatted"`
}

// Position 质押和金库，可选功能，合约不支持时单独报错
type Position struct {
	Stake  *types.StakeInfo `json:"stake"`
	Vaults []types.Vault    `json:"vaults"`
}

// Service 每次调用都重新读取链上状态
type Service struct {
	factory *client.Factory
	network types.Network
	now     func() time.Time
}

func NewService(factory *client.Factory, network types.Network) *Service {
	return &Service{factory: factory, network: network, now: time.Now}
}

// WithBackend 按会话当前的 RPC 后端读取
func (s *Service) WithBackend(backend client.Backend) *Service {
	if backend == nil {
		return s
	}
	cp := *s
	cp.factory = s.factory.WithBackend(backend)
	return &cp
}

// Fetch 并发读取四项数据，任一失败立即取消其余请求
func (s *Service) Fetch(ctx context.Context, address common.Address) (*Snapshot, error) {
	if address == (common.Address{}) {
		return nil, fmt.Errorf("%w: empty address", types.ErrInvalidAddress)
	}
	snap := &Snapshot{
		Address: address,
		ChainID: s.network.ChainID,
		Network: s.network.Name,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := s.factory.NFT(nil).BalanceOf(gctx, address)
		if err != nil {
			return fmt.Errorf("nft balanceOf: %w", err)
		}
		snap.NFTBalance = v
		return nil
	})
	g.Go(func() error {
		v, err := s.factory.Token(nil).BalanceOf(gctx, address)
		if err != nil {
			return fmt.Errorf("token balanceOf: %w", err)
		}
		snap.TokenBalance = v
		return nil
	})
	g.Go(func() error {
		v, err := s.factory.Marketplace(nil).PendingWithdrawals(gctx, address)
		if err != nil {
			return fmt.Errorf("pendingWithdrawals: %w", err)
		}
		snap.PendingEarnings = v
		return nil
	})
	g.Go(func() error {
		v, err := s.factory.Marketplace(nil).PlatformFee(gctx)
		if err != nil {
			return fmt.Errorf("platformFee: %w", err)
		}
		snap.PlatformFeeBps = v
		return nil
	})
	if err := g.Wait(); err != nil {
		dashLog.Warnf("[dashboard] 读取 %s 失败: %v", address.Hex(), err)
		return nil, err
	}

	snap.FetchedAt = s.now()
	snap.TokenBalanceFormatted = units.FormatFixed(snap.TokenBalance, types.PaymentTokenDecimals, 2)
	snap.PendingEarningsFormatted = units.FormatFixed(snap.PendingEarnings, types.PaymentTokenDecimals, 2)
	snap.PlatformFeeFormatted = units.FormatBasisPoints(snap.PlatformFeeBps)
	return snap, nil
}

// Listings 全部在售
func (s *Service) Listings(ctx context.Context) ([]types.Listing, error) {
	listings, err := s.factory.Marketplace(nil).GetActiveListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("getActiveListings: %w", err)
	}
	return listings, nil
}

// MyListings 在售中 seller 为 address 的
func (s *Service) MyListings(ctx context.Context, address common.Address) ([]types.Listing, error) {
	all, err := s.Listings(ctx)
	if err != nil {
		return nil, err
	}
	mine := make([]types.Listing, 0, len(all))
	for _, l := range all {
		if l.Seller == address {
			mine = append(mine, l)
		}
	}
	return mine, nil
}

// MaxVaults 单个账户最多读取的金库数
const MaxVaults = 1000

var ErrTooManyVaults = errors.New("vault count out of range")

// Position 质押信息 + 全部金库
func (s *Service) Position(ctx context.Context, address common.Address) (*Position, error) {
	nft := s.factory.NFT(nil)
	stake, err := nft.StakeInfo(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("getStakeInfo: %w", err)
	}
	count, err := nft.VaultCount(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("getVaultCount: %w", err)
	}
	if count.Sign() < 0 || count.Cmp(big.NewInt(MaxVaults)) > 0 {
		return nil, fmt.Errorf("%w: %s vaults", ErrTooManyVaults, count)
	}
	n := count.Int64()
	pos := &Position{Stake: stake, Vaults: make([]types.Vault, 0, n)}
	for i := int64(0); i < n; i++ {
		v, err := nft.GetVault(ctx, address, big.NewInt(i))
		if err != nil {
			return nil, fmt.Errorf("getVault %d: %w", i, err)
		}
		pos.Vaults = append(pos.Vaults, *v)
	}
	return pos, nil
}
