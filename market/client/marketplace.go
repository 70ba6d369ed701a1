package client

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/market/types"
)

// MarketplaceClient 市场合约客户端
type MarketplaceClient struct {
	*contract
}

// listingTuple 字段名需与 ABI 组件名的驼峰形式一致
type listingTuple struct {
	TokenId  *big.Int
	Seller   common.Address
	Price    *big.Int
	Active   bool
	ListedAt *big.Int
}

type auctionTuple struct {
	TokenId       *big.Int
	Seller        common.Address
	HighestBidder common.Address
	HighestBid    *big.Int
	EndTime       *big.Int
	Active        bool
}

func (t listingTuple) toListing() types.Listing {
	return types.Listing{
		TokenID:  t.TokenId,
		Seller:   t.Seller,
		Price:    t.Price,
		Active:   t.Active,
		ListedAt: types.UnixTime(t.ListedAt),
	}
}

// ListItem 以 price（支付代币最小单位）挂单
func (c *MarketplaceClient) ListItem(ctx context.Context, tokenID, price *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "listItem", tokenID, price)
}

func (c *MarketplaceClient) BuyItem(ctx context.Context, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "buyItem", tokenID)
}

func (c *MarketplaceClient) CancelListing(ctx context.Context, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "cancelListing", tokenID)
}

func (c *MarketplaceClient) UpdatePrice(ctx context.Context, tokenID, newPrice *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "updatePrice", tokenID, newPrice)
}

// Withdraw 提取卖出所得
func (c *MarketplaceClient) Withdraw(ctx context.Context) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "withdraw")
}

func (c *MarketplaceClient) GetListing(ctx context.Context, tokenID *big.Int) (*types.Listing, error) {
	out, err := c.call(ctx, "getListing", tokenID)
	if err != nil {
		return nil, err
	}
	l := abiConvert(out[0], new(listingTuple)).(*listingTuple).toListing()
	return &l, nil
}

func (c *MarketplaceClient) GetActiveListings(ctx context.Context) ([]types.Listing, error) {
	out, err := c.call(ctx, "getActiveListings")
	if err != nil {
		return nil, err
	}
	tuples := *abiConvert(out[0], new([]listingTuple)).(*[]listingTuple)
	listings := make([]types.Listing, 0, len(tuples))
	for _, t := range tuples {
		listings = append(listings, t.toListing())
	}
	return listings, nil
}

// PendingWithdrawals 待提取的卖出所得
func (c *MarketplaceClient) PendingWithdrawals(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callBig(ctx, "pendingWithdrawals", account)
}

// PlatformFee 平台手续费（基点，200 = 2%）
func (c *MarketplaceClient) PlatformFee(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "platformFee")
}

func (c *MarketplaceClient) CreateAuction(ctx context.Context, tokenID, startPrice *big.Int, duration time.Duration) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "createAuction", tokenID, startPrice, big.NewInt(int64(duration/time.Second)))
}

func (c *MarketplaceClient) PlaceBid(ctx context.Context, tokenID, amount *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "placeBid", tokenID, amount)
}

func (c *MarketplaceClient) EndAuction(ctx context.Context, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "endAuction", tokenID)
}

func (c *MarketplaceClient) GetAuction(ctx context.Context, tokenID *big.Int) (*types.Auction, error) {
	out, err := c.call(ctx, "getAuction", tokenID)
	if err != nil {
		return nil, err
	}
	t := abiConvert(out[0], new(auctionTuple)).(*auctionTuple)
	return &types.Auction{
		TokenID:       t.TokenId,
		Seller:        t.Seller,
		HighestBidder: t.HighestBidder,
		HighestBid:    t.HighestBid,
		EndTime:       types.UnixTime(t.EndTime),
		Active:        t.Active,
	}, nil
}
