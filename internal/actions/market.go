package actions

import (
	"context"
	"fmt"
	"math/big"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

// ListingView 挂单查询结果（附带展示用字段）
type ListingView struct {
	types.Listing
	PriceFormatted string `json:"priceFormatted"`
	SellerShort    string `json:"sellerShort"`
}

func newListingView(l types.Listing) ListingView {
	return ListingView{
		Listing:        l,
		PriceFormatted: formatToken(l.Price),
		SellerShort:    types.ShortenAddress(l.Seller.Hex()),
	}
}

// ListingViews 列表展示用
func ListingViews(ls []types.Listing) []ListingView {
	out := make([]ListingView, 0, len(ls))
	for _, l := range ls {
		out = append(out, newListingView(l))
	}
	return out
}

// ApproveMarketplace 授权市场合约转移本账户全部 NFT
func (d *Dispatcher) ApproveMarketplace(ctx context.Context) (*Result, error) {
	return d.run(ctx, KindApproveMarketplace, nil, func(ctx context.Context, x *exec) (string, error) {
		mp := x.f.Contracts().Marketplace
		if _, err := x.send(ctx, "setApprovalForAll", func() (*ethtypes.Transaction, error) {
			return x.nft().SetApprovalForAll(ctx, mp, true)
		}); err != nil {
			return "", err
		}
		return "Marketplace approved for all NFTs", nil
	})
}

// List setApprovalForAll（已授权则跳过）-> listItem
func (d *Dispatcher) List(ctx context.Context, tokenID, price *big.Int) (*Result, error) {
	if err := requireTokenID(tokenID); err != nil {
		return nil, err
	}
	if err := requirePositive("price", price); err != nil {
		return nil, err
	}
	return d.run(ctx, KindList, tokenID, func(ctx context.Context, x *exec) (string, error) {
		mp := x.f.Contracts().Marketplace
		owner, err := x.nft().OwnerOf(ctx, tokenID)
		if err != nil {
			return "", fmt.Errorf("ownerOf: %w", err)
		}
		if owner != x.account {
			return "", fmt.Errorf("%w: token %s is owned by %s", ErrNotOwner, tokenID, owner.Hex())
		}

		_, err = x.runSaga(ctx, tokenID.String(), sagaSteps{
			approved: func(ctx context.Context) (bool, error) {
				return x.nft().IsApprovedForAll(ctx, x.account, mp)
			},
			approve: func(ctx context.Context) (*ethtypes.Transaction, error) {
				return x.nft().SetApprovalForAll(ctx, mp, true)
			},
			act: func(ctx context.Context) (*ethtypes.Transaction, error) {
				return x.market().ListItem(ctx, tokenID, price)
			},
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("NFT #%s listed for %s USDC", tokenID, formatToken(price)), nil
	})
}

// ApproveToken 授权市场合约花费支付代币
func (d *Dispatcher) ApproveToken(ctx context.Context, amount *big.Int) (*Result, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	return d.run(ctx, KindApproveToken, nil, func(ctx context.Context, x *exec) (string, error) {
		mp := x.f.Contracts().Marketplace
		if _, err := x.send(ctx, "approve", func() (*ethtypes.Transaction, error) {
			return x.token().Approve(ctx, mp, amount)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Approved %s USDC for the marketplace", formatToken(amount)), nil
	})
}

// Buy approve(price)（额度足够则跳过）-> buyItem
func (d *Dispatcher) Buy(ctx context.Context, tokenID *big.Int) (*Result, error) {
	if err := requireTokenID(tokenID); err != nil {
		return nil, err
	}
	return d.run(ctx, KindBuy, tokenID, func(ctx context.Context, x *exec) (string, error) {
		mp := x.f.Contracts().Marketplace
		listing, err := x.market().GetListing(ctx, tokenID)
		if err != nil {
			return "", fmt.Errorf("getListing: %w", err)
		}
		if !listing.Active {
			return "", fmt.Errorf("%w: token %s", ErrNotListed, tokenID)
		}
		if listing.Seller == x.account {
			return "", ErrOwnListing
		}
		x.res.Data = newListingView(*listing)

		_, err = x.runSaga(ctx, tokenID.String(), sagaSteps{
			approved: func(ctx context.Context) (bool, error) {
				allowance, err := x.token().Allowance(ctx, x.account, mp)
				if err != nil {
					return false, err
				}
				return allowance.Cmp(listing.Price) >= 0, nil
			},
			approve: func(ctx context.Context) (*ethtypes.Transaction, error) {
				return x.token().Approve(ctx, mp, listing.Price)
			},
			act: func(ctx context.Context) (*ethtypes.Transaction, error) {
				return x.market().BuyItem(ctx, tokenID)
			},
		})
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Bought NFT #%s for %s USDC", tokenID, formatToken(listing.Price)), nil
	})
}

// Cancel 下架
func (d *Dispatcher) Cancel(ctx context.Context, tokenID *big.Int) (*Result, error) {
	if err := requireTokenID(tokenID); err != nil {
		return nil, err
	}
	return d.run(ctx, KindCancel, tokenID, func(ctx context.Context, x *exec) (string, error) {
		if _, err := x.send(ctx, "cancelListing", func() (*ethtypes.Transaction, error) {
			return x.market().CancelListing(ctx, tokenID)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Listing for NFT #%s cancelled", tokenID), nil
	})
}

// UpdatePrice 修改挂单价格
func (d *Dispatcher) UpdatePrice(ctx context.Context, tokenID, price *big.Int) (*Result, error) {
	if err := requireTokenID(tokenID); err != nil {
		return nil, err
	}
	if err := requirePositive("price", price); err != nil {
		return nil, err
	}
	return d.run(ctx, KindUpdatePrice, tokenID, func(ctx context.Context, x *exec) (string, error) {
		if _, err := x.send(ctx, "updatePrice", func() (*ethtypes.Transaction, error) {
			return x.market().UpdatePrice(ctx, tokenID, price)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("NFT #%s repriced to %s USDC", tokenID, formatToken(price)), nil
	})
}

// Withdraw 提取卖出收益
func (d *Dispatcher) Withdraw(ctx context.Context) (*Result, error) {
	return d.run(ctx, KindWithdraw, nil, func(ctx context.Context, x *exec) (string, error) {
		pending, err := x.market().PendingWithdrawals(ctx, x.account)
		if err != nil {
			return "", fmt.Errorf("pendingWithdrawals: %w", err)
		}
		if pending.Sign() == 0 {
			return "", ErrNothingToWithdraw
		}
		if _, err := x.send(ctx, "withdraw", func() (*ethtypes.Transaction, error) {
			return x.market().Withdraw(ctx)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Withdrew %s USDC", formatToken(pending)), nil
	})
}

// GetListing 查询挂单（只读）
func (d *Dispatcher) GetListing(ctx context.Context, tokenID *big.Int) (*Result, error) {
	if err := requireTokenID(tokenID); err != nil {
		return nil, err
	}
	return d.query(ctx, KindGetListing, tokenID, func(ctx context.Context, x *exec) (string, error) {
		listing, err := x.f.Marketplace(nil).GetListing(ctx, tokenID)
		if err != nil {
			return "", err
		}
		view := newListingView(*listing)
		x.res.Data = view
		if !listing.Active {
			return fmt.Sprintf("NFT #%s is not listed", tokenID), nil
		}
		return fmt.Sprintf("NFT #%s: %s USDC by %s", tokenID, view.PriceFormatted, view.SellerShort), nil
	})
}

// ParsePrice 支付代币金额字符串 -> 最小单位
func ParsePrice(s string) (*big.Int, error) {
	return units.ParseUnits(s, paymentDecimals)
}

// ParseTokenID 十进制 token id
func ParseTokenID(s string) (*big.Int, error) {
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Sign() < 0 {
		return nil, fmt.Errorf("invalid token id %q", s)
	}
	return id, nil
}
