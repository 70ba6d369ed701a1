package client

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/market/types"
)

// NFTClient NFT 合约：ERC721 + 铸造 + 金库 + 质押 + 兑换
type NFTClient struct {
	*contract
}

// MintParams mintNFT 参数
type MintParams struct {
	TokenURI    string
	Name        string
	Description string
	Image       string
}

// MintedEvent NFTMinted 事件
type MintedEvent struct {
	TokenID  *big.Int
	Creator  common.Address
	TokenURI string
}

type vaultTuple struct {
	Token      common.Address
	Amount     *big.Int
	UnlockTime *big.Int
	Withdrawn  bool
}

func (c *NFTClient) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return c.callBig(ctx, "balanceOf", owner)
}

func (c *NFTClient) OwnerOf(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	return c.callAddress(ctx, "ownerOf", tokenID)
}

func (c *NFTClient) TokenURI(ctx context.Context, tokenID *big.Int) (string, error) {
	out, err := c.call(ctx, "tokenURI", tokenID)
	if err != nil {
		return "", err
	}
	return *abiString(out[0]), nil
}

// MintPrice 铸造价格（原生代币 wei）
func (c *NFTClient) MintPrice(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "mintPrice")
}

func (c *NFTClient) TotalSupply(ctx context.Context) (*big.Int, error) {
	return c.callBig(ctx, "totalSupply")
}

func (c *NFTClient) GetApproved(ctx context.Context, tokenID *big.Int) (common.Address, error) {
	return c.callAddress(ctx, "getApproved", tokenID)
}

func (c *NFTClient) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return c.callBool(ctx, "isApprovedForAll", owner, operator)
}

// MintNFT 铸造（payable，value 为支付的原生代币数量）
func (c *NFTClient) MintNFT(ctx context.Context, p MintParams, value *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, value, "mintNFT", p.TokenURI, p.Name, p.Description, p.Image)
}

func (c *NFTClient) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "setApprovalForAll", operator, approved)
}

func (c *NFTClient) Approve(ctx context.Context, to common.Address, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "approve", to, tokenID)
}

func (c *NFTClient) TransferFrom(ctx context.Context, from, to common.Address, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "transferFrom", from, to, tokenID)
}

// LockTokens 锁仓 amount 个 token，duration 秒后可解锁
func (c *NFTClient) LockTokens(ctx context.Context, token common.Address, amount *big.Int, duration time.Duration) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "lockTokens", token, amount, big.NewInt(int64(duration/time.Second)))
}

func (c *NFTClient) UnlockTokens(ctx context.Context, vaultID *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "unlockTokens", vaultID)
}

func (c *NFTClient) GetVault(ctx context.Context, user common.Address, vaultID *big.Int) (*types.Vault, error) {
	out, err := c.call(ctx, "getVault", user, vaultID)
	if err != nil {
		return nil, err
	}
	t := *abiConvert(out[0], new(vaultTuple)).(*vaultTuple)
	return &types.Vault{
		ID:         vaultID,
		Token:      t.Token,
		Amount:     t.Amount,
		UnlockTime: types.UnixTime(t.UnlockTime),
		Withdrawn:  t.Withdrawn,
	}, nil
}

func (c *NFTClient) VaultCount(ctx context.Context, user common.Address) (*big.Int, error) {
	return c.callBig(ctx, "getVaultCount", user)
}

func (c *NFTClient) Stake(ctx context.Context, amount *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "stake", amount)
}

func (c *NFTClient) Unstake(ctx context.Context, amount *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "unstake", amount)
}

func (c *NFTClient) ClaimRewards(ctx context.Context) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "claimRewards")
}

func (c *NFTClient) StakeInfo(ctx context.Context, user common.Address) (*types.StakeInfo, error) {
	out, err := c.call(ctx, "getStakeInfo", user)
	if err != nil {
		return nil, err
	}
	if len(out) != 3 {
		return nil, fmt.Errorf("getStakeInfo: expected 3 outputs, got %d", len(out))
	}
	return &types.StakeInfo{
		Amount:        out[0].(*big.Int),
		PendingReward: out[1].(*big.Int),
		Since:         types.UnixTime(out[2].(*big.Int)),
	}, nil
}

// Swap tokenIn -> tokenOut，minOut 为滑点保护
func (c *NFTClient) Swap(ctx context.Context, tokenIn, tokenOut common.Address, amountIn, minOut *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "swapTokens", tokenIn, tokenOut, amountIn, minOut)
}

func (c *NFTClient) GetSwapQuote(ctx context.Context, tokenIn, tokenOut common.Address, amountIn *big.Int) (*big.Int, error) {
	return c.callBig(ctx, "getSwapQuote", tokenIn, tokenOut, amountIn)
}

// ParseNFTMinted 从回执中找出本合约的 NFTMinted 事件
func (c *NFTClient) ParseNFTMinted(receipt *ethtypes.Receipt) (*MintedEvent, error) {
	ev := c.abi.Events["NFTMinted"]
	for _, l := range receipt.Logs {
		if l.Address != c.address || len(l.Topics) < 3 || l.Topics[0] != ev.ID {
			continue
		}
		out, err := c.abi.Unpack("NFTMinted", l.Data)
		if err != nil {
			return nil, fmt.Errorf("解析NFTMinted事件失败: %w", err)
		}
		return &MintedEvent{
			TokenID:  new(big.Int).SetBytes(l.Topics[1].Bytes()),
			Creator:  common.BytesToAddress(l.Topics[2].Bytes()),
			TokenURI: *abiString(out[0]),
		}, nil
	}
	return nil, fmt.Errorf("NFTMinted event not found in receipt %s", receipt.TxHash.Hex())
}
