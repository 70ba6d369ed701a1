package client

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// TokenClient 支付代币（ERC20）客户端
type TokenClient struct {
	*contract
}

func (c *TokenClient) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	return c.callBig(ctx, "balanceOf", account)
}

func (c *TokenClient) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return c.callBig(ctx, "allowance", owner, spender)
}

func (c *TokenClient) Decimals(ctx context.Context) (uint8, error) {
	out, err := c.call(ctx, "decimals")
	if err != nil {
		return 0, err
	}
	d, ok := out[0].(uint8)
	if !ok {
		return 0, fmt.Errorf("%s.decimals: unexpected output type %T", c.name, out[0])
	}
	return d, nil
}

func (c *TokenClient) Approve(ctx context.Context, spender common.Address, amount *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "approve", spender, amount)
}

func (c *TokenClient) Transfer(ctx context.Context, to common.Address, amount *big.Int) (*ethtypes.Transaction, error) {
	return c.transact(ctx, nil, "transfer", to, amount)
}
