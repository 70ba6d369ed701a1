package actions

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

// allowanceSteps NFT 合约在 stake / swap / lock 时 transferFrom 用户代币，先确保额度
func (x *exec) allowanceSteps(token common.Address, amount *big.Int, act func(ctx context.Context) (*ethtypes.Transaction, error)) sagaSteps {
	spender := x.f.Contracts().NFT
	return sagaSteps{
		approved: func(ctx context.Context) (bool, error) {
			allowance, err := x.tokenAt(token).Allowance(ctx, x.account, spender)
			if err != nil {
				return false, err
			}
			return allowance.Cmp(amount) >= 0, nil
		},
		approve: func(ctx context.Context) (*ethtypes.Transaction, error) {
			return x.tokenAt(token).Approve(ctx, spender, amount)
		},
		act: act,
	}
}

func (x *exec) formatAmount(ctx context.Context, token common.Address, amount *big.Int) string {
	dec, err := x.f.TokenDecimals(ctx, token)
	if err != nil {
		return amount.String()
	}
	return units.FormatUnits(amount, int32(dec))
}

// Stake 质押支付代币
func (d *Dispatcher) Stake(ctx context.Context, amount *big.Int) (*Result, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	return d.run(ctx, KindStake, nil, func(ctx context.Context, x *exec) (string, error) {
		token := x.f.Contracts().PaymentToken
		_, err := x.runSaga(ctx, amount.String(), x.allowanceSteps(token, amount, func(ctx context.Context) (*ethtypes.Transaction, error) {
			return x.nft().Stake(ctx, amount)
		}))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Staked %s USDC", formatToken(amount)), nil
	})
}

func (d *Dispatcher) Unstake(ctx context.Context, amount *big.Int) (*Result, error) {
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	return d.run(ctx, KindUnstake, nil, func(ctx context.Context, x *exec) (string, error) {
		if _, err := x.send(ctx, "unstake", func() (*ethtypes.Transaction, error) {
			return x.nft().Unstake(ctx, amount)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Unstaked %s USDC", formatToken(amount)), nil
	})
}

func (d *Dispatcher) ClaimRewards(ctx context.Context) (*Result, error) {
	return d.run(ctx, KindClaimRewards, nil, func(ctx context.Context, x *exec) (string, error) {
		info, err := x.nft().StakeInfo(ctx, x.account)
		if err != nil {
			return "", fmt.Errorf("getStakeInfo: %w", err)
		}
		if _, err := x.send(ctx, "claimRewards", func() (*ethtypes.Transaction, error) {
			return x.nft().ClaimRewards(ctx)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Claimed %s USDC rewards", formatToken(info.PendingReward)), nil
	})
}

// SwapRequest 兑换参数；MinOut 为 nil 时按报价和 SlippageBps 计算
type SwapRequest struct {
	TokenIn     string
	TokenOut    string
	AmountIn    *big.Int
	MinOut      *big.Int
	SlippageBps int64
}

// Swap 报价 -> 授权（额度足够则跳过）-> swapTokens
func (d *Dispatcher) Swap(ctx context.Context, req SwapRequest) (*Result, error) {
	in, err := types.ValidateAddress(req.TokenIn)
	if err != nil {
		return nil, fmt.Errorf("token in: %w", err)
	}
	out, err := types.ValidateAddress(req.TokenOut)
	if err != nil {
		return nil, fmt.Errorf("token out: %w", err)
	}
	if in == out {
		return nil, fmt.Errorf("token in and token out must differ")
	}
	if err := requirePositive("amount", req.AmountIn); err != nil {
		return nil, err
	}
	if req.SlippageBps < 0 || req.SlippageBps >= types.FeeBasisPoints {
		return nil, fmt.Errorf("slippage out of range: %d bps", req.SlippageBps)
	}
	return d.run(ctx, KindSwap, nil, func(ctx context.Context, x *exec) (string, error) {
		quote, err := x.nft().GetSwapQuote(ctx, in, out, req.AmountIn)
		if err != nil {
			return "", fmt.Errorf("getSwapQuote: %w", err)
		}
		minOut := req.MinOut
		if minOut == nil {
			minOut = new(big.Int).Mul(quote, big.NewInt(types.FeeBasisPoints-req.SlippageBps))
			minOut.Div(minOut, big.NewInt(types.FeeBasisPoints))
		}
		x.res.Data = map[string]string{"quote": quote.String(), "minOut": minOut.String()}

		subject := in.Hex() + "-" + out.Hex()
		_, err = x.runSaga(ctx, subject, x.allowanceSteps(in, req.AmountIn, func(ctx context.Context) (*ethtypes.Transaction, error) {
			return x.nft().Swap(ctx, in, out, req.AmountIn, minOut)
		}))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("Swapped %s for at least %s", x.formatAmount(ctx, in, req.AmountIn), x.formatAmount(ctx, out, minOut)), nil
	})
}

// Lock 锁仓 duration；token 为空时锁支付代币
func (d *Dispatcher) Lock(ctx context.Context, token string, amount *big.Int, duration time.Duration) (*Result, error) {
	tokenAddr := d.factory.Contracts().PaymentToken
	if token != "" {
		addr, err := types.ValidateAddress(token)
		if err != nil {
			return nil, err
		}
		tokenAddr = addr
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	if duration < time.Second {
		return nil, fmt.Errorf("lock duration must be at least 1s")
	}
	return d.run(ctx, KindLock, nil, func(ctx context.Context, x *exec) (string, error) {
		_, err := x.runSaga(ctx, tokenAddr.Hex()+"-"+amount.String(), x.allowanceSteps(tokenAddr, amount, func(ctx context.Context) (*ethtypes.Transaction, error) {
			return x.nft().LockTokens(ctx, tokenAddr, amount, duration)
		}))
		if err != nil {
			return "", err
		}
		until := d.opts.Now().Add(duration).UTC().Format(time.RFC3339)
		return fmt.Sprintf("Locked %s until %s", x.formatAmount(ctx, tokenAddr, amount), until), nil
	})
}

// Unlock 解锁到期的金库；未到期时直接报错，不发交易
func (d *Dispatcher) Unlock(ctx context.Context, vaultID *big.Int) (*Result, error) {
	if vaultID == nil || vaultID.Sign() < 0 {
		return nil, fmt.Errorf("invalid vault id")
	}
	return d.run(ctx, KindUnlock, nil, func(ctx context.Context, x *exec) (string, error) {
		vault, err := x.nft().GetVault(ctx, x.account, vaultID)
		if err != nil {
			return "", fmt.Errorf("getVault: %w", err)
		}
		x.res.Data = vault
		if vault.Withdrawn {
			return "", fmt.Errorf("%w: vault %s", ErrAlreadyWithdrawn, vaultID)
		}
		if now := d.opts.Now(); !vault.Unlockable(now) {
			return "", fmt.Errorf("%w: vault %s unlocks at %s (in %s)", ErrStillLocked, vaultID,
				vault.UnlockTime.Format(time.RFC3339), vault.UnlockTime.Sub(now).Round(time.Second))
		}
		if _, err := x.send(ctx, "unlockTokens", func() (*ethtypes.Transaction, error) {
			return x.nft().UnlockTokens(ctx, vaultID)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Unlocked %s", x.formatAmount(ctx, vault.Token, vault.Amount)), nil
	})
}

// Transfer 转账支付代币
func (d *Dispatcher) Transfer(ctx context.Context, to string, amount *big.Int) (*Result, error) {
	recipient, err := types.ValidateAddress(to)
	if err != nil {
		return nil, err
	}
	if err := requirePositive("amount", amount); err != nil {
		return nil, err
	}
	return d.run(ctx, KindTransfer, nil, func(ctx context.Context, x *exec) (string, error) {
		if _, err := x.send(ctx, "transfer", func() (*ethtypes.Transaction, error) {
			return x.token().Transfer(ctx, recipient, amount)
		}); err != nil {
			return "", err
		}
		return fmt.Sprintf("Sent %s USDC to %s", formatToken(amount), types.ShortenAddress(recipient.Hex())), nil
	})
}
