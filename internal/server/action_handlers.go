package server

import (
	"context"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/cryptolocker/nftwallet/internal/actions"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

type actionFunc func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error)

// runAction 执行动作并推送结果。res 为 nil 说明参数校验失败，没有任何网络调用
func (s *Server) runAction(w http.ResponseWriter, r *http.Request, fn actionFunc) {
	_, d := s.current()
	if d == nil {
		writeError(w, statusFor(wallet.ErrNotConnected), wallet.ErrNotConnected.Error())
		return
	}
	res, err := fn(r.Context(), d)
	if res == nil {
		if err == nil {
			err = fmt.Errorf("action returned no result")
		}
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.hub.publish("action", res)
	if err != nil {
		writeJSON(w, statusFor(err), res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// withBody 先解码请求体，解码失败直接 400
func withBody[T any](s *Server, w http.ResponseWriter, r *http.Request, fn func(ctx context.Context, d *actions.Dispatcher, req T) (*actions.Result, error)) {
	var req T
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		return fn(ctx, d, req)
	})
}

func tokenIDParam(r *http.Request) (*big.Int, error) {
	return actions.ParseTokenID(pathParam(r, "tokenID"))
}

// parseRaw 最小单位整数字符串（swap / 非支付代币锁仓使用）
func parseRaw(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok || v.Sign() <= 0 {
		return nil, fmt.Errorf("%w: %q", units.ErrInvalidAmount, s)
	}
	return v, nil
}

type mintRequest struct {
	TokenURI    string `json:"tokenURI"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req mintRequest) (*actions.Result, error) {
		return d.Mint(ctx, actions.MintRequest{
			TokenURI:    req.TokenURI,
			Name:        req.Name,
			Description: req.Description,
			Image:       req.Image,
		})
	})
}

type listRequest struct {
	TokenID string `json:"tokenId"`
	Price   string `json:"price"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req listRequest) (*actions.Result, error) {
		id, err := actions.ParseTokenID(req.TokenID)
		if err != nil {
			return nil, err
		}
		price, err := actions.ParsePrice(req.Price)
		if err != nil {
			return nil, err
		}
		return d.List(ctx, id, price)
	})
}

func (s *Server) handleGetListing(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		id, err := tokenIDParam(r)
		if err != nil {
			return nil, err
		}
		return d.GetListing(ctx, id)
	})
}

func (s *Server) handleBuy(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		id, err := tokenIDParam(r)
		if err != nil {
			return nil, err
		}
		return d.Buy(ctx, id)
	})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		id, err := tokenIDParam(r)
		if err != nil {
			return nil, err
		}
		return d.Cancel(ctx, id)
	})
}

type priceRequest struct {
	Price string `json:"price"`
}

func (s *Server) handleUpdatePrice(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req priceRequest) (*actions.Result, error) {
		id, err := tokenIDParam(r)
		if err != nil {
			return nil, err
		}
		price, err := actions.ParsePrice(req.Price)
		if err != nil {
			return nil, err
		}
		return d.UpdatePrice(ctx, id, price)
	})
}

func (s *Server) handleApproveMarketplace(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		return d.ApproveMarketplace(ctx)
	})
}

type amountRequest struct {
	Amount string `json:"amount"`
}

// amountAction 金额按支付代币精度解析（"12.5" USDC）
func (s *Server) amountAction(w http.ResponseWriter, r *http.Request, fn func(d *actions.Dispatcher, ctx context.Context, amount *big.Int) (*actions.Result, error)) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req amountRequest) (*actions.Result, error) {
		amount, err := actions.ParsePrice(req.Amount)
		if err != nil {
			return nil, err
		}
		return fn(d, ctx, amount)
	})
}

func (s *Server) handleApproveToken(w http.ResponseWriter, r *http.Request) {
	s.amountAction(w, r, (*actions.Dispatcher).ApproveToken)
}

func (s *Server) handleStake(w http.ResponseWriter, r *http.Request) {
	s.amountAction(w, r, (*actions.Dispatcher).Stake)
}

func (s *Server) handleUnstake(w http.ResponseWriter, r *http.Request) {
	s.amountAction(w, r, (*actions.Dispatcher).Unstake)
}

func (s *Server) handleClaim(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		return d.ClaimRewards(ctx)
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		return d.Withdraw(ctx)
	})
}

type transferRequest struct {
	To     string `json:"to"`
	Amount string `json:"amount"`
}

func (s *Server) handleTransfer(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req transferRequest) (*actions.Result, error) {
		amount, err := actions.ParsePrice(req.Amount)
		if err != nil {
			return nil, err
		}
		return d.Transfer(ctx, req.To, amount)
	})
}

type swapRequest struct {
	TokenIn     string `json:"tokenIn"`
	TokenOut    string `json:"tokenOut"`
	AmountIn    string `json:"amountIn"`
	MinOut      string `json:"minOut,omitempty"`
	SlippageBps int64  `json:"slippageBps"`
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req swapRequest) (*actions.Result, error) {
		amountIn, err := parseRaw(req.AmountIn)
		if err != nil {
			return nil, err
		}
		var minOut *big.Int
		if req.MinOut != "" {
			if minOut, err = parseRaw(req.MinOut); err != nil {
				return nil, err
			}
		}
		return d.Swap(ctx, actions.SwapRequest{
			TokenIn:     req.TokenIn,
			TokenOut:    req.TokenOut,
			AmountIn:    amountIn,
			MinOut:      minOut,
			SlippageBps: req.SlippageBps,
		})
	})
}

type lockRequest struct {
	// Token 为空时锁支付代币，Amount 按 USDC 精度；否则 Amount 为最小单位
	Token       string `json:"token,omitempty"`
	Amount      string `json:"amount"`
	DurationSec int64  `json:"durationSec"`
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	withBody(s, w, r, func(ctx context.Context, d *actions.Dispatcher, req lockRequest) (*actions.Result, error) {
		parse := actions.ParsePrice
		if req.Token != "" {
			parse = parseRaw
		}
		amount, err := parse(req.Amount)
		if err != nil {
			return nil, err
		}
		return d.Lock(ctx, req.Token, amount, time.Duration(req.DurationSec)*time.Second)
	})
}

func (s *Server) handleUnlock(w http.ResponseWriter, r *http.Request) {
	s.runAction(w, r, func(ctx context.Context, d *actions.Dispatcher) (*actions.Result, error) {
		id, err := actions.ParseTokenID(pathParam(r, "vaultID"))
		if err != nil {
			return nil, fmt.Errorf("invalid vault id %q", pathParam(r, "vaultID"))
		}
		return d.Unlock(ctx, id)
	})
}
