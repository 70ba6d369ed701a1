package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/market/client"
)

// MintRequest 铸造参数；TokenURI 一般是 pinning 后的 metadata 网关地址
type MintRequest struct {
	TokenURI    string `json:"tokenURI"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

func (r MintRequest) validate() error {
	if strings.TrimSpace(r.TokenURI) == "" {
		return errors.New("token uri is required")
	}
	if strings.TrimSpace(r.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

// Mint 读取 mintPrice 并支付，返回 NFTMinted 事件中的 token id
func (d *Dispatcher) Mint(ctx context.Context, req MintRequest) (*Result, error) {
	if err := req.validate(); err != nil {
		return nil, err
	}
	return d.run(ctx, KindMint, nil, func(ctx context.Context, x *exec) (string, error) {
		nft := x.nft()
		price, err := nft.MintPrice(ctx)
		if err != nil {
			return "", fmt.Errorf("mintPrice: %w", err)
		}
		receipt, err := x.send(ctx, "mintNFT", func() (*ethtypes.Transaction, error) {
			return nft.MintNFT(ctx, client.MintParams{
				TokenURI:    req.TokenURI,
				Name:        req.Name,
				Description: req.Description,
				Image:       req.Image,
			}, price)
		})
		if err != nil {
			return "", err
		}
		ev, err := nft.ParseNFTMinted(receipt)
		if err != nil {
			// 交易已成功，只是拿不到 token id
			actionLog.Warnf("[actions] 解析 NFTMinted 事件失败: %v", err)
			return "NFT minted", nil
		}
		x.res.TokenID = ev.TokenID
		x.res.Data = ev
		return fmt.Sprintf("NFT #%s minted", ev.TokenID), nil
	})
}
