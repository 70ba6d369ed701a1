package client

import (
	"fmt"
	"math/big"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	marketabi "github.com/cryptolocker/nftwallet/market/abi"
	"github.com/cryptolocker/nftwallet/market/types"
)

// SimChain 在 MockBackend 上模拟 NFT / 市场 / ERC20 三个合约的状态，
// walletd 的模拟模式和各包测试共用。
type SimChain struct {
	*MockBackend

	Contracts types.Contracts
	Now       func() time.Time

	tokens map[common.Address]*simToken

	owners    map[string]common.Address
	uris      map[string]string
	approved  map[string]common.Address
	operators map[common.Address]map[common.Address]bool
	nextID    int64
	mintPrice *big.Int
	vaults    map[common.Address][]*vaultTuple
	stakes    map[common.Address]*simStake
	swapBps   int64

	listings    map[string]*listingTuple
	pending     map[common.Address]*big.Int
	feeBps      *big.Int
	auctions    map[string]*auctionTuple
	auctionBase map[string]*big.Int

	nftABI    abi.ABI
	marketABI abi.ABI
}

type simToken struct {
	decimals   uint8
	balances   map[common.Address]*big.Int
	allowances map[common.Address]map[common.Address]*big.Int
}

type simStake struct {
	amount *big.Int
	since  time.Time
}

func revert(format string, args ...interface{}) error {
	return fmt.Errorf("execution reverted: "+format, args...)
}

// NewSimChain 创建模拟链：铸造价 0.01 原生币，平台费 2%
func NewSimChain(chain types.Chain, contracts types.Contracts) (*SimChain, error) {
	s := &SimChain{
		MockBackend: NewMockBackend(chain.BigInt()),
		Contracts:   contracts,
		Now:         time.Now,
		tokens:      make(map[common.Address]*simToken),
		owners:      make(map[string]common.Address),
		uris:        make(map[string]string),
		approved:    make(map[string]common.Address),
		operators:   make(map[common.Address]map[common.Address]bool),
		nextID:      1,
		mintPrice:   big.NewInt(10_000_000_000_000_000),
		vaults:      make(map[common.Address][]*vaultTuple),
		stakes:      make(map[common.Address]*simStake),
		swapBps:     9_970,
		listings:    make(map[string]*listingTuple),
		pending:     make(map[common.Address]*big.Int),
		feeBps:      big.NewInt(200),
		auctions:    make(map[string]*auctionTuple),
		auctionBase: make(map[string]*big.Int),
	}
	var err error
	if s.nftABI, err = parseABI("NFT", marketabi.NFTABI); err != nil {
		return nil, err
	}
	if s.marketABI, err = parseABI("Marketplace", marketabi.MarketplaceABI); err != nil {
		return nil, err
	}
	if err := s.Register("NFT", contracts.NFT, marketabi.NFTABI); err != nil {
		return nil, err
	}
	if err := s.Register("Marketplace", contracts.Marketplace, marketabi.MarketplaceABI); err != nil {
		return nil, err
	}
	if err := s.AddToken(contracts.PaymentToken, types.PaymentTokenDecimals); err != nil {
		return nil, err
	}
	s.registerNFT()
	s.registerMarketplace()
	return s, nil
}

// AddToken 注册一个 ERC20（支付代币之外的兑换目标）
func (s *SimChain) AddToken(address common.Address, decimals uint8) error {
	label := "Token"
	if address != s.Contracts.PaymentToken {
		label = "ERC20:" + address.Hex()
	}
	if err := s.Register(label, address, marketabi.ERC20ABI); err != nil {
		return err
	}
	t := &simToken{
		decimals:   decimals,
		balances:   make(map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[common.Address]*big.Int),
	}
	s.mu.Lock()
	s.tokens[address] = t
	s.mu.Unlock()
	s.registerToken(address, t)
	return nil
}

// Fund 给账户发支付代币
func (s *SimChain) Fund(account common.Address, amount *big.Int) {
	s.FundToken(s.Contracts.PaymentToken, account, amount)
}

func (s *SimChain) FundToken(token, account common.Address, amount *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tokens[token]; ok {
		t.credit(account, amount)
	}
}

// TokenBalance 支付代币余额
func (s *SimChain) TokenBalance(account common.Address) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokens[s.Contracts.PaymentToken].balance(account)
}

// Owner 当前 NFT 持有人
func (s *SimChain) Owner(tokenID *big.Int) common.Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owners[tokenID.String()]
}

func (s *SimChain) SetMintPrice(wei *big.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mintPrice = new(big.Int).Set(wei)
}

func (s *SimChain) SetPlatformFee(bps int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeBps = big.NewInt(bps)
}

// MintTo 直接铸造（测试准备数据用），返回 token id
func (s *SimChain) MintTo(owner common.Address, uri string) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mint(owner, uri)
}

func (s *SimChain) mint(owner common.Address, uri string) *big.Int {
	id := big.NewInt(s.nextID)
	s.nextID++
	s.owners[id.String()] = owner
	s.uris[id.String()] = uri
	return id
}

func (t *simToken) balance(a common.Address) *big.Int {
	if b, ok := t.balances[a]; ok {
		return new(big.Int).Set(b)
	}
	return new(big.Int)
}

func (t *simToken) credit(a common.Address, amount *big.Int) {
	t.balances[a] = new(big.Int).Add(t.balance(a), amount)
}

func (t *simToken) allowance(owner, spender common.Address) *big.Int {
	if m, ok := t.allowances[owner]; ok {
		if v, ok := m[spender]; ok {
			return new(big.Int).Set(v)
		}
	}
	return new(big.Int)
}

func (t *simToken) setAllowance(owner, spender common.Address, amount *big.Int) {
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]*big.Int)
	}
	t.allowances[owner][spender] = new(big.Int).Set(amount)
}

func (t *simToken) transfer(from, to common.Address, amount *big.Int) error {
	if t.balance(from).Cmp(amount) < 0 {
		return revert("ERC20: transfer amount exceeds balance")
	}
	t.balances[from] = new(big.Int).Sub(t.balance(from), amount)
	t.credit(to, amount)
	return nil
}

func (t *simToken) transferFrom(spender, from, to common.Address, amount *big.Int) error {
	allowed := t.allowance(from, spender)
	if allowed.Cmp(amount) < 0 {
		return revert("ERC20: insufficient allowance")
	}
	if err := t.transfer(from, to, amount); err != nil {
		return err
	}
	t.setAllowance(from, spender, new(big.Int).Sub(allowed, amount))
	return nil
}

func (s *SimChain) registerToken(address common.Address, t *simToken) {
	s.OnCall(address, "balanceOf", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{t.balance(args[0].(common.Address))}, nil
	})
	s.OnCall(address, "allowance", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{t.allowance(args[0].(common.Address), args[1].(common.Address))}, nil
	})
	s.OnCall(address, "decimals", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{t.decimals}, nil
	})
	s.OnTx(address, "approve", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		t.setAllowance(from, args[0].(common.Address), args[1].(*big.Int))
		return nil, nil
	})
	s.OnTx(address, "transfer", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		return nil, t.transfer(from, args[0].(common.Address), args[1].(*big.Int))
	})
}

func (s *SimChain) paymentToken() *simToken {
	return s.tokens[s.Contracts.PaymentToken]
}

func (s *SimChain) marketApproved(owner common.Address, id string) bool {
	return s.operators[owner][s.Contracts.Marketplace] || s.approved[id] == s.Contracts.Marketplace
}

func (s *SimChain) transferNFT(id string, to common.Address) {
	s.owners[id] = to
	delete(s.approved, id)
}

func (s *SimChain) registerNFT() {
	nft := s.Contracts.NFT

	s.OnCall(nft, "balanceOf", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		owner := args[0].(common.Address)
		n := int64(0)
		for _, o := range s.owners {
			if o == owner {
				n++
			}
		}
		return []interface{}{big.NewInt(n)}, nil
	})
	s.OnCall(nft, "ownerOf", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		o, ok := s.owners[args[0].(*big.Int).String()]
		if !ok {
			return nil, revert("ERC721: invalid token ID")
		}
		return []interface{}{o}, nil
	})
	s.OnCall(nft, "tokenURI", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		uri, ok := s.uris[args[0].(*big.Int).String()]
		if !ok {
			return nil, revert("ERC721: invalid token ID")
		}
		return []interface{}{uri}, nil
	})
	s.OnCall(nft, "totalSupply", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(int64(len(s.owners)))}, nil
	})
	s.OnCall(nft, "mintPrice", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Set(s.mintPrice)}, nil
	})
	s.OnCall(nft, "getApproved", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{s.approved[args[0].(*big.Int).String()]}, nil
	})
	s.OnCall(nft, "isApprovedForAll", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{s.operators[args[0].(common.Address)][args[1].(common.Address)]}, nil
	})

	s.OnTx(nft, "mintNFT", func(from common.Address, value *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		if value.Cmp(s.mintPrice) < 0 {
			return nil, revert("Insufficient payment")
		}
		uri := args[0].(string)
		id := s.mint(from, uri)
		s.native[s.Contracts.FeeCollector] = new(big.Int).Add(nativeOrZero(s.native[s.Contracts.FeeCollector]), value)
		l, err := EventLog(nft, s.nftABI.Events["NFTMinted"],
			[]common.Hash{common.BigToHash(id), common.BytesToHash(from.Bytes())}, uri)
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{l}, nil
	})
	s.OnTx(nft, "setApprovalForAll", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		if s.operators[from] == nil {
			s.operators[from] = make(map[common.Address]bool)
		}
		s.operators[from][args[0].(common.Address)] = args[1].(bool)
		return nil, nil
	})
	s.OnTx(nft, "approve", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		id := args[1].(*big.Int).String()
		if s.owners[id] != from {
			return nil, revert("ERC721: approve caller is not token owner")
		}
		s.approved[id] = args[0].(common.Address)
		return nil, nil
	})
	s.OnTx(nft, "transferFrom", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		owner, to := args[0].(common.Address), args[1].(common.Address)
		id := args[2].(*big.Int).String()
		if s.owners[id] != owner {
			return nil, revert("ERC721: transfer from incorrect owner")
		}
		if from != owner && !s.operators[owner][from] && s.approved[id] != from {
			return nil, revert("ERC721: caller is not token owner or approved")
		}
		s.transferNFT(id, to)
		return nil, nil
	})

	s.registerVault(nft)
	s.registerStaking(nft)
	s.registerSwap(nft)
}

func (s *SimChain) registerVault(nft common.Address) {
	s.OnTx(nft, "lockTokens", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		tokenAddr, amount, duration := args[0].(common.Address), args[1].(*big.Int), args[2].(*big.Int)
		t, ok := s.tokens[tokenAddr]
		if !ok {
			return nil, revert("unsupported token")
		}
		if amount.Sign() <= 0 || duration.Sign() <= 0 {
			return nil, revert("amount and duration must be positive")
		}
		if err := t.transferFrom(nft, from, nft, amount); err != nil {
			return nil, err
		}
		unlock := big.NewInt(s.Now().Unix() + duration.Int64())
		s.vaults[from] = append(s.vaults[from], &vaultTuple{
			Token:      tokenAddr,
			Amount:     new(big.Int).Set(amount),
			UnlockTime: unlock,
		})
		vaultID := big.NewInt(int64(len(s.vaults[from]) - 1))
		l, err := EventLog(nft, s.nftABI.Events["TokensLocked"],
			[]common.Hash{common.BytesToHash(from.Bytes()), common.BigToHash(vaultID)},
			tokenAddr, amount, unlock)
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{l}, nil
	})
	s.OnTx(nft, "unlockTokens", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		v, err := s.vault(from, args[0].(*big.Int))
		if err != nil {
			return nil, err
		}
		if v.Withdrawn {
			return nil, revert("already withdrawn")
		}
		if s.Now().Unix() < v.UnlockTime.Int64() {
			return nil, revert("tokens are still locked")
		}
		if err := s.tokens[v.Token].transfer(nft, from, v.Amount); err != nil {
			return nil, err
		}
		v.Withdrawn = true
		return nil, nil
	})
	s.OnCall(nft, "getVault", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		v, err := s.vault(args[0].(common.Address), args[1].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{*v}, nil
	})
	s.OnCall(nft, "getVaultCount", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(int64(len(s.vaults[args[0].(common.Address)])))}, nil
	})
}

func (s *SimChain) vault(user common.Address, id *big.Int) (*vaultTuple, error) {
	list := s.vaults[user]
	if !id.IsInt64() || id.Int64() < 0 || id.Int64() >= int64(len(list)) {
		return nil, revert("vault does not exist")
	}
	return list[id.Int64()], nil
}

// reward 每天 1%
func (s *SimChain) reward(st *simStake) *big.Int {
	if st == nil || st.amount.Sign() == 0 {
		return new(big.Int)
	}
	elapsed := int64(s.Now().Sub(st.since) / time.Second)
	if elapsed <= 0 {
		return new(big.Int)
	}
	r := new(big.Int).Mul(st.amount, big.NewInt(elapsed))
	return r.Div(r, big.NewInt(86_400*100))
}

func (s *SimChain) registerStaking(nft common.Address) {
	settle := func(user common.Address) *simStake {
		st, ok := s.stakes[user]
		if !ok {
			st = &simStake{amount: new(big.Int), since: s.Now()}
			s.stakes[user] = st
			return st
		}
		if r := s.reward(st); r.Sign() > 0 {
			s.paymentToken().credit(user, r)
		}
		st.since = s.Now()
		return st
	}

	s.OnTx(nft, "stake", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		amount := args[0].(*big.Int)
		if amount.Sign() <= 0 {
			return nil, revert("cannot stake 0")
		}
		if err := s.paymentToken().transferFrom(nft, from, nft, amount); err != nil {
			return nil, err
		}
		st := settle(from)
		st.amount = new(big.Int).Add(st.amount, amount)
		return nil, nil
	})
	s.OnTx(nft, "unstake", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		amount := args[0].(*big.Int)
		st, ok := s.stakes[from]
		if !ok || st.amount.Cmp(amount) < 0 || amount.Sign() <= 0 {
			return nil, revert("insufficient stake")
		}
		if err := s.paymentToken().transfer(nft, from, amount); err != nil {
			return nil, err
		}
		settle(from)
		st.amount = new(big.Int).Sub(st.amount, amount)
		return nil, nil
	})
	s.OnTx(nft, "claimRewards", func(from common.Address, _ *big.Int, _ []interface{}) ([]*ethtypes.Log, error) {
		st, ok := s.stakes[from]
		if !ok || s.reward(st).Sign() == 0 {
			return nil, revert("no rewards")
		}
		settle(from)
		return nil, nil
	})
	s.OnCall(nft, "getStakeInfo", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		st, ok := s.stakes[args[0].(common.Address)]
		if !ok {
			return []interface{}{new(big.Int), new(big.Int), new(big.Int)}, nil
		}
		return []interface{}{new(big.Int).Set(st.amount), s.reward(st), big.NewInt(st.since.Unix())}, nil
	})
}

func (s *SimChain) quote(in, out common.Address, amountIn *big.Int) (*big.Int, error) {
	if _, ok := s.tokens[in]; !ok {
		return nil, revert("unsupported token")
	}
	if _, ok := s.tokens[out]; !ok || in == out {
		return nil, revert("unsupported pair")
	}
	q := new(big.Int).Mul(amountIn, big.NewInt(s.swapBps))
	return q.Div(q, big.NewInt(types.FeeBasisPoints)), nil
}

func (s *SimChain) registerSwap(nft common.Address) {
	s.OnCall(nft, "getSwapQuote", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		q, err := s.quote(args[0].(common.Address), args[1].(common.Address), args[2].(*big.Int))
		if err != nil {
			return nil, err
		}
		return []interface{}{q}, nil
	})
	s.OnTx(nft, "swapTokens", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		in, out := args[0].(common.Address), args[1].(common.Address)
		amountIn, minOut := args[2].(*big.Int), args[3].(*big.Int)
		q, err := s.quote(in, out, amountIn)
		if err != nil {
			return nil, err
		}
		if q.Cmp(minOut) < 0 {
			return nil, revert("slippage: output below minimum")
		}
		if err := s.tokens[in].transferFrom(nft, from, nft, amountIn); err != nil {
			return nil, err
		}
		s.tokens[out].credit(from, q)
		return nil, nil
	})
}

func (s *SimChain) fee(price *big.Int) *big.Int {
	f := new(big.Int).Mul(price, s.feeBps)
	return f.Div(f, big.NewInt(types.FeeBasisPoints))
}

// settleSale 市场合约持有 price，扣手续费后计入卖家待提取
func (s *SimChain) settleSale(seller common.Address, price *big.Int) error {
	fee := s.fee(price)
	if err := s.paymentToken().transfer(s.Contracts.Marketplace, s.Contracts.FeeCollector, fee); err != nil {
		return err
	}
	s.pending[seller] = new(big.Int).Add(nativeOrZero(s.pending[seller]), new(big.Int).Sub(price, fee))
	return nil
}

func (s *SimChain) registerMarketplace() {
	mp := s.Contracts.Marketplace
	pay := s.Contracts.PaymentToken

	s.OnTx(mp, "listItem", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		tokenID, price := args[0].(*big.Int), args[1].(*big.Int)
		id := tokenID.String()
		if s.owners[id] != from {
			return nil, revert("Not token owner")
		}
		if !s.marketApproved(from, id) {
			return nil, revert("Marketplace not approved")
		}
		if price.Sign() <= 0 {
			return nil, revert("Price must be greater than zero")
		}
		if l, ok := s.listings[id]; ok && l.Active {
			return nil, revert("Already listed")
		}
		s.listings[id] = &listingTuple{
			TokenId:  new(big.Int).Set(tokenID),
			Seller:   from,
			Price:    new(big.Int).Set(price),
			Active:   true,
			ListedAt: big.NewInt(s.Now().Unix()),
		}
		l, err := EventLog(mp, s.marketABI.Events["ItemListed"],
			[]common.Hash{common.BigToHash(tokenID), common.BytesToHash(from.Bytes())}, price)
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{l}, nil
	})
	s.OnTx(mp, "buyItem", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		tokenID := args[0].(*big.Int)
		id := tokenID.String()
		l, ok := s.listings[id]
		if !ok || !l.Active {
			return nil, revert("Item not listed")
		}
		if l.Seller == from {
			return nil, revert("Cannot buy your own item")
		}
		if err := s.paymentToken().transferFrom(mp, from, mp, l.Price); err != nil {
			return nil, err
		}
		if err := s.settleSale(l.Seller, l.Price); err != nil {
			return nil, err
		}
		s.transferNFT(id, from)
		l.Active = false
		ev, err := EventLog(mp, s.marketABI.Events["ItemSold"],
			[]common.Hash{common.BigToHash(tokenID), common.BytesToHash(from.Bytes())}, l.Price)
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{ev}, nil
	})
	s.OnTx(mp, "cancelListing", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		tokenID := args[0].(*big.Int)
		l, ok := s.listings[tokenID.String()]
		if !ok || !l.Active {
			return nil, revert("Item not listed")
		}
		if l.Seller != from {
			return nil, revert("Not the seller")
		}
		l.Active = false
		ev, err := EventLog(mp, s.marketABI.Events["ListingCancelled"],
			[]common.Hash{common.BigToHash(tokenID), common.BytesToHash(from.Bytes())})
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{ev}, nil
	})
	s.OnTx(mp, "updatePrice", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		l, ok := s.listings[args[0].(*big.Int).String()]
		if !ok || !l.Active {
			return nil, revert("Item not listed")
		}
		if l.Seller != from {
			return nil, revert("Not the seller")
		}
		price := args[1].(*big.Int)
		if price.Sign() <= 0 {
			return nil, revert("Price must be greater than zero")
		}
		l.Price = new(big.Int).Set(price)
		return nil, nil
	})
	s.OnTx(mp, "withdraw", func(from common.Address, _ *big.Int, _ []interface{}) ([]*ethtypes.Log, error) {
		amount := nativeOrZero(s.pending[from])
		if amount.Sign() == 0 {
			return nil, revert("No funds to withdraw")
		}
		if err := s.paymentToken().transfer(mp, from, amount); err != nil {
			return nil, err
		}
		delete(s.pending, from)
		ev, err := EventLog(mp, s.marketABI.Events["Withdrawn"],
			[]common.Hash{common.BytesToHash(from.Bytes())}, amount)
		if err != nil {
			return nil, err
		}
		return []*ethtypes.Log{ev}, nil
	})

	s.OnCall(mp, "getListing", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		tokenID := args[0].(*big.Int)
		if l, ok := s.listings[tokenID.String()]; ok {
			return []interface{}{*l}, nil
		}
		return []interface{}{listingTuple{TokenId: tokenID, Price: new(big.Int), ListedAt: new(big.Int)}}, nil
	})
	s.OnCall(mp, "getActiveListings", func(common.Address, []interface{}) ([]interface{}, error) {
		active := make([]listingTuple, 0, len(s.listings))
		for _, l := range s.listings {
			if l.Active {
				active = append(active, *l)
			}
		}
		sort.Slice(active, func(i, j int) bool { return active[i].TokenId.Cmp(active[j].TokenId) < 0 })
		return []interface{}{active}, nil
	})
	s.OnCall(mp, "pendingWithdrawals", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Set(nativeOrZero(s.pending[args[0].(common.Address)]))}, nil
	})
	s.OnCall(mp, "platformFee", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{new(big.Int).Set(s.feeBps)}, nil
	})
	s.OnCall(mp, "nftContract", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{s.Contracts.NFT}, nil
	})
	s.OnCall(mp, "paymentToken", func(common.Address, []interface{}) ([]interface{}, error) {
		return []interface{}{pay}, nil
	})

	s.registerAuctions(mp)
}

func (s *SimChain) registerAuctions(mp common.Address) {
	s.OnTx(mp, "createAuction", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		tokenID, start, duration := args[0].(*big.Int), args[1].(*big.Int), args[2].(*big.Int)
		id := tokenID.String()
		if s.owners[id] != from {
			return nil, revert("Not token owner")
		}
		if !s.marketApproved(from, id) {
			return nil, revert("Marketplace not approved")
		}
		if a, ok := s.auctions[id]; ok && a.Active {
			return nil, revert("Auction already active")
		}
		if duration.Sign() <= 0 {
			return nil, revert("Duration must be positive")
		}
		s.auctions[id] = &auctionTuple{
			TokenId:    new(big.Int).Set(tokenID),
			Seller:     from,
			HighestBid: new(big.Int),
			EndTime:    big.NewInt(s.Now().Unix() + duration.Int64()),
			Active:     true,
		}
		s.auctionBase[id] = new(big.Int).Set(start)
		return nil, nil
	})
	s.OnTx(mp, "placeBid", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		id, amount := args[0].(*big.Int).String(), args[1].(*big.Int)
		a, ok := s.auctions[id]
		if !ok || !a.Active || s.Now().Unix() >= a.EndTime.Int64() {
			return nil, revert("Auction not active")
		}
		if from == a.Seller {
			return nil, revert("Seller cannot bid")
		}
		if amount.Cmp(a.HighestBid) <= 0 || amount.Cmp(s.auctionBase[id]) < 0 {
			return nil, revert("Bid too low")
		}
		if err := s.paymentToken().transferFrom(mp, from, mp, amount); err != nil {
			return nil, err
		}
		if a.HighestBidder != (common.Address{}) {
			if err := s.paymentToken().transfer(mp, a.HighestBidder, a.HighestBid); err != nil {
				return nil, err
			}
		}
		a.HighestBidder, a.HighestBid = from, new(big.Int).Set(amount)
		return nil, nil
	})
	s.OnTx(mp, "endAuction", func(from common.Address, _ *big.Int, args []interface{}) ([]*ethtypes.Log, error) {
		id := args[0].(*big.Int).String()
		a, ok := s.auctions[id]
		if !ok || !a.Active {
			return nil, revert("Auction not active")
		}
		if s.Now().Unix() < a.EndTime.Int64() {
			return nil, revert("Auction not yet ended")
		}
		if a.HighestBidder != (common.Address{}) {
			if err := s.settleSale(a.Seller, a.HighestBid); err != nil {
				return nil, err
			}
			s.transferNFT(id, a.HighestBidder)
		}
		a.Active = false
		return nil, nil
	})
	s.OnCall(mp, "getAuction", func(_ common.Address, args []interface{}) ([]interface{}, error) {
		tokenID := args[0].(*big.Int)
		if a, ok := s.auctions[tokenID.String()]; ok {
			return []interface{}{*a}, nil
		}
		return []interface{}{auctionTuple{TokenId: tokenID, HighestBid: new(big.Int), EndTime: new(big.Int)}}, nil
	})
}
