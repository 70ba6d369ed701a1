package wallet

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
)

// DialFunc 按 RPC URL 建立后端连接
type DialFunc func(ctx context.Context, rpcURL string) (client.Backend, error)

// DialEthclient 默认拨号：go-ethereum ethclient
func DialEthclient(ctx context.Context, rpcURL string) (client.Backend, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("连接RPC节点失败: %w", err)
	}
	return c, nil
}

// KeyProviderOptions 私钥/助记词二选一；都为空时为只读 provider，需要 WatchAddress
type KeyProviderOptions struct {
	PrivateKeyHex  string
	Mnemonic       string
	DerivationPath string
	WatchAddress   string

	Network  types.Network
	Networks []types.Network
	Dial     DialFunc
}

// KeyProvider 服务端进程使用的 Provider：本地密钥签名，按网络拨号 RPC
type KeyProvider struct {
	mu sync.Mutex

	signer   client.TxSigner
	account  common.Address
	networks map[types.Chain]types.Network
	current  types.Network
	backend  client.Backend
	dial     DialFunc

	subs   map[int]func(Event)
	nextID int
}

// NewKeyProvider 解析密钥并连接初始网络
func NewKeyProvider(ctx context.Context, opts KeyProviderOptions) (*KeyProvider, error) {
	p := &KeyProvider{
		networks: make(map[types.Chain]types.Network),
		dial:     opts.Dial,
		subs:     make(map[int]func(Event)),
	}
	if p.dial == nil {
		p.dial = DialEthclient
	}
	for _, n := range types.KnownNetworks() {
		p.networks[n.ChainID] = n
	}
	for _, n := range opts.Networks {
		p.networks[n.ChainID] = n
	}
	p.networks[opts.Network.ChainID] = opts.Network

	switch {
	case strings.TrimSpace(opts.PrivateKeyHex) != "":
		signer, err := client.KeySignerFromHex(opts.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		p.signer, p.account = signer, signer.Address()
	case strings.TrimSpace(opts.Mnemonic) != "":
		derived, err := DeriveFromMnemonic(opts.Mnemonic, opts.DerivationPath)
		if err != nil {
			return nil, err
		}
		signer, err := client.KeySignerFromHex(derived.PrivateKeyHex)
		if err != nil {
			return nil, err
		}
		p.signer, p.account = signer, signer.Address()
	case strings.TrimSpace(opts.WatchAddress) != "":
		addr, err := types.ValidateAddress(opts.WatchAddress)
		if err != nil {
			return nil, err
		}
		p.account = addr
	}

	backend, err := p.dial(ctx, opts.Network.RPCURL)
	if err != nil {
		return nil, err
	}
	p.current, p.backend = opts.Network, backend
	return p, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.account == (common.Address{}) {
		return nil, nil
	}
	return []common.Address{p.account}, nil
}

// ChainID 以节点返回为准
func (p *KeyProvider) ChainID(ctx context.Context) (types.Chain, error) {
	backend := p.Backend()
	id, err := backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("获取链ID失败: %w", err)
	}
	return types.Chain(id.Int64()), nil
}

func (p *KeyProvider) SwitchChain(ctx context.Context, chain types.Chain) error {
	p.mu.Lock()
	n, ok := p.networks[chain]
	p.mu.Unlock()
	if !ok {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: fmt.Sprintf("unrecognized chain id %d", chain)}
	}
	return p.use(ctx, n)
}

// AddChain 注册网络并切换过去
func (p *KeyProvider) AddChain(ctx context.Context, params types.ChainParams) error {
	n, err := types.NetworkFromParams(params)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.networks[n.ChainID] = n
	p.mu.Unlock()
	return p.use(ctx, n)
}

func (p *KeyProvider) use(ctx context.Context, n types.Network) error {
	backend, err := p.dial(ctx, n.RPCURL)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.current, p.backend = n, backend
	p.mu.Unlock()
	p.emit(Event{Kind: EventChainChanged, ChainID: n.ChainID, At: time.Now()})
	return nil
}

func (p *KeyProvider) Signer(account common.Address) (client.TxSigner, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signer == nil || p.signer.Address() != account {
		return nil, false
	}
	return p.signer, true
}

func (p *KeyProvider) Backend() client.Backend {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.backend
}

// Current 当前连接的网络
func (p *KeyProvider) Current() types.Network {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

func (p *KeyProvider) Subscribe(fn func(Event)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subs[id] = fn
	return func() {
		p.mu.Lock()
		delete(p.subs, id)
		p.mu.Unlock()
	}
}

// Lock 模拟钱包锁定：通知订阅者账户列表为空
func (p *KeyProvider) Lock() {
	p.emit(Event{Kind: EventAccountsChanged, Accounts: nil, At: time.Now()})
}

func (p *KeyProvider) emit(ev Event) {
	p.mu.Lock()
	fns := make([]func(Event), 0, len(p.subs))
	for _, fn := range p.subs {
		fns = append(fns, fn)
	}
	p.mu.Unlock()
	for _, fn := range fns {
		fn(ev)
	}
}
