package wallet

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
)

var sessionLog = logrus.WithField("component", "wallet_session")

// Status 会话状态
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnected    Status = "connected"
)

// State 会话快照（API 展示用）
type State struct {
	Status         Status         `json:"status"`
	Account        common.Address `json:"account"`
	ChainID        types.Chain    `json:"chainId"`
	ExpectedChain  types.Chain    `json:"expectedChainId"`
	Network        string         `json:"network"`
	ReadOnly       bool           `json:"readOnly"`
	CorrectNetwork bool           `json:"correctNetwork"`
}

// Session 已连接的钱包会话。provider 事件在其他 goroutine 到达，字段由 mu 保护。
type Session struct {
	mu sync.RWMutex

	provider Provider
	network  types.Network
	backend  client.Backend

	status  Status
	account common.Address
	signer  client.TxSigner
	chain   types.Chain

	listeners   map[int]func(Event)
	nextID      int
	unsubscribe func()
}

func newSession(p Provider, network types.Network) *Session {
	return &Session{
		provider:  p,
		network:   network,
		status:    StatusDisconnected,
		listeners: make(map[int]func(Event)),
	}
}

// Connect 请求账户 -> 构造 signer -> 读取链 ID -> 不匹配时切换（4902 时添加网络）-> 标记已连接。
// 切换失败不会返回错误，会话保持连接但处于网络不匹配状态，所有交易都会被拒绝。
func Connect(ctx context.Context, p Provider, network types.Network) (*Session, error) {
	accounts, err := p.RequestAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("request accounts: %w", err)
	}
	if len(accounts) == 0 {
		return nil, ErrNoAccounts
	}

	s := newSession(p, network)
	s.account = accounts[0]
	if signer, ok := p.Signer(accounts[0]); ok {
		s.signer = signer
	}

	chain, err := p.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("read chain id: %w", err)
	}
	s.chain = chain

	if chain != network.ChainID {
		sessionLog.Infof("网络不匹配: 当前 %d，期望 %s，请求切换", chain, network)
		if err := switchOrAdd(ctx, p, network); err != nil {
			sessionLog.Warnf("切换网络失败: %v", err)
		} else if chain, err = p.ChainID(ctx); err == nil {
			s.chain = chain
		}
	}

	s.backend = p.Backend()
	s.status = StatusConnected
	s.unsubscribe = p.Subscribe(s.handle)

	sessionLog.Infof("钱包已连接: %s chain=%d readOnly=%v", s.account.Hex(), s.chain, s.signer == nil)
	s.emit(Event{Kind: EventConnected, Accounts: []common.Address{s.account}, ChainID: s.chain, At: time.Now()})
	return s, nil
}

// Watch 只读观察一个地址：先校验地址，不做任何网络调用
func Watch(address string, network types.Network, backend client.Backend) (*Session, error) {
	addr, err := types.ValidateAddress(address)
	if err != nil {
		return nil, err
	}
	s := newSession(nil, network)
	s.account = addr
	s.chain = network.ChainID
	s.backend = backend
	s.status = StatusConnected
	return s, nil
}

// Disconnect 清空会话；之后的操作返回 ErrNotConnected
func Disconnect(s *Session) {
	if s == nil {
		return
	}
	s.mu.Lock()
	if s.status == StatusDisconnected {
		s.mu.Unlock()
		return
	}
	unsubscribe := s.clearLocked()
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	sessionLog.Info("钱包已断开")
	s.emit(Event{Kind: EventDisconnected, At: time.Now()})
}

// clearLocked 调用方需持有写锁
func (s *Session) clearLocked() func() {
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.status = StatusDisconnected
	s.account = common.Address{}
	s.signer = nil
	s.chain = 0
	return unsubscribe
}

func switchOrAdd(ctx context.Context, p Provider, network types.Network) error {
	err := p.SwitchChain(ctx, network.ChainID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, ErrUnrecognizedChain) {
		return fmt.Errorf("switch to %s: %w", network, err)
	}
	sessionLog.Infof("钱包未识别链 %d，添加网络 %s", network.ChainID, network.Name)
	if err := p.AddChain(ctx, network.AddChainParams()); err != nil {
		return fmt.Errorf("add network %s: %w", network, err)
	}
	return nil
}

// handle provider 事件
func (s *Session) handle(ev Event) {
	s.mu.Lock()
	if s.status != StatusConnected {
		s.mu.Unlock()
		return
	}
	var unsubscribe func()
	switch ev.Kind {
	case EventAccountsChanged:
		if len(ev.Accounts) == 0 {
			unsubscribe = s.clearLocked()
			sessionLog.Info("provider 没有可用账户，会话断开")
		} else {
			s.account = ev.Accounts[0]
			s.signer = nil
			if s.provider != nil {
				if signer, ok := s.provider.Signer(ev.Accounts[0]); ok {
					s.signer = signer
				}
			}
			sessionLog.Infof("账户已切换: %s", s.account.Hex())
		}
	case EventChainChanged:
		s.chain = ev.ChainID
		if s.provider != nil {
			s.backend = s.provider.Backend()
		}
		sessionLog.Infof("链已切换: %d (期望 %d)", s.chain, s.network.ChainID)
	case EventDisconnected:
		unsubscribe = s.clearLocked()
	}
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
		ev = Event{Kind: EventDisconnected, At: ev.At}
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	s.emit(ev)
}

func (s *Session) emit(ev Event) {
	s.mu.RLock()
	fns := make([]func(Event), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()
	for _, fn := range fns {
		fn(ev)
	}
}

// OnEvent 订阅会话事件，返回取消函数
func (s *Session) OnEvent(fn func(Event)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// SwitchNetwork 手动请求切换到期望网络
func (s *Session) SwitchNetwork(ctx context.Context) error {
	s.mu.RLock()
	p, status, network := s.provider, s.status, s.network
	s.mu.RUnlock()
	if status != StatusConnected {
		return ErrNotConnected
	}
	if p == nil {
		return fmt.Errorf("watch-only session cannot switch networks: %w", ErrReadOnly)
	}
	if err := switchOrAdd(ctx, p, network); err != nil {
		return err
	}
	chain, err := p.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("read chain id: %w", err)
	}
	s.mu.Lock()
	s.chain = chain
	s.backend = p.Backend()
	s.mu.Unlock()
	if chain != network.ChainID {
		return fmt.Errorf("%w: still on chain %d", ErrWrongNetwork, chain)
	}
	return nil
}

func (s *Session) Account() common.Address {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.account
}

// Signer 只读会话返回 nil
func (s *Session) Signer() client.TxSigner {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.signer
}

func (s *Session) ChainID() types.Chain {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain
}

// Network 期望的网络
func (s *Session) Network() types.Network {
	return s.network
}

func (s *Session) Backend() client.Backend {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.backend
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusConnected
}

func (s *Session) IsCorrectNetwork() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chain == s.network.ChainID
}

// RequireNetwork 已连接且在期望网络上
func (s *Session) RequireNetwork() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusConnected {
		return ErrNotConnected
	}
	if s.chain != s.network.ChainID {
		return fmt.Errorf("%w: connected to chain %d, expected %s", ErrWrongNetwork, s.chain, s.network)
	}
	return nil
}

// RequireSigner 已连接且具备签名能力
func (s *Session) RequireSigner() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusConnected {
		return ErrNotConnected
	}
	if s.signer == nil {
		return ErrReadOnly
	}
	return nil
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		Status:         s.status,
		Account:        s.account,
		ChainID:        s.chain,
		ExpectedChain:  s.network.ChainID,
		Network:        s.network.String(),
		ReadOnly:       s.signer == nil,
		CorrectNetwork: s.status == StatusConnected && s.chain == s.network.ChainID,
	}
}
