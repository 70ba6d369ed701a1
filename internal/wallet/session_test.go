package wallet

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
)

// fakeProvider 浏览器钱包行为的替身
type fakeProvider struct {
	mu sync.Mutex

	accounts  []common.Address
	chain     types.Chain
	known     map[types.Chain]bool
	signer    client.TxSigner
	switchErr error
	backend   client.Backend

	calls   map[string]int
	added   []types.ChainParams
	handler func(Event)
}

func newFakeProvider(chain types.Chain) *fakeProvider {
	key, _ := crypto.GenerateKey()
	signer := client.NewKeySigner(key)
	return &fakeProvider{
		accounts: []common.Address{signer.Address()},
		chain:    chain,
		known:    map[types.Chain]bool{types.ChainPolygon: true},
		signer:   signer,
		backend:  client.NewMockBackend(big.NewInt(int64(chain))),
		calls:    make(map[string]int),
	}
}

func (f *fakeProvider) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["RequestAccounts"]++
	return f.accounts, nil
}

func (f *fakeProvider) ChainID(ctx context.Context) (types.Chain, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["ChainID"]++
	return f.chain, nil
}

func (f *fakeProvider) SwitchChain(ctx context.Context, chain types.Chain) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["SwitchChain"]++
	if f.switchErr != nil {
		return f.switchErr
	}
	if !f.known[chain] {
		return &ProviderError{Code: CodeUnrecognizedChain, Message: "Unrecognized chain ID"}
	}
	f.chain = chain
	return nil
}

func (f *fakeProvider) AddChain(ctx context.Context, params types.ChainParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls["AddChain"]++
	f.added = append(f.added, params)
	n, err := types.NetworkFromParams(params)
	if err != nil {
		return err
	}
	f.known[n.ChainID] = true
	f.chain = n.ChainID
	return nil
}

func (f *fakeProvider) Signer(account common.Address) (client.TxSigner, bool) {
	if f.signer == nil || f.signer.Address() != account {
		return nil, false
	}
	return f.signer, true
}

func (f *fakeProvider) Backend() client.Backend {
	return f.backend
}

func (f *fakeProvider) Subscribe(fn func(Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handler = fn
	return func() {
		f.mu.Lock()
		f.handler = nil
		f.mu.Unlock()
	}
}

func (f *fakeProvider) fire(ev Event) {
	f.mu.Lock()
	h := f.handler
	f.mu.Unlock()
	if h != nil {
		h(ev)
	}
}

func TestConnect(t *testing.T) {
	ctx := context.Background()

	t.Run("already on expected chain", func(t *testing.T) {
		p := newFakeProvider(types.ChainPolygon)
		s, err := Connect(ctx, p, types.PolygonMainnet)
		require.NoError(t, err)
		assert.True(t, s.Connected())
		assert.True(t, s.IsCorrectNetwork())
		assert.NoError(t, s.RequireNetwork())
		assert.NoError(t, s.RequireSigner())
		assert.Equal(t, p.accounts[0], s.Account())
		assert.Zero(t, p.count("SwitchChain"))
	})

	t.Run("mismatch requests switch", func(t *testing.T) {
		p := newFakeProvider(1)
		s, err := Connect(ctx, p, types.PolygonMainnet)
		require.NoError(t, err)
		assert.Equal(t, 1, p.count("SwitchChain"))
		assert.Zero(t, p.count("AddChain"))
		assert.Equal(t, types.ChainPolygon, s.ChainID())
		assert.NoError(t, s.RequireNetwork())
	})

	t.Run("unrecognized chain falls back to add", func(t *testing.T) {
		p := newFakeProvider(1)
		p.known = map[types.Chain]bool{}
		s, err := Connect(ctx, p, types.PolygonMainnet)
		require.NoError(t, err)
		assert.Equal(t, 1, p.count("AddChain"))
		require.Len(t, p.added, 1)
		params := p.added[0]
		assert.Equal(t, "0x89", params.ChainID)
		assert.Equal(t, "Polygon", params.ChainName)
		assert.Equal(t, []string{"https://polygon-rpc.com"}, params.RPCURLs)
		assert.Equal(t, []string{"https://polygonscan.com"}, params.BlockExplorerURLs)
		assert.Equal(t, types.NativeCurrency{Name: "MATIC", Symbol: "MATIC", Decimals: 18}, params.NativeCurrency)
		assert.True(t, s.IsCorrectNetwork())
	})

	t.Run("failed switch leaves session mismatched", func(t *testing.T) {
		p := newFakeProvider(1)
		p.switchErr = &ProviderError{Code: CodeUserRejected, Message: "User rejected the request."}
		s, err := Connect(ctx, p, types.PolygonMainnet)
		require.NoError(t, err)
		assert.True(t, s.Connected())
		assert.False(t, s.IsCorrectNetwork())
		assert.ErrorIs(t, s.RequireNetwork(), ErrWrongNetwork)
		assert.False(t, s.State().CorrectNetwork)
	})

	t.Run("no accounts", func(t *testing.T) {
		p := newFakeProvider(types.ChainPolygon)
		p.accounts = nil
		_, err := Connect(ctx, p, types.PolygonMainnet)
		assert.ErrorIs(t, err, ErrNoAccounts)
		assert.Zero(t, p.count("ChainID"))
	})

	t.Run("provider without signing is read-only", func(t *testing.T) {
		p := newFakeProvider(types.ChainPolygon)
		p.signer = nil
		s, err := Connect(ctx, p, types.PolygonMainnet)
		require.NoError(t, err)
		assert.ErrorIs(t, s.RequireSigner(), ErrReadOnly)
		assert.True(t, s.State().ReadOnly)
	})
}

func TestSwitchNetworkLater(t *testing.T) {
	p := newFakeProvider(1)
	p.switchErr = errors.New("busy")
	s, err := Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)
	require.False(t, s.IsCorrectNetwork())

	p.mu.Lock()
	p.switchErr = nil
	p.mu.Unlock()
	require.NoError(t, s.SwitchNetwork(context.Background()))
	assert.True(t, s.IsCorrectNetwork())
}

func TestDisconnect(t *testing.T) {
	p := newFakeProvider(types.ChainPolygon)
	s, err := Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)

	var got []EventKind
	s.OnEvent(func(ev Event) { got = append(got, ev.Kind) })

	Disconnect(s)
	assert.False(t, s.Connected())
	assert.Equal(t, common.Address{}, s.Account())
	assert.Nil(t, s.Signer())
	assert.ErrorIs(t, s.RequireSigner(), ErrNotConnected)
	assert.ErrorIs(t, s.RequireNetwork(), ErrNotConnected)
	assert.Equal(t, []EventKind{EventDisconnected}, got)

	// 再次断开是 no-op
	Disconnect(s)
	assert.Len(t, got, 1)
}

func TestProviderEvents(t *testing.T) {
	p := newFakeProvider(types.ChainPolygon)
	s, err := Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)

	var mu sync.Mutex
	var events []Event
	s.OnEvent(func(ev Event) {
		mu.Lock()
		events = append(events, ev)
		mu.Unlock()
	})

	other := common.HexToAddress("0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e")
	p.fire(Event{Kind: EventAccountsChanged, Accounts: []common.Address{other}})
	assert.Equal(t, other, s.Account())
	assert.Nil(t, s.Signer(), "provider has no key for the new account")
	assert.ErrorIs(t, s.RequireSigner(), ErrReadOnly)

	p.fire(Event{Kind: EventChainChanged, ChainID: 1})
	assert.ErrorIs(t, s.RequireNetwork(), ErrWrongNetwork)
	p.fire(Event{Kind: EventChainChanged, ChainID: types.ChainPolygon})
	assert.NoError(t, s.RequireNetwork())

	p.fire(Event{Kind: EventAccountsChanged})
	assert.False(t, s.Connected())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, events, 4)
	assert.Equal(t, EventDisconnected, events[3].Kind)
	assert.False(t, events[3].At.IsZero())
}

func TestWatch(t *testing.T) {
	backend := client.NewMockBackend(types.ChainPolygon.BigInt())

	_, err := Watch("0xZZZZ", types.PolygonMainnet, backend)
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	assert.Empty(t, backend.Calls)

	s, err := Watch("0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e", types.PolygonMainnet, backend)
	require.NoError(t, err)
	assert.Empty(t, backend.Calls)
	assert.True(t, s.Connected())
	assert.NoError(t, s.RequireNetwork())
	assert.ErrorIs(t, s.RequireSigner(), ErrReadOnly)
	assert.ErrorIs(t, s.SwitchNetwork(context.Background()), ErrReadOnly)
}

func TestProviderErrorIs(t *testing.T) {
	assert.ErrorIs(t, &ProviderError{Code: 4902}, ErrUnrecognizedChain)
	assert.ErrorIs(t, &ProviderError{Code: 4001}, ErrUserRejected)
	assert.NotErrorIs(t, &ProviderError{Code: 4001}, ErrUnrecognizedChain)
	assert.Equal(t, "Transaction rejected by user", client.HumanizeError(&ProviderError{Code: 4001, Message: "denied"}))
}
