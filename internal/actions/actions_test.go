package actions

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/internal/activity"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/persistence"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

type fixture struct {
	sim     *client.SimChain
	factory *client.Factory
	sagas   *persistence.MemoryService
	history *activity.Store
	now     time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sim, err := client.NewSimChain(types.ChainPolygon, types.PolygonMainnetContracts)
	require.NoError(t, err)
	f, err := client.NewFactory(sim, types.PolygonMainnetContracts, types.ChainPolygon)
	require.NoError(t, err)
	t.Cleanup(f.Close)

	history, err := activity.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = history.Close() })

	fx := &fixture{
		sim:     sim,
		factory: f,
		sagas:   persistence.NewMemoryService(),
		history: history,
		now:     time.Unix(1_700_000_000, 0).UTC(),
	}
	sim.Now = func() time.Time { return fx.now }
	return fx
}

func (fx *fixture) dial(context.Context, string) (client.Backend, error) {
	return fx.sim, nil
}

// connect 用新生成的私钥连接，返回 dispatcher 和账户地址
func (fx *fixture) connect(t *testing.T) (*Dispatcher, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	p, err := wallet.NewKeyProvider(context.Background(), wallet.KeyProviderOptions{
		PrivateKeyHex: hexutil.Encode(crypto.FromECDSA(key)),
		Network:       types.PolygonMainnet,
		Dial:          fx.dial,
	})
	require.NoError(t, err)
	s, err := wallet.Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)

	d := NewDispatcher(s, fx.factory, Options{
		Recorder: fx.history,
		Sagas:    fx.sagas,
		Now:      func() time.Time { return fx.now },
	})
	return d, s.Account()
}

func usdc(s string) *big.Int {
	return units.MustParseUnits(s, 6)
}

func sentKeys(sim *client.SimChain) []string {
	var keys []string
	for _, tx := range sim.SentTxs() {
		keys = append(keys, tx.Key())
	}
	return keys
}

func TestMint(t *testing.T) {
	fx := newFixture(t)
	d, alice := fx.connect(t)
	fx.sim.SetNativeBalance(alice, big.NewInt(1e18))
	ctx := context.Background()

	assert.Equal(t, StatusIdle, d.State(KindMint))
	res, err := d.Mint(ctx, MintRequest{TokenURI: "https://gateway.pinata.cloud/ipfs/QmMeta", Name: "First", Image: "ipfs://img"})
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, StatusSuccess, d.State(KindMint))
	assert.Equal(t, "NFT #1 minted", res.Message)
	require.NotNil(t, res.TokenID)
	assert.Equal(t, int64(1), res.TokenID.Int64())
	assert.Len(t, res.TxHashes, 1)
	assert.Equal(t, alice, fx.sim.Owner(res.TokenID))

	entries, err := fx.history.List(ctx, alice.Hex(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, res.ID, entries[0].ID)
	assert.Equal(t, "success", entries[0].Status)
	assert.Equal(t, "1", entries[0].TokenID)
	assert.Equal(t, res.TxHashes, entries[0].TxHashes)

	_, err = d.Mint(ctx, MintRequest{Name: "no uri"})
	assert.Error(t, err)
}

func TestMintInsufficientFunds(t *testing.T) {
	fx := newFixture(t)
	d, _ := fx.connect(t)

	res, err := d.Mint(context.Background(), MintRequest{TokenURI: "ipfs://m", Name: "x"})
	require.Error(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "Insufficient funds for transaction", res.Message)
	assert.Empty(t, res.TxHashes)
}

func TestListSkipsApprovalWhenAlreadyGranted(t *testing.T) {
	fx := newFixture(t)
	d, seller := fx.connect(t)
	ctx := context.Background()
	first := fx.sim.MintTo(seller, "ipfs://1")
	second := fx.sim.MintTo(seller, "ipfs://2")

	res, err := d.List(ctx, first, usdc("50"))
	require.NoError(t, err)
	assert.Len(t, res.TxHashes, 2)
	assert.Equal(t, "NFT #1 listed for 50 USDC", res.Message)

	res, err = d.List(ctx, second, usdc("12.5"))
	require.NoError(t, err)
	assert.Len(t, res.TxHashes, 1, "operator approval is read from chain and reused")

	assert.Equal(t, []string{"NFT.setApprovalForAll", "Marketplace.listItem", "Marketplace.listItem"}, sentKeys(fx.sim))

	sagas, err := d.Sagas()
	require.NoError(t, err)
	require.Len(t, sagas, 2)
	assert.Equal(t, SagaActed, sagas[0].State)
	assert.False(t, sagas[0].Skipped)
	assert.True(t, sagas[1].Skipped)

	res, err = d.GetListing(ctx, second)
	require.NoError(t, err)
	view := res.Data.(ListingView)
	assert.True(t, view.Active)
	assert.Equal(t, "12.5", view.PriceFormatted)
}

func TestListRequiresOwnership(t *testing.T) {
	fx := newFixture(t)
	d, _ := fx.connect(t)
	_, other := fx.connect(t)
	id := fx.sim.MintTo(other, "ipfs://x")

	_, err := d.List(context.Background(), id, usdc("1"))
	assert.ErrorIs(t, err, ErrNotOwner)
	assert.Empty(t, fx.sim.SentTxs())
}

func listFor(t *testing.T, fx *fixture, price string) (*big.Int, common.Address) {
	t.Helper()
	seller, addr := fx.connect(t)
	id := fx.sim.MintTo(addr, "ipfs://for-sale")
	_, err := seller.List(context.Background(), id, usdc(price))
	require.NoError(t, err)
	return id, addr
}

func TestBuy(t *testing.T) {
	fx := newFixture(t)
	id, seller := listFor(t, fx, "50")
	d, buyer := fx.connect(t)
	fx.sim.Fund(buyer, usdc("100"))
	ctx := context.Background()

	res, err := d.Buy(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Bought NFT #1 for 50 USDC", res.Message)
	assert.Len(t, res.TxHashes, 2)
	assert.Equal(t, buyer, fx.sim.Owner(id))
	assert.Equal(t, usdc("50"), fx.sim.TokenBalance(buyer))

	keys := sentKeys(fx.sim)
	assert.Equal(t, []string{"Token.approve", "Marketplace.buyItem"}, keys[len(keys)-2:])

	// 扣 2% 手续费后计入卖家待提取
	pending, err := fx.factory.Marketplace(nil).PendingWithdrawals(ctx, seller)
	require.NoError(t, err)
	assert.Equal(t, usdc("49"), pending)
}

func TestBuyPreChecks(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()

	t.Run("not listed", func(t *testing.T) {
		d, _ := fx.connect(t)
		_, err := d.Buy(ctx, big.NewInt(99))
		assert.ErrorIs(t, err, ErrNotListed)
	})
	t.Run("own listing", func(t *testing.T) {
		seller, addr := fx.connect(t)
		id := fx.sim.MintTo(addr, "ipfs://mine")
		_, err := seller.List(ctx, id, usdc("5"))
		require.NoError(t, err)
		before := len(fx.sim.SentTxs())

		res, err := seller.Buy(ctx, id)
		assert.ErrorIs(t, err, ErrOwnListing)
		assert.Equal(t, StatusError, res.Status)
		assert.Len(t, fx.sim.SentTxs(), before)
	})
}

func TestBuyNeverActsWhenApproveFails(t *testing.T) {
	tests := []struct {
		name    string
		inject  func(sim *client.SimChain)
		message string
		wantErr error
	}{
		{
			name:    "approve rejected by user",
			inject:  func(sim *client.SimChain) { sim.ErrorOnNext["Token.approve"] = errors.New("user rejected transaction") },
			message: "Transaction rejected by user",
		},
		{
			name:    "approve receipt failed",
			inject:  func(sim *client.SimChain) { sim.RevertOnNext["Token.approve"] = true },
			message: "Transaction reverted",
			wantErr: client.ErrTxReverted,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newFixture(t)
			id, seller := listFor(t, fx, "20")
			d, buyer := fx.connect(t)
			fx.sim.Fund(buyer, usdc("100"))
			tt.inject(fx.sim)

			res, err := d.Buy(context.Background(), id)
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			assert.Equal(t, StatusError, res.Status)
			assert.Equal(t, tt.message, res.Message)
			assert.Zero(t, fx.sim.CallCount("Marketplace.buyItem"))
			assert.Equal(t, seller, fx.sim.Owner(id))

			sagas, err := d.Sagas()
			require.NoError(t, err)
			require.Len(t, sagas, 1)
			assert.Equal(t, SagaFailed, sagas[0].State)
		})
	}
}

func TestBuyRetryOnlyRerunsAct(t *testing.T) {
	fx := newFixture(t)
	id, _ := listFor(t, fx, "20")
	d, buyer := fx.connect(t)
	fx.sim.Fund(buyer, usdc("100"))
	ctx := context.Background()

	fx.sim.RevertOnNext["Marketplace.buyItem"] = true
	_, err := d.Buy(ctx, id)
	require.ErrorIs(t, err, client.ErrTxReverted)
	sagas, _ := d.Sagas()
	require.Len(t, sagas, 1)
	assert.Equal(t, SagaFailed, sagas[0].State)
	assert.NotEmpty(t, sagas[0].ApproveTx)

	res, err := d.Buy(ctx, id)
	require.NoError(t, err)
	assert.Len(t, res.TxHashes, 1)
	assert.Equal(t, buyer, fx.sim.Owner(id))
	assert.Equal(t, 1, fx.sim.CallCount("Token.approve"))
	assert.Equal(t, 2, fx.sim.CallCount("Marketplace.buyItem"))

	sagas, _ = d.Sagas()
	assert.Equal(t, SagaActed, sagas[0].State)
	assert.True(t, sagas[0].Skipped)
}

func TestNoTransactionsWhileWrongNetwork(t *testing.T) {
	fx := newFixture(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)

	other := types.Network{ChainID: 1, Name: "Ethereum", RPCURL: "https://other.example"}
	otherChain := client.NewMockBackend(big.NewInt(1))
	p, err := wallet.NewKeyProvider(context.Background(), wallet.KeyProviderOptions{
		PrivateKeyHex: hexutil.Encode(crypto.FromECDSA(key)),
		Network:       other,
		Dial: func(_ context.Context, url string) (client.Backend, error) {
			if url == other.RPCURL {
				return otherChain, nil
			}
			return nil, errors.New("rpc unreachable")
		},
	})
	require.NoError(t, err)

	s, err := wallet.Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)
	require.False(t, s.IsCorrectNetwork())

	d := NewDispatcher(s, fx.factory, Options{})
	ctx := context.Background()
	runs := map[string]func() (*Result, error){
		"buy":      func() (*Result, error) { return d.Buy(ctx, big.NewInt(1)) },
		"list":     func() (*Result, error) { return d.List(ctx, big.NewInt(1), usdc("1")) },
		"mint":     func() (*Result, error) { return d.Mint(ctx, MintRequest{TokenURI: "ipfs://m", Name: "m"}) },
		"withdraw": func() (*Result, error) { return d.Withdraw(ctx) },
		"listing":  func() (*Result, error) { return d.GetListing(ctx, big.NewInt(1)) },
	}
	for name, run := range runs {
		res, err := run()
		assert.ErrorIs(t, err, wallet.ErrWrongNetwork, name)
		assert.Equal(t, StatusError, res.Status, name)
	}
	assert.Zero(t, otherChain.CallCount("CallContract"))
	assert.Zero(t, otherChain.CallCount("SendTransaction"))
	assert.Zero(t, fx.sim.CallCount("CallContract"))
}

// switchingBackend 第一笔交易发出后让钱包切到别的链
type switchingBackend struct {
	client.Backend
	once        sync.Once
	onFirstSend func()
}

func (b *switchingBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	if err := b.Backend.SendTransaction(ctx, tx); err != nil {
		return err
	}
	b.once.Do(b.onFirstSend)
	return nil
}

func TestBuyStopsWhenNetworkChangesBetweenSteps(t *testing.T) {
	fx := newFixture(t)
	id, seller := listFor(t, fx, "20")

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	other := types.Network{ChainID: 1, Name: "Ethereum", RPCURL: "https://other.example"}
	otherChain := client.NewMockBackend(big.NewInt(1))

	var p *wallet.KeyProvider
	polygon := &switchingBackend{Backend: fx.sim}
	polygon.onFirstSend = func() {
		require.NoError(t, p.SwitchChain(context.Background(), other.ChainID))
	}
	p, err = wallet.NewKeyProvider(context.Background(), wallet.KeyProviderOptions{
		PrivateKeyHex: hexutil.Encode(crypto.FromECDSA(key)),
		Network:       types.PolygonMainnet,
		Networks:      []types.Network{other},
		Dial: func(_ context.Context, url string) (client.Backend, error) {
			if url == other.RPCURL {
				return otherChain, nil
			}
			return polygon, nil
		},
	})
	require.NoError(t, err)
	s, err := wallet.Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)
	fx.sim.Fund(s.Account(), usdc("100"))

	d := NewDispatcher(s, fx.factory, Options{Sagas: fx.sagas})
	res, err := d.Buy(context.Background(), id)
	require.ErrorIs(t, err, wallet.ErrWrongNetwork)
	assert.Equal(t, StatusError, res.Status)
	assert.Len(t, res.TxHashes, 1)
	assert.False(t, s.IsCorrectNetwork())

	assert.Equal(t, 1, fx.sim.CallCount("Token.approve"))
	assert.Zero(t, fx.sim.CallCount("Marketplace.buyItem"))
	assert.Zero(t, otherChain.CallCount("SendTransaction"))
	assert.Equal(t, seller, fx.sim.Owner(id))

	sagas, err := d.Sagas()
	require.NoError(t, err)
	require.Len(t, sagas, 1)
	assert.Equal(t, SagaFailed, sagas[0].State)
}

func TestReadOnlyAndDisconnected(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	s, err := wallet.Watch(common.HexToAddress("0x592b35c8917ed36c39ef73d0f5e92b0173560b2e").Hex(), types.PolygonMainnet, fx.sim)
	require.NoError(t, err)
	d := NewDispatcher(s, fx.factory, Options{})

	_, err = d.Buy(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, wallet.ErrReadOnly)
	assert.Zero(t, fx.sim.CallCount("CallContract"))

	res, err := d.GetListing(ctx, big.NewInt(1))
	require.NoError(t, err, "reads work without a signer")
	assert.Equal(t, "NFT #1 is not listed", res.Message)

	wallet.Disconnect(s)
	_, err = d.GetListing(ctx, big.NewInt(1))
	assert.ErrorIs(t, err, wallet.ErrNotConnected)
}

func TestValidationHappensBeforeAnyCall(t *testing.T) {
	fx := newFixture(t)
	d, _ := fx.connect(t)
	ctx := context.Background()

	_, err := d.Transfer(ctx, "0xZZZZ", usdc("1"))
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = d.Swap(ctx, SwapRequest{TokenIn: "0x123", TokenOut: types.PolygonMainnetContracts.PaymentToken.Hex(), AmountIn: usdc("1")})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = d.Lock(ctx, "not-an-address", usdc("1"), time.Hour)
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
	_, err = d.List(ctx, big.NewInt(1), big.NewInt(0))
	assert.ErrorIs(t, err, units.ErrInvalidAmount)
	_, err = d.Stake(ctx, nil)
	assert.ErrorIs(t, err, units.ErrInvalidAmount)

	assert.Zero(t, fx.sim.CallCount("CallContract"))
	assert.Zero(t, fx.sim.CallCount("PendingNonceAt"))
}

func TestTransferAndWithdraw(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	id, _ := listFor(t, fx, "10")
	buyerD, buyer := fx.connect(t)
	fx.sim.Fund(buyer, usdc("30"))

	_, err := buyerD.Withdraw(ctx)
	assert.ErrorIs(t, err, ErrNothingToWithdraw)

	_, err = buyerD.Buy(ctx, id)
	require.NoError(t, err)

	to := common.HexToAddress("0x592b35c8917ed36c39ef73d0f5e92b0173560b2e")
	res, err := buyerD.Transfer(ctx, to.Hex(), usdc("5"))
	require.NoError(t, err)
	assert.Equal(t, "Sent 5 USDC to "+types.ShortenAddress(to.Hex()), res.Message)
	assert.Equal(t, usdc("15"), fx.sim.TokenBalance(buyer))
}

func TestSellerWithdraws(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	sellerD, seller := fx.connect(t)
	id := fx.sim.MintTo(seller, "ipfs://w")
	_, err := sellerD.List(ctx, id, usdc("10"))
	require.NoError(t, err)

	buyerD, buyer := fx.connect(t)
	fx.sim.Fund(buyer, usdc("10"))
	_, err = buyerD.Buy(ctx, id)
	require.NoError(t, err)

	res, err := sellerD.Withdraw(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Withdrew 9.8 USDC", res.Message)
	assert.Equal(t, usdc("9.8"), fx.sim.TokenBalance(seller))
}

func TestCancelAndUpdatePrice(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	d, seller := fx.connect(t)
	id := fx.sim.MintTo(seller, "ipfs://c")
	_, err := d.List(ctx, id, usdc("3"))
	require.NoError(t, err)

	_, err = d.UpdatePrice(ctx, id, usdc("4"))
	require.NoError(t, err)
	l, err := fx.factory.Marketplace(nil).GetListing(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, usdc("4"), l.Price)

	res, err := d.Cancel(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	l, err = fx.factory.Marketplace(nil).GetListing(ctx, id)
	require.NoError(t, err)
	assert.False(t, l.Active)

	// 已下架后再次取消：链上 revert，原因带回给用户
	res, err = d.Cancel(ctx, id)
	require.Error(t, err)
	assert.Equal(t, StatusError, res.Status)
}

func TestStakeUnstakeClaim(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	d, alice := fx.connect(t)
	fx.sim.Fund(alice, usdc("100"))

	res, err := d.Stake(ctx, usdc("40"))
	require.NoError(t, err)
	assert.Len(t, res.TxHashes, 2)
	assert.Equal(t, usdc("60"), fx.sim.TokenBalance(alice))

	fx.now = fx.now.Add(24 * time.Hour)
	res, err = d.ClaimRewards(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Claimed 0.4 USDC rewards", res.Message)

	_, err = d.Unstake(ctx, usdc("40"))
	require.NoError(t, err)
	assert.Equal(t, usdc("100.4"), fx.sim.TokenBalance(alice))
}

func TestSwap(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	weth := common.HexToAddress("0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619")
	require.NoError(t, fx.sim.AddToken(weth, 18))
	d, alice := fx.connect(t)
	fx.sim.Fund(alice, usdc("100"))

	res, err := d.Swap(ctx, SwapRequest{
		TokenIn:     types.PolygonMainnetContracts.PaymentToken.Hex(),
		TokenOut:    weth.Hex(),
		AmountIn:    usdc("10"),
		SlippageBps: 50,
	})
	require.NoError(t, err)
	data := res.Data.(map[string]string)
	assert.Equal(t, "9970000", data["quote"])
	assert.Equal(t, "9920150", data["minOut"])

	bal, err := fx.factory.TokenAt(weth, nil).BalanceOf(ctx, alice)
	require.NoError(t, err)
	assert.Equal(t, "9970000", bal.String())

	fx.sim.RevertOnNext["NFT.swapTokens"] = true
	_, err = d.Swap(ctx, SwapRequest{
		TokenIn:  types.PolygonMainnetContracts.PaymentToken.Hex(),
		TokenOut: weth.Hex(),
		AmountIn: usdc("1"),
		MinOut:   big.NewInt(1),
	})
	assert.ErrorIs(t, err, client.ErrTxReverted)
}

func TestLockUnlock(t *testing.T) {
	fx := newFixture(t)
	ctx := context.Background()
	d, alice := fx.connect(t)
	fx.sim.Fund(alice, usdc("10"))

	_, err := d.Lock(ctx, "", usdc("10"), time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "0", fx.sim.TokenBalance(alice).String())

	sent := len(fx.sim.SentTxs())
	_, err = d.Unlock(ctx, big.NewInt(0))
	assert.ErrorIs(t, err, ErrStillLocked)
	assert.Len(t, fx.sim.SentTxs(), sent, "nothing is submitted before the unlock time")

	fx.now = fx.now.Add(time.Hour)
	res, err := d.Unlock(ctx, big.NewInt(0))
	require.NoError(t, err)
	assert.Equal(t, "Unlocked 10", res.Message)
	assert.Equal(t, usdc("10"), fx.sim.TokenBalance(alice))

	_, err = d.Unlock(ctx, big.NewInt(0))
	assert.ErrorIs(t, err, ErrAlreadyWithdrawn)
}

type countingObserver struct {
	mu       sync.Mutex
	finished map[string]int
	txs      int
}

func (o *countingObserver) ActionFinished(action, status string, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished[action+":"+status]++
}

func (o *countingObserver) TxSent(string, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.txs++
}

func TestObserver(t *testing.T) {
	fx := newFixture(t)
	d, alice := fx.connect(t)
	obs := &countingObserver{finished: map[string]int{}}
	d.opts.Observer = obs
	fx.sim.Fund(alice, usdc("1"))

	_, err := d.Transfer(context.Background(), common.HexToAddress("0x592b35c8917ed36c39ef73d0f5e92b0173560b2e").Hex(), usdc("1"))
	require.NoError(t, err)
	_, err = d.Withdraw(context.Background())
	require.Error(t, err)

	assert.Equal(t, 1, obs.finished["transfer:success"])
	assert.Equal(t, 1, obs.finished["withdraw:error"])
	assert.Equal(t, 1, obs.txs)
}
