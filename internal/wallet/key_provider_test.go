package wallet

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
)

// 公开的测试助记词（hardhat/anvil 默认账户）
const testMnemonic = "test test test test test test test test test test test junk"

func mockDial(dialed *[]string) DialFunc {
	return func(ctx context.Context, rpcURL string) (client.Backend, error) {
		*dialed = append(*dialed, rpcURL)
		chain := types.ChainPolygon
		for _, n := range types.KnownNetworks() {
			if n.RPCURL == rpcURL {
				chain = n.ChainID
			}
		}
		if rpcURL == "https://rpc.example.org" {
			chain = 31337
		}
		return client.NewMockBackend(chain.BigInt()), nil
	}
}

func TestDeriveFromMnemonic(t *testing.T) {
	w, err := DeriveFromMnemonic(testMnemonic, "")
	require.NoError(t, err)
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", w.Address)

	_, err = DeriveFromMnemonic("", DefaultDerivationPath)
	assert.Error(t, err)
	_, err = DeriveFromMnemonic("not a real mnemonic", DefaultDerivationPath)
	assert.Error(t, err)
}

func TestKeyProvider(t *testing.T) {
	ctx := context.Background()
	var dialed []string
	p, err := NewKeyProvider(ctx, KeyProviderOptions{
		Mnemonic: testMnemonic,
		Network:  types.AmoyTestnet,
		Dial:     mockDial(&dialed),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{types.AmoyTestnet.RPCURL}, dialed)

	s, err := Connect(ctx, p, types.PolygonMainnet)
	require.NoError(t, err)
	assert.True(t, s.IsCorrectNetwork())
	assert.Equal(t, types.PolygonMainnet.RPCURL, dialed[len(dialed)-1])
	assert.Equal(t, "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266", s.Account().Hex())
	assert.NoError(t, s.RequireSigner())

	err = p.SwitchChain(ctx, 31337)
	assert.ErrorIs(t, err, ErrUnrecognizedChain)

	custom := types.Network{ChainID: 31337, Name: "Local", RPCURL: "https://rpc.example.org"}
	require.NoError(t, p.AddChain(ctx, custom.AddChainParams()))
	assert.Equal(t, types.Chain(31337), s.ChainID(), "chainChanged event reaches the session")
	assert.ErrorIs(t, s.RequireNetwork(), ErrWrongNetwork)
	assert.Equal(t, "Local", p.Current().Name)

	p.Lock()
	assert.False(t, s.Connected())
}

func TestKeyProviderWatchOnly(t *testing.T) {
	var dialed []string
	p, err := NewKeyProvider(context.Background(), KeyProviderOptions{
		WatchAddress: "0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e",
		Network:      types.PolygonMainnet,
		Dial:         mockDial(&dialed),
	})
	require.NoError(t, err)
	s, err := Connect(context.Background(), p, types.PolygonMainnet)
	require.NoError(t, err)
	assert.ErrorIs(t, s.RequireSigner(), ErrReadOnly)

	_, err = NewKeyProvider(context.Background(), KeyProviderOptions{
		WatchAddress: "0x1234",
		Network:      types.PolygonMainnet,
		Dial:         mockDial(&dialed),
	})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}
