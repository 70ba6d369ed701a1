package dashboard

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func newService(t *testing.T) (*Service, *client.SimChain) {
	t.Helper()
	sim, err := client.NewSimChain(types.ChainPolygon, types.PolygonMainnetContracts)
	require.NoError(t, err)
	f, err := client.NewFactory(sim, types.PolygonMainnetContracts, types.ChainPolygon)
	require.NoError(t, err)
	t.Cleanup(f.Close)
	svc := NewService(f, types.PolygonMainnet)
	svc.now = func() time.Time { return time.Unix(1_700_000_000, 0) }
	return svc, sim
}

func TestFetch(t *testing.T) {
	svc, sim := newService(t)
	sim.MintTo(alice, "ipfs://a")
	sim.MintTo(alice, "ipfs://b")
	sim.MintTo(bob, "ipfs://c")
	sim.Fund(alice, units.MustParseUnits("123.456", 6))

	snap, err := svc.Fetch(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, int64(2), snap.NFTBalance.Int64())
	assert.Equal(t, "123.46", snap.TokenBalanceFormatted)
	assert.Equal(t, "0.00", snap.PendingEarningsFormatted)
	assert.Equal(t, "2%", snap.PlatformFeeFormatted)
	assert.Equal(t, "Polygon", snap.Network)
	assert.Equal(t, types.ChainPolygon, snap.ChainID)
	assert.Equal(t, int64(1_700_000_000), snap.FetchedAt.Unix())
}

func TestFetchFailsWhole(t *testing.T) {
	svc, sim := newService(t)
	sim.ErrorOnNext["Marketplace.platformFee"] = errors.New("rpc timeout")

	snap, err := svc.Fetch(context.Background(), alice)
	require.Error(t, err)
	assert.Nil(t, snap, "no partial snapshot")
	assert.Contains(t, err.Error(), "platformFee")

	_, err = svc.Fetch(context.Background(), common.Address{})
	assert.ErrorIs(t, err, types.ErrInvalidAddress)
}

func newSeller(t *testing.T) *client.KeySigner {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return client.NewKeySigner(key)
}

// list 授权市场合约后挂单
func list(t *testing.T, svc *Service, sim *client.SimChain, seller *client.KeySigner, price int64) *big.Int {
	t.Helper()
	ctx := context.Background()
	id := sim.MintTo(seller.Address(), "ipfs://x")
	tx, err := svc.factory.NFT(seller).SetApprovalForAll(ctx, types.PolygonMainnetContracts.Marketplace, true)
	require.NoError(t, err)
	_, err = client.WaitMined(ctx, sim, tx)
	require.NoError(t, err)
	tx, err = svc.factory.Marketplace(seller).ListItem(ctx, id, big.NewInt(price))
	require.NoError(t, err)
	_, err = client.WaitMined(ctx, sim, tx)
	require.NoError(t, err)
	return id
}

func TestListings(t *testing.T) {
	svc, sim := newService(t)
	ctx := context.Background()
	s1, s2 := newSeller(t), newSeller(t)

	first := list(t, svc, sim, s1, 100)
	list(t, svc, sim, s2, 200)
	third := list(t, svc, sim, s1, 300)

	all, err := svc.Listings(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	mine, err := svc.MyListings(ctx, s1.Address())
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, first, mine[0].TokenID)
	assert.Equal(t, third, mine[1].TokenID)

	none, err := svc.MyListings(ctx, alice)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestPosition(t *testing.T) {
	svc, _ := newService(t)
	pos, err := svc.Position(context.Background(), alice)
	require.NoError(t, err)
	assert.Equal(t, "0", pos.Stake.Amount.String())
	assert.Empty(t, pos.Vaults)
}

func TestPositionRejectsVaultCountOutOfRange(t *testing.T) {
	huge := new(big.Int).Lsh(big.NewInt(1), 63)
	for _, count := range []*big.Int{huge, big.NewInt(MaxVaults + 1)} {
		svc, sim := newService(t)
		sim.OnCall(types.PolygonMainnetContracts.NFT, "getVaultCount", func(common.Address, []interface{}) ([]interface{}, error) {
			return []interface{}{count}, nil
		})
		before := sim.CallCount("NFT.getVault")

		pos, err := svc.Position(context.Background(), alice)
		require.ErrorIs(t, err, ErrTooManyVaults, count.String())
		assert.Nil(t, pos)
		assert.Equal(t, before, sim.CallCount("NFT.getVault"))
	}
}
