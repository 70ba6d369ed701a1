package types

import (
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateAddress(t *testing.T) {
	cases := []struct {
		name string
		in   string
		ok   bool
	}{
		{"fee collector", "0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e", true},
		{"lower case", "0x2791bca1f2de4661ed88a30c99a7a9449aa84174", true},
		{"too short", "0xZZZZ", false},
		{"non hex", "0xZZ2B35c8917eD36c39Ef73D0F5e92B0173560b2e", false},
		{"missing prefix", "592B35c8917eD36c39Ef73D0F5e92B0173560b2e", false},
		{"upper prefix", "0X592B35c8917eD36c39Ef73D0F5e92B0173560b2e", false},
		{"too long", "0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e0", false},
		{"padded", " 0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e", false},
		{"empty", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			addr, err := ValidateAddress(tc.in)
			if tc.ok {
				require.NoError(t, err)
				assert.True(t, strings.EqualFold(tc.in, addr.Hex()))
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidAddress))
			assert.Contains(t, err.Error(), "40 hex digits")
		})
	}
}

func TestShortenAddress(t *testing.T) {
	assert.Equal(t, "0x592B...0b2e", ShortenAddress("0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e"))
	assert.Equal(t, "0x12", ShortenAddress("0x12"))
	assert.Equal(t, "", ShortenAddress(""))
}

func TestNetworkHelpers(t *testing.T) {
	assert.Equal(t, "0x89", ChainPolygon.Hex())
	assert.Equal(t, "Polygon (137)", PolygonMainnet.String())
	assert.Equal(t, "https://polygonscan.com/tx/0xabc", PolygonMainnet.ExplorerLink("tx", "0xabc"))

	params := PolygonMainnet.AddChainParams()
	assert.Equal(t, "0x89", params.ChainID)
	assert.Equal(t, []string{"https://polygon-rpc.com"}, params.RPCURLs)
	assert.Equal(t, "MATIC", params.NativeCurrency.Symbol)
	assert.Equal(t, 18, params.NativeCurrency.Decimals)

	back, err := NetworkFromParams(params)
	require.NoError(t, err)
	assert.Equal(t, PolygonMainnet, back)

	_, err = NetworkFromParams(ChainParams{ChainID: "0xzz", RPCURLs: []string{"http://x"}})
	assert.Error(t, err)
	_, err = NetworkFromParams(ChainParams{ChainID: "0x1"})
	assert.Error(t, err)
}

func TestVaultUnlockable(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	v := Vault{UnlockTime: now.Add(time.Hour)}
	assert.False(t, v.Unlockable(now))
	assert.True(t, v.Unlockable(now.Add(time.Hour)))
	v.Withdrawn = true
	assert.False(t, v.Unlockable(now.Add(2*time.Hour)))

	assert.True(t, UnixTime(nil).IsZero())
	assert.Equal(t, int64(1_700_000_000), UnixTime(big.NewInt(1_700_000_000)).Unix())
}
