package units

import (
	"errors"
	"math/big"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatUnits(t *testing.T) {
	cases := []struct {
		in   int64
		want string
	}{
		{0, "0"},
		{1, "0.000001"},
		{1_500_000, "1.5"},
		{1_000_000, "1"},
		{123_456_789, "123.456789"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, FormatUnits(big.NewInt(tc.in), 6), "amount %d", tc.in)
	}
	assert.Equal(t, "0", FormatUnits(nil, 6))
	assert.Equal(t, "1.50", FormatFixed(big.NewInt(1_500_000), 6, 2))
	assert.Equal(t, "2%", FormatBasisPoints(big.NewInt(200)))
	assert.Equal(t, "2.5%", FormatBasisPoints(big.NewInt(250)))
}

func TestParseUnits(t *testing.T) {
	v, err := ParseUnits("1.5", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1_500_000), v.Int64())

	v, err = ParseUnits(" 10 ", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(10_000_000), v.Int64())

	v, err = ParseUnits("0.000001", 6)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v.Int64())

	for _, bad := range []string{"", "abc", "-1", "0.0000001", "1.2.3"} {
		_, err := ParseUnits(bad, 6)
		require.Error(t, err, "input %q", bad)
		assert.True(t, errors.Is(err, ErrInvalidAmount))
	}
}

func TestRoundTrip(t *testing.T) {
	fixed := []*big.Int{
		big.NewInt(0),
		big.NewInt(1),
		big.NewInt(999_999),
		big.NewInt(1_000_000),
		new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1)),
	}
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		fixed = append(fixed, new(big.Int).Rand(r, new(big.Int).Lsh(big.NewInt(1), 128)))
	}
	for _, n := range fixed {
		got, err := ParseUnits(FormatUnits(n, 6), 6)
		require.NoError(t, err)
		require.Zero(t, n.Cmp(got), "round trip of %s", n)
	}
}
