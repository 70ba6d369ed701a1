package secretstore

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	key, err := ParseKey(strings.Repeat("ab", 32))
	require.NoError(t, err)
	s, err := Open(OpenOptions{Path: t.TempDir(), EncryptionKey: key})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTemp(t)

	_, ok, err := s.GetString("env/PINATA_API_KEY")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetString("env/PINATA_API_KEY", "k1"))
	require.NoError(t, s.SetString("env/EMPTY", ""))
	require.NoError(t, s.SetString("other", "x"))

	v, ok, err := s.GetString("env/PINATA_API_KEY")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "k1", v)

	_, ok, err = s.GetString("env/EMPTY")
	require.NoError(t, err)
	assert.True(t, ok, "empty values are still found")

	keys, err := s.Keys(EnvPrefix)
	require.NoError(t, err)
	assert.Equal(t, []string{"env/EMPTY", "env/PINATA_API_KEY"}, keys)

	require.NoError(t, s.Delete("other"))
	_, ok, _ = s.GetString("other")
	assert.False(t, ok)

	_, _, err = s.GetString("  ")
	assert.Error(t, err)
}

func TestLookup(t *testing.T) {
	s := openTemp(t)
	require.NoError(t, s.SetString("env/NFTW_TEST_SECRET", "from-store"))

	v, ok := s.Lookup("NFTW_TEST_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "from-store", v)

	t.Setenv("NFTW_TEST_SECRET", "from-env")
	v, ok = s.Lookup("NFTW_TEST_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)

	var nilStore *Store
	v, ok = nilStore.Lookup("NFTW_TEST_SECRET")
	assert.True(t, ok)
	assert.Equal(t, "from-env", v)

	_, ok = nilStore.Lookup("NFTW_TEST_MISSING")
	assert.False(t, ok)
}

func TestParseKey(t *testing.T) {
	raw := make([]byte, 32)
	for i := range raw {
		raw[i] = byte(i)
	}
	tests := []struct {
		name    string
		in      string
		want    []byte
		wantErr bool
	}{
		{name: "empty", in: "", want: nil},
		{name: "hex", in: strings.Repeat("0f", 32), want: []byte(strings.Repeat("\x0f", 32))},
		{name: "hex with 0x", in: "0x" + strings.Repeat("0f", 32), want: []byte(strings.Repeat("\x0f", 32))},
		{name: "base64", in: base64.StdEncoding.EncodeToString(raw), want: raw},
		{name: "short hex", in: "abcd", wantErr: true},
		{name: "garbage", in: "not a key!", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseKey(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
