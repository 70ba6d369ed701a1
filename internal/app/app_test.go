package app

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/pkg/config"
	"github.com/cryptolocker/nftwallet/pkg/secretstore"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.ActivityDB = filepath.Join(dir, "activity.db")
	cfg.PersistenceDir = filepath.Join(dir, "sagas")
	cfg.Secrets.Path = filepath.Join(dir, "secrets.badger")
	cfg.Secrets.EncryptionKeyEnv = "NFTWALLET_TEST_SECRET_KEY"
	for _, ref := range []string{cfg.Wallet.PrivateKeyRef, cfg.Wallet.MnemonicRef, cfg.Pinning.JWTRef, cfg.Pinning.APIKeyRef, cfg.Pinning.SecretKeyRef} {
		t.Setenv(ref, "")
	}
	t.Setenv(cfg.Secrets.EncryptionKeyEnv, "")
	return cfg
}

func TestSimulateGeneratesFundedAccount(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg, Options{Simulate: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Sim)
	require.NotNil(t, a.Provider)
	assert.Nil(t, a.Pinning)
	assert.NotNil(t, a.Activity)

	accounts, err := a.Provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	require.Len(t, accounts, 1)
	assert.Equal(t, "1000000000", a.Sim.TokenBalance(accounts[0]).String())
}

func TestCredentialsFromEnvironment(t *testing.T) {
	cfg := testConfig(t)
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	t.Setenv(cfg.Wallet.PrivateKeyRef, hexutil.Encode(crypto.FromECDSA(key)))
	t.Setenv(cfg.Pinning.JWTRef, "jwt-from-env")

	a, err := New(context.Background(), cfg, Options{Simulate: true, SkipActivity: true})
	require.NoError(t, err)
	defer a.Close()

	accounts, err := a.Provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), accounts[0])
	assert.NotNil(t, a.Pinning)
	assert.Nil(t, a.Activity)
}

func TestCredentialsFromSecretStore(t *testing.T) {
	cfg := testConfig(t)
	encKey := make([]byte, 32)
	for i := range encKey {
		encKey[i] = byte(i + 1)
	}
	walletKey, err := crypto.GenerateKey()
	require.NoError(t, err)

	ss, err := secretstore.Open(secretstore.OpenOptions{Path: cfg.Secrets.Path, EncryptionKey: encKey})
	require.NoError(t, err)
	require.NoError(t, ss.SetString(secretstore.EnvPrefix+cfg.Wallet.PrivateKeyRef, hex.EncodeToString(crypto.FromECDSA(walletKey))))
	require.NoError(t, ss.Close())

	t.Setenv(cfg.Secrets.EncryptionKeyEnv, hex.EncodeToString(encKey))
	a, err := New(context.Background(), cfg, Options{Simulate: true, SkipActivity: true})
	require.NoError(t, err)
	defer a.Close()

	require.NotNil(t, a.Secrets)
	accounts, err := a.Provider.RequestAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(walletKey.PublicKey), accounts[0])
}

func TestBadEncryptionKey(t *testing.T) {
	cfg := testConfig(t)
	t.Setenv(cfg.Secrets.EncryptionKeyEnv, "not-a-key")
	_, err := New(context.Background(), cfg, Options{Simulate: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), cfg.Secrets.EncryptionKeyEnv)
}
