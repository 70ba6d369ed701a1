package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cryptolocker/nftwallet/market/types"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)

	assert.Equal(t, types.ChainPolygon, cfg.Network.ChainID)
	assert.Equal(t, "https://polygon-rpc.com", cfg.Network.RPCURL)
	assert.Equal(t, int32(6), cfg.TokenDecimals)
	assert.Equal(t, "PINATA_API_KEY", cfg.Pinning.APIKeyRef)

	contracts, err := cfg.ResolveContracts()
	require.NoError(t, err)
	assert.Equal(t, types.PolygonMainnetContracts, contracts)
	assert.Same(t, cfg, Get())
}

func TestFileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
network:
  chain_id: 80002
contracts:
  nft: "0x1111111111111111111111111111111111111111"
  marketplace: "0x2222222222222222222222222222222222222222"
  payment_token: "0x3333333333333333333333333333333333333333"
  fee_collector: "0x592B35c8917eD36c39Ef73D0F5e92B0173560b2e"
server_addr: "127.0.0.1:9000"
log:
  level: debug
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, types.AmoyTestnet, cfg.Network, "unset network fields come from the known network")
	assert.Equal(t, "127.0.0.1:9000", cfg.ServerAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 100, cfg.Log.MaxSize)

	contracts, err := cfg.ResolveContracts()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x1111111111111111111111111111111111111111"), contracts.NFT)

	nets := cfg.Networks()
	require.Len(t, nets, 2)
	assert.Equal(t, types.ChainAmoy, nets[0].ChainID)
	assert.Equal(t, types.ChainPolygon, nets[1].ChainID)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
network:
  rpc_url: "https://file.example"
server_addr: ":7000"
`)
	t.Setenv("RPC_URL", "https://env.example")
	t.Setenv("SERVER_ADDR", ":7001")
	t.Setenv("RPC_READ_PER_SECOND", "3")

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://env.example", cfg.Network.RPCURL)
	assert.Equal(t, ":7001", cfg.ServerAddr)
	assert.Equal(t, 3, cfg.RPC.ReadPerSecond)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"bad contract", func(c *Config) { c.Contracts.NFT = "0xZZZZ" }, "contracts.nft"},
		{"empty fee collector", func(c *Config) { c.Contracts.FeeCollector = "" }, "contracts.fee_collector"},
		{"no rpc", func(c *Config) { c.Network.RPCURL = " " }, "rpc_url"},
		{"bad watch address", func(c *Config) { c.Wallet.WatchAddress = "0x123" }, "watch_address"},
		{"decimals", func(c *Config) { c.TokenDecimals = 99 }, "token_decimals"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestUnknownChainNeedsContracts(t *testing.T) {
	path := writeConfig(t, `
network:
  chain_id: 31337
  name: Local
  rpc_url: "http://127.0.0.1:8545"
`)
	_, err := LoadFromFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "contracts.nft")
}
