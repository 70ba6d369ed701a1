// Package app wires configuration, secrets and the chain client into the pieces
// the binaries share.
package app

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"

	"github.com/cryptolocker/nftwallet/internal/activity"
	"github.com/cryptolocker/nftwallet/internal/metrics"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/config"
	"github.com/cryptolocker/nftwallet/pkg/persistence"
	"github.com/cryptolocker/nftwallet/pkg/pinning"
	"github.com/cryptolocker/nftwallet/pkg/ratelimit"
	"github.com/cryptolocker/nftwallet/pkg/secretstore"
)

var appLog = logrus.WithField("component", "app")

// Options 启动选项
type Options struct {
	// Simulate 使用进程内模拟链，不连接 RPC
	Simulate bool
	// SkipActivity 不打开本地历史库（一次性命令行使用）
	SkipActivity bool
}

// App 进程级依赖；Close 按打开的逆序释放
type App struct {
	Config   *config.Config
	Secrets  *secretstore.Store
	Limits   *ratelimit.RateLimitManager
	Metrics  *metrics.Metrics
	Factory  *client.Factory
	Provider *wallet.KeyProvider
	Pinning  *pinning.Client
	Activity *activity.Store
	Sagas    persistence.Service
	// Sim 仅在模拟模式下非空
	Sim *client.SimChain

	closers []func()
}

// New 按配置组装；缺少钱包密钥时 Provider 为空（只能 watch），缺少 pinning 凭据时 Pinning 为空
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{Config: cfg, Metrics: metrics.New()}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	contracts, err := cfg.ResolveContracts()
	if err != nil {
		return nil, err
	}

	a.Secrets, err = openSecrets(cfg.Secrets)
	if err != nil {
		return nil, err
	}
	if a.Secrets != nil {
		a.onClose(func() { _ = a.Secrets.Close() })
	}

	a.Limits = rpcLimits(cfg.RPC)

	dial, err := a.dialer(cfg, contracts, opts.Simulate)
	if err != nil {
		return nil, err
	}
	backend, err := dial(ctx, cfg.Network.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.Network, err)
	}
	a.Factory, err = client.NewFactory(backend, contracts, cfg.Network.ChainID)
	if err != nil {
		return nil, err
	}
	a.onClose(a.Factory.Close)

	a.Provider, err = a.keyProvider(ctx, cfg, dial)
	if err != nil {
		return nil, err
	}

	a.Pinning, err = a.pinningClient(cfg.Pinning)
	if err != nil {
		return nil, err
	}

	if !opts.SkipActivity {
		if err := ensureDir(cfg.ActivityDB); err != nil {
			return nil, err
		}
		a.Activity, err = activity.Open(cfg.ActivityDB)
		if err != nil {
			return nil, err
		}
		a.onClose(func() { _ = a.Activity.Close() })
	}

	if cfg.PersistenceDir == "" {
		a.Sagas = persistence.NewMemoryService()
	} else {
		a.Sagas = persistence.NewJSONFileService(cfg.PersistenceDir)
	}

	ok = true
	return a, nil
}

func (a *App) onClose(fn func()) {
	a.closers = append(a.closers, fn)
}

func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// WalletProvider 接口形式的 Provider；没有密钥时返回 nil 接口
func (a *App) WalletProvider() wallet.Provider {
	if a.Provider == nil {
		return nil
	}
	return a.Provider
}

// openSecrets 没有加密密钥或库不存在时只使用环境变量
func openSecrets(cfg config.SecretsConfig) (*secretstore.Store, error) {
	key, err := secretstore.ParseKey(os.Getenv(cfg.EncryptionKeyEnv))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.EncryptionKeyEnv, err)
	}
	if key == nil || strings.TrimSpace(cfg.Path) == "" {
		appLog.Debugf("[app] 未配置机密库，仅从环境变量读取凭据")
		return nil, nil
	}
	if _, err := os.Stat(cfg.Path); errors.Is(err, os.ErrNotExist) {
		appLog.Warnf("[app] 机密库 %s 不存在，仅从环境变量读取凭据", cfg.Path)
		return nil, nil
	}
	return secretstore.Open(secretstore.OpenOptions{Path: cfg.Path, EncryptionKey: key, ReadOnly: true})
}

func rpcLimits(cfg config.RPCConfig) *ratelimit.RateLimitManager {
	limits := ratelimit.NewRateLimitManager()
	if cfg.ReadPerSecond > 0 {
		limits.SetLimiter(ratelimit.EndpointRPCRead, ratelimit.NewTokenBucket(max(cfg.ReadBurst, cfg.ReadPerSecond), cfg.ReadPerSecond, time.Second))
	}
	if cfg.SendPerSecond > 0 {
		limits.SetLimiter(ratelimit.EndpointRPCSend, ratelimit.NewTokenBucket(max(cfg.SendBurst, cfg.SendPerSecond), cfg.SendPerSecond, time.Second))
	}
	return limits
}

// dialer 真实模式：ethclient + 限流 + RPC 指标；模拟模式：所有网络共用一条模拟链
func (a *App) dialer(cfg *config.Config, contracts types.Contracts, simulate bool) (wallet.DialFunc, error) {
	if simulate {
		sim, err := client.NewSimChain(cfg.Network.ChainID, contracts)
		if err != nil {
			return nil, err
		}
		a.Sim = sim
		appLog.Warnf("[app] 模拟模式：交易不会发送到任何真实网络")
		return func(context.Context, string) (client.Backend, error) { return sim, nil }, nil
	}
	timeout := time.Duration(cfg.RPC.TimeoutSec) * time.Second
	return func(ctx context.Context, rpcURL string) (client.Backend, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		backend, err := wallet.DialEthclient(ctx, rpcURL)
		if err != nil {
			return nil, err
		}
		return client.NewThrottledBackend(backend, a.Limits, a.Metrics.ObserveRPC), nil
	}, nil
}

// keyProvider 私钥优先于助记词；都没有时回退到 watch 地址，再没有则返回 nil
func (a *App) keyProvider(ctx context.Context, cfg *config.Config, dial wallet.DialFunc) (*wallet.KeyProvider, error) {
	opts := wallet.KeyProviderOptions{
		DerivationPath: cfg.Wallet.DerivationPath,
		WatchAddress:   cfg.Wallet.WatchAddress,
		Network:        cfg.Network,
		Networks:       cfg.Networks(),
		Dial:           dial,
	}
	if v, ok := a.Secrets.Lookup(cfg.Wallet.PrivateKeyRef); ok {
		opts.PrivateKeyHex = v
	} else if v, ok := a.Secrets.Lookup(cfg.Wallet.MnemonicRef); ok {
		opts.Mnemonic = v
	}

	if opts.PrivateKeyHex == "" && opts.Mnemonic == "" && a.Sim != nil {
		key, err := crypto.GenerateKey()
		if err != nil {
			return nil, err
		}
		opts.PrivateKeyHex = hexutil.Encode(crypto.FromECDSA(key))
		fundSimAccount(a.Sim, key)
	}
	if opts.PrivateKeyHex == "" && opts.Mnemonic == "" && opts.WatchAddress == "" {
		appLog.Infof("[app] 未配置 %s / %s，只支持 watch 地址", cfg.Wallet.PrivateKeyRef, cfg.Wallet.MnemonicRef)
		return nil, nil
	}
	p, err := wallet.NewKeyProvider(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	return p, nil
}

// fundSimAccount 模拟账户初始余额：10 个原生币 + 1000 支付代币
func fundSimAccount(sim *client.SimChain, key *ecdsa.PrivateKey) {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	sim.SetNativeBalance(addr, new(big.Int).Mul(big.NewInt(10), big.NewInt(1e18)))
	sim.Fund(addr, new(big.Int).Mul(big.NewInt(1000), big.NewInt(1e6)))
	appLog.Infof("[app] 模拟账户 %s", addr.Hex())
}

func (a *App) pinningClient(cfg config.PinningConfig) (*pinning.Client, error) {
	var creds pinning.Credentials
	creds.JWT, _ = a.Secrets.Lookup(cfg.JWTRef)
	creds.APIKey, _ = a.Secrets.Lookup(cfg.APIKeyRef)
	creds.SecretKey, _ = a.Secrets.Lookup(cfg.SecretKeyRef)
	c, err := pinning.NewClient(creds, pinning.Options{
		APIURL:     cfg.APIURL,
		GatewayURL: cfg.GatewayURL,
		Timeout:    time.Duration(cfg.TimeoutSec) * time.Second,
		Limits:     a.Limits,
	})
	if errors.Is(err, pinning.ErrMissingCredentials) {
		appLog.Warnf("[app] 未配置 pinning 凭据（%s 或 %s/%s），上传铸造不可用", cfg.JWTRef, cfg.APIKeyRef, cfg.SecretKeyRef)
		return nil, nil
	}
	return c, err
}

func ensureDir(path string) error {
	if path == "" || path == ":memory:" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0o755)
}
