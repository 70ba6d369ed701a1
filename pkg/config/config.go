package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"

	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/logger"
)

// ContractsConfig 合约地址（字符串形式，Validate 时校验）
type ContractsConfig struct {
	NFT          string `yaml:"nft"`
	Marketplace  string `yaml:"marketplace"`
	PaymentToken string `yaml:"payment_token"`
	FeeCollector string `yaml:"fee_collector"`
}

// PinningConfig IPFS pinning 配置；凭据只保存引用名（环境变量 / 机密库键），不保存明文
type PinningConfig struct {
	APIURL       string `yaml:"api_url"`
	GatewayURL   string `yaml:"gateway_url"`
	APIKeyRef    string `yaml:"api_key_ref"`
	SecretKeyRef string `yaml:"secret_key_ref"`
	JWTRef       string `yaml:"jwt_ref"`
	TimeoutSec   int    `yaml:"timeout_seconds"`
}

// WalletConfig 服务端签名钱包配置；私钥 / 助记词同样只保存引用名
type WalletConfig struct {
	PrivateKeyRef  string `yaml:"private_key_ref"`
	MnemonicRef    string `yaml:"mnemonic_ref"`
	DerivationPath string `yaml:"derivation_path"`
	WatchAddress   string `yaml:"watch_address"` // 只读模式地址
}

// SecretsConfig 机密库（badger）配置
type SecretsConfig struct {
	Path             string `yaml:"path"`
	EncryptionKeyEnv string `yaml:"encryption_key_env"`
}

// RPCConfig RPC 限流与超时
type RPCConfig struct {
	ReadPerSecond int `yaml:"read_per_second"`
	ReadBurst     int `yaml:"read_burst"`
	SendPerSecond int `yaml:"send_per_second"`
	SendBurst     int `yaml:"send_burst"`
	TimeoutSec    int `yaml:"timeout_seconds"`
}

// Config 应用配置
type Config struct {
	Network        types.Network   `yaml:"network"`
	Contracts      ContractsConfig `yaml:"contracts"`
	TokenDecimals  int32           `yaml:"token_decimals"`
	Pinning        PinningConfig   `yaml:"pinning"`
	Wallet         WalletConfig    `yaml:"wallet"`
	Secrets        SecretsConfig   `yaml:"secrets"`
	PersistenceDir string          `yaml:"persistence_dir"`
	ActivityDB     string          `yaml:"activity_db"`
	ServerAddr     string          `yaml:"server_addr"`
	MetricsAddr    string          `yaml:"metrics_addr"` // 为空则不启动 metrics/pprof
	Log            logger.Config   `yaml:"log"`
	RPC            RPCConfig       `yaml:"rpc"`
}

var (
	globalConfig   *Config
	configFilePath string
	configMu       sync.Mutex
)

// SetConfigPath 设置配置文件路径
func SetConfigPath(path string) {
	configMu.Lock()
	defer configMu.Unlock()
	configFilePath = path
}

// GetConfigPath 获取配置文件路径
func GetConfigPath() string {
	configMu.Lock()
	defer configMu.Unlock()
	return configFilePath
}

// Default 默认配置（Polygon 主网 + 原部署合约）
func Default() *Config {
	return defaultsFor(types.PolygonMainnet)
}

func defaultsFor(network types.Network) *Config {
	c := &Config{
		Network:       network,
		TokenDecimals: types.PaymentTokenDecimals,
		Pinning: PinningConfig{
			APIURL:       "https://api.pinata.cloud",
			GatewayURL:   "https://gateway.pinata.cloud/ipfs/",
			APIKeyRef:    "PINATA_API_KEY",
			SecretKeyRef: "PINATA_SECRET_API_KEY",
			JWTRef:       "PINATA_JWT",
			TimeoutSec:   60,
		},
		Wallet: WalletConfig{
			PrivateKeyRef:  "WALLET_PRIVATE_KEY",
			MnemonicRef:    "WALLET_MNEMONIC",
			DerivationPath: "m/44'/60'/0'/0/0",
		},
		Secrets: SecretsConfig{
			Path:             "data/secrets.badger",
			EncryptionKeyEnv: "NFTWALLET_SECRET_KEY",
		},
		PersistenceDir: "data/sagas",
		ActivityDB:     "data/activity.db",
		ServerAddr:     ":8080",
		Log: logger.Config{
			Level:      "info",
			OutputFile: "logs/walletd.log",
			MaxSize:    100,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   true,
		},
		RPC: RPCConfig{
			ReadPerSecond: 20,
			ReadBurst:     50,
			SendPerSecond: 5,
			SendBurst:     10,
			TimeoutSec:    30,
		},
	}
	if contracts, err := types.GetContracts(network.ChainID); err == nil {
		c.Contracts = ContractsConfig{
			NFT:          contracts.NFT.Hex(),
			Marketplace:  contracts.Marketplace.Hex(),
			PaymentToken: contracts.PaymentToken.Hex(),
			FeeCollector: contracts.FeeCollector.Hex(),
		}
	}
	return c
}

// Get 获取已加载的全局配置
func Get() *Config {
	configMu.Lock()
	defer configMu.Unlock()
	return globalConfig
}

// Load 加载配置
func Load() (*Config, error) {
	return LoadFromFile(GetConfigPath())
}

// LoadFromFile 从指定文件加载配置
// 优先级：环境变量 > 配置文件 > 默认值；filePath 为空时只使用环境变量与默认值
func LoadFromFile(filePath string) (*Config, error) {
	var raw []byte
	if filePath != "" {
		b, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("读取配置文件失败 %s: %w", filePath, err)
		}
		raw = b
	}

	cfg, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("加载配置文件失败 %s: %w", filePath, err)
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("配置验证失败: %w", err)
	}

	configMu.Lock()
	globalConfig = cfg
	configFilePath = filePath
	configMu.Unlock()
	return cfg, nil
}

// parse 先确定链 ID（文件或 CHAIN_ID 环境变量），以该链的默认值为底，再覆盖文件内容
func parse(raw []byte) (*Config, error) {
	var peek struct {
		Network struct {
			ChainID types.Chain `yaml:"chain_id"`
		} `yaml:"network"`
	}
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, &peek); err != nil {
			return nil, fmt.Errorf("解析 YAML 失败: %w", err)
		}
	}
	chain := peek.Network.ChainID
	if v := parseIntEnv("CHAIN_ID", 0); v > 0 {
		chain = types.Chain(v)
	}

	base := types.Network{ChainID: chain}
	if chain == 0 {
		base = types.PolygonMainnet
	}
	for _, n := range types.KnownNetworks() {
		if n.ChainID == chain {
			base = n
		}
	}

	cfg := defaultsFor(base)
	if len(raw) > 0 {
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("解析 YAML 失败: %w", err)
		}
	}
	cfg.Network.ChainID = base.ChainID
	return cfg, nil
}

func applyEnv(c *Config) {
	c.Network.Name = getEnv("NETWORK_NAME", c.Network.Name)
	c.Network.RPCURL = getEnv("RPC_URL", c.Network.RPCURL)
	c.Network.BlockExplorer = getEnv("BLOCK_EXPLORER_URL", c.Network.BlockExplorer)

	c.Contracts.NFT = getEnv("NFT_CONTRACT", c.Contracts.NFT)
	c.Contracts.Marketplace = getEnv("MARKETPLACE_CONTRACT", c.Contracts.Marketplace)
	c.Contracts.PaymentToken = getEnv("PAYMENT_TOKEN", c.Contracts.PaymentToken)
	c.Contracts.FeeCollector = getEnv("FEE_COLLECTOR", c.Contracts.FeeCollector)
	c.TokenDecimals = int32(parseIntEnv("TOKEN_DECIMALS", int(c.TokenDecimals)))

	c.Pinning.APIURL = getEnv("PINATA_API_URL", c.Pinning.APIURL)
	c.Pinning.GatewayURL = getEnv("PINATA_GATEWAY_URL", c.Pinning.GatewayURL)

	c.Wallet.DerivationPath = getEnv("WALLET_DERIVATION_PATH", c.Wallet.DerivationPath)
	c.Wallet.WatchAddress = getEnv("WATCH_ADDRESS", c.Wallet.WatchAddress)

	c.Secrets.Path = getEnv("SECRETSTORE_PATH", c.Secrets.Path)

	c.PersistenceDir = getEnv("PERSISTENCE_DIR", c.PersistenceDir)
	c.ActivityDB = getEnv("ACTIVITY_DB", c.ActivityDB)
	c.ServerAddr = getEnv("SERVER_ADDR", c.ServerAddr)
	c.MetricsAddr = getEnv("METRICS_ADDR", c.MetricsAddr)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.OutputFile = getEnv("LOG_FILE", c.Log.OutputFile)
	c.Log.Format = getEnv("LOG_FORMAT", c.Log.Format)

	c.RPC.ReadPerSecond = parseIntEnv("RPC_READ_PER_SECOND", c.RPC.ReadPerSecond)
	c.RPC.SendPerSecond = parseIntEnv("RPC_SEND_PER_SECOND", c.RPC.SendPerSecond)
	c.RPC.TimeoutSec = parseIntEnv("RPC_TIMEOUT_SECONDS", c.RPC.TimeoutSec)
}

// Validate 校验配置
func (c *Config) Validate() error {
	if c.Network.ChainID <= 0 {
		return fmt.Errorf("network.chain_id 必须大于 0")
	}
	if strings.TrimSpace(c.Network.RPCURL) == "" {
		return fmt.Errorf("network.rpc_url 不能为空")
	}
	if _, err := c.ResolveContracts(); err != nil {
		return err
	}
	if c.TokenDecimals < 0 || c.TokenDecimals > 36 {
		return fmt.Errorf("token_decimals 超出范围: %d", c.TokenDecimals)
	}
	if c.Wallet.WatchAddress != "" {
		if _, err := types.ValidateAddress(c.Wallet.WatchAddress); err != nil {
			return fmt.Errorf("wallet.watch_address: %w", err)
		}
	}
	if c.RPC.ReadPerSecond < 0 || c.RPC.SendPerSecond < 0 {
		return fmt.Errorf("rpc 限流不能为负数")
	}
	return nil
}

// ResolveContracts 校验并转换合约地址
func (c *Config) ResolveContracts() (types.Contracts, error) {
	var out types.Contracts
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"contracts.nft", c.Contracts.NFT, &out.NFT},
		{"contracts.marketplace", c.Contracts.Marketplace, &out.Marketplace},
		{"contracts.payment_token", c.Contracts.PaymentToken, &out.PaymentToken},
		{"contracts.fee_collector", c.Contracts.FeeCollector, &out.FeeCollector},
	}
	for _, f := range fields {
		addr, err := types.ValidateAddress(f.raw)
		if err != nil {
			return types.Contracts{}, fmt.Errorf("%s: %w", f.name, err)
		}
		*f.dst = addr
	}
	return out, nil
}

// Networks 可切换网络列表：内置网络 + 当前配置的网络（同 ID 时以配置为准）
func (c *Config) Networks() []types.Network {
	out := []types.Network{c.Network}
	for _, n := range types.KnownNetworks() {
		if n.ChainID != c.Network.ChainID {
			out = append(out, n)
		}
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseIntEnv(key string, defaultValue int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return n
}
