package client

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

// CallHandler view 方法处理函数；返回值按 ABI outputs 打包
type CallHandler func(from common.Address, args []interface{}) ([]interface{}, error)

// TxHandler 交易处理函数；返回错误时交易以 status=0 上链
type TxHandler func(from common.Address, value *big.Int, args []interface{}) ([]*ethtypes.Log, error)

// SentTx 已发送交易记录
type SentTx struct {
	Hash   common.Hash
	From   common.Address
	To     common.Address
	Label  string
	Method string
	Args   []interface{}
	Value  *big.Int
	Status uint64
	Reason string
}

// Key 形如 "Marketplace.buyItem"
func (s SentTx) Key() string {
	return s.Label + "." + s.Method
}

type mockContract struct {
	label string
	abi   abi.ABI
	calls map[string]CallHandler
	txs   map[string]TxHandler
}

// MockBackend 内存实现的 Backend，用于测试和模拟模式。
// 合约按地址注册，调用按 ABI selector 分发到处理函数。
type MockBackend struct {
	mu sync.Mutex

	ChainIDValue *big.Int
	GasPrice     *big.Int

	contracts map[common.Address]*mockContract
	native    map[common.Address]*big.Int
	nonces    map[common.Address]uint64
	receipts  map[common.Hash]*ethtypes.Receipt
	block     uint64

	// Call tracking，键为后端方法名或 "Label.method"
	Calls map[string]int
	Sent  []SentTx

	// Error injection：ErrorOnNext 让下一次调用直接返回错误（未上链），
	// RevertOnNext 让下一笔对应交易以 status=0 上链
	ErrorOnNext  map[string]error
	RevertOnNext map[string]bool
}

// NewMockBackend 创建 mock 后端
func NewMockBackend(chainID *big.Int) *MockBackend {
	return &MockBackend{
		ChainIDValue: chainID,
		GasPrice:     big.NewInt(30_000_000_000),
		contracts:    make(map[common.Address]*mockContract),
		native:       make(map[common.Address]*big.Int),
		nonces:       make(map[common.Address]uint64),
		receipts:     make(map[common.Hash]*ethtypes.Receipt),
		Calls:        make(map[string]int),
		ErrorOnNext:  make(map[string]error),
		RevertOnNext: make(map[string]bool),
	}
}

// Register 在地址上注册合约 ABI
func (m *MockBackend) Register(label string, address common.Address, abiJSON string) error {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return fmt.Errorf("解析%s ABI失败: %w", label, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contracts[address] = &mockContract{
		label: label,
		abi:   parsed,
		calls: make(map[string]CallHandler),
		txs:   make(map[string]TxHandler),
	}
	return nil
}

// OnCall 设置 view 方法处理函数
func (m *MockBackend) OnCall(address common.Address, method string, h CallHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contracts[address]; ok {
		c.calls[method] = h
	}
}

// OnTx 设置交易处理函数
func (m *MockBackend) OnTx(address common.Address, method string, h TxHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.contracts[address]; ok {
		c.txs[method] = h
	}
}

// SetNativeBalance 设置原生代币余额
func (m *MockBackend) SetNativeBalance(account common.Address, wei *big.Int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.native[account] = new(big.Int).Set(wei)
}

// CallCount 返回调用次数
func (m *MockBackend) CallCount(name string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Calls[name]
}

// SentTxs 返回已发送交易的副本
func (m *MockBackend) SentTxs() []SentTx {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentTx, len(m.Sent))
	copy(out, m.Sent)
	return out
}

// trackCall 调用方需持有锁
func (m *MockBackend) trackCall(name string) error {
	m.Calls[name]++
	if err, ok := m.ErrorOnNext[name]; ok {
		delete(m.ErrorOnNext, name)
		return err
	}
	return nil
}

func (m *MockBackend) decode(to *common.Address, data []byte) (*mockContract, *abi.Method, []interface{}, error) {
	if to == nil {
		return nil, nil, nil, fmt.Errorf("contract creation not supported")
	}
	c, ok := m.contracts[*to]
	if !ok {
		return nil, nil, nil, nil
	}
	if len(data) < 4 {
		return c, nil, nil, fmt.Errorf("execution reverted: missing selector")
	}
	method, err := c.abi.MethodById(data[:4])
	if err != nil {
		return c, nil, nil, fmt.Errorf("execution reverted: %w", err)
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return c, method, nil, fmt.Errorf("execution reverted: bad calldata: %w", err)
	}
	return c, method, args, nil
}

func (m *MockBackend) ChainID(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("ChainID"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.ChainIDValue), nil
}

func (m *MockBackend) CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CodeAt"); err != nil {
		return nil, err
	}
	if _, ok := m.contracts[account]; ok {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (m *MockBackend) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("BalanceAt"); err != nil {
		return nil, err
	}
	if b, ok := m.native[account]; ok {
		return new(big.Int).Set(b), nil
	}
	return new(big.Int), nil
}

func (m *MockBackend) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("CallContract"); err != nil {
		return nil, err
	}
	c, method, args, err := m.decode(call.To, call.Data)
	if err != nil {
		return nil, err
	}
	if c == nil {
		// 没有代码的地址
		return nil, nil
	}
	key := c.label + "." + method.Name
	if err := m.trackCall(key); err != nil {
		return nil, err
	}
	h, ok := c.calls[method.Name]
	if !ok {
		return nil, fmt.Errorf("execution reverted: %s not implemented", key)
	}
	out, err := h(call.From, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(out...)
}

func (m *MockBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("PendingNonceAt"); err != nil {
		return 0, err
	}
	return m.nonces[account], nil
}

func (m *MockBackend) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SuggestGasPrice"); err != nil {
		return nil, err
	}
	return new(big.Int).Set(m.GasPrice), nil
}

func (m *MockBackend) EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("EstimateGas"); err != nil {
		return 0, err
	}
	return 200_000, nil
}

func (m *MockBackend) SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("SendTransaction"); err != nil {
		return err
	}

	if tx.To() == nil {
		return fmt.Errorf("contract creation not supported")
	}
	from, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(m.ChainIDValue), tx)
	if err != nil {
		return fmt.Errorf("invalid sender: %w", err)
	}
	if tx.Nonce() != m.nonces[from] {
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", m.nonces[from], tx.Nonce())
	}
	value := tx.Value()
	if value.Sign() > 0 {
		bal := m.native[from]
		if bal == nil || bal.Cmp(value) < 0 {
			return fmt.Errorf("insufficient funds for gas * price + value: address %s", from.Hex())
		}
	}

	c, method, args, decodeErr := m.decode(tx.To(), tx.Data())
	sent := SentTx{
		Hash:   tx.Hash(),
		From:   from,
		To:     *tx.To(),
		Value:  new(big.Int).Set(value),
		Args:   args,
		Status: ethtypes.ReceiptStatusSuccessful,
	}
	if c != nil {
		sent.Label = c.label
	}
	if method != nil {
		sent.Method = method.Name
		if err := m.trackCall(sent.Key()); err != nil {
			return err
		}
	}

	var logs []*ethtypes.Log
	switch {
	case decodeErr != nil:
		sent.Status, sent.Reason = ethtypes.ReceiptStatusFailed, decodeErr.Error()
	case m.RevertOnNext[sent.Key()]:
		delete(m.RevertOnNext, sent.Key())
		sent.Status, sent.Reason = ethtypes.ReceiptStatusFailed, "forced revert"
	case c != nil:
		h, ok := c.txs[method.Name]
		if !ok {
			sent.Status, sent.Reason = ethtypes.ReceiptStatusFailed, "not implemented"
			break
		}
		if value.Sign() > 0 {
			m.native[from] = new(big.Int).Sub(m.native[from], value)
		}
		logs, err = h(from, value, args)
		if err != nil {
			if value.Sign() > 0 {
				m.native[from] = new(big.Int).Add(m.native[from], value)
			}
			sent.Status, sent.Reason, logs = ethtypes.ReceiptStatusFailed, err.Error(), nil
		}
	default:
		if value.Sign() > 0 {
			m.native[from] = new(big.Int).Sub(m.native[from], value)
			to := *tx.To()
			m.native[to] = new(big.Int).Add(nativeOrZero(m.native[to]), value)
		}
	}

	m.nonces[from]++
	m.block++
	for i, l := range logs {
		l.TxHash = tx.Hash()
		l.BlockNumber = m.block
		l.Index = uint(i)
	}
	m.receipts[tx.Hash()] = &ethtypes.Receipt{
		Status:      sent.Status,
		TxHash:      tx.Hash(),
		Logs:        logs,
		GasUsed:     tx.Gas(),
		BlockNumber: new(big.Int).SetUint64(m.block),
	}
	m.Sent = append(m.Sent, sent)
	return nil
}

func (m *MockBackend) TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.trackCall("TransactionReceipt"); err != nil {
		return nil, err
	}
	r, ok := m.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

// EventLog 按 ABI 构造事件日志，indexed 为事件签名之后的 topics
func EventLog(address common.Address, ev abi.Event, indexed []common.Hash, data ...interface{}) (*ethtypes.Log, error) {
	packed, err := ev.Inputs.NonIndexed().Pack(data...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", ev.Name, err)
	}
	topics := append([]common.Hash{ev.ID}, indexed...)
	return &ethtypes.Log{Address: address, Topics: topics, Data: packed}, nil
}

func nativeOrZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
