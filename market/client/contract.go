package client

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

var (
	// ErrReadOnly 只读句柄上调用了需要签名的方法
	ErrReadOnly = errors.New("wallet is read-only: no signer available")
	// ErrTxReverted 交易已上链但执行失败（receipt.status == 0）
	ErrTxReverted = errors.New("transaction reverted")
)

// fallbackGasLimit EstimateGas 非 revert 类失败时的兜底
const fallbackGasLimit = 300_000

// Backend 合约交互需要的 JSON-RPC 能力，*ethclient.Client 满足该接口
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CodeAt(ctx context.Context, account common.Address, blockNumber *big.Int) ([]byte, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *ethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*ethtypes.Receipt, error)
}

// contract 单个合约句柄：ABI 打包/解包 + 调用/发送交易
type contract struct {
	name    string
	address common.Address
	abi     abi.ABI
	backend Backend
	signer  TxSigner
	chainID *big.Int
}

func parseABI(name, abiJSON string) (abi.ABI, error) {
	parsed, err := abi.JSON(strings.NewReader(abiJSON))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("解析%s ABI失败: %w", name, err)
	}
	return parsed, nil
}

// Address 合约地址
func (c *contract) Address() common.Address {
	return c.address
}

// ReadOnly 没有 signer 时为 true
func (c *contract) ReadOnly() bool {
	return c.signer == nil
}

// call 执行 view 方法并返回解包后的输出
func (c *contract) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包%s.%s参数失败: %w", c.name, method, err)
	}
	msg := ethereum.CallMsg{To: &c.address, Data: data}
	if c.signer != nil {
		msg.From = c.signer.Address()
	}
	result, err := c.backend.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("调用%s.%s失败: %w", c.name, method, err)
	}
	if len(result) == 0 {
		// 地址上没有合约代码时节点返回空结果
		return nil, fmt.Errorf("调用%s.%s失败: %w", c.name, method, bind.ErrNoCode)
	}
	out, err := c.abi.Unpack(method, result)
	if err != nil {
		return nil, fmt.Errorf("解析%s.%s结果失败: %w", c.name, method, err)
	}
	return out, nil
}

func (c *contract) callBig(ctx context.Context, method string, args ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s.%s: unexpected output type %T", c.name, method, out[0])
	}
	return v, nil
}

func (c *contract) callBool(ctx context.Context, method string, args ...interface{}) (bool, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	v, ok := out[0].(bool)
	if !ok {
		return false, fmt.Errorf("%s.%s: unexpected output type %T", c.name, method, out[0])
	}
	return v, nil
}

func (c *contract) callAddress(ctx context.Context, method string, args ...interface{}) (common.Address, error) {
	out, err := c.call(ctx, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	v, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s.%s: unexpected output type %T", c.name, method, out[0])
	}
	return v, nil
}

// transact 打包 -> nonce -> gas price -> estimate gas -> 签名 -> 发送
func (c *contract) transact(ctx context.Context, value *big.Int, method string, args ...interface{}) (*ethtypes.Transaction, error) {
	if c.signer == nil {
		return nil, ErrReadOnly
	}
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("打包%s.%s参数失败: %w", c.name, method, err)
	}
	if value == nil {
		value = new(big.Int)
	}

	from := c.signer.Address()
	nonce, err := c.backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("获取nonce失败: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("获取gas价格失败: %w", err)
	}
	gasLimit, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{
		From:  from,
		To:    &c.address,
		Data:  data,
		Value: value,
	})
	if err != nil {
		if isRevert(err) {
			return nil, fmt.Errorf("%s.%s: %w", c.name, method, err)
		}
		gasLimit = fallbackGasLimit
	}

	tx := ethtypes.NewTransaction(nonce, c.address, value, gasLimit, gasPrice, data)
	signed, err := c.signer.SignTx(ctx, tx, c.chainID)
	if err != nil {
		return nil, err
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("发送%s.%s交易失败: %w", c.name, method, err)
	}
	return signed, nil
}

// WaitMined 等待交易上链，status 为 0 时返回 ErrTxReverted。
// ctx 取消只结束本地等待，不会撤销已发送的交易。
func WaitMined(ctx context.Context, backend Backend, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, backend, tx)
	if err != nil {
		return nil, fmt.Errorf("等待交易 %s 确认失败: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return receipt, fmt.Errorf("%w: %s", ErrTxReverted, tx.Hash().Hex())
	}
	return receipt, nil
}

func isRevert(err error) bool {
	var dataErr interface{ ErrorData() interface{} }
	if errors.As(err, &dataErr) && dataErr.ErrorData() != nil {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "execution reverted")
}

func abiConvert(in interface{}, proto interface{}) interface{} {
	return abi.ConvertType(in, proto)
}

func abiString(in interface{}) *string {
	return abi.ConvertType(in, new(string)).(*string)
}
