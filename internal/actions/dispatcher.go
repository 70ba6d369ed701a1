// Package actions runs user-facing wallet actions against the marketplace
// contracts: every action checks the session, submits its transactions one at a
// time waiting for each receipt, and reports a Result.
package actions

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/cryptolocker/nftwallet/internal/activity"
	"github.com/cryptolocker/nftwallet/internal/wallet"
	"github.com/cryptolocker/nftwallet/market/client"
	"github.com/cryptolocker/nftwallet/market/types"
	"github.com/cryptolocker/nftwallet/pkg/persistence"
	"github.com/cryptolocker/nftwallet/pkg/units"
)

var actionLog = logrus.WithField("component", "actions")

// Kind 动作类型
type Kind string

const (
	KindMint               Kind = "mint"
	KindApproveMarketplace Kind = "approve_marketplace"
	KindList               Kind = "list"
	KindApproveToken       Kind = "approve_token"
	KindBuy                Kind = "buy"
	KindCancel             Kind = "cancel"
	KindUpdatePrice        Kind = "update_price"
	KindWithdraw           Kind = "withdraw"
	KindGetListing         Kind = "get_listing"
	KindStake              Kind = "stake"
	KindUnstake            Kind = "unstake"
	KindClaimRewards       Kind = "claim_rewards"
	KindSwap               Kind = "swap"
	KindLock               Kind = "lock"
	KindUnlock             Kind = "unlock"
	KindTransfer           Kind = "transfer"
)

// Status 单个动作的状态：idle -> pending -> success | error
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPending Status = "pending"
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

var (
	ErrNotListed         = errors.New("item is not listed")
	ErrOwnListing        = errors.New("cannot buy your own item")
	ErrNotOwner          = errors.New("not the token owner")
	ErrNothingToWithdraw = errors.New("no funds to withdraw")
	ErrStillLocked       = errors.New("tokens are still locked")
	ErrAlreadyWithdrawn  = errors.New("vault already withdrawn")
)

// Result 动作执行结果
type Result struct {
	ID         string      `json:"id"`
	Action     Kind        `json:"action"`
	Status     Status      `json:"status"`
	Account    string      `json:"account"`
	TxHashes   []string    `json:"txHashes"`
	TokenID    *big.Int    `json:"tokenId,omitempty"`
	Message    string      `json:"message"`
	Error      string      `json:"error,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	StartedAt  time.Time   `json:"startedAt"`
	FinishedAt time.Time   `json:"finishedAt,omitempty"`
}

// Recorder 动作历史（activity.Store 实现）
type Recorder interface {
	Record(ctx context.Context, e activity.Entry) error
}

// Observer 动作 / 交易观测（metrics 实现）
type Observer interface {
	ActionFinished(action string, status string, took time.Duration)
	TxSent(action string, err error)
}

// Options Dispatcher 可选依赖
type Options struct {
	Recorder Recorder
	Sagas    persistence.Service
	Observer Observer
	Now      func() time.Time
	// ConfirmTimeout 单笔交易等待确认的上限（0 表示只受调用方 ctx 控制）
	ConfirmTimeout time.Duration
}

// Dispatcher 绑定一个钱包会话和合约工厂
type Dispatcher struct {
	session *wallet.Session
	factory *client.Factory
	opts    Options

	mu      sync.Mutex
	current map[Kind]Status
}

func NewDispatcher(session *wallet.Session, factory *client.Factory, opts Options) *Dispatcher {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Sagas == nil {
		opts.Sagas = persistence.NewMemoryService()
	}
	return &Dispatcher{
		session: session,
		factory: factory,
		opts:    opts,
		current: make(map[Kind]Status),
	}
}

func (d *Dispatcher) Session() *wallet.Session {
	return d.session
}

// State 每种动作最近一次的状态，未执行过的为 idle
func (d *Dispatcher) State(kind Kind) Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	if s, ok := d.current[kind]; ok {
		return s
	}
	return StatusIdle
}

func (d *Dispatcher) setState(kind Kind, s Status) {
	d.mu.Lock()
	d.current[kind] = s
	d.mu.Unlock()
}

// chain 按会话当前的 RPC 后端绑定合约
func (d *Dispatcher) chain() *client.Factory {
	if b := d.session.Backend(); b != nil {
		return d.factory.WithBackend(b)
	}
	return d.factory
}

// exec 一次动作执行的上下文
type exec struct {
	d       *Dispatcher
	kind    Kind
	account common.Address
	signer  client.TxSigner
	f       *client.Factory
	res     *Result
}

func (x *exec) nft() *client.NFTClient                       { return x.f.NFT(x.signer) }
func (x *exec) market() *client.MarketplaceClient            { return x.f.Marketplace(x.signer) }
func (x *exec) token() *client.TokenClient                   { return x.f.Token(x.signer) }
func (x *exec) tokenAt(a common.Address) *client.TokenClient { return x.f.TokenAt(a, x.signer) }

// send 提交一笔交易并等待确认；失败时不会继续后续步骤。
// 每一步提交前重新校验，两步之间切换了网络时不再发送
func (x *exec) send(ctx context.Context, step string, submit func() (*ethtypes.Transaction, error)) (*ethtypes.Receipt, error) {
	if err := x.d.session.RequireSigner(); err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	if err := x.d.session.RequireNetwork(); err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	tx, err := submit()
	if x.d.opts.Observer != nil {
		x.d.opts.Observer.TxSent(string(x.kind), err)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", step, err)
	}
	x.res.TxHashes = append(x.res.TxHashes, tx.Hash().Hex())
	actionLog.Infof("[actions] %s %s 已提交: %s", x.kind, step, tx.Hash().Hex())

	waitCtx := ctx
	if t := x.d.opts.ConfirmTimeout; t > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	receipt, err := client.WaitMined(waitCtx, x.f.Backend(), tx)
	if err != nil {
		return receipt, fmt.Errorf("%s: %w", step, err)
	}
	return receipt, nil
}

// run 执行带签名的动作：先校验签名能力和网络，任何一项不满足都不会发起网络调用
func (d *Dispatcher) run(ctx context.Context, kind Kind, tokenID *big.Int, fn func(ctx context.Context, x *exec) (string, error)) (*Result, error) {
	return d.execute(ctx, kind, tokenID, true, fn)
}

// query 只读动作：只要求已连接且网络正确
func (d *Dispatcher) query(ctx context.Context, kind Kind, tokenID *big.Int, fn func(ctx context.Context, x *exec) (string, error)) (*Result, error) {
	return d.execute(ctx, kind, tokenID, false, fn)
}

func (d *Dispatcher) execute(ctx context.Context, kind Kind, tokenID *big.Int, signing bool, fn func(ctx context.Context, x *exec) (string, error)) (*Result, error) {
	start := d.opts.Now()
	res := &Result{
		ID:        uuid.NewString(),
		Action:    kind,
		Status:    StatusPending,
		TokenID:   tokenID,
		TxHashes:  []string{},
		StartedAt: start,
	}

	var err error
	if signing {
		err = d.session.RequireSigner()
	}
	if err == nil {
		err = d.session.RequireNetwork()
	}
	if err != nil {
		return d.finish(ctx, res, err), err
	}

	x := &exec{
		d:       d,
		kind:    kind,
		account: d.session.Account(),
		signer:  d.session.Signer(),
		f:       d.chain(),
		res:     res,
	}
	res.Account = x.account.Hex()
	d.setState(kind, StatusPending)
	d.record(ctx, res)

	msg, err := fn(ctx, x)
	if err == nil {
		res.Message = msg
	}
	return d.finish(ctx, res, err), err
}

func (d *Dispatcher) finish(ctx context.Context, res *Result, err error) *Result {
	res.FinishedAt = d.opts.Now()
	if err != nil {
		res.Status = StatusError
		res.Error = err.Error()
		res.Message = client.HumanizeError(err)
		actionLog.Warnf("[actions] %s 失败: %v", res.Action, err)
	} else {
		res.Status = StatusSuccess
		actionLog.Infof("[actions] %s 完成: %s", res.Action, res.Message)
	}
	if res.Account != "" {
		d.setState(res.Action, res.Status)
		d.record(ctx, res)
	}
	if d.opts.Observer != nil {
		d.opts.Observer.ActionFinished(string(res.Action), string(res.Status), res.FinishedAt.Sub(res.StartedAt))
	}
	return res
}

func (d *Dispatcher) record(ctx context.Context, res *Result) {
	if d.opts.Recorder == nil {
		return
	}
	e := activity.Entry{
		ID:        res.ID,
		Account:   res.Account,
		Action:    string(res.Action),
		Status:    string(res.Status),
		TxHashes:  res.TxHashes,
		Message:   res.Message,
		Error:     res.Error,
		CreatedAt: res.StartedAt,
		UpdatedAt: d.opts.Now(),
	}
	if res.TokenID != nil {
		e.TokenID = res.TokenID.String()
	}
	// 记录失败不影响动作本身
	if err := d.opts.Recorder.Record(context.WithoutCancel(ctx), e); err != nil {
		actionLog.Warnf("[actions] 记录动作历史失败: %v", err)
	}
}

func requirePositive(name string, v *big.Int) error {
	if v == nil || v.Sign() <= 0 {
		return fmt.Errorf("%w: %s must be positive", units.ErrInvalidAmount, name)
	}
	return nil
}

func requireTokenID(v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return fmt.Errorf("invalid token id")
	}
	return nil
}

// paymentDecimals 支付代币精度
const paymentDecimals = types.PaymentTokenDecimals

func formatToken(v *big.Int) string {
	return units.FormatUnits(v, paymentDecimals)
}
