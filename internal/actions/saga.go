package actions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/cryptolocker/nftwallet/pkg/persistence"
)

const sagaPrefix = "saga"

// SagaState 两步流程（授权 -> 执行）的进度
type SagaState string

const (
	SagaPending  SagaState = "pending"
	SagaApproved SagaState = "approved"
	SagaActed    SagaState = "acted"
	SagaFailed   SagaState = "failed"
)

// SagaRecord 持久化的进度，只用于报告，从不触发补偿交易
type SagaRecord struct {
	Tag       string    `json:"tag"`
	Kind      Kind      `json:"kind"`
	Account   string    `json:"account"`
	Subject   string    `json:"subject"`
	State     SagaState `json:"state"`
	Skipped   bool      `json:"approveSkipped"`
	ApproveTx string    `json:"approveTx,omitempty"`
	ActTx     string    `json:"actTx,omitempty"`
	Error     string    `json:"error,omitempty"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// sagaSteps 一次 saga 的三个步骤。
// approved 读取链上当前授权；已满足时跳过 approve，重跑时只会重新执行 act。
type sagaSteps struct {
	approved func(ctx context.Context) (bool, error)
	approve  func(ctx context.Context) (*ethtypes.Transaction, error)
	act      func(ctx context.Context) (*ethtypes.Transaction, error)
}

func sagaTag(kind Kind, subject string) string {
	return string(kind) + "-" + subject
}

// runSaga Pending -> Approved -> Acted；任何一步失败即 Failed，act 不会在授权失败后执行
func (x *exec) runSaga(ctx context.Context, subject string, steps sagaSteps) (*ethtypes.Receipt, error) {
	account := strings.ToLower(x.account.Hex())
	tag := sagaTag(x.kind, subject)
	store := x.d.opts.Sagas.NewStore(sagaPrefix, account, tag)

	var prev SagaRecord
	if err := store.Load(&prev); err == nil && prev.State != SagaActed {
		actionLog.Infof("[actions] 恢复 %s：上次停在 %s", tag, prev.State)
	} else if err != nil && !errors.Is(err, persistence.ErrNotExists) {
		actionLog.Warnf("[actions] 读取 saga %s 失败: %v", tag, err)
	}

	rec := SagaRecord{Tag: tag, Kind: x.kind, Account: account, Subject: subject}
	save := func(state SagaState, err error) {
		rec.State = state
		rec.UpdatedAt = x.d.opts.Now()
		if err != nil {
			rec.Error = err.Error()
		}
		if serr := store.Save(rec); serr != nil {
			actionLog.Warnf("[actions] 保存 saga %s 失败: %v", tag, serr)
		}
	}
	fail := func(err error) (*ethtypes.Receipt, error) {
		save(SagaFailed, err)
		return nil, err
	}

	save(SagaPending, nil)

	ok, err := steps.approved(ctx)
	if err != nil {
		return fail(fmt.Errorf("check approval: %w", err))
	}
	if ok {
		rec.Skipped = true
		actionLog.Infof("[actions] %s 已有链上授权，跳过 approve", tag)
	} else {
		receipt, err := x.send(ctx, "approve", func() (*ethtypes.Transaction, error) { return steps.approve(ctx) })
		if receipt != nil {
			rec.ApproveTx = receipt.TxHash.Hex()
		}
		if err != nil {
			return fail(err)
		}
	}
	save(SagaApproved, nil)

	receipt, err := x.send(ctx, string(x.kind), func() (*ethtypes.Transaction, error) { return steps.act(ctx) })
	if receipt != nil {
		rec.ActTx = receipt.TxHash.Hex()
	}
	if err != nil {
		return fail(err)
	}
	save(SagaActed, nil)
	return receipt, nil
}

// Sagas 列出当前账户保存的 saga 进度
func (d *Dispatcher) Sagas() ([]SagaRecord, error) {
	account := strings.ToLower(d.session.Account().Hex())
	tags, err := d.opts.Sagas.Tags(sagaPrefix, account)
	if err != nil {
		return nil, err
	}
	out := make([]SagaRecord, 0, len(tags))
	for _, tag := range tags {
		var rec SagaRecord
		if err := d.opts.Sagas.NewStore(sagaPrefix, account, tag).Load(&rec); err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}
