// services/coordinator.go
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wfunc/dilemmaview/ledger"
	"github.com/wfunc/dilemmaview/logger"
	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/session"
	"github.com/wfunc/dilemmaview/state"
)

// ErrIdentityAbsent 没有连接账户时不提供任何操作
var ErrIdentityAbsent = errors.New("no identity connected")

// ErrUnknownAction 无法识别的操作
var ErrUnknownAction = errors.New("unknown action")

// Refresher re-runs the ledger reads.
type Refresher interface {
	Refresh(ctx context.Context, reason refresh.Reason) (refresh.Snapshot, error)
}

// ActionRecorder receives action outcomes.
type ActionRecorder interface {
	ObserveAction(action, outcome string, duration time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) ObserveAction(string, string, time.Duration) {}

// Action outcomes.
const (
	OutcomeFinalized = "finalized"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeNoActor   = "no_identity"
)

// ActionCoordinator submits the three mutating actions. A write that
// finalizes is followed by exactly one refresh; a write that fails is not.
type ActionCoordinator struct {
	writer       ledger.Writer
	refresher    Refresher
	account      *session.Account
	stake        models.Stake
	writeTimeout time.Duration
	recorder     ActionRecorder
	log          *zap.SugaredLogger
}

func NewActionCoordinator(writer ledger.Writer, refresher Refresher, account *session.Account, stake models.Stake) *ActionCoordinator {
	return &ActionCoordinator{
		writer:    writer,
		refresher: refresher,
		account:   account,
		stake:     stake,
		recorder:  nopRecorder{},
		log:       logger.Log,
	}
}

// SetWriteTimeout bounds how long a submission may wait for finalization.
func (c *ActionCoordinator) SetWriteTimeout(d time.Duration) {
	c.writeTimeout = d
}

// SetRecorder records action outcomes.
func (c *ActionCoordinator) SetRecorder(r ActionRecorder) {
	c.recorder = r
}

// Join 以固定押金加入游戏
func (c *ActionCoordinator) Join(ctx context.Context) (bool, error) {
	return c.submit(ctx, state.ActionJoin, func(ctx context.Context, actor models.Identity) error {
		return c.writer.JoinGame(ctx, actor, c.stake)
	})
}

// Decide 提交本轮的合作或背叛
func (c *ActionCoordinator) Decide(ctx context.Context, cooperate bool) (bool, error) {
	action := state.ActionDefect
	if cooperate {
		action = state.ActionCooperate
	}
	return c.submit(ctx, action, func(ctx context.Context, actor models.Identity) error {
		return c.writer.MakeDecision(ctx, actor, cooperate)
	})
}

// Withdraw 提取余额
func (c *ActionCoordinator) Withdraw(ctx context.Context) (bool, error) {
	return c.submit(ctx, state.ActionWithdraw, func(ctx context.Context, actor models.Identity) error {
		return c.writer.Withdraw(ctx, actor)
	})
}

// Dispatch runs the named action.
func (c *ActionCoordinator) Dispatch(ctx context.Context, action state.Action) (bool, error) {
	switch action {
	case state.ActionJoin:
		return c.Join(ctx)
	case state.ActionCooperate:
		return c.Decide(ctx, true)
	case state.ActionDefect:
		return c.Decide(ctx, false)
	case state.ActionWithdraw:
		return c.Withdraw(ctx)
	default:
		return false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// submit reports whether the refresh phase ran. Refresh failures are logged;
// they do not undo a finalized write.
func (c *ActionCoordinator) submit(ctx context.Context, action state.Action, write func(context.Context, models.Identity) error) (bool, error) {
	start := time.Now()
	actor, identified := c.account.Current()
	if !identified {
		c.recorder.ObserveAction(string(action), OutcomeNoActor, time.Since(start))
		return false, ErrIdentityAbsent
	}

	wctx, cancel := ctx, context.CancelFunc(func() {})
	if c.writeTimeout > 0 {
		wctx, cancel = context.WithTimeout(ctx, c.writeTimeout)
	}
	err := write(wctx, actor)
	cancel()

	if err != nil {
		outcome := OutcomeFailed
		if ledger.IsRejected(err) {
			outcome = OutcomeRejected
		}
		c.recorder.ObserveAction(string(action), outcome, time.Since(start))
		c.log.Infow("action not finalized", "action", action, "actor", actor, "outcome", outcome, "error", err)
		return false, fmt.Errorf("%s: %w", action, err)
	}

	c.recorder.ObserveAction(string(action), OutcomeFinalized, time.Since(start))
	c.log.Infow("action finalized", "action", action, "actor", actor)

	if _, err := c.refresher.Refresh(context.WithoutCancel(ctx), refresh.ReasonAction); err != nil {
		c.log.Warnw("refresh after action had failures", "action", action, "error", err)
	}
	return true, nil
}
