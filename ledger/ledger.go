// ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/models"
)

// ErrWriteRejected 账本拒绝了写操作（前置条件不满足等）
var ErrWriteRejected = errors.New("write rejected")

// Reject builds a rejection error carrying the ledger's reason.
func Reject(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrWriteRejected, fmt.Sprintf(format, args...))
}

// IsRejected reports whether err is a ledger rejection.
func IsRejected(err error) bool {
	return errors.Is(err, ErrWriteRejected)
}

// Reason returns the rejection reason without the sentinel text.
func Reason(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	prefix := ErrWriteRejected.Error() + ": "
	if i := strings.Index(msg, prefix); i >= 0 {
		return msg[i+len(prefix):]
	}
	return msg
}

// Reader 读取已解码的账本记录
type Reader interface {
	PlayersByRooms(ctx context.Context) ([]models.Player, error)
	Ranking(ctx context.Context) ([]models.RankingEntry, error)
	Players(ctx context.Context) (models.PlayerList, error)
	ContractBalance(ctx context.Context) (models.Stake, error)
}

// Writer submits mutating actions. Each call returns once the action is
// final or rejected.
type Writer interface {
	JoinGame(ctx context.Context, actor models.Identity, stake models.Stake) error
	MakeDecision(ctx context.Context, actor models.Identity, cooperate bool) error
	Withdraw(ctx context.Context, actor models.Identity) error
}

// Ledger 完整账本接口
type Ledger interface {
	Reader
	Writer
}

// Backend is the raw contract surface: reads return positionally correlated
// arrays exactly as the contract does.
type Backend interface {
	GetPlayersByRooms(ctx context.Context) (models.PlayersByRoomsResult, error)
	GetRanking(ctx context.Context) (models.RankingResult, error)
	GetPlayers(ctx context.Context) (models.PlayersResult, error)
	GetContractBalance(ctx context.Context) (models.BalanceResult, error)
	Writer
}

// Adapter decodes a Backend into records so nothing past this boundary sees
// loose arrays.
type Adapter struct {
	backend Backend
}

func NewAdapter(backend Backend) *Adapter {
	return &Adapter{backend: backend}
}

func (a *Adapter) PlayersByRooms(ctx context.Context) ([]models.Player, error) {
	raw, err := a.backend.GetPlayersByRooms(ctx)
	if err != nil {
		return nil, err
	}
	return decode.Players(raw)
}

func (a *Adapter) Ranking(ctx context.Context) ([]models.RankingEntry, error) {
	raw, err := a.backend.GetRanking(ctx)
	if err != nil {
		return nil, err
	}
	return decode.Ranking(raw)
}

func (a *Adapter) Players(ctx context.Context) (models.PlayerList, error) {
	raw, err := a.backend.GetPlayers(ctx)
	if err != nil {
		return nil, err
	}
	return decode.PlayerList(raw), nil
}

func (a *Adapter) ContractBalance(ctx context.Context) (models.Stake, error) {
	raw, err := a.backend.GetContractBalance(ctx)
	if err != nil {
		return models.Stake{}, err
	}
	balance, err := decode.Stake(raw.Balance)
	if err != nil {
		return models.Stake{}, &decode.DecodeError{Query: "getContractBalance", Index: 0, Reason: err.Error()}
	}
	return balance, nil
}

func (a *Adapter) JoinGame(ctx context.Context, actor models.Identity, stake models.Stake) error {
	return a.backend.JoinGame(ctx, actor, stake)
}

func (a *Adapter) MakeDecision(ctx context.Context, actor models.Identity, cooperate bool) error {
	return a.backend.MakeDecision(ctx, actor, cooperate)
}

func (a *Adapter) Withdraw(ctx context.Context, actor models.Identity) error {
	return a.backend.Withdraw(ctx, actor)
}
