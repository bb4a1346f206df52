// ledger/memory.go
package ledger

import (
	"context"
	"strconv"
	"sync"

	"github.com/shopspring/decimal"
	"github.com/wfunc/dilemmaview/models"
)

type memPlayer struct {
	address  models.Identity
	balance  decimal.Decimal
	roomID   uint64
	decision *bool
}

// Memory 内存中的账本模拟器
//
// Players pair into rooms of two in join order. Round settlement and payoffs
// are not modelled: once both occupants decide, the round's decisions are
// cleared and balances stay as they were.
type Memory struct {
	stake    decimal.Decimal
	players  []*memPlayer
	balance  decimal.Decimal
	nextRoom uint64
	rounds   map[uint64]int
	mutex    sync.Mutex
}

// NewMemory creates a simulator that accepts exactly stake on join.
func NewMemory(stake models.Stake) *Memory {
	return &Memory{
		stake:    stake,
		nextRoom: 1,
		rounds:   make(map[uint64]int),
	}
}

func (m *Memory) find(actor models.Identity) (int, *memPlayer) {
	for i, p := range m.players {
		if p.address.Equal(actor) {
			return i, p
		}
	}
	return -1, nil
}

func (m *Memory) roommates(roomID uint64) []*memPlayer {
	var out []*memPlayer
	for _, p := range m.players {
		if p.roomID == roomID {
			out = append(out, p)
		}
	}
	return out
}

// Rounds returns how many rounds a room has completed.
func (m *Memory) Rounds(roomID uint64) int {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.rounds[roomID]
}

func (m *Memory) GetPlayersByRooms(ctx context.Context) (models.PlayersByRoomsResult, error) {
	if err := ctx.Err(); err != nil {
		return models.PlayersByRoomsResult{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	res := models.PlayersByRoomsResult{
		Addresses: make([]string, 0, len(m.players)),
		Balances:  make([]string, 0, len(m.players)),
		RoomIDs:   make([]string, 0, len(m.players)),
		InGames:   make([]bool, 0, len(m.players)),
	}
	for _, p := range m.players {
		res.Addresses = append(res.Addresses, string(p.address))
		res.Balances = append(res.Balances, p.balance.String())
		res.RoomIDs = append(res.RoomIDs, strconv.FormatUint(p.roomID, 10))
		res.InGames = append(res.InGames, len(m.roommates(p.roomID)) >= models.RoomCapacity)
	}
	return res, nil
}

func (m *Memory) GetRanking(ctx context.Context) (models.RankingResult, error) {
	if err := ctx.Err(); err != nil {
		return models.RankingResult{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	res := models.RankingResult{
		Addresses: make([]string, 0, len(m.players)),
		Balances:  make([]string, 0, len(m.players)),
	}
	for _, p := range m.players {
		res.Addresses = append(res.Addresses, string(p.address))
		res.Balances = append(res.Balances, p.balance.String())
	}
	return res, nil
}

func (m *Memory) GetPlayers(ctx context.Context) (models.PlayersResult, error) {
	if err := ctx.Err(); err != nil {
		return models.PlayersResult{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	res := models.PlayersResult{Addresses: make([]string, 0, len(m.players))}
	for _, p := range m.players {
		res.Addresses = append(res.Addresses, string(p.address))
	}
	return res, nil
}

func (m *Memory) GetContractBalance(ctx context.Context) (models.BalanceResult, error) {
	if err := ctx.Err(); err != nil {
		return models.BalanceResult{}, err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return models.BalanceResult{Balance: m.balance.String()}, nil
}

func (m *Memory) JoinGame(ctx context.Context, actor models.Identity, stake models.Stake) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !stake.Equal(m.stake) {
		return Reject("stake must be %s", m.stake.String())
	}
	if _, p := m.find(actor); p != nil {
		return Reject("already playing")
	}

	// 优先加入等待中的房间
	roomID := uint64(0)
	for _, p := range m.players {
		if len(m.roommates(p.roomID)) < models.RoomCapacity {
			roomID = p.roomID
			break
		}
	}
	if roomID == 0 {
		roomID = m.nextRoom
		m.nextRoom++
	}

	m.players = append(m.players, &memPlayer{
		address: actor,
		balance: stake,
		roomID:  roomID,
	})
	m.balance = m.balance.Add(stake)
	return nil
}

func (m *Memory) MakeDecision(ctx context.Context, actor models.Identity, cooperate bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	_, p := m.find(actor)
	if p == nil {
		return Reject("not a player")
	}
	mates := m.roommates(p.roomID)
	if len(mates) < models.RoomCapacity {
		return Reject("waiting for opponent")
	}
	if p.decision != nil {
		return Reject("already decided this round")
	}
	choice := cooperate
	p.decision = &choice

	for _, mate := range mates {
		if mate.decision == nil {
			return nil
		}
	}
	for _, mate := range mates {
		mate.decision = nil
	}
	m.rounds[p.roomID]++
	return nil
}

func (m *Memory) Withdraw(ctx context.Context, actor models.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mutex.Lock()
	defer m.mutex.Unlock()

	i, p := m.find(actor)
	if p == nil {
		return Reject("not a player")
	}
	m.balance = m.balance.Sub(p.balance)
	m.players = append(m.players[:i], m.players[i+1:]...)

	// 对手回到等待状态
	for _, mate := range m.roommates(p.roomID) {
		mate.decision = nil
	}
	return nil
}
