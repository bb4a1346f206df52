// models/models.go
package models

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Identity 账户地址
type Identity string

// Canonical returns the address trimmed and lowercased. Ledger addresses are
// hex and case carries no meaning for equality.
func (id Identity) Canonical() Identity {
	return Identity(strings.ToLower(strings.TrimSpace(string(id))))
}

// Equal reports whether two addresses name the same account.
func (id Identity) Equal(other Identity) bool {
	return id.Canonical() == other.Canonical()
}

func (id Identity) String() string {
	return string(id)
}

// RoomID 房间标识
type RoomID string

// Stake is an integral amount in the ledger's smallest unit.
type Stake = decimal.Decimal

// RoomCapacity 每个房间的对战人数
const RoomCapacity = 2

// Player 玩家记录，由 getPlayersByRooms 的同一下标解码得到
type Player struct {
	Address      Identity `json:"address"`
	StakeBalance Stake    `json:"stake_balance"`
	RoomID       RoomID   `json:"room_id"`
	InGame       bool     `json:"in_game"`
}

// Occupant 房间内的一个槽位
type Occupant struct {
	Address      Identity `json:"address"`
	StakeBalance Stake    `json:"stake_balance"`
}

// RoomPairing 按房间聚合的对战双方
type RoomPairing struct {
	RoomID    RoomID     `json:"room_id"`
	Occupants []Occupant `json:"occupants"`
	Capacity  int        `json:"capacity"`
}

// Left returns slot 0, or nil when the room is empty.
func (r RoomPairing) Left() *Occupant {
	return r.slot(0)
}

// Right returns slot 1, or nil while the room waits for an opponent.
func (r RoomPairing) Right() *Occupant {
	return r.slot(1)
}

func (r RoomPairing) slot(i int) *Occupant {
	if i >= len(r.Occupants) {
		return nil
	}
	o := r.Occupants[i]
	return &o
}

// Paired reports whether both presented slots are filled.
func (r RoomPairing) Paired() bool {
	return len(r.Occupants) >= RoomCapacity
}

// Overfull reports more occupants than the ledger is expected to seat.
func (r RoomPairing) Overfull() bool {
	return len(r.Occupants) > r.Capacity
}

// RankingEntry 排行榜条目
type RankingEntry struct {
	Address      Identity `json:"address"`
	StakeBalance Stake    `json:"stake_balance"`
}

// PlayerList is the getPlayers result. It is carried through the cache but
// not decoded further.
type PlayerList []Identity
