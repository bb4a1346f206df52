// refresh/cache.go
package refresh

import (
	"errors"
	"sync"
	"time"

	"github.com/wfunc/dilemmaview/decode"
	"github.com/wfunc/dilemmaview/models"
)

// Slot 四个独立查询之一
type Slot string

const (
	SlotPlayersByRooms  Slot = "playersByRooms"
	SlotRanking         Slot = "ranking"
	SlotPlayers         Slot = "players"
	SlotContractBalance Slot = "contractBalance"
)

// Slots lists every query slot in issue order.
var Slots = []Slot{SlotPlayersByRooms, SlotRanking, SlotPlayers, SlotContractBalance}

// SlotValue is one cached query result.
//
// Valid is false until a query succeeds, and again after a decode failure.
// A transport failure keeps the previous value and only records Err.
type SlotValue[T any] struct {
	Value      T
	Valid      bool
	Generation uint64
	FetchedAt  time.Time
	Err        error
}

// Snapshot 一次发布的完整视图数据，发布后不可修改
type Snapshot struct {
	Generation      uint64
	PublishedAt     time.Time
	PlayersByRooms  SlotValue[[]models.Player]
	Ranking         SlotValue[[]models.RankingEntry]
	Players         SlotValue[models.PlayerList]
	ContractBalance SlotValue[models.Stake]
}

// Errors returns the per-slot errors recorded in the snapshot.
func (s Snapshot) Errors() map[Slot]error {
	errs := make(map[Slot]error)
	if s.PlayersByRooms.Err != nil {
		errs[SlotPlayersByRooms] = s.PlayersByRooms.Err
	}
	if s.Ranking.Err != nil {
		errs[SlotRanking] = s.Ranking.Err
	}
	if s.Players.Err != nil {
		errs[SlotPlayers] = s.Players.Err
	}
	if s.ContractBalance.Err != nil {
		errs[SlotContractBalance] = s.ContractBalance.Err
	}
	return errs
}

// Cache holds the four slots. Only the Scheduler writes to it; readers only
// ever see published snapshots.
type Cache struct {
	playersByRooms  SlotValue[[]models.Player]
	ranking         SlotValue[[]models.RankingEntry]
	players         SlotValue[models.PlayerList]
	contractBalance SlotValue[models.Stake]
	published       Snapshot
	mutex           sync.RWMutex
}

func NewCache() *Cache {
	return &Cache{}
}

// store applies one query outcome. Results from a refresh older than the
// one that last wrote the slot are dropped. Must be called with the mutex held.
func store[T any](slot *SlotValue[T], generation uint64, value T, err error, now time.Time) bool {
	if generation < slot.Generation {
		return false
	}

	var de *decode.DecodeError
	switch {
	case err == nil:
		*slot = SlotValue[T]{Value: value, Valid: true, Generation: generation, FetchedAt: now}
	case errors.As(err, &de):
		var zero T
		*slot = SlotValue[T]{Value: zero, Valid: false, Generation: generation, FetchedAt: now, Err: err}
	default:
		slot.Err = err
	}
	return true
}

func (c *Cache) StorePlayersByRooms(generation uint64, v []models.Player, err error) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return store(&c.playersByRooms, generation, v, err, time.Now())
}

func (c *Cache) StoreRanking(generation uint64, v []models.RankingEntry, err error) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return store(&c.ranking, generation, v, err, time.Now())
}

func (c *Cache) StorePlayers(generation uint64, v models.PlayerList, err error) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return store(&c.players, generation, v, err, time.Now())
}

func (c *Cache) StoreContractBalance(generation uint64, v models.Stake, err error) bool {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return store(&c.contractBalance, generation, v, err, time.Now())
}

// Publish freezes the current slots into a snapshot stamped with generation.
// A batch that settles after a newer one has published leaves the published
// snapshot as it is.
func (c *Cache) Publish(generation uint64) (Snapshot, bool) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if generation <= c.published.Generation {
		return c.published, false
	}
	c.published = Snapshot{
		Generation:      generation,
		PublishedAt:     time.Now(),
		PlayersByRooms:  c.playersByRooms,
		Ranking:         c.ranking,
		Players:         c.players,
		ContractBalance: c.contractBalance,
	}
	return c.published, true
}

// Snapshot returns the last published snapshot.
func (c *Cache) Snapshot() Snapshot {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return c.published
}
