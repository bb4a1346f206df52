// Package view assembles the presentation model from a published snapshot.
package view

import (
	"time"

	"github.com/wfunc/dilemmaview/models"
	"github.com/wfunc/dilemmaview/ranking"
	"github.com/wfunc/dilemmaview/refresh"
	"github.com/wfunc/dilemmaview/room"
	"github.com/wfunc/dilemmaview/session"
	"github.com/wfunc/dilemmaview/state"
)

const (
	NoRankingNotice = "No ranking data available."
	NoDuelsNotice   = "No duels available."
)

// OccupantView 房间里的一方
type OccupantView struct {
	Address      models.Identity `json:"address"`
	StakeBalance models.Stake    `json:"stake_balance"`
	Self         bool            `json:"self,omitempty"`
}

// RoomView 一场对战；只展示前两个槽位
type RoomView struct {
	RoomID models.RoomID `json:"room_id"`
	Left   *OccupantView `json:"left,omitempty"`
	Right  *OccupantView `json:"right,omitempty"`
	Paired bool          `json:"paired"`
	Extra  int           `json:"extra,omitempty"`
}

// ViewModel is everything the presentation layer renders for one refresh.
type ViewModel struct {
	Identity        models.Identity      `json:"identity,omitempty"`
	Identified      bool                 `json:"identified"`
	Self            *models.Player       `json:"self,omitempty"`
	Phase           state.Phase          `json:"phase"`
	Actions         []state.Action       `json:"actions"`
	Rooms           []RoomView           `json:"rooms,omitempty"`
	DuelsNotice     string               `json:"duels_notice,omitempty"`
	Ranking         []ranking.Positioned `json:"ranking,omitempty"`
	RankingNotice   string               `json:"ranking_notice,omitempty"`
	ContractBalance *models.Stake        `json:"contract_balance,omitempty"`
	Generation      uint64               `json:"generation"`
	UpdatedAt       time.Time            `json:"updated_at"`
	Stale           []string             `json:"stale,omitempty"`
}

// Build derives the view for the given identity. Slots without data render
// as their empty states; the self view is resolved against the same
// snapshot the rooms come from.
func Build(snap refresh.Snapshot, actor models.Identity, identified bool) ViewModel {
	vm := ViewModel{
		Identified: identified,
		Generation: snap.Generation,
		UpdatedAt:  snap.PublishedAt,
	}
	if identified {
		vm.Identity = actor
	}

	var players []models.Player
	if snap.PlayersByRooms.Valid {
		players = snap.PlayersByRooms.Value
	}

	var who *models.Identity
	if identified {
		who = &actor
	}

	var self *models.Player
	if p, found := session.Resolve(players, who); found {
		self = &p
	}
	vm.Self = self

	pairings := room.Aggregate(players)
	vm.Phase = state.PhaseOf(identified, self, pairings)
	vm.Actions = state.Offered(vm.Phase)

	for _, pairing := range pairings.List() {
		vm.Rooms = append(vm.Rooms, roomView(pairing, actor, identified))
	}
	if len(vm.Rooms) == 0 {
		vm.DuelsNotice = NoDuelsNotice
	}

	if snap.Ranking.Valid && len(snap.Ranking.Value) > 0 {
		vm.Ranking = ranking.WithPositions(ranking.Compute(snap.Ranking.Value))
	} else {
		vm.RankingNotice = NoRankingNotice
	}

	if snap.ContractBalance.Valid {
		balance := snap.ContractBalance.Value
		vm.ContractBalance = &balance
	}

	errs := snap.Errors()
	for _, slot := range refresh.Slots {
		if _, failed := errs[slot]; failed {
			vm.Stale = append(vm.Stale, string(slot))
		}
	}
	return vm
}

func roomView(pairing models.RoomPairing, actor models.Identity, identified bool) RoomView {
	rv := RoomView{
		RoomID: pairing.RoomID,
		Paired: pairing.Paired(),
	}
	if pairing.Overfull() {
		rv.Extra = len(pairing.Occupants) - pairing.Capacity
	}
	occupant := func(o *models.Occupant) *OccupantView {
		if o == nil {
			return nil
		}
		return &OccupantView{
			Address:      o.Address,
			StakeBalance: o.StakeBalance,
			Self:         identified && o.Address.Equal(actor),
		}
	}
	rv.Left = occupant(pairing.Left())
	rv.Right = occupant(pairing.Right())
	return rv
}
