// room/room.go
package room

import (
	"github.com/wfunc/dilemmaview/models"
)

// Pairings 按首次出现顺序保存的房间集合
type Pairings struct {
	order []models.RoomID
	rooms map[models.RoomID]*models.RoomPairing
}

// Aggregate groups players by room in a single pass. Occupants keep arrival
// order (slot 0 is the first seen) and rooms keep first-occurrence order.
// Rooms holding more than two occupants are kept whole.
func Aggregate(players []models.Player) *Pairings {
	p := &Pairings{
		rooms: make(map[models.RoomID]*models.RoomPairing),
	}
	for _, player := range players {
		pairing, exists := p.rooms[player.RoomID]
		if !exists {
			pairing = &models.RoomPairing{
				RoomID:   player.RoomID,
				Capacity: models.RoomCapacity,
			}
			p.rooms[player.RoomID] = pairing
			p.order = append(p.order, player.RoomID)
		}
		pairing.Occupants = append(pairing.Occupants, models.Occupant{
			Address:      player.Address,
			StakeBalance: player.StakeBalance,
		})
	}
	return p
}

// Get 获取单个房间
func (p *Pairings) Get(id models.RoomID) (models.RoomPairing, bool) {
	if p == nil {
		return models.RoomPairing{}, false
	}
	pairing, exists := p.rooms[id]
	if !exists {
		return models.RoomPairing{}, false
	}
	return copyPairing(pairing), true
}

// List returns copies of all rooms in first-occurrence order.
func (p *Pairings) List() []models.RoomPairing {
	if p == nil {
		return nil
	}
	list := make([]models.RoomPairing, 0, len(p.order))
	for _, id := range p.order {
		list = append(list, copyPairing(p.rooms[id]))
	}
	return list
}

// Len 房间数量
func (p *Pairings) Len() int {
	if p == nil {
		return 0
	}
	return len(p.order)
}

// Empty reports whether there are no rooms to present.
func (p *Pairings) Empty() bool {
	return p.Len() == 0
}

// Overfull lists rooms seating more players than the room capacity, in
// first-occurrence order.
func (p *Pairings) Overfull() []models.RoomID {
	if p == nil {
		return nil
	}
	var ids []models.RoomID
	for _, id := range p.order {
		if p.rooms[id].Overfull() {
			ids = append(ids, id)
		}
	}
	return ids
}

func copyPairing(src *models.RoomPairing) models.RoomPairing {
	occupants := make([]models.Occupant, len(src.Occupants))
	copy(occupants, src.Occupants)
	return models.RoomPairing{
		RoomID:    src.RoomID,
		Occupants: occupants,
		Capacity:  src.Capacity,
	}
}
